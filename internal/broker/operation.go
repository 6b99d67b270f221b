package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/datasource"
)

// Operation is one slot of a transaction envelope. The coordinator drives the
// three phases in order; Execute never fails the batch, it reports through its
// response.
type Operation interface {
	// Init acquires the resources the operation needs. A failure here fails
	// the whole transaction.
	Init(ctx context.Context) error
	// Execute runs the operation and normalises any failure into a response.
	Execute(ctx context.Context) *Response
	// FreeResources releases everything Init acquired. Best effort.
	FreeResources(ctx context.Context)
}

// DSOperation executes one data source request: acquire the data source, open
// a back-end transaction, dispatch, then commit or roll back.
type DSOperation struct {
	Pool           *datasource.Pool
	Request        *datasource.DSRequest
	WithStacktrace bool

	ds datasource.DataSource
}

func (o *DSOperation) Init(ctx context.Context) error {
	ds, err := o.Pool.Acquire(ctx, o.Request.DataSource)
	if err != nil {
		return fmt.Errorf("acquiring data source %q: %w", o.Request.DataSource, err)
	}
	o.ds = ds
	o.applyRawPK(ds.Descriptor())

	if err := ds.Init(ctx, o.Request); err != nil {
		return fmt.Errorf("initializing data source %q: %w", o.Request.DataSource, err)
	}
	return nil
}

func (o *DSOperation) Execute(ctx context.Context) *Response {
	if err := o.ds.StartTransaction(ctx); err != nil {
		return o.failure(ctx, err)
	}

	result, err := o.ds.Execute(ctx, o.Request)
	if err != nil {
		o.rollback(ctx)
		return o.failure(ctx, err)
	}

	if err := o.ds.Commit(ctx); err != nil {
		// The work looked done but did not stick; downgrade the result.
		log.Ctx(ctx).Errorf("committing operation %q on data source %q: %s",
			o.Request.OperationType, o.Request.DataSource, err)
		o.rollback(ctx)
		return NewErrorResponse(datasource.StatusTransactionFailed, err, true, o.WithStacktrace)
	}

	return NewDSWireResponse(result)
}

func (o *DSOperation) FreeResources(ctx context.Context) {
	if o.ds == nil {
		return
	}
	o.Pool.Release(ctx, o.ds)
	o.ds = nil
}

// applyRawPK overlays a REST URL primary-key segment onto the request once
// the descriptor reveals the key field. Multi-field keys cannot come from a
// single path segment and are left alone.
func (o *DSOperation) applyRawPK(desc *datasource.Descriptor) {
	if o.Request.RawPK == "" {
		return
	}
	pks := desc.PKFields()
	if len(pks) != 1 {
		return
	}

	if o.Request.OperationType == datasource.OpAdd {
		if o.Request.Values == nil {
			o.Request.Values = map[string]interface{}{}
		}
		o.Request.Values[pks[0].Name] = o.Request.RawPK
		return
	}
	if o.Request.Criteria == nil {
		o.Request.Criteria = map[string]interface{}{}
	}
	o.Request.Criteria[pks[0].Name] = o.Request.RawPK
}

func (o *DSOperation) failure(ctx context.Context, err error) *Response {
	status := datasource.StatusFailure
	if errors.Is(err, datasource.ErrMissingPrimaryKey) {
		status = datasource.StatusValidationError
	}
	log.Ctx(ctx).Errorf("operation %q on data source %q failed: %s",
		o.Request.OperationType, o.Request.DataSource, err)
	return NewErrorResponse(status, err, true, o.WithStacktrace)
}

func (o *DSOperation) rollback(ctx context.Context) {
	if err := o.ds.Rollback(ctx); err != nil {
		log.Ctx(ctx).Errorf("rolling back operation %q on data source %q: %s",
			o.Request.OperationType, o.Request.DataSource, err)
	}
}

var _ Operation = (*DSOperation)(nil)
