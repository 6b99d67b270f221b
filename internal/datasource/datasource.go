package datasource

import (
	"context"
	"fmt"
)

// DataSource is the per-descriptor record engine contract consumed by
// operations. Instances are pooled: one operation owns an instance between
// acquire and release, and the DSRequest travels as an argument instead of
// being stored on the instance.
type DataSource interface {
	Descriptor() *Descriptor

	// Init binds the request and acquires back-end resources.
	Init(ctx context.Context, req *DSRequest) error
	// StartTransaction opens the back-end transaction for one operation.
	StartTransaction(ctx context.Context) error
	// Execute dispatches on the request's operation type.
	Execute(ctx context.Context, req *DSRequest) (*DSResponse, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// FreeResources returns back-end resources to their pools. It never
	// fails the caller; problems are logged.
	FreeResources(ctx context.Context)
}

// OperationExecutor is the per-operation-type surface a concrete data source
// overrides. Unimplemented operations fall through to the base, which rejects
// them.
type OperationExecutor interface {
	ExecuteFetch(ctx context.Context, req *DSRequest) (*DSResponse, error)
	ExecuteAdd(ctx context.Context, req *DSRequest) (*DSResponse, error)
	ExecuteUpdate(ctx context.Context, req *DSRequest) (*DSResponse, error)
	ExecuteRemove(ctx context.Context, req *DSRequest) (*DSResponse, error)
	ExecuteCustom(ctx context.Context, req *DSRequest) (*DSResponse, error)
}

// BaseDataSource is the generic data source: descriptor-backed metadata with
// no storage attached. It also carries the operation dispatch shared by every
// subclass.
type BaseDataSource struct {
	desc     *Descriptor
	executor OperationExecutor
}

// NewBaseDataSource constructs a generic data source for the descriptor.
func NewBaseDataSource(desc *Descriptor) *BaseDataSource {
	b := &BaseDataSource{desc: desc}
	b.executor = b
	return b
}

// BindExecutor points the dispatch at a subclass's executor. Called by
// concrete data source constructors.
func (b *BaseDataSource) BindExecutor(e OperationExecutor) { b.executor = e }

func (b *BaseDataSource) Descriptor() *Descriptor { return b.desc }

func (b *BaseDataSource) Init(ctx context.Context, req *DSRequest) error { return nil }

func (b *BaseDataSource) StartTransaction(ctx context.Context) error { return nil }

// Execute dispatches on the request's operation type.
func (b *BaseDataSource) Execute(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	switch req.OperationType {
	case OpFetch:
		return b.executor.ExecuteFetch(ctx, req)
	case OpAdd:
		return b.executor.ExecuteAdd(ctx, req)
	case OpUpdate:
		return b.executor.ExecuteUpdate(ctx, req)
	case OpRemove:
		return b.executor.ExecuteRemove(ctx, req)
	case OpCustom:
		return b.executor.ExecuteCustom(ctx, req)
	}
	return nil, fmt.Errorf("invalid operation type %q on data source %q", req.OperationType, b.desc.ID)
}

func (b *BaseDataSource) ExecuteFetch(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	return nil, b.notImplemented(OpFetch)
}

func (b *BaseDataSource) ExecuteAdd(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	return nil, b.notImplemented(OpAdd)
}

func (b *BaseDataSource) ExecuteUpdate(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	return nil, b.notImplemented(OpUpdate)
}

func (b *BaseDataSource) ExecuteRemove(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	return nil, b.notImplemented(OpRemove)
}

func (b *BaseDataSource) ExecuteCustom(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	return nil, b.notImplemented(OpCustom)
}

func (b *BaseDataSource) Commit(ctx context.Context) error { return nil }

func (b *BaseDataSource) Rollback(ctx context.Context) error { return nil }

func (b *BaseDataSource) FreeResources(ctx context.Context) {}

func (b *BaseDataSource) notImplemented(op OperationType) error {
	return fmt.Errorf("%w: %q on data source %q", ErrNotImplemented, op, b.desc.ID)
}

var _ DataSource = (*BaseDataSource)(nil)
var _ OperationExecutor = (*BaseDataSource)(nil)
