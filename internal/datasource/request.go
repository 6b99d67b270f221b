package datasource

import (
	"fmt"

	"github.com/gridbroker/gridbroker/internal/datasource/sqlbuild"
)

// OperationType names the data source operation being requested.
type OperationType string

const (
	OpFetch  OperationType = "fetch"
	OpAdd    OperationType = "add"
	OpUpdate OperationType = "update"
	OpRemove OperationType = "remove"
	OpCustom OperationType = "custom"
)

// ParseOperationType validates a wire-level operation type.
func ParseOperationType(s string) (OperationType, error) {
	op := OperationType(s)
	switch op {
	case OpFetch, OpAdd, OpUpdate, OpRemove, OpCustom:
		return op, nil
	}
	return "", fmt.Errorf("invalid operation type %q", s)
}

// DefaultTextMatchStyle is the match style applied when the request carries
// none: exact for update/remove, substring for everything else.
func DefaultTextMatchStyle(op OperationType) sqlbuild.TextMatchStyle {
	if op == OpUpdate || op == OpRemove {
		return sqlbuild.MatchExact
	}
	return sqlbuild.MatchSubstring
}

// Status is the wire-level outcome code of one operation.
type Status int

const (
	StatusSuccess           Status = 0
	StatusFailure           Status = -1
	StatusValidationError   Status = -4
	StatusTransactionFailed Status = -10
)

// DSRequest is one parsed data source operation of a transaction.
type DSRequest struct {
	AppID          string
	DataSource     string
	OperationType  OperationType
	OperationID    string
	ComponentID    string
	TextMatchStyle sqlbuild.TextMatchStyle

	// Criteria is the raw criteria object; when it carries the
	// AdvancedCriteria marker, Advanced holds the parsed tree.
	Criteria map[string]interface{}
	Advanced *sqlbuild.Criterion

	Values    map[string]interface{}
	OldValues map[string]interface{}

	SortBy   []string
	StartRow *int64
	EndRow   *int64

	// RawPK is the primary-key value taken from a REST URL path. It is
	// overlaid onto Criteria (or Values, for add) once the descriptor is
	// known.
	RawPK string
}

// EffectiveTextMatchStyle resolves the request's match style, falling back to
// the per-operation default.
func (r *DSRequest) EffectiveTextMatchStyle() sqlbuild.TextMatchStyle {
	if r.TextMatchStyle != "" {
		return r.TextMatchStyle
	}
	return DefaultTextMatchStyle(r.OperationType)
}

// DSResponse is the outcome of one data source operation.
type DSResponse struct {
	Status          Status
	Data            interface{}
	StartRow        int64
	EndRow          int64
	TotalRows       int64
	AffectedRows    int64
	InvalidateCache bool
	// Errors maps field names to validation messages.
	Errors map[string][]string
}

// NewSuccessDSResponse wraps data in a success response.
func NewSuccessDSResponse(data interface{}) *DSResponse {
	return &DSResponse{Status: StatusSuccess, Data: data}
}
