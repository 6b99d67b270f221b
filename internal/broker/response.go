package broker

import (
	"runtime"

	"github.com/gridbroker/gridbroker/internal/datasource"
)

// Response is the wire-level outcome of one operation. DS and RPC operations
// produce the same envelope; DS responses carry the paging extras and are
// marked with isDSResponse.
type Response struct {
	Status      datasource.Status
	QueueStatus datasource.Status
	Data        interface{}

	IsDSResponse    bool
	StartRow        int64
	EndRow          int64
	TotalRows       int64
	AffectedRows    int64
	InvalidateCache bool
	Errors          map[string][]string

	Stacktrace string
}

// NewDSWireResponse lifts a data source result into the wire envelope.
func NewDSWireResponse(r *datasource.DSResponse) *Response {
	return &Response{
		Status:          r.Status,
		QueueStatus:     r.Status,
		Data:            r.Data,
		IsDSResponse:    true,
		StartRow:        r.StartRow,
		EndRow:          r.EndRow,
		TotalRows:       r.TotalRows,
		AffectedRows:    r.AffectedRows,
		InvalidateCache: r.InvalidateCache,
		Errors:          r.Errors,
	}
}

// NewRPCWireResponse wraps an RPC result as a success response.
func NewRPCWireResponse(data interface{}) *Response {
	return &Response{Status: datasource.StatusSuccess, Data: data}
}

// NewErrorResponse wraps an operation failure. The error message travels in
// the data slot; withStacktrace attaches the server stack for diagnosis.
func NewErrorResponse(status datasource.Status, err error, isDS bool, withStacktrace bool) *Response {
	resp := &Response{
		Status:       status,
		QueueStatus:  status,
		Data:         err.Error(),
		IsDSResponse: isDS,
	}
	if withStacktrace {
		buf := make([]byte, 8192)
		resp.Stacktrace = string(buf[:runtime.Stack(buf, false)])
	}
	return resp
}

// wireMap flattens the response into the serialisable key set shared by the
// JSON and XML encoders.
func (r *Response) wireMap() map[string]interface{} {
	m := map[string]interface{}{
		"status": int(r.Status),
		"data":   r.Data,
	}
	if r.QueueStatus != r.Status || r.IsDSResponse {
		m["queueStatus"] = int(r.QueueStatus)
	}
	if r.IsDSResponse {
		m["isDSResponse"] = true
		m["startRow"] = r.StartRow
		m["endRow"] = r.EndRow
		m["totalRows"] = r.TotalRows
		if r.AffectedRows > 0 {
			m["affectedRows"] = r.AffectedRows
		}
		if r.InvalidateCache {
			m["invalidateCache"] = true
		}
		if len(r.Errors) > 0 {
			m["errors"] = r.Errors
		}
	}
	if r.Stacktrace != "" {
		m["stacktrace"] = r.Stacktrace
	}
	return m
}
