package broker

import "errors"

var (
	// ErrResubmit signals an IDA call that arrived with an empty _transaction;
	// the formatter answers with the browser retry trampoline instead of an
	// error body.
	ErrResubmit = errors.New("empty transaction, client must resubmit")

	// ErrEnvelopeParse marks a request body that is neither valid JSON nor
	// valid XML.
	ErrEnvelopeParse = errors.New("transaction envelope is not parsable")

	// ErrNotRPC marks a request on the IDA route that carries no RPC marker.
	ErrNotRPC = errors.New("request is not marked as an RPC call")
)
