package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/datasource"
)

// RPCRequest is one non-data-source operation of a transaction.
type RPCRequest struct {
	AppID      string
	ClassName  string
	MethodName string
	Data       interface{}
}

// ServerObject is a server-side RPC target. Named methods dispatch through
// Invoke; an empty method name selects the object's default behaviour.
type ServerObject interface {
	Invoke(ctx context.Context, method string, req *RPCRequest) (interface{}, error)
}

// ServerObjectInitializer is implemented by server objects that need
// per-request setup.
type ServerObjectInitializer interface {
	Init(ctx context.Context, req *RPCRequest) error
}

// ServerObjectTransactional is implemented by server objects that take part in
// the operation's transaction bracket.
type ServerObjectTransactional interface {
	StartTransaction(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ServerObjectFreer is implemented by server objects holding resources that
// outlive Invoke.
type ServerObjectFreer interface {
	FreeResources(ctx context.Context)
}

// ServerObjectFactory builds a fresh server object for one request.
type ServerObjectFactory func(req *RPCRequest) (ServerObject, error)

var (
	serverObjectsMu sync.RWMutex
	serverObjects   = map[string]ServerObjectFactory{}
)

// RegisterServerObject makes an RPC target available under the given class
// name. Registration happens at program start, never on the request path.
func RegisterServerObject(className string, factory ServerObjectFactory) {
	serverObjectsMu.Lock()
	defer serverObjectsMu.Unlock()
	if _, dup := serverObjects[className]; dup {
		panic(fmt.Sprintf("server object %q registered twice", className))
	}
	serverObjects[className] = factory
}

func lookupServerObject(className string) (ServerObjectFactory, bool) {
	serverObjectsMu.RLock()
	defer serverObjectsMu.RUnlock()
	factory, ok := serverObjects[className]
	return factory, ok
}

// RPCOperation executes one RPC request against a registered server object.
// Requests naming no class, or a class nobody registered, echo their data back
// unchanged.
type RPCOperation struct {
	Request        *RPCRequest
	WithStacktrace bool

	instance ServerObject
}

func (o *RPCOperation) Init(ctx context.Context) error {
	if o.Request.ClassName == "" {
		return nil
	}

	factory, ok := lookupServerObject(o.Request.ClassName)
	if !ok {
		log.Ctx(ctx).Warnf("no server object registered as %q, echoing request data", o.Request.ClassName)
		return nil
	}

	instance, err := factory(o.Request)
	if err != nil {
		return fmt.Errorf("constructing server object %q: %w", o.Request.ClassName, err)
	}
	o.instance = instance

	if initializer, ok := instance.(ServerObjectInitializer); ok {
		if err := initializer.Init(ctx, o.Request); err != nil {
			return fmt.Errorf("initializing server object %q: %w", o.Request.ClassName, err)
		}
	}
	return nil
}

func (o *RPCOperation) Execute(ctx context.Context) *Response {
	if o.instance == nil {
		return NewRPCWireResponse(o.Request.Data)
	}

	txn, transactional := o.instance.(ServerObjectTransactional)
	if transactional {
		if err := txn.StartTransaction(ctx); err != nil {
			return o.failure(ctx, err)
		}
	}

	result, err := o.instance.Invoke(ctx, o.Request.MethodName, o.Request)
	if err != nil {
		o.rollback(ctx, txn)
		return o.failure(ctx, err)
	}

	if transactional {
		if err := txn.Commit(ctx); err != nil {
			log.Ctx(ctx).Errorf("committing RPC on %q: %s", o.Request.ClassName, err)
			o.rollback(ctx, txn)
			return NewErrorResponse(datasource.StatusTransactionFailed, err, false, o.WithStacktrace)
		}
	}

	return NewRPCWireResponse(result)
}

func (o *RPCOperation) FreeResources(ctx context.Context) {
	if freer, ok := o.instance.(ServerObjectFreer); ok {
		freer.FreeResources(ctx)
	}
	o.instance = nil
}

func (o *RPCOperation) failure(ctx context.Context, err error) *Response {
	log.Ctx(ctx).Errorf("RPC on %q failed: %s", o.Request.ClassName, err)
	return NewErrorResponse(datasource.StatusFailure, err, false, o.WithStacktrace)
}

func (o *RPCOperation) rollback(ctx context.Context, txn ServerObjectTransactional) {
	if txn == nil {
		return
	}
	if err := txn.Rollback(ctx); err != nil {
		log.Ctx(ctx).Errorf("rolling back RPC on %q: %s", o.Request.ClassName, err)
	}
}

var _ Operation = (*RPCOperation)(nil)
