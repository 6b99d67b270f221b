package broker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stellar/go-stellar-sdk/support/log"
)

// Coordinator owns the operation queue of one HTTP request and drives it
// through three sequential phases: init (stop on first error), execute (all),
// and free (best effort). Responses come back in request order, one slot per
// operation.
type Coordinator struct {
	operations []Operation
}

func NewCoordinator(operations []Operation) *Coordinator {
	return &Coordinator{operations: operations}
}

// Run executes the whole transaction. An init failure aborts the batch with a
// single top-level error; execute failures stay inside their response slot.
// Acquired resources are freed in every outcome.
func (c *Coordinator) Run(ctx context.Context) ([]*Response, error) {
	txID := uuid.NewString()
	ctx = log.Set(ctx, log.Ctx(ctx).WithField("transaction_id", txID))
	log.Ctx(ctx).Debugf("transaction started with %d operation(s)", len(c.operations))

	initialized := 0
	for i, op := range c.operations {
		if err := op.Init(ctx); err != nil {
			// The failing operation may have acquired resources before it
			// failed, so it is freed together with the finished ones.
			c.free(ctx, i+1)
			return nil, fmt.Errorf("initializing operation %d of %d: %w", i+1, len(c.operations), err)
		}
		initialized++
	}

	responses := make([]*Response, 0, len(c.operations))
	for _, op := range c.operations {
		responses = append(responses, op.Execute(ctx))
	}

	c.free(ctx, initialized)

	log.Ctx(ctx).Debugf("transaction finished with %d response(s)", len(responses))
	return responses, nil
}

// free releases the first n operations. Release problems are logged inside
// FreeResources and never abort the sweep.
func (c *Coordinator) free(ctx context.Context, n int) {
	for i := 0; i < n && i < len(c.operations); i++ {
		c.operations[i].FreeResources(ctx)
	}
}
