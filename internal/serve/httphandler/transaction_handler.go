package httphandler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/broker"
	"github.com/gridbroker/gridbroker/internal/monitor"
	"github.com/gridbroker/gridbroker/internal/serve/httperror"
)

// TransactionHandler serves the two transaction routes: the framework's
// native transport and the REST front-end. Both funnel into the same
// coordinator; they differ only in envelope parsing and response framing.
type TransactionHandler struct {
	Parser         *broker.EnvelopeParser
	Formatter      *broker.Formatter
	MonitorService monitor.MonitorServiceInterface
}

func (h TransactionHandler) ServeIDA(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Parser.ParseIDA(r)
	if err != nil {
		switch {
		case errors.Is(err, broker.ErrResubmit):
			h.Formatter.WriteResubmit(w, r)
		case errors.Is(err, broker.ErrNotRPC):
			httperror.BadRequest("Request carries no RPC marker.", err, nil).Render(w)
		default:
			h.Formatter.WriteTopLevelError(w, r, err)
		}
		return
	}

	h.countTransaction("ida")

	responses, err := h.run(r, tx)
	if err != nil {
		h.Formatter.WriteTopLevelError(w, r, err)
		return
	}
	h.Formatter.WriteIDA(w, r, tx, responses)
}

func (h TransactionHandler) ServeREST(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Parser.ParseREST(r)
	if err != nil {
		h.Formatter.WriteTopLevelError(w, r, err)
		return
	}

	h.countTransaction("rest")

	responses, err := h.run(r, tx)
	if err != nil {
		h.Formatter.WriteTopLevelError(w, r, err)
		return
	}
	h.Formatter.WriteREST(w, r, tx, responses)
}

func (h TransactionHandler) run(r *http.Request, tx *broker.Transaction) ([]*broker.Response, error) {
	started := time.Now()
	responses, err := broker.NewCoordinator(tx.Operations).Run(r.Context())
	if err != nil {
		return nil, err
	}
	h.monitorOperations(r, tx, responses, time.Since(started))
	return responses, nil
}

func (h TransactionHandler) countTransaction(frontEnd string) {
	if h.MonitorService == nil {
		return
	}
	if err := h.MonitorService.MonitorCounters(monitor.TransactionsCounterTag, map[string]string{"front_end": frontEnd}); err != nil {
		log.Errorf("Error monitoring transaction counter: %s", err)
	}
}

func (h TransactionHandler) monitorOperations(r *http.Request, tx *broker.Transaction, responses []*broker.Response, elapsed time.Duration) {
	if h.MonitorService == nil {
		return
	}

	// The elapsed time covers the whole batch; each slot gets the averaged
	// share so durations stay comparable across batch sizes.
	perOp := elapsed
	if len(responses) > 1 {
		perOp = elapsed / time.Duration(len(responses))
	}

	for i, op := range tx.Operations {
		if i >= len(responses) {
			break
		}
		labels := monitor.OperationLabels{
			DataSource:    "rpc",
			OperationType: "custom",
			Status:        strconv.Itoa(int(responses[i].Status)),
		}
		if dsOp, ok := op.(*broker.DSOperation); ok {
			labels.DataSource = dsOp.Request.DataSource
			labels.OperationType = string(dsOp.Request.OperationType)
		}

		if err := h.MonitorService.MonitorCounters(monitor.OperationsCounterTag, labels.ToMap()); err != nil {
			log.Ctx(r.Context()).Errorf("Error monitoring operation counter: %s", err)
		}
		if err := h.MonitorService.MonitorDuration(perOp, monitor.OperationDurationTag, labels.ToMap()); err != nil {
			log.Ctx(r.Context()).Errorf("Error monitoring operation duration: %s", err)
		}
	}
}
