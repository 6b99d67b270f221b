package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/monitor"
)

type QueryType string

const (
	DeleteQueryType    QueryType = "DELETE"
	InsertQueryType    QueryType = "INSERT"
	SelectQueryType    QueryType = "SELECT"
	UpdateQueryType    QueryType = "UPDATE"
	UndefinedQueryType QueryType = "UNDEFINED"
)

// SQLExecuterWithMetrics decorates an executer so every statement reports its
// duration to the monitoring service, labelled with the statement verb.
type SQLExecuterWithMetrics struct {
	SQLExecuter
	monitorService monitor.MonitorServiceInterface
}

var _ SQLExecuter = (*SQLExecuterWithMetrics)(nil)

func NewSQLExecuterWithMetrics(sqlExec SQLExecuter, monitorService monitor.MonitorServiceInterface) *SQLExecuterWithMetrics {
	return &SQLExecuterWithMetrics{
		SQLExecuter:    sqlExec,
		monitorService: monitorService,
	}
}

func (e *SQLExecuterWithMetrics) monitorDBQueryDuration(duration time.Duration, query string, err error) {
	tag := monitor.SuccessfulQueryDurationTag
	if err != nil {
		tag = monitor.FailureQueryDurationTag
	}
	labels := monitor.DBQueryLabels{
		QueryType: string(queryTypeOf(query)),
	}
	if monitorErr := e.monitorService.MonitorDBQueryDuration(duration, tag, labels); monitorErr != nil {
		log.Errorf("monitoring db query duration: %s", monitorErr)
	}
}

func (e *SQLExecuterWithMetrics) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	then := time.Now()
	result, err := e.SQLExecuter.ExecContext(ctx, query, args...)
	e.monitorDBQueryDuration(time.Since(then), query, err)
	return result, err
}

func (e *SQLExecuterWithMetrics) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	then := time.Now()
	err := e.SQLExecuter.GetContext(ctx, dest, query, args...)
	e.monitorDBQueryDuration(time.Since(then), query, err)
	return err
}

func (e *SQLExecuterWithMetrics) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	then := time.Now()
	err := e.SQLExecuter.SelectContext(ctx, dest, query, args...)
	e.monitorDBQueryDuration(time.Since(then), query, err)
	return err
}

func (e *SQLExecuterWithMetrics) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	then := time.Now()
	rows, err := e.SQLExecuter.QueryxContext(ctx, query, args...)
	e.monitorDBQueryDuration(time.Since(then), query, err)
	return rows, err
}

// queryTypeOf classifies a statement by its leading verb.
func queryTypeOf(query string) QueryType {
	words := strings.Fields(query)
	if len(words) == 0 {
		return UndefinedQueryType
	}
	verb := strings.ToUpper(words[0])
	switch QueryType(verb) {
	case DeleteQueryType, InsertQueryType, SelectQueryType, UpdateQueryType:
		return QueryType(verb)
	}
	return UndefinedQueryType
}
