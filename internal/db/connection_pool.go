package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/config"
	"github.com/gridbroker/gridbroker/internal/monitor"
)

// SQLExecuter is the query surface shared by a borrowed Connection and an open
// transaction.
type SQLExecuter interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	Rebind(query string) string
}

// make sure *sqlx.Tx implements SQLExecuter:
var _ SQLExecuter = (*sqlx.Tx)(nil)

// Connection is one back-end connection checked out of a named pool. It is
// owned exclusively by a single operation between Acquire and Release.
type Connection struct {
	DBName         string
	driverName     string
	conn           *sqlx.Conn
	monitorService monitor.MonitorServiceInterface
}

func (c *Connection) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *Connection) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return c.conn.GetContext(ctx, dest, query, args...)
}

func (c *Connection) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return c.conn.SelectContext(ctx, dest, query, args...)
}

func (c *Connection) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	return c.conn.QueryxContext(ctx, query, args...)
}

// Rebind translates `?` placeholders into the dialect of the owning driver.
func (c *Connection) Rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(c.driverName), query)
}

// DriverName is the database/sql driver name of the owning pool.
func (c *Connection) DriverName() string { return c.driverName }

// BeginTxx opens a back-end transaction on this connection.
func (c *Connection) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return c.conn.BeginTxx(ctx, opts)
}

// Executer returns tx when one is given, the connection itself otherwise,
// decorated with query monitoring when the owning pool carries a monitor
// service.
func (c *Connection) Executer(tx *sqlx.Tx) SQLExecuter {
	var exec SQLExecuter = c
	if tx != nil {
		exec = tx
	}
	if c.monitorService == nil {
		return exec
	}
	return NewSQLExecuterWithMetrics(exec, c.monitorService)
}

var _ SQLExecuter = (*Connection)(nil)

// ConnectionPool is a process-wide registry mapping database names to pools of
// validated connections. A pool is created on first Acquire for its name using
// the driver factory named in `db.<name>.factory`.
type ConnectionPool struct {
	cfg            *config.Config
	monitorService monitor.MonitorServiceInterface

	mu    sync.Mutex
	pools map[string]*namedPool
}

type namedPool struct {
	cfg     config.DBConfig
	factory DriverFactory
	db      *sqlx.DB
}

func NewConnectionPool(cfg *config.Config) *ConnectionPool {
	return &ConnectionPool{
		cfg:   cfg,
		pools: map[string]*namedPool{},
	}
}

// NewConnectionPoolWithMetrics builds a pool whose connections report query
// durations to the monitoring service.
func NewConnectionPoolWithMetrics(cfg *config.Config, monitorService monitor.MonitorServiceInterface) *ConnectionPool {
	pool := NewConnectionPool(cfg)
	pool.monitorService = monitorService
	return pool
}

// Acquire checks a validated connection out of the pool named dbName. An empty
// dbName resolves to `db.defaultDatabase`.
func (p *ConnectionPool) Acquire(ctx context.Context, dbName string) (*Connection, error) {
	pool, err := p.pool(dbName)
	if err != nil {
		return nil, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, pool.cfg.Pool.AcquireTimeout)
	defer cancel()

	var conn *sqlx.Conn
	err = retry.Do(
		func() error {
			var connErr error
			conn, connErr = pool.db.Connx(acquireCtx)
			if connErr != nil {
				return connErr
			}
			if validateErr := pool.factory.Validate(acquireCtx, conn); validateErr != nil {
				// A stale connection leaves the pool for good.
				if closeErr := conn.Close(); closeErr != nil {
					log.Ctx(ctx).Errorf("closing connection that failed validation: %s", closeErr)
				}
				conn = nil
				return validateErr
			}
			return nil
		},
		retry.Context(acquireCtx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection for %q: %s", ErrResourceExhausted, pool.cfg.Name, err)
	}

	return &Connection{
		DBName:         pool.cfg.Name,
		driverName:     pool.factory.DriverName(),
		conn:           conn,
		monitorService: p.monitorService,
	}, nil
}

// Release returns a connection to its pool. Release failures are logged and
// surfaced, but the connection is gone from the caller's point of view either
// way.
func (p *ConnectionPool) Release(ctx context.Context, conn *Connection) error {
	if conn == nil || conn.conn == nil {
		return nil
	}
	if err := conn.conn.Close(); err != nil {
		log.Ctx(ctx).Errorf("releasing connection to pool %q: %s", conn.DBName, err)
		return fmt.Errorf("releasing connection to pool %q: %w", conn.DBName, err)
	}
	conn.conn = nil
	return nil
}

// DBType reports the configured backend type of a named database,
// `db.<name>.type` (e.g. "postgresql", "sqlite"). Custom data source
// constructors reach it through their Deps to branch on the backend.
func (p *ConnectionPool) DBType(dbName string) (string, error) {
	dbType, err := p.cfg.DBType(dbName)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrConfigMissing, err)
	}
	return dbType, nil
}

// Close shuts down every pool created so far.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, pool := range p.pools {
		if err := pool.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing pool %q: %w", name, err)
		}
		delete(p.pools, name)
	}
	return firstErr
}

// pool returns the named pool, creating it atomically on first use.
func (p *ConnectionPool) pool(dbName string) (*namedPool, error) {
	dbCfg, err := p.cfg.DB(dbName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pool, ok := p.pools[dbCfg.Name]; ok {
		return pool, nil
	}

	factory, err := lookupDriverFactory(dbCfg.Factory)
	if err != nil {
		return nil, err
	}

	sqlxDB, err := factory.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool %q: %w", dbCfg.Name, err)
	}

	pool := &namedPool{cfg: dbCfg, factory: factory, db: sqlxDB}
	p.pools[dbCfg.Name] = pool
	log.Infof("Created connection pool %q (driver=%s, maxOpenConns=%d)",
		dbCfg.Name, factory.DriverName(), dbCfg.Pool.MaxOpenConns)
	return pool, nil
}
