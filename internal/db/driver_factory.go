package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gridbroker/gridbroker/internal/config"
)

// DriverFactory produces and validates back-end connections for one driver.
// Factories are registered by name at program start and referenced from
// configuration via `db.<name>.factory`.
type DriverFactory interface {
	// Open creates the underlying sql pool for the given database config.
	Open(cfg config.DBConfig) (*sqlx.DB, error)
	// Validate probes a borrowed connection. A failing probe discards the
	// connection instead of handing it to the caller.
	Validate(ctx context.Context, conn *sqlx.Conn) error
	// DriverName is the database/sql driver name, used for placeholder
	// rebinding.
	DriverName() string
}

var (
	factoriesMu sync.RWMutex
	factories   = map[string]DriverFactory{}
)

// RegisterDriverFactory makes a factory available under the given name.
// Registering the same name twice panics, mirroring database/sql.Register.
func RegisterDriverFactory(name string, factory DriverFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("driver factory %q registered twice", name))
	}
	factories[name] = factory
}

func lookupDriverFactory(name string) (DriverFactory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return factory, nil
}

func init() {
	RegisterDriverFactory("postgres", &PostgresDriverFactory{})
	RegisterDriverFactory("sqlite3", &SQLiteDriverFactory{})
}

// PostgresDriverFactory opens lib/pq backed pools.
type PostgresDriverFactory struct{}

func (f *PostgresDriverFactory) Open(cfg config.DBConfig) (*sqlx.DB, error) {
	sqlxDB, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool for %q: %w", cfg.Name, err)
	}
	applyPoolConfig(sqlxDB, cfg.Pool)
	return sqlxDB, nil
}

func (f *PostgresDriverFactory) Validate(ctx context.Context, conn *sqlx.Conn) error {
	var one int
	if err := conn.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("validating postgres connection: %w", err)
	}
	return nil
}

func (f *PostgresDriverFactory) DriverName() string { return "postgres" }

// SQLiteDriverFactory opens mattn/go-sqlite3 backed pools, used for embedded
// and development databases.
type SQLiteDriverFactory struct{}

func (f *SQLiteDriverFactory) Open(cfg config.DBConfig) (*sqlx.DB, error) {
	sqlxDB, err := sqlx.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite pool for %q: %w", cfg.Name, err)
	}
	applyPoolConfig(sqlxDB, cfg.Pool)
	return sqlxDB, nil
}

func (f *SQLiteDriverFactory) Validate(ctx context.Context, conn *sqlx.Conn) error {
	var one int
	if err := conn.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("validating sqlite connection: %w", err)
	}
	return nil
}

func (f *SQLiteDriverFactory) DriverName() string { return "sqlite3" }

func applyPoolConfig(sqlxDB *sqlx.DB, cfg config.PoolConfig) {
	sqlxDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.MaxIdleConns)
}
