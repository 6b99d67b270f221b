package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbroker/gridbroker/internal/config"
)

func sqliteTestPool(t *testing.T) *ConnectionPool {
	t.Helper()
	v := viper.New()
	v.Set("db.defaultDatabase", "main")
	v.Set("db.main.type", "sqlite")
	v.Set("db.main.factory", "sqlite3")
	v.Set("db.main.connection.dsn", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	pool := NewConnectionPool(config.New(v))
	t.Cleanup(func() {
		require.NoError(t, pool.Close())
	})
	return pool
}

func Test_ConnectionPool_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	pool := sqliteTestPool(t)

	conn, err := pool.Acquire(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "main", conn.DBName)
	assert.Equal(t, "sqlite3", conn.DriverName())

	_, err = conn.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, conn.Rebind("INSERT INTO kv (k, v) VALUES (?, ?)"), "a", "1")
	require.NoError(t, err)

	var got string
	require.NoError(t, conn.GetContext(ctx, &got, conn.Rebind("SELECT v FROM kv WHERE k = ?"), "a"))
	assert.Equal(t, "1", got)

	require.NoError(t, pool.Release(ctx, conn))

	// Releasing twice, or releasing nil, is a no-op.
	require.NoError(t, pool.Release(ctx, conn))
	require.NoError(t, pool.Release(ctx, nil))

	// An empty name resolves the default database to the same pool.
	again, err := pool.Acquire(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "main", again.DBName)
	require.NoError(t, pool.Release(ctx, again))
}

func Test_ConnectionPool_Acquire_configErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown database name", func(t *testing.T) {
		pool := sqliteTestPool(t)
		_, err := pool.Acquire(ctx, "ghost")
		assert.ErrorIs(t, err, ErrConfigMissing)
	})

	t.Run("unregistered factory", func(t *testing.T) {
		v := viper.New()
		v.Set("db.weird.factory", "oracle")
		pool := NewConnectionPool(config.New(v))
		_, err := pool.Acquire(ctx, "weird")
		assert.ErrorIs(t, err, ErrUnknownDriver)
	})
}

func Test_ConnectionPool_DBType(t *testing.T) {
	pool := sqliteTestPool(t)

	dbType, err := pool.DBType("main")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dbType)

	_, err = pool.DBType("ghost")
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func Test_Connection_Rebind_postgresPlaceholders(t *testing.T) {
	conn := &Connection{driverName: "postgres"}
	assert.Equal(t, "SELECT v FROM kv WHERE k = $1 AND v = $2", conn.Rebind("SELECT v FROM kv WHERE k = ? AND v = ?"))
}

func Test_RegisterDriverFactory_duplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		RegisterDriverFactory("postgres", &PostgresDriverFactory{})
	})
}

// mockDriverFactory hands out connections from a sqlmock-backed pool so that
// acquire validation can be scripted.
type mockDriverFactory struct {
	db          *sqlx.DB
	validateErr error
}

func (f *mockDriverFactory) Open(cfg config.DBConfig) (*sqlx.DB, error) { return f.db, nil }

func (f *mockDriverFactory) Validate(ctx context.Context, conn *sqlx.Conn) error {
	return f.validateErr
}

func (f *mockDriverFactory) DriverName() string { return "sqlmock" }

func newMockPool(t *testing.T, factoryName string, validateErr error) (*ConnectionPool, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	RegisterDriverFactory(factoryName, &mockDriverFactory{
		db:          sqlx.NewDb(mockDB, "sqlmock"),
		validateErr: validateErr,
	})

	v := viper.New()
	v.Set("db.mocked.type", "postgresql")
	v.Set("db.mocked.factory", factoryName)
	pool := NewConnectionPool(config.New(v))
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, pool.Close())
	})
	return pool, mock
}

func Test_ConnectionPool_Acquire_validConnection(t *testing.T) {
	ctx := context.Background()
	pool, mock := newMockPool(t, "sqlmock-valid", nil)

	mock.ExpectQuery("SELECT k FROM kv").WillReturnRows(sqlmock.NewRows([]string{"k"}).AddRow("a"))

	conn, err := pool.Acquire(ctx, "mocked")
	require.NoError(t, err)

	var got string
	require.NoError(t, conn.GetContext(ctx, &got, "SELECT k FROM kv"))
	assert.Equal(t, "a", got)

	require.NoError(t, pool.Release(ctx, conn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_ConnectionPool_Acquire_staleConnectionsAreDiscarded(t *testing.T) {
	ctx := context.Background()
	pool, _ := newMockPool(t, "sqlmock-stale", errors.New("connection went away"))

	// Every validation probe fails, so the retry budget runs out.
	_, err := pool.Acquire(ctx, "mocked")
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.ErrorContains(t, err, "connection went away")
}
