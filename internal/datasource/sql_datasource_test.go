package datasource

import (
	"context"
	"fmt"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbroker/gridbroker/internal/config"
	"github.com/gridbroker/gridbroker/internal/datasource/sqlbuild"
	"github.com/gridbroker/gridbroker/internal/db"
)

func sqlTestDescriptor() *Descriptor {
	return &Descriptor{
		ID:         "countries",
		ServerType: "sql",
		TableName:  "countries",
		DBName:     "main",
		Fields: []FieldDescriptor{
			{Name: "pk", Type: FieldTypeSequence, PrimaryKey: true},
			{Name: "countryName", NativeName: "country_name", Type: FieldTypeText},
			{Name: "continent", Type: FieldTypeText},
		},
	}
}

// newSQLTestPool opens an in-memory SQLite database shared across the pool's
// connections and seeds the countries table.
func newSQLTestPool(t *testing.T, seed bool) *db.ConnectionPool {
	t.Helper()

	v := viper.New()
	v.Set("db.defaultDatabase", "main")
	v.Set("db.main.type", "sqlite")
	v.Set("db.main.factory", "sqlite3")
	v.Set("db.main.connection.dsn", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	pool := db.NewConnectionPool(config.New(v))
	t.Cleanup(func() {
		require.NoError(t, pool.Close())
	})

	ctx := context.Background()
	conn, err := pool.Acquire(ctx, "main")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, pool.Release(ctx, conn))
	}()

	_, err = conn.ExecContext(ctx, `CREATE TABLE countries (
		pk INTEGER PRIMARY KEY AUTOINCREMENT,
		country_name TEXT,
		continent TEXT
	)`)
	require.NoError(t, err)

	if seed {
		_, err = conn.ExecContext(ctx, `INSERT INTO countries (country_name, continent) VALUES
			('Brazil', 'South America'),
			('Portugal', 'Europe'),
			('Spain', 'Europe')`)
		require.NoError(t, err)
	}
	return pool
}

func runSQLOperation(t *testing.T, ds *SQLDataSource, req *DSRequest) (*DSResponse, error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, ds.Init(ctx, req))
	defer ds.FreeResources(ctx)
	require.NoError(t, ds.StartTransaction(ctx))

	resp, err := ds.Execute(ctx, req)
	if err != nil {
		require.NoError(t, ds.Rollback(ctx))
		return nil, err
	}
	require.NoError(t, ds.Commit(ctx))
	return resp, nil
}

func Test_SQLDataSource_fetch(t *testing.T) {
	pool := newSQLTestPool(t, true)
	ds := NewSQLDataSource(sqlTestDescriptor(), pool, false)

	t.Run("unfiltered", func(t *testing.T) {
		resp, err := runSQLOperation(t, ds, &DSRequest{DataSource: "countries", OperationType: OpFetch})
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, resp.Status)
		assert.Equal(t, int64(3), resp.TotalRows)
	})

	t.Run("simple criteria", func(t *testing.T) {
		resp, err := runSQLOperation(t, ds, &DSRequest{
			DataSource:    "countries",
			OperationType: OpFetch,
			Criteria:      map[string]interface{}{"continent": "Europe"},
			SortBy:        []string{"countryName"},
		})
		require.NoError(t, err)
		rows, ok := resp.Data.([]Record)
		require.True(t, ok)
		require.Len(t, rows, 2)
		assert.Equal(t, "Portugal", rows[0]["countryName"])
		assert.Equal(t, "Spain", rows[1]["countryName"])
	})

	t.Run("advanced criteria", func(t *testing.T) {
		advanced, err := sqlTestAdvancedCriterion()
		require.NoError(t, err)
		resp, err := runSQLOperation(t, ds, &DSRequest{
			DataSource:    "countries",
			OperationType: OpFetch,
			Advanced:      advanced,
		})
		require.NoError(t, err)
		rows, ok := resp.Data.([]Record)
		require.True(t, ok)
		require.Len(t, rows, 1)
		assert.Equal(t, "Brazil", rows[0]["countryName"])
	})

	t.Run("row window", func(t *testing.T) {
		start, end := int64(1), int64(2)
		resp, err := runSQLOperation(t, ds, &DSRequest{
			DataSource:    "countries",
			OperationType: OpFetch,
			SortBy:        []string{"pk"},
			StartRow:      &start,
			EndRow:        &end,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), resp.StartRow)
		assert.Equal(t, int64(2), resp.EndRow)
		rows, ok := resp.Data.([]Record)
		require.True(t, ok)
		require.Len(t, rows, 1)
		assert.Equal(t, "Portugal", rows[0]["countryName"])
	})

	t.Run("start row without end row skips the leading rows", func(t *testing.T) {
		start := int64(1)
		resp, err := runSQLOperation(t, ds, &DSRequest{
			DataSource:    "countries",
			OperationType: OpFetch,
			SortBy:        []string{"pk"},
			StartRow:      &start,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), resp.StartRow)
		assert.Equal(t, int64(3), resp.EndRow)
		rows, ok := resp.Data.([]Record)
		require.True(t, ok)
		require.Len(t, rows, 2)
		assert.Equal(t, "Portugal", rows[0]["countryName"])
		assert.Equal(t, "Spain", rows[1]["countryName"])
	})
}

// sqlTestAdvancedCriterion builds `not(continent iContains "Europe")`.
func sqlTestAdvancedCriterion() (*sqlbuild.Criterion, error) {
	return sqlbuild.ParseCriterion(map[string]interface{}{
		"_constructor": "AdvancedCriteria",
		"operator":     "and",
		"criteria": []interface{}{
			map[string]interface{}{
				"operator": "not",
				"criteria": []interface{}{
					map[string]interface{}{"operator": "iContains", "fieldName": "continent", "value": "Europe"},
				},
			},
		},
	})
}

func Test_SQLDataSource_add(t *testing.T) {
	pool := newSQLTestPool(t, false)
	ds := NewSQLDataSource(sqlTestDescriptor(), pool, false)

	resp, err := runSQLOperation(t, ds, &DSRequest{
		DataSource:    "countries",
		OperationType: OpAdd,
		Values:        map[string]interface{}{"countryName": "Chile", "continent": "South America", "bogus": "dropped"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, int64(1), resp.AffectedRows)
	assert.True(t, resp.InvalidateCache)

	// The response re-reads the row, including the generated key.
	rows, ok := resp.Data.([]Record)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["pk"])
	assert.Equal(t, "Chile", rows[0]["countryName"])
	_, hasBogus := rows[0]["bogus"]
	assert.False(t, hasBogus)
}

func Test_SQLDataSource_update(t *testing.T) {
	pool := newSQLTestPool(t, true)
	ds := NewSQLDataSource(sqlTestDescriptor(), pool, false)

	t.Run("updates and re-reads the row", func(t *testing.T) {
		resp, err := runSQLOperation(t, ds, &DSRequest{
			DataSource:    "countries",
			OperationType: OpUpdate,
			Criteria:      map[string]interface{}{"pk": int64(1)},
			Values:        map[string]interface{}{"countryName": "Brasil"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), resp.AffectedRows)
		rows, ok := resp.Data.([]Record)
		require.True(t, ok)
		require.Len(t, rows, 1)
		assert.Equal(t, "Brasil", rows[0]["countryName"])
		assert.Equal(t, "South America", rows[0]["continent"])
	})

	t.Run("missing primary key", func(t *testing.T) {
		_, err := runSQLOperation(t, ds, &DSRequest{
			DataSource:    "countries",
			OperationType: OpUpdate,
			Criteria:      map[string]interface{}{"countryName": "Brasil"},
			Values:        map[string]interface{}{"continent": "x"},
		})
		assert.ErrorIs(t, err, ErrMissingPrimaryKey)
	})

	t.Run("row not found", func(t *testing.T) {
		_, err := runSQLOperation(t, ds, &DSRequest{
			DataSource:    "countries",
			OperationType: OpUpdate,
			Criteria:      map[string]interface{}{"pk": int64(99)},
			Values:        map[string]interface{}{"continent": "x"},
		})
		assert.ErrorIs(t, err, ErrRowNotFound)
	})
}

func Test_SQLDataSource_remove(t *testing.T) {
	pool := newSQLTestPool(t, true)
	ds := NewSQLDataSource(sqlTestDescriptor(), pool, false)

	resp, err := runSQLOperation(t, ds, &DSRequest{
		DataSource:    "countries",
		OperationType: OpRemove,
		Criteria:      map[string]interface{}{"pk": int64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.AffectedRows)
	rows, ok := resp.Data.([]Record)
	require.True(t, ok)
	assert.Equal(t, []Record{{"pk": int64(2)}}, rows)

	fetched, err := runSQLOperation(t, ds, &DSRequest{DataSource: "countries", OperationType: OpFetch})
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetched.TotalRows)

	_, err = runSQLOperation(t, ds, &DSRequest{
		DataSource:    "countries",
		OperationType: OpRemove,
		Criteria:      map[string]interface{}{"pk": int64(2)},
	})
	assert.ErrorIs(t, err, ErrRowNotFound)
}
