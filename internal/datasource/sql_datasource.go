package datasource

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/stellar/go-stellar-sdk/support/log"

	"github.com/gridbroker/gridbroker/internal/datasource/sqlbuild"
	"github.com/gridbroker/gridbroker/internal/db"
)

// SQLDataSource serves a descriptor from a relational table. It acquires one
// connection per operation from the shared connection pool and runs the
// operation inside a back-end transaction.
type SQLDataSource struct {
	*BaseDataSource

	pool   *db.ConnectionPool
	strict bool

	conn *db.Connection
	tx   *sqlx.Tx
}

// NewSQLDataSource constructs a SQL data source bound to the shared
// connection pool. strictSQLFiltering selects the criteria compiler's null
// semantics.
func NewSQLDataSource(desc *Descriptor, pool *db.ConnectionPool, strictSQLFiltering bool) *SQLDataSource {
	s := &SQLDataSource{
		BaseDataSource: NewBaseDataSource(desc),
		pool:           pool,
		strict:         strictSQLFiltering,
	}
	s.BindExecutor(s)
	return s
}

func (s *SQLDataSource) Init(ctx context.Context, req *DSRequest) error {
	conn, err := s.pool.Acquire(ctx, s.desc.DBName)
	if err != nil {
		return fmt.Errorf("acquiring connection for data source %q: %w", s.desc.ID, err)
	}
	s.conn = conn
	return nil
}

func (s *SQLDataSource) StartTransaction(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("data source %q has no connection", s.desc.ID)
	}
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction on data source %q: %w", s.desc.ID, err)
	}
	s.tx = tx
	return nil
}

func (s *SQLDataSource) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("committing transaction on data source %q: %w", s.desc.ID, err)
	}
	return nil
}

func (s *SQLDataSource) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("rolling back transaction on data source %q: %w", s.desc.ID, err)
	}
	return nil
}

func (s *SQLDataSource) FreeResources(ctx context.Context) {
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil {
			log.Ctx(ctx).Errorf("rolling back leftover transaction on data source %q: %s", s.desc.ID, err)
		}
		s.tx = nil
	}
	if s.conn != nil {
		if err := s.pool.Release(ctx, s.conn); err != nil {
			log.Ctx(ctx).Errorf("releasing connection of data source %q: %s", s.desc.ID, err)
		}
		s.conn = nil
	}
}

// executer is the transaction when one is open, the bare connection otherwise.
func (s *SQLDataSource) executer() db.SQLExecuter {
	return s.conn.Executer(s.tx)
}

func (s *SQLDataSource) ExecuteFetch(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	where := s.compileCriteria(ctx, req)

	query, args := sqlbuild.BuildSelect(sqlbuild.SelectOptions{
		Columns:  s.desc.SQLColumns(),
		Table:    s.desc.SQLTable(),
		Where:    where,
		OrderBy:  sqlbuild.ResolveOrderBy(ctx, req.SortBy, s.desc),
		StartRow: req.StartRow,
		EndRow:   req.EndRow,
	})

	rows, err := s.queryRecords(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("fetching from data source %q: %w", s.desc.ID, err)
	}

	startRow := int64(0)
	if req.StartRow != nil {
		startRow = *req.StartRow
	}
	return &DSResponse{
		Status:    StatusSuccess,
		Data:      rows,
		StartRow:  startRow,
		EndRow:    startRow + int64(len(rows)),
		TotalRows: int64(len(rows)),
	}, nil
}

func (s *SQLDataSource) ExecuteAdd(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	values := Record{}
	for k, v := range req.Values {
		if s.desc.Field(k) != nil {
			values[k] = v
		}
	}

	var columns []string
	var args []interface{}
	var sequenceField *FieldDescriptor
	for _, f := range s.desc.Fields {
		if f.IsSequence() {
			if _, provided := values[f.Name]; !provided {
				f := f
				sequenceField = &f
				continue
			}
		}
		if v, ok := values[f.Name]; ok {
			columns = append(columns, f.Column())
			args = append(args, v)
		}
	}

	exec := s.executer()
	if sequenceField != nil && s.conn.DriverName() == "postgres" {
		query, insertArgs := sqlbuild.BuildInsert(s.desc.SQLTable(), columns, args, sequenceField.Column())
		var generated interface{}
		if err := exec.GetContext(ctx, &generated, exec.Rebind(query), insertArgs...); err != nil {
			return nil, fmt.Errorf("inserting into data source %q: %w", s.desc.ID, err)
		}
		values[sequenceField.Name] = generated
	} else {
		query, insertArgs := sqlbuild.BuildInsert(s.desc.SQLTable(), columns, args, "")
		result, err := exec.ExecContext(ctx, exec.Rebind(query), insertArgs...)
		if err != nil {
			return nil, fmt.Errorf("inserting into data source %q: %w", s.desc.ID, err)
		}
		if sequenceField != nil {
			generated, idErr := result.LastInsertId()
			if idErr != nil {
				return nil, fmt.Errorf("reading generated key for data source %q: %w", s.desc.ID, idErr)
			}
			values[sequenceField.Name] = generated
		}
	}

	pk, err := s.desc.PKValues(values)
	if err != nil {
		return nil, err
	}

	rows, err := s.fetchByPK(ctx, pk)
	if err != nil {
		return nil, fmt.Errorf("re-reading inserted row of data source %q: %w", s.desc.ID, err)
	}
	return &DSResponse{
		Status:          StatusSuccess,
		Data:            rows,
		AffectedRows:    1,
		InvalidateCache: true,
	}, nil
}

func (s *SQLDataSource) ExecuteUpdate(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	pk, err := s.desc.PKValues(req.Criteria)
	if err != nil {
		return nil, err
	}

	var setColumns []string
	var setArgs []interface{}
	for _, f := range s.desc.NonPKFields() {
		if v, ok := req.Values[f.Name]; ok {
			setColumns = append(setColumns, f.Column())
			setArgs = append(setArgs, v)
		}
	}

	affected := int64(1)
	if len(setColumns) > 0 {
		query, args := sqlbuild.BuildUpdate(s.desc.SQLTable(), setColumns, setArgs, s.pkWhere(pk))
		exec := s.executer()
		result, execErr := exec.ExecContext(ctx, exec.Rebind(query), args...)
		if execErr != nil {
			return nil, fmt.Errorf("updating data source %q: %w", s.desc.ID, execErr)
		}
		affected, execErr = result.RowsAffected()
		if execErr != nil {
			return nil, fmt.Errorf("reading affected rows of data source %q: %w", s.desc.ID, execErr)
		}
		if affected < 1 {
			return nil, fmt.Errorf("%w: update on data source %q matched no row", ErrRowNotFound, s.desc.ID)
		}
	}

	rows, err := s.fetchByPK(ctx, pk)
	if err != nil {
		return nil, fmt.Errorf("re-reading updated row of data source %q: %w", s.desc.ID, err)
	}
	return &DSResponse{
		Status:          StatusSuccess,
		Data:            rows,
		AffectedRows:    affected,
		InvalidateCache: true,
	}, nil
}

func (s *SQLDataSource) ExecuteRemove(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	pk, err := s.desc.PKValues(req.Criteria)
	if err != nil {
		return nil, err
	}

	query, args := sqlbuild.BuildDelete(s.desc.SQLTable(), s.pkWhere(pk))
	exec := s.executer()
	result, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("removing from data source %q: %w", s.desc.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reading affected rows of data source %q: %w", s.desc.ID, err)
	}
	if affected < 1 {
		return nil, fmt.Errorf("%w: remove on data source %q matched no row", ErrRowNotFound, s.desc.ID)
	}

	return &DSResponse{
		Status:          StatusSuccess,
		Data:            []Record{pk},
		AffectedRows:    affected,
		InvalidateCache: true,
	}, nil
}

func (s *SQLDataSource) compileCriteria(ctx context.Context, req *DSRequest) sqlbuild.Fragment {
	if req.Advanced != nil {
		compiler := &sqlbuild.Compiler{Resolver: s.desc, Strict: s.strict}
		return compiler.Compile(ctx, req.Advanced)
	}
	return sqlbuild.CompileSimpleCriteria(ctx, req.Criteria, req.EffectiveTextMatchStyle(), s.desc)
}

func (s *SQLDataSource) pkWhere(pk Record) sqlbuild.Fragment {
	var columns []string
	var values []interface{}
	for _, f := range s.desc.PKFields() {
		if v, ok := pk[f.Name]; ok {
			columns = append(columns, f.Column())
			values = append(values, v)
		}
	}
	return sqlbuild.EqualityWhere(columns, values)
}

func (s *SQLDataSource) fetchByPK(ctx context.Context, pk Record) ([]Record, error) {
	query, args := sqlbuild.BuildSelect(sqlbuild.SelectOptions{
		Columns: s.desc.SQLColumns(),
		Table:   s.desc.SQLTable(),
		Where:   s.pkWhere(pk),
	})
	return s.queryRecords(ctx, query, args)
}

func (s *SQLDataSource) queryRecords(ctx context.Context, query string, args []interface{}) ([]Record, error) {
	exec := s.executer()
	rows, err := exec.QueryxContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Ctx(ctx).Errorf("closing rows of data source %q: %s", s.desc.ID, closeErr)
		}
	}()

	records := []Record{}
	for rows.Next() {
		row := Record{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		records = append(records, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// normalizeRow converts driver byte slices into strings so records serialise
// as text rather than base64.
func normalizeRow(row Record) Record {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}

var _ DataSource = (*SQLDataSource)(nil)
