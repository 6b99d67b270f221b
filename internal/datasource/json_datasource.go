package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stellar/go-stellar-sdk/support/log"
)

// fileLocks serialises access per data file across concurrently running
// operations. The map holds one entry per distinct data file for the life of
// the process, bounded by the number of descriptors on disk.
var (
	fileLocksMu sync.Mutex
	fileLocks   = map[string]*sync.Mutex{}
)

func lockForFile(path string) *sync.Mutex {
	fileLocksMu.Lock()
	defer fileLocksMu.Unlock()
	if l, ok := fileLocks[path]; ok {
		return l
	}
	l := &sync.Mutex{}
	fileLocks[path] = l
	return l
}

// JSONDataSource serves a descriptor from a JSON file under the data source
// path. Fetch returns the whole file; mutations stage in memory during the
// operation and rewrite the file on commit. Filtering, sorting and paging are
// not applied.
type JSONDataSource struct {
	*BaseDataSource

	basePath string

	lock   *sync.Mutex
	rows   []Record
	dirty  bool
}

// NewJSONDataSource constructs a JSON-file data source rooted at the
// configured data source path.
func NewJSONDataSource(desc *Descriptor, basePath string) *JSONDataSource {
	j := &JSONDataSource{
		BaseDataSource: NewBaseDataSource(desc),
		basePath:       basePath,
	}
	j.BindExecutor(j)
	return j
}

func (j *JSONDataSource) filePath() string {
	fileName := j.desc.FileName
	if fileName == "" {
		fileName = j.desc.ID + ".data.json"
	}
	return filepath.Join(j.basePath, fileName)
}

// StartTransaction takes the file lock and loads the current rows. The lock
// is held only while this operation executes and released on commit or
// rollback, so several operations of one batch can target the same file in
// turn without deadlocking each other.
func (j *JSONDataSource) StartTransaction(ctx context.Context) error {
	path := j.filePath()
	j.lock = lockForFile(path)
	j.lock.Lock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file means an empty record set.
			j.rows = []Record{}
			return nil
		}
		j.unlock()
		return fmt.Errorf("reading data file of data source %q: %w", j.desc.ID, err)
	}

	var rows []Record
	if err := json.Unmarshal(data, &rows); err != nil {
		j.unlock()
		return fmt.Errorf("decoding data file of data source %q: %w", j.desc.ID, err)
	}
	j.rows = rows
	return nil
}

func (j *JSONDataSource) ExecuteFetch(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	rows := j.desc.ToRecords(j.rows)
	return &DSResponse{
		Status:    StatusSuccess,
		Data:      rows,
		StartRow:  0,
		EndRow:    int64(len(rows)),
		TotalRows: int64(len(rows)),
	}, nil
}

func (j *JSONDataSource) ExecuteAdd(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	record := j.desc.ToRecord(req.Values)

	for _, f := range j.desc.Fields {
		if f.IsSequence() && record[f.Name] == nil {
			record[f.Name] = j.nextSequenceValue(f.Name)
		}
	}

	if _, err := j.desc.PKValues(record); err != nil {
		return nil, err
	}

	j.rows = append(j.rows, record)
	j.dirty = true
	return &DSResponse{
		Status:          StatusSuccess,
		Data:            []Record{record},
		AffectedRows:    1,
		InvalidateCache: true,
	}, nil
}

func (j *JSONDataSource) ExecuteUpdate(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	pk, err := j.desc.PKValues(req.Criteria)
	if err != nil {
		return nil, err
	}

	index := j.findByPK(pk)
	if index < 0 {
		return nil, fmt.Errorf("%w: update on data source %q matched no row", ErrRowNotFound, j.desc.ID)
	}

	row := j.rows[index]
	for _, f := range j.desc.NonPKFields() {
		if v, ok := req.Values[f.Name]; ok {
			row[f.Name] = v
		}
	}
	j.rows[index] = row
	j.dirty = true

	return &DSResponse{
		Status:          StatusSuccess,
		Data:            []Record{j.desc.ToRecord(row)},
		AffectedRows:    1,
		InvalidateCache: true,
	}, nil
}

func (j *JSONDataSource) ExecuteRemove(ctx context.Context, req *DSRequest) (*DSResponse, error) {
	pk, err := j.desc.PKValues(req.Criteria)
	if err != nil {
		return nil, err
	}

	index := j.findByPK(pk)
	if index < 0 {
		return nil, fmt.Errorf("%w: remove on data source %q matched no row", ErrRowNotFound, j.desc.ID)
	}

	j.rows = append(j.rows[:index], j.rows[index+1:]...)
	j.dirty = true

	return &DSResponse{
		Status:          StatusSuccess,
		Data:            []Record{pk},
		AffectedRows:    1,
		InvalidateCache: true,
	}, nil
}

// Commit rewrites the data file when the operation staged a change, then
// releases the file lock.
func (j *JSONDataSource) Commit(ctx context.Context) error {
	defer j.unlock()
	if !j.dirty {
		return nil
	}
	data, err := json.MarshalIndent(j.rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding data file of data source %q: %w", j.desc.ID, err)
	}
	if err := os.WriteFile(j.filePath(), data, 0o644); err != nil {
		return fmt.Errorf("writing data file of data source %q: %w", j.desc.ID, err)
	}
	j.dirty = false
	return nil
}

// Rollback discards staged changes and releases the file lock; the file is
// reloaded on next use.
func (j *JSONDataSource) Rollback(ctx context.Context) error {
	j.rows = nil
	j.dirty = false
	j.unlock()
	return nil
}

func (j *JSONDataSource) FreeResources(ctx context.Context) {
	if j.dirty {
		log.Ctx(ctx).Warnf("data source %q freed with uncommitted changes, discarding", j.desc.ID)
	}
	j.rows = nil
	j.dirty = false
	j.unlock()
}

func (j *JSONDataSource) unlock() {
	if j.lock != nil {
		j.lock.Unlock()
		j.lock = nil
	}
}

// findByPK locates the row whose primary-key projection equals pk.
func (j *JSONDataSource) findByPK(pk Record) int {
	for i, row := range j.rows {
		rowPK, err := j.desc.PKValues(row)
		if err != nil {
			continue
		}
		if recordsEqual(rowPK, pk) {
			return i
		}
	}
	return -1
}

func (j *JSONDataSource) nextSequenceValue(field string) float64 {
	max := float64(0)
	for _, row := range j.rows {
		if n, ok := numericValue(row[field]); ok && n > max {
			max = n
		}
	}
	return max + 1
}

func recordsEqual(a, b Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		if !scalarEqual(av, b[k]) {
			return false
		}
	}
	return true
}

// scalarEqual compares scalar values with numeric coercion, since JSON
// decoding and request parsing may deliver the same key as different numeric
// types.
func scalarEqual(a, b interface{}) bool {
	if an, ok := numericValue(a); ok {
		if bn, ok := numericValue(b); ok {
			return an == bn
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

var _ DataSource = (*JSONDataSource)(nil)
