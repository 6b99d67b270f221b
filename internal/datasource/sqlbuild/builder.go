package sqlbuild

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/stellar/go-stellar-sdk/support/log"
)

// SelectOptions describes one SELECT to be rendered. Columns are emitted
// verbatim, so callers pass `column AS fieldName` projections.
type SelectOptions struct {
	Columns []string
	Table   string
	Where   Fragment
	OrderBy []string
	// StartRow/EndRow bound the result window. EndRow is exclusive; a nil
	// EndRow leaves the limit unbounded while the offset still applies.
	StartRow *int64
	EndRow   *int64
}

// BuildSelect renders a SELECT with `?` placeholders. Callers rebind for the
// target dialect.
func BuildSelect(opts SelectOptions) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(opts.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(opts.Table)

	var args []interface{}
	if !opts.Where.Empty() {
		b.WriteString(" WHERE (")
		b.WriteString(opts.Where.SQL)
		b.WriteString(")")
		args = append(args, opts.Where.Args...)
	}

	if len(opts.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(opts.OrderBy, ", "))
	}

	start := int64(0)
	if opts.StartRow != nil && *opts.StartRow > 0 {
		start = *opts.StartRow
	}
	if opts.EndRow != nil {
		limit := *opts.EndRow - start
		if limit < 0 {
			limit = 0
		}
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, start)
	} else if start > 0 {
		// The offset applies even without an end row. SQLite rejects OFFSET
		// without LIMIT, so the open window carries an unbounded limit.
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", int64(math.MaxInt64), start)
	}

	return b.String(), args
}

// ResolveOrderBy maps a sortBy list (`-` prefix for descending) onto ORDER BY
// terms, dropping fields the resolver does not know.
func ResolveOrderBy(ctx context.Context, sortBy []string, resolver ColumnResolver) []string {
	var terms []string
	for _, field := range sortBy {
		direction := " ASC"
		name := field
		if strings.HasPrefix(field, "-") {
			direction = " DESC"
			name = field[1:]
		}
		col, ok := resolver.SQLColumn(name)
		if !ok {
			log.Ctx(ctx).Warnf("sortBy references unknown field %q, skipping", name)
			continue
		}
		terms = append(terms, col+direction)
	}
	return terms
}

// BuildInsert renders an INSERT over the given column/value pairs. A non-empty
// returning column appends a RETURNING clause for dialects that support it.
func BuildInsert(table string, columns []string, values []interface{}, returning string) (string, []interface{}) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders)
	if returning != "" {
		query += " RETURNING " + returning
	}
	return query, values
}

// BuildUpdate renders an UPDATE of the given column/value pairs constrained by
// the where fragment.
func BuildUpdate(table string, columns []string, values []interface{}, where Fragment) (string, []interface{}) {
	sets := make([]string, 0, len(columns))
	for _, col := range columns {
		sets = append(sets, col+" = ?")
	}
	query := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))

	args := append([]interface{}{}, values...)
	if !where.Empty() {
		query += " WHERE (" + where.SQL + ")"
		args = append(args, where.Args...)
	}
	return query, args
}

// BuildDelete renders a DELETE constrained by the where fragment.
func BuildDelete(table string, where Fragment) (string, []interface{}) {
	query := "DELETE FROM " + table
	var args []interface{}
	if !where.Empty() {
		query += " WHERE (" + where.SQL + ")"
		args = append(args, where.Args...)
	}
	return query, args
}

// EqualityWhere renders `col = ?` conjunctions over the given column/value
// pairs, used for primary-key addressing.
func EqualityWhere(columns []string, values []interface{}) Fragment {
	if len(columns) == 0 {
		return Fragment{}
	}
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		parts = append(parts, col+" = ?")
	}
	return Fragment{SQL: strings.Join(parts, " AND "), Args: values}
}
