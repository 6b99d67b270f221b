package sqlbuild

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stellar/go-stellar-sdk/support/log"
)

// Fragment is a parameterised piece of SQL. User values are always carried in
// Args; only identifiers and SQL keywords appear in SQL.
type Fragment struct {
	SQL  string
	Args []interface{}
}

func (f Fragment) Empty() bool { return f.SQL == "" }

const (
	alwaysTrue  = "1=1"
	alwaysFalse = "1=2"

	// likeEscape is the escape character used by every LIKE-style predicate.
	likeEscape = "~"
)

// ColumnResolver maps a logical field name to its SQL column. Satisfied by
// the data source descriptor.
type ColumnResolver interface {
	SQLColumn(fieldName string) (string, bool)
}

// Compiler translates an AdvancedCriteria tree into a parameterised SQL
// fragment that can be wrapped as `WHERE (...)`.
//
// In strict mode predicates follow SQL's three-valued logic untouched. In the
// default lenient mode null sorts below every value and predicates gain
// null-inclusion/exclusion clauses so negations behave set-theoretically.
type Compiler struct {
	Resolver ColumnResolver
	Strict   bool
}

func (c *Compiler) Compile(ctx context.Context, crit *Criterion) Fragment {
	if crit == nil {
		return Fragment{}
	}
	if crit.Operator.IsLogical() {
		return c.compileLogical(ctx, crit)
	}
	return c.compileField(ctx, crit)
}

func (c *Compiler) compileLogical(ctx context.Context, crit *Criterion) Fragment {
	if crit.badChildren {
		return Fragment{SQL: alwaysFalse}
	}
	if len(crit.Criteria) == 0 {
		log.Ctx(ctx).Warnf("logical criterion %q without child criteria, omitting", crit.Operator)
		return Fragment{}
	}

	var parts []string
	var args []interface{}
	for _, child := range crit.Criteria {
		frag := c.Compile(ctx, child)
		if frag.Empty() {
			continue
		}
		parts = append(parts, "("+frag.SQL+")")
		args = append(args, frag.Args...)
	}
	if len(parts) == 0 {
		return Fragment{}
	}

	switch crit.Operator {
	case OpAnd:
		return Fragment{SQL: strings.Join(parts, " AND "), Args: args}
	case OpOr:
		return Fragment{SQL: strings.Join(parts, " OR "), Args: args}
	case OpNot:
		// A not with multiple children is a negated disjunction.
		return Fragment{SQL: "NOT (" + strings.Join(parts, " OR ") + ")", Args: args}
	}
	return Fragment{}
}

func (c *Compiler) compileField(ctx context.Context, crit *Criterion) Fragment {
	col, ok := c.column(ctx, crit.FieldName)
	if !ok {
		return Fragment{SQL: alwaysTrue}
	}

	switch crit.Operator {
	case OpEquals:
		return c.equals(col, crit.Value)
	case OpNotEqual:
		return c.notEqual(col, crit.Value)
	case OpIEquals:
		return c.iEquals(col, crit.Value)
	case OpINotEqual:
		return c.iNotEqual(col, crit.Value)

	case OpGreaterThan:
		return c.relational(col, ">", crit.Value, false)
	case OpLessThan:
		return c.relational(col, "<", crit.Value, false)
	case OpGreaterOrEqual:
		return c.relational(col, ">=", crit.Value, false)
	case OpLessOrEqual:
		return c.relational(col, "<=", crit.Value, false)

	case OpBetween:
		return c.between(col, crit.Start, crit.End, false, false)
	case OpBetweenInclusive:
		return c.between(col, crit.Start, crit.End, true, false)
	case OpIBetween:
		return c.between(col, crit.Start, crit.End, false, true)
	case OpIBetweenInclusive:
		return c.between(col, crit.Start, crit.End, true, true)

	case OpContains, OpStartsWith, OpEndsWith,
		OpIContains, OpIStartsWith, OpIEndsWith,
		OpNotContains, OpNotStartsWith, OpNotEndsWith,
		OpINotContains, OpINotStartsWith, OpINotEndsWith:
		return c.substring(ctx, col, crit)

	case OpMatchesPattern, OpIMatchesPattern,
		OpContainsPattern, OpStartsWithPattern, OpEndsWithPattern,
		OpIContainsPattern, OpIStartsWithPattern, OpIEndsWithPattern,
		OpNotContainsPattern, OpNotStartsWithPattern, OpNotEndsWithPattern,
		OpINotContainsPattern, OpINotStartsWithPattern, OpINotEndsWithPattern:
		return c.pattern(ctx, col, crit)

	case OpIsNull:
		return Fragment{SQL: col + " IS NULL"}
	case OpNotNull:
		return Fragment{SQL: col + " IS NOT NULL"}
	case OpIsBlank:
		return Fragment{SQL: col + " IS NULL OR " + col + " = ''"}
	case OpNotBlank:
		return Fragment{SQL: col + " IS NOT NULL AND " + col + " <> ''"}

	case OpInSet:
		return c.inSet(ctx, col, crit.Value)
	case OpNotInSet:
		inner := c.inSet(ctx, col, crit.Value)
		if inner.Empty() {
			return inner
		}
		return Fragment{SQL: "NOT (" + inner.SQL + ")", Args: inner.Args}

	case OpEqualsField, OpNotEqualField, OpIEqualsField, OpINotEqualField,
		OpGreaterThanField, OpLessThanField, OpGreaterOrEqualField, OpLessOrEqualField,
		OpContainsField, OpStartsWithField, OpEndsWithField,
		OpIContainsField, OpIStartsWithField, OpIEndsWithField,
		OpNotContainsField, OpNotStartsWithField, OpNotEndsWithField,
		OpINotContainsField, OpINotStartsWithField, OpINotEndsWithField:
		return c.crossField(ctx, col, crit)

	case OpRegexp, OpIRegexp:
		log.Ctx(ctx).Warnf("criteria operator %q is not supported in SQL, omitting", crit.Operator)
		return Fragment{}
	}

	log.Ctx(ctx).Warnf("unknown criteria operator %q, omitting", crit.Operator)
	return Fragment{}
}

func (c *Compiler) column(ctx context.Context, fieldName string) (string, bool) {
	col, ok := c.Resolver.SQLColumn(fieldName)
	if !ok {
		log.Ctx(ctx).Warnf("criteria references unknown field %q", fieldName)
		return "", false
	}
	return col, true
}

func (c *Compiler) equals(col string, value interface{}) Fragment {
	if value == nil {
		return Fragment{SQL: col + " IS NULL"}
	}
	if c.Strict {
		return Fragment{SQL: col + " = ?", Args: []interface{}{value}}
	}
	return Fragment{SQL: col + " = ? AND " + col + " IS NOT NULL", Args: []interface{}{value}}
}

func (c *Compiler) notEqual(col string, value interface{}) Fragment {
	if value == nil {
		return Fragment{SQL: col + " IS NOT NULL"}
	}
	if c.Strict {
		return Fragment{SQL: col + " <> ?", Args: []interface{}{value}}
	}
	return Fragment{SQL: col + " <> ? OR " + col + " IS NULL", Args: []interface{}{value}}
}

func (c *Compiler) iEquals(col string, value interface{}) Fragment {
	if value == nil {
		return Fragment{SQL: col + " IS NULL"}
	}
	sql := foldColumn(col) + " = upper(?)"
	if !c.Strict {
		sql += " AND " + col + " IS NOT NULL"
	}
	return Fragment{SQL: sql, Args: []interface{}{stringValue(value)}}
}

func (c *Compiler) iNotEqual(col string, value interface{}) Fragment {
	if value == nil {
		return Fragment{SQL: col + " IS NOT NULL"}
	}
	sql := foldColumn(col) + " <> upper(?)"
	if !c.Strict {
		sql += " OR " + col + " IS NULL"
	}
	return Fragment{SQL: sql, Args: []interface{}{stringValue(value)}}
}

// relational renders open-ended comparisons. A null operand compiles to the
// always-true constant in lenient mode.
func (c *Compiler) relational(col, op string, value interface{}, fold bool) Fragment {
	if value == nil {
		if c.Strict {
			return Fragment{SQL: col + " " + op + " ?", Args: []interface{}{nil}}
		}
		return Fragment{SQL: alwaysTrue}
	}
	if fold {
		return Fragment{SQL: foldColumn(col) + " " + op + " upper(?)", Args: []interface{}{stringValue(value)}}
	}
	return Fragment{SQL: col + " " + op + " ?", Args: []interface{}{value}}
}

func (c *Compiler) between(col string, start, end interface{}, inclusive, caseInsensitive bool) Fragment {
	lowOp, highOp := ">", "<"
	if inclusive {
		lowOp, highOp = ">=", "<="
	}

	var parts []string
	var args []interface{}
	if low := c.relational(col, lowOp, start, caseInsensitive); low.SQL != alwaysTrue && !low.Empty() {
		parts = append(parts, low.SQL)
		args = append(args, low.Args...)
	}
	if high := c.relational(col, highOp, end, caseInsensitive); high.SQL != alwaysTrue && !high.Empty() {
		parts = append(parts, high.SQL)
		args = append(args, high.Args...)
	}
	if len(parts) == 0 {
		return Fragment{SQL: alwaysTrue}
	}
	return Fragment{SQL: strings.Join(parts, " AND "), Args: args}
}

func (c *Compiler) substring(ctx context.Context, col string, crit *Criterion) Fragment {
	if crit.Value == nil {
		log.Ctx(ctx).Warnf("substring criterion %q on %q without value, omitting", crit.Operator, crit.FieldName)
		return Fragment{}
	}
	escaped := escapeLike(stringValue(crit.Value))

	var pattern string
	switch crit.Operator {
	case OpContains, OpIContains, OpNotContains, OpINotContains:
		pattern = "%" + escaped + "%"
	case OpStartsWith, OpIStartsWith, OpNotStartsWith, OpINotStartsWith:
		pattern = escaped + "%"
	case OpEndsWith, OpIEndsWith, OpNotEndsWith, OpINotEndsWith:
		pattern = "%" + escaped
	}

	caseInsensitive := crit.Operator == OpIContains || crit.Operator == OpIStartsWith || crit.Operator == OpIEndsWith ||
		crit.Operator == OpINotContains || crit.Operator == OpINotStartsWith || crit.Operator == OpINotEndsWith
	negated := crit.Operator == OpNotContains || crit.Operator == OpNotStartsWith || crit.Operator == OpNotEndsWith ||
		crit.Operator == OpINotContains || crit.Operator == OpINotStartsWith || crit.Operator == OpINotEndsWith

	return c.like(col, pattern, caseInsensitive, negated)
}

func (c *Compiler) pattern(ctx context.Context, col string, crit *Criterion) Fragment {
	if crit.Value == nil {
		log.Ctx(ctx).Warnf("pattern criterion %q on %q without value, omitting", crit.Operator, crit.FieldName)
		return Fragment{}
	}
	translated := translatePattern(stringValue(crit.Value))

	var pattern string
	switch crit.Operator {
	case OpMatchesPattern, OpIMatchesPattern:
		pattern = translated
	case OpContainsPattern, OpIContainsPattern, OpNotContainsPattern, OpINotContainsPattern:
		pattern = "%" + translated + "%"
	case OpStartsWithPattern, OpIStartsWithPattern, OpNotStartsWithPattern, OpINotStartsWithPattern:
		pattern = translated + "%"
	case OpEndsWithPattern, OpIEndsWithPattern, OpNotEndsWithPattern, OpINotEndsWithPattern:
		pattern = "%" + translated
	}

	var caseInsensitive, negated bool
	switch crit.Operator {
	case OpIMatchesPattern, OpIContainsPattern, OpIStartsWithPattern, OpIEndsWithPattern:
		caseInsensitive = true
	case OpNotContainsPattern, OpNotStartsWithPattern, OpNotEndsWithPattern:
		negated = true
	case OpINotContainsPattern, OpINotStartsWithPattern, OpINotEndsWithPattern:
		caseInsensitive, negated = true, true
	}

	return c.like(col, pattern, caseInsensitive, negated)
}

// like renders one LIKE predicate with the fixed escape character, optionally
// case-folded and negated.
func (c *Compiler) like(col, pattern string, caseInsensitive, negated bool) Fragment {
	var sql string
	if caseInsensitive {
		sql = foldColumn(col) + " LIKE upper(?) ESCAPE '" + likeEscape + "'"
	} else {
		sql = col + " LIKE ? ESCAPE '" + likeEscape + "'"
	}
	if negated {
		sql = "NOT (" + sql + ")"
	}
	if !c.Strict {
		sql += " AND " + col + " IS NOT NULL"
	}
	return Fragment{SQL: sql, Args: []interface{}{pattern}}
}

func (c *Compiler) inSet(ctx context.Context, col string, value interface{}) Fragment {
	list, ok := value.([]interface{})
	if !ok {
		log.Ctx(ctx).Warnf("inSet criterion on %q without a list value", col)
		return Fragment{SQL: alwaysFalse}
	}

	var nonNulls []interface{}
	hasNull := false
	for _, v := range list {
		if v == nil {
			hasNull = true
		} else {
			nonNulls = append(nonNulls, v)
		}
	}

	if len(nonNulls) == 0 {
		if hasNull && !c.Strict {
			return Fragment{SQL: col + " IS NULL"}
		}
		return Fragment{SQL: alwaysFalse}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(nonNulls)), ",")
	sql := col + " IN (" + placeholders + ")"
	if hasNull && !c.Strict {
		sql += " OR " + col + " IS NULL"
	}
	return Fragment{SQL: sql, Args: nonNulls}
}

func (c *Compiler) crossField(ctx context.Context, col string, crit *Criterion) Fragment {
	otherCol, ok := c.column(ctx, stringValue(crit.Value))
	if !ok {
		return Fragment{SQL: alwaysTrue}
	}

	plain, folded := func(op string) string { return col + " " + op + " " + otherCol },
		func(op string) string { return foldColumn(col) + " " + op + " " + foldColumn(otherCol) }

	negatedLike := func(sql string) string {
		sql = "NOT (" + sql + ")"
		if !c.Strict {
			sql += " AND " + col + " IS NOT NULL"
		}
		return sql
	}

	var sql string
	switch crit.Operator {
	case OpEqualsField:
		sql = plain("=")
	case OpNotEqualField:
		sql = plain("<>")
	case OpIEqualsField:
		sql = folded("=")
	case OpINotEqualField:
		sql = folded("<>")
	case OpGreaterThanField:
		sql = plain(">")
	case OpLessThanField:
		sql = plain("<")
	case OpGreaterOrEqualField:
		sql = plain(">=")
	case OpLessOrEqualField:
		sql = plain("<=")

	case OpContainsField:
		sql = col + " LIKE '%' || " + otherCol + " || '%'"
	case OpStartsWithField:
		sql = col + " LIKE " + otherCol + " || '%'"
	case OpEndsWithField:
		sql = col + " LIKE '%' || " + otherCol
	case OpIContainsField:
		sql = foldColumn(col) + " LIKE '%' || " + foldColumn(otherCol) + " || '%'"
	case OpIStartsWithField:
		sql = foldColumn(col) + " LIKE " + foldColumn(otherCol) + " || '%'"
	case OpIEndsWithField:
		sql = foldColumn(col) + " LIKE '%' || " + foldColumn(otherCol)

	case OpNotContainsField:
		sql = negatedLike(col + " LIKE '%' || " + otherCol + " || '%'")
	case OpNotStartsWithField:
		sql = negatedLike(col + " LIKE " + otherCol + " || '%'")
	case OpNotEndsWithField:
		sql = negatedLike(col + " LIKE '%' || " + otherCol)
	case OpINotContainsField:
		sql = negatedLike(foldColumn(col) + " LIKE '%' || " + foldColumn(otherCol) + " || '%'")
	case OpINotStartsWithField:
		sql = negatedLike(foldColumn(col) + " LIKE " + foldColumn(otherCol) + " || '%'")
	case OpINotEndsWithField:
		sql = negatedLike(foldColumn(col) + " LIKE '%' || " + foldColumn(otherCol))

	default:
		log.Ctx(ctx).Warnf("unknown cross-field criteria operator %q, omitting", crit.Operator)
		return Fragment{}
	}

	return Fragment{SQL: sql}
}

// CompileSimpleCriteria turns a plain field/value criteria map into a WHERE
// fragment. Scalars match under the given text match style, arrays OR over
// their elements and nulls match IS NULL. Keys are processed in sorted order
// so the emitted SQL is deterministic.
func CompileSimpleCriteria(ctx context.Context, criteria map[string]interface{}, style TextMatchStyle, resolver ColumnResolver) Fragment {
	if len(criteria) == 0 {
		return Fragment{}
	}

	keys := make([]string, 0, len(criteria))
	for key := range criteria {
		if key == "_constructor" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	var args []interface{}
	for _, key := range keys {
		col, ok := resolver.SQLColumn(key)
		if !ok {
			log.Ctx(ctx).Warnf("criteria references unknown field %q, skipping", key)
			continue
		}

		value := criteria[key]
		if list, isList := value.([]interface{}); isList {
			var orParts []string
			for _, element := range list {
				frag := simplePredicate(col, element, style)
				orParts = append(orParts, "("+frag.SQL+")")
				args = append(args, frag.Args...)
			}
			if len(orParts) == 0 {
				continue
			}
			parts = append(parts, "("+strings.Join(orParts, " OR ")+")")
			continue
		}

		frag := simplePredicate(col, value, style)
		parts = append(parts, frag.SQL)
		args = append(args, frag.Args...)
	}
	if len(parts) == 0 {
		return Fragment{}
	}
	return Fragment{SQL: strings.Join(parts, " AND "), Args: args}
}

func simplePredicate(col string, value interface{}, style TextMatchStyle) Fragment {
	if value == nil {
		return Fragment{SQL: col + " IS NULL"}
	}

	switch style {
	case MatchExactCase:
		return Fragment{SQL: col + " = ?", Args: []interface{}{value}}
	case MatchStartsWith:
		pattern := escapeLike(stringValue(value)) + "%"
		return Fragment{
			SQL:  foldColumn(col) + " LIKE upper(?) ESCAPE '" + likeEscape + "'",
			Args: []interface{}{pattern},
		}
	case MatchSubstring:
		pattern := "%" + escapeLike(stringValue(value)) + "%"
		return Fragment{
			SQL:  foldColumn(col) + " LIKE upper(?) ESCAPE '" + likeEscape + "'",
			Args: []interface{}{pattern},
		}
	default: // MatchExact
		return Fragment{SQL: col + " = ?", Args: []interface{}{value}}
	}
}

// foldColumn wraps a column with an upper-case fold. The `'' ||` coercion
// forces string context on non-text columns.
func foldColumn(col string) string {
	return "upper('' || " + col + ")"
}

// escapeLike escapes the LIKE wildcards and the escape character itself in a
// user value.
func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '_', '%', '~':
			b.WriteString(likeEscape)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// translatePattern converts a client wildcard pattern (`*`, `?`, backslash
// escapes) into a SQL LIKE pattern, escaping any literal `_`, `%` and `~`.
func translatePattern(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		if escaped {
			switch r {
			case '_', '%', '~':
				b.WriteString(likeEscape)
			}
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '*':
			b.WriteRune('%')
		case '?':
			b.WriteRune('_')
		case '_', '%', '~':
			b.WriteString(likeEscape)
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
