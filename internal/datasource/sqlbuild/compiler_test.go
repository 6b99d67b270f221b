package sqlbuild

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver resolves field names through a plain map, standing in for a
// descriptor in tests.
type mapResolver map[string]string

func (m mapResolver) SQLColumn(fieldName string) (string, bool) {
	col, ok := m[fieldName]
	return col, ok
}

var testResolver = mapResolver{
	"continent":  "continent",
	"population": "population",
	"parent":     "parent",
	"name":       "country_name",
	"code":       "code",
}

func Test_Compiler_Compile_fieldOperators(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		crit     *Criterion
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "equals adds null exclusion in lenient mode",
			crit:     &Criterion{Operator: OpEquals, FieldName: "code", Value: "BR"},
			wantSQL:  "code = ? AND code IS NOT NULL",
			wantArgs: []interface{}{"BR"},
		},
		{
			name:    "equals null becomes IS NULL",
			crit:    &Criterion{Operator: OpEquals, FieldName: "code", Value: nil},
			wantSQL: "code IS NULL",
		},
		{
			name:     "notEqual includes nulls in lenient mode",
			crit:     &Criterion{Operator: OpNotEqual, FieldName: "code", Value: "BR"},
			wantSQL:  "code <> ? OR code IS NULL",
			wantArgs: []interface{}{"BR"},
		},
		{
			name:    "notEqual null becomes IS NOT NULL",
			crit:    &Criterion{Operator: OpNotEqual, FieldName: "code", Value: nil},
			wantSQL: "code IS NOT NULL",
		},
		{
			name:     "iEquals folds both sides",
			crit:     &Criterion{Operator: OpIEquals, FieldName: "code", Value: "br"},
			wantSQL:  "upper('' || code) = upper(?) AND code IS NOT NULL",
			wantArgs: []interface{}{"br"},
		},
		{
			name:     "greaterThan",
			crit:     &Criterion{Operator: OpGreaterThan, FieldName: "population", Value: float64(1000)},
			wantSQL:  "population > ?",
			wantArgs: []interface{}{float64(1000)},
		},
		{
			name:    "greaterThan with null value is always true in lenient mode",
			crit:    &Criterion{Operator: OpGreaterThan, FieldName: "population", Value: nil},
			wantSQL: "1=1",
		},
		{
			name:     "betweenInclusive",
			crit:     &Criterion{Operator: OpBetweenInclusive, FieldName: "population", Start: float64(10), End: float64(20)},
			wantSQL:  "population >= ? AND population <= ?",
			wantArgs: []interface{}{float64(10), float64(20)},
		},
		{
			name:     "between with open end keeps only the lower bound",
			crit:     &Criterion{Operator: OpBetween, FieldName: "population", Start: float64(10)},
			wantSQL:  "population > ?",
			wantArgs: []interface{}{float64(10)},
		},
		{
			name:     "iContains escapes wildcards and folds case",
			crit:     &Criterion{Operator: OpIContains, FieldName: "continent", Value: "Europe"},
			wantSQL:  "upper('' || continent) LIKE upper(?) ESCAPE '~' AND continent IS NOT NULL",
			wantArgs: []interface{}{"%Europe%"},
		},
		{
			name:     "contains escapes LIKE wildcards in the value",
			crit:     &Criterion{Operator: OpContains, FieldName: "name", Value: "100%_done~"},
			wantSQL:  "country_name LIKE ? ESCAPE '~' AND country_name IS NOT NULL",
			wantArgs: []interface{}{"%100~%~_done~~%"},
		},
		{
			name:     "startsWith",
			crit:     &Criterion{Operator: OpStartsWith, FieldName: "name", Value: "Bra"},
			wantSQL:  "country_name LIKE ? ESCAPE '~' AND country_name IS NOT NULL",
			wantArgs: []interface{}{"Bra%"},
		},
		{
			name:     "notEndsWith negates and keeps null exclusion",
			crit:     &Criterion{Operator: OpNotEndsWith, FieldName: "name", Value: "land"},
			wantSQL:  "NOT (country_name LIKE ? ESCAPE '~') AND country_name IS NOT NULL",
			wantArgs: []interface{}{"%land"},
		},
		{
			name:     "matchesPattern translates client wildcards",
			crit:     &Criterion{Operator: OpMatchesPattern, FieldName: "name", Value: "Br*z?l"},
			wantSQL:  "country_name LIKE ? ESCAPE '~' AND country_name IS NOT NULL",
			wantArgs: []interface{}{"Br%z_l"},
		},
		{
			name:     "iContainsPattern folds and wraps the pattern",
			crit:     &Criterion{Operator: OpIContainsPattern, FieldName: "name", Value: "a?c"},
			wantSQL:  "upper('' || country_name) LIKE upper(?) ESCAPE '~' AND country_name IS NOT NULL",
			wantArgs: []interface{}{"%a_c%"},
		},
		{
			name:    "isNull",
			crit:    &Criterion{Operator: OpIsNull, FieldName: "parent"},
			wantSQL: "parent IS NULL",
		},
		{
			name:    "isBlank matches null or empty",
			crit:    &Criterion{Operator: OpIsBlank, FieldName: "parent"},
			wantSQL: "parent IS NULL OR parent = ''",
		},
		{
			name:    "notBlank",
			crit:    &Criterion{Operator: OpNotBlank, FieldName: "parent"},
			wantSQL: "parent IS NOT NULL AND parent <> ''",
		},
		{
			name:     "inSet",
			crit:     &Criterion{Operator: OpInSet, FieldName: "code", Value: []interface{}{"BR", "AR"}},
			wantSQL:  "code IN (?,?)",
			wantArgs: []interface{}{"BR", "AR"},
		},
		{
			name:     "inSet with null element adds IS NULL in lenient mode",
			crit:     &Criterion{Operator: OpInSet, FieldName: "code", Value: []interface{}{"BR", nil}},
			wantSQL:  "code IN (?) OR code IS NULL",
			wantArgs: []interface{}{"BR"},
		},
		{
			name:    "inSet with empty list is always false",
			crit:    &Criterion{Operator: OpInSet, FieldName: "code", Value: []interface{}{}},
			wantSQL: "1=2",
		},
		{
			name:     "notInSet negates the membership test",
			crit:     &Criterion{Operator: OpNotInSet, FieldName: "code", Value: []interface{}{"BR"}},
			wantSQL:  "NOT (code IN (?))",
			wantArgs: []interface{}{"BR"},
		},
		{
			name:    "equalsField compares two columns",
			crit:    &Criterion{Operator: OpEqualsField, FieldName: "name", Value: "code"},
			wantSQL: "country_name = code",
		},
		{
			name:    "iContainsField folds both columns",
			crit:    &Criterion{Operator: OpIContainsField, FieldName: "name", Value: "code"},
			wantSQL: "upper('' || country_name) LIKE '%' || upper('' || code) || '%'",
		},
		{
			name:    "unknown field compiles to always true",
			crit:    &Criterion{Operator: OpEquals, FieldName: "nope", Value: "x"},
			wantSQL: "1=1",
		},
		{
			name:    "regexp is omitted",
			crit:    &Criterion{Operator: OpRegexp, FieldName: "name", Value: ".*"},
			wantSQL: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Compiler{Resolver: testResolver}
			frag := c.Compile(ctx, tc.crit)
			assert.Equal(t, tc.wantSQL, frag.SQL)
			assert.Equal(t, tc.wantArgs, frag.Args)
		})
	}
}

func Test_Compiler_Compile_strictMode(t *testing.T) {
	ctx := context.Background()
	c := &Compiler{Resolver: testResolver, Strict: true}

	frag := c.Compile(ctx, &Criterion{Operator: OpEquals, FieldName: "code", Value: "BR"})
	assert.Equal(t, "code = ?", frag.SQL)
	assert.Equal(t, []interface{}{"BR"}, frag.Args)

	frag = c.Compile(ctx, &Criterion{Operator: OpNotEqual, FieldName: "code", Value: "BR"})
	assert.Equal(t, "code <> ?", frag.SQL)

	// Strict relational with a null operand keeps SQL three-valued logic.
	frag = c.Compile(ctx, &Criterion{Operator: OpGreaterThan, FieldName: "population", Value: nil})
	assert.Equal(t, "population > ?", frag.SQL)
	assert.Equal(t, []interface{}{nil}, frag.Args)

	frag = c.Compile(ctx, &Criterion{Operator: OpIContains, FieldName: "continent", Value: "Europe"})
	assert.Equal(t, "upper('' || continent) LIKE upper(?) ESCAPE '~'", frag.SQL)
}

func Test_Compiler_Compile_logicalOperators(t *testing.T) {
	ctx := context.Background()
	c := &Compiler{Resolver: testResolver}

	t.Run("and joins children", func(t *testing.T) {
		frag := c.Compile(ctx, &Criterion{
			Operator: OpAnd,
			Criteria: []*Criterion{
				{Operator: OpEquals, FieldName: "continent", Value: "Europe"},
				{Operator: OpGreaterThan, FieldName: "population", Value: float64(100)},
			},
		})
		assert.Equal(t, "(continent = ? AND continent IS NOT NULL) AND (population > ?)", frag.SQL)
		assert.Equal(t, []interface{}{"Europe", float64(100)}, frag.Args)
	})

	t.Run("not negates the disjunction of its children", func(t *testing.T) {
		frag := c.Compile(ctx, &Criterion{
			Operator: OpNot,
			Criteria: []*Criterion{
				{Operator: OpEquals, FieldName: "parent", Value: "1"},
			},
		})
		assert.Equal(t, "NOT ((parent = ? AND parent IS NOT NULL))", frag.SQL)
		assert.Equal(t, []interface{}{"1"}, frag.Args)
	})

	t.Run("empty logical node compiles to the empty fragment", func(t *testing.T) {
		frag := c.Compile(ctx, &Criterion{Operator: OpAnd})
		assert.True(t, frag.Empty())
	})

	t.Run("malformed child list compiles to always false", func(t *testing.T) {
		frag := c.Compile(ctx, &Criterion{Operator: OpAnd, badChildren: true})
		assert.Equal(t, "1=2", frag.SQL)
	})

	t.Run("children over unknown fields collapse to always true", func(t *testing.T) {
		frag := c.Compile(ctx, &Criterion{
			Operator: OpOr,
			Criteria: []*Criterion{
				{Operator: OpEquals, FieldName: "ghost", Value: "x"},
				{Operator: OpEquals, FieldName: "code", Value: "BR"},
			},
		})
		assert.Equal(t, "(1=1) OR (code = ? AND code IS NOT NULL)", frag.SQL)
	})
}

func Test_CompileSimpleCriteria(t *testing.T) {
	ctx := context.Background()

	t.Run("exact style renders equality in sorted key order", func(t *testing.T) {
		frag := CompileSimpleCriteria(ctx, map[string]interface{}{
			"continent": "Europe",
			"code":      "PT",
		}, MatchExact, testResolver)
		assert.Equal(t, "code = ? AND continent = ?", frag.SQL)
		assert.Equal(t, []interface{}{"PT", "Europe"}, frag.Args)
	})

	t.Run("substring style renders a folded LIKE", func(t *testing.T) {
		frag := CompileSimpleCriteria(ctx, map[string]interface{}{
			"continent": "Europe",
		}, MatchSubstring, testResolver)
		assert.Equal(t, "upper('' || continent) LIKE upper(?) ESCAPE '~'", frag.SQL)
		assert.Equal(t, []interface{}{"%Europe%"}, frag.Args)
	})

	t.Run("startsWith style anchors the pattern", func(t *testing.T) {
		frag := CompileSimpleCriteria(ctx, map[string]interface{}{
			"continent": "Eur",
		}, MatchStartsWith, testResolver)
		assert.Equal(t, "upper('' || continent) LIKE upper(?) ESCAPE '~'", frag.SQL)
		assert.Equal(t, []interface{}{"Eur%"}, frag.Args)
	})

	t.Run("list values OR over their elements", func(t *testing.T) {
		frag := CompileSimpleCriteria(ctx, map[string]interface{}{
			"code": []interface{}{"BR", "AR"},
		}, MatchExact, testResolver)
		assert.Equal(t, "((code = ?) OR (code = ?))", frag.SQL)
		assert.Equal(t, []interface{}{"BR", "AR"}, frag.Args)
	})

	t.Run("null value matches IS NULL", func(t *testing.T) {
		frag := CompileSimpleCriteria(ctx, map[string]interface{}{
			"parent": nil,
		}, MatchExact, testResolver)
		assert.Equal(t, "parent IS NULL", frag.SQL)
	})

	t.Run("constructor marker and unknown fields are skipped", func(t *testing.T) {
		frag := CompileSimpleCriteria(ctx, map[string]interface{}{
			"_constructor": "AdvancedCriteria",
			"ghost":        "x",
		}, MatchExact, testResolver)
		assert.True(t, frag.Empty())
	})
}

func Test_ParseCriterion(t *testing.T) {
	t.Run("field node", func(t *testing.T) {
		crit, err := ParseCriterion(map[string]interface{}{
			"operator":  "iContains",
			"fieldName": "continent",
			"value":     "Europe",
		})
		require.NoError(t, err)
		assert.Equal(t, OpIContains, crit.Operator)
		assert.Equal(t, "continent", crit.FieldName)
		assert.Equal(t, "Europe", crit.Value)
	})

	t.Run("nested logical tree", func(t *testing.T) {
		crit, err := ParseCriterion(map[string]interface{}{
			"operator": "and",
			"criteria": []interface{}{
				map[string]interface{}{"operator": "equals", "fieldName": "code", "value": "BR"},
				map[string]interface{}{
					"operator": "not",
					"criteria": []interface{}{
						map[string]interface{}{"operator": "isNull", "fieldName": "parent"},
					},
				},
			},
		})
		require.NoError(t, err)
		require.Len(t, crit.Criteria, 2)
		assert.Equal(t, OpNot, crit.Criteria[1].Operator)
		require.Len(t, crit.Criteria[1].Criteria, 1)
	})

	t.Run("range node", func(t *testing.T) {
		crit, err := ParseCriterion(map[string]interface{}{
			"operator":  "betweenInclusive",
			"fieldName": "population",
			"start":     float64(1),
			"end":       float64(2),
		})
		require.NoError(t, err)
		assert.Equal(t, float64(1), crit.Start)
		assert.Equal(t, float64(2), crit.End)
	})

	t.Run("missing operator errors", func(t *testing.T) {
		_, err := ParseCriterion(map[string]interface{}{"fieldName": "code"})
		require.Error(t, err)
	})

	t.Run("non-list criteria marks the node malformed", func(t *testing.T) {
		crit, err := ParseCriterion(map[string]interface{}{
			"operator": "and",
			"criteria": "oops",
		})
		require.NoError(t, err)
		assert.True(t, crit.badChildren)
	})
}

func Test_IsAdvancedCriteria(t *testing.T) {
	assert.True(t, IsAdvancedCriteria(map[string]interface{}{"_constructor": "AdvancedCriteria"}))
	assert.False(t, IsAdvancedCriteria(map[string]interface{}{"operator": "and"}))
	assert.False(t, IsAdvancedCriteria(map[string]interface{}{"code": "BR"}))
	assert.False(t, IsAdvancedCriteria(nil))
}
