package sqlbuild

// Operator identifies one node kind of an AdvancedCriteria tree.
type Operator string

// Logical operators.
const (
	OpAnd Operator = "and"
	OpOr  Operator = "or"
	OpNot Operator = "not"
)

// Comparison operators.
const (
	OpEquals            Operator = "equals"
	OpNotEqual          Operator = "notEqual"
	OpIEquals           Operator = "iEquals"
	OpINotEqual         Operator = "iNotEqual"
	OpGreaterThan       Operator = "greaterThan"
	OpLessThan          Operator = "lessThan"
	OpGreaterOrEqual    Operator = "greaterOrEqual"
	OpLessOrEqual       Operator = "lessOrEqual"
	OpBetween           Operator = "between"
	OpBetweenInclusive  Operator = "betweenInclusive"
	OpIBetween          Operator = "iBetween"
	OpIBetweenInclusive Operator = "iBetweenInclusive"
)

// Substring operators.
const (
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "startsWith"
	OpEndsWith       Operator = "endsWith"
	OpIContains      Operator = "iContains"
	OpIStartsWith    Operator = "iStartsWith"
	OpIEndsWith      Operator = "iEndsWith"
	OpNotContains    Operator = "notContains"
	OpNotStartsWith  Operator = "notStartsWith"
	OpNotEndsWith    Operator = "notEndsWith"
	OpINotContains   Operator = "iNotContains"
	OpINotStartsWith Operator = "iNotStartsWith"
	OpINotEndsWith   Operator = "iNotEndsWith"
)

// Pattern operators. Patterns use `*` and `?` wildcards and are translated to
// SQL LIKE syntax before matching.
const (
	OpMatchesPattern     Operator = "matchesPattern"
	OpIMatchesPattern    Operator = "iMatchesPattern"
	OpContainsPattern    Operator = "containsPattern"
	OpStartsWithPattern  Operator = "startsWithPattern"
	OpEndsWithPattern    Operator = "endsWithPattern"
	OpIContainsPattern   Operator = "iContainsPattern"
	OpIStartsWithPattern Operator = "iStartsWithPattern"
	OpIEndsWithPattern   Operator = "iEndsWithPattern"

	OpNotContainsPattern    Operator = "notContainsPattern"
	OpNotStartsWithPattern  Operator = "notStartsWithPattern"
	OpNotEndsWithPattern    Operator = "notEndsWithPattern"
	OpINotContainsPattern   Operator = "iNotContainsPattern"
	OpINotStartsWithPattern Operator = "iNotStartsWithPattern"
	OpINotEndsWithPattern   Operator = "iNotEndsWithPattern"
)

// Null and blank checks.
const (
	OpIsBlank  Operator = "isBlank"
	OpNotBlank Operator = "notBlank"
	OpIsNull   Operator = "isNull"
	OpNotNull  Operator = "notNull"
)

// Set membership.
const (
	OpInSet    Operator = "inSet"
	OpNotInSet Operator = "notInSet"
)

// Cross-field operators resolve the criterion value as another field name of
// the same data source.
const (
	OpEqualsField          Operator = "equalsField"
	OpNotEqualField        Operator = "notEqualField"
	OpIEqualsField         Operator = "iEqualsField"
	OpINotEqualField       Operator = "iNotEqualField"
	OpGreaterThanField     Operator = "greaterThanField"
	OpLessThanField        Operator = "lessThanField"
	OpGreaterOrEqualField  Operator = "greaterOrEqualField"
	OpLessOrEqualField     Operator = "lessOrEqualField"
	OpContainsField        Operator = "containsField"
	OpStartsWithField      Operator = "startsWithField"
	OpEndsWithField        Operator = "endsWithField"
	OpIContainsField       Operator = "iContainsField"
	OpIStartsWithField     Operator = "iStartsWithField"
	OpIEndsWithField       Operator = "iEndsWithField"
	OpNotContainsField     Operator = "notContainsField"
	OpNotStartsWithField   Operator = "notStartsWithField"
	OpNotEndsWithField     Operator = "notEndsWithField"
	OpINotContainsField    Operator = "iNotContainsField"
	OpINotStartsWithField  Operator = "iNotStartsWithField"
	OpINotEndsWithField    Operator = "iNotEndsWithField"
)

// Regexp operators are part of the wire vocabulary but have no SQL rendering
// yet. They compile to the empty fragment.
const (
	OpRegexp  Operator = "regexp"
	OpIRegexp Operator = "iregexp"
)

// IsLogical reports whether op combines child criteria instead of testing a
// field.
func (op Operator) IsLogical() bool {
	return op == OpAnd || op == OpOr || op == OpNot
}

// TextMatchStyle controls how simple (non-advanced) criteria values are
// matched.
type TextMatchStyle string

const (
	MatchExact      TextMatchStyle = "exact"
	MatchExactCase  TextMatchStyle = "exactCase"
	MatchSubstring  TextMatchStyle = "substring"
	MatchStartsWith TextMatchStyle = "startsWith"
)
