package domain

import "strings"

// Operator is a comparison or lookup applied to a single field.
type Operator string

const (
	OpExact       Operator = "exact"
	OpIExact      Operator = "iexact"
	OpContains    Operator = "contains"
	OpIContains   Operator = "icontains"
	OpIn          Operator = "in"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpStartsWith  Operator = "startswith"
	OpIStartsWith Operator = "istartswith"
	OpEndsWith    Operator = "endswith"
	OpIEndsWith   Operator = "iendswith"
	OpRange       Operator = "range"
	OpIsNull      Operator = "isnull"
	OpRegex       Operator = "regex"
	OpIRegex      Operator = "iregex"
)

var allowedOperators = map[Operator]struct{}{
	OpExact:       {},
	OpIExact:      {},
	OpContains:    {},
	OpIContains:   {},
	OpIn:          {},
	OpGt:          {},
	OpGte:         {},
	OpLt:          {},
	OpLte:         {},
	OpStartsWith:  {},
	OpIStartsWith: {},
	OpEndsWith:    {},
	OpIEndsWith:   {},
	OpRange:       {},
	OpIsNull:      {},
	OpRegex:       {},
	OpIRegex:      {},
}

// ParseOperator looks raw up in the allow-list.
func ParseOperator(raw string) (Operator, bool) {
	op := Operator(raw)
	_, ok := allowedOperators[op]
	return op, ok
}

// CaseInsensitive reports whether the operator folds case.
func (o Operator) CaseInsensitive() bool {
	switch o {
	case OpIExact, OpIContains, OpIStartsWith, OpIEndsWith, OpIRegex:
		return true
	default:
		return false
	}
}

// IsPattern reports whether the operator matches text patterns rather than
// typed values.
func (o Operator) IsPattern() bool {
	switch o {
	case OpIExact, OpContains, OpIContains, OpStartsWith, OpIStartsWith,
		OpEndsWith, OpIEndsWith, OpRegex, OpIRegex:
		return true
	default:
		return false
	}
}

// Key modifiers that may appear between the field and the operator.
const (
	ModifierNot      = "not"
	ModifierUnaccent = "unaccent"
)

// LookupSeparator splits field, modifiers and operator in a parameter key.
const LookupSeparator = "__"

// Predicate is one atomic (field, operator, value) condition.
type Predicate struct {
	Field     string
	FieldType FieldType
	Operator  Operator
	Values    []string
	Negated   bool
	Unaccent  bool
}

// Value returns the single comparison value.
func (p Predicate) Value() string {
	if len(p.Values) == 0 {
		return ""
	}
	return p.Values[0]
}

// Key renders the predicate back into parameter-key form.
func (p Predicate) Key() string {
	parts := []string{p.Field}
	if p.Negated {
		parts = append(parts, ModifierNot)
	}
	if p.Unaccent {
		parts = append(parts, ModifierUnaccent)
	}
	parts = append(parts, string(p.Operator))
	return strings.Join(parts, LookupSeparator)
}

// CompositionMode chooses how predicates combine.
type CompositionMode string

const (
	// ModeAll requires every predicate to match.
	ModeAll CompositionMode = "ALL"
	// ModeAny requires at least one predicate to match.
	ModeAny CompositionMode = "ANY"
)

// Exclusion removes entities whose field value is one of Values.
type Exclusion struct {
	Field     string
	FieldType FieldType
	Values    []string
}

// Query is a validated, store-agnostic filter over one entity type.
type Query struct {
	EntityType string
	Mode       CompositionMode
	Predicates []Predicate
	Exclusion  *Exclusion
	Sort       *SortSpec
}

// MatchesAll reports whether the query has no predicates and so selects
// every entity before exclusion.
func (q Query) MatchesAll() bool {
	return len(q.Predicates) == 0
}
