package repository

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rpattn/querykit/internal/domain"
)

// MatchesQuery reports whether entity satisfies the query's predicates and
// survives its exclusion.
func MatchesQuery(entity *domain.Entity, q domain.Query) bool {
	if entity == nil {
		return false
	}
	if !matchesPredicates(entity, q.Mode, q.Predicates) {
		return false
	}
	return !IsExcluded(entity, q.Exclusion)
}

func matchesPredicates(entity *domain.Entity, mode domain.CompositionMode, predicates []domain.Predicate) bool {
	if len(predicates) == 0 {
		return true
	}
	if mode == domain.ModeAny {
		for _, p := range predicates {
			if MatchesPredicate(entity, p) {
				return true
			}
		}
		return false
	}
	for _, p := range predicates {
		if !MatchesPredicate(entity, p) {
			return false
		}
	}
	return true
}

// IsExcluded reports whether the entity's value for the exclusion field is a
// member of the exclusion set. Missing values are never excluded.
func IsExcluded(entity *domain.Entity, exclusion *domain.Exclusion) bool {
	if exclusion == nil || len(exclusion.Values) == 0 {
		return false
	}
	return MatchesPredicate(entity, domain.Predicate{
		Field:     exclusion.Field,
		FieldType: exclusion.FieldType,
		Operator:  domain.OpIn,
		Values:    exclusion.Values,
	})
}

// MatchesPredicate evaluates one predicate. A negated predicate matches
// whenever the plain one does not, including when the field is missing.
func MatchesPredicate(entity *domain.Entity, p domain.Predicate) bool {
	value, present := entity.Property(p.Field)
	matched := evaluate(p, value, present)
	if p.Negated {
		return !matched
	}
	return matched
}

func evaluate(p domain.Predicate, value any, present bool) bool {
	if p.Operator == domain.OpIsNull {
		return !present == (p.Value() == "true")
	}
	if !present {
		return false
	}

	if p.FieldType == domain.FieldTypeEntityReferenceArray {
		items, ok := value.([]any)
		if !ok {
			items = []any{value}
		}
		for _, item := range items {
			if item != nil && evaluateScalar(p, item) {
				return true
			}
		}
		return false
	}

	return evaluateScalar(p, value)
}

func evaluateScalar(p domain.Predicate, value any) bool {
	if p.Operator.IsPattern() {
		return matchPattern(p, domain.PropertyText(value))
	}

	switch p.Operator {
	case domain.OpExact:
		c, ok := compareTo(p, value, p.Value())
		return ok && c == 0
	case domain.OpGt:
		c, ok := compareTo(p, value, p.Value())
		return ok && c > 0
	case domain.OpGte:
		c, ok := compareTo(p, value, p.Value())
		return ok && c >= 0
	case domain.OpLt:
		c, ok := compareTo(p, value, p.Value())
		return ok && c < 0
	case domain.OpLte:
		c, ok := compareTo(p, value, p.Value())
		return ok && c <= 0
	case domain.OpIn:
		for _, candidate := range p.Values {
			if c, ok := compareTo(p, value, candidate); ok && c == 0 {
				return true
			}
		}
		return false
	case domain.OpRange:
		if len(p.Values) != 2 {
			return false
		}
		lo, ok := compareTo(p, value, p.Values[0])
		if !ok {
			return false
		}
		hi, ok := compareTo(p, value, p.Values[1])
		return ok && lo >= 0 && hi <= 0
	default:
		return false
	}
}

// compareTo orders a stored value against a raw parameter value using the
// field's type. ok is false when either side cannot be read as that type.
func compareTo(p domain.Predicate, stored any, raw string) (int, bool) {
	want, ok := domain.CoerceValue(p.FieldType, raw)
	if !ok {
		return 0, false
	}
	got, ok := domain.PropertyValue(p.FieldType, stored)
	if !ok {
		return 0, false
	}
	if p.Unaccent {
		if s, ok := want.(string); ok {
			want = foldAccents(s)
		}
		if s, ok := got.(string); ok {
			got = foldAccents(s)
		}
	}
	return domain.CompareValues(got, want), true
}

func matchPattern(p domain.Predicate, text string) bool {
	pattern := p.Value()
	if p.Unaccent {
		text = foldAccents(text)
		pattern = foldAccents(pattern)
	}

	switch p.Operator {
	case domain.OpRegex, domain.OpIRegex:
		if p.Operator == domain.OpIRegex {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}

	if p.Operator.CaseInsensitive() {
		text = strings.ToLower(text)
		pattern = strings.ToLower(pattern)
	}

	switch p.Operator {
	case domain.OpIExact:
		return text == pattern
	case domain.OpContains, domain.OpIContains:
		return strings.Contains(text, pattern)
	case domain.OpStartsWith, domain.OpIStartsWith:
		return strings.HasPrefix(text, pattern)
	case domain.OpEndsWith, domain.OpIEndsWith:
		return strings.HasSuffix(text, pattern)
	default:
		return false
	}
}

// foldAccents strips combining marks, so "Tolkièn" compares equal to "Tolkien".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
