package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rpattn/querykit/internal/catalog"
	"github.com/rpattn/querykit/internal/domain"
)

// Parse translates params into a validated query for the catalog's entity
// type. Keys that do not name a known field with an allowed operator are
// skipped and returned in dropped; reserved keys are consumed silently.
func Parse(cat catalog.Catalog, params domain.Parameters, mode domain.CompositionMode) (domain.Query, []string) {
	q := domain.Query{
		EntityType: cat.EntityType(),
		Mode:       normalizeMode(mode),
	}

	var dropped []string
	for _, key := range params.Keys() {
		if domain.IsReservedParam(key) {
			continue
		}
		pred, ok := parsePredicate(cat, key, params.Values(key))
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		q.Predicates = append(q.Predicates, pred)
	}

	q.Exclusion = parseExclusion(cat, params)
	q.Sort = parseSort(cat, params)

	return q, dropped
}

func normalizeMode(mode domain.CompositionMode) domain.CompositionMode {
	if mode == domain.ModeAny {
		return domain.ModeAny
	}
	return domain.ModeAll
}

// splitKey separates a parameter key into its field, modifiers and operator.
// A key without a separator is an implicit exact match.
func splitKey(key string) (field string, modifiers []string, operator string) {
	parts := strings.Split(key, domain.LookupSeparator)
	if len(parts) == 1 {
		return parts[0], nil, string(domain.OpExact)
	}
	return parts[0], parts[1 : len(parts)-1], parts[len(parts)-1]
}

func parsePredicate(cat catalog.Catalog, key string, values []string) (domain.Predicate, bool) {
	fieldName, modifiers, rawOp := splitKey(key)

	field, ok := cat.Field(fieldName)
	if !ok {
		return domain.Predicate{}, false
	}
	op, ok := domain.ParseOperator(rawOp)
	if !ok {
		return domain.Predicate{}, false
	}

	pred := domain.Predicate{
		Field:     field.Name,
		FieldType: field.Type,
		Operator:  op,
	}

	for _, modifier := range modifiers {
		switch {
		case modifier == domain.ModifierNot && !pred.Negated:
			pred.Negated = true
		case modifier == domain.ModifierUnaccent && !pred.Unaccent && field.Kind() == domain.FieldKindText:
			pred.Unaccent = true
		default:
			return domain.Predicate{}, false
		}
	}

	pred.Values, ok = predicateValues(op, values)
	if !ok {
		return domain.Predicate{}, false
	}

	return pred, true
}

func predicateValues(op domain.Operator, values []string) ([]string, bool) {
	if len(values) == 0 {
		return nil, false
	}
	last := values[len(values)-1]

	switch op {
	case domain.OpIn:
		list := values
		if len(values) == 1 {
			list = splitList(last)
		}
		if len(list) == 0 {
			return nil, false
		}
		return append([]string(nil), list...), true
	case domain.OpRange:
		bounds := values
		if len(values) == 1 {
			bounds = splitList(last)
		}
		if len(bounds) != 2 {
			return nil, false
		}
		return []string{bounds[0], bounds[1]}, true
	case domain.OpIsNull:
		isNull, err := strconv.ParseBool(strings.TrimSpace(last))
		if err != nil {
			return nil, false
		}
		return []string{strconv.FormatBool(isNull)}, true
	case domain.OpRegex, domain.OpIRegex:
		if _, err := regexp.Compile(last); err != nil {
			return nil, false
		}
		return []string{last}, true
	default:
		return []string{last}, true
	}
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

func parseExclusion(cat catalog.Catalog, params domain.Parameters) *domain.Exclusion {
	name := params.Get(domain.ParamExcludeProperty)
	if name == "" {
		return nil
	}
	field, ok := cat.Field(name)
	if !ok {
		return nil
	}
	values := params.Values(domain.ParamExcludeValue)
	if len(values) == 0 {
		return nil
	}
	return &domain.Exclusion{Field: field.Name, FieldType: field.Type, Values: values}
}

func parseSort(cat catalog.Catalog, params domain.Parameters) *domain.SortSpec {
	name := params.Get(domain.ParamSort)
	if name == "" {
		return nil
	}
	field, ok := cat.Field(name)
	if !ok {
		return nil
	}
	return &domain.SortSpec{
		Field:     field.Name,
		FieldType: field.Type,
		Direction: domain.ParseSortDirection(params.Get(domain.ParamOrder)),
	}
}
