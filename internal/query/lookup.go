package query

import (
	"strings"

	"github.com/rpattn/querykit/internal/catalog"
	"github.com/rpattn/querykit/internal/domain"
)

// ExpandLookup builds the parameter mapping for a free-text search. The
// caller's reserved keys are carried over unchanged so the results sort,
// exclude and paginate like any other query. Text fields get a
// case-insensitive contains (accent-insensitive when unaccent is true);
// other fields get an exact match, which matches nothing when the text
// cannot be read as that field's type. An empty q adds no conditions.
func ExpandLookup(cat catalog.Catalog, params domain.Parameters, unaccent bool) domain.Parameters {
	expanded := params.Reserved()

	text, ok := params.Lookup(domain.ParamQuery)
	if !ok || strings.TrimSpace(text) == "" {
		return expanded
	}

	for _, field := range cat.Text() {
		expanded[lookupKey(field.Name, unaccent, domain.OpIContains)] = []string{text}
	}
	for _, field := range cat.Other() {
		expanded[lookupKey(field.Name, false, domain.OpExact)] = []string{text}
	}

	return expanded
}

func lookupKey(field string, unaccent bool, op domain.Operator) string {
	parts := []string{field}
	if unaccent {
		parts = append(parts, domain.ModifierUnaccent)
	}
	parts = append(parts, string(op))
	return strings.Join(parts, domain.LookupSeparator)
}
