package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/querykit/internal/domain"
)

func bookSchema() domain.EntitySchema {
	return domain.NewEntitySchema("Book", "", []domain.FieldDefinition{
		{Name: "title", Type: domain.FieldTypeString, Required: true},
		{Name: "pages", Type: domain.FieldTypeInteger},
		{Name: "published", Type: domain.FieldTypeTimestamp},
		{Name: "in_print", Type: domain.FieldTypeBoolean},
		{Name: "isbn", Type: domain.FieldTypeReference},
		{Name: "authors", Type: domain.FieldTypeEntityReferenceArray, ReferenceEntityType: "Author"},
	})
}

func TestJSONBValidatorReferenceField(t *testing.T) {
	v := NewJSONBValidator()
	schema := bookSchema()

	result := v.ValidateProperties(map[string]any{"title": "Dune", "isbn": ""}, schema)
	assert.False(t, result.IsValid, "expected reference field to reject empty string")

	result = v.ValidateProperties(map[string]any{"title": "Dune", "isbn": "   "}, schema)
	assert.False(t, result.IsValid, "expected reference field to reject whitespace value")

	result = v.ValidateProperties(map[string]any{"title": "Dune", "isbn": "978-0441013593"}, schema)
	assert.True(t, result.IsValid, "unexpected errors: %+v", result.Errors)
}

func TestJSONBValidatorReportsErrorsInFieldOrder(t *testing.T) {
	v := NewJSONBValidator()

	result := v.ValidateProperties(map[string]any{
		"pages":     "many",
		"in_print":  "yes",
		"published": "last week",
		"authors":   []any{"a1", 7},
		"colour":    "red",
	}, bookSchema())

	require.False(t, result.IsValid)
	fields := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		fields[i] = e.Field
	}
	assert.Equal(t, []string{"authors", "in_print", "pages", "published", "title", "colour"}, fields)
	assert.ErrorContains(t, result.Err(), "required field 'title' is missing")
}

func TestJSONBValidatorAllowUnknown(t *testing.T) {
	v := &JSONBValidator{AllowUnknown: true}

	result := v.ValidateProperties(map[string]any{
		"title":     "Dune",
		"pages":     float64(412),
		"published": "1965-08-01",
		"authors":   []string{"frank-herbert"},
		"colour":    "red",
	}, bookSchema())

	assert.True(t, result.IsValid, "unexpected errors: %+v", result.Errors)
	assert.NoError(t, result.Err())
}
