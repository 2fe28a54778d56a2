// Package catalog derives the field whitelist for an entity type.
//
// A Catalog is computed once from an entity schema and never mutated, so it
// can be shared freely between goroutines and cached across requests.
package catalog

import "github.com/rpattn/querykit/internal/domain"

// Catalog is the whitelist of fields for one entity type.
type Catalog struct {
	entityType string
	fields     map[string]domain.FieldDefinition
	names      []string
	text       []domain.FieldDefinition
	other      []domain.FieldDefinition
}

// Resolve builds the catalog for schema. Relationship fields stay valid for
// explicit filtering but are left out of the text/other partition used by
// free-text lookup. Duplicate names keep their first declaration.
func Resolve(schema domain.EntitySchema) Catalog {
	c := Catalog{
		entityType: schema.Name,
		fields:     make(map[string]domain.FieldDefinition, len(schema.Fields)),
		names:      make([]string, 0, len(schema.Fields)),
	}

	for _, field := range schema.Fields {
		if field.Name == "" {
			continue
		}
		if _, dup := c.fields[field.Name]; dup {
			continue
		}
		c.fields[field.Name] = field
		c.names = append(c.names, field.Name)

		if field.IsRelationship() {
			continue
		}
		switch field.Kind() {
		case domain.FieldKindText:
			c.text = append(c.text, field)
		default:
			c.other = append(c.other, field)
		}
	}

	return c
}

// EntityType returns the entity type the catalog was resolved for.
func (c Catalog) EntityType() string {
	return c.entityType
}

// Has reports whether name is a field of the entity type.
func (c Catalog) Has(name string) bool {
	_, ok := c.fields[name]
	return ok
}

// Field returns the definition for name.
func (c Catalog) Field(name string) (domain.FieldDefinition, bool) {
	field, ok := c.fields[name]
	return field, ok
}

// Names returns every field name in declaration order.
func (c Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Text returns the non-relationship text fields in declaration order.
func (c Catalog) Text() []domain.FieldDefinition {
	return append([]domain.FieldDefinition(nil), c.text...)
}

// Other returns the non-relationship, non-text fields in declaration order.
func (c Catalog) Other() []domain.FieldDefinition {
	return append([]domain.FieldDefinition(nil), c.other...)
}

// Searchable returns Text followed by Other.
func (c Catalog) Searchable() []domain.FieldDefinition {
	out := make([]domain.FieldDefinition, 0, len(c.text)+len(c.other))
	out = append(out, c.text...)
	return append(out, c.other...)
}

// Relationships returns the fields that point at other entities.
func (c Catalog) Relationships() []domain.FieldDefinition {
	var out []domain.FieldDefinition
	for _, name := range c.names {
		if field := c.fields[name]; field.IsRelationship() {
			out = append(out, field)
		}
	}
	return out
}

// Len is the number of fields.
func (c Catalog) Len() int {
	return len(c.names)
}
