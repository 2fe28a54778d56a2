package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType represents the type of a field in an entity schema
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeText      FieldType = "text"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
	// FieldTypeReference marks a cross-entity reference string. It only counts
	// as a relationship when ReferenceEntityType names the target.
	FieldTypeReference            FieldType = "REFERENCE"
	FieldTypeEntityReference      FieldType = "ENTITY_REFERENCE"
	FieldTypeEntityReferenceArray FieldType = "ENTITY_REFERENCE_ARRAY"
	FieldTypeEntityID             FieldType = "ENTITY_ID"
)

// FieldKind partitions fields for free-text lookup.
type FieldKind string

const (
	FieldKindText  FieldKind = "text"
	FieldKindOther FieldKind = "other"
)

// FieldDefinition represents a field definition in a schema
type FieldDefinition struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	// ReferenceEntityType specifies the related entity type when the field holds a
	// relationship.
	ReferenceEntityType string `json:"referenceEntityType,omitempty" yaml:"referenceEntityType,omitempty"`
}

// Kind reports whether the field holds free text.
func (f FieldDefinition) Kind() FieldKind {
	switch f.Type {
	case FieldTypeString, FieldTypeText, FieldTypeReference:
		return FieldKindText
	default:
		return FieldKindOther
	}
}

// IsRelationship reports whether the field points at another entity.
func (f FieldDefinition) IsRelationship() bool {
	switch f.Type {
	case FieldTypeEntityReference, FieldTypeEntityReferenceArray, FieldTypeEntityID:
		return true
	case FieldTypeReference:
		return strings.TrimSpace(f.ReferenceEntityType) != ""
	default:
		return false
	}
}

// EntitySchema describes an entity type and its ordered fields
type EntitySchema struct {
	ID          uuid.UUID         `json:"id" yaml:"-"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Fields      []FieldDefinition `json:"fields" yaml:"fields"`
	CreatedAt   time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time         `json:"updated_at" yaml:"-"`
}

// NewEntitySchema creates a new entity schema with immutable pattern
func NewEntitySchema(name, description string, fields []FieldDefinition) EntitySchema {
	now := time.Now()
	return EntitySchema{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Fields:      copyFields(fields),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// WithField returns a new schema with an added/updated field
func (es EntitySchema) WithField(field FieldDefinition) EntitySchema {
	newFields := copyFields(es.Fields)

	found := false
	for i, existingField := range newFields {
		if existingField.Name == field.Name {
			newFields[i] = field
			found = true
			break
		}
	}

	if !found {
		newFields = append(newFields, field)
	}

	return EntitySchema{
		ID:          es.ID,
		Name:        es.Name,
		Description: es.Description,
		Fields:      newFields,
		CreatedAt:   es.CreatedAt,
		UpdatedAt:   time.Now(),
	}
}

// FieldsByName indexes the schema's fields by name.
func (es EntitySchema) FieldsByName() map[string]FieldDefinition {
	byName := make(map[string]FieldDefinition, len(es.Fields))
	for _, field := range es.Fields {
		byName[field.Name] = field
	}
	return byName
}

// GetFieldsAsJSONB returns the fields as JSONB for database storage
func (es EntitySchema) GetFieldsAsJSONB() (json.RawMessage, error) {
	return json.Marshal(es.Fields)
}

// FromJSONBFields decodes field definitions stored as JSONB
func FromJSONBFields(fieldsJSON json.RawMessage) ([]FieldDefinition, error) {
	var fields []FieldDefinition
	err := json.Unmarshal(fieldsJSON, &fields)
	return fields, err
}

// copyFields creates a copy of the fields slice to ensure immutability
func copyFields(fields []FieldDefinition) []FieldDefinition {
	if fields == nil {
		return nil
	}
	newFields := make([]FieldDefinition, len(fields))
	copy(newFields, fields)
	return newFields
}
