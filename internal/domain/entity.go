package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entity represents a stored instance of a schema-described entity type
type Entity struct {
	ID         uuid.UUID      `json:"id"`
	EntityType string         `json:"entity_type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewEntity creates a new entity with immutable pattern
func NewEntity(entityType string, properties map[string]any) Entity {
	now := time.Now()
	return Entity{
		ID:         uuid.New(),
		EntityType: entityType,
		Properties: copyProperties(properties),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithProperties returns a new entity with updated properties
func (e Entity) WithProperties(properties map[string]any) Entity {
	return Entity{
		ID:         e.ID,
		EntityType: e.EntityType,
		Properties: copyProperties(properties),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

// Property returns the named property and whether it is present and non-null.
func (e Entity) Property(name string) (any, bool) {
	value, ok := e.Properties[name]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

func (e *Entity) GetPropertiesAsJSONB() (json.RawMessage, error) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	return json.Marshal(e.Properties)
}

// FromJSONBProperties creates properties map from JSONB data
func FromJSONBProperties(propertiesJSON json.RawMessage) (map[string]any, error) {
	if len(propertiesJSON) == 0 {
		return map[string]any{}, nil
	}
	var properties map[string]any
	err := json.Unmarshal(propertiesJSON, &properties)
	if properties == nil {
		properties = map[string]any{}
	}
	return properties, err
}

// copyProperties creates a shallow copy of the properties map
func copyProperties(properties map[string]any) map[string]any {
	newProperties := make(map[string]any, len(properties))
	for k, v := range properties {
		newProperties[k] = v
	}
	return newProperties
}
