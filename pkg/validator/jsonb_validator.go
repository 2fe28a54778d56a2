package validator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/querykit/internal/domain"
)

// JSONBValidator handles validation of JSONB properties against field definitions
type JSONBValidator struct {
	// AllowUnknown accepts properties the schema does not declare.
	AllowUnknown bool
}

// NewJSONBValidator creates a new JSONB validator
func NewJSONBValidator() *JSONBValidator {
	return &JSONBValidator{}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors"`
}

// Err folds the result's errors into one error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	messages := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		messages[i] = e.Message
	}
	return fmt.Errorf("invalid properties: %s", strings.Join(messages, "; "))
}

// ValidateProperties validates entity properties against the schema's fields.
// Errors are reported in field-name order.
func (jv *JSONBValidator) ValidateProperties(properties map[string]any, schema domain.EntitySchema) ValidationResult {
	result := ValidationResult{
		IsValid: true,
		Errors:  []ValidationError{},
	}

	fields := schema.FieldsByName()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, fieldName := range names {
		fieldDef := fields[fieldName]
		value, exists := properties[fieldName]

		if fieldDef.Required && (!exists || value == nil) {
			result.IsValid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("required field '%s' is missing", fieldName),
			})
			continue
		}

		if !exists || value == nil {
			continue
		}

		if err := jv.validateFieldType(fieldName, value, fieldDef.Type); err != nil {
			result.IsValid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   fieldName,
				Message: err.Error(),
				Value:   value,
			})
		}
	}

	if jv.AllowUnknown {
		return result
	}

	extra := make([]string, 0)
	for propertyName := range properties {
		if _, exists := fields[propertyName]; !exists {
			extra = append(extra, propertyName)
		}
	}
	sort.Strings(extra)
	for _, propertyName := range extra {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{
			Field:   propertyName,
			Message: fmt.Sprintf("property '%s' is not defined in schema", propertyName),
			Value:   properties[propertyName],
		})
	}

	return result
}

// validateFieldType validates the type of a field value
func (jv *JSONBValidator) validateFieldType(fieldName string, value any, expectedType domain.FieldType) error {
	switch expectedType {
	case domain.FieldTypeString, domain.FieldTypeText:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s' must be a string, got %T", fieldName, value)
		}
	case domain.FieldTypeInteger:
		if !jv.isInteger(value) {
			return fmt.Errorf("field '%s' must be an integer, got %T", fieldName, value)
		}
	case domain.FieldTypeFloat:
		if !jv.isFloat(value) {
			return fmt.Errorf("field '%s' must be a float, got %T", fieldName, value)
		}
	case domain.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s' must be a boolean, got %T", fieldName, value)
		}
	case domain.FieldTypeTimestamp:
		switch v := value.(type) {
		case string:
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				if _, dateErr := time.Parse(time.DateOnly, v); dateErr != nil {
					return fmt.Errorf("field '%s' must be a valid timestamp (RFC3339): %v", fieldName, err)
				}
			}
		case time.Time:
		default:
			return fmt.Errorf("field '%s' must be a timestamp string, got %T", fieldName, value)
		}
	case domain.FieldTypeJSON:
		if _, err := json.Marshal(value); err != nil {
			return fmt.Errorf("field '%s' contains invalid JSON: %v", fieldName, err)
		}
	case domain.FieldTypeReference, domain.FieldTypeEntityReference:
		strVal, ok := value.(string)
		if !ok {
			return fmt.Errorf("field '%s' must be a reference string, got %T", fieldName, value)
		}
		if strings.TrimSpace(strVal) == "" {
			return fmt.Errorf("field '%s' must be a non-empty reference string", fieldName)
		}
	case domain.FieldTypeEntityID:
		strVal, ok := value.(string)
		if !ok {
			return fmt.Errorf("field '%s' must be an entity ID string, got %T", fieldName, value)
		}
		if _, err := uuid.Parse(strings.TrimSpace(strVal)); err != nil {
			return fmt.Errorf("field '%s' must be a valid UUID string: %v", fieldName, err)
		}
	case domain.FieldTypeEntityReferenceArray:
		values, ok := value.([]any)
		if !ok {
			strSlice, ok := value.([]string)
			if !ok {
				return fmt.Errorf("field '%s' must be an array of string references, got %T", fieldName, value)
			}
			values = make([]any, len(strSlice))
			for i, v := range strSlice {
				values[i] = v
			}
		}
		for _, item := range values {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("field '%s' reference values must be strings, got %T", fieldName, item)
			}
			if strings.TrimSpace(str) == "" {
				return fmt.Errorf("field '%s' contains an empty entity reference value", fieldName)
			}
		}
	default:
		return fmt.Errorf("unknown field type: %s", expectedType)
	}

	return nil
}

func (jv *JSONBValidator) isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == float64(int64(v))
	case string:
		_, err := strconv.Atoi(v)
		return err == nil
	default:
		return false
	}
}

func (jv *JSONBValidator) isFloat(value any) bool {
	switch v := value.(type) {
	case float32, float64:
		return true
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	default:
		return false
	}
}
