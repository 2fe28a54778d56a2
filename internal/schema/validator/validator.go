package validator

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/rpattn/querykit/internal/domain"
)

var knownTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeString:               {},
	domain.FieldTypeText:                 {},
	domain.FieldTypeInteger:              {},
	domain.FieldTypeFloat:                {},
	domain.FieldTypeBoolean:              {},
	domain.FieldTypeTimestamp:            {},
	domain.FieldTypeJSON:                 {},
	domain.FieldTypeReference:            {},
	domain.FieldTypeEntityReference:      {},
	domain.FieldTypeEntityReferenceArray: {},
	domain.FieldTypeEntityID:             {},
}

var referenceCapableTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeReference:            {},
	domain.FieldTypeEntityReference:      {},
	domain.FieldTypeEntityReferenceArray: {},
}

// ValidateFields checks a schema's field definitions: names must be present,
// unique and free of the "__" lookup separator, types must be known, and
// only reference-capable types may name a referenceEntityType. Every problem
// is reported.
func ValidateFields(fields []domain.FieldDefinition) error {
	var result *multierror.Error
	seen := make(map[string]struct{}, len(fields))

	for i, field := range fields {
		name := strings.TrimSpace(field.Name)
		switch {
		case name == "":
			result = multierror.Append(result, fmt.Errorf("field %d has no name", i))
			continue
		case strings.Contains(name, domain.LookupSeparator):
			result = multierror.Append(result, fmt.Errorf("field %s must not contain %q", name, domain.LookupSeparator))
		}

		if _, dup := seen[name]; dup {
			result = multierror.Append(result, fmt.Errorf("field %s is defined more than once", name))
		}
		seen[name] = struct{}{}

		if _, ok := knownTypes[field.Type]; !ok {
			result = multierror.Append(result, fmt.Errorf("field %s has unknown type %q", name, field.Type))
		}

		if _, ok := referenceCapableTypes[field.Type]; strings.TrimSpace(field.ReferenceEntityType) != "" && !ok {
			result = multierror.Append(result, fmt.Errorf("field %s cannot declare referenceEntityType because type %s does not support references", name, field.Type))
		}
	}

	return result.ErrorOrNil()
}

// ValidateSchema checks the schema name and its fields.
func ValidateSchema(schema domain.EntitySchema) error {
	var result *multierror.Error
	if strings.TrimSpace(schema.Name) == "" {
		result = multierror.Append(result, fmt.Errorf("schema name is required"))
	}
	if err := ValidateFields(schema.Fields); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("schema %q: %w", schema.Name, err)
	}
	return nil
}
