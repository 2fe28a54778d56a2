package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rpattn/querykit/internal/domain"
)

// SeedDocument is the YAML layout accepted by Seed:
//
//	schemas:
//	  - name: Book
//	    fields: [{name: title, type: string}]
//	entities:
//	  - type: Book
//	    properties: {title: Dune}
type SeedDocument struct {
	Schemas  []domain.EntitySchema `yaml:"schemas"`
	Entities []SeedEntity          `yaml:"entities"`
}

// SeedEntity is one entity in a seed document.
type SeedEntity struct {
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties"`
}

// Seed registers the document's schemas, then stores its entities. Entities
// that fail validation are reported per position and skipped.
func (s *Service) Seed(ctx context.Context, r io.Reader) (Summary, error) {
	summary := Summary{Errors: []RowError{}}

	var doc SeedDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return summary, nil
		}
		return summary, fmt.Errorf("decode seed document: %w", err)
	}

	for _, schema := range doc.Schemas {
		if _, err := s.schemaRepo.Create(ctx, schema); err != nil {
			return summary, fmt.Errorf("register schema %s: %w", schema.Name, err)
		}
	}

	schemas := make(map[string]domain.EntitySchema)
	summary.TotalRows = len(doc.Entities)
	for i, item := range doc.Entities {
		schema, ok := schemas[item.Type]
		if !ok {
			loaded, err := s.schemaRepo.GetByName(ctx, item.Type)
			if err != nil {
				summary.reject(i+1, err)
				continue
			}
			schema = loaded
			schemas[item.Type] = schema
		}

		properties, err := normalizeProperties(item.Properties)
		if err != nil {
			summary.reject(i+1, err)
			continue
		}
		if err := s.store(ctx, schema, properties); err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.reject(i+1, err)
			continue
		}
		summary.ValidRows++
	}

	s.logger.Info("seed finished",
		"schemas", len(doc.Schemas),
		"total", summary.TotalRows,
		"valid", summary.ValidRows,
		"invalid", summary.InvalidRows,
	)
	return summary, nil
}

// SeedFile seeds from the YAML document at path.
func (s *Service) SeedFile(ctx context.Context, path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return s.Seed(ctx, f)
}

// normalizeProperties round-trips YAML values through JSON so they carry the
// same Go types a JSONB column returns.
func normalizeProperties(properties map[string]any) (map[string]any, error) {
	if len(properties) == 0 {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}
	return domain.FromJSONBProperties(raw)
}
