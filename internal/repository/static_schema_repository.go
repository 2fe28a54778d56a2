package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rpattn/querykit/internal/domain"
	"github.com/rpattn/querykit/internal/schema/validator"
)

// StaticSchemaRepository serves entity schemas held in memory, typically
// loaded from a YAML file at startup.
type StaticSchemaRepository struct {
	mu      sync.RWMutex
	schemas map[string]domain.EntitySchema
}

var _ EntitySchemaRepository = (*StaticSchemaRepository)(nil)

// NewStaticSchemaRepository creates a repository holding schemas.
func NewStaticSchemaRepository(schemas ...domain.EntitySchema) *StaticSchemaRepository {
	r := &StaticSchemaRepository{schemas: make(map[string]domain.EntitySchema, len(schemas))}
	for _, s := range schemas {
		_, _ = r.Create(context.Background(), s)
	}
	return r
}

// Create registers schema, replacing any schema of the same name.
func (r *StaticSchemaRepository) Create(_ context.Context, schema domain.EntitySchema) (domain.EntitySchema, error) {
	name := strings.TrimSpace(schema.Name)
	if name == "" {
		return domain.EntitySchema{}, fmt.Errorf("schema name is required")
	}
	stored := domain.NewEntitySchema(name, schema.Description, schema.Fields)
	if schema.ID != uuid.Nil {
		stored.ID = schema.ID
	}

	r.mu.Lock()
	r.schemas[name] = stored
	r.mu.Unlock()
	return stored, nil
}

// GetByName retrieves the entity schema registered under name.
func (r *StaticSchemaRepository) GetByName(_ context.Context, name string) (domain.EntitySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, ok := r.schemas[name]
	if !ok {
		return domain.EntitySchema{}, fmt.Errorf("%w: %q", domain.ErrEntityTypeNotFound, name)
	}
	return schema, nil
}

// List returns every schema ordered by name.
func (r *StaticSchemaRepository) List(_ context.Context) ([]domain.EntitySchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.EntitySchema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type schemaDocument struct {
	Schemas []domain.EntitySchema `yaml:"schemas"`
}

// DecodeSchemas reads a YAML document of the form
//
//	schemas:
//	  - name: Book
//	    fields:
//	      - {name: title, type: string}
func DecodeSchemas(r io.Reader) ([]domain.EntitySchema, error) {
	var doc schemaDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode schemas: %w", err)
	}
	var invalid error
	for _, s := range doc.Schemas {
		invalid = errors.Join(invalid, validator.ValidateSchema(s))
	}
	if invalid != nil {
		return nil, invalid
	}
	return doc.Schemas, nil
}

// LoadSchemaFile decodes the schemas stored at path.
func LoadSchemaFile(path string) ([]domain.EntitySchema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema file: %w", err)
	}
	defer f.Close()
	return DecodeSchemas(f)
}
