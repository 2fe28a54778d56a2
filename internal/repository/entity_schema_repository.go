package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/querykit/internal/db"
	"github.com/rpattn/querykit/internal/domain"
)

const schemaColumns = "id, name, description, fields, created_at, updated_at"

// entitySchemaRepository implements EntitySchemaRepository interface
type entitySchemaRepository struct {
	db db.DBTX
}

// NewEntitySchemaRepository creates a new entity schema repository
func NewEntitySchemaRepository(conn db.DBTX) EntitySchemaRepository {
	return &entitySchemaRepository{db: conn}
}

// Create inserts schema, or replaces the fields of the schema with the same name.
func (r *entitySchemaRepository) Create(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error) {
	fieldsJSON, err := schema.GetFieldsAsJSONB()
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to marshal fields: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO entity_schemas (name, description, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description, fields = EXCLUDED.fields, updated_at = now()
		RETURNING `+schemaColumns,
		schema.Name, schema.Description, fieldsJSON,
	)
	created, err := scanSchema(row)
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to create entity schema: %w", err)
	}
	return created, nil
}

// GetByName retrieves the entity schema registered under name
func (r *entitySchemaRepository) GetByName(ctx context.Context, name string) (domain.EntitySchema, error) {
	row := r.db.QueryRow(ctx, "SELECT "+schemaColumns+" FROM entity_schemas WHERE name = $1", name)
	schema, err := scanSchema(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntitySchema{}, fmt.Errorf("%w: %q", domain.ErrEntityTypeNotFound, name)
		}
		return domain.EntitySchema{}, fmt.Errorf("failed to get entity schema by name: %w", err)
	}
	return schema, nil
}

// List retrieves all schemas ordered by name
func (r *entitySchemaRepository) List(ctx context.Context) ([]domain.EntitySchema, error) {
	rows, err := r.db.Query(ctx, "SELECT "+schemaColumns+" FROM entity_schemas ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list entity schemas: %w", err)
	}
	defer rows.Close()

	result := make([]domain.EntitySchema, 0)
	for rows.Next() {
		schema, err := scanSchema(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to list entity schemas: %w", err)
		}
		result = append(result, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list entity schemas: %w", err)
	}
	return result, nil
}

func scanSchema(row pgx.Row) (domain.EntitySchema, error) {
	var (
		schema domain.EntitySchema
		fields []byte
	)
	if err := row.Scan(&schema.ID, &schema.Name, &schema.Description, &fields, &schema.CreatedAt, &schema.UpdatedAt); err != nil {
		return domain.EntitySchema{}, err
	}
	decoded, err := domain.FromJSONBFields(fields)
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	schema.Fields = decoded
	return schema, nil
}
