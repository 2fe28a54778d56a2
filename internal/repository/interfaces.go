package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rpattn/querykit/internal/domain"
)

// ErrNotFound is returned when a single entity lookup finds nothing.
var ErrNotFound = errors.New("entity not found")

// EntitySchemaRepository defines the interface for entity schema operations
type EntitySchemaRepository interface {
	Create(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error)
	// GetByName returns domain.ErrEntityTypeNotFound when no schema exists.
	GetByName(ctx context.Context, name string) (domain.EntitySchema, error)
	List(ctx context.Context) ([]domain.EntitySchema, error)
}

// EntityRepository defines the interface for entity operations
type EntityRepository interface {
	Create(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error)

	// Filter returns the entities selected by a validated query, excluded and
	// ordered as it specifies. Without a sort the store's default order
	// (creation time, then id) applies.
	Filter(ctx context.Context, q domain.Query) (domain.Collection, error)

	// SupportsUnaccent reports whether accent-insensitive matching is available.
	SupportsUnaccent() bool
}

// IngestionLogRepository keeps the rows rejected by imports.
type IngestionLogRepository interface {
	Record(ctx context.Context, entry domain.IngestionLogEntry) error
	// List returns entries for entityType, newest first. An empty fileName
	// matches every file.
	List(ctx context.Context, entityType, fileName string, limit, offset int) ([]domain.IngestionLogEntry, error)
}
