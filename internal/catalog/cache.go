package catalog

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/rpattn/querykit/internal/domain"
)

// DefaultCacheSize bounds the number of entity types kept in memory.
const DefaultCacheSize = 256

// SchemaSource lists the fields of an entity type.
type SchemaSource interface {
	GetByName(ctx context.Context, name string) (domain.EntitySchema, error)
}

// Cache resolves catalogs on first access and keeps them keyed by entity
// type. Concurrent misses for the same type share one schema lookup.
type Cache struct {
	source  SchemaSource
	entries *lru.Cache[string, Catalog]
	group   singleflight.Group
	logger  *slog.Logger
}

// Option configures a Cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	size   int
	logger *slog.Logger
}

// WithSize sets the maximum number of cached entity types.
func WithSize(size int) Option {
	return func(o *cacheOptions) {
		if size > 0 {
			o.size = size
		}
	}
}

// WithLogger sets the logger used for cache fills.
func WithLogger(logger *slog.Logger) Option {
	return func(o *cacheOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewCache creates a catalog cache over source.
func NewCache(source SchemaSource, opts ...Option) (*Cache, error) {
	o := cacheOptions{size: DefaultCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := lru.New[string, Catalog](o.size)
	if err != nil {
		return nil, fmt.Errorf("create catalog cache: %w", err)
	}

	return &Cache{source: source, entries: entries, logger: o.logger}, nil
}

// Get returns the catalog for entityType, loading it from the schema source
// on first access. Unknown entity types yield domain.ErrEntityTypeNotFound;
// any other source failure is reported as domain.ErrQueryExecution.
func (c *Cache) Get(ctx context.Context, entityType string) (Catalog, error) {
	if entityType == "" {
		return Catalog{}, domain.ErrEntityTypeNotFound
	}
	if cat, ok := c.entries.Get(entityType); ok {
		return cat, nil
	}

	// The shared load outlives any one caller; each caller still stops
	// waiting when its own context ends.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(entityType, func() (any, error) {
		if cat, ok := c.entries.Get(entityType); ok {
			return cat, nil
		}
		schema, err := c.source.GetByName(loadCtx, entityType)
		if err != nil {
			return Catalog{}, domain.NewExecutionError("load schema "+entityType, err)
		}
		cat := Resolve(schema)
		c.entries.Add(entityType, cat)
		c.logger.Debug("catalog resolved", "entity_type", entityType, "fields", cat.Len())
		return cat, nil
	})

	select {
	case <-ctx.Done():
		return Catalog{}, domain.NewExecutionError("load schema "+entityType, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Catalog{}, res.Err
		}
		return res.Val.(Catalog), nil
	}
}

// Invalidate drops the cached catalog for entityType.
func (c *Cache) Invalidate(entityType string) {
	c.entries.Remove(entityType)
}

// Len is the number of cached catalogs.
func (c *Cache) Len() int {
	return c.entries.Len()
}
