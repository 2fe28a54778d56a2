// Package query turns untrusted request parameters into validated filter
// queries and runs them against an entity store.
//
// Parsing is fail-open: unknown fields, unknown operators and malformed keys
// are skipped rather than reported, so a typo degrades to "no filter" instead
// of an error. Only store failures and unknown entity types are returned.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/rpattn/querykit/internal/catalog"
	"github.com/rpattn/querykit/internal/domain"
)

// Catalogs resolves the field whitelist for an entity type.
type Catalogs interface {
	Get(ctx context.Context, entityType string) (catalog.Catalog, error)
}

// Store executes validated queries.
type Store interface {
	Filter(ctx context.Context, q domain.Query) (domain.Collection, error)
	// SupportsUnaccent reports whether accent-insensitive matching is available.
	SupportsUnaccent() bool
}

// Observer receives per-query telemetry.
type Observer interface {
	ObserveQuery(entityType string, mode domain.CompositionMode, elapsed time.Duration, err error)
	ObserveDropped(entityType string, keys int)
}

// Builder validates parameters against an entity type's catalog and executes
// the resulting query.
type Builder struct {
	catalogs Catalogs
	store    Store
	logger   *slog.Logger
	observer Observer
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver attaches a telemetry observer.
func WithObserver(observer Observer) Option {
	return func(b *Builder) {
		b.observer = observer
	}
}

// NewBuilder creates a Builder.
func NewBuilder(catalogs Catalogs, store Store, opts ...Option) *Builder {
	b := &Builder{
		catalogs: catalogs,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Prepare resolves the catalog and parses params without executing anything.
func (b *Builder) Prepare(ctx context.Context, entityType string, params domain.Parameters, mode domain.CompositionMode) (domain.Query, error) {
	cat, err := b.catalogs.Get(ctx, entityType)
	if err != nil {
		return domain.Query{}, err
	}

	q, dropped := Parse(cat, params, mode)
	if len(dropped) > 0 {
		b.logger.Debug("ignored query parameters", "entity_type", entityType, "keys", dropped)
		if b.observer != nil {
			b.observer.ObserveDropped(entityType, len(dropped))
		}
	}
	return q, nil
}

// BuildAndExecute filters, excludes and sorts entities of entityType
// according to params, combining predicates with mode.
func (b *Builder) BuildAndExecute(ctx context.Context, entityType string, params domain.Parameters, mode domain.CompositionMode) (domain.Collection, error) {
	start := time.Now()

	result, err := b.execute(ctx, entityType, params, mode)
	if b.observer != nil {
		b.observer.ObserveQuery(entityType, mode, time.Since(start), err)
	}
	return result, err
}

func (b *Builder) execute(ctx context.Context, entityType string, params domain.Parameters, mode domain.CompositionMode) (domain.Collection, error) {
	q, err := b.Prepare(ctx, entityType, params, mode)
	if err != nil {
		return nil, err
	}

	result, err := b.store.Filter(ctx, q)
	if err != nil {
		b.logger.Error("query execution failed", "entity_type", entityType, "error", err)
		return nil, domain.NewExecutionError("filter "+entityType, err)
	}

	b.logger.Debug("query executed",
		"entity_type", entityType,
		"mode", q.Mode,
		"predicates", len(q.Predicates),
		"exclusion", q.Exclusion != nil,
		"sorted", q.Sort != nil,
	)
	return result, nil
}

// Lookup runs a free-text search for the q parameter across every
// non-relationship field of entityType, matching any of them.
func (b *Builder) Lookup(ctx context.Context, entityType string, params domain.Parameters) (domain.Collection, error) {
	start := time.Now()
	cat, err := b.catalogs.Get(ctx, entityType)
	if err != nil {
		if b.observer != nil {
			b.observer.ObserveQuery(entityType, domain.ModeAny, time.Since(start), err)
		}
		return nil, err
	}
	expanded := ExpandLookup(cat, params, b.store.SupportsUnaccent())
	return b.BuildAndExecute(ctx, entityType, expanded, domain.ModeAny)
}
