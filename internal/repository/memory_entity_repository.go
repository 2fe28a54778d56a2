package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rpattn/querykit/internal/domain"
)

// MemoryEntityRepository keeps entities in process. Entities are returned in
// insertion order unless a query sorts them.
type MemoryEntityRepository struct {
	mu       sync.RWMutex
	entities []domain.Entity
	index    map[uuid.UUID]int
}

// NewMemoryEntityRepository creates an empty in-memory entity store.
func NewMemoryEntityRepository() *MemoryEntityRepository {
	return &MemoryEntityRepository{
		index: make(map[uuid.UUID]int),
	}
}

var _ EntityRepository = (*MemoryEntityRepository)(nil)

// Create stores entity, replacing any entity with the same ID in place.
func (r *MemoryEntityRepository) Create(_ context.Context, entity domain.Entity) (domain.Entity, error) {
	if entity.EntityType == "" {
		return domain.Entity{}, fmt.Errorf("entity type is required")
	}
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	stored := entity.WithProperties(entity.Properties)
	if !entity.CreatedAt.IsZero() {
		stored.CreatedAt = entity.CreatedAt
	} else {
		stored.CreatedAt = stored.UpdatedAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[stored.ID]; ok {
		r.entities[i] = stored
		return stored, nil
	}
	r.index[stored.ID] = len(r.entities)
	r.entities = append(r.entities, stored)
	return stored, nil
}

// GetByID retrieves an entity by ID
func (r *MemoryEntityRepository) GetByID(_ context.Context, id uuid.UUID) (domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return domain.Entity{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.entities[i], nil
}

// GetByIDs returns the entities that exist, in the order their IDs were given.
func (r *MemoryEntityRepository) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Entity, 0, len(ids))
	for _, id := range ids {
		if i, ok := r.index[id]; ok {
			out = append(out, r.entities[i])
		}
	}
	return out, nil
}

// Filter evaluates q against a snapshot of the store.
func (r *MemoryEntityRepository) Filter(ctx context.Context, q domain.Query) (domain.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	matched := make(domain.EntityList, 0, len(r.entities))
	for i := range r.entities {
		entity := &r.entities[i]
		if entity.EntityType != q.EntityType {
			continue
		}
		if MatchesQuery(entity, q) {
			matched = append(matched, *entity)
		}
	}
	r.mu.RUnlock()

	if q.Sort != nil {
		SortEntities(matched, *q.Sort)
	}
	return matched, nil
}

// SupportsUnaccent is always true; accents are folded in Go.
func (r *MemoryEntityRepository) SupportsUnaccent() bool {
	return true
}

// Len reports how many entities are stored.
func (r *MemoryEntityRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// SortEntities orders entities in place by s. Missing or unreadable values
// sort last in both directions and ties keep their existing order.
func SortEntities(entities []domain.Entity, s domain.SortSpec) {
	keys := make([]any, len(entities))
	for i := range entities {
		raw, ok := entities[i].Property(s.Field)
		if !ok {
			continue
		}
		if v, ok := domain.PropertyValue(s.FieldType, raw); ok {
			keys[i] = v
		}
	}

	order := make([]int, len(entities))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		left, right := keys[order[a]], keys[order[b]]
		switch {
		case left == nil:
			return false
		case right == nil:
			return true
		}
		c := domain.CompareValues(left, right)
		if s.Direction == domain.SortDirectionDesc {
			return c > 0
		}
		return c < 0
	})

	sorted := make([]domain.Entity, len(entities))
	for i, idx := range order {
		sorted[i] = entities[idx]
	}
	copy(entities, sorted)
}
