package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/querykit/internal/domain"
)

// Source fetches entities in bulk.
type Source interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error)
}

// EntityLoader batches entity lookups made within a short window into one
// GetByIDs call.
type EntityLoader struct {
	Loader *dataloader.Loader
}

func NewEntityLoader(repo Source) *EntityLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		ids := make([]uuid.UUID, 0, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: fmt.Errorf("invalid UUID %q: %w", k.String(), err)}
				continue
			}
			ids = append(ids, id)
		}

		entities, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			for i := range results {
				if results[i] == nil {
					results[i] = &dataloader.Result{Error: err}
				}
			}
			return results
		}

		entityMap := make(map[uuid.UUID]domain.Entity, len(entities))
		for _, e := range entities {
			entityMap[e.ID] = e
		}

		for i, k := range keys {
			if results[i] != nil {
				continue
			}
			id := uuid.MustParse(k.String())
			if e, ok := entityMap[id]; ok {
				results[i] = &dataloader.Result{Data: e}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &EntityLoader{Loader: loader}
}

// LoadMany resolves ids in one batch. Missing entities and malformed IDs are
// skipped; a store failure is returned.
func (l *EntityLoader) LoadMany(ctx context.Context, ids []string) ([]domain.Entity, error) {
	if len(ids) == 0 {
		return []domain.Entity{}, nil
	}

	values, errs := l.Loader.LoadMany(ctx, dataloader.NewKeysFromStrings(ids))()

	out := make([]domain.Entity, 0, len(values))
	for i, v := range values {
		if i < len(errs) && errs[i] != nil {
			if _, parseErr := uuid.Parse(ids[i]); parseErr != nil {
				continue
			}
			return nil, errs[i]
		}
		if e, ok := v.(domain.Entity); ok {
			out = append(out, e)
		}
	}
	return out, nil
}
