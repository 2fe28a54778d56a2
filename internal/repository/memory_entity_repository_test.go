package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/querykit/internal/domain"
)

func seedBooks(t *testing.T) (*MemoryEntityRepository, []domain.Entity) {
	t.Helper()
	repo := NewMemoryEntityRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var stored []domain.Entity
	for i, props := range []map[string]any{
		{"title": "Dune", "year": float64(1965)},
		{"title": "Emma", "year": float64(1815)},
		{"title": "Untitled"},
		{"title": "Ubik", "year": float64(1969)},
	} {
		e, err := repo.Create(context.Background(), domain.Entity{
			EntityType: "Book",
			Properties: props,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		stored = append(stored, e)
	}
	_, err := repo.Create(context.Background(), domain.NewEntity("Author", map[string]any{"name": "Frank Herbert"}))
	require.NoError(t, err)
	return repo, stored
}

func bookTitles(t *testing.T, coll domain.Collection) []string {
	t.Helper()
	items, err := coll.Slice(context.Background(), 0, 0)
	require.NoError(t, err)
	out := make([]string, len(items))
	for i, e := range items {
		out[i], _ = e.Properties["title"].(string)
	}
	return out
}

func TestMemoryCreateAndGet(t *testing.T) {
	repo, books := seedBooks(t)
	ctx := context.Background()

	assert.Equal(t, 5, repo.Len())
	assert.NotEqual(t, uuid.Nil, books[0].ID)

	got, err := repo.GetByID(ctx, books[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Emma", got.Properties["title"])

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	many, err := repo.GetByIDs(ctx, []uuid.UUID{books[3].ID, uuid.New(), books[0].ID})
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, books[3].ID, many[0].ID)
	assert.Equal(t, books[0].ID, many[1].ID)

	updated := books[0]
	updated.Properties = map[string]any{"title": "Dune Messiah"}
	_, err = repo.Create(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, 5, repo.Len())
	got, err = repo.GetByID(ctx, books[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Properties["title"])

	_, err = repo.Create(ctx, domain.Entity{})
	assert.Error(t, err)
}

func TestMemoryFilter(t *testing.T) {
	repo, _ := seedBooks(t)
	ctx := context.Background()

	coll, err := repo.Filter(ctx, domain.Query{EntityType: "Book", Mode: domain.ModeAll})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune", "Emma", "Untitled", "Ubik"}, bookTitles(t, coll))

	coll, err = repo.Filter(ctx, domain.Query{
		EntityType: "Book",
		Mode:       domain.ModeAll,
		Predicates: []domain.Predicate{pred("year", domain.FieldTypeInteger, domain.OpGt, "1900")},
		Sort:       &domain.SortSpec{Field: "year", FieldType: domain.FieldTypeInteger, Direction: domain.SortDirectionDesc},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ubik", "Dune"}, bookTitles(t, coll))

	count, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	coll, err = repo.Filter(ctx, domain.Query{EntityType: "Magazine", Mode: domain.ModeAll})
	require.NoError(t, err)
	assert.Empty(t, bookTitles(t, coll))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = repo.Filter(cancelled, domain.Query{EntityType: "Book"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSortEntitiesPutsMissingLast(t *testing.T) {
	repo, _ := seedBooks(t)
	ctx := context.Background()

	for _, dir := range []domain.SortDirection{domain.SortDirectionAsc, domain.SortDirectionDesc} {
		coll, err := repo.Filter(ctx, domain.Query{
			EntityType: "Book",
			Mode:       domain.ModeAll,
			Sort:       &domain.SortSpec{Field: "year", FieldType: domain.FieldTypeInteger, Direction: dir},
		})
		require.NoError(t, err)
		titles := bookTitles(t, coll)
		assert.Equal(t, "Untitled", titles[len(titles)-1], dir)
	}
}

func TestSortEntitiesIsStable(t *testing.T) {
	entities := []domain.Entity{
		domain.NewEntity("Book", map[string]any{"title": "b", "n": 1}),
		domain.NewEntity("Book", map[string]any{"title": "a", "n": 1}),
		domain.NewEntity("Book", map[string]any{"title": "c", "n": 0}),
	}
	SortEntities(entities, domain.SortSpec{Field: "n", FieldType: domain.FieldTypeInteger})

	assert.Equal(t, "c", entities[0].Properties["title"])
	assert.Equal(t, "b", entities[1].Properties["title"])
	assert.Equal(t, "a", entities[2].Properties["title"])
}

func TestMemoryConcurrentAccess(t *testing.T) {
	repo := NewMemoryEntityRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := repo.Create(ctx, domain.NewEntity("Book", map[string]any{"title": "x"}))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := repo.Filter(ctx, domain.Query{EntityType: "Book", Mode: domain.ModeAll})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, repo.Len())
}
