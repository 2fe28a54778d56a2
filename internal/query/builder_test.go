package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/querykit/internal/catalog"
	"github.com/rpattn/querykit/internal/domain"
	"github.com/rpattn/querykit/internal/repository"
)

type recordingObserver struct {
	mu      sync.Mutex
	queries []error
	modes   []domain.CompositionMode
	dropped int
}

func (o *recordingObserver) ObserveQuery(_ string, mode domain.CompositionMode, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queries = append(o.queries, err)
	o.modes = append(o.modes, mode)
}

func (o *recordingObserver) ObserveDropped(_ string, keys int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped += keys
}

type failingStore struct{ err error }

func (s failingStore) Filter(context.Context, domain.Query) (domain.Collection, error) {
	return nil, s.err
}

func (failingStore) SupportsUnaccent() bool { return false }

func newTestBuilder(t *testing.T, store Store, opts ...Option) *Builder {
	t.Helper()
	schemas := repository.NewStaticSchemaRepository(domain.NewEntitySchema("Book", "", []domain.FieldDefinition{
		{Name: "title", Type: domain.FieldTypeText},
		{Name: "year", Type: domain.FieldTypeInteger},
		{Name: "authors", Type: domain.FieldTypeEntityReferenceArray, ReferenceEntityType: "Author"},
	}))
	cache, err := catalog.NewCache(schemas)
	require.NoError(t, err)
	return NewBuilder(cache, store, opts...)
}

func seededStore(t *testing.T) *repository.MemoryEntityRepository {
	t.Helper()
	repo := repository.NewMemoryEntityRepository()
	for _, props := range []map[string]any{
		{"title": "Dune", "year": 1965},
		{"title": "The Hobbit", "year": 1937, "author": "J.R.R. Tolkien"},
		{"title": "Tolkien: A Biography", "year": 1977},
		{"title": "Ubik", "year": 1969},
	} {
		_, err := repo.Create(context.Background(), domain.NewEntity("Book", props))
		require.NoError(t, err)
	}
	return repo
}

func titles(t *testing.T, coll domain.Collection) []string {
	t.Helper()
	items, err := coll.Slice(context.Background(), 0, 0)
	require.NoError(t, err)
	out := make([]string, len(items))
	for i, e := range items {
		out[i], _ = e.Properties["title"].(string)
	}
	return out
}

func TestBuildAndExecuteComposition(t *testing.T) {
	observer := &recordingObserver{}
	b := newTestBuilder(t, seededStore(t), WithObserver(observer))
	ctx := context.Background()

	params := domain.Parameters{
		"year__gt":         {"1960"},
		"title__icontains": {"u"},
		"sort":             {"year"},
		"order":            {"desc"},
	}

	all, err := b.BuildAndExecute(ctx, "Book", params, domain.ModeAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ubik", "Dune"}, titles(t, all))

	anyOf, err := b.BuildAndExecute(ctx, "Book", params, domain.ModeAny)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tolkien: A Biography", "Ubik", "Dune"}, titles(t, anyOf))

	assert.Equal(t, []error{nil, nil}, observer.queries)
	assert.Equal(t, []domain.CompositionMode{domain.ModeAll, domain.ModeAny}, observer.modes)
}

func TestBuildAndExecuteIsFailOpen(t *testing.T) {
	observer := &recordingObserver{}
	b := newTestBuilder(t, seededStore(t), WithObserver(observer))

	coll, err := b.BuildAndExecute(context.Background(), "Book", domain.Parameters{
		"colour":       {"red"},
		"year__bogus":  {"1"},
		"title__regex": {"("},
	}, domain.ModeAll)
	require.NoError(t, err)

	count, err := coll.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, 3, observer.dropped)
}

func TestBuildAndExecuteExclusion(t *testing.T) {
	b := newTestBuilder(t, seededStore(t))

	coll, err := b.BuildAndExecute(context.Background(), "Book", domain.Parameters{
		"exclude_property": {"year"},
		"exclude_value":    {"1965", "1969"},
	}, domain.ModeAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"The Hobbit", "Tolkien: A Biography"}, titles(t, coll))
}

func TestBuildAndExecuteUncoercibleValueMatchesNothing(t *testing.T) {
	b := newTestBuilder(t, seededStore(t))

	coll, err := b.BuildAndExecute(context.Background(), "Book", domain.Parameters{"year__gt": {"recent"}}, domain.ModeAll)
	require.NoError(t, err)
	assert.Empty(t, titles(t, coll))
}

func TestBuildAndExecuteErrors(t *testing.T) {
	ctx := context.Background()

	observer := &recordingObserver{}
	b := newTestBuilder(t, seededStore(t), WithObserver(observer))
	_, err := b.BuildAndExecute(ctx, "Magazine", nil, domain.ModeAll)
	assert.ErrorIs(t, err, domain.ErrEntityTypeNotFound)
	require.Len(t, observer.queries, 1)
	assert.Error(t, observer.queries[0])

	boom := errors.New("connection reset")
	b = newTestBuilder(t, failingStore{err: boom})
	_, err = b.BuildAndExecute(ctx, "Book", domain.Parameters{"title": {"Dune"}}, domain.ModeAll)
	assert.ErrorIs(t, err, domain.ErrQueryExecution)
	assert.ErrorIs(t, err, boom)
}

func TestPrepare(t *testing.T) {
	b := newTestBuilder(t, seededStore(t))

	q, err := b.Prepare(context.Background(), "Book", domain.Parameters{"year__lte": {"1950"}}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeAll, q.Mode)
	require.Len(t, q.Predicates, 1)
	assert.Equal(t, "year__lte", q.Predicates[0].Key())
}

func TestLookup(t *testing.T) {
	b := newTestBuilder(t, seededStore(t))
	ctx := context.Background()

	coll, err := b.Lookup(ctx, "Book", domain.Parameters{"q": {"tolkien"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tolkien: A Biography"}, titles(t, coll))

	coll, err = b.Lookup(ctx, "Book", domain.Parameters{"q": {"1969"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ubik"}, titles(t, coll))

	coll, err = b.Lookup(ctx, "Book", domain.Parameters{"q": {""}, "sort": {"year"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"The Hobbit", "Dune", "Ubik", "Tolkien: A Biography"}, titles(t, coll))

	_, err = b.Lookup(ctx, "Magazine", domain.Parameters{"q": {"x"}})
	assert.ErrorIs(t, err, domain.ErrEntityTypeNotFound)
}

func TestLookupObservesCatalogFailure(t *testing.T) {
	observer := &recordingObserver{}
	b := newTestBuilder(t, seededStore(t), WithObserver(observer))

	_, err := b.Lookup(context.Background(), "Magazine", domain.Parameters{"q": {"x"}})
	require.ErrorIs(t, err, domain.ErrEntityTypeNotFound)

	require.Len(t, observer.queries, 1)
	assert.ErrorIs(t, observer.queries[0], domain.ErrEntityTypeNotFound)
	assert.Equal(t, []domain.CompositionMode{domain.ModeAny}, observer.modes)

	_, err = b.Lookup(context.Background(), "Book", domain.Parameters{"q": {"dune"}})
	require.NoError(t, err)
	assert.Len(t, observer.queries, 2, "a successful lookup is observed once")
}

func TestExclusionIsIdempotent(t *testing.T) {
	b := newTestBuilder(t, seededStore(t))
	ctx := context.Background()

	run := func(params domain.Parameters) []string {
		coll, err := b.BuildAndExecute(ctx, "Book", params, domain.ModeAll)
		require.NoError(t, err)
		return titles(t, coll)
	}

	once := run(domain.Parameters{"exclude_property": {"year"}, "exclude_value": {"1965", "1969"}})
	repeated := run(domain.Parameters{"exclude_property": {"year"}, "exclude_value": {"1965", "1965", "1969", "1969", "1965"}})
	assert.Equal(t, once, repeated)
	assert.Equal(t, []string{"The Hobbit", "Tolkien: A Biography"}, once)

	// Exclusion over a result that already omits the values is a no-op.
	again := run(domain.Parameters{
		"year__in":         {"1937,1977"},
		"exclude_property": {"year"},
		"exclude_value":    {"1965", "1969"},
	})
	assert.Equal(t, once, again)
}

func TestModesAreUnionAndIntersection(t *testing.T) {
	b := newTestBuilder(t, seededStore(t))
	ctx := context.Background()

	predicates := domain.Parameters{
		"year__gt":          {"1960"},
		"title__icontains":  {"u"},
		"year__lt":          {"1970"},
		"title__startswith": {"T"},
	}

	run := func(params domain.Parameters, mode domain.CompositionMode) map[string]bool {
		coll, err := b.BuildAndExecute(ctx, "Book", params, mode)
		require.NoError(t, err)
		set := map[string]bool{}
		for _, title := range titles(t, coll) {
			set[title] = true
		}
		return set
	}

	for _, keys := range [][]string{
		{"year__gt", "title__icontains"},
		{"year__gt", "year__lt"},
		{"title__icontains", "title__startswith"},
		{"year__gt", "title__icontains", "year__lt", "title__startswith"},
	} {
		union := map[string]bool{}
		var intersection map[string]bool
		params := domain.Parameters{}
		for _, key := range keys {
			params[key] = predicates[key]
			single := run(domain.Parameters{key: predicates[key]}, domain.ModeAll)
			next := map[string]bool{}
			for title := range single {
				union[title] = true
				if intersection == nil || intersection[title] {
					next[title] = true
				}
			}
			intersection = next
		}

		assert.Equal(t, union, run(params, domain.ModeAny), "ANY %v", keys)
		assert.Equal(t, intersection, run(params, domain.ModeAll), "ALL %v", keys)
	}
}
