package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/querykit/internal/domain"
)

func bookSchema() domain.EntitySchema {
	return domain.NewEntitySchema("Book", "", []domain.FieldDefinition{
		{Name: "title", Type: domain.FieldTypeText},
		{Name: "year", Type: domain.FieldTypeInteger},
		{Name: "isbn", Type: domain.FieldTypeString},
		{Name: "authors", Type: domain.FieldTypeEntityReferenceArray, ReferenceEntityType: "Author"},
		{Name: "publisher", Type: domain.FieldTypeReference, ReferenceEntityType: "Publisher"},
		{Name: "series_code", Type: domain.FieldTypeReference},
		{Name: "title", Type: domain.FieldTypeInteger},
		{Name: ""},
	})
}

func fieldNames(fields []domain.FieldDefinition) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

func TestResolve(t *testing.T) {
	cat := Resolve(bookSchema())

	assert.Equal(t, "Book", cat.EntityType())
	assert.Equal(t, []string{"title", "year", "isbn", "authors", "publisher", "series_code"}, cat.Names())
	assert.Equal(t, 6, cat.Len())

	assert.Equal(t, []string{"title", "isbn", "series_code"}, fieldNames(cat.Text()))
	assert.Equal(t, []string{"year"}, fieldNames(cat.Other()))
	assert.Equal(t, []string{"title", "isbn", "series_code", "year"}, fieldNames(cat.Searchable()))
	assert.Equal(t, []string{"authors", "publisher"}, fieldNames(cat.Relationships()))

	title, ok := cat.Field("title")
	require.True(t, ok)
	assert.Equal(t, domain.FieldTypeText, title.Type)

	assert.True(t, cat.Has("authors"))
	assert.False(t, cat.Has("colour"))
}

func TestResolveEmptySchema(t *testing.T) {
	cat := Resolve(domain.NewEntitySchema("Empty", "", nil))
	assert.Zero(t, cat.Len())
	assert.Empty(t, cat.Searchable())
}

func TestCatalogIsImmutable(t *testing.T) {
	cat := Resolve(bookSchema())
	names := cat.Names()
	names[0] = "changed"
	text := cat.Text()
	text[0].Name = "changed"

	assert.Equal(t, "title", cat.Names()[0])
	assert.Equal(t, "title", cat.Text()[0].Name)
}

type countingSource struct {
	calls  atomic.Int32
	delay  time.Duration
	err    error
	schema domain.EntitySchema
}

func (s *countingSource) GetByName(_ context.Context, name string) (domain.EntitySchema, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return domain.EntitySchema{}, s.err
	}
	if name != s.schema.Name {
		return domain.EntitySchema{}, domain.ErrEntityTypeNotFound
	}
	return s.schema, nil
}

func TestCacheSharesConcurrentLoads(t *testing.T) {
	source := &countingSource{schema: bookSchema(), delay: 20 * time.Millisecond}
	cache, err := NewCache(source)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cat, err := cache.Get(context.Background(), "Book")
			assert.NoError(t, err)
			assert.Equal(t, 6, cat.Len())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), source.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCacheInvalidate(t *testing.T) {
	source := &countingSource{schema: bookSchema()}
	cache, err := NewCache(source, WithSize(4))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cache.Get(ctx, "Book")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "Book")
	require.NoError(t, err)
	assert.Equal(t, int32(1), source.calls.Load())

	cache.Invalidate("Book")
	_, err = cache.Get(ctx, "Book")
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestCacheErrors(t *testing.T) {
	ctx := context.Background()

	source := &countingSource{schema: bookSchema()}
	cache, err := NewCache(source)
	require.NoError(t, err)

	_, err = cache.Get(ctx, "Magazine")
	assert.ErrorIs(t, err, domain.ErrEntityTypeNotFound)
	_, err = cache.Get(ctx, "Magazine")
	assert.ErrorIs(t, err, domain.ErrEntityTypeNotFound)
	assert.Equal(t, int32(2), source.calls.Load(), "misses are not cached")

	_, err = cache.Get(ctx, "")
	assert.ErrorIs(t, err, domain.ErrEntityTypeNotFound)

	boom := errors.New("connection refused")
	failing, err := NewCache(&countingSource{err: boom})
	require.NoError(t, err)
	_, err = failing.Get(ctx, "Book")
	assert.ErrorIs(t, err, domain.ErrQueryExecution)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrEntityTypeNotFound)
}

func TestCacheHonoursContext(t *testing.T) {
	source := &countingSource{schema: bookSchema(), delay: 200 * time.Millisecond}
	cache, err := NewCache(source)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = cache.Get(ctx, "Book")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrQueryExecution)
}

// gatedSource blocks every lookup until release is closed, failing early if
// the lookup's own context ends first.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	schema  domain.EntitySchema
}

func (s *gatedSource) GetByName(ctx context.Context, _ string) (domain.EntitySchema, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-ctx.Done():
		return domain.EntitySchema{}, ctx.Err()
	case <-s.release:
		return s.schema, nil
	}
}

func TestCacheCancelledCallerDoesNotFailOthers(t *testing.T) {
	source := &gatedSource{
		started: make(chan struct{}),
		release: make(chan struct{}),
		schema:  bookSchema(),
	}
	cache, err := NewCache(source)
	require.NoError(t, err)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctxA, "Book")
		errA <- err
	}()
	<-source.started

	type result struct {
		cat Catalog
		err error
	}
	resB := make(chan result, 1)
	go func() {
		cat, err := cache.Get(context.Background(), "Book")
		resB <- result{cat, err}
	}()

	// Let the second caller join the in-flight load before the first leaves.
	time.Sleep(20 * time.Millisecond)
	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(source.release)
	got := <-resB
	require.NoError(t, got.err)
	assert.Equal(t, 6, got.cat.Len())
	assert.Equal(t, 1, cache.Len())
}
