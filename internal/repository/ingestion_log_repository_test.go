package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/querykit/internal/domain"
)

func TestMemoryIngestionLogRepository(t *testing.T) {
	repo := NewMemoryIngestionLogRepository()
	ctx := context.Background()

	for i, file := range []string{"a.csv", "b.csv", "a.csv", "a.csv"} {
		row := i + 2
		require.NoError(t, repo.Record(ctx, domain.IngestionLogEntry{
			EntityType:   "Book",
			FileName:     file,
			RowNumber:    &row,
			ErrorMessage: "bad row",
		}))
	}
	require.NoError(t, repo.Record(ctx, domain.IngestionLogEntry{EntityType: "Author", FileName: "a.csv"}))

	all, err := repo.List(ctx, "Book", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 5, *all[0].RowNumber)
	assert.NotEqual(t, uuid.Nil, all[0].ID)
	assert.False(t, all[0].CreatedAt.IsZero())

	fromA, err := repo.List(ctx, "Book", "a.csv", 0, 0)
	require.NoError(t, err)
	require.Len(t, fromA, 3)

	window, err := repo.List(ctx, "Book", "a.csv", 1, 1)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, 4, *window[0].RowNumber)

	none, err := repo.List(ctx, "Magazine", "", 10, -3)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
