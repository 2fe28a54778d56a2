package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/querykit/internal/db"
	"github.com/rpattn/querykit/internal/domain"
)

const defaultIngestionLogLimit = 200

type ingestionLogRepository struct {
	conn db.DBTX
}

// NewIngestionLogRepository wires a repository backed by Postgres.
func NewIngestionLogRepository(conn db.DBTX) IngestionLogRepository {
	return &ingestionLogRepository{conn: conn}
}

func (r *ingestionLogRepository) Record(ctx context.Context, entry domain.IngestionLogEntry) error {
	var rowNumber pgtype.Int4
	if entry.RowNumber != nil {
		rowNumber = pgtype.Int4{Int32: int32(*entry.RowNumber), Valid: true}
	}

	_, err := r.conn.Exec(
		ctx,
		`INSERT INTO ingestion_logs (entity_type, file_name, row_number, error_message)
		 VALUES ($1, $2, $3, $4)`,
		entry.EntityType,
		entry.FileName,
		rowNumber,
		entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record ingestion log: %w", err)
	}
	return nil
}

func (r *ingestionLogRepository) List(ctx context.Context, entityType, fileName string, limit, offset int) ([]domain.IngestionLogEntry, error) {
	limit, offset = normalizeWindow(limit, offset)

	rows, err := r.conn.Query(
		ctx,
		`SELECT id, entity_type, file_name, row_number, error_message, created_at
		 FROM ingestion_logs
		 WHERE entity_type = $1
		   AND ($2::text = '' OR file_name = $2::text)
		 ORDER BY created_at DESC, id
		 LIMIT $3 OFFSET $4`,
		entityType,
		fileName,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.IngestionLogEntry{}
	for rows.Next() {
		var (
			entry     domain.IngestionLogEntry
			rowNumber pgtype.Int4
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.EntityType,
			&entry.FileName,
			&rowNumber,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", scanErr)
		}

		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate ingestion logs: %w", rowsErr)
	}

	return logs, nil
}

// MemoryIngestionLogRepository keeps ingestion logs in process memory.
type MemoryIngestionLogRepository struct {
	mu      sync.RWMutex
	entries []domain.IngestionLogEntry
}

// NewMemoryIngestionLogRepository creates an empty repository.
func NewMemoryIngestionLogRepository() *MemoryIngestionLogRepository {
	return &MemoryIngestionLogRepository{}
}

func (r *MemoryIngestionLogRepository) Record(ctx context.Context, entry domain.IngestionLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *MemoryIngestionLogRepository) List(ctx context.Context, entityType, fileName string, limit, offset int) ([]domain.IngestionLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset = normalizeWindow(limit, offset)

	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := []domain.IngestionLogEntry{}
	skipped := 0
	for i := len(r.entries) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := r.entries[i]
		if entry.EntityType != entityType || (fileName != "" && entry.FileName != fileName) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func normalizeWindow(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultIngestionLogLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
