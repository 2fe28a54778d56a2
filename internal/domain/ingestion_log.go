package domain

import (
	"time"

	"github.com/google/uuid"
)

// IngestionLogEntry records one row rejected while importing a file.
type IngestionLogEntry struct {
	ID           uuid.UUID `json:"id"`
	EntityType   string    `json:"entity_type"`
	FileName     string    `json:"file_name"`
	RowNumber    *int      `json:"row_number,omitempty"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
