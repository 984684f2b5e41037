// Package evidence stores uploaded evidence files for a case. Files are
// immutable once created; their bytes live in blob storage and their
// metadata in the evidence_files table.
package evidence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// File is an uploaded evidence file.
type File struct {
	ID           uuid.UUID `json:"id"`
	CaseID       uuid.UUID `json:"case_id"`
	MimeType     string    `json:"mime_type"`
	StorageKey   string    `json:"storage_key"`
	OriginalName string    `json:"original_name"`
	SizeBytes    int64     `json:"size_bytes"`
	PageCount    *int      `json:"page_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateCommand contains the data required to create an evidence file.
// Data holds the raw file bytes to be stored.
type CreateCommand struct {
	CaseID       uuid.UUID
	OriginalName string
	MimeType     string
	PageCount    *int
	Data         []byte
}

// System defines evidence file operations.
type System interface {
	Find(ctx context.Context, id uuid.UUID) (*File, error)
	FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]File, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]File, error)
	Create(ctx context.Context, cmd CreateCommand) (*File, error)
}
