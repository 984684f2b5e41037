// Package activity records the audit trail of pipeline events for a case.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/pkg/pagination"
)

// Activity kinds.
const (
	KindExtractionCompleted = "extraction.completed"
	KindExtractionFailed    = "extraction.failed"
	KindClaimsSuggested     = "claims.suggested"
	KindSuggestionFailed    = "claims.suggestion_failed"
)

// Entry is one audit record.
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	CaseID     uuid.UUID      `json:"case_id"`
	EvidenceID *uuid.UUID     `json:"evidence_id,omitempty"`
	Kind       string         `json:"kind"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Recorder appends entries to the trail.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// System reads and writes the activity trail.
type System interface {
	Recorder

	// ListByCase returns one page of the case's trail, newest first.
	ListByCase(ctx context.Context, caseID uuid.UUID, page pagination.PageRequest) (pagination.PageResult[Entry], error)
}
