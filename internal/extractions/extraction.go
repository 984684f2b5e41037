// Package extractions runs text extraction for evidence files and keeps the
// durable extraction and per-page records. The Scheduler bounds concurrent
// jobs, arbitrates duplicate work with leases, and requeues jobs abandoned
// in the processing state.
package extractions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/internal/textengine"
)

// Status is the durable extraction state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// JobStatus is the in-process job state.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobError      JobStatus = "error"
)

// Metadata summarizes what the text engine did for an extraction.
type Metadata = textengine.Metadata

// Extraction is the durable, user-facing extraction record. There is at most
// one per evidence file.
type Extraction struct {
	ID         uuid.UUID `json:"id"`
	CaseID     uuid.UUID `json:"case_id"`
	EvidenceID uuid.UUID `json:"evidence_id"`
	Status     Status    `json:"status"`
	Text       string    `json:"text"`
	Metadata   Metadata  `json:"metadata"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Page is the stored reading of one page, keyed by evidence and page number.
// A nil PageNumber is the single row of an unpaged file.
type Page struct {
	ID                  uuid.UUID `json:"id"`
	EvidenceID          uuid.UUID `json:"evidence_id"`
	PageNumber          *int      `json:"page_number"`
	ProviderPrimary     string    `json:"provider_primary"`
	ProviderSecondary   *string   `json:"provider_secondary,omitempty"`
	TextPrimary         string    `json:"text_primary"`
	TextSecondary       *string   `json:"text_secondary,omitempty"`
	ConfidencePrimary   *int      `json:"confidence_primary,omitempty"`
	ConfidenceSecondary *int      `json:"confidence_secondary,omitempty"`
	DiffScore           *int      `json:"diff_score,omitempty"`
	NeedsReview         bool      `json:"needs_review"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PageFromResult converts a text engine page for storage.
func PageFromResult(evidenceID uuid.UUID, p textengine.Page) Page {
	return Page{
		EvidenceID:          evidenceID,
		PageNumber:          p.PageNumber,
		ProviderPrimary:     p.ProviderPrimary,
		ProviderSecondary:   p.ProviderSecondary,
		TextPrimary:         p.TextPrimary,
		TextSecondary:       p.TextSecondary,
		ConfidencePrimary:   p.ConfidencePrimary,
		ConfidenceSecondary: p.ConfidenceSecondary,
		DiffScore:           p.DiffScore,
		NeedsReview:         p.NeedsReview,
	}
}

// Job is the transient status of an extraction in this process.
type Job struct {
	EvidenceID uuid.UUID `json:"evidence_id"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
}

// EnqueueResult reports whether an enqueue request scheduled work.
type EnqueueResult struct {
	EvidenceID uuid.UUID `json:"evidence_id"`
	Queued     bool      `json:"queued"`
	Reason     string    `json:"reason,omitempty"`
}

// Reasons an enqueue request did not schedule work.
const (
	ReasonActive   = "already active"
	ReasonComplete = "already complete"
)

// SweepResult reports one stale-job sweep.
type SweepResult struct {
	Found    int `json:"found"`
	Requeued int `json:"requeued"`
	Skipped  int `json:"skipped"`
}

// System persists extraction and page records.
type System interface {
	Find(ctx context.Context, evidenceID uuid.UUID) (*Extraction, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]Extraction, error)

	// Queue creates the record as queued, or moves an existing record that
	// is not processing back to queued.
	Queue(ctx context.Context, caseID, evidenceID uuid.UUID) (*Extraction, error)
	MarkProcessing(ctx context.Context, evidenceID uuid.UUID) error
	Touch(ctx context.Context, evidenceID uuid.UUID) error
	Complete(ctx context.Context, evidenceID uuid.UUID, text string, meta Metadata) error
	Fail(ctx context.Context, evidenceID uuid.UUID, message string) error

	// ListStale returns processing records last updated before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]Extraction, error)

	// ResetStale moves a record to queued only while it is still processing
	// and last updated before cutoff. It reports whether the row changed.
	ResetStale(ctx context.Context, evidenceID uuid.UUID, cutoff time.Time) (bool, error)

	UpsertPage(ctx context.Context, page Page) (*Page, error)
	ListPages(ctx context.Context, evidenceID uuid.UUID) ([]Page, error)
}
