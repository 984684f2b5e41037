package extractions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/pkg/query"
	"github.com/JaimeStill/evidence-lab/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates the extraction record store.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "extractions"),
	}
}

func (r *repo) Find(ctx context.Context, evidenceID uuid.UUID) (*Extraction, error) {
	q, args := query.
		NewBuilder(projection).
		BuildSingle("EvidenceID", evidenceID)

	x, err := repository.QueryOne(ctx, r.db, q, args, scanExtraction)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &x, nil
}

func (r *repo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]Extraction, error) {
	q, args := query.
		NewBuilder(projection, query.SortField{Field: "CreatedAt"}).
		WhereEquals("CaseID", caseID).
		Build()

	xs, err := repository.QueryMany(ctx, r.db, q, args, scanExtraction)
	if err != nil {
		return nil, fmt.Errorf("query extractions: %w", err)
	}
	return xs, nil
}

func (r *repo) Queue(ctx context.Context, caseID, evidenceID uuid.UUID) (*Extraction, error) {
	q := `INSERT INTO extractions(id, case_id, evidence_id, status)
		VALUES($1, $2, $3, 'queued')
		ON CONFLICT (evidence_id) DO UPDATE
			SET status = 'queued', error = NULL, updated_at = NOW()
			WHERE extractions.status <> 'processing'
		` + returning

	x, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Extraction, error) {
		return repository.QueryOne(ctx, tx, q, []any{uuid.New(), caseID, evidenceID}, scanExtraction)
	})
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict with a processing row: nothing was written.
		return r.Find(ctx, evidenceID)
	}
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &x, nil
}

func (r *repo) MarkProcessing(ctx context.Context, evidenceID uuid.UUID) error {
	q := `UPDATE extractions SET status = 'processing', error = NULL, updated_at = NOW()
		WHERE evidence_id = $1`
	return r.execOne(ctx, q, evidenceID)
}

func (r *repo) Touch(ctx context.Context, evidenceID uuid.UUID) error {
	q := `UPDATE extractions SET updated_at = NOW()
		WHERE evidence_id = $1 AND status = 'processing'`
	_, err := repository.ExecAffected(ctx, r.db, q, evidenceID)
	return err
}

func (r *repo) Complete(ctx context.Context, evidenceID uuid.UUID, text string, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	q := `UPDATE extractions SET status = 'complete', text = $1, metadata = $2, error = NULL, updated_at = NOW()
		WHERE evidence_id = $3`
	return r.execOne(ctx, q, text, data, evidenceID)
}

func (r *repo) Fail(ctx context.Context, evidenceID uuid.UUID, message string) error {
	q := `UPDATE extractions SET status = 'failed', error = $1, updated_at = NOW()
		WHERE evidence_id = $2`
	return r.execOne(ctx, q, message, evidenceID)
}

func (r *repo) ListStale(ctx context.Context, cutoff time.Time) ([]Extraction, error) {
	q, args := query.
		NewBuilder(projection, query.SortField{Field: "UpdatedAt"}).
		WhereEquals("Status", string(StatusProcessing)).
		WhereBefore("UpdatedAt", cutoff).
		Build()

	xs, err := repository.QueryMany(ctx, r.db, q, args, scanExtraction)
	if err != nil {
		return nil, fmt.Errorf("query stale extractions: %w", err)
	}
	return xs, nil
}

func (r *repo) ResetStale(ctx context.Context, evidenceID uuid.UUID, cutoff time.Time) (bool, error) {
	q := `UPDATE extractions SET status = 'queued', updated_at = NOW()
		WHERE evidence_id = $1 AND status = 'processing' AND updated_at < $2`

	n, err := repository.ExecAffected(ctx, r.db, q, evidenceID, cutoff)
	if err != nil {
		return false, fmt.Errorf("reset stale extraction: %w", err)
	}
	return n == 1, nil
}

func (r *repo) UpsertPage(ctx context.Context, page Page) (*Page, error) {
	q := `INSERT INTO ocr_pages(
			id, evidence_id, page_number, provider_primary, provider_secondary,
			text_primary, text_secondary, confidence_primary, confidence_secondary,
			diff_score, needs_review)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (evidence_id, (COALESCE(page_number, -1))) DO UPDATE SET
			provider_primary = EXCLUDED.provider_primary,
			provider_secondary = EXCLUDED.provider_secondary,
			text_primary = EXCLUDED.text_primary,
			text_secondary = EXCLUDED.text_secondary,
			confidence_primary = EXCLUDED.confidence_primary,
			confidence_secondary = EXCLUDED.confidence_secondary,
			diff_score = EXCLUDED.diff_score,
			needs_review = EXCLUDED.needs_review,
			updated_at = NOW()
		` + pageReturning

	p, err := repository.QueryOne(ctx, r.db, q, []any{
		uuid.New(), page.EvidenceID, page.PageNumber, page.ProviderPrimary, page.ProviderSecondary,
		page.TextPrimary, page.TextSecondary, page.ConfidencePrimary, page.ConfidenceSecondary,
		page.DiffScore, page.NeedsReview,
	}, scanPage)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &p, nil
}

func (r *repo) ListPages(ctx context.Context, evidenceID uuid.UUID) ([]Page, error) {
	q, args := query.
		NewBuilder(pageProjection, query.SortField{Field: "PageNumber"}).
		WhereEquals("EvidenceID", evidenceID).
		Build()

	pages, err := repository.QueryMany(ctx, r.db, q, args, scanPage)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	return pages, nil
}

func (r *repo) execOne(ctx context.Context, q string, args ...any) error {
	if err := repository.ExecExpectOne(ctx, r.db, q, args...); err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}
