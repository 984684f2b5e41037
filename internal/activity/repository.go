package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/pkg/pagination"
	"github.com/JaimeStill/evidence-lab/pkg/query"
	"github.com/JaimeStill/evidence-lab/pkg/repository"
)

var projection = query.NewProjectionMap("public", "activity", "a").
	Project("id", "ID").
	Project("case_id", "CaseID").
	Project("evidence_id", "EvidenceID").
	Project("kind", "Kind").
	Project("message", "Message").
	Project("details", "Details").
	Project("created_at", "CreatedAt")

func scanEntry(s repository.Scanner) (Entry, error) {
	var (
		e       Entry
		details []byte
	)
	err := s.Scan(&e.ID, &e.CaseID, &e.EvidenceID, &e.Kind, &e.Message, &details, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return e, fmt.Errorf("decode activity details: %w", err)
		}
	}
	return e, nil
}

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates the activity system backed by db.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "activity"),
	}
}

func (r *repo) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}

	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode activity details: %w", err)
	}

	q := `INSERT INTO activity(id, case_id, evidence_id, kind, message, details)
		VALUES($1, $2, $3, $4, $5, $6)`

	if err := repository.ExecExpectOne(ctx, r.db, q, entry.ID, entry.CaseID, entry.EvidenceID, entry.Kind, entry.Message, details); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	r.logger.Debug("activity recorded", "case_id", entry.CaseID, "kind", entry.Kind)
	return nil
}

func (r *repo) ListByCase(ctx context.Context, caseID uuid.UUID, page pagination.PageRequest) (pagination.PageResult[Entry], error) {
	qb := query.
		NewBuilder(projection, query.SortField{Field: "CreatedAt", Descending: true}).
		WhereEquals("CaseID", caseID)

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return pagination.PageResult[Entry]{}, fmt.Errorf("count activity: %w", err)
	}

	q, args := qb.BuildPage(page.Page, page.PageSize)
	entries, err := repository.QueryMany(ctx, r.db, q, args, scanEntry)
	if err != nil {
		return pagination.PageResult[Entry]{}, fmt.Errorf("query activity: %w", err)
	}
	return pagination.NewPageResult(entries, total, page), nil
}
