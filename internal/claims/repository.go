package claims

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/pkg/query"
	"github.com/JaimeStill/evidence-lab/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates the claims store.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "claims"),
	}
}

func (r *repo) FindClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	q, args := query.
		NewBuilder(claimProjection).
		BuildSingle("ID", id)

	c, err := repository.QueryOne(ctx, r.db, q, args, scanClaim)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (r *repo) ListClaims(ctx context.Context, caseID uuid.UUID, statuses ...Status) ([]Claim, error) {
	values := make([]any, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	q, args := query.
		NewBuilder(claimProjection, claimOrder...).
		WhereEquals("CaseID", caseID).
		WhereIn("Status", values).
		Build()

	cs, err := repository.QueryMany(ctx, r.db, q, args, scanClaim)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	return cs, nil
}

func (r *repo) CountByEvidence(ctx context.Context, evidenceID uuid.UUID) (int, error) {
	q, args := query.
		NewBuilder(claimProjection).
		WhereEquals("EvidenceID", evidenceID).
		BuildCount()

	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return n, nil
}

func (r *repo) CreateClaim(ctx context.Context, cmd CreateClaimCommand) (*Claim, error) {
	if strings.TrimSpace(cmd.ClaimText) == "" {
		return nil, fmt.Errorf("%w: claim text is required", ErrInvalidClaim)
	}
	if cmd.Tags == nil {
		cmd.Tags = []string{}
	}
	tags, err := json.Marshal(cmd.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	q := `INSERT INTO claims(id, case_id, evidence_id, claim_text, claim_type, tags,
			missing_info, created_from, status)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
		` + claimReturning

	c, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Claim, error) {
		return repository.QueryOne(ctx, tx, q, []any{
			uuid.New(), cmd.CaseID, cmd.EvidenceID, cmd.ClaimText, cmd.ClaimType, tags,
			cmd.MissingInfoFlag, string(cmd.CreatedFrom), string(cmd.Status),
		}, scanClaim)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (r *repo) CreateCitation(ctx context.Context, cmd CreateCitationCommand) (*Citation, error) {
	q := `INSERT INTO citations(id, case_id, evidence_id, quote, page_number,
			timestamp_seconds, start_offset, end_offset, confidence)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
		` + citationReturning

	c, err := repository.QueryOne(ctx, r.db, q, []any{
		uuid.New(), cmd.CaseID, cmd.EvidenceID, cmd.Quote, cmd.PageNumber,
		cmd.TimestampSeconds, cmd.StartOffset, cmd.EndOffset, cmd.Confidence,
	}, scanCitation)
	if err != nil {
		return nil, repository.MapError(err, ErrCitationNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (r *repo) ListCitations(ctx context.Context, caseID uuid.UUID) ([]Citation, error) {
	q, args := query.
		NewBuilder(citationProjection, query.SortField{Field: "CreatedAt"}, query.SortField{Field: "ID"}).
		WhereEquals("CaseID", caseID).
		Build()

	cs, err := repository.QueryMany(ctx, r.db, q, args, scanCitation)
	if err != nil {
		return nil, fmt.Errorf("query citations: %w", err)
	}
	return cs, nil
}

type linkedCitation struct {
	claimID  uuid.UUID
	citation Citation
}

func (r *repo) ClaimCitations(ctx context.Context, claimIDs []uuid.UUID) (map[uuid.UUID][]Citation, error) {
	result := make(map[uuid.UUID][]Citation, len(claimIDs))
	if len(claimIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(claimIDs))
	for i, id := range claimIDs {
		args[i] = id
	}

	q := fmt.Sprintf(`SELECT cc.claim_id, %s
		FROM %s
		JOIN public.claim_citations cc ON cc.citation_id = ci.id
		WHERE cc.claim_id IN (%s)
		ORDER BY cc.created_at ASC, ci.id ASC`,
		citationProjection.Columns(), citationProjection.Table(), placeholders(1, len(args)))

	rows, err := repository.QueryMany(ctx, r.db, q, args, func(s repository.Scanner) (linkedCitation, error) {
		var lc linkedCitation
		c := &lc.citation
		err := s.Scan(
			&lc.claimID,
			&c.ID,
			&c.CaseID,
			&c.EvidenceID,
			&c.Quote,
			&c.PageNumber,
			&c.TimestampSeconds,
			&c.StartOffset,
			&c.EndOffset,
			&c.Confidence,
			&c.CreatedAt,
		)
		return lc, err
	})
	if err != nil {
		return nil, fmt.Errorf("query claim citations: %w", err)
	}

	for _, row := range rows {
		result[row.claimID] = append(result[row.claimID], row.citation)
	}
	return result, nil
}

func (r *repo) Link(ctx context.Context, claimID, citationID uuid.UUID) error {
	q := `INSERT INTO claim_citations(claim_id, citation_id)
		VALUES($1, $2)
		ON CONFLICT (claim_id, citation_id) DO NOTHING`

	if _, err := repository.ExecAffected(ctx, r.db, q, claimID, citationID); err != nil {
		return fmt.Errorf("link citation: %w", err)
	}
	return nil
}

func (r *repo) Transition(ctx context.Context, id uuid.UUID, to Status) (*Claim, error) {
	current, err := r.FindClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == to {
		return current, nil
	}
	if !CanTransition(current.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}
	if current.Status == StatusRejected {
		active, err := r.ListClaims(ctx, current.CaseID, StatusSuggested, StatusAccepted)
		if err != nil {
			return nil, err
		}
		if dup, ok := FindDuplicate(*current, active); ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateText, dup.ID)
		}
	}

	q := `UPDATE claims SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		` + claimReturning

	c, err := repository.QueryOne(ctx, r.db, q, []any{string(to), id, string(current.Status)}, scanClaim)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: claim changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("claim status changed", "id", id, "from", current.Status, "to", to)
	return &c, nil
}

func (r *repo) HasGroups(ctx context.Context, caseID uuid.UUID) (bool, error) {
	q, args := query.
		NewBuilder(groupProjection).
		WhereEquals("CaseID", caseID).
		BuildCount()

	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("count issue groups: %w", err)
	}
	return n > 0, nil
}

func (r *repo) CreateGroup(ctx context.Context, group IssueGroup) (*IssueGroup, error) {
	insertGroup := `INSERT INTO issue_groups(id, case_id, name, claim_type, tag)
		VALUES($1, $2, $3, $4, $5)
		RETURNING id, case_id, name, claim_type, tag, created_at`
	insertMember := `INSERT INTO issue_group_claims(group_id, claim_id)
		VALUES($1, $2)
		ON CONFLICT DO NOTHING`

	g, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (IssueGroup, error) {
		g, err := repository.QueryOne(ctx, tx, insertGroup, []any{
			uuid.New(), group.CaseID, group.Name, group.ClaimType, group.Tag,
		}, scanGroup)
		if err != nil {
			return g, err
		}

		for _, claimID := range group.ClaimIDs {
			if _, err := tx.ExecContext(ctx, insertMember, g.ID, claimID); err != nil {
				return g, err
			}
		}
		g.ClaimIDs = append([]uuid.UUID{}, group.ClaimIDs...)
		return g, nil
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &g, nil
}

func (r *repo) ListGroups(ctx context.Context, caseID uuid.UUID) ([]IssueGroup, error) {
	q, args := query.
		NewBuilder(groupProjection, query.SortField{Field: "CreatedAt"}, query.SortField{Field: "Name"}).
		WhereEquals("CaseID", caseID).
		Build()

	groups, err := repository.QueryMany(ctx, r.db, q, args, scanGroup)
	if err != nil {
		return nil, fmt.Errorf("query issue groups: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	index := make(map[uuid.UUID]int, len(groups))
	ids := make([]any, len(groups))
	for i, g := range groups {
		groups[i].ClaimIDs = []uuid.UUID{}
		index[g.ID] = i
		ids[i] = g.ID
	}

	mq := fmt.Sprintf(`SELECT group_id, claim_id FROM public.issue_group_claims
		WHERE group_id IN (%s)
		ORDER BY claim_id`, placeholders(1, len(ids)))

	members, err := repository.QueryMany(ctx, r.db, mq, ids, func(s repository.Scanner) ([2]uuid.UUID, error) {
		var pair [2]uuid.UUID
		err := s.Scan(&pair[0], &pair[1])
		return pair, err
	})
	if err != nil {
		return nil, fmt.Errorf("query issue group members: %w", err)
	}

	for _, m := range members {
		i := index[m[0]]
		groups[i].ClaimIDs = append(groups[i].ClaimIDs, m[1])
	}
	return groups, nil
}

func (r *repo) ListFacts(ctx context.Context, caseID uuid.UUID, status FactStatus) ([]Fact, error) {
	q, args := query.
		NewBuilder(factProjection, query.SortField{Field: "CreatedAt"}, query.SortField{Field: "ID"}).
		WhereEquals("CaseID", caseID).
		WhereEquals("Status", string(status)).
		Build()

	facts, err := repository.QueryMany(ctx, r.db, q, args, scanFact)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	return facts, nil
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range n {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
