package claims

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Ranking weights. Preferred evidence outranks keyword overlap, which
// outranks location specificity, which outranks excerpt length.
const (
	WeightPreferredEvidence = 50
	WeightKeyword           = 5
	WeightLocation          = 3
	WeightExcerptLength     = 2

	minKeywordLength = 4
	minExcerptLength = 20
	maxExcerptLength = 350
)

// AttachOptions controls an auto-attach run.
type AttachOptions struct {
	MaxAttach            int         `json:"max_attach"`
	PreferredEvidenceIDs []uuid.UUID `json:"preferred_evidence_ids"`
}

// AttachResult reports what an auto-attach run linked.
type AttachResult struct {
	ClaimID     uuid.UUID   `json:"claim_id"`
	Existing    int         `json:"existing"`
	Candidates  int         `json:"candidates"`
	Attached    int         `json:"attached"`
	CitationIDs []uuid.UUID `json:"citation_ids"`
}

// Ranker attaches existing case citations to a claim by heuristic score.
type Ranker struct {
	store  CitationStore
	logger *slog.Logger
}

func NewRanker(store CitationStore, logger *slog.Logger) *Ranker {
	return &Ranker{
		store:  store,
		logger: logger.With("system", "citation-ranker"),
	}
}

type scored struct {
	citation Citation
	score    int
}

// AutoAttach links up to MaxAttach minus the claim's current citation count
// of the best scoring case citations not yet linked to the claim.
func (r *Ranker) AutoAttach(ctx context.Context, claimID uuid.UUID, opts AttachOptions) (AttachResult, error) {
	result := AttachResult{ClaimID: claimID, CitationIDs: []uuid.UUID{}}

	claim, err := r.store.FindClaim(ctx, claimID)
	if err != nil {
		return result, err
	}

	linked, err := r.store.ClaimCitations(ctx, []uuid.UUID{claimID})
	if err != nil {
		return result, err
	}
	existing := linked[claimID]
	result.Existing = len(existing)

	needed := max(0, opts.MaxAttach-len(existing))
	if needed == 0 {
		return result, nil
	}

	all, err := r.store.ListCitations(ctx, claim.CaseID)
	if err != nil {
		return result, err
	}

	attached := make(map[uuid.UUID]bool, len(existing))
	for _, c := range existing {
		attached[c.ID] = true
	}

	preferred := make(map[uuid.UUID]bool, len(opts.PreferredEvidenceIDs))
	for _, id := range opts.PreferredEvidenceIDs {
		preferred[id] = true
	}

	keywords := Keywords(claim.ClaimText)

	candidates := make([]scored, 0, len(all))
	for _, c := range all {
		if attached[c.ID] {
			continue
		}
		candidates = append(candidates, scored{
			citation: c,
			score:    Score(c, keywords, preferred[c.EvidenceID]),
		})
	}
	result.Candidates = len(candidates)

	slices.SortStableFunc(candidates, func(a, b scored) int {
		return b.score - a.score
	})

	for _, cand := range candidates[:min(needed, len(candidates))] {
		if err := r.store.Link(ctx, claimID, cand.citation.ID); err != nil {
			return result, fmt.Errorf("attach citation %s: %w", cand.citation.ID, err)
		}
		result.Attached++
		result.CitationIDs = append(result.CitationIDs, cand.citation.ID)
	}

	r.logger.Info("citations auto-attached",
		"claim_id", claimID,
		"candidates", result.Candidates,
		"attached", result.Attached,
	)
	return result, nil
}

// Score rates how well a citation supports a claim with the given keywords.
func Score(c Citation, keywords []string, preferred bool) int {
	score := 0
	if preferred {
		score += WeightPreferredEvidence
	}

	quote := strings.ToLower(c.Quote)
	for _, kw := range keywords {
		if strings.Contains(quote, kw) {
			score += WeightKeyword
		}
	}

	if c.PageNumber != nil || c.TimestampSeconds != nil {
		score += WeightLocation
	}

	if n := utf8.RuneCountInString(c.Quote); n >= minExcerptLength && n <= maxExcerptLength {
		score += WeightExcerptLength
	}
	return score
}

// Keywords returns the distinct lower-cased words of text longer than three
// characters, in first-seen order.
func Keywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < minKeywordLength || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
