package suggestions

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JaimeStill/evidence-lab/internal/claims"
)

// minTagClaims is how many claims must share a tag before it earns a group.
const minTagClaims = 2

type bucket struct {
	key      string
	claimIDs []uuid.UUID
}

// PlanGroups buckets claims into at most limit issue groups: one per claim
// type, most frequent first, followed by one per tag shared by at least two
// claims. Ties break alphabetically.
func PlanGroups(caseID uuid.UUID, list []claims.Claim, limit int) []claims.IssueGroup {
	byType := make(map[string][]uuid.UUID)
	byTag := make(map[string][]uuid.UUID)

	for _, c := range list {
		t := strings.ToLower(strings.TrimSpace(c.ClaimType))
		if t == "" {
			t = string(TypeFact)
		}
		byType[t] = append(byType[t], c.ID)

		seen := make(map[string]bool, len(c.Tags))
		for _, tag := range c.Tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			byTag[tag] = append(byTag[tag], c.ID)
		}
	}

	title := cases.Title(language.English)
	groups := make([]claims.IssueGroup, 0, limit)

	for _, b := range ranked(byType, 1) {
		if len(groups) == limit {
			return groups
		}
		claimType := b.key
		groups = append(groups, claims.IssueGroup{
			CaseID:    caseID,
			Name:      title.String(humanize(b.key)),
			ClaimType: &claimType,
			ClaimIDs:  b.claimIDs,
		})
	}

	for _, b := range ranked(byTag, minTagClaims) {
		if len(groups) == limit {
			return groups
		}
		tag := b.key
		groups = append(groups, claims.IssueGroup{
			CaseID:   caseID,
			Name:     title.String(humanize(b.key)),
			Tag:      &tag,
			ClaimIDs: b.claimIDs,
		})
	}
	return groups
}

func ranked(m map[string][]uuid.UUID, minSize int) []bucket {
	out := make([]bucket, 0, len(m))
	for k, ids := range m {
		if len(ids) >= minSize {
			out = append(out, bucket{key: k, claimIDs: ids})
		}
	}
	slices.SortFunc(out, func(a, b bucket) int {
		if c := cmp.Compare(len(b.claimIDs), len(a.claimIDs)); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	return out
}

func humanize(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}), " ")
}

// bootstrapGroups creates the case's first issue groups. It does nothing when
// the case already has groups.
func (s *Scheduler) bootstrapGroups(ctx context.Context, caseID uuid.UUID) (int, error) {
	s.groupMu.Lock()
	defer s.groupMu.Unlock()

	exists, err := s.claims.HasGroups(ctx, caseID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, nil
	}

	list, err := s.claims.ListClaims(ctx, caseID, claims.StatusSuggested, claims.StatusAccepted)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, g := range PlanGroups(caseID, list, s.cfg.MaxGroups) {
		if _, err := s.claims.CreateGroup(ctx, g); err != nil {
			return created, fmt.Errorf("create group %q: %w", g.Name, err)
		}
		created++
	}

	s.logger.Info("issue groups bootstrapped", "case_id", caseID, "groups", created)
	return created, nil
}
