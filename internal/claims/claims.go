// Package claims stores case claims, their citations and the links between
// them, and ranks existing citations for claims that lack support.
package claims

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the review state of a claim.
type Status string

const (
	StatusSuggested Status = "suggested"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

// Origin records how a claim came to exist.
type Origin string

const (
	OriginManual       Origin = "manual"
	OriginAISuggested  Origin = "ai_suggested"
	OriginAIExtracted  Origin = "ai_extracted"
	OriginEvidenceFact Origin = "evidence_fact"
)

// FactStatus is the review state of an extracted fact.
type FactStatus string

const (
	FactPending   FactStatus = "pending"
	FactPromoted  FactStatus = "promoted"
	FactDismissed FactStatus = "dismissed"
)

// Citation points into one evidence file. Citations are never modified.
type Citation struct {
	ID               uuid.UUID `json:"id"`
	CaseID           uuid.UUID `json:"case_id"`
	EvidenceID       uuid.UUID `json:"evidence_id"`
	Quote            string    `json:"quote"`
	PageNumber       *int      `json:"page_number,omitempty"`
	TimestampSeconds *float64  `json:"timestamp_seconds,omitempty"`
	StartOffset      *int      `json:"start_offset,omitempty"`
	EndOffset        *int      `json:"end_offset,omitempty"`
	Confidence       *float64  `json:"confidence,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Claim is a neutral factual statement about a case.
type Claim struct {
	ID              uuid.UUID  `json:"id"`
	CaseID          uuid.UUID  `json:"case_id"`
	EvidenceID      *uuid.UUID `json:"evidence_id,omitempty"`
	ClaimText       string     `json:"claim_text"`
	ClaimType       string     `json:"claim_type"`
	Tags            []string   `json:"tags"`
	MissingInfoFlag bool       `json:"missing_info_flag"`
	CreatedFrom     Origin     `json:"created_from"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ClaimCitation links a claim to a citation.
type ClaimCitation struct {
	ClaimID    uuid.UUID `json:"claim_id"`
	CitationID uuid.UUID `json:"citation_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// IssueGroup is a named thematic bucket of claims.
type IssueGroup struct {
	ID        uuid.UUID   `json:"id"`
	CaseID    uuid.UUID   `json:"case_id"`
	Name      string      `json:"name"`
	ClaimType *string     `json:"claim_type,omitempty"`
	Tag       *string     `json:"tag,omitempty"`
	ClaimIDs  []uuid.UUID `json:"claim_ids"`
	CreatedAt time.Time   `json:"created_at"`
}

// Fact is a typed fact extracted from evidence and awaiting review.
type Fact struct {
	ID         uuid.UUID  `json:"id"`
	CaseID     uuid.UUID  `json:"case_id"`
	EvidenceID uuid.UUID  `json:"evidence_id"`
	FactType   string     `json:"fact_type"`
	Text       string     `json:"text"`
	PageNumber *int       `json:"page_number,omitempty"`
	Status     FactStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CreateCitationCommand is the input for creating a citation.
type CreateCitationCommand struct {
	CaseID           uuid.UUID
	EvidenceID       uuid.UUID
	Quote            string
	PageNumber       *int
	TimestampSeconds *float64
	StartOffset      *int
	EndOffset        *int
	Confidence       *float64
}

// CreateClaimCommand is the input for creating a claim.
type CreateClaimCommand struct {
	CaseID          uuid.UUID
	EvidenceID      *uuid.UUID
	ClaimText       string
	ClaimType       string
	Tags            []string
	MissingInfoFlag bool
	CreatedFrom     Origin
	Status          Status
}

// CitationStore is the subset of System the ranker needs.
type CitationStore interface {
	FindClaim(ctx context.Context, id uuid.UUID) (*Claim, error)
	ListCitations(ctx context.Context, caseID uuid.UUID) ([]Citation, error)
	ClaimCitations(ctx context.Context, claimIDs []uuid.UUID) (map[uuid.UUID][]Citation, error)
	Link(ctx context.Context, claimID, citationID uuid.UUID) error
}

// System persists claims, citations, issue groups and facts.
type System interface {
	CitationStore

	// ListClaims returns the case's claims ordered by creation time then id.
	// With no statuses every claim is returned.
	ListClaims(ctx context.Context, caseID uuid.UUID, statuses ...Status) ([]Claim, error)
	CountByEvidence(ctx context.Context, evidenceID uuid.UUID) (int, error)
	CreateClaim(ctx context.Context, cmd CreateClaimCommand) (*Claim, error)
	CreateCitation(ctx context.Context, cmd CreateCitationCommand) (*Citation, error)
	Transition(ctx context.Context, id uuid.UUID, to Status) (*Claim, error)

	HasGroups(ctx context.Context, caseID uuid.UUID) (bool, error)
	CreateGroup(ctx context.Context, group IssueGroup) (*IssueGroup, error)
	ListGroups(ctx context.Context, caseID uuid.UUID) ([]IssueGroup, error)

	ListFacts(ctx context.Context, caseID uuid.UUID, status FactStatus) ([]Fact, error)
}

var transitions = map[Status][]Status{
	StatusSuggested: {StatusAccepted, StatusRejected},
	StatusRejected:  {StatusSuggested},
	StatusAccepted:  {StatusSuggested},
}

// CanTransition reports whether a claim may move from one status to another.
// Restoring to suggested is the undo path for both accept and reject.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NormalizeText lower-cases text and collapses runs of whitespace. Two
// active claims of a case never share a normalized text.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// FindDuplicate returns the first claim in active, other than c itself, whose
// normalized text matches c.
func FindDuplicate(c Claim, active []Claim) (Claim, bool) {
	key := NormalizeText(c.ClaimText)
	for _, other := range active {
		if other.ID != c.ID && NormalizeText(other.ClaimText) == key {
			return other, true
		}
	}
	return Claim{}, false
}
