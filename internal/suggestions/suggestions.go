// Package suggestions asks the language model for claims once evidence text
// is available. Triggers are debounced per case, bounded by a limiter and
// deduplicated against the claims a case already has.
package suggestions

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/internal/claims"
	"github.com/JaimeStill/evidence-lab/internal/llm"
)

// Defaults used when a Config field is zero.
const (
	DefaultConcurrency        = 2
	DefaultDebounce           = 60 * time.Second
	DefaultMinTextLength      = 300
	DefaultMaxClaims          = 10
	DefaultMaxInputChars      = 30000
	DefaultQuoteMaxLength     = 500
	DefaultRateLimitBackoff   = 30 * time.Second
	DefaultBootstrapThreshold = 3
	DefaultMaxGroups          = 8
)

var (
	ErrParse        = errors.New("unparseable model response")
	ErrTextTooShort = errors.New("extracted text too short for suggestion")
	ErrNoText       = errors.New("evidence has no extracted text")
)

// MapHTTPStatus converts suggestion errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrTextTooShort), errors.Is(err, ErrNoText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrUnauthorized), errors.Is(err, ErrParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Config tunes the Scheduler.
type Config struct {
	Concurrency        int
	Debounce           time.Duration
	MinTextLength      int
	MaxClaims          int
	MaxInputChars      int
	QuoteMaxLength     int
	RateLimitBackoff   time.Duration
	BootstrapThreshold int
	MaxGroups          int
}

func (c *Config) applyDefaults() {
	if c.Concurrency < 1 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = DefaultMinTextLength
	}
	if c.MaxClaims <= 0 {
		c.MaxClaims = DefaultMaxClaims
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = DefaultMaxInputChars
	}
	if c.QuoteMaxLength <= 0 {
		c.QuoteMaxLength = DefaultQuoteMaxLength
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = DefaultRateLimitBackoff
	}
	if c.BootstrapThreshold <= 0 {
		c.BootstrapThreshold = DefaultBootstrapThreshold
	}
	if c.MaxGroups <= 0 {
		c.MaxGroups = DefaultMaxGroups
	}
}

// ClaimStore is the part of the claims store suggestion runs write to.
type ClaimStore interface {
	ListClaims(ctx context.Context, caseID uuid.UUID, statuses ...claims.Status) ([]claims.Claim, error)
	CountByEvidence(ctx context.Context, evidenceID uuid.UUID) (int, error)
	CreateClaim(ctx context.Context, cmd claims.CreateClaimCommand) (*claims.Claim, error)
	CreateCitation(ctx context.Context, cmd claims.CreateCitationCommand) (*claims.Citation, error)
	Link(ctx context.Context, claimID, citationID uuid.UUID) error
	HasGroups(ctx context.Context, caseID uuid.UUID) (bool, error)
	CreateGroup(ctx context.Context, group claims.IssueGroup) (*claims.IssueGroup, error)
}

// Result reports one suggestion run for an evidence file.
type Result struct {
	CaseID     uuid.UUID   `json:"case_id"`
	EvidenceID uuid.UUID   `json:"evidence_id"`
	Proposed   int         `json:"proposed"`
	Created    int         `json:"created"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	ClaimIDs   []uuid.UUID `json:"claim_ids"`
	Groups     int         `json:"groups_created"`

	// Existing is set when the run was skipped because the evidence already
	// had claims.
	Existing bool `json:"existing,omitempty"`
}
