// Package compiler turns a case's accepted, cited claims into a document for
// a template. Every numbered paragraph is traced back to the claim and the
// citations that produced it, and compilation refuses to run when any
// included claim falls short of the template's evidentiary bar.
package compiler

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/internal/claims"
	"github.com/JaimeStill/evidence-lab/internal/evidence"
	"github.com/JaimeStill/evidence-lab/internal/templates"
)

var ErrTemplateNotFound = errors.New("template not found")

// MapHTTPStatus converts compiler errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrTemplateNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Violation reasons.
const (
	ReasonMissingCitations = "missing_citations"
	ReasonMissingInfo      = "missing_info"
)

const snippetLength = 120

// ClaimSource reads the claim data a compile needs.
type ClaimSource interface {
	ListClaims(ctx context.Context, caseID uuid.UUID, statuses ...claims.Status) ([]claims.Claim, error)
	ClaimCitations(ctx context.Context, claimIDs []uuid.UUID) (map[uuid.UUID][]claims.Citation, error)
	ListFacts(ctx context.Context, caseID uuid.UUID, status claims.FactStatus) ([]claims.Fact, error)
}

// EvidenceSource resolves evidence files for exhibit names.
type EvidenceSource interface {
	FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]evidence.File, error)
}

// TemplateSource resolves templates by key.
type TemplateSource interface {
	Get(key string) (templates.Template, error)
}

// Violation names a claim that blocks compilation and why.
type Violation struct {
	ClaimID   uuid.UUID `json:"claim_id"`
	Snippet   string    `json:"snippet"`
	Reason    string    `json:"reason"`
	Citations int       `json:"citations"`
	Required  int       `json:"required"`
}

// Preflight is the read-only readiness report for a template.
type Preflight struct {
	TemplateKey         string      `json:"template_key"`
	TemplateVersion     string      `json:"template_version"`
	AcceptedClaims      int         `json:"accepted_claims"`
	IncludedClaims      int         `json:"included_claims"`
	CitedClaims         int         `json:"cited_claims"`
	MissingCitations    []Violation `json:"missing_citations"`
	MissingInfo         []Violation `json:"missing_info"`
	RequiredTypesAbsent []string    `json:"required_types_absent"`
	TemplateReady       bool        `json:"template_ready"`
}

// Options controls a compile.
type Options struct {
	IncludePendingFacts bool `json:"include_pending_facts"`
}

// Source is one exhibit of a compiled document.
type Source struct {
	EvidenceID      uuid.UUID `json:"evidence_id"`
	ExhibitLabel    string    `json:"exhibit_label"`
	FileName        string    `json:"file_name"`
	PagesReferenced []int     `json:"pages_referenced"`
}

// TracedSentence is one numbered paragraph and the evidence behind it.
type TracedSentence struct {
	Number        int         `json:"number"`
	SectionKey    string      `json:"section_key"`
	ClaimID       uuid.UUID   `json:"claim_id"`
	Text          string      `json:"text"`
	CitationIDs   []uuid.UUID `json:"citation_ids"`
	EvidenceIDs   []uuid.UUID `json:"evidence_ids"`
	QuoteSnippets []string    `json:"quote_snippets"`
}

// Result is a compiled document. When OK is false only Violations is set.
type Result struct {
	OK              bool             `json:"ok"`
	TemplateKey     string           `json:"template_key"`
	TemplateVersion string           `json:"template_version"`
	Violations      []Violation      `json:"violations,omitempty"`
	Markdown        string           `json:"markdown,omitempty"`
	Sources         []Source         `json:"sources,omitempty"`
	Sentences       []TracedSentence `json:"sentences,omitempty"`
	PendingFacts    int              `json:"pending_facts,omitempty"`
}

// Compiler assembles documents from templates and case claims.
type Compiler struct {
	claims    ClaimSource
	evidence  EvidenceSource
	templates TemplateSource
	logger    *slog.Logger
}

func New(claims ClaimSource, evidence EvidenceSource, catalog TemplateSource, logger *slog.Logger) *Compiler {
	return &Compiler{
		claims:    claims,
		evidence:  evidence,
		templates: catalog,
		logger:    logger.With("system", "compiler"),
	}
}

type claimSet struct {
	template         templates.Template
	accepted         []claims.Claim
	included         []claims.Claim
	citations        map[uuid.UUID][]claims.Citation
	missingCitations []Violation
	missingInfo      []Violation
}

func (s *claimSet) violations() []Violation {
	out := make([]Violation, 0, len(s.missingCitations)+len(s.missingInfo))
	out = append(out, s.missingCitations...)
	return append(out, s.missingInfo...)
}

// derive loads the accepted claims in scope for the template with their
// citations and the gate violations. Preflight and Compile share it so they
// always agree.
func (c *Compiler) derive(ctx context.Context, caseID uuid.UUID, key string) (*claimSet, error) {
	tmpl, err := c.templates.Get(key)
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
		}
		return nil, err
	}

	accepted, err := c.claims.ListClaims(ctx, caseID, claims.StatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("list accepted claims: %w", err)
	}
	slices.SortStableFunc(accepted, compareClaims)

	set := &claimSet{template: tmpl, accepted: accepted}
	ids := make([]uuid.UUID, 0, len(accepted))
	for _, cl := range accepted {
		if tmpl.Includes(cl.ClaimType, cl.Tags) {
			set.included = append(set.included, cl)
			ids = append(ids, cl.ID)
		}
	}

	set.citations, err = c.claims.ClaimCitations(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load citations: %w", err)
	}

	for _, cl := range set.included {
		n := len(set.citations[cl.ID])
		if n < tmpl.RequiredCitationCount {
			set.missingCitations = append(set.missingCitations, Violation{
				ClaimID:   cl.ID,
				Snippet:   snippet(cl.ClaimText),
				Reason:    ReasonMissingCitations,
				Citations: n,
				Required:  tmpl.RequiredCitationCount,
			})
		}
		if cl.MissingInfoFlag && !tmpl.AllowMissingInfoClaims {
			set.missingInfo = append(set.missingInfo, Violation{
				ClaimID:   cl.ID,
				Snippet:   snippet(cl.ClaimText),
				Reason:    ReasonMissingInfo,
				Citations: n,
				Required:  tmpl.RequiredCitationCount,
			})
		}
	}
	return set, nil
}

// RunPreflight reports whether the case's accepted claims meet the
// template's requirements. It never writes.
func (c *Compiler) RunPreflight(ctx context.Context, caseID uuid.UUID, key string) (*Preflight, error) {
	set, err := c.derive(ctx, caseID, key)
	if err != nil {
		return nil, err
	}

	p := &Preflight{
		TemplateKey:         set.template.Key,
		TemplateVersion:     set.template.Version,
		AcceptedClaims:      len(set.accepted),
		IncludedClaims:      len(set.included),
		MissingCitations:    orEmpty(set.missingCitations),
		MissingInfo:         orEmpty(set.missingInfo),
		RequiredTypesAbsent: []string{},
	}
	for _, cl := range set.included {
		if len(set.citations[cl.ID]) > 0 {
			p.CitedClaims++
		}
	}

	for _, t := range set.template.RequiredClaimTypes {
		found := slices.ContainsFunc(set.accepted, func(cl claims.Claim) bool {
			return strings.EqualFold(cl.ClaimType, t)
		})
		if !found {
			p.RequiredTypesAbsent = append(p.RequiredTypesAbsent, t)
		}
	}

	p.TemplateReady = p.IncludedClaims > 0 && len(p.MissingCitations) == 0 && len(p.MissingInfo) == 0
	return p, nil
}

// Compile renders the template. It returns OK=false with the violations and
// no document when any included claim fails the gate.
func (c *Compiler) Compile(ctx context.Context, caseID uuid.UUID, key string, opts Options) (*Result, error) {
	set, err := c.derive(ctx, caseID, key)
	if err != nil {
		return nil, err
	}

	result := &Result{
		TemplateKey:     set.template.Key,
		TemplateVersion: set.template.Version,
	}

	if v := set.violations(); len(v) > 0 {
		c.logger.Info("compile refused", "case_id", caseID, "template", key, "violations", len(v))
		result.Violations = v
		return result, nil
	}

	var facts []claims.Fact
	if opts.IncludePendingFacts {
		facts, err = c.claims.ListFacts(ctx, caseID, claims.FactPending)
		if err != nil {
			return nil, fmt.Errorf("list pending facts: %w", err)
		}
	}

	files, err := c.evidence.FindMany(ctx, evidenceIDs(set, facts))
	if err != nil {
		return nil, fmt.Errorf("load evidence files: %w", err)
	}

	doc := render(set, facts, files)
	result.OK = true
	result.Markdown = doc.markdown
	result.Sources = doc.sources
	result.Sentences = doc.sentences
	result.PendingFacts = len(facts)

	c.logger.Info("document compiled",
		"case_id", caseID,
		"template", key,
		"paragraphs", len(doc.sentences),
		"exhibits", len(doc.sources),
	)
	return result, nil
}

// ExhibitLabel returns the label for the zero-based exhibit index:
// A..Z, then AA, AB and so on.
func ExhibitLabel(i int) string {
	var b []byte
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		b = append(b, byte('A'+(n-1)%26))
	}
	slices.Reverse(b)
	return string(b)
}

func compareClaims(a, b claims.Claim) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}

func evidenceIDs(set *claimSet, facts []claims.Fact) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, cl := range set.included {
		for _, ci := range set.citations[cl.ID] {
			add(ci.EvidenceID)
		}
	}
	for _, f := range facts {
		add(f.EvidenceID)
	}
	return ids
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	return string([]rune(text)[:snippetLength-1]) + "…"
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func sortedPages(pages map[int]bool) []int {
	out := make([]int, 0, len(pages))
	for p := range pages {
		out = append(out, p)
	}
	slices.SortFunc(out, cmp.Compare[int])
	return out
}
