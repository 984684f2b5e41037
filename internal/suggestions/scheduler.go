package suggestions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/internal/activity"
	"github.com/JaimeStill/evidence-lab/internal/claims"
	"github.com/JaimeStill/evidence-lab/internal/llm"
	"github.com/JaimeStill/evidence-lab/pkg/lifecycle"
	"github.com/JaimeStill/evidence-lab/pkg/limiter"
)

// Timer is a pending debounce callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAfterFunc replaces the debounce timer source.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = fn }
}

// WithSleep replaces the wait used before the rate limit retry.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = fn }
}

// Deps are the collaborators of a Scheduler. Activity may be nil.
type Deps struct {
	Claims   ClaimStore
	LLM      llm.Provider
	Activity activity.Recorder
}

type item struct {
	evidenceID uuid.UUID
	text       string
}

type pendingCase struct {
	timer Timer
	gen   uint64
	items []item
}

func (p *pendingCase) put(it item) {
	for i := range p.items {
		if p.items[i].evidenceID == it.evidenceID {
			p.items[i] = it
			return
		}
	}
	p.items = append(p.items, it)
}

func (p *pendingCase) remove(evidenceID uuid.UUID) {
	for i := range p.items {
		if p.items[i].evidenceID == evidenceID {
			p.items = append(p.items[:i], p.items[i+1:]...)
			return
		}
	}
}

// Scheduler debounces suggestion triggers per case and runs them through a
// bounded limiter.
type Scheduler struct {
	claims   ClaimStore
	llm      llm.Provider
	activity activity.Recorder
	cfg      Config
	limiter  *limiter.Limiter
	logger   *slog.Logger

	afterFunc AfterFunc
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	pending   map[uuid.UUID]*pendingCase
	processed map[uuid.UUID]bool
	closed    bool

	caseMu  sync.Mutex
	caseMus map[uuid.UUID]*sync.Mutex
	groupMu sync.Mutex
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. Zero Config fields take the package
// defaults.
func NewScheduler(deps Deps, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	cfg.applyDefaults()

	s := &Scheduler{
		claims:    deps.Claims,
		llm:       deps.LLM,
		activity:  deps.Activity,
		cfg:       cfg,
		limiter:   limiter.New(cfg.Concurrency),
		logger:    logger.With("system", "claim-suggestions"),
		afterFunc: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		sleep:     sleepContext,
		pending:   make(map[uuid.UUID]*pendingCase),
		processed: make(map[uuid.UUID]bool),
		caseMus:   make(map[uuid.UUID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger schedules a suggestion run for the evidence after the case's
// debounce window. Each new trigger for a case restarts the window, and all
// evidence pending for the case runs when it closes. Text shorter than the
// minimum and evidence already triggered in this process are ignored.
func (s *Scheduler) Trigger(caseID, evidenceID uuid.UUID, text string) bool {
	if utf8.RuneCountInString(text) < s.cfg.MinTextLength {
		s.logger.Debug("suggestion skipped, text too short", "evidence_id", evidenceID)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.processed[evidenceID] {
		return false
	}
	s.processed[evidenceID] = true

	p, ok := s.pending[caseID]
	if !ok {
		p = &pendingCase{}
		s.pending[caseID] = p
	} else if p.timer != nil {
		p.timer.Stop()
	}

	p.put(item{evidenceID: evidenceID, text: text})
	p.gen++
	gen := p.gen
	p.timer = s.afterFunc(s.cfg.Debounce, func() { s.fire(caseID, gen) })

	s.logger.Info("suggestion scheduled",
		"case_id", caseID,
		"evidence_id", evidenceID,
		"pending", len(p.items),
		"delay", s.cfg.Debounce,
	)
	return true
}

// Pending returns the evidence ids waiting on the case's debounce timer.
func (s *Scheduler) Pending(caseID uuid.UUID) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[caseID]
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, len(p.items))
	for i, it := range p.items {
		ids[i] = it.evidenceID
	}
	return ids
}

func (s *Scheduler) fire(caseID uuid.UUID, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[caseID]
	if !ok || p.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.pending, caseID)
	items := p.items
	s.wg.Add(len(items))
	s.mu.Unlock()

	for _, it := range items {
		limiter.Go(s.limiter, func() error {
			defer s.wg.Done()
			_, err := s.process(context.Background(), caseID, it.evidenceID, it.text, true)
			return err
		})
	}
}

// Reprocess runs suggestion for the evidence now, bypassing the debounce
// window and the processed mark. It still waits for a limiter slot.
func (s *Scheduler) Reprocess(ctx context.Context, caseID, evidenceID uuid.UUID, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{CaseID: caseID, EvidenceID: evidenceID}, ErrNoText
	}

	s.mu.Lock()
	// The explicit run replaces any automatic one still pending.
	s.processed[evidenceID] = true
	if p, ok := s.pending[caseID]; ok {
		p.remove(evidenceID)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	future := limiter.Submit(s.limiter, func() (Result, error) {
		defer s.wg.Done()
		return s.process(runCtx, caseID, evidenceID, text, false)
	})
	return future.Wait(ctx)
}

// Stats reports limiter occupancy.
func (s *Scheduler) Stats() limiter.Stats {
	return s.limiter.Stats()
}

// Stop cancels pending debounce timers and rejects further triggers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for caseID, p := range s.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, caseID)
	}
}

// Wait blocks until every submitted run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Start stops the scheduler and drains in-flight runs on shutdown.
func (s *Scheduler) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting claim suggestion scheduler",
		"provider", s.llm.Name(),
		"concurrency", s.cfg.Concurrency,
		"debounce", s.cfg.Debounce,
	)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		s.Stop()
		s.Wait()
		s.logger.Info("claim suggestion scheduler stopped")
	})
	return nil
}

func (s *Scheduler) process(ctx context.Context, caseID, evidenceID uuid.UUID, text string, recheck bool) (Result, error) {
	res := Result{CaseID: caseID, EvidenceID: evidenceID, ClaimIDs: []uuid.UUID{}}

	if recheck {
		n, err := s.claims.CountByEvidence(ctx, evidenceID)
		if err != nil {
			return res, s.failed(ctx, res, fmt.Errorf("count claims: %w", err))
		}
		if n > 0 {
			s.logger.Info("suggestion skipped, evidence already has claims", "evidence_id", evidenceID, "claims", n)
			res.Existing = true
			return res, nil
		}
	}

	raw, err := s.complete(ctx, text)
	if err != nil {
		return res, s.failed(ctx, res, err)
	}

	details := map[string]any{}
	proposals, err := Parse(raw, s.cfg.MaxClaims)
	if err != nil {
		s.logger.Warn("model response unparseable", "evidence_id", evidenceID, "error", err)
		details["parse_error"] = err.Error()
	}
	res.Proposed = len(proposals)

	// Runs for one case hold its lock from the duplicate read through the
	// last insert.
	unlock := s.lockCase(caseID)
	existing, err := s.claims.ListClaims(ctx, caseID, claims.StatusSuggested, claims.StatusAccepted)
	if err != nil {
		unlock()
		return res, s.failed(ctx, res, fmt.Errorf("list claims: %w", err))
	}

	seen := make(map[string]bool, len(existing)+len(proposals))
	for _, c := range existing {
		seen[Normalize(c.ClaimText)] = true
	}

	for _, p := range proposals {
		key := Normalize(p.ClaimText)
		if seen[key] {
			res.Skipped++
			continue
		}
		seen[key] = true

		id, err := s.create(ctx, caseID, evidenceID, p)
		if err != nil {
			s.logger.Error("suggested claim not stored", "evidence_id", evidenceID, "error", err)
			res.Failed++
			continue
		}
		res.Created++
		res.ClaimIDs = append(res.ClaimIDs, id)
	}
	unlock()

	if res.Created >= s.cfg.BootstrapThreshold {
		n, err := s.bootstrapGroups(ctx, caseID)
		if err != nil {
			s.logger.Warn("issue group bootstrap failed", "case_id", caseID, "error", err)
		}
		res.Groups = n
	}

	details["proposed"] = res.Proposed
	details["created"] = res.Created
	details["skipped"] = res.Skipped
	details["failed"] = res.Failed
	s.record(ctx, caseID, evidenceID, activity.KindClaimsSuggested,
		fmt.Sprintf("%d claims suggested", res.Created), details)

	s.logger.Info("claims suggested",
		"case_id", caseID,
		"evidence_id", evidenceID,
		"proposed", res.Proposed,
		"created", res.Created,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (s *Scheduler) lockCase(caseID uuid.UUID) func() {
	s.caseMu.Lock()
	m, ok := s.caseMus[caseID]
	if !ok {
		m = &sync.Mutex{}
		s.caseMus[caseID] = m
	}
	s.caseMu.Unlock()

	m.Lock()
	return m.Unlock
}

// complete calls the model, retrying once after the backoff when rate limited.
func (s *Scheduler) complete(ctx context.Context, text string) (string, error) {
	user := buildUserPrompt(text, s.cfg.MaxInputChars)

	out, err := s.llm.Complete(ctx, SystemPrompt, user)
	if !errors.Is(err, llm.ErrRateLimited) {
		return out, err
	}

	s.logger.Warn("llm rate limited, retrying once", "backoff", s.cfg.RateLimitBackoff)
	if err := s.sleep(ctx, s.cfg.RateLimitBackoff); err != nil {
		return "", err
	}
	return s.llm.Complete(ctx, SystemPrompt, user)
}

// create stores the citation first, then the claim, then the link. A failed
// citation leaves the claim uncited.
func (s *Scheduler) create(ctx context.Context, caseID, evidenceID uuid.UUID, p Suggestion) (uuid.UUID, error) {
	var citation *claims.Citation
	if p.Citation != nil {
		c, err := s.claims.CreateCitation(ctx, claims.CreateCitationCommand{
			CaseID:           caseID,
			EvidenceID:       evidenceID,
			Quote:            truncate(p.Citation.Quote, s.cfg.QuoteMaxLength),
			PageNumber:       p.Citation.PageNumber,
			TimestampSeconds: p.Citation.TimestampSeconds,
			StartOffset:      p.Citation.StartOffset,
			EndOffset:        p.Citation.EndOffset,
		})
		if err != nil {
			s.logger.Warn("citation not stored, claim will be uncited", "evidence_id", evidenceID, "error", err)
		} else {
			citation = c
		}
	}

	source := evidenceID
	claim, err := s.claims.CreateClaim(ctx, claims.CreateClaimCommand{
		CaseID:          caseID,
		EvidenceID:      &source,
		ClaimText:       p.ClaimText,
		ClaimType:       string(p.ClaimType),
		Tags:            p.Tags,
		MissingInfoFlag: p.MissingInfo,
		CreatedFrom:     claims.OriginAISuggested,
		Status:          claims.StatusSuggested,
	})
	if err != nil {
		return uuid.Nil, err
	}

	if citation != nil {
		if err := s.claims.Link(ctx, claim.ID, citation.ID); err != nil {
			s.logger.Warn("citation link failed", "claim_id", claim.ID, "citation_id", citation.ID, "error", err)
		}
	}
	return claim.ID, nil
}

func (s *Scheduler) failed(ctx context.Context, res Result, err error) error {
	kind := "error"
	switch {
	case errors.Is(err, llm.ErrUnauthorized):
		kind = "unauthorized"
		s.logger.Error("llm rejected credentials, check provider configuration",
			"provider", s.llm.Name(), "evidence_id", res.EvidenceID, "error", err)
	case errors.Is(err, llm.ErrRateLimited):
		kind = "rate_limited"
		s.logger.Error("llm still rate limited after retry", "evidence_id", res.EvidenceID, "error", err)
	default:
		s.logger.Error("claim suggestion failed", "evidence_id", res.EvidenceID, "error", err)
	}

	s.record(ctx, res.CaseID, res.EvidenceID, activity.KindSuggestionFailed, "Claim suggestion failed", map[string]any{
		"error": err.Error(),
		"kind":  kind,
	})
	return err
}

func (s *Scheduler) record(ctx context.Context, caseID, evidenceID uuid.UUID, kind, message string, details map[string]any) {
	if s.activity == nil {
		return
	}
	entry := activity.Entry{
		CaseID:     caseID,
		EvidenceID: &evidenceID,
		Kind:       kind,
		Message:    message,
		Details:    details,
	}
	if err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn("activity record failed", "kind", kind, "error", err)
	}
}

// Normalize lower-cases text and collapses runs of whitespace for duplicate
// detection.
func Normalize(text string) string {
	return claims.NormalizeText(text)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
