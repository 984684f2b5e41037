package suggestions_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/internal/activity"
	"github.com/JaimeStill/evidence-lab/internal/claims"
	"github.com/JaimeStill/evidence-lab/internal/llm"
	"github.com/JaimeStill/evidence-lab/internal/suggestions"
)

var longText = strings.Repeat("The tenant paid rent late. ", 12)

type fakeTimer struct {
	f       func()
	d       time.Duration
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	slept  []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) suggestions.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f, d: d}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	return nil
}

// fire runs every timer that has not been stopped.
func (c *fakeClock) fire() {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type reply struct {
	out string
	err error
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := min(f.calls, len(f.replies)-1)
	f.calls++
	return f.replies[i].out, f.replies[i].err
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memClaims struct {
	mu          sync.Mutex
	claims      []claims.Claim
	citations   []claims.Citation
	links       map[uuid.UUID][]uuid.UUID
	groups      []claims.IssueGroup
	ops         []string
	citationErr error
}

func newMemClaims() *memClaims {
	return &memClaims{links: make(map[uuid.UUID][]uuid.UUID)}
}

func (m *memClaims) ListClaims(_ context.Context, caseID uuid.UUID, statuses ...claims.Status) ([]claims.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []claims.Claim
	for _, c := range m.claims {
		if c.CaseID != caseID {
			continue
		}
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (m *memClaims) CountByEvidence(_ context.Context, evidenceID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.claims {
		if c.EvidenceID != nil && *c.EvidenceID == evidenceID {
			n++
		}
	}
	return n, nil
}

func (m *memClaims) CreateClaim(_ context.Context, cmd claims.CreateClaimCommand) (*claims.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := claims.Claim{
		ID:              uuid.New(),
		CaseID:          cmd.CaseID,
		EvidenceID:      cmd.EvidenceID,
		ClaimText:       cmd.ClaimText,
		ClaimType:       cmd.ClaimType,
		Tags:            cmd.Tags,
		MissingInfoFlag: cmd.MissingInfoFlag,
		CreatedFrom:     cmd.CreatedFrom,
		Status:          cmd.Status,
	}
	m.claims = append(m.claims, c)
	m.ops = append(m.ops, "claim")
	return &c, nil
}

func (m *memClaims) CreateCitation(_ context.Context, cmd claims.CreateCitationCommand) (*claims.Citation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.citationErr != nil {
		return nil, m.citationErr
	}
	c := claims.Citation{
		ID:         uuid.New(),
		CaseID:     cmd.CaseID,
		EvidenceID: cmd.EvidenceID,
		Quote:      cmd.Quote,
		PageNumber: cmd.PageNumber,
	}
	m.citations = append(m.citations, c)
	m.ops = append(m.ops, "citation")
	return &c, nil
}

func (m *memClaims) Link(_ context.Context, claimID, citationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[claimID] = append(m.links[claimID], citationID)
	m.ops = append(m.ops, "link")
	return nil
}

func (m *memClaims) HasGroups(_ context.Context, caseID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.CaseID == caseID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memClaims) CreateGroup(_ context.Context, g claims.IssueGroup) (*claims.IssueGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.ID = uuid.New()
	m.groups = append(m.groups, g)
	return &g, nil
}

func (m *memClaims) seed(caseID uuid.UUID, evidenceID *uuid.UUID, text string, status claims.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims = append(m.claims, claims.Claim{
		ID: uuid.New(), CaseID: caseID, EvidenceID: evidenceID, ClaimText: text, Status: status,
	})
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (f *fakeActivity) Record(_ context.Context, e activity.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeActivity) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Kind
	}
	return out
}

type harness struct {
	scheduler *suggestions.Scheduler
	clock     *fakeClock
	llm       *fakeLLM
	store     *memClaims
	activity  *fakeActivity
}

func newHarness(replies ...reply) *harness {
	h := &harness{
		clock:    &fakeClock{},
		llm:      &fakeLLM{replies: replies},
		store:    newMemClaims(),
		activity: &fakeActivity{},
	}
	h.scheduler = suggestions.NewScheduler(
		suggestions.Deps{Claims: h.store, LLM: h.llm, Activity: h.activity},
		suggestions.Config{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		suggestions.WithAfterFunc(h.clock.AfterFunc),
		suggestions.WithSleep(h.clock.Sleep),
	)
	return h
}

func claimsJSON(texts ...string) string {
	items := make([]string, len(texts))
	for i, text := range texts {
		items[i] = fmt.Sprintf(`{"claim_text": %q, "claim_type": "fact", "tags": ["lease"], "citation": {"quote": %q, "page_number": 1}}`, text, "quote for "+text)
	}
	return `{"claims": [` + strings.Join(items, ",") + `]}`
}

func TestTriggerIgnoresShortText(t *testing.T) {
	h := newHarness(reply{out: "[]"})
	if h.scheduler.Trigger(uuid.New(), uuid.New(), strings.Repeat("x", 299)) {
		t.Error("Trigger() = true for 299 characters")
	}
	if h.clock.active() != 0 {
		t.Error("no timer should be scheduled")
	}
}

func TestTriggerOncePerEvidence(t *testing.T) {
	h := newHarness(reply{out: "[]"})
	caseID, evidenceID := uuid.New(), uuid.New()

	if !h.scheduler.Trigger(caseID, evidenceID, longText) {
		t.Fatal("first Trigger() = false")
	}
	if h.scheduler.Trigger(caseID, evidenceID, longText) {
		t.Error("second Trigger() for the same evidence = true")
	}
}

func TestTriggerDebouncesPerCase(t *testing.T) {
	h := newHarness(reply{out: "[]"})
	caseID := uuid.New()
	first, second := uuid.New(), uuid.New()

	h.scheduler.Trigger(caseID, first, longText)
	h.scheduler.Trigger(caseID, second, longText)

	if h.clock.active() != 1 {
		t.Fatalf("active timers = %d, want 1", h.clock.active())
	}
	if got := h.clock.timers[1].d; got != suggestions.DefaultDebounce {
		t.Errorf("debounce = %v, want %v", got, suggestions.DefaultDebounce)
	}

	// A timer that was replaced must not run the batch.
	h.clock.timers[0].f()
	h.scheduler.Wait()
	if h.llm.Calls() != 0 {
		t.Fatalf("stale timer ran %d model calls", h.llm.Calls())
	}
	if pending := h.scheduler.Pending(caseID); len(pending) != 2 {
		t.Fatalf("pending = %v, want both evidence items", pending)
	}

	h.clock.fire()
	h.scheduler.Wait()

	if h.llm.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", h.llm.Calls())
	}
	if pending := h.scheduler.Pending(caseID); len(pending) != 0 {
		t.Errorf("pending after fire = %v", pending)
	}
}

func TestSeparateCasesSeparateTimers(t *testing.T) {
	h := newHarness(reply{out: "[]"})
	h.scheduler.Trigger(uuid.New(), uuid.New(), longText)
	h.scheduler.Trigger(uuid.New(), uuid.New(), longText)

	if h.clock.active() != 2 {
		t.Errorf("active timers = %d, want 2", h.clock.active())
	}
}

func TestRunCreatesAndDeduplicates(t *testing.T) {
	h := newHarness(reply{out: claimsJSON("The lease began on March 1.", "Rent is $1,200 per month.")})
	caseID, evidenceID := uuid.New(), uuid.New()
	h.store.seed(caseID, nil, "the  lease began on\nMARCH 1.", claims.StatusSuggested)

	h.scheduler.Trigger(caseID, evidenceID, longText)
	h.clock.fire()
	h.scheduler.Wait()

	var created []claims.Claim
	for _, c := range h.store.claims {
		if c.EvidenceID != nil && *c.EvidenceID == evidenceID {
			created = append(created, c)
		}
	}
	if len(created) != 1 {
		t.Fatalf("created = %d, want 1", len(created))
	}
	c := created[0]
	if c.ClaimText != "Rent is $1,200 per month." || c.Status != claims.StatusSuggested || c.CreatedFrom != claims.OriginAISuggested {
		t.Errorf("claim = %+v", c)
	}
	if len(h.store.links[c.ID]) != 1 {
		t.Errorf("links = %v, want one citation", h.store.links[c.ID])
	}

	wantOps := []string{"citation", "claim", "link"}
	if strings.Join(h.store.ops, ",") != strings.Join(wantOps, ",") {
		t.Errorf("ops = %v, want %v", h.store.ops, wantOps)
	}

	entries := h.activity.entries
	if len(entries) != 1 || entries[0].Kind != activity.KindClaimsSuggested {
		t.Fatalf("activity = %v", h.activity.kinds())
	}
	if entries[0].Details["created"] != 1 || entries[0].Details["skipped"] != 1 {
		t.Errorf("details = %v", entries[0].Details)
	}
}

// gatedClaims holds the first duplicate read of a case until a second run
// reads too, or until the wait expires.
type gatedClaims struct {
	*memClaims
	mu      sync.Mutex
	reads   int
	both    chan struct{}
	maxWait time.Duration
}

func (g *gatedClaims) ListClaims(ctx context.Context, caseID uuid.UUID, statuses ...claims.Status) ([]claims.Claim, error) {
	g.mu.Lock()
	g.reads++
	if g.reads == 2 {
		close(g.both)
	}
	g.mu.Unlock()

	select {
	case <-g.both:
	case <-time.After(g.maxWait):
	}
	return g.memClaims.ListClaims(ctx, caseID, statuses...)
}

func TestConcurrentRunsForCaseDeduplicate(t *testing.T) {
	store := &gatedClaims{memClaims: newMemClaims(), both: make(chan struct{}), maxWait: 200 * time.Millisecond}
	clock := &fakeClock{}
	model := &fakeLLM{replies: []reply{{out: claimsJSON("The lease began on January 1.")}}}
	scheduler := suggestions.NewScheduler(
		suggestions.Deps{Claims: store, LLM: model},
		suggestions.Config{Concurrency: 2},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		suggestions.WithAfterFunc(clock.AfterFunc),
		suggestions.WithSleep(clock.Sleep),
	)

	caseID := uuid.New()
	scheduler.Trigger(caseID, uuid.New(), longText)
	scheduler.Trigger(caseID, uuid.New(), longText)
	clock.fire()
	scheduler.Wait()

	if model.Calls() != 2 {
		t.Fatalf("model calls = %d, want 2", model.Calls())
	}
	n := 0
	for _, c := range store.claims {
		if c.CaseID == caseID && suggestions.Normalize(c.ClaimText) == "the lease began on january 1." {
			n++
		}
	}
	if n != 1 {
		t.Errorf("claims with the same text = %d, want 1", n)
	}
}

func TestReprocessAlongsideTimerRunDeduplicates(t *testing.T) {
	store := &gatedClaims{memClaims: newMemClaims(), both: make(chan struct{}), maxWait: 200 * time.Millisecond}
	clock := &fakeClock{}
	model := &fakeLLM{replies: []reply{{out: claimsJSON("Notice was served on May 2.")}}}
	scheduler := suggestions.NewScheduler(
		suggestions.Deps{Claims: store, LLM: model},
		suggestions.Config{Concurrency: 2},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		suggestions.WithAfterFunc(clock.AfterFunc),
		suggestions.WithSleep(clock.Sleep),
	)

	caseID := uuid.New()
	scheduler.Trigger(caseID, uuid.New(), longText)

	done := make(chan error, 1)
	go func() {
		_, err := scheduler.Reprocess(context.Background(), caseID, uuid.New(), longText)
		done <- err
	}()
	clock.fire()

	if err := <-done; err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	scheduler.Wait()

	got, _ := store.memClaims.ListClaims(context.Background(), caseID, claims.StatusSuggested)
	if len(got) != 1 {
		t.Errorf("suggested claims = %d, want 1", len(got))
	}
}

func TestRunDeduplicatesWithinBatch(t *testing.T) {
	h := newHarness()
	res, err := newReprocess(h, claimsJSON("Same claim.", "same   CLAIM."))
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if res.Created != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 1 created and 1 skipped", res)
	}
}

func TestRunIgnoresRejectedClaimsForDedup(t *testing.T) {
	h := newHarness()
	caseID := uuid.New()
	h.store.seed(caseID, nil, "Rejected before.", claims.StatusRejected)
	h.llm.replies = []reply{{out: claimsJSON("Rejected before.")}}

	res, err := h.scheduler.Reprocess(context.Background(), caseID, uuid.New(), longText)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if res.Created != 1 {
		t.Errorf("created = %d, want 1", res.Created)
	}
}

func newReprocess(h *harness, out string) (suggestions.Result, error) {
	h.llm.replies = []reply{{out: out}}
	return h.scheduler.Reprocess(context.Background(), uuid.New(), uuid.New(), longText)
}

func TestRunSkipsEvidenceWithClaims(t *testing.T) {
	h := newHarness(reply{out: claimsJSON("Anything.")})
	caseID, evidenceID := uuid.New(), uuid.New()
	h.store.seed(caseID, &evidenceID, "Manual claim.", claims.StatusAccepted)

	h.scheduler.Trigger(caseID, evidenceID, longText)
	h.clock.fire()
	h.scheduler.Wait()

	if h.llm.Calls() != 0 {
		t.Errorf("model calls = %d, want 0", h.llm.Calls())
	}
}

func TestRateLimitRetriesOnce(t *testing.T) {
	h := newHarness(
		reply{err: fmt.Errorf("%w: 429", llm.ErrRateLimited)},
		reply{out: claimsJSON("Recovered claim.")},
	)

	res, err := h.scheduler.Reprocess(context.Background(), uuid.New(), uuid.New(), longText)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if res.Created != 1 {
		t.Errorf("created = %d, want 1", res.Created)
	}
	if h.llm.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", h.llm.Calls())
	}
	if len(h.clock.slept) != 1 || h.clock.slept[0] != suggestions.DefaultRateLimitBackoff {
		t.Errorf("backoff = %v, want one wait of %v", h.clock.slept, suggestions.DefaultRateLimitBackoff)
	}
}

func TestRateLimitTwiceFails(t *testing.T) {
	h := newHarness(reply{err: llm.ErrRateLimited})

	_, err := h.scheduler.Reprocess(context.Background(), uuid.New(), uuid.New(), longText)
	if !errors.Is(err, llm.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if h.llm.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", h.llm.Calls())
	}
	if kinds := h.activity.kinds(); len(kinds) != 1 || kinds[0] != activity.KindSuggestionFailed {
		t.Errorf("activity = %v", kinds)
	}
}

func TestUnauthorizedIsTerminal(t *testing.T) {
	h := newHarness(reply{err: fmt.Errorf("%w: 401", llm.ErrUnauthorized)})

	_, err := h.scheduler.Reprocess(context.Background(), uuid.New(), uuid.New(), longText)
	if !errors.Is(err, llm.ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if h.llm.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", h.llm.Calls())
	}
	if len(h.clock.slept) != 0 {
		t.Error("unauthorized must not back off")
	}

	e := h.activity.entries[0]
	if e.Kind != activity.KindSuggestionFailed || e.Details["kind"] != "unauthorized" {
		t.Errorf("activity = %+v", e)
	}
}

func TestUnparseableResponseCreatesNothing(t *testing.T) {
	h := newHarness(reply{out: "Sorry, I cannot help with that."})

	res, err := h.scheduler.Reprocess(context.Background(), uuid.New(), uuid.New(), longText)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if res.Created != 0 || res.Proposed != 0 {
		t.Errorf("result = %+v", res)
	}
	e := h.activity.entries[0]
	if e.Kind != activity.KindClaimsSuggested || e.Details["parse_error"] == nil {
		t.Errorf("activity = %+v", e)
	}
}

func TestQuoteTruncated(t *testing.T) {
	quote := strings.Repeat("é", 600)
	h := newHarness(reply{out: fmt.Sprintf(`[{"claim_text": "Long quote.", "citation": {"quote": %q}}]`, quote)})

	if _, err := h.scheduler.Reprocess(context.Background(), uuid.New(), uuid.New(), longText); err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if n := utf8.RuneCountInString(h.store.citations[0].Quote); n != suggestions.DefaultQuoteMaxLength {
		t.Errorf("quote runes = %d, want %d", n, suggestions.DefaultQuoteMaxLength)
	}
}

func TestCitationFailureLeavesClaimUncited(t *testing.T) {
	h := newHarness(reply{out: claimsJSON("Uncited claim.")})
	h.store.citationErr = errors.New("insert failed")

	res, err := h.scheduler.Reprocess(context.Background(), uuid.New(), uuid.New(), longText)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if res.Created != 1 {
		t.Errorf("created = %d, want 1", res.Created)
	}
	if len(h.store.links) != 0 {
		t.Errorf("links = %v, want none", h.store.links)
	}
}

func TestReprocessReplacesPendingTrigger(t *testing.T) {
	h := newHarness(reply{out: claimsJSON("Only once.")})
	caseID, evidenceID := uuid.New(), uuid.New()

	h.scheduler.Trigger(caseID, evidenceID, longText)
	if _, err := h.scheduler.Reprocess(context.Background(), caseID, evidenceID, longText); err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}

	h.clock.fire()
	h.scheduler.Wait()

	if h.llm.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", h.llm.Calls())
	}
	if h.scheduler.Trigger(caseID, evidenceID, longText) {
		t.Error("evidence should stay marked after reprocess")
	}
}

func TestReprocessRequiresText(t *testing.T) {
	h := newHarness(reply{out: "[]"})
	if _, err := h.scheduler.Reprocess(context.Background(), uuid.New(), uuid.New(), "  "); !errors.Is(err, suggestions.ErrNoText) {
		t.Errorf("error = %v, want ErrNoText", err)
	}
}

func TestBootstrapGroupsOnce(t *testing.T) {
	h := newHarness(reply{out: claimsJSON("One.", "Two.", "Three.")})
	caseID := uuid.New()

	res, err := h.scheduler.Reprocess(context.Background(), caseID, uuid.New(), longText)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if res.Groups == 0 || len(h.store.groups) != res.Groups {
		t.Fatalf("groups = %d stored %d", res.Groups, len(h.store.groups))
	}

	h.llm.replies = []reply{{out: claimsJSON("Four.", "Five.", "Six.")}}
	res, err = h.scheduler.Reprocess(context.Background(), caseID, uuid.New(), longText)
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if res.Groups != 0 {
		t.Errorf("second bootstrap created %d groups", res.Groups)
	}
}

func TestBootstrapBelowThreshold(t *testing.T) {
	h := newHarness(reply{out: claimsJSON("One.", "Two.")})
	if _, err := h.scheduler.Reprocess(context.Background(), uuid.New(), uuid.New(), longText); err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if len(h.store.groups) != 0 {
		t.Errorf("groups = %d, want 0", len(h.store.groups))
	}
}

func TestStopCancelsPending(t *testing.T) {
	h := newHarness(reply{out: "[]"})
	caseID := uuid.New()
	h.scheduler.Trigger(caseID, uuid.New(), longText)

	h.scheduler.Stop()
	if h.clock.active() != 0 {
		t.Error("pending timer not stopped")
	}
	if h.scheduler.Trigger(caseID, uuid.New(), longText) {
		t.Error("Trigger() after Stop = true")
	}

	h.clock.timers[0].f()
	h.scheduler.Wait()
	if h.llm.Calls() != 0 {
		t.Errorf("model calls = %d, want 0", h.llm.Calls())
	}
}
