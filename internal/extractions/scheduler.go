package extractions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/internal/activity"
	"github.com/JaimeStill/evidence-lab/internal/evidence"
	"github.com/JaimeStill/evidence-lab/internal/textengine"
	"github.com/JaimeStill/evidence-lab/pkg/lease"
	"github.com/JaimeStill/evidence-lab/pkg/lifecycle"
	"github.com/JaimeStill/evidence-lab/pkg/limiter"
	"github.com/JaimeStill/evidence-lab/pkg/storage"
)

// EvidenceFinder resolves evidence files.
type EvidenceFinder interface {
	Find(ctx context.Context, id uuid.UUID) (*evidence.File, error)
}

// Extractor turns a local file into page text.
type Extractor interface {
	Extract(ctx context.Context, path, mimeType string, opts textengine.Options) (*textengine.Result, error)
}

// SuggestionTrigger receives extracted text after a job completes. Trigger
// must not block.
type SuggestionTrigger interface {
	Trigger(caseID, evidenceID uuid.UUID, text string) bool
}

// SchedulerConfig tunes the Scheduler.
type SchedulerConfig struct {
	Concurrency    int
	StaleThreshold time.Duration
	SweepInterval  time.Duration
	TempDir        string
}

// Deps are the collaborators of a Scheduler. Suggestions and Activity may
// be nil.
type Deps struct {
	Records     System
	Evidence    EvidenceFinder
	Storage     storage.System
	Engine      Extractor
	Locks       lease.Locker
	Activity    activity.Recorder
	Suggestions SuggestionTrigger
}

// Scheduler runs extraction jobs through a bounded limiter.
type Scheduler struct {
	deps    Deps
	cfg     SchedulerConfig
	limiter *limiter.Limiter
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	jobs   map[uuid.UUID]*Job
	active map[uuid.UUID]struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(deps Deps, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 15 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}

	return &Scheduler{
		deps:    deps,
		cfg:     cfg,
		limiter: limiter.New(cfg.Concurrency),
		logger:  logger.With("system", "extraction-scheduler"),
		now:     time.Now,
		jobs:    make(map[uuid.UUID]*Job),
		active:  make(map[uuid.UUID]struct{}),
	}
}

// SetClock replaces the time source used for staleness decisions.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Enqueue schedules extraction for an evidence file. It does nothing when a
// job for the file is active in this process or the file is already
// extracted.
func (s *Scheduler) Enqueue(ctx context.Context, evidenceID uuid.UUID) (EnqueueResult, error) {
	return s.enqueue(ctx, evidenceID, false)
}

// Retry schedules extraction on explicit user request. It ignores the
// complete state and the staleness window of a processing record; the
// in-process active set and the lease still prevent concurrent runs.
func (s *Scheduler) Retry(ctx context.Context, evidenceID uuid.UUID) (EnqueueResult, error) {
	return s.enqueue(ctx, evidenceID, true)
}

func (s *Scheduler) enqueue(ctx context.Context, evidenceID uuid.UUID, force bool) (EnqueueResult, error) {
	result := EnqueueResult{EvidenceID: evidenceID}

	if s.isActive(evidenceID) {
		result.Reason = ReasonActive
		return result, nil
	}

	file, err := s.deps.Evidence.Find(ctx, evidenceID)
	if err != nil {
		return result, err
	}

	if !force {
		existing, err := s.deps.Records.Find(ctx, evidenceID)
		switch {
		case err == nil && existing.Status == StatusComplete:
			result.Reason = ReasonComplete
			return result, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return result, err
		}
	}

	if !s.claim(evidenceID) {
		result.Reason = ReasonActive
		return result, nil
	}

	if _, err := s.deps.Records.Queue(ctx, file.CaseID, evidenceID); err != nil {
		s.release(evidenceID)
		s.setJob(evidenceID, JobError, 0, err.Error())
		return result, fmt.Errorf("queue extraction: %w", err)
	}

	s.wg.Add(1)
	jobCtx := context.WithoutCancel(ctx)
	limiter.Go(s.limiter, func() error {
		defer s.wg.Done()
		defer s.release(evidenceID)
		return s.run(jobCtx, file, force)
	})

	s.logger.Info("extraction queued", "evidence_id", evidenceID, "forced", force)
	result.Queued = true
	return result, nil
}

// Job returns the in-process status of an evidence file's job.
func (s *Scheduler) Job(evidenceID uuid.UUID) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[evidenceID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Stats reports limiter occupancy.
func (s *Scheduler) Stats() limiter.Stats {
	return s.limiter.Stats()
}

// Wait blocks until every submitted job has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Sweep requeues records stuck in processing past the stale threshold.
// Records with an active job in this process are skipped, and the reset is
// conditional so a job that completes during the sweep is left alone.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	cutoff := s.now().Add(-s.cfg.StaleThreshold)

	stale, err := s.deps.Records.ListStale(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.Found = len(stale)

	for _, rec := range stale {
		if s.isActive(rec.EvidenceID) {
			result.Skipped++
			continue
		}

		reset, err := s.deps.Records.ResetStale(ctx, rec.EvidenceID, cutoff)
		if err != nil {
			s.logger.Error("stale reset failed", "evidence_id", rec.EvidenceID, "error", err)
			result.Skipped++
			continue
		}
		if !reset {
			result.Skipped++
			continue
		}

		res, err := s.enqueue(ctx, rec.EvidenceID, false)
		if err != nil {
			s.logger.Error("stale requeue failed", "evidence_id", rec.EvidenceID, "error", err)
			result.Skipped++
			continue
		}
		if res.Queued {
			result.Requeued++
		} else {
			result.Skipped++
		}
	}

	if result.Found > 0 {
		s.logger.Info("stale sweep finished", "found", result.Found, "requeued", result.Requeued, "skipped", result.Skipped)
	}
	return result, nil
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("stale sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Start runs the periodic sweeper for the lifetime of lc and waits for
// in-flight jobs on shutdown.
func (s *Scheduler) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting extraction scheduler",
		"concurrency", s.limiter.Stats().Limit,
		"stale_threshold", s.cfg.StaleThreshold,
		"sweep_interval", s.cfg.SweepInterval,
	)

	lc.OnShutdown(func() {
		s.Run(lc.Context(), s.cfg.SweepInterval)
		s.Wait()
		s.logger.Info("extraction scheduler stopped")
	})
	return nil
}

func (s *Scheduler) run(ctx context.Context, file *evidence.File, force bool) error {
	id := file.ID
	key := "extraction:" + id.String()

	acquired, err := s.deps.Locks.TryAcquire(ctx, key, s.cfg.StaleThreshold)
	if err != nil {
		return s.fail(ctx, file, fmt.Errorf("acquire lease: %w", err))
	}
	if !acquired {
		s.logger.Info("extraction already running elsewhere", "evidence_id", id)
		s.dropJob(id)
		return nil
	}
	defer func() {
		if err := s.deps.Locks.Release(ctx, key); err != nil {
			s.logger.Warn("lease release failed", "key", key, "error", err)
		}
	}()

	rec, err := s.deps.Records.Find(ctx, id)
	if err != nil {
		return s.fail(ctx, file, err)
	}
	if rec.Status == StatusProcessing && !force && s.now().Sub(rec.UpdatedAt) < s.cfg.StaleThreshold {
		s.logger.Info("extraction duplicate, record is processing", "evidence_id", id, "updated_at", rec.UpdatedAt)
		s.dropJob(id)
		return nil
	}

	if err := s.deps.Records.MarkProcessing(ctx, id); err != nil {
		return s.fail(ctx, file, err)
	}
	s.setJob(id, JobProcessing, 0, "")

	path, err := s.download(ctx, file)
	if path != "" {
		defer func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("temp file cleanup failed", "path", path, "error", err)
			}
		}()
	}
	if err != nil {
		return s.fail(ctx, file, err)
	}

	result, err := s.deps.Engine.Extract(ctx, path, file.MimeType, textengine.Options{
		Progress: func(done, total int) {
			if total > 0 {
				s.setJob(id, JobProcessing, done*100/total, "")
			}
			if err := s.deps.Records.Touch(ctx, id); err != nil {
				s.logger.Warn("extraction touch failed", "evidence_id", id, "error", err)
			}
		},
	})
	if err != nil {
		return s.fail(ctx, file, err)
	}

	for _, page := range result.Pages {
		if _, err := s.deps.Records.UpsertPage(ctx, PageFromResult(id, page)); err != nil {
			return s.fail(ctx, file, fmt.Errorf("store page: %w", err))
		}
	}

	if err := s.deps.Records.Complete(ctx, id, result.Text, result.Metadata); err != nil {
		return s.fail(ctx, file, err)
	}
	s.setJob(id, JobDone, 100, "")

	s.logger.Info("extraction completed",
		"evidence_id", id,
		"pages", result.Metadata.PagesProcessed,
		"capped", result.Metadata.Capped,
	)

	s.record(ctx, file, activity.KindExtractionCompleted, "Text extraction completed", map[string]any{
		"pages_processed":      result.Metadata.PagesProcessed,
		"total_pages":          result.Metadata.TotalPages,
		"capped":               result.Metadata.Capped,
		"pages_skipped":        result.Metadata.PagesSkipped,
		"pages_needing_review": result.Metadata.PagesNeedingReview,
	})

	if s.deps.Suggestions != nil {
		s.deps.Suggestions.Trigger(file.CaseID, id, result.Text)
	}
	return nil
}

func (s *Scheduler) download(ctx context.Context, file *evidence.File) (string, error) {
	data, err := s.deps.Storage.Retrieve(ctx, file.StorageKey)
	if err != nil {
		return "", fmt.Errorf("retrieve file: %w", err)
	}

	f, err := os.CreateTemp(s.cfg.TempDir, "extract-*"+filepath.Ext(file.OriginalName))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return path, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("close temp file: %w", err)
	}
	return path, nil
}

func (s *Scheduler) fail(ctx context.Context, file *evidence.File, cause error) error {
	msg := cause.Error()
	s.setJob(file.ID, JobError, 0, msg)
	s.logger.Error("extraction failed", "evidence_id", file.ID, "error", cause)

	if err := s.deps.Records.Fail(ctx, file.ID, msg); err != nil {
		s.logger.Error("extraction failure not persisted", "evidence_id", file.ID, "error", err)
	}

	s.record(ctx, file, activity.KindExtractionFailed, "Text extraction failed", map[string]any{
		"error": msg,
	})
	return cause
}

func (s *Scheduler) record(ctx context.Context, file *evidence.File, kind, message string, details map[string]any) {
	if s.deps.Activity == nil {
		return
	}
	evidenceID := file.ID
	entry := activity.Entry{
		CaseID:     file.CaseID,
		EvidenceID: &evidenceID,
		Kind:       kind,
		Message:    message,
		Details:    details,
	}
	if err := s.deps.Activity.Record(ctx, entry); err != nil {
		s.logger.Warn("activity record failed", "kind", kind, "error", err)
	}
}

func (s *Scheduler) isActive(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	return ok
}

func (s *Scheduler) claim(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; ok {
		return false
	}
	s.active[id] = struct{}{}

	job, ok := s.jobs[id]
	if !ok {
		job = &Job{EvidenceID: id}
		s.jobs[id] = job
	}
	job.Status = JobQueued
	job.Progress = 0
	job.Error = ""
	return true
}

func (s *Scheduler) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

func (s *Scheduler) dropJob(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

func (s *Scheduler) setJob(id uuid.UUID, status JobStatus, progress int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		job = &Job{EvidenceID: id}
		s.jobs[id] = job
	}
	job.Status = status
	job.Progress = progress
	job.Error = msg
}
