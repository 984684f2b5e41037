package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JaimeStill/evidence-lab/internal/activity"
	"github.com/JaimeStill/evidence-lab/internal/claims"
	"github.com/JaimeStill/evidence-lab/internal/compiler"
	"github.com/JaimeStill/evidence-lab/internal/config"
	"github.com/JaimeStill/evidence-lab/internal/evidence"
	"github.com/JaimeStill/evidence-lab/internal/extractions"
	"github.com/JaimeStill/evidence-lab/internal/infrastructure"
	"github.com/JaimeStill/evidence-lab/internal/llm"
	"github.com/JaimeStill/evidence-lab/internal/ocr"
	"github.com/JaimeStill/evidence-lab/internal/suggestions"
	"github.com/JaimeStill/evidence-lab/internal/templates"
	"github.com/JaimeStill/evidence-lab/internal/textengine"
	"github.com/JaimeStill/evidence-lab/pkg/lifecycle"
)

// Domain holds the pipeline systems built on top of the infrastructure.
type Domain struct {
	Evidence    evidence.System
	Extractions extractions.System
	Extraction  *extractions.Scheduler
	Claims      claims.System
	Ranker      *claims.Ranker
	Suggestions *suggestions.Scheduler
	Activity    activity.System
	Templates   *templates.Catalog
	Compiler    *compiler.Compiler

	ocr    []ocr.Provider
	logger *slog.Logger
}

// NewDomain builds the OCR and LLM providers and every domain system.
// Suggestions is nil when disabled by configuration.
func NewDomain(infra *infrastructure.Infrastructure, cfg *config.Config) (*Domain, error) {
	db := infra.Database.Connection()
	logger := infra.Logger
	ctx := infra.Lifecycle.Context()

	primary, err := ocr.New(ctx, &cfg.OCR, cfg.OCR.Primary, logger)
	if err != nil {
		return nil, fmt.Errorf("primary ocr init failed: %w", err)
	}
	secondary, err := ocr.New(ctx, &cfg.OCR, cfg.OCR.Secondary, logger)
	if err != nil {
		return nil, fmt.Errorf("secondary ocr init failed: %w", err)
	}

	catalog, err := templates.Default()
	if err != nil {
		return nil, fmt.Errorf("template catalog load failed: %w", err)
	}

	d := &Domain{
		Evidence:    evidence.New(db, infra.Storage, logger),
		Extractions: extractions.New(db, logger),
		Claims:      claims.New(db, logger),
		Activity:    activity.New(db, logger),
		Templates:   catalog,
		logger:      logger,
	}
	for _, p := range []ocr.Provider{primary, secondary} {
		if p != nil {
			d.ocr = append(d.ocr, p)
		}
	}

	d.Ranker = claims.NewRanker(d.Claims, logger)
	d.Compiler = compiler.New(d.Claims, d.Evidence, catalog, logger)

	var trigger extractions.SuggestionTrigger
	if cfg.Suggestions.IsEnabled() {
		provider, err := llm.New(&cfg.LLM, logger)
		if err != nil {
			return nil, fmt.Errorf("llm init failed: %w", err)
		}

		d.Suggestions = suggestions.NewScheduler(
			suggestions.Deps{
				Claims:   d.Claims,
				LLM:      provider,
				Activity: d.Activity,
			},
			suggestions.Config{
				Concurrency:        cfg.Suggestions.Concurrency,
				Debounce:           cfg.Suggestions.DebounceDuration(),
				MinTextLength:      cfg.Suggestions.MinTextLength,
				MaxClaims:          cfg.Suggestions.MaxClaims,
				MaxInputChars:      cfg.Suggestions.MaxInputChars,
				QuoteMaxLength:     cfg.Suggestions.QuoteMaxLength,
				RateLimitBackoff:   cfg.Suggestions.RateLimitBackoffDuration(),
				BootstrapThreshold: cfg.Suggestions.BootstrapThreshold,
				MaxGroups:          cfg.Suggestions.MaxGroups,
			},
			logger,
		)
		trigger = d.Suggestions
	}

	engine := textengine.New(
		textengine.Config{
			MinNativeChars: cfg.Extraction.MinNativeChars,
			MaxPages:       cfg.Extraction.MaxPages,
			ForceDual:      cfg.Extraction.ForceDual,
			MaxFileSize:    cfg.Extraction.MaxFileSizeBytes(),
			RenderDPI:      cfg.Extraction.RenderDPI,
		},
		primary,
		secondary,
		logger,
	)

	d.Extraction = extractions.NewScheduler(
		extractions.Deps{
			Records:     d.Extractions,
			Evidence:    d.Evidence,
			Storage:     infra.Storage,
			Engine:      engine,
			Locks:       infra.Locks,
			Activity:    d.Activity,
			Suggestions: trigger,
		},
		extractions.SchedulerConfig{
			Concurrency:    cfg.Extraction.Concurrency,
			StaleThreshold: cfg.Extraction.StaleThresholdDuration(),
			SweepInterval:  cfg.Extraction.SweepIntervalDuration(),
			TempDir:        cfg.Extraction.TempDir,
		},
		logger,
	)

	return d, nil
}

// OnUpload queues extraction for a newly stored evidence file.
func (d *Domain) OnUpload(ctx context.Context, file *evidence.File) error {
	_, err := d.Extraction.Enqueue(ctx, file.ID)
	return err
}

// Start launches the background schedulers and closes the OCR clients on
// shutdown.
func (d *Domain) Start(lc *lifecycle.Coordinator) error {
	if err := d.Extraction.Start(lc); err != nil {
		return fmt.Errorf("extraction scheduler start failed: %w", err)
	}
	if d.Suggestions != nil {
		if err := d.Suggestions.Start(lc); err != nil {
			return fmt.Errorf("suggestion scheduler start failed: %w", err)
		}
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.Extraction.Wait()
		for _, p := range d.ocr {
			if err := p.Close(); err != nil {
				d.logger.Error("ocr client close failed", "provider", p.Name(), "error", err)
			}
		}
	})
	return nil
}
