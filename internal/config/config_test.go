package config_test

import (
	"testing"
	"time"

	"github.com/JaimeStill/evidence-lab/internal/config"
)

const baseTOML = `
shutdown_timeout = "20s"

[server]
port = 9090

[database]
name = "evidence_lab"
user = "evidence"

[llm]
provider = "openai"
api_key = "sk-test"

[extraction]
max_pages = 40
`

func parse(t *testing.T, data string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg
}

func TestFinalize_Defaults(t *testing.T) {
	cfg := parse(t, baseTOML)
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.ShutdownTimeoutDuration() != 20*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 20s", cfg.ShutdownTimeoutDuration())
	}
	if cfg.Server.Addr() != "0.0.0.0:9090" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}

	ext := cfg.Extraction
	if ext.Concurrency != 2 || ext.MinNativeChars != 50 || ext.MaxPages != 40 {
		t.Errorf("extraction = %+v", ext)
	}
	if ext.StaleThresholdDuration() != 15*time.Minute {
		t.Errorf("StaleThreshold = %v, want 15m", ext.StaleThresholdDuration())
	}
	if ext.MaxFileSizeBytes() != 50_000_000 {
		t.Errorf("MaxFileSizeBytes = %d", ext.MaxFileSizeBytes())
	}

	sug := cfg.Suggestions
	if !sug.IsEnabled() || sug.DebounceDuration() != time.Minute || sug.RateLimitBackoffDuration() != 30*time.Second {
		t.Errorf("suggestions = %+v", sug)
	}
	if sug.MinTextLength != 300 || sug.MaxClaims != 10 || sug.QuoteMaxLength != 500 {
		t.Errorf("suggestions limits = %+v", sug)
	}

	if cfg.OCR.Primary != config.OCRProviderVision {
		t.Errorf("OCR.Primary = %q", cfg.OCR.Primary)
	}
	if cfg.Lease.Backend != "memory" {
		t.Errorf("Lease.Backend = %q", cfg.Lease.Backend)
	}
	if cfg.Pagination.DefaultPageSize != 50 || cfg.Pagination.MaxPageSize != 200 {
		t.Errorf("pagination = %+v", cfg.Pagination)
	}
}

func TestFinalize_EnvOverrides(t *testing.T) {
	t.Setenv("EXTRACTION_CONCURRENCY", "4")
	t.Setenv("SUGGESTIONS_ENABLED", "false")
	t.Setenv("DATABASE_NAME", "from_env")
	t.Setenv("LOGGING_FORMAT", "json")

	cfg := parse(t, baseTOML)
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Extraction.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Extraction.Concurrency)
	}
	if cfg.Suggestions.IsEnabled() {
		t.Error("IsEnabled() = true, want false")
	}
	if cfg.Database.Name != "from_env" {
		t.Errorf("Database.Name = %q", cfg.Database.Name)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
}

func TestMerge_Overlay(t *testing.T) {
	cfg := parse(t, baseTOML)
	overlay := parse(t, `
[extraction]
stale_threshold = "5m"

[ocr]
secondary = "documentai"

[ocr.document_ai]
project = "p"
processor = "proc"
`)

	cfg.Merge(overlay)
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Extraction.MaxPages != 40 {
		t.Errorf("MaxPages = %d, overlay should not reset it", cfg.Extraction.MaxPages)
	}
	if cfg.Extraction.StaleThresholdDuration() != 5*time.Minute {
		t.Errorf("StaleThreshold = %v", cfg.Extraction.StaleThresholdDuration())
	}
	if got := cfg.OCR.DocumentAI.ProcessorName(); got != "projects/p/locations/us/processors/proc" {
		t.Errorf("ProcessorName() = %q", got)
	}
}

func TestFinalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"bad debounce", baseTOML + `
[suggestions]
debounce = "soon"
`},
		{"missing api key", `
[database]
name = "n"
user = "u"
[llm]
provider = "openai"
`},
		{"same ocr providers", baseTOML + `
[ocr]
primary = "vision"
secondary = "vision"
`},
		{"documentai without processor", baseTOML + `
[ocr]
primary = "documentai"
`},
		{"unknown llm provider", `
[database]
name = "n"
user = "u"
[llm]
provider = "claude-local"
`},
	}

	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := parse(t, tt.toml)
			if err := cfg.Finalize(); err == nil {
				t.Error("Finalize() error = nil, want error")
			}
		})
	}
}
