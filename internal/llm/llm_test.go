package llm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/JaimeStill/evidence-lab/internal/config"
	"github.com/JaimeStill/evidence-lab/internal/llm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"status 429", errors.New("POST /v1/chat: 429 Too Many Requests"), llm.ErrRateLimited},
		{"rate limit text", errors.New("Rate limit reached for model"), llm.ErrRateLimited},
		{"status 401", errors.New("HTTP 401"), llm.ErrUnauthorized},
		{"unauthorized text", errors.New("request Unauthorized"), llm.ErrUnauthorized},
		{"already classified", fmt.Errorf("wrap: %w", llm.ErrRateLimited), llm.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := llm.Classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	if llm.Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}

	base := errors.New("connection reset by peer")
	got := llm.Classify(base)
	if got != base {
		t.Errorf("Classify() = %v, want unchanged error", got)
	}
	if errors.Is(got, llm.ErrRateLimited) || errors.Is(got, llm.ErrUnauthorized) {
		t.Error("unrecognized error must not be classified")
	}
}

func TestNewNoneProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := llm.New(&config.LLMConfig{Provider: config.LLMProviderNone}, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := p.Complete(context.Background(), "system", "user"); !errors.Is(err, llm.ErrNotConfigured) {
		t.Errorf("Complete() error = %v, want ErrNotConfigured", err)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := llm.New(&config.LLMConfig{Provider: "palm"}, logger); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewOpenAIName(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := llm.NewOpenAI(&config.LLMConfig{APIKey: "test", Model: "gpt-4o-mini", Timeout: "30s"}, logger)
	if p.Name() != config.LLMProviderOpenAI {
		t.Errorf("Name() = %q", p.Name())
	}
}
