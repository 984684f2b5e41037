// Package llm provides the language model contract used for claim suggestion
// and the error taxonomy callers use to decide on retries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JaimeStill/evidence-lab/internal/config"
)

// Provider errors. Adapters wrap their failures with one of these when the
// cause is recognized so callers can branch with errors.Is.
var (
	ErrRateLimited   = errors.New("llm: rate limited")
	ErrUnauthorized  = errors.New("llm: unauthorized")
	ErrNotConfigured = errors.New("llm: no provider configured")
)

// Provider completes a single system + user prompt exchange.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// New builds the provider selected by cfg.Provider. The "none" provider
// returns ErrNotConfigured from every call.
func New(cfg *config.LLMConfig, logger *slog.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.LLMProviderNone:
		return disabled{}, nil
	case config.LLMProviderOpenAI:
		return NewOpenAI(cfg, logger), nil
	case config.LLMProviderAgent:
		return NewAgent(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// Classify wraps err with ErrRateLimited or ErrUnauthorized when its message
// carries a recognizable status. Unrecognized errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnauthorized) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "401"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return err
}

type disabled struct{}

func (disabled) Name() string { return config.LLMProviderNone }

func (disabled) Complete(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}
