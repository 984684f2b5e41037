package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/JaimeStill/evidence-lab/internal/config"
)

type openAIProvider struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates a provider backed by the OpenAI Responses API. SDK
// retries are disabled; retry policy belongs to the caller.
func NewOpenAI(cfg *config.LLMConfig, logger *slog.Logger) Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if timeout := cfg.TimeoutDuration(); timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &openAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger.With("system", "llm", "provider", config.LLMProviderOpenAI),
	}
}

func (p *openAIProvider) Name() string {
	return config.LLMProviderOpenAI
}

func (p *openAIProvider) Complete(ctx context.Context, system, user string) (string, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(p.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(user),
		},
	}
	if system != "" {
		params.Instructions = openai.String(system)
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return "", mapOpenAIError(err)
	}

	text := resp.OutputText()
	p.logger.Debug("completion received", "model", p.model, "chars", len(text))
	return text, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return fmt.Errorf("openai request: %w", err)
	}
	return Classify(err)
}
