package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/go-agents/pkg/agent"
	agtconfig "github.com/JaimeStill/go-agents/pkg/config"

	"github.com/JaimeStill/evidence-lab/internal/config"
)

type agentProvider struct {
	agent  agent.Agent
	logger *slog.Logger
}

// NewAgent creates a provider from a go-agents JSON configuration file merged
// over the library defaults.
func NewAgent(cfg *config.LLMConfig, logger *slog.Logger) (Provider, error) {
	data, err := os.ReadFile(cfg.AgentConfig)
	if err != nil {
		return nil, fmt.Errorf("read agent config: %w", err)
	}

	a, err := buildAgent(data)
	if err != nil {
		return nil, err
	}

	return &agentProvider{
		agent:  a,
		logger: logger.With("system", "llm", "provider", config.LLMProviderAgent),
	}, nil
}

func buildAgent(data []byte) (agent.Agent, error) {
	cfg := agtconfig.DefaultAgentConfig()

	var userCfg agtconfig.AgentConfig
	if err := json.Unmarshal(data, &userCfg); err != nil {
		return nil, fmt.Errorf("parse agent config: %w", err)
	}

	cfg.Merge(&userCfg)

	a, err := agent.New(&cfg)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return a, nil
}

func (p *agentProvider) Name() string {
	return config.LLMProviderAgent
}

func (p *agentProvider) Complete(ctx context.Context, system, user string) (string, error) {
	opts := map[string]any{}
	if system != "" {
		opts["system_prompt"] = system
	}

	resp, err := p.agent.Chat(ctx, user, opts)
	if err != nil {
		return "", Classify(err)
	}

	text := resp.Content()
	p.logger.Debug("completion received", "chars", len(text))
	return text, nil
}
