package config

import (
	"fmt"
	"time"
)

// LLM provider names.
const (
	LLMProviderNone   = "none"
	LLMProviderOpenAI = "openai"
	LLMProviderAgent  = "agent"
)

// LLMConfig selects the language model used for claim suggestion.
type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Timeout  string `toml:"timeout"`

	// AgentConfig is a go-agents JSON configuration file merged over the
	// library defaults when Provider is "agent".
	AgentConfig string `toml:"agent_config"`
}

func (c *LLMConfig) TimeoutDuration() time.Duration {
	return duration(c.Timeout)
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *LLMConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *LLMConfig) Merge(overlay *LLMConfig) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.AgentConfig != "" {
		c.AgentConfig = overlay.AgentConfig
	}
}

func (c *LLMConfig) loadDefaults() {
	if c.Provider == "" {
		c.Provider = LLMProviderOpenAI
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout == "" {
		c.Timeout = "2m"
	}
}

func (c *LLMConfig) loadEnv() {
	envString("LLM_PROVIDER", &c.Provider)
	envString("LLM_MODEL", &c.Model)
	envString("OPENAI_API_KEY", &c.APIKey)
	envString("LLM_API_KEY", &c.APIKey)
	envString("LLM_BASE_URL", &c.BaseURL)
	envString("LLM_TIMEOUT", &c.Timeout)
	envString("LLM_AGENT_CONFIG", &c.AgentConfig)
}

func (c *LLMConfig) validate() error {
	switch c.Provider {
	case LLMProviderNone:
	case LLMProviderOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("api_key required for openai provider")
		}
	case LLMProviderAgent:
		if c.AgentConfig == "" {
			return fmt.Errorf("agent_config required for agent provider")
		}
	default:
		return fmt.Errorf("unknown provider %q (must be none, openai, or agent)", c.Provider)
	}
	return parseDurations(map[string]string{"timeout": c.Timeout})
}
