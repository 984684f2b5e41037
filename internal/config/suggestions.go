package config

import (
	"fmt"
	"time"
)

// SuggestionsConfig tunes background claim suggestion.
type SuggestionsConfig struct {
	Enabled            *bool  `toml:"enabled"`
	Concurrency        int    `toml:"concurrency"`
	Debounce           string `toml:"debounce"`
	MinTextLength      int    `toml:"min_text_length"`
	MaxClaims          int    `toml:"max_claims"`
	MaxInputChars      int    `toml:"max_input_chars"`
	QuoteMaxLength     int    `toml:"quote_max_length"`
	RateLimitBackoff   string `toml:"rate_limit_backoff"`
	BootstrapThreshold int    `toml:"bootstrap_threshold"`
	MaxGroups          int    `toml:"max_groups"`
}

// IsEnabled reports whether automatic suggestion runs after extraction.
func (c *SuggestionsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *SuggestionsConfig) DebounceDuration() time.Duration {
	return duration(c.Debounce)
}

func (c *SuggestionsConfig) RateLimitBackoffDuration() time.Duration {
	return duration(c.RateLimitBackoff)
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *SuggestionsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *SuggestionsConfig) Merge(overlay *SuggestionsConfig) {
	if overlay.Enabled != nil {
		c.Enabled = overlay.Enabled
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.Debounce != "" {
		c.Debounce = overlay.Debounce
	}
	if overlay.MinTextLength != 0 {
		c.MinTextLength = overlay.MinTextLength
	}
	if overlay.MaxClaims != 0 {
		c.MaxClaims = overlay.MaxClaims
	}
	if overlay.MaxInputChars != 0 {
		c.MaxInputChars = overlay.MaxInputChars
	}
	if overlay.QuoteMaxLength != 0 {
		c.QuoteMaxLength = overlay.QuoteMaxLength
	}
	if overlay.RateLimitBackoff != "" {
		c.RateLimitBackoff = overlay.RateLimitBackoff
	}
	if overlay.BootstrapThreshold != 0 {
		c.BootstrapThreshold = overlay.BootstrapThreshold
	}
	if overlay.MaxGroups != 0 {
		c.MaxGroups = overlay.MaxGroups
	}
}

func (c *SuggestionsConfig) loadDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 2
	}
	if c.Debounce == "" {
		c.Debounce = "60s"
	}
	if c.MinTextLength == 0 {
		c.MinTextLength = 300
	}
	if c.MaxClaims == 0 {
		c.MaxClaims = 10
	}
	if c.MaxInputChars == 0 {
		c.MaxInputChars = 30000
	}
	if c.QuoteMaxLength == 0 {
		c.QuoteMaxLength = 500
	}
	if c.RateLimitBackoff == "" {
		c.RateLimitBackoff = "30s"
	}
	if c.BootstrapThreshold == 0 {
		c.BootstrapThreshold = 3
	}
	if c.MaxGroups == 0 {
		c.MaxGroups = 8
	}
}

func (c *SuggestionsConfig) loadEnv() {
	enabled := c.IsEnabled()
	envBool("SUGGESTIONS_ENABLED", &enabled)
	c.Enabled = &enabled

	envInt("SUGGESTIONS_CONCURRENCY", &c.Concurrency)
	envString("SUGGESTIONS_DEBOUNCE", &c.Debounce)
	envInt("SUGGESTIONS_MIN_TEXT_LENGTH", &c.MinTextLength)
	envInt("SUGGESTIONS_MAX_CLAIMS", &c.MaxClaims)
	envString("SUGGESTIONS_RATE_LIMIT_BACKOFF", &c.RateLimitBackoff)
}

func (c *SuggestionsConfig) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.MaxClaims < 1 {
		return fmt.Errorf("max_claims must be at least 1")
	}
	if c.QuoteMaxLength < 1 {
		return fmt.Errorf("quote_max_length must be at least 1")
	}
	return parseDurations(map[string]string{
		"debounce":           c.Debounce,
		"rate_limit_backoff": c.RateLimitBackoff,
	})
}
