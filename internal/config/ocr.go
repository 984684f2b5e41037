package config

import (
	"fmt"
	"time"
)

// OCR provider names.
const (
	OCRProviderNone       = "none"
	OCRProviderVision     = "vision"
	OCRProviderDocumentAI = "documentai"
)

// DocumentAIConfig identifies a Document AI OCR processor.
type DocumentAIConfig struct {
	Project   string `toml:"project"`
	Location  string `toml:"location"`
	Processor string `toml:"processor"`
}

// ProcessorName returns the fully qualified processor resource name.
func (c *DocumentAIConfig) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.Project, c.Location, c.Processor)
}

// OCRConfig selects the primary and optional secondary OCR providers.
type OCRConfig struct {
	Primary         string           `toml:"primary"`
	Secondary       string           `toml:"secondary"`
	Timeout         string           `toml:"timeout"`
	CredentialsFile string           `toml:"credentials_file"`
	DocumentAI      DocumentAIConfig `toml:"document_ai"`
}

func (c *OCRConfig) TimeoutDuration() time.Duration {
	return duration(c.Timeout)
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *OCRConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *OCRConfig) Merge(overlay *OCRConfig) {
	if overlay.Primary != "" {
		c.Primary = overlay.Primary
	}
	if overlay.Secondary != "" {
		c.Secondary = overlay.Secondary
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.CredentialsFile != "" {
		c.CredentialsFile = overlay.CredentialsFile
	}
	if overlay.DocumentAI.Project != "" {
		c.DocumentAI.Project = overlay.DocumentAI.Project
	}
	if overlay.DocumentAI.Location != "" {
		c.DocumentAI.Location = overlay.DocumentAI.Location
	}
	if overlay.DocumentAI.Processor != "" {
		c.DocumentAI.Processor = overlay.DocumentAI.Processor
	}
}

func (c *OCRConfig) loadDefaults() {
	if c.Primary == "" {
		c.Primary = OCRProviderVision
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
	if c.DocumentAI.Location == "" {
		c.DocumentAI.Location = "us"
	}
}

func (c *OCRConfig) loadEnv() {
	envString("OCR_PRIMARY", &c.Primary)
	envString("OCR_SECONDARY", &c.Secondary)
	envString("OCR_TIMEOUT", &c.Timeout)
	envString("GOOGLE_APPLICATION_CREDENTIALS", &c.CredentialsFile)
	envString("OCR_DOCUMENT_AI_PROJECT", &c.DocumentAI.Project)
	envString("OCR_DOCUMENT_AI_LOCATION", &c.DocumentAI.Location)
	envString("OCR_DOCUMENT_AI_PROCESSOR", &c.DocumentAI.Processor)
}

func (c *OCRConfig) validate() error {
	if err := validateOCRProvider(c.Primary); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	if c.Secondary != "" {
		if err := validateOCRProvider(c.Secondary); err != nil {
			return fmt.Errorf("secondary: %w", err)
		}
		if c.Secondary == c.Primary {
			return fmt.Errorf("secondary must differ from primary")
		}
	}
	if c.Primary == OCRProviderDocumentAI || c.Secondary == OCRProviderDocumentAI {
		if c.DocumentAI.Project == "" || c.DocumentAI.Processor == "" {
			return fmt.Errorf("document_ai project and processor required")
		}
	}
	return parseDurations(map[string]string{"timeout": c.Timeout})
}

func validateOCRProvider(name string) error {
	switch name {
	case OCRProviderNone, OCRProviderVision, OCRProviderDocumentAI:
		return nil
	default:
		return fmt.Errorf("unknown provider %q (must be none, vision, or documentai)", name)
	}
}
