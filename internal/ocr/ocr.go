// Package ocr wraps the optical character recognition services used by the
// text engine behind a single Provider contract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/JaimeStill/evidence-lab/internal/config"
)

// ErrEmptyImage is returned when DetectText receives no image bytes.
var ErrEmptyImage = errors.New("ocr: empty image")

// Detection is the recognized text of one image with the confidence of each
// detected region on a 0-100 scale.
type Detection struct {
	Text        string
	Confidences []float64
}

// Confidence returns the rounded mean region confidence, or nil when the
// provider reported no regions.
func (d *Detection) Confidence() *int {
	if d == nil || len(d.Confidences) == 0 {
		return nil
	}
	var sum float64
	for _, c := range d.Confidences {
		sum += c
	}
	avg := int(math.Round(sum / float64(len(d.Confidences))))
	return &avg
}

// Provider recognizes text in a single page image.
type Provider interface {
	Name() string
	DetectText(ctx context.Context, image []byte, mimeType string) (*Detection, error)
	Close() error
}

// New builds the provider named by which. It returns a nil Provider for
// config.OCRProviderNone.
func New(ctx context.Context, cfg *config.OCRConfig, which string, logger *slog.Logger) (Provider, error) {
	switch which {
	case config.OCRProviderNone, "":
		return nil, nil
	case config.OCRProviderVision:
		return NewVision(ctx, cfg, logger)
	case config.OCRProviderDocumentAI:
		return NewDocumentAI(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown ocr provider: %s", which)
	}
}

func percent(c float32) float64 {
	v := float64(c) * 100
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
