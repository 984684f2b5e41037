package ocr_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/JaimeStill/evidence-lab/internal/config"
	"github.com/JaimeStill/evidence-lab/internal/ocr"
)

func TestDetectionConfidence(t *testing.T) {
	tests := []struct {
		name        string
		confidences []float64
		want        *int
	}{
		{"no regions", nil, nil},
		{"single", []float64{87.4}, intPtr(87)},
		{"rounds half up", []float64{70, 71}, intPtr(71)},
		{"mean", []float64{100, 50, 60}, intPtr(70)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &ocr.Detection{Confidences: tt.confidences}
			got := d.Confidence()

			if tt.want == nil {
				if got != nil {
					t.Errorf("Confidence() = %d, want nil", *got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("Confidence() = %v, want %d", got, *tt.want)
			}
		})
	}
}

func TestNilDetectionConfidence(t *testing.T) {
	var d *ocr.Detection
	if d.Confidence() != nil {
		t.Error("nil detection should report nil confidence")
	}
}

func TestNewNone(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.OCRConfig{}

	p, err := ocr.New(context.Background(), cfg, config.OCRProviderNone, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p != nil {
		t.Errorf("New(none) = %v, want nil", p)
	}
}

func TestNewUnknown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.OCRConfig{}

	if _, err := ocr.New(context.Background(), cfg, "tesseract", logger); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func intPtr(v int) *int {
	return &v
}
