package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/JaimeStill/evidence-lab/internal/config"
)

type visionProvider struct {
	client  *vision.ImageAnnotatorClient
	timeout time.Duration
	logger  *slog.Logger
}

// NewVision creates a Cloud Vision provider using DOCUMENT_TEXT_DETECTION.
func NewVision(ctx context.Context, cfg *config.OCRConfig, logger *slog.Logger) (Provider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}

	return &visionProvider{
		client:  client,
		timeout: cfg.TimeoutDuration(),
		logger:  logger.With("system", "ocr", "provider", config.OCRProviderVision),
	}, nil
}

func (p *visionProvider) Name() string {
	return config.OCRProviderVision
}

func (p *visionProvider) DetectText(ctx context.Context, image []byte, mimeType string) (*Detection, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{
				Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
			}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("vision annotate: %w", err)
	}

	results := resp.GetResponses()
	if len(results) == 0 {
		return &Detection{}, nil
	}
	if status := results[0].GetError(); status != nil && status.GetCode() != 0 {
		return nil, fmt.Errorf("vision annotate: code %d: %s", status.GetCode(), status.GetMessage())
	}

	annotation := results[0].GetFullTextAnnotation()
	if annotation == nil {
		return &Detection{}, nil
	}

	det := &Detection{Text: annotation.GetText()}
	for _, page := range annotation.GetPages() {
		for _, block := range page.GetBlocks() {
			det.Confidences = append(det.Confidences, percent(block.GetConfidence()))
		}
	}

	p.logger.Debug("vision detection", "chars", len(det.Text), "blocks", len(det.Confidences))
	return det, nil
}

func (p *visionProvider) Close() error {
	return p.client.Close()
}
