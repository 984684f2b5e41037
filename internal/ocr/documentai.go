package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/JaimeStill/evidence-lab/internal/config"
)

type documentAIProvider struct {
	client    *documentai.DocumentProcessorClient
	processor string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDocumentAI creates a Document AI provider bound to the configured OCR
// processor.
func NewDocumentAI(ctx context.Context, cfg *config.OCRConfig, logger *slog.Logger) (Provider, error) {
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.DocumentAI.Location)
	opts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	return &documentAIProvider{
		client:    client,
		processor: cfg.DocumentAI.ProcessorName(),
		timeout:   cfg.TimeoutDuration(),
		logger:    logger.With("system", "ocr", "provider", config.OCRProviderDocumentAI),
	}, nil
}

func (p *documentAIProvider) Name() string {
	return config.OCRProviderDocumentAI
}

func (p *documentAIProvider) DetectText(ctx context.Context, image []byte, mimeType string) (*Detection, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: p.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  image,
				MimeType: mimeType,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}

	doc := resp.GetDocument()
	if doc == nil {
		return &Detection{}, nil
	}

	det := &Detection{Text: doc.GetText()}
	for _, page := range doc.GetPages() {
		for _, block := range page.GetBlocks() {
			if layout := block.GetLayout(); layout != nil {
				det.Confidences = append(det.Confidences, percent(layout.GetConfidence()))
			}
		}
	}

	p.logger.Debug("documentai detection", "chars", len(det.Text), "blocks", len(det.Confidences))
	return det, nil
}

func (p *documentAIProvider) Close() error {
	return p.client.Close()
}
