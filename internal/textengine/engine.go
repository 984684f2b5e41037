// Package textengine produces page text for evidence files. PDF pages use
// embedded text when it is long enough and fall back to OCR of a rendered
// page otherwise; images are OCRed whole; plain text is read as-is. Every
// page carries a trust signal (confidence, agreement between two readings,
// and a review flag).
package textengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"strings"

	"github.com/JaimeStill/evidence-lab/internal/ocr"
)

// Provider name recorded for embedded PDF or plain-text content.
const ProviderNative = "native"

// OCRFailedText replaces the text of a page whose OCR call failed.
const OCRFailedText = "[OCR failed]"

// File kinds reported in Metadata.FileType.
const (
	FileTypePDF   = "pdf"
	FileTypeImage = "image"
	FileTypeText  = "text"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file exceeds maximum extraction size")
	ErrNoOCRProvider     = errors.New("no ocr provider configured")
)

// Config holds the engine thresholds.
type Config struct {
	MinNativeChars int
	MaxPages       int
	ForceDual      bool
	MaxFileSize    int64
	RenderDPI      int
}

// Options adjust a single Extract call.
type Options struct {
	// ForceDual runs OCR even when native text is sufficient.
	ForceDual bool

	// MaxPages overrides the configured page cap when positive.
	MaxPages int

	// Progress is called after each page with the pages done and the
	// number of pages that will be processed.
	Progress func(done, total int)
}

// Page is the extracted text of one page, or of a whole file when
// PageNumber is nil.
type Page struct {
	PageNumber          *int
	ProviderPrimary     string
	ProviderSecondary   *string
	TextPrimary         string
	TextSecondary       *string
	ConfidencePrimary   *int
	ConfidenceSecondary *int
	DiffScore           *int
	NeedsReview         bool
}

// Metadata summarizes an extraction run.
type Metadata struct {
	PagesProcessed     int    `json:"pages_processed"`
	TotalPages         int    `json:"total_pages"`
	UsedNativeText     bool   `json:"used_native_text"`
	UsedOCR            bool   `json:"used_ocr"`
	Capped             bool   `json:"capped"`
	PagesSkipped       int    `json:"pages_skipped"`
	FileType           string `json:"file_type"`
	PagesNeedingReview int    `json:"pages_needing_review"`
}

// Result is the output of Extract.
type Result struct {
	Text     string
	Pages    []Page
	Metadata Metadata
}

// Option configures an Engine.
type Option func(*Engine)

// WithNativeReader replaces the PDF text reader.
func WithNativeReader(r NativeReader) Option {
	return func(e *Engine) { e.native = r }
}

// WithRasterizer replaces the PDF page renderer.
func WithRasterizer(r Rasterizer) Option {
	return func(e *Engine) { e.raster = r }
}

// Engine extracts text from files on local disk.
type Engine struct {
	cfg       Config
	primary   ocr.Provider
	secondary ocr.Provider
	native    NativeReader
	raster    Rasterizer
	logger    *slog.Logger
}

// New creates an Engine. primary may be nil, in which case pages that need
// OCR record OCRFailedText. secondary is optional.
func New(cfg Config, primary, secondary ocr.Provider, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 25
	}
	if cfg.RenderDPI == 0 {
		cfg.RenderDPI = 200
	}

	e := &Engine{
		cfg:       cfg,
		primary:   primary,
		secondary: secondary,
		native:    PDFReader{},
		raster:    NewPDFRasterizer(cfg.RenderDPI),
		logger:    logger.With("system", "textengine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the file at path according to its mime type.
func (e *Engine) Extract(ctx context.Context, path, mimeType string, opts Options) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if e.cfg.MaxFileSize > 0 && info.Size() > e.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	if opts.MaxPages < 1 {
		opts.MaxPages = e.cfg.MaxPages
	}
	opts.ForceDual = opts.ForceDual || e.cfg.ForceDual

	mediaType := baseMediaType(mimeType)

	var result *Result
	switch {
	case mediaType == "application/pdf":
		result, err = e.extractPDF(ctx, path, opts)
	case strings.HasPrefix(mediaType, "image/"):
		result, err = e.extractImage(ctx, path, mediaType, opts)
	case strings.HasPrefix(mediaType, "text/"):
		result, err = e.extractText(path, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	if err != nil {
		return nil, err
	}

	for _, p := range result.Pages {
		if p.NeedsReview {
			result.Metadata.PagesNeedingReview++
		}
	}
	result.Text = Aggregate(result.Pages)

	e.logger.Info(
		"extraction finished",
		"file_type", result.Metadata.FileType,
		"pages", result.Metadata.PagesProcessed,
		"total_pages", result.Metadata.TotalPages,
		"capped", result.Metadata.Capped,
		"needs_review", result.Metadata.PagesNeedingReview,
	)
	return result, nil
}

func (e *Engine) extractText(path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	full := 100
	page := Page{
		ProviderPrimary:   ProviderNative,
		TextPrimary:       text,
		ConfidencePrimary: &full,
		NeedsReview:       NeedsReview(text, nil, &full),
	}
	report(opts, 1, 1)

	return &Result{
		Pages: []Page{page},
		Metadata: Metadata{
			PagesProcessed: 1,
			TotalPages:     1,
			UsedNativeText: true,
			FileType:       FileTypeText,
		},
	}, nil
}

// Aggregate joins page text. Numbered pages are prefixed with a
// "[Page N]" line and separated by blank lines.
func Aggregate(pages []Page) string {
	blocks := make([]string, 0, len(pages))
	for _, p := range pages {
		text := strings.TrimSpace(p.TextPrimary)
		if p.PageNumber == nil {
			blocks = append(blocks, text)
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[Page %d]\n%s", *p.PageNumber, text))
	}
	return strings.Join(blocks, "\n\n")
}

func baseMediaType(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}

func report(opts Options, done, total int) {
	if opts.Progress != nil {
		opts.Progress(done, total)
	}
}
