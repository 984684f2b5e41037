package textengine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/image/bmp"

	"github.com/JaimeStill/evidence-lab/internal/ocr"
	"github.com/JaimeStill/evidence-lab/internal/textengine"
)

type fakeOCR struct {
	name  string
	text  string
	conf  []float64
	err   error
	mu    sync.Mutex
	calls int
	mimes []string
	heads [][]byte
}

func (f *fakeOCR) Name() string { return f.name }

func (f *fakeOCR) DetectText(_ context.Context, img []byte, mimeType string) (*ocr.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.mimes = append(f.mimes, mimeType)
	f.heads = append(f.heads, img[:min(len(img), 8)])
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.Detection{Text: f.text, Confidences: f.conf}, nil
}

func (f *fakeOCR) Close() error { return nil }

func (f *fakeOCR) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNative struct {
	pages []string
	err   error
}

func (f fakeNative) PageTexts(string) ([]string, error) {
	return f.pages, f.err
}

type fakeRaster struct {
	pageCount int
	rendered  []int
}

func (f *fakeRaster) Open(string) (textengine.PageImages, error) {
	return f, nil
}

func (f *fakeRaster) Render(pageNum int) ([]byte, error) {
	if pageNum > f.pageCount {
		return nil, fmt.Errorf("page %d out of range", pageNum)
	}
	f.rendered = append(f.rendered, pageNum)
	return []byte(fmt.Sprintf("png-page-%d", pageNum)), nil
}

func (f *fakeRaster) Close() error { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func defaultConfig() textengine.Config {
	return textengine.Config{MinNativeChars: 50, MaxPages: 25, RenderDPI: 200}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"identical", "the quick fox", "the quick fox", 100},
		{"case and spacing", "The  Quick\nFox", "the quick fox", 100},
		{"disjoint", "alpha beta", "gamma delta", 0},
		{"half overlap", "a b c", "a b d", 50},
		{"both empty", "", "   ", 100},
		{"one empty", "words here", "", 0},
		{"duplicates ignored", "a a a b", "a b", 100},
		{"rounded", "a b c", "a b c d e f", 50},
		{"one of three", "a b", "a c", 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textengine.Similarity(tt.a, tt.b); got != tt.want {
				t.Errorf("Similarity(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := textengine.Similarity(tt.b, tt.a); got != tt.want {
				t.Errorf("Similarity is not symmetric for %q, %q", tt.a, tt.b)
			}
		})
	}
}

func TestNeedsReview(t *testing.T) {
	long := strings.Repeat("x", 20)
	ptr := func(v int) *int { return &v }

	tests := []struct {
		name       string
		text       string
		diff       *int
		confidence *int
		want       bool
	}{
		{"19 chars", strings.Repeat("x", 19), nil, nil, true},
		{"20 chars", long, nil, nil, false},
		{"multibyte counts runes", strings.Repeat("é", 20), nil, nil, false},
		{"diff 74", long, ptr(74), nil, true},
		{"diff 75", long, ptr(75), nil, false},
		{"confidence 69", long, nil, ptr(69), true},
		{"confidence 70", long, nil, ptr(70), false},
		{"all good", long, ptr(100), ptr(100), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textengine.NeedsReview(tt.text, tt.diff, tt.confidence); got != tt.want {
				t.Errorf("NeedsReview() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	one, two := 1, 2
	pages := []textengine.Page{
		{PageNumber: &one, TextPrimary: "first page"},
		{PageNumber: &two, TextPrimary: " second page \n"},
	}

	want := "[Page 1]\nfirst page\n\n[Page 2]\nsecond page"
	if got := textengine.Aggregate(pages); got != want {
		t.Errorf("Aggregate() = %q, want %q", got, want)
	}

	single := []textengine.Page{{TextPrimary: "whole image"}}
	if got := textengine.Aggregate(single); got != "whole image" {
		t.Errorf("Aggregate(single) = %q", got)
	}
}

func TestExtractPDFMixedPages(t *testing.T) {
	longNative := strings.Repeat("native text ", 10)
	shortNative := "Lease agreement between tenant and owner"

	primary := &fakeOCR{
		name: "vision",
		text: "Lease agreement between tenant and owner",
		conf: []float64{92, 92},
	}
	raster := &fakeRaster{pageCount: 2}
	engine := textengine.New(
		defaultConfig(), primary, nil, discard(),
		textengine.WithNativeReader(fakeNative{pages: []string{longNative, shortNative}}),
		textengine.WithRasterizer(raster),
	)

	path := writeFile(t, "lease.pdf", []byte("%PDF-1.4"))
	result, err := engine.Extract(context.Background(), path, "application/pdf", textengine.Options{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(result.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(result.Pages))
	}

	native := result.Pages[0]
	if native.ProviderPrimary != textengine.ProviderNative {
		t.Errorf("page 1 provider = %q, want native", native.ProviderPrimary)
	}
	if native.ConfidencePrimary == nil || *native.ConfidencePrimary != 100 {
		t.Errorf("page 1 confidence = %v, want 100", native.ConfidencePrimary)
	}

	ocrd := result.Pages[1]
	if ocrd.ProviderPrimary != "vision" {
		t.Errorf("page 2 provider = %q, want vision", ocrd.ProviderPrimary)
	}
	if ocrd.ConfidencePrimary == nil || *ocrd.ConfidencePrimary != 92 {
		t.Errorf("page 2 confidence = %v, want 92", ocrd.ConfidencePrimary)
	}
	if ocrd.TextSecondary == nil || *ocrd.TextSecondary != shortNative {
		t.Errorf("page 2 secondary text = %v, want native text", ocrd.TextSecondary)
	}
	if ocrd.DiffScore == nil || *ocrd.DiffScore != 100 {
		t.Errorf("page 2 diff = %v, want 100", ocrd.DiffScore)
	}
	if ocrd.NeedsReview {
		t.Error("page 2 should not need review")
	}

	if primary.Calls() != 1 {
		t.Errorf("ocr calls = %d, want 1", primary.Calls())
	}
	if len(raster.rendered) != 1 || raster.rendered[0] != 2 {
		t.Errorf("rendered = %v, want [2]", raster.rendered)
	}

	meta := result.Metadata
	if !meta.UsedNativeText || !meta.UsedOCR {
		t.Errorf("metadata = %+v, want native and ocr used", meta)
	}
	if meta.TotalPages != 2 || meta.PagesProcessed != 2 || meta.Capped {
		t.Errorf("metadata = %+v", meta)
	}
	if !strings.HasPrefix(result.Text, "[Page 1]\n") || !strings.Contains(result.Text, "\n\n[Page 2]\n") {
		t.Errorf("aggregate text = %q", result.Text)
	}
}

func TestExtractPDFNativeThresholdCountsCharacters(t *testing.T) {
	// 30 characters, 60 bytes.
	accented := strings.Repeat("é", 30)

	primary := &fakeOCR{name: "vision", text: "bail signé", conf: []float64{90}}
	engine := textengine.New(
		defaultConfig(), primary, nil, discard(),
		textengine.WithNativeReader(fakeNative{pages: []string{accented}}),
		textengine.WithRasterizer(&fakeRaster{pageCount: 1}),
	)

	path := writeFile(t, "bail.pdf", []byte("%PDF-1.4"))
	result, err := engine.Extract(context.Background(), path, "application/pdf", textengine.Options{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if primary.Calls() != 1 {
		t.Errorf("ocr calls = %d, want 1", primary.Calls())
	}
	if got := result.Pages[0].ProviderPrimary; got != "vision" {
		t.Errorf("provider = %q, want vision", got)
	}
	if sec := result.Pages[0].TextSecondary; sec == nil || *sec != accented {
		t.Errorf("secondary text = %v, want native text", sec)
	}
}

// overlapOCR records the most calls in flight at once.
type overlapOCR struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (o *overlapOCR) Name() string { return "vision" }

func (o *overlapOCR) DetectText(context.Context, []byte, string) (*ocr.Detection, error) {
	n := o.inFlight.Add(1)
	defer o.inFlight.Add(-1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			break
		}
	}
	o.calls.Add(1)
	time.Sleep(5 * time.Millisecond)
	return &ocr.Detection{Text: "scanned page", Confidences: []float64{95}}, nil
}

func (o *overlapOCR) Close() error { return nil }

func TestExtractPDFPagesOCRedOneAtATime(t *testing.T) {
	primary := &overlapOCR{}
	engine := textengine.New(
		defaultConfig(), primary, nil, discard(),
		textengine.WithNativeReader(fakeNative{pages: []string{"", "", "", ""}}),
		textengine.WithRasterizer(&fakeRaster{pageCount: 4}),
	)

	path := writeFile(t, "scan.pdf", []byte("%PDF-1.4"))
	result, err := engine.Extract(context.Background(), path, "application/pdf", textengine.Options{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(result.Pages) != 4 || primary.calls.Load() != 4 {
		t.Fatalf("pages = %d, calls = %d, want 4 each", len(result.Pages), primary.calls.Load())
	}
	if peak := primary.peak.Load(); peak != 1 {
		t.Errorf("concurrent ocr calls within one job = %d, want 1", peak)
	}
}

func TestExtractPDFOCRFailureContinues(t *testing.T) {
	primary := &fakeOCR{name: "vision", err: errors.New("deadline exceeded")}
	engine := textengine.New(
		defaultConfig(), primary, nil, discard(),
		textengine.WithNativeReader(fakeNative{pages: []string{"", ""}}),
		textengine.WithRasterizer(&fakeRaster{pageCount: 2}),
	)

	path := writeFile(t, "scan.pdf", []byte("%PDF-1.4"))
	result, err := engine.Extract(context.Background(), path, "application/pdf", textengine.Options{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(result.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(result.Pages))
	}
	for _, p := range result.Pages {
		if p.TextPrimary != textengine.OCRFailedText {
			t.Errorf("page %d text = %q, want sentinel", *p.PageNumber, p.TextPrimary)
		}
		if !p.NeedsReview {
			t.Errorf("page %d should need review", *p.PageNumber)
		}
	}
	if result.Metadata.PagesNeedingReview != 2 {
		t.Errorf("pages needing review = %d, want 2", result.Metadata.PagesNeedingReview)
	}
}

func TestExtractPDFPageCap(t *testing.T) {
	long := strings.Repeat("y", 80)
	engine := textengine.New(
		defaultConfig(), nil, nil, discard(),
		textengine.WithNativeReader(fakeNative{pages: []string{long, long, long, long, long}}),
		textengine.WithRasterizer(&fakeRaster{pageCount: 5}),
	)

	var progress []int
	path := writeFile(t, "big.pdf", []byte("%PDF-1.4"))
	result, err := engine.Extract(context.Background(), path, "application/pdf", textengine.Options{
		MaxPages: 2,
		Progress: func(done, total int) { progress = append(progress, done*100/total) },
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	meta := result.Metadata
	if !meta.Capped || meta.PagesSkipped != 3 || meta.PagesProcessed != 2 || meta.TotalPages != 5 {
		t.Errorf("metadata = %+v, want capped with 3 skipped", meta)
	}
	if len(progress) != 2 || progress[1] != 100 {
		t.Errorf("progress = %v", progress)
	}
}

func TestExtractPDFNativeFailureFallsBack(t *testing.T) {
	primary := &fakeOCR{name: "vision", text: strings.Repeat("scanned words ", 5), conf: []float64{88}}
	raster := &fakeRaster{pageCount: 3}
	engine := textengine.New(
		defaultConfig(), primary, nil, discard(),
		textengine.WithNativeReader(fakeNative{err: errors.New("xref corrupt")}),
		textengine.WithRasterizer(raster),
	)

	path := writeFile(t, "broken.pdf", []byte("not really a pdf"))
	result, err := engine.Extract(context.Background(), path, "application/pdf", textengine.Options{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Metadata.PagesProcessed != 3 || result.Metadata.TotalPages != 3 {
		t.Errorf("metadata = %+v, want 3 pages", result.Metadata)
	}
	if result.Metadata.UsedNativeText {
		t.Error("native text should not be reported")
	}
	if primary.Calls() != 3 {
		t.Errorf("ocr calls = %d, want 3", primary.Calls())
	}
}

func TestExtractPDFForceDualSecondaryProvider(t *testing.T) {
	primary := &fakeOCR{name: "vision", text: "alpha beta gamma delta epsilon", conf: []float64{95}}
	secondary := &fakeOCR{name: "documentai", text: "alpha beta gamma delta zeta", conf: []float64{90}}
	engine := textengine.New(
		defaultConfig(), primary, secondary, discard(),
		textengine.WithNativeReader(fakeNative{pages: []string{""}}),
		textengine.WithRasterizer(&fakeRaster{pageCount: 1}),
	)

	path := writeFile(t, "dual.pdf", []byte("%PDF-1.4"))
	result, err := engine.Extract(context.Background(), path, "application/pdf", textengine.Options{ForceDual: true})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	page := result.Pages[0]
	if page.ProviderSecondary == nil || *page.ProviderSecondary != "documentai" {
		t.Fatalf("secondary provider = %v, want documentai", page.ProviderSecondary)
	}
	if page.DiffScore == nil || *page.DiffScore != 67 {
		t.Errorf("diff = %v, want 67", page.DiffScore)
	}
	if !page.NeedsReview {
		t.Error("diff below 75 should need review")
	}
	if secondary.Calls() != 1 {
		t.Errorf("secondary calls = %d, want 1", secondary.Calls())
	}
}

func TestExtractPDFForceDualSkipsSecondaryWithNative(t *testing.T) {
	native := strings.Repeat("word ", 20)
	primary := &fakeOCR{name: "vision", text: native, conf: []float64{99}}
	secondary := &fakeOCR{name: "documentai", text: native}
	engine := textengine.New(
		defaultConfig(), primary, secondary, discard(),
		textengine.WithNativeReader(fakeNative{pages: []string{native}}),
		textengine.WithRasterizer(&fakeRaster{pageCount: 1}),
	)

	path := writeFile(t, "dual.pdf", []byte("%PDF-1.4"))
	result, err := engine.Extract(context.Background(), path, "application/pdf", textengine.Options{ForceDual: true})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	page := result.Pages[0]
	if page.ProviderSecondary == nil || *page.ProviderSecondary != textengine.ProviderNative {
		t.Errorf("secondary provider = %v, want native", page.ProviderSecondary)
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary calls = %d, want 0", secondary.Calls())
	}
}

func TestExtractImageNormalizesBMP(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}

	primary := &fakeOCR{name: "vision", text: "receipt total due forty dollars", conf: []float64{81}}
	engine := textengine.New(defaultConfig(), primary, nil, discard())

	path := writeFile(t, "photo.bmp", buf.Bytes())
	result, err := engine.Extract(context.Background(), path, "image/bmp", textengine.Options{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(result.Pages) != 1 || result.Pages[0].PageNumber != nil {
		t.Fatalf("pages = %+v, want one unnumbered page", result.Pages)
	}
	if primary.mimes[0] != "image/png" {
		t.Errorf("ocr mime = %q, want image/png", primary.mimes[0])
	}
	if !bytes.HasPrefix(primary.heads[0], []byte("\x89PNG")) {
		t.Error("ocr input is not a png")
	}
	if result.Metadata.FileType != textengine.FileTypeImage {
		t.Errorf("file type = %q", result.Metadata.FileType)
	}
}

func TestExtractText(t *testing.T) {
	engine := textengine.New(defaultConfig(), nil, nil, discard())

	path := writeFile(t, "notes.txt", []byte("  Tenant reported the leak on March 3.\n"))
	result, err := engine.Extract(context.Background(), path, "text/plain; charset=utf-8", textengine.Options{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if result.Text != "Tenant reported the leak on March 3." {
		t.Errorf("text = %q", result.Text)
	}
	if result.Pages[0].PageNumber != nil || result.Pages[0].ProviderPrimary != textengine.ProviderNative {
		t.Errorf("page = %+v", result.Pages[0])
	}
}

func TestExtractErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxFileSize = 8
	engine := textengine.New(cfg, nil, nil, discard())

	small := writeFile(t, "a.zip", []byte("PK"))
	if _, err := engine.Extract(context.Background(), small, "application/zip", textengine.Options{}); !errors.Is(err, textengine.ErrUnsupportedFormat) {
		t.Errorf("zip error = %v, want ErrUnsupportedFormat", err)
	}

	large := writeFile(t, "big.txt", []byte("more than eight bytes"))
	if _, err := engine.Extract(context.Background(), large, "text/plain", textengine.Options{}); !errors.Is(err, textengine.ErrFileTooLarge) {
		t.Errorf("large error = %v, want ErrFileTooLarge", err)
	}
}
