package textengine

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

func (e *Engine) extractPDF(ctx context.Context, path string, opts Options) (*Result, error) {
	meta := Metadata{FileType: FileTypePDF}

	native, err := e.native.PageTexts(path)
	if err != nil {
		e.logger.Warn("native text unavailable, using ocr", "error", err)
		native = nil
	}

	var pages PageImages
	openPages := func() (PageImages, error) {
		if pages != nil {
			return pages, nil
		}
		p, err := e.raster.Open(path)
		if err != nil {
			return nil, err
		}
		pages = p
		return pages, nil
	}
	defer func() {
		if pages != nil {
			pages.Close()
		}
	}()

	if native == nil {
		return e.extractPDFBlind(ctx, openPages, opts, meta)
	}

	meta.TotalPages = len(native)
	limit := min(len(native), opts.MaxPages)
	if len(native) > limit {
		meta.Capped = true
		meta.PagesSkipped = len(native) - limit
	}

	results := make([]Page, 0, limit)
	for i := range limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageNum := i + 1
		text := strings.TrimSpace(native[i])

		if utf8.RuneCountInString(text) >= e.cfg.MinNativeChars && !opts.ForceDual {
			results = append(results, nativePage(pageNum, text))
			meta.UsedNativeText = true
			report(opts, pageNum, limit)
			continue
		}

		var image []byte
		pi, err := openPages()
		if err == nil {
			image, err = pi.Render(pageNum)
		}
		if err != nil {
			e.logger.Warn("page render failed", "page", pageNum, "error", err)
		}

		page := e.ocrPage(ctx, image, "image/png", text, opts.ForceDual)
		page.PageNumber = &pageNum
		if text != "" {
			meta.UsedNativeText = true
		}
		meta.UsedOCR = true

		results = append(results, page)
		report(opts, pageNum, limit)
	}

	meta.PagesProcessed = len(results)
	return &Result{Pages: results, Metadata: meta}, nil
}

// extractPDFBlind handles PDFs whose structure could not be parsed. Pages
// are rendered in order until a page fails to render or the cap is reached.
func (e *Engine) extractPDFBlind(ctx context.Context, open func() (PageImages, error), opts Options, meta Metadata) (*Result, error) {
	pages, err := open()
	if err != nil {
		return nil, err
	}

	var results []Page
	for pageNum := 1; pageNum <= opts.MaxPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		image, err := pages.Render(pageNum)
		if err != nil {
			break
		}

		page := e.ocrPage(ctx, image, "image/png", "", opts.ForceDual)
		page.PageNumber = &pageNum
		results = append(results, page)
		meta.UsedOCR = true
		report(opts, pageNum, opts.MaxPages)
	}

	meta.PagesProcessed = len(results)
	meta.TotalPages = len(results)
	if len(results) == opts.MaxPages {
		if _, err := pages.Render(opts.MaxPages + 1); err == nil {
			meta.Capped = true
		}
	}
	return &Result{Pages: results, Metadata: meta}, nil
}

func nativePage(pageNum int, text string) Page {
	full := 100
	return Page{
		PageNumber:        &pageNum,
		ProviderPrimary:   ProviderNative,
		TextPrimary:       text,
		ConfidencePrimary: &full,
		NeedsReview:       NeedsReview(text, nil, &full),
	}
}

// ocrPage runs the primary provider on image. Short native text becomes the
// secondary reading; with no native text and forceDual set, the secondary
// provider runs concurrently with the primary one.
func (e *Engine) ocrPage(ctx context.Context, image []byte, mimeType, native string, forceDual bool) Page {
	page := Page{ProviderPrimary: providerName(e.primary)}

	runSecondary := native == "" && forceDual && e.secondary != nil && image != nil

	var (
		primaryText, secondaryText string
		primaryConf, secondaryConf *int
		primaryErr, secondaryErr   error
	)

	var g errgroup.Group
	g.Go(func() error {
		if image == nil {
			primaryErr = ErrNoOCRProvider
			if e.primary != nil {
				primaryErr = errRenderFailed
			}
			return nil
		}
		primaryText, primaryConf, primaryErr = detect(ctx, e.primary, image, mimeType)
		return nil
	})
	if runSecondary {
		g.Go(func() error {
			secondaryText, secondaryConf, secondaryErr = detect(ctx, e.secondary, image, mimeType)
			return nil
		})
	}
	g.Wait()

	if primaryErr != nil {
		e.logger.Warn("ocr failed", "provider", page.ProviderPrimary, "error", primaryErr)
		page.TextPrimary = OCRFailedText
		page.NeedsReview = true
		return page
	}

	page.TextPrimary = primaryText
	page.ConfidencePrimary = primaryConf

	switch {
	case native != "":
		full := 100
		provider := ProviderNative
		page.ProviderSecondary = &provider
		page.TextSecondary = &native
		page.ConfidenceSecondary = &full
	case runSecondary && secondaryErr == nil:
		provider := e.secondary.Name()
		page.ProviderSecondary = &provider
		page.TextSecondary = &secondaryText
		page.ConfidenceSecondary = secondaryConf
	case runSecondary:
		e.logger.Warn("secondary ocr failed", "provider", e.secondary.Name(), "error", secondaryErr)
	}

	if page.TextSecondary != nil {
		diff := Similarity(page.TextPrimary, *page.TextSecondary)
		page.DiffScore = &diff
	}

	page.NeedsReview = NeedsReview(page.TextPrimary, page.DiffScore, page.ConfidencePrimary)
	return page
}
