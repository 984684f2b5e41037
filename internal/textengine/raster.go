package textengine

import (
	"fmt"

	dcconfig "github.com/JaimeStill/document-context/pkg/config"
	"github.com/JaimeStill/document-context/pkg/document"
	"github.com/JaimeStill/document-context/pkg/image"
)

// Rasterizer opens a PDF for page rendering.
type Rasterizer interface {
	Open(path string) (PageImages, error)
}

// PageImages renders 1-indexed pages of an open document to PNG.
type PageImages interface {
	Render(pageNum int) ([]byte, error)
	Close() error
}

// PDFRasterizer renders PDF pages with document-context's ImageMagick
// renderer.
type PDFRasterizer struct {
	dpi int
}

func NewPDFRasterizer(dpi int) *PDFRasterizer {
	return &PDFRasterizer{dpi: dpi}
}

func (r *PDFRasterizer) Open(path string) (PageImages, error) {
	doc, err := document.Open(path, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	renderer, err := image.NewImageMagickRenderer(dcconfig.ImageConfig{
		Format:  string(document.PNG),
		DPI:     r.dpi,
		Options: make(map[string]any),
	})
	if err != nil {
		doc.Close()
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	return &pdfPages{doc: doc, renderer: renderer}, nil
}

type pdfPages struct {
	doc      document.Document
	renderer image.Renderer
}

func (p *pdfPages) Render(pageNum int) ([]byte, error) {
	page, err := p.doc.ExtractPage(pageNum)
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", pageNum, err)
	}

	data, err := page.ToImage(p.renderer, nil)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageNum, err)
	}
	return data, nil
}

func (p *pdfPages) Close() error {
	return p.doc.Close()
}
