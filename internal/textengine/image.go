package textengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/JaimeStill/evidence-lab/internal/ocr"
)

var errRenderFailed = errors.New("page render failed")

// ocrNative lists image types OCR providers accept without conversion.
var ocrNative = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
}

func (e *Engine) extractImage(ctx context.Context, path, mediaType string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	if !ocrNative[mediaType] {
		converted, err := NormalizeImage(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		data = converted
		mediaType = "image/png"
	}

	page := e.ocrPage(ctx, data, mediaType, "", opts.ForceDual)
	report(opts, 1, 1)

	return &Result{
		Pages: []Page{page},
		Metadata: Metadata{
			PagesProcessed: 1,
			TotalPages:     1,
			UsedOCR:        true,
			FileType:       FileTypeImage,
		},
	}, nil
}

// NormalizeImage decodes TIFF, BMP, WEBP or any registered format and
// re-encodes it as PNG.
func NormalizeImage(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func detect(ctx context.Context, p ocr.Provider, image []byte, mimeType string) (string, *int, error) {
	if p == nil {
		return "", nil, ErrNoOCRProvider
	}
	det, err := p.DetectText(ctx, image, mimeType)
	if err != nil {
		return "", nil, err
	}
	return det.Text, det.Confidence(), nil
}

func providerName(p ocr.Provider) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}
