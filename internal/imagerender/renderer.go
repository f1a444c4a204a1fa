package imagerender

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// DefaultDPI is used when a non-positive DPI is passed in.
const DefaultDPI = 150

// Options controls rasterisation.
type Options struct {
	DPI   int
	Color ColorMode
}

// PageCount opens data with MuPDF and returns its page count.
func PageCount(data []byte) (int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// RenderPNGs renders every page of the PDF in data to a PNG, in page order.
func RenderPNGs(data []byte, opts Options) ([][]byte, error) {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	out := make([][]byte, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		b, err := renderPage(doc, i, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// renderPage renders the zero-based page i.
func renderPage(doc *fitz.Document, i int, opts Options) ([]byte, error) {
	img, err := doc.ImageDPI(i, float64(opts.DPI))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
	}
	bounds := img.Bounds()

	var final image.Image = img
	if opts.Color == ColorGray {
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, image.Point{}, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, final); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	log.Debug().
		Int("page", i+1).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Str("color", string(opts.Color)).
		Int("png_size", buf.Len()).
		Int("dpi", opts.DPI).
		Msg("rendered page to PNG")

	return buf.Bytes(), nil
}
