// Package pdftest generates small in-memory fixtures for tests: solid PNG and
// JPEG images and multi-page PDFs whose page widths grow with the page number,
// so page order survives a round trip through pdfcpu and can be asserted.
package pdftest

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// BaseWidth is the width of page 1; page n is BaseWidth + (n-1)*WidthStep wide.
const (
	BaseWidth = 100
	WidthStep = 20
	Height    = 120
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// PNG returns a solid PNG of the given size.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(w, h, color.RGBA{R: 200, G: 40, B: 40, A: 255})); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG returns a solid JPEG of the given size.
func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(w, h, color.RGBA{R: 40, G: 40, B: 200, A: 255}), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// Document returns an n-page PDF. Page widths strictly increase with the
// page number.
func Document(t testing.TB, n int) []byte {
	t.Helper()
	imgs := make([]io.Reader, n)
	for i := 0; i < n; i++ {
		imgs[i] = bytes.NewReader(PNG(t, BaseWidth+i*WidthStep, Height))
	}
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, imgs, imp, conf); err != nil {
		t.Fatalf("build fixture pdf: %v", err)
	}
	return out.Bytes()
}

// PageOrder maps each page of doc back to the fixture page number it came
// from, using the ordering of page widths in the original fixture.
func PageOrder(t testing.TB, original, doc []byte) []int {
	t.Helper()
	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	srcDims, err := api.PageDims(bytes.NewReader(original), conf)
	if err != nil {
		t.Fatalf("source dims: %v", err)
	}
	dims, err := api.PageDims(bytes.NewReader(doc), conf)
	if err != nil {
		t.Fatalf("output dims: %v", err)
	}
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = -1
		for j, s := range srcDims {
			if s.Width == d.Width && s.Height == d.Height {
				out[i] = j + 1
				break
			}
		}
	}
	return out
}
