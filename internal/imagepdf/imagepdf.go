// Package imagepdf builds PDF documents with one page per image.
package imagepdf

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/webp"

	"github.com/local/pdftools/internal/pdfops"
)

// ErrUnsupportedImage is returned for image encodings that cannot be placed on a page.
var ErrUnsupportedImage = errors.New("unsupported image format")

// Image is a named encoded image.
type Image struct {
	Name string
	Data []byte
}

// Normalize returns a reader pdfcpu can import. PNG and JPEG pass through,
// WEBP is re-encoded as PNG.
func Normalize(img Image) (io.Reader, error) {
	mt := mimetype.Detect(img.Data)
	switch {
	case mt.Is("image/png"), mt.Is("image/jpeg"):
		return bytes.NewReader(img.Data), nil
	case mt.Is("image/webp"):
		decoded, err := webp.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return nil, fmt.Errorf("decode webp %s: %w", img.Name, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, decoded); err != nil {
			return nil, fmt.Errorf("re-encode %s: %w", img.Name, err)
		}
		log.Debug().Str("image", img.Name).Int("png_size", buf.Len()).Msg("converted webp to png")
		return &buf, nil
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedImage, img.Name, mt.String())
	}
}

// FromImages creates a document with one page per image, in order. Each page
// takes the size of its image.
func FromImages(imgs []Image) ([]byte, error) {
	if len(imgs) == 0 {
		return nil, pdfops.ErrNoPages
	}
	readers := make([]io.Reader, 0, len(imgs))
	for _, img := range imgs {
		r, err := Normalize(img)
		if err != nil {
			return nil, err
		}
		readers = append(readers, r)
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, pdfops.NewConfig()); err != nil {
		return nil, fmt.Errorf("import images: %w", err)
	}
	log.Debug().Int("images", len(imgs)).Int("pdf_size", out.Len()).Msg("created pdf from images")
	return out.Bytes(), nil
}
