// Package pdfops wraps pdfcpu for the byte-in/byte-out document operations the
// tools are built from. Every call works on its own copy of the input.
package pdfops

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/pages"
)

// ErrNoPages is returned for documents without a single page.
var ErrNoPages = errors.New("document has no pages")

var configOnce sync.Once

// NewConfig returns a relaxed pdfcpu configuration that never touches the
// user config directory.
func NewConfig() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in data.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), NewConfig())
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// PageDims returns the media box dimensions of every page.
func PageDims(data []byte) ([]types.Dim, error) {
	dims, err := api.PageDims(bytes.NewReader(data), NewConfig())
	if err != nil {
		return nil, fmt.Errorf("pdf page dims failed: %w", err)
	}
	return dims, nil
}

// Assemble builds a new document holding one page per zero-based index, in
// the given order. Indices may repeat.
func Assemble(data []byte, indices []int) ([]byte, error) {
	if len(indices) == 0 {
		return nil, ErrNoPages
	}
	total, err := PageCount(data)
	if err != nil {
		return nil, err
	}
	sel := make([]string, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= total {
			return nil, fmt.Errorf("page index %d out of range (document has %d pages)", idx, total)
		}
		sel[i] = strconv.Itoa(idx + 1)
	}

	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(data), &out, sel, NewConfig()); err != nil {
		return nil, fmt.Errorf("assemble pages: %w", err)
	}
	log.Debug().Int("source_pages", total).Int("output_pages", len(indices)).Msg("assembled document")
	return out.Bytes(), nil
}

// DeletePages removes the pages named by spec. The result always keeps at
// least one page; otherwise pages.ErrAllPagesDeleted is returned.
func DeletePages(data []byte, spec string) ([]byte, error) {
	total, err := PageCount(data)
	if err != nil {
		return nil, err
	}
	keep, err := pages.KeepIndices(spec, total)
	if err != nil {
		return nil, err
	}
	return Assemble(data, keep)
}

// ExtractPages keeps only the pages named by spec, in ascending order.
func ExtractPages(data []byte, spec string) ([]byte, error) {
	total, err := PageCount(data)
	if err != nil {
		return nil, err
	}
	sel, err := pages.SelectIndices(spec, total)
	if err != nil {
		return nil, err
	}
	return Assemble(data, sel)
}

// SplitRange extracts the inclusive span start..end after clamping it to the
// document. It returns the span actually used.
func SplitRange(data []byte, start, end int) ([]byte, int, int, error) {
	total, err := PageCount(data)
	if err != nil {
		return nil, 0, 0, err
	}
	if total == 0 {
		return nil, 0, 0, ErrNoPages
	}
	s, e := pages.ClampSpan(start, end, total)
	out, err := Assemble(data, pages.SpanIndices(s, e))
	if err != nil {
		return nil, 0, 0, err
	}
	return out, s, e, nil
}

// Divide returns one single-page document per page.
func Divide(data []byte) ([][]byte, error) {
	total, err := PageCount(data)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, ErrNoPages
	}
	out := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		doc, err := Assemble(data, []int{i})
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// Merge concatenates docs in order.
func Merge(docs [][]byte) ([]byte, error) {
	if len(docs) == 0 {
		return nil, ErrNoPages
	}
	if len(docs) == 1 {
		return Validate(docs[0])
	}
	rsc := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		rsc[i] = bytes.NewReader(d)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(rsc, &out, false, NewConfig()); err != nil {
		return nil, fmt.Errorf("merge documents: %w", err)
	}
	return out.Bytes(), nil
}

// Validate checks data is a readable PDF and returns it unchanged.
func Validate(data []byte) ([]byte, error) {
	if err := api.Validate(bytes.NewReader(data), NewConfig()); err != nil {
		return nil, fmt.Errorf("invalid pdf: %w", err)
	}
	return data, nil
}

// Compress rewrites data with pdfcpu's optimizer (shared resources, dropped
// duplicates, compressed streams).
func Compress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, NewConfig()); err != nil {
		return nil, fmt.Errorf("optimize document: %w", err)
	}
	return out.Bytes(), nil
}

// Protect encrypts data with AES-256 using password for both user and owner.
func Protect(data []byte, password string) ([]byte, error) {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewAESConfiguration(password, password, 256)
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Encrypt(bytes.NewReader(data), &out, conf); err != nil {
		return nil, fmt.Errorf("encrypt document: %w", err)
	}
	return out.Bytes(), nil
}
