// Package tools runs the user-facing PDF tools: it validates inputs, calls the
// document libraries and names the download.
package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/archive"
	"github.com/local/pdftools/internal/filetype"
	"github.com/local/pdftools/internal/imagepdf"
	"github.com/local/pdftools/internal/imagerender"
	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/pages"
	"github.com/local/pdftools/internal/pdfops"
)

const (
	ToolSplit       = "split"
	ToolDivide      = "divide"
	ToolDelete      = "delete"
	ToolExtract     = "extract"
	ToolMerge       = "merge"
	ToolSuperMerge  = "super-merge"
	ToolImagesToPDF = "images-to-pdf"
	ToolZipToPDF    = "zip-to-pdf"
	ToolCompress    = "compress"
	ToolProtect     = "protect"
	ToolPDFToPNG    = "pdf-to-png"
)

const (
	ContentTypePDF = "application/pdf"
	ContentTypeZIP = "application/zip"
)

// MinPasswordLength is the shortest password protect accepts.
const MinPasswordLength = 4

// File is one uploaded input.
type File struct {
	Name string
	Data []byte
}

// Request asks for one tool run.
type Request struct {
	Tool   string
	Files  []File
	Params map[string]string
}

func (r Request) param(key string) string {
	if r.Params == nil {
		return ""
	}
	return strings.TrimSpace(r.Params[key])
}

// Result is the generated download.
type Result struct {
	Filename    string
	ContentType string
	Data        []byte
	Message     string
	Meta        map[string]any
}

// Options configures a Runner.
type Options struct {
	Render imagerender.Options
}

// Runner executes tool requests. It holds no per-request state.
type Runner struct {
	opts     Options
	handlers map[string]func(Request) (*Result, error)
}

// NewRunner creates a runner with every tool registered.
func NewRunner(opts Options) *Runner {
	r := &Runner{opts: opts}
	r.handlers = map[string]func(Request) (*Result, error){
		ToolSplit:       r.split,
		ToolDivide:      r.divide,
		ToolDelete:      r.deletePages,
		ToolExtract:     r.extract,
		ToolMerge:       r.merge,
		ToolSuperMerge:  r.superMerge,
		ToolImagesToPDF: r.imagesToPDF,
		ToolZipToPDF:    r.zipToPDF,
		ToolCompress:    r.compress,
		ToolProtect:     r.protect,
		ToolPDFToPNG:    r.pdfToPNG,
	}
	return r
}

// Tools lists the registered tool names.
func (r *Runner) Tools() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether tool is registered.
func (r *Runner) Has(tool string) bool {
	_, ok := r.handlers[tool]
	return ok
}

// Run executes one request to completion.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	h, ok := r.handlers[req.Tool]
	if !ok {
		return nil, inputErr("Unknown tool %q", req.Tool)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	in := 0
	for _, f := range req.Files {
		in += len(f.Data)
	}
	res, err := h(req)
	dur := time.Since(start)

	switch {
	case err == nil:
		metrics.ObserveTool(req.Tool, "success", dur)
		metrics.AddBytes(req.Tool, in, len(res.Data))
		log.Info().
			Str("tool", req.Tool).
			Int("files", len(req.Files)).
			Int("bytes_in", in).
			Int("bytes_out", len(res.Data)).
			Str("output", res.Filename).
			Dur("duration", dur).
			Msg("tool completed")
	case IsInputError(err):
		metrics.ObserveTool(req.Tool, "input_error", dur)
		log.Warn().Str("tool", req.Tool).Str("reason", err.Error()).Msg("tool rejected input")
	default:
		metrics.ObserveTool(req.Tool, "failed", dur)
		log.Error().Err(err).Str("tool", req.Tool).Dur("duration", dur).Msg("tool failed")
	}
	return res, err
}

// singlePDF validates that req carries exactly one readable PDF and returns it
// with its page count.
func singlePDF(req Request) (File, int, error) {
	if len(req.Files) == 0 {
		return File{}, 0, inputErr("Please select a PDF file first")
	}
	if len(req.Files) > 1 {
		return File{}, 0, inputErr("Please upload a single PDF file")
	}
	f := req.Files[0]
	if filetype.Detect(f.Name, f.Data).Kind != filetype.KindPDF {
		return File{}, 0, inputErr("Please upload a PDF file")
	}
	n, err := pdfops.PageCount(f.Data)
	if err != nil {
		log.Warn().Err(err).Str("file", f.Name).Msg("failed to load pdf")
		return File{}, 0, inputErr("Failed to read the PDF file")
	}
	return f, n, nil
}

func opErr(tool string, err error) error {
	return &OperationError{Tool: tool, Err: err}
}

// baseName strips directories and a trailing extension (any case).
func baseName(name, ext string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if strings.EqualFold(filepath.Ext(base), ext) {
		base = base[:len(base)-len(ext)]
	}
	if base == "" || base == "." || base == "/" {
		base = "document"
	}
	return base
}

func pdfResult(name string, data []byte, msg string) *Result {
	return &Result{Filename: name, ContentType: ContentTypePDF, Data: data, Message: msg, Meta: map[string]any{}}
}

func (r *Runner) split(req Request) (*Result, error) {
	f, total, err := singlePDF(req)
	if err != nil {
		return nil, err
	}
	start, err := strconv.Atoi(req.param("start"))
	if err != nil {
		return nil, inputErr("Please provide a valid start page")
	}
	end := total
	if s := req.param("end"); s != "" {
		if end, err = strconv.Atoi(s); err != nil {
			return nil, inputErr("Please provide a valid end page")
		}
	}
	out, s, e, err := pdfops.SplitRange(f.Data, start, end)
	if err != nil {
		return nil, opErr(ToolSplit, err)
	}
	res := pdfResult(fmt.Sprintf("split-pages-%d-to-%d.pdf", s, e), out, "PDF split successfully!")
	res.Meta["start"], res.Meta["end"] = s, e
	return res, nil
}

func (r *Runner) divide(req Request) (*Result, error) {
	f, _, err := singlePDF(req)
	if err != nil {
		return nil, err
	}
	parts, err := pdfops.Divide(f.Data)
	if err != nil {
		return nil, opErr(ToolDivide, err)
	}
	base := baseName(f.Name, ".pdf")
	entries := make([]archive.Entry, len(parts))
	for i, p := range parts {
		entries[i] = archive.Entry{Name: fmt.Sprintf("%s_page_%d.pdf", base, i+1), Data: p}
	}
	zipped, err := archive.Pack(entries)
	if err != nil {
		return nil, opErr(ToolDivide, err)
	}
	return &Result{
		Filename:    base + "_divided.zip",
		ContentType: ContentTypeZIP,
		Data:        zipped,
		Message:     fmt.Sprintf("PDF divided successfully into %d PDFs!", len(parts)),
		Meta:        map[string]any{"documents": len(parts)},
	}, nil
}

func (r *Runner) deletePages(req Request) (*Result, error) {
	spec := req.param("pages")
	if spec == "" {
		return nil, inputErr("Please specify pages to delete")
	}
	f, total, err := singlePDF(req)
	if err != nil {
		return nil, err
	}
	out, err := pdfops.DeletePages(f.Data, spec)
	if err != nil {
		if errors.Is(err, pages.ErrAllPagesDeleted) {
			return nil, inputErr("%s", err.Error())
		}
		return nil, opErr(ToolDelete, err)
	}
	deleted := pages.ResolvePagesToDelete(spec, total).Len()
	res := pdfResult("deleted-pages.pdf", out, "PDF processed successfully!")
	res.Meta["pages_deleted"] = deleted
	res.Meta["pages_kept"] = total - deleted
	return res, nil
}

func (r *Runner) extract(req Request) (*Result, error) {
	spec := req.param("pages")
	if spec == "" {
		return nil, inputErr("Please specify pages to extract")
	}
	f, total, err := singlePDF(req)
	if err != nil {
		return nil, err
	}
	out, err := pdfops.ExtractPages(f.Data, spec)
	if err != nil {
		if errors.Is(err, pages.ErrNoPagesSelected) {
			return nil, inputErr("%s", err.Error())
		}
		return nil, opErr(ToolExtract, err)
	}
	res := pdfResult("extracted-pages.pdf", out, "Pages extracted successfully!")
	res.Meta["pages_extracted"] = pages.ResolvePagesToDelete(spec, total).Len()
	return res, nil
}

func (r *Runner) merge(req Request) (*Result, error) {
	if len(req.Files) == 0 {
		return nil, inputErr("Please add at least one file")
	}
	docs := make([][]byte, 0, len(req.Files))
	for _, f := range req.Files {
		if filetype.Detect(f.Name, f.Data).Kind != filetype.KindPDF {
			return nil, inputErr("%s is not a PDF file", f.Name)
		}
		docs = append(docs, f.Data)
	}
	out, err := pdfops.Merge(docs)
	if err != nil {
		return nil, opErr(ToolMerge, err)
	}
	return pdfResult("merged.pdf", out, "PDFs merged successfully!"), nil
}

// superMerge merges PDFs and images in the given order. Unsupported files are
// skipped with a warning; the run fails only if nothing usable is left.
func (r *Runner) superMerge(req Request) (*Result, error) {
	if len(req.Files) == 0 {
		return nil, inputErr("Please add at least one file")
	}
	var (
		docs    [][]byte
		skipped []string
	)
	for _, f := range req.Files {
		info := filetype.Detect(f.Name, f.Data)
		switch info.Kind {
		case filetype.KindPDF:
			docs = append(docs, f.Data)
		case filetype.KindImage:
			doc, err := imagepdf.FromImages([]imagepdf.Image{{Name: f.Name, Data: f.Data}})
			if err != nil {
				if errors.Is(err, imagepdf.ErrUnsupportedImage) {
					skipped = append(skipped, f.Name)
					continue
				}
				return nil, opErr(ToolSuperMerge, err)
			}
			docs = append(docs, doc)
		default:
			skipped = append(skipped, f.Name)
		}
	}
	for _, name := range skipped {
		metrics.IncSkipped(ToolSuperMerge)
		log.Warn().Str("tool", ToolSuperMerge).Str("file", name).Msg("skipping unsupported file")
	}
	if len(docs) == 0 {
		return nil, inputErr("No supported files to merge")
	}
	out, err := pdfops.Merge(docs)
	if err != nil {
		return nil, opErr(ToolSuperMerge, err)
	}
	res := pdfResult("merged-document.pdf", out, "PDF generated successfully!")
	res.Meta["skipped"] = skipped
	return res, nil
}

// collectImages keeps the image inputs, logging and counting the rest.
func collectImages(tool string, files []File) []imagepdf.Image {
	var imgs []imagepdf.Image
	for _, f := range files {
		if filetype.Detect(f.Name, f.Data).Kind != filetype.KindImage {
			metrics.IncSkipped(tool)
			log.Warn().Str("tool", tool).Str("file", f.Name).Msg("skipping non-image file")
			continue
		}
		imgs = append(imgs, imagepdf.Image{Name: f.Name, Data: f.Data})
	}
	return imgs
}

func (r *Runner) imagesToPDF(req Request) (*Result, error) {
	if len(req.Files) == 0 {
		return nil, inputErr("Please add at least one image")
	}
	imgs := collectImages(ToolImagesToPDF, req.Files)
	if len(imgs) == 0 {
		return nil, inputErr("Please upload image files only")
	}
	out, err := imagepdf.FromImages(imgs)
	if err != nil {
		return nil, opErr(ToolImagesToPDF, err)
	}
	res := pdfResult("images-to-pdf.pdf", out, "PDF created successfully!")
	res.Meta["pages"] = len(imgs)
	return res, nil
}

func (r *Runner) zipToPDF(req Request) (*Result, error) {
	if len(req.Files) != 1 {
		return nil, inputErr("Please upload a ZIP file")
	}
	f := req.Files[0]
	if filetype.Detect(f.Name, f.Data).Kind != filetype.KindZIP {
		return nil, inputErr("Please upload a ZIP file")
	}
	entries, err := archive.ExtractImages(f.Data)
	if errors.Is(err, archive.ErrTooLarge) {
		return nil, inputErr("ZIP contents are too large")
	}
	if err != nil {
		log.Warn().Err(err).Str("file", f.Name).Msg("failed to load zip")
		return nil, inputErr("Failed to load ZIP")
	}
	files := make([]File, len(entries))
	for i, e := range entries {
		files[i] = File{Name: e.Name, Data: e.Data}
	}
	imgs := collectImages(ToolZipToPDF, files)
	if len(imgs) == 0 {
		return nil, inputErr("No valid images (PNG/JPG/WEBP) found in the ZIP file")
	}
	out, err := imagepdf.FromImages(imgs)
	if err != nil {
		return nil, opErr(ToolZipToPDF, err)
	}
	res := pdfResult(baseName(f.Name, ".zip")+".pdf", out, "PDF created successfully!")
	res.Meta["pages"] = len(imgs)
	return res, nil
}

func (r *Runner) compress(req Request) (*Result, error) {
	f, _, err := singlePDF(req)
	if err != nil {
		return nil, err
	}
	out, err := pdfops.Compress(f.Data)
	if err != nil {
		return nil, opErr(ToolCompress, err)
	}
	reduction := ReductionPercent(len(f.Data), len(out))
	res := pdfResult(baseName(f.Name, ".pdf")+"-compressed.pdf", out,
		fmt.Sprintf("PDF compressed successfully! Reduced by %d%%", reduction))
	res.Meta["original_size"] = len(f.Data)
	res.Meta["compressed_size"] = len(out)
	res.Meta["reduction_percent"] = reduction
	return res, nil
}

func (r *Runner) protect(req Request) (*Result, error) {
	f, _, err := singlePDF(req)
	if err != nil {
		return nil, err
	}
	pw := req.Params["password"]
	if pw == "" {
		return nil, inputErr("Please enter a password")
	}
	if confirm, ok := req.Params["confirm"]; ok && confirm != pw {
		return nil, inputErr("Passwords do not match")
	}
	if len([]rune(pw)) < MinPasswordLength {
		return nil, inputErr("Password must be at least %d characters", MinPasswordLength)
	}
	out, err := pdfops.Protect(f.Data, pw)
	if err != nil {
		return nil, opErr(ToolProtect, err)
	}
	return pdfResult(baseName(f.Name, ".pdf")+"-protected.pdf", out, "PDF protected successfully!"), nil
}

func (r *Runner) pdfToPNG(req Request) (*Result, error) {
	f, _, err := singlePDF(req)
	if err != nil {
		return nil, err
	}
	opts := r.opts.Render
	if s := req.param("dpi"); s != "" {
		dpi, err := strconv.Atoi(s)
		if err != nil || dpi <= 0 || dpi > 600 {
			return nil, inputErr("DPI must be between 1 and 600")
		}
		opts.DPI = dpi
	}
	pngs, err := imagerender.RenderPNGs(f.Data, opts)
	if err != nil {
		return nil, opErr(ToolPDFToPNG, err)
	}
	entries := make([]archive.Entry, len(pngs))
	for i, p := range pngs {
		entries[i] = archive.Entry{Name: fmt.Sprintf("page-%d.png", i+1), Data: p}
	}
	zipped, err := archive.Pack(entries)
	if err != nil {
		return nil, opErr(ToolPDFToPNG, err)
	}
	return &Result{
		Filename:    baseName(f.Name, ".pdf") + "_pages.zip",
		ContentType: ContentTypeZIP,
		Data:        zipped,
		Message:     fmt.Sprintf("Converted %d pages to PNG!", len(pngs)),
		Meta:        map[string]any{"pages": len(pngs)},
	}, nil
}

// ReductionPercent is the rounded size saving, never negative.
func ReductionPercent(original, compressed int) int {
	if original <= 0 {
		return 0
	}
	p := int(math.Round(float64(original-compressed) / float64(original) * 100))
	return max(p, 0)
}

// FormatSize renders a byte count the way the tools report sizes ("1.5 KB").
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	i = min(i, len(units)-1)
	v := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}
