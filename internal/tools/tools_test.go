package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdftools/internal/archive"
	"github.com/local/pdftools/internal/imagerender"
	"github.com/local/pdftools/internal/pdfops"
	"github.com/local/pdftools/internal/pdftest"
	"github.com/local/pdftools/internal/tools"
)

func newRunner() *tools.Runner {
	return tools.NewRunner(tools.Options{Render: imagerender.Options{DPI: 36, Color: imagerender.ColorRGB}})
}

func run(t *testing.T, req tools.Request) (*tools.Result, error) {
	t.Helper()
	return newRunner().Run(context.Background(), req)
}

func pageCount(t *testing.T, data []byte) int {
	t.Helper()
	n, err := pdfops.PageCount(data)
	require.NoError(t, err)
	return n
}

func requireInputError(t *testing.T, err error, msg string) {
	t.Helper()
	var ie *tools.InputError
	require.True(t, errors.As(err, &ie), "expected input error, got %v", err)
	assert.Equal(t, msg, ie.Message)
}

// ============================================================================
// delete / extract / split
// ============================================================================

func TestDelete(t *testing.T) {
	doc := pdftest.Document(t, 10)

	res, err := run(t, tools.Request{
		Tool:   tools.ToolDelete,
		Files:  []tools.File{{Name: "report.pdf", Data: doc}},
		Params: map[string]string{"pages": "1, 3, 5-7, 9"},
	})
	require.NoError(t, err)
	assert.Equal(t, "deleted-pages.pdf", res.Filename)
	assert.Equal(t, tools.ContentTypePDF, res.ContentType)
	assert.Equal(t, []int{2, 4, 8, 10}, pdftest.PageOrder(t, doc, res.Data))
	assert.Equal(t, 6, res.Meta["pages_deleted"])
	assert.Equal(t, 4, res.Meta["pages_kept"])
}

func TestDeleteInputErrors(t *testing.T) {
	doc := pdftest.Document(t, 3)
	pdf := []tools.File{{Name: "a.pdf", Data: doc}}

	tests := []struct {
		name string
		req  tools.Request
		msg  string
	}{
		{"empty spec", tools.Request{Files: pdf, Params: map[string]string{"pages": "  "}}, "Please specify pages to delete"},
		{"all pages", tools.Request{Files: pdf, Params: map[string]string{"pages": "1-"}}, "cannot delete all pages: the document must keep at least one page"},
		{"no file", tools.Request{Params: map[string]string{"pages": "1"}}, "Please select a PDF file first"},
		{"not a pdf", tools.Request{Files: []tools.File{{Name: "a.pdf", Data: []byte("hello")}}, Params: map[string]string{"pages": "1"}}, "Please upload a PDF file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Tool = tools.ToolDelete
			_, err := run(t, tt.req)
			requireInputError(t, err, tt.msg)
		})
	}
}

func TestExtract(t *testing.T) {
	doc := pdftest.Document(t, 5)
	res, err := run(t, tools.Request{
		Tool:   tools.ToolExtract,
		Files:  []tools.File{{Name: "a.pdf", Data: doc}},
		Params: map[string]string{"pages": "4-,1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "extracted-pages.pdf", res.Filename)
	assert.Equal(t, []int{1, 4, 5}, pdftest.PageOrder(t, doc, res.Data))
	assert.Equal(t, 3, res.Meta["pages_extracted"])

	_, err = run(t, tools.Request{
		Tool:   tools.ToolExtract,
		Files:  []tools.File{{Name: "a.pdf", Data: doc}},
		Params: map[string]string{"pages": "9, x"},
	})
	requireInputError(t, err, "no valid pages selected")
}

func TestSplit(t *testing.T) {
	doc := pdftest.Document(t, 6)
	res, err := run(t, tools.Request{
		Tool:   tools.ToolSplit,
		Files:  []tools.File{{Name: "a.pdf", Data: doc}},
		Params: map[string]string{"start": "2", "end": "40"},
	})
	require.NoError(t, err)
	assert.Equal(t, "split-pages-2-to-6.pdf", res.Filename)
	assert.Equal(t, 5, pageCount(t, res.Data))

	_, err = run(t, tools.Request{Tool: tools.ToolSplit, Files: []tools.File{{Name: "a.pdf", Data: doc}}})
	requireInputError(t, err, "Please provide a valid start page")
}

func TestDivide(t *testing.T) {
	doc := pdftest.Document(t, 3)
	res, err := run(t, tools.Request{Tool: tools.ToolDivide, Files: []tools.File{{Name: "Report.PDF", Data: doc}}})
	require.NoError(t, err)
	assert.Equal(t, "Report_divided.zip", res.Filename)
	assert.Equal(t, tools.ContentTypeZIP, res.ContentType)

	entries, err := archive.Unpack(res.Data)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Report_page_1.pdf", entries[0].Name)
	assert.Equal(t, "Report_page_3.pdf", entries[2].Name)
	assert.Equal(t, 1, pageCount(t, entries[1].Data))
}

// ============================================================================
// merge / images
// ============================================================================

func TestMerge(t *testing.T) {
	res, err := run(t, tools.Request{Tool: tools.ToolMerge, Files: []tools.File{
		{Name: "a.pdf", Data: pdftest.Document(t, 2)},
		{Name: "b.pdf", Data: pdftest.Document(t, 1)},
	}})
	require.NoError(t, err)
	assert.Equal(t, "merged.pdf", res.Filename)
	assert.Equal(t, 3, pageCount(t, res.Data))

	_, err = run(t, tools.Request{Tool: tools.ToolMerge, Files: []tools.File{{Name: "x.png", Data: pdftest.PNG(t, 4, 4)}}})
	requireInputError(t, err, "x.png is not a PDF file")
}

func TestSuperMergeSkipsUnsupported(t *testing.T) {
	res, err := run(t, tools.Request{Tool: tools.ToolSuperMerge, Files: []tools.File{
		{Name: "cover.png", Data: pdftest.PNG(t, 50, 80)},
		{Name: "notes.txt", Data: []byte("plain text")},
		{Name: "body.pdf", Data: pdftest.Document(t, 2)},
		{Name: "back.jpg", Data: pdftest.JPEG(t, 50, 80)},
	}})
	require.NoError(t, err)
	assert.Equal(t, "merged-document.pdf", res.Filename)
	assert.Equal(t, 4, pageCount(t, res.Data))
	assert.Equal(t, []string{"notes.txt"}, res.Meta["skipped"])

	_, err = run(t, tools.Request{Tool: tools.ToolSuperMerge, Files: []tools.File{{Name: "notes.txt", Data: []byte("x")}}})
	requireInputError(t, err, "No supported files to merge")
}

func TestImagesToPDF(t *testing.T) {
	res, err := run(t, tools.Request{Tool: tools.ToolImagesToPDF, Files: []tools.File{
		{Name: "1.jpg", Data: pdftest.JPEG(t, 40, 40)},
		{Name: "2.png", Data: pdftest.PNG(t, 40, 40)},
	}})
	require.NoError(t, err)
	assert.Equal(t, "images-to-pdf.pdf", res.Filename)
	assert.Equal(t, 2, pageCount(t, res.Data))

	_, err = run(t, tools.Request{Tool: tools.ToolImagesToPDF})
	requireInputError(t, err, "Please add at least one image")
}

func TestZipToPDF(t *testing.T) {
	zipped, err := archive.Pack([]archive.Entry{
		{Name: "b.png", Data: pdftest.PNG(t, 30, 30)},
		{Name: "a.jpg", Data: pdftest.JPEG(t, 30, 30)},
		{Name: "fake.png", Data: []byte("not an image")},
		{Name: "readme.md", Data: []byte("# hi")},
	})
	require.NoError(t, err)

	res, err := run(t, tools.Request{Tool: tools.ToolZipToPDF, Files: []tools.File{{Name: "Holiday.zip", Data: zipped}}})
	require.NoError(t, err)
	assert.Equal(t, "Holiday.pdf", res.Filename)
	assert.Equal(t, 2, pageCount(t, res.Data))

	empty, err := archive.Pack([]archive.Entry{{Name: "readme.md", Data: []byte("# hi")}})
	require.NoError(t, err)
	_, err = run(t, tools.Request{Tool: tools.ToolZipToPDF, Files: []tools.File{{Name: "e.zip", Data: empty}}})
	requireInputError(t, err, "No valid images (PNG/JPG/WEBP) found in the ZIP file")

	prev := archive.MaxUnpackedSize
	archive.MaxUnpackedSize = 16
	t.Cleanup(func() { archive.MaxUnpackedSize = prev })
	_, err = run(t, tools.Request{Tool: tools.ToolZipToPDF, Files: []tools.File{{Name: "Holiday.zip", Data: zipped}}})
	requireInputError(t, err, "ZIP contents are too large")
}

// ============================================================================
// compress / protect / png
// ============================================================================

func TestCompress(t *testing.T) {
	res, err := run(t, tools.Request{Tool: tools.ToolCompress, Files: []tools.File{{Name: "big.pdf", Data: pdftest.Document(t, 2)}}})
	require.NoError(t, err)
	assert.Equal(t, "big-compressed.pdf", res.Filename)
	assert.Equal(t, 2, pageCount(t, res.Data))
	assert.GreaterOrEqual(t, res.Meta["reduction_percent"], 0)
}

func TestProtectValidation(t *testing.T) {
	pdf := []tools.File{{Name: "secret.pdf", Data: pdftest.Document(t, 1)}}
	tests := []struct {
		name   string
		params map[string]string
		msg    string
	}{
		{"missing", map[string]string{}, "Please enter a password"},
		{"mismatch", map[string]string{"password": "abcd", "confirm": "abce"}, "Passwords do not match"},
		{"short", map[string]string{"password": "abc", "confirm": "abc"}, "Password must be at least 4 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tools.Request{Tool: tools.ToolProtect, Files: pdf, Params: tt.params})
			requireInputError(t, err, tt.msg)
		})
	}

	res, err := run(t, tools.Request{Tool: tools.ToolProtect, Files: pdf, Params: map[string]string{"password": "abcd", "confirm": "abcd"}})
	require.NoError(t, err)
	assert.Equal(t, "secret-protected.pdf", res.Filename)
}

func TestPDFToPNG(t *testing.T) {
	res, err := run(t, tools.Request{Tool: tools.ToolPDFToPNG, Files: []tools.File{{Name: "deck.pdf", Data: pdftest.Document(t, 2)}}})
	require.NoError(t, err)
	assert.Equal(t, "deck_pages.zip", res.Filename)

	entries, err := archive.Unpack(res.Data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "page-1.png", entries[0].Name)

	_, err = run(t, tools.Request{Tool: tools.ToolPDFToPNG, Files: []tools.File{{Name: "deck.pdf", Data: pdftest.Document(t, 1)}}, Params: map[string]string{"dpi": "9000"}})
	requireInputError(t, err, "DPI must be between 1 and 600")
}

// ============================================================================
// runner
// ============================================================================

func TestUnknownTool(t *testing.T) {
	_, err := run(t, tools.Request{Tool: "shred"})
	assert.True(t, tools.IsInputError(err))
}

func TestRunHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newRunner().Run(ctx, tools.Request{Tool: tools.ToolMerge})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserMessage(t *testing.T) {
	err := &tools.OperationError{Tool: tools.ToolCompress, Err: errors.New("xref broken")}
	assert.Equal(t, "Failed to compress PDF", tools.UserMessage(err))
	assert.Equal(t, "bad", tools.UserMessage(&tools.InputError{Message: "bad"}))
	assert.ErrorContains(t, err, "xref broken")
}

func TestToolsListed(t *testing.T) {
	r := newRunner()
	assert.Len(t, r.Tools(), 11)
	assert.True(t, r.Has(tools.ToolZipToPDF))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 Bytes", tools.FormatSize(0))
	assert.Equal(t, "512 Bytes", tools.FormatSize(512))
	assert.Equal(t, "1.5 KB", tools.FormatSize(1536))
	assert.Equal(t, "2 MB", tools.FormatSize(2*1024*1024))
	assert.Equal(t, 0, tools.ReductionPercent(100, 150))
	assert.Equal(t, 25, tools.ReductionPercent(100, 75))
}
