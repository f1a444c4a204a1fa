// Package pages turns human page specifications such as "1, 3, 5-7, 9-" into
// validated page sets and the zero-based index lists consumed by the PDF
// assembler.
package pages

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrAllPagesDeleted is returned when a delete specification covers every page.
	ErrAllPagesDeleted = errors.New("cannot delete all pages: the document must keep at least one page")
	// ErrNoPagesSelected is returned when a selection resolves to no page at all.
	ErrNoPagesSelected = errors.New("no valid pages selected")
)

// Range is one parsed token of a page specification. A single page n is
// Range{Start: n, End: n}. Open bounds are filled in at resolve time.
type Range struct {
	Start     int
	End       int
	OpenStart bool
	OpenEnd   bool
}

// Selection is the typed form of a page specification.
type Selection []Range

// Parse reads a comma-separated page specification. Tokens that are empty or
// fail integer parsing are dropped without error.
func Parse(spec string) Selection {
	var sel Selection
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if r, ok := parseToken(tok); ok {
			sel = append(sel, r)
		}
	}
	return sel
}

func parseToken(tok string) (Range, bool) {
	startStr, endStr, isRange := strings.Cut(tok, "-")
	if !isRange {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return Range{}, false
		}
		return Range{Start: n, End: n}, true
	}

	var r Range
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)
	if startStr == "" {
		r.OpenStart = true
	} else {
		n, err := strconv.Atoi(startStr)
		if err != nil {
			return Range{}, false
		}
		r.Start = n
	}
	if endStr == "" {
		r.OpenEnd = true
	} else {
		n, err := strconv.Atoi(endStr)
		if err != nil {
			return Range{}, false
		}
		r.End = n
	}
	return r, true
}

// IsSingle reports whether r came from a single page token.
func (r Range) IsSingle() bool {
	return !r.OpenStart && !r.OpenEnd && r.Start == r.End
}

// Bounds returns the inclusive page bounds of r clamped to [1, totalPages].
// ok is false when nothing of r falls inside the document.
func (r Range) Bounds(totalPages int) (lo, hi int, ok bool) {
	lo, hi = r.Start, r.End
	if r.OpenStart {
		lo = 1
	}
	if r.OpenEnd {
		hi = totalPages
	}
	if lo < 1 {
		lo = 1
	}
	if hi > totalPages {
		hi = totalPages
	}
	return lo, hi, lo <= hi
}

// Resolve expands the selection against a document of totalPages pages.
// Single pages outside [1, totalPages] are dropped; range endpoints are clamped.
func (s Selection) Resolve(totalPages int) Set {
	set := Set{}
	for _, r := range s {
		if r.IsSingle() {
			if r.Start >= 1 && r.Start <= totalPages {
				set[r.Start] = struct{}{}
			}
			continue
		}
		lo, hi, ok := r.Bounds(totalPages)
		if !ok {
			continue
		}
		for i := lo; i <= hi; i++ {
			set[i] = struct{}{}
		}
	}
	return set
}

// Set is a deduplicated set of 1-based page numbers.
type Set map[int]struct{}

func (s Set) Contains(page int) bool {
	_, ok := s[page]
	return ok
}

func (s Set) Len() int { return len(s) }

// Sorted returns the members in ascending order.
func (s Set) Sorted() []int {
	out := make([]int, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// ResolvePagesToDelete parses spec and resolves it against totalPages.
func ResolvePagesToDelete(spec string, totalPages int) Set {
	return Parse(spec).Resolve(totalPages)
}

// ResolvePagesToKeep returns, in ascending order, every page of the document
// that spec does not delete.
func ResolvePagesToKeep(spec string, totalPages int) []int {
	del := ResolvePagesToDelete(spec, totalPages)
	keep := make([]int, 0, totalPages)
	for p := 1; p <= totalPages; p++ {
		if !del.Contains(p) {
			keep = append(keep, p)
		}
	}
	return keep
}

// KeepIndices is ResolvePagesToKeep expressed as zero-based indices.
func KeepIndices(spec string, totalPages int) ([]int, error) {
	keep := ResolvePagesToKeep(spec, totalPages)
	if len(keep) == 0 {
		return nil, ErrAllPagesDeleted
	}
	return toIndices(keep), nil
}

// SelectIndices returns the ascending zero-based indices of the pages spec
// selects.
func SelectIndices(spec string, totalPages int) ([]int, error) {
	sel := ResolvePagesToDelete(spec, totalPages).Sorted()
	if len(sel) == 0 {
		return nil, ErrNoPagesSelected
	}
	return toIndices(sel), nil
}

// ClampSpan mirrors the split tool: start is clamped into [1, totalPages] and
// end into [start, totalPages].
func ClampSpan(start, end, totalPages int) (int, int) {
	s := max(1, min(start, totalPages))
	e := max(s, min(end, totalPages))
	return s, e
}

// SpanIndices returns the zero-based indices for the inclusive span s..e.
func SpanIndices(s, e int) []int {
	out := make([]int, 0, e-s+1)
	for p := s; p <= e; p++ {
		out = append(out, p-1)
	}
	return out
}

func toIndices(pages []int) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = p - 1
	}
	return out
}
