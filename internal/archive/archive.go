// Package archive reads and writes the ZIP bundles exchanged by the tools.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// Entry is one file inside a ZIP archive.
type Entry struct {
	Name string
	Data []byte
}

// imageExts lists the extensions picked up by ExtractImages.
var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// Pack writes entries, in order, into a deflate-compressed archive.
func Pack(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	now := time.Now()
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return nil, fmt.Errorf("zip create %s: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("zip write %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip close: %w", err)
	}
	return buf.Bytes(), nil
}

// MaxUnpackedSize caps the total decompressed bytes read from one archive.
var MaxUnpackedSize int64 = 512 << 20

// ErrTooLarge is returned when an archive inflates past MaxUnpackedSize.
var ErrTooLarge = errors.New("zip contents exceed the size limit")

// Unpack returns every regular file in the archive.
func Unpack(data []byte) ([]Entry, error) {
	return unpack(data, func(string) bool { return true })
}

// ExtractImages returns the PNG/JPG/WEBP entries of the archive sorted by
// name. Hidden files and macOS resource forks are skipped.
func ExtractImages(data []byte) ([]Entry, error) {
	imgs, err := unpack(data, func(name string) bool {
		base := path.Base(name)
		if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(base, ".") {
			return false
		}
		return imageExts[strings.ToLower(path.Ext(base))]
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(imgs, func(i, j int) bool { return imgs[i].Name < imgs[j].Name })
	return imgs, nil
}

// unpack reads the entries accepted by keep. Declared sizes are checked up
// front and actual reads are bounded, since headers can lie.
func unpack(data []byte, keep func(name string) bool) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	budget := MaxUnpackedSize
	var out []Entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !keep(f.Name) {
			continue
		}
		if f.UncompressedSize64 > uint64(budget) {
			return nil, fmt.Errorf("%s: %w", f.Name, ErrTooLarge)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(io.LimitReader(rc, budget+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		if int64(len(b)) > budget {
			return nil, fmt.Errorf("%s: %w", f.Name, ErrTooLarge)
		}
		budget -= int64(len(b))
		out = append(out, Entry{Name: f.Name, Data: b})
	}
	return out, nil
}
