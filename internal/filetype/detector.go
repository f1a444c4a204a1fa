package filetype

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the coarse class of an input file.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindZIP     Kind = "zip"
	KindUnknown Kind = "unknown"
)

// Info contains detected file type information
type Info struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// images that can be placed on a PDF page
var pageImages = map[string]string{
	"image/png":  "PNG image",
	"image/jpeg": "JPEG image",
	"image/webp": "WEBP image",
}

// Detect classifies data by its magic bytes. The name is only consulted for
// ZIP archives, whose signature is shared with many container formats.
func Detect(name string, data []byte) Info {
	mtype := mimetype.Detect(data)
	info := Info{MIMEType: mtype.String(), Extension: mtype.Extension()}

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", name).Msg("detected file type")

	switch {
	case mtype.Is("application/pdf"):
		info.Kind = KindPDF
		info.Description = "PDF document"
	case pageImages[baseMIME(info.MIMEType)] != "":
		info.Kind = KindImage
		info.Description = pageImages[baseMIME(info.MIMEType)]
	case isZIP(mtype) && strings.EqualFold(filepath.Ext(name), ".zip"):
		info.Kind = KindZIP
		info.Extension = ".zip"
		info.Description = "ZIP archive"
	default:
		info.Kind = KindUnknown
		info.Description = "Unsupported file type: " + info.MIMEType
	}
	return info
}

func baseMIME(m string) string {
	if i := strings.Index(m, ";"); i >= 0 {
		return strings.TrimSpace(m[:i])
	}
	return m
}

// isZIP reports a ZIP signature, including containers built on ZIP.
func isZIP(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}
