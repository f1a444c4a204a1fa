package statuscheck

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/local/pdftools/internal/imagepdf"
	"github.com/local/pdftools/internal/imagerender"
)

// Pinger models the minimal capability we need from Redis or blob storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the dependencies the tools rely on.
type Checker struct {
	redis   Pinger
	storage Pinger
	backend string
}

// Options configures the Checker. Nil pingers are reported as disabled.
type Options struct {
	Redis          Pinger
	Storage        Pinger
	StorageBackend string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis    Status `json:"redis"`
	Storage  Status `json:"storage"`
	Renderer Status `json:"renderer"`
	PDF      Status `json:"pdf"`
}

// Healthy reports whether everything that is enabled works.
func (s Summary) Healthy() bool {
	for _, st := range []Status{s.Redis, s.Storage, s.Renderer, s.PDF} {
		if !st.OK && st.Message != disabled {
			return false
		}
	}
	return true
}

const disabled = "Disabled"

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{redis: opts.Redis, storage: opts.Storage, backend: opts.StorageBackend}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	probe, err := probeDocument()
	s := Summary{
		Redis:   c.ping(ctx, c.redis, 2*time.Second),
		Storage: c.ping(ctx, c.storage, 5*time.Second),
	}
	if err != nil {
		s.PDF = Status{OK: false, Message: trimError(err)}
		s.Renderer = Status{OK: false, Message: "No probe document"}
		return s
	}
	s.PDF = Status{OK: true, Message: "Available"}
	s.Renderer = checkRenderer(probe)
	if s.Storage.OK && c.backend != "" {
		s.Storage.Message = "Connected (" + c.backend + ")"
	}
	return s
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
	if p == nil {
		return Status{OK: false, Message: disabled}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func checkRenderer(doc []byte) Status {
	n, err := imagerender.PageCount(doc)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if n != 1 {
		return Status{OK: false, Message: "Unexpected page count"}
	}
	return Status{OK: true, Message: "Available"}
}

var (
	probeOnce sync.Once
	probeDoc  []byte
	probeErr  error
)

// probeDocument builds a one page PDF from a blank image, once.
func probeDocument() ([]byte, error) {
	probeOnce.Do(func() {
		var buf bytes.Buffer
		if probeErr = png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); probeErr != nil {
			return
		}
		probeDoc, probeErr = imagepdf.FromImages([]imagepdf.Image{{Name: "probe.png", Data: buf.Bytes()}})
	})
	return probeDoc, probeErr
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
