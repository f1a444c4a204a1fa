// Package api exposes the tools over HTTP, synchronously and as queued jobs.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/jobs"
	"github.com/local/pdftools/internal/limiter"
	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/statuscheck"
	"github.com/local/pdftools/internal/tools"
)

// Dependencies wires the server. Jobs may be nil when async mode is off.
type Dependencies struct {
	Runner         *tools.Runner
	Limiter        *limiter.Limiter
	Jobs           *jobs.Service
	Checker        *statuscheck.Checker
	MaxUploadBytes int64
}

type Server struct {
	deps Dependencies
}

func New(deps Dependencies) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 64 << 20
	}
	if deps.Limiter == nil {
		deps.Limiter = limiter.New(limiter.Options{})
	}
	return &Server{deps: deps}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("POST /tools/{tool}", s.handleRunTool)
	mux.HandleFunc("POST /jobs/{tool}", s.handleSubmitJob)
	mux.HandleFunc("GET /jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /jobs/{id}/download", s.handleJobDownload)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.handleJobCancel)
}

type errorResp struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResp{Success: false, Error: msg})
}

// writeToolError maps tool errors to a status code and a message safe to show.
func writeToolError(w http.ResponseWriter, err error) {
	if tools.IsInputError(err) {
		writeError(w, http.StatusBadRequest, tools.UserMessage(err))
		return
	}
	writeError(w, http.StatusInternalServerError, tools.UserMessage(err))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checker == nil {
		writeError(w, http.StatusServiceUnavailable, "status checks not configured")
		return
	}
	sum := s.deps.Checker.Summary(r.Context())
	code := http.StatusOK
	if !sum.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.deps.Runner.Tools(), "jobs": s.deps.Jobs != nil})
}

func (s *Server) handleRunTool(w http.ResponseWriter, r *http.Request) {
	tool := r.PathValue("tool")
	if !s.deps.Runner.Has(tool) {
		writeError(w, http.StatusNotFound, "unknown tool")
		return
	}
	req, ok := s.readRequest(w, r, tool)
	if !ok {
		return
	}

	release, ok := s.deps.Limiter.Allow(tool)
	if !ok {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "Please wait for the current file to finish processing")
		return
	}
	defer release()

	res, err := s.deps.Runner.Run(r.Context(), req)
	if err != nil {
		writeToolError(w, err)
		return
	}
	writeAttachment(w, res)
}

func writeAttachment(w http.ResponseWriter, res *tools.Result) {
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	if res.Message != "" {
		w.Header().Set("X-Result-Message", res.Message)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		log.Warn().Err(err).Str("file", res.Filename).Msg("failed to write response")
	}
}

// readRequest parses a multipart upload. Files come from the "files" and
// "file" fields in form order; every other field becomes a parameter.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request, tool string) (tools.Request, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
		}
		return tools.Request{}, false
	}
	defer r.MultipartForm.RemoveAll()

	req := tools.Request{Tool: tool, Params: map[string]string{}}
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			req.Params[k] = v[0]
		}
	}
	for _, field := range []string{"files", "file"} {
		for _, hdr := range r.MultipartForm.File[field] {
			f, err := hdr.Open()
			if err != nil {
				writeError(w, http.StatusBadRequest, "cannot read upload")
				return tools.Request{}, false
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "cannot read upload")
				return tools.Request{}, false
			}
			req.Files = append(req.Files, tools.File{Name: hdr.Filename, Data: data})
		}
	}
	return req, true
}
