package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/jobs"
	"github.com/local/pdftools/internal/tools"
)

type submitResp struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) jobsEnabled(w http.ResponseWriter) bool {
	if s.deps.Jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "async jobs are disabled")
		return false
	}
	return true
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	tool := r.PathValue("tool")
	if !s.deps.Runner.Has(tool) {
		writeError(w, http.StatusNotFound, "unknown tool")
		return
	}
	req, ok := s.readRequest(w, r, tool)
	if !ok {
		return
	}
	id, err := s.deps.Jobs.Submit(r.Context(), req)
	if err != nil {
		if tools.IsInputError(err) {
			writeError(w, http.StatusBadRequest, tools.UserMessage(err))
			return
		}
		log.Error().Err(err).Str("tool", tool).Msg("job submit failed")
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, submitResp{Success: true, JobID: id, Status: jobs.StateQueued, Message: "Job created"})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	id := r.PathValue("id")
	st, err := s.deps.Jobs.Status(r.Context(), id)
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    st.State == jobs.StateCompleted,
		"job_id":     id,
		"status":     st.State,
		"tool":       st.Tool,
		"message":    st.Message,
		"filename":   st.Filename,
		"start_time": st.Start,
		"end_time":   st.End,
		"metadata":   st.Metadata,
	})
}

func (s *Server) handleJobDownload(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	res, err := s.deps.Jobs.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeAttachment(w, res)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	id := r.PathValue("id")
	st, err := s.deps.Jobs.Cancel(r.Context(), id)
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": st.State == jobs.StateCancelled, "job_id": id, "status": st.State})
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, jobs.ErrNotReady):
		writeError(w, http.StatusAccepted, "not ready")
	default:
		log.Error().Err(err).Msg("job lookup failed")
		writeError(w, http.StatusInternalServerError, "error")
	}
}
