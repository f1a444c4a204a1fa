// Package jobs runs tools asynchronously: inputs go to blob storage, a message
// goes on the queue and workers write the result back for later download.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftools/internal/metrics"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/tools"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrNotReady    = errors.New("job result not ready")
)

// Message is the queue payload for one job.
type Message struct {
	JobID       string            `json:"job_id"`
	Tool        string            `json:"tool"`
	Inputs      []Input           `json:"inputs"`
	Params      map[string]string `json:"params,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// Input points at one uploaded file in blob storage.
type Input struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Service is the API side of async jobs.
type Service struct {
	queue  Queue
	status StatusStore
	blobs  storage.Store
	runner *tools.Runner
}

func NewService(q Queue, st StatusStore, blobs storage.Store, runner *tools.Runner) *Service {
	return &Service{queue: q, status: st, blobs: blobs, runner: runner}
}

func inputKey(jobID string, i int) string { return fmt.Sprintf("jobs/%s/input-%d", jobID, i) }
func resultKey(jobID string) string       { return fmt.Sprintf("jobs/%s/result", jobID) }

// Submit stores the inputs, records the job as queued and enqueues it.
func (s *Service) Submit(ctx context.Context, req tools.Request) (string, error) {
	if !s.runner.Has(req.Tool) {
		return "", &tools.InputError{Message: fmt.Sprintf("Unknown tool %q", req.Tool)}
	}
	if len(req.Files) == 0 {
		return "", &tools.InputError{Message: "Please select a file first"}
	}

	jobID := uuid.NewString()
	msg := Message{JobID: jobID, Tool: req.Tool, Params: req.Params, SubmittedAt: time.Now().UTC()}
	for i, f := range req.Files {
		key := inputKey(jobID, i)
		if err := s.blobs.Put(ctx, key, f.Data, storage.Metadata{Name: f.Name}); err != nil {
			return "", fmt.Errorf("store input %d: %w", i, err)
		}
		msg.Inputs = append(msg.Inputs, Input{Key: key, Name: f.Name})
	}

	if err := s.status.Set(ctx, jobID, Status{State: StateQueued, Tool: req.Tool, Message: "Queued"}); err != nil {
		return "", fmt.Errorf("set status: %w", err)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	if err := s.queue.Enqueue(ctx, payload); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	metrics.IncJob(StateQueued)
	log.Info().Str("job_id", jobID).Str("tool", req.Tool).Int("files", len(req.Files)).Msg("job queued")
	return jobID, nil
}

// Status returns the current status of a job.
func (s *Service) Status(ctx context.Context, jobID string) (Status, error) {
	st, ok, err := s.status.Get(ctx, jobID)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{}, ErrJobNotFound
	}
	return st, nil
}

// Cancel flags the job so workers skip it. Final jobs are left untouched.
func (s *Service) Cancel(ctx context.Context, jobID string) (Status, error) {
	st, err := s.Status(ctx, jobID)
	if err != nil {
		return Status{}, err
	}
	if st.Final() {
		return st, nil
	}
	if err := s.queue.Cancel(ctx, jobID); err != nil {
		return Status{}, fmt.Errorf("cancel: %w", err)
	}
	now := time.Now().UTC()
	st.State, st.Message, st.End = StateCancelled, "Cancelled", &now
	if err := s.status.Set(ctx, jobID, st); err != nil {
		return Status{}, err
	}
	metrics.IncJob(StateCancelled)
	log.Info().Str("job_id", jobID).Msg("job cancelled")
	return st, nil
}

// Result loads the output of a completed job.
func (s *Service) Result(ctx context.Context, jobID string) (*tools.Result, error) {
	st, err := s.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if st.State != StateCompleted || st.ResultKey == "" {
		return nil, ErrNotReady
	}
	data, meta, err := s.blobs.Get(ctx, st.ResultKey)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	return &tools.Result{
		Filename:    st.Filename,
		ContentType: meta.ContentType,
		Data:        data,
		Message:     st.Message,
		Meta:        st.Metadata,
	}, nil
}
