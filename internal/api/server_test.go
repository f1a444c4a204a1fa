package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdftools/internal/jobs"
	"github.com/local/pdftools/internal/limiter"
	"github.com/local/pdftools/internal/pdfops"
	"github.com/local/pdftools/internal/pdftest"
	"github.com/local/pdftools/internal/statuscheck"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/tools"
)

type upload struct {
	field, name string
	data        []byte
}

func multipartBody(t *testing.T, files []upload, params map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	for k, v := range params {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func newMux(deps Dependencies) *http.ServeMux {
	if deps.Runner == nil {
		deps.Runner = tools.NewRunner(tools.Options{})
	}
	mux := http.NewServeMux()
	New(deps).RegisterRoutes(mux)
	return mux
}

func post(t *testing.T, mux http.Handler, path string, files []upload, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, files, params)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e errorResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(Dependencies{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRunToolReturnsAttachment(t *testing.T) {
	doc := pdftest.Document(t, 4)
	rec := post(t, newMux(Dependencies{}), "/tools/delete",
		[]upload{{"file", "in.pdf", doc}}, map[string]string{"pages": "1,4"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, tools.ContentTypePDF, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=deleted-pages.pdf`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, []int{2, 3}, pdftest.PageOrder(t, doc, rec.Body.Bytes()))
}

func TestRunToolMergeKeepsUploadOrder(t *testing.T) {
	rec := post(t, newMux(Dependencies{}), "/tools/merge", []upload{
		{"files", "a.pdf", pdftest.Document(t, 2)},
		{"files", "b.pdf", pdftest.Document(t, 3)},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	n, err := pdfops.PageCount(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestRunToolErrors(t *testing.T) {
	mux := newMux(Dependencies{})

	rec := post(t, mux, "/tools/delete", []upload{{"file", "in.pdf", pdftest.Document(t, 2)}}, map[string]string{"pages": "1-2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec), "cannot delete all pages")

	rec = post(t, mux, "/tools/protect", []upload{{"file", "in.pdf", pdftest.Document(t, 1)}}, map[string]string{"password": "ab"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Password must be at least 4 characters", decodeError(t, rec))

	rec = post(t, mux, "/tools/shred", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools/merge", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunToolUploadTooLarge(t *testing.T) {
	mux := newMux(Dependencies{MaxUploadBytes: 1024})
	rec := post(t, mux, "/tools/compress", []upload{{"file", "big.pdf", bytes.Repeat([]byte("x"), 4096)}}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRunToolLimiter(t *testing.T) {
	lim := limiter.New(limiter.Options{MaxInflight: 1})
	release, ok := lim.Allow(tools.ToolCompress)
	require.True(t, ok)

	mux := newMux(Dependencies{Limiter: lim})
	rec := post(t, mux, "/tools/compress", []upload{{"file", "a.pdf", pdftest.Document(t, 1)}}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	release()
	rec = post(t, mux, "/tools/compress", []upload{{"file", "a.pdf", pdftest.Document(t, 1)}}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	mux := newMux(Dependencies{Checker: statuscheck.New(statuscheck.Options{})})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var sum statuscheck.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.True(t, sum.PDF.OK)
}

// --- async jobs ---

type chanQueue struct {
	mu        sync.Mutex
	msgs      [][]byte
	cancelled map[string]bool
}

func (q *chanQueue) Enqueue(_ context.Context, p []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, p)
	return nil
}

func (q *chanQueue) Dequeue(context.Context, string, time.Duration) (string, []byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return "", nil, nil
	}
	p := q.msgs[0]
	q.msgs = q.msgs[1:]
	return "1-0", p, nil
}

func (q *chanQueue) Ack(context.Context, string) error { return nil }

func (q *chanQueue) Cancel(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled[id] = true
	return nil
}

func (q *chanQueue) IsCancelled(_ context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[id], nil
}

func (q *chanQueue) AddDLQ(context.Context, []byte, string) error { return nil }

func (q *chanQueue) Depth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.msgs)), nil
}

type mapStatus struct {
	mu sync.Mutex
	m  map[string]jobs.Status
}

func (s *mapStatus) Set(_ context.Context, id string, st jobs.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = st
	return nil
}

func (s *mapStatus) Get(_ context.Context, id string) (jobs.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[id]
	return st, ok, nil
}

func TestJobsLifecycle(t *testing.T) {
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	runner := tools.NewRunner(tools.Options{})
	svc := jobs.NewService(&chanQueue{cancelled: map[string]bool{}}, &mapStatus{m: map[string]jobs.Status{}}, blobs, runner)
	worker := jobs.NewWorker(jobs.WorkerConfig{Concurrency: 1}, svc)
	mux := newMux(Dependencies{Runner: runner, Jobs: svc})

	rec := post(t, mux, "/jobs/extract", []upload{{"file", "in.pdf", pdftest.Document(t, 3)}}, map[string]string{"pages": "2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub submitResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	require.NotEmpty(t, sub.JobID)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusAccepted, get("/jobs/"+sub.JobID+"/download").Code)

	took, err := worker.ProcessNext(context.Background(), "t")
	require.NoError(t, err)
	require.True(t, took)

	rec = get("/jobs/" + sub.JobID)
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, jobs.StateCompleted, st["status"])

	rec = get("/jobs/" + sub.JobID + "/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename=extracted-pages.pdf`, rec.Header().Get("Content-Disposition"))

	assert.Equal(t, http.StatusNotFound, get("/jobs/unknown").Code)
}

func TestJobCancel(t *testing.T) {
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	runner := tools.NewRunner(tools.Options{})
	svc := jobs.NewService(&chanQueue{cancelled: map[string]bool{}}, &mapStatus{m: map[string]jobs.Status{}}, blobs, runner)
	mux := newMux(Dependencies{Runner: runner, Jobs: svc})

	rec := post(t, mux, "/jobs/compress", []upload{{"file", "in.pdf", pdftest.Document(t, 1)}}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sub submitResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+sub.JobID+"/cancel", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)
}

func TestJobsDisabled(t *testing.T) {
	rec := post(t, newMux(Dependencies{}), "/jobs/merge", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
