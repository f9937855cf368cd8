package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"jobtrack/api/internal/jobs"
	"jobtrack/api/internal/ratelimit"
	"jobtrack/api/internal/store"
)

const testAPIKey = "test-key"

// fakeStore delegates to a MemoryStore unless a hook is set.
type fakeStore struct {
	*store.MemoryStore

	pingFn       func(ctx context.Context) error
	listJobsFn   func(ctx context.Context, status *jobs.Status) ([]jobs.Job, error)
	createJobFn  func(ctx context.Context, input jobs.NewJob) (jobs.Job, error)
	patchJobFn   func(ctx context.Context, id int64, patch jobs.Patch) (jobs.Job, error)
	ingestFn     func(ctx context.Context, ingestion jobs.Ingestion) (store.IngestResult, error)
	activitiesFn func(ctx context.Context, jobID int64) ([]jobs.Activity, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: store.NewMemoryStore()}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return f.MemoryStore.Ping(ctx)
}

func (f *fakeStore) ListJobs(ctx context.Context, status *jobs.Status) ([]jobs.Job, error) {
	if f.listJobsFn != nil {
		return f.listJobsFn(ctx, status)
	}
	return f.MemoryStore.ListJobs(ctx, status)
}

func (f *fakeStore) CreateJob(ctx context.Context, input jobs.NewJob) (jobs.Job, error) {
	if f.createJobFn != nil {
		return f.createJobFn(ctx, input)
	}
	return f.MemoryStore.CreateJob(ctx, input)
}

func (f *fakeStore) PatchJob(ctx context.Context, id int64, patch jobs.Patch) (jobs.Job, error) {
	if f.patchJobFn != nil {
		return f.patchJobFn(ctx, id, patch)
	}
	return f.MemoryStore.PatchJob(ctx, id, patch)
}

func (f *fakeStore) Ingest(ctx context.Context, ingestion jobs.Ingestion) (store.IngestResult, error) {
	if f.ingestFn != nil {
		return f.ingestFn(ctx, ingestion)
	}
	return f.MemoryStore.Ingest(ctx, ingestion)
}

func (f *fakeStore) ListActivities(ctx context.Context, jobID int64) ([]jobs.Activity, error) {
	if f.activitiesFn != nil {
		return f.activitiesFn(ctx, jobID)
	}
	return f.MemoryStore.ListActivities(ctx, jobID)
}

type fakeLimiter struct {
	mu       sync.Mutex
	subjects []string
	decision ratelimit.Decision
	err      error
}

func (l *fakeLimiter) Allow(_ context.Context, subject string) (ratelimit.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subjects = append(l.subjects, subject)
	return l.decision, l.err
}

func newTestAPI(t *testing.T, fs *fakeStore, mutate ...func(*APIConfig)) http.Handler {
	t.Helper()
	cfg := APIConfig{APIKey: testAPIKey}
	for _, fn := range mutate {
		fn(&cfg)
	}
	return NewHTTPServer(NewService(fs, nil, WithMetrics(cfg.Metrics)), cfg).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func apiKey() map[string]string {
	return map[string]string{"x-api-key": testAPIKey}
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	if message != "" && payload["error"] != message {
		t.Fatalf("expected error %q, got %v", message, payload["error"])
	}
}
