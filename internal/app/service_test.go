package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrack/api/internal/authpw"
	"jobtrack/api/internal/export"
	"jobtrack/api/internal/jobs"
	"jobtrack/api/internal/search"
	"jobtrack/api/internal/store"
)

type recordingIndex struct {
	mu         sync.Mutex
	jobs       []search.JobRecord
	activities []search.ActivityRecord
	searchFn   func(ctx context.Context, q search.Query) search.Response
}

func (r *recordingIndex) Search(ctx context.Context, q search.Query) search.Response {
	return r.searchFn(ctx, q)
}

func (r *recordingIndex) IndexJob(record search.JobRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, record)
}

func (r *recordingIndex) IndexActivity(record search.ActivityRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, record)
}

func TestServiceIndexesWrites(t *testing.T) {
	ctx := context.Background()
	index := &recordingIndex{}
	svc := NewService(newFakeStore(), nil, WithSearch(index))

	resp, err := svc.Ingest(ctx, jobs.IngestInput{JobNo: "J7", Subject: strPtr("Rush [J:7] banners")})
	require.NoError(t, err)
	require.True(t, resp.Created)

	_, err = svc.MoveJob(ctx, resp.JobID, "proof")
	require.NoError(t, err)

	_, err = svc.CreateJob(ctx, jobs.CreateInput{JobNo: "J8", Title: "Shirts"})
	require.NoError(t, err)

	require.Len(t, index.jobs, 3)
	assert.Equal(t, "Rush banners", index.jobs[0].Title)
	assert.Equal(t, "proof", index.jobs[1].Status)
	assert.Equal(t, "J8", index.jobs[2].JobNo)
	require.Len(t, index.activities, 1)
	assert.Equal(t, "J7", index.activities[0].JobNo)
}

func TestServiceSearchWithoutIndex(t *testing.T) {
	svc := NewService(newFakeStore(), nil)

	resp := svc.Search(context.Background(), search.Query{Text: "  banner "})

	assert.Equal(t, "banner", resp.Query)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
}

func TestServiceJobDetailPropagatesErrors(t *testing.T) {
	fs := newFakeStore()
	job, err := fs.CreateJob(context.Background(), jobs.NewJob{JobNo: "J1", Title: "Banner", Status: jobs.StatusIntake})
	require.NoError(t, err)
	fs.activitiesFn = func(context.Context, int64) ([]jobs.Activity, error) {
		return nil, errors.New("timeout")
	}
	svc := NewService(fs, nil)

	_, err = svc.JobDetail(context.Background(), job.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, mapError(err).Status)

	_, err = svc.JobDetail(context.Background(), 0)
	assert.Equal(t, http.StatusNotFound, mapError(err).Status)
}

func TestServiceListJobsNeverNil(t *testing.T) {
	fs := newFakeStore()
	fs.listJobsFn = func(context.Context, *jobs.Status) ([]jobs.Job, error) { return nil, nil }
	svc := NewService(fs, nil)

	list, err := svc.ListJobs(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "domain error", err: ConflictError("taken"), status: http.StatusConflict, code: "CONFLICT"},
		{name: "wrapped validation", err: fmt.Errorf("create: %w", &jobs.ValidationError{Message: "bad"}), status: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "store not found", err: fmt.Errorf("get: %w", store.ErrNotFound), status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "no rows", err: sql.ErrNoRows, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "store conflict", err: store.ErrConflict, status: http.StatusConflict, code: "CONFLICT"},
		{name: "pdf missing", err: export.ErrPDFDependencyMissing, status: http.StatusServiceUnavailable, code: "EXPORT_UNAVAILABLE"},
		{name: "email taken", err: authpw.ErrEmailTaken, status: http.StatusConflict, code: "EMAIL_EXISTS"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := mapError(tc.err)
			assert.Equal(t, tc.status, mapped.Status)
			assert.Equal(t, tc.code, mapped.Code)
		})
	}
}

func strPtr(value string) *string { return &value }
