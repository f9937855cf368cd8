package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"jobtrack/api/internal/jobs"
	"jobtrack/api/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type fakeIndex struct {
	mu         sync.Mutex
	healthy    bool
	searchErr  error
	results    []Result
	jobs       []JobRecord
	activities []ActivityRecord
}

func (f *fakeIndex) Name() string  { return "fake" }
func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(context.Context, Query) ([]Result, int, error) {
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return f.results, len(f.results), nil
}

func (f *fakeIndex) IndexJob(record JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, record)
	return nil
}

func (f *fakeIndex) IndexActivity(record ActivityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, record)
	return nil
}

func (f *fakeIndex) IndexJobs(records []JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, records...)
	return nil
}

func (f *fakeIndex) IndexActivities(records []ActivityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, records...)
	return nil
}

type staticLoader struct {
	jobs       []JobRecord
	activities []ActivityRecord
	err        error
}

func (l staticLoader) LoadAllRecords(context.Context) ([]JobRecord, []ActivityRecord, error) {
	return l.jobs, l.activities, l.err
}

func seededMemory(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	owner := "sam@example.com"
	_, err := st.CreateJob(ctx, jobs.NewJob{JobNo: "J100", Title: "Banner reprint", Status: jobs.StatusProof, Owner: &owner})
	require.NoError(t, err)
	_, err = st.CreateJob(ctx, jobs.NewJob{JobNo: "J200", Title: "Team shirts", Status: jobs.StatusIntake})
	require.NoError(t, err)
	snippet := "Customer approved the banner proof"
	_, err = st.Ingest(ctx, jobs.Ingestion{JobNo: "J200", Title: "Team shirts", Source: jobs.DefaultActivitySource, Snippet: &snippet})
	require.NoError(t, err)
	return st
}

func TestMemorySearchMatchesJobsAndActivities(t *testing.T) {
	st := seededMemory(t)
	searcher := NewMemory(st)

	results, total, err := searcher.Search(context.Background(), Query{Text: "BANNER"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	byType := map[ResultType]Result{}
	for _, r := range results {
		byType[r.Type] = r
	}
	assert.Equal(t, "J100", byType[ResultJob].JobNo)
	assert.Equal(t, "J200", byType[ResultActivity].JobNo)
	assert.Equal(t, "Customer approved the banner proof", byType[ResultActivity].Snippet)
}

func TestMemorySearchFilters(t *testing.T) {
	st := seededMemory(t)
	searcher := NewMemory(st)
	ctx := context.Background()

	results, total, err := searcher.Search(ctx, Query{Text: "banner", FilterType: ResultJob})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, ResultJob, results[0].Type)

	_, total, err = searcher.Search(ctx, Query{Text: "banner", Status: jobs.StatusComplete})
	require.NoError(t, err)
	assert.Zero(t, total)

	results, total, err = searcher.Search(ctx, Query{Text: "sam@example", Status: jobs.StatusProof})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "J100", results[0].JobNo)
}

func TestMemorySearchPaging(t *testing.T) {
	st := seededMemory(t)
	searcher := NewMemory(st)

	results, total, err := searcher.Search(context.Background(), Query{Text: "banner", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, results, 1)

	results, total, err = searcher.Search(context.Background(), Query{Text: "banner", Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Empty(t, results)
}

func TestQueryLimitDefaults(t *testing.T) {
	assert.Equal(t, 20, Query{}.limit())
	assert.Equal(t, 20, Query{Limit: 500}.limit())
	assert.Equal(t, 7, Query{Limit: 7}.limit())
}

func TestServiceUsesHealthyPrimary(t *testing.T) {
	primary := &fakeIndex{healthy: true, results: []Result{{Type: ResultJob, ID: 9, JobNo: "J9"}}}
	svc := NewService(primary, NewMemory(seededMemory(t)), nil, nil)

	resp := svc.Search(context.Background(), Query{Text: "  anything  "})
	assert.Equal(t, "fake", resp.Backend)
	assert.Equal(t, "anything", resp.Query)
	assert.Equal(t, 1, resp.Total)
}

func TestServiceFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &fakeIndex{healthy: true, searchErr: errors.New("boom")}
	svc := NewService(primary, NewMemory(seededMemory(t)), nil, nil)

	resp := svc.Search(context.Background(), Query{Text: "shirts"})
	assert.Equal(t, "memory", resp.Backend)
	assert.Equal(t, 1, resp.Total)

	primary.healthy = false
	primary.searchErr = nil
	resp = svc.Search(context.Background(), Query{Text: "shirts"})
	assert.Equal(t, "memory", resp.Backend)
}

func TestServiceBlankQuery(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	resp := svc.Search(context.Background(), Query{Text: "   "})
	assert.NotNil(t, resp.Results)
	assert.Zero(t, resp.Total)

	resp = svc.Search(context.Background(), Query{Text: "banner"})
	assert.Empty(t, resp.Results)
}

func TestServiceIndexesInBackground(t *testing.T) {
	primary := &fakeIndex{healthy: true}
	svc := NewService(primary, nil, nil, nil)

	svc.IndexJob(JobRecord{ID: 1, JobNo: "J1"})
	svc.IndexActivity(ActivityRecord{ID: 2, JobID: 1})
	svc.Wait()

	assert.Len(t, primary.jobs, 1)
	assert.Len(t, primary.activities, 1)

	primary.healthy = false
	svc.IndexJob(JobRecord{ID: 3})
	svc.Wait()
	assert.Len(t, primary.jobs, 1)
}

func TestServiceReindexAll(t *testing.T) {
	primary := &fakeIndex{healthy: true}
	loader := staticLoader{
		jobs:       []JobRecord{{ID: 1}, {ID: 2}},
		activities: []ActivityRecord{{ID: 5, JobID: 1}},
	}
	NewService(primary, nil, loader, nil).ReindexAll(context.Background())
	assert.Len(t, primary.jobs, 2)
	assert.Len(t, primary.activities, 1)

	failing := &fakeIndex{healthy: true}
	NewService(failing, nil, staticLoader{err: errors.New("db down")}, nil).ReindexAll(context.Background())
	assert.Empty(t, failing.jobs)
}

func TestHitToResult(t *testing.T) {
	jobHit := meili.Hit{
		"id":         []byte(`42`),
		"job_no":     []byte(`"J42"`),
		"title":      []byte(`"Banner"`),
		"status":     []byte(`"proof"`),
		"_formatted": []byte(`{"title":"<mark>Banner</mark>","id":"42"}`),
	}
	r := hitToResult(jobHit, ResultJob)
	assert.Equal(t, Result{Type: ResultJob, ID: 42, JobID: 42, JobNo: "J42", Title: "<mark>Banner</mark>", Status: jobs.StatusProof}, r)

	activityHit := meili.Hit{
		"id":      []byte(`7`),
		"job_id":  []byte(`42`),
		"job_no":  []byte(`"J42"`),
		"snippet": []byte(`"see attached"`),
	}
	r = hitToResult(activityHit, ResultActivity)
	assert.Equal(t, Result{Type: ResultActivity, ID: 7, JobID: 42, JobNo: "J42", Snippet: "see attached"}, r)
}

func TestMeiliUnavailableReportsUnhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m := newMeili(meili.New(server.URL), nil, time.Hour)
	defer m.Close()

	assert.False(t, m.Healthy())
	assert.Equal(t, "meilisearch", m.Name())
	_, _, err := m.Search(context.Background(), Query{Text: "banner"})
	assert.ErrorIs(t, err, errMeiliUnhealthy)
}
