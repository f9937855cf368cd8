package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"jobtrack/api/internal/jobs"
)

const (
	idxJobs       = "jobtrack_jobs"
	idxActivities = "jobtrack_activities"
)

var errMeiliUnhealthy = errors.New("meilisearch unhealthy")

// Meili searches and indexes jobs and activities in Meilisearch.
type Meili struct {
	client    meili.ServiceManager
	logger    *zap.Logger
	healthy   atomic.Bool
	interval  time.Duration
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMeili connects to Meilisearch and starts a background health probe.
// An unreachable server is not an error; the searcher reports unhealthy
// until a probe succeeds.
func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	return newMeili(meili.New(url, meili.WithAPIKey(apiKey)), logger, 10*time.Second)
}

func newMeili(client meili.ServiceManager, logger *zap.Logger, interval time.Duration) *Meili {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Meili{
		client:   client,
		logger:   logger.Named("meili"),
		interval: interval,
		done:     make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", zap.Error(err))
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	m.wg.Add(1)
	go m.healthLoop()
	return m
}

func (m *Meili) Name() string { return "meilisearch" }

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{uid: idxJobs, filterable: []string{"status"}, searchable: []string{"job_no", "title", "owner", "est_so_no"}},
		{uid: idxActivities, filterable: []string{"job_id", "source"}, searchable: []string{"snippet", "job_no"}},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idx.uid, PrimaryKey: "id"}); err != nil {
			m.logger.Debug("create index", zap.String("index", idx.uid), zap.Error(err))
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			m.logger.Warn("update filterable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			m.logger.Warn("update searchable attributes", zap.String("index", idx.uid), zap.Error(err))
		}
	}
}

func (m *Meili) healthLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Swap(err == nil)
			switch {
			case err == nil && !wasHealthy:
				m.logger.Info("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			case err != nil && wasHealthy:
				m.logger.Warn("meilisearch health check failed", zap.Error(err))
			}
		}
	}
}

// Close stops the health probe and waits for it to exit.
func (m *Meili) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errMeiliUnhealthy
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var queries []*meili.SearchRequest
	if q.FilterType == "" || q.FilterType == ResultJob {
		sr := m.request(idxJobs, q)
		if q.Status != "" {
			sr.Filter = fmt.Sprintf("status = %q", string(q.Status))
		}
		queries = append(queries, sr)
	}
	// Activity documents carry no status; filtering by status limits to jobs.
	if (q.FilterType == "" || q.FilterType == ResultActivity) && q.Status == "" {
		queries = append(queries, m.request(idxActivities, q))
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, indexResultType(sr.IndexUID)))
		}
	}
	return results, total, nil
}

func (m *Meili) request(uid string, q Query) *meili.SearchRequest {
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	return &meili.SearchRequest{
		IndexUID:              uid,
		Query:                 q.Text,
		Limit:                 int64(q.limit()),
		Offset:                int64(offset),
		AttributesToHighlight: []string{"title", "snippet"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
}

func indexResultType(uid string) ResultType {
	switch uid {
	case idxJobs:
		return ResultJob
	case idxActivities:
		return ResultActivity
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp, ID: decodeInt(hit, "id"), JobNo: decodeString(hit, "job_no")}
	switch rtyp {
	case ResultJob:
		r.JobID = r.ID
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Status = jobs.Status(decodeString(hit, "status"))
	case ResultActivity:
		r.JobID = decodeInt(hit, "job_id")
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "snippet"), decodeString(hit, "snippet"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexJob(record JobRecord) error {
	_, err := m.client.Index(idxJobs).AddDocuments([]JobRecord{record}, nil)
	return err
}

func (m *Meili) IndexActivity(record ActivityRecord) error {
	_, err := m.client.Index(idxActivities).AddDocuments([]ActivityRecord{record}, nil)
	return err
}

// IndexJobs bulk-indexes job records.
func (m *Meili) IndexJobs(records []JobRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxJobs).AddDocuments(records, nil)
	return err
}

func (m *Meili) IndexActivities(records []ActivityRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxActivities).AddDocuments(records, nil)
	return err
}
