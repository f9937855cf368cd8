package search

import (
	"context"
	"fmt"
	"strings"

	"jobtrack/api/internal/jobs"
)

// JobSource is the slice of the job store the in-process searcher scans.
type JobSource interface {
	ListJobs(ctx context.Context, status *jobs.Status) ([]jobs.Job, error)
	ListActivities(ctx context.Context, jobID int64) ([]jobs.Activity, error)
}

// Memory does case-insensitive substring matching over the newest jobs.
type Memory struct {
	source JobSource
}

func NewMemory(source JobSource) *Memory {
	return &Memory{source: source}
}

func (m *Memory) Name() string  { return "memory" }
func (m *Memory) Healthy() bool { return true }

func (m *Memory) Search(ctx context.Context, q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}
	var status *jobs.Status
	if q.Status != "" {
		status = &q.Status
	}
	list, err := m.source.ListJobs(ctx, status)
	if err != nil {
		return nil, 0, fmt.Errorf("memory search: %w", err)
	}

	var hits []Result
	for _, job := range list {
		record := JobRecordOf(job)
		if q.FilterType == "" || q.FilterType == ResultJob {
			if containsFold(needle, record.JobNo, record.Title, record.Owner, record.EstSONo) {
				hits = append(hits, Result{Type: ResultJob, ID: job.ID, JobID: job.ID, JobNo: job.JobNo, Title: job.Title, Status: job.Status})
			}
		}
		if q.FilterType == "" || q.FilterType == ResultActivity {
			activities, err := m.source.ListActivities(ctx, job.ID)
			if err != nil {
				return nil, 0, fmt.Errorf("memory search activities: %w", err)
			}
			for _, activity := range activities {
				snippet := deref(activity.Snippet)
				if containsFold(needle, snippet) {
					hits = append(hits, Result{Type: ResultActivity, ID: activity.ID, JobID: job.ID, JobNo: job.JobNo, Title: job.Title, Snippet: snippet, Status: job.Status})
				}
			}
		}
	}

	total := len(hits)
	start := q.Offset
	if start < 0 || start > total {
		start = total
	}
	end := start + q.limit()
	if end > total {
		end = total
	}
	return hits[start:end], total, nil
}

func containsFold(needle string, haystacks ...string) bool {
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}
