package search

import (
	"context"

	"jobtrack/api/internal/jobs"
)

type ResultType string

const (
	ResultJob      ResultType = "job"
	ResultActivity ResultType = "activity"
)

// Result is a single search hit. Activities point back at their job.
type Result struct {
	Type    ResultType  `json:"type"`
	ID      int64       `json:"id"`
	JobID   int64       `json:"job_id"`
	JobNo   string      `json:"job_no"`
	Title   string      `json:"title"`
	Snippet string      `json:"snippet"`
	Status  jobs.Status `json:"status,omitempty"`
}

type Query struct {
	Text       string
	FilterType ResultType
	Status     jobs.Status
	Limit      int
	Offset     int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
	Name() string
}

// JobRecord is the indexed shape of a job.
type JobRecord struct {
	ID      int64  `json:"id"`
	JobNo   string `json:"job_no"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Owner   string `json:"owner"`
	EstSONo string `json:"est_so_no"`
}

type ActivityRecord struct {
	ID      int64  `json:"id"`
	JobID   int64  `json:"job_id"`
	JobNo   string `json:"job_no"`
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

func JobRecordOf(job jobs.Job) JobRecord {
	return JobRecord{
		ID:      job.ID,
		JobNo:   job.JobNo,
		Title:   job.Title,
		Status:  string(job.Status),
		Owner:   deref(job.Owner),
		EstSONo: deref(job.EstSONo),
	}
}

func ActivityRecordOf(activity jobs.Activity, jobNo string) ActivityRecord {
	return ActivityRecord{
		ID:      activity.ID,
		JobID:   activity.JobID,
		JobNo:   jobNo,
		Source:  activity.Source,
		Snippet: deref(activity.Snippet),
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
