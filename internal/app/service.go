package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobtrack/api/internal/jobs"
	"jobtrack/api/internal/search"
	"jobtrack/api/internal/store"
)

type jobStore interface {
	Ping(ctx context.Context) error
	ListJobs(ctx context.Context, status *jobs.Status) ([]jobs.Job, error)
	GetJob(ctx context.Context, id int64) (jobs.Job, error)
	CreateJob(ctx context.Context, input jobs.NewJob) (jobs.Job, error)
	PatchJob(ctx context.Context, id int64, patch jobs.Patch) (jobs.Job, error)
	Ingest(ctx context.Context, ingestion jobs.Ingestion) (store.IngestResult, error)
	ListActivities(ctx context.Context, jobID int64) ([]jobs.Activity, error)
}

// searchIndex is satisfied by *search.Service.
type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexJob(record search.JobRecord)
	IndexActivity(record search.ActivityRecord)
}

// Service owns the job and activity use cases shared by the REST API, the
// dashboard and the CLI.
type Service struct {
	store   jobStore
	search  searchIndex
	metrics *Metrics
	logger  *zap.Logger
}

type ServiceOption func(*Service)

func WithSearch(index searchIndex) ServiceOption {
	return func(s *Service) { s.search = index }
}

func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(dataStore jobStore, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: dataStore, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// IngestResponse is the body of a successful ingest.
type IngestResponse struct {
	OK       bool          `json:"ok"`
	Activity jobs.Activity `json:"activity"`
	JobID    int64         `json:"job_id"`
	Created  bool          `json:"job_created"`
}

// Ingest finds or creates the job for input.JobNo and appends an activity.
func (s *Service) Ingest(ctx context.Context, input jobs.IngestInput) (IngestResponse, error) {
	ingestion, err := input.Validate()
	if err != nil {
		return IngestResponse{}, err
	}

	result, err := s.store.Ingest(ctx, ingestion)
	if err != nil {
		return IngestResponse{}, fmt.Errorf("ingest %s: %w", ingestion.JobNo, err)
	}
	s.metrics.observeIngest(result.JobCreated)
	s.logger.Info("activity ingested",
		zap.String("job_no", ingestion.JobNo),
		zap.Int64("job_id", result.JobID),
		zap.Bool("job_created", result.JobCreated),
		zap.Int64("activity_id", result.Activity.ID),
	)

	if s.search != nil {
		s.reindexJob(ctx, result.JobID)
		s.search.IndexActivity(search.ActivityRecordOf(result.Activity, ingestion.JobNo))
	}
	return IngestResponse{OK: true, Activity: result.Activity, JobID: result.JobID, Created: result.JobCreated}, nil
}

// reindexJob refreshes the search copy of a job after a write that may have
// changed its title.
func (s *Service) reindexJob(ctx context.Context, id int64) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		s.logger.Warn("load job for indexing", zap.Int64("job_id", id), zap.Error(err))
		return
	}
	s.search.IndexJob(search.JobRecordOf(job))
}

// ListJobs returns up to jobs.ListLimit jobs, newest first. A blank status
// lists every job.
func (s *Service) ListJobs(ctx context.Context, rawStatus string) ([]jobs.Job, error) {
	var status *jobs.Status
	if strings.TrimSpace(rawStatus) != "" {
		parsed, ok := jobs.ParseStatus(rawStatus)
		if !ok {
			return nil, ValidationError(fmt.Sprintf("unknown status %q", rawStatus))
		}
		status = &parsed
	}
	list, err := s.store.ListJobs(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if list == nil {
		list = []jobs.Job{}
	}
	return list, nil
}

func (s *Service) CreateJob(ctx context.Context, input jobs.CreateInput) (jobs.Job, error) {
	newJob, err := input.Validate()
	if err != nil {
		return jobs.Job{}, err
	}
	job, err := s.store.CreateJob(ctx, newJob)
	if errors.Is(err, store.ErrConflict) {
		return jobs.Job{}, ConflictError(fmt.Sprintf("job_no %s already exists", newJob.JobNo))
	}
	if err != nil {
		return jobs.Job{}, fmt.Errorf("create job: %w", err)
	}
	s.metrics.observeJobCreated()
	if s.search != nil {
		s.search.IndexJob(search.JobRecordOf(job))
	}
	return job, nil
}

func (s *Service) PatchJob(ctx context.Context, id int64, input jobs.PatchInput) (jobs.Job, error) {
	patch, err := input.Validate()
	if err != nil {
		return jobs.Job{}, err
	}
	return s.applyPatch(ctx, id, patch)
}

// MoveJob sets only the status of a job.
func (s *Service) MoveJob(ctx context.Context, id int64, rawStatus string) (jobs.Job, error) {
	status, ok := jobs.ParseStatus(rawStatus)
	if !ok {
		return jobs.Job{}, ValidationError(fmt.Sprintf("unknown status %q", rawStatus))
	}
	return s.applyPatch(ctx, id, jobs.Patch{Status: &status})
}

func (s *Service) applyPatch(ctx context.Context, id int64, patch jobs.Patch) (jobs.Job, error) {
	if id <= 0 {
		return jobs.Job{}, NotFoundError()
	}
	job, err := s.store.PatchJob(ctx, id, patch)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("patch job %d: %w", id, err)
	}
	if patch.Status != nil {
		s.metrics.observeStatusChange(string(*patch.Status))
	}
	if s.search != nil {
		s.search.IndexJob(search.JobRecordOf(job))
	}
	return job, nil
}

type JobDetail struct {
	Job        jobs.Job        `json:"job"`
	Activities []jobs.Activity `json:"activities"`
}

// JobDetail loads a job and its activities concurrently.
func (s *Service) JobDetail(ctx context.Context, id int64) (JobDetail, error) {
	if id <= 0 {
		return JobDetail{}, NotFoundError()
	}
	var detail JobDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		job, err := s.store.GetJob(gctx, id)
		if err != nil {
			return fmt.Errorf("get job %d: %w", id, err)
		}
		detail.Job = job
		return nil
	})
	g.Go(func() error {
		activities, err := s.store.ListActivities(gctx, id)
		if err != nil {
			return fmt.Errorf("list activities %d: %w", id, err)
		}
		detail.Activities = activities
		return nil
	})
	if err := g.Wait(); err != nil {
		return JobDetail{}, err
	}
	if detail.Activities == nil {
		detail.Activities = []jobs.Activity{}
	}
	return detail, nil
}

// Search runs a dashboard search. Without a search backend it returns an
// empty response.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: strings.TrimSpace(q.Text)}
	}
	return s.search.Search(ctx, q)
}
