package search

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Index is a searcher that also accepts documents.
type Index interface {
	Searcher
	IndexJob(record JobRecord) error
	IndexActivity(record ActivityRecord) error
	IndexJobs(records []JobRecord) error
	IndexActivities(records []ActivityRecord) error
}

// RecordLoader returns every searchable record for a full reindex.
type RecordLoader interface {
	LoadAllRecords(ctx context.Context) ([]JobRecord, []ActivityRecord, error)
}

// Service tries the primary index first and falls back to the database
// searcher when the index is missing, unhealthy or failing.
type Service struct {
	primary  Index
	fallback Searcher
	loader   RecordLoader
	logger   *zap.Logger
	pending  sync.WaitGroup
}

// NewService builds the facade. primary and loader may be nil.
func NewService(primary Index, fallback Searcher, loader RecordLoader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{primary: primary, fallback: fallback, loader: loader, logger: logger.Named("search")}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	empty := Response{Results: []Result{}, Query: q.Text}
	if q.Text == "" {
		return empty
	}

	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: s.primary.Name()}
		}
		s.logger.Warn("primary search failed, falling back", zap.String("backend", s.primary.Name()), zap.Error(err))
	}

	if s.fallback == nil {
		return empty
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("fallback search failed", zap.String("backend", s.fallback.Name()), zap.Error(err))
		empty.Backend = s.fallback.Name()
		return empty
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: s.fallback.Name()}
}

func (s *Service) indexing() bool {
	return s.primary != nil && s.primary.Healthy()
}

// IndexJob pushes a job to the primary index in the background.
func (s *Service) IndexJob(record JobRecord) {
	if !s.indexing() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.primary.IndexJob(record); err != nil {
			s.logger.Warn("index job", zap.Int64("job_id", record.ID), zap.Error(err))
		}
	}()
}

func (s *Service) IndexActivity(record ActivityRecord) {
	if !s.indexing() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.primary.IndexActivity(record); err != nil {
			s.logger.Warn("index activity", zap.Int64("activity_id", record.ID), zap.Error(err))
		}
	}()
}

// Wait blocks until background indexing started so far has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ReindexAll loads every record and pushes it to the primary index.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexing() || s.loader == nil {
		return
	}
	jobRecords, activityRecords, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.primary.IndexJobs(jobRecords); err != nil {
		s.logger.Warn("reindex jobs", zap.Error(err))
	}
	if err := s.primary.IndexActivities(activityRecords); err != nil {
		s.logger.Warn("reindex activities", zap.Error(err))
	}
	s.logger.Info("reindexed", zap.Int("jobs", len(jobRecords)), zap.Int("activities", len(activityRecords)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
