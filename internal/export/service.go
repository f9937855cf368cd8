package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobtrack/api/internal/jobs"
	"jobtrack/api/internal/storage"
)

// DataStore is the read side of the job store an export needs.
type DataStore interface {
	GetJob(ctx context.Context, id int64) (jobs.Job, error)
	ListActivities(ctx context.Context, jobID int64) ([]jobs.Activity, error)
}

// Archiver stores rendered exports and hands back a download link.
type Archiver interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

const archiveLinkTTL = 24 * time.Hour

type Service struct {
	store    DataStore
	pdf      PDFRenderer
	archiver Archiver
	logger   *zap.Logger
	now      func() time.Time
}

// NewService builds an export service. pdf defaults to ChromePDF and
// archiver may be nil.
func NewService(store DataStore, pdf PDFRenderer, archiver Archiver, logger *zap.Logger) *Service {
	if pdf == nil {
		pdf = ChromePDF
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, pdf: pdf, archiver: archiver, logger: logger.Named("export"), now: time.Now}
}

// JobTicket renders a printable ticket for one job and its activity.
func (s *Service) JobTicket(ctx context.Context, jobID int64) (*Result, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	activities, err := s.store.ListActivities(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	html, err := RenderTicketHTML(TicketData{Job: job, Activities: activities, GeneratedAt: s.now()})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	data, err := s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Data:     data,
		Filename: sanitizeFilename(job.JobNo+" "+job.Title) + ".pdf",
		MimeType: MimePDF,
	}
	s.archive(ctx, "tickets", result)
	return result, nil
}

// Board renders list as a spreadsheet.
func (s *Service) Board(ctx context.Context, list []jobs.Job) (*Result, error) {
	now := s.now()
	data, err := BoardWorkbook(list, now)
	if err != nil {
		return nil, err
	}
	result := &Result{
		Data:     data,
		Filename: "board-" + now.UTC().Format("2006-01-02") + ".xlsx",
		MimeType: MimeXLSX,
	}
	s.archive(ctx, "boards", result)
	return result, nil
}

// archive is best effort; a storage failure never fails the export.
func (s *Service) archive(ctx context.Context, kind string, result *Result) {
	if s.archiver == nil {
		return
	}
	key := storage.ExportKey(kind, result.Filename, s.now())
	if err := s.archiver.WriteObject(ctx, key, result.Data, result.MimeType); err != nil {
		s.logger.Warn("archive export", zap.String("key", key), zap.Error(err))
		return
	}
	url, err := s.archiver.PresignedGetURL(ctx, key, archiveLinkTTL)
	if err != nil {
		s.logger.Warn("presign export", zap.String("key", key), zap.Error(err))
		return
	}
	result.URL = url
}
