// Package apiclient talks to the API-key protected REST surface. It backs
// the CLI and satisfies dashboard.Source.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobtrack/api/internal/jobs"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Error
			apiErr.Code = payload.Code
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListJobs lists up to 200 jobs, newest first. A nil status lists all.
func (c *Client) ListJobs(ctx context.Context, status *jobs.Status) ([]jobs.Job, error) {
	path := "/jobs"
	if status != nil {
		path += "?status=" + url.QueryEscape(string(*status))
	}
	var list []jobs.Job
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) CreateJob(ctx context.Context, input jobs.CreateInput) (jobs.Job, error) {
	var job jobs.Job
	err := c.do(ctx, http.MethodPost, "/jobs", input, &job)
	return job, err
}

// PatchRequest is a PATCH /jobs/{id} body. ClearDate sends an explicit
// null for in_hands_date.
type PatchRequest struct {
	Status      *jobs.Status
	InHandsDate *jobs.Date
	ClearDate   bool
}

func (p PatchRequest) body() map[string]any {
	body := map[string]any{}
	if p.Status != nil {
		body["status"] = *p.Status
	}
	switch {
	case p.ClearDate:
		body["in_hands_date"] = nil
	case p.InHandsDate != nil:
		body["in_hands_date"] = p.InHandsDate.String()
	}
	return body
}

func (c *Client) PatchJob(ctx context.Context, id int64, patch PatchRequest) (jobs.Job, error) {
	var job jobs.Job
	err := c.do(ctx, http.MethodPatch, "/jobs/"+strconv.FormatInt(id, 10), patch.body(), &job)
	return job, err
}

// SetStatus moves a job to status.
func (c *Client) SetStatus(ctx context.Context, id int64, status jobs.Status) (jobs.Job, error) {
	return c.PatchJob(ctx, id, PatchRequest{Status: &status})
}

type JobDetail struct {
	Job        jobs.Job        `json:"job"`
	Activities []jobs.Activity `json:"activities"`
}

func (c *Client) JobDetail(ctx context.Context, id int64) (JobDetail, error) {
	var detail JobDetail
	err := c.do(ctx, http.MethodGet, "/jobs/"+strconv.FormatInt(id, 10), nil, &detail)
	return detail, err
}

type IngestResult struct {
	OK         bool          `json:"ok"`
	Activity   jobs.Activity `json:"activity"`
	JobID      int64         `json:"job_id"`
	JobCreated bool          `json:"job_created"`
}

func (c *Client) Ingest(ctx context.Context, input jobs.IngestInput) (IngestResult, error) {
	var result IngestResult
	err := c.do(ctx, http.MethodPost, "/activities/ingest", input, &result)
	return result, err
}
