package jobs

import (
	"fmt"
	"strings"
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CreateInput is the POST /jobs body.
type CreateInput struct {
	JobNo       string  `json:"job_no"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	InHandsDate *string `json:"in_hands_date"`
	Owner       *string `json:"owner"`
	Priority    *string `json:"priority"`
	EstSONo     *string `json:"est_so_no"`
}

func (in CreateInput) Validate() (NewJob, error) {
	jobNo := strings.TrimSpace(in.JobNo)
	title := strings.TrimSpace(in.Title)
	if jobNo == "" || title == "" {
		return NewJob{}, invalid("job_no", "job_no and title required")
	}

	status := StatusIntake
	if strings.TrimSpace(in.Status) != "" {
		parsed, ok := ParseStatus(in.Status)
		if !ok {
			return NewJob{}, invalid("status", "unknown status %q", in.Status)
		}
		status = parsed
	}

	job := NewJob{
		JobNo:    jobNo,
		Title:    title,
		Status:   status,
		Owner:    nonBlank(in.Owner),
		Priority: nonBlank(in.Priority),
		EstSONo:  nonBlank(in.EstSONo),
	}
	if raw := nonBlank(in.InHandsDate); raw != nil {
		date, err := ParseDate(*raw)
		if err != nil {
			return NewJob{}, invalid("in_hands_date", "%s", err.Error())
		}
		job.InHandsDate = &date
	}
	return job, nil
}

// PatchInput is the PATCH /jobs/:id body. A null or empty status counts as
// not supplied; in_hands_date distinguishes absent from null.
type PatchInput struct {
	Status      *string      `json:"status"`
	InHandsDate OptionalDate `json:"in_hands_date"`
}

func (in PatchInput) Validate() (Patch, error) {
	var patch Patch
	if in.Status != nil && strings.TrimSpace(*in.Status) != "" {
		status, ok := ParseStatus(*in.Status)
		if !ok {
			return Patch{}, invalid("status", "unknown status %q", *in.Status)
		}
		patch.Status = &status
	}
	if in.InHandsDate.Set {
		patch.SetDate = true
		patch.InHandsDate = in.InHandsDate.Value
	}
	if patch.Empty() {
		return Patch{}, invalid("", "no changes")
	}
	return patch, nil
}

// IngestInput is the POST /activities/ingest body.
type IngestInput struct {
	JobNo     string  `json:"job_no"`
	Subject   *string `json:"subject"`
	Snippet   *string `json:"snippet"`
	GmailLink *string `json:"gmail_link"`
	Source    *string `json:"source"`
}

// Ingestion is a validated ingest request with its derived title.
type Ingestion struct {
	JobNo     string
	Title     string
	Source    string
	Snippet   *string
	GmailLink *string
}

func (in IngestInput) Validate() (Ingestion, error) {
	jobNo := strings.TrimSpace(in.JobNo)
	if jobNo == "" {
		return Ingestion{}, invalid("job_no", "job_no required")
	}
	source := DefaultActivitySource
	if value := nonBlank(in.Source); value != nil {
		source = *value
	}
	return Ingestion{
		JobNo:     jobNo,
		Title:     NormalizeTitle(in.Subject),
		Source:    source,
		Snippet:   nonBlank(in.Snippet),
		GmailLink: nonBlank(in.GmailLink),
	}, nil
}

func nonBlank(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
