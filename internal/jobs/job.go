package jobs

import (
	"strings"
	"time"
)

// DefaultActivitySource tags activities that arrive without an origin.
const DefaultActivitySource = "email"

// ListLimit caps every job listing.
const ListLimit = 200

type Job struct {
	ID          int64     `json:"id"`
	JobNo       string    `json:"job_no"`
	Title       string    `json:"title"`
	Status      Status    `json:"status"`
	InHandsDate *Date     `json:"in_hands_date"`
	Owner       *string   `json:"owner"`
	Priority    *string   `json:"priority"`
	EstSONo     *string   `json:"est_so_no"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OwnedBy reports whether identity matches the job owner, ignoring case.
func (j Job) OwnedBy(identity string) bool {
	if j.Owner == nil {
		return false
	}
	identity = strings.TrimSpace(identity)
	return identity != "" && strings.EqualFold(strings.TrimSpace(*j.Owner), identity)
}

type Activity struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	Source    string    `json:"source"`
	Snippet   *string   `json:"snippet"`
	GmailLink *string   `json:"gmail_link"`
	CreatedAt time.Time `json:"created_at"`
}

// NewJob is a validated job ready to insert.
type NewJob struct {
	JobNo       string
	Title       string
	Status      Status
	InHandsDate *Date
	Owner       *string
	Priority    *string
	EstSONo     *string
}

// Patch carries only the fields a caller supplied. SetDate with a nil
// InHandsDate clears the stored date.
type Patch struct {
	Status      *Status
	SetDate     bool
	InHandsDate *Date
}

func (p Patch) Empty() bool {
	return p.Status == nil && !p.SetDate
}

// NewActivity is an activity ready to append to an existing job.
type NewActivity struct {
	JobID     int64
	Source    string
	Snippet   *string
	GmailLink *string
}
