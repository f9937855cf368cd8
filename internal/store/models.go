package store

import (
	"time"

	"jobtrack/api/internal/jobs"
)

// User is a row of app_users.
type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NeedsOnboarding is true until the user has picked a display name.
func (u User) NeedsOnboarding() bool {
	return u.DisplayName == ""
}

const DefaultRole = "viewer"

// IngestResult reports what one ingestion wrote.
type IngestResult struct {
	JobID      int64
	JobCreated bool
	Activity   jobs.Activity
}
