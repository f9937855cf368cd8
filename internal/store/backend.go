package store

import (
	"context"
	"time"

	"jobtrack/api/internal/jobs"
)

// Backend is everything the services need from a store. PostgresStore and
// MemoryStore both implement it.
type Backend interface {
	Ping(ctx context.Context) error

	ListJobs(ctx context.Context, status *jobs.Status) ([]jobs.Job, error)
	GetJob(ctx context.Context, id int64) (jobs.Job, error)
	CreateJob(ctx context.Context, input jobs.NewJob) (jobs.Job, error)
	PatchJob(ctx context.Context, id int64, patch jobs.Patch) (jobs.Job, error)
	Ingest(ctx context.Context, ingestion jobs.Ingestion) (IngestResult, error)
	ListActivities(ctx context.Context, jobID int64) ([]jobs.Activity, error)

	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	EnsureUser(ctx context.Context, email, role string) (User, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) (User, error)
	SetUserRole(ctx context.Context, userID, role string) (User, error)
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

var (
	_ Backend = (*PostgresStore)(nil)
	_ Backend = (*MemoryStore)(nil)
)
