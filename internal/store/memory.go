package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobtrack/api/internal/jobs"
)

// MemoryStore keeps everything in process. It backs local runs without
// DATABASE_URL and the HTTP tests.
type MemoryStore struct {
	mu sync.Mutex

	now func() time.Time

	nextJobID      int64
	nextActivityID int64
	jobs           map[int64]jobs.Job
	jobsByNumber   map[string]int64
	activities     []jobs.Activity

	users         map[string]User
	resets        map[string]memoryReset
	refresh       map[string]memorySession
	revokedAccess map[string]time.Time
}

type memoryReset struct {
	userID    string
	expiresAt time.Time
	used      bool
}

type memorySession struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		jobs:          map[int64]jobs.Job{},
		jobsByNumber:  map[string]int64{},
		users:         map[string]User{},
		resets:        map[string]memoryReset{},
		refresh:       map[string]memorySession{},
		revokedAccess: map[string]time.Time{},
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) ListJobs(_ context.Context, status *jobs.Status) ([]jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]jobs.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		items = append(items, job)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if len(items) > jobs.ListLimit {
		items = items[:jobs.ListLimit]
	}
	return items, nil
}

func (s *MemoryStore) GetJob(_ context.Context, id int64) (jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return jobs.Job{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) CreateJob(_ context.Context, input jobs.NewJob) (jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobsByNumber[input.JobNo]; exists {
		return jobs.Job{}, ErrConflict
	}
	now := s.now()
	s.nextJobID++
	job := jobs.Job{
		ID:          s.nextJobID,
		JobNo:       input.JobNo,
		Title:       input.Title,
		Status:      input.Status,
		InHandsDate: input.InHandsDate,
		Owner:       input.Owner,
		Priority:    input.Priority,
		EstSONo:     input.EstSONo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if job.Status == "" {
		job.Status = jobs.StatusIntake
	}
	s.jobs[job.ID] = job
	s.jobsByNumber[job.JobNo] = job.ID
	return job, nil
}

func (s *MemoryStore) PatchJob(_ context.Context, id int64, patch jobs.Patch) (jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return jobs.Job{}, ErrNotFound
	}
	if patch.Empty() {
		return job, nil
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.SetDate {
		job.InHandsDate = patch.InHandsDate
	}
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryStore) UpsertJobByNumber(_ context.Context, jobNo, title string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(jobNo, title)
}

func (s *MemoryStore) upsertLocked(jobNo, title string) (int64, bool, error) {
	if id, ok := s.jobsByNumber[jobNo]; ok {
		job := s.jobs[id]
		if job.Title == jobs.UntitledTitle && title != jobs.UntitledTitle {
			job.Title = title
			s.jobs[id] = job
		}
		return id, false, nil
	}
	now := s.now()
	s.nextJobID++
	job := jobs.Job{
		ID:        s.nextJobID,
		JobNo:     jobNo,
		Title:     title,
		Status:    jobs.StatusIntake,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[job.ID] = job
	s.jobsByNumber[jobNo] = job.ID
	return job.ID, true, nil
}

func (s *MemoryStore) InsertActivity(_ context.Context, input jobs.NewActivity) (jobs.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertActivityLocked(input)
}

func (s *MemoryStore) insertActivityLocked(input jobs.NewActivity) (jobs.Activity, error) {
	if _, ok := s.jobs[input.JobID]; !ok {
		return jobs.Activity{}, ErrNotFound
	}
	source := input.Source
	if source == "" {
		source = jobs.DefaultActivitySource
	}
	s.nextActivityID++
	activity := jobs.Activity{
		ID:        s.nextActivityID,
		JobID:     input.JobID,
		Source:    source,
		Snippet:   input.Snippet,
		GmailLink: input.GmailLink,
		CreatedAt: s.now(),
	}
	s.activities = append(s.activities, activity)
	return activity, nil
}

func (s *MemoryStore) Ingest(_ context.Context, ingestion jobs.Ingestion) (IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID, created, err := s.upsertLocked(ingestion.JobNo, ingestion.Title)
	if err != nil {
		return IngestResult{}, err
	}
	activity, err := s.insertActivityLocked(jobs.NewActivity{
		JobID:     jobID,
		Source:    ingestion.Source,
		Snippet:   ingestion.Snippet,
		GmailLink: ingestion.GmailLink,
	})
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{JobID: jobID, JobCreated: created, Activity: activity}, nil
}

func (s *MemoryStore) ListActivities(_ context.Context, jobID int64) ([]jobs.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := []jobs.Activity{}
	for i := len(s.activities) - 1; i >= 0; i-- {
		if s.activities[i].JobID == jobID {
			items = append(items, s.activities[i])
		}
	}
	return items, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.userByEmailLocked(email)
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) userByEmailLocked(email string) (User, bool) {
	email = normalizeEmail(email)
	for _, user := range s.users {
		if user.Email == email {
			return user, true
		}
	}
	return User{}, false
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.userByEmailLocked(user.Email); exists {
		return User{}, ErrConflict
	}
	return s.insertUserLocked(user), nil
}

func (s *MemoryStore) insertUserLocked(user User) User {
	now := s.now()
	user.ID = uuid.NewString()
	user.Email = normalizeEmail(user.Email)
	user.DisplayName = strings.TrimSpace(user.DisplayName)
	if user.Role == "" {
		user.Role = DefaultRole
	}
	user.VerificationToken = ""
	user.VerificationExpiresAt = nil
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = user
	return user
}

func (s *MemoryStore) EnsureUser(_ context.Context, email, role string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.userByEmailLocked(email); ok {
		return user, nil
	}
	return s.insertUserLocked(User{Email: email, Role: role}), nil
}

func (s *MemoryStore) updateUserLocked(userID string, apply func(*User)) (User, error) {
	user, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	apply(&user)
	user.UpdatedAt = s.now()
	s.users[userID] = user
	return user, nil
}

func (s *MemoryStore) UpdateDisplayName(_ context.Context, userID, displayName string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateUserLocked(userID, func(u *User) { u.DisplayName = strings.TrimSpace(displayName) })
}

func (s *MemoryStore) SetUserRole(_ context.Context, userID, role string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateUserLocked(userID, func(u *User) { u.Role = role })
}

func (s *MemoryStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.updateUserLocked(userID, func(u *User) {
		u.VerificationToken = token
		u.VerificationExpiresAt = &expiresAt
	})
	return err
}

func (s *MemoryStore) VerifyUserEmail(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, user := range s.users {
		if token == "" || user.VerificationToken != token {
			continue
		}
		if user.VerificationExpiresAt == nil || !user.VerificationExpiresAt.After(now) {
			return ErrNotFound
		}
		user.IsEmailVerified = true
		user.VerificationToken = ""
		user.VerificationExpiresAt = nil
		user.UpdatedAt = now
		s.users[id] = user
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.updateUserLocked(userID, func(u *User) { u.PasswordHash = passwordHash })
	return err
}

func (s *MemoryStore) CreatePasswordReset(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return ErrNotFound
	}
	s.resets[token] = memoryReset{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset, ok := s.resets[token]
	if !ok || reset.used || !reset.expiresAt.After(s.now()) {
		return "", ErrNotFound
	}
	return reset.userID, nil
}

func (s *MemoryStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reset, ok := s.resets[token]; ok {
		reset.used = true
		s.resets[token] = reset
	}
	return nil
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return ErrNotFound
	}
	s.refresh[tokenHash] = memorySession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.refresh[tokenHash]; ok {
		session.revoked = true
		s.refresh[tokenHash] = session
	}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.refresh[tokenHash]
	if !ok || session.revoked || !session.expiresAt.After(s.now()) {
		return User{}, ErrNotFound
	}
	user, ok := s.users[session.userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokedAccess[jti] = exp
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, revoked := s.revokedAccess[jti]
	return revoked, nil
}
