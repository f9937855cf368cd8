package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"jobtrack/api/internal/jobs"
)

const jobColumns = `id, job_no, title, status, in_hands_date, owner, priority, est_so_no, created_at, updated_at`

const activityColumns = `id, job_id, source, snippet, gmail_link, created_at`

func scanJob(row rowScanner) (jobs.Job, error) {
	var (
		job                      jobs.Job
		status                   string
		inHands                  sql.NullTime
		owner, priority, estSONo sql.NullString
	)
	if err := row.Scan(&job.ID, &job.JobNo, &job.Title, &status, &inHands, &owner, &priority, &estSONo, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return jobs.Job{}, err
	}
	job.Status = jobs.Status(status)
	if inHands.Valid {
		date := jobs.DateOf(inHands.Time)
		job.InHandsDate = &date
	}
	job.Owner = stringPtr(owner)
	job.Priority = stringPtr(priority)
	job.EstSONo = stringPtr(estSONo)
	return job, nil
}

func scanActivity(row rowScanner) (jobs.Activity, error) {
	var (
		activity           jobs.Activity
		snippet, gmailLink sql.NullString
	)
	if err := row.Scan(&activity.ID, &activity.JobID, &activity.Source, &snippet, &gmailLink, &activity.CreatedAt); err != nil {
		return jobs.Activity{}, err
	}
	activity.Snippet = stringPtr(snippet)
	activity.GmailLink = stringPtr(gmailLink)
	return activity, nil
}

func dateParam(date *jobs.Date) any {
	if date == nil {
		return nil
	}
	return date.String()
}

func (s *PostgresStore) ListJobs(ctx context.Context, status *jobs.Status) ([]jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, jobs.ListLimit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	items := []jobs.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		items = append(items, job)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (jobs.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id))
	if err != nil {
		return jobs.Job{}, fmt.Errorf("get job %d: %w", id, translate(err))
	}
	return job, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, input jobs.NewJob) (jobs.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO jobs (job_no, title, status, in_hands_date, owner, priority, est_so_no)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+jobColumns,
		input.JobNo, input.Title, string(input.Status), dateParam(input.InHandsDate),
		nullableString(input.Owner), nullableString(input.Priority), nullableString(input.EstSONo),
	)
	job, err := scanJob(row)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("create job: %w", translate(err))
	}
	return job, nil
}

// PatchJob updates only the supplied columns and bumps updated_at.
func (s *PostgresStore) PatchJob(ctx context.Context, id int64, patch jobs.Patch) (jobs.Job, error) {
	sets := []string{}
	args := []any{}
	if patch.Status != nil {
		args = append(args, string(*patch.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if patch.SetDate {
		args = append(args, dateParam(patch.InHandsDate))
		sets = append(sets, fmt.Sprintf("in_hands_date = $%d", len(args)))
	}
	if len(sets) == 0 {
		return s.GetJob(ctx, id)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE id = $%d RETURNING %s`, strings.Join(sets, ", "), len(args), jobColumns)
	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return jobs.Job{}, fmt.Errorf("patch job %d: %w", id, translate(err))
	}
	return job, nil
}

// UpsertJobByNumber inserts the job on first sight. An existing title is
// kept unless it is still the placeholder and a real title arrives.
func (s *PostgresStore) UpsertJobByNumber(ctx context.Context, jobNo, title string) (int64, bool, error) {
	return upsertJobByNumber(ctx, s.db, jobNo, title)
}

func upsertJobByNumber(ctx context.Context, q queryer, jobNo, title string) (int64, bool, error) {
	var (
		id      int64
		created bool
	)
	err := q.QueryRowContext(ctx, `
		INSERT INTO jobs (job_no, title, status)
		VALUES ($1, $2, 'intake')
		ON CONFLICT (job_no) DO UPDATE SET title = CASE
			WHEN jobs.title = $3 AND EXCLUDED.title <> $3 THEN EXCLUDED.title
			ELSE jobs.title
		END
		RETURNING id, (xmax = 0) AS inserted
	`, jobNo, title, jobs.UntitledTitle).Scan(&id, &created)
	if err != nil {
		return 0, false, fmt.Errorf("upsert job %s: %w", jobNo, translate(err))
	}
	return id, created, nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, input jobs.NewActivity) (jobs.Activity, error) {
	return insertActivity(ctx, s.db, input)
}

func insertActivity(ctx context.Context, q queryer, input jobs.NewActivity) (jobs.Activity, error) {
	source := input.Source
	if source == "" {
		source = jobs.DefaultActivitySource
	}
	activity, err := scanActivity(q.QueryRowContext(ctx, `
		INSERT INTO activities (job_id, source, snippet, gmail_link)
		VALUES ($1, $2, $3, $4)
		RETURNING `+activityColumns,
		input.JobID, source, nullableString(input.Snippet), nullableString(input.GmailLink),
	))
	if err != nil {
		return jobs.Activity{}, fmt.Errorf("insert activity for job %d: %w", input.JobID, translate(err))
	}
	return activity, nil
}

// Ingest upserts the job and appends the activity in one transaction.
func (s *PostgresStore) Ingest(ctx context.Context, ingestion jobs.Ingestion) (IngestResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IngestResult{}, fmt.Errorf("begin ingest tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	jobID, created, err := upsertJobByNumber(ctx, tx, ingestion.JobNo, ingestion.Title)
	if err != nil {
		return IngestResult{}, err
	}
	activity, err := insertActivity(ctx, tx, jobs.NewActivity{
		JobID:     jobID,
		Source:    ingestion.Source,
		Snippet:   ingestion.Snippet,
		GmailLink: ingestion.GmailLink,
	})
	if err != nil {
		return IngestResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return IngestResult{}, fmt.Errorf("commit ingest tx: %w", err)
	}
	return IngestResult{JobID: jobID, JobCreated: created, Activity: activity}, nil
}

func (s *PostgresStore) ListActivities(ctx context.Context, jobID int64) ([]jobs.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE job_id=$1 ORDER BY created_at DESC, id DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := []jobs.Activity{}
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, activity)
	}
	return items, rows.Err()
}
