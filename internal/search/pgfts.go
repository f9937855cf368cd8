package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"jobtrack/api/internal/jobs"
)

// PgFTS searches the generated tsvector columns on jobs and activities.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

func (p *PgFTS) Name() string { return "postgres" }

// Healthy is always true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{q.Text}
	statusFilter := ""
	if q.Status != "" {
		args = append(args, string(q.Status))
		statusFilter = fmt.Sprintf(" AND j.status = $%d", len(args))
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultJob {
		subQueries = append(subQueries, `
			SELECT 'job'::text AS type, j.id, j.id AS job_id, j.job_no, j.title,
				''::text AS snippet, j.status,
				ts_rank(j.fts, plainto_tsquery('simple', $1)) AS rank
			FROM jobs j
			WHERE j.fts @@ plainto_tsquery('simple', $1)`+statusFilter)
	}
	if q.FilterType == "" || q.FilterType == ResultActivity {
		subQueries = append(subQueries, `
			SELECT 'activity'::text AS type, a.id, j.id AS job_id, j.job_no, j.title,
				ts_headline('english', coalesce(a.snippet, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
				j.status,
				ts_rank(a.fts, plainto_tsquery('english', $1)) AS rank
			FROM activities a
			JOIN jobs j ON j.id = a.job_id
			WHERE a.fts @@ plainto_tsquery('english', $1)`+statusFilter)
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) sub", union), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, job_id, job_no, title, snippet, status
		FROM (%s) sub
		ORDER BY rank DESC, id DESC
		LIMIT %d OFFSET %d`, union, q.limit(), offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r           Result
			typ, status string
		)
		if err := rows.Scan(&typ, &r.ID, &r.JobID, &r.JobNo, &r.Title, &r.Snippet, &status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		r.Status = jobs.Status(status)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every job and activity for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]JobRecord, []ActivityRecord, error) {
	jobRows, err := p.db.QueryContext(ctx, `
		SELECT id, job_no, title, status, coalesce(owner, ''), coalesce(est_so_no, '')
		FROM jobs
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load jobs: %w", err)
	}
	defer jobRows.Close()

	jobRecords := make([]JobRecord, 0)
	for jobRows.Next() {
		var r JobRecord
		if err := jobRows.Scan(&r.ID, &r.JobNo, &r.Title, &r.Status, &r.Owner, &r.EstSONo); err != nil {
			return nil, nil, fmt.Errorf("scan job: %w", err)
		}
		jobRecords = append(jobRecords, r)
	}
	if err := jobRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate jobs: %w", err)
	}

	activityRows, err := p.db.QueryContext(ctx, `
		SELECT a.id, a.job_id, j.job_no, a.source, coalesce(a.snippet, '')
		FROM activities a
		JOIN jobs j ON j.id = a.job_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load activities: %w", err)
	}
	defer activityRows.Close()

	activityRecords := make([]ActivityRecord, 0)
	for activityRows.Next() {
		var r ActivityRecord
		if err := activityRows.Scan(&r.ID, &r.JobID, &r.JobNo, &r.Source, &r.Snippet); err != nil {
			return nil, nil, fmt.Errorf("scan activity: %w", err)
		}
		activityRecords = append(activityRecords, r)
	}
	if err := activityRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate activities: %w", err)
	}

	return jobRecords, activityRecords, nil
}
