// Package dashboard derives the kanban board and calendar from a job list
// and keeps the client-side board state for a single operator.
package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"jobtrack/api/internal/jobs"
)

type Column struct {
	Status jobs.Status `json:"status"`
	Label  string      `json:"label"`
	Jobs   []jobs.Job  `json:"jobs"`
}

type Board struct {
	Columns []Column `json:"columns"`
}

// Bucket places every job in exactly one column, in pipeline order. A job
// with an unknown status lands in the intake column.
func Bucket(list []jobs.Job) Board {
	statuses := jobs.Statuses()
	board := Board{Columns: make([]Column, len(statuses))}
	index := make(map[jobs.Status]int, len(statuses))
	for i, status := range statuses {
		board.Columns[i] = Column{Status: status, Label: status.Label(), Jobs: []jobs.Job{}}
		index[status] = i
	}
	for _, job := range list {
		i, ok := index[job.Status]
		if !ok {
			i = index[jobs.StatusIntake]
		}
		board.Columns[i].Jobs = append(board.Columns[i].Jobs, job)
	}
	return board
}

// Column returns the column for status, or false when none exists.
func (b Board) Column(status jobs.Status) (Column, bool) {
	for _, column := range b.Columns {
		if column.Status == status {
			return column, true
		}
	}
	return Column{}, false
}

func (b Board) Len() int {
	n := 0
	for _, column := range b.Columns {
		n += len(column.Jobs)
	}
	return n
}

type Scope string

const (
	ScopeMine Scope = "mine"
	ScopeAll  Scope = "all"
)

// ParseScope defaults to ScopeAll for a blank value.
func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeMine:
		return ScopeMine, nil
	default:
		return "", fmt.Errorf("unknown scope %q", raw)
	}
}

// FilterOwned keeps the jobs whose owner matches identity, ignoring case.
func FilterOwned(list []jobs.Job, identity string) []jobs.Job {
	out := make([]jobs.Job, 0, len(list))
	for _, job := range list {
		if job.OwnedBy(identity) {
			out = append(out, job)
		}
	}
	return out
}

// Scoped applies scope to list for identity.
func Scoped(list []jobs.Job, scope Scope, identity string) []jobs.Job {
	if scope == ScopeMine {
		return FilterOwned(list, identity)
	}
	return list
}

// Month is a calendar month, written YYYY-MM.
type Month struct {
	Year  int
	Month time.Month
}

func ParseMonth(raw string) (Month, error) {
	parsed, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q, expected YYYY-MM", raw)
	}
	return Month{Year: parsed.Year(), Month: parsed.Month()}, nil
}

func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) Contains(d jobs.Date) bool {
	return d.Year == m.Year && d.Month == m.Month
}

func (m Month) Prev() Month {
	t := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return MonthOf(t)
}

func (m Month) Next() Month {
	t := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return MonthOf(t)
}

type Day struct {
	Date jobs.Date  `json:"date"`
	Jobs []jobs.Job `json:"jobs"`
}

type CalendarMonth struct {
	Month       string     `json:"month"`
	Days        []Day      `json:"days"`
	Unscheduled []jobs.Job `json:"unscheduled"`
}

// Calendar groups the jobs due in month by day, earliest first. Jobs
// without an in-hands date are listed as unscheduled; jobs due in other
// months are left out.
func Calendar(list []jobs.Job, month Month) CalendarMonth {
	cal := CalendarMonth{Month: month.String(), Days: []Day{}, Unscheduled: []jobs.Job{}}
	byDay := map[jobs.Date][]jobs.Job{}
	for _, job := range list {
		if job.InHandsDate == nil {
			cal.Unscheduled = append(cal.Unscheduled, job)
			continue
		}
		if month.Contains(*job.InHandsDate) {
			byDay[*job.InHandsDate] = append(byDay[*job.InHandsDate], job)
		}
	}
	for date, dayJobs := range byDay {
		cal.Days = append(cal.Days, Day{Date: date, Jobs: dayJobs})
	}
	sort.Slice(cal.Days, func(i, j int) bool { return cal.Days[i].Date.Before(cal.Days[j].Date) })
	return cal
}
