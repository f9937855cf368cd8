package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jobtrack/api/internal/jobs"
)

// Source is where a View loads jobs from and sends status changes to.
type Source interface {
	ListJobs(ctx context.Context, status *jobs.Status) ([]jobs.Job, error)
	SetStatus(ctx context.Context, id int64, status jobs.Status) (jobs.Job, error)
}

// View holds one operator's board. Moves apply locally first; a failed sync
// leaves the local change in place and raises a warning.
type View struct {
	source   Source
	identity string
	now      func() time.Time

	mu      sync.Mutex
	jobs    []jobs.Job
	loaded  bool
	sample  bool
	scope   Scope
	warning string
}

func NewView(source Source, identity string) *View {
	return &View{source: source, identity: identity, now: time.Now, scope: ScopeAll}
}

// Refresh reloads the job list. On failure the previous snapshot, or the
// sample data when nothing loaded yet, stays on screen with a warning.
func (v *View) Refresh(ctx context.Context) error {
	list, err := v.source.ListJobs(ctx, nil)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		if !v.loaded {
			v.jobs = SampleJobs(v.now())
			v.sample = true
			v.warning = fmt.Sprintf("Could not load jobs (%v). Showing sample data.", err)
		} else {
			v.warning = fmt.Sprintf("Could not refresh jobs (%v). Showing the last loaded board.", err)
		}
		return err
	}
	v.jobs = append([]jobs.Job(nil), list...)
	v.loaded = true
	v.sample = false
	v.warning = ""
	return nil
}

// Move sets the job's status locally, then syncs it to the source.
func (v *View) Move(ctx context.Context, jobID int64, status jobs.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}

	v.mu.Lock()
	found := false
	for i := range v.jobs {
		if v.jobs[i].ID == jobID {
			v.jobs[i].Status = status
			found = true
			break
		}
	}
	sample := v.sample
	v.mu.Unlock()

	if !found {
		return fmt.Errorf("job %d is not on the board", jobID)
	}
	if sample {
		v.setWarning("Sample data is shown; the move was not saved.")
		return nil
	}

	updated, err := v.source.SetStatus(ctx, jobID, status)
	if err != nil {
		v.setWarning(fmt.Sprintf("Could not save the move of job %d (%v). The board may be out of date.", jobID, err))
		return err
	}

	v.mu.Lock()
	for i := range v.jobs {
		if v.jobs[i].ID == jobID {
			v.jobs[i] = updated
			break
		}
	}
	v.mu.Unlock()
	return nil
}

func (v *View) setWarning(message string) {
	v.mu.Lock()
	v.warning = message
	v.mu.Unlock()
}

// SetScope switches between the operator's jobs and all jobs without
// refetching.
func (v *View) SetScope(scope Scope) {
	v.mu.Lock()
	v.scope = scope
	v.mu.Unlock()
}

func (v *View) visible() []jobs.Job {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Scoped(append([]jobs.Job(nil), v.jobs...), v.scope, v.identity)
}

func (v *View) Board() Board {
	return Bucket(v.visible())
}

func (v *View) Calendar(month Month) CalendarMonth {
	return Calendar(v.visible(), month)
}

// Warning is the banner text, empty when the board is current.
func (v *View) Warning() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.warning
}

// Sample reports whether the board shows built-in sample data.
func (v *View) Sample() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sample
}
