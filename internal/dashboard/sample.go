package dashboard

import (
	"time"

	"jobtrack/api/internal/jobs"
)

// SampleJobs is shown when the board has never loaded. IDs are negative so
// they cannot collide with stored jobs.
func SampleJobs(now time.Time) []jobs.Job {
	day := func(offset int) *jobs.Date {
		d := jobs.DateOf(now.AddDate(0, 0, offset))
		return &d
	}
	owner := func(v string) *string { return &v }
	stamp := now.UTC().Truncate(time.Second)
	return []jobs.Job{
		{ID: -1, JobNo: "SAMPLE-1001", Title: "Team hoodies", Status: jobs.StatusIntake, InHandsDate: day(14), Owner: owner("sample@jobtrack.local"), CreatedAt: stamp, UpdatedAt: stamp},
		{ID: -2, JobNo: "SAMPLE-1002", Title: "Trade show banner", Status: jobs.StatusDesign, InHandsDate: day(7), CreatedAt: stamp, UpdatedAt: stamp},
		{ID: -3, JobNo: "SAMPLE-1003", Title: "Menu reprint", Status: jobs.StatusProof, InHandsDate: day(3), Owner: owner("sample@jobtrack.local"), CreatedAt: stamp, UpdatedAt: stamp},
		{ID: -4, JobNo: "SAMPLE-1004", Title: "Vehicle decals", Status: jobs.StatusProduction, CreatedAt: stamp, UpdatedAt: stamp},
		{ID: -5, JobNo: "SAMPLE-1005", Title: "Event lanyards", Status: jobs.StatusComplete, InHandsDate: day(-2), CreatedAt: stamp, UpdatedAt: stamp},
	}
}
