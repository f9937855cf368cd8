// Package jobs holds the job and activity domain: statuses, title
// normalization and input validation shared by the API, the store and the
// dashboard.
package jobs

import "strings"

// Status is a stage in the fixed job pipeline.
type Status string

const (
	StatusIntake     Status = "intake"
	StatusDesign     Status = "design"
	StatusProof      Status = "proof"
	StatusProduction Status = "production"
	StatusComplete   Status = "complete"
)

var orderedStatuses = []Status{
	StatusIntake,
	StatusDesign,
	StatusProof,
	StatusProduction,
	StatusComplete,
}

var statusLabels = map[Status]string{
	StatusIntake:     "Intake",
	StatusDesign:     "Design",
	StatusProof:      "Proof",
	StatusProduction: "Production",
	StatusComplete:   "Complete",
}

// Statuses returns the pipeline stages in board order.
func Statuses() []Status {
	out := make([]Status, len(orderedStatuses))
	copy(out, orderedStatuses)
	return out
}

// ParseStatus accepts a status key in any letter case.
func ParseStatus(raw string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := statusLabels[candidate]; ok {
		return candidate, true
	}
	return "", false
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Rank is the zero-based position of s on the board, or -1.
func (s Status) Rank() int {
	for i, candidate := range orderedStatuses {
		if candidate == s {
			return i
		}
	}
	return -1
}
