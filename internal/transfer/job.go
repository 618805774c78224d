package transfer

import (
	"math"
	"time"
)

// Job is the persisted view of one reconstruction task.
type Job struct {
	ID            string     `json:"id"`
	SourceLocator string     `json:"url"`
	OutputName    string     `json:"filename"`
	ContextID     int64      `json:"contextId"`
	Status        Status     `json:"status"`
	Downloaded    int        `json:"downloaded"`
	Total         int        `json:"total"`
	Error         string     `json:"error,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
}

// Progress returns completion in percent, 0 while the total is unknown.
func (j Job) Progress() int {
	if j.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(j.Downloaded) / float64(j.Total) * 100))
}

// Duration is the elapsed time since start, up to EndedAt when set.
func (j Job) Duration(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if j.EndedAt != nil {
		end = *j.EndedAt
	}
	return end.Sub(*j.StartedAt)
}

// IsActive reports whether the job is downloading or merging.
func (j Job) IsActive() bool { return j.Status.IsActive() }
