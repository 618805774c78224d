// SPDX-License-Identifier: MIT

package transfer

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a transfer job.
type Status string

const (
	// StatusIdle is the state of a job that has not been accepted yet.
	StatusIdle Status = "idle"
	// StatusDownloading covers playlist resolution and segment fetching.
	StatusDownloading Status = "downloading"
	// StatusMerging means all segments arrived and are being concatenated.
	StatusMerging Status = "merging"
	// StatusComplete means the output was handed to the sink.
	StatusComplete Status = "complete"
	// StatusError carries a failure message.
	StatusError Status = "error"
	// StatusCancelled is never persisted.
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string { return string(s) }

// IsValid reports whether s is one of the defined statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusDownloading, StatusMerging, StatusComplete, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s ends the job instance.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a job in s is still doing work.
func (s Status) IsActive() bool {
	return s == StatusDownloading || s == StatusMerging
}

// CanTransitionTo checks the lifecycle graph:
//   - Idle → Downloading
//   - Downloading → Downloading (progress), Merging, Error, Cancelled
//   - Merging → Complete, Error, Cancelled
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusIdle:
		return target == StatusDownloading
	case StatusDownloading:
		return target == StatusDownloading || target == StatusMerging || target == StatusError || target == StatusCancelled
	case StatusMerging:
		return target == StatusComplete || target == StatusError || target == StatusCancelled
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON rejects unknown statuses.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// ParseStatus parses a string into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid transfer status: %q (valid: idle, downloading, merging, complete, error, cancelled)", s)
	}
	return status, nil
}

// Event triggers a transition.
type Event string

const (
	EventStart    Event = "start"
	EventProgress Event = "progress"
	EventMerge    Event = "merge"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
	EventCancel   Event = "cancel"
)
