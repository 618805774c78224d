// SPDX-License-Identifier: MIT

package transfer

import (
	"encoding/json"
	"testing"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusDownloading, true},
		{StatusIdle, StatusMerging, false},
		{StatusIdle, StatusCancelled, false},
		{StatusDownloading, StatusDownloading, true},
		{StatusDownloading, StatusMerging, true},
		{StatusDownloading, StatusComplete, false},
		{StatusDownloading, StatusError, true},
		{StatusDownloading, StatusCancelled, true},
		{StatusMerging, StatusComplete, true},
		{StatusMerging, StatusError, true},
		{StatusMerging, StatusCancelled, true},
		{StatusComplete, StatusDownloading, false},
		{StatusError, StatusDownloading, false},
		{StatusCancelled, StatusComplete, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusComplete, StatusError, StatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusIdle, StatusDownloading, StatusMerging} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStatus_JSON(t *testing.T) {
	raw, err := json.Marshal(StatusMerging)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"merging"` {
		t.Fatalf("got %s", raw)
	}

	var s Status
	if err := json.Unmarshal([]byte(`"complete"`), &s); err != nil || s != StatusComplete {
		t.Fatalf("unmarshal: %v %q", err, s)
	}
	if err := json.Unmarshal([]byte(`"failed"`), &s); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
