package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestProgressDisplayPlain(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplay(&buf, "fusion")
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	p.StageStarted("questions")
	clock = clock.Add(3 * time.Second)
	p.StageFinished("questions", "3 questions")
	p.StageStarted("custom")
	p.StageFinished("custom", "")
	p.Finish()

	want := strings.Join([]string{
		"[RUNNING] Planning research questions",
		"[DONE 3s] Planning research questions: 3 questions",
		"[RUNNING] custom",
		"[DONE 0s] custom",
	}, "\n") + "\n"
	if got := buf.String(); got != want {
		t.Errorf("output mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1400 * time.Millisecond, "1s"},
		{75 * time.Second, "1m15s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h2m3s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestStatusDetail(t *testing.T) {
	st := &StageState{Status: StatusCompleted, Detail: "2 sources", Elapsed: 2 * time.Second}
	if got := statusDetail(st); !strings.Contains(got, "2 sources, 2s") {
		t.Errorf("statusDetail = %q", got)
	}
	if got := statusDetail(&StageState{}); !strings.Contains(got, "pending") {
		t.Errorf("statusDetail = %q", got)
	}
}
