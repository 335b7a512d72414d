// Package log records the timeline of research runs as JSON lines in
// events.jsonl, next to the session database.
package log

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventResearchStarted    = "research_started"
	EventQuestionsGenerated = "questions_generated"
	EventSourceAdded        = "source_added"
	EventFindingsExtracted  = "findings_extracted"
	EventReportWritten      = "report_written"
	EventResearchCompleted  = "research_completed"
	EventStepFallback       = "step_fallback"
)

// FileName is the event log file inside the data directory.
const FileName = "events.jsonl"

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time       time.Time `json:"time"`
	Event      string    `json:"event"`
	SessionID  int64     `json:"session_id,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	Depth      string    `json:"depth,omitempty"`
	Step       string    `json:"step,omitempty"`
	Query      string    `json:"query,omitempty"`
	URL        string    `json:"url,omitempty"`
	Path       string    `json:"path,omitempty"`
	Count      int       `json:"count,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// Logger appends events to a JSONL file and reads them back.
type Logger struct {
	path string
	mu   sync.Mutex
}

// NewLogger returns a Logger for events.jsonl inside dir, creating dir when
// missing. Existing events are kept.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}
	return &Logger{path: filepath.Join(dir, FileName)}, nil
}

// Path returns the log file location.
func (l *Logger) Path() string {
	return l.path
}

// Append writes event as one line. A zero Time is stamped with the current
// UTC time. Safe for concurrent use.
func (l *Logger) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if err := json.NewEncoder(f).Encode(event); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s event: %w", event.Event, err)
	}
	return f.Close()
}

// ReadAll returns every event in write order. A missing file yields no
// events.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	return l.read(func(LogEvent) bool { return true })
}

// ForSession returns the events recorded for one session, in write order.
func (l *Logger) ForSession(sessionID int64) ([]LogEvent, error) {
	return l.read(func(e LogEvent) bool { return e.SessionID == sessionID })
}

func (l *Logger) read(keep func(LogEvent) bool) ([]LogEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []LogEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	events := []LogEvent{}
	dec := json.NewDecoder(f)
	for n := 1; ; n++ {
		var e LogEvent
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode event %d: %w", n, err)
		}
		if keep(e) {
			events = append(events, e)
		}
	}
}
