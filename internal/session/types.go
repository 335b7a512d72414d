// Package session provides SQLite-backed persistence for research sessions,
// their sources and their findings.
package session

import (
	"errors"
	"time"
)

// Depth controls how many research questions a session plans.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// Valid reports whether d is one of the known depths.
func (d Depth) Valid() bool {
	switch d {
	case DepthQuick, DepthStandard, DepthDeep:
		return true
	}
	return false
}

// Status values for a session.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

var (
	// ErrSessionNotFound is returned when no session has the requested ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotInProgress is returned when completing a session twice.
	ErrSessionNotInProgress = errors.New("session is not in progress")
)

// Session is one research run.
type Session struct {
	ID          int64
	Topic       string
	Depth       Depth
	Status      string // in_progress, completed
	CreatedAt   time.Time
	CompletedAt *time.Time
	Summary     string
	ReportPath  string
}

// Source is a web page whose content was extracted during a session.
type Source struct {
	ID             int64
	SessionID      int64
	Title          string
	URL            string
	Snippet        string
	Query          string // search query that surfaced the page
	Content        string
	RelevanceScore float64
	RetrievedAt    time.Time
}

// Finding is one synthesized claim with the sources that support it.
type Finding struct {
	ID         int64
	SessionID  int64
	Text       string
	SourceRefs []string // nil when the model gave no SOURCES line
	Confidence string
	CreatedAt  time.Time
}
