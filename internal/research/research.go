// Package research runs the research pipeline: plan questions, collect
// sources, extract findings, synthesize a report and record the session.
package research

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/berth-dev/scout/internal/config"
	"github.com/berth-dev/scout/internal/llm"
	eventlog "github.com/berth-dev/scout/internal/log"
	"github.com/berth-dev/scout/internal/search"
	"github.com/berth-dev/scout/internal/session"
)

var (
	// ErrEmptyTopic is returned when the topic is blank.
	ErrEmptyTopic = errors.New("topic must not be empty")
	// ErrInvalidDepth is returned for a depth other than quick, standard or deep.
	ErrInvalidDepth = errors.New("invalid research depth")
	// ErrInvalidMaxSources is returned when the source cap is below one.
	ErrInvalidMaxSources = errors.New("max sources must be at least 1")
	// ErrStoreUnavailable is returned when the session cannot be created.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// ReportUnavailable is the report body used when synthesis fails.
const ReportUnavailable = "Report generation failed. The findings and sources collected for this session are stored in the research database."

// Stage names passed to an Observer.
const (
	StageQuestions = "questions"
	StageSources   = "sources"
	StageFindings  = "findings"
	StageReport    = "report"
)

// Searcher finds web pages and extracts their text. Both methods return
// empty values on failure.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []search.Result
	ExtractContent(ctx context.Context, url string) string
}

// SessionStore persists sessions, sources and findings.
type SessionStore interface {
	CreateSession(ctx context.Context, topic string, depth session.Depth) (int64, error)
	AddSource(ctx context.Context, sessionID int64, src session.Source) (int64, error)
	AddFinding(ctx context.Context, sessionID int64, f session.Finding) (int64, error)
	CompleteSession(ctx context.Context, id int64, summary, reportPath string) error
}

// Observer is notified as the pipeline moves through its stages.
type Observer interface {
	StageStarted(stage string)
	StageFinished(stage, detail string)
}

// Report is the synthesized report body and its first paragraph.
type Report struct {
	Content string
	Summary string
}

// Result describes a finished run.
type Result struct {
	SessionID  int64
	Topic      string
	Depth      session.Depth
	Questions  []string
	Report     Report
	ReportPath string
	Sources    []session.Source
	Findings   []session.Finding
	Completed  bool // session moved to completed
}

// Pipeline runs research sessions against a model, a searcher and a store.
type Pipeline struct {
	cfg       *config.Config
	gen       llm.Generator
	searcher  Searcher
	store     SessionStore
	logger    *zap.Logger
	events    *eventlog.Logger
	observer  Observer
	now       func() time.Time
	reportDir string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithEventLog records the run timeline to events.
func WithEventLog(events *eventlog.Logger) Option {
	return func(p *Pipeline) { p.events = events }
}

// WithObserver reports stage progress to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithReportDir overrides cfg.Storage.ReportDir.
func WithReportDir(dir string) Option {
	return func(p *Pipeline) { p.reportDir = dir }
}

// New creates a Pipeline.
func New(cfg *config.Config, gen llm.Generator, searcher Searcher, store SessionStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		gen:       gen,
		searcher:  searcher,
		store:     store,
		logger:    zap.NewNop(),
		now:       time.Now,
		reportDir: cfg.Storage.ReportDir,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) stageStarted(stage string) {
	p.logger.Debug("stage started", zap.String("stage", stage))
	if p.observer != nil {
		p.observer.StageStarted(stage)
	}
}

func (p *Pipeline) stageFinished(stage, detail string) {
	p.logger.Debug("stage finished", zap.String("stage", stage), zap.String("detail", detail))
	if p.observer != nil {
		p.observer.StageFinished(stage, detail)
	}
}

func (p *Pipeline) record(ev eventlog.LogEvent) {
	if p.events == nil {
		return
	}
	ev.Time = p.now().UTC()
	if err := p.events.Append(ev); err != nil {
		p.logger.Debug("event log write failed", zap.String("event", ev.Event), zap.Error(err))
	}
}

func (p *Pipeline) fallback(sessionID int64, step string, err error) {
	p.logger.Warn("step fell back", zap.Int64("session_id", sessionID), zap.String("step", step), zap.Error(err))
	ev := eventlog.LogEvent{Event: eventlog.EventStepFallback, SessionID: sessionID, Step: step}
	if err != nil {
		ev.Error = err.Error()
	}
	p.record(ev)
}
