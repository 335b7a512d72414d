package research

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/berth-dev/scout/internal/config"
	eventlog "github.com/berth-dev/scout/internal/log"
	"github.com/berth-dev/scout/internal/search"
	"github.com/berth-dev/scout/internal/session"
	"github.com/berth-dev/scout/internal/testutil"
)

func TestMain(m *testing.M) {
	// genai imports opencensus, whose stats worker starts at package init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const (
	stubQuestions = "1. What is a qubit?\n2. How do quantum computers scale?\n3. Which problems do they speed up?"
	stubFindings  = "FINDING: Qubits hold superpositions of states.\nSOURCES: 1\nCONFIDENCE: High\n" +
		"FINDING: Error correction dominates scaling costs.\nSOURCES: 1, 2\nCONFIDENCE: Medium"
	stubReport = "Quantum computing trades classical bits for qubits.\n\n## Thematic Analysis\nScaling is hard.\n\n## Key Takeaways\n- Qubits\n\n## Conclusion\nEarly days."
)

func twoResults() []search.Result {
	return []search.Result{
		{Title: "Qubits 101", URL: "https://a.example/qubits", Snippet: "intro"},
		{Title: "Scaling quantum", URL: "https://b.example/scale", Snippet: "scaling"},
	}
}

type fixture struct {
	cfg      *config.Config
	store    *session.Store
	gen      *testutil.ScriptedGenerator
	searcher *testutil.FakeSearcher
	events   *eventlog.Logger
}

func newFixture(t *testing.T, replies ...testutil.Reply) *fixture {
	t.Helper()
	cfg := testutil.TempConfig(t)

	store, err := session.Open(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	events, err := eventlog.NewLogger(cfg.DataDir())
	require.NoError(t, err)

	return &fixture{
		cfg:      cfg,
		store:    store,
		gen:      testutil.NewScriptedGenerator(replies...),
		searcher: &testutil.FakeSearcher{Default: twoResults(), DefaultContent: "Extracted page text about qubits."},
		events:   events,
	}
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithEventLog(f.events)}, opts...)
	return New(f.cfg, f.gen, f.searcher, f.store, opts...)
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)

	res, err := f.pipeline(t).Run(ctx, "quantum computing", session.DepthQuick, 2)
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Len(t, res.Questions, 3)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "quantum computing", res.Sources[0].Query)
	require.Len(t, res.Findings, 2)
	assert.Equal(t, []string{"1", "2"}, res.Findings[1].SourceRefs)
	assert.Equal(t, "Quantum computing trades classical bits for qubits.", res.Report.Summary)

	sess, err := f.store.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Equal(t, res.Report.Summary, sess.Summary)
	assert.Equal(t, res.ReportPath, sess.ReportPath)

	sources, err := f.store.Sources(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Len(t, sources, 2)

	findings, err := f.store.Findings(ctx, res.SessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, findings)

	data, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Research Report: quantum computing")
	assert.Contains(t, string(data), stubReport)

	// Source cap reached on the first query.
	assert.Equal(t, []string{"quantum computing"}, f.searcher.Queries())
}

func TestRunPromptsCarryContext(t *testing.T) {
	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)

	_, err := f.pipeline(t).Run(context.Background(), "quantum computing", session.DepthStandard, 1)
	require.NoError(t, err)

	reqs := f.gen.Requests()
	require.Len(t, reqs, 3)
	assert.Contains(t, reqs[0].Prompt, "exactly 5")
	assert.Contains(t, reqs[1].Prompt, "[1] Qubits 101")
	assert.NotContains(t, reqs[1].Prompt, "Scaling quantum")
	assert.Contains(t, reqs[2].Prompt, "Error correction dominates scaling costs.")
	for _, r := range reqs {
		assert.NotEmpty(t, r.System)
		assert.Equal(t, f.cfg.LLM.MaxTokens, r.MaxTokens)
	}
}

func TestRunQuestionFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		testutil.Reply{Err: errors.New("model offline")},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)

	res, err := f.pipeline(t).Run(ctx, "quantum computing", session.DepthDeep, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"quantum computing"}, res.Questions)
	assert.True(t, res.Completed)
	// The topic is searched once for itself and once as the fallback question.
	assert.Equal(t, []string{"quantum computing", "quantum computing"}, f.searcher.Queries())
	assert.Len(t, res.Sources, 4)

	events, err := f.events.ForSession(res.SessionID)
	require.NoError(t, err)
	assert.Contains(t, eventNames(events), eventlog.EventStepFallback)
}

func TestRunQuestionsWithoutLetters(t *testing.T) {
	f := newFixture(t,
		testutil.Reply{Text: "1.\n2.\n---"},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)

	res, err := f.pipeline(t).Run(context.Background(), "fusion", session.DepthQuick, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"fusion"}, res.Questions)
}

func TestRunQuestionCountCapped(t *testing.T) {
	f := newFixture(t,
		testutil.Reply{Text: "1. A?\n2. B?\n3. C?\n4. D?\n5. E?"},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)

	res, err := f.pipeline(t).Run(context.Background(), "fusion", session.DepthQuick, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A?", "B?", "C?"}, res.Questions)
}

func TestRunModelDownEverywhere(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.pipeline(t).Run(ctx, "quantum computing", session.DepthQuick, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"quantum computing"}, res.Questions)
	assert.Empty(t, res.Findings)
	assert.Equal(t, ReportUnavailable, res.Report.Content)
	assert.Empty(t, res.Report.Summary)
	assert.True(t, res.Completed)

	sess, err := f.store.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, sess.Status)
	assert.Empty(t, sess.Summary)

	data, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), ReportUnavailable)
}

func TestRunNoSources(t *testing.T) {
	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubReport},
	)
	f.searcher = &testutil.FakeSearcher{}

	res, err := f.pipeline(t).Run(context.Background(), "quantum computing", session.DepthQuick, 5)
	require.NoError(t, err)

	assert.Empty(t, res.Sources)
	assert.Empty(t, res.Findings)
	assert.Equal(t, stubReport, res.Report.Content)
	// Topic plus the first three questions.
	assert.Len(t, f.searcher.Queries(), 4)
	// Only questions and report reached the model.
	assert.Len(t, f.gen.Requests(), 2)
}

func TestRunSkipsEmptyContent(t *testing.T) {
	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)
	f.searcher.Content = map[string]string{"https://a.example/qubits": ""}

	res, err := f.pipeline(t).Run(context.Background(), "quantum computing", session.DepthQuick, 2)
	require.NoError(t, err)

	require.Len(t, res.Sources, 2)
	for _, src := range res.Sources {
		assert.Equal(t, "https://b.example/scale", src.URL)
	}
	assert.Equal(t, "quantum computing", res.Sources[0].Query)
	assert.Equal(t, "What is a qubit?", res.Sources[1].Query)
}

func TestRunSourcesNeverExceedCap(t *testing.T) {
	for _, maxSources := range []int{1, 2, 3, 5, 7} {
		f := newFixture(t,
			testutil.Reply{Text: stubQuestions},
			testutil.Reply{Text: stubFindings},
			testutil.Reply{Text: stubReport},
		)
		res, err := f.pipeline(t).Run(context.Background(), "quantum computing", session.DepthQuick, maxSources)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Sources), maxSources)
	}
}

func TestRunInvalidInput(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	_, err := p.Run(ctx, "   ", session.DepthQuick, 2)
	assert.ErrorIs(t, err, ErrEmptyTopic)

	_, err = p.Run(ctx, "fusion", session.Depth("exhaustive"), 2)
	assert.ErrorIs(t, err, ErrInvalidDepth)

	_, err = p.Run(ctx, "fusion", session.DepthQuick, 0)
	assert.ErrorIs(t, err, ErrInvalidMaxSources)

	sessions, err := f.store.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Empty(t, f.gen.Requests())
}

func TestRunStoreUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO sessions").WillReturnError(errors.New("database is locked"))

	store, err := session.New(sqlx.NewDb(db, "sqlite3"))
	require.NoError(t, err)

	cfg := testutil.TempConfig(t)
	gen := testutil.NewScriptedGenerator()
	searcher := &testutil.FakeSearcher{}
	p := New(cfg, gen, searcher, store, WithLogger(zaptest.NewLogger(t)))

	_, err = p.Run(context.Background(), "fusion", session.DepthQuick, 2)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Empty(t, gen.Requests())
	assert.Empty(t, searcher.Queries())
	assert.NoError(t, mock.ExpectationsWereMet())
}

type flakyStore struct {
	*session.Store
	failSources  bool
	failComplete bool
	completions  int
}

func (s *flakyStore) AddSource(ctx context.Context, id int64, src session.Source) (int64, error) {
	if s.failSources {
		return 0, errors.New("disk full")
	}
	return s.Store.AddSource(ctx, id, src)
}

func (s *flakyStore) CompleteSession(ctx context.Context, id int64, summary, reportPath string) error {
	s.completions++
	if s.failComplete {
		return errors.New("disk full")
	}
	return s.Store.CompleteSession(ctx, id, summary, reportPath)
}

func TestRunKeepsSourcesWhenPersistFails(t *testing.T) {
	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)
	store := &flakyStore{Store: f.store, failSources: true}

	res, err := New(f.cfg, f.gen, f.searcher, store, WithLogger(zaptest.NewLogger(t))).
		Run(context.Background(), "quantum computing", session.DepthQuick, 2)
	require.NoError(t, err)

	assert.Len(t, res.Sources, 2)
	assert.Zero(t, res.Sources[0].ID)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, store.completions)
}

func TestRunCompletionFailureReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)
	store := &flakyStore{Store: f.store, failComplete: true}

	res, err := New(f.cfg, f.gen, f.searcher, store).Run(ctx, "quantum computing", session.DepthQuick, 2)
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, 1, store.completions)

	sess, err := f.store.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusInProgress, sess.Status)
}

func TestRunReportWriteFailure(t *testing.T) {
	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)
	blocker := f.cfg.Storage.ReportDir
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0644))

	res, err := f.pipeline(t).Run(context.Background(), "quantum computing", session.DepthQuick, 2)
	require.NoError(t, err)
	assert.Empty(t, res.ReportPath)
	assert.True(t, res.Completed)
}

type cancelOnStage struct {
	stage  string
	cancel context.CancelFunc
}

func (c cancelOnStage) StageStarted(stage string) {}

func (c cancelOnStage) StageFinished(stage, detail string) {
	if stage == c.stage {
		c.cancel()
	}
}

func TestRunCancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)
	p := f.pipeline(t, WithObserver(cancelOnStage{stage: StageQuestions, cancel: cancel}))

	_, err := p.Run(ctx, "quantum computing", session.DepthQuick, 2)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.searcher.Queries())

	sessions, err := f.store.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, session.StatusInProgress, sessions[0].Status)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingObserver) StageStarted(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "start:"+stage)
}

func (r *recordingObserver) StageFinished(stage, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "finish:"+stage)
}

func TestRunObserverAndEvents(t *testing.T) {
	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)
	obs := &recordingObserver{}
	clock := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	res, err := f.pipeline(t, WithObserver(obs), WithClock(func() time.Time { return clock })).
		Run(context.Background(), "quantum computing", session.DepthQuick, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:questions", "finish:questions",
		"start:sources", "finish:sources",
		"start:findings", "finish:findings",
		"start:report", "finish:report",
	}, obs.calls)
	assert.True(t, strings.HasSuffix(res.ReportPath, "20260304_050607_quantum_computing.md"))

	events, err := f.events.ForSession(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		eventlog.EventResearchStarted,
		eventlog.EventQuestionsGenerated,
		eventlog.EventSourceAdded,
		eventlog.EventSourceAdded,
		eventlog.EventFindingsExtracted,
		eventlog.EventReportWritten,
		eventlog.EventResearchCompleted,
	}, eventNames(events))
}

func TestRunWithReportDirOverride(t *testing.T) {
	f := newFixture(t,
		testutil.Reply{Text: stubQuestions},
		testutil.Reply{Text: stubFindings},
		testutil.Reply{Text: stubReport},
	)
	dir := t.TempDir()

	res, err := f.pipeline(t, WithReportDir(dir)).Run(context.Background(), "quantum computing", session.DepthQuick, 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ReportPath, dir))
}

func eventNames(events []eventlog.LogEvent) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Event)
	}
	return names
}
