package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "research.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndGetSession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.CreateSession(ctx, "quantum computing", DepthQuick)
	require.NoError(t, err)
	assert.Positive(t, id)

	sess, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "quantum computing", sess.Topic)
	assert.Equal(t, DepthQuick, sess.Depth)
	assert.Equal(t, StatusInProgress, sess.Status)
	assert.Nil(t, sess.CompletedAt)
	assert.Empty(t, sess.Summary)
	assert.Empty(t, sess.ReportPath)
	assert.False(t, sess.CreatedAt.IsZero())
}

func TestGetSessionNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetSession(context.Background(), 42)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCompleteSession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.CreateSession(ctx, "fusion", DepthStandard)
	require.NoError(t, err)

	require.NoError(t, store.CompleteSession(ctx, id, "Fusion is close.", "reports/x.md"))

	sess, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Equal(t, "Fusion is close.", sess.Summary)
	assert.Equal(t, "reports/x.md", sess.ReportPath)
	require.NotNil(t, sess.CompletedAt)
	assert.False(t, sess.CompletedAt.Before(sess.CreatedAt))
}

func TestCompleteSessionTwiceIsRejected(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.CreateSession(ctx, "fusion", DepthStandard)
	require.NoError(t, err)
	require.NoError(t, store.CompleteSession(ctx, id, "first", ""))

	err = store.CompleteSession(ctx, id, "second", "")
	assert.ErrorIs(t, err, ErrSessionNotInProgress)

	sess, err := store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "first", sess.Summary)
}

func TestCompleteUnknownSession(t *testing.T) {
	store := openTestStore(t)

	err := store.CompleteSession(context.Background(), 99, "", "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, topic := range []string{"A", "B", "C"} {
		_, err := store.CreateSession(ctx, topic, DepthQuick)
		require.NoError(t, err)
	}

	sessions, err := store.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "C", sessions[0].Topic)
	assert.Equal(t, "B", sessions[1].Topic)
}

func TestListSessionsTiesBrokenByID(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	for _, topic := range []string{"A", "B", "C"} {
		_, err := store.CreateSession(ctx, topic, DepthQuick)
		require.NoError(t, err)
	}

	sessions, err := store.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, []string{"C", "B", "A"}, []string{sessions[0].Topic, sessions[1].Topic, sessions[2].Topic})
}

func TestSourcesAndFindings(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, err := store.CreateSession(ctx, "batteries", DepthDeep)
	require.NoError(t, err)

	_, err = store.AddSource(ctx, id, Source{
		Title:   "Solid state",
		URL:     "https://example.com/solid",
		Snippet: "snippet",
		Query:   "batteries",
		Content: "Solid state batteries store more energy.",
	})
	require.NoError(t, err)

	_, err = store.AddFinding(ctx, id, Finding{Text: "Density is rising", SourceRefs: []string{"1", "2"}, Confidence: "High"})
	require.NoError(t, err)
	_, err = store.AddFinding(ctx, id, Finding{Text: "Costs are falling", Confidence: "Low"})
	require.NoError(t, err)

	sources, err := store.Sources(ctx, id)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://example.com/solid", sources[0].URL)
	assert.Equal(t, "batteries", sources[0].Query)
	assert.Equal(t, 0.0, sources[0].RelevanceScore)

	findings, err := store.Findings(ctx, id)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, []string{"1", "2"}, findings[0].SourceRefs)
	assert.Equal(t, "High", findings[0].Confidence)
	assert.Nil(t, findings[1].SourceRefs)
	assert.Equal(t, "Low", findings[1].Confidence)
}

func TestAddSourceRequiresExistingSession(t *testing.T) {
	store := openTestStore(t)

	_, err := store.AddSource(context.Background(), 7, Source{Title: "t", URL: "u", Content: "c"})
	assert.Error(t, err)
}

func TestCreateSessionDatabaseFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO sessions").WillReturnError(errors.New("disk I/O error"))

	store, err := New(sqlx.NewDb(db, "sqlite3"))
	require.NoError(t, err)

	_, err = store.CreateSession(context.Background(), "topic", DepthQuick)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSchemaFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("read-only database"))

	_, err = New(sqlx.NewDb(db, "sqlite3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create tables")
}
