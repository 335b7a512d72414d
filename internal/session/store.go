package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Store provides SQLite-backed persistence for sessions.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens the SQLite database at dbPath, creating its directory and the
// tables if they don't exist.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an already opened database and ensures the schema exists.
func New(db *sqlx.DB) (*Store, error) {
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic TEXT NOT NULL,
		depth TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		created_at DATETIME NOT NULL,
		completed_at DATETIME,
		summary TEXT,
		report_path TEXT
	);

	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		snippet TEXT NOT NULL DEFAULT '',
		query TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		relevance_score REAL NOT NULL DEFAULT 0.0,
		retrieved_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		finding TEXT NOT NULL,
		source_refs TEXT,
		confidence TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_sources_session ON sources(session_id);
	CREATE INDEX IF NOT EXISTS idx_findings_session ON findings(session_id);
	`
	_, err := db.Exec(schema)
	return err
}

type sessionRow struct {
	ID          int64          `db:"id"`
	Topic       string         `db:"topic"`
	Depth       string         `db:"depth"`
	Status      string         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
	Summary     sql.NullString `db:"summary"`
	ReportPath  sql.NullString `db:"report_path"`
}

func (r sessionRow) toSession() Session {
	sess := Session{
		ID:         r.ID,
		Topic:      r.Topic,
		Depth:      Depth(r.Depth),
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
		Summary:    r.Summary.String,
		ReportPath: r.ReportPath.String,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		sess.CompletedAt = &t
	}
	return sess
}

type sourceRow struct {
	ID             int64     `db:"id"`
	SessionID      int64     `db:"session_id"`
	Title          string    `db:"title"`
	URL            string    `db:"url"`
	Snippet        string    `db:"snippet"`
	Query          string    `db:"query"`
	Content        string    `db:"content"`
	RelevanceScore float64   `db:"relevance_score"`
	RetrievedAt    time.Time `db:"retrieved_at"`
}

type findingRow struct {
	ID         int64          `db:"id"`
	SessionID  int64          `db:"session_id"`
	Finding    string         `db:"finding"`
	SourceRefs sql.NullString `db:"source_refs"`
	Confidence string         `db:"confidence"`
	CreatedAt  time.Time      `db:"created_at"`
}

const sessionColumns = `id, topic, depth, status, created_at, completed_at, summary, report_path`

// CreateSession inserts a new in-progress session and returns its ID.
func (s *Store) CreateSession(ctx context.Context, topic string, depth Depth) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (topic, depth, status, created_at)
		 VALUES (?, ?, ?, ?)`,
		topic, string(depth), StatusInProgress, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	return id, nil
}

// AddSource appends an extracted page to a session and returns its ID.
func (s *Store) AddSource(ctx context.Context, sessionID int64, src Source) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (session_id, title, url, snippet, query, content, relevance_score, retrieved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, src.Title, src.URL, src.Snippet, src.Query, src.Content, src.RelevanceScore, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert source: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("source id: %w", err)
	}
	return id, nil
}

// AddFinding appends a finding to a session and returns its ID.
// SourceRefs are stored as a JSON array, or NULL when absent.
func (s *Store) AddFinding(ctx context.Context, sessionID int64, f Finding) (int64, error) {
	var refs sql.NullString
	if f.SourceRefs != nil {
		data, err := json.Marshal(f.SourceRefs)
		if err != nil {
			return 0, fmt.Errorf("encode source refs: %w", err)
		}
		refs = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO findings (session_id, finding, source_refs, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, f.Text, refs, f.Confidence, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert finding: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("finding id: %w", err)
	}
	return id, nil
}

// CompleteSession marks an in-progress session completed and records its
// summary and report path. Empty strings are stored as NULL.
func (s *Store) CompleteSession(ctx context.Context, id int64, summary, reportPath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET status = ?, completed_at = ?, summary = ?, report_path = ?
		 WHERE id = ? AND status = ?`,
		StatusCompleted, s.now(), nullString(summary), nullString(reportPath), id, StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, err := s.GetSession(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("complete session %d: %w", id, ErrSessionNotInProgress)
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id int64) (*Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess := row.toSession()
	return &sess, nil
}

// ListSessions returns the most recent sessions, newest first. Sessions
// created in the same instant are ordered by descending ID. A non-positive
// limit returns every session.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}

	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	sessions := make([]Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.toSession())
	}
	return sessions, nil
}

// Sources returns the sources of a session in insertion order.
func (s *Store) Sources(ctx context.Context, sessionID int64) ([]Source, error) {
	var rows []sourceRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, session_id, title, url, snippet, query, content, relevance_score, retrieved_at
		 FROM sources
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}

	sources := make([]Source, 0, len(rows))
	for _, r := range rows {
		sources = append(sources, Source(r))
	}
	return sources, nil
}

// Findings returns the findings of a session in insertion order.
func (s *Store) Findings(ctx context.Context, sessionID int64) ([]Finding, error) {
	var rows []findingRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, session_id, finding, source_refs, confidence, created_at
		 FROM findings
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		f := Finding{
			ID:         r.ID,
			SessionID:  r.SessionID,
			Text:       r.Finding,
			Confidence: r.Confidence,
			CreatedAt:  r.CreatedAt,
		}
		if r.SourceRefs.Valid {
			if err := json.Unmarshal([]byte(r.SourceRefs.String), &f.SourceRefs); err != nil {
				return nil, fmt.Errorf("decode source refs for finding %d: %w", r.ID, err)
			}
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
