// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigrun-agent/internal/model"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrSessionNotFound = errors.New("transcript session not found")
	ErrClosed          = errors.New("transcript store is closed")
	ErrNewerSchema     = errors.New("transcript database was written by a newer version")
)

// =============================================================================
// TYPES
// =============================================================================

// SessionInfo summarizes a recorded session.
type SessionInfo struct {
	ID           string
	Model        string
	SystemPrompt string
	StartedAt    time.Time
	Exchanges    int
}

// Entry is one recorded exchange.
type Entry struct {
	ID         string
	SessionID  string
	Seq        int
	Model      string
	UserText   string
	Response   string
	Error      string
	Outcome    string
	StartedAt  time.Time
	Duration   time.Duration
	Reductions int
}

// =============================================================================
// STORE
// =============================================================================

// Store is a SQLite-backed transcript database.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens or creates the transcript database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("transcript path cannot be empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	store := &Store{db: db, path: path}
	version, err := store.SchemaVersion(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	if version > SchemaVersion {
		db.Close()
		return nil, fmt.Errorf("%w: schema %d, supported %d", ErrNewerSchema, version, SchemaVersion)
	}
	return store, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// SchemaVersion returns the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return strconv.Atoi(value)
}

// Begin starts a new session for model.
func (s *Store) Begin(ctx context.Context, modelName, systemPrompt string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	session := &Session{
		store:     s,
		id:        uuid.NewString(),
		model:     modelName,
		startedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, model, system_prompt, started_at) VALUES (?, ?, ?, ?)",
		session.id, modelName, systemPrompt, session.startedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Sessions lists recorded sessions, newest first. A limit of zero or less
// returns all of them.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.model, s.system_prompt, s.started_at, COUNT(e.id)
		FROM sessions s LEFT JOIN exchanges e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var startedAt int64
		if err := rows.Scan(&info.ID, &info.Model, &info.SystemPrompt, &startedAt, &info.Exchanges); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		info.StartedAt = time.UnixMilli(startedAt)
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// Session returns the summary of one recorded session.
func (s *Store) Session(ctx context.Context, sessionID string) (SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return SessionInfo{}, ErrClosed
	}

	var info SessionInfo
	var startedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.model, s.system_prompt, s.started_at,
		       (SELECT COUNT(*) FROM exchanges e WHERE e.session_id = s.id)
		FROM sessions s WHERE s.id = ?`, sessionID).
		Scan(&info.ID, &info.Model, &info.SystemPrompt, &startedAt, &info.Exchanges)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return SessionInfo{}, fmt.Errorf("failed to look up session: %w", err)
	}
	info.StartedAt = time.UnixMilli(startedAt)
	return info, nil
}

// Exchanges returns the entries of a session in order.
func (s *Store) Exchanges(ctx context.Context, sessionID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, seq, model, user_text, response, error, outcome,
		       started_at, duration_ms, reductions
		FROM exchanges WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedAt, durationMs int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.Model, &e.UserText, &e.Response,
			&e.Error, &e.Outcome, &startedAt, &durationMs, &e.Reductions); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedAt)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database. Further calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// Session appends exchanges to one recorded session. It is safe for
// concurrent use.
type Session struct {
	store     *Store
	id        string
	model     string
	startedAt time.Time

	mu  sync.Mutex
	seq int
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Record appends ex to the session.
func (s *Session) Record(ctx context.Context, ex model.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	if s.store.closed {
		return ErrClosed
	}

	modelName := ex.Model
	if modelName == "" {
		modelName = s.model
	}
	startedAt := ex.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO exchanges (id, session_id, seq, model, user_text, response, error, outcome,
		                       started_at, duration_ms, reductions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), s.id, s.seq+1, modelName, ex.UserText, ex.Response, ex.ErrorText(),
		ollama.Outcome(ex.Err), startedAt.UnixMilli(), ex.Duration.Milliseconds(), ex.Reductions,
	)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	s.seq++
	return nil
}
