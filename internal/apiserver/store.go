// Package apiserver implements a development stand-in for the remote
// sessions/answers REST backend: same routes, status codes, and message
// strings, backed by SQLite. It exists so the remote gateway can be
// exercised end-to-end without the production service. Authentication and
// CORS are layered on by the devserver binary, not here.
package apiserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mquintela/falatest/internal/domain"
	"github.com/mquintela/falatest/internal/shared"
)

// Store persists sessions, per-session category state, and answers.
type Store struct {
	db *sql.DB
}

var errNotFound = errors.New("not found")

// OpenStore opens the devserver database and seeds the static category
// registry.
func OpenStore(dbPath string, categories []domain.Category) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := s.seedCategories(categories); err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		question_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS session_categories (
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		category_id INTEGER NOT NULL REFERENCES categories(id),
		started_at INTEGER,
		completed_at INTEGER,
		was_corrected INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, category_id)
	);
	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL,
		question_number INTEGER NOT NULL,
		answer_state TEXT NOT NULL,
		user_answer TEXT,
		answered_at INTEGER NOT NULL,
		UNIQUE (session_id, category_id, question_number),
		FOREIGN KEY (session_id, category_id)
			REFERENCES session_categories(session_id, category_id) ON DELETE CASCADE
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) seedCategories(categories []domain.Category) error {
	for _, c := range categories {
		_, err := s.db.Exec(`
			INSERT INTO categories (id, name, question_count) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, question_count = excluded.question_count`,
			c.ID, c.Name, c.QuestionCount)
		if err != nil {
			return fmt.Errorf("seed category %d: %w", c.ID, err)
		}
	}
	return nil
}

// CreateSession starts a session and attaches one category row per static
// category.
func (s *Store) CreateSession(ctx context.Context) (domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `INSERT INTO sessions (started_at) VALUES (?)`, now.Unix())
	if err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Session{}, fmt.Errorf("session id: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_categories (session_id, category_id)
		SELECT ?, id FROM categories ORDER BY id`, id)
	if err != nil {
		return domain.Session{}, fmt.Errorf("attach categories: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, fmt.Errorf("commit: %w", err)
	}
	return domain.Session{ID: int(id), StartedAt: now}, nil
}

// ListSessions returns all sessions, most recently started first.
func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at FROM sessions ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var sess domain.Session
		var started int64
		var completed sql.NullInt64
		if err := rows.Scan(&sess.ID, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartedAt = time.Unix(started, 0)
		if completed.Valid {
			t := time.Unix(completed.Int64, 0)
			sess.CompletedAt = &t
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession returns one session, or errNotFound.
func (s *Store) GetSession(ctx context.Context, id int) (domain.Session, error) {
	var sess domain.Session
	var started int64
	var completed sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, completed_at FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &started, &completed)
	if err == sql.ErrNoRows {
		return domain.Session{}, errNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = time.Unix(started, 0)
	if completed.Valid {
		t := time.Unix(completed.Int64, 0)
		sess.CompletedAt = &t
	}
	return sess, nil
}

// CompleteSession stamps the session's completion time.
func (s *Store) CompleteSession(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET completed_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

// SessionCategory returns the per-session state for one category.
func (s *Store) SessionCategory(ctx context.Context, sessionID, categoryID int) (domain.SessionCategory, error) {
	var sc domain.SessionCategory
	var started, completed sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT sc.category_id, c.name, c.question_count, sc.started_at, sc.completed_at, sc.was_corrected
		FROM session_categories sc JOIN categories c ON c.id = sc.category_id
		WHERE sc.session_id = ? AND sc.category_id = ?`, sessionID, categoryID).
		Scan(&sc.CategoryID, &sc.Name, &sc.QuestionCount, &started, &completed, &sc.WasCorrected)
	if err == sql.ErrNoRows {
		return domain.SessionCategory{}, errNotFound
	}
	if err != nil {
		return domain.SessionCategory{}, fmt.Errorf("scan session category: %w", err)
	}
	if started.Valid {
		t := time.Unix(started.Int64, 0)
		sc.StartedAt = &t
	}
	if completed.Valid {
		t := time.Unix(completed.Int64, 0)
		sc.CompletedAt = &t
	}
	return sc, nil
}

// ListSessionCategories returns every category row for a session.
func (s *Store) ListSessionCategories(ctx context.Context, sessionID int) ([]domain.SessionCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sc.category_id, c.name, c.question_count, sc.started_at, sc.completed_at, sc.was_corrected
		FROM session_categories sc JOIN categories c ON c.id = sc.category_id
		WHERE sc.session_id = ? ORDER BY sc.category_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session categories: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionCategory
	for rows.Next() {
		var sc domain.SessionCategory
		var started, completed sql.NullInt64
		if err := rows.Scan(&sc.CategoryID, &sc.Name, &sc.QuestionCount, &started, &completed, &sc.WasCorrected); err != nil {
			return nil, fmt.Errorf("scan session category: %w", err)
		}
		if started.Valid {
			t := time.Unix(started.Int64, 0)
			sc.StartedAt = &t
		}
		if completed.Valid {
			t := time.Unix(completed.Int64, 0)
			sc.CompletedAt = &t
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// MarkCategoryStarted sets started_at if not already set.
func (s *Store) MarkCategoryStarted(ctx context.Context, sessionID, categoryID int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_categories SET started_at = ?
		WHERE session_id = ? AND category_id = ? AND started_at IS NULL`,
		time.Now().Unix(), sessionID, categoryID)
	if err != nil {
		return fmt.Errorf("mark category started: %w", err)
	}
	return nil
}

// CompleteCategory stamps the category's completion time.
func (s *Store) CompleteCategory(ctx context.Context, sessionID, categoryID int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_categories SET completed_at = ?
		WHERE session_id = ? AND category_id = ?`,
		time.Now().Unix(), sessionID, categoryID)
	if err != nil {
		return fmt.Errorf("complete category: %w", err)
	}
	return nil
}

// CorrectCategory sets was_corrected.
func (s *Store) CorrectCategory(ctx context.Context, sessionID, categoryID int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE session_categories SET was_corrected = 1
		WHERE session_id = ? AND category_id = ?`, sessionID, categoryID)
	if err != nil {
		return fmt.Errorf("correct category: %w", err)
	}
	return nil
}

// UpsertAnswer adds or replaces one answer row; the unique constraint on
// (session, category, question) makes the write idempotent. Busy-database
// conflicts get a short retry before failing the request.
func (s *Store) UpsertAnswer(ctx context.Context, sessionID int, rec domain.AnswerRecord) error {
	err := shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO answers (session_id, category_id, question_number, answer_state, user_answer, answered_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, category_id, question_number) DO UPDATE SET
				answer_state = excluded.answer_state,
				user_answer = excluded.user_answer,
				answered_at = excluded.answered_at`,
			sessionID, rec.CategoryID, rec.QuestionNumber, rec.AnswerState, rec.UserAnswer, time.Now().Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

// ListAnswers returns all answer rows for a session across categories.
func (s *Store) ListAnswers(ctx context.Context, sessionID int) ([]domain.AnswerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_id, question_number, answer_state, user_answer, answered_at
		FROM answers WHERE session_id = ? ORDER BY category_id, question_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var out []domain.AnswerRecord
	for rows.Next() {
		var rec domain.AnswerRecord
		var userAnswer sql.NullString
		var answeredAt int64
		if err := rows.Scan(&rec.CategoryID, &rec.QuestionNumber, &rec.AnswerState, &userAnswer, &answeredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		rec.UserAnswer = userAnswer.String
		rec.AnsweredAt = time.Unix(answeredAt, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HasAnswers reports whether any answer exists for the session/category.
func (s *Store) HasAnswers(ctx context.Context, sessionID, categoryID int) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM answers WHERE session_id = ? AND category_id = ?`,
		sessionID, categoryID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count answers: %w", err)
	}
	return n > 0, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
