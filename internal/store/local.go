package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mquintela/falatest/internal/domain"
)

// Local is the device-resident backend. It mirrors the shape of the remote
// store in a SQLite file but with relaxed failure semantics: any of its own
// errors degrade to "nothing persisted yet" so a storage problem never
// blocks the test flow.
type Local struct {
	db *sql.DB
}

// OpenLocal opens (creating if needed) the local backend at dbPath.
func OpenLocal(dbPath string) (*Local, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	l := &Local{db: db}
	if err := l.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return l, nil
}

func (l *Local) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS answers (
		phase TEXT NOT NULL,
		category_id INTEGER NOT NULL,
		question_number INTEGER NOT NULL,
		answer_state TEXT NOT NULL,
		user_answer TEXT,
		answered_at INTEGER NOT NULL,
		PRIMARY KEY (phase, category_id, question_number)
	);
	CREATE TABLE IF NOT EXISTS category_state (
		category_id INTEGER PRIMARY KEY,
		sitting_id TEXT NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		corrected INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := l.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// AcquireSession starts or resumes a local sitting. The local backend has
// no remote session ids; it returns 0 and keeps a per-category sitting
// identifier for later review of exported data.
func (l *Local) AcquireSession(ctx context.Context, fresh bool) (int, error) {
	_ = ctx
	_ = fresh
	return 0, nil
}

// StartCategory records the sitting identifier and start time for a
// category, generating a fresh identifier when none exists yet.
func (l *Local) StartCategory(ctx context.Context, categoryID int) {
	query := `
	INSERT INTO category_state (category_id, sitting_id, started_at)
	VALUES (?, ?, ?)
	ON CONFLICT(category_id) DO UPDATE SET
		started_at = COALESCE(category_state.started_at, excluded.started_at)`
	if _, err := l.db.ExecContext(ctx, query, categoryID, uuid.NewString(), time.Now().Unix()); err != nil {
		slog.Warn("local store: start category failed", "category_id", categoryID, "error", err)
	}
}

// AnsweredIDs returns the answered question numbers for the scope's phase
// and category. Local failures yield an empty set.
func (l *Local) AnsweredIDs(ctx context.Context, scope Scope) (map[int]bool, error) {
	query := `SELECT question_number FROM answers WHERE phase = ? AND category_id = ?`
	rows, err := l.db.QueryContext(ctx, query, scope.Phase.String(), scope.Category.ID)
	if err != nil {
		slog.Warn("local store: answered-id query failed, treating as empty", "error", err)
		return map[int]bool{}, nil
	}
	defer rows.Close()

	ids := make(map[int]bool)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			slog.Warn("local store: answered-id scan failed, treating as empty", "error", err)
			return map[int]bool{}, nil
		}
		ids[n] = true
	}
	if err := rows.Err(); err != nil {
		slog.Warn("local store: answered-id iteration failed, treating as empty", "error", err)
		return map[int]bool{}, nil
	}
	return ids, nil
}

// RecordAnswer upserts one answer row. A failed local write is logged and
// swallowed; the caller retries naturally on the next action.
func (l *Local) RecordAnswer(ctx context.Context, scope Scope, rec domain.AnswerRecord) error {
	query := `
	INSERT INTO answers (phase, category_id, question_number, answer_state, user_answer, answered_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(phase, category_id, question_number) DO UPDATE SET
		answer_state = excluded.answer_state,
		user_answer = excluded.user_answer,
		answered_at = excluded.answered_at`

	answeredAt := rec.AnsweredAt
	if answeredAt.IsZero() {
		answeredAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, query,
		scope.Phase.String(), scope.Category.ID, rec.QuestionNumber,
		rec.AnswerState, rec.UserAnswer, answeredAt.Unix(),
	)
	if err != nil {
		slog.Warn("local store: record answer failed, treating as not yet saved",
			"category_id", scope.Category.ID, "question_number", rec.QuestionNumber, "error", err)
	}
	return nil
}

// RecordMiss journals a transcription-phase choice miss. The row shares
// the answers table, keyed under the scope's phase, so AnsweredIDs keeps
// the question out of a remounted queue while the remediation phase still
// sees it as pending.
func (l *Local) RecordMiss(ctx context.Context, scope Scope, questionNumber int, userAnswer string) error {
	return l.RecordAnswer(ctx, scope, domain.AnswerRecord{
		QuestionNumber: questionNumber,
		AnswerState:    domain.MissState(),
		UserAnswer:     userAnswer,
		AnsweredAt:     time.Now(),
	})
}

// MissedNumbers returns the journaled miss question numbers for the
// scope's phase and category. Local failures yield an empty set.
func (l *Local) MissedNumbers(ctx context.Context, scope Scope) (map[int]bool, error) {
	query := `SELECT question_number FROM answers WHERE phase = ? AND category_id = ? AND answer_state = ?`
	rows, err := l.db.QueryContext(ctx, query, scope.Phase.String(), scope.Category.ID, domain.MissState())
	if err != nil {
		slog.Warn("local store: miss-journal query failed, treating as empty", "error", err)
		return map[int]bool{}, nil
	}
	defer rows.Close()

	ids := make(map[int]bool)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			slog.Warn("local store: miss-journal scan failed, treating as empty", "error", err)
			return map[int]bool{}, nil
		}
		ids[n] = true
	}
	if err := rows.Err(); err != nil {
		slog.Warn("local store: miss-journal iteration failed, treating as empty", "error", err)
		return map[int]bool{}, nil
	}
	return ids, nil
}

// QueryAnswers returns all rows for the scope's phase and category.
func (l *Local) QueryAnswers(ctx context.Context, scope Scope) ([]domain.AnswerRecord, error) {
	query := `
	SELECT question_number, answer_state, user_answer, answered_at
	FROM answers WHERE phase = ? AND category_id = ?
	ORDER BY question_number`
	rows, err := l.db.QueryContext(ctx, query, scope.Phase.String(), scope.Category.ID)
	if err != nil {
		slog.Warn("local store: answer query failed, treating as empty", "error", err)
		return nil, nil
	}
	defer rows.Close()

	var recs []domain.AnswerRecord
	for rows.Next() {
		var rec domain.AnswerRecord
		var userAnswer sql.NullString
		var answeredAt int64
		if err := rows.Scan(&rec.QuestionNumber, &rec.AnswerState, &userAnswer, &answeredAt); err != nil {
			slog.Warn("local store: answer scan failed, treating as empty", "error", err)
			return nil, nil
		}
		rec.CategoryID = scope.Category.ID
		rec.UserAnswer = userAnswer.String
		rec.AnsweredAt = time.Unix(answeredAt, 0)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Warn("local store: answer iteration failed, treating as empty", "error", err)
		return nil, nil
	}
	return recs, nil
}

// CompleteCategory records the completion timestamp for the category.
func (l *Local) CompleteCategory(ctx context.Context, scope Scope) error {
	query := `
	INSERT INTO category_state (category_id, sitting_id, completed_at)
	VALUES (?, ?, ?)
	ON CONFLICT(category_id) DO UPDATE SET completed_at = excluded.completed_at`
	if _, err := l.db.ExecContext(ctx, query, scope.Category.ID, uuid.NewString(), time.Now().Unix()); err != nil {
		slog.Warn("local store: complete category failed", "category_id", scope.Category.ID, "error", err)
	}
	return nil
}

// CorrectCategory flags the category as corrected. Repeat calls are no-ops.
func (l *Local) CorrectCategory(ctx context.Context, scope Scope) error {
	query := `UPDATE category_state SET corrected = 1 WHERE category_id = ?`
	if _, err := l.db.ExecContext(ctx, query, scope.Category.ID); err != nil {
		slog.Warn("local store: correct category failed", "category_id", scope.Category.ID, "error", err)
	}
	return nil
}

// LastCompleted returns when the category was last completed on this
// device, used by the flow's intro-scene recency rule.
func (l *Local) LastCompleted(ctx context.Context, categoryID int) (time.Time, bool) {
	var completedAt sql.NullInt64
	query := `SELECT completed_at FROM category_state WHERE category_id = ?`
	err := l.db.QueryRowContext(ctx, query, categoryID).Scan(&completedAt)
	if err != nil || !completedAt.Valid {
		if err != nil && err != sql.ErrNoRows {
			slog.Warn("local store: recency query failed", "category_id", categoryID, "error", err)
		}
		return time.Time{}, false
	}
	return time.Unix(completedAt.Int64, 0), true
}

// MarkCompletedNow stamps the category's device-local completion time.
// Used in remote mode too, where the backend owns the authoritative record
// but the recency heuristic stays on the device.
func (l *Local) MarkCompletedNow(ctx context.Context, categoryID int) {
	_ = l.CompleteCategory(ctx, Scope{Category: domain.Category{ID: categoryID}})
}

// Close closes the database.
func (l *Local) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
