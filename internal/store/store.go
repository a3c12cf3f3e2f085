// Package store provides answer persistence over two interchangeable
// backends: a local device store and the remote sessions/answers API. Phase
// controllers consume the same Gateway contract regardless of which one is
// configured; the backend is chosen once at construction and never mixed
// within a scope.
package store

import (
	"context"
	"errors"

	"github.com/mquintela/falatest/internal/domain"
)

// Sentinel errors for distinguishable backend conditions.
var (
	// ErrNoAnswers is reported when a category cannot be completed because
	// no answer has been recorded for it yet.
	ErrNoAnswers = errors.New("no answers recorded for category")
	// ErrSessionNotFound is reported when the remote backend does not know
	// the session this scope refers to.
	ErrSessionNotFound = errors.New("session not found")
)

// Scope addresses one phase controller's persistence: the sitting (remote
// session id, 0 on the local backend), the phase (used by the local backend
// to key its answered sets) and the category under test.
type Scope struct {
	Session  int
	Phase    domain.Phase
	Category domain.Category
}

// Gateway is the uniform persistence contract. Failure semantics differ by
// backend: the local store treats its own failures as "nothing persisted
// yet" and never propagates them, while the remote store returns explicit
// errors that block advancement until the write is confirmed.
type Gateway interface {
	// AcquireSession establishes the sitting answers are recorded into.
	// fresh forces a brand-new session; otherwise the most recently
	// started incomplete session is reused when one exists.
	AcquireSession(ctx context.Context, fresh bool) (int, error)

	// AnsweredIDs returns the question numbers already recorded in scope.
	// Missing prior state yields an empty set, never an error.
	AnsweredIDs(ctx context.Context, scope Scope) (map[int]bool, error)

	// RecordAnswer persists one answer record. Writes are upserts: the
	// backend keeps at most one row per (scope, category, question).
	RecordAnswer(ctx context.Context, scope Scope, rec domain.AnswerRecord) error

	// QueryAnswers returns all persisted records for the scope, filtered
	// to the scope's category. The remote backend stores rows for every
	// category of the session; cross-category rows never leak out.
	QueryAnswers(ctx context.Context, scope Scope) ([]domain.AnswerRecord, error)

	// CompleteCategory marks the scope's category completed. Completing a
	// category with no recorded answers fails with ErrNoAnswers; an
	// already-completed category is success.
	CompleteCategory(ctx context.Context, scope Scope) error

	// CorrectCategory marks the scope's category corrected after the
	// remediation phase. Idempotent: already corrected is success.
	CorrectCategory(ctx context.Context, scope Scope) error

	// Close releases backend resources.
	Close() error
}

// MissJournal is an optional Gateway capability. A backend that keys its
// answer rows by phase can journal transcription-phase choice misses
// without shadowing the remediation phase's state, so a remounted
// transcription phase neither re-asks a missed question nor forgets its
// pending remediation. The remote backend cannot offer this: its rows
// are not phase-keyed and its answer_state enumeration is closed.
type MissJournal interface {
	// RecordMiss journals one choice miss under the scope's phase.
	RecordMiss(ctx context.Context, scope Scope, questionNumber int, userAnswer string) error

	// MissedNumbers returns the journaled miss question numbers in scope.
	// Missing prior state yields an empty set, never an error.
	MissedNumbers(ctx context.Context, scope Scope) (map[int]bool, error)
}
