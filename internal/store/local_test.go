package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mquintela/falatest/internal/domain"
)

func openTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := OpenLocal(filepath.Join(t.TempDir(), "falatest.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func testScope(phase domain.Phase) Scope {
	return Scope{
		Phase:    phase,
		Category: domain.Category{ID: 2, Name: "Mountains", QuestionCount: 10},
	}
}

func TestLocalAnsweredIDsEmptyWithoutState(t *testing.T) {
	l := openTestLocal(t)
	ids, err := l.AnsweredIDs(context.Background(), testScope(domain.PhaseTranscription))
	if err != nil {
		t.Fatalf("answered ids must not fail on missing data: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty set, got %v", ids)
	}
}

func TestLocalRecordAndQuery(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()
	scope := testScope(domain.PhaseTranscription)

	rec := domain.AnswerRecord{QuestionNumber: 3, AnswerState: "1", UserAnswer: "ananas"}
	if err := l.RecordAnswer(ctx, scope, rec); err != nil {
		t.Fatal(err)
	}

	ids, err := l.AnsweredIDs(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if !ids[3] || len(ids) != 1 {
		t.Fatalf("unexpected answered set: %v", ids)
	}

	recs, err := l.QueryAnswers(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].AnswerState != "1" || recs[0].UserAnswer != "ananas" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if recs[0].CategoryID != scope.Category.ID {
		t.Fatalf("record missing category: %+v", recs[0])
	}
}

func TestLocalRecordUpserts(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()
	scope := testScope(domain.PhaseTranscription)

	if err := l.RecordAnswer(ctx, scope, domain.AnswerRecord{QuestionNumber: 3, AnswerState: "3"}); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordAnswer(ctx, scope, domain.AnswerRecord{QuestionNumber: 3, AnswerState: "1", UserAnswer: "fix"}); err != nil {
		t.Fatal(err)
	}

	recs, err := l.QueryAnswers(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one row after double write, got %d", len(recs))
	}
	if recs[0].AnswerState != "1" || recs[0].UserAnswer != "fix" {
		t.Fatalf("second write did not replace first: %+v", recs[0])
	}
}

func TestLocalPhasesAreSeparateScopes(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()

	tScope := testScope(domain.PhaseTranscription)
	rScope := testScope(domain.PhaseRemediation)

	if err := l.RecordAnswer(ctx, tScope, domain.AnswerRecord{QuestionNumber: 1, AnswerState: "3"}); err != nil {
		t.Fatal(err)
	}

	ids, err := l.AnsweredIDs(ctx, rScope)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("remediation scope sees transcription rows: %v", ids)
	}
}

func TestLocalRecency(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()

	if _, ok := l.LastCompleted(ctx, 2); ok {
		t.Fatal("expected no recency before completion")
	}

	if err := l.CompleteCategory(ctx, testScope(domain.PhaseTranscription)); err != nil {
		t.Fatal(err)
	}

	at, ok := l.LastCompleted(ctx, 2)
	if !ok {
		t.Fatal("expected recency after completion")
	}
	if time.Since(at) > time.Minute {
		t.Fatalf("implausible completion time %v", at)
	}
}

func TestLocalCorrectCategoryIdempotent(t *testing.T) {
	l := openTestLocal(t)
	ctx := context.Background()
	scope := testScope(domain.PhaseRemediation)

	if err := l.CompleteCategory(ctx, scope); err != nil {
		t.Fatal(err)
	}
	if err := l.CorrectCategory(ctx, scope); err != nil {
		t.Fatal(err)
	}
	if err := l.CorrectCategory(ctx, scope); err != nil {
		t.Fatalf("repeat correction must be a no-op, got %v", err)
	}
}

func TestLocalAcquireSession(t *testing.T) {
	l := openTestLocal(t)
	id, err := l.AcquireSession(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Fatalf("local backend has no remote session ids, got %d", id)
	}
}
