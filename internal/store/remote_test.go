package store

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mquintela/falatest/internal/apiserver"
	"github.com/mquintela/falatest/internal/domain"
)

var testCategories = []domain.Category{
	{ID: 1, Name: "Marketplace", QuestionCount: 12},
	{ID: 2, Name: "Mountains", QuestionCount: 10},
}

func newTestRemote(t *testing.T) *Remote {
	t.Helper()
	st, err := apiserver.OpenStore(filepath.Join(t.TempDir(), "api.db"), testCategories)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(apiserver.NewHandler(st).Router())
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})
	return NewRemote(srv.URL, "test-token")
}

func remoteScope(session int) Scope {
	return Scope{Session: session, Category: testCategories[1]}
}

func TestRemoteAcquireSessionFresh(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	first, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("fresh acquisition must create distinct sessions, got %d twice", first)
	}
}

func TestRemoteAcquireSessionReusesIncomplete(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	created, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	reused, err := r.AcquireSession(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if reused != created {
		t.Fatalf("expected reuse of session %d, got %d", created, reused)
	}
}

func TestRemoteAcquireSessionCreatesWhenNoneIncomplete(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	id, err := r.AcquireSession(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("expected a session to be created")
	}
}

func TestRemoteRecordAndAnsweredIDs(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	session, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	scope := remoteScope(session)

	rec := domain.AnswerRecord{QuestionNumber: 4, AnswerState: "true", UserAnswer: "uma casa"}
	if err := r.RecordAnswer(ctx, scope, rec); err != nil {
		t.Fatal(err)
	}

	ids, err := r.AnsweredIDs(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if !ids[4] || len(ids) != 1 {
		t.Fatalf("unexpected answered set: %v", ids)
	}
}

func TestRemoteDoubleWriteKeepsOneRow(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	session, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	scope := remoteScope(session)

	if err := r.RecordAnswer(ctx, scope, domain.AnswerRecord{QuestionNumber: 7, AnswerState: "3"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordAnswer(ctx, scope, domain.AnswerRecord{QuestionNumber: 7, AnswerState: "2"}); err != nil {
		t.Fatal(err)
	}

	recs, err := r.QueryAnswers(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one row, got %d", len(recs))
	}
	if recs[0].AnswerState != "2" {
		t.Fatalf("upsert did not replace state: %+v", recs[0])
	}
}

func TestRemoteQueryFiltersByCategory(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	session, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}

	other := Scope{Session: session, Category: testCategories[0]}
	if err := r.RecordAnswer(ctx, other, domain.AnswerRecord{QuestionNumber: 1, AnswerState: "1"}); err != nil {
		t.Fatal(err)
	}
	scope := remoteScope(session)
	if err := r.RecordAnswer(ctx, scope, domain.AnswerRecord{QuestionNumber: 2, AnswerState: "1"}); err != nil {
		t.Fatal(err)
	}

	recs, err := r.QueryAnswers(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].QuestionNumber != 2 {
		t.Fatalf("cross-category rows leaked: %+v", recs)
	}
}

func TestRemoteRecordRejectsBadQuestionNumber(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	session, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	scope := remoteScope(session)

	// Mountains has 10 questions; 11 is out of range.
	err = r.RecordAnswer(ctx, scope, domain.AnswerRecord{QuestionNumber: 11, AnswerState: "1"})
	if err == nil {
		t.Fatal("expected rejection of out-of-range question number")
	}
}

func TestRemoteCompleteCategoryNoAnswers(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	session, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	scope := remoteScope(session)

	err = r.CompleteCategory(ctx, scope)
	if !errors.Is(err, ErrNoAnswers) {
		t.Fatalf("expected ErrNoAnswers, got %v", err)
	}
}

func TestRemoteCompleteCategoryIdempotent(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	session, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	scope := remoteScope(session)

	if err := r.RecordAnswer(ctx, scope, domain.AnswerRecord{QuestionNumber: 1, AnswerState: "1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.CompleteCategory(ctx, scope); err != nil {
		t.Fatal(err)
	}
	// Already completed reads as success.
	if err := r.CompleteCategory(ctx, scope); err != nil {
		t.Fatalf("repeat completion must be success, got %v", err)
	}
}

func TestRemoteCorrectCategoryIdempotent(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	session, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	scope := remoteScope(session)

	if err := r.CorrectCategory(ctx, scope); err != nil {
		t.Fatal(err)
	}
	if err := r.CorrectCategory(ctx, scope); err != nil {
		t.Fatalf("repeat correction must be success, got %v", err)
	}
}

func TestRemoteSessionNotFound(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	_, err := r.QueryAnswers(ctx, remoteScope(999))
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRemoteAnsweredIDsEmptySession(t *testing.T) {
	r := newTestRemote(t)
	ctx := context.Background()

	session, err := r.AcquireSession(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	ids, err := r.AnsweredIDs(ctx, remoteScope(session))
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty set, got %v", ids)
	}
}
