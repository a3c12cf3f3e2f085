package phase

import (
	"context"
	"testing"
	"time"

	"github.com/mquintela/falatest/internal/domain"
)

func imageQuestion(id, optionCount int) domain.Question {
	q := domain.Question{ID: id, Type: domain.TypeChoice}
	for i := 1; i <= optionCount; i++ {
		q.Options = append(q.Options, domain.Option{
			ID:        i,
			Correct:   i == optionCount, // correct option last on purpose
			Label:     "option",
			ImagePath: "img/option.png",
		})
	}
	return q
}

func TestRemediationSelectPersistsAndAdvances(t *testing.T) {
	ctx := context.Background()
	gw := newLocalGateway(t)
	scope := testScope(domain.PhaseRemediation)

	done := false
	ctrl, err := NewRemediation(ctx, gw, scope,
		[]domain.Question{imageQuestion(1, 3), imageQuestion(2, 3)},
		func() { done = true })
	if err != nil {
		t.Fatalf("NewRemediation: %v", err)
	}

	// Answer the first question wrong and the second right: both advance.
	first := ctrl.Current()
	if first == nil {
		t.Fatal("Current() = nil, want a question")
	}
	var wrong int
	for _, o := range first.Options {
		if !o.Correct {
			wrong = o.ID
			break
		}
	}
	if err := ctrl.Select(ctx, wrong); err != nil {
		t.Fatalf("Select wrong: %v", err)
	}

	second := ctrl.Current()
	if second == nil || second.Question.ID == first.Question.ID {
		t.Fatalf("Current() after advance = %v", second)
	}
	var right int
	for _, o := range second.Options {
		if o.Correct {
			right = o.ID
			break
		}
	}
	if err := ctrl.Select(ctx, right); err != nil {
		t.Fatalf("Select right: %v", err)
	}

	if !done || !ctrl.Done() {
		t.Fatal("phase should be done after both questions")
	}

	recs, err := gw.QueryAnswers(ctx, scope)
	if err != nil {
		t.Fatalf("QueryAnswers: %v", err)
	}
	states := map[int]string{}
	for _, rec := range recs {
		states[rec.QuestionNumber] = rec.AnswerState
	}
	if states[first.Question.ID] != "3" {
		t.Fatalf("wrong selection state = %q, want 3", states[first.Question.ID])
	}
	if states[second.Question.ID] != "2" {
		t.Fatalf("right selection state = %q, want 2", states[second.Question.ID])
	}
}

func TestRemediationEmptyQueueCompletesImmediately(t *testing.T) {
	ctx := context.Background()
	gw := newLocalGateway(t)

	done := false
	ctrl, err := NewRemediation(ctx, gw, testScope(domain.PhaseRemediation), nil,
		func() { done = true })
	if err != nil {
		t.Fatalf("NewRemediation: %v", err)
	}
	if !done || !ctrl.Done() || ctrl.Current() != nil {
		t.Fatal("empty queue must complete immediately")
	}
}

func TestRemediationFiltersAnsweredAndDuplicates(t *testing.T) {
	ctx := context.Background()
	gw := newLocalGateway(t)
	scope := testScope(domain.PhaseRemediation)

	// Question 1 was already remediated in an earlier run of this sitting.
	err := gw.RecordAnswer(ctx, scope, domain.AnswerRecord{
		QuestionNumber: 1,
		AnswerState:    "2",
		AnsweredAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("seed answer: %v", err)
	}

	misses := []domain.Question{
		imageQuestion(1, 3),
		imageQuestion(2, 3),
		imageQuestion(2, 3), // duplicate enrollment
		openQuestion(5),     // not a choice type, never remediated
	}
	ctrl, err := NewRemediation(ctx, gw, scope, misses, nil)
	if err != nil {
		t.Fatalf("NewRemediation: %v", err)
	}

	item := ctrl.Current()
	if item == nil || item.Question.ID != 2 {
		t.Fatalf("Current() = %v, want question 2 only", item)
	}
	if err := ctrl.Select(ctx, item.Options[0].ID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !ctrl.Done() {
		t.Fatal("queue should contain exactly one question")
	}
}

func TestRemediationOptionBoundKeepsCorrect(t *testing.T) {
	ctx := context.Background()
	gw := newLocalGateway(t)

	ctrl, err := NewRemediation(ctx, gw, testScope(domain.PhaseRemediation),
		[]domain.Question{imageQuestion(1, 9)}, nil)
	if err != nil {
		t.Fatalf("NewRemediation: %v", err)
	}

	item := ctrl.Current()
	if len(item.Options) != maxRemediationOptions {
		t.Fatalf("presented %d options, want %d", len(item.Options), maxRemediationOptions)
	}
	hasCorrect := false
	for _, o := range item.Options {
		if o.Correct {
			hasCorrect = true
		}
	}
	if !hasCorrect {
		t.Fatal("bounded option set must keep the correct option")
	}
}

func TestRemediationOptionOrderStableWithinQuestion(t *testing.T) {
	ctx := context.Background()
	gw := newLocalGateway(t)

	ctrl, err := NewRemediation(ctx, gw, testScope(domain.PhaseRemediation),
		[]domain.Question{imageQuestion(1, 6)}, nil)
	if err != nil {
		t.Fatalf("NewRemediation: %v", err)
	}

	first := ctrl.Current()
	second := ctrl.Current()
	for i := range first.Options {
		if first.Options[i].ID != second.Options[i].ID {
			t.Fatal("option order changed between renders of the same question")
		}
	}
}

func TestRemediationFailedPersistKeepsQuestionActive(t *testing.T) {
	ctx := context.Background()
	gw := &failOnceGateway{Gateway: newLocalGateway(t)}
	scope := testScope(domain.PhaseRemediation)

	done := false
	ctrl, err := NewRemediation(ctx, gw, scope,
		[]domain.Question{imageQuestion(1, 3)},
		func() { done = true })
	if err != nil {
		t.Fatalf("NewRemediation: %v", err)
	}

	item := ctrl.Current()
	var right int
	for _, o := range item.Options {
		if o.Correct {
			right = o.ID
		}
	}
	if err := ctrl.Select(ctx, right); err == nil {
		t.Fatal("Select with a failing gateway should error")
	}
	if done || ctrl.Done() {
		t.Fatal("failed persist must not complete the phase")
	}
	if ctrl.Saving() {
		t.Fatal("saving guard not released after failed persist")
	}
	again := ctrl.Current()
	if again == nil || again.Question.ID != 1 {
		t.Fatalf("Current() after failed persist = %v, want question 1 still active", again)
	}
	if recs, _ := gw.Gateway.QueryAnswers(ctx, scope); len(recs) != 0 {
		t.Fatalf("persisted records = %+v, want none after failed write", recs)
	}

	if err := ctrl.Select(ctx, right); err != nil {
		t.Fatalf("Select (retry): %v", err)
	}
	if !done || !ctrl.Done() {
		t.Fatal("retry against a recovered gateway should complete the phase")
	}
	recs, err := gw.Gateway.QueryAnswers(ctx, scope)
	if err != nil {
		t.Fatalf("QueryAnswers: %v", err)
	}
	if len(recs) != 1 || recs[0].AnswerState != "2" {
		t.Fatalf("persisted records = %+v, want one correct row", recs)
	}
}

func TestRemediationUnknownOption(t *testing.T) {
	ctx := context.Background()
	gw := newLocalGateway(t)

	ctrl, err := NewRemediation(ctx, gw, testScope(domain.PhaseRemediation),
		[]domain.Question{imageQuestion(1, 3)}, nil)
	if err != nil {
		t.Fatalf("NewRemediation: %v", err)
	}
	ctrl.Current()
	if err := ctrl.Select(ctx, 99); err == nil {
		t.Fatal("Select with unknown option id should fail")
	}
	if ctrl.Done() {
		t.Fatal("failed selection must not advance")
	}
}
