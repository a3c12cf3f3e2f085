package phase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mquintela/falatest/internal/domain"
	"github.com/mquintela/falatest/internal/random"
	"github.com/mquintela/falatest/internal/store"
)

// maxRemediationOptions bounds the image choices shown per remediation
// question.
const maxRemediationOptions = 6

// RemediationItem is one presented remediation question: the question plus
// its shuffled, bounded option set.
type RemediationItem struct {
	Question domain.Question
	Options  []domain.Option
}

// Remediation re-asks the choice questions missed during transcription as
// forced-choice image questions. The queue order and each question's option
// order are unpredictable between runs. Every selection persists and
// advances; correctness only decides the stored state.
type Remediation struct {
	mu sync.Mutex

	gateway store.Gateway
	scope   store.Scope

	queue  []domain.Question
	idx    int
	active *RemediationItem

	saving bool
	done   bool

	onComplete func()
}

// NewRemediation filters the incoming misses against the scope's answered
// set, deduplicates by question id, and shuffles the remainder. An empty
// resulting queue signals completion immediately.
func NewRemediation(ctx context.Context, gw store.Gateway, scope store.Scope, misses []domain.Question, onComplete func()) (*Remediation, error) {
	answered, err := gw.AnsweredIDs(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("hydrate answered set: %w", err)
	}

	r := &Remediation{
		gateway:    gw,
		scope:      scope,
		onComplete: onComplete,
	}

	seen := make(map[int]bool)
	var pending []domain.Question
	for _, q := range misses {
		if !q.Type.IsChoice() || seen[q.ID] || answered[q.ID] {
			continue
		}
		seen[q.ID] = true
		pending = append(pending, q)
	}
	r.queue = random.Unpredictable(pending)

	slog.Info("remediation phase ready",
		"category_id", scope.Category.ID,
		"queued", len(r.queue),
		"already_answered", len(answered))

	if len(r.queue) == 0 {
		r.done = true
		if onComplete != nil {
			onComplete()
		}
	}
	return r, nil
}

// Current returns the active question with its presented option order, or
// nil when the phase is complete. The option shuffle is fixed on first
// presentation so re-renders stay stable.
func (r *Remediation) Current() *RemediationItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || r.idx >= len(r.queue) {
		return nil
	}
	if r.active == nil {
		q := r.queue[r.idx]
		r.active = &RemediationItem{
			Question: q,
			Options:  random.Unpredictable(boundedOptions(q)),
		}
	}
	item := *r.active
	return &item
}

// boundedOptions trims an oversized option list without ever dropping the
// correct option.
func boundedOptions(q domain.Question) []domain.Option {
	if len(q.Options) <= maxRemediationOptions {
		return q.Options
	}
	out := make([]domain.Option, 0, maxRemediationOptions)
	for _, o := range q.Options {
		if o.Correct {
			out = append(out, o)
			break
		}
	}
	for _, o := range q.Options {
		if len(out) == maxRemediationOptions {
			break
		}
		if !o.Correct {
			out = append(out, o)
		}
	}
	return out
}

// Saving reports whether a persistence write is outstanding.
func (r *Remediation) Saving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saving
}

// Done reports whether the phase has completed.
func (r *Remediation) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Select records the chosen option for the active question and advances.
// The phase never re-asks: a wrong choice persists as wrong and moves on.
// A failed write keeps the question active for retry.
func (r *Remediation) Select(ctx context.Context, optionID int) error {
	r.mu.Lock()
	if r.done || r.saving || r.active == nil {
		r.mu.Unlock()
		return nil
	}
	item := *r.active
	var chosen *domain.Option
	for i := range item.Options {
		if item.Options[i].ID == optionID {
			chosen = &item.Options[i]
			break
		}
	}
	if chosen == nil {
		r.mu.Unlock()
		return fmt.Errorf("unknown option %d for question %d", optionID, item.Question.ID)
	}
	r.saving = true
	r.mu.Unlock()

	outcome := domain.Outcome{Phase: domain.PhaseRemediation, Correct: chosen.Correct}
	rec := domain.AnswerRecord{
		QuestionNumber: item.Question.ID,
		AnswerState:    outcome.EncodeState(),
		UserAnswer:     chosen.Label,
		AnsweredAt:     time.Now(),
	}
	persistErr := r.gateway.RecordAnswer(ctx, r.scope, rec)

	r.mu.Lock()
	r.saving = false
	if persistErr != nil {
		r.mu.Unlock()
		slog.Warn("remediation persistence failed, question stays active",
			"question_id", item.Question.ID, "error", persistErr)
		return fmt.Errorf("persist answer: %w", persistErr)
	}

	r.idx++
	r.active = nil
	finished := r.idx >= len(r.queue)
	if finished {
		r.done = true
	}
	r.mu.Unlock()

	if finished {
		slog.Info("remediation phase complete", "category_id", r.scope.Category.ID)
		if r.onComplete != nil {
			r.onComplete()
		}
	}
	return nil
}
