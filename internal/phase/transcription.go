// Package phase contains the per-phase controllers of the test flow: the
// speech transcription phase and the forced-choice remediation phase. Both
// read their answered state through the persistence gateway, filter their
// question queues against it, and write results back through the same
// gateway.
package phase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mquintela/falatest/internal/capture"
	"github.com/mquintela/falatest/internal/domain"
	"github.com/mquintela/falatest/internal/random"
	"github.com/mquintela/falatest/internal/store"
	"github.com/mquintela/falatest/internal/transcript"
)

// QuestionState is the per-question state machine of the transcription
// phase: recording -> reviewing -> accepted or editing -> finalized.
type QuestionState int

const (
	// StateIdle: the question is presented, capture has not started.
	StateIdle QuestionState = iota
	// StateRecording: speech capture is active.
	StateRecording
	// StateReviewing: the transcript awaits human confirmation.
	StateReviewing
	// StateEditing: the user is correcting the transcript by hand.
	StateEditing
)

// Transcription drives the speech-capture questions of one category. One
// instance covers one run of the phase; remounting builds a new instance
// which re-hydrates its answered set from the gateway.
type Transcription struct {
	mu sync.Mutex

	gateway     store.Gateway
	scope       store.Scope
	newCapturer capture.Factory

	queue []domain.Question // questions still to ask, in config order
	idx   int

	state         QuestionState
	rawTranscript string
	captureNotice string // persistent inline notice when capture degrades
	saving        bool
	done          bool

	capturer capture.Capturer

	remediation []domain.Question
	remediated  map[int]bool

	onComplete func(remediation []domain.Question)
}

// NewTranscription hydrates the answered set for the scope, filters the
// question list down to the remaining work, and returns the controller.
// On backends with a miss journal, journaled misses re-enter the pending
// remediation queue instead of being re-asked. If nothing remains the
// controller signals completion immediately.
func NewTranscription(ctx context.Context, gw store.Gateway, scope store.Scope, questions []domain.Question, factory capture.Factory, onComplete func([]domain.Question)) (*Transcription, error) {
	answered, err := gw.AnsweredIDs(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("hydrate answered set: %w", err)
	}
	var missed map[int]bool
	if mj, ok := gw.(store.MissJournal); ok {
		if missed, err = mj.MissedNumbers(ctx, scope); err != nil {
			return nil, fmt.Errorf("hydrate miss journal: %w", err)
		}
	}

	t := &Transcription{
		gateway:     gw,
		scope:       scope,
		newCapturer: factory,
		remediated:  make(map[int]bool),
		onComplete:  onComplete,
	}
	for _, q := range questions {
		if missed[q.ID] {
			t.remediated[q.ID] = true
			t.remediation = append(t.remediation, q)
			continue
		}
		if !answered[q.ID] {
			t.queue = append(t.queue, q)
		}
	}

	slog.Info("transcription phase ready",
		"category_id", scope.Category.ID,
		"remaining", len(t.queue),
		"already_answered", len(answered),
		"recovered_misses", len(t.remediation))

	if len(t.queue) == 0 {
		t.done = true
		if onComplete != nil {
			onComplete(t.RemediationQueue())
		}
	}
	return t, nil
}

// Current returns the active question, or nil when the phase is complete.
func (t *Transcription) Current() *domain.Question {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || t.idx >= len(t.queue) {
		return nil
	}
	q := t.queue[t.idx]
	return &q
}

// Options returns the active question's options in display order. The
// shuffle is seeded from the question id so a re-render never reorders
// content already on screen.
func (t *Transcription) Options() []domain.Option {
	q := t.Current()
	if q == nil {
		return nil
	}
	return random.Seeded(uint32(q.ID), q.Options)
}

// State returns the active question's state.
func (t *Transcription) State() QuestionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transcript returns the raw transcript under review or being edited.
func (t *Transcription) Transcript() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rawTranscript
}

// CaptureNotice returns the persistent inline notice, empty when capture
// is healthy.
func (t *Transcription) CaptureNotice() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.captureNotice
}

// Saving reports whether a persistence write is outstanding; the front-end
// disables navigation and answer controls while it is.
func (t *Transcription) Saving() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saving
}

// Done reports whether the phase has completed.
func (t *Transcription) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// RemediationQueue returns the misses accumulated so far, deduplicated by
// question id.
func (t *Transcription) RemediationQueue() []domain.Question {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Question, len(t.remediation))
	copy(out, t.remediation)
	return out
}

// StartCapture begins speech capture for the active question. When capture
// is unsupported or denied the question degrades to the manual edit path
// with a persistent notice instead of blocking.
func (t *Transcription) StartCapture(ctx context.Context) {
	t.mu.Lock()
	if t.done || t.saving || t.state == StateRecording {
		t.mu.Unlock()
		return
	}
	qid := t.queue[t.idx].ID
	c := t.newCapturer()
	t.capturer = c
	t.state = StateRecording
	t.rawTranscript = ""
	t.mu.Unlock()

	err := c.Start(ctx, func(res capture.Result) {
		t.handleCaptureResult(qid, res)
	})
	if err != nil {
		t.mu.Lock()
		t.captureNotice = "Speech capture unavailable; type the answer instead."
		t.state = StateEditing
		t.capturer = nil
		t.mu.Unlock()
		slog.Warn("speech capture unavailable, degrading to manual entry",
			"question_id", qid, "error", err)
	}
}

// StopCapture requests the end of the active capture; the transcript
// arrives through the capture callback.
func (t *Transcription) StopCapture() {
	t.mu.Lock()
	c := t.capturer
	t.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}

// handleCaptureResult applies a finished capture. Results are keyed to the
// question that owned the capture: anything arriving after the active
// question changed is discarded.
func (t *Transcription) handleCaptureResult(qid int, res capture.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done || t.idx >= len(t.queue) || t.queue[t.idx].ID != qid || t.state != StateRecording {
		slog.Debug("discarding stale capture result", "question_id", qid)
		return
	}

	t.capturer = nil
	if res.Err != nil {
		t.captureNotice = "Speech capture failed; type the answer instead."
		t.state = StateEditing
		slog.Warn("capture error, degrading to manual entry", "question_id", qid, "error", res.Err)
		return
	}
	if strings.TrimSpace(res.Text) == "" {
		// Nothing heard; stay ready to record again.
		t.state = StateIdle
		return
	}
	t.rawTranscript = res.Text
	t.state = StateReviewing
}

// AcceptTranscript confirms the reviewed transcript as the final answer.
func (t *Transcription) AcceptTranscript(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateReviewing {
		t.mu.Unlock()
		return nil
	}
	text := t.rawTranscript
	t.mu.Unlock()
	return t.finalize(ctx, text)
}

// RejectTranscript moves the question to the edit path, pre-filled with
// the raw transcript.
func (t *Transcription) RejectTranscript() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateReviewing {
		t.state = StateEditing
	}
}

// SubmitEdit finalizes with manually corrected text; empty submissions are
// rejected.
func (t *Transcription) SubmitEdit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty answer")
	}
	t.mu.Lock()
	if t.state != StateEditing {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()
	return t.finalize(ctx, text)
}

// Skip finalizes the active question with an empty answer, bypassing
// transcript review entirely.
func (t *Transcription) Skip(ctx context.Context) error {
	return t.finalize(ctx, "")
}

// finalize evaluates, persists, and advances. Concurrent attempts collapse
// into a single effective write via the saving guard; a failed remote write
// keeps the question active so the user can retry.
func (t *Transcription) finalize(ctx context.Context, text string) error {
	t.mu.Lock()
	if t.done || t.saving || t.idx >= len(t.queue) {
		t.mu.Unlock()
		return nil
	}
	t.saving = true
	q := t.queue[t.idx]
	t.mu.Unlock()

	// Abandon any in-flight capture; its late result is keyed to this
	// question and state, so it can no longer apply.
	t.StopCapture()

	correct := transcript.Matches(text, q.Accepted)

	var persistErr error
	if rec, ok := buildTranscriptionRecord(q, text, correct); ok {
		persistErr = t.gateway.RecordAnswer(ctx, t.scope, rec)
	} else if mj, ok := t.gateway.(store.MissJournal); ok {
		persistErr = mj.RecordMiss(ctx, t.scope, q.ID, text)
	}

	t.mu.Lock()
	t.saving = false

	if persistErr != nil {
		t.mu.Unlock()
		// Do not advance, do not mark answered; the action can be retried.
		slog.Warn("answer persistence failed, question stays active",
			"question_id", q.ID, "error", persistErr)
		return fmt.Errorf("persist answer: %w", persistErr)
	}

	if q.Type.IsChoice() && !correct && !t.remediated[q.ID] {
		t.remediated[q.ID] = true
		t.remediation = append(t.remediation, q)
	}

	finished, queue := t.advanceLocked()
	t.mu.Unlock()

	if finished {
		slog.Info("transcription phase complete",
			"category_id", t.scope.Category.ID,
			"remediation_count", len(queue))
		if t.onComplete != nil {
			t.onComplete(queue)
		}
	}
	return nil
}

// buildTranscriptionRecord maps a finalized question to its persisted row.
// Incorrect choice answers have no transcription-phase wire encoding: the
// miss lives in the remediation queue and its definitive row is written by
// the remediation phase. Backends with a miss journal record the miss
// separately so it survives a remount.
func buildTranscriptionRecord(q domain.Question, text string, correct bool) (domain.AnswerRecord, bool) {
	if q.Type.IsChoice() && !correct {
		return domain.AnswerRecord{}, false
	}
	outcome := domain.Outcome{
		Phase:   domain.PhaseTranscription,
		Boolean: !q.Type.IsChoice(),
		Correct: correct,
	}
	return domain.AnswerRecord{
		QuestionNumber: q.ID,
		AnswerState:    outcome.EncodeState(),
		UserAnswer:     text,
		AnsweredAt:     time.Now(),
	}, true
}

// advanceLocked moves to the next question; on exhaustion it marks the
// phase done and returns the final remediation queue for the completion
// callback, which the caller fires outside the lock.
func (t *Transcription) advanceLocked() (finished bool, queue []domain.Question) {
	t.idx++
	t.state = StateIdle
	t.rawTranscript = ""
	t.capturer = nil

	if t.idx < len(t.queue) {
		return false, nil
	}
	t.done = true
	queue = make([]domain.Question, len(t.remediation))
	copy(queue, t.remediation)
	return true, queue
}
