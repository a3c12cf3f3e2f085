// Package flow sequences one category sitting end to end: intro scene,
// transcription phase, an optional remediation round with its own intro
// scene, outro scene, and category finalization against the persistence
// backend.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mquintela/falatest/internal/capture"
	"github.com/mquintela/falatest/internal/domain"
	"github.com/mquintela/falatest/internal/phase"
	"github.com/mquintela/falatest/internal/questionset"
	"github.com/mquintela/falatest/internal/scene"
	"github.com/mquintela/falatest/internal/sceneconfig"
	"github.com/mquintela/falatest/internal/store"
)

// State is the flow controller's position in the sitting.
type State int

const (
	StateBoot State = iota
	StateIntroScene
	StateTranscription
	StateRemediationIntro
	StateRemediation
	StateOutroScene
	StateFinalizing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateBoot:
		return "boot"
	case StateIntroScene:
		return "intro_scene"
	case StateTranscription:
		return "transcription"
	case StateRemediationIntro:
		return "remediation_intro"
	case StateRemediation:
		return "remediation"
	case StateOutroScene:
		return "outro_scene"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// introThreshold is how long after a category completion the intro scene
// stays skippable on re-attempts.
const introThreshold = 4 * time.Hour

// Recency tracks when a category was last completed on this device. The
// intro-skip rule is device-local regardless of the answer backend.
type Recency interface {
	LastCompleted(ctx context.Context, categoryID int) (time.Time, bool)
	MarkCompletedNow(ctx context.Context, categoryID int)
	StartCategory(ctx context.Context, categoryID int)
}

// Options configures one sitting.
type Options struct {
	Gateway store.Gateway
	Recency Recency
	Capture capture.Factory

	Category domain.Category
	// Primary marks the distinguished entry category: it always starts a
	// brand-new session and always shows the intro scene.
	Primary bool

	QuestionSetPath string
	SceneConfigPath string

	// IntroThreshold overrides the 4-hour default; zero keeps the default.
	IntroThreshold time.Duration
}

// Controller is the top-level flow state machine. It is driven from a
// single goroutine by the front-end: Boot once, then advance through
// SceneDone and the phase controllers it exposes.
type Controller struct {
	opts      Options
	threshold time.Duration

	state   State
	lastErr error

	sessionID int
	questions []domain.Question
	scenes    sceneconfig.PhaseScenes

	transcription *phase.Transcription
	remediation   *phase.Remediation
	missed        []domain.Question
}

// New prepares a controller; nothing is loaded until Boot.
func New(opts Options) *Controller {
	threshold := opts.IntroThreshold
	if threshold <= 0 {
		threshold = introThreshold
	}
	return &Controller{opts: opts, threshold: threshold, state: StateBoot}
}

// State returns the current flow state.
func (c *Controller) State() State { return c.state }

// Err returns the error that put the flow into the terminal error state.
func (c *Controller) Err() error { return c.lastErr }

// SessionID returns the acquired remote session id, zero for the local
// backend.
func (c *Controller) SessionID() int { return c.sessionID }

// Transcription returns the active transcription controller, nil outside
// that state.
func (c *Controller) Transcription() *phase.Transcription { return c.transcription }

// Remediation returns the active remediation controller, nil outside that
// state.
func (c *Controller) Remediation() *phase.Remediation { return c.remediation }

// CurrentScene returns the timeline for the active scene state, nil when
// the state has no scene configured.
func (c *Controller) CurrentScene() *scene.Timeline {
	switch c.state {
	case StateIntroScene:
		return c.scenes.Intro
	case StateRemediationIntro:
		return c.scenes.RemediationIntro
	case StateOutroScene:
		return c.scenes.Outro
	default:
		return nil
	}
}

func (c *Controller) fail(err error) error {
	c.state = StateError
	c.lastErr = err
	slog.Error("flow entered error state", "category_id", c.opts.Category.ID, "error", err)
	return err
}

// Boot loads the question set and scene configs, acquires a session when
// the backend needs one, and decides whether the intro scene runs. Boot
// failures are terminal; there is no automatic retry.
func (c *Controller) Boot(ctx context.Context) error {
	if c.state != StateBoot {
		return fmt.Errorf("boot from state %s", c.state)
	}

	questions, err := c.loadQuestions()
	if err != nil {
		return c.fail(fmt.Errorf("load question set: %w", err))
	}
	c.questions = questions

	scenes, err := c.loadScenes()
	if err != nil {
		return c.fail(fmt.Errorf("load scene config: %w", err))
	}
	c.scenes = scenes

	// The primary category opens every sitting, so it always gets a fresh
	// session; other categories resume an incomplete one when present.
	c.sessionID, err = c.opts.Gateway.AcquireSession(ctx, c.opts.Primary)
	if err != nil {
		return c.fail(fmt.Errorf("acquire session: %w", err))
	}

	if c.opts.Recency != nil {
		c.opts.Recency.StartCategory(ctx, c.opts.Category.ID)
	}

	slog.Info("flow booted",
		"category", c.opts.Category.Name,
		"session_id", c.sessionID,
		"questions", len(c.questions))

	if c.showIntro(ctx) && c.scenes.Intro != nil {
		c.state = StateIntroScene
		return nil
	}
	return c.enterTranscription(ctx)
}

func (c *Controller) loadQuestions() ([]domain.Question, error) {
	questions, err := questionset.LoadFile(c.opts.QuestionSetPath)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("question set %s: no usable questions", c.opts.QuestionSetPath)
	}
	return questions, nil
}

func (c *Controller) loadScenes() (sceneconfig.PhaseScenes, error) {
	if c.opts.SceneConfigPath == "" {
		return sceneconfig.PhaseScenes{}, nil
	}
	data, err := os.ReadFile(c.opts.SceneConfigPath)
	if err != nil {
		return sceneconfig.PhaseScenes{}, err
	}
	return sceneconfig.ForCategory(data, c.opts.Category.Name)
}

// showIntro applies the recency rule: the primary category always shows
// the intro, others skip it within the threshold of their last completion.
func (c *Controller) showIntro(ctx context.Context) bool {
	if c.opts.Primary {
		return true
	}
	if c.opts.Recency == nil {
		return true
	}
	last, ok := c.opts.Recency.LastCompleted(ctx, c.opts.Category.ID)
	if !ok {
		return true
	}
	return time.Since(last) > c.threshold
}

// SceneDone advances past the active scene state. The front-end calls it
// from the scene player's completion callback or a skip action.
func (c *Controller) SceneDone(ctx context.Context) error {
	switch c.state {
	case StateIntroScene:
		return c.enterTranscription(ctx)
	case StateRemediationIntro:
		return c.enterRemediation(ctx)
	case StateOutroScene:
		return c.finalize(ctx)
	default:
		return fmt.Errorf("no scene active in state %s", c.state)
	}
}

func (c *Controller) enterTranscription(ctx context.Context) error {
	scope := c.scope(domain.PhaseTranscription)
	ctrl, err := phase.NewTranscription(ctx, c.opts.Gateway, scope, c.questions, c.opts.Capture, nil)
	if err != nil {
		return c.fail(fmt.Errorf("start transcription phase: %w", err))
	}
	c.transcription = ctrl
	c.state = StateTranscription
	if ctrl.Done() {
		return c.TranscriptionDone(ctx, ctrl.RemediationQueue())
	}
	return nil
}

// TranscriptionDone moves past the transcription phase with its
// accumulated misses. An empty queue skips remediation entirely.
func (c *Controller) TranscriptionDone(ctx context.Context, missed []domain.Question) error {
	if c.state != StateTranscription {
		return fmt.Errorf("transcription done in state %s", c.state)
	}
	c.transcription = nil
	c.missed = missed

	if len(missed) == 0 {
		return c.enterOutro(ctx)
	}
	if c.scenes.RemediationIntro != nil {
		c.state = StateRemediationIntro
		return nil
	}
	return c.enterRemediation(ctx)
}

func (c *Controller) enterRemediation(ctx context.Context) error {
	scope := c.scope(domain.PhaseRemediation)
	ctrl, err := phase.NewRemediation(ctx, c.opts.Gateway, scope, c.missed, nil)
	if err != nil {
		return c.fail(fmt.Errorf("start remediation phase: %w", err))
	}
	c.remediation = ctrl
	c.state = StateRemediation
	if ctrl.Done() {
		return c.RemediationDone(ctx)
	}
	return nil
}

// RemediationDone marks the category corrected and moves to the outro.
// "Already corrected" counts as success inside the gateway; any other
// failure is terminal, the flow never advances past an unconfirmed
// correction marker.
func (c *Controller) RemediationDone(ctx context.Context) error {
	if c.state != StateRemediation {
		return fmt.Errorf("remediation done in state %s", c.state)
	}
	c.remediation = nil

	if err := c.opts.Gateway.CorrectCategory(ctx, c.scope(domain.PhaseRemediation)); err != nil {
		return c.fail(fmt.Errorf("mark category corrected: %w", err))
	}
	return c.enterOutro(ctx)
}

func (c *Controller) enterOutro(ctx context.Context) error {
	if c.scenes.Outro != nil {
		c.state = StateOutroScene
		return nil
	}
	return c.finalize(ctx)
}

// finalize marks the category completed. A "no answers yet" rejection gets
// one automatic repair: seed a placeholder record and retry once. "Already
// completed" counts as success inside the gateway. Other failures are
// terminal.
func (c *Controller) finalize(ctx context.Context) error {
	c.state = StateFinalizing
	scope := c.scope(domain.PhaseTranscription)

	err := c.opts.Gateway.CompleteCategory(ctx, scope)
	if errors.Is(err, store.ErrNoAnswers) {
		slog.Warn("completing category with no answers, seeding placeholder",
			"category_id", c.opts.Category.ID)
		seed := domain.AnswerRecord{
			QuestionNumber: 1,
			AnswerState:    domain.Outcome{Phase: domain.PhaseTranscription, Boolean: true}.EncodeState(),
			AnsweredAt:     time.Now(),
		}
		if serr := c.opts.Gateway.RecordAnswer(ctx, scope, seed); serr != nil {
			return c.fail(fmt.Errorf("seed placeholder answer: %w", serr))
		}
		err = c.opts.Gateway.CompleteCategory(ctx, scope)
	}
	if err != nil {
		return c.fail(fmt.Errorf("complete category: %w", err))
	}

	if c.opts.Recency != nil {
		c.opts.Recency.MarkCompletedNow(ctx, c.opts.Category.ID)
	}
	c.state = StateDone
	slog.Info("sitting complete", "category", c.opts.Category.Name, "session_id", c.sessionID)
	return nil
}

func (c *Controller) scope(p domain.Phase) store.Scope {
	return store.Scope{Session: c.sessionID, Phase: p, Category: c.opts.Category}
}
