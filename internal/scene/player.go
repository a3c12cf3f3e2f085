package scene

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrGestureRequired is returned by an AudioSource whose environment blocks
// playback until an explicit user action has occurred. It is not a failure;
// the player surfaces it as the NeedsGesture state with a retry path.
var ErrGestureRequired = errors.New("playback requires a user gesture")

// AudioSource abstracts the audio element backing a scene. Implementations
// report playback progress by calling the player's OnTimeUpdate and OnEnded
// from whatever goroutine drives them; the player tolerates irregular
// update intervals.
type AudioSource interface {
	// Play starts playback from the beginning. Returns ErrGestureRequired
	// when the environment blocks unattended playback.
	Play(ctx context.Context) error
	// Stop halts playback and discards position. Safe to call when idle.
	Stop()
}

// State is the player's lifecycle state.
type State int

const (
	// StateIdle means no run has started yet, or the player was reset.
	StateIdle State = iota
	// StatePlaying means a run is in progress.
	StatePlaying
	// StateNeedsGesture means playback was blocked pending a user action.
	StateNeedsGesture
	// StateDone means the current run finished and the completion
	// callback has fired.
	StateDone
)

// Player applies a Timeline's events against an AudioSource's reported
// playback position. Each question or scene instance owns exactly one
// Player; transitions tear it down and build a new one.
type Player struct {
	mu       sync.Mutex
	timeline Timeline
	audio    AudioSource

	state    State
	applied  int      // events [0, applied) have been applied this run
	display  []string // current display set, in add order
	fallback string   // insert image repopulating an empty set

	onComplete func()
	completed  bool // completion fired for the current run
}

// NewPlayer builds a player for a normalized timeline. onComplete fires
// exactly once per run, when the audio ends.
func NewPlayer(tl Timeline, audio AudioSource, onComplete func()) *Player {
	tl.Normalize()
	return &Player{timeline: tl, audio: audio, onComplete: onComplete}
}

// Start begins a run. A run already in progress is stopped cleanly first,
// so Start doubles as restart and is safe to call mid-playback. Events at
// time <= 0 are applied before Start returns, ahead of the first audio
// update.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StatePlaying {
		p.audio.Stop()
	}
	p.resetLocked()
	p.applyDueLocked(0)
	p.mu.Unlock()

	err := p.audio.Play(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrGestureRequired) {
			p.state = StateNeedsGesture
			slog.Info("scene playback blocked pending user gesture", "audio", p.timeline.Audio)
			return nil
		}
		p.state = StateIdle
		return err
	}
	p.state = StatePlaying
	return nil
}

// Retry attempts playback again after a NeedsGesture state, in response to
// an explicit user action. Calling it in any other state is a no-op.
func (p *Player) Retry(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateNeedsGesture {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.Start(ctx)
}

// Stop halts the current run without firing completion.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePlaying {
		p.audio.Stop()
	}
	p.state = StateIdle
}

// OnTimeUpdate applies every unapplied event whose time is <= t, in order,
// in one batch. A jump in reported playback time applies all intervening
// events; none are skipped under slow update rates.
func (p *Player) OnTimeUpdate(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return
	}
	p.applyDueLocked(t)
}

// OnEnded marks the run finished and fires the completion callback exactly
// once. Any events not yet applied (audio shorter than the timeline) are
// flushed first.
func (p *Player) OnEnded() {
	p.mu.Lock()
	if p.state != StatePlaying || p.completed {
		p.mu.Unlock()
		return
	}
	p.flushLocked()
	p.state = StateDone
	p.completed = true
	done := p.onComplete
	p.mu.Unlock()

	if done != nil {
		done()
	}
}

// Skip abandons the run and fires completion immediately, for the explicit
// skip/continue action.
func (p *Player) Skip() {
	p.mu.Lock()
	if p.completed {
		p.mu.Unlock()
		return
	}
	if p.state == StatePlaying {
		p.audio.Stop()
	}
	p.state = StateDone
	p.completed = true
	done := p.onComplete
	p.mu.Unlock()

	if done != nil {
		done()
	}
}

// State returns the current lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Display returns a copy of the current display set in add order.
func (p *Player) Display() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.display))
	copy(out, p.display)
	return out
}

// resetLocked restores the pre-playback state for a fresh run.
func (p *Player) resetLocked() {
	p.applied = 0
	p.display = nil
	p.fallback = ""
	p.completed = false
	p.state = StateIdle
}

func (p *Player) applyDueLocked(t float64) {
	for p.applied < len(p.timeline.Events) && p.timeline.Events[p.applied].At <= t {
		p.applyLocked(p.timeline.Events[p.applied])
		p.applied++
	}
}

func (p *Player) flushLocked() {
	for p.applied < len(p.timeline.Events) {
		p.applyLocked(p.timeline.Events[p.applied])
		p.applied++
	}
}

func (p *Player) applyLocked(ev Event) {
	switch ev.Type {
	case DisplayInsert:
		p.fallback = ev.Image
	case DisplayAdd:
		if !p.containsLocked(ev.Image) {
			p.display = append(p.display, ev.Image)
		}
	case DisplayRemove:
		p.removeLocked(ev.Image)
	case DisplayRemoveLastAndAdd:
		if n := len(p.display); n > 0 {
			p.display = p.display[:n-1]
		}
		p.display = append(p.display, ev.Image)
	case DisplayRemoveAllAndAdd:
		p.display = append(p.display[:0], ev.Image)
	default:
		slog.Warn("unknown scene display type", "type", string(ev.Type), "image", ev.Image)
	}

	// The insert image only seeds the set when it would otherwise be empty.
	if len(p.display) == 0 && p.fallback != "" {
		p.display = append(p.display, p.fallback)
	}
}

func (p *Player) containsLocked(image string) bool {
	for _, img := range p.display {
		if img == image {
			return true
		}
	}
	return false
}

func (p *Player) removeLocked(image string) {
	for i, img := range p.display {
		if img == image {
			p.display = append(p.display[:i], p.display[i+1:]...)
			return
		}
	}
}
