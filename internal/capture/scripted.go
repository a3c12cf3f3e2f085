package capture

import (
	"context"
	"sync"
)

// Scripted is a Capturer fed programmatically, used by tests and by the
// terminal runner (where "speech" is typed). It delivers whatever Emit
// provides to the callback of the most recent Start.
type Scripted struct {
	mu       sync.Mutex
	onResult func(Result)
	stopped  bool
}

// NewScripted creates an idle scripted capturer.
func NewScripted() *Scripted {
	return &Scripted{}
}

// Start arms the capturer.
func (s *Scripted) Start(_ context.Context, onResult func(Result)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = onResult
	s.stopped = false
	return nil
}

// Stop disarms the capturer; a later Emit is dropped.
func (s *Scripted) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

// Emit delivers one capture result to the armed callback. Emitting while
// stopped or before Start is a no-op, mirroring a capture backend that
// finished after the consumer lost interest.
func (s *Scripted) Emit(res Result) {
	s.mu.Lock()
	cb := s.onResult
	stopped := s.stopped
	s.onResult = nil
	s.mu.Unlock()

	if cb != nil && !stopped {
		cb(res)
	}
}

// Unsupported is a Capturer for environments without any speech facility.
type Unsupported struct{}

// Start always reports ErrUnsupported.
func (Unsupported) Start(context.Context, func(Result)) error { return ErrUnsupported }

// Stop is a no-op.
func (Unsupported) Stop() {}
