// Package capture abstracts the speech-to-text capability. Capture is an
// external asynchronous facility: starting and stopping are fire-and-forget
// requests and transcripts arrive via callback at arbitrary times, so
// consumers key results to the question that owned the capture rather than
// to the capture handle itself.
package capture

import (
	"context"
	"errors"
)

// ErrUnsupported is reported when no speech-capture capability exists in
// this environment. The transcription phase degrades to manual text entry.
var ErrUnsupported = errors.New("speech capture unsupported")

// Result is one finished capture: a raw transcript or an error.
type Result struct {
	Text string
	Err  error
}

// Capturer is one capture session owned by a single question instance.
// Implementations must deliver at most one Result per Start and must stop
// delivering after Stop.
type Capturer interface {
	// Start begins capturing; onResult is invoked once when capture ends,
	// possibly from another goroutine.
	Start(ctx context.Context, onResult func(Result)) error
	// Stop ends capture early. The pending result may still be delivered;
	// callers discard results for questions no longer active.
	Stop()
}

// Factory creates one Capturer per question instance, so capture resources
// never outlive the question that acquired them.
type Factory func() Capturer
