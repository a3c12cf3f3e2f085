package domain

import "fmt"

// Phase identifies which phase of the test produced an answer record.
type Phase int

const (
	// PhaseTranscription is the speech-capture phase.
	PhaseTranscription Phase = iota
	// PhaseRemediation is the forced-choice re-presentation phase.
	PhaseRemediation
)

// String returns the phase name for logging.
func (p Phase) String() string {
	if p == PhaseRemediation {
		return "remediation"
	}
	return "transcription"
}

// Outcome is the structured result of finalizing one question. The legacy
// backend schema collapses this into a single answer_state string; Outcome
// keeps phase and correctness apart and converts at the wire boundary.
type Outcome struct {
	Phase   Phase
	Boolean bool // true for scene/open questions, which score as booleans
	Correct bool
}

// Legacy answer_state values understood by the backend. This is a closed
// enumeration; the write endpoint rejects anything else.
const (
	stateChoiceCorrect        = "1"
	stateRemediationCorrect   = "2"
	stateRemediationIncorrect = "3"
	stateBooleanTrue          = "true"
	stateBooleanFalse         = "false"
)

// EncodeState converts an Outcome to its legacy answer_state string.
func (o Outcome) EncodeState() string {
	switch {
	case o.Boolean && o.Correct:
		return stateBooleanTrue
	case o.Boolean:
		return stateBooleanFalse
	case o.Phase == PhaseRemediation && o.Correct:
		return stateRemediationCorrect
	case o.Phase == PhaseRemediation:
		return stateRemediationIncorrect
	case o.Correct:
		return stateChoiceCorrect
	default:
		// The enumeration has no code for a transcription-phase choice
		// miss: those questions go to the remediation queue and get their
		// definitive row there. Phase-keyed backends journal the miss
		// itself via MissState; map to the same code should one ever
		// reach the wire.
		return stateRemediationIncorrect
	}
}

// MissState is the answer_state code journaled for a transcription-phase
// choice miss. It reuses the remediation-incorrect value; legitimate
// transcription-phase rows never carry it, so within a phase-keyed scope
// it unambiguously marks a pending remediation.
func MissState() string { return stateRemediationIncorrect }

// ParseState converts a legacy answer_state string back to an Outcome.
// "3" is ambiguous between phases and parses as a remediation miss.
func ParseState(s string) (Outcome, error) {
	switch s {
	case stateChoiceCorrect:
		return Outcome{Phase: PhaseTranscription, Correct: true}, nil
	case stateRemediationCorrect:
		return Outcome{Phase: PhaseRemediation, Correct: true}, nil
	case stateRemediationIncorrect:
		return Outcome{Phase: PhaseRemediation, Correct: false}, nil
	case stateBooleanTrue:
		return Outcome{Phase: PhaseTranscription, Boolean: true, Correct: true}, nil
	case stateBooleanFalse:
		return Outcome{Phase: PhaseTranscription, Boolean: true, Correct: false}, nil
	default:
		return Outcome{}, fmt.Errorf("unknown answer_state %q", s)
	}
}

// ValidState reports whether s is one of the five legacy answer_state values.
func ValidState(s string) bool {
	_, err := ParseState(s)
	return err == nil
}
