// Package domain contains core domain types for the test battery.
package domain

import "github.com/mquintela/falatest/internal/scene"

// QuestionType identifies one of the four fixed question kinds in the
// protocol. The numeric values come from the question-set config files
// and must not be renumbered.
type QuestionType int

const (
	// TypeChoice is a multiple-choice question with a single prompt/audio pair.
	TypeChoice QuestionType = 1
	// TypeDualChoice is a multiple-choice question with two prompt/audio pairs.
	TypeDualChoice QuestionType = 2
	// TypeScene plays a timed scene and asks for a spoken description.
	TypeScene QuestionType = 3
	// TypeOpen shows a single stimulus image and asks for open transcription.
	TypeOpen QuestionType = 4
)

// Valid reports whether t is one of the four known question types.
func (t QuestionType) Valid() bool {
	return t >= TypeChoice && t <= TypeOpen
}

// IsChoice reports whether questions of this type carry selectable answer
// options. Only choice-type questions are eligible for the remediation
// phase; scene and open questions are scored as booleans and never
// remediated.
func (t QuestionType) IsChoice() bool {
	return t == TypeChoice || t == TypeDualChoice
}

// Option is one selectable answer for a choice-type question. Options are
// immutable once loaded; display order is randomized per rendering, never
// persisted.
type Option struct {
	ID        int    `json:"id"`
	Correct   bool   `json:"correct"`
	Label     string `json:"label"`
	ImagePath string `json:"image"`
}

// Question is one evaluable unit of the test. The variant payload depends
// on Type: choice types carry Options, scene questions carry a scene config
// reference, open questions carry a single stimulus image.
type Question struct {
	ID          int          `json:"id"`
	Type        QuestionType `json:"type"`
	PromptText  string       `json:"prompt"`
	PromptAudio string       `json:"audio"`

	// Second prompt/audio pair, TypeDualChoice only.
	PromptText2  string `json:"prompt2,omitempty"`
	PromptAudio2 string `json:"audio2,omitempty"`

	// Accepted answers in canonical (normalized) form.
	Accepted []string `json:"accepted"`

	// Options, choice types only.
	Options []Option `json:"options,omitempty"`

	// ImagePath, TypeOpen only.
	ImagePath string `json:"image,omitempty"`

	// Scene, TypeScene only: the question's embedded scene timeline.
	Scene *scene.Timeline `json:"scene,omitempty"`
}

// CorrectOption returns the option marked correct, or nil for questions
// without options.
func (q *Question) CorrectOption() *Option {
	for i := range q.Options {
		if q.Options[i].Correct {
			return &q.Options[i]
		}
	}
	return nil
}
