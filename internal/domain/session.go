package domain

import "time"

// Session represents one sitting of the overall test battery.
type Session struct {
	ID          int        `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether the session has been finalized.
func (s *Session) Completed() bool {
	return s.CompletedAt != nil
}

// Category is a static test category from the registry.
type Category struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	QuestionCount int    `json:"question_count"`
}

// SessionCategory is the per-session progress marker for one category.
// Transitions: uncompleted -> completed (requires at least one recorded
// answer) -> corrected. Marking corrected twice is a no-op.
type SessionCategory struct {
	CategoryID    int        `json:"id"`
	Name          string     `json:"name"`
	QuestionCount int        `json:"question_count"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	WasCorrected  bool       `json:"was_corrected"`
}

// AnswerRecord is one persisted answer row. Rows are unique per
// (scope, category, question number); a second write for the same triple
// replaces the first instead of duplicating it.
type AnswerRecord struct {
	CategoryID     int       `json:"category_id"`
	QuestionNumber int       `json:"question_number"`
	AnswerState    string    `json:"answer_state"`
	UserAnswer     string    `json:"user_answer,omitempty"`
	AnsweredAt     time.Time `json:"answered_at"`
}
