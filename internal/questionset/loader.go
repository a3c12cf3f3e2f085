// Package questionset loads question-set config documents into domain
// questions. Parsing is tolerant: records failing validation are dropped
// with a warning instead of failing the whole load, and duplicate question
// ids are de-duplicated keeping the first occurrence.
package questionset

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mquintela/falatest/internal/domain"
	"github.com/mquintela/falatest/internal/scene"
	"github.com/mquintela/falatest/internal/transcript"
)

type rawAnswer struct {
	AnswerID  *int   `json:"answerId"`
	IsCorrect bool   `json:"isCorrect"`
	Label     string `json:"label"`
	ImagePath string `json:"imagePath"`
}

type rawQuestion struct {
	QuestionID          *int            `json:"questionId"`
	QuestionType        *int            `json:"questionType"`
	PromptText          string          `json:"promptText"`
	PromptAudioPath     string          `json:"promptAudioPath"`
	PromptText2         string          `json:"promptText2"`
	PromptAudioPath2    string          `json:"promptAudioPath2"`
	AcceptedTranscripts []string        `json:"acceptedTranscripts"`
	Answers             []rawAnswer     `json:"answers"`
	ImagePath           string          `json:"imagePath"`
	SceneConfig         json.RawMessage `json:"sceneConfig"`
}

// Load decodes a question-set document from r. A document that cannot be
// decoded at all is a fatal load error; individual invalid records are
// dropped silently per the config contract.
func Load(r io.Reader) ([]domain.Question, error) {
	var raws []rawQuestion
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode question set: %w", err)
	}

	seen := make(map[int]bool, len(raws))
	questions := make([]domain.Question, 0, len(raws))
	for i, raw := range raws {
		q, ok := convert(i, raw)
		if !ok {
			continue
		}
		if seen[q.ID] {
			slog.Warn("duplicate question id dropped", "question_id", q.ID)
			continue
		}
		seen[q.ID] = true
		questions = append(questions, q)
	}
	return questions, nil
}

// LoadFile loads a question-set document from disk.
func LoadFile(path string) ([]domain.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question set: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// convert validates one raw record and maps it to a domain question.
func convert(index int, raw rawQuestion) (domain.Question, bool) {
	if raw.QuestionID == nil || raw.QuestionType == nil {
		slog.Warn("question record missing id or type, dropped", "index", index)
		return domain.Question{}, false
	}
	qt := domain.QuestionType(*raw.QuestionType)
	if !qt.Valid() {
		slog.Warn("question record has unknown type, dropped", "question_id", *raw.QuestionID, "type", *raw.QuestionType)
		return domain.Question{}, false
	}

	q := domain.Question{
		ID:           *raw.QuestionID,
		Type:         qt,
		PromptText:   raw.PromptText,
		PromptAudio:  raw.PromptAudioPath,
		PromptText2:  raw.PromptText2,
		PromptAudio2: raw.PromptAudioPath2,
		ImagePath:    raw.ImagePath,
	}

	// Accepted answers are stored in canonical form so matching is a plain
	// string comparison.
	for _, a := range raw.AcceptedTranscripts {
		if n := transcript.Normalize(a); n != "" {
			q.Accepted = append(q.Accepted, n)
		}
	}

	if qt.IsChoice() {
		correct := 0
		for i, ra := range raw.Answers {
			id := i + 1
			if ra.AnswerID != nil {
				id = *ra.AnswerID
			}
			if ra.IsCorrect {
				correct++
			}
			q.Options = append(q.Options, domain.Option{
				ID:        id,
				Correct:   ra.IsCorrect,
				Label:     ra.Label,
				ImagePath: ra.ImagePath,
			})
		}
		if correct != 1 {
			slog.Warn("choice question without exactly one correct option, dropped",
				"question_id", q.ID, "correct_count", correct)
			return domain.Question{}, false
		}
	}

	if qt == domain.TypeScene {
		if len(raw.SceneConfig) == 0 {
			slog.Warn("scene question without scene config, dropped", "question_id", q.ID)
			return domain.Question{}, false
		}
		tl, err := scene.ParseTimeline(raw.SceneConfig)
		if err != nil {
			slog.Warn("scene question with invalid scene config, dropped", "question_id", q.ID, "error", err)
			return domain.Question{}, false
		}
		q.Scene = &tl
	}

	return q, true
}
