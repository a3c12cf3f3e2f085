package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mquintela/falatest/internal/domain"
)

// Remote is the backend talking to the sessions/answers REST API. Unlike
// the local store, its failures propagate: a caller must never mark a
// question answered unless the remote write was confirmed.
type Remote struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewRemote builds a remote backend for the API at baseURL. token, when
// non-empty, is sent as a bearer token on every request.
func NewRemote(baseURL, token string) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type sessionListItem struct {
	ID          int     `json:"id"`
	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at"`
}

type answerItem struct {
	CategoryID     int    `json:"category_id"`
	QuestionNumber int    `json:"question_number"`
	AnswerState    string `json:"answer_state"`
	UserAnswer     string `json:"user_answer"`
	AnsweredAt     string `json:"answered_at"`
}

// AcquireSession creates a brand-new session when fresh is set; otherwise
// it reuses the most recently started incomplete session, creating one only
// if none exists.
func (r *Remote) AcquireSession(ctx context.Context, fresh bool) (int, error) {
	if !fresh {
		var sessions []sessionListItem
		if err := r.do(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
			return 0, fmt.Errorf("list sessions: %w", err)
		}
		// The API returns sessions ordered most recent first.
		for _, s := range sessions {
			if s.CompletedAt == nil {
				slog.Info("reusing incomplete session", "session_id", s.ID)
				return s.ID, nil
			}
		}
	}

	var created struct {
		SessionID int `json:"session_id"`
	}
	if err := r.do(ctx, http.MethodPost, "/sessions", nil, &created); err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	if created.SessionID == 0 {
		return 0, fmt.Errorf("create session: backend returned no session id")
	}
	slog.Info("created session", "session_id", created.SessionID)
	return created.SessionID, nil
}

// AnsweredIDs derives the answered set from persisted rows: row presence is
// the evidence of "already answered", never the stored text or state.
func (r *Remote) AnsweredIDs(ctx context.Context, scope Scope) (map[int]bool, error) {
	recs, err := r.QueryAnswers(ctx, scope)
	if err != nil {
		return nil, err
	}
	ids := make(map[int]bool, len(recs))
	for _, rec := range recs {
		ids[rec.QuestionNumber] = true
	}
	return ids, nil
}

// RecordAnswer submits one answer row. The endpoint is an upsert keyed on
// (session, category, question number), so a repeated submit replaces the
// row instead of duplicating it.
func (r *Remote) RecordAnswer(ctx context.Context, scope Scope, rec domain.AnswerRecord) error {
	body := map[string]any{
		"category_id":     scope.Category.ID,
		"question_number": rec.QuestionNumber,
		"answer_state":    rec.AnswerState,
	}
	if rec.UserAnswer != "" {
		body["user_answer"] = rec.UserAnswer
	}
	path := fmt.Sprintf("/sessions/%d/answers", scope.Session)
	if err := r.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// QueryAnswers fetches all rows for the session and filters them to the
// scope's category; the backend returns cross-category rows.
func (r *Remote) QueryAnswers(ctx context.Context, scope Scope) ([]domain.AnswerRecord, error) {
	var items []answerItem
	path := fmt.Sprintf("/sessions/%d/answers", scope.Session)
	if err := r.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}

	var recs []domain.AnswerRecord
	for _, it := range items {
		if it.CategoryID != scope.Category.ID {
			continue
		}
		recs = append(recs, domain.AnswerRecord{
			CategoryID:     it.CategoryID,
			QuestionNumber: it.QuestionNumber,
			AnswerState:    it.AnswerState,
			UserAnswer:     it.UserAnswer,
			AnsweredAt:     parseAPITime(it.AnsweredAt),
		})
	}
	return recs, nil
}

// CompleteCategory marks the category completed on the backend. "Already
// completed" is success; "no answers yet" surfaces as ErrNoAnswers so the
// flow can seed a placeholder record and retry once.
func (r *Remote) CompleteCategory(ctx context.Context, scope Scope) error {
	path := fmt.Sprintf("/sessions/%d/categories/%d/complete", scope.Session, scope.Category.ID)
	err := r.do(ctx, http.MethodPatch, path, nil, nil)
	if err == nil {
		return nil
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch {
		case strings.Contains(apiErr.Message, "No answers"):
			return ErrNoAnswers
		case strings.Contains(apiErr.Message, "already completed"):
			slog.Info("category already completed", "category_id", scope.Category.ID)
			return nil
		}
	}
	return fmt.Errorf("complete category: %w", err)
}

// CorrectCategory marks the category corrected. Idempotent: "already
// corrected" is success.
func (r *Remote) CorrectCategory(ctx context.Context, scope Scope) error {
	path := fmt.Sprintf("/sessions/%d/categories/%d/correct", scope.Session, scope.Category.ID)
	err := r.do(ctx, http.MethodPatch, path, nil, nil)
	if err == nil {
		return nil
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "already corrected") {
		slog.Info("category already corrected", "category_id", scope.Category.ID)
		return nil
	}
	return fmt.Errorf("correct category: %w", err)
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (r *Remote) Close() error { return nil }

// apiError is a non-2xx response carrying the backend's message field.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (r *Remote) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(data, &msg)
		if resp.StatusCode == http.StatusNotFound && strings.Contains(msg.Message, "Session not found") {
			return ErrSessionNotFound
		}
		return &apiError{Status: resp.StatusCode, Message: msg.Message}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// parseAPITime parses the backend's ISO 8601 timestamps, with or without a
// timezone suffix. Unparseable values come back zero rather than failing a
// whole answer query.
func parseAPITime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
