package apiserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mquintela/falatest/internal/domain"
)

// Handler serves the sessions/answers API.
type Handler struct {
	store *Store
}

// NewHandler creates a handler over the given store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Router builds the chi router with all API routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Get("/", h.listSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Patch("/complete", h.completeSession)
			r.Post("/answers", h.addOrUpdateAnswer)
			r.Get("/answers", h.listAnswers)
			r.Get("/categories", h.listCategories)
			r.Patch("/categories/{categoryID}/complete", h.completeCategory)
			r.Patch("/categories/{categoryID}/correct", h.correctCategory)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func message(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func isoTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return isoTime(*t)
}

// sessionFromURL resolves the {sessionID} route parameter; a missing
// session has already been reported when it returns ok == false.
func (h *Handler) sessionFromURL(w http.ResponseWriter, r *http.Request) (domain.Session, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "sessionID"))
	if err != nil {
		message(w, http.StatusNotFound, "Session not found")
		return domain.Session{}, false
	}
	sess, err := h.store.GetSession(r.Context(), id)
	if errors.Is(err, errNotFound) {
		message(w, http.StatusNotFound, "Session not found")
		return domain.Session{}, false
	}
	if err != nil {
		slog.Error("get session failed", "session_id", id, "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return domain.Session{}, false
	}
	return sess, true
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.CreateSession(r.Context())
	if err != nil {
		slog.Error("create session failed", "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Session created",
		"session_id": sess.ID,
		"started_at": isoTime(sess.StartedAt),
	})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, map[string]any{
			"id":           s.ID,
			"started_at":   isoTime(s.StartedAt),
			"completed_at": isoTimePtr(s.CompletedAt),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromURL(w, r)
	if !ok {
		return
	}
	answers, err := h.store.ListAnswers(r.Context(), sess.ID)
	if err != nil {
		slog.Error("list answers failed", "session_id", sess.ID, "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            sess.ID,
		"started_at":    isoTime(sess.StartedAt),
		"completed_at":  isoTimePtr(sess.CompletedAt),
		"answers_count": len(answers),
	})
}

func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromURL(w, r)
	if !ok {
		return
	}
	if sess.Completed() {
		message(w, http.StatusBadRequest, "Session already completed")
		return
	}
	if err := h.store.CompleteSession(r.Context(), sess.ID); err != nil {
		slog.Error("complete session failed", "session_id", sess.ID, "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	message(w, http.StatusOK, "Session completed")
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromURL(w, r)
	if !ok {
		return
	}
	cats, err := h.store.ListSessionCategories(r.Context(), sess.ID)
	if err != nil {
		slog.Error("list session categories failed", "session_id", sess.ID, "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	out := make([]map[string]any, 0, len(cats))
	for _, c := range cats {
		out = append(out, map[string]any{
			"id":             c.CategoryID,
			"name":           c.Name,
			"question_count": c.QuestionCount,
			"started_at":     isoTimePtr(c.StartedAt),
			"completed_at":   isoTimePtr(c.CompletedAt),
			"was_corrected":  c.WasCorrected,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) completeCategory(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromURL(w, r)
	if !ok {
		return
	}
	categoryID, err := strconv.Atoi(chi.URLParam(r, "categoryID"))
	if err != nil {
		message(w, http.StatusNotFound, "Category not part of this session")
		return
	}
	sc, err := h.store.SessionCategory(r.Context(), sess.ID, categoryID)
	if errors.Is(err, errNotFound) {
		message(w, http.StatusNotFound, "Category not part of this session")
		return
	}
	if err != nil {
		slog.Error("get session category failed", "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}

	hasAnswers, err := h.store.HasAnswers(r.Context(), sess.ID, categoryID)
	if err != nil {
		slog.Error("count answers failed", "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if !hasAnswers {
		message(w, http.StatusBadRequest, "No answers for this category in this session")
		return
	}
	if sc.CompletedAt != nil {
		message(w, http.StatusBadRequest, "Category already completed")
		return
	}

	if err := h.store.CompleteCategory(r.Context(), sess.ID, categoryID); err != nil {
		slog.Error("complete category failed", "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Category completed",
		"category_id": categoryID,
	})
}

func (h *Handler) correctCategory(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromURL(w, r)
	if !ok {
		return
	}
	categoryID, err := strconv.Atoi(chi.URLParam(r, "categoryID"))
	if err != nil {
		message(w, http.StatusNotFound, "Category not part of this session")
		return
	}
	sc, err := h.store.SessionCategory(r.Context(), sess.ID, categoryID)
	if errors.Is(err, errNotFound) {
		message(w, http.StatusNotFound, "Category not part of this session")
		return
	}
	if err != nil {
		slog.Error("get session category failed", "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if sc.WasCorrected {
		message(w, http.StatusBadRequest, "Category already corrected")
		return
	}

	if err := h.store.CorrectCategory(r.Context(), sess.ID, categoryID); err != nil {
		slog.Error("correct category failed", "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Category corrected",
		"category_id":   categoryID,
		"was_corrected": true,
	})
}

type answerRequest struct {
	CategoryID     *int    `json:"category_id"`
	QuestionNumber *int    `json:"question_number"`
	AnswerState    *string `json:"answer_state"`
	UserAnswer     string  `json:"user_answer"`
}

func (h *Handler) addOrUpdateAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromURL(w, r)
	if !ok {
		return
	}
	if sess.Completed() {
		message(w, http.StatusBadRequest, "Session already completed")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.CategoryID == nil || req.QuestionNumber == nil || req.AnswerState == nil {
		message(w, http.StatusBadRequest, "Invalid or missing required fields")
		return
	}
	if !domain.ValidState(*req.AnswerState) {
		message(w, http.StatusBadRequest, "Invalid or missing required fields")
		return
	}

	sc, err := h.store.SessionCategory(r.Context(), sess.ID, *req.CategoryID)
	if errors.Is(err, errNotFound) {
		message(w, http.StatusBadRequest, "Category not part of this session")
		return
	}
	if err != nil {
		slog.Error("get session category failed", "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if *req.QuestionNumber < 1 || *req.QuestionNumber > sc.QuestionCount {
		message(w, http.StatusBadRequest, "Invalid question number")
		return
	}

	// First answer in a category marks it started.
	if sc.StartedAt == nil {
		if err := h.store.MarkCategoryStarted(r.Context(), sess.ID, *req.CategoryID); err != nil {
			slog.Warn("mark category started failed", "error", err)
		}
	}

	rec := domain.AnswerRecord{
		CategoryID:     *req.CategoryID,
		QuestionNumber: *req.QuestionNumber,
		AnswerState:    *req.AnswerState,
		UserAnswer:     req.UserAnswer,
	}
	if err := h.store.UpsertAnswer(r.Context(), sess.ID, rec); err != nil {
		slog.Error("upsert answer failed", "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	message(w, http.StatusOK, "Answer saved")
}

func (h *Handler) listAnswers(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFromURL(w, r)
	if !ok {
		return
	}
	answers, err := h.store.ListAnswers(r.Context(), sess.ID)
	if err != nil {
		slog.Error("list answers failed", "session_id", sess.ID, "error", err)
		message(w, http.StatusInternalServerError, "Internal error")
		return
	}
	out := make([]map[string]any, 0, len(answers))
	for _, a := range answers {
		out = append(out, map[string]any{
			"category_id":     a.CategoryID,
			"question_number": a.QuestionNumber,
			"answer_state":    a.AnswerState,
			"user_answer":     a.UserAnswer,
			"answered_at":     isoTime(a.AnsweredAt),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
