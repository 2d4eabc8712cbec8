package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// Handler exposes the quiz-taking and authoring use cases over REST.
type Handler struct {
	sessions  *app.SessionService
	authoring *app.AuthoringService
}

func NewHandler(sessions *app.SessionService, authoring *app.AuthoringService) *Handler {
	return &Handler{sessions: sessions, authoring: authoring}
}

// Register mounts the API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/quizzes/{accessCode}", h.getQuiz)
	mux.HandleFunc("POST /api/quizzes", h.createOrUpdateQuiz)
	mux.HandleFunc("DELETE /api/quizzes/{quizID}", h.deleteQuiz)
	mux.HandleFunc("POST /api/quizzes/{accessCode}/answers", h.saveAnswer)
	mux.HandleFunc("GET /api/quizzes/{accessCode}/answers", h.listAnswers)
	mux.HandleFunc("GET /api/quizzes/{accessCode}/session", h.getSession)
	mux.HandleFunc("POST /api/quizzes/{accessCode}/submit", h.submit)
	mux.HandleFunc("DELETE /api/quizzes/{accessCode}/session", h.clearSession)
}

// quizView is the taker-facing shape of a quiz: option correctness and
// canonical answers are stripped.
type quizView struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	AccessCode  string         `json:"accessCode"`
	CreatedAt   time.Time      `json:"createdAt"`
	Questions   []questionView `json:"questions"`
}

type questionView struct {
	ID      int64               `json:"id"`
	Text    string              `json:"text"`
	Type    domain.QuestionType `json:"type"`
	Order   int                 `json:"order"`
	Options []optionView        `json:"options,omitempty"`
}

type optionView struct {
	ID    int64  `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

func toQuizView(quiz domain.Quiz) quizView {
	view := quizView{
		ID:          quiz.ID,
		Title:       quiz.Title,
		Description: quiz.Description,
		AccessCode:  quiz.AccessCode,
		CreatedAt:   quiz.CreatedAt,
		Questions:   make([]questionView, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		qv := questionView{ID: q.ID, Text: q.Text, Type: q.Type, Order: q.Order}
		if q.Type == domain.QuestionMultipleChoice {
			qv.Options = make([]optionView, 0, len(q.Options))
			for _, opt := range q.Options {
				qv.Options = append(qv.Options, optionView{ID: opt.ID, Text: opt.Text, Order: opt.Order})
			}
		}
		view.Questions = append(view.Questions, qv)
	}
	return view
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.sessions.GetQuiz(r.Context(), r.PathValue("accessCode"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuizView(quiz))
}

func (h *Handler) createOrUpdateQuiz(w http.ResponseWriter, r *http.Request) {
	var draft domain.QuizDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid quiz payload")
		return
	}

	if raw := r.URL.Query().Get("quizId"); raw != "" {
		quizID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid quizId")
			return
		}
		quiz, err := h.authoring.UpdateQuiz(r.Context(), quizID, draft)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toQuizView(quiz))
		return
	}

	quiz, err := h.authoring.CreateQuiz(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuizView(quiz))
}

func (h *Handler) deleteQuiz(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseInt(r.PathValue("quizID"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid quiz id")
		return
	}
	if err := h.authoring.DeleteQuiz(r.Context(), quizID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) saveAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var answer domain.QuestionAnswer
	if err := json.NewDecoder(r.Body).Decode(&answer); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid answer payload")
		return
	}

	if err := h.sessions.SaveAnswer(r.Context(), r.PathValue("accessCode"), userID, answer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "answer saved"})
}

func (h *Handler) listAnswers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	answers, err := h.sessions.ListAnswers(r.Context(), r.PathValue("accessCode"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answers)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.sessions.Snapshot(r.Context(), r.PathValue("accessCode"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	score, err := h.sessions.Finalize(r.Context(), r.PathValue("accessCode"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.sessions.ClearSession(r.Context(), r.PathValue("accessCode"), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session cleared"})
}

// requireUserID rejects requests without a userId before they reach the core.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeMessage(w, http.StatusBadRequest, "userId is required")
		return "", false
	}
	return userID, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidAnswer), errors.Is(err, domain.ErrInvalidQuiz):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
