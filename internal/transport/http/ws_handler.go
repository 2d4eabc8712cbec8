package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler drives a quiz-taking session over a websocket: the client
// connects with its access code and user id, receives the current session
// snapshot, and then exchanges answer, answers, submit, and clear messages
// against the same coordinator the REST API uses.
type WSHandler struct {
	sessions *app.SessionService
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionService) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires the connection into the session
// use cases. Messages are handled one at a time, so the snapshot the client
// holds is always consistent with its own writes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	accessCode := r.URL.Query().Get("accessCode")
	userID := r.URL.Query().Get("userId")
	if accessCode == "" || userID == "" {
		http.Error(w, "missing accessCode or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	snapshot, err := h.sessions.Snapshot(r.Context(), accessCode, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: wsErrorMessage(err)}})
		return
	}
	if err := conn.WriteJSON(outboundMessage[domain.SessionSnapshot]{Type: "session", Payload: snapshot}); err != nil {
		log.Printf("ws write error: %v", err)
		return
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		var reply any
		switch inbound.Type {
		case "answer":
			reply = h.handleAnswer(r, accessCode, userID, inbound.Payload)
		case "answers":
			answers, err := h.sessions.ListAnswers(r.Context(), accessCode, userID)
			if err != nil {
				reply = errorMessage(err)
			} else {
				reply = outboundMessage[[]domain.QuestionAnswer]{Type: "answers", Payload: answers}
			}
		case "submit":
			score, err := h.sessions.Finalize(r.Context(), accessCode, userID)
			if err != nil {
				reply = errorMessage(err)
			} else {
				reply = outboundMessage[domain.QuizScore]{Type: "result", Payload: score}
			}
		case "clear":
			if err := h.sessions.ClearSession(r.Context(), accessCode, userID); err != nil {
				reply = errorMessage(err)
			} else {
				reply = outboundMessage[errorPayload]{Type: "cleared", Payload: errorPayload{Message: "session cleared"}}
			}
		default:
			reply = outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}

		if err := conn.WriteJSON(reply); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}

func (h *WSHandler) handleAnswer(r *http.Request, accessCode, userID string, payload json.RawMessage) any {
	var answer domain.QuestionAnswer
	if err := json.Unmarshal(payload, &answer); err != nil {
		return outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
	}
	if err := h.sessions.SaveAnswer(r.Context(), accessCode, userID, answer); err != nil {
		return errorMessage(err)
	}
	return outboundMessage[domain.QuestionAnswer]{Type: "saved", Payload: answer}
}

func errorMessage(err error) outboundMessage[errorPayload] {
	return outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: wsErrorMessage(err)}}
}

// wsErrorMessage keeps internal failures out of client-facing frames.
func wsErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrInvalidAnswer):
		return err.Error()
	default:
		log.Printf("internal error: %v", err)
		return "internal error"
	}
}
