package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/quizlink-backend/api/responses"
	"github.com/angelmondragon/quizlink-backend/internal/sessions"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
)

// SessionReader loads a session and its recorded answers.
type SessionReader interface {
	FindSession(ctx context.Context, sessionID string) (*models.QuizSession, error)
	ListAnswerSelections(ctx context.Context, sessionID string) ([]models.AnswerSelection, error)
}

type answerDTO struct {
	QuestionID string    `json:"question_id"`
	AnswerID   string    `json:"answer_id"`
	SelectedAt time.Time `json:"selected_at"`
}

type sessionAnswersResponse struct {
	SessionID   string      `json:"session_id"`
	ShopID      string      `json:"shop_id"`
	QuizID      string      `json:"quiz_id"`
	StartedAt   time.Time   `json:"started_at"`
	Completed   bool        `json:"completed"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Answers     []answerDTO `json:"answers"`
}

// SessionAnswers returns the answers a session recorded, in selection order.
func SessionAnswers(reader SessionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session repository unavailable"))
			return
		}
		sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id is required"))
			return
		}

		session, err := reader.FindSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "session not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session"))
			return
		}

		selections, err := reader.ListAnswerSelections(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list answers"))
			return
		}

		resp := sessionAnswersResponse{
			SessionID:   session.ID,
			ShopID:      session.ShopID,
			QuizID:      session.QuizID,
			StartedAt:   session.StartedAt.UTC(),
			Completed:   session.Completed,
			CompletedAt: session.CompletedAt,
			Answers:     make([]answerDTO, 0, len(selections)),
		}
		for _, sel := range selections {
			resp.Answers = append(resp.Answers, answerDTO{
				QuestionID: sel.QuestionID,
				AnswerID:   sel.AnswerID,
				SelectedAt: sel.SelectedAt.UTC(),
			})
		}
		responses.WriteSuccess(w, resp)
	}
}
