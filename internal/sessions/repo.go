package sessions

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/quizlink-backend/internal/repo"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("quiz session not found")

// Repository is the read side of the quiz session store.
type Repository interface {
	ListSessions(ctx context.Context, shopID string, window types.TimeRange) ([]models.QuizSession, error)
	ListSessionsCompleted(ctx context.Context, shopID string, window types.TimeRange) ([]models.QuizSession, error)
	ListAnswerSelections(ctx context.Context, sessionID string) ([]models.AnswerSelection, error)
	FindSession(ctx context.Context, sessionID string) (*models.QuizSession, error)
	ListShops(ctx context.Context) ([]string, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a session repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

// ListSessions returns the shop's sessions whose started_at falls inside window.
func (r *repository) ListSessions(ctx context.Context, shopID string, window types.TimeRange) ([]models.QuizSession, error) {
	var rows []models.QuizSession
	err := r.DB(ctx).
		Where("shop_id = ? AND started_at >= ? AND started_at < ?", shopID, window.Start.UTC(), window.End.UTC()).
		Order("started_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListSessionsCompleted returns the shop's sessions whose completed_at falls inside window.
func (r *repository) ListSessionsCompleted(ctx context.Context, shopID string, window types.TimeRange) ([]models.QuizSession, error) {
	var rows []models.QuizSession
	err := r.DB(ctx).
		Where("shop_id = ? AND completed = ? AND completed_at >= ? AND completed_at < ?", shopID, true, window.Start.UTC(), window.End.UTC()).
		Order("started_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListAnswerSelections(ctx context.Context, sessionID string) ([]models.AnswerSelection, error) {
	var rows []models.AnswerSelection
	err := r.DB(ctx).
		Where("session_id = ?", sessionID).
		Order("selected_at ASC").
		Order("question_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindSession(ctx context.Context, sessionID string) (*models.QuizSession, error) {
	var row models.QuizSession
	err := r.DB(ctx).Where("id = ?", sessionID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &row, nil
}

// ListShops returns every shop that has recorded at least one session.
func (r *repository) ListShops(ctx context.Context) ([]string, error) {
	var shops []string
	err := r.DB(ctx).
		Model(&models.QuizSession{}).
		Distinct("shop_id").
		Order("shop_id ASC").
		Pluck("shop_id", &shops).Error
	if err != nil {
		return nil, err
	}
	return shops, nil
}
