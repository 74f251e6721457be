package attribution

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

type sessionReader interface {
	ListSessions(ctx context.Context, shopID string, window types.TimeRange) ([]models.QuizSession, error)
}

type orderReader interface {
	ListOrders(ctx context.Context, shopID string, window types.TimeRange) ([]models.StoreOrder, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the attribution service.
type ServiceParams struct {
	Logger     *logger.Logger
	Sessions   sessionReader
	Orders     orderReader
	Repository Repository
	DB         txRunner
	Policy     Policy
}

// Service fetches a window of orders and sessions, matches them and stores the verdicts.
type Service struct {
	logg     *logger.Logger
	sessions sessionReader
	orders   orderReader
	repo     Repository
	db       txRunner
	policy   Policy
}

// Result is the outcome of one attribution pass.
type Result struct {
	Window       types.TimeRange
	Attributions []models.OrderAttribution
	// Sessions is the validated snapshot the matcher consumed.
	Sessions []models.QuizSession
	Dropped  int
}

// CountByTier tallies attributions per tier.
func (r *Result) CountByTier() map[enums.AttributionTier]int {
	counts := map[enums.AttributionTier]int{}
	if r == nil {
		return counts
	}
	for _, attribution := range r.Attributions {
		counts[attribution.Tier]++
	}
	return counts
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session reader is required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader is required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("attribution repository is required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	return &Service{
		logg:     params.Logger,
		sessions: params.Sessions,
		orders:   params.Orders,
		repo:     params.Repository,
		db:       params.DB,
		policy:   params.Policy.normalized(),
	}, nil
}

// Policy returns the effective matching policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// Attribute matches every order of shopID created in [start, end).
func (s *Service) Attribute(ctx context.Context, shopID string, start, end time.Time) (*Result, error) {
	if shopID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	window, err := s.validateWindow(start, end)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"shop_id":      shopID,
		"window_start": window.Start,
		"window_end":   window.End,
	})

	sessionWindow := types.NewTimeRange(window.Start.Add(-s.policy.MaxAttributionDelay), window.End)
	rawSessions, err := s.sessions.ListSessions(ctx, shopID, sessionWindow)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "fetch quiz sessions")
	}
	orders, err := s.orders.ListOrders(ctx, shopID, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstreamUnavailable, err, "fetch orders")
	}

	sessions, dropped := s.validSessions(ctx, rawSessions)

	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	preclaimed, err := s.repo.ClaimedSessionsOutside(ctx, shopID, ids, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load claimed sessions")
	}

	attributions := Match(orders, sessions, preclaimed, s.policy, window.End)

	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.UpsertAttributions(ctx, tx, attributions)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist attributions")
	}

	result := &Result{
		Window:       window,
		Attributions: attributions,
		Sessions:     sessions,
		Dropped:      dropped,
	}
	counts := result.CountByTier()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"orders":         len(orders),
		"sessions":       len(sessions),
		"preclaimed":     len(preclaimed),
		"exact_customer": counts[enums.AttributionTierExactCustomer],
		"time_proximity": counts[enums.AttributionTierTimeProximity],
		"unattributed":   counts[enums.AttributionTierNone],
	}), "attribution pass complete")
	return result, nil
}

func (s *Service) validateWindow(start, end time.Time) (types.TimeRange, error) {
	window := types.NewTimeRange(start, end)
	if !window.Start.Before(window.End) {
		return window, pkgerrors.New(pkgerrors.CodeInvalidWindow, "window start must precede end").
			WithDetails(map[string]any{"start": window.Start, "end": window.End})
	}
	if window.Duration() > s.policy.MaxWindow {
		return window, pkgerrors.New(pkgerrors.CodeInvalidWindow, "window exceeds maximum span").
			WithDetails(map[string]any{"span": window.Duration().String(), "max": s.policy.MaxWindow.String()})
	}
	return window, nil
}

func (s *Service) validSessions(ctx context.Context, sessions []models.QuizSession) ([]models.QuizSession, int) {
	valid := make([]models.QuizSession, 0, len(sessions))
	dropped := 0
	for _, session := range sessions {
		if err := session.Validate(); err != nil {
			dropped++
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"session_id": session.ID,
				"reason":     err.Error(),
			}), "dropping malformed quiz session")
			continue
		}
		valid = append(valid, session)
	}
	return valid, dropped
}
