package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AggregatorParams wires the aggregator.
type AggregatorParams struct {
	Logger     *logger.Logger
	Repository Repository
	DB         txRunner
	Location   *time.Location
}

// Aggregator folds attributions and session lifecycle facts into the daily rollup.
type Aggregator struct {
	logg     *logger.Logger
	repo     Repository
	db       txRunner
	location *time.Location
}

func NewAggregator(params AggregatorParams) (*Aggregator, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("analytics repository is required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{
		logg:     params.Logger,
		repo:     params.Repository,
		db:       params.DB,
		location: loc,
	}, nil
}

// ApplyAttributions applies the deltas implied by attributions and sessions.
//
// Facts already counted by an earlier call are skipped, so re-applying the
// same input changes nothing. Fact bookkeeping and rollup increments commit
// in one transaction.
func (a *Aggregator) ApplyAttributions(ctx context.Context, attributions []models.OrderAttribution, sessions []models.QuizSession) ([]AppliedDelta, error) {
	snapshot := make(map[string]*models.QuizSession, len(sessions))
	for i := range sessions {
		snapshot[sessions[i].ID] = &sessions[i]
	}
	if err := checkConsistency(attributions, snapshot); err != nil {
		return nil, err
	}

	ordered := make([]*models.QuizSession, 0, len(snapshot))
	for _, session := range snapshot {
		ordered = append(ordered, session)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var applied []AppliedDelta
	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		deltas := deltaSet{}
		for _, session := range ordered {
			if err := a.countSession(ctx, tx, session, deltas); err != nil {
				return err
			}
		}
		for i := range attributions {
			if err := a.countAttribution(ctx, tx, &attributions[i], snapshot, deltas); err != nil {
				return err
			}
		}
		applied = deltas.sorted()
		for _, entry := range applied {
			if err := a.repo.ApplySummaryDelta(ctx, tx, entry.Key, entry.Delta); err != nil {
				return fmt.Errorf("apply summary delta %s: %w", entry.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply analytics deltas")
	}

	a.logg.Info(a.logg.WithFields(ctx, map[string]any{
		"attributions":      len(attributions),
		"sessions":          len(sessions),
		"summaries_touched": len(applied),
	}), "analytics deltas applied")
	return applied, nil
}

func checkConsistency(attributions []models.OrderAttribution, snapshot map[string]*models.QuizSession) error {
	for _, attribution := range attributions {
		if !attribution.Tier.Matched() {
			continue
		}
		if attribution.SessionID == nil {
			return pkgerrors.New(pkgerrors.CodeInconsistentAttribution, "matched attribution has no session").
				WithDetails(map[string]any{"order_id": attribution.OrderID, "tier": attribution.Tier})
		}
		if _, ok := snapshot[*attribution.SessionID]; !ok {
			return pkgerrors.New(pkgerrors.CodeInconsistentAttribution, "attribution references session outside snapshot").
				WithDetails(map[string]any{"order_id": attribution.OrderID, "session_id": *attribution.SessionID})
		}
	}
	return nil
}

func (a *Aggregator) keyFor(session *models.QuizSession) SummaryKey {
	return SummaryKey{
		ShopID: session.ShopID,
		QuizID: session.QuizID,
		Date:   SummaryDate(session.StartedAt, a.location),
	}
}

func (a *Aggregator) countSession(ctx context.Context, tx *gorm.DB, session *models.QuizSession, deltas deltaSet) error {
	key := a.keyFor(session)
	started, err := a.repo.InsertSessionFact(ctx, tx, &models.AnalyticsSessionFact{
		SessionID: session.ID,
		Kind:      enums.SessionFactStarted,
		ShopID:    key.ShopID,
		QuizID:    key.QuizID,
		FactDate:  key.Date,
	})
	if err != nil {
		return fmt.Errorf("record session start %s: %w", session.ID, err)
	}
	if started {
		deltas.add(key, SummaryDelta{Sessions: 1})
	}

	if !session.Completed || session.CompletedAt == nil {
		return nil
	}
	completed, err := a.repo.InsertSessionFact(ctx, tx, &models.AnalyticsSessionFact{
		SessionID: session.ID,
		Kind:      enums.SessionFactCompleted,
		ShopID:    key.ShopID,
		QuizID:    key.QuizID,
		FactDate:  key.Date,
	})
	if err != nil {
		return fmt.Errorf("record session completion %s: %w", session.ID, err)
	}
	if completed {
		deltas.add(key, SummaryDelta{Completed: 1})
	}
	return nil
}

func (a *Aggregator) countAttribution(ctx context.Context, tx *gorm.DB, attribution *models.OrderAttribution, snapshot map[string]*models.QuizSession, deltas deltaSet) error {
	prior, err := a.repo.FindOrderFact(ctx, tx, attribution.OrderID)
	if err != nil {
		return fmt.Errorf("load order fact %s: %w", attribution.OrderID, err)
	}

	if !attribution.Tier.Matched() {
		if prior == nil {
			return nil
		}
		deltas.add(priorKey(prior), retract(prior))
		if err := a.repo.DeleteOrderFact(ctx, tx, attribution.OrderID); err != nil {
			return fmt.Errorf("delete order fact %s: %w", attribution.OrderID, err)
		}
		return nil
	}

	session := snapshot[*attribution.SessionID]
	key := a.keyFor(session)
	revenue := attribution.OrderTotal
	if prior != nil && prior.SessionID == session.ID && priorKey(prior).Equal(key) && prior.Revenue.Equal(revenue) {
		return nil
	}
	if prior != nil {
		deltas.add(priorKey(prior), retract(prior))
	}
	deltas.add(key, SummaryDelta{AttributedOrders: 1, Revenue: revenue})

	fact := &models.AnalyticsOrderFact{
		OrderID:   attribution.OrderID,
		ShopID:    key.ShopID,
		QuizID:    key.QuizID,
		SessionID: session.ID,
		FactDate:  key.Date,
		Revenue:   revenue,
		UpdatedAt: time.Now().UTC(),
	}
	if err := a.repo.SaveOrderFact(ctx, tx, fact); err != nil {
		return fmt.Errorf("save order fact %s: %w", attribution.OrderID, err)
	}
	return nil
}

func priorKey(fact *models.AnalyticsOrderFact) SummaryKey {
	return SummaryKey{ShopID: fact.ShopID, QuizID: fact.QuizID, Date: fact.FactDate.UTC()}
}

func retract(fact *models.AnalyticsOrderFact) SummaryDelta {
	return SummaryDelta{AttributedOrders: -1, Revenue: decimal.Zero.Sub(fact.Revenue)}
}
