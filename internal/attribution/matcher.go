package attribution

import (
	"sort"
	"time"

	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
)

// Match attributes every order to at most one quiz session.
//
// Orders are visited by ascending (created_at, id). A session claimed by an
// earlier order, or listed in preclaimed, is never offered again. The inputs
// are not modified; the same inputs always produce the same output.
func Match(orders []models.StoreOrder, sessions []models.QuizSession, preclaimed map[string]struct{}, policy Policy, matchedAt time.Time) []models.OrderAttribution {
	policy = policy.normalized()

	sorted := make([]models.StoreOrder, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	pools := buildPools(sessions)
	claimed := make(map[string]struct{}, len(preclaimed)+len(sorted))
	for id := range preclaimed {
		claimed[id] = struct{}{}
	}

	out := make([]models.OrderAttribution, 0, len(sorted))
	for _, order := range sorted {
		out = append(out, matchOne(order, pools, claimed, policy, matchedAt))
	}
	return out
}

func matchOne(order models.StoreOrder, pools map[string]*shopPool, claimed map[string]struct{}, policy Policy, matchedAt time.Time) models.OrderAttribution {
	result := models.OrderAttribution{
		OrderID:        order.ID,
		ShopID:         order.ShopID,
		Tier:           enums.AttributionTierNone,
		OrderTotal:     order.TotalPrice,
		OrderCreatedAt: order.CreatedAt.UTC(),
		MatchedAt:      matchedAt.UTC(),
	}

	pool, ok := pools[order.ShopID]
	if !ok {
		return result
	}

	var picked *models.QuizSession
	tier := enums.AttributionTierNone
	if order.HasCustomer() {
		if candidates, ok := pool.byCustomer[*order.CustomerID]; ok {
			picked = candidates.pick(order.CreatedAt, policy.MaxAttributionDelay, claimed, policy.CustomerTieBreak == enums.CustomerTieBreakLatestStart)
			tier = enums.AttributionTierExactCustomer
		}
	}
	if picked == nil {
		picked = pool.anonymous.pick(order.CreatedAt, policy.MaxAttributionDelay, claimed, policy.Proximity == enums.ProximityPolicyClosestStart)
		tier = enums.AttributionTierTimeProximity
	}
	if picked == nil {
		return result
	}

	claimed[picked.ID] = struct{}{}
	sessionID := picked.ID
	quizID := picked.QuizID
	result.SessionID = &sessionID
	result.QuizID = &quizID
	result.Tier = tier
	return result
}

type shopPool struct {
	byCustomer map[string]sessionList
	anonymous  sessionList
}

// sessionList is ordered by (started_at, id) ascending.
type sessionList []*models.QuizSession

func buildPools(sessions []models.QuizSession) map[string]*shopPool {
	ordered := make([]*models.QuizSession, 0, len(sessions))
	for i := range sessions {
		ordered = append(ordered, &sessions[i])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].StartedAt.Equal(ordered[j].StartedAt) {
			return ordered[i].StartedAt.Before(ordered[j].StartedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	pools := map[string]*shopPool{}
	for _, session := range ordered {
		pool, ok := pools[session.ShopID]
		if !ok {
			pool = &shopPool{byCustomer: map[string]sessionList{}}
			pools[session.ShopID] = pool
		}
		if session.HasCustomer() {
			pool.byCustomer[*session.CustomerID] = append(pool.byCustomer[*session.CustomerID], session)
			continue
		}
		pool.anonymous = append(pool.anonymous, session)
	}
	return pools
}

// pick returns the unclaimed session with started_at in [at-delay, at].
// latest selects the greatest started_at, otherwise the smallest. Ties on
// started_at go to the smaller id.
func (l sessionList) pick(at time.Time, delay time.Duration, claimed map[string]struct{}, latest bool) *models.QuizSession {
	earliestStart := at.Add(-delay)
	if latest {
		upper := sort.Search(len(l), func(i int) bool { return l[i].StartedAt.After(at) })
		best := -1
		for i := upper - 1; i >= 0; i-- {
			session := l[i]
			if session.StartedAt.Before(earliestStart) {
				break
			}
			if best >= 0 && !session.StartedAt.Equal(l[best].StartedAt) {
				break
			}
			if _, taken := claimed[session.ID]; taken {
				continue
			}
			best = i
		}
		if best < 0 {
			return nil
		}
		return l[best]
	}

	lower := sort.Search(len(l), func(i int) bool { return !l[i].StartedAt.Before(earliestStart) })
	for i := lower; i < len(l); i++ {
		session := l[i]
		if session.StartedAt.After(at) {
			break
		}
		if _, taken := claimed[session.ID]; taken {
			continue
		}
		return session
	}
	return nil
}
