package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/quizlink-backend/api/responses"
	"github.com/angelmondragon/quizlink-backend/api/validators"
	"github.com/angelmondragon/quizlink-backend/internal/attribution"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/pagination"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

const maxAttributionSpan = 31 * 24 * time.Hour

// AttributionReader pages stored verdicts for orders created inside a window.
type AttributionReader interface {
	ListPage(ctx context.Context, query attribution.ListQuery) (*attribution.Page, error)
	CountTiers(ctx context.Context, shopID string, window types.TimeRange) (map[enums.AttributionTier]int, error)
}

type attributionDTO struct {
	OrderID        string                `json:"order_id"`
	SessionID      *string               `json:"session_id,omitempty"`
	QuizID         *string               `json:"quiz_id,omitempty"`
	Tier           enums.AttributionTier `json:"tier"`
	OrderTotal     decimal.Decimal       `json:"order_total"`
	OrderCreatedAt time.Time             `json:"order_created_at"`
	MatchedAt      time.Time             `json:"matched_at"`
}

type attributionsResponse struct {
	ShopID       string           `json:"shop_id"`
	Window       types.TimeRange  `json:"window"`
	Attributions []attributionDTO `json:"attributions"`
	Tiers        map[string]int   `json:"tiers"`
	NextCursor   string           `json:"next_cursor,omitempty"`
}

// ShopAttributions returns one page of verdicts for ?from&to (RFC3339),
// optionally narrowed by ?tier. Tier totals always cover the whole window.
func ShopAttributions(reader AttributionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "attribution repository unavailable"))
			return
		}
		shopID, err := parseShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		window, err := validators.ParseTimeRange(r, maxAttributionSpan)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var tierFilter *enums.AttributionTier
		if raw := strings.TrimSpace(r.URL.Query().Get("tier")); raw != "" {
			tier, err := enums.ParseAttributionTier(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tier").
					WithDetails(map[string]any{"field": "tier"}))
				return
			}
			tierFilter = &tier
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
		if _, err := pagination.ParseCursor(cursor); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").
				WithDetails(map[string]any{"field": "cursor"}))
			return
		}

		page, err := reader.ListPage(r.Context(), attribution.ListQuery{
			ShopID: shopID,
			Window: window,
			Tier:   tierFilter,
			Page:   pagination.Params{Limit: limit, Cursor: cursor},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list attributions"))
			return
		}
		counts, err := reader.CountTiers(r.Context(), shopID, window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count attribution tiers"))
			return
		}

		resp := attributionsResponse{
			ShopID:       shopID,
			Window:       window,
			Attributions: make([]attributionDTO, 0, len(page.Attributions)),
			Tiers:        map[string]int{},
			NextCursor:   page.NextCursor,
		}
		for tier, count := range counts {
			if tierFilter != nil && tier != *tierFilter {
				continue
			}
			resp.Tiers[tier.String()] = count
		}
		for _, row := range page.Attributions {
			resp.Attributions = append(resp.Attributions, attributionDTO{
				OrderID:        row.OrderID,
				SessionID:      row.SessionID,
				QuizID:         row.QuizID,
				Tier:           row.Tier,
				OrderTotal:     row.OrderTotal,
				OrderCreatedAt: row.OrderCreatedAt.UTC(),
				MatchedAt:      row.MatchedAt.UTC(),
			})
		}
		responses.WriteSuccess(w, resp)
	}
}
