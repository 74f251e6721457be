package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/quizlink-backend/api/responses"
	"github.com/angelmondragon/quizlink-backend/api/validators"
	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
)

const maxAnalyticsDays = 366

// SummaryReader lists daily rollup rows for a shop over an inclusive date range.
type SummaryReader interface {
	ListSummaries(ctx context.Context, shopID string, from, to time.Time) ([]models.QuizAnalyticsDaily, error)
}

type summaryRow struct {
	QuizID            string          `json:"quiz_id"`
	Date              string          `json:"date"`
	Sessions          int64           `json:"sessions"`
	Completed         int64           `json:"completed"`
	AttributedOrders  int64           `json:"attributed_orders"`
	AttributedRevenue decimal.Decimal `json:"attributed_revenue"`
	CompletionRate    float64         `json:"completion_rate"`
	OrdersPerSession  float64         `json:"orders_per_session"`
}

type summaryTotals struct {
	Sessions          int64           `json:"sessions"`
	Completed         int64           `json:"completed"`
	AttributedOrders  int64           `json:"attributed_orders"`
	AttributedRevenue decimal.Decimal `json:"attributed_revenue"`
}

type analyticsResponse struct {
	ShopID string        `json:"shop_id"`
	From   string        `json:"from"`
	To     string        `json:"to"`
	Rows   []summaryRow  `json:"rows"`
	Totals summaryTotals `json:"totals"`
}

// ShopAnalytics returns the per-quiz daily rollups for ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func ShopAnalytics(reader SummaryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics repository unavailable"))
			return
		}
		shopID, err := parseShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rng, err := validators.ParseDateRange(r, maxAnalyticsDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := reader.ListSummaries(r.Context(), shopID, rng.From, rng.To)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list summaries"))
			return
		}

		resp := analyticsResponse{
			ShopID: shopID,
			From:   rng.From.Format(time.DateOnly),
			To:     rng.To.Format(time.DateOnly),
			Rows:   make([]summaryRow, 0, len(rows)),
			Totals: summaryTotals{AttributedRevenue: decimal.Zero},
		}
		for _, row := range rows {
			resp.Rows = append(resp.Rows, toSummaryRow(row))
			resp.Totals.Sessions += row.SessionCount
			resp.Totals.Completed += row.CompletedCount
			resp.Totals.AttributedOrders += row.AttributedOrderCount
			resp.Totals.AttributedRevenue = resp.Totals.AttributedRevenue.Add(row.AttributedRevenue)
		}
		responses.WriteSuccess(w, resp)
	}
}

func toSummaryRow(row models.QuizAnalyticsDaily) summaryRow {
	out := summaryRow{
		QuizID:            row.QuizID,
		Date:              row.SummaryDate.UTC().Format(time.DateOnly),
		Sessions:          row.SessionCount,
		Completed:         row.CompletedCount,
		AttributedOrders:  row.AttributedOrderCount,
		AttributedRevenue: row.AttributedRevenue,
	}
	if row.SessionCount > 0 {
		out.CompletionRate = float64(row.CompletedCount) / float64(row.SessionCount)
		out.OrdersPerSession = float64(row.AttributedOrderCount) / float64(row.SessionCount)
	}
	return out
}
