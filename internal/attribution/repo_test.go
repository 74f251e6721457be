package attribution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/quizlink-backend/pkg/db/models"
	"github.com/angelmondragon/quizlink-backend/pkg/enums"
	"github.com/angelmondragon/quizlink-backend/pkg/pagination"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

func seedVerdicts(t *testing.T, repo Repository) {
	t.Helper()
	rows := make([]models.OrderAttribution, 0, 5)
	for i := 0; i < 5; i++ {
		tier := enums.AttributionTierNone
		if i%2 == 0 {
			tier = enums.AttributionTierExactCustomer
		}
		at := base.Add(time.Duration(i/2) * time.Minute)
		rows = append(rows, models.OrderAttribution{
			OrderID:        fmt.Sprintf("o%d", i),
			ShopID:         "s1",
			Tier:           tier,
			OrderTotal:     decimal.RequireFromString("10.00"),
			OrderCreatedAt: at,
			MatchedAt:      base.Add(time.Hour),
		})
	}
	require.NoError(t, repo.UpsertAttributions(context.Background(), nil, rows))
}

func TestListPageWalksKeysetCursor(t *testing.T) {
	repo := NewRepository(setupAttributionTestDB(t))
	seedVerdicts(t, repo)
	window := types.NewTimeRange(base, base.Add(time.Hour))
	ctx := context.Background()

	var seen []string
	cursor := ""
	for pages := 0; pages < 5; pages++ {
		page, err := repo.ListPage(ctx, ListQuery{ShopID: "s1", Window: window, Page: pagination.Params{Limit: 2, Cursor: cursor}})
		require.NoError(t, err)
		for _, row := range page.Attributions {
			seen = append(seen, row.OrderID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []string{"o0", "o1", "o2", "o3", "o4"}, seen)
}

func TestListPageFiltersTier(t *testing.T) {
	repo := NewRepository(setupAttributionTestDB(t))
	seedVerdicts(t, repo)
	tier := enums.AttributionTierExactCustomer

	page, err := repo.ListPage(context.Background(), ListQuery{
		ShopID: "s1",
		Window: types.NewTimeRange(base, base.Add(time.Hour)),
		Tier:   &tier,
	})
	require.NoError(t, err)
	require.Len(t, page.Attributions, 3)
	assert.Empty(t, page.NextCursor)
	for _, row := range page.Attributions {
		assert.Equal(t, tier, row.Tier)
	}
}

func TestListPageRejectsBadCursor(t *testing.T) {
	repo := NewRepository(setupAttributionTestDB(t))
	_, err := repo.ListPage(context.Background(), ListQuery{ShopID: "s1", Window: types.NewTimeRange(base, base.Add(time.Hour)), Page: pagination.Params{Cursor: "!!"}})
	assert.Error(t, err)
}

func TestCountTiersCoversWholeWindow(t *testing.T) {
	repo := NewRepository(setupAttributionTestDB(t))
	seedVerdicts(t, repo)

	counts, err := repo.CountTiers(context.Background(), "s1", types.NewTimeRange(base, base.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 3, counts[enums.AttributionTierExactCustomer])
	assert.Equal(t, 2, counts[enums.AttributionTierNone])

	empty, err := repo.CountTiers(context.Background(), "s2", types.NewTimeRange(base, base.Add(time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, empty)
}
