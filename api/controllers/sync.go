package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/quizlink-backend/api/responses"
	"github.com/angelmondragon/quizlink-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
)

// SyncService is the reconciliation surface the sync endpoints use.
type SyncService interface {
	RunSync(ctx context.Context, shopID string) (*reconcile.Result, error)
	Status(ctx context.Context, shopID string) (*reconcile.Status, error)
}

// SyncTrigger runs one reconciliation pass for the shop in the path.
// A pass skipped because another run holds the shop lock answers 202.
func SyncTrigger(svc SyncService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}
		shopID, err := parseShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithShopID(ctx, shopID)
		}
		result, err := svc.RunSync(ctx, shopID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Skipped {
			responses.WriteSuccessStatus(w, http.StatusAccepted, result)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SyncStatus reports the shop's watermark and last run.
func SyncStatus(svc SyncService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}
		shopID, err := parseShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.Status(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func parseShopID(r *http.Request) (string, error) {
	shopID := strings.TrimSpace(chi.URLParam(r, "shopId"))
	if shopID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	return shopID, nil
}
