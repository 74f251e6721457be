package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/quizlink-backend/api/responses"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/redis"
)

type throttler interface {
	Throttle(ctx context.Context, limit int64, window time.Duration, parts ...string) (redis.Decision, error)
}

// SyncRateLimitPolicy bounds how often a shop's sync may be triggered by hand.
type SyncRateLimitPolicy struct {
	window time.Duration
	limit  int
}

// NewSyncRateLimitPolicy builds a policy with the supplied window and limit.
func NewSyncRateLimitPolicy(window time.Duration, limit int) SyncRateLimitPolicy {
	return SyncRateLimitPolicy{window: window, limit: limit}
}

func (p SyncRateLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0
}


// SyncRateLimit throttles manual sync triggers per shop and caller IP.
func SyncRateLimit(policy SyncRateLimitPolicy, store throttler, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			shopID := strings.TrimSpace(chi.URLParam(r, "shopId"))
			if shopID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			decision, err := store.Throttle(ctx, int64(policy.limit), policy.window, "sync", shopID, ip)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !decision.Allowed {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"shop_id":        shopID,
						"ip":             ip,
						"attempts":       decision.Count,
						"limit":          policy.limit,
						"window_seconds": int(policy.window.Seconds()),
					})
					logg.Warn(logCtx, "sync.rate_limit.blocked")
				}
				if decision.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int((decision.RetryAfter+time.Second-1)/time.Second)))
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "sync trigger rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
