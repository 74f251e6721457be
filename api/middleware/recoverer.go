package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/quizlink-backend/api/responses"
	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. http.ErrAbortHandler is
// re-raised so net/http can drop the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("%v", rec), "handler panic")
				ctx := r.Context()
				if logg != nil {
					fields := map[string]any{
						"method": r.Method,
						"path":   r.URL.Path,
						"panic":  fmt.Sprintf("%T", rec),
					}
					if rc := chi.RouteContext(ctx); rc != nil {
						if pattern := rc.RoutePattern(); pattern != "" {
							fields["route"] = pattern
						}
						if shopID := rc.URLParam("shopId"); shopID != "" {
							fields["shop_id"] = shopID
						}
					}
					ctx = logg.WithFields(ctx, fields)
				}
				// WriteError logs the 5xx with the full chain.
				responses.WriteError(ctx, logg, w, err)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
