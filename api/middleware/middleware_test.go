package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/quizlink-backend/pkg/errors"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
	"github.com/angelmondragon/quizlink-backend/pkg/redis"
	"github.com/angelmondragon/quizlink-backend/pkg/types"
)

type counterStore struct {
	counts map[string]int64
	err    error
}

func (c *counterStore) Throttle(_ context.Context, limit int64, window time.Duration, parts ...string) (redis.Decision, error) {
	if c.err != nil {
		return redis.Decision{}, c.err
	}
	key := strings.Join(parts, ":")
	c.counts[key]++
	return redis.Decision{Allowed: c.counts[key] <= limit, Count: c.counts[key], RetryAfter: window}, nil
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "api-test", Output: io.Discard})
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusAccepted)
}

func newLimitedRouter(store throttler, limit int) http.Handler {
	r := chi.NewRouter()
	r.With(SyncRateLimit(NewSyncRateLimitPolicy(time.Minute, limit), store, quietLogger())).
		Post("/shops/{shopId}/sync", okHandler)
	return r
}

func TestSyncRateLimitBlocksAfterLimit(t *testing.T) {
	store := &counterStore{counts: map[string]int64{}}
	router := newLimitedRouter(store, 2)

	codes := []int{}
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/shops/s1/sync", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, codes)
	assert.Equal(t, int64(3), store.counts["sync:s1:10.0.0.1"])
	assert.Equal(t, "60", last.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodPost, "/shops/s2/sync", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code, "limits are per shop")
}

func TestSyncRateLimitStoreFailure(t *testing.T) {
	router := newLimitedRouter(&counterStore{err: errors.New("redis down")}, 2)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/shops/s1/sync", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSyncRateLimitDisabledWithoutStore(t *testing.T) {
	router := newLimitedRouter(nil, 1)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/shops/s1/sync", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))
}

func TestRequestIDEchoesOrGenerates(t *testing.T) {
	handler := RequestID(quietLogger())(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-1")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	var seen string
	handler := RequestID(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.RequestIDFrom(r.Context())
	}))

	for _, bad := range []string{"id with spaces", "line\nbreak", strings.Repeat("x", maxRequestIDLen+1)} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get(requestIDHeader)
		assert.NotEqual(t, bad, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err)
		assert.Equal(t, got, seen)
	}
}

func TestRecovererReturnsInternalError(t *testing.T) {
	r := chi.NewRouter()
	r.Use(RequestID(quietLogger()), Recoverer(quietLogger()))
	r.Get("/shops/{shopId}/sync", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/shops/s1/sync", nil)
	req.Header.Set(requestIDHeader, "req-9")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Error.Code)
	assert.Equal(t, "req-9", body.RequestID)
	assert.NotContains(t, body.Error.Message, "boom")
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	handler := Recoverer(quietLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLoggingRecordsStatus(t *testing.T) {
	handler := Logging(quietLogger())(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
