package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/cache"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewCacheRateStore(cache.NewMemoryStoreWithClock(func() time.Time { return now }))

	r := gin.New()
	r.Use(RateLimit(store, 2, time.Minute))
	r.POST("/api/auth/login", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	send := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		return w
	}

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, send().Code)
	}

	w := send()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", decodeError(t, w))
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	now = now.Add(2 * time.Minute)
	require.Equal(t, http.StatusOK, send().Code)
}

type brokenRateStore struct{}

func (brokenRateStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("redis down")
}

func TestRateLimitFailsOpenWhenStoreErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(brokenRateStore{}, 1, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestNewCacheRateStoreNil(t *testing.T) {
	require.Nil(t, NewCacheRateStore(nil))
}
