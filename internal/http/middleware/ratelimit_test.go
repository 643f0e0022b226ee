package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func doLimited(t *testing.T, l *Limiter, userID int64, rps int) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/campaigns", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID > 0 {
		c.Set("user_id", userID)
	}
	if rps > 0 {
		c.Set("user_rps", rps)
	}

	h := RateLimitMiddleware(l)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, h(c))
	return rec
}

func TestRateLimit_AllowsWithinBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewLimiter(rdb, 3, time.Minute)

	for i := 0; i < 3; i++ {
		rec := doLimited(t, l, 42, 0)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doLimited(t, l, 42, 0)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimit_RemainingHeaderCountsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewLimiter(rdb, 3, time.Minute)

	require.Equal(t, "2", doLimited(t, l, 42, 0).Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "1", doLimited(t, l, 42, 0).Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "0", doLimited(t, l, 42, 0).Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_PerUserRPSOverridesDefault(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewLimiter(rdb, 1, time.Minute)

	// A user with a bigger plan is not capped at the default.
	require.Equal(t, http.StatusOK, doLimited(t, l, 7, 2).Code)
	require.Equal(t, http.StatusOK, doLimited(t, l, 7, 2).Code)
	require.Equal(t, http.StatusTooManyRequests, doLimited(t, l, 7, 2).Code)
}

func TestRateLimit_IsolatesUsers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewLimiter(rdb, 1, time.Minute)

	require.Equal(t, http.StatusOK, doLimited(t, l, 1, 0).Code)
	require.Equal(t, http.StatusTooManyRequests, doLimited(t, l, 1, 0).Code)
	require.Equal(t, http.StatusOK, doLimited(t, l, 2, 0).Code)
}

func TestRateLimit_FailsOpenWithoutRedis(t *testing.T) {
	l := NewLimiter(nil, 1, time.Minute)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doLimited(t, l, 42, 0).Code)
	}
}

func TestRateLimit_SkipsAnonymousRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewLimiter(rdb, 1, time.Minute)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doLimited(t, l, 0, 0).Code)
	}
}
