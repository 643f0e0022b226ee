package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Limiter enforces a per-user request budget over a fixed Redis window.
// Each user gets their own RPS from the users table; DefaultRPS applies
// when none is set. Redis being down fails open: campaigns API calls are
// cheap compared to blocking every customer on a cache outage.
type Limiter struct {
	rdb        *redis.Client
	defaultRPS int
	window     time.Duration
}

func NewLimiter(rdb *redis.Client, defaultRPS int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{rdb: rdb, defaultRPS: defaultRPS, window: window}
}

// Allow counts one request against the user's window. It reports whether
// the request may proceed, how much budget remains (-1 when unlimited or
// unknown), and how long until the window resets.
func (l *Limiter) Allow(ctx context.Context, userID int64, rps int) (allowed bool, remaining int, reset time.Duration) {
	if rps <= 0 {
		rps = l.defaultRPS
	}
	if rps <= 0 || l.rdb == nil {
		return true, -1, 0
	}

	now := time.Now()
	slot := now.UnixNano() / int64(l.window)
	key := fmt.Sprintf("rl:user:%d:%d", userID, slot)

	pipe := l.rdb.Pipeline()
	cnt := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, -1, 0
	}

	reset = l.window - time.Duration(now.UnixNano()-slot*int64(l.window))
	remaining = rps - int(cnt.Val())
	if remaining < 0 {
		remaining = 0
	}
	return cnt.Val() <= int64(rps), remaining, reset
}

// RateLimitMiddleware applies the limiter to requests carrying a user_id
// (set by APIKeyMiddleware); anonymous routes pass through untouched.
func RateLimitMiddleware(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			v := c.Get("user_id")
			userID, ok := v.(int64)
			if !ok || userID <= 0 {
				return next(c)
			}

			rps := 0
			if vv := c.Get("user_rps"); vv != nil {
				if m, ok := vv.(int); ok && m > 0 {
					rps = m
				}
			}

			allowed, remaining, reset := l.Allow(c.Request().Context(), userID, rps)
			if remaining >= 0 {
				c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
			if allowed {
				return next(c)
			}

			if secs := int(reset.Round(time.Second) / time.Second); secs > 0 {
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			}
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
		}
	}
}
