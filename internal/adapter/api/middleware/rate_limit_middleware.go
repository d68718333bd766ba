package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"scrapmart/internal/infrastructure/ratelimit"
	"scrapmart/pkg/errors"
	"scrapmart/pkg/logger"
	"scrapmart/pkg/response"
)

// RateLimit limits requests per client IP using the REST bucket policy.
func RateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			allowed, wait := limiter.Allow(ip, ratelimit.ActionREST)
			if !allowed {
				logger.Warn("RATE LIMIT: Blocked request from IP %s (retry in %v)", ip, wait)
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded"))
			}
			if remaining := limiter.Remaining(ip, ratelimit.ActionREST); remaining >= 0 {
				c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
			return next(c)
		}
	}
}
