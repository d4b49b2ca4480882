package middleware

import (
	"fmt"
	"strconv"
	"time"

	"settlement-ledger/internal/core/ports"
	"settlement-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the per-group limits. The "default" group
// takes its values from configuration.
func DefaultRateLimitRules(defaultRule RateLimitRule) map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"default":           defaultRule,
		"payments":          {Limit: 100, Window: time.Minute},
		"payments_refund":   {Limit: 30, Window: time.Minute},
		"platform_claim":    {Limit: 10, Window: time.Minute},
		"accounts_login":    {Limit: 10, Window: time.Minute},
		"accounts_register": {Limit: 5, Window: time.Hour},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Store failures let the request through.
func RateLimiter(store ports.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := max(result.ResetAt-time.Now().Unix(), 1)
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			abort(c, apperror.ErrRateLimitExceeded())
			return
		}

		c.Next()
	}
}

// extractIdentifier determines the rate limit key source.
func extractIdentifier(c *gin.Context) string {
	if ak := c.GetHeader(HeaderAccessKey); ak != "" {
		return "ak:" + ak
	}
	if addr := Address(c); addr != "" {
		return "addr:" + addr
	}
	return "ip:" + c.ClientIP()
}
