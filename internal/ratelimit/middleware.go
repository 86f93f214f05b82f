package ratelimit

import (
	"net/http"
	"strconv"

	"charity-server/internal/apierrors"
	authhandler "charity-server/internal/auth/handler"
	"charity-server/internal/observability"

	"github.com/gin-gonic/gin"
)

// Middleware limits requests per authenticated user. It must run after the JWT middleware;
// anonymous requests pass through. A Redis failure lets the request through.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := authhandler.CurrentUser(c)
		if !ok || !l.Enabled() {
			c.Next()
			return
		}

		ctx := observability.WithFields(c.Request.Context(),
			observability.Field{Key: "rate_limit_scope", Value: l.prefix},
			observability.Field{Key: "rate_limit", Value: l.limit},
		)

		result, err := l.Allow(ctx, user.UserID.String())
		if err != nil {
			l.logger.Error(ctx, "rate limit check failed", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			l.logger.Warn(ctx, "rate limit exceeded")
			apierrors.RespondWithError(c, apierrors.New(http.StatusTooManyRequests, apierrors.CodeRateLimited,
				"Too many requests, please slow down"))
			return
		}

		c.Next()
	}
}
