package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/mrpledger/internal/observability/logger"
	"go.uber.org/zap"
)

// MutationRateLimit throttles write endpoints per actor. Without a configured
// limiter every request passes.
func (s *Server) MutationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		route := normalizeRateLimitEndpoint(c)
		result, err := s.limiter.Allow(ctx, rateLimitClientKey(c))
		if err != nil {
			logger.FromContext(ctx).Warn("mutation rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		s.obsMetrics.RecordRateLimit(ctx, route, result.Allowed)
		if !result.Allowed {
			logger.FromContext(ctx).Warn("mutation rate limit exceeded", zap.String("route", route))
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func rateLimitClientKey(c *gin.Context) string {
	if actor := strings.TrimSpace(c.GetHeader(logger.HeaderActorID)); actor != "" {
		return "actor:" + actor
	}
	return "ip:" + c.ClientIP()
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
