package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/sievehq/sieve/internal/config"
	"github.com/sievehq/sieve/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyScoreTenant = "sieve:score:tenant:%s"

// ScoreLimiter throttles scoring submissions per tenant. It is disabled
// when rate limiting is turned off or redis is not configured; a broken
// limiter fails open so scoring keeps working.
type ScoreLimiter struct {
	log    *zap.Logger
	bucket *TokenBucket
	rate   float64
	burst  int
}

type ScoreLimiterParam struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

func NewScoreLimiter(p ScoreLimiterParam) *ScoreLimiter {
	if !p.Config.RateLimitEnabled || p.Redis == nil {
		return nil
	}
	return &ScoreLimiter{
		log:    p.Log.Named("ratelimit"),
		bucket: NewTokenBucket(p.Redis),
		rate:   p.Config.RateLimitRPS,
		burst:  p.Config.RateLimitBurst,
	}
}

// Middleware enforces the per-tenant budget on the scoring route.
func (l *ScoreLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		tenantID, ok := tenantctx.TenantFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		res, err := l.bucket.Allow(c.Request.Context(), fmt.Sprintf(keyScoreTenant, tenantID), l.rate, l.burst)
		if err != nil {
			l.log.Warn("rate limiter unavailable, failing open", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%.0f", res.RetryAfter.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"type":    "rate_limited",
					"message": "scoring rate limit exceeded",
				},
			})
			return
		}
		c.Next()
	}
}

var Module = fx.Module("ratelimit",
	fx.Provide(NewScoreLimiter),
)
