package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GitaiQAQ/render-dispatch/internal/ratelimit"
)

// GlobalRateLimit admits or rejects every request by remote IP, using a
// single shared Keyed limiter built from the process-wide HTTP rate config.
func GlobalRateLimit(limiter *ratelimit.Keyed) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			retryAfter := limiter.RetryAfter(ip)
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "too many requests",
			})
			return
		}
		c.Next()
	}
}
