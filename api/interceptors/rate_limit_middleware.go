package interceptors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"

	"github.com/keyturn/go-keyturn-server/global"
)

const (
	LimitRequestsPerSecond         = 5
	LimitRotationRequestsPerSecond = 2
)

var rotationPathRe = regexp.MustCompile("^/api/v.*/rotation$")

// RateLimitMiddleware is the transport-level admission control: a redis
// backed per-client throttle, independent of the per-owner rotation
// limiter inside the protocol.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip, _ := getIP(c)
		if ip == nil {
			unkn := "unknown"
			ip = &unkn
		}
		userAgent := c.GetHeader("User-Agent")
		acceptLanguage := c.GetHeader("Accept-Language")
		all := fmt.Sprintf("%s%s%s", *ip, userAgent, acceptLanguage)

		limit := LimitRequestsPerSecond
		if rotationPathRe.MatchString(c.Request.URL.Path) {
			limit = LimitRotationRequestsPerSecond
			all = fmt.Sprintf("%s%s", all, "_rotation")
		}

		hash := xxhash.Sum64String(all)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		result, err := global.RateLimiter.Allow(ctx, strconv.FormatUint(hash, 10), redis_rate.PerSecond(limit))
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, errors.New("failed to perform rate limit check"))
			return
		}
		if result.Allowed <= 0 {
			c.AbortWithError(http.StatusTooManyRequests, errors.New("too many requests"))
			return
		}

		c.Writer.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit.Rate))
		c.Writer.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Writer.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(result.ResetAfter.Milliseconds())))
		c.Next()
	}
}
