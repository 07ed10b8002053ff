package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/infrapilot/infrapilot/internal/logger"
)

// requestIDMiddleware stamps every request with an ID, honoring one supplied
// by the caller.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// corsMiddleware answers preflight requests and stamps the allowed origins.
// An empty list allows any origin, which matches the development posture of
// a local analysis service.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// maxLimiterClients caps the number of per-IP buckets held at once so the
// map stays bounded under address churn.
const maxLimiterClients = 10000

// clientLimiters hands out one token bucket per client IP. When the table
// hits its cap it is dropped wholesale; clients regain at most one fresh
// burst.
type clientLimiters struct {
	mu      sync.Mutex
	rps     int
	buckets map[string]*rate.Limiter
}

func newClientLimiters(rps int) *clientLimiters {
	return &clientLimiters{
		rps:     rps,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (c *clientLimiters) get(ip string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.buckets[ip]
	if !ok {
		if len(c.buckets) >= maxLimiterClients {
			c.buckets = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(rate.Limit(c.rps), c.rps*2)
		c.buckets[ip] = l
	}
	return l
}

// rateLimitMiddleware applies a per-client token bucket keyed by remote IP.
// Zero disables limiting.
func rateLimitMiddleware(rps int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := newClientLimiters(rps)
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// requestLogMiddleware logs one line per request in the service log format.
func requestLogMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			logger.String("request_id", c.GetString("request_id")),
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("elapsed", time.Since(start)))
	}
}
