package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/taskstream/integration-service/pkg/observability"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a request ID to every request, reusing the client's
// when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request with latency and status.
func RequestLogger(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString("request_id"),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
			logger.Error("request failed", fields)
			return
		}
		logger.Info("request handled", fields)
	}
}

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware(metrics observability.MetricsClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := map[string]string{
			"method": c.Request.Method,
			"path":   path,
		}
		metrics.IncrementCounter("api_requests_total", 1, labels)
		metrics.RecordHistogram("api_request_duration_seconds", time.Since(start).Seconds(), labels)
	}
}

// clientLimiters holds one token bucket per client IP. Entries idle past
// their expiry are dropped on access.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	seen     map[string]time.Time
	limit    rate.Limit
	burst    int
}

func (s *clientLimiters) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, t := range s.seen {
		if now.Sub(t) > time.Hour {
			delete(s.limiters, k)
			delete(s.seen, k)
		}
	}

	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = l
	}
	s.seen[key] = now
	return l
}

// RateLimiter rejects clients exceeding the configured request rate.
func RateLimiter(limit float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	store := &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		seen:     make(map[string]time.Time),
		limit:    rate.Limit(limit),
		burst:    burst,
	}

	return func(c *gin.Context) {
		if !store.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
