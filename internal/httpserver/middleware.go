package httpserver

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIdHeader = "X-Request-ID"

func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqId := c.GetHeader(requestIdHeader)
		if reqId == "" {
			reqId = uuid.NewString()
		}
		c.Set(requestIdHeader, reqId)
		c.Header(requestIdHeader, reqId)
		c.Next()
	}
}

func requestIdFromContext(c *gin.Context) string {
	return c.GetString(requestIdHeader)
}

// Logger writes one zap line per request and records the request metrics
func Logger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		zap.L().Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("request_id", requestIdFromContext(c)),
			zap.String("user_id", userIdFromContext(c)))

		m.ObserveRequest(c.Request.Method, path, status, latency)
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				zap.L().Error("panic",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", requestIdFromContext(c)))
				abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
			}
		}()
		c.Next()
	}
}

// RateLimit limits a route per authenticated user. A limiter backend failure lets the request through.
func RateLimit(limiter ratelimit.Limiter, m *metrics.Metrics, route string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := userIdFromContext(c)
		if key == "" {
			key = c.ClientIP()
		}

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), route+":"+key, time.Now())
		if err != nil {
			zap.L().Warn("Rate limiter unavailable", zap.String("route", route), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			m.RateLimitHit(route)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			abortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}
		c.Next()
	}
}
