package middleware

import (
	"context"
	"strings"
	"unicode/utf8"

	"testbridge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	testerHeader    = "X-Tester"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
	testerContextKey    = "tester"
)

// TraceContextConfig controls how trace/request ids and the tester name are extracted and written.
type TraceContextConfig struct {
	AllowTesterHeader bool
	WriteTesterHeader bool
	MaxTesterLength   int
}

// TraceContextMiddleware ensures trace/request ids and the tester name are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{
		AllowTesterHeader: true,
		WriteTesterHeader: false,
		MaxTesterLength:   64,
	})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(traceIDHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceIDContextKey, traceID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(traceIDHeader, traceID)

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		ctx = context.WithValue(c.Request.Context(), contextkey.RequestID, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(requestIDHeader, requestID)

		if cfg.AllowTesterHeader {
			tester := strings.TrimSpace(c.GetHeader(testerHeader))
			tester = truncateTester(tester, cfg.MaxTesterLength)
			if tester != "" {
				c.Set(testerContextKey, tester)
				ctx = context.WithValue(c.Request.Context(), contextkey.Tester, tester)
				c.Request = c.Request.WithContext(ctx)
				if cfg.WriteTesterHeader {
					c.Writer.Header().Set(testerHeader, tester)
				}
			}
		}

		c.Next()
	}
}

// truncateTester cuts tester to at most limit bytes without splitting a rune.
func truncateTester(tester string, limit int) string {
	if limit <= 0 || len(tester) <= limit {
		return tester
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(tester[cut]) {
		cut--
	}
	return tester[:cut]
}
