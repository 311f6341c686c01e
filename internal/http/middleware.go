package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	scrapeIDKey contextKey = "scrape_id"
	loggerKey   contextKey = "logger"
)

// ScrapeIDMiddleware tags every request with an id, echoes it in the
// X-Scrape-ID header and stores a logger carrying it in the request context.
func ScrapeIDMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scrapeID := r.Header.Get("X-Scrape-ID")
			if scrapeID == "" {
				scrapeID = uuid.New().String()
			}
			w.Header().Set("X-Scrape-ID", scrapeID)

			ctx := context.WithValue(r.Context(), scrapeIDKey, scrapeID)
			ctx = context.WithValue(ctx, loggerKey, logger.With(zap.String("scrape_id", scrapeID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loggerFromContext returns the request-scoped logger, or fallback when the
// middleware did not run.
func loggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// ServerIdentMiddleware sets the Server response header.
func ServerIdentMiddleware(ident string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", ident)
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs one line per request with method, path, status and
// duration.
func LoggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			loggerFromContext(r.Context(), logger).Info("request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", recorder.statusCode),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// RateLimitMiddleware returns 429 when the token bucket is exhausted.
// Disabled when limiter is nil.
func RateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", plainContentType)
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("Too many requests\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
