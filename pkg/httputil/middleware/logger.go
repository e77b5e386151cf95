package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/edgeflare/inventory/pkg/httputil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResponseRecorder is a wrapper for http.ResponseWriter to capture status codes and sizes.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

func (rr *ResponseRecorder) WriteHeader(statusCode int) {
	rr.StatusCode = statusCode
	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *ResponseRecorder) Write(b []byte) (int, error) {
	n, err := rr.ResponseWriter.Write(b)
	rr.Bytes += n
	return n, err
}

// RequestLogger returns the request scoped logger placed in ctx by the logger
// middleware, or fallback when there is none.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(httputil.LogEntryCtxKey).(*zap.Logger); ok {
		return logger
	}
	return fallback
}

// LoggerOptions defines configuration for the logger middleware.
type LoggerOptions struct {
	Logger *zap.Logger
	Format func(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field
}

func defaultFormat(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("req_id", reqID),
		zap.Int("status", rec.StatusCode),
		zap.String("method", r.Method),
		zap.String("host", r.Host),
		zap.String("url", r.URL.String()),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
		zap.Int("bytes", rec.Bytes),
		zap.Duration("latency", latency),
	}
}

// LoggerWithOptions logs one "response" line per request and makes a logger
// carrying the request id available through RequestLogger.
func LoggerWithOptions(options *LoggerOptions) func(http.Handler) http.Handler {
	if options == nil {
		options = &LoggerOptions{}
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	if options.Format == nil {
		options.Format = defaultFormat
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Value(httputil.LogEntryCtxKey).(*zap.Logger); ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
			if !ok {
				reqID = uuid.Nil.String()
			}

			rec := NewResponseRecorder(w)
			ctx := context.WithValue(r.Context(), httputil.LogEntryCtxKey, options.Logger.With(zap.String("req_id", reqID)))
			r = r.WithContext(ctx)

			next.ServeHTTP(rec, r)

			options.Logger.Info("response", options.Format(reqID, rec, r, time.Since(start))...)
		})
	}
}
