package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edgeflare/inventory/pkg/httputil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	return logger, logs
}

func TestLoggerWithOptions(t *testing.T) {
	logger, logs := newTestLogger()
	options := &LoggerOptions{
		Logger: logger,
		Format: func(reqID string, rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field {
			return []zap.Field{
				zap.String("test", "log"),
			}
		},
	}
	middleware := LoggerWithOptions(options)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "response", logs.All()[0].Message)
	assert.Equal(t, "log", logs.All()[0].ContextMap()["test"])
}

func TestLoggerDefaultFormat(t *testing.T) {
	logger, logs := newTestLogger()
	middleware := LoggerWithOptions(&LoggerOptions{Logger: logger})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	req := httptest.NewRequest(http.MethodDelete, "http://example.com/inventory/1", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "DELETE", fields["method"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
	assert.EqualValues(t, len("missing"), fields["bytes"])
	assert.Equal(t, uuid.Nil.String(), fields["req_id"])
}

func TestLoggerWithRequestID(t *testing.T) {
	logger, logs := newTestLogger()
	middleware := LoggerWithOptions(&LoggerOptions{Logger: logger})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RequestLogger(r.Context(), zap.NewNop()).Info("handled")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/foo", nil)
	reqID := uuid.New().String()
	ctx := context.WithValue(req.Context(), httputil.RequestIDCtxKey, reqID)
	req = req.WithContext(ctx)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, reqID, logs.FilterMessage("handled").All()[0].ContextMap()["req_id"])
	assert.Equal(t, reqID, logs.FilterMessage("response").All()[0].ContextMap()["req_id"])
}

func TestRequestLoggerFallback(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, RequestLogger(context.Background(), fallback))
}
