package httputil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRouterHandle(t *testing.T) {
	r := NewRouter()
	r.HandleFunc("GET /test/{id}", func(w http.ResponseWriter, req *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"id": req.PathValue("id")})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test/42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"42"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test/42", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouterMiddleware(t *testing.T) {
	r := NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Test", "true")
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("GET /test", ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, "true", w.Header().Get("X-Test"))

	// unmatched methods and paths still pass through
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/test", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Test"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Test"))
}

func TestRouterGroupMiddleware(t *testing.T) {
	header := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				w.Header().Add("X-Chain", name)
				next.ServeHTTP(w, req)
			})
		}
	}

	r := NewRouter()
	r.Use(header("root"))
	api := r.Group("/api")
	api.Use(header("api"))
	api.HandleFunc("GET /test", ok)
	r.HandleFunc("GET /plain", ok)

	w := httptest.NewRecorder()
	api.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	assert.Equal(t, []string{"root", "api"}, w.Header().Values("X-Chain"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, []string{"root"}, w.Header().Values("X-Chain"))
}

func TestRouterGroup(t *testing.T) {
	r := NewRouter()
	api := r.Group("/api")
	api.HandleFunc("GET /v1/test", ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterInvalidPattern(t *testing.T) {
	assert.Panics(t, func() { NewRouter().HandleFunc("/no-method", ok) })
}

func TestRouterListenAndServe(t *testing.T) {
	r := NewRouter()
	r.HandleFunc("GET /test", ok)

	done := make(chan error, 1)
	go func() { done <- r.ListenAndServe("127.0.0.1:18081") }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18081/test")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.NoError(t, <-done)
}

func TestRequest(t *testing.T) {
	t.Run("posts JSON", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.Equal(t, "secret", req.Header.Get("X-API-Key"))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		cfg := DefaultRequestConfig(http.MethodPost, srv.URL)
		cfg.Headers = map[string][]string{"X-API-Key": {"secret"}}
		resp, err := Request(context.Background(), cfg, map[string]string{"a": "b"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("retries server errors with the full body", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			buf := new(strings.Builder)
			_, _ = io.Copy(buf, req.Body)
			assert.Equal(t, "payload", buf.String())
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		cfg := DefaultRequestConfig(http.MethodPost, srv.URL)
		cfg.InitialBackoff = time.Millisecond
		cfg.MaxBackoff = 5 * time.Millisecond
		_, err := Request(context.Background(), cfg, "payload")
		require.NoError(t, err)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		cfg := DefaultRequestConfig(http.MethodPost, srv.URL)
		cfg.InitialBackoff = time.Millisecond
		resp, err := Request(context.Background(), cfg, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.EqualValues(t, 1, calls.Load())
	})
}

func BenchmarkRouterServeHTTP(b *testing.B) {
	r := NewRouter()
	r.HandleFunc("GET /test", ok)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.ServeHTTP(w, req)
	}
}
