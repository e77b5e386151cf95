package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSWithOptions(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		options        *CORSOptions
		name           string
		method         string
		origin         string
		preflight      bool
		expectedOrigin string
		expectedStatus int
	}{
		{
			name:           "default options allow any origin",
			method:         http.MethodGet,
			origin:         "http://example.com",
			expectedOrigin: "*",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "listed origin is echoed",
			method:         http.MethodGet,
			origin:         "http://example.com",
			options:        &CORSOptions{AllowedOrigins: []string{"http://example.com"}},
			expectedOrigin: "http://example.com",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unlisted origin gets no headers",
			method:         http.MethodGet,
			origin:         "http://evil.test",
			options:        &CORSOptions{AllowedOrigins: []string{"http://example.com"}},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "preflight short-circuits",
			method:         http.MethodOptions,
			origin:         "http://example.com",
			preflight:      true,
			expectedOrigin: "*",
			expectedStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/inventory", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()

			CORSWithOptions(tt.options)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
