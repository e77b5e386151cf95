package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORSOptions defines configuration for CORS.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// defaultCORSOptions returns the default CORS options for the inventory API.
func defaultCORSOptions() *CORSOptions {
	return &CORSOptions{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Accept", "Origin", RequestIDHeader},
	}
}

// CORSWithOptions creates a CORS middleware with the provided configuration.
// If options is nil, it will use the default CORS settings. A request origin
// is echoed back only when it is allowed; "*" allows any origin.
func CORSWithOptions(options *CORSOptions) func(http.Handler) http.Handler {
	if options == nil {
		options = defaultCORSOptions()
	}
	anyOrigin := slices.Contains(options.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (anyOrigin || slices.Contains(options.AllowedOrigins, origin)) {
				h := w.Header()
				if anyOrigin && !options.AllowCredentials {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
				if len(options.AllowedMethods) > 0 {
					h.Set("Access-Control-Allow-Methods", strings.Join(options.AllowedMethods, ","))
				}
				if len(options.AllowedHeaders) > 0 {
					h.Set("Access-Control-Allow-Headers", strings.Join(options.AllowedHeaders, ","))
				}
				if options.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			// Handle preflight request
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
