package middleware

import (
	"net/http"

	"github.com/edgeflare/inventory/pkg/httputil"
	"go.uber.org/zap"
)

// Recover turns a panicking handler into a 500 response and logs the panic
// value with a stack trace.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					RequestLogger(r.Context(), logger).Error("handler panic",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("url", r.URL.String()),
						zap.Stack("stack"))
					httputil.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
