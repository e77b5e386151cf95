package middleware

import (
	"context"
	"net/http"

	"github.com/edgeflare/inventory/pkg/httputil"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID middleware assigns a request ID, taken from the X-Request-Id header
// when the caller supplies one, and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check if request ID is already set in the context
		reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
		if !ok || reqID == "" {
			reqID = r.Header.Get(RequestIDHeader)
		}
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		w.Header().Set(RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
