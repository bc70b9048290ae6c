package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/custodialabs/custodia/pkg/observability"
)

// RequestID assigns each request a UUID, exposes it in the X-Request-ID
// response header and makes it available to the logger via the context.
// An incoming X-Request-ID header is honored so callers can correlate.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := observability.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
