package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/guideforge/guideforge/pkg/requestid"
)

// RequestID takes the request ID from the x-request-id header, falls back to
// the one chi generated, and finally mints a fresh UUID, then injects it into
// the request context so every layer logs the same identifier.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("x-request-id")
		if reqID == "" {
			reqID = middleware.GetReqID(r.Context())
		}
		if reqID == "" {
			reqID = requestid.Generate()
		}

		ctx := requestid.ToContext(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
