// Package requesttime pins one "now" per request so the submission timestamp,
// token iat and audit event time agree.
package requesttime

import (
	"net/http"
	"time"

	"formvault/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
