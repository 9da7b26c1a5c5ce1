package server

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// limitPerIP caps requests per client IP within window. It expects
// middleware.RealIP to have run.
func limitPerIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
}
