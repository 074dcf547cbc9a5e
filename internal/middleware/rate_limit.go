package middleware

import (
	"net/http"
	"strconv"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/go-chi/httprate"
)

// GlobalRateLimit applies the coarse per-IP request ceiling in front of the
// whole API. The domain limiter in the services layer stays authoritative for
// the sensitive endpoint classes; this layer only sheds obvious floods.
func GlobalRateLimit(rate config.Rate) func(next http.Handler) http.Handler {
	return httprate.Limit(
		rate.Limit,
		rate.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(rate.Window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited","message":"Too many requests. Please try again later."}`))
		}),
	)
}
