package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit caps request throughput across the whole server with a token
// bucket. A 429 carries the usual problem body.
func RateLimit(rps float64, burst int, next http.Handler) http.Handler {
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lim.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
