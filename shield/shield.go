// Package shield provides HTTP protection middleware for the API surface:
// security headers, body size limits and per-IP rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack() {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// DefaultStack returns the standard middleware stack for the API:
// SecurityHeaders → MaxBody → RateLimit. The rate limiter excludes /healthz
// so liveness probes are never throttled.
func DefaultStack() []func(http.Handler) http.Handler {
	rl := NewRateLimiter(RateLimitConfig{}, "/healthz")
	return []func(http.Handler) http.Handler{
		SecurityHeaders(),
		MaxBody(1 << 20),
		rl.Middleware,
	}
}

// SecurityHeaders returns middleware that sets defensive headers on every
// response. The API serves JSON only, so framing and sniffing are denied
// outright.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBody returns middleware that caps the request body size. Oversized
// bodies fail the handler's read with a 413 from MaxBytesReader.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
