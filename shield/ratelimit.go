package shield

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines the fixed-window limit applied per client IP.
// Zero values get defaults.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

func (c *RateLimitConfig) defaults() {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 120
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter is an in-memory per-IP fixed-window limiter. Buckets are
// garbage collected lazily when a window expires.
type RateLimiter struct {
	cfg     RateLimitConfig
	exclude []string // path prefixes never limited
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a limiter with the given config. Paths starting
// with any exclude prefix bypass limiting.
func NewRateLimiter(cfg RateLimitConfig, excludePrefixes ...string) *RateLimiter {
	cfg.defaults()
	return &RateLimiter{
		cfg:     cfg,
		exclude: excludePrefixes,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Middleware enforces the limit, answering 429 with a Retry-After header
// when a client exhausts its window.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := clientIP(r)
		if retryAfter, ok := rl.take(ip); !ok {
			w.Header().Set("Retry-After", retryAfter)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// take consumes one request from the IP's window. Returns a Retry-After
// value when the window is exhausted.
func (rl *RateLimiter) take(ip string) (string, bool) {
	now := rl.now()

	rl.mu.Lock()
	b := rl.buckets[ip]
	if b == nil {
		b = &bucket{}
		rl.buckets[ip] = b
	}
	if len(rl.buckets) > maxBuckets {
		rl.gcLocked(now)
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(rl.cfg.Window)
	}
	if b.count >= rl.cfg.MaxRequests {
		secs := int(time.Until(b.resetAt).Seconds()) + 1
		if secs < 1 {
			secs = 1
		}
		return strconv.Itoa(secs), false
	}
	b.count++
	return "", true
}

const maxBuckets = 10000

// gcLocked drops expired buckets. Caller holds rl.mu.
func (rl *RateLimiter) gcLocked(now time.Time) {
	for ip, b := range rl.buckets {
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			delete(rl.buckets, ip)
		}
	}
}

// clientIP strips the port from RemoteAddr. X-Forwarded-For is deliberately
// ignored: this API is not meant to sit behind an untrusted proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

