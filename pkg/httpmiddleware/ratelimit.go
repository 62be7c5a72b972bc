package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/jx"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per window. Zero or less
	// disables limiting.
	Max int
	// Window is the length of one window.
	Window time.Duration
	// KeyFunc names the bucket a request counts against. An empty key falls
	// back to the client IP.
	KeyFunc func(*http.Request) string
}

// bucket counts requests of one key in the current and the previous window.
type bucket struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type rateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &rateLimiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (rl *rateLimiter) key(r *http.Request) string {
	if rl.cfg.KeyFunc != nil {
		if k := rl.cfg.KeyFunc(r); k != "" {
			return k
		}
	}
	return "ip:" + clientIP(r)
}

// allow records a request for key at now and reports whether it fits in the
// limit, along with the remaining budget and the end of the current window.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.cfg.Window
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{currStart: now.Truncate(w)}
		rl.buckets[key] = b
	}

	if start := now.Truncate(w); start.After(b.currStart) {
		if start.Sub(b.currStart) == w {
			b.prev = b.curr
		} else {
			b.prev = 0
		}
		b.curr = 0
		b.currStart = start
	}

	// The previous window counts in proportion to its overlap with the
	// sliding window ending at now.
	overlap := 1 - float64(now.Sub(b.currStart))/float64(w)
	effective := b.prev*math.Max(overlap, 0) + b.curr
	resetAt = b.currStart.Add(w)

	if effective >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}
	b.curr++
	return max(int(float64(rl.cfg.Max)-effective-1), 0), resetAt, true
}

// evict drops buckets that no longer influence any decision.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.currStart) >= 2*rl.cfg.Window {
			delete(rl.buckets, key)
		}
	}
}

func (rl *rateLimiter) runEviction(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict(rl.now())
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	if rl.cfg.Max <= 0 {
		return next
	}
	limit := strconv.Itoa(rl.cfg.Max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := rl.now()
		remaining, resetAt, allowed := rl.allow(rl.key(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(resetAt.Sub(now).Seconds()))))
			writeRateLimited(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(http.StatusTooManyRequests)
	e.FieldStart("message")
	e.Str("rate limit exceeded")
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write(e.Bytes())
}

// RateLimit enforces a per-key sliding window limit. Rejected requests get
// 429 with a JSON body; every response carries the X-RateLimit-* headers.
// Buckets are never evicted; see RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit with a background goroutine that evicts
// idle buckets every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	if cfg.Max > 0 {
		go rl.runEviction(ctx)
	}
	return rl.middleware
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
