package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const rateLimitedMessage = "Too many requests, please try again later"

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration

	// KeyFunc identifies the client. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests such as health probes.
	Skip func(*http.Request) bool
}

// counter approximates a sliding window from two fixed ones: the hits of
// the previous window count in proportion to how much of it still overlaps.
type counter struct {
	start time.Time
	last  int
	hits  int
}

func (c *counter) advance(now time.Time, window time.Duration) {
	switch gone := now.Sub(c.start); {
	case gone < window:
	case gone < 2*window:
		c.last, c.hits = c.hits, 0
		c.start = c.start.Add(window)
	default:
		c.last, c.hits = 0, 0
		c.start = now.Truncate(window)
	}
}

func (c *counter) weight(now time.Time, window time.Duration) float64 {
	overlap := 1 - float64(now.Sub(c.start))/float64(window)
	return float64(c.last)*max(overlap, 0) + float64(c.hits)
}

type verdict struct {
	ok        bool
	remaining int
	reset     time.Time
}

type limiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	clients map[string]*counter
}

func (l *limiter) take(key string, now time.Time) verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.clients[key]
	if c == nil {
		c = &counter{start: now.Truncate(l.window)}
		l.clients[key] = c
	}
	c.advance(now, l.window)

	v := verdict{reset: c.start.Add(l.window)}
	used := c.weight(now, l.window)
	if used >= float64(l.max) {
		return v
	}
	c.hits++
	v.ok = true
	v.remaining = max(l.max-int(used)-1, 0)
	return v
}

// evict drops clients idle for two windows.
func (l *limiter) evict(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, c := range l.clients {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.clients, key)
			n++
		}
	}
	return n
}

func (l *limiter) sweep(ctx context.Context) {
	t := time.NewTicker(2 * l.window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.evict(now)
		}
	}
}

// RateLimit limits each client to cfg.Max requests per cfg.Window. Limited
// requests get 429 with a Retry-After header; every counted response carries
// the X-RateLimit-* headers. Idle clients are never evicted, see
// RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limit(cfg, newLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit with a background sweep of idle clients
// that runs until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.sweep(ctx)
	return limit(cfg, l)
}

func newLimiter(cfg RateLimitConfig) *limiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &limiter{
		max:     cfg.Max,
		window:  window,
		clients: map[string]*counter{},
	}
}

func limit(cfg RateLimitConfig, l *limiter) Middleware {
	key := cfg.KeyFunc
	if key == nil {
		key = clientIP
	}
	limitValue := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			v := l.take(key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limitValue)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(v.reset.Unix(), 10))
			if v.ok {
				next.ServeHTTP(w, r)
				return
			}

			wait := v.reset.Sub(now)
			secs := int64(wait / time.Second)
			if wait%time.Second > 0 {
				secs++
			}
			h.Set("Retry-After", strconv.FormatInt(secs, 10))
			writeError(w, http.StatusTooManyRequests, rateLimitedMessage)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
