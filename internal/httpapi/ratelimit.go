package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	IPPerMinute  int
	IPBurst      int
	OrgPerMinute int
	OrgBurst     int
}

// RateLimiter throttles per client IP and, for authenticated traffic, per
// organization. Idle limiter entries are dropped after ten minutes.
type RateLimiter struct {
	ip     *keyedLimiter
	org    *keyedLimiter
	secret []byte
}

func NewRateLimiter(cfg RateLimitConfig, jwtSecret []byte) *RateLimiter {
	return &RateLimiter{
		ip:     newKeyedLimiter(cfg.IPPerMinute, cfg.IPBurst),
		org:    newKeyedLimiter(cfg.OrgPerMinute, cfg.OrgBurst),
		secret: jwtSecret,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := clientIP(r); ip != "" && !l.ip.allow(ip) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		if token := bearerToken(r.Header.Get("Authorization")); token != "" {
			if claims, err := ParseToken(l.secret, token); err == nil && claims.OrganizationID != "" {
				if !l.org.allow(claims.OrganizationID) {
					writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

type keyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*rate.Limiter
}

func newKeyedLimiter(perMinute, burst int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	if burst <= 0 {
		burst = 30
	}
	return &keyedLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		visitors: make(map[string]*rate.Limiter),
	}
}

func (l *keyedLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.visitors[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.visitors[key] = limiter
		go func() {
			time.Sleep(10 * time.Minute)
			l.mu.Lock()
			delete(l.visitors, key)
			l.mu.Unlock()
		}()
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
