package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// loginThrottle caps attempts per key within a fixed window. A nil throttle allows everything.
type loginThrottle struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]attemptWindow
}

type attemptWindow struct {
	attempts int
	resetAt  time.Time
}

func newLoginThrottle(limit int, window time.Duration, clock func() time.Time) *loginThrottle {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &loginThrottle{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]attemptWindow),
	}
}

// Allow records an attempt for key. When the key is over its limit it returns false together
// with the time left until the window resets.
func (t *loginThrottle) Allow(key string) (bool, time.Duration) {
	if t == nil {
		return true, 0
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = "anonymous"
	}
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.windows[key]
	if !ok || !now.Before(current.resetAt) {
		t.windows[key] = attemptWindow{attempts: 1, resetAt: now.Add(t.window)}
		t.pruneLocked(now)
		return true, 0
	}
	if current.attempts >= t.limit {
		return false, current.resetAt.Sub(now)
	}
	current.attempts++
	t.windows[key] = current
	return true, 0
}

// Reset forgets a key, used after a successful login.
func (t *loginThrottle) Reset(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.windows, strings.ToLower(strings.TrimSpace(key)))
	t.mu.Unlock()
}

func (t *loginThrottle) pruneLocked(now time.Time) {
	for key, entry := range t.windows {
		if !now.Before(entry.resetAt) {
			delete(t.windows, key)
		}
	}
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
