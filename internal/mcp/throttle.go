package mcp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttleWindow is how often a repeated failure line may be logged per
// (server, message) key.
const throttleWindow = 5 * time.Minute

// throttleCacheCap bounds the limiter cache. A rotating set of servers and
// error messages cannot grow the cache without limit; when full, the oldest
// key is evicted.
const throttleCacheCap = 1024

// logThrottle deduplicates repeated failure logs. Each distinct
// (server, message) pair gets a rate limiter allowing one log per window.
type logThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	order    []string
	cap      int
}

func newLogThrottle() *logThrottle {
	return &logThrottle{
		limiters: make(map[string]*rate.Limiter),
		order:    make([]string, 0, throttleCacheCap),
		cap:      throttleCacheCap,
	}
}

// allow reports whether this (server, message) pair may be logged now.
// The first occurrence of a key always passes.
func (t *logThrottle) allow(server, message string) bool {
	key := server + "\x00" + message

	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limiters[key]
	if !ok {
		if len(t.order) >= t.cap {
			oldest := t.order[0]
			t.order = t.order[1:]
			delete(t.limiters, oldest)
		}
		limiter = rate.NewLimiter(rate.Every(throttleWindow), 1)
		t.limiters[key] = limiter
		t.order = append(t.order, key)
	}

	return limiter.Allow()
}

// reset drops all throttle state for a server so the next failure logs
// immediately. Called on manual retry and on config replacement.
func (t *logThrottle) reset(server string) {
	prefix := server + "\x00"

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.order[:0]
	for _, key := range t.order {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(t.limiters, key)
		} else {
			kept = append(kept, key)
		}
	}
	t.order = kept
}
