package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Cheap in-memory pre-filter in front of the public signup endpoint. It only
// sheds request floods before the durable counters do the real accounting,
// so losing its state on restart is fine.
type ipThrottle struct {
	mu      sync.Mutex
	clients map[string]*throttleEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPThrottle(rps float64, burst int) *ipThrottle {
	t := &ipThrottle{
		clients: make(map[string]*throttleEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
	}

	go func() {
		ticker := time.NewTicker(2 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			t.cleanup()
		}
	}()

	return t
}

func (t *ipThrottle) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.clients[ip]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.clients[ip] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

func (t *ipThrottle) cleanup() {
	cutoff := time.Now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	for ip, entry := range t.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(t.clients, ip)
		}
	}
}

func Throttle(rps float64, burst int) gin.HandlerFunc {
	throttle := newIPThrottle(rps, burst)

	return func(c *gin.Context) {
		if !throttle.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
