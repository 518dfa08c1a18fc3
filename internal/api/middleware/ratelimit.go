package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter keeps one token bucket per key (user ID or client IP)
type KeyedRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*limiterEntry
	rate       rate.Limit
	burst      int
	maxEntries int
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewKeyedRateLimiter creates a limiter allowing r events per second with
// the given burst. Entries idle for twice the cleanup interval are dropped.
func NewKeyedRateLimiter(r rate.Limit, burst int, cleanup time.Duration) *KeyedRateLimiter {
	l := &KeyedRateLimiter{
		limiters:   make(map[string]*limiterEntry),
		rate:       r,
		burst:      burst,
		maxEntries: 10000,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanup > 0 {
		go l.cleanupStale(cleanup)
	}
	return l
}

// PerMinute converts a per-minute budget to a rate.Limit; n <= 0 means unlimited
func PerMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

// Allow reports whether one more event for key fits the budget
func (l *KeyedRateLimiter) Allow(key string) bool {
	return l.getLimiter(key).AllowN(l.now(), 1)
}

// Stop ends the cleanup goroutine
func (l *KeyedRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware rejects requests over budget with 429. The key is the
// authenticated user, or the client IP before authentication.
func (l *KeyedRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetUserID(c)
		if !ok {
			key = c.ClientIP()
		}
		if !l.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many attempts, try again later",
				"code":  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// retryAfterSeconds is the time one token takes to refill, at least a second
func (l *KeyedRateLimiter) retryAfterSeconds() int {
	if l.rate == rate.Inf || l.rate <= 0 {
		return 1
	}
	d := time.Duration(float64(time.Second) / float64(l.rate)).Round(time.Second)
	return max(int(d/time.Second), 1)
}

func (l *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.limiters[key]
	if !exists {
		if len(l.limiters) >= l.maxEntries {
			l.evictOldest()
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastAccess = l.now()
	return entry.limiter
}

func (l *KeyedRateLimiter) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range l.limiters {
		if oldestKey == "" || entry.lastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccess
		}
	}
	if oldestKey != "" {
		delete(l.limiters, oldestKey)
	}
}

func (l *KeyedRateLimiter) cleanupStale(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-2 * every)
			for key, entry := range l.limiters {
				if entry.lastAccess.Before(cutoff) {
					delete(l.limiters, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
