package middleware

import (
	"container/list"
	"net/http"
	"sync"
	"time"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/accesslog"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultMaxLimiters = 10000
	limiterIdleTimeout = 30 * time.Minute
)

type limiterEntry struct {
	key        string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter keeps one token bucket per client IP, evicting the least
// recently used bucket once maxEntries is reached.
type IPRateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	rate       rate.Limit
	burst      int
	maxEntries int
	logger     logrus.FieldLogger
}

func NewIPRateLimiter(requestsPerSecond, burst int, logger logrus.FieldLogger) *IPRateLimiter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &IPRateLimiter{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: defaultMaxLimiters,
		logger:     logger,
	}
}

// Allow reports whether one more request from key fits in its bucket.
func (rl *IPRateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.entries[key]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastAccess = now
		return entry.limiter.Allow()
	}

	if len(rl.entries) >= rl.maxEntries {
		if back := rl.lru.Back(); back != nil {
			delete(rl.entries, back.Value.(*limiterEntry).key)
			rl.lru.Remove(back)
		}
	}

	entry := &limiterEntry{key: key, limiter: rate.NewLimiter(rl.rate, rl.burst), lastAccess: now}
	rl.entries[key] = rl.lru.PushFront(entry)
	return entry.limiter.Allow()
}

// Cleanup drops buckets idle for longer than maxIdle.
func (rl *IPRateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0
	// Oldest entries sit at the back.
	for elem := rl.lru.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if now.Sub(entry.lastAccess) <= maxIdle {
			break
		}
		prev := elem.Prev()
		delete(rl.entries, entry.key)
		rl.lru.Remove(elem)
		removed++
		elem = prev
	}
	if removed > 0 {
		rl.logger.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": len(rl.entries),
		}).Debug("Rate limiter cleanup completed")
	}
	return removed
}

// RunCleanup evicts idle buckets every interval until done is closed.
func (rl *IPRateLimiter) RunCleanup(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Cleanup(limiterIdleTimeout)
		case <-done:
			return
		}
	}
}

// RateLimit rejects requests over the per-IP budget with an OAuth2-shaped 429.
// Rejections are recorded on sink when it is not nil.
func RateLimit(rl *IPRateLimiter, sink accesslog.Sink) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.Allow(ip) {
			rl.logger.WithFields(logrus.Fields{
				"ip":   ip,
				"path": c.Request.URL.Path,
			}).Warn("Rate limit exceeded")
			if sink != nil {
				sink.Record(accesslog.Entry{
					Endpoint:   c.Request.URL.Path,
					Outcome:    accesslog.OutcomeRateLimited,
					RemoteAddr: ip,
					Time:       time.Now(),
				})
			}
			c.Header("Retry-After", "1")
			respondWithOAuth2Error(c, http.StatusTooManyRequests, "slow_down",
				"Too many requests. Retry later.")
			return
		}
		c.Next()
	}
}
