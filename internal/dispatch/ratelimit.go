package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cleanupInterval is how often idle limiters are dropped.
const cleanupInterval = 5 * time.Minute

// userLimiter keeps one token bucket per user. A nil *userLimiter allows
// everything.
type userLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

// newUserLimiter allows perWindow messages per window with the whole
// allowance available as a burst. perWindow <= 0 disables limiting.
func newUserLimiter(perWindow int, window time.Duration) *userLimiter {
	if perWindow <= 0 {
		return nil
	}
	return &userLimiter{
		rate:        rate.Limit(float64(perWindow) / window.Seconds()),
		burst:       perWindow,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether userID may send another message now.
func (l *userLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	return l.get(userID).Allow()
}

func (l *userLimiter) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	l.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket is full again, which means the
// user has been idle long enough not to matter.
func (l *userLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < cleanupInterval {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}
