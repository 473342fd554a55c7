package analysis

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const limiterIdleEviction = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sessionLimiter is a token bucket per audience session ID. Entries that sit
// idle are evicted on access so the map stays bounded by recent activity.
type sessionLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	clock   clockwork.Clock
}

func newSessionLimiter(rps float64, burst int, clock clockwork.Clock) *sessionLimiter {
	return &sessionLimiter{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		clock:   clock,
	}
}

func (l *sessionLimiter) Allow(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entry, ok := l.entries[sessionID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[sessionID] = entry
	}
	entry.lastSeen = now

	if len(l.entries) > 1024 {
		l.evictIdleLocked(now)
	}
	return entry.limiter.Allow()
}

func (l *sessionLimiter) evictIdleLocked(now time.Time) {
	for sessionID, entry := range l.entries {
		if now.Sub(entry.lastSeen) > limiterIdleEviction {
			delete(l.entries, sessionID)
		}
	}
}
