package analysis

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MemoryDeduper is the in-process variant of the submission debounce, used
// in tests and single-instance deployments without Redis.
type MemoryDeduper struct {
	mu     sync.Mutex
	seen   map[[32]byte]time.Time
	window time.Duration
	clock  clockwork.Clock
}

func NewMemoryDeduper(window time.Duration, clock clockwork.Clock) *MemoryDeduper {
	return &MemoryDeduper{
		seen:   make(map[[32]byte]time.Time),
		window: window,
		clock:  clock,
	}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, questionID uuid.UUID, sessionID, value string) (bool, error) {
	key := sha256.Sum256([]byte(questionID.String() + "\x00" + sessionID + "\x00" + value))

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if expiry, ok := d.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	d.seen[key] = now.Add(d.window)

	if len(d.seen) > 4096 {
		for k, expiry := range d.seen {
			if now.After(expiry) {
				delete(d.seen, k)
			}
		}
	}
	return true, nil
}
