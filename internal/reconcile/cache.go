package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/shaniKupiec/LiveSentiment-sub000/internal/domain"
)

const listCacheTTL = 5 * time.Minute

// Lister is the list read behind the cache.
type Lister interface {
	ListPresentations(ctx context.Context) ([]domain.Presentation, error)
}

// ListCache keeps the presentations list for a staleness window. It refetches
// only on expiry or explicit force-refresh, and collapses concurrent
// refetches into a single upstream call.
type ListCache struct {
	lister Lister
	clock  clockwork.Clock

	mu        sync.Mutex
	cached    []domain.Presentation
	fetchedAt time.Time
	populated bool

	group singleflight.Group
}

func NewListCache(lister Lister, clock clockwork.Clock) *ListCache {
	return &ListCache{lister: lister, clock: clock}
}

func (c *ListCache) Get(ctx context.Context) ([]domain.Presentation, error) {
	c.mu.Lock()
	if c.populated && c.clock.Since(c.fetchedAt) < listCacheTTL {
		cached := c.cached
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	return c.fetch(ctx)
}

// ForceRefresh bypasses the staleness window.
func (c *ListCache) ForceRefresh(ctx context.Context) ([]domain.Presentation, error) {
	return c.fetch(ctx)
}

func (c *ListCache) fetch(ctx context.Context) ([]domain.Presentation, error) {
	result, err, _ := c.group.Do("presentations", func() (any, error) {
		presentations, err := c.lister.ListPresentations(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cached = presentations
		c.fetchedAt = c.clock.Now()
		c.populated = true
		c.mu.Unlock()
		return presentations, nil
	})
	if err != nil {
		// Fall back to the stale copy when the refetch fails.
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.populated {
			return c.cached, nil
		}
		return nil, err
	}
	return result.([]domain.Presentation), nil
}
