// Package following memoizes the set of followed user IDs behind a short
// TTL. Concurrent callers hitting a cache miss share one underlying
// network fetch, and a failed live fetch falls back to the last-known
// following set persisted in the store.
package following

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/birdthread/threader-go/pkg/store"
)

// DefaultTTL is how long a fetched following set stays fresh.
const DefaultTTL = 5 * time.Minute

// Fetcher is the network collaborator that lists followed user IDs.
type Fetcher interface {
	GetFollowingIDs(ctx context.Context) ([]string, error)
}

// Cache is the TTL-memoized following set.
type Cache struct {
	fetcher Fetcher
	store   store.Store
	logger  *logrus.Logger
	ttl     time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	ids       map[string]struct{}
	fetchedAt time.Time
}

// NewCache creates a cache backed by the given fetcher and store.
// A non-positive ttl falls back to DefaultTTL.
func NewCache(fetcher Fetcher, st store.Store, logger *logrus.Logger, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Cache{
		fetcher: fetcher,
		store:   st,
		logger:  logger,
		ttl:     ttl,
	}
}

// IDs returns the followed user IDs, fetching at most once per TTL window.
// Callers receive a shared read-only map and must not mutate it.
func (c *Cache) IDs(ctx context.Context) (map[string]struct{}, error) {
	c.mu.RLock()
	if c.ids != nil && time.Since(c.fetchedAt) < c.ttl {
		ids := c.ids
		c.mu.RUnlock()
		return ids, nil
	}
	c.mu.RUnlock()

	// singleflight fans concurrent misses into one fetch.
	v, err, _ := c.group.Do("following", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]struct{}), nil
}

// Invalidate drops the memoized value so the next call refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.ids = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) refresh(ctx context.Context) (map[string]struct{}, error) {
	listed, err := c.fetcher.GetFollowingIDs(ctx)
	if err == nil {
		ids := toSet(listed)
		c.mu.Lock()
		c.ids = ids
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return ids, nil
	}

	c.logger.WithError(err).Warn("live following fetch failed, using fallback")

	// Stale memoized value beats a store round-trip.
	c.mu.RLock()
	stale := c.ids
	c.mu.RUnlock()
	if stale != nil {
		return stale, nil
	}

	stored, storeErr := c.store.FollowedUserIDs()
	if storeErr != nil {
		return nil, err
	}
	return toSet(stored), nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
