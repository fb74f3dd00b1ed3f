package metabalancer

import (
	"context"
	"fmt"
	"sync"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
)

// Refresher fetches a fresh group-weights snapshot on demand. *Client
// satisfies it. Cache holds one so Choose can perform the one-shot
// synchronous refresh spec.md §3 calls for when nothing has populated
// the cache yet, matching get_metabalancer_groups_impl's
// "!initialized() && !collect_group_weights()" check in
// original_source/src/proxy.cpp.
type Refresher interface {
	GroupWeights(ctx context.Context) (map[int][]WeightEntry, error)
}

// Cache is the weighted group cache of spec.md §4.6: for each observed
// group-set size it holds a list of (groups, weight) candidates and
// answers Choose with a weighted-random pick. It satisfies
// internal/group.Cache.
type Cache struct {
	mu          sync.RWMutex
	bySize      map[int][]WeightEntry
	initialized bool
	rand        *common.ThreadSafeRand
	refresher   Refresher
}

// NewCache builds a Cache that refreshes itself through refresher on
// demand. refresher may be nil (a cache that only a background worker
// ever populates via update); a Choose call made before that happens
// then fails instead of refreshing.
func NewCache(rand *common.ThreadSafeRand, refresher Refresher) *Cache {
	return &Cache{rand: rand, refresher: refresher}
}

func (c *Cache) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// update replaces the cached weights wholesale; called by the refresh
// worker after a successful get_group_weights round trip.
func (c *Cache) update(bySize map[int][]WeightEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bySize = bySize
	c.initialized = true
}

// refresh performs the one-shot synchronous fetch Choose falls back to
// when nothing has populated the cache yet.
func (c *Cache) refresh(ctx context.Context) error {
	if c.refresher == nil {
		return fmt.Errorf("%w: weighted cache not yet populated", common.ErrMetabaseUnavailable)
	}
	bySize, err := c.refresher.GroupWeights(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrMetabaseUnavailable, err)
	}
	c.update(bySize)
	return nil
}

// KnownGroups returns the union of every group id appearing in any
// cached weight entry, for get_all_groups (spec.md §6): a local
// computation over what the weighted cache currently knows, since the
// wire protocol has no single call for "every group".
func (c *Cache) KnownGroups() []common.GroupID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[common.GroupID]struct{})
	var out []common.GroupID
	for _, entries := range c.bySize {
		for _, e := range entries {
			for _, g := range e.Groups {
				if _, ok := seen[g]; !ok {
					seen[g] = struct{}{}
					out = append(out, g)
				}
			}
		}
	}
	return out
}

// Choose picks one (groups) candidate for the requested group-set size,
// weighted-random over the candidates observed for that size (spec.md
// §4.6). If the cache has never been populated it attempts exactly one
// synchronous refresh before giving up (spec.md §3's invariant); it
// otherwise fails only if size was never reported by the metabalancer
// or the refresh itself failed.
func (c *Cache) Choose(ctx context.Context, size int) ([]common.GroupID, error) {
	if !c.Initialized() {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, ok := c.bySize[size]
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("%w: no weighted groups known for size %d", common.ErrMetabaseUnavailable, size)
	}

	var total float64
	for _, e := range entries {
		total += e.Weight
	}
	if total <= 0 {
		return entries[0].Groups, nil
	}

	pick := c.rand.Float64() * total
	var acc float64
	for _, e := range entries {
		acc += e.Weight
		if pick < acc {
			return e.Groups, nil
		}
	}
	return entries[len(entries)-1].Groups, nil
}
