// Package group implements the group-selection layer (spec.md §4.2):
// an ordered candidate list built from the caller's explicit groups,
// the static configured default list (with a stable-head shuffle), or
// the weighted cache. Grounded on pkg/common.ThreadSafeRand's shuffle
// (adapted from the teacher's clerk-side randomization) and on
// internal/master/client.go's server-list iteration idiom, generalized
// from "shard servers" to "candidate groups".
package group

import (
	"context"
	"fmt"

	"github.com/iderikon/libelliptics-proxy/pkg/common"
	"github.com/iderikon/libelliptics-proxy/pkg/config"
)

// Cache is the subset of internal/metabalancer.Cache that the selector
// needs, kept as an interface here so this package does not depend on
// internal/metabalancer or its transport. Choose is responsible for the
// one-shot synchronous refresh spec.md §3 calls for when the cache is
// still uninitialized; the selector itself only decides what to do with
// the outcome.
type Cache interface {
	Choose(ctx context.Context, size int) ([]common.GroupID, error)
	Initialized() bool
}

type Selector struct {
	cfg   config.Configuration
	rand  *common.ThreadSafeRand
	cache Cache // nil when no metabalancer transport is configured
}

func New(cfg config.Configuration, rand *common.ThreadSafeRand, cache Cache) *Selector {
	return &Selector{cfg: cfg, rand: rand, cache: cache}
}

// Select implements spec.md §4.2 steps 1-4: explicit groups win as-is;
// otherwise the configured default list is copied and its tail (every
// entry after the stable-anchor head) is shuffled; the result is then
// truncated to count if count is positive and smaller.
func (s *Selector) Select(explicit []common.GroupID, count int) ([]common.GroupID, error) {
	var out []common.GroupID
	if len(explicit) > 0 {
		out = append(out, explicit...)
	} else {
		out = append(out, s.cfg.DefaultGroups...)
		if len(out) >= 2 {
			s.rand.ShuffleTail(out)
		}
	}
	if count > 0 && count < len(out) {
		out = out[:count]
	}
	if len(out) == 0 {
		return nil, common.ErrNoGroups
	}
	return out, nil
}

// SelectForWrite implements the write-time augmentation of spec.md
// §4.2: when the metabalancer is in use and either the caller's
// explicit group count doesn't match R, or usage is MANDATORY, the
// weighted cache is consulted for a size-R pick (triggering the cache's
// own one-shot synchronous refresh if it hasn't been populated yet). On
// cache failure the call fails if usage is at least NORMAL; otherwise
// it falls back to the plain Select result.
func (s *Selector) SelectForWrite(ctx context.Context, explicit []common.GroupID, r int) ([]common.GroupID, error) {
	usage := s.cfg.Metabalancer.Usage
	if usage == config.MetabalancerNone || s.cache == nil {
		return s.Select(explicit, r)
	}

	needsCache := len(explicit) != r || usage == config.MetabalancerMandatory
	if !needsCache {
		return s.Select(explicit, r)
	}

	picked, err := s.cache.Choose(ctx, r)
	if err == nil {
		return picked, nil
	}
	if usage >= config.MetabalancerNormal {
		return nil, fmt.Errorf("%w: %v", common.ErrMetabaseUnavailable, err)
	}
	return s.Select(explicit, r)
}
