// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package executor

import (
	"github.com/luxfi/cache"
	"github.com/luxfi/cache/lru"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
	"github.com/luxfi/pss/config"
	"github.com/luxfi/pss/metrics"
	"github.com/luxfi/pss/validators"
)

type selectionKey struct {
	snapshot ids.ID
	n        uint32
}

// Selector computes top-N selections over recorded voting-power snapshots,
// memoizing results per tracked consumer. Cached entries are keyed by the
// snapshot's content fingerprint, never its height: heights can be
// re-recorded, and sibling diffs over one base can hold different powers at
// the same height, so memoization cannot affect determinism.
type Selector struct {
	cfg     *config.Config
	metrics metrics.Metrics

	// Maps caches for each consumer that is currently tracked.
	// Key: consumer ID
	// Value: cache mapping (snapshot fingerprint, n) -> selected validators
	caches map[ids.ID]cache.Cacher[selectionKey, set.Set[ids.NodeID]]
}

func NewSelector(cfg *config.Config, metrics metrics.Metrics) *Selector {
	return &Selector{
		cfg:     cfg,
		metrics: metrics,
		caches:  make(map[ids.ID]cache.Cacher[selectionKey, set.Set[ids.NodeID]]),
	}
}

// TopN returns the top [n] percent of the power snapshot [vdrs]. The result
// is a copy; callers may mutate it.
func (s *Selector) TopN(
	vdrs validators.Set,
	consumerID ids.ID,
	n uint32,
) (set.Set[ids.NodeID], error) {
	selectionCache := s.getCache(consumerID)
	key := selectionKey{
		snapshot: vdrs.Fingerprint(),
		n:        n,
	}
	if topVdrs, ok := selectionCache.Get(key); ok {
		s.metrics.IncSelectionsCached()
		return copyOf(topVdrs), nil
	}

	topVdrs, err := validators.TopNValidators(vdrs, n)
	if err != nil {
		return nil, err
	}
	selectionCache.Put(key, topVdrs)
	s.metrics.IncSelectionsComputed()
	return copyOf(topVdrs), nil
}

// Only selections for tracked consumers are cached.
func (s *Selector) getCache(consumerID ids.ID) cache.Cacher[selectionKey, set.Set[ids.NodeID]] {
	if !s.cfg.TrackedConsumers.Contains(consumerID) {
		return &cache.Empty[selectionKey, set.Set[ids.NodeID]]{}
	}

	selectionCache, exists := s.caches[consumerID]
	if exists {
		return selectionCache
	}

	selectionCache = lru.NewCache[selectionKey, set.Set[ids.NodeID]](s.cfg.SelectionCacheSize)
	s.caches[consumerID] = selectionCache
	return selectionCache
}

func copyOf(nodeIDs set.Set[ids.NodeID]) set.Set[ids.NodeID] {
	copied := set.NewSet[ids.NodeID](nodeIDs.Len())
	copied = copied.Union(nodeIDs)
	return copied
}
