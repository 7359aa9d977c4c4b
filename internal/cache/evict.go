package cache

import (
	"context"

	"github.com/roach88/shiksha/internal/model"
	"github.com/roach88/shiksha/internal/store"
)

// Enforce evicts unpinned content, oldest first, until usage is at or below
// the eviction threshold. It is idempotent and safe to run concurrently with
// itself: an item already gone is skipped.
func (m *Manager) Enforce(ctx context.Context) ([]store.CacheItem, error) {
	return m.evictTo(ctx, m.threshold(m.Limit(ctx)), store.CacheItem{})
}

// evictTo deletes candidates until usage <= target. keep is never evicted.
// Pinned content can leave usage above target; that is logged, not an error.
func (m *Manager) evictTo(ctx context.Context, target int64, keep store.CacheItem) ([]store.CacheItem, error) {
	evicted := []store.CacheItem{}
	used, err := m.store.CacheUsage(ctx)
	if err != nil {
		return evicted, err
	}
	if used <= target {
		return evicted, nil
	}

	candidates, err := m.store.EvictionCandidates(ctx)
	if err != nil {
		return evicted, err
	}
	for _, c := range candidates {
		if used <= target {
			break
		}
		if c.Kind == keep.Kind && c.ID == keep.ID {
			continue
		}
		deleted, err := m.store.DeleteCacheItem(ctx, c)
		if err != nil {
			return evicted, err
		}
		if !deleted {
			continue
		}
		used -= c.SizeBytes
		evicted = append(evicted, c)
		m.logger.Info("cache item evicted",
			"event", "cache_evict",
			"kind", string(c.Kind),
			"id", c.ID,
			"size_bytes", c.SizeBytes,
			"cached_at", c.CachedAt,
		)
	}

	if used > target {
		m.logger.Warn("cache above target after eviction",
			"event", "cache_over_target",
			"used_bytes", used,
			"target_bytes", target,
		)
	}
	return evicted, nil
}

// admit makes room for item, which replaces prev bytes of an older copy.
//
// If the write would exceed the budget the result is QUOTA_EXCEEDED, one
// eviction pass runs, and the check is retried once.
func (m *Manager) admit(ctx context.Context, item store.CacheItem, prev int64) error {
	limit := m.Limit(ctx)
	if item.SizeBytes > limit {
		return model.NewQuotaError("cache.admit", item.ID, item.SizeBytes, limit)
	}

	err := m.checkRoom(ctx, item, prev, limit)
	if err == nil || !model.IsQuotaExceeded(err) {
		return err
	}
	m.logger.Info("cache write exceeds budget, evicting",
		"event", "cache_quota_exceeded",
		"id", item.ID,
		"size_bytes", item.SizeBytes,
		"limit_bytes", limit,
	)
	if _, err := m.evictTo(ctx, limit-(item.SizeBytes-prev), item); err != nil {
		return err
	}
	return m.checkRoom(ctx, item, prev, limit)
}

func (m *Manager) checkRoom(ctx context.Context, item store.CacheItem, prev, limit int64) error {
	used, err := m.store.CacheUsage(ctx)
	if err != nil {
		return err
	}
	if need := used - prev + item.SizeBytes; need > limit {
		return model.NewQuotaError("cache.write", item.ID, need, limit)
	}
	return nil
}
