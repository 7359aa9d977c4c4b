package cache

import (
	"context"
	"fmt"

	"github.com/roach88/shiksha/internal/model"
	"github.com/roach88/shiksha/internal/store"
)

// PutAsset caches data for an asset of owner. The asset is pinned when the
// owner's subject is a priority subject. After the write the budget is
// enforced without evicting the asset just written.
func (m *Manager) PutAsset(ctx context.Context, owner model.CatalogEntry, ref model.AssetRef, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	item := store.CacheItem{Kind: store.CacheAsset, ID: ref.ID, SizeBytes: int64(len(data))}
	prev, _, err := m.store.CacheItemSize(ctx, item.Kind, item.ID)
	if err != nil {
		return err
	}

	if err := m.admit(ctx, item, prev); err != nil {
		return err
	}
	rec := model.AssetRecord{
		ID:           ref.ID,
		OwnerEntryID: owner.ID,
		Kind:         ref.Kind,
		CachedAt:     m.now(),
		Retained:     m.Pinned(owner.Subject),
	}
	if err := m.store.PutAsset(ctx, rec, data); err != nil {
		return err
	}
	_, err = m.evictTo(ctx, m.threshold(m.Limit(ctx)), item)
	return err
}

// PutCurriculum caches a curriculum record, replacing an older version with
// the same id. Returns applied=false when the cached version is newer.
func (m *Manager) PutCurriculum(ctx context.Context, rec model.CurriculumRecord) (applied bool, err error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	encoded, err := model.EncodeContent(rec.Content)
	if err != nil {
		return false, fmt.Errorf("put curriculum %s: %w", rec.ID, err)
	}
	item := store.CacheItem{Kind: store.CacheCurriculum, ID: rec.ID, SizeBytes: int64(len(encoded))}

	old, ok, err := m.store.CurriculumByID(ctx, rec.ID)
	if err != nil {
		return false, err
	}
	if ok && old.Version > rec.Version {
		return false, nil
	}
	prev, _, err := m.store.CacheItemSize(ctx, item.Kind, item.ID)
	if err != nil {
		return false, err
	}

	if err := m.admit(ctx, item, prev); err != nil {
		return false, err
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = m.now()
	}
	rec.Retained = m.Pinned(rec.Subject)
	applied, err = m.store.PutCurriculum(ctx, rec)
	if err != nil || !applied {
		return applied, err
	}
	_, err = m.evictTo(ctx, m.threshold(m.Limit(ctx)), item)
	return true, err
}
