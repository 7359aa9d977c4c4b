package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

// CacheItemKind distinguishes the two tables that share the cache quota.
type CacheItemKind string

const (
	CacheAsset      CacheItemKind = "asset"
	CacheCurriculum CacheItemKind = "curriculum"
)

// CacheItem is an evictable unit of cached content.
type CacheItem struct {
	Kind      CacheItemKind
	ID        string
	SizeBytes int64
	CachedAt  time.Time
}

const assetColumns = `id, owner_entry_id, kind, size_bytes, cached_at, retained`

// PutAsset stores asset bytes, replacing any previous copy with the same id.
// SizeBytes is taken from len(data).
func (s *Store) PutAsset(ctx context.Context, a model.AssetRecord, data []byte) error {
	if a.ID == "" {
		return fmt.Errorf("put asset: empty id")
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (id, owner_entry_id, kind, size_bytes, cached_at, retained, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_entry_id = excluded.owner_entry_id,
			kind = excluded.kind,
			size_bytes = excluded.size_bytes,
			cached_at = excluded.cached_at,
			retained = excluded.retained,
			data = excluded.data
	`, a.ID, a.OwnerEntryID, a.Kind, int64(len(data)), toMillis(a.CachedAt), a.Retained, data)
	if err != nil {
		return model.NewStorageError("store.PutAsset", err)
	}
	return nil
}

// Asset returns the metadata of a cached asset.
func (s *Store) Asset(ctx context.Context, id string) (model.AssetRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	a, ok, err := getOne(row, scanAsset)
	if err != nil {
		return model.AssetRecord{}, false, model.NewStorageError("store.Asset", err)
	}
	return a, ok, nil
}

// AssetData returns the bytes of a cached asset.
func (s *Store) AssetData(ctx context.Context, id string) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM assets WHERE id = ?`, id)
	data, ok, err := getOne(row, func(r rowScanner) ([]byte, error) {
		var b []byte
		err := r.Scan(&b)
		return b, err
	})
	if err != nil {
		return nil, false, model.NewStorageError("store.AssetData", err)
	}
	return data, ok, nil
}

// AssetsByOwner returns cached assets of a catalog entry ordered by id.
func (s *Store) AssetsByOwner(ctx context.Context, entryID string) ([]model.AssetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE owner_entry_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, entryID)
	if err != nil {
		return nil, model.NewStorageError("store.AssetsByOwner", err)
	}
	out, err := collect(rows, scanAsset)
	if err != nil {
		return nil, model.NewStorageError("store.AssetsByOwner", err)
	}
	return out, nil
}

// DeleteAsset removes a cached asset. Deleting a missing id is a no-op.
func (s *Store) DeleteAsset(ctx context.Context, id string) (deleted bool, err error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return false, model.NewStorageError("store.DeleteAsset", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const curriculumColumns = `id, subject, class_level, topic, language, version, content, fetched_at, retained`

// PutCurriculum replaces the cached record with the same id unless the
// cached version is newer. Returns applied=false when the cached copy was kept.
func (s *Store) PutCurriculum(ctx context.Context, c model.CurriculumRecord) (applied bool, err error) {
	if c.ID == "" {
		return false, fmt.Errorf("put curriculum: empty id")
	}
	content, err := model.EncodeContent(c.Content)
	if err != nil {
		return false, fmt.Errorf("put curriculum: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO curriculum
		(id, subject, subject_key, class_level, topic, language, version, content, size_bytes, fetched_at, retained)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			subject_key = excluded.subject_key,
			class_level = excluded.class_level,
			topic = excluded.topic,
			language = excluded.language,
			version = excluded.version,
			content = excluded.content,
			size_bytes = excluded.size_bytes,
			fetched_at = excluded.fetched_at,
			retained = excluded.retained
		WHERE excluded.version >= curriculum.version
	`,
		c.ID, c.Subject, model.NormalizeSubject(c.Subject), c.ClassLevel, c.Topic, c.Language,
		c.Version, content, int64(len(content)), toMillis(c.FetchedAt), c.Retained,
	)
	if err != nil {
		return false, model.NewStorageError("store.PutCurriculum", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Curriculum looks up content by subject and class. An empty topic matches
// any topic; the first by (topic, id) is returned.
func (s *Store) Curriculum(ctx context.Context, subject string, classLevel int, topic string) (model.CurriculumRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+curriculumColumns+` FROM curriculum
		WHERE subject_key = ? AND class_level = ? AND (? = '' OR topic = ?)
		ORDER BY topic ASC, id COLLATE BINARY ASC
		LIMIT 1
	`, model.NormalizeSubject(subject), classLevel, topic, topic)
	c, ok, err := getOne(row, scanCurriculum)
	if err != nil {
		return model.CurriculumRecord{}, false, model.NewStorageError("store.Curriculum", err)
	}
	return c, ok, nil
}

// CurriculumByID returns the cached record with the given id.
func (s *Store) CurriculumByID(ctx context.Context, id string) (model.CurriculumRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+curriculumColumns+` FROM curriculum WHERE id = ?`, id)
	c, ok, err := getOne(row, scanCurriculum)
	if err != nil {
		return model.CurriculumRecord{}, false, model.NewStorageError("store.CurriculumByID", err)
	}
	return c, ok, nil
}

// DeleteCurriculum removes a cached record. Deleting a missing id is a no-op.
func (s *Store) DeleteCurriculum(ctx context.Context, id string) (deleted bool, err error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM curriculum WHERE id = ?`, id)
	if err != nil {
		return false, model.NewStorageError("store.DeleteCurriculum", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CacheUsage returns the bytes held by assets and curriculum together.
func (s *Store) CacheUsage(ctx context.Context) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(size_bytes), 0) FROM assets) +
			(SELECT COALESCE(SUM(size_bytes), 0) FROM curriculum)
	`).Scan(&used)
	if err != nil {
		return 0, model.NewStorageError("store.CacheUsage", err)
	}
	return used, nil
}

// EvictionCandidates returns unretained cache items, oldest first.
// Ties on cached time break by kind then id.
func (s *Store) EvictionCandidates(ctx context.Context) ([]CacheItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT 'asset', id, size_bytes, cached_at FROM assets WHERE retained = 0
		UNION ALL
		SELECT 'curriculum', id, size_bytes, fetched_at FROM curriculum WHERE retained = 0
		ORDER BY 4 ASC, 1 ASC, 2 ASC
	`)
	if err != nil {
		return nil, model.NewStorageError("store.EvictionCandidates", err)
	}
	out, err := collect(rows, func(r rowScanner) (CacheItem, error) {
		var it CacheItem
		var kind string
		var at int64
		if err := r.Scan(&kind, &it.ID, &it.SizeBytes, &at); err != nil {
			return CacheItem{}, err
		}
		it.Kind = CacheItemKind(kind)
		it.CachedAt = fromMillis(at)
		return it, nil
	})
	if err != nil {
		return nil, model.NewStorageError("store.EvictionCandidates", err)
	}
	return out, nil
}

// DeleteCacheItem removes an asset or curriculum record by kind.
func (s *Store) DeleteCacheItem(ctx context.Context, it CacheItem) (bool, error) {
	switch it.Kind {
	case CacheAsset:
		return s.DeleteAsset(ctx, it.ID)
	case CacheCurriculum:
		return s.DeleteCurriculum(ctx, it.ID)
	}
	return false, fmt.Errorf("delete cache item: unknown kind %q", it.Kind)
}

// CacheItemSize returns the stored size of an asset or curriculum record.
func (s *Store) CacheItemSize(ctx context.Context, kind CacheItemKind, id string) (int64, bool, error) {
	var q string
	switch kind {
	case CacheAsset:
		q = `SELECT size_bytes FROM assets WHERE id = ?`
	case CacheCurriculum:
		q = `SELECT size_bytes FROM curriculum WHERE id = ?`
	default:
		return 0, false, fmt.Errorf("cache item size: unknown kind %q", kind)
	}
	var size int64
	err := s.db.QueryRowContext(ctx, q, id).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, model.NewStorageError("store.CacheItemSize", err)
	}
	return size, true, nil
}

// ResetCache drops every asset and curriculum record, retained ones included,
// and marks all catalog entries incomplete so the next sync refetches.
func (s *Store) ResetCache(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM assets`,
			`DELETE FROM curriculum`,
			`UPDATE catalog SET assets_complete = 0`,
		} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.NewStorageError("store.ResetCache", err)
	}
	return nil
}
