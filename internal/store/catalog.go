package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

const catalogColumns = `body, essential, assets_complete, updated_at`

// UpsertCatalogEntry stores e unless an equal or newer version is cached.
// Returns applied=false when the cached version was kept.
func (s *Store) UpsertCatalogEntry(ctx context.Context, e model.CatalogEntry, now time.Time) (applied bool, err error) {
	if e.ID == "" {
		return false, fmt.Errorf("upsert catalog entry: empty id")
	}
	body, err := marshalCatalogBody(e)
	if err != nil {
		return false, model.NewStorageError("store.UpsertCatalogEntry", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog
		(id, subject, subject_key, class_level, difficulty, version, essential, assets_complete, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			subject_key = excluded.subject_key,
			class_level = excluded.class_level,
			difficulty = excluded.difficulty,
			version = excluded.version,
			essential = excluded.essential,
			assets_complete = excluded.assets_complete,
			body = excluded.body,
			updated_at = excluded.updated_at
		WHERE excluded.version > catalog.version
	`,
		e.ID,
		e.Subject,
		model.NormalizeSubject(e.Subject),
		e.ClassLevel,
		string(e.Difficulty),
		e.Version,
		e.Essential,
		e.AssetsComplete,
		body,
		toMillis(now),
	)
	if err != nil {
		return false, model.NewStorageError("store.UpsertCatalogEntry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, model.NewStorageError("store.UpsertCatalogEntry", err)
	}
	return n > 0, nil
}

// CatalogEntry returns the cached entry with the given id.
func (s *Store) CatalogEntry(ctx context.Context, id string) (model.CatalogEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM catalog WHERE id = ?`, id)
	e, ok, err := getOne(row, scanCatalogEntry)
	if err != nil {
		return model.CatalogEntry{}, false, model.NewStorageError("store.CatalogEntry", err)
	}
	return e, ok, nil
}

// CatalogEntries returns every cached entry ordered by id.
func (s *Store) CatalogEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+catalogColumns+` FROM catalog
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, model.NewStorageError("store.CatalogEntries", err)
	}
	out, err := collect(rows, scanCatalogEntry)
	if err != nil {
		return nil, model.NewStorageError("store.CatalogEntries", err)
	}
	return out, nil
}

// CatalogBySubject returns entries for a subject. classLevel 0 matches any class.
func (s *Store) CatalogBySubject(ctx context.Context, subject string, classLevel int) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+catalogColumns+` FROM catalog
		WHERE subject_key = ? AND (? = 0 OR class_level = ?)
		ORDER BY class_level ASC, id COLLATE BINARY ASC
	`, model.NormalizeSubject(subject), classLevel, classLevel)
	if err != nil {
		return nil, model.NewStorageError("store.CatalogBySubject", err)
	}
	out, err := collect(rows, scanCatalogEntry)
	if err != nil {
		return nil, model.NewStorageError("store.CatalogBySubject", err)
	}
	return out, nil
}

// IncompleteCatalogEntries returns entries whose assets are not fully cached.
func (s *Store) IncompleteCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+catalogColumns+` FROM catalog
		WHERE assets_complete = 0
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, model.NewStorageError("store.IncompleteCatalogEntries", err)
	}
	out, err := collect(rows, scanCatalogEntry)
	if err != nil {
		return nil, model.NewStorageError("store.IncompleteCatalogEntries", err)
	}
	return out, nil
}

// SetAssetsComplete marks whether every asset of entry id is cached.
func (s *Store) SetAssetsComplete(ctx context.Context, id string, complete bool) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE catalog SET assets_complete = ? WHERE id = ?`, complete, id); err != nil {
		return model.NewStorageError("store.SetAssetsComplete", err)
	}
	return nil
}
