package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/shiksha/internal/model"
	"github.com/roach88/shiksha/internal/store"
)

// ErrNoSource is returned by pull operations on a manager built without a Source.
var ErrNoSource = errors.New("cache: no remote source")

// RefreshResult summarizes one Refresh.
type RefreshResult struct {
	// Updated lists entries stored at a newer version.
	Updated []string `json:"updated"`

	// Stale lists manifest lines older than the cached entry. They are ignored.
	Stale []string `json:"stale"`

	// Incomplete lists entries with at least one asset still missing.
	Incomplete []string `json:"incomplete"`

	AssetsFetched      int `json:"assets_fetched"`
	Curriculum         int `json:"curriculum"`
	CurriculumFailures int `json:"curriculum_failures"`
}

// Refresh pulls catalog and content for subjects, or for the priority
// subjects when none are given:
//
//  1. fetch the manifest and diff versions against the catalog
//  2. fetch and store changed entries
//  3. fetch missing assets of every incomplete entry
//  4. fetch curriculum for each class level the subject's entries cover
//
// Individual asset and curriculum failures are logged and retried on the
// next refresh. Manifest, entry and storage failures abort.
func (m *Manager) Refresh(ctx context.Context, subjects []string) (RefreshResult, error) {
	res := RefreshResult{Updated: []string{}, Stale: []string{}, Incomplete: []string{}}
	if m.src == nil {
		return res, ErrNoSource
	}
	if len(subjects) == 0 {
		subjects = m.PrioritySubjects()
	}

	manifest, err := m.src.FetchCatalogManifest(ctx, subjects)
	if err != nil {
		return res, fmt.Errorf("fetch manifest: %w", err)
	}

	var changed []string
	for _, line := range manifest {
		cached, ok, err := m.store.CatalogEntry(ctx, line.EntryID)
		if err != nil {
			return res, err
		}
		if !ok {
			changed = append(changed, line.EntryID)
			continue
		}
		switch {
		case line.Version < cached.Version:
			stale := model.NewStaleManifestError("cache.Refresh", line.EntryID, line.Version, cached.Version)
			m.logger.Debug("ignoring stale manifest line",
				"event", "stale_manifest",
				"error", stale,
			)
			res.Stale = append(res.Stale, line.EntryID)
		case line.Version > cached.Version:
			changed = append(changed, line.EntryID)
		}
	}

	if len(changed) > 0 {
		entries, err := m.src.FetchCatalogEntries(ctx, changed)
		if err != nil {
			return res, fmt.Errorf("fetch entries: %w", err)
		}
		for _, e := range entries {
			e.Essential = m.Pinned(e.Subject)
			e.AssetsComplete = false
			applied, err := m.store.UpsertCatalogEntry(ctx, e, m.now())
			if err != nil {
				return res, err
			}
			if applied {
				res.Updated = append(res.Updated, e.ID)
			}
		}
	}

	incomplete, err := m.store.IncompleteCatalogEntries(ctx)
	if err != nil {
		return res, err
	}
	for _, e := range incomplete {
		fetched, complete, err := m.FetchAssets(ctx, e)
		res.AssetsFetched += fetched
		if err != nil {
			return res, err
		}
		if !complete {
			res.Incomplete = append(res.Incomplete, e.ID)
		}
	}

	for _, subject := range subjects {
		if err := m.refreshCurriculum(ctx, subject, &res); err != nil {
			return res, err
		}
	}

	m.logger.Info("cache refreshed",
		"event", "cache_refresh",
		"subjects", len(subjects),
		"updated", len(res.Updated),
		"stale", len(res.Stale),
		"incomplete", len(res.Incomplete),
		"assets_fetched", res.AssetsFetched,
		"curriculum", res.Curriculum,
	)
	return res, nil
}

func (m *Manager) refreshCurriculum(ctx context.Context, subject string, res *RefreshResult) error {
	entries, err := m.store.CatalogBySubject(ctx, subject, 0)
	if err != nil {
		return err
	}
	levels := map[int]bool{}
	for _, e := range entries {
		levels[e.ClassLevel] = true
	}
	sorted := make([]int, 0, len(levels))
	for l := range levels {
		sorted = append(sorted, l)
	}
	sort.Ints(sorted)

	for _, level := range sorted {
		rec, err := m.src.FetchCurriculum(ctx, subject, level, "")
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.CurriculumFailures++
			m.logger.Warn("curriculum fetch failed",
				"event", "curriculum_fetch_failed",
				"subject", subject,
				"class_level", level,
				"error", err,
			)
			continue
		}
		applied, err := m.PutCurriculum(ctx, rec)
		if model.IsQuotaExceeded(err) {
			res.CurriculumFailures++
			m.logger.Warn("curriculum does not fit cache",
				"event", "curriculum_skipped",
				"id", rec.ID,
				"error", err,
			)
			continue
		}
		if err != nil {
			return err
		}
		if applied {
			res.Curriculum++
		}
	}
	return nil
}

// FetchAssets downloads the assets of e that are not cached yet, at most
// the configured number at a time, and records whether the entry is now
// complete. A failed asset does not fail the batch.
func (m *Manager) FetchAssets(ctx context.Context, e model.CatalogEntry) (fetched int, complete bool, err error) {
	if m.src == nil {
		return 0, false, ErrNoSource
	}

	var (
		failures atomic.Int32
		count    atomic.Int32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, ref := range e.Assets {
		g.Go(func() error {
			_, cached, err := m.store.CacheItemSize(gctx, store.CacheAsset, ref.ID)
			if err != nil {
				return err
			}
			if cached {
				return nil
			}

			data, err := m.src.FetchAsset(gctx, ref.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures.Add(1)
				m.logger.Warn("asset fetch failed",
					"event", "asset_fetch_failed",
					"entry_id", e.ID,
					"asset_id", ref.ID,
					"error", err,
				)
				return nil
			}

			if err := m.PutAsset(gctx, e, ref, data); err != nil {
				if model.IsQuotaExceeded(err) {
					failures.Add(1)
					m.logger.Warn("asset does not fit cache",
						"event", "asset_skipped",
						"entry_id", e.ID,
						"asset_id", ref.ID,
						"error", err,
					)
					return nil
				}
				return err
			}
			count.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(count.Load()), false, err
	}

	complete = failures.Load() == 0
	if err := m.store.SetAssetsComplete(ctx, e.ID, complete); err != nil {
		return int(count.Load()), false, err
	}
	return int(count.Load()), complete, nil
}
