package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/shiksha/internal/model"
)

// BundleVersion is the format version written by Export.
const BundleVersion = 1

// Bundle is a portable backup of one student's history.
type Bundle struct {
	Version      int                      `json:"version"`
	StudentID    string                   `json:"student_id"`
	ExportedAt   time.Time                `json:"exported_at"`
	Progress     []model.ProgressRecord   `json:"progress"`
	Achievements []model.AchievementEvent `json:"achievements"`
}

// ImportResult counts the records Import actually added.
type ImportResult struct {
	Progress     int `json:"progress"`
	Achievements int `json:"achievements"`
}

// Export returns a student's progress and achievements.
func (s *Store) Export(ctx context.Context, studentID string, at time.Time) (Bundle, error) {
	progress, err := s.ProgressByStudent(ctx, studentID)
	if err != nil {
		return Bundle{}, err
	}
	achievements, err := s.AchievementsByStudent(ctx, studentID)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Version:      BundleVersion,
		StudentID:    studentID,
		ExportedAt:   at,
		Progress:     progress,
		Achievements: achievements,
	}, nil
}

// Import restores a bundle in one transaction. Records already present are
// skipped, so importing the same bundle twice changes nothing. Every new
// record gets its outbox item, exactly as if it had been recorded locally.
func (s *Store) Import(ctx context.Context, b Bundle, at time.Time) (ImportResult, error) {
	if b.Version != BundleVersion {
		return ImportResult{}, fmt.Errorf("import: unsupported bundle version %d", b.Version)
	}
	var result ImportResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range b.Progress {
			if rec.StudentID != b.StudentID {
				return fmt.Errorf("progress %s belongs to %s, bundle is for %s", rec.ID, rec.StudentID, b.StudentID)
			}
			if err := checkProgress(rec); err != nil {
				return err
			}
			ok, err := recordCompletionTx(ctx, tx, rec, at)
			if err != nil {
				return err
			}
			if ok {
				result.Progress++
			}
		}
		for _, ev := range b.Achievements {
			if ev.StudentID != b.StudentID {
				return fmt.Errorf("achievement %s belongs to %s, bundle is for %s", ev.ID, ev.StudentID, b.StudentID)
			}
			if ev.ID == "" {
				ev.ID = model.AchievementEventID(ev.StudentID, ev.AchievementID)
			}
			ok, err := recordAchievementTx(ctx, tx, ev, at)
			if err != nil {
				return err
			}
			if ok {
				result.Achievements++
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, model.NewStorageError("store.Import", err)
	}
	return result, nil
}

// Stats describes what the store holds.
type Stats struct {
	CatalogEntries    int          `json:"catalog_entries"`
	IncompleteEntries int          `json:"incomplete_entries"`
	Assets            int          `json:"assets"`
	AssetBytes        int64        `json:"asset_bytes"`
	RetainedAssets    int          `json:"retained_assets"`
	Curriculum        int          `json:"curriculum"`
	CurriculumBytes   int64        `json:"curriculum_bytes"`
	ProgressRecords   int          `json:"progress_records"`
	Achievements      int          `json:"achievements"`
	Sessions          int          `json:"sessions"`
	ActiveSessions    int          `json:"active_sessions"`
	Outbox            OutboxCounts `json:"outbox"`
}

// CacheBytes is the total counted against the cache quota.
func (st Stats) CacheBytes() int64 {
	return st.AssetBytes + st.CurriculumBytes
}

// Stats returns table counts and cache byte totals.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM catalog),
			(SELECT COUNT(*) FROM catalog WHERE assets_complete = 0),
			(SELECT COUNT(*) FROM assets),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM assets),
			(SELECT COUNT(*) FROM assets WHERE retained = 1),
			(SELECT COUNT(*) FROM curriculum),
			(SELECT COALESCE(SUM(size_bytes), 0) FROM curriculum),
			(SELECT COUNT(*) FROM progress),
			(SELECT COUNT(*) FROM achievements),
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM sessions WHERE is_active = 1)
	`).Scan(
		&st.CatalogEntries, &st.IncompleteEntries,
		&st.Assets, &st.AssetBytes, &st.RetainedAssets,
		&st.Curriculum, &st.CurriculumBytes,
		&st.ProgressRecords, &st.Achievements,
		&st.Sessions, &st.ActiveSessions,
	)
	if err != nil {
		return Stats{}, model.NewStorageError("store.Stats", err)
	}
	st.Outbox, err = s.OutboxCounts(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}
