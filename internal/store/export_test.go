package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiksha/internal/model"
)

func TestExportImport_RoundTripIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := createTestStore(t)
	mustRecord(t, src, createTestProgress("p1", "s1", "g1", baseTime))
	mustRecord(t, src, createTestProgress("p2", "s1", "g2", baseTime.Add(time.Hour)))
	mustRecord(t, src, createTestProgress("x1", "s2", "g1", baseTime))
	_, err := src.RecordAchievement(ctx, model.AchievementEvent{StudentID: "s1", AchievementID: "first_game", XPReward: 50, UnlockedAt: baseTime}, baseTime)
	require.NoError(t, err)

	bundle, err := src.Export(ctx, "s1", baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, BundleVersion, bundle.Version)
	assert.Len(t, bundle.Progress, 2)
	assert.Len(t, bundle.Achievements, 1)

	dst := createTestStore(t)
	res, err := dst.Import(ctx, bundle, baseTime.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Progress: 2, Achievements: 1}, res)

	res, err = dst.Import(ctx, bundle, baseTime.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{}, res)

	got, err := dst.ProgressByStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, bundle.Progress, got)

	counts, err := dst.OutboxCounts(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Pending, "imported records are paired with outbox items")
}

func TestImport_RejectsForeignRecords(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	bundle := Bundle{
		Version:   BundleVersion,
		StudentID: "s1",
		Progress: []model.ProgressRecord{
			createTestProgress("p1", "s1", "g1", baseTime),
			createTestProgress("p2", "s2", "g1", baseTime),
		},
	}

	_, err := s.Import(ctx, bundle, baseTime)
	require.Error(t, err)

	list, err := s.ProgressByStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, list, "import is all or nothing")
}

func TestImport_RejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ProgressRecord)
	}{
		{"empty id", func(p *model.ProgressRecord) { p.ID = "" }},
		{"empty entry", func(p *model.ProgressRecord) { p.EntryID = "" }},
		{"negative score", func(p *model.ProgressRecord) { p.Score = -1 }},
		{"score above 100", func(p *model.ProgressRecord) { p.Score = 101 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := createTestStore(t)
			bad := createTestProgress("p2", "s1", "g1", baseTime)
			tt.mutate(&bad)
			bundle := Bundle{
				Version:   BundleVersion,
				StudentID: "s1",
				Progress:  []model.ProgressRecord{createTestProgress("p1", "s1", "g1", baseTime), bad},
			}

			_, err := s.Import(ctx, bundle, baseTime)
			require.Error(t, err)

			list, err := s.ProgressByStudent(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, list)
			counts, err := s.OutboxCounts(ctx, "")
			require.NoError(t, err)
			assert.Zero(t, counts.Pending)
		})
	}

	t.Run("empty student", func(t *testing.T) {
		s := createTestStore(t)
		bundle := Bundle{
			Version:  BundleVersion,
			Progress: []model.ProgressRecord{createTestProgress("p1", "", "g1", baseTime)},
		}
		_, err := s.Import(context.Background(), bundle, baseTime)
		require.Error(t, err)
	})
}

func TestImport_RejectsUnknownVersion(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Import(context.Background(), Bundle{Version: 99}, baseTime)
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	_, err := s.UpsertCatalogEntry(ctx, createTestEntry("g1", "maths", 6, 1), baseTime)
	require.NoError(t, err)
	require.NoError(t, s.PutAsset(ctx, model.AssetRecord{ID: "a", OwnerEntryID: "g1", Retained: true, CachedAt: baseTime}, make([]byte, 7)))
	mustRecord(t, s, createTestProgress("p1", "s1", "g1", baseTime))
	require.NoError(t, s.StartSession(ctx, model.SessionRecord{ID: "x", StudentID: "s1", EntryID: "g1", StartedAt: baseTime}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CatalogEntries)
	assert.Equal(t, 1, st.IncompleteEntries)
	assert.Equal(t, 1, st.Assets)
	assert.Equal(t, int64(7), st.AssetBytes)
	assert.Equal(t, 1, st.RetainedAssets)
	assert.Equal(t, int64(7), st.CacheBytes())
	assert.Equal(t, 1, st.ProgressRecords)
	assert.Equal(t, 1, st.ActiveSessions)
	assert.Equal(t, 1, st.Outbox.Pending)
}
