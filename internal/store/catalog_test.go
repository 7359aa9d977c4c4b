package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiksha/internal/model"
)

func TestUpsertCatalogEntry_NewerVersionSupersedes(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	v1 := createTestEntry("g1", "Maths", 6, 1)
	v1.Requirements = []model.Requirement{{Type: model.RequireLevel, Value: 5}}
	applied, err := s.UpsertCatalogEntry(ctx, v1, baseTime)
	require.NoError(t, err)
	assert.True(t, applied)

	v2 := v1
	v2.Version = 2
	v2.BaseXPReward = 150
	applied, err = s.UpsertCatalogEntry(ctx, v2, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, applied)

	older := v1
	older.BaseXPReward = 1
	applied, err = s.UpsertCatalogEntry(ctx, older, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, applied, "older version must not replace newer")

	got, ok, err := s.CatalogEntry(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, int64(150), got.BaseXPReward)
	assert.Equal(t, v1.Requirements, got.Requirements)
	assert.Equal(t, baseTime.Add(time.Hour), got.UpdatedAt)
}

func TestCatalogBySubject_FoldsCase(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	for _, e := range []model.CatalogEntry{
		createTestEntry("m7", "Maths", 7, 1),
		createTestEntry("m6b", "maths", 6, 1),
		createTestEntry("m6a", "MATHS", 6, 1),
		createTestEntry("s6", "Science", 6, 1),
	} {
		_, err := s.UpsertCatalogEntry(ctx, e, baseTime)
		require.NoError(t, err)
	}

	class6, err := s.CatalogBySubject(ctx, "maths", 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"m6a", "m6b"}, entryIDs(class6))

	anyClass, err := s.CatalogBySubject(ctx, "Maths", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m6a", "m6b", "m7"}, entryIDs(anyClass))

	all, err := s.CatalogEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestIncompleteCatalogEntries(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	done := createTestEntry("done", "maths", 6, 1)
	done.AssetsComplete = true
	_, err := s.UpsertCatalogEntry(ctx, done, baseTime)
	require.NoError(t, err)
	_, err = s.UpsertCatalogEntry(ctx, createTestEntry("partial", "maths", 6, 1), baseTime)
	require.NoError(t, err)

	incomplete, err := s.IncompleteCatalogEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, entryIDs(incomplete))

	require.NoError(t, s.SetAssetsComplete(ctx, "partial", true))
	incomplete, err = s.IncompleteCatalogEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}

func entryIDs(entries []model.CatalogEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
