package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiksha/internal/connectivity"
	"github.com/roach88/shiksha/internal/model"
	"github.com/roach88/shiksha/internal/store"
	"github.com/roach88/shiksha/internal/testutil"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// kb keeps test payloads small while preserving the proportions of the
// megabyte-scale scenarios.
const kb = 1000

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mathsEntry() model.CatalogEntry {
	return model.CatalogEntry{ID: "maths-1", Subject: "Maths", ClassLevel: 6, Difficulty: model.DifficultyBeginner, Version: 1}
}

func artEntry() model.CatalogEntry {
	return model.CatalogEntry{ID: "art-1", Subject: "Art", ClassLevel: 6, Difficulty: model.DifficultyBeginner, Version: 1}
}

func blob(n int) []byte {
	return make([]byte, n)
}

func opaqueOfSize(n int) model.Content {
	return model.OpaqueContent{Kind: "video", Data: json.RawMessage(`"` + strings.Repeat("x", n) + `"`)}
}

func assetExists(t *testing.T, s *store.Store, id string) bool {
	t.Helper()
	_, ok, err := s.Asset(context.Background(), id)
	require.NoError(t, err)
	return ok
}

func TestEviction_OldestUnpinnedFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := testutil.NewFakeClock(baseTime.Add(time.Hour))

	// 81% full: pinned 30 + pinned curriculum ~6, unpinned 20/15/10 oldest to newest.
	require.NoError(t, s.PutAsset(ctx, model.AssetRecord{ID: "pinned-30", OwnerEntryID: "maths-1", CachedAt: baseTime, Retained: true}, blob(30*kb)))
	_, err := s.PutCurriculum(ctx, model.CurriculumRecord{
		ID: "maths-6", Subject: "maths", ClassLevel: 6, Version: 1,
		FetchedAt: baseTime, Retained: true, Content: opaqueOfSize(6*kb - 30),
	})
	require.NoError(t, err)
	require.NoError(t, s.PutAsset(ctx, model.AssetRecord{ID: "art-20", OwnerEntryID: "art-1", CachedAt: baseTime.Add(1 * time.Minute)}, blob(20*kb)))
	require.NoError(t, s.PutAsset(ctx, model.AssetRecord{ID: "art-15", OwnerEntryID: "art-1", CachedAt: baseTime.Add(2 * time.Minute)}, blob(15*kb)))
	require.NoError(t, s.PutAsset(ctx, model.AssetRecord{ID: "art-10", OwnerEntryID: "art-1", CachedAt: baseTime.Add(3 * time.Minute)}, blob(10*kb)))

	m := New(s, nil, WithMaxBytes(100*kb), WithPrioritySubjects("maths"), WithNow(clock.Now))

	err = m.PutAsset(ctx, artEntry(), model.AssetRef{ID: "art-25", Kind: "image"}, blob(25*kb))
	require.NoError(t, err)

	assert.False(t, assetExists(t, s, "art-20"), "oldest unpinned goes first")
	assert.False(t, assetExists(t, s, "art-15"), "post-write enforcement brings usage under threshold")
	assert.True(t, assetExists(t, s, "art-10"))
	assert.True(t, assetExists(t, s, "art-25"), "the new asset is never evicted by its own write")
	assert.True(t, assetExists(t, s, "pinned-30"))
	_, ok, err := s.CurriculumByID(ctx, "maths-6")
	require.NoError(t, err)
	assert.True(t, ok)

	used, err := s.CacheUsage(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, used, int64(80*kb))
}

func TestPutAsset_PinnedBySubject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := New(s, nil, WithPrioritySubjects("MATHS"), WithNow(testutil.NewFakeClock(baseTime).Now))

	require.NoError(t, m.PutAsset(ctx, mathsEntry(), model.AssetRef{ID: "a", Kind: "audio"}, blob(10)))
	require.NoError(t, m.PutAsset(ctx, artEntry(), model.AssetRef{ID: "b", Kind: "image"}, blob(10)))

	a, _, err := s.Asset(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.Retained)
	assert.Equal(t, baseTime, a.CachedAt)
	assert.Equal(t, "maths-1", a.OwnerEntryID)

	b, _, err := s.Asset(ctx, "b")
	require.NoError(t, err)
	assert.False(t, b.Retained)

	assert.True(t, m.Pinned("Maths"))
	assert.Equal(t, []string{"maths"}, m.PrioritySubjects())
}

func TestPutAsset_LargerThanBudget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := New(s, nil, WithMaxBytes(10*kb))

	err := m.PutAsset(ctx, artEntry(), model.AssetRef{ID: "huge"}, blob(11*kb))
	require.Error(t, err)
	assert.True(t, model.IsQuotaExceeded(err))
	assert.False(t, assetExists(t, s, "huge"))
}

func TestPutAsset_PinnedContentFillsBudget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := New(s, nil, WithMaxBytes(10*kb), WithPrioritySubjects("maths"))

	require.NoError(t, m.PutAsset(ctx, mathsEntry(), model.AssetRef{ID: "p1"}, blob(6*kb)))
	require.NoError(t, m.PutAsset(ctx, mathsEntry(), model.AssetRef{ID: "p2"}, blob(3*kb)))

	err := m.PutAsset(ctx, artEntry(), model.AssetRef{ID: "x"}, blob(2*kb))
	require.Error(t, err)
	assert.True(t, model.IsQuotaExceeded(err))
	assert.True(t, assetExists(t, s, "p1"))
	assert.True(t, assetExists(t, s, "p2"))
}

func TestPutAsset_ReplacementCountsOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := New(s, nil, WithMaxBytes(10*kb), WithEvictRatio(1))

	require.NoError(t, m.PutAsset(ctx, artEntry(), model.AssetRef{ID: "a"}, blob(6*kb)))
	require.NoError(t, m.PutAsset(ctx, artEntry(), model.AssetRef{ID: "a"}, blob(7*kb)))

	used, err := s.CacheUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7*kb), used)
}

func TestCacheStaysBounded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := testutil.NewFakeClock(baseTime)
	const limit = 50 * kb
	m := New(s, nil, WithMaxBytes(limit), WithPrioritySubjects("maths"), WithNow(clock.Now))

	rng := rand.New(rand.NewSource(7))
	pinned := map[string]bool{}
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		owner := artEntry()
		id := "art-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		if i%10 == 0 && len(pinned) < 3 {
			owner = mathsEntry()
			id = "maths-" + id
			pinned[id] = true
		}
		err := m.PutAsset(ctx, owner, model.AssetRef{ID: id}, blob(1+rng.Intn(12*kb)))
		if err != nil {
			require.True(t, model.IsQuotaExceeded(err), "unexpected error: %v", err)
		}

		used, err := s.CacheUsage(ctx)
		require.NoError(t, err)
		require.LessOrEqual(t, used, int64(limit), "after write %d", i)
	}
	for id := range pinned {
		assert.True(t, assetExists(t, s, id), "pinned %s evicted", id)
	}
}

func TestEnforce_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.PutAsset(ctx, model.AssetRecord{ID: "old", CachedAt: baseTime}, blob(50*kb)))
	require.NoError(t, s.PutAsset(ctx, model.AssetRecord{ID: "new", CachedAt: baseTime.Add(time.Minute)}, blob(45*kb)))

	m := New(s, nil, WithMaxBytes(100*kb))
	evicted, err := m.Enforce(ctx)
	require.NoError(t, err)
	require.Len(t, evicted, 1)
	assert.Equal(t, "old", evicted[0].ID)

	evicted, err = m.Enforce(ctx)
	require.NoError(t, err)
	assert.Empty(t, evicted)
}

func TestLimit_UsesLowerHostQuota(t *testing.T) {
	ctx := context.Background()
	port := connectivity.NewManual(true)
	m := New(newTestStore(t), nil, WithMaxBytes(100*kb), WithQuotaSource(port))

	assert.Equal(t, int64(100*kb), m.Limit(ctx), "unreported host limit")

	port.SetQuota(10*kb, 40*kb)
	assert.Equal(t, int64(40*kb), m.Limit(ctx))

	port.SetQuota(10*kb, 400*kb)
	assert.Equal(t, int64(100*kb), m.Limit(ctx))

	port.FailQuota(errors.New("quota api gone"))
	assert.Equal(t, int64(100*kb), m.Limit(ctx))
}

func TestPutCurriculum_KeepsNewerVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := New(s, nil, WithNow(testutil.NewFakeClock(baseTime).Now))

	v2 := model.CurriculumRecord{ID: "sci-6", Subject: "Science", ClassLevel: 6, Version: 2, Content: model.LessonContent{Title: "v2"}}
	applied, err := m.PutCurriculum(ctx, v2)
	require.NoError(t, err)
	assert.True(t, applied)

	v1 := v2
	v1.Version = 1
	v1.Content = model.LessonContent{Title: "v1"}
	applied, err = m.PutCurriculum(ctx, v1)
	require.NoError(t, err)
	assert.False(t, applied)

	got, _, err := s.CurriculumByID(ctx, "sci-6")
	require.NoError(t, err)
	assert.Equal(t, model.LessonContent{Title: "v2"}, got.Content)
	assert.Equal(t, baseTime, got.FetchedAt)
}

func TestReset_DropsPinned(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := New(s, nil, WithPrioritySubjects("maths"))
	require.NoError(t, m.PutAsset(ctx, mathsEntry(), model.AssetRef{ID: "p"}, blob(10)))

	require.NoError(t, m.Reset(ctx))
	assert.False(t, assetExists(t, s, "p"))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := New(s, nil, WithMaxBytes(100*kb), WithPrioritySubjects("maths"))
	require.NoError(t, m.PutAsset(ctx, mathsEntry(), model.AssetRef{ID: "p"}, blob(3*kb)))
	require.NoError(t, m.PutAsset(ctx, artEntry(), model.AssetRef{ID: "u"}, blob(2*kb)))

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5*kb), st.UsedBytes)
	assert.Equal(t, int64(100*kb), st.LimitBytes)
	assert.Equal(t, int64(80*kb), st.ThresholdBytes)
	assert.Equal(t, 2, st.Assets)
	assert.Equal(t, 1, st.RetainedAssets)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clock := testutil.NewFakeClock(baseTime)
	fake := testutil.NewFakeRemote()
	m := New(s, fake, WithPrioritySubjects("maths"), WithNow(clock.Now), WithConcurrency(2))

	entry := mathsEntry()
	entry.Assets = []model.AssetRef{
		{ID: "img-1", Kind: "image"},
		{ID: "img-2", Kind: "image"},
		{ID: "snd-1", Kind: "audio"},
	}
	fake.Publish(entry)
	fake.PutAsset("img-1", blob(100))
	fake.PutAsset("img-2", blob(200))
	fake.FailAsset("snd-1", model.NewTransientError("fetch", errors.New("reset by peer")))
	fake.PutCurriculum(model.CurriculumRecord{ID: "maths-6", Subject: "maths", ClassLevel: 6, Version: 1, Content: model.LessonContent{Title: "Fractions"}})

	res, err := m.Refresh(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"maths-1"}, res.Updated)
	assert.Equal(t, []string{"maths-1"}, res.Incomplete)
	assert.Equal(t, 2, res.AssetsFetched)
	assert.Equal(t, 1, res.Curriculum)

	cached, ok, err := s.CatalogEntry(ctx, "maths-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cached.Essential)
	assert.False(t, cached.AssetsComplete)

	// Next tick: the failed asset is retried, the others are not refetched.
	fake.PutAsset("snd-1", blob(50))
	res, err = m.Refresh(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Updated)
	assert.Empty(t, res.Incomplete)
	assert.Equal(t, 1, res.AssetsFetched)
	assert.Equal(t, 1, fake.AssetFetches("img-1"))
	assert.Equal(t, 2, fake.AssetFetches("snd-1"))

	cached, _, err = s.CatalogEntry(ctx, "maths-1")
	require.NoError(t, err)
	assert.True(t, cached.AssetsComplete)

	snd, _, err := s.Asset(ctx, "snd-1")
	require.NoError(t, err)
	assert.True(t, snd.Retained)
}

func TestRefresh_NewerVersionAndStaleManifest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fake := testutil.NewFakeRemote()
	m := New(s, fake)

	v1 := artEntry()
	fake.Publish(v1)
	_, err := m.Refresh(ctx, []string{"art"})
	require.NoError(t, err)

	v2 := v1
	v2.Version = 2
	v2.Title = "Colours"
	fake.Publish(v2)
	res, err := m.Refresh(ctx, []string{"art"})
	require.NoError(t, err)
	assert.Equal(t, []string{"art-1"}, res.Updated)

	cached, _, err := s.CatalogEntry(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, "Colours", cached.Title)

	// A lagging replica reports an older version.
	fake.SetManifestVersion("art-1", 1)
	res, err = m.Refresh(ctx, []string{"art"})
	require.NoError(t, err)
	assert.Equal(t, []string{"art-1"}, res.Stale)
	assert.Empty(t, res.Updated)

	cached, _, err = s.CatalogEntry(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached.Version)
}

func TestRefresh_CurriculumFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fake := testutil.NewFakeRemote()
	m := New(s, fake)

	e6 := artEntry()
	e7 := artEntry()
	e7.ID, e7.ClassLevel = "art-2", 7
	fake.Publish(e6, e7)
	fake.PutCurriculum(model.CurriculumRecord{ID: "art-7", Subject: "art", ClassLevel: 7, Version: 1, Content: model.QuizContent{}})

	res, err := m.Refresh(ctx, []string{"art"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Curriculum)
	assert.Equal(t, 1, res.CurriculumFailures)
}

func TestRefresh_WithoutSource(t *testing.T) {
	m := New(newTestStore(t), nil)
	_, err := m.Refresh(context.Background(), []string{"maths"})
	assert.ErrorIs(t, err, ErrNoSource)
}
