package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiksha/internal/model"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Minute), c.Advance(time.Minute))

	c.Set(start.AddDate(0, 0, 1))
	assert.Equal(t, start.AddDate(0, 0, 1), c.Now())
}

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("progress")
	assert.Equal(t, "progress-0001", g.NewID())
	assert.Equal(t, "progress-0002", g.NewID())
	assert.Equal(t, "id-0001", NewSequentialIDs("").NewID())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	g := NewSequentialIDs("x")
	const goroutines = 50

	var wg sync.WaitGroup
	ids := make(chan string, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.NewID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "id %s generated twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestFakeRemote_CountsUniqueApplies(t *testing.T) {
	ctx := context.Background()
	f := NewFakeRemote()
	item := model.OutboxItem{ID: "outbox-1"}

	require.NoError(t, f.UploadProgress(ctx, item))
	require.NoError(t, f.UploadProgress(ctx, item))
	require.NoError(t, f.UploadProgress(ctx, model.OutboxItem{ID: "outbox-2"}))

	assert.Equal(t, []string{"outbox-1", "outbox-2"}, f.Applied())
	assert.Equal(t, []string{"outbox-1", "outbox-1", "outbox-2"}, f.Submissions())
}

func TestFakeRemote_ScriptedFailures(t *testing.T) {
	ctx := context.Background()
	f := NewFakeRemote()
	transient := model.NewTransientError("upload", errors.New("timeout"))
	f.FailUpload("outbox-1", transient, nil)

	assert.True(t, model.IsTransient(f.UploadProgress(ctx, model.OutboxItem{ID: "outbox-1"})))
	assert.Empty(t, f.Applied())
	require.NoError(t, f.UploadProgress(ctx, model.OutboxItem{ID: "outbox-1"}))
	assert.Equal(t, []string{"outbox-1"}, f.Applied())

	f.FailAllUploads(transient)
	assert.Error(t, f.UploadProgress(ctx, model.OutboxItem{ID: "outbox-2"}))
	f.FailAllUploads(nil)
	assert.NoError(t, f.UploadProgress(ctx, model.OutboxItem{ID: "outbox-2"}))
}

func TestFakeRemote_Catalog(t *testing.T) {
	ctx := context.Background()
	f := NewFakeRemote()
	f.Publish(
		model.CatalogEntry{ID: "maths-1", Subject: "Maths", Version: 2},
		model.CatalogEntry{ID: "odissi-1", Subject: "Odissi", Version: 1},
	)

	manifest, err := f.FetchCatalogManifest(ctx, []string{"maths"})
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.Equal(t, int64(2), manifest[0].Version)

	entries, err := f.FetchCatalogEntries(ctx, []string{"odissi-1", "missing"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f.PutAsset("img", []byte("png"))
	data, err := f.FetchAsset(ctx, "img")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, 1, f.AssetFetches("img"))

	_, err = f.FetchCurriculum(ctx, "maths", 6, "")
	assert.True(t, model.IsPermanent(err))
}
