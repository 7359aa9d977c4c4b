package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiksha/internal/model"
)

func TestRecordCompletion_WritesRecordAndOutboxItem(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := createTestProgress("p1", "s1", "g1", baseTime)

	inserted, err := s.RecordCompletion(ctx, rec, baseTime)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, ok, err := s.Progress(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	item, ok, err := s.OutboxItem(ctx, model.OutboxID(model.OutboxProgress, "p1"))
	require.NoError(t, err)
	require.True(t, ok, "every progress record has an outbox item")
	assert.Equal(t, model.OutboxPending, item.State)
	assert.Equal(t, "p1", item.PayloadRef)
	assert.Equal(t, "s1", item.StudentID)
	assert.Equal(t, 0, item.Attempts)

	var payload model.ProgressRecord
	require.NoError(t, json.Unmarshal(item.Payload, &payload))
	assert.Equal(t, rec, payload)

	wantHash, err := model.PayloadHash(rec)
	require.NoError(t, err)
	assert.Equal(t, wantHash, item.PayloadHash)
}

func TestRecordCompletion_DuplicateIsNoop(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := createTestProgress("p1", "s1", "g1", baseTime)

	mustRecord(t, s, rec)
	inserted, err := s.RecordCompletion(ctx, rec, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, inserted)

	counts, err := s.OutboxCounts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
}

func TestRecordCompletion_RejectsScoreOutOfRange(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec := createTestProgress("p1", "s1", "g1", baseTime)
	rec.Score = 120

	_, err := s.RecordCompletion(ctx, rec, baseTime)
	require.Error(t, err)
	_, ok, err := s.Progress(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordCompletion_AtomicOnFailure(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	// Occupy the outbox payload_ref so the second insert of the pair fails.
	_, err := s.db.Exec(`
		INSERT INTO outbox (id, kind, payload_ref, student_id, payload, payload_hash, state, created_at, updated_at)
		VALUES ('other', 'progress', 'p1', 's1', '{}', 'h', 'pending', 1, 1)
	`)
	require.NoError(t, err)

	_, err = s.RecordCompletion(ctx, createTestProgress("p1", "s1", "g1", baseTime), baseTime)
	require.Error(t, err)
	assert.True(t, model.IsStorageFailure(err))

	_, ok, err := s.Progress(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, ok, "progress must roll back with its outbox item")
}

func TestRecordCompletion_RequiresIDs(t *testing.T) {
	s := createTestStore(t)
	_, err := s.RecordCompletion(context.Background(), model.ProgressRecord{StudentID: "s1", EntryID: "g1"}, baseTime)
	assert.Error(t, err)
}

func TestProgress_AppendOnly(t *testing.T) {
	s := createTestStore(t)
	mustRecord(t, s, createTestProgress("p1", "s1", "g1", baseTime))

	_, err := s.db.Exec(`UPDATE progress SET score = 100 WHERE id = 'p1'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestProgress_MissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, ok, err := s.Progress(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := s.ProgressByStudent(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestProgressQueries_OrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.UpsertCatalogEntry(ctx, createTestEntry("m1", "Maths", 6, 1), baseTime)
	require.NoError(t, err)
	_, err = s.UpsertCatalogEntry(ctx, createTestEntry("sc1", "science", 6, 1), baseTime)
	require.NoError(t, err)

	mustRecord(t, s, createTestProgress("p3", "s1", "m1", baseTime.Add(2*time.Hour)))
	mustRecord(t, s, createTestProgress("p1", "s1", "m1", baseTime))
	mustRecord(t, s, createTestProgress("p2", "s1", "sc1", baseTime.Add(time.Hour)))
	mustRecord(t, s, createTestProgress("p4", "s2", "m1", baseTime))

	all, err := s.ProgressByStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, progressIDs(all))

	byEntry, err := s.ProgressByStudentEntry(ctx, "s1", "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, progressIDs(byEntry))

	bySubject, err := s.ProgressBySubject(ctx, "s1", "MATHS", 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, progressIDs(bySubject))

	otherClass, err := s.ProgressBySubject(ctx, "s1", "maths", 7)
	require.NoError(t, err)
	assert.Empty(t, otherClass)

	students, err := s.Students(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, students)
}

func TestRecordAchievement_OncePerStudent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ev := model.AchievementEvent{StudentID: "s1", AchievementID: "first_game", XPReward: 50, UnlockedAt: baseTime}

	inserted, err := s.RecordAchievement(ctx, ev, baseTime)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.RecordAchievement(ctx, ev, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, inserted)

	list, err := s.AchievementsByStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.AchievementEventID("s1", "first_game"), list[0].ID)

	pending, err := s.PendingOutbox(ctx, model.OutboxAchievement, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, list[0].ID, pending[0].PayloadRef)
}

func progressIDs(recs []model.ProgressRecord) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}
