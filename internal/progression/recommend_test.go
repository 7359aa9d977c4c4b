package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiksha/internal/model"
)

func recommendCatalog() []model.CatalogEntry {
	mathsQuiz := entry("a-maths-quiz", "Maths", 5, model.DifficultyBeginner)
	odissiMemory := entry("b-odissi-memory", "Odissi", 5, model.DifficultyBeginner)
	odissiMemory.GameType = "memory"
	mathsAdvanced := entry("c-maths-advanced", "Maths", 5, model.DifficultyAdvanced)
	scienceQuiz := entry("d-science-quiz", "Science", 6, model.DifficultyBeginner)
	scienceQuiz.BaseXPReward = 200
	return []model.CatalogEntry{mathsQuiz, odissiMemory, mathsAdvanced, scienceQuiz}
}

func TestRecommend(t *testing.T) {
	ev := NewEvaluator(nil)
	catalog := recommendCatalog()
	history := []model.ProgressRecord{record("p1", "a-maths-quiz", 100, 50, baseTime)}
	snap := ev.Evaluate(history, catalog)

	recs := ev.Recommend(snap, history, catalog, 0, 0)
	assert.Equal(t, []Recommendation{
		{EntryID: "b-odissi-memory", Score: 87},
		{EntryID: "d-science-quiz", Score: 77},
	}, recs)

	t.Run("class filter", func(t *testing.T) {
		recs := ev.Recommend(snap, history, catalog, 6, 0)
		require.Len(t, recs, 1)
		assert.Equal(t, "d-science-quiz", recs[0].EntryID)
	})

	t.Run("limit", func(t *testing.T) {
		recs := ev.Recommend(snap, history, catalog, 0, 1)
		require.Len(t, recs, 1)
		assert.Equal(t, "b-odissi-memory", recs[0].EntryID)
	})
}

func TestRecommend_TiesBreakByID(t *testing.T) {
	ev := NewEvaluator(nil)
	catalog := []model.CatalogEntry{
		entry("z-maths", "Maths", 5, model.DifficultyBeginner),
		entry("m-maths", "Maths", 5, model.DifficultyBeginner),
	}
	snap := ev.Evaluate(nil, catalog)

	recs := ev.Recommend(snap, nil, catalog, 0, 0)
	require.Len(t, recs, 2)
	assert.Equal(t, recs[0].Score, recs[1].Score)
	assert.Equal(t, "m-maths", recs[0].EntryID)
}

func TestRecommend_NothingLeft(t *testing.T) {
	ev := NewEvaluator(nil)
	catalog := []model.CatalogEntry{entry("only", "Maths", 5, model.DifficultyBeginner)}
	history := []model.ProgressRecord{record("p1", "only", 70, 40, baseTime)}

	recs := ev.Recommend(ev.Evaluate(history, catalog), history, catalog, 0, 5)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestCompare(t *testing.T) {
	catalog := []model.CatalogEntry{
		entry("maths-basics", "Maths", 5, model.DifficultyBeginner),
		entry("maths-more", "Maths", 5, model.DifficultyIntermediate),
	}
	before := repeated(2, "maths-basics", 90, 200)
	after := append(append([]model.ProgressRecord(nil), before...),
		record("p-99", "maths-basics", 90, 50, baseTime.Add(5*time.Hour)))

	prev := Evaluate(before, catalog)
	next := Evaluate(after, catalog)
	d := Compare(prev, next)

	assert.Equal(t, int64(50), d.XPGained)
	assert.Equal(t, 5, d.PreviousLevel)
	assert.Equal(t, 5, d.Level)
	assert.False(t, d.LeveledUp)
	assert.Equal(t, []string{"maths-more"}, d.NewlyUnlocked)
	assert.Equal(t, []string{}, d.NewAchievements)
	assert.False(t, d.Empty())

	assert.True(t, Compare(next, next).Empty())
}

func TestCompare_FirstCompletion(t *testing.T) {
	catalog := []model.CatalogEntry{entry("maths-basics", "Maths", 5, model.DifficultyBeginner)}
	prev := Evaluate(nil, catalog)
	next := Evaluate(repeated(1, "maths-basics", 100, 150), catalog)

	d := Compare(prev, next)
	assert.True(t, d.LeveledUp)
	assert.Equal(t, 2, d.Level)
	assert.Equal(t, []string{"first_game", "perfect_score"}, d.NewAchievements)
	assert.True(t, d.StreakChanged)
	assert.Equal(t, 1, d.CurrentStreak)
}
