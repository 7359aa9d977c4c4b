package progression

import (
	"sort"

	"github.com/roach88/shiksha/internal/model"
)

// Recommendation is a ranked suggestion of what to play next.
type Recommendation struct {
	EntryID string `json:"entry_id"`
	Score   int    `json:"score"`
}

// idealLevel is the student level each tier is pitched at.
var idealLevel = map[model.Difficulty]int{
	model.DifficultyBeginner:     5,
	model.DifficultyIntermediate: 15,
	model.DifficultyAdvanced:     25,
}

// Recommend ranks unlocked entries the student has not completed yet.
// classLevel 0 considers every class. limit <= 0 returns all candidates.
//
// Score components:
//   - difficulty fit: max(0, 50 - 2*|level - ideal level of the tier|)
//   - subject balance: up to 20, higher for subjects with less mastery
//   - variety: 15 unless the game type matches the most recent completion
//   - reward: min(base XP / 10, 15)
//
// Ties break by entry id.
func (ev *Evaluator) Recommend(snap Snapshot, history []model.ProgressRecord, catalog []model.CatalogEntry, classLevel, limit int) []Recommendation {
	byID := indexCatalog(catalog)
	lastType := lastGameType(history, byID)

	out := []Recommendation{}
	for _, e := range sortedCatalog(byID) {
		if classLevel != 0 && e.ClassLevel != classLevel {
			continue
		}
		if !snap.IsUnlocked(e.ID) || contains(snap.Completed, e.ID) {
			continue
		}
		out = append(out, Recommendation{EntryID: e.ID, Score: recommendationScore(snap, e, lastType)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EntryID < out[j].EntryID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func recommendationScore(snap Snapshot, e model.CatalogEntry, lastType string) int {
	ideal, ok := idealLevel[e.Difficulty]
	if !ok {
		ideal = idealLevel[model.DifficultyBeginner]
	}
	diff := snap.Level - ideal
	if diff < 0 {
		diff = -diff
	}
	score := max(0, 50-2*diff)

	score += 20 * (100 - snap.Mastery(e.Subject)) / 100

	if e.GameType == "" || e.GameType != lastType {
		score += 15
	}

	score += int(min(max(e.BaseXPReward, 0)/10, 15))
	return score
}

// lastGameType returns the game type of the newest valid completion.
func lastGameType(history []model.ProgressRecord, byID map[string]model.CatalogEntry) string {
	var (
		newest model.ProgressRecord
		found  bool
	)
	for _, p := range history {
		if _, ok := byID[p.EntryID]; !ok {
			continue
		}
		if !found || p.CompletedAt.After(newest.CompletedAt) ||
			(p.CompletedAt.Equal(newest.CompletedAt) && p.ID > newest.ID) {
			newest, found = p, true
		}
	}
	if !found {
		return ""
	}
	return byID[newest.EntryID].GameType
}

func contains(sorted []string, s string) bool {
	i := sort.SearchStrings(sorted, s)
	return i < len(sorted) && sorted[i] == s
}
