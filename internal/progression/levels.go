package progression

const (
	// XPPerLevel is the XP needed to advance one level.
	XPPerLevel = 100

	// MaxLevel caps the level regardless of XP.
	MaxLevel = 50
)

// LevelFor returns the level reached with totalXP.
func LevelFor(totalXP int64) int {
	if totalXP < 0 {
		totalXP = 0
	}
	level := totalXP/XPPerLevel + 1
	if level > MaxLevel {
		return MaxLevel
	}
	return int(level)
}

// XPIntoLevel returns XP earned since the current level was reached and XP
// still needed for the next one. At MaxLevel the second value is 0.
func XPIntoLevel(totalXP int64) (into, toNext int64) {
	if totalXP < 0 {
		totalXP = 0
	}
	if LevelFor(totalXP) == MaxLevel {
		return totalXP - (MaxLevel-1)*XPPerLevel, 0
	}
	into = totalXP % XPPerLevel
	return into, XPPerLevel - into
}

var levelTitles = []struct {
	from  int
	title string
}{
	{50, "Jagadguru"},
	{40, "Vidyasagar"},
	{35, "Acharya"},
	{30, "Pandit"},
	{25, "Sage"},
	{20, "Master"},
	{15, "Expert"},
	{10, "Scholar"},
	{5, "Student"},
	{1, "Beginner"},
}

// Title names a level.
func Title(level int) string {
	for _, t := range levelTitles {
		if level >= t.from {
			return t.title
		}
	}
	return "Beginner"
}

var levelBenefits = []struct {
	from    int
	benefit string
}{
	{5, "Access to intermediate games"},
	{10, "Hint system unlocked"},
	{15, "Advanced games available"},
	{20, "Multiplayer challenges"},
	{25, "Custom game creation"},
	{30, "Mentor other students"},
	{35, "Special cultural content"},
	{40, "Research project access"},
	{50, "Master teacher privileges"},
}

// Benefits lists what a level has unlocked, lowest first.
func Benefits(level int) []string {
	out := []string{}
	for _, b := range levelBenefits {
		if level >= b.from {
			out = append(out, b.benefit)
		}
	}
	return out
}
