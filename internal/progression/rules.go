package progression

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/shiksha/internal/model"
)

//go:embed schema.cue
var schemaCUE []byte

//go:embed rules.cue
var defaultRulesCUE []byte

// Rules is the configurable threshold table for unlocks and achievements.
type Rules struct {
	// Difficulty maps a tier to the requirements every entry of that tier carries.
	Difficulty map[string][]model.Requirement `json:"difficulty"`

	// Subjects maps a subject key to extra requirements for its entries.
	Subjects map[string][]model.Requirement `json:"subjects"`

	// ClassAbove adds requirements to entries whose class level exceeds Above.
	ClassAbove []ClassRule `json:"class_above"`

	Achievements []Achievement `json:"achievements"`
}

// ClassRule is a requirement set keyed on class level.
type ClassRule struct {
	Above        int                 `json:"above"`
	Requirements []model.Requirement `json:"requirements"`
}

// Achievement is a badge earned when all its requirements hold.
type Achievement struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	XPReward     int64               `json:"xp_reward"`
	Rarity       string              `json:"rarity"`
	Category     string              `json:"category"`
	Requirements []model.Requirement `json:"requirements"`
}

// RequirementsFor returns the requirements gating e. Requirements declared on
// the entry win; otherwise the table supplies tier, subject and class rules,
// in that order.
func (r *Rules) RequirementsFor(e model.CatalogEntry) []model.Requirement {
	if len(e.Requirements) > 0 {
		return e.Requirements
	}
	reqs := []model.Requirement{}
	reqs = append(reqs, r.Difficulty[string(e.Difficulty)]...)
	reqs = append(reqs, r.Subjects[model.NormalizeSubject(e.Subject)]...)
	for _, cr := range r.ClassAbove {
		if e.ClassLevel > cr.Above {
			reqs = append(reqs, cr.Requirements...)
		}
	}
	return reqs
}

// Achievement returns the achievement with the given id.
func (r *Rules) Achievement(id string) (Achievement, bool) {
	for _, a := range r.Achievements {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// RulesError is a rule table error with source position.
type RulesError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *RulesError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &RulesError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

// ParseRules compiles a CUE rule table and validates it against the schema.
// filename is used in error positions only.
func ParseRules(src []byte, filename string) (*Rules, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile rules schema: %w", formatCUEError(err))
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Rules")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var r Rules
	if err := unified.Decode(&r); err != nil {
		return nil, formatCUEError(err)
	}
	if err := r.normalize(); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadRules reads a rule table from a .cue file.
func LoadRules(path string) (*Rules, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(src, path)
}

var defaultRules = sync.OnceValues(func() (*Rules, error) {
	return ParseRules(defaultRulesCUE, "rules.cue")
})

// DefaultRules returns the built-in rule table.
// It panics if the embedded table is invalid, which tests guard against.
func DefaultRules() *Rules {
	r, err := defaultRules()
	if err != nil {
		panic(fmt.Sprintf("embedded rules.cue: %v", err))
	}
	return r
}

// normalize folds subject keys and rejects duplicate achievement ids.
func (r *Rules) normalize() error {
	if r.Difficulty == nil {
		r.Difficulty = map[string][]model.Requirement{}
	}
	subjects := make(map[string][]model.Requirement, len(r.Subjects))
	for k, reqs := range r.Subjects {
		key := model.NormalizeSubject(k)
		subjects[key] = append(subjects[key], normalizeReqs(reqs)...)
	}
	r.Subjects = subjects
	for tier, reqs := range r.Difficulty {
		r.Difficulty[tier] = normalizeReqs(reqs)
	}
	for i := range r.ClassAbove {
		r.ClassAbove[i].Requirements = normalizeReqs(r.ClassAbove[i].Requirements)
	}

	seen := make(map[string]bool, len(r.Achievements))
	for i := range r.Achievements {
		a := &r.Achievements[i]
		if seen[a.ID] {
			return &RulesError{Field: "achievements", Message: fmt.Sprintf("duplicate achievement id %q", a.ID)}
		}
		seen[a.ID] = true
		a.Requirements = normalizeReqs(a.Requirements)
	}
	sort.SliceStable(r.Achievements, func(i, j int) bool {
		return r.Achievements[i].ID < r.Achievements[j].ID
	})
	return nil
}

func normalizeReqs(reqs []model.Requirement) []model.Requirement {
	out := make([]model.Requirement, len(reqs))
	for i, req := range reqs {
		if req.Subject != "" {
			req.Subject = model.NormalizeSubject(req.Subject)
		}
		out[i] = req
	}
	return out
}
