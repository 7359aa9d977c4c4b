package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/shiksha/internal/model"
)

// goldenView is the part of a Result that golden files pin down.
type goldenView struct {
	Scenario string           `json:"scenario"`
	Pass     bool             `json:"pass"`
	Steps    []StepResult     `json:"steps"`
	Final    []StudentSummary `json:"final"`
	Outbox   int              `json:"outbox"`
	Errors   []string         `json:"errors"`
}

// GoldenJSON renders a result as indented canonical JSON.
func GoldenJSON(name string, result *Result) ([]byte, error) {
	raw, err := model.MarshalCanonical(goldenView{
		Scenario: name,
		Pass:     result.Pass,
		Steps:    result.Steps,
		Final:    result.Final,
		Outbox:   result.Outbox,
		Errors:   result.Errors,
	})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the result against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := GoldenJSON(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
