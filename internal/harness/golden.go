package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/automat/internal/record"
)

// snapshotMap converts a result to a map shape record.MarshalCanonical
// accepts, so golden bytes are canonical JSON with deterministic key
// order.
func snapshotMap(scenarioName string, result *Result) map[string]any {
	ticks := make([]any, len(result.Ticks))
	for i, tick := range result.Ticks {
		assets := make([]any, len(tick.Assets))
		for j, a := range tick.Assets {
			assets[j] = map[string]any{
				"asset":     a.Asset,
				"requested": a.Requested,
				"discarded": a.Discarded,
			}
		}
		ticks[i] = map[string]any{
			"token":  tick.Token,
			"assets": assets,
		}
	}
	return map[string]any{
		"scenario_name": scenarioName,
		"ticks":         ticks,
	}
}

// RunWithGolden executes a scenario and compares its outcome against
// the golden file testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
//
// Expectation mismatches inside the scenario fail the test before the
// golden comparison runs; the golden file is the byte-exact source of
// truth for the full tick-by-tick outcome.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	for _, failure := range result.Failures {
		t.Errorf("scenario %s: %s", scenario.Name, failure)
	}

	snapshot, err := record.MarshalCanonical(snapshotMap(scenario.Name, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)

	return nil
}
