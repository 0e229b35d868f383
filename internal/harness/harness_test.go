package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios against
// its golden file.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scenario files found")

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, "loading %s", path)

		t.Run(scenario.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

// TestRun_ExpectationMismatch tests that a wrong expectation is
// collected as a failure rather than an error.
func TestRun_ExpectationMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "deliberately wrong expectation",
		Policy: `
asset: "solo": {
	partitions: {type: "static", keys: ["p1"]}
	policy: {materialize_on: ["missing"], max_materializations_per_tick: -1}
}
`,
		Ticks: []TickStep{
			{Expect: map[string]ExpectedOutcome{
				"solo": {Requested: []string{"never-this"}},
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "asset solo")
	assert.Contains(t, result.Failures[0], "never-this")
}

// TestRun_UnknownExpectedAsset tests expecting an asset the policy does
// not declare.
func TestRun_UnknownExpectedAsset(t *testing.T) {
	scenario := &Scenario{
		Name:        "unknown-asset",
		Description: "expectation names an undeclared asset",
		Policy: `
asset: "solo": {
	policy: {materialize_on: ["missing"]}
}
`,
		Ticks: []TickStep{
			{Expect: map[string]ExpectedOutcome{
				"ghost": {Requested: []string{}},
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "ghost")
}

// TestRun_DefaultTokens tests that ticks without explicit tokens get
// tick-<n>.
func TestRun_DefaultTokens(t *testing.T) {
	scenario := &Scenario{
		Name:        "default-tokens",
		Description: "token defaulting",
		Policy: `
asset: "solo": {
	policy: {materialize_on: ["missing"]}
}
`,
		Ticks: []TickStep{
			{Expect: map[string]ExpectedOutcome{"solo": {Requested: []string{""}}}},
			{
				Seed:   []SeedStep{{Asset: "solo"}},
				Expect: map[string]ExpectedOutcome{"solo": {Requested: []string{}}},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "failures: %v", result.Failures)
	require.Len(t, result.Ticks, 2)
	assert.Equal(t, "tick-1", result.Ticks[0].Token)
	assert.Equal(t, "tick-2", result.Ticks[1].Token)
}

// TestRun_BadPolicy tests that an invalid policy aborts the run.
func TestRun_BadPolicy(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad-policy",
		Description: "policy with no materialize rules",
		Policy: `
asset: "solo": {
	policy: {skip_on: ["parent_missing"]}
}
`,
		Ticks: []TickStep{
			{Expect: map[string]ExpectedOutcome{"solo": {Requested: []string{}}}},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad-policy")
}

// TestRun_SeedUnknownAsset tests that seeding an undeclared asset
// aborts the run.
func TestRun_SeedUnknownAsset(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad-seed",
		Description: "seed names an undeclared asset",
		Policy: `
asset: "solo": {
	policy: {materialize_on: ["missing"]}
}
`,
		Seed: []SeedStep{{Asset: "ghost", Partitions: []string{"p1"}}},
		Ticks: []TickStep{
			{Expect: map[string]ExpectedOutcome{"solo": {Requested: []string{""}}}},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed")
}
