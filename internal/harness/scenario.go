package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a CUE policy, seeded
// materializations, and the requested/discarded partitions expected
// from each tick.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is the inline CUE policy source compiled for the run.
	Policy string `yaml:"policy"`

	// Seed contains materializations recorded before the first tick.
	Seed []SeedStep `yaml:"seed,omitempty"`

	// Ticks drive the run: each tick optionally seeds further
	// materializations, then evaluates every asset once.
	Ticks []TickStep `yaml:"ticks"`
}

// SeedStep records materializations for one asset.
type SeedStep struct {
	// Asset is the asset key.
	Asset string `yaml:"asset"`

	// Partitions lists partition keys to materialize, in order. Leave
	// empty for an unpartitioned asset.
	Partitions []string `yaml:"partitions,omitempty"`
}

// TickStep is one scheduling tick with its expected outcome.
type TickStep struct {
	// Token is the fixed tick token; defaults to "tick-<n>".
	Token string `yaml:"token,omitempty"`

	// Seed contains materializations recorded before this tick runs.
	Seed []SeedStep `yaml:"seed,omitempty"`

	// Expect maps asset keys to expected outcomes. Assets not listed
	// are not checked.
	Expect map[string]ExpectedOutcome `yaml:"expect"`
}

// ExpectedOutcome is the expected decision for one asset in one tick.
// Partition key lists compare order-insensitively against the sorted
// actual keys; the single empty key denotes an unpartitioned asset's
// implicit partition.
type ExpectedOutcome struct {
	Requested []string `yaml:"requested"`
	Discarded []string `yaml:"discarded,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected to catch typos like "tick:" for "ticks:".
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Policy == "" {
		return fmt.Errorf("policy is required")
	}
	if len(s.Ticks) == 0 {
		return fmt.Errorf("ticks list is required and must be non-empty")
	}

	for i, step := range s.Seed {
		if step.Asset == "" {
			return fmt.Errorf("seed[%d]: asset is required", i)
		}
	}
	for i, tick := range s.Ticks {
		for j, step := range tick.Seed {
			if step.Asset == "" {
				return fmt.Errorf("ticks[%d].seed[%d]: asset is required", i, j)
			}
		}
		if len(tick.Expect) == 0 {
			return fmt.Errorf("ticks[%d]: expect is required and must be non-empty", i)
		}
	}
	return nil
}
