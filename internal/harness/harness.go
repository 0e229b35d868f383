// Package harness executes YAML conformance scenarios against the real
// evaluation stack: CUE policy compilation, SQLite-backed store, daemon
// ticks. Each scenario runs in a fresh in-memory database with fixed
// tick tokens and a frozen wall clock, so runs are byte-for-byte
// reproducible and suitable for golden comparison.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/compiler"
	"github.com/roach88/automat/internal/daemon"
	"github.com/roach88/automat/internal/store"
	"github.com/roach88/automat/internal/testutil"
)

// evaluationEpoch is the frozen wall-clock instant every scenario runs
// at.
var evaluationEpoch = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// AssetOutcome is one asset's actual decision in one tick.
type AssetOutcome struct {
	Asset     string
	Requested []string
	Discarded []string
}

// TickOutcome is the actual result of one tick.
type TickOutcome struct {
	Token  string
	Assets []AssetOutcome
}

// Result holds a scenario run's outcome.
type Result struct {
	Pass     bool
	Failures []string
	Ticks    []TickOutcome
}

// Run executes a scenario and returns the result. A scenario error
// (bad policy, store failure, failed asset pass) aborts the run;
// expectation mismatches are collected into Failures instead.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	bundle, err := compilePolicy(scenario.Policy)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	tokens := make([]string, len(scenario.Ticks))
	for i, tick := range scenario.Ticks {
		tokens[i] = tick.Token
		if tokens[i] == "" {
			tokens[i] = fmt.Sprintf("tick-%d", i+1)
		}
	}

	d := daemon.New(st, bundle,
		daemon.WithTokenGenerator(daemon.NewFixedGenerator(tokens...)),
		daemon.WithNow(testutil.NewFrozenTime(evaluationEpoch).Now),
		daemon.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	ctx := context.Background()
	if err := applySeed(ctx, d, scenario.Seed); err != nil {
		return nil, fmt.Errorf("scenario %s: seed: %w", scenario.Name, err)
	}

	result := &Result{Pass: true}
	for i, tick := range scenario.Ticks {
		if err := applySeed(ctx, d, tick.Seed); err != nil {
			return nil, fmt.Errorf("scenario %s: ticks[%d] seed: %w", scenario.Name, i, err)
		}

		res, err := d.Tick(ctx)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: ticks[%d]: %w", scenario.Name, i, err)
		}
		if tickErr := res.Err(); tickErr != nil {
			return nil, fmt.Errorf("scenario %s: ticks[%d]: %w", scenario.Name, i, tickErr)
		}

		outcome := TickOutcome{Token: res.Token}
		for _, key := range bundle.Graph.Keys() {
			outcome.Assets = append(outcome.Assets, AssetOutcome{
				Asset:     key.String(),
				Requested: subsetKeys(res.Requested[key]),
				Discarded: subsetKeys(res.Discarded[key]),
			})
		}
		result.Ticks = append(result.Ticks, outcome)

		checkExpectations(result, i, tick.Expect, outcome)
	}

	return result, nil
}

// compilePolicy builds a bundle from an inline CUE source.
func compilePolicy(source string) (*compiler.Bundle, error) {
	v := cuecontext.New().CompileString(source)
	specs, err := compiler.CompileSource(v)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	bundle, err := compiler.Build(specs)
	if err != nil {
		return nil, fmt.Errorf("build policy: %w", err)
	}
	return bundle, nil
}

func applySeed(ctx context.Context, d *daemon.Daemon, steps []SeedStep) error {
	for _, step := range steps {
		partitions := step.Partitions
		if len(partitions) == 0 {
			partitions = []string{""}
		}
		for _, pk := range partitions {
			if _, err := d.RecordMaterialization(ctx, asset.Key(step.Asset), pk); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkExpectations(result *Result, tickIdx int, expect map[string]ExpectedOutcome, outcome TickOutcome) {
	actual := make(map[string]AssetOutcome, len(outcome.Assets))
	for _, a := range outcome.Assets {
		actual[a.Asset] = a
	}

	for _, key := range sortedExpectKeys(expect) {
		want := expect[key]
		got, ok := actual[key]
		if !ok {
			result.fail("ticks[%d]: expected asset %s was not evaluated", tickIdx, key)
			continue
		}
		if !sameKeys(want.Requested, got.Requested) {
			result.fail("ticks[%d]: asset %s: requested %v, want %v", tickIdx, key, got.Requested, want.Requested)
		}
		if !sameKeys(want.Discarded, got.Discarded) {
			result.fail("ticks[%d]: asset %s: discarded %v, want %v", tickIdx, key, got.Discarded, want.Discarded)
		}
	}
}

func (r *Result) fail(format string, args ...any) {
	r.Pass = false
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// subsetKeys renders a subset for comparison and golden output: sorted
// partition keys, with the single empty key for a present implicit
// partition. Always non-nil.
func subsetKeys(s asset.Subset) []string {
	if !s.Partitioned() {
		if s.IsEmpty() {
			return []string{}
		}
		return []string{""}
	}
	keys := s.PartitionKeys()
	if keys == nil {
		keys = []string{}
	}
	return keys
}

// sameKeys compares key lists order-insensitively.
func sameKeys(want, got []string) bool {
	w := slices.Clone(want)
	g := slices.Clone(got)
	slices.Sort(w)
	slices.Sort(g)
	if len(w) == 0 && len(g) == 0 {
		return true
	}
	return slices.Equal(w, g)
}

func sortedExpectKeys(m map[string]ExpectedOutcome) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
