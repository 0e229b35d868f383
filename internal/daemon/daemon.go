package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/compiler"
	"github.com/roach88/automat/internal/evaluator"
	"github.com/roach88/automat/internal/instance"
	"github.com/roach88/automat/internal/store"
)

// Daemon performs synchronous scheduling ticks over a compiled policy
// bundle. All writes are stamped from the daemon's logical clock;
// construction with Resume seeds the clock from the store so seqs keep
// increasing across restarts.
//
// All mutations happen in the goroutine calling Tick and
// RecordMaterialization; the Daemon takes no locks of its own.
type Daemon struct {
	store  *store.Store
	bundle *compiler.Bundle
	clock  *Clock
	tokens TickTokenGenerator
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithClock supplies a pre-positioned clock, overriding the seed taken
// from the store.
func WithClock(c *Clock) Option {
	return func(d *Daemon) {
		d.clock = c
	}
}

// WithTokenGenerator replaces the UUIDv7 tick token generator. Tests
// pass a FixedGenerator for reproducible output.
func WithTokenGenerator(g TickTokenGenerator) Option {
	return func(d *Daemon) {
		d.tokens = g
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		d.logger = l
	}
}

// WithNow replaces the wall-clock source used to stamp evaluation
// contexts. The logical seq clock is unaffected.
func WithNow(now func() time.Time) Option {
	return func(d *Daemon) {
		d.now = now
	}
}

// Resume creates a Daemon whose clock continues from the highest seq
// already in the store, across both the materialization log and the
// evaluation records.
func Resume(ctx context.Context, st *store.Store, bundle *compiler.Bundle, opts ...Option) (*Daemon, error) {
	matSeq, err := st.LatestSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume daemon: %w", err)
	}
	evalSeq, err := st.LatestEvaluationSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume daemon: %w", err)
	}
	d := New(st, bundle, opts...)
	if d.clock.Current() == 0 {
		d.clock = NewClockAt(max(matSeq, evalSeq))
	}
	return d, nil
}

// New creates a Daemon with a fresh clock starting at 0. Use Resume
// against a store that already has history.
func New(st *store.Store, bundle *compiler.Bundle, opts ...Option) *Daemon {
	d := &Daemon{
		store:  st,
		bundle: bundle,
		clock:  NewClock(),
		tokens: UUIDv7Generator{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Clock exposes the daemon's logical clock.
func (d *Daemon) Clock() *Clock {
	return d.clock
}

// RecordMaterialization logs a materialization of one partition at the
// next clock seq. The empty partition key is used for unpartitioned
// assets; partitioned assets reject keys outside their definition.
func (d *Daemon) RecordMaterialization(ctx context.Context, key asset.Key, partitionKey string) (int64, error) {
	def, err := d.bundle.Graph.PartitionsDef(key)
	if err != nil {
		return 0, err
	}
	if def.Partitioned() {
		if !def.HasKey(partitionKey) {
			return 0, &asset.UnknownPartitionError{Asset: key, PartitionKey: partitionKey}
		}
	} else {
		partitionKey = ""
	}

	seq := d.clock.Next()
	if err := d.store.RecordMaterialization(ctx, key, partitionKey, seq); err != nil {
		return 0, err
	}
	d.logger.Debug("materialization recorded",
		"asset", key, "partition", partitionKey, "seq", seq)
	return seq, nil
}

// TickResult reports the outcome of one tick per asset.
type TickResult struct {
	Token     string
	Requested map[asset.Key]asset.Subset
	Discarded map[asset.Key]asset.Subset

	// Failed holds the error that aborted an asset's pass. Assets
	// present here have no entry in Requested or Discarded and keep
	// their previous cursor.
	Failed map[asset.Key]error
}

// Err folds per-asset failures into a single error, nil when every
// asset evaluated cleanly.
func (r *TickResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	for _, key := range sortedKeys(r.Failed) {
		return fmt.Errorf("tick: asset %s: %w", key, r.Failed[key])
	}
	return nil
}

// Tick runs one synchronous pass over every asset in the bundle, in
// sorted key order.
//
// All assets share one snapshot of the store, taken at the start of the
// tick, so a materialization recorded mid-tick cannot make two assets
// see different histories. A rule error aborts only that asset's pass;
// the others continue and the failure is surfaced in the result.
func (d *Daemon) Tick(ctx context.Context) (*TickResult, error) {
	token := d.tokens.Generate()
	queryer, err := instance.NewQueryer(ctx, d.store, d.bundle.Graph)
	if err != nil {
		return nil, fmt.Errorf("tick: %w", err)
	}

	res := &TickResult{
		Token:     token,
		Requested: make(map[asset.Key]asset.Subset),
		Discarded: make(map[asset.Key]asset.Subset),
		Failed:    make(map[asset.Key]error),
	}
	d.logger.Debug("tick started", "token", token, "snapshot_seq", queryer.SnapshotSeq())

	for _, key := range d.bundle.Graph.Keys() {
		ev, ok := d.bundle.Evaluators[key]
		if !ok {
			continue
		}
		requested, discarded, err := d.evaluateAsset(ctx, key, ev, queryer, token)
		if err != nil {
			d.logger.Warn("asset pass failed", "asset", key, "error", err)
			res.Failed[key] = err
			continue
		}
		res.Requested[key] = requested
		res.Discarded[key] = discarded
	}

	return res, nil
}

func (d *Daemon) evaluateAsset(
	ctx context.Context,
	key asset.Key,
	ev *evaluator.Evaluator,
	queryer *instance.Queryer,
	token string,
) (requested, discarded asset.Subset, err error) {
	def, err := d.bundle.Graph.PartitionsDef(key)
	if err != nil {
		return asset.Subset{}, asset.Subset{}, err
	}
	cursor, _, err := d.store.LoadCursor(ctx, key, def)
	if err != nil {
		return asset.Subset{}, asset.Subset{}, err
	}

	pass, err := ev.Evaluate(ctx, evaluator.Env{
		AssetKey: key,
		Graph:    d.bundle.Graph,
		Queryer:  queryer,
		Cursor:   cursor,
		Now:      d.now(),
	})
	if err != nil {
		return asset.Subset{}, asset.Subset{}, err
	}

	rec, err := evaluator.ToRecord(pass, d.clock.Next(), token, ev.RuleSnapshots())
	if err != nil {
		return asset.Subset{}, asset.Subset{}, err
	}
	if _, err := d.store.WriteEvaluation(ctx, rec); err != nil {
		return asset.Subset{}, asset.Subset{}, err
	}

	cur := pass.Cursor
	cur.EvaluationID = rec.ID
	if err := d.store.SaveCursor(ctx, cur); err != nil {
		return asset.Subset{}, asset.Subset{}, err
	}

	requested, err = pass.RequestedSubset()
	if err != nil {
		return asset.Subset{}, asset.Subset{}, err
	}
	d.logger.Info("asset evaluated",
		"asset", key,
		"requested", requested.Size(),
		"skipped", rec.NumSkipped,
		"discarded", rec.NumDiscarded,
		"evaluation_id", rec.ID)
	return requested, pass.DiscardSubset, nil
}

func sortedKeys(m map[asset.Key]error) []asset.Key {
	keys := make([]asset.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
