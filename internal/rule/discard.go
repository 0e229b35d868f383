package rule

import (
	"context"
	"strconv"

	"github.com/roach88/automat/internal/asset"
	"github.com/roach88/automat/internal/record"
)

// DiscardOnMaxMaterializationsExceeded is the rate-cap safety valve. It
// fires for the candidate partitions that would push a single pass over
// the configured limit; the partitions it fires for are discarded.
//
// Tie-break: candidate partition keys are sorted ascending (daily date
// keys sort chronologically, so the oldest partitions win) and the first
// Limit keys are kept. Everything after the cut fires. The order is
// deterministic given identical inputs.
type DiscardOnMaxMaterializationsExceeded struct {
	Limit int
}

func (r DiscardOnMaxMaterializationsExceeded) Snapshot() record.RuleSnapshot {
	return record.RuleSnapshot{
		RuleName:     "DiscardOnMaxMaterializationsExceeded",
		Description:  "exceeds " + strconv.Itoa(r.Limit) + " materialization(s) per evaluation",
		DecisionType: record.DecisionDiscard,
	}
}

func (r DiscardOnMaxMaterializationsExceeded) Evaluate(ctx context.Context, ec Context) (Results, error) {
	if ec.CandidateSubset.Size() <= r.Limit {
		return nil, nil
	}

	// Unpartitioned candidates have size <= 1 and a positive limit
	// always accommodates them, so only partitioned assets reach here.
	keys := ec.CandidateSubset.PartitionKeys()
	excess := keys[r.Limit:]

	subset, err := asset.SubsetFromKeys(ec.AssetKey, ec.PartitionsDef, excess...)
	if err != nil {
		return nil, err
	}
	return Results{{
		Metadata: record.Metadata{"limit": strconv.Itoa(r.Limit)},
		Subset:   subset,
	}}, nil
}
