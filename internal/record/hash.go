package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvaluation = "automat/evaluation/v1"
	DomainSnapshot   = "automat/snapshot/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/payload boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EvaluationID computes the content-addressed ID of an evaluation record.
// The ID is stable across restarts and replays given the same inputs, so
// re-persisting the same pass is a no-op at the store layer.
//
// The tick token is intentionally excluded: it identifies the pass that
// produced the record (operational correlation), not what was evaluated.
func EvaluationID(e *AssetEvaluation) (string, error) {
	evals := make([]any, len(e.RuleEvaluations))
	for i, re := range e.RuleEvaluations {
		evals[i] = ruleEvaluationMap(re)
	}
	obj := map[string]any{
		"asset_key":        e.AssetKey.String(),
		"seq":              e.Seq,
		"num_requested":    e.NumRequested,
		"num_skipped":      e.NumSkipped,
		"num_discarded":    e.NumDiscarded,
		"rule_evaluations": evals,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EvaluationID: marshal: %w", err)
	}
	return hashWithDomain(DomainEvaluation, canonical), nil
}

// SnapshotHash computes the content-addressed hash of a rule snapshot.
func SnapshotHash(s RuleSnapshot) (string, error) {
	canonical, err := MarshalCanonical(snapshotMap(s))
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// MustEvaluationID is like EvaluationID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEvaluationID(e *AssetEvaluation) string {
	id, err := EvaluationID(e)
	if err != nil {
		panic(err)
	}
	return id
}

func snapshotMap(s RuleSnapshot) map[string]any {
	return map[string]any{
		"rule_name":     s.RuleName,
		"description":   s.Description,
		"decision_type": string(s.DecisionType),
	}
}

func ruleEvaluationMap(re RuleEvaluation) map[string]any {
	m := map[string]any{
		"snapshot":       snapshotMap(re.Snapshot),
		"partition_keys": re.PartitionKeys,
	}
	if len(re.Metadata) > 0 {
		meta := make(map[string]any, len(re.Metadata))
		for k, v := range re.Metadata {
			meta[k] = v
		}
		m["metadata"] = meta
	}
	return m
}
