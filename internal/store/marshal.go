package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/automat/internal/record"
)

// evaluationBody is the JSON shape stored in the evaluations.body
// column: the parts of a record not lifted into their own columns.
type evaluationBody struct {
	RuleEvaluations []record.RuleEvaluation `json:"rule_evaluations"`
	RuleSnapshots   []record.RuleSnapshot   `json:"rule_snapshots"`
}

func marshalEvaluationBody(rec *record.AssetEvaluation) (string, error) {
	body := evaluationBody{
		RuleEvaluations: rec.RuleEvaluations,
		RuleSnapshots:   rec.RuleSnapshots,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal evaluation body: %w", err)
	}
	return string(data), nil
}

func unmarshalEvaluationBody(data string, rec *record.AssetEvaluation) error {
	var body evaluationBody
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		return fmt.Errorf("unmarshal evaluation body: %w", err)
	}
	rec.RuleEvaluations = body.RuleEvaluations
	rec.RuleSnapshots = body.RuleSnapshots
	return nil
}

// marshalKeyList serializes a partition key list for the cursors table.
// The single empty key (the implicit partition of an unpartitioned
// asset) round-trips through here unchanged.
func marshalKeyList(keys []string) (string, error) {
	if keys == nil {
		keys = []string{}
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return "", fmt.Errorf("marshal key list: %w", err)
	}
	return string(data), nil
}

func unmarshalKeyList(data string) ([]string, error) {
	var keys []string
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("unmarshal key list: %w", err)
	}
	return keys, nil
}
