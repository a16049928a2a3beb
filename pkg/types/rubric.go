package types

import (
	"fmt"
	"math"
	"sort"
)

// The six fixed rubric criteria.
const (
	CriterionHypothesisQuality        = "hypothesis_quality"
	CriterionReasoningChain           = "reasoning_chain"
	CriterionAlternativeExploration   = "alternative_exploration"
	CriterionActionReasoningAlignment = "action_reasoning_alignment"
	CriterionConfidenceCalibration    = "confidence_calibration"
	CriterionEfficiency               = "efficiency"
)

// Rubric score bounds.
const (
	ScoreMin = 1.0
	ScoreMax = 5.0
)

// CriterionWeights are the fixed weights applied when aggregating
// per-criterion scores into an overall score. They sum to 1.0.
var CriterionWeights = map[string]float64{
	CriterionHypothesisQuality:        0.20,
	CriterionReasoningChain:           0.25,
	CriterionAlternativeExploration:   0.15,
	CriterionActionReasoningAlignment: 0.20,
	CriterionConfidenceCalibration:    0.10,
	CriterionEfficiency:               0.10,
}

// Criteria returns the criterion names in a stable order.
func Criteria() []string {
	names := make([]string, 0, len(CriterionWeights))
	for name := range CriterionWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RubricScore maps each of the six criteria to a score in [1.0, 5.0].
type RubricScore map[string]float64

// NewRubricScore validates per-criterion scores against the fixed rubric:
// every criterion must be present, every score in bounds, and no extra
// criteria allowed. The weight table is checked to sum to 1.0 so a bad edit
// to CriterionWeights cannot silently skew every stored score.
func NewRubricScore(scores map[string]float64) (RubricScore, error) {
	var weightSum float64
	for _, w := range CriterionWeights {
		weightSum += w
	}
	if math.Abs(weightSum-1.0) > 1e-9 {
		return nil, fmt.Errorf("criterion weights sum to %v, want 1.0", weightSum)
	}

	rs := make(RubricScore, len(CriterionWeights))
	for name := range CriterionWeights {
		score, ok := scores[name]
		if !ok {
			return nil, fmt.Errorf("missing criterion %q", name)
		}
		if score < ScoreMin || score > ScoreMax {
			return nil, fmt.Errorf("criterion %q score %v out of range [%v, %v]", name, score, ScoreMin, ScoreMax)
		}
		rs[name] = score
	}
	for name := range scores {
		if _, ok := CriterionWeights[name]; !ok {
			return nil, fmt.Errorf("unknown criterion %q", name)
		}
	}
	return rs, nil
}

// MinimumRubricScore returns a RubricScore with every criterion at the
// rubric floor. Used when the judge response cannot be parsed at all.
func MinimumRubricScore() RubricScore {
	rs := make(RubricScore, len(CriterionWeights))
	for name := range CriterionWeights {
		rs[name] = ScoreMin
	}
	return rs
}

// Overall computes the weight-dot-product of the per-criterion scores,
// rounded to one decimal and clamped to [1.0, 5.0]. The stored overall
// score is always derived here, never taken from an external aggregate.
func (rs RubricScore) Overall() float64 {
	var sum float64
	for name, weight := range CriterionWeights {
		sum += weight * rs[name]
	}
	rounded := math.Round(sum*10) / 10
	return math.Min(ScoreMax, math.Max(ScoreMin, rounded))
}
