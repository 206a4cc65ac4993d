// Package scoring implements the shared risk and confidence scorers. Both
// scorers are pure: no state beyond the configured weights, no clock, no
// I/O, so scores stay comparable across opportunity types and detection
// runs.
package scoring

import (
	"fmt"
	"sort"
)

// Clamp01 clamps v to [0,1]. NaN clamps to 0 so a bad sub-factor degrades
// to "no signal" instead of poisoning the combination.
func Clamp01(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RiskScorer maps named risk sub-factors (each in [0,1], higher = riskier)
// to a single risk score in [0,1] via a convex combination. Weights are
// fixed at construction and normalized to sum to 1.
type RiskScorer struct {
	weights map[string]float64
}

// NewRiskScorer builds a scorer from the given weight vector. It returns
// an error when the vector is empty, contains a negative weight, or sums
// to zero; weight problems are configuration errors and fatal at startup.
func NewRiskScorer(weights map[string]float64) (*RiskScorer, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("risk scorer: empty weight vector")
	}
	var sum float64
	for name, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("risk scorer: negative weight %g for factor %q", w, name)
		}
		sum += w
	}
	if sum <= 0 {
		return nil, fmt.Errorf("risk scorer: weight vector sums to zero")
	}
	normalized := make(map[string]float64, len(weights))
	for name, w := range weights {
		normalized[name] = w / sum
	}
	return &RiskScorer{weights: normalized}, nil
}

// Score combines the named sub-factors into a single risk score in [0,1].
// Sub-factors are clamped to [0,1] before combination; factors absent from
// the input contribute zero risk, and factors absent from the weight
// vector are ignored.
func (s *RiskScorer) Score(factors map[string]float64) float64 {
	var score float64
	for name, w := range s.weights {
		score += w * Clamp01(factors[name])
	}
	return Clamp01(score)
}

// Factors returns the factor names the scorer weights, sorted. Useful for
// diagnostics and tests.
func (s *RiskScorer) Factors() []string {
	names := make([]string, 0, len(s.weights))
	for n := range s.weights {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
