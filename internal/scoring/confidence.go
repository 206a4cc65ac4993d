package scoring

import "fmt"

// ConfidenceConfig holds the confidence scorer parameters.
type ConfidenceConfig struct {
	// ProfitWeight and LiquidityWeight form the convex base score; they
	// are normalized to sum to 1 at construction.
	ProfitWeight    float64
	LiquidityWeight float64
	// ReferenceProfitUSD saturates the profit term: expected profit at or
	// above this reference maps to 1.
	ReferenceProfitUSD float64
}

// ConfidenceScorer combines normalized profit magnitude, the complement of
// the risk score, and a liquidity/reliability term into a confidence score
// in [0,1]. The risk complement is applied multiplicatively so a risk
// score near 1 collapses confidence regardless of how attractive the raw
// profit looks; this is what keeps clearly-erroneous feed data (extreme
// basis readings) from surfacing as high-confidence signals.
type ConfidenceScorer struct {
	profitW    float64
	liquidityW float64
	refProfit  float64
}

// NewConfidenceScorer builds a scorer from cfg. Weight and reference
// problems are configuration errors and fatal at startup.
func NewConfidenceScorer(cfg ConfidenceConfig) (*ConfidenceScorer, error) {
	if cfg.ProfitWeight < 0 || cfg.LiquidityWeight < 0 {
		return nil, fmt.Errorf("confidence scorer: weights must be >= 0, got profit=%g liquidity=%g", cfg.ProfitWeight, cfg.LiquidityWeight)
	}
	sum := cfg.ProfitWeight + cfg.LiquidityWeight
	if sum <= 0 {
		return nil, fmt.Errorf("confidence scorer: weight sum must be positive")
	}
	if cfg.ReferenceProfitUSD <= 0 {
		return nil, fmt.Errorf("confidence scorer: reference profit must be positive, got %g", cfg.ReferenceProfitUSD)
	}
	return &ConfidenceScorer{
		profitW:    cfg.ProfitWeight / sum,
		liquidityW: cfg.LiquidityWeight / sum,
		refProfit:  cfg.ReferenceProfitUSD,
	}, nil
}

// Score returns confidence in [0,1] for an opportunity with the given
// expected net profit (USD), risk score, and liquidity/reliability term.
//
//	base       = w_p * sat(profit / reference) + w_l * liquidity
//	confidence = base * (1 - risk)
func (s *ConfidenceScorer) Score(netProfitUSD, riskScore, liquidity float64) float64 {
	profitNorm := Clamp01(netProfitUSD / s.refProfit)
	base := s.profitW*profitNorm + s.liquidityW*Clamp01(liquidity)
	return Clamp01(base * (1 - Clamp01(riskScore)))
}
