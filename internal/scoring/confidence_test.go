package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfidenceScorer(t *testing.T) *ConfidenceScorer {
	t.Helper()
	s, err := NewConfidenceScorer(ConfidenceConfig{
		ProfitWeight:       0.6,
		LiquidityWeight:    0.4,
		ReferenceProfitUSD: 50,
	})
	require.NoError(t, err)
	return s
}

func TestNewConfidenceScorer(t *testing.T) {
	t.Run("rejects negative weight", func(t *testing.T) {
		_, err := NewConfidenceScorer(ConfidenceConfig{ProfitWeight: -1, LiquidityWeight: 1, ReferenceProfitUSD: 50})
		assert.Error(t, err)
	})

	t.Run("rejects zero weight sum", func(t *testing.T) {
		_, err := NewConfidenceScorer(ConfidenceConfig{ReferenceProfitUSD: 50})
		assert.Error(t, err)
	})

	t.Run("rejects non-positive reference profit", func(t *testing.T) {
		_, err := NewConfidenceScorer(ConfidenceConfig{ProfitWeight: 1, LiquidityWeight: 1})
		assert.Error(t, err)
	})
}

func TestConfidenceScorer_Score(t *testing.T) {
	s := newTestConfidenceScorer(t)

	t.Run("profit saturates at reference", func(t *testing.T) {
		atRef := s.Score(50, 0, 0)
		aboveRef := s.Score(5000, 0, 0)
		assert.InDelta(t, 0.6, atRef, 1e-12)
		assert.Equal(t, atRef, aboveRef)
	})

	t.Run("half reference profit", func(t *testing.T) {
		got := s.Score(25, 0, 1)
		assert.InDelta(t, 0.6*0.5+0.4*1.0, got, 1e-12)
	})

	t.Run("risk complement is multiplicative", func(t *testing.T) {
		noRisk := s.Score(50, 0, 1)
		halfRisk := s.Score(50, 0.5, 1)
		assert.InDelta(t, noRisk*0.5, halfRisk, 1e-12)
	})

	t.Run("maximal risk collapses confidence", func(t *testing.T) {
		got := s.Score(1_000_000, 1.0, 1.0)
		assert.Equal(t, 0.0, got)
	})

	t.Run("negative profit contributes nothing", func(t *testing.T) {
		got := s.Score(-10, 0, 0.5)
		assert.InDelta(t, 0.4*0.5, got, 1e-12)
	})

	t.Run("result stays in range", func(t *testing.T) {
		for _, tc := range []struct{ profit, risk, liq float64 }{
			{0, 0, 0},
			{1e9, -5, 27},
			{-1e9, 2, -3},
		} {
			got := s.Score(tc.profit, tc.risk, tc.liq)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	})
}

// Any profit, risk, and liquidity input, including NaN and infinities,
// must produce a confidence score in [0,1].
func FuzzConfidenceScorerBounds(f *testing.F) {
	f.Add(25.0, 0.3, 0.8)
	f.Add(math.NaN(), math.Inf(1), math.Inf(-1))
	f.Add(-1e308, 1e308, -0.0)
	f.Add(0.0, -5.0, 7.0)

	f.Fuzz(func(t *testing.T, profit, risk, liquidity float64) {
		s, err := NewConfidenceScorer(ConfidenceConfig{
			ProfitWeight:       0.6,
			LiquidityWeight:    0.4,
			ReferenceProfitUSD: 50,
		})
		if err != nil {
			t.Fatalf("scorer construction: %v", err)
		}
		got := s.Score(profit, risk, liquidity)
		if math.IsNaN(got) || got < 0 || got > 1 {
			t.Fatalf("Score(%g, %g, %g) = %g, want in [0,1]", profit, risk, liquidity, got)
		}
	})
}
