package analyzer

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/derivbot/internal/domain"
	"github.com/alanyoungcy/derivbot/internal/scoring"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScorers(t *testing.T) (*scoring.RiskScorer, *scoring.ConfidenceScorer) {
	t.Helper()
	risk, err := scoring.NewRiskScorer(map[string]float64{
		FactorMarkDivergence:   0.40,
		FactorRateVolatility:   0.35,
		FactorVenueReliability: 0.25,
	})
	require.NoError(t, err)
	conf, err := scoring.NewConfidenceScorer(scoring.ConfidenceConfig{
		ProfitWeight:       0.6,
		LiquidityWeight:    0.4,
		ReferenceProfitUSD: 50,
	})
	require.NoError(t, err)
	return risk, conf
}

func newTestFundingAnalyzer(t *testing.T) *FundingRateAnalyzer {
	t.Helper()
	risk, conf := testScorers(t)
	return NewFundingRateAnalyzer(FundingConfig{
		MinRateDiff:        0.0002,
		PositionSizeUSD:    10_000,
		InitialMarginRate:  0.10,
		MarginSafetyFactor: 1.5,
		StalenessWindow:    5 * time.Second,
	}, risk, conf, discardLogger())
}

func testVenueA() domain.Venue {
	return domain.Venue{
		ID: "binance",
		Fees: domain.FeeSchedule{
			SpotTaker:    0.0004,
			FuturesTaker: 0.0002,
		},
		Reliability: 0.95,
	}
}

func testVenueB() domain.Venue {
	return domain.Venue{
		ID: "bybit",
		Fees: domain.FeeSchedule{
			SpotTaker:    0.0005,
			FuturesTaker: 0.0002,
		},
		Reliability: 0.90,
	}
}

func fundingSnap(venue domain.VenueID, rate float64, at time.Time) domain.FundingRateSnapshot {
	return domain.FundingRateSnapshot{
		Venue:           venue,
		Symbol:          "BTC-USDT",
		Rate:            rate,
		MarkPrice:       60_000,
		NextFundingTime: at.Add(4 * time.Hour),
		Timestamp:       at,
	}
}

func TestFundingRateAnalyzer_Analyze(t *testing.T) {
	a := newTestFundingAnalyzer(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("detects differential above threshold", func(t *testing.T) {
		snapA := fundingSnap("binance", 0.0005, now)
		snapB := fundingSnap("bybit", -0.0003, now)

		opp, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		require.NoError(t, err)
		require.NotNil(t, opp)

		assert.InDelta(t, 0.0008, opp.RateDiff, 1e-12)
		// 8h funding period: 1095 periods per year.
		assert.InDelta(t, 0.0008*1095, opp.RateDiffAnnualized, 1e-9)
		assert.InDelta(t, 0.0008*10_000, opp.ProfitPerPeriod, 1e-9)
		assert.InDelta(t, 10_000*(0.0002+0.0002), opp.EstimatedFees, 1e-9)
		assert.InDelta(t, 2*10_000*0.10*1.5, opp.RequiredMargin, 1e-9)
		// A pays more than B: short A, long B.
		assert.Equal(t, domain.DirectionShortALongB, opp.Direction)
		assert.Equal(t, now, opp.Timestamp)
		assert.GreaterOrEqual(t, opp.RiskScore, 0.0)
		assert.LessOrEqual(t, opp.RiskScore, 1.0)
		assert.Greater(t, opp.ConfidenceScore, 0.0)
	})

	t.Run("direction flips with the sign of the differential", func(t *testing.T) {
		snapA := fundingSnap("binance", -0.0005, now)
		snapB := fundingSnap("bybit", 0.0003, now)

		opp, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		require.NoError(t, err)
		require.NotNil(t, opp)
		assert.Equal(t, domain.DirectionLongAShortB, opp.Direction)
		assert.InDelta(t, -0.0008, opp.RateDiff, 1e-12)
	})

	t.Run("differential below threshold yields nothing", func(t *testing.T) {
		snapA := fundingSnap("binance", 0.00011, now)
		snapB := fundingSnap("bybit", 0.00001, now)

		opp, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		require.NoError(t, err)
		assert.Nil(t, opp)
	})

	t.Run("unprofitable after fees yields nothing", func(t *testing.T) {
		// Diff of 3 bps clears the 2 bps threshold but nets below the
		// 4 bps round of taker fees.
		snapA := fundingSnap("binance", 0.0003, now)
		snapB := fundingSnap("bybit", 0, now)

		opp, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		require.NoError(t, err)
		assert.Nil(t, opp)
	})

	t.Run("stale snapshot is an error", func(t *testing.T) {
		snapA := fundingSnap("binance", 0.0005, now.Add(-10*time.Second))
		snapB := fundingSnap("bybit", -0.0003, now)

		_, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		assert.ErrorIs(t, err, domain.ErrStalePrice)
	})

	t.Run("non-positive mark price is an error", func(t *testing.T) {
		snapA := fundingSnap("binance", 0.0005, now)
		snapA.MarkPrice = 0
		snapB := fundingSnap("bybit", -0.0003, now)

		_, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	})

	t.Run("symbol mismatch is an error", func(t *testing.T) {
		snapA := fundingSnap("binance", 0.0005, now)
		snapB := fundingSnap("bybit", -0.0003, now)
		snapB.Symbol = "ETH-USDT"

		_, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		assert.ErrorIs(t, err, domain.ErrComputation)
	})

	t.Run("next funding time takes the earlier venue", func(t *testing.T) {
		snapA := fundingSnap("binance", 0.0005, now)
		snapB := fundingSnap("bybit", -0.0003, now)
		snapB.NextFundingTime = now.Add(time.Hour)

		opp, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		require.NoError(t, err)
		require.NotNil(t, opp)
		assert.Equal(t, snapB.NextFundingTime, opp.NextFundingTime)
	})

	t.Run("rate volatility raises risk", func(t *testing.T) {
		snapA := fundingSnap("binance", 0.0005, now)
		snapB := fundingSnap("bybit", -0.0003, now)

		calm, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		require.NoError(t, err)
		volatile, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0.001, now)
		require.NoError(t, err)

		assert.Greater(t, volatile.RiskScore, calm.RiskScore)
		assert.Less(t, volatile.ConfidenceScore, calm.ConfidenceScore)
	})

	t.Run("identical inputs reproduce the identical ID", func(t *testing.T) {
		snapA := fundingSnap("binance", 0.0005, now)
		snapB := fundingSnap("bybit", -0.0003, now)

		first, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		require.NoError(t, err)
		second, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		later, err := a.Analyze(snapA, snapB, testVenueA(), testVenueB(), 0, now.Add(time.Second))
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, later.ID)
	})
}
