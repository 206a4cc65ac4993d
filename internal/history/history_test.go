package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

func fundingRecord(id string, rateDiff, risk, confidence float64, state domain.ValidationState, at time.Time) domain.OpportunityRecord {
	return domain.OpportunityRecord{
		ID:     id,
		Kind:   domain.KindFundingRate,
		Symbol: "BTC-USDT",
		Funding: &domain.FundingRateOpportunity{
			ID:              id,
			Symbol:          "BTC-USDT",
			RateDiff:        rateDiff,
			RiskScore:       risk,
			ConfidenceScore: confidence,
			Timestamp:       at,
		},
		Outcome:    domain.ValidationOutcome{State: state, CheckedAt: at},
		RecordedAt: at,
	}
}

func basisRecord(id string, basis float64, state domain.ValidationState, at time.Time) domain.OpportunityRecord {
	return domain.OpportunityRecord{
		ID:     id,
		Kind:   domain.KindBasis,
		Symbol: "ETH-USDT",
		Basis: &domain.BasisTradingOpportunity{
			ID:        id,
			Symbol:    "ETH-USDT",
			Basis:     basis,
			Timestamp: at,
		},
		Outcome:    domain.ValidationOutcome{State: state, CheckedAt: at},
		RecordedAt: at,
	}
}

func TestHistory_Bounds(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("capacity bound evicts oldest", func(t *testing.T) {
		h := New(Config{MaxRecords: 3, MaxAge: 24 * time.Hour})
		for i := 0; i < 5; i++ {
			h.Append(fundingRecord(fmt.Sprintf("r%d", i), 0.001, 0.2, 0.5,
				domain.ValidationAccepted, base.Add(time.Duration(i)*time.Minute)))
		}
		assert.Equal(t, 3, h.Len())
		recent := h.Recent(0)
		assert.Equal(t, "r4", recent[0].ID)
		assert.Equal(t, "r2", recent[2].ID)
	})

	t.Run("age bound evicts stale records", func(t *testing.T) {
		h := New(Config{MaxRecords: 100, MaxAge: time.Hour})
		h.Append(fundingRecord("old", 0.001, 0.2, 0.5, domain.ValidationAccepted, base))
		h.Append(fundingRecord("new", 0.001, 0.2, 0.5, domain.ValidationAccepted, base.Add(2*time.Hour)))
		assert.Equal(t, 1, h.Len())
		assert.Equal(t, "new", h.Recent(0)[0].ID)
	})
}

func TestHistory_Queries(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h := New(Config{MaxRecords: 100, MaxAge: 24 * time.Hour})
	h.Append(fundingRecord("f1", 0.001, 0.2, 0.6, domain.ValidationAccepted, base))
	h.Append(basisRecord("b1", 50, domain.ValidationRejected, base.Add(time.Minute)))
	h.Append(fundingRecord("f2", -0.002, 0.4, 0.4, domain.ValidationRejected, base.Add(2*time.Minute)))

	t.Run("recent is newest first and limited", func(t *testing.T) {
		recent := h.Recent(2)
		assert.Len(t, recent, 2)
		assert.Equal(t, "f2", recent[0].ID)
		assert.Equal(t, "b1", recent[1].ID)
	})

	t.Run("by symbol filters symbol and kind", func(t *testing.T) {
		got := h.BySymbol("BTC-USDT", domain.KindFundingRate, 0)
		assert.Len(t, got, 2)
		assert.Equal(t, "f2", got[0].ID)

		assert.Empty(t, h.BySymbol("BTC-USDT", domain.KindBasis, 0))
		assert.Len(t, h.BySymbol("ETH-USDT", domain.KindBasis, 0), 1)
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		recent := h.Recent(1)
		recent[0].ID = "mutated"
		assert.Equal(t, "f2", h.Recent(1)[0].ID)
	})
}

func TestHistory_Trend(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("persistent run", func(t *testing.T) {
		h := New(Config{MaxRecords: 100, MaxAge: 24 * time.Hour})
		for i := 0; i < 3; i++ {
			h.Append(fundingRecord(fmt.Sprintf("f%d", i), 0.001, 0.2, 0.5,
				domain.ValidationAccepted, base.Add(time.Duration(i)*time.Minute)))
		}
		tr := h.Trend("BTC-USDT", domain.KindFundingRate, 3)
		assert.Equal(t, 1, tr.Sign)
		assert.Equal(t, 3, tr.ConsecutiveTicks)
		assert.True(t, tr.Persistent)
	})

	t.Run("run broken by sign flip", func(t *testing.T) {
		h := New(Config{MaxRecords: 100, MaxAge: 24 * time.Hour})
		h.Append(fundingRecord("f0", 0.001, 0.2, 0.5, domain.ValidationAccepted, base))
		h.Append(fundingRecord("f1", -0.001, 0.2, 0.5, domain.ValidationAccepted, base.Add(time.Minute)))
		h.Append(fundingRecord("f2", -0.002, 0.2, 0.5, domain.ValidationAccepted, base.Add(2*time.Minute)))

		tr := h.Trend("BTC-USDT", domain.KindFundingRate, 3)
		assert.Equal(t, -1, tr.Sign)
		assert.Equal(t, 2, tr.ConsecutiveTicks)
		assert.False(t, tr.Persistent)
	})

	t.Run("no records", func(t *testing.T) {
		h := New(Config{MaxRecords: 100, MaxAge: 24 * time.Hour})
		tr := h.Trend("BTC-USDT", domain.KindFundingRate, 3)
		assert.Equal(t, 0, tr.Sign)
		assert.False(t, tr.Persistent)
	})
}

func TestHistory_Aggregate(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h := New(Config{MaxRecords: 100, MaxAge: 24 * time.Hour})
	h.Append(fundingRecord("f1", 0.001, 0.2, 0.6, domain.ValidationAccepted, base))
	h.Append(fundingRecord("f2", 0.001, 0.4, 0.4, domain.ValidationRejected, base.Add(time.Minute)))
	h.Append(basisRecord("b1", 50, domain.ValidationAccepted, base.Add(2*time.Minute)))

	m := h.Aggregate()
	assert.Equal(t, int64(2), m.Funding.Total)
	assert.Equal(t, int64(1), m.Funding.Accepted)
	assert.Equal(t, int64(1), m.Funding.Rejected)
	assert.InDelta(t, 0.3, m.Funding.MeanRisk, 1e-12)
	assert.InDelta(t, 0.5, m.Funding.MeanConfidence, 1e-12)

	assert.Equal(t, int64(1), m.Basis.Total)
	assert.Equal(t, int64(1), m.Basis.Accepted)
	assert.Equal(t, int64(0), m.Basis.Rejected)
}
