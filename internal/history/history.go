// Package history provides the bounded, time-ordered in-memory store of
// opportunity records used for trend analysis and aggregate metrics. It is
// the only long-lived mutable state in the detection core; all access
// serializes through one mutex so readers always see a consistent
// snapshot.
package history

import (
	"sync"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

// Config bounds the history by capacity and age. Pruning is applied lazily
// on insertion.
type Config struct {
	MaxRecords int
	MaxAge     time.Duration
}

// TrendResult summarizes direction persistence for a (symbol, kind) pair.
type TrendResult struct {
	Symbol domain.Symbol
	Kind   domain.OpportunityKind
	// Sign is the direction of the most recent record: +1, -1, or 0.
	Sign int
	// ConsecutiveTicks counts how many of the most recent records share
	// Sign, newest backwards.
	ConsecutiveTicks int
	// Persistent is true when ConsecutiveTicks reached the queried window.
	Persistent bool
}

// KindMetrics aggregates recorded opportunities of one kind.
type KindMetrics struct {
	Total          int64
	Accepted       int64
	Rejected       int64
	MeanRisk       float64
	MeanConfidence float64
}

// Metrics is the aggregate performance view over the retained window.
type Metrics struct {
	Funding KindMetrics
	Basis   KindMetrics
}

// History is the append-only record collection. Records are appended in
// detection order and pruned from the front.
type History struct {
	mu      sync.RWMutex
	records []domain.OpportunityRecord
	cfg     Config
}

// New creates an empty History with the given bounds.
func New(cfg Config) *History {
	return &History{
		records: make([]domain.OpportunityRecord, 0, cfg.MaxRecords),
		cfg:     cfg,
	}
}

// Append adds a record and lazily applies the retention policy. Records
// are expected in non-decreasing RecordedAt order; the age bound is
// evaluated against the newest record's timestamp so Append never reads
// the wall clock.
func (h *History) Append(rec domain.OpportunityRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	h.pruneLocked(rec.RecordedAt)
}

// pruneLocked drops records older than MaxAge relative to now, then trims
// from the front down to MaxRecords. Caller must hold mu.
func (h *History) pruneLocked(now time.Time) {
	if h.cfg.MaxAge > 0 {
		cutoff := now.Add(-h.cfg.MaxAge)
		i := 0
		for ; i < len(h.records); i++ {
			if !h.records[i].RecordedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			h.records = append(h.records[:0:0], h.records[i:]...)
		}
	}
	if h.cfg.MaxRecords > 0 && len(h.records) > h.cfg.MaxRecords {
		overflow := len(h.records) - h.cfg.MaxRecords
		h.records = append(h.records[:0:0], h.records[overflow:]...)
	}
}

// Len returns the number of retained records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Recent returns up to limit records, newest first. The returned slice is
// a copy and safe to mutate.
func (h *History) Recent(limit int) []domain.OpportunityRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.OpportunityRecord, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.records[i])
	}
	return out
}

// BySymbol returns up to limit records for the (symbol, kind) pair, newest
// first.
func (h *History) BySymbol(symbol domain.Symbol, kind domain.OpportunityKind, limit int) []domain.OpportunityRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.OpportunityRecord, 0, limit)
	for i := len(h.records) - 1; i >= 0; i-- {
		rec := h.records[i]
		if rec.Symbol != symbol || rec.Kind != kind {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Trend reports whether the (symbol, kind) pair has shown the same
// direction sign across the last window ticks. Persistence informs but
// never replaces the confidence score.
func (h *History) Trend(symbol domain.Symbol, kind domain.OpportunityKind, window int) TrendResult {
	res := TrendResult{Symbol: symbol, Kind: kind}
	if window <= 0 {
		return res
	}

	recent := h.BySymbol(symbol, kind, window)
	if len(recent) == 0 {
		return res
	}

	res.Sign = recent[0].DirectionSign()
	if res.Sign == 0 {
		return res
	}
	for _, rec := range recent {
		if rec.DirectionSign() != res.Sign {
			break
		}
		res.ConsecutiveTicks++
	}
	res.Persistent = res.ConsecutiveTicks >= window
	return res
}

// Aggregate computes outcome counts and mean risk/confidence per kind over
// the retained window.
func (h *History) Aggregate() Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var (
		m       Metrics
		riskSum [2]float64
		confSum [2]float64
	)
	for _, rec := range h.records {
		var km *KindMetrics
		var idx int
		switch rec.Kind {
		case domain.KindFundingRate:
			km, idx = &m.Funding, 0
		case domain.KindBasis:
			km, idx = &m.Basis, 1
		default:
			continue
		}
		km.Total++
		switch rec.Outcome.State {
		case domain.ValidationAccepted:
			km.Accepted++
		case domain.ValidationRejected:
			km.Rejected++
		}
		riskSum[idx] += rec.RiskScore()
		confSum[idx] += rec.ConfidenceScore()
	}
	if m.Funding.Total > 0 {
		m.Funding.MeanRisk = riskSum[0] / float64(m.Funding.Total)
		m.Funding.MeanConfidence = confSum[0] / float64(m.Funding.Total)
	}
	if m.Basis.Total > 0 {
		m.Basis.MeanRisk = riskSum[1] / float64(m.Basis.Total)
		m.Basis.MeanConfidence = confSum[1] / float64(m.Basis.Total)
	}
	return m
}
