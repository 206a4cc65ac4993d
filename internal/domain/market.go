// Package domain defines the core types, interfaces, and sentinel errors
// shared across the derivbot detection engine. It has no dependencies on
// other internal packages.
package domain

import "time"

// DefaultFundingPeriod is the funding interval assumed for perpetual
// contracts whose metadata does not state otherwise.
const DefaultFundingPeriod = 8 * time.Hour

// VenueID identifies a trading venue (exchange).
type VenueID string

// Symbol identifies a trading pair shared across venues. Venues may use
// different ticker strings for the same economic asset; adapters normalize
// to this identifier.
type Symbol string

// FeeSchedule holds per-venue maker/taker fee rates as fractions
// (e.g. 0.0004 for 4 bps).
type FeeSchedule struct {
	SpotMaker    float64
	SpotTaker    float64
	FuturesMaker float64
	FuturesTaker float64
}

// Venue is a configured trading venue: identifier, fee schedule, and a
// static reliability weight in [0,1].
type Venue struct {
	ID          VenueID
	Fees        FeeSchedule
	Reliability float64
}

// FundingRateSnapshot is a point-in-time funding rate observation for a
// perpetual contract on one venue. Immutable once created.
type FundingRateSnapshot struct {
	Venue           VenueID
	Symbol          Symbol
	Rate            float64 // fraction per funding period
	MarkPrice       float64
	NextFundingTime time.Time
	Period          time.Duration // funding interval; DefaultFundingPeriod when zero
	Timestamp       time.Time
}

// FundingPeriod returns the snapshot's funding interval, falling back to
// the 8h default when the contract metadata did not state one.
func (s FundingRateSnapshot) FundingPeriod() time.Duration {
	if s.Period > 0 {
		return s.Period
	}
	return DefaultFundingPeriod
}

// ContractType classifies a futures contract.
type ContractType int

const (
	ContractPerpetual ContractType = iota
	ContractDated
)

// String returns the lowercase name of the contract type.
func (t ContractType) String() string {
	switch t {
	case ContractPerpetual:
		return "perpetual"
	case ContractDated:
		return "dated"
	default:
		return "unknown"
	}
}

// FuturesContract describes a futures or perpetual contract listed on a
// venue for a symbol.
type FuturesContract struct {
	Venue         VenueID
	Symbol        Symbol
	Type          ContractType
	Expiry        time.Time     // zero for perpetual
	ContractSize  float64
	FundingPeriod time.Duration // perpetuals only; zero means 8h default
}

// TimeToExpiry returns the remaining lifetime of a dated contract relative
// to now. It returns zero for perpetuals.
func (c FuturesContract) TimeToExpiry(now time.Time) time.Duration {
	if c.Type != ContractDated || c.Expiry.IsZero() {
		return 0
	}
	return c.Expiry.Sub(now)
}
