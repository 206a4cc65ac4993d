package domain

import (
	"context"
	"time"
)

// FundingRateQuote is the live funding-rate reading for a perpetual
// contract on one venue.
type FundingRateQuote struct {
	Rate            float64 // fraction per funding period
	MarkPrice       float64
	NextFundingTime time.Time
	Period          time.Duration // zero means 8h default
	Timestamp       time.Time
}

// PriceQuote is a timestamped price reading.
type PriceQuote struct {
	Price     float64
	Timestamp time.Time
}

// MarketDataFeed is the capability surface the detection core consumes.
// Venue/API failures surface as ErrDataUnavailable; a venue that does not
// offer a capability returns ErrUnsupported so callers can branch on
// capability rather than on failure.
type MarketDataFeed interface {
	GetFundingRate(ctx context.Context, venue VenueID, symbol Symbol) (FundingRateQuote, error)
	GetSpotPrice(ctx context.Context, venue VenueID, symbol Symbol) (PriceQuote, error)
	GetFuturesPrice(ctx context.Context, venue VenueID, contract FuturesContract) (PriceQuote, error)
	// ListFuturesContracts returns the venue's contracts for the symbol,
	// perpetuals first, then dated ascending by expiry.
	ListFuturesContracts(ctx context.Context, venue VenueID, symbol Symbol) ([]FuturesContract, error)
	// GetFundingRateHistory returns recent funding snapshots within the
	// window, oldest first. Used for volatility risk inputs.
	GetFundingRateHistory(ctx context.Context, venue VenueID, symbol Symbol, window time.Duration) ([]FundingRateSnapshot, error)
}
