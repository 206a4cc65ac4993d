// Package feed assembles per-venue adapters into the market data surface
// the detector and validator consume.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

// VenueAdapter is one venue's market data surface. Adapters translate the
// venue's REST API into domain quotes; an adapter returns
// domain.ErrUnsupported for data its venue cannot provide.
type VenueAdapter interface {
	GetFundingRate(ctx context.Context, symbol domain.Symbol) (domain.FundingRateQuote, error)
	GetSpotPrice(ctx context.Context, symbol domain.Symbol) (domain.PriceQuote, error)
	GetFuturesPrice(ctx context.Context, contract domain.FuturesContract) (domain.PriceQuote, error)
	ListFuturesContracts(ctx context.Context, symbol domain.Symbol) ([]domain.FuturesContract, error)
	GetFundingRateHistory(ctx context.Context, symbol domain.Symbol, window time.Duration) ([]domain.FundingRateSnapshot, error)
}

// Composite implements domain.MarketDataFeed by routing each call to the
// adapter registered for the venue. Calls for unregistered venues fail
// with domain.ErrDataUnavailable.
type Composite struct {
	adapters map[domain.VenueID]VenueAdapter
}

// NewComposite creates a Composite over the given adapters.
func NewComposite(adapters map[domain.VenueID]VenueAdapter) *Composite {
	return &Composite{adapters: adapters}
}

func (c *Composite) adapter(venue domain.VenueID) (VenueAdapter, error) {
	a, ok := c.adapters[venue]
	if !ok {
		return nil, fmt.Errorf("feed: venue %s: %w", venue, domain.ErrDataUnavailable)
	}
	return a, nil
}

func (c *Composite) GetFundingRate(ctx context.Context, venue domain.VenueID, symbol domain.Symbol) (domain.FundingRateQuote, error) {
	a, err := c.adapter(venue)
	if err != nil {
		return domain.FundingRateQuote{}, err
	}
	return a.GetFundingRate(ctx, symbol)
}

func (c *Composite) GetSpotPrice(ctx context.Context, venue domain.VenueID, symbol domain.Symbol) (domain.PriceQuote, error) {
	a, err := c.adapter(venue)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return a.GetSpotPrice(ctx, symbol)
}

func (c *Composite) GetFuturesPrice(ctx context.Context, venue domain.VenueID, contract domain.FuturesContract) (domain.PriceQuote, error) {
	a, err := c.adapter(venue)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return a.GetFuturesPrice(ctx, contract)
}

func (c *Composite) ListFuturesContracts(ctx context.Context, venue domain.VenueID, symbol domain.Symbol) ([]domain.FuturesContract, error) {
	a, err := c.adapter(venue)
	if err != nil {
		return nil, err
	}
	return a.ListFuturesContracts(ctx, symbol)
}

func (c *Composite) GetFundingRateHistory(ctx context.Context, venue domain.VenueID, symbol domain.Symbol, window time.Duration) ([]domain.FundingRateSnapshot, error) {
	a, err := c.adapter(venue)
	if err != nil {
		return nil, err
	}
	return a.GetFundingRateHistory(ctx, symbol, window)
}

// Compile-time interface check.
var _ domain.MarketDataFeed = (*Composite)(nil)
