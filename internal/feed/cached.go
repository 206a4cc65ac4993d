package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

// MarketSpot is the price-cache market key for spot quotes. Futures quotes
// use the contract identity as their market key.
const MarketSpot = "spot"

// Cached wraps a MarketDataFeed with a read-through RateCache. Quotes
// fresher than maxAge are served from the cache; misses hit the inner feed
// and write back. Cache failures degrade to the inner feed.
type Cached struct {
	inner  domain.MarketDataFeed
	cache  domain.RateCache
	maxAge time.Duration
	logger *slog.Logger
}

// NewCached creates a Cached feed.
func NewCached(inner domain.MarketDataFeed, cache domain.RateCache, maxAge time.Duration, logger *slog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		cache:  cache,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "cached_feed")),
	}
}

func (c *Cached) GetFundingRate(ctx context.Context, venue domain.VenueID, symbol domain.Symbol) (domain.FundingRateQuote, error) {
	if q, err := c.cache.GetFundingRate(ctx, venue, symbol); err == nil {
		if time.Since(q.Timestamp) <= c.maxAge {
			return q, nil
		}
	}

	q, err := c.inner.GetFundingRate(ctx, venue, symbol)
	if err != nil {
		return domain.FundingRateQuote{}, err
	}
	if cerr := c.cache.SetFundingRate(ctx, venue, symbol, q); cerr != nil {
		c.logger.Warn("cache write failed",
			slog.String("venue", string(venue)),
			slog.String("symbol", string(symbol)),
			slog.String("error", cerr.Error()),
		)
	}
	return q, nil
}

func (c *Cached) GetSpotPrice(ctx context.Context, venue domain.VenueID, symbol domain.Symbol) (domain.PriceQuote, error) {
	if q, err := c.cache.GetPrice(ctx, venue, symbol, MarketSpot); err == nil {
		if time.Since(q.Timestamp) <= c.maxAge {
			return q, nil
		}
	}

	q, err := c.inner.GetSpotPrice(ctx, venue, symbol)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if cerr := c.cache.SetPrice(ctx, venue, symbol, MarketSpot, q); cerr != nil {
		c.logger.Warn("cache write failed",
			slog.String("venue", string(venue)),
			slog.String("symbol", string(symbol)),
			slog.String("error", cerr.Error()),
		)
	}
	return q, nil
}

func (c *Cached) GetFuturesPrice(ctx context.Context, venue domain.VenueID, contract domain.FuturesContract) (domain.PriceQuote, error) {
	market := contractMarket(contract)
	if q, err := c.cache.GetPrice(ctx, venue, contract.Symbol, market); err == nil {
		if time.Since(q.Timestamp) <= c.maxAge {
			return q, nil
		}
	}

	q, err := c.inner.GetFuturesPrice(ctx, venue, contract)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if cerr := c.cache.SetPrice(ctx, venue, contract.Symbol, market, q); cerr != nil {
		c.logger.Warn("cache write failed",
			slog.String("venue", string(venue)),
			slog.String("symbol", string(contract.Symbol)),
			slog.String("error", cerr.Error()),
		)
	}
	return q, nil
}

// ListFuturesContracts is not cached; contract listings change rarely and
// are fetched once per tick.
func (c *Cached) ListFuturesContracts(ctx context.Context, venue domain.VenueID, symbol domain.Symbol) ([]domain.FuturesContract, error) {
	return c.inner.ListFuturesContracts(ctx, venue, symbol)
}

// GetFundingRateHistory is not cached; it is only used to seed volatility
// windows at startup.
func (c *Cached) GetFundingRateHistory(ctx context.Context, venue domain.VenueID, symbol domain.Symbol, window time.Duration) ([]domain.FundingRateSnapshot, error) {
	return c.inner.GetFundingRateHistory(ctx, venue, symbol, window)
}

func contractMarket(contract domain.FuturesContract) string {
	if contract.Type == domain.ContractDated {
		return "futures:" + contract.Expiry.UTC().Format("2006-01-02")
	}
	return "futures:perpetual"
}

// Compile-time interface check.
var _ domain.MarketDataFeed = (*Cached)(nil)
