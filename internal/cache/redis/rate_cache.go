package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

// quoteTTL bounds how long a cached quote survives without a refresh. A
// stale cache entry must expire rather than feed the validator forever.
const quoteTTL = 5 * time.Minute

// RateCache implements domain.RateCache using Redis hashes. Funding rates
// live at "funding:{venue}:{symbol}", prices at
// "price:{venue}:{market}:{symbol}", both with an expiry.
type RateCache struct {
	rdb *redis.Client
}

// NewRateCache creates a RateCache backed by the given Client.
func NewRateCache(c *Client) *RateCache {
	return &RateCache{rdb: c.rdb}
}

func fundingCacheKey(venue domain.VenueID, symbol domain.Symbol) string {
	return "funding:" + string(venue) + ":" + string(symbol)
}

func priceCacheKey(venue domain.VenueID, symbol domain.Symbol, market string) string {
	return "price:" + string(venue) + ":" + market + ":" + string(symbol)
}

// SetFundingRate stores the latest funding quote for a venue/symbol.
func (rc *RateCache) SetFundingRate(ctx context.Context, venue domain.VenueID, symbol domain.Symbol, q domain.FundingRateQuote) error {
	key := fundingCacheKey(venue, symbol)
	fields := map[string]interface{}{
		"rate":      strconv.FormatFloat(q.Rate, 'f', -1, 64),
		"mark":      strconv.FormatFloat(q.MarkPrice, 'f', -1, 64),
		"next_ts":   strconv.FormatInt(q.NextFundingTime.UnixNano(), 10),
		"period_ms": strconv.FormatInt(q.Period.Milliseconds(), 10),
		"ts":        strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}

	pipe := rc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set funding rate %s/%s: %w", venue, symbol, err)
	}
	return nil
}

// GetFundingRate retrieves the latest funding quote for a venue/symbol.
// It returns domain.ErrNotFound when no entry exists.
func (rc *RateCache) GetFundingRate(ctx context.Context, venue domain.VenueID, symbol domain.Symbol) (domain.FundingRateQuote, error) {
	key := fundingCacheKey(venue, symbol)
	vals, err := rc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("redis: get funding rate %s/%s: %w", venue, symbol, err)
	}
	if len(vals) == 0 {
		return domain.FundingRateQuote{}, domain.ErrNotFound
	}

	rate, err := parseField(vals, "rate")
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("redis: funding rate %s/%s: %w", venue, symbol, err)
	}
	mark, err := parseField(vals, "mark")
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("redis: funding rate %s/%s: %w", venue, symbol, err)
	}
	nextNano, err := parseIntField(vals, "next_ts")
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("redis: funding rate %s/%s: %w", venue, symbol, err)
	}
	periodMs, err := parseIntField(vals, "period_ms")
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("redis: funding rate %s/%s: %w", venue, symbol, err)
	}
	tsNano, err := parseIntField(vals, "ts")
	if err != nil {
		return domain.FundingRateQuote{}, fmt.Errorf("redis: funding rate %s/%s: %w", venue, symbol, err)
	}

	return domain.FundingRateQuote{
		Rate:            rate,
		MarkPrice:       mark,
		NextFundingTime: time.Unix(0, nextNano).UTC(),
		Period:          time.Duration(periodMs) * time.Millisecond,
		Timestamp:       time.Unix(0, tsNano).UTC(),
	}, nil
}

// SetPrice stores the latest price quote for a venue/symbol/market triple.
// market distinguishes the spot price from per-contract futures prices.
func (rc *RateCache) SetPrice(ctx context.Context, venue domain.VenueID, symbol domain.Symbol, market string, q domain.PriceQuote) error {
	key := priceCacheKey(venue, symbol, market)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(q.Price, 'f', -1, 64),
		"ts":    strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}

	pipe := rc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s/%s/%s: %w", venue, market, symbol, err)
	}
	return nil
}

// GetPrice retrieves the latest price quote for a venue/symbol/market
// triple. It returns domain.ErrNotFound when no entry exists.
func (rc *RateCache) GetPrice(ctx context.Context, venue domain.VenueID, symbol domain.Symbol, market string) (domain.PriceQuote, error) {
	key := priceCacheKey(venue, symbol, market)
	vals, err := rc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get price %s/%s/%s: %w", venue, market, symbol, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}

	price, err := parseField(vals, "price")
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: price %s/%s/%s: %w", venue, market, symbol, err)
	}
	tsNano, err := parseIntField(vals, "ts")
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: price %s/%s/%s: %w", venue, market, symbol, err)
	}

	return domain.PriceQuote{
		Price:     price,
		Timestamp: time.Unix(0, tsNano).UTC(),
	}, nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

func parseIntField(vals map[string]string, field string) (int64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.RateCache = (*RateCache)(nil)
