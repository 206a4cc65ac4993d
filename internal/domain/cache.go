package domain

import (
	"context"
	"time"
)

// RateCache provides fast access to the latest funding rates and prices,
// shared between the websocket warmers, the detector, and the validator.
type RateCache interface {
	SetFundingRate(ctx context.Context, venue VenueID, symbol Symbol, q FundingRateQuote) error
	GetFundingRate(ctx context.Context, venue VenueID, symbol Symbol) (FundingRateQuote, error)
	SetPrice(ctx context.Context, venue VenueID, symbol Symbol, market string, q PriceQuote) error
	GetPrice(ctx context.Context, venue VenueID, symbol Symbol, market string) (PriceQuote, error)
}

// SignalBus provides pub/sub for the opportunity record stream consumed
// by downstream execution.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed locking so only one detector instance
// runs per deployment.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter throttles outbound venue requests, shared across instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
