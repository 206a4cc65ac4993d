package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrDataUnavailable = errors.New("market data unavailable")
	ErrStalePrice      = errors.New("price data stale")
	ErrComputation     = errors.New("computation error")
	ErrUnsupported     = errors.New("capability unsupported by venue")
	ErrLockHeld        = errors.New("lock already held")
)
