package analyzer

import (
	"math"
	"sync"
	"time"
)

// ObsPoint records a single observation at a point in time.
type ObsPoint struct {
	Value float64
	Time  time.Time
}

// RateTracker maintains a sliding window of recent observations per key
// (funding rates keyed by venue+symbol, prices keyed by venue+symbol+market)
// and exposes the statistics the analyzers use as risk inputs.
type RateTracker struct {
	history    map[string][]ObsPoint
	windowSize time.Duration
	mu         sync.RWMutex
}

// NewRateTracker creates a RateTracker. The windowSize parameter controls
// how far back the in-memory history extends; points older than the window
// are discarded on every Track call.
func NewRateTracker(windowSize time.Duration) *RateTracker {
	return &RateTracker{
		history:    make(map[string][]ObsPoint),
		windowSize: windowSize,
	}
}

// Track records a new observation for the given key and trims points that
// have fallen outside the sliding window.
func (rt *RateTracker) Track(key string, value float64, ts time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.history[key] = append(rt.history[key], ObsPoint{Value: value, Time: ts})
	rt.trim(key, ts)
}

// TrackBatch records a batch of observations (e.g. a funding-rate history
// pull) in timestamp order.
func (rt *RateTracker) TrackBatch(key string, points []ObsPoint) {
	if len(points) == 0 {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.history[key] = append(rt.history[key], points...)
	rt.trim(key, points[len(points)-1].Time)
}

// trim drops points older than the window relative to now. Caller must
// hold mu.
func (rt *RateTracker) trim(key string, now time.Time) {
	pts := rt.history[key]
	cutoff := now.Add(-rt.windowSize)
	i := 0
	for ; i < len(pts); i++ {
		if !pts[i].Time.Before(cutoff) {
			break
		}
	}
	if i > 0 {
		rt.history[key] = append(pts[:0:0], pts[i:]...)
	}
}

// Average returns the arithmetic mean of all observations in the sliding
// window. If there are no recorded points, it returns 0.
func (rt *RateTracker) Average(key string) float64 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	pts := rt.history[key]
	if len(pts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += p.Value
	}
	return sum / float64(len(pts))
}

// Volatility returns the population standard deviation of the observations
// in the sliding window. If there are fewer than two points, it returns 0.
func (rt *RateTracker) Volatility(key string) float64 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	pts := rt.history[key]
	if len(pts) < 2 {
		return 0
	}

	var sum float64
	for _, p := range pts {
		sum += p.Value
	}
	mean := sum / float64(len(pts))

	var variance float64
	for _, p := range pts {
		d := p.Value - mean
		variance += d * d
	}
	variance /= float64(len(pts))
	return math.Sqrt(variance)
}

// Len returns the number of observations currently in the window for key.
func (rt *RateTracker) Len(key string) int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.history[key])
}
