package domain

import "time"

// MarketDataSnapshot is an atomically-consistent bundle of the latest
// candle, ticker, and indicator set for one symbol. The service replaces
// the whole value on every recomputation pass; readers never see fields
// from two different passes mixed together.
type MarketDataSnapshot struct {
	Symbol     string          `json:"symbol"`
	Timeframe  Timeframe       `json:"timeframe"`
	ComputedAt time.Time       `json:"computed_at"`
	Candle     *Candle         `json:"candle,omitempty"`
	Ticker     *TickerSnapshot `json:"ticker,omitempty"`
	Indicators IndicatorSet    `json:"indicators"`
}

// Age returns how long ago the snapshot was assembled.
func (s *MarketDataSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.ComputedAt)
}

// IsStale reports whether the snapshot is older than the given threshold.
func (s *MarketDataSnapshot) IsStale(now time.Time, threshold time.Duration) bool {
	return s.Age(now) > threshold
}
