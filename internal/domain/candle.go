package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is the fixed bucket width candles are aggregated into.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Candle is one OHLCV bucket. Uniquely identified by
// (Symbol, Timeframe, PeriodStart). A candle for the current period is
// still forming and gets replaced in place; it becomes immutable once a
// later period arrives.
type Candle struct {
	Symbol      string          `gorm:"primaryKey;size:32" json:"symbol"`
	Timeframe   Timeframe       `gorm:"primaryKey;size:8" json:"timeframe"`
	PeriodStart time.Time       `gorm:"primaryKey" json:"period_start"`
	Open        decimal.Decimal `gorm:"type:numeric" json:"open"`
	High        decimal.Decimal `gorm:"type:numeric" json:"high"`
	Low         decimal.Decimal `gorm:"type:numeric" json:"low"`
	Close       decimal.Decimal `gorm:"type:numeric" json:"close"`
	Volume      decimal.Decimal `gorm:"type:numeric" json:"volume"`
	QuoteVolume decimal.Decimal `gorm:"type:numeric" json:"quote_volume"`
	TradeCount  int64           `json:"trade_count,omitempty"`
}

// Validate checks the OHLC invariant: High is the ceiling and Low the
// floor of every price in the bucket, and volume is non-negative.
func (c *Candle) Validate() error {
	if c.Symbol == "" {
		return ErrInvalidSymbol
	}
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) || c.High.LessThan(c.Low) {
		return fmt.Errorf("candle %s %s @%s: high %s below open/close/low",
			c.Symbol, c.Timeframe, c.PeriodStart.Format(time.RFC3339), c.High)
	}
	if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) {
		return fmt.Errorf("candle %s %s @%s: low %s above open/close",
			c.Symbol, c.Timeframe, c.PeriodStart.Format(time.RFC3339), c.Low)
	}
	if c.Volume.IsNegative() {
		return fmt.Errorf("candle %s %s @%s: negative volume %s",
			c.Symbol, c.Timeframe, c.PeriodStart.Format(time.RFC3339), c.Volume)
	}
	return nil
}

// SamePeriod reports whether the other candle covers the same bucket.
func (c *Candle) SamePeriod(other *Candle) bool {
	return c.Symbol == other.Symbol &&
		c.Timeframe == other.Timeframe &&
		c.PeriodStart.Equal(other.PeriodStart)
}
