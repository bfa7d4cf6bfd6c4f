package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RSIValue is a Relative Strength Index reading, bounded 0..100.
type RSIValue struct {
	Symbol     string          `json:"symbol"`
	Timeframe  Timeframe       `json:"timeframe"`
	Timestamp  time.Time       `json:"timestamp"`
	Value      decimal.Decimal `json:"value"`
	Period     int             `json:"period"`
	Overbought decimal.Decimal `json:"overbought"`
	Oversold   decimal.Decimal `json:"oversold"`
}

// IsOverbought reports whether the reading is at or above the overbought threshold.
func (r *RSIValue) IsOverbought() bool {
	return r.Value.GreaterThanOrEqual(r.Overbought)
}

// IsOversold reports whether the reading is at or below the oversold threshold.
func (r *RSIValue) IsOversold() bool {
	return r.Value.LessThanOrEqual(r.Oversold)
}

// EMAValue is an Exponential Moving Average reading.
type EMAValue struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
	Period    int             `json:"period"`
}

// MACDValue is a Moving Average Convergence Divergence reading.
type MACDValue struct {
	Symbol       string          `json:"symbol"`
	Timeframe    Timeframe       `json:"timeframe"`
	Timestamp    time.Time       `json:"timestamp"`
	MACDLine     decimal.Decimal `json:"macd_line"`
	SignalLine   decimal.Decimal `json:"signal_line"`
	Histogram    decimal.Decimal `json:"histogram"`
	FastPeriod   int             `json:"fast_period"`
	SlowPeriod   int             `json:"slow_period"`
	SignalPeriod int             `json:"signal_period"`
}

// IsBullishCross reports a MACD line above its signal line.
func (m *MACDValue) IsBullishCross() bool {
	return m.MACDLine.GreaterThan(m.SignalLine)
}

// BollingerBands is a moving-average envelope sized by rolling standard deviation.
type BollingerBands struct {
	Symbol           string          `json:"symbol"`
	Timeframe        Timeframe       `json:"timeframe"`
	Timestamp        time.Time       `json:"timestamp"`
	Upper            decimal.Decimal `json:"upper"`
	Middle           decimal.Decimal `json:"middle"`
	Lower            decimal.Decimal `json:"lower"`
	Bandwidth        decimal.Decimal `json:"bandwidth"`
	Period           int             `json:"period"`
	StdDevMultiplier decimal.Decimal `json:"std_dev_multiplier"`
	IsSqueeze        bool            `json:"is_squeeze"`
}

// IndicatorSet bundles one recomputation pass. Any member may be nil when
// the window held too little data for that indicator.
type IndicatorSet struct {
	RSI       *RSIValue       `json:"rsi,omitempty"`
	EMAFast   *EMAValue       `json:"ema_fast,omitempty"`
	EMASlow   *EMAValue       `json:"ema_slow,omitempty"`
	MACD      *MACDValue      `json:"macd,omitempty"`
	Bollinger *BollingerBands `json:"bollinger,omitempty"`
}
