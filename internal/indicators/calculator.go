// Package indicators computes technical indicators from ordered candle
// sequences. All arithmetic stays in arbitrary-precision decimals; binary
// floating point is never used for price math. Quantization is
// round-half-to-even (RoundBank) and happens only on final outputs.
package indicators

import (
	"math"

	"marketfeed/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	pricePlaces = 8 // quantization for EMA/MACD/Bollinger outputs
	rsiPlaces   = 2
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
	// squeezeRatio: bands tighter than 10% of the middle count as a squeeze.
	squeezeRatio = decimal.NewFromFloat(0.10)
)

// Config carries the indicator periods and thresholds.
type Config struct {
	RSIPeriod       int
	RSIOverbought   decimal.Decimal
	RSIOversold     decimal.Decimal
	EMAFast         int
	EMASlow         int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	BollingerPeriod int
	BollingerStdDev decimal.Decimal
}

// DefaultConfig returns the conventional periods: RSI 14, EMA 12/26,
// MACD 12/26/9, Bollinger 20/2.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:       14,
		RSIOverbought:   decimal.NewFromInt(70),
		RSIOversold:     decimal.NewFromInt(30),
		EMAFast:         12,
		EMASlow:         26,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerPeriod: 20,
		BollingerStdDev: decimal.NewFromInt(2),
	}
}

// Calculator is a stateless set of pure functions over ascending-by-time
// candle slices. Short input is never an error: each method returns nil
// when the sequence cannot support its period.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a calculator with the given periods.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// RSI computes the Relative Strength Index with Wilder smoothing.
// Requires at least period+1 candles. Exactly 100 when there were no
// losses over the window.
func (c *Calculator) RSI(candles []domain.Candle, period int) *domain.RSIValue {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}

	deltas := make([]decimal.Decimal, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		deltas = append(deltas, candles[i].Close.Sub(candles[i-1].Close))
	}

	// Seed: simple mean of gains/losses over the first period deltas.
	avgGain, avgLoss := decimal.Zero, decimal.Zero
	for i := 0; i < period; i++ {
		if deltas[i].IsPositive() {
			avgGain = avgGain.Add(deltas[i])
		} else {
			avgLoss = avgLoss.Sub(deltas[i])
		}
	}
	periodDec := decimal.NewFromInt(int64(period))
	avgGain = avgGain.Div(periodDec)
	avgLoss = avgLoss.Div(periodDec)

	// Wilder smoothing: avg = (avg*(period-1) + value) / period.
	prevWeight := decimal.NewFromInt(int64(period - 1))
	for i := period; i < len(deltas); i++ {
		gain, loss := decimal.Zero, decimal.Zero
		if deltas[i].IsPositive() {
			gain = deltas[i]
		} else {
			loss = deltas[i].Neg()
		}
		avgGain = avgGain.Mul(prevWeight).Add(gain).Div(periodDec)
		avgLoss = avgLoss.Mul(prevWeight).Add(loss).Div(periodDec)
	}

	var value decimal.Decimal
	if avgLoss.IsZero() {
		value = hundred
	} else {
		rs := avgGain.Div(avgLoss)
		value = hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	}

	last := candles[len(candles)-1]
	return &domain.RSIValue{
		Symbol:     last.Symbol,
		Timeframe:  last.Timeframe,
		Timestamp:  last.PeriodStart,
		Value:      value.RoundBank(rsiPlaces),
		Period:     period,
		Overbought: c.cfg.RSIOverbought,
		Oversold:   c.cfg.RSIOversold,
	}
}

// emaRaw computes the full-precision EMA over all closes: seed is the
// simple mean of the first period closes, then the standard recurrence.
// MACD composes on this variant to avoid compounding rounding error.
func emaRaw(closes []decimal.Decimal, period int) decimal.Decimal {
	series := emaSeries(closes, period)
	return series[len(series)-1]
}

// emaSeries returns the EMA value at every index from period-1 onward,
// aligned so that series[i] is the EMA over closes[0..period-1+i].
func emaSeries(closes []decimal.Decimal, period int) []decimal.Decimal {
	periodDec := decimal.NewFromInt(int64(period))
	seed := decimal.Zero
	for i := 0; i < period; i++ {
		seed = seed.Add(closes[i])
	}
	seed = seed.Div(periodDec)

	multiplier := two.Div(decimal.NewFromInt(int64(period + 1)))

	series := make([]decimal.Decimal, 0, len(closes)-period+1)
	ema := seed
	series = append(series, ema)
	for i := period; i < len(closes); i++ {
		ema = closes[i].Sub(ema).Mul(multiplier).Add(ema)
		series = append(series, ema)
	}
	return series
}

// EMA computes the Exponential Moving Average over the closes. Requires
// at least period candles.
func (c *Calculator) EMA(candles []domain.Candle, period int) *domain.EMAValue {
	if period <= 0 || len(candles) < period {
		return nil
	}

	value := emaRaw(closesOf(candles), period)
	last := candles[len(candles)-1]
	return &domain.EMAValue{
		Symbol:    last.Symbol,
		Timeframe: last.Timeframe,
		Timestamp: last.PeriodStart,
		Value:     value.RoundBank(pricePlaces),
		Period:    period,
	}
}

// MACD computes the MACD line, signal line, and histogram. Requires at
// least slow+signal candles. The historical MACD-line series is built
// with the prefix-incremental EMA recurrence, which reproduces the exact
// value a from-scratch recomputation over every growing prefix yields.
func (c *Calculator) MACD(candles []domain.Candle, fast, slow, signal int) *domain.MACDValue {
	if fast <= 0 || slow <= fast || signal <= 0 || len(candles) < slow+signal {
		return nil
	}

	closes := closesOf(candles)
	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	// MACD line at every historical point from the slow period onward.
	// fastSeries leads slowSeries by slow-fast entries.
	offset := slow - fast
	macdSeries := make([]decimal.Decimal, len(slowSeries))
	for i := range slowSeries {
		macdSeries[i] = fastSeries[i+offset].Sub(slowSeries[i])
	}

	signalSeries := emaSeries(macdSeries, signal)

	macdLine := macdSeries[len(macdSeries)-1]
	signalLine := signalSeries[len(signalSeries)-1]
	histogram := macdLine.Sub(signalLine)

	last := candles[len(candles)-1]
	return &domain.MACDValue{
		Symbol:       last.Symbol,
		Timeframe:    last.Timeframe,
		Timestamp:    last.PeriodStart,
		MACDLine:     macdLine.RoundBank(pricePlaces),
		SignalLine:   signalLine.RoundBank(pricePlaces),
		Histogram:    histogram.RoundBank(pricePlaces),
		FastPeriod:   fast,
		SlowPeriod:   slow,
		SignalPeriod: signal,
	}
}

// BollingerBands computes the moving-average envelope over the last
// period closes using population variance (divide by period).
func (c *Calculator) BollingerBands(candles []domain.Candle, period int, stdDevMultiplier decimal.Decimal) *domain.BollingerBands {
	if period <= 0 || len(candles) < period {
		return nil
	}

	closes := closesOf(candles[len(candles)-period:])
	periodDec := decimal.NewFromInt(int64(period))

	middle := decimal.Zero
	for _, price := range closes {
		middle = middle.Add(price)
	}
	middle = middle.Div(periodDec)

	variance := decimal.Zero
	for _, price := range closes {
		diff := price.Sub(middle)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(periodDec)

	std := decimalSqrt(variance)
	band := stdDevMultiplier.Mul(std)
	upper := middle.Add(band)
	lower := middle.Sub(band)
	bandwidth := upper.Sub(lower)

	last := candles[len(candles)-1]
	return &domain.BollingerBands{
		Symbol:           last.Symbol,
		Timeframe:        last.Timeframe,
		Timestamp:        last.PeriodStart,
		Upper:            upper.RoundBank(pricePlaces),
		Middle:           middle.RoundBank(pricePlaces),
		Lower:            lower.RoundBank(pricePlaces),
		Bandwidth:        bandwidth.RoundBank(pricePlaces),
		Period:           period,
		StdDevMultiplier: stdDevMultiplier,
		IsSqueeze:        bandwidth.LessThan(middle.Mul(squeezeRatio)),
	}
}

// CalculateAll runs every indicator independently with the configured
// periods. Individual members are nil when the window is too short for
// them; the others are unaffected.
func (c *Calculator) CalculateAll(candles []domain.Candle) domain.IndicatorSet {
	return domain.IndicatorSet{
		RSI:       c.RSI(candles, c.cfg.RSIPeriod),
		EMAFast:   c.EMA(candles, c.cfg.EMAFast),
		EMASlow:   c.EMA(candles, c.cfg.EMASlow),
		MACD:      c.MACD(candles, c.cfg.MACDFast, c.cfg.MACDSlow, c.cfg.MACDSignal),
		Bollinger: c.BollingerBands(candles, c.cfg.BollingerPeriod, c.cfg.BollingerStdDev),
	}
}

func closesOf(candles []domain.Candle) []decimal.Decimal {
	closes := make([]decimal.Decimal, len(candles))
	for i := range candles {
		closes[i] = candles[i].Close
	}
	return closes
}

// decimalSqrt computes a decimal square root by Newton iteration, seeded
// from the float64 root. shopspring/decimal has no Sqrt; eight
// iterations converge far past the 8-place output quantization.
func decimalSqrt(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() || d.IsNegative() {
		return decimal.Zero
	}
	f, _ := d.Float64()
	guess := decimal.NewFromFloat(math.Sqrt(f))
	if guess.IsZero() {
		guess = d
	}
	for i := 0; i < 8; i++ {
		guess = guess.Add(d.Div(guess)).Div(two)
	}
	return guess
}
