package bybit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"marketfeed/internal/domain"

	"github.com/shopspring/decimal"
)

// requireDecimal parses a price/quantity field, treating an empty string
// as a missing field.
func requireDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrMissingField, field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %s: %w", field, err)
	}
	return d, nil
}

// optionalDecimal parses a field that may legitimately be absent.
func optionalDecimal(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseTickerFrame maps a tickers.<SYMBOL> frame onto the canonical
// TickerSnapshot. The frame-level millisecond timestamp becomes the
// snapshot timestamp.
func parseTickerFrame(frame *rawFrame) (*domain.TickerSnapshot, error) {
	var data tickerData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return nil, err
	}

	symbol := data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(frame.Topic, topicTickerPrefix)
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol", domain.ErrMissingField)
	}

	last, err := requireDecimal("lastPrice", data.LastPrice)
	if err != nil {
		return nil, err
	}

	ticker := &domain.TickerSnapshot{
		Symbol:         symbol,
		Timestamp:      time.UnixMilli(frame.Ts),
		Last:           last,
		Bid:            optionalDecimal(data.Bid1Price),
		Ask:            optionalDecimal(data.Ask1Price),
		High24h:        optionalDecimal(data.HighPrice24h),
		Low24h:         optionalDecimal(data.LowPrice24h),
		Volume24h:      optionalDecimal(data.Volume24h),
		QuoteVolume24h: optionalDecimal(data.Turnover24h),
	}

	// price24hPcnt arrives as a fraction ("0.0132" = +1.32%).
	pcnt := optionalDecimal(data.Price24hPcnt)
	ticker.Change24hPct = pcnt.Mul(decimal.NewFromInt(100))
	if prev := optionalDecimal(data.PrevPrice24h); !prev.IsZero() {
		ticker.Change24h = last.Sub(prev)
	}

	return ticker, nil
}

// parseKlineFrame maps a kline.<interval>.<SYMBOL> frame onto canonical
// candles. The topic carries the interval code and the symbol; the data
// payload is an array of (possibly still forming) periods.
func parseKlineFrame(frame *rawFrame) ([]*domain.Candle, error) {
	parts := strings.Split(frame.Topic, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed kline topic %q", frame.Topic)
	}
	symbol := parts[2]

	var entries []klineData
	if err := json.Unmarshal(frame.Data, &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: data", domain.ErrMissingField)
	}

	candles := make([]*domain.Candle, 0, len(entries))
	for _, entry := range entries {
		interval := entry.Interval
		if interval == "" {
			interval = parts[1]
		}
		tf, err := TimeframeFromInterval(interval)
		if err != nil {
			return nil, err
		}
		if entry.Start == 0 {
			return nil, fmt.Errorf("%w: start", domain.ErrMissingField)
		}

		open, err := requireDecimal("open", entry.Open)
		if err != nil {
			return nil, err
		}
		high, err := requireDecimal("high", entry.High)
		if err != nil {
			return nil, err
		}
		low, err := requireDecimal("low", entry.Low)
		if err != nil {
			return nil, err
		}
		closePrice, err := requireDecimal("close", entry.Close)
		if err != nil {
			return nil, err
		}
		volume, err := requireDecimal("volume", entry.Volume)
		if err != nil {
			return nil, err
		}

		candle := &domain.Candle{
			Symbol:      symbol,
			Timeframe:   tf,
			PeriodStart: time.UnixMilli(entry.Start),
			Open:        open,
			High:        high,
			Low:         low,
			Close:       closePrice,
			Volume:      volume,
			QuoteVolume: optionalDecimal(entry.Turnover),
		}
		if err := candle.Validate(); err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}
