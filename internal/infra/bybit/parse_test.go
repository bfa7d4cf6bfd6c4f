package bybit

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"marketfeed/internal/domain"

	"github.com/shopspring/decimal"
)

func TestIntervalMapping(t *testing.T) {
	tests := []struct {
		code string
		tf   domain.Timeframe
	}{
		{"1", domain.Timeframe1m},
		{"3", domain.Timeframe3m},
		{"5", domain.Timeframe5m},
		{"15", domain.Timeframe15m},
		{"30", domain.Timeframe30m},
		{"60", domain.Timeframe1h},
		{"240", domain.Timeframe4h},
		{"D", domain.Timeframe1d},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			tf, err := TimeframeFromInterval(tt.code)
			if err != nil {
				t.Fatalf("TimeframeFromInterval(%q) failed: %v", tt.code, err)
			}
			if tf != tt.tf {
				t.Errorf("TimeframeFromInterval(%q) = %s, want %s", tt.code, tf, tt.tf)
			}
			code, err := IntervalFromTimeframe(tt.tf)
			if err != nil {
				t.Fatalf("IntervalFromTimeframe(%s) failed: %v", tt.tf, err)
			}
			if code != tt.code {
				t.Errorf("IntervalFromTimeframe(%s) = %q, want %q", tt.tf, code, tt.code)
			}
		})
	}

	if _, err := TimeframeFromInterval("120"); !errors.Is(err, domain.ErrInvalidInterval) {
		t.Errorf("expected ErrInvalidInterval for unknown code, got %v", err)
	}
}

func mustFrame(t *testing.T, raw string) *rawFrame {
	t.Helper()
	var frame rawFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("bad test frame: %v", err)
	}
	return &frame
}

const validTickerFrame = `{
	"topic": "tickers.BTCUSDT",
	"type": "snapshot",
	"ts": 1673853746003,
	"data": {
		"symbol": "BTCUSDT",
		"lastPrice": "17216.00",
		"bid1Price": "17215.50",
		"ask1Price": "17216.50",
		"highPrice24h": "17281.00",
		"lowPrice24h": "17106.00",
		"prevPrice24h": "16992.00",
		"volume24h": "69281.53",
		"turnover24h": "1190622972.71",
		"price24hPcnt": "0.0132"
	}
}`

func TestParseTickerFrame(t *testing.T) {
	ticker, err := parseTickerFrame(mustFrame(t, validTickerFrame))
	if err != nil {
		t.Fatalf("parseTickerFrame failed: %v", err)
	}

	if ticker.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s", ticker.Symbol)
	}
	if !ticker.Timestamp.Equal(time.UnixMilli(1673853746003)) {
		t.Errorf("timestamp not converted from epoch millis: %s", ticker.Timestamp)
	}
	if !ticker.Last.Equal(decimal.RequireFromString("17216.00")) {
		t.Errorf("lastPrice mapping: %s", ticker.Last)
	}
	if !ticker.Bid.Equal(decimal.RequireFromString("17215.50")) {
		t.Errorf("bid1Price mapping: %s", ticker.Bid)
	}
	if !ticker.Ask.Equal(decimal.RequireFromString("17216.50")) {
		t.Errorf("ask1Price mapping: %s", ticker.Ask)
	}
	if !ticker.High24h.Equal(decimal.RequireFromString("17281.00")) {
		t.Errorf("highPrice24h mapping: %s", ticker.High24h)
	}
	if !ticker.QuoteVolume24h.Equal(decimal.RequireFromString("1190622972.71")) {
		t.Errorf("turnover24h mapping: %s", ticker.QuoteVolume24h)
	}
	// price24hPcnt is a fraction; canonical value is a percentage.
	if !ticker.Change24hPct.Equal(decimal.RequireFromString("1.32")) {
		t.Errorf("price24hPcnt conversion: %s", ticker.Change24hPct)
	}
	if !ticker.Change24h.Equal(decimal.RequireFromString("224.00")) {
		t.Errorf("change24h from prevPrice24h: %s", ticker.Change24h)
	}
}

func TestParseTickerFrameMissingLastPrice(t *testing.T) {
	frame := mustFrame(t, `{
		"topic": "tickers.BTCUSDT",
		"ts": 1673853746003,
		"data": {"symbol": "BTCUSDT", "bid1Price": "17215.50"}
	}`)

	_, err := parseTickerFrame(frame)
	if !errors.Is(err, domain.ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

const validKlineFrame = `{
	"topic": "kline.60.BTCUSDT",
	"type": "snapshot",
	"ts": 1672324988882,
	"data": [{
		"start": 1672324800000,
		"end": 1672328399999,
		"interval": "60",
		"open": "16649.5",
		"high": "16677",
		"low": "16608",
		"close": "16640",
		"volume": "2.081",
		"turnover": "34666.4005",
		"confirm": false,
		"timestamp": 1672324988882
	}]
}`

func TestParseKlineFrame(t *testing.T) {
	candles, err := parseKlineFrame(mustFrame(t, validKlineFrame))
	if err != nil {
		t.Fatalf("parseKlineFrame failed: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}

	candle := candles[0]
	if candle.Symbol != "BTCUSDT" {
		t.Errorf("symbol from topic: %s", candle.Symbol)
	}
	if candle.Timeframe != domain.Timeframe1h {
		t.Errorf("interval 60 should map to 1h, got %s", candle.Timeframe)
	}
	if !candle.PeriodStart.Equal(time.UnixMilli(1672324800000)) {
		t.Errorf("period start from epoch millis: %s", candle.PeriodStart)
	}
	if !candle.Open.Equal(decimal.RequireFromString("16649.5")) ||
		!candle.Close.Equal(decimal.RequireFromString("16640")) {
		t.Errorf("OHLC mapping: open=%s close=%s", candle.Open, candle.Close)
	}
	if !candle.QuoteVolume.Equal(decimal.RequireFromString("34666.4005")) {
		t.Errorf("turnover mapping: %s", candle.QuoteVolume)
	}
}

func TestParseKlineFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad topic", `{"topic": "kline.BTCUSDT", "data": []}`},
		{"unknown interval", `{"topic": "kline.120.BTCUSDT", "data": [{"start": 1, "open": "1", "high": "1", "low": "1", "close": "1", "volume": "0"}]}`},
		{"empty data", `{"topic": "kline.60.BTCUSDT", "data": []}`},
		{"missing start", `{"topic": "kline.60.BTCUSDT", "data": [{"interval": "60", "open": "1", "high": "1", "low": "1", "close": "1", "volume": "0"}]}`},
		{"missing close", `{"topic": "kline.60.BTCUSDT", "data": [{"start": 1, "interval": "60", "open": "1", "high": "1", "low": "1", "volume": "0"}]}`},
		{"high below low", `{"topic": "kline.60.BTCUSDT", "data": [{"start": 1, "interval": "60", "open": "5", "high": "4", "low": "6", "close": "5", "volume": "0"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseKlineFrame(mustFrame(t, tt.raw)); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

// A malformed frame followed by a valid one must produce exactly one
// ticker update and no crash.
func TestRouteFrameDropsMalformedAndContinues(t *testing.T) {
	client := NewClient(ClientConfig{
		Symbols:   []string{"BTCUSDT"},
		Timeframe: domain.Timeframe1h,
	}, nil, nil)

	var updates []*domain.TickerSnapshot
	var streamErrs []error
	client.RegisterTickerHandler(func(ts *domain.TickerSnapshot) {
		updates = append(updates, ts)
	})
	client.RegisterErrorHandler(func(err error) {
		streamErrs = append(streamErrs, err)
	})

	malformed := `{"topic": "tickers.BTCUSDT", "ts": 1, "data": {"symbol": "BTCUSDT"}}`
	client.routeFrame([]byte(malformed))
	client.routeFrame([]byte("{not json"))
	client.routeFrame([]byte(validTickerFrame))

	if len(updates) != 1 {
		t.Fatalf("expected exactly 1 ticker update, got %d", len(updates))
	}
	if !updates[0].Last.Equal(decimal.RequireFromString("17216.00")) {
		t.Errorf("wrong surviving update: %s", updates[0].Last)
	}
	if len(streamErrs) != 2 {
		t.Errorf("expected 2 parse errors surfaced, got %d", len(streamErrs))
	}
	for _, err := range streamErrs {
		var parseErr *domain.ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("expected ParseError, got %T", err)
		}
	}
}

func TestRouteFrameControlFrames(t *testing.T) {
	client := NewClient(ClientConfig{Symbols: []string{"BTCUSDT"}, Timeframe: domain.Timeframe1h}, nil, nil)

	called := false
	client.RegisterTickerHandler(func(*domain.TickerSnapshot) { called = true })
	client.RegisterErrorHandler(func(error) { called = true })

	client.routeFrame([]byte(`{"op": "pong", "ret_msg": "pong", "success": true}`))
	client.routeFrame([]byte(`{"op": "subscribe", "success": true}`))

	if called {
		t.Error("control frames must not reach data or error handlers")
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	client := NewClient(ClientConfig{Symbols: []string{"BTCUSDT"}, Timeframe: domain.Timeframe1h}, nil, nil)

	order := []string{}
	client.RegisterTickerHandler(func(*domain.TickerSnapshot) {
		order = append(order, "boom")
		panic("handler exploded")
	})
	client.RegisterTickerHandler(func(*domain.TickerSnapshot) {
		order = append(order, "survivor")
	})

	client.routeFrame([]byte(validTickerFrame))

	if len(order) != 2 || order[1] != "survivor" {
		t.Errorf("panicking handler must not break dispatch: %v", order)
	}
}

func TestSubscriptionArgs(t *testing.T) {
	code, err := IntervalFromTimeframe(domain.Timeframe4h)
	if err != nil {
		t.Fatal(err)
	}
	req := subscribeRequest{Op: "subscribe", Args: []string{
		topicTickerPrefix + "ETHUSDT",
		topicKlinePrefix + code + ".ETHUSDT",
	}}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"op":"subscribe","args":["tickers.ETHUSDT","kline.240.ETHUSDT"]}`
	if string(b) != want {
		t.Errorf("subscribe payload = %s, want %s", b, want)
	}
}
