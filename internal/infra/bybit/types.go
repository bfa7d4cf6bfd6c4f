package bybit

import (
	"encoding/json"
	"fmt"
	"time"

	"marketfeed/internal/domain"
)

const (
	topicTickerPrefix = "tickers."
	topicKlinePrefix  = "kline."

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// subscribeRequest is the v5 public stream subscription envelope.
type subscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// opRequest covers ping and other arg-less operations.
type opRequest struct {
	Op string `json:"op"`
}

// rawFrame is the discriminated inbound envelope. Topic selects data
// frames; Op marks control frames (pong, subscription acks).
type rawFrame struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"` // frame timestamp, epoch millis
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Data    json.RawMessage `json:"data"`
}

// tickerData is the payload of a tickers.<SYMBOL> frame.
type tickerData struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Bid1Price    string `json:"bid1Price"`
	Ask1Price    string `json:"ask1Price"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
	PrevPrice24h string `json:"prevPrice24h"`
	Volume24h    string `json:"volume24h"`
	Turnover24h  string `json:"turnover24h"`
	Price24hPcnt string `json:"price24hPcnt"`
}

// klineData is one entry of a kline.<interval>.<SYMBOL> frame payload.
type klineData struct {
	Start    int64  `json:"start"` // period open, epoch millis
	End      int64  `json:"end"`
	Interval string `json:"interval"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Turnover string `json:"turnover"`
	Confirm  bool   `json:"confirm"`
}

// intervalToTimeframe maps Bybit interval codes to canonical timeframes.
var intervalToTimeframe = map[string]domain.Timeframe{
	"1":   domain.Timeframe1m,
	"3":   domain.Timeframe3m,
	"5":   domain.Timeframe5m,
	"15":  domain.Timeframe15m,
	"30":  domain.Timeframe30m,
	"60":  domain.Timeframe1h,
	"240": domain.Timeframe4h,
	"D":   domain.Timeframe1d,
}

var timeframeToInterval = map[domain.Timeframe]string{
	domain.Timeframe1m:  "1",
	domain.Timeframe3m:  "3",
	domain.Timeframe5m:  "5",
	domain.Timeframe15m: "15",
	domain.Timeframe30m: "30",
	domain.Timeframe1h:  "60",
	domain.Timeframe4h:  "240",
	domain.Timeframe1d:  "D",
}

// TimeframeFromInterval resolves an exchange interval code.
func TimeframeFromInterval(code string) (domain.Timeframe, error) {
	tf, ok := intervalToTimeframe[code]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidInterval, code)
	}
	return tf, nil
}

// IntervalFromTimeframe resolves the exchange code for a canonical timeframe.
func IntervalFromTimeframe(tf domain.Timeframe) (string, error) {
	code, ok := timeframeToInterval[tf]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidInterval, tf)
	}
	return code, nil
}
