package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickerSnapshot is the latest 24h ticker state for one symbol.
// Latest-value-only: each update fully replaces the prior one, no ticker
// history is kept in the core.
type TickerSnapshot struct {
	Symbol         string          `json:"symbol"`
	Timestamp      time.Time       `json:"timestamp"`
	Bid            decimal.Decimal `json:"bid"`
	Ask            decimal.Decimal `json:"ask"`
	Last           decimal.Decimal `json:"last"`
	High24h        decimal.Decimal `json:"high_24h"`
	Low24h         decimal.Decimal `json:"low_24h"`
	Volume24h      decimal.Decimal `json:"volume_24h"`
	QuoteVolume24h decimal.Decimal `json:"quote_volume_24h"`
	Change24h      decimal.Decimal `json:"change_24h"`
	Change24hPct   decimal.Decimal `json:"change_24h_pct"`
}

// Spread returns ask minus bid.
func (t *TickerSnapshot) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}

// Mid returns the bid/ask midpoint, or Last when either side is missing.
func (t *TickerSnapshot) Mid() decimal.Decimal {
	if t.Bid.IsZero() || t.Ask.IsZero() {
		return t.Last
	}
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}
