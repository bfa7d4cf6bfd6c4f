package domain

import "context"

// StreamClient defines the interface for exchange WebSocket connectors.
// Connect blocks until the context is cancelled or Disconnect is called.
type StreamClient interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	RegisterTickerHandler(func(*TickerSnapshot))
	RegisterCandleHandler(func(*Candle))
	RegisterErrorHandler(func(error))
}

// CandleStore defines how historical candles are fetched and persisted.
// Implementations must treat (symbol, timeframe, periodStart) as the
// identity: upserting the same key overwrites.
type CandleStore interface {
	FetchRecentCandles(ctx context.Context, symbol string, timeframe Timeframe, limit int) ([]Candle, error)
	UpsertCandle(ctx context.Context, candle *Candle) error
}
