package service

import (
	"testing"
	"time"

	"marketfeed/internal/domain"

	"github.com/shopspring/decimal"
)

func candleAt(period int, close float64) *domain.Candle {
	price := decimal.NewFromFloat(close)
	return &domain.Candle{
		Symbol:      "BTCUSDT",
		Timeframe:   domain.Timeframe1h,
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(period) * time.Hour),
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		Volume:      decimal.NewFromInt(1),
	}
}

func TestWindowAppendAndEvict(t *testing.T) {
	w := newSlidingWindow(3)

	for i := 0; i < 5; i++ {
		if !w.apply(candleAt(i, float64(100+i))) {
			t.Fatalf("append of period %d should change the window", i)
		}
	}

	if w.len() != 3 {
		t.Fatalf("window must stay capped at 3, got %d", w.len())
	}
	candles := w.snapshot(0)
	if !candles[0].PeriodStart.Equal(candleAt(2, 0).PeriodStart) {
		t.Errorf("oldest entries should be evicted, first = %s", candles[0].PeriodStart)
	}
	if !candles[2].Close.Equal(decimal.NewFromInt(104)) {
		t.Errorf("newest close = %s, want 104", candles[2].Close)
	}
}

func TestWindowSamePeriodReplacesInPlace(t *testing.T) {
	w := newSlidingWindow(10)

	w.apply(candleAt(0, 100))
	w.apply(candleAt(1, 105))

	// Still-forming candle: same period, updated close.
	if !w.apply(candleAt(1, 107)) {
		t.Fatal("same-period update should change the window")
	}

	if w.len() != 2 {
		t.Fatalf("same-period update must not grow the window, got %d", w.len())
	}
	last, ok := w.last()
	if !ok || !last.Close.Equal(decimal.NewFromInt(107)) {
		t.Errorf("close should be replaced in place, got %s", last.Close)
	}
}

func TestWindowIgnoresOlderPeriods(t *testing.T) {
	w := newSlidingWindow(10)

	w.apply(candleAt(5, 100))
	if w.apply(candleAt(3, 90)) {
		t.Error("out-of-order candle must be ignored")
	}
	if w.len() != 1 {
		t.Errorf("window grew on out-of-order candle: %d", w.len())
	}
}

func TestWindowSeedTruncates(t *testing.T) {
	w := newSlidingWindow(3)

	var history []domain.Candle
	for i := 0; i < 10; i++ {
		history = append(history, *candleAt(i, float64(i)))
	}
	w.seed(history)

	if w.len() != 3 {
		t.Fatalf("seed should keep only capacity entries, got %d", w.len())
	}
	first := w.snapshot(0)[0]
	if !first.PeriodStart.Equal(candleAt(7, 0).PeriodStart) {
		t.Errorf("seed should keep the newest entries, first = %s", first.PeriodStart)
	}
}

func TestWindowSnapshotIsACopy(t *testing.T) {
	w := newSlidingWindow(10)
	w.apply(candleAt(0, 100))

	out := w.snapshot(0)
	out[0].Close = decimal.NewFromInt(999)

	last, _ := w.last()
	if last.Close.Equal(decimal.NewFromInt(999)) {
		t.Error("snapshot must not alias the live window")
	}
}

func TestWindowSnapshotLimit(t *testing.T) {
	w := newSlidingWindow(10)
	for i := 0; i < 6; i++ {
		w.apply(candleAt(i, float64(i)))
	}

	out := w.snapshot(2)
	if len(out) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(out))
	}
	if !out[1].Close.Equal(decimal.NewFromInt(5)) {
		t.Errorf("limit should keep the most recent candles, last close = %s", out[1].Close)
	}
}
