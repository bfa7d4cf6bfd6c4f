package service

import "marketfeed/internal/domain"

// slidingWindow is a bounded, ascending-by-period candle sequence for one
// (symbol, timeframe). Owned exclusively by the Service's guarded
// ingestion path; reads hand out copies only.
type slidingWindow struct {
	candles  []domain.Candle
	capacity int
}

func newSlidingWindow(capacity int) *slidingWindow {
	return &slidingWindow{
		candles:  make([]domain.Candle, 0, capacity),
		capacity: capacity,
	}
}

// apply merges one candle update. A strictly newer period appends (and
// evicts the oldest beyond capacity), the same period replaces in place
// (still-forming candle), an older period is ignored. Reports whether
// the window changed.
func (w *slidingWindow) apply(candle *domain.Candle) bool {
	if len(w.candles) == 0 {
		w.candles = append(w.candles, *candle)
		return true
	}

	last := &w.candles[len(w.candles)-1]
	switch {
	case candle.PeriodStart.After(last.PeriodStart):
		w.candles = append(w.candles, *candle)
		if len(w.candles) > w.capacity {
			w.candles = w.candles[1:]
		}
		return true
	case candle.PeriodStart.Equal(last.PeriodStart):
		*last = *candle
		return true
	default:
		// Out-of-order period, drop.
		return false
	}
}

// seed bulk-loads historical candles, keeping only the newest capacity
// entries. Input must be ascending.
func (w *slidingWindow) seed(candles []domain.Candle) {
	if len(candles) > w.capacity {
		candles = candles[len(candles)-w.capacity:]
	}
	w.candles = append(w.candles[:0], candles...)
}

func (w *slidingWindow) len() int {
	return len(w.candles)
}

// last returns a copy of the most recent candle.
func (w *slidingWindow) last() (domain.Candle, bool) {
	if len(w.candles) == 0 {
		return domain.Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}

// snapshot copies out up to limit of the most recent candles, ascending.
// limit <= 0 means all.
func (w *slidingWindow) snapshot(limit int) []domain.Candle {
	candles := w.candles
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]domain.Candle, len(candles))
	copy(out, candles)
	return out
}
