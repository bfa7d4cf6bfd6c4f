package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketfeed/internal/domain"
	"marketfeed/internal/indicators"
	"marketfeed/internal/infra"
)

// Config tunes the market data service.
type Config struct {
	Symbols             []string
	Timeframe           domain.Timeframe
	LookbackPeriods     int
	MinIndicatorCandles int
	RefreshInterval     time.Duration
	PersistInterval     time.Duration
	StalenessThreshold  time.Duration
	PersistGrace        time.Duration
}

func (c *Config) applyDefaults() {
	if c.LookbackPeriods <= 0 {
		c.LookbackPeriods = 100
	}
	if c.MinIndicatorCandles <= 0 {
		c.MinIndicatorCandles = 50
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 10 * time.Second
	}
	if c.PersistInterval <= 0 {
		c.PersistInterval = 60 * time.Second
	}
	if c.StalenessThreshold <= 0 {
		c.StalenessThreshold = 5 * time.Minute
	}
	if c.PersistGrace <= 0 {
		c.PersistGrace = 10 * time.Second
	}
}

// Service owns the per-symbol sliding windows and latest tickers,
// consumes stream callbacks, schedules indicator recomputation, and
// assembles atomic MarketDataSnapshots. All state mutation funnels
// through one mutex; readers only ever see wholesale-replaced snapshot
// pointers or copies of window contents.
type Service struct {
	cfg     Config
	client  domain.StreamClient
	store   domain.CandleStore
	calc    *indicators.Calculator
	metrics *infra.Metrics
	logger  *slog.Logger

	mu        sync.RWMutex
	windows   map[string]*slidingWindow
	tickers   map[string]*domain.TickerSnapshot
	snapshots map[string]*domain.MarketDataSnapshot

	observerMu sync.RWMutex
	observers  []func(*domain.MarketDataSnapshot)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires the service with its collaborators. The store may be
// nil (no backfill, no persistence); metrics may be nil.
func NewService(cfg Config, client domain.StreamClient, store domain.CandleStore, calc *indicators.Calculator, metrics *infra.Metrics, logger *slog.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = infra.NewMetrics()
	}

	s := &Service{
		cfg:       cfg,
		client:    client,
		store:     store,
		calc:      calc,
		metrics:   metrics,
		logger:    logger.With("module", "market_service"),
		windows:   make(map[string]*slidingWindow),
		tickers:   make(map[string]*domain.TickerSnapshot),
		snapshots: make(map[string]*domain.MarketDataSnapshot),
	}
	for _, symbol := range cfg.Symbols {
		s.windows[symbol] = newSlidingWindow(cfg.LookbackPeriods)
	}
	return s
}

// OnSnapshotUpdated registers a callback invoked after every snapshot
// replacement. Callback panics are isolated and logged.
func (s *Service) OnSnapshotUpdated(fn func(*domain.MarketDataSnapshot)) {
	s.observerMu.Lock()
	defer s.observerMu.Unlock()
	s.observers = append(s.observers, fn)
}

// Start backfills the windows from storage, connects the stream client,
// and launches the indicator-refresh and persistence loops.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.backfill(ctx)

	s.client.RegisterTickerHandler(s.HandleTickerUpdate)
	s.client.RegisterCandleHandler(s.HandleCandleUpdate)
	s.client.RegisterErrorHandler(func(err error) {
		if !domain.IsRetriable(err) {
			s.logger.Error("stream error", slog.Any("error", err))
			return
		}
		s.logger.Warn("stream error", slog.Any("error", err))
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.client.Connect(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("stream client terminated", slog.Any("error", err))
		}
	}()

	s.wg.Add(1)
	go s.refreshLoop(ctx)
	s.wg.Add(1)
	go s.persistLoop(ctx)

	s.logger.Info("market data service started",
		slog.Int("symbols", len(s.cfg.Symbols)),
		slog.String("timeframe", string(s.cfg.Timeframe)))
	return nil
}

// backfill loads up to LookbackPeriods historical candles per symbol.
// A failed fetch leaves that window empty and live data fills it.
func (s *Service) backfill(ctx context.Context) {
	if s.store == nil {
		return
	}
	for _, symbol := range s.cfg.Symbols {
		candles, err := s.store.FetchRecentCandles(ctx, symbol, s.cfg.Timeframe, s.cfg.LookbackPeriods)
		if err != nil {
			s.logger.Warn("backfill failed", slog.String("symbol", symbol), slog.Any("error", err))
			continue
		}
		s.mu.Lock()
		if w, ok := s.windows[symbol]; ok {
			w.seed(candles)
		}
		s.mu.Unlock()
		s.logger.Info("backfilled", slog.String("symbol", symbol), slog.Int("candles", len(candles)))
	}
}

// HandleCandleUpdate merges one candle event into its window. Appends a
// strictly newer period, replaces the still-forming one in place, ignores
// older periods. Recomputes indicators when the window is deep enough
// and a ticker exists for the symbol.
func (s *Service) HandleCandleUpdate(candle *domain.Candle) {
	s.mu.Lock()
	w, ok := s.windows[candle.Symbol]
	if !ok {
		w = newSlidingWindow(s.cfg.LookbackPeriods)
		s.windows[candle.Symbol] = w
	}
	changed := w.apply(candle)

	var snap *domain.MarketDataSnapshot
	if changed && w.len() >= s.cfg.MinIndicatorCandles && s.tickers[candle.Symbol] != nil {
		snap = s.recomputeLocked(candle.Symbol)
	}
	s.mu.Unlock()

	if snap != nil {
		s.notifyObservers(snap)
	}
}

// HandleTickerUpdate replaces the latest ticker for the symbol. A ticker
// alone never triggers recomputation.
func (s *Service) HandleTickerUpdate(ticker *domain.TickerSnapshot) {
	s.mu.Lock()
	s.tickers[ticker.Symbol] = ticker
	s.mu.Unlock()
}

// recomputeLocked rebuilds the snapshot for one symbol. Caller holds the
// write lock. The snapshot is a fresh value replaced wholesale so readers
// never observe a mix of two passes.
func (s *Service) recomputeLocked(symbol string) *domain.MarketDataSnapshot {
	w := s.windows[symbol]
	if w == nil || w.len() == 0 {
		return nil
	}

	candles := w.snapshot(0)
	set := s.calc.CalculateAll(candles)
	last := candles[len(candles)-1]

	snap := &domain.MarketDataSnapshot{
		Symbol:     symbol,
		Timeframe:  s.cfg.Timeframe,
		ComputedAt: time.Now(),
		Candle:     &last,
		Ticker:     s.tickers[symbol],
		Indicators: set,
	}
	s.snapshots[symbol] = snap
	s.metrics.RecordRecompute()
	return snap
}

// refreshLoop forces recomputation for all symbols on a fixed cadence,
// covering indicator consumers that care about wall-clock age even when
// no new candle arrived.
func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var snaps []*domain.MarketDataSnapshot
			s.mu.Lock()
			for symbol, w := range s.windows {
				if w.len() == 0 {
					continue
				}
				if snap := s.recomputeLocked(symbol); snap != nil {
					snaps = append(snaps, snap)
				}
			}
			s.mu.Unlock()
			for _, snap := range snaps {
				s.notifyObservers(snap)
			}
		}
	}
}

// persistLoop hands the most recent candle per symbol to the store on a
// fixed cadence. Upsert semantics make repeated flushes of the same
// period harmless. Failures are logged and the loop continues.
func (s *Service) persistLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushLatest(ctx)
		}
	}
}

// flushLatest upserts each symbol's newest candle with a bounded grace
// period so a hung store call cannot block shutdown indefinitely.
func (s *Service) flushLatest(ctx context.Context) {
	if s.store == nil {
		return
	}

	s.mu.RLock()
	latest := make([]domain.Candle, 0, len(s.windows))
	for _, w := range s.windows {
		if candle, ok := w.last(); ok {
			latest = append(latest, candle)
		}
	}
	s.mu.RUnlock()

	for i := range latest {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistGrace)
		err := s.store.UpsertCandle(flushCtx, &latest[i])
		cancel()
		if err != nil {
			s.metrics.RecordFlushError()
			s.logger.Warn("persist failed",
				slog.String("symbol", latest[i].Symbol),
				slog.Any("error", err))
			continue
		}
		s.metrics.RecordFlush()
	}
}

// GetSnapshot returns the current snapshot for the symbol, or false when
// none has been computed yet. Staleness beyond the configured threshold
// is logged as the degradation signal; the last good snapshot is still
// served.
func (s *Service) GetSnapshot(symbol string) (*domain.MarketDataSnapshot, bool) {
	s.mu.RLock()
	snap := s.snapshots[symbol]
	s.mu.RUnlock()

	if snap == nil {
		return nil, false
	}
	if snap.IsStale(time.Now(), s.cfg.StalenessThreshold) {
		s.logger.Warn("stale snapshot",
			slog.String("symbol", symbol),
			slog.Duration("age", snap.Age(time.Now())))
	}
	return snap, true
}

// GetOHLCVHistory returns a copy of the most recent limit candles for the
// symbol, ascending. limit <= 0 returns the full window.
func (s *Service) GetOHLCVHistory(symbol string, limit int) []domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := s.windows[symbol]
	if w == nil {
		return nil
	}
	return w.snapshot(limit)
}

// GetLatestTicker returns the latest ticker for the symbol.
func (s *Service) GetLatestTicker(symbol string) (*domain.TickerSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticker := s.tickers[symbol]
	return ticker, ticker != nil
}

// Metrics exposes the service and stream counters.
func (s *Service) Metrics() infra.MetricsSnapshot {
	return s.metrics.Snapshot()
}

func (s *Service) notifyObservers(snap *domain.MarketDataSnapshot) {
	s.observerMu.RLock()
	observers := s.observers
	s.observerMu.RUnlock()
	for _, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.metrics.RecordHandlerError()
					s.logger.Error("snapshot observer panicked", slog.Any("panic", r))
				}
			}()
			fn(snap)
		}()
	}
}

// Stop cancels the background loops, disconnects the stream client, and
// waits for everything to wind down.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.client.Disconnect()
	s.wg.Wait()
	s.logger.Info("market data service stopped")
}
