package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety. Injected by constructor into
// the stream client and the market data service.
type Metrics struct {
	// Counters
	framesReceived      atomic.Uint64
	parseErrors         atomic.Uint64
	handlerErrors       atomic.Uint64
	reconnects          atomic.Uint64
	indicatorRecomputes atomic.Uint64
	persistenceFlushes  atomic.Uint64
	persistenceErrors   atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordFrame records one inbound websocket frame.
func (m *Metrics) RecordFrame() {
	m.framesReceived.Add(1)
}

// RecordParseError records a dropped malformed frame.
func (m *Metrics) RecordParseError() {
	m.parseErrors.Add(1)
}

// RecordHandlerError records a recovered callback panic.
func (m *Metrics) RecordHandlerError() {
	m.handlerErrors.Add(1)
}

// RecordReconnect records a successful reconnection.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// RecordRecompute records one indicator recomputation pass.
func (m *Metrics) RecordRecompute() {
	m.indicatorRecomputes.Add(1)
}

// RecordFlush records one persisted candle.
func (m *Metrics) RecordFlush() {
	m.persistenceFlushes.Add(1)
}

// RecordFlushError records a failed persistence attempt.
func (m *Metrics) RecordFlushError() {
	m.persistenceErrors.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	FramesReceived      uint64
	ParseErrors         uint64
	HandlerErrors       uint64
	Reconnects          uint64
	IndicatorRecomputes uint64
	PersistenceFlushes  uint64
	PersistenceErrors   uint64
	ActiveConnections   int32
	Timestamp           time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FramesReceived:      m.framesReceived.Load(),
		ParseErrors:         m.parseErrors.Load(),
		HandlerErrors:       m.handlerErrors.Load(),
		Reconnects:          m.reconnects.Load(),
		IndicatorRecomputes: m.indicatorRecomputes.Load(),
		PersistenceFlushes:  m.persistenceFlushes.Load(),
		PersistenceErrors:   m.persistenceErrors.Load(),
		ActiveConnections:   m.activeConnections.Load(),
		Timestamp:           time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.framesReceived.Store(0)
	m.parseErrors.Store(0)
	m.handlerErrors.Store(0)
	m.reconnects.Store(0)
	m.indicatorRecomputes.Store(0)
	m.persistenceFlushes.Store(0)
	m.persistenceErrors.Store(0)
	m.activeConnections.Store(0)
}
