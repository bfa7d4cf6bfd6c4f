package infra

import (
	"sync"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordFrame()
	m.RecordFrame()
	m.RecordParseError()
	m.RecordReconnect()
	m.RecordRecompute()
	m.RecordFlush()
	m.RecordFlushError()
	m.RecordHandlerError()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.FramesReceived != 2 {
		t.Errorf("expected 2 frames, got %d", snap.FramesReceived)
	}
	if snap.ParseErrors != 1 || snap.Reconnects != 1 || snap.IndicatorRecomputes != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if snap.PersistenceFlushes != 1 || snap.PersistenceErrors != 1 || snap.HandlerErrors != 1 {
		t.Errorf("unexpected counters: %+v", snap)
	}
	if snap.ActiveConnections != 1 {
		t.Errorf("expected 1 active connection, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	if m.Snapshot().ActiveConnections != 0 {
		t.Error("expected 0 active connections after decrement")
	}

	m.Reset()
	if snap := m.Snapshot(); snap.FramesReceived != 0 || snap.ParseErrors != 0 {
		t.Errorf("Reset did not clear counters: %+v", snap)
	}
}

func TestMetricsConcurrentAccess(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.RecordFrame()
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().FramesReceived; got != 10000 {
		t.Errorf("expected 10000 frames, got %d", got)
	}
}
