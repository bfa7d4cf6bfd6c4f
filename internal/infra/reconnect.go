package infra

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// BackoffDelay computes the retry delay for a 0-based attempt count:
// min(base * 2^attempt, max), plus a uniformly random offset in
// [-delay*jitterRange, +delay*jitterRange], clamped to >= 0.
// A nil rng disables jitter.
func BackoffDelay(attempt int, base, max time.Duration, jitterRange float64, rng *rand.Rand) time.Duration {
	delay := base
	// Double step-wise so large attempt counts cannot overflow.
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	if rng != nil && jitterRange > 0 {
		offset := time.Duration((rng.Float64()*2 - 1) * jitterRange * float64(delay))
		delay += offset
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// ReconnectConfig tunes the retry behavior of a ReconnectionManager.
type ReconnectConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterRange float64
	MaxAttempts int // 0 = retry forever
}

// ReconnectionStats is a point-in-time view of connection accounting.
type ReconnectionStats struct {
	TotalAttempts      int64
	SuccessfulConnects int64
	FailedAttempts     int64
	CurrentAttempt     int
	Connected          bool
	LastDisconnect     time.Time
	LastReconnect      time.Time
	TotalDowntime      time.Duration
	UptimePercent      float64
}

// ReconnectionManager wraps a caller-supplied connect operation with
// exponential-backoff retry and keeps uptime accounting. Only one
// ConnectWithRetry call may be in flight per manager.
type ReconnectionManager struct {
	cfg    ReconnectConfig
	logger *slog.Logger
	rng    *rand.Rand

	mu            sync.Mutex
	connected     bool
	isConnecting  bool
	attempt       int // consecutive failures in the current retry loop
	totalAttempts int64
	successes     int64
	failures      int64
	firstConnect  time.Time
	lastDisconnect time.Time
	lastReconnect time.Time
	downtimeStart time.Time // set while disconnected after a prior connect
	totalDowntime time.Duration
}

// NewReconnectionManager creates a manager with the given retry policy.
func NewReconnectionManager(cfg ReconnectConfig, logger *slog.Logger) *ReconnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconnectionManager{
		cfg:    cfg,
		logger: logger.With("module", "reconnect"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ConnectWithRetry calls connectFn until it succeeds, the context is
// cancelled, or MaxAttempts is exhausted. onAttempt, when non-nil, is
// invoked after each failure with the attempt number and the delay about
// to be slept. Returns true when connected. A second concurrent call on
// the same manager returns false immediately.
func (r *ReconnectionManager) ConnectWithRetry(ctx context.Context, connectFn func(context.Context) error, onAttempt func(attempt int, delay time.Duration)) bool {
	r.mu.Lock()
	if r.isConnecting {
		r.mu.Unlock()
		r.logger.Warn("connect already in progress, rejecting concurrent call")
		return false
	}
	r.isConnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.isConnecting = false
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		r.mu.Lock()
		if r.cfg.MaxAttempts > 0 && r.attempt >= r.cfg.MaxAttempts {
			attempts := r.attempt
			r.mu.Unlock()
			r.logger.Error("giving up after max attempts", slog.Int("attempts", attempts))
			return false
		}
		r.attempt++
		r.totalAttempts++
		attempt := r.attempt
		r.mu.Unlock()

		err := connectFn(ctx)
		now := time.Now()

		if err == nil {
			r.mu.Lock()
			r.connected = true
			r.successes++
			r.lastReconnect = now
			if r.firstConnect.IsZero() {
				r.firstConnect = now
			}
			if !r.downtimeStart.IsZero() {
				r.totalDowntime += now.Sub(r.downtimeStart)
				r.downtimeStart = time.Time{}
			}
			r.attempt = 0
			r.mu.Unlock()
			return true
		}

		r.mu.Lock()
		r.failures++
		r.mu.Unlock()

		delay := BackoffDelay(attempt-1, r.cfg.BaseDelay, r.cfg.MaxDelay, r.cfg.JitterRange, r.rng)
		r.logger.Warn("connect attempt failed",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.Any("error", err))
		if onAttempt != nil {
			onAttempt(attempt, delay)
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
}

// MarkDisconnected records a disconnect. Idempotent: only the first call
// after a successful connect takes effect.
func (r *ReconnectionManager) MarkDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return
	}
	r.connected = false
	now := time.Now()
	r.lastDisconnect = now
	r.downtimeStart = now
}

// IsConnected reports the current connection state.
func (r *ReconnectionManager) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Stats returns attempt counters and the computed uptime percentage.
// Uptime is 0 before the first successful connect.
func (r *ReconnectionManager) Stats() ReconnectionStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := ReconnectionStats{
		TotalAttempts:      r.totalAttempts,
		SuccessfulConnects: r.successes,
		FailedAttempts:     r.failures,
		CurrentAttempt:     r.attempt,
		Connected:          r.connected,
		LastDisconnect:     r.lastDisconnect,
		LastReconnect:      r.lastReconnect,
		TotalDowntime:      r.totalDowntime,
	}

	if r.firstConnect.IsZero() {
		return stats
	}

	now := time.Now()
	downtime := r.totalDowntime
	if !r.downtimeStart.IsZero() {
		downtime += now.Sub(r.downtimeStart)
	}
	stats.TotalDowntime = downtime

	elapsed := now.Sub(r.firstConnect)
	if elapsed <= 0 {
		stats.UptimePercent = 100
		return stats
	}
	stats.UptimePercent = float64(elapsed-downtime) / float64(elapsed) * 100
	return stats
}
