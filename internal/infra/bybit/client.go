package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"marketfeed/internal/domain"
	"marketfeed/internal/infra"

	"github.com/gorilla/websocket"
)

// Client streams public ticker and kline channels from the Bybit v5
// websocket. One logical subscription set is maintained across
// reconnects: every successful dial resubscribes the full channel list
// before frames are consumed.
type Client struct {
	wsURL        string
	symbols      []string
	timeframe    domain.Timeframe
	pingInterval time.Duration
	reconnect    *infra.ReconnectionManager
	metrics      *infra.Metrics
	logger       *slog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	running atomic.Bool
	wg      sync.WaitGroup

	handlerMu      sync.RWMutex
	tickerHandlers []func(*domain.TickerSnapshot)
	candleHandlers []func(*domain.Candle)
	errorHandlers  []func(error)
}

// ClientConfig carries the streaming client construction options.
type ClientConfig struct {
	WSURL        string
	Symbols      []string
	Timeframe    domain.Timeframe
	PingInterval time.Duration
	Reconnect    infra.ReconnectConfig
}

// NewClient creates a streaming client. Metrics may be nil.
func NewClient(cfg ClientConfig, metrics *infra.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = infra.NewMetrics()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	return &Client{
		wsURL:        cfg.WSURL,
		symbols:      cfg.Symbols,
		timeframe:    cfg.Timeframe,
		pingInterval: cfg.PingInterval,
		reconnect:    infra.NewReconnectionManager(cfg.Reconnect, logger),
		metrics:      metrics,
		logger:       logger.With("module", "bybit_client"),
	}
}

// RegisterTickerHandler adds a callback for canonical ticker updates.
func (c *Client) RegisterTickerHandler(h func(*domain.TickerSnapshot)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.tickerHandlers = append(c.tickerHandlers, h)
}

// RegisterCandleHandler adds a callback for canonical candle updates.
func (c *Client) RegisterCandleHandler(h func(*domain.Candle)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.candleHandlers = append(c.candleHandlers, h)
}

// RegisterErrorHandler adds a callback for transport and parse errors.
func (c *Client) RegisterErrorHandler(h func(error)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.errorHandlers = append(c.errorHandlers, h)
}

// IsConnected reports whether the socket is currently established.
func (c *Client) IsConnected() bool {
	return c.reconnect.IsConnected()
}

// Stats exposes the reconnection accounting.
func (c *Client) Stats() infra.ReconnectionStats {
	return c.reconnect.Stats()
}

// Connect blocks, maintaining the connection until the context is
// cancelled or Disconnect is called. Terminal retry exhaustion is
// returned as a non-retriable error.
func (c *Client) Connect(ctx context.Context) error {
	c.running.Store(true)

	for c.running.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ok := c.reconnect.ConnectWithRetry(ctx, c.dial, func(attempt int, delay time.Duration) {
			c.emitError(domain.NewNetworkError("connect", fmt.Errorf("%w: attempt %d, retry in %s",
				domain.ErrConnectionFailed, attempt, delay)))
		})
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err := domain.NewFatalNetworkError("connect", domain.ErrConnectionFailed)
			c.emitError(err)
			return err
		}

		if !c.running.Load() {
			// Disconnect raced the retry loop.
			c.closeConnection()
			return nil
		}

		c.metrics.RecordReconnect()
		c.metrics.IncrementConnections()
		stats := c.reconnect.Stats()
		c.logger.Info("connected",
			slog.String("url", c.wsURL),
			slog.Int64("total_attempts", stats.TotalAttempts),
			slog.Float64("uptime_pct", stats.UptimePercent))

		pingCtx, stopPing := context.WithCancel(ctx)
		c.wg.Add(1)
		go c.pingLoop(pingCtx)

		c.readLoop(ctx)

		stopPing()
		c.reconnect.MarkDisconnected()
		c.metrics.DecrementConnections()
		c.closeConnection()
	}

	return nil
}

// dial establishes the socket and resubscribes the full channel set.
func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return domain.NewNetworkError("dial", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.subscribe(); err != nil {
		c.closeConnection()
		return domain.NewNetworkError("subscribe", err)
	}
	return nil
}

// subscribe sends the full subscription set. Subscriptions are not
// assumed durable across reconnects.
func (c *Client) subscribe() error {
	args := make([]string, 0, len(c.symbols)*2)
	code, err := IntervalFromTimeframe(c.timeframe)
	if err != nil {
		return err
	}
	for _, symbol := range c.symbols {
		args = append(args, topicTickerPrefix+symbol)
		args = append(args, fmt.Sprintf("%s%s.%s", topicKlinePrefix, code, symbol))
	}

	b, err := json.Marshal(subscribeRequest{Op: "subscribe", Args: args})
	if err != nil {
		return err
	}
	return c.threadSafeWrite(websocket.TextMessage, b)
}

func (c *Client) pingLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	ping, _ := json.Marshal(opRequest{Op: "ping"})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.threadSafeWrite(websocket.TextMessage, ping); err != nil {
				c.logger.Warn("ping write failed", slog.Any("error", err))
				c.closeConnection()
				return
			}
		}
	}
}

func (c *Client) threadSafeWrite(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(msgType, data)
}

// readLoop consumes frames until the socket dies or the client stops.
// Pong liveness is enforced via the read deadline: any frame (pongs
// included) must arrive within two ping intervals.
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(2 * c.pingInterval))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.running.Load() {
				c.logger.Warn("read failed, reconnecting", slog.Any("error", err))
				c.emitError(domain.NewNetworkError("read", err))
			}
			return
		}
		c.routeFrame(msg)
	}
}

// routeFrame decodes one inbound frame and dispatches by topic prefix.
// Malformed frames are logged and dropped, never fatal.
func (c *Client) routeFrame(msg []byte) {
	c.metrics.RecordFrame()

	var frame rawFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		c.dropFrame("", err)
		return
	}

	switch {
	case frame.Op == "pong" || frame.RetMsg == "pong":
		// Liveness only, nothing to dispatch.
	case frame.Op == "subscribe":
		if frame.Success != nil && !*frame.Success {
			c.logger.Warn("subscription rejected", slog.String("ret_msg", frame.RetMsg))
		}
	case strings.HasPrefix(frame.Topic, topicTickerPrefix):
		ticker, err := parseTickerFrame(&frame)
		if err != nil {
			c.dropFrame(frame.Topic, err)
			return
		}
		c.emitTicker(ticker)
	case strings.HasPrefix(frame.Topic, topicKlinePrefix):
		candles, err := parseKlineFrame(&frame)
		if err != nil {
			c.dropFrame(frame.Topic, err)
			return
		}
		for _, candle := range candles {
			c.emitCandle(candle)
		}
	default:
		c.logger.Debug("unhandled frame", slog.String("topic", frame.Topic), slog.String("op", frame.Op))
	}
}

func (c *Client) dropFrame(topic string, err error) {
	c.metrics.RecordParseError()
	parseErr := &domain.ParseError{Topic: topic, Err: err}
	c.logger.Warn("dropping malformed frame", slog.Any("error", parseErr))
	c.emitError(parseErr)
}

func (c *Client) emitTicker(ticker *domain.TickerSnapshot) {
	c.handlerMu.RLock()
	handlers := c.tickerHandlers
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		c.safeInvoke(func() { h(ticker) })
	}
}

func (c *Client) emitCandle(candle *domain.Candle) {
	c.handlerMu.RLock()
	handlers := c.candleHandlers
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		c.safeInvoke(func() { h(candle) })
	}
}

func (c *Client) emitError(err error) {
	c.handlerMu.RLock()
	handlers := c.errorHandlers
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		c.safeInvoke(func() { h(err) })
	}
}

// safeInvoke isolates handler panics from the receive loop.
func (c *Client) safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordHandlerError()
			c.logger.Error("handler panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Disconnect stops the connection loop, closes the socket to unblock the
// reader, and waits for background loops to finish.
func (c *Client) Disconnect() {
	c.running.Store(false)
	c.reconnect.MarkDisconnected()
	c.closeConnection()
	c.wg.Wait()
}
