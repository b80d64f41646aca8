// Package feed is the websocket push-event client. It turns raw feed
// frames into domain events and delivers them, together with
// connect/disconnect markers, into each market's reconciler inbox.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/curvelab/monbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// Sink receives one market's events in delivery order. Deliver may
// block when the consumer's inbox is full.
type Sink interface {
	Deliver(ctx context.Context, ev domain.Event) error
}

// Client is the websocket client for the exchange's push feed. It
// manages the connection lifecycle and per-market subscriptions, and
// guarantees that events and connectivity markers for one market reach
// its sink in the order the transport delivered them.
type Client struct {
	wsURL  string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool
	sinks  map[string]Sink
	// markets already connected at least once; reconnects for them are
	// flagged Resumed so the reconciler resyncs.
	seen map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a feed client for the given websocket endpoint.
func NewClient(wsURL string, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "feed")),
		sinks:  make(map[string]Sink),
		seen:   make(map[string]bool),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Register routes one market's events to a sink. Must be called before
// Connect; there is exactly one sink per market.
func (c *Client) Register(market string, sink Sink) {
	c.mu.Lock()
	c.sinks[market] = sink
	c.mu.Unlock()
}

// Connect establishes the websocket connection, subscribes every
// registered market, and emits a Connected marker to each sink.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("feed: connect: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", c.wsURL, err)
	}
	c.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for market := range c.sinks {
		if err := c.sendCommand(command{Type: "subscribe", Market: market}); err != nil {
			conn.Close()
			c.conn = nil
			return fmt.Errorf("feed: subscribe %s: %w", market, err)
		}
	}

	go c.readLoop(conn)
	go c.pingLoop(conn)

	for market, sink := range c.sinks {
		ev := domain.ConnectedEvent{Market: market, Resumed: c.seen[market]}
		c.seen[market] = true
		if err := sink.Deliver(c.ctx, ev); err != nil {
			return fmt.Errorf("feed: deliver connected %s: %w", market, err)
		}
	}

	c.logger.Info("feed connected", slog.Int("markets", len(c.sinks)))
	return nil
}

// Close shuts the connection down and stops the read and ping loops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return c.conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command. Caller must hold c.mu.
func (c *Client) sendCommand(cmd command) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames until the connection drops, then emits
// Disconnected markers and hands off to reconnect.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("feed read failed", slog.Any("error", err))
			c.emitDisconnected(err)
			c.reconnect()
			return // a fresh readLoop starts on reconnect
		}

		c.dispatch(message)
	}
}

// pingLoop keeps the connection alive. It exits when its connection is
// replaced or the client closes.
func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch parses one frame and delivers the event to its market's
// sink. Frames for unregistered markets and unknown event kinds are
// dropped.
func (c *Client) dispatch(raw []byte) {
	ev, err := parseMessage(raw)
	if err != nil {
		c.logger.Warn("feed frame dropped", slog.Any("error", err))
		return
	}
	if ev == nil {
		return
	}

	c.mu.RLock()
	sink, ok := c.sinks[ev.EventMarket()]
	c.mu.RUnlock()
	if !ok {
		return
	}
	if err := sink.Deliver(c.ctx, ev); err != nil {
		c.logger.Warn("feed deliver failed",
			slog.String("market", ev.EventMarket()), slog.Any("error", err))
	}
}

// emitDisconnected pushes a Disconnected marker into every sink, in the
// same channel as events so ordering with already-delivered events
// holds.
func (c *Client) emitDisconnected(cause error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for market, sink := range c.sinks {
		ev := domain.DisconnectedEvent{Market: market, Err: cause}
		if err := sink.Deliver(c.ctx, ev); err != nil {
			c.logger.Warn("feed deliver disconnected",
				slog.String("market", market), slog.Any("error", err))
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the client is closed. Connect emits the
// Resumed markers that trigger resync.
func (c *Client) reconnect() {
	delay := reconnectDelay
	for {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(c.ctx, 15*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		c.logger.Warn("feed reconnect failed", slog.Any("error", err), slog.Duration("retry_in", delay))

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
