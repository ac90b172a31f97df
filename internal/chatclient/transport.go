package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gochat-relay/internal/protocol"
)

const (
	outboxSize             = 64
	writeWait              = 10 * time.Second
	handshakeTimeout       = 10 * time.Second
	DefaultReconnectWindow = 2 * time.Minute
	// DefaultReadTimeout matches the relay's pong wait; the relay pings
	// every 54s.
	DefaultReadTimeout = 60 * time.Second
)

var (
	// ErrDisconnected is returned by Emit while no connection is up.
	ErrDisconnected = errors.New("chatclient: not connected")
	// ErrOutboxFull is returned by Emit when the connection is backed up.
	ErrOutboxFull = errors.New("chatclient: outbox full")
)

// Config locates the relay.
type Config struct {
	// URL is the relay's websocket endpoint, e.g. ws://localhost:3000/ws.
	URL string
	// Origin is sent as the Origin header; the relay rejects unknown origins.
	Origin string
	// ReconnectWindow bounds how long one (re)connect attempt keeps retrying.
	ReconnectWindow time.Duration
	// ReadTimeout is how long the connection may stay silent, pings
	// included, before it is dropped and redialled.
	ReadTimeout time.Duration
}

// Handler receives connection lifecycle and inbound events. *Session
// implements it.
type Handler interface {
	Connected(sessionID string)
	HandleEvent(event string, data json.RawMessage)
}

// Client is a reconnecting websocket transport to the relay.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	outbox chan []byte
	ready  bool
}

// NewClient returns a client that is not yet connected; call Run.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectWindow <= 0 {
		cfg.ReconnectWindow = DefaultReconnectWindow
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger.With("component", "transport", "url", cfg.URL),
	}
}

// Emit queues one event on the current connection without blocking.
func (c *Client) Emit(event string, data any) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outbox == nil {
		return ErrDisconnected
	}
	select {
	case c.outbox <- frame:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Connected reports whether a connection is up and the handler has been told
// about it.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Run connects, serves the connection and reconnects until ctx ends. It
// returns nil when ctx ends and an error when a connection cannot be
// (re)established within the reconnect window.
func (c *Client) Run(ctx context.Context, h Handler) error {
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = c.serve(ctx, conn, h)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("connection lost, reconnecting", "err", err)
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	if c.cfg.Origin != "" {
		headers.Set("Origin", c.cfg.Origin)
	}

	dial := func() (*websocket.Conn, error) {
		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, headers)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			return conn, nil
		}
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return nil, backoff.Permanent(fmt.Errorf("dial %s: origin %q rejected: %w", c.cfg.URL, c.cfg.Origin, err))
		}
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	return backoff.Retry(ctx, dial,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(c.cfg.ReconnectWindow),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("dial failed", "err", err, "retry_in", next)
		}),
	)
}

// serve runs one connection until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, h Handler) error {
	outbox := make(chan []byte, outboxSize)
	sessionID := uuid.NewString()

	c.mu.Lock()
	c.outbox = outbox
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.outbox = nil
		c.ready = false
		c.mu.Unlock()
	}()

	c.logger.Info("connected", "session", sessionID)
	h.Connected(sessionID)

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.readLoop(conn, h)
	})
	g.Go(func() error {
		return c.writeLoop(gctx, conn, outbox)
	})
	return g.Wait()
}

// readLoop holds a read deadline of ReadTimeout, pushed forward by every
// frame and ping, so a half-open connection ends in a read error.
func (c *Client) readLoop(conn *websocket.Conn, h Handler) error {
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	if err := extend(); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	conn.SetPingHandler(func(appData string) error {
		if err := extend(); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		return extend()
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := extend(); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "err", err)
			continue
		}
		h.HandleEvent(env.Event, env.Data)
	}
}

// writeLoop owns the connection: it is the only writer of data frames and
// closes the connection on the way out, which also ends readLoop.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, outbox <-chan []byte) error {
	defer func() { _ = conn.Close() }()

	for {
		select {
		case <-ctx.Done():
			closeFrame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(time.Second))
			return nil
		case frame := <-outbox:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}
