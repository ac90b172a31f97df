// Package server manages individual WebSocket clients, handling the read and
// write pumps and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-relay/internal/protocol"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// Client is one websocket connection as seen by the hub.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	logger         *slog.Logger
}

// NewClient wraps an upgraded connection and assigns it a session identifier.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, maxMessageSize int64) *Client {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: maxMessageSize,
		logger:         hub.logger.With("session", id, "remote", addr),
	}
}

// ID returns the connection's session identifier.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's outgoing frame queue.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("error setting initial read deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("error setting read deadline in pong handler", "err", err)
		}
		return nil
	})
}

// logReadError records why the read loop ended at a level matching how
// surprising the cause is.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug("client closed connection", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug("connection closed", "err", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("unexpected websocket close", "err", err)
	default:
		c.logger.Warn("websocket read error", "err", err)
	}
}

// processFrame routes one inbound frame to the hub. Payloads are never
// inspected beyond the envelope; whatever the sender put in data is what the
// peers get.
func (c *Client) processFrame(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", "err", err)
		return
	}

	switch {
	case env.Event == protocol.EventJoin:
		notice, err := protocol.EncodeRaw(protocol.EventJoinNotice, env.Data)
		if err != nil {
			c.logger.Warn("error encoding join notice", "err", err)
			return
		}
		c.logger.Info("user joined", "name", displayName(env.Data), "room", protocol.DefaultRoom)
		c.hub.submitJoin(Membership{Room: protocol.DefaultRoom, Client: c, Notice: notice})

	case protocol.IsRelayed(env.Event):
		payload, err := protocol.EncodeRaw(env.Event, env.Data)
		if err != nil {
			c.logger.Warn("error encoding relayed frame", "event", env.Event, "err", err)
			return
		}
		c.logger.Debug("relaying event", "event", env.Event)
		c.hub.submitBroadcast(BroadcastMessage{Room: protocol.DefaultRoom, Sender: c, Payload: payload})

	default:
		c.logger.Debug("ignoring unknown event", "event", env.Event)
	}
}

// displayName is for logs only; a non-string join payload is still relayed.
func displayName(data json.RawMessage) string {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return string(data)
	}
	return name
}

func (c *Client) readPump() {
	defer func() {
		c.hub.submitUnregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("error closing connection in readPump", "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.processFrame(frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return false
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("error closing connection in writePump", "err", err)
	}
}

// handleMessage writes one outgoing frame and returns false if the connection
// should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("error setting write deadline", "err", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing message", "err", err)
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("error writing close message", "err", err)
	}
	return false
}

func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("error setting write deadline for ping", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("error writing ping message", "err", err)
		return false
	}
	return true
}
