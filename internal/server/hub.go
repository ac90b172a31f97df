// Package server coordinates client registration, room membership, message
// broadcast, and connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Hub owns every live connection and the room membership relation. All
// mutations happen on the Run goroutine, one request at a time; the mutex
// only guards readers on other goroutines.
type Hub struct {
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	broadcast  chan BroadcastMessage
	join       chan Membership
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	started    atomic.Bool
	logger     *slog.Logger
}

// NewHub creates a hub that is ready to Run.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		broadcast:  make(chan BroadcastMessage),
		join:       make(chan Membership),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub"),
	}
}

// Register hands a freshly upgraded client to the hub, which starts its pumps.
// It reports false once the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) submitUnregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) submitJoin(m Membership) {
	select {
	case h.join <- m:
	case <-h.ctx.Done():
	}
}

func (h *Hub) submitBroadcast(msg BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of connections that joined room.
func (h *Hub) RoomSize(room string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run is the hub's event loop. It returns after Shutdown has been called and
// every connection has been told to close.
func (h *Hub) Run() {
	h.started.Store(true)
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case m := <-h.join:
			h.handleJoin(m)

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.logger.Warn("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()
	client.logger.Info("client connected", "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	h.detachLocked(client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	client.logger.Info("client disconnected", "clients", clientCount)
}

// detachLocked removes client from the registry and every room. The caller
// holds the write lock and closes client.send after releasing it.
func (h *Hub) detachLocked(client *Client) {
	delete(h.clients, client)
	for room, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.closed = true
}

func (h *Hub) handleJoin(m Membership) {
	h.mutex.Lock()
	if _, ok := h.clients[m.Client]; !ok {
		h.mutex.Unlock()
		return
	}
	members, ok := h.rooms[m.Room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[m.Room] = members
	}
	members[m.Client] = struct{}{}
	roomSize := len(members)
	h.mutex.Unlock()

	m.Client.logger.Info("client joined room", "room", m.Room, "members", roomSize)

	if m.Notice != nil {
		h.handleBroadcast(BroadcastMessage{Room: m.Room, Sender: m.Client, Payload: m.Notice})
	}
}

// handleBroadcast sends the payload to every room member except the sender.
func (h *Hub) handleBroadcast(msg BroadcastMessage) {
	members := h.roomSnapshot(msg.Room)

	var clientsToRemove []*Client
	delivered := 0
	for _, client := range members {
		if msg.Sender != nil && client == msg.Sender {
			continue
		}
		if !h.safeSend(client, msg.Payload) {
			clientsToRemove = append(clientsToRemove, client)
			continue
		}
		delivered++
	}

	h.logger.Debug("broadcast", "room", msg.Room, "recipients", delivered)
	h.removeFailedClients(clientsToRemove)
}

func (h *Hub) roomSnapshot(room string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members := h.rooms[room]
	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients drops clients whose send queue is full and closes
// their channels, which makes their write pumps hang up.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			h.detachLocked(client)
			channelsToClose = append(channelsToClose, client.send)
			client.logger.Warn("client removed due to full send buffer")
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients sends a going-away close frame to every connection and
// closes it.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	closeFrame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		_ = client.conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(time.Second))
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			client.logger.Warn("error closing client connection", "err", err)
		}
	}

	h.logger.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the event loop and waits for it and every client goroutine
// to finish, or until timeout elapses. A hub whose Run was never started has
// nothing to wait for.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	if !h.started.Load() {
		h.logger.Info("hub was not running")
		return nil
	}

	done := make(chan struct{})
	go func() {
		<-h.done
		h.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-timer.C:
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
