package directory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ciphermesh/internal/domain"
)

// client is one connected device.
type client struct {
	addr domain.DeviceAddress
	conn *websocket.Conn
	send chan []byte
	mu   sync.Mutex
}

func newClient(addr domain.DeviceAddress, conn *websocket.Conn) *client {
	return &client{addr: addr, conn: conn, send: make(chan []byte, 256)}
}

func (c *client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.conn.WriteMessage(websocket.TextMessage, msg)
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-ticker.C:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Hub routes wire items between connected devices. Items for devices that
// are offline, or whose send buffer is full, are queued in the store and
// flushed when the device connects.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.DeviceAddress]*client
	store   *MemoryStore
	log     *zap.Logger
}

func NewHub(store *MemoryStore, log *zap.Logger) *Hub {
	return &Hub{clients: make(map[domain.DeviceAddress]*client), store: store, log: log}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if old, ok := h.clients[c.addr]; ok {
		old.close()
	}
	h.clients[c.addr] = c
	h.mu.Unlock()

	for _, msg := range h.store.Drain(c.addr) {
		h.deliver(c.addr, msg)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.addr]; ok && cur == c {
		delete(h.clients, c.addr)
	}
	h.mu.Unlock()
}

func (h *Hub) deliver(addr domain.DeviceAddress, msg []byte) {
	h.mu.RLock()
	c, ok := h.clients[addr]
	if ok {
		select {
		case c.send <- msg:
			h.mu.RUnlock()
			return
		default:
		}
	}
	h.mu.RUnlock()
	h.store.Enqueue(addr, msg)
}

// Connected reports whether addr has a live connection.
func (h *Hub) Connected(addr domain.DeviceAddress) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[addr]
	return ok
}

// serve runs the read side of a device connection until it fails.
func (h *Hub) serve(ctx context.Context, c *client) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.register(c)
	defer h.unregister(c)
	go c.writeLoop(ctx)

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			h.log.Debug("device disconnected", zap.String("address", c.addr.String()), zap.Error(err))
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var item domain.WireItem
		if err := json.Unmarshal(data, &item); err != nil {
			h.log.Warn("malformed wire item", zap.String("address", c.addr.String()), zap.Error(err))
			continue
		}
		if item.SenderAddress() != c.addr {
			h.log.Warn("sender mismatch",
				zap.String("address", c.addr.String()),
				zap.String("claimed", item.SenderAddress().String()))
			continue
		}
		to := item.RecipientAddress()
		if !to.Valid() {
			h.log.Warn("invalid recipient", zap.String("item_id", item.ItemID.String()))
			continue
		}
		h.deliver(to, data)
	}
}
