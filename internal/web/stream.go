package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/stake_leveling/internal/domain"
	"github.com/vitos/stake_leveling/internal/usecase"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// subscriber is one websocket client. send is drained by its own writer goroutine.
type subscriber struct {
	conn *websocket.Conn
	send chan domain.AccountState
	seen map[string]uint64 // writer-only: last version written per account
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn: conn,
		send: make(chan domain.AccountState, sendBuffer),
		seen: make(map[string]uint64),
	}
}

// fresh reports whether st is newer than anything already written for its account.
func (c *subscriber) fresh(st domain.AccountState) bool {
	if last, ok := c.seen[st.AccountID]; ok && st.Version <= last {
		return false
	}
	c.seen[st.AccountID] = st.Version
	return true
}

func (c *subscriber) writeLoop(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	for st := range c.send {
		if !c.fresh(st) {
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(st); err != nil {
			h.logger.Debug("Dropping websocket client", zap.Error(err))
			return
		}
	}
}

// Hub fans account state changes out to websocket subscribers. Publish never blocks:
// a subscriber whose buffer is full is disconnected.
type Hub struct {
	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(c *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked requires h.mu. Closing send stops the writer, which closes the connection.
func (h *Hub) dropLocked(c *subscriber) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) offerLocked(c *subscriber, st domain.AccountState) {
	select {
	case c.send <- st:
	default:
		h.logger.Warn("Websocket client too slow, disconnecting", zap.String("account", st.AccountID))
		h.dropLocked(c)
	}
}

// Publish is installed as the registry state listener.
func (h *Hub) Publish(state domain.AccountState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.offerLocked(c, state)
	}
}

// deliver queues states for one subscriber if it is still registered.
func (h *Hub) deliver(c *subscriber, states []domain.AccountState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range states {
		if _, ok := h.clients[c]; !ok {
			return
		}
		h.offerLocked(c, st)
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// Handler upgrades the request, subscribes the client, sends every known account state
// once and then streams updates until the client goes away. The client is registered
// before the initial states are read, so no update is missed; older states are skipped
// by version.
func (h *Hub) Handler(registry *usecase.AccountRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("Websocket upgrade failed", zap.Error(err))
			return
		}

		c := newSubscriber(conn)
		if !h.register(c) {
			conn.Close()
			return
		}
		go c.writeLoop(h)
		defer h.unregister(c)

		var initial []domain.AccountState
		for _, id := range registry.Accounts() {
			if st, ok := registry.GetState(id); ok {
				initial = append(initial, st)
			}
		}
		h.deliver(c, initial)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
