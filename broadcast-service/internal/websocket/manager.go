package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Manager tracks the websocket clients watching each lot. Registration,
// removal and fan-out all run on the Run goroutine.
type Manager struct {
	subscribers map[string]map[*Client]struct{} // lotID -> clients
	counts      sync.Map                        // lotID -> int, for lock-free stats

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{} // closed when Run returns

	logger *slog.Logger
}

// Client represents a WebSocket client connection
type Client struct {
	ID    string
	LotID string
	Conn  *websocket.Conn
	Send  chan []byte

	closeOnce sync.Once
}

// BroadcastMessage is a payload for every client watching a lot
type BroadcastMessage struct {
	LotID   string
	Payload []byte
}

// NewManager creates a new WebSocket manager
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		subscribers: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client, sendBuffer),
		broadcast:   make(chan *BroadcastMessage, sendBuffer),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run processes registrations and broadcasts until ctx ends, then closes
// every remaining client.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range m.subscribers {
				for c := range clients {
					m.drop(c)
				}
			}
			return

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case message := <-m.broadcast:
			m.broadcastToLot(message.LotID, message.Payload)
		}
	}
}

// RegisterClient adds a client to the manager. It reports false once the
// manager has stopped.
func (m *Manager) RegisterClient(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

// UnregisterClient removes a client from the manager
func (m *Manager) UnregisterClient(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// Broadcast queues payload for every client watching lotID
func (m *Manager) Broadcast(lotID string, payload []byte) {
	select {
	case m.broadcast <- &BroadcastMessage{LotID: lotID, Payload: payload}:
	case <-m.done:
	}
}

// GetSubscriberCount returns the number of clients watching a lot
func (m *Manager) GetSubscriberCount(lotID string) int {
	if v, ok := m.counts.Load(lotID); ok {
		return v.(int)
	}
	return 0
}

func (m *Manager) registerClient(client *Client) {
	clients, ok := m.subscribers[client.LotID]
	if !ok {
		clients = make(map[*Client]struct{})
		m.subscribers[client.LotID] = clients
	}
	clients[client] = struct{}{}
	m.counts.Store(client.LotID, len(clients))

	m.logger.Info("Client subscribed", slog.String("client_id", client.ID), slog.String("lot_id", client.LotID))
	go client.writePump()
}

func (m *Manager) unregisterClient(client *Client) {
	clients, ok := m.subscribers[client.LotID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(m.subscribers, client.LotID)
		m.counts.Delete(client.LotID)
	} else {
		m.counts.Store(client.LotID, len(clients))
	}

	m.drop(client)
	m.logger.Info("Client unsubscribed", slog.String("client_id", client.ID), slog.String("lot_id", client.LotID))
}

// drop closes the send channel once; writePump then closes the connection.
func (m *Manager) drop(client *Client) {
	client.closeOnce.Do(func() { close(client.Send) })
}

func (m *Manager) broadcastToLot(lotID string, payload []byte) {
	clients := m.subscribers[lotID]
	if len(clients) == 0 {
		return
	}

	count := 0
	for client := range clients {
		select {
		case client.Send <- payload:
			count++
		default:
			// A slow client must not hold up the others.
			m.unregisterClient(client)
		}
	}

	m.logger.Debug("Broadcasted event", slog.Int("clients", count), slog.String("lot_id", lotID))
}

// writePump pumps messages from the Send channel to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only keeps the connection alive; viewers never send commands.
func (c *Client) readPump(m *Manager) {
	defer m.UnregisterClient(c)

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("WebSocket error", slog.String("client_id", c.ID), slog.Any("error", err))
			}
			return
		}
	}
}
