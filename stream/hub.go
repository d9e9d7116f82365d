package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/appprecos/scan-gateway/models"
	"github.com/appprecos/scan-gateway/queue"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway serves local app shells; no cross-origin policy here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope wraps every message pushed to websocket subscribers.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub fans queue mutations out to connected websocket clients. Each new
// client receives a snapshot of the current queue before the live feed.
type Hub struct {
	store      *queue.Store
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

// Client is one websocket subscriber.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub and subscribes it to the store's mutation feed.
func NewHub(store *queue.Store) *Hub {
	hub := &Hub{
		store:      store,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	store.Subscribe(hub.onStoreEvent)
	return hub
}

// Run owns the client set. Must be started on its own goroutine before
// any client connects.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			logrus.WithFields(logrus.Fields{
				"component": "StreamHub",
				"client_id": client.id,
				"clients":   len(h.clients),
			}).Debug("Websocket client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				logrus.WithFields(logrus.Fields{
					"component": "StreamHub",
					"client_id": client.id,
					"clients":   len(h.clients),
				}).Debug("Websocket client disconnected")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than block the feed.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// onStoreEvent translates a store mutation into a broadcast envelope.
func (h *Hub) onStoreEvent(event queue.Event) {
	envelope := Envelope{
		Type:      "queue." + string(event.Type),
		Data:      event.Entry,
		Timestamp: time.Now(),
	}
	message, err := json.Marshal(envelope)
	if err != nil {
		logrus.WithField("component", "StreamHub").WithError(err).Warn("Failed to encode queue event")
		return
	}
	select {
	case h.broadcast <- message:
	default:
		logrus.WithField("component", "StreamHub").Warn("Broadcast buffer full, dropping queue event")
	}
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithField("component", "StreamHub").WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &Client{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 32),
	}

	// Enqueue the snapshot before the hub learns about the client, so no
	// broadcast can outrun it and the hub's slow-consumer close cannot
	// race the snapshot send.
	client.sendSnapshot(h.store.List())
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// sendSnapshot queues the current queue contents as the first message.
func (c *Client) sendSnapshot(entries []models.QueueEntry) {
	envelope := Envelope{
		Type:      "queue.snapshot",
		Data:      entries,
		Timestamp: time.Now(),
	}
	message, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

// readPump drains inbound frames so pings and close frames are handled.
// Clients are read-only subscribers; payloads are discarded.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithFields(logrus.Fields{
					"component": "StreamHub",
					"client_id": c.id,
				}).WithError(err).Debug("Websocket read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
