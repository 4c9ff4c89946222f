package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512
	wsClientBuffer   = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
}

// wsClient is one websocket subscriber.
type wsClient struct {
	hub  *WebsocketHub
	conn *websocket.Conn
	send chan []byte
}

// WebsocketHub fans view frames out to websocket subscribers. A subscriber
// whose buffer is full is disconnected rather than slowing the others.
type WebsocketHub struct {
	logger     trackerDomain.Logger
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	count      atomic.Int64
	dropped    atomic.Uint64
}

// NewWebsocketHub creates a hub. Run must be started before clients connect.
func NewWebsocketHub(logger trackerDomain.Logger) *WebsocketHub {
	return &WebsocketHub{
		logger:     logger,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 1),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *WebsocketHub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			h.remove(client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.count.Add(1)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("websocket client %s is too slow, disconnecting", client.conn.RemoteAddr())
					h.remove(client)
				}
			}
		}
	}
}

func (h *WebsocketHub) remove(client *wsClient) {
	delete(h.clients, client)
	close(client.send)
	h.count.Add(-1)
}

// Publish broadcasts frame as JSON. When the previous frame has not been
// fanned out yet, this one is dropped.
func (h *WebsocketHub) Publish(frame trackerDomain.ViewFrame) error {
	if h.count.Load() == 0 {
		return nil
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- payload:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// Dropped returns how many frames were skipped because the previous one was
// still being fanned out.
func (h *WebsocketHub) Dropped() uint64 {
	return h.dropped.Load()
}

// Clients returns the number of connected subscribers.
func (h *WebsocketHub) Clients() int {
	return int(h.count.Load())
}

// ServeWS upgrades the request and registers the connection.
func (h *WebsocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed: %s", err.Error())
		return
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, wsClientBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection so that pongs and close frames are
// processed. Subscribers are not expected to send anything.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
