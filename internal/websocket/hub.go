// Package websocket pushes backup and restore progress to the browsers of the tenant
// that runs them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"erpcore/internal/backup"
	"erpcore/internal/permission"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
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
	// Origins are enforced by CORS and the session cookie.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope written to clients.
type Message struct {
	Type string       `json:"type"`
	Data backup.Event `json:"data"`
}

type delivery struct {
	companyID uuid.UUID
	payload   []byte
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	CompanyID uuid.UUID
	Send      chan []byte
}

// Hub keeps the connected clients per company and fans tenant events out to them.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]bool
	broadcast  chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     zerolog.Logger
}

var _ backup.Notifier = (*Hub)(nil)

// NewHub initializes a new WS Hub instance
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[uuid.UUID]map[*Client]bool),
		logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Run dispatches hub events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for _, set := range h.clients {
				for client := range set {
					close(client.Send)
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]bool)
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.CompanyID] == nil {
				h.clients[client.CompanyID] = make(map[*Client]bool)
			}
			h.clients[client.CompanyID][client] = true
			h.mu.Unlock()
			h.logger.Debug().Str("company_id", client.CompanyID.String()).Msg("websocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
		case d := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[d.companyID] {
				select {
				case client.Send <- d.payload:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops a client. Called with mu held.
func (h *Hub) remove(client *Client) {
	set := h.clients[client.CompanyID]
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.Send)
	if len(set) == 0 {
		delete(h.clients, client.CompanyID)
	}
	h.logger.Debug().Str("company_id", client.CompanyID.String()).Msg("websocket client disconnected")
}

// Clients returns the number of connected clients of a company.
func (h *Hub) Clients(companyID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[companyID])
}

// Notify queues ev for the clients of tenantID. Events are dropped when the queue is full.
func (h *Hub) Notify(tenantID uuid.UUID, ev backup.Event) {
	payload, err := json.Marshal(Message{Type: ev.Operation + "." + ev.Stage, Data: ev})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode websocket event")
		return
	}
	select {
	case h.broadcast <- delivery{companyID: tenantID, payload: payload}:
	default:
		h.logger.Warn().Str("company_id", tenantID.String()).Msg("websocket queue full, dropping event")
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive and unregisters the client when it goes away.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
	}
}

// ServeWs upgrades an authenticated request. The company comes from the session that
// the auth middleware attached to the request.
func (h *Hub) ServeWs(c *gin.Context) {
	session, ok := permission.FromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{Hub: h, Conn: conn, CompanyID: session.CompanyID, Send: make(chan []byte, 256)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
