package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"address-intelligence/internal/domain/entity"
	domain_service "address-intelligence/internal/domain/service"
	"address-intelligence/internal/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeDeadline = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub keeps the set of stream subscribers and broadcasts trigger events to
// them
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
	logger    *logger.Logger
}

var _ domain_service.ResponseHook = (*Hub)(nil)

// NewHub creates an idle hub; call Run to start delivery
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
		logger:    logger.WithComponent("websocket-hub"),
	}
}

// Run delivers broadcasts until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return
		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				// A stuck client must not stall the others
				_ = client.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warn("Websocket write error", zap.Error(err))
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Subscribe upgrades the request and registers the connection
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade websocket", zap.Error(err))
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()

	h.logger.Info("WebSocket client connected", zap.Int("clients", total))

	// Reads only detect disconnects
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			total := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			h.logger.Info("WebSocket client disconnected", zap.Int("clients", total))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("WebSocket error", zap.Error(err))
				}
				return
			}
		}
	}()
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Fire queues the trigger event for every subscriber
func (h *Hub) Fire(ctx context.Context, event entity.TriggerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
