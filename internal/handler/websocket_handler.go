package handler

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/warrenlibrary/library-backend/internal/broker"
	"github.com/warrenlibrary/library-backend/internal/middleware"
	"github.com/warrenlibrary/library-backend/internal/models"
	"github.com/warrenlibrary/library-backend/internal/service"
	"github.com/warrenlibrary/library-backend/pkg/logger"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second // Time allowed to write a message to the peer
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 54 seconds
	maxMessageSize = 4 * 1024            // clients only send control frames
)

// WSMessage is one frame of the circulation feed.
type WSMessage struct {
	Type  string        `json:"type"` // "connected", "event", "session_expired"
	Event *broker.Event `json:"event,omitempty"`
}

type Client struct {
	conn        *websocket.Conn
	actor       models.Actor
	connectedAt time.Time
	writeMu     sync.Mutex
}

// WebSocketHandler streams circulation events to catalogue pages so they can
// refresh availability without polling.
type WebSocketHandler struct {
	authService *service.AuthService
	broker      broker.Broker
	upgrader    websocket.Upgrader
	clients     map[*websocket.Conn]*Client
	mu          sync.RWMutex
}

// NewWebSocketHandler accepts upgrades from allowedOrigins; an empty list or
// "*" accepts any origin.
func NewWebSocketHandler(authService *service.AuthService, b broker.Broker, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		authService: authService,
		broker:      b,
		clients:     make(map[*websocket.Conn]*Client),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// HandleWebSocket authenticates with ?token= (browsers cannot set headers on
// a WebSocket handshake) or a bearer header, then streams events until the
// client leaves or the token expires.
// GET /api/ws
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c.GetHeader("Authorization"))
	}

	claims, err := h.authService.VerifyToken(token)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := h.broker.Subscribe(ctx)
	if err != nil {
		logger.Log.Error("Failed to subscribe to circulation events", zap.Error(err))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "event feed unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client := &Client{
		conn:        conn,
		actor:       claims.Actor(),
		connectedAt: time.Now(),
	}
	h.addClient(client)
	defer h.removeClient(conn)

	go h.readPump(client, cancel)

	if err := h.send(client, WSMessage{Type: "connected"}); err != nil {
		return
	}

	sessionLeft := time.Until(claims.ExpiresAt.Time)
	h.writePump(ctx, client, events, sessionLeft)
}

// readPump discards client frames so control frames are processed, and
// cancels the session when the peer goes away.
func (h *WebSocketHandler) readPump(client *Client, cancel context.CancelFunc) {
	defer cancel()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug("WebSocket read error",
					zap.Uint("user_id", client.actor.UserID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (h *WebSocketHandler) writePump(ctx context.Context, client *Client, events <-chan broker.Event, sessionLeft time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	sessionTimer := time.NewTimer(sessionLeft)
	defer sessionTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-sessionTimer.C:
			h.closeClientGracefully(client, "session expired")
			return

		case event, ok := <-events:
			if !ok {
				h.closeClientGracefully(client, "event feed closed")
				return
			}
			if err := h.send(client, WSMessage{Type: "event", Event: &event}); err != nil {
				return
			}

		case <-ticker.C:
			client.writeMu.Lock()
			err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			client.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) send(client *Client, msg WSMessage) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.conn.WriteJSON(msg); err != nil {
		logger.Log.Debug("Failed to write to WebSocket",
			zap.Uint("user_id", client.actor.UserID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (h *WebSocketHandler) closeClientGracefully(client *Client, reason string) {
	if reason == "session expired" {
		_ = h.send(client, WSMessage{Type: "session_expired"})
	}

	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))

	logger.Log.Debug("Closed WebSocket session",
		zap.Uint("user_id", client.actor.UserID),
		zap.String("reason", reason),
	)
}

func (h *WebSocketHandler) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.conn] = client
	total := len(h.clients)
	h.mu.Unlock()

	logger.Log.Info("Circulation feed client connected",
		zap.Uint("user_id", client.actor.UserID),
		zap.Int("total", total),
	)
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	delete(h.clients, conn)
	total := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	if ok {
		logger.Log.Info("Circulation feed client disconnected",
			zap.Uint("user_id", client.actor.UserID),
			zap.Duration("connected_for", time.Since(client.connectedAt)),
			zap.Int("total", total),
		)
	}
}

// ConnectedClients returns the number of open feed connections.
func (h *WebSocketHandler) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
