package websocket

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType 定义推送给管理端的事件类型
type EventType string

const (
	EventAliasGenerated EventType = "alias_generated"
	EventAliasExpired   EventType = "alias_expired"
	EventMailForwarded  EventType = "mail_forwarded"
)

// EventPayload 事件载荷
type EventPayload struct {
	OwnerID string `json:"ownerId,omitempty"`
	Alias   string `json:"alias,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// Event 是推送到 WebSocket 客户端的消息结构
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	Payload   EventPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// client 代表一个已连接的管理端
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub 管理所有 WebSocket 连接并向它们广播运营事件。
// 事件只面向持有管理令牌的观察端，广播不阻塞业务路径：
// 发送缓冲满的客户端直接断开。
type Hub struct {
	clients    map[string]*client
	register   chan *client
	unregister chan *client
	broadcast  chan Event
	mu         sync.RWMutex

	upgrader   websocket.Upgrader
	adminToken string
	log        *zap.Logger
}

// NewHub 创建 WebSocket Hub。
func NewHub(allowedOrigins []string, adminToken string, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 64),
		upgrader:   upgraderFactory(allowedOrigins),
		adminToken: adminToken,
		log:        log,
	}
}

// Run 处理注册、注销与广播，直到 ctx 取消。
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.log.Debug("websocket client connected", zap.String("client_id", c.id))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Debug("websocket client disconnected", zap.String("client_id", c.id))
		case event := <-h.broadcast:
			h.fanOut(event)
		}
	}
}

// Publish 向所有连接的客户端广播一个事件。Hub 为 nil 时直接忽略。
func (h *Hub) Publish(eventType EventType, payload EventPayload) {
	if h == nil {
		return
	}
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	select {
	case h.broadcast <- event:
	default:
		// 广播缓冲满时丢弃事件，绝不阻塞邮件处理
		h.log.Warn("websocket broadcast buffer full, dropping event", zap.String("type", string(eventType)))
	}
}

// HandleWS 处理 WebSocket 升级请求（需要管理令牌）。
func (h *Hub) HandleWS(c *gin.Context) {
	if !h.authorized(c) {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 32),
	}
	h.register <- cl

	go h.writeLoop(cl)
	go h.readLoop(cl)
}

// authorized 校验 Bearer Token 或 token 查询参数。
func (h *Hub) authorized(c *gin.Context) bool {
	if h.adminToken == "" {
		return false
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token = c.Query("token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

// fanOut 把事件发给所有客户端，发送缓冲满的客户端直接断开。
func (h *Hub) fanOut(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to encode websocket event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			go func(c *client) { h.unregister <- c }(c)
		}
	}
}

// writeLoop 把广播队列写到连接。
func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readLoop 消费客户端消息以探测断开（观察端不发送业务数据）。
func (h *Hub) readLoop(c *client) {
	defer func() { h.unregister <- c }()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// closeAll 关停时断开所有客户端。
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, id)
	}
}
