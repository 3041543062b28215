package websocket

import (
	"context"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub 管理事件订阅连接，同一玩家可以有多个连接
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	users   map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	heartbeat time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// Message 推送消息
type Message struct {
	Type      string              `json:"type"`
	UserID    string              `json:"user_id,omitempty"`
	Data      jsoniter.RawMessage `json:"data,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"

	// 游戏消息
	MessageTypeStateChange       = "state_change"
	MessageTypePurchaseConfirmed = "purchase_confirmed"
	MessageTypeGroupTrigger      = "group_trigger"
	MessageTypeGameError         = "game_error"
	MessageTypeCardResult        = "card_result"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		users:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		heartbeat:  30 * time.Second,
		now:        time.Now,
		logger:     logger,
	}
}

// Run 处理注册与注销并定时发送心跳，ctx 结束时断开全部客户端
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case <-ticker.C:
			h.fanout(&Message{Type: MessageTypePing, Timestamp: h.now().Unix()})
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	set, ok := h.users[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.UserID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("订阅连接建立",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID))

	h.SendToClient(c.ID, &Message{
		Type:      MessageTypeConnected,
		UserID:    c.UserID,
		Timestamp: h.now().Unix(),
	})
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	close(c.send)
	if set := h.users[c.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	h.mu.Unlock()

	h.logger.Info("订阅连接断开",
		zap.String("client_id", c.ID),
		zap.String("user_id", c.UserID))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		close(c.send)
	}
	h.clients = make(map[string]*Client)
	h.users = make(map[string]map[*Client]struct{})
}

// enqueue 非阻塞写入发送队列，调用方持有读锁
func (h *Hub) enqueue(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		h.logger.Warn("发送队列已满，丢弃消息",
			zap.String("client_id", c.ID),
			zap.String("user_id", c.UserID))
		return false
	}
}

func (h *Hub) fanout(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, data)
	}
}

// SendToClient 发送给单个连接
func (h *Hub) SendToClient(clientID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	if !h.enqueue(c, data) {
		return ErrSendBufferFull
	}
	return nil
}

// SendToUser 发送给玩家的全部连接，玩家没有连接时返回 ErrUserNotConnected
func (h *Hub) SendToUser(userID string, msg *Message) error {
	msg.UserID = userID
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.users[userID]
	if len(set) == 0 {
		return ErrUserNotConnected
	}
	for c := range set {
		h.enqueue(c, data)
	}
	return nil
}

// OnlineCount 在线连接数
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register 注册连接，Hub 已停止时返回 false
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销连接
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
