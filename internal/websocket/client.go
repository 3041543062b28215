package websocket

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrClientNotFound   = errors.New("客户端未找到")
	ErrUserNotConnected = errors.New("玩家未连接")
	ErrSendBufferFull   = errors.New("发送缓冲区已满")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4 * 1024 // 客户端只发送心跳
	sendQueueSize  = 256
)

// Client 订阅某个玩家事件的连接
type Client struct {
	ID     string
	UserID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient 创建连接，ID 随机生成
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
	}
}

// ReadPump 读取客户端心跳，读失败时注销连接
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("订阅连接异常关闭",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}
		extend("")
		c.handleMessage(data)
	}
}

// WritePump 发送队列中的消息并定时发送 ping 帧，队列关闭时发送关闭帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind    = websocket.TextMessage
			payload []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				kind = websocket.CloseMessage
			}
			payload = msg
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, payload); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}

// handleMessage 事件流是单向的，客户端只能发送心跳
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.hub.logger.Debug("无效的客户端消息", zap.String("client_id", c.ID))
		c.sendError("消息格式错误")
		return
	}

	switch msg.Type {
	case MessageTypePong:
	case MessageTypePing:
		c.hub.SendToClient(c.ID, &Message{Type: MessageTypePong, Timestamp: c.hub.now().Unix()})
	default:
		c.sendError("不支持的消息类型: " + msg.Type)
	}
}

func (c *Client) sendError(reason string) {
	data, _ := json.Marshal(map[string]string{"error": reason})
	c.hub.SendToClient(c.ID, &Message{
		Type:      MessageTypeError,
		Data:      data,
		Timestamp: c.hub.now().Unix(),
	})
}
