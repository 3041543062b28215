package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/game"
	"github.com/wfunc/instant-win/internal/game/card"
	"github.com/wfunc/instant-win/internal/middleware"
	"github.com/wfunc/instant-win/internal/utils"
	"go.uber.org/zap"
)

// Feed 把游戏会话事件推送给订阅的界面
//
// 客户端以 GET /ws/events?token=<jwt> 建立连接，只会收到令牌所属玩家的事件。
type Feed struct {
	hub        *Hub
	engine     *gin.Engine
	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewFeed 创建事件推送服务
func NewFeed(jwt *utils.JWTManager, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Feed{
		hub:    NewHub(logger),
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
	f.engine.Use(gin.Recovery())
	auth := middleware.NewAuthMiddleware(jwt)
	f.engine.GET("/ws/events", auth.RequireAuth(), f.serveWS)
	return f
}

func (f *Feed) serveWS(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.logger.Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	client := NewClient(f.hub, conn, userID)
	if !f.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// Run 运行连接管理，ctx 结束时断开全部客户端
func (f *Feed) Run(ctx context.Context) {
	f.hub.Run(ctx)
}

// Hub 连接管理中心
func (f *Feed) Hub() *Hub {
	return f.hub
}

// Handler HTTP处理器
func (f *Feed) Handler() http.Handler {
	return f.engine
}

// Start 在 addr 上开始监听
func (f *Feed) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	f.listener = ln
	f.httpServer = &http.Server{
		Handler:           f.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := f.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("事件推送服务异常退出", zap.Error(err))
		}
	}()
	f.logger.Info("事件推送服务已启动", zap.String("address", ln.Addr().String()))
	return nil
}

// Addr 实际监听地址
func (f *Feed) Addr() string {
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Shutdown 优雅关闭
func (f *Feed) Shutdown(ctx context.Context) error {
	if f.httpServer == nil {
		return nil
	}
	return f.httpServer.Shutdown(ctx)
}

// Listener 返回推送玩家事件的会话监听器，事件同时转发给 next
func (f *Feed) Listener(userID string, next game.Listener) game.Listener {
	if next == nil {
		next = game.NopListener{}
	}
	return &feedListener{feed: f, userID: userID, next: next}
}

// PushResult 推送一张卡片的结果
func (f *Feed) PushResult(userID string, res game.Result) {
	f.push(userID, MessageTypeCardResult, map[string]interface{}{
		"instance_id":  res.InstanceID,
		"session_id":   res.SessionID,
		"wager_cents":  res.WagerCents,
		"payout_cents": res.PayoutCents,
		"win_level":    res.WinLevel.String(),
		"outcome":      res.Outcome.String(),
	})
}

func (f *Feed) push(userID, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		f.logger.Error("序列化推送数据失败", zap.String("type", msgType), zap.Error(err))
		return
	}
	err = f.hub.SendToUser(userID, &Message{
		Type:      msgType,
		Data:      data,
		Timestamp: f.hub.now().Unix(),
	})
	if err != nil && !errors.Is(err, ErrUserNotConnected) {
		f.logger.Warn("推送失败", zap.String("user_id", userID), zap.Error(err))
	}
}

type feedListener struct {
	feed   *Feed
	userID string
	next   game.Listener
}

func (l *feedListener) OnStateChange(from, to game.GameState) {
	l.feed.push(l.userID, MessageTypeStateChange, map[string]string{
		"from": string(from),
		"to":   string(to),
	})
	l.next.OnStateChange(from, to)
}

func (l *feedListener) OnPurchaseConfirmed(instances []apiclient.Instance) {
	ids := make([]string, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.InstanceID)
	}
	l.feed.push(l.userID, MessageTypePurchaseConfirmed, map[string]interface{}{
		"instances": ids,
	})
	l.next.OnPurchaseConfirmed(instances)
}

func (l *feedListener) OnGroupTrigger(group card.GroupKind, active bool) {
	l.feed.push(l.userID, MessageTypeGroupTrigger, map[string]interface{}{
		"group":  group.String(),
		"active": active,
	})
	l.next.OnGroupTrigger(group, active)
}

func (l *feedListener) OnError(kind game.ErrorKind, err error) {
	l.feed.push(l.userID, MessageTypeGameError, map[string]string{
		"kind":  kind.String(),
		"error": err.Error(),
	})
	l.next.OnError(kind, err)
}
