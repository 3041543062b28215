package mockapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/config"
	apperrors "github.com/wfunc/instant-win/internal/errors"
	"github.com/wfunc/instant-win/internal/logger"
	"github.com/wfunc/instant-win/internal/middleware"
	_ "github.com/wfunc/instant-win/internal/mockapi/docs"
	"github.com/wfunc/instant-win/internal/utils"
	"go.uber.org/zap"
)

//go:generate swag init -g server.go -o docs

// @title Instant Win Reference API
// @version 1.0
// @description 刮刮乐会话接口的参考实现
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// Config 参考服务器配置
type Config struct {
	PIN            string
	InitialBalance int64 // 分
	JWTSecret      string
	TokenExpiry    time.Duration
	Mode           string
	Seed           int64
	Sessions       []apiclient.Session // 为空时使用 DefaultSessions
	Now            func() time.Time
}

// FromConfig 由应用配置生成参考服务器配置
func FromConfig(mock *config.MockConfig, sec *config.SecurityConfig) Config {
	return Config{
		PIN:            mock.PIN,
		InitialBalance: mock.InitialBalance,
		JWTSecret:      sec.JWT.Secret,
		TokenExpiry:    time.Duration(sec.JWT.ExpireHours) * time.Hour,
		Mode:           mock.Mode,
		Seed:           time.Now().UnixNano(),
	}
}

// Server 游戏会话API的参考实现，用于模拟器与集成测试
type Server struct {
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	store      *Store
	jwt        *utils.JWTManager
	auth       *middleware.AuthMiddleware
	pinHash    string
	logger     *zap.Logger
}

// NewServer 创建参考服务器
func NewServer(cfg Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	sessions := cfg.Sessions
	if len(sessions) == 0 {
		sessions = DefaultSessions()
	}

	pinHash, err := utils.HashPIN(cfg.PIN)
	if err != nil {
		return nil, err
	}

	jwt := utils.NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry)
	s := &Server{
		cfg:     cfg,
		engine:  gin.New(),
		store:   NewStore(sessions, cfg.InitialBalance, NewCardGenerator(cfg.Seed), cfg.Now),
		jwt:     jwt,
		auth:    middleware.NewAuthMiddleware(jwt),
		pinHash: pinHash,
		logger:  log,
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(
		swaggerFiles.Handler,
		ginSwagger.DocExpansion("none"),
	))

	v1 := s.engine.Group("/api/v1")
	v1.Use(s.auth.RequireAuth())
	{
		v1.GET("/sessions", s.listSessions)

		users := v1.Group("/users/:userId")
		users.Use(s.auth.RequireSelf("userId"))
		{
			users.GET("/instances", s.listInstances)
			users.GET("/balance", s.getBalance)
			users.POST("/purchase", s.purchase)
		}

		instances := v1.Group("/instances/:instanceId")
		{
			instances.POST("/numbers/:numberId/reveal", s.revealNumber)
			instances.POST("/reveal-all", s.revealAll)
			instances.POST("/complete", s.complete)
		}
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apiclient.ErrorBody{Code: http.StatusNotFound, Message: "接口不存在"})
	})
}

// requestLogger 请求日志
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last()
		}
		logger.LogAPICall(s.logger, c.Request.Method, c.FullPath(), c.Writer.Status(),
			time.Since(start), c.GetHeader(apiclient.RequestIDHeader), err)
	}
}

// fail 返回注入的故障，调用方随后直接返回
func (s *Server) fail(c *gin.Context, op Op) bool {
	if apiErr := s.store.takeFailure(op, c.Param("instanceId")); apiErr != nil {
		c.AbortWithStatusJSON(apiErr.Status, apiErr.Body)
		return true
	}
	return false
}

func (s *Server) respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.AbortWithStatusJSON(apiErr.Status, apiErr.Body)
			return
		}
		middleware.Abort(c, apperrors.Wrap(err, apperrors.ErrServerInternal))
		return
	}
	c.JSON(http.StatusOK, data)
}

// listSessions 场次列表
// @Summary 场次列表
// @Description 获取全部可购买场次
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} apiclient.Session
// @Failure 401 {object} apiclient.ErrorBody
// @Router /api/v1/sessions [get]
func (s *Server) listSessions(c *gin.Context) {
	if s.fail(c, OpSessions) {
		return
	}
	c.JSON(http.StatusOK, s.store.Sessions())
}

// @Summary 卡片列表
// @Description 获取玩家未结束的卡片
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param userId path string true "玩家ID"
// @Success 200 {array} apiclient.Instance
// @Failure 403 {object} apiclient.ErrorBody
// @Router /api/v1/users/{userId}/instances [get]
func (s *Server) listInstances(c *gin.Context) {
	if s.fail(c, OpInstances) {
		return
	}
	c.JSON(http.StatusOK, s.store.Instances(c.Param("userId")))
}

// @Summary 玩家余额
// @Description 获取玩家余额，单位为分
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param userId path string true "玩家ID"
// @Success 200 {object} apiclient.Balance
// @Failure 403 {object} apiclient.ErrorBody
// @Router /api/v1/users/{userId}/balance [get]
func (s *Server) getBalance(c *gin.Context) {
	if s.fail(c, OpBalance) {
		return
	}
	c.JSON(http.StatusOK, s.store.Balance(c.Param("userId")))
}

// revealNumber 刮开单个号码
// @Summary 刮开单个号码
// @Description 刮开卡片上的一个号码
// @Tags Instances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param instanceId path string true "卡片ID"
// @Param numberId path string true "号码ID"
// @Param request body apiclient.RevealRequest true "刮开请求"
// @Success 200 {object} apiclient.Instance
// @Failure 400 {object} apiclient.ErrorBody
// @Failure 404 {object} apiclient.ErrorBody
// @Failure 409 {object} apiclient.ErrorBody
// @Router /api/v1/instances/{instanceId}/numbers/{numberId}/reveal [post]
func (s *Server) revealNumber(c *gin.Context) {
	if s.fail(c, OpReveal) {
		return
	}
	var req apiclient.RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Revealed {
		c.AbortWithStatusJSON(http.StatusBadRequest,
			apiclient.ErrorBody{Code: http.StatusBadRequest, Message: "无效的请求"})
		return
	}
	userID, _ := middleware.GetUserID(c)
	inst, err := s.store.Reveal(userID, c.Param("instanceId"), c.Param("numberId"))
	s.respond(c, inst, err)
}

// @Summary 一键刮开
// @Description 一次刮开卡片上的全部号码
// @Tags Instances
// @Produce json
// @Security BearerAuth
// @Param instanceId path string true "卡片ID"
// @Success 200 {object} apiclient.Instance
// @Failure 404 {object} apiclient.ErrorBody
// @Failure 409 {object} apiclient.ErrorBody
// @Router /api/v1/instances/{instanceId}/reveal-all [post]
func (s *Server) revealAll(c *gin.Context) {
	if s.fail(c, OpRevealAll) {
		return
	}
	userID, _ := middleware.GetUserID(c)
	inst, err := s.store.RevealAll(userID, c.Param("instanceId"))
	s.respond(c, inst, err)
}

// complete 结束卡片
// @Summary 结束卡片
// @Description 结束卡片并入账派彩；卡片被挂起时返回 403
// @Tags Instances
// @Produce json
// @Security BearerAuth
// @Param instanceId path string true "卡片ID"
// @Success 200 {object} apiclient.Instance
// @Failure 403 {object} apiclient.ErrorBody
// @Failure 404 {object} apiclient.ErrorBody
// @Failure 409 {object} apiclient.ErrorBody
// @Router /api/v1/instances/{instanceId}/complete [post]
func (s *Server) complete(c *gin.Context) {
	if s.fail(c, OpComplete) {
		return
	}
	userID, _ := middleware.GetUserID(c)
	inst, err := s.store.Complete(userID, c.Param("instanceId"))
	s.respond(c, inst, err)
}

// purchase 购买卡片
// @Summary 购买卡片
// @Description 按场次购买卡片，余额不足返回 402
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path string true "玩家ID"
// @Param request body apiclient.PurchaseRequest true "购买请求"
// @Success 200 {array} apiclient.Instance
// @Failure 400 {object} apiclient.ErrorBody
// @Failure 401 {object} apiclient.ErrorBody
// @Failure 402 {object} apiclient.ErrorBody
// @Router /api/v1/users/{userId}/purchase [post]
func (s *Server) purchase(c *gin.Context) {
	if s.fail(c, OpPurchase) {
		return
	}
	var req apiclient.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, apperrors.New(apperrors.ErrInvalidPurchase))
		return
	}
	if !s.checkPIN(req.PIN) {
		middleware.Abort(c, apperrors.New(apperrors.ErrInvalidPIN))
		return
	}
	instances, err := s.store.Purchase(c.Param("userId"), &req)
	if err == nil {
		s.logger.Info("购买成功",
			zap.String("user_id", c.Param("userId")),
			zap.String("definition_id", req.DefinitionID),
			zap.Int("quantity", req.Quantity))
	}
	s.respond(c, instances, err)
}

func (s *Server) checkPIN(pin string) bool {
	if !utils.IsValidPINFormat(pin) {
		return false
	}
	ok, err := utils.VerifyPIN(pin, s.pinHash)
	if err != nil {
		s.logger.Error("校验PIN码失败", zap.Error(err))
		return false
	}
	return ok
}

// IssueToken 为玩家签发访问令牌
func (s *Server) IssueToken(userID string) (string, error) {
	return s.jwt.GenerateToken(userID)
}

// Store 内存数据，测试与模拟器用来注入故障或挂起卡片
func (s *Server) Store() *Store {
	return s.store
}

// Handler HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 在 addr 上开始监听，addr 端口为 0 时随机分配
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("参考服务器异常退出", zap.Error(err))
		}
	}()
	s.logger.Info("参考服务器已启动", zap.String("address", ln.Addr().String()))
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL 客户端访问地址
func (s *Server) BaseURL() string {
	return "http://" + s.Addr()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
