package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/config"
	"github.com/wfunc/instant-win/internal/database"
	"github.com/wfunc/instant-win/internal/errors"
	"github.com/wfunc/instant-win/internal/game"
	"github.com/wfunc/instant-win/internal/game/card"
	"github.com/wfunc/instant-win/internal/logger"
	"github.com/wfunc/instant-win/internal/mockapi"
	"github.com/wfunc/instant-win/internal/repository"
	"github.com/wfunc/instant-win/internal/utils"
	"github.com/wfunc/instant-win/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Simulator 命令行模拟器：购买卡片并自动游戏
type Simulator struct {
	cfg    *config.Config
	logger *zap.Logger

	mock    *mockapi.Server
	feed    *websocket.Feed
	manager *game.SessionManager
	session *game.ManagedSession

	userID   string
	pin      string
	cards    int
	progress bool

	gameOver chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		userID      = flag.String("user", "", "玩家ID（默认使用 api.user_id）")
		cards       = flag.Int("cards", 5, "自动游戏的卡片数量 (1-100)")
		pin         = flag.String("pin", "", "购买PIN（默认使用 mock.pin）")
		progress    = flag.Bool("progress", false, "显示进度条，不逐张打印结果")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	sim := NewSimulator(cfg, *userID, *pin, *cards)
	sim.progress = *progress

	if err := sim.Start(); err != nil {
		logger.Fatal("模拟器启动失败", zap.Error(err))
	}

	sim.WaitForShutdown()

	if err := sim.Shutdown(); err != nil {
		logger.Error("模拟器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("模拟器已退出")
}

// NewSimulator 创建模拟器
func NewSimulator(cfg *config.Config, userID, pin string, cards int) *Simulator {
	ctx, cancel := context.WithCancel(context.Background())

	if userID == "" {
		userID = cfg.API.UserID
	}
	if pin == "" {
		pin = cfg.Mock.PIN
	}
	if cards < game.MinPurchaseCount || cards > game.MaxPurchaseCount {
		cards = game.MinPurchaseCount
	}

	return &Simulator{
		cfg:      cfg,
		logger:   logger.GetLogger(),
		userID:   userID,
		pin:      pin,
		cards:    cards,
		gameOver: make(chan struct{}, game.MaxPurchaseCount),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 初始化组件并开始自动游戏
func (s *Simulator) Start() error {
	s.logger.Info("正在启动刮刮乐模拟器...",
		zap.String("version", Version),
		zap.String("user_id", s.userID),
		zap.String("game_id", s.cfg.Game.GameID),
		zap.Int("cards", s.cards))

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("配置已更新", zap.String("log_level", newCfg.Log.Level))
	})

	var listener game.Listener = &simListener{sim: s}
	if s.feed != nil {
		listener = s.feed.Listener(s.userID, listener)
	}
	ms, err := s.manager.GetOrCreate(s.ctx, s.userID, listener)
	if err != nil {
		return errors.Wrap(err, errors.ErrGameNotActive, "创建游戏会话失败")
	}
	s.session = ms

	if remaining := len(ms.Session.Instances()); remaining < s.cards {
		ms.Session.SetPurchaseCount(strconv.Itoa(s.cards - remaining))
		if err := ms.Session.Purchase(s.ctx, game.PurchaseParams{PIN: s.pin}); err != nil {
			return errors.Wrap(err, errors.ErrPurchaseDeclined, "购买卡片失败")
		}
	}

	ms.Session.SetAutoplay(s.ctx, true)

	s.wg.Add(1)
	go s.countCards()

	s.logger.Info("自动游戏已开始")
	return nil
}

// initComponents 初始化数据库、参考服务器与会话管理器
func (s *Simulator) initComponents() error {
	var (
		persister game.StatePersister = game.NewMemoryStatePersister()
		results   repository.CardResultRepository
	)

	if s.cfg.Database.Enabled {
		if err := database.Init(&s.cfg.Database, logger.WithModule("database")); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
		}
		db := database.GetDB()
		persister = game.NewCacheStatePersister(game.NewMemoryStatePersister(), game.NewDatabaseStatePersister(db))
		results = repository.NewCardResultRepository(db)
	}

	baseURL := s.cfg.API.BaseURL
	token := s.cfg.API.Token
	if s.cfg.Mock.Enabled {
		mock, err := mockapi.NewServer(mockapi.FromConfig(&s.cfg.Mock, &s.cfg.Security), logger.WithModule("mockapi"))
		if err != nil {
			return err
		}
		if err := mock.Start(s.cfg.Mock.Listen); err != nil {
			return errors.Wrap(err, errors.ErrNetwork, "启动参考服务器失败")
		}
		s.mock = mock
		baseURL = mock.BaseURL()
		if token, err = mock.IssueToken(s.userID); err != nil {
			return err
		}
	}

	if s.cfg.Feed.Enabled {
		jwt := utils.NewJWTManager(s.cfg.Security.JWT.Secret, time.Duration(s.cfg.Security.JWT.ExpireHours)*time.Hour)
		s.feed = websocket.NewFeed(jwt, logger.WithModule("feed"))
		if err := s.feed.Start(s.cfg.Feed.Listen); err != nil {
			return errors.Wrap(err, errors.ErrNetwork, "启动事件推送服务失败")
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.feed.Run(s.ctx)
		}()
	}

	s.manager = game.NewSessionManager(&game.SessionConfig{
		Logger: logger.WithModule("game"),
		Game:   &s.cfg.Game,
		NewAPI: func(userID string) (game.GameAPI, error) {
			return apiclient.NewClient(&apiclient.ClientConfig{
				BaseURL:    baseURL,
				Token:      token,
				UserID:     userID,
				Timeout:    s.cfg.API.Timeout,
				RetryCount: s.cfg.API.RetryCount,
			}, logger.WithModule("apiclient")), nil
		},
		Persister:      persister,
		Results:        results,
		SessionTimeout: time.Hour,
	})
	return nil
}

// countCards 打印每张结束的卡片，达到数量后关闭自动游戏
func (s *Simulator) countCards() {
	defer s.wg.Done()

	var bar *pb.ProgressBar
	if s.progress {
		bar = pb.StartNew(s.cards)
	}

	var played, wager, payout int64
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.gameOver:
		}

		res := s.session.Session.LastResult()
		if s.feed != nil {
			s.feed.PushResult(s.userID, res)
		}
		played++
		wager += res.WagerCents
		payout += res.PayoutCents
		if bar != nil {
			bar.Increment()
		} else {
			fmt.Printf("#%-3d %-24s 投注 %6.2f  派彩 %8.2f  %-6s %s\n",
				played, res.InstanceID,
				float64(res.WagerCents)/100, float64(res.PayoutCents)/100,
				res.WinLevel, res.Outcome)
		}

		if played >= int64(s.cards) {
			s.session.Session.SetAutoplay(s.ctx, false)
			if bar != nil {
				bar.Finish()
			}
			rtp := 0.0
			if wager > 0 {
				rtp = float64(payout) / float64(wager) * 100
			}
			fmt.Printf("共 %d 张  投注 %.2f  派彩 %.2f  RTP %.1f%%\n",
				played, float64(wager)/100, float64(payout)/100, rtp)
			if bal, ok := s.session.Session.Balance(); ok {
				fmt.Printf("余额 %.2f %s\n", float64(bal.AmountCents)/100, bal.Currency)
			}
			close(s.done)
			return
		}
	}
}

// WaitForShutdown 等待全部卡片结束或退出信号
func (s *Simulator) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.done:
	}
}

// Shutdown 关闭会话、参考服务器与数据库
func (s *Simulator) Shutdown() error {
	s.logger.Info("正在关闭模拟器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	if s.manager != nil {
		s.manager.CloseAll()
	}

	if s.feed != nil {
		if err := s.feed.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("关闭事件推送服务失败", zap.Error(err))
		}
	}

	if s.mock != nil {
		if err := s.mock.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("关闭参考服务器失败", zap.Error(err))
		}
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// simListener 把会话事件转成日志，卡片结束时通知计数协程
type simListener struct {
	sim *Simulator
}

func (l *simListener) OnStateChange(from, to game.GameState) {
	if to == game.StateGameOver {
		select {
		case l.sim.gameOver <- struct{}{}:
		default:
		}
	}
}

func (l *simListener) OnPurchaseConfirmed(instances []apiclient.Instance) {
	l.sim.logger.Info("购买成功", zap.Int("instances", len(instances)))
}

func (l *simListener) OnGroupTrigger(group card.GroupKind, active bool) {
	l.sim.logger.Debug("分组触发", zap.Stringer("group", group), zap.Bool("active", active))
}

func (l *simListener) OnError(kind game.ErrorKind, err error) {
	l.sim.logger.Warn("游戏错误", zap.String("kind", kind.String()), zap.Error(err))
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("刮刮乐模拟器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("刮刮乐模拟器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  instant-win-simulator [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  INSTANT_WIN_API_BASE_URL     游戏会话API地址")
	fmt.Println("  INSTANT_WIN_MOCK_ENABLED     启动内置参考服务器")
	fmt.Println("  INSTANT_WIN_FEED_ENABLED     启动WebSocket事件推送")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  instant-win-simulator -config=config/config.yaml -cards=10")
	fmt.Println("  instant-win-simulator -cards=100 -progress")
	fmt.Println("  instant-win-simulator -version")
}
