package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Mock     MockConfig     `mapstructure:"mock"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Security SecurityConfig `mapstructure:"security"`
}

// APIConfig 游戏会话API配置
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Token      string        `mapstructure:"token"`
	UserID     string        `mapstructure:"user_id"`
	RetryCount int           `mapstructure:"retry_count"`
}

// GameConfig 刮刮乐会话配置
type GameConfig struct {
	GameID            string                   `mapstructure:"game_id"`
	RevealItemDelay   time.Duration            `mapstructure:"reveal_item_delay"`   // 一键刮开时每个号码的间隔
	AutoRevealDelay   time.Duration            `mapstructure:"auto_reveal_delay"`   // 自动游戏进入后延迟刮开
	NextInstanceDelay time.Duration            `mapstructure:"next_instance_delay"` // 自动游戏切换下一张的延迟
	LastCardDelay     time.Duration            `mapstructure:"last_card_delay"`     // 最后一张结束后重新初始化的延迟
	WinAnimationDelay time.Duration            `mapstructure:"win_animation_delay"` // 自动游戏中奖动画时长
	GroupDurations    map[string]time.Duration `mapstructure:"group_durations"`     // 分组刮开动画时长
	DefaultPurchase   int                      `mapstructure:"default_purchase"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MockConfig 本地参考服务器配置
type MockConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Listen         string `mapstructure:"listen"`
	PIN            string `mapstructure:"pin"`
	InitialBalance int64  `mapstructure:"initial_balance"` // 分
	Mode           string `mapstructure:"mode"`
}

// FeedConfig 事件推送（WebSocket）配置
type FeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// GroupDuration 获取分组动画时长，未配置时返回fallback
func (g *GameConfig) GroupDuration(group string, fallback time.Duration) time.Duration {
	if d, ok := g.GroupDurations[strings.ToLower(group)]; ok && d > 0 {
		return d
	}
	return fallback
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Game.GameID == "" {
		return fmt.Errorf("game.game_id 不能为空")
	}
	if c.Game.RevealItemDelay < 0 || c.Game.AutoRevealDelay < 0 ||
		c.Game.NextInstanceDelay < 0 || c.Game.LastCardDelay < 0 || c.Game.WinAnimationDelay < 0 {
		return fmt.Errorf("game 延迟配置不能为负数")
	}
	if c.API.BaseURL == "" && !c.Mock.Enabled {
		return fmt.Errorf("api.base_url 不能为空")
	}
	return nil
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// Load 读取配置但不修改全局实例（测试及工具使用）
func Load(configPath string) (*Config, error) {
	_, loaded, err := load(configPath)
	return loaded, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	// 设置环境变量前缀
	vp.SetEnvPrefix("INSTANT_WIN")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 如果配置文件不存在，使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	loaded := &Config{}
	if err := vp.Unmarshal(loaded); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := loaded.Validate(); err != nil {
		return nil, nil, err
	}

	return vp, loaded, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// API默认配置
	v.SetDefault("api.base_url", "http://127.0.0.1:8090")
	v.SetDefault("api.timeout", "15s")
	v.SetDefault("api.user_id", "demo-user")
	v.SetDefault("api.retry_count", 2)

	// 游戏默认配置
	v.SetDefault("game.game_id", "lucky-7s")
	v.SetDefault("game.reveal_item_delay", "150ms")
	v.SetDefault("game.auto_reveal_delay", "500ms")
	v.SetDefault("game.next_instance_delay", "2s")
	v.SetDefault("game.last_card_delay", "5s")
	v.SetDefault("game.win_animation_delay", "3s")
	v.SetDefault("game.default_purchase", 1)

	// 数据库默认配置
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/instant-win.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "instant-win.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 参考服务器默认配置
	v.SetDefault("mock.enabled", false)
	v.SetDefault("mock.listen", "127.0.0.1:8090")
	v.SetDefault("mock.pin", "1234")
	v.SetDefault("mock.initial_balance", 10000)
	v.SetDefault("mock.mode", "release")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.listen", "127.0.0.1:8091")

	v.SetDefault("security.jwt.secret", "instant-win-dev-secret")
	v.SetDefault("security.jwt.expire_hours", 24)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载校验失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Println("配置已重新加载:", e.Name)
	})
}
