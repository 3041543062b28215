package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wfunc/instant-win/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.RWMutex
	once    sync.Once
	root    *zap.Logger
	modules map[string]*zap.Logger

	// level 全局级别，配置热更新时通过 SetLevel 调整
	level = zap.NewAtomicLevel()
)

// Init 初始化日志系统，只有第一次调用生效
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		var l *zap.Logger
		var m map[string]*zap.Logger
		if l, m, err = build(cfg); err != nil {
			return
		}
		mu.Lock()
		root, modules = l, m
		mu.Unlock()
	})
	return err
}

// sinks 日志输出目标
type sinks struct {
	encoder zapcore.Encoder
	writers []zapcore.WriteSyncer
	errors  zapcore.WriteSyncer
}

// core 以 enabler 过滤全部输出目标，错误日志另写一份
func (s *sinks) core(enabler zapcore.LevelEnabler) zapcore.Core {
	cores := make([]zapcore.Core, 0, len(s.writers)+1)
	for _, w := range s.writers {
		cores = append(cores, zapcore.NewCore(s.encoder, w, enabler))
	}
	if s.errors != nil {
		errEnabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.ErrorLevel && enabler.Enabled(l)
		})
		cores = append(cores, zapcore.NewCore(s.encoder, s.errors, errEnabler))
	}
	return zapcore.NewTee(cores...)
}

func build(cfg *config.LogConfig) (*zap.Logger, map[string]*zap.Logger, error) {
	level.SetLevel(parseLevel(cfg.Level))

	s, err := openSinks(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	l := zap.New(s.core(level), opts...)

	// 模块级别覆盖全局级别，输出目标与全局一致
	m := make(map[string]*zap.Logger, len(cfg.Modules))
	for name, lv := range cfg.Modules {
		m[name] = zap.New(s.core(parseLevel(lv)), opts...).Named(name)
	}
	return l, m, nil
}

func openSinks(cfg *config.LogConfig) (*sinks, error) {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "module",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	s := &sinks{}
	if cfg.Format == "json" {
		s.encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		s.encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	if output == "stdout" || output == "both" {
		s.writers = append(s.writers, zapcore.Lock(os.Stdout))
	}
	if output == "file" || output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		s.writers = append(s.writers, rotating(cfg.File, cfg.File.Filename))
		s.errors = rotating(cfg.File, "error.log")
	}
	if len(s.writers) == 0 {
		return nil, fmt.Errorf("不支持的日志输出: %s", cfg.Output)
	}
	return s, nil
}

// rotating 按大小轮转的日志文件
func rotating(cfg config.LogFileConfig, name string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, name),
		MaxSize:    cfg.MaxSize, // MB
		MaxAge:     cfg.MaxAge,  // 天
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
}

func parseLevel(s string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// GetLogger 获取全局日志器，未初始化时返回生产配置的默认日志器
func GetLogger() *zap.Logger {
	mu.RLock()
	l := root
	mu.RUnlock()
	if l == nil {
		l, _ = zap.NewProduction()
	}
	return l
}

// WithModule 获取模块日志器，未单独配置的模块沿用全局日志器
func WithModule(module string) *zap.Logger {
	mu.RLock()
	l, ok := modules[module]
	mu.RUnlock()
	if ok {
		return l
	}
	return GetLogger().Named(module)
}

// SetLevel 动态调整全局级别
func SetLevel(s string) {
	level.SetLevel(parseLevel(s))
}

// Level 当前全局级别
func Level() zapcore.Level {
	return level.Level()
}

// Sync 刷新日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return nil
	}
	return root.Sync()
}

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}
