package logger

import (
	"time"

	"go.uber.org/zap"
)

// LogGameEvent 记录游戏事件，log 为空时使用 game 模块日志器
func LogGameEvent(log *zap.Logger, event string, instanceID string, data map[string]interface{}) {
	if log == nil {
		log = WithModule("game")
	}
	fields := make([]zap.Field, 0, len(data)+2)
	fields = append(fields, zap.String("event", event))
	if instanceID != "" {
		fields = append(fields, zap.String("instance_id", instanceID))
	}
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}
	log.Info("game_event", fields...)
}

// LogAPICall 记录游戏会话API调用，失败记为警告，log 为空时使用 api 模块日志器
func LogAPICall(log *zap.Logger, method, path string, status int, latency time.Duration, requestID string, err error) {
	if log == nil {
		log = WithModule("api")
	}
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("latency", latency),
	}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if err != nil {
		log.Warn("api_call_failed", append(fields, zap.Error(err))...)
		return
	}
	log.Debug("api_call", fields...)
}
