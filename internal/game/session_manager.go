package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/config"
	"github.com/wfunc/instant-win/internal/game/card"
	"github.com/wfunc/instant-win/internal/models"
	"github.com/wfunc/instant-win/internal/repository"
	"go.uber.org/zap"
)

// APIFactory 为玩家创建服务端接口
type APIFactory func(userID string) (GameAPI, error)

// SessionManager 游戏会话管理器，每个玩家一个会话
type SessionManager struct {
	mu              sync.RWMutex
	sessions        map[string]*ManagedSession
	logger          *zap.Logger
	cfg             config.GameConfig
	newAPI          APIFactory
	persister       StatePersister
	results         repository.CardResultRepository
	recoveryManager *RecoveryManager
	clock           Clock
	sessionTimeout  time.Duration
	maxSessions     int
}

// ManagedSession 管理器中的会话及其统计
type ManagedSession struct {
	UserID  string
	Session *Session

	mu           sync.RWMutex
	startTime    time.Time
	lastActivity time.Time
	cardsPlayed  int
	totalWager   int64
	totalPayout  int64
	lastRecorded string
}

// SessionConfig 会话管理器配置
type SessionConfig struct {
	Logger         *zap.Logger
	Game           *config.GameConfig
	NewAPI         APIFactory
	Persister      StatePersister                  // 为空时使用内存
	Results        repository.CardResultRepository // 为空时不记录结果
	Clock          Clock
	SessionTimeout time.Duration
	MaxSessions    int
}

// NewSessionManager 创建会话管理器
func NewSessionManager(cfg *SessionConfig) *SessionManager {
	persister := cfg.Persister
	if persister == nil {
		persister = NewMemoryStatePersister()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 100
	}

	return &SessionManager{
		sessions:        make(map[string]*ManagedSession),
		logger:          cfg.Logger,
		cfg:             *cfg.Game,
		newAPI:          cfg.NewAPI,
		persister:       persister,
		results:         cfg.Results,
		recoveryManager: NewRecoveryManager(cfg.Logger, persister, cfg.SessionTimeout),
		clock:           clock,
		sessionTimeout:  cfg.SessionTimeout,
		maxSessions:     maxSessions,
	}
}

// GetOrCreate 获取玩家会话，不存在时创建并初始化
func (sm *SessionManager) GetOrCreate(ctx context.Context, userID string, listener Listener) (*ManagedSession, error) {
	if ms, err := sm.GetSession(userID); err == nil {
		return ms, nil
	}

	sm.mu.Lock()
	if ms, exists := sm.sessions[userID]; exists {
		sm.mu.Unlock()
		return ms, nil
	}
	// 检查会话数量限制
	if len(sm.sessions) >= sm.maxSessions {
		sm.mu.Unlock()
		return nil, errors.New("会话数量已达上限")
	}

	api, err := sm.newAPI(userID)
	if err != nil {
		sm.mu.Unlock()
		return nil, fmt.Errorf("创建接口客户端失败: %w", err)
	}

	now := sm.clock.Now()
	ms := &ManagedSession{
		UserID:       userID,
		startTime:    now,
		lastActivity: now,
	}
	if listener == nil {
		listener = NopListener{}
	}
	ms.Session = NewSession(api, &sm.cfg, userID, sm.logger,
		WithClock(sm.clock),
		WithPersister(sm.persister),
		WithRecovery(sm.recoveryManager),
		WithListener(&resultRecorder{manager: sm, session: ms, next: listener}),
	)
	sm.sessions[userID] = ms
	sm.mu.Unlock()

	sm.logger.Info("创建游戏会话", zap.String("user_id", userID))

	if err := ms.Session.Initialize(ctx); err != nil {
		sm.logger.Warn("会话初始化失败", zap.String("user_id", userID), zap.Error(err))
	}
	return ms, nil
}

// GetSession 获取会话
func (sm *SessionManager) GetSession(userID string) (*ManagedSession, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ms, exists := sm.sessions[userID]
	if !exists {
		return nil, fmt.Errorf("会话不存在: %s", userID)
	}

	// 更新活动时间
	ms.UpdateActivity(sm.clock.Now())
	return ms, nil
}

// RemoveSession 关闭并移除会话，关闭前保存最终状态
func (sm *SessionManager) RemoveSession(userID string) error {
	sm.mu.Lock()
	ms, exists := sm.sessions[userID]
	if !exists {
		sm.mu.Unlock()
		return fmt.Errorf("会话不存在: %s", userID)
	}
	delete(sm.sessions, userID)
	sm.mu.Unlock()

	ms.Session.Close()

	ms.mu.RLock()
	defer ms.mu.RUnlock()
	sm.logger.Info("移除游戏会话",
		zap.String("user_id", userID),
		zap.Int("cards_played", ms.cardsPlayed),
		zap.Int64("total_wager", ms.totalWager),
		zap.Int64("total_payout", ms.totalPayout))
	return nil
}

// CleanupInactiveSessions 清理不活跃的会话，返回清理数量
func (sm *SessionManager) CleanupInactiveSessions() int {
	now := sm.clock.Now()

	sm.mu.RLock()
	var toRemove []string
	for userID, ms := range sm.sessions {
		if now.Sub(ms.LastActivity()) > sm.sessionTimeout {
			toRemove = append(toRemove, userID)
		}
	}
	sm.mu.RUnlock()

	for _, userID := range toRemove {
		if err := sm.RemoveSession(userID); err == nil {
			sm.logger.Info("清理超时会话", zap.String("user_id", userID))
		}
	}
	return len(toRemove)
}

// StartCleanupTask 启动清理任务
func (sm *SessionManager) StartCleanupTask(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				sm.logger.Info("停止会话清理任务")
				return
			case <-ticker.C:
				sm.CleanupInactiveSessions()
			}
		}
	}()
}

// CloseAll 关闭全部会话
func (sm *SessionManager) CloseAll() {
	sm.mu.RLock()
	users := make([]string, 0, len(sm.sessions))
	for userID := range sm.sessions {
		users = append(users, userID)
	}
	sm.mu.RUnlock()

	for _, userID := range users {
		_ = sm.RemoveSession(userID)
	}
}

// GetActiveSessions 获取活跃会话数
func (sm *SessionManager) GetActiveSessions() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// GetSessionStats 获取会话统计
func (sm *SessionManager) GetSessionStats(userID string) (map[string]interface{}, error) {
	ms, err := sm.GetSession(userID)
	if err != nil {
		return nil, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	stats := map[string]interface{}{
		"user_id":      ms.UserID,
		"state":        ms.Session.State(),
		"start_time":   ms.startTime,
		"duration":     sm.clock.Now().Sub(ms.startTime).Seconds(),
		"cards_played": ms.cardsPlayed,
		"total_wager":  ms.totalWager,
		"total_payout": ms.totalPayout,
		"rtp":          0.0,
	}
	if ms.totalWager > 0 {
		stats["rtp"] = float64(ms.totalPayout) / float64(ms.totalWager) * 100
	}
	return stats, nil
}

// UpdateActivity 更新活动时间
func (ms *ManagedSession) UpdateActivity(now time.Time) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.lastActivity = now
}

// LastActivity 最后活动时间
func (ms *ManagedSession) LastActivity() time.Time {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.lastActivity
}

// CardsPlayed 已结束的卡片数
func (ms *ManagedSession) CardsPlayed() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.cardsPlayed
}

// recordResult 统计并保存一张结束的卡片，同一张卡片只记录一次
func (sm *SessionManager) recordResult(ms *ManagedSession, result Result) {
	ms.mu.Lock()
	if result.InstanceID == "" || ms.lastRecorded == result.InstanceID {
		ms.mu.Unlock()
		return
	}
	ms.lastRecorded = result.InstanceID
	ms.cardsPlayed++
	ms.totalWager += result.WagerCents
	ms.totalPayout += result.PayoutCents
	ms.lastActivity = sm.clock.Now()
	ms.mu.Unlock()

	if sm.results == nil {
		return
	}
	record := &models.CardResult{
		UserID:      ms.UserID,
		GameID:      sm.cfg.GameID,
		InstanceID:  result.InstanceID,
		SessionID:   result.SessionID,
		WagerCents:  result.WagerCents,
		PayoutCents: result.PayoutCents,
		WinLevel:    result.WinLevel.String(),
		Outcome:     result.Outcome.String(),
		PlayedAt:    sm.clock.Now(),
	}
	if err := sm.results.Create(context.Background(), record); err != nil {
		sm.logger.Error("保存卡片结果失败",
			zap.String("instance_id", result.InstanceID),
			zap.Error(err))
	}
}

// resultRecorder 在卡片进入 GAME_OVER 时记录结果，其余事件转发给调用方的监听
type resultRecorder struct {
	manager *SessionManager
	session *ManagedSession
	next    Listener
}

func (r *resultRecorder) OnStateChange(from, to GameState) {
	if to == StateGameOver {
		r.manager.recordResult(r.session, r.session.Session.LastResult())
	}
	r.next.OnStateChange(from, to)
}

func (r *resultRecorder) OnPurchaseConfirmed(instances []apiclient.Instance) {
	r.next.OnPurchaseConfirmed(instances)
}

func (r *resultRecorder) OnGroupTrigger(group card.GroupKind, active bool) {
	r.next.OnGroupTrigger(group, active)
}

func (r *resultRecorder) OnError(kind ErrorKind, err error) {
	r.next.OnError(kind, err)
}
