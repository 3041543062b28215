package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RecoveryPlan 恢复计划：重新初始化时要恢复的玩家偏好与卡片
type RecoveryPlan struct {
	StakeIndex       int
	PurchaseCount    int
	AutoPlay         bool
	ResumeInstanceID string // 中断时已结算或即将结算的卡片，初始化时优先定位
	FromState        GameState
}

// RecoveryManager 游戏恢复管理器
type RecoveryManager struct {
	logger    *zap.Logger
	persister StatePersister
	timeout   time.Duration // 状态过期时间
	now       func() time.Time
}

// NewRecoveryManager 创建恢复管理器
func NewRecoveryManager(logger *zap.Logger, persister StatePersister, timeout time.Duration) *RecoveryManager {
	return &RecoveryManager{
		logger:    logger,
		persister: persister,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Recover 读取上次保存的玩家状态并生成恢复计划。
// 状态机本身总是从 INITIALIZING 重新开始，这里只决定要带回哪些偏好。
func (rm *RecoveryManager) Recover(ctx context.Context, userID, gameID string) (*RecoveryPlan, error) {
	key := StateKey(userID, gameID)
	stateData, err := rm.persister.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("加载玩家状态失败: %w", err)
	}

	// 检查状态是否过期
	if rm.timeout > 0 && rm.now().Sub(stateData.LastUpdate) > rm.timeout {
		rm.logger.Warn("玩家状态已过期",
			zap.String("key", key),
			zap.Time("last_update", stateData.LastUpdate),
			zap.Duration("timeout", rm.timeout))

		if err := rm.persister.Delete(ctx, key); err != nil {
			rm.logger.Error("删除过期状态失败", zap.Error(err))
		}
		return nil, errors.New("玩家状态已过期")
	}

	plan := &RecoveryPlan{
		StakeIndex:    stateData.StakeIndex,
		PurchaseCount: stateData.PurchaseCount,
		FromState:     stateData.CurrentState,
	}
	rm.getRecoveryStrategy(stateData.CurrentState)(stateData, plan)

	rm.logger.Info("玩家状态恢复成功",
		zap.String("key", key),
		zap.String("state", string(stateData.CurrentState)),
		zap.Bool("auto_play", plan.AutoPlay))
	return plan, nil
}

// getRecoveryStrategy 根据中断时的状态获取恢复策略
func (rm *RecoveryManager) getRecoveryStrategy(state GameState) func(*PlayerStateData, *RecoveryPlan) {
	strategies := map[GameState]func(*PlayerStateData, *RecoveryPlan){
		StateAutoPlaying:   rm.recoverAutoPlaying,
		StateRevealed:      rm.recoverRevealed,
		StateWinAnimations: rm.recoverRevealed,
		StateGameOver:      rm.recoverRevealed,
	}

	if strategy, exists := strategies[state]; exists {
		return strategy
	}
	// 默认策略：只恢复投注额与购买数量
	return rm.recoverPreferences
}

// recoverAutoPlaying 中断于自动游戏，继续自动游戏
func (rm *RecoveryManager) recoverAutoPlaying(data *PlayerStateData, plan *RecoveryPlan) {
	plan.AutoPlay = true
	rm.logger.Info("从自动游戏恢复", zap.String("instance_id", data.InstanceID))
}

// recoverRevealed 中断于刮开之后，优先回到那张卡片完成结算
func (rm *RecoveryManager) recoverRevealed(data *PlayerStateData, plan *RecoveryPlan) {
	plan.AutoPlay = data.AutoPlay
	plan.ResumeInstanceID = data.InstanceID
	rm.logger.Info("从结算阶段恢复",
		zap.String("state", string(data.CurrentState)),
		zap.String("instance_id", data.InstanceID))
}

func (rm *RecoveryManager) recoverPreferences(data *PlayerStateData, plan *RecoveryPlan) {
	plan.AutoPlay = data.AutoPlay
}
