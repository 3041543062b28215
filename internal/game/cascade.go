package game

import (
	"context"
	"time"

	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/config"
	"github.com/wfunc/instant-win/internal/game/card"
	"github.com/wfunc/instant-win/internal/logger"
	"go.uber.org/zap"
)

// Condition 分组刮开的前置条件
type Condition func(flags card.FeatureFlags, store *card.Store) bool

// FeatureEnabled 分组对应的玩法已启用
func FeatureEnabled(kind card.GroupKind) Condition {
	return func(flags card.FeatureFlags, _ *card.Store) bool {
		return flags.Enabled(kind)
	}
}

// HasClosed 分组中还有未刮开的号码
func HasClosed(kind card.GroupKind) Condition {
	return func(_ card.FeatureFlags, store *card.Store) bool {
		return store.Len(kind) > 0 && !store.GroupRevealed(kind)
	}
}

// RevealStep 分组刮开的一步：刮开 Group 后等待 Duration
type RevealStep struct {
	Group      card.GroupKind
	Duration   time.Duration
	Conditions []Condition
}

func (st RevealStep) eligible(flags card.FeatureFlags, store *card.Store) bool {
	for _, cond := range st.Conditions {
		if !cond(flags, store) {
			return false
		}
	}
	return true
}

// CascadeRegistry 按游戏ID配置的分组刮开顺序，空键为默认配置
type CascadeRegistry map[string][]RevealStep

// Steps 获取游戏的分组刮开配置
func (r CascadeRegistry) Steps(gameID string) []RevealStep {
	if steps, ok := r[gameID]; ok {
		return steps
	}
	return r[""]
}

var defaultGroupDurations = map[card.GroupKind]time.Duration{
	card.GroupLucky:      1000 * time.Millisecond,
	card.GroupUser:       1500 * time.Millisecond,
	card.GroupMatch3:     1200 * time.Millisecond,
	card.GroupPrizeLot:   800 * time.Millisecond,
	card.GroupBonus:      800 * time.Millisecond,
	card.GroupMultiplier: 600 * time.Millisecond,
}

// DefaultCascades 默认配置：按分组默认顺序逐组刮开，时长可由 game.group_durations 覆盖
func DefaultCascades(cfg *config.GameConfig) CascadeRegistry {
	steps := make([]RevealStep, 0, len(card.AllGroups))
	for _, kind := range card.AllGroups {
		steps = append(steps, RevealStep{
			Group:      kind,
			Duration:   cfg.GroupDuration(kind.String(), defaultGroupDurations[kind]),
			Conditions: []Condition{FeatureEnabled(kind), HasClosed(kind)},
		})
	}
	return CascadeRegistry{"": steps}
}

// routeRevealedLocked 卡片已全部刮开时，一键刮开改为推进对应的状态转换
func (s *Session) routeRevealedLocked(ctx context.Context) (routed bool, next bool) {
	switch s.sm.GetState() {
	case StateRevealed:
		s.onRevealedLocked(ctx)
		return true, false
	case StateWinAnimations:
		s.requestGameOverLocked(ctx)
		return true, false
	case StateGameOver:
		return true, true
	default:
		return false, false
	}
}

// beginBulkRevealLocked 进入一键刮开：整卡事务开始，返回是否可以继续
func (s *Session) beginBulkRevealLocked(ctx context.Context) bool {
	if s.revealInProgress {
		s.logger.Debug("一键刮开进行中，忽略")
		return false
	}
	if !revealableState(s.sm.GetState()) || !s.hasCurrent() || s.inflight > 0 {
		s.logger.Debug("当前不能一键刮开",
			zap.String("state", string(s.sm.GetState())),
			zap.Int("inflight", s.inflight))
		return false
	}
	s.revealInProgress = true
	s.revealTxn = s.store.Begin()
	s.sm.Request(EventReveal)
	s.sm.Drain(ctx)
	return true
}

// RevealAll 定时逐个刮开全部号码。
// 每组内号码按 RevealItemDelay 依次刮开，下一组在上一组全部刮开后开始，
// 总时长为 RevealItemDelay 乘以启用分组的号码总数；全部完成后请求服务端确认。
func (s *Session) RevealAll(ctx context.Context) {
	s.revealAll(ctx, nil)
}

// revealAll guard 在锁内检查，返回 false 时放弃
func (s *Session) revealAll(ctx context.Context, guard func() bool) {
	s.mu.Lock()
	if guard != nil && !guard() {
		s.mu.Unlock()
		return
	}
	if routed, next := s.routeRevealedLocked(ctx); routed {
		s.mu.Unlock()
		s.flush(ctx)
		if next {
			s.advance(ctx)
		}
		return
	}
	if !s.beginBulkRevealLocked(ctx) {
		s.mu.Unlock()
		s.flush(ctx)
		return
	}

	epoch := s.epoch
	delay := s.cfg.RevealItemDelay
	var offset time.Duration
	total := 0
	for _, kind := range s.flags.EnabledGroups() {
		n := s.store.Len(kind)
		for i := 0; i < n; i++ {
			kind, i := kind, i
			s.sched.After(offset+time.Duration(i+1)*delay, func() {
				s.cascadeFire(epoch, kind, i)
			})
		}
		offset += time.Duration(n) * delay
		total += n
	}
	s.cascadeRemaining = total
	inst := s.currentLocked()
	logger.LogGameEvent(s.logger, "reveal_all", inst.InstanceID, map[string]interface{}{
		"items":    total,
		"duration": offset.String(),
	})
	if total == 0 {
		s.finalizeBulkReveal(ctx, epoch)
		return
	}
	s.mu.Unlock()
	s.flush(ctx)
}

// cascadeFire 定时刮开的单个号码
func (s *Session) cascadeFire(epoch uint64, kind card.GroupKind, index int) {
	ctx := s.ctx
	s.mu.Lock()
	if epoch != s.epoch || !s.revealInProgress {
		s.mu.Unlock()
		return
	}
	if slot, ok := s.store.Slot(kind, index); ok && !slot.Revealed() {
		s.store.SetState(kind, index, card.StateOpen)
		s.reclassifyLocked()
	}
	s.cascadeRemaining--
	if s.cascadeRemaining > 0 {
		s.mu.Unlock()
		return
	}
	s.finalizeBulkReveal(ctx, epoch)
}

// RevealAllGrouped 按分组逐组刮开，每组刮开后点亮分组动画并等待配置的时长
func (s *Session) RevealAllGrouped(ctx context.Context) {
	s.mu.Lock()
	if routed, next := s.routeRevealedLocked(ctx); routed {
		s.mu.Unlock()
		s.flush(ctx)
		if next {
			s.advance(ctx)
		}
		return
	}
	if !s.beginBulkRevealLocked(ctx) {
		s.mu.Unlock()
		s.flush(ctx)
		return
	}
	steps := s.cascades.Steps(s.cfg.GameID)
	inst := s.currentLocked()
	logger.LogGameEvent(s.logger, "reveal_all_grouped", inst.InstanceID, map[string]interface{}{
		"steps": len(steps),
	})
	s.runGroupStep(ctx, s.epoch, steps, 0)
}

// runGroupStep 从 from 开始执行第一个满足条件的分组；调用方持有锁，返回时已释放
func (s *Session) runGroupStep(ctx context.Context, epoch uint64, steps []RevealStep, from int) {
	for i := from; i < len(steps); i++ {
		step := steps[i]
		if !step.eligible(s.flags, s.store) {
			s.logger.Debug("跳过分组", zap.Stringer("group", step.Group))
			continue
		}
		s.openGroupLocked(step.Group)
		s.setTriggerLocked(step.Group, true)
		next := i + 1
		s.sched.After(step.Duration, func() {
			s.mu.Lock()
			if epoch != s.epoch || !s.revealInProgress {
				s.mu.Unlock()
				return
			}
			s.runGroupStep(s.ctx, epoch, steps, next)
		})
		s.mu.Unlock()
		s.flush(ctx)
		return
	}
	s.finalizeBulkReveal(ctx, epoch)
}

// openGroupLocked 刮开分组内全部未刮开的号码并重新判定
func (s *Session) openGroupLocked(kind card.GroupKind) {
	for i := 0; i < s.store.Len(kind); i++ {
		if slot, _ := s.store.Slot(kind, i); !slot.Revealed() {
			s.store.SetState(kind, i, card.StateOpen)
		}
	}
	s.reclassifyLocked()
}

func (s *Session) setTriggerLocked(kind card.GroupKind, active bool) {
	if s.triggers[kind] == active {
		return
	}
	if active {
		s.triggers[kind] = true
	} else {
		delete(s.triggers, kind)
	}
	s.emit(func(l Listener) { l.OnGroupTrigger(kind, active) })
}

func (s *Session) clearTriggersLocked() {
	for _, kind := range card.AllGroups {
		if s.triggers[kind] {
			s.setTriggerLocked(kind, false)
		}
	}
}

// finalizeBulkReveal 一键刮开结束后请求服务端确认。
// 失败时整卡回滚到开始前的快照并重新拉取卡片列表。调用方持有锁，返回时已释放。
func (s *Session) finalizeBulkReveal(ctx context.Context, epoch uint64) {
	s.clearTriggersLocked()
	inst := s.currentLocked()
	if inst == nil {
		s.revealInProgress = false
		s.mu.Unlock()
		s.flush(ctx)
		return
	}
	instanceID := inst.InstanceID
	txn := s.revealTxn
	s.mu.Unlock()
	s.flush(ctx)

	resp, err := s.api.RevealAll(ctx, instanceID)

	var list []apiclient.Instance
	var listErr error
	if err != nil && conflictInstance(err) == nil {
		list, listErr = s.api.ListInstances(ctx)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		txn.Commit()
		s.applyServerInstanceLocked(resp)
	case conflictInstance(err) != nil:
		txn.Commit()
		s.syncInstanceLocked(conflictInstance(err))
	default:
		txn.Rollback()
		s.revealError = true
		s.logger.Warn("一键刮开确认失败，已回滚",
			zap.String("instance_id", instanceID),
			zap.Error(err))
		s.emit(func(l Listener) { l.OnError(ErrorReveal, err) })
		if listErr != nil {
			s.logger.Error("重新同步卡片失败", zap.Error(listErr))
		} else {
			s.refreshInstancesLocked(list)
		}
	}
	s.revealTxn = nil
	s.revealInProgress = false
	s.cascadeRemaining = 0
	s.checkGameLocked(ctx)
	s.mu.Unlock()
	s.flush(ctx)
}
