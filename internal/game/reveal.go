package game

import (
	"context"
	"net/http"

	"github.com/wfunc/instant-win/internal/apiclient"
	apperrors "github.com/wfunc/instant-win/internal/errors"
	"github.com/wfunc/instant-win/internal/game/card"
	"github.com/wfunc/instant-win/internal/logger"
	"go.uber.org/zap"
)

// revealableState 允许刮开操作的状态
func revealableState(state GameState) bool {
	switch state {
	case StateStandBy, StatePlaying, StateAutoPlaying:
		return true
	default:
		return false
	}
}

// OpenNumber 刮开单个号码。
// 先在本地置为 OPEN 再请求服务端，失败时恢复到请求前的原值并设置刮开错误标记；
// 409 且携带权威状态时按服务端同步，不视为错误。
// 不满足前置条件（状态、玩法开关、号码已刮开）时只记录日志。
func (s *Session) OpenNumber(ctx context.Context, kind card.GroupKind, index int) error {
	s.mu.Lock()
	state := s.sm.GetState()
	if !revealableState(state) || s.revealInProgress {
		s.mu.Unlock()
		s.logger.Debug("当前不能刮开",
			zap.String("state", string(state)),
			zap.Stringer("group", kind),
			zap.Int("index", index))
		return nil
	}
	if !s.flags.Enabled(kind) {
		s.mu.Unlock()
		s.logger.Debug("玩法未启用", zap.Stringer("group", kind))
		return nil
	}
	slot, ok := s.store.Slot(kind, index)
	if !ok || slot.Revealed() {
		s.mu.Unlock()
		s.logger.Debug("号码不存在或已刮开", zap.Stringer("group", kind), zap.Int("index", index))
		return nil
	}

	inst := s.currentLocked()
	instanceID := inst.InstanceID
	epoch := s.epoch
	txn := s.store.BeginSlot(kind, index).Apply(func(st *card.Store) {
		st.SetState(kind, index, card.StateOpen)
	})
	s.inflight++
	s.sm.Request(EventReveal)
	s.sm.Drain(ctx)
	s.mu.Unlock()

	resp, err := s.api.RevealNumber(ctx, instanceID, slot.Content.NumberID)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	s.inflight--

	var result error
	switch {
	case err == nil:
		txn.Commit()
		s.applyServerInstanceLocked(resp)
		logger.LogGameEvent(s.logger, "number_revealed", instanceID, map[string]interface{}{
			"group": kind.String(),
			"index": index,
		})
	case conflictInstance(err) != nil:
		txn.Commit()
		s.syncInstanceLocked(conflictInstance(err))
		s.logger.Info("刮开冲突，已按服务端同步", zap.String("instance_id", instanceID))
	default:
		txn.Rollback()
		s.revealError = true
		result = apperrors.New(apperrors.ErrRevealFailed).WithCause(err)
		s.logger.Warn("刮开失败，已回滚",
			zap.String("instance_id", instanceID),
			zap.Stringer("group", kind),
			zap.Int("index", index),
			zap.Error(err))
		s.emit(func(l Listener) { l.OnError(ErrorReveal, err) })
	}

	s.checkGameLocked(ctx)
	s.resumeAutoplayLocked()
	s.mu.Unlock()

	s.flush(ctx)
	return result
}

// resumeAutoplayLocked 刮开请求全部返回后，补上因请求未返回而放弃的一键刮开
func (s *Session) resumeAutoplayLocked() {
	if s.inflight > 0 || s.revealInProgress || !s.autoPlay {
		return
	}
	if s.sm.GetState() != StateAutoPlaying || !s.hasCurrent() || s.store.AllRevealed(s.flags) {
		return
	}
	s.afterAutoplayLocked(s.cfg.AutoRevealDelay, func(ctx context.Context) {
		s.revealAll(ctx, func() bool {
			return s.sm.GetState() == StateAutoPlaying
		})
	})
}

// conflictInstance 409 响应中携带的权威卡片状态
func conflictInstance(err error) *apiclient.Instance {
	if apperrors.StatusOf(err) != http.StatusConflict {
		return nil
	}
	body, ok := apiclient.DecodeErrorBody(err)
	if !ok {
		return nil
	}
	return body.Instance
}

// checkGameLocked 全部启用分组刮开后进入 REVEALED 并判定输赢
func (s *Session) checkGameLocked(ctx context.Context) {
	if !revealableState(s.sm.GetState()) || s.revealInProgress || s.inflight > 0 {
		return
	}
	if !s.hasCurrent() || !s.store.AllRevealed(s.flags) {
		return
	}
	s.reclassifyLocked()
	s.sm.Request(EventAllRevealed)
	s.sm.Drain(ctx)
	if s.sm.GetState() == StateRevealed {
		s.onRevealedLocked(ctx)
	}
}

// onRevealedLocked 记录派彩与档位；有派彩进入中奖动画，否则请求结束
func (s *Session) onRevealedLocked(ctx context.Context) {
	inst := s.currentLocked()
	payout := inst.GameplayState.PayoutCents
	wager := s.wagerLocked(inst)
	s.lastResult = Result{
		InstanceID:  inst.InstanceID,
		SessionID:   inst.SessionID,
		WagerCents:  card.WagerCents(wager),
		PayoutCents: payout,
		WinLevel:    card.WinLevelFor(payout, wager),
		Outcome:     OutcomePending,
	}
	logger.LogGameEvent(s.logger, "revealed", inst.InstanceID, map[string]interface{}{
		"payout_cents": payout,
		"win_level":    s.lastResult.WinLevel.String(),
	})

	if payout > 0 {
		s.sm.Request(EventWin)
		s.sm.Drain(ctx)
		if s.sm.GetState() == StateWinAnimations && s.autoPlay {
			s.afterAutoplayLocked(s.cfg.WinAnimationDelay, s.WinAnimationComplete)
		}
		return
	}
	s.requestGameOverLocked(ctx)
}

// WinAnimationComplete 中奖动画播放完毕
func (s *Session) WinAnimationComplete(ctx context.Context) {
	s.mu.Lock()
	if s.sm.GetState() != StateWinAnimations {
		s.mu.Unlock()
		return
	}
	s.requestGameOverLocked(ctx)
	s.mu.Unlock()
	s.flush(ctx)
}
