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

// requestGameOverLocked 请求进入 GAME_OVER；结束请求在锁外由 flush 发起，
// 记账完成后转换才会提交。
func (s *Session) requestGameOverLocked(ctx context.Context) {
	s.sm.Request(EventGameOver)
	if !s.completing && !s.bookkept {
		s.completing = true
		s.completionPending = true
	}
	s.sm.Drain(ctx)
}

// runCompletion 向服务端结束当前卡片。
// 403 视为挂起但继续；409 时若服务端已结束则按结束处理，否则放弃本次结束；
// 其他错误重新同步卡片并设置结束错误标记。
func (s *Session) runCompletion(ctx context.Context) {
	s.mu.Lock()
	inst := s.currentLocked()
	if !s.completing || s.closed || inst == nil {
		s.completing = false
		s.mu.Unlock()
		return
	}
	instanceID := inst.InstanceID
	epoch := s.epoch
	s.mu.Unlock()

	resp, err := s.api.Complete(ctx, instanceID)

	outcome := OutcomeCompleted
	aborted := false
	var (
		list    []apiclient.Instance
		listErr error
	)
	switch {
	case err == nil:
	case apperrors.StatusOf(err) == http.StatusForbidden:
		outcome = OutcomeHeldProceed
		s.logger.Info("卡片被挂起，按结束继续", zap.String("instance_id", instanceID))
	case apperrors.StatusOf(err) == http.StatusConflict:
		if ci := conflictInstance(err); ci != nil && ci.Completed() {
			resp = ci
			break
		}
		list, listErr = s.api.ListInstances(ctx)
		if listErr != nil || !completedOrGone(list, instanceID) {
			aborted = true
		} else {
			resp = findInstance(list, instanceID)
		}
	default:
		outcome = OutcomeFailed
		list, listErr = s.api.ListInstances(ctx)
	}

	var balance *apiclient.Balance
	if outcome == OutcomeCompleted && !aborted {
		var balErr error
		if balance, balErr = s.api.GetBalance(ctx); balErr != nil {
			s.logger.Warn("刷新余额失败", zap.Error(balErr))
		}
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.completing = false

	switch {
	case aborted:
		s.sm.Cancel(EventGameOver)
		s.logger.Info("结束冲突，卡片仍未结束，放弃本次结束",
			zap.String("instance_id", instanceID),
			zap.NamedError("list_error", listErr))
		if s.autoPlay {
			s.afterAutoplayLocked(s.cfg.AutoRevealDelay, func(ctx context.Context) {
				s.revealAll(ctx, nil)
			})
		}

	case outcome == OutcomeFailed:
		s.completeError = true
		s.lastResult.Outcome = OutcomeFailed
		s.sm.Cancel(EventGameOver)
		if listErr != nil {
			s.logger.Error("重新同步卡片失败", zap.Error(listErr))
		} else {
			s.refreshInstancesLocked(list)
		}
		s.logger.Warn("结束卡片失败", zap.String("instance_id", instanceID), zap.Error(err))
		failure := apperrors.New(apperrors.ErrCompleteFailed).WithCause(err)
		s.emit(func(l Listener) { l.OnError(ErrorComplete, failure) })

	default:
		cur := s.currentLocked()
		if resp != nil {
			s.applyServerInstanceLocked(resp)
			if resp.GameplayState.PayoutCents > 0 || s.lastResult.PayoutCents == 0 {
				s.lastResult.PayoutCents = cur.GameplayState.PayoutCents
				s.lastResult.WinLevel = card.WinLevelFor(cur.GameplayState.PayoutCents, s.wagerLocked(cur))
			}
		}
		if outcome == OutcomeCompleted {
			cur.State = apiclient.InstanceCompleted
		}
		if balance != nil {
			s.balance = balance
		}
		s.lastResult.Outcome = outcome
		s.bookkept = true
		logger.LogGameEvent(s.logger, "instance_completed", instanceID, map[string]interface{}{
			"outcome":      outcome.String(),
			"payout_cents": s.lastResult.PayoutCents,
			"win_level":    s.lastResult.WinLevel.String(),
		})
		s.sm.Request(EventGameOver)
		s.sm.Drain(ctx)
	}
	s.mu.Unlock()
}

// completedOrGone 卡片在服务端已结束或已不在未结束列表中
func completedOrGone(list []apiclient.Instance, instanceID string) bool {
	inst := findInstance(list, instanceID)
	return inst == nil || inst.Completed() || inst.State == apiclient.InstanceInvalidated
}

func findInstance(list []apiclient.Instance, instanceID string) *apiclient.Instance {
	for i := range list {
		if list[i].InstanceID == instanceID {
			return &list[i]
		}
	}
	return nil
}

// enterGameOver 进入 GAME_OVER：最后一张卡片延迟后重新初始化，否则自动游戏延迟切换下一张
func (s *Session) enterGameOver(ctx context.Context, from, to GameState) error {
	remaining := s.remainingLocked()
	if remaining == 0 {
		epoch := s.epoch
		s.logger.Info("最后一张卡片已结束", zap.Duration("delay", s.cfg.LastCardDelay))
		s.sched.After(s.cfg.LastCardDelay, func() {
			s.mu.Lock()
			stale := epoch != s.epoch || s.closed
			s.mu.Unlock()
			if stale {
				return
			}
			if err := s.Initialize(s.ctx); err != nil {
				s.logger.Error("重新初始化失败", zap.Error(err))
			}
		})
		return nil
	}
	if s.autoPlay {
		s.afterAutoplayLocked(s.cfg.NextInstanceDelay, s.advance)
	}
	return nil
}
