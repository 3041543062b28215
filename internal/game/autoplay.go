package game

import (
	"context"
	"time"

	"github.com/wfunc/instant-win/internal/logger"
	"go.uber.org/zap"
)

// SetAutoplay 开关自动游戏。
// 开启后按 刮开、判定、结束、下一张 的顺序无需操作地循环，关闭后已排定的自动步骤全部失效。
func (s *Session) SetAutoplay(ctx context.Context, on bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := s.autoPlay != on
	s.autoPlay = on

	switch state := s.sm.GetState(); {
	case on && (state == StateStandBy || state == StatePlaying):
		s.sm.Request(EventAutoplayOn)
	case !on && state == StateAutoPlaying:
		s.sm.Request(EventAutoplayOff)
	case on && changed && state == StateGameOver && s.bookkept && s.remainingLocked() > 0:
		s.afterAutoplayLocked(s.cfg.NextInstanceDelay, s.advance)
	case on && changed && state == StateWinAnimations:
		s.afterAutoplayLocked(s.cfg.WinAnimationDelay, s.WinAnimationComplete)
	}
	s.sm.Drain(ctx)

	id := ""
	if inst := s.currentLocked(); inst != nil {
		id = inst.InstanceID
	}
	logger.LogGameEvent(s.logger, "autoplay", id, map[string]interface{}{
		"on":    on,
		"state": string(s.sm.GetState()),
	})
	s.persistLocked()
	s.mu.Unlock()

	s.flush(ctx)
}

// AutoPlay 自动游戏是否开启
func (s *Session) AutoPlay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoPlay
}

// enterAutoPlaying 进入 AUTO_PLAYING 后延迟发起一键刮开
func (s *Session) enterAutoPlaying(ctx context.Context, from, to GameState) error {
	s.afterAutoplayLocked(s.cfg.AutoRevealDelay, func(ctx context.Context) {
		s.revealAll(ctx, func() bool {
			return s.sm.GetState() == StateAutoPlaying
		})
	})
	return nil
}

// afterAutoplayLocked 延迟执行自动游戏步骤；到期时卡片已切换、自动游戏已关闭或会话已关闭则放弃
func (s *Session) afterAutoplayLocked(d time.Duration, fn func(ctx context.Context)) {
	epoch := s.epoch
	s.sched.After(d, func() {
		s.mu.Lock()
		live := epoch == s.epoch && s.autoPlay && !s.closed
		s.mu.Unlock()
		if !live {
			s.logger.Debug("自动游戏步骤已失效", zap.Uint64("epoch", epoch))
			return
		}
		fn(s.ctx)
	})
}
