package game

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GameState 游戏状态枚举
type GameState string

const (
	StateInitializing  GameState = "INITIALIZING"   // 加载会话与卡片
	StateSetup         GameState = "SETUP"          // 卡片数据已解析
	StateStandBy       GameState = "STAND_BY"       // 等待玩家操作
	StatePlaying       GameState = "PLAYING"        // 手动刮开中
	StateAutoPlaying   GameState = "AUTO_PLAYING"   // 自动游戏
	StateRevealed      GameState = "REVEALED"       // 全部刮开
	StateWinAnimations GameState = "WIN_ANIMATIONS" // 中奖动画
	StateGameOver      GameState = "GAME_OVER"      // 本张结束
)

// 状态机事件
const (
	EventBootstrapped = "bootstrapped"
	EventParsed       = "parsed"
	EventReveal       = "reveal"
	EventAllRevealed  = "all_revealed"
	EventWin          = "win"
	EventGameOver     = "game_over"
	EventNext         = "next"
	EventAutoplayOn   = "autoplay_on"
	EventAutoplayOff  = "autoplay_off"
	EventReset        = "reset"
)

// AllStates 全部状态
var AllStates = []GameState{
	StateInitializing, StateSetup, StateStandBy, StatePlaying,
	StateAutoPlaying, StateRevealed, StateWinAnimations, StateGameOver,
}

// StateTransition 状态转换定义。
// 同一 From+Event 可以有多条转换，按注册顺序取第一条 Guard 通过的。
type StateTransition struct {
	From   GameState
	Event  string
	To     GameState
	Guard  func() bool
	Action func(ctx context.Context, from, to GameState) error
}

// StateMachine 排队式状态机：Request 只入队，Step 每次至多提交一个转换。
// Guard 暂不满足的请求留在队列中，当前状态下无对应转换的请求被丢弃。
// 不做并发保护，由所属 Session 在锁内驱动。
type StateMachine struct {
	currentState GameState
	transitions  map[string][]StateTransition
	queue        []string
	logger       *zap.Logger
	lastUpdate   time.Time
	now          func() time.Time

	onStateChange func(from, to GameState, event string)
}

// NewStateMachine 创建状态机，初始状态为 INITIALIZING
func NewStateMachine(logger *zap.Logger, now func() time.Time) *StateMachine {
	if now == nil {
		now = time.Now
	}
	return &StateMachine{
		currentState: StateInitializing,
		transitions:  make(map[string][]StateTransition),
		logger:       logger,
		now:          now,
		lastUpdate:   now(),
	}
}

// AddTransition 添加状态转换
func (sm *StateMachine) AddTransition(transition StateTransition) {
	key := sm.transitionKey(transition.From, transition.Event)
	sm.transitions[key] = append(sm.transitions[key], transition)
}

// transitionKey 生成转换键
func (sm *StateMachine) transitionKey(state GameState, event string) string {
	return fmt.Sprintf("%s:%s", state, event)
}

// Request 请求事件，重复的未处理请求只保留一个
func (sm *StateMachine) Request(event string) {
	for _, e := range sm.queue {
		if e == event {
			return
		}
	}
	sm.queue = append(sm.queue, event)
}

// Cancel 撤销未处理的请求
func (sm *StateMachine) Cancel(event string) bool {
	for i, e := range sm.queue {
		if e == event {
			sm.queue = append(sm.queue[:i], sm.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Pending 未处理的请求
func (sm *StateMachine) Pending() []string {
	return append([]string(nil), sm.queue...)
}

// IsPending 事件是否在队列中
func (sm *StateMachine) IsPending(event string) bool {
	for _, e := range sm.queue {
		if e == event {
			return true
		}
	}
	return false
}

// Step 按入队顺序检查请求并至多提交一个转换，返回是否发生了转换
func (sm *StateMachine) Step(ctx context.Context) (bool, error) {
	kept := sm.queue[:0]
	var (
		chosen *StateTransition
		event  string
		rest   []string
	)
	for i, e := range sm.queue {
		transitions, ok := sm.transitions[sm.transitionKey(sm.currentState, e)]
		if !ok {
			sm.logger.Debug("丢弃无效的状态请求",
				zap.String("state", string(sm.currentState)),
				zap.String("event", e))
			continue
		}
		if t := firstAllowed(transitions); t != nil {
			chosen, event = t, e
			rest = sm.queue[i+1:]
			break
		}
		kept = append(kept, e)
	}
	if chosen == nil {
		sm.queue = kept
		return false, nil
	}
	sm.queue = append(kept, rest...)

	from := sm.currentState
	if chosen.Action != nil {
		if err := chosen.Action(ctx, from, chosen.To); err != nil {
			return false, fmt.Errorf("状态转换失败 %s -> %s: %w", from, chosen.To, err)
		}
	}

	sm.currentState = chosen.To
	sm.lastUpdate = sm.now()
	if chosen.To == StateInitializing {
		sm.queue = sm.queue[:0]
	}

	sm.logger.Info("状态转换",
		zap.String("from", string(from)),
		zap.String("to", string(chosen.To)),
		zap.String("event", event))

	if sm.onStateChange != nil {
		sm.onStateChange(from, chosen.To, event)
	}
	return true, nil
}

// Drain 连续执行 Step 直到没有可提交的转换
func (sm *StateMachine) Drain(ctx context.Context) int {
	n := 0
	for i := 0; i < 32; i++ {
		moved, err := sm.Step(ctx)
		if err != nil {
			sm.logger.Error("状态转换失败", zap.Error(err))
			continue
		}
		if !moved {
			break
		}
		n++
	}
	return n
}

func firstAllowed(transitions []StateTransition) *StateTransition {
	for i := range transitions {
		if transitions[i].Guard == nil || transitions[i].Guard() {
			return &transitions[i]
		}
	}
	return nil
}

// GetState 获取当前状态
func (sm *StateMachine) GetState() GameState {
	return sm.currentState
}

// LastUpdate 最后一次转换时间
func (sm *StateMachine) LastUpdate() time.Time {
	return sm.lastUpdate
}

// OnStateChange 设置状态变更回调
func (sm *StateMachine) OnStateChange(fn func(from, to GameState, event string)) {
	sm.onStateChange = fn
}

// CanTransition 当前状态下事件是否存在可通过的转换
func (sm *StateMachine) CanTransition(event string) bool {
	transitions, ok := sm.transitions[sm.transitionKey(sm.currentState, event)]
	return ok && firstAllowed(transitions) != nil
}

// GetValidEvents 获取当前状态下的有效事件
func (sm *StateMachine) GetValidEvents() []string {
	var events []string
	prefix := string(sm.currentState) + ":"
	for key := range sm.transitions {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			events = append(events, key[len(prefix):])
		}
	}
	return events
}

// Reset 强制回到 INITIALIZING 并清空请求队列
func (sm *StateMachine) Reset() {
	sm.currentState = StateInitializing
	sm.queue = sm.queue[:0]
	sm.lastUpdate = sm.now()
}
