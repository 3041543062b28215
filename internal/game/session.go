package game

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/config"
	apperrors "github.com/wfunc/instant-win/internal/errors"
	"github.com/wfunc/instant-win/internal/game/card"
	"github.com/wfunc/instant-win/internal/logger"
	"go.uber.org/zap"
)

// Option 会话选项
type Option func(*Session)

// WithClock 替换时钟
func WithClock(clock Clock) Option {
	return func(s *Session) { s.clock = clock }
}

// WithListener 设置事件监听
func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

// WithPersister 设置状态持久化
func WithPersister(p StatePersister) Option {
	return func(s *Session) { s.persister = p }
}

// WithRecovery 设置恢复管理器，首次初始化时恢复玩家偏好
func WithRecovery(rm *RecoveryManager) Option {
	return func(s *Session) { s.recovery = rm }
}

// WithCascades 替换分组刮开配置
func WithCascades(r CascadeRegistry) Option {
	return func(s *Session) { s.cascades = r }
}

// Session 一个玩家在一个游戏中的会话。
// 所有状态由 mu 保护，网络请求前释放锁、返回后重新加锁并校验 epoch。
type Session struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	api       GameAPI
	cfg       config.GameConfig
	userID    string
	logger    *zap.Logger
	clock     Clock
	sched     *Scheduler
	listener  Listener
	persister StatePersister
	recovery  *RecoveryManager
	cascades  CascadeRegistry

	sm        *StateMachine
	selector  *Selector
	store     *card.Store
	flags     card.FeatureFlags
	instances []apiclient.Instance
	current   int
	epoch     uint64 // 每次切换卡片递增，过期回调据此丢弃

	autoPlay          bool
	revealInProgress  bool
	revealTxn         *card.Txn
	cascadeRemaining  int
	inflight          int // 进行中的单个刮开请求
	triggers          map[card.GroupKind]bool
	revealError       bool
	completeError     bool
	completing        bool
	completionPending bool
	bookkept          bool // 结束记账完成，进入 GAME_OVER 的前提
	purchasing        bool
	restored          bool
	resumeInstanceID  string

	balance    *apiclient.Balance
	lastResult Result
	events     []func(Listener)
	pending    *PlayerStateData // 待保存的状态快照，由 flush 在锁外写入
	closed     bool
}

// NewSession 创建会话
func NewSession(api GameAPI, cfg *config.GameConfig, userID string, log *zap.Logger, opts ...Option) *Session {
	if log == nil {
		log = logger.WithModule("game")
	}
	s := &Session{
		api:      api,
		cfg:      *cfg,
		userID:   userID,
		logger:   log.With(zap.String("user_id", userID), zap.String("game_id", cfg.GameID)),
		listener: NopListener{},
		store:    card.NewStore(),
		triggers: make(map[card.GroupKind]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	if s.cascades == nil {
		s.cascades = DefaultCascades(cfg)
	}
	switch {
	case s.cfg.DefaultPurchase < MinPurchaseCount:
		s.cfg.DefaultPurchase = MinPurchaseCount
	case s.cfg.DefaultPurchase > MaxPurchaseCount:
		s.cfg.DefaultPurchase = MaxPurchaseCount
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sched = NewScheduler(s.clock)
	s.selector = NewSelector(s.logger)
	s.selector.purchaseCount = s.cfg.DefaultPurchase
	s.sm = NewStateMachine(s.logger, s.clock.Now)
	s.sm.OnStateChange(s.onStateChange)
	s.initTransitions()
	return s
}

// initTransitions 初始化状态转换规则
func (s *Session) initTransitions() {
	add := s.sm.AddTransition

	add(StateTransition{From: StateInitializing, Event: EventBootstrapped, To: StateSetup, Guard: s.hasCurrent})

	add(StateTransition{From: StateSetup, Event: EventParsed, To: StateAutoPlaying,
		Guard:  func() bool { return s.autoPlay },
		Action: s.enterAutoPlaying})
	add(StateTransition{From: StateSetup, Event: EventParsed, To: StateStandBy})

	add(StateTransition{From: StateStandBy, Event: EventReveal, To: StatePlaying})

	for _, from := range []GameState{StateStandBy, StatePlaying, StateAutoPlaying} {
		add(StateTransition{From: from, Event: EventAllRevealed, To: StateRevealed,
			Guard: func() bool { return s.store.AllRevealed(s.flags) }})
	}

	for _, from := range []GameState{StateStandBy, StatePlaying} {
		add(StateTransition{From: from, Event: EventAutoplayOn, To: StateAutoPlaying,
			Guard:  func() bool { return s.autoPlay },
			Action: s.enterAutoPlaying})
	}
	add(StateTransition{From: StateAutoPlaying, Event: EventAutoplayOff, To: StatePlaying,
		Guard: func() bool { return !s.autoPlay && s.store.AnyRevealed() }})
	add(StateTransition{From: StateAutoPlaying, Event: EventAutoplayOff, To: StateStandBy,
		Guard: func() bool { return !s.autoPlay }})

	add(StateTransition{From: StateRevealed, Event: EventWin, To: StateWinAnimations,
		Guard: func() bool { return s.lastResult.PayoutCents > 0 }})

	for _, from := range []GameState{StateRevealed, StateWinAnimations} {
		add(StateTransition{From: from, Event: EventGameOver, To: StateGameOver,
			Guard:  func() bool { return s.bookkept },
			Action: s.enterGameOver})
	}

	add(StateTransition{From: StateGameOver, Event: EventNext, To: StateInitializing})

	for _, from := range AllStates {
		add(StateTransition{From: from, Event: EventReset, To: StateInitializing})
	}
}

func (s *Session) onStateChange(from, to GameState, event string) {
	inst := s.currentLocked()
	id := ""
	if inst != nil {
		id = inst.InstanceID
	}
	logger.LogGameEvent(s.logger, "state_change", id, map[string]interface{}{
		"from":  string(from),
		"to":    string(to),
		"event": event,
	})
	if from != to {
		s.emit(func(l Listener) { l.OnStateChange(from, to) })
	}
	s.persistLocked()
}

// Initialize 拉取场次与卡片并进入 SETUP；没有卡片时停留在 INITIALIZING 等待购买
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrGameNotActive)
	}
	s.resetLocked(ctx, EventReset)
	epoch := s.epoch
	needRestore := s.recovery != nil && !s.restored
	s.mu.Unlock()

	var plan *RecoveryPlan
	if needRestore {
		var err error
		plan, err = s.recovery.Recover(ctx, s.userID, s.cfg.GameID)
		if err != nil {
			s.logger.Debug("没有可恢复的玩家状态", zap.Error(err))
		}
	}

	sessions, err := s.api.ListSessions(ctx)
	if err != nil {
		s.reportSyncError(err)
		return err
	}
	instances, err := s.api.ListInstances(ctx)
	if err != nil {
		s.reportSyncError(err)
		return err
	}
	balance, err := s.api.GetBalance(ctx)
	if err != nil {
		s.logger.Warn("刷新余额失败", zap.Error(err))
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	s.selector.SetSessions(sessions, s.cfg.GameID)
	if needRestore {
		s.restored = true
		s.applyRecoveryLocked(plan)
	}
	if balance != nil {
		s.balance = balance
	}
	s.setInstancesLocked(instances)
	s.bootstrapLocked(ctx)
	s.mu.Unlock()

	s.flush(ctx)
	return nil
}

// NextInstance 在 GAME_OVER 后切换到队列中的下一张，队列为空时重新初始化
func (s *Session) NextInstance(ctx context.Context) error {
	s.mu.Lock()
	if s.sm.GetState() != StateGameOver {
		state := s.sm.GetState()
		s.mu.Unlock()
		s.logger.Debug("当前状态不能切换下一张", zap.String("state", string(state)))
		return apperrors.Newf(apperrors.ErrGameStateError, "state=%s", state)
	}
	next := s.nextIndexLocked()
	if next < 0 {
		s.mu.Unlock()
		return s.Initialize(ctx)
	}
	s.resetLocked(ctx, EventNext)
	// 已结束并越过的卡片移出队列
	s.instances = s.instances[next:]
	s.current = 0
	s.bootstrapLocked(ctx)
	s.mu.Unlock()

	s.flush(ctx)
	return nil
}

// advance 自动游戏切换下一张，失败只记录日志
func (s *Session) advance(ctx context.Context) {
	if err := s.NextInstance(ctx); err != nil {
		s.logger.Warn("切换下一张失败", zap.Error(err))
	}
}

// Close 结束会话并取消全部定时器
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.persistLocked()
	pending := s.pending
	s.pending = nil
	s.closed = true
	s.epoch++
	n := s.sched.CancelAll()
	s.events = nil
	s.mu.Unlock()

	s.save(pending)
	s.cancel()
	s.logger.Info("会话已关闭", zap.Int("cancelled_timers", n))
}

// resetLocked 回到 INITIALIZING，取消定时器并清理本张卡片的状态
func (s *Session) resetLocked(ctx context.Context, event string) {
	s.epoch++
	s.sched.CancelAll()
	s.clearTriggersLocked()

	s.revealInProgress = false
	s.revealTxn = nil
	s.cascadeRemaining = 0
	s.inflight = 0
	s.revealError = false
	s.completeError = false
	s.completing = false
	s.completionPending = false
	s.bookkept = false
	s.store = card.NewStore()
	s.flags = card.FeatureFlags{}

	if s.sm.GetState() == StateInitializing && event != EventReset {
		return
	}
	s.sm.Request(event)
	s.sm.Drain(ctx)
	if s.sm.GetState() != StateInitializing {
		s.sm.Reset()
	}
}

// setInstancesLocked 按游戏过滤未结束的卡片并按创建时间排序
func (s *Session) setInstancesLocked(all []apiclient.Instance) {
	s.instances = s.filterInstancesLocked(all)
	s.current = 0
	if s.resumeInstanceID != "" {
		for i, inst := range s.instances {
			if inst.InstanceID == s.resumeInstanceID {
				s.current = i
				break
			}
		}
		s.resumeInstanceID = ""
	}
}

func (s *Session) filterInstancesLocked(all []apiclient.Instance) []apiclient.Instance {
	out := make([]apiclient.Instance, 0, len(all))
	for _, inst := range all {
		if inst.State == apiclient.InstanceCompleted || inst.State == apiclient.InstanceInvalidated {
			continue
		}
		if inst.GameID != "" && inst.GameID != s.cfg.GameID {
			continue
		}
		if inst.GameID == "" {
			if _, ok := s.selector.SessionByID(inst.SessionID); !ok {
				continue
			}
		}
		out = append(out, inst)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// bootstrapLocked 加载当前卡片并推进到 STAND_BY 或 AUTO_PLAYING
func (s *Session) bootstrapLocked(ctx context.Context) {
	if !s.hasCurrent() {
		s.logger.Info("没有可用的卡片，等待购买")
		s.persistLocked()
		return
	}
	inst := s.currentLocked()
	s.store = card.LoadStore(inst.GameplayState.Groups())
	s.flags = s.flagsForLocked(inst)
	s.lastResult = Result{
		InstanceID: inst.InstanceID,
		SessionID:  inst.SessionID,
		WagerCents: card.WagerCents(s.wagerLocked(inst)),
	}

	s.sm.Request(EventBootstrapped)
	s.sm.Request(EventParsed)
	s.sm.Drain(ctx)

	// 已全部刮开的卡片（例如上次中断）直接进入结算
	s.checkGameLocked(ctx)
}

// flagsForLocked 由场次定义的可选玩法得出开关，缺少定义时按实际存在的分组推导
func (s *Session) flagsForLocked(inst *apiclient.Instance) card.FeatureFlags {
	if sess, ok := s.selector.SessionByID(inst.SessionID); ok && len(sess.Definition.Config.OptionalGames) > 0 {
		return card.FlagsFromGames(sess.Definition.Config.OptionalGames)
	}
	g := &inst.GameplayState
	return card.FeatureFlags{
		Reveal:            len(g.LuckyNumbers) > 0 || len(g.UserNumbers) > 0,
		Match:             len(g.Match3) > 0,
		Generic:           len(g.BonusNumbers) > 0,
		GenericMultiplier: len(g.Multipliers) > 0,
	}
}

func (s *Session) wagerLocked(inst *apiclient.Instance) decimal.Decimal {
	if sess, ok := s.selector.SessionByID(inst.SessionID); ok {
		return sess.Price
	}
	return s.selector.CurrentStake()
}

func (s *Session) hasCurrent() bool {
	return s.current >= 0 && s.current < len(s.instances)
}

func (s *Session) currentLocked() *apiclient.Instance {
	if !s.hasCurrent() {
		return nil
	}
	return &s.instances[s.current]
}

// nextIndexLocked 当前卡片之后第一张未结束的卡片
func (s *Session) nextIndexLocked() int {
	for i := s.current + 1; i < len(s.instances); i++ {
		if !s.instances[i].Completed() {
			return i
		}
	}
	return -1
}

func (s *Session) remainingLocked() int {
	n := 0
	for i := s.current + 1; i < len(s.instances); i++ {
		if !s.instances[i].Completed() {
			n++
		}
	}
	return n
}

// applyServerInstanceLocked 用服务端返回更新当前卡片的状态与派彩，号码以本地为准
func (s *Session) applyServerInstanceLocked(resp *apiclient.Instance) {
	inst := s.currentLocked()
	if inst == nil || resp == nil || resp.InstanceID != inst.InstanceID {
		return
	}
	if resp.State != "" {
		inst.State = resp.State
	}
	inst.GameplayState.PayoutCents = resp.GameplayState.PayoutCents
	for _, kind := range card.AllGroups {
		inst.GameplayState.SetItems(kind, s.store.Items(kind))
	}
}

// syncInstanceLocked 以服务端权威状态覆盖当前卡片；刮开集合不同时重建号码存储
func (s *Session) syncInstanceLocked(resp *apiclient.Instance) {
	inst := s.currentLocked()
	if inst == nil || resp == nil || resp.InstanceID != inst.InstanceID {
		return
	}
	groups := resp.GameplayState.Groups()
	if !s.store.SameRevealSet(groups) {
		s.logger.Info("号码状态与服务端不一致，重建",
			zap.String("instance_id", inst.InstanceID))
		s.store = card.LoadStore(groups)
		s.reclassifyLocked()
	}
	*inst = *resp
}

// refreshInstancesLocked 合并服务端卡片列表
func (s *Session) refreshInstancesLocked(list []apiclient.Instance) {
	byID := make(map[string]apiclient.Instance, len(list))
	for _, inst := range list {
		byID[inst.InstanceID] = inst
	}
	if cur := s.currentLocked(); cur != nil {
		if fresh, ok := byID[cur.InstanceID]; ok {
			s.syncInstanceLocked(&fresh)
		}
	}
	known := make(map[string]bool, len(s.instances))
	for i := range s.instances {
		known[s.instances[i].InstanceID] = true
		if i == s.current {
			continue
		}
		if fresh, ok := byID[s.instances[i].InstanceID]; ok {
			s.instances[i] = fresh
		}
	}
	for _, inst := range s.filterInstancesLocked(list) {
		if !known[inst.InstanceID] {
			s.instances = append(s.instances, inst)
		}
	}
}

// reclassifyLocked 对全部已刮开号码重新判定中奖/未中奖
func (s *Session) reclassifyLocked() {
	e := card.Evaluate(s.store)
	for _, kind := range card.AllGroups {
		for i := 0; i < s.store.Len(kind); i++ {
			if slot, _ := s.store.Slot(kind, i); slot.Revealed() {
				s.store.SetState(kind, i, e.Classify(s.store, kind, i))
			}
		}
	}
}

// emit 记录待派发的监听事件，在锁外由 flush 派发
func (s *Session) emit(fn func(Listener)) {
	s.events = append(s.events, fn)
}

// flush 在锁外派发事件并发起待处理的结束请求
func (s *Session) flush(ctx context.Context) {
	for {
		s.mu.Lock()
		events := s.events
		s.events = nil
		doComplete := s.completionPending
		s.completionPending = false
		pending := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, ev := range events {
			ev(s.listener)
		}
		s.save(pending)
		if doComplete {
			s.runCompletion(ctx)
		}
		if len(events) == 0 && !doComplete && pending == nil {
			return
		}
	}
}

func (s *Session) reportSyncError(err error) {
	s.logger.Error("同步服务端数据失败", zap.Error(err))
	s.listener.OnError(ErrorSync, err)
}

// persistLocked 记录待保存的玩家状态快照，由 flush 写入
func (s *Session) persistLocked() {
	// 恢复完成前不覆盖上次保存的状态
	if s.persister == nil || (s.recovery != nil && !s.restored) {
		return
	}
	data := &PlayerStateData{
		UserID:        s.userID,
		GameID:        s.cfg.GameID,
		CurrentState:  s.sm.GetState(),
		StakeIndex:    s.selector.StakeIndex(),
		SessionIndex:  s.selector.SessionIndex(),
		PurchaseCount: s.selector.PurchaseCount(),
		AutoPlay:      s.autoPlay,
		LastUpdate:    s.clock.Now(),
	}
	if inst := s.currentLocked(); inst != nil {
		data.InstanceID = inst.InstanceID
	}
	s.pending = data
}

// save 写入状态快照，失败只记录日志
func (s *Session) save(data *PlayerStateData) {
	if data == nil {
		return
	}
	if err := s.persister.Save(s.ctx, StateKey(data.UserID, data.GameID), data); err != nil {
		s.logger.Error("持久化状态失败", zap.Error(err))
	}
}

func (s *Session) applyRecoveryLocked(plan *RecoveryPlan) {
	if plan == nil {
		return
	}
	s.selector.restore(plan.StakeIndex, plan.PurchaseCount)
	s.autoPlay = plan.AutoPlay
	s.resumeInstanceID = plan.ResumeInstanceID
	s.logger.Info("已恢复玩家偏好",
		zap.Int("stake_index", plan.StakeIndex),
		zap.Int("purchase_count", plan.PurchaseCount),
		zap.Bool("auto_play", plan.AutoPlay))
}

// State 当前状态
func (s *Session) State() GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sm.GetState()
}

// Slots 分组号码格副本
func (s *Session) Slots(kind card.GroupKind) []card.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Slots(kind)
}

// Snapshot 号码存储快照
func (s *Session) Snapshot() card.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// Flags 当前卡片的玩法开关
func (s *Session) Flags() card.FeatureFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// CurrentInstance 当前卡片
func (s *Session) CurrentInstance() (apiclient.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst := s.currentLocked(); inst != nil {
		return *inst, true
	}
	return apiclient.Instance{}, false
}

// Instances 卡片队列副本
func (s *Session) Instances() []apiclient.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apiclient.Instance(nil), s.instances...)
}

// Balance 最近一次刷新的余额
func (s *Session) Balance() (apiclient.Balance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance == nil {
		return apiclient.Balance{}, false
	}
	return *s.balance, true
}

// LastResult 最近一张卡片的派彩与档位
func (s *Session) LastResult() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// RevealError 刮开失败标记（粘滞，直到 ClearErrors 或切换卡片）
func (s *Session) RevealError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealError
}

// CompleteError 结束失败标记
func (s *Session) CompleteError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeError
}

// ClearErrors 界面重新启用控件后清除错误标记
func (s *Session) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revealError = false
	s.completeError = false
}

// RevealInProgress 一键刮开是否进行中
func (s *Session) RevealInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealInProgress
}

// GroupTriggers 当前激活的分组动画
func (s *Session) GroupTriggers() []card.GroupKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []card.GroupKind
	for _, kind := range card.AllGroups {
		if s.triggers[kind] {
			out = append(out, kind)
		}
	}
	return out
}

// PendingTimers 未触发的定时器数量
func (s *Session) PendingTimers() int {
	return s.sched.Pending()
}

// Stakes 投注额列表
func (s *Session) Stakes() []decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector.Stakes()
}

// Selection 当前投注额下标、场次下标与购买数量
func (s *Session) Selection() (stakeIndex, sessionIndex, purchaseCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector.StakeIndex(), s.selector.SessionIndex(), s.selector.PurchaseCount()
}

// ChangeStakeAndSession 切换投注额
func (s *Session) ChangeStakeAndSession(index int) error {
	s.mu.Lock()
	err := s.selector.ChangeStakeAndSession(index)
	s.persistLocked()
	s.mu.Unlock()
	s.flush(s.ctx)
	return err
}

// ChangePurchaseCount 购买数量加减一
func (s *Session) ChangePurchaseCount(forward bool) int {
	s.mu.Lock()
	n := s.selector.ChangePurchaseCount(forward)
	s.persistLocked()
	s.mu.Unlock()
	s.flush(s.ctx)
	return n
}

// SetPurchaseCount 设置购买数量，非法输入改为 1
func (s *Session) SetPurchaseCount(raw string) int {
	s.mu.Lock()
	n := s.selector.SetPurchaseCount(raw)
	s.persistLocked()
	s.mu.Unlock()
	s.flush(s.ctx)
	return n
}
