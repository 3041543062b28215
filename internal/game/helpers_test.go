package game

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/config"
	apperrors "github.com/wfunc/instant-win/internal/errors"
	"github.com/wfunc/instant-win/internal/game/card"
	"go.uber.org/zap"
)

const testGameID = "lucky-7s"

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// 测试用接口名，对应 fakeAPI 的调用计数与故障注入
const (
	opSessions  = "sessions"
	opInstances = "instances"
	opBalance   = "balance"
	opReveal    = "reveal"
	opRevealAll = "reveal-all"
	opComplete  = "complete"
	opPurchase  = "purchase"
)

func testSession(id, gameID string, price int64, games ...string) apiclient.Session {
	return apiclient.Session{
		SessionID:    id,
		GameID:       gameID,
		Price:        decimal.NewFromInt(price),
		DefinitionID: "def-" + id,
		Definition: apiclient.Definition{
			Config: apiclient.DefinitionConfig{OptionalGames: games},
		},
	}
}

// testSessions 三档投注额，未排序；另有一个其他游戏的场次
func testSessions() []apiclient.Session {
	return []apiclient.Session{
		testSession("s-5", testGameID, 5, card.GameReveal),
		testSession("s-1", testGameID, 1, card.GameReveal),
		testSession("s-2", testGameID, 2, card.GameReveal, card.GameMatch),
		testSession("golden-1", "golden-bells", 1, card.GameReveal),
	}
}

func numbers(prefix string, prize int64, values ...string) []card.NumberItem {
	items := make([]card.NumberItem, len(values))
	for i, v := range values {
		items[i] = card.NumberItem{
			NumberID:    prefix + "-" + strconv.Itoa(i),
			SortOrder:   i,
			NumberValue: v,
			Prize:       card.Prize{ID: "p" + v, Value: prize},
		}
	}
	return items
}

// fakeCard 服务端卡片；win 为真时玩家号码 2 命中幸运号码 2
type fakeCard struct {
	inst   apiclient.Instance
	payout int64
}

func newCard(id, sessionID string, payout int64) *fakeCard {
	user := []string{"7", "8", "9"}
	if payout > 0 {
		user[0] = "2"
	}
	return &fakeCard{
		inst: apiclient.Instance{
			InstanceID: id,
			State:      apiclient.InstanceInitialized,
			SessionID:  sessionID,
			GameID:     testGameID,
			GameplayState: apiclient.GameplayState{
				LuckyNumbers: numbers(id+"-lucky", 0, "1", "2", "3"),
				UserNumbers:  numbers(id+"-user", payout, user...),
			},
		},
		payout: payout,
	}
}

func (c *fakeCard) allRevealed() bool {
	for _, items := range c.inst.GameplayState.Groups() {
		for _, item := range items {
			if !item.Revealed {
				return false
			}
		}
	}
	return true
}

func (c *fakeCard) revealAll() {
	g := &c.inst.GameplayState
	for kind, items := range g.Groups() {
		for i := range items {
			items[i].Revealed = true
		}
		g.SetItems(kind, items)
	}
}

func (c *fakeCard) view() apiclient.Instance {
	inst := c.inst
	g := inst.GameplayState
	for _, kind := range card.AllGroups {
		if items := g.Items(kind); items != nil {
			g.SetItems(kind, append([]card.NumberItem(nil), items...))
		}
	}
	g.PayoutCents = 0
	if c.allRevealed() {
		g.PayoutCents = c.payout
	}
	inst.GameplayState = g
	return inst
}

// fakeAPI 内存实现的 GameAPI，可按接口注入一次性故障
type fakeAPI struct {
	mu       sync.Mutex
	sessions []apiclient.Session
	cards    []*fakeCard
	balance  int64
	failures map[string][]error
	calls    map[string]int
	bought   int

	// 非空时 Purchase 先通知 purchaseEntered，再等待 purchaseGate
	purchaseEntered chan struct{}
	purchaseGate    chan struct{}
	// 非空时 RevealNumber 同样先通知 revealEntered，再等待 revealGate
	revealEntered chan struct{}
	revealGate    chan struct{}
}

func newFakeAPI(cards ...*fakeCard) *fakeAPI {
	for i, c := range cards {
		c.inst.CreatedAt = testStart.Add(time.Duration(i) * time.Minute)
	}
	return &fakeAPI{
		sessions: testSessions(),
		cards:    cards,
		balance:  10000,
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeAPI) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// call 记录调用并取出注入的故障，调用方持有锁
func (f *fakeAPI) call(op string) error {
	f.calls[op]++
	if queue := f.failures[op]; len(queue) > 0 {
		f.failures[op] = queue[1:]
		return queue[0]
	}
	return nil
}

func (f *fakeAPI) card(id string) *fakeCard {
	for _, c := range f.cards {
		if c.inst.InstanceID == id {
			return c
		}
	}
	return nil
}

func (f *fakeAPI) ListSessions(ctx context.Context) ([]apiclient.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(opSessions); err != nil {
		return nil, err
	}
	return append([]apiclient.Session(nil), f.sessions...), nil
}

func (f *fakeAPI) ListInstances(ctx context.Context) ([]apiclient.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(opInstances); err != nil {
		return nil, err
	}
	out := make([]apiclient.Instance, 0, len(f.cards))
	for _, c := range f.cards {
		if !c.inst.Completed() {
			out = append(out, c.view())
		}
	}
	return out, nil
}

func (f *fakeAPI) GetBalance(ctx context.Context) (*apiclient.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(opBalance); err != nil {
		return nil, err
	}
	return &apiclient.Balance{UserID: "alice", AmountCents: f.balance, Currency: "USD"}, nil
}

func (f *fakeAPI) RevealNumber(ctx context.Context, instanceID, numberID string) (*apiclient.Instance, error) {
	if f.revealEntered != nil {
		f.revealEntered <- struct{}{}
		<-f.revealGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(opReveal); err != nil {
		return nil, err
	}
	c := f.card(instanceID)
	if c == nil {
		return nil, apiError(404, apiclient.ErrorBody{Message: "卡片不存在"})
	}
	g := &c.inst.GameplayState
	for kind, items := range g.Groups() {
		for i := range items {
			if items[i].NumberID == numberID {
				items[i].Revealed = true
				g.SetItems(kind, items)
				view := c.view()
				return &view, nil
			}
		}
	}
	return nil, apiError(404, apiclient.ErrorBody{Message: "号码不存在"})
}

func (f *fakeAPI) RevealAll(ctx context.Context, instanceID string) (*apiclient.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(opRevealAll); err != nil {
		return nil, err
	}
	c := f.card(instanceID)
	if c == nil {
		return nil, apiError(404, apiclient.ErrorBody{Message: "卡片不存在"})
	}
	c.revealAll()
	view := c.view()
	return &view, nil
}

func (f *fakeAPI) Complete(ctx context.Context, instanceID string) (*apiclient.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(opComplete); err != nil {
		return nil, err
	}
	c := f.card(instanceID)
	if c == nil {
		return nil, apiError(404, apiclient.ErrorBody{Message: "卡片不存在"})
	}
	c.revealAll()
	c.inst.State = apiclient.InstanceCompleted
	f.balance += c.payout
	view := c.view()
	return &view, nil
}

func (f *fakeAPI) Purchase(ctx context.Context, req *apiclient.PurchaseRequest) ([]apiclient.Instance, error) {
	if f.purchaseEntered != nil {
		f.purchaseEntered <- struct{}{}
		<-f.purchaseGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(opPurchase); err != nil {
		return nil, err
	}
	var sess *apiclient.Session
	for i := range f.sessions {
		if f.sessions[i].DefinitionID == req.DefinitionID {
			sess = &f.sessions[i]
		}
	}
	if sess == nil {
		return nil, apiError(400, apiclient.ErrorBody{Message: "场次不存在"})
	}
	out := make([]apiclient.Instance, 0, req.Quantity)
	for i := 0; i < req.Quantity; i++ {
		f.bought++
		c := newCard(fmt.Sprintf("bought-%d", f.bought), sess.SessionID, 0)
		c.inst.CreatedAt = testStart.Add(time.Hour + time.Duration(f.bought)*time.Second)
		f.cards = append(f.cards, c)
		out = append(out, c.view())
	}
	f.balance -= card.WagerCents(sess.Price) * int64(req.Quantity)
	return out, nil
}

// apiError 构造与 apiclient 相同形态的远端错误
func apiError(status int, body apiclient.ErrorBody) error {
	body.Code = status
	raw, _ := json.Marshal(body)
	return apperrors.Newf(apperrors.FromHTTPStatus(status), "返回 %d", status).WithResponse(status, raw)
}

func conflictWith(inst apiclient.Instance) error {
	return apiError(409, apiclient.ErrorBody{Message: "冲突", Instance: &inst})
}

// recordingListener 记录会话事件
type recordingListener struct {
	mu        sync.Mutex
	states    []GameState
	triggers  []string
	errors    []ErrorKind
	purchased int
}

func (l *recordingListener) OnStateChange(from, to GameState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, to)
}

func (l *recordingListener) OnPurchaseConfirmed(instances []apiclient.Instance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purchased += len(instances)
}

func (l *recordingListener) OnGroupTrigger(group card.GroupKind, active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.triggers = append(l.triggers, fmt.Sprintf("%s:%t", group, active))
}

func (l *recordingListener) OnError(kind ErrorKind, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, kind)
}

func (l *recordingListener) Errors() []ErrorKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ErrorKind(nil), l.errors...)
}

func (l *recordingListener) Triggers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.triggers...)
}

func (l *recordingListener) States() []GameState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]GameState(nil), l.states...)
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		GameID:            testGameID,
		RevealItemDelay:   100 * time.Millisecond,
		AutoRevealDelay:   500 * time.Millisecond,
		NextInstanceDelay: 300 * time.Millisecond,
		LastCardDelay:     2 * time.Second,
		WinAnimationDelay: time.Second,
		DefaultPurchase:   1,
	}
}

type harness struct {
	session  *Session
	api      *fakeAPI
	clock    *ManualClock
	listener *recordingListener
}

// newHarness 创建会话并完成初始化
func newHarness(t *testing.T, api *fakeAPI, opts ...Option) *harness {
	t.Helper()
	cfg := testGameConfig()
	h := &harness{
		api:      api,
		clock:    NewManualClock(testStart),
		listener: &recordingListener{},
	}
	opts = append([]Option{WithClock(h.clock), WithListener(h.listener)}, opts...)
	h.session = NewSession(api, &cfg, "alice", zap.NewNop(), opts...)
	t.Cleanup(h.session.Close)
	require.NoError(t, h.session.Initialize(context.Background()))
	return h
}

// openAll 逐个刮开启用分组的全部号码
func (h *harness) openAll(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, kind := range h.session.Flags().EnabledGroups() {
		for i := range h.session.Slots(kind) {
			require.NoError(t, h.session.OpenNumber(ctx, kind, i))
		}
	}
}

func zapNop() *zap.Logger { return zap.NewNop() }
