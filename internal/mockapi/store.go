package mockapi

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/game/card"
)

// Op 可注入故障的接口
type Op string

const (
	OpSessions  Op = "sessions"
	OpInstances Op = "instances"
	OpBalance   Op = "balance"
	OpReveal    Op = "reveal"
	OpRevealAll Op = "reveal-all"
	OpComplete  Op = "complete"
	OpPurchase  Op = "purchase"
)

// APIError 带状态码的接口错误，响应体即 Body
type APIError struct {
	Status int
	Body   apiclient.ErrorBody
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Body.Message)
}

func newAPIError(status int, message string) *APIError {
	return &APIError{Status: status, Body: apiclient.ErrorBody{Code: status, Message: message}}
}

// conflict 409，携带服务端当前的卡片状态
func conflict(message string, inst apiclient.Instance) *APIError {
	e := newAPIError(http.StatusConflict, message)
	e.Body.Instance = &inst
	return e
}

type instanceRecord struct {
	inst   apiclient.Instance
	userID string
	payout int64
	held   bool
	hold   bool // 下次结束时挂起
}

// view 对外展示的卡片：全部刮开之前不暴露派彩
func (r *instanceRecord) view() apiclient.Instance {
	inst := r.inst
	g := inst.GameplayState
	for _, kind := range card.AllGroups {
		items := g.Items(kind)
		if items != nil {
			g.SetItems(kind, append([]card.NumberItem(nil), items...))
		}
	}
	g.PayoutCents = 0
	if r.allRevealed() {
		g.PayoutCents = r.payout
	}
	inst.GameplayState = g
	return inst
}

func (r *instanceRecord) allRevealed() bool {
	for _, items := range r.inst.GameplayState.Groups() {
		for _, item := range items {
			if !item.Revealed {
				return false
			}
		}
	}
	return true
}

func (r *instanceRecord) revealAll() {
	for kind, items := range r.inst.GameplayState.Groups() {
		for i := range items {
			items[i].Revealed = true
		}
		r.inst.GameplayState.SetItems(kind, items)
	}
}

// Store 参考服务器的内存数据：场次、卡片与余额
type Store struct {
	mu        sync.Mutex
	sessions  []apiclient.Session
	instances map[string]*instanceRecord
	balances  map[string]int64
	initial   int64
	failures  map[Op][]int
	gen       *CardGenerator
	now       func() time.Time
}

// NewStore 创建内存数据
func NewStore(sessions []apiclient.Session, initialBalance int64, gen *CardGenerator, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions:  append([]apiclient.Session(nil), sessions...),
		instances: make(map[string]*instanceRecord),
		balances:  make(map[string]int64),
		initial:   initialBalance,
		failures:  make(map[Op][]int),
		gen:       gen,
		now:       now,
	}
}

// DefaultSessions 默认场次：lucky-7s 三档价格，另有一个其他游戏的场次
func DefaultSessions() []apiclient.Session {
	all := []string{card.GameReveal, card.GameMatch, card.GameGeneric, card.GameGenericMultiplier}
	mk := func(id, gameID string, price int64, games []string) apiclient.Session {
		return apiclient.Session{
			SessionID:    id,
			GameID:       gameID,
			Price:        decimal.NewFromInt(price),
			DefinitionID: "def-" + id,
			Definition: apiclient.Definition{
				Config:   apiclient.DefinitionConfig{OptionalGames: games},
				TopPrize: price * 100 * 100,
			},
		}
	}
	return []apiclient.Session{
		mk("lucky-7s-5", "lucky-7s", 5, []string{card.GameReveal, card.GameMatch}),
		mk("lucky-7s-1", "lucky-7s", 1, all),
		mk("lucky-7s-2", "lucky-7s", 2, all),
		mk("golden-1", "golden-bells", 1, all),
	}
}

// FailNext 让接口的下一次调用返回指定状态码
func (s *Store) FailNext(op Op, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], status)
}

// takeFailure 取出注入的故障
func (s *Store) takeFailure(op Op, instanceID string) *APIError {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.failures[op]
	if len(queue) == 0 {
		return nil
	}
	status := queue[0]
	s.failures[op] = queue[1:]

	e := newAPIError(status, http.StatusText(status))
	switch status {
	case http.StatusConflict:
		if rec, ok := s.instances[instanceID]; ok {
			view := rec.view()
			e.Body.Instance = &view
		}
	case http.StatusPaymentRequired:
		e.Body.Title = "暂停销售"
		e.Body.Description = "该场次暂时无法购买"
	}
	return e
}

// Hold 让卡片在下次结束时被挂起（403）
func (s *Store) Hold(instanceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.instances[instanceID]
	if ok {
		rec.hold = true
	}
	return ok
}

// Sessions 全部场次
func (s *Store) Sessions() []apiclient.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apiclient.Session(nil), s.sessions...)
}

// Instances 玩家未结束的卡片，按创建时间排序
func (s *Store) Instances(userID string) []apiclient.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]apiclient.Instance, 0)
	for _, rec := range s.instances {
		if rec.userID != userID || rec.held || rec.inst.Completed() || rec.inst.State == apiclient.InstanceInvalidated {
			continue
		}
		out = append(out, rec.view())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Instance 按ID获取卡片
func (s *Store) Instance(instanceID string) (apiclient.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.instances[instanceID]
	if !ok {
		return apiclient.Instance{}, false
	}
	return rec.view(), true
}

// Payout 卡片全部刮开后的派彩
func (s *Store) Payout(instanceID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.instances[instanceID]; ok {
		return rec.payout
	}
	return 0
}

// Balance 玩家余额，首次查询时按初始余额开户
func (s *Store) Balance(userID string) apiclient.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return apiclient.Balance{UserID: userID, AmountCents: s.balanceLocked(userID), Currency: "USD"}
}

func (s *Store) balanceLocked(userID string) int64 {
	bal, ok := s.balances[userID]
	if !ok {
		bal = s.initial
		s.balances[userID] = bal
	}
	return bal
}

// record 查找玩家自己的卡片，其他玩家的卡片视为不存在
func (s *Store) record(userID, instanceID string) (*instanceRecord, *APIError) {
	rec, ok := s.instances[instanceID]
	if !ok || rec.userID != userID {
		return nil, newAPIError(http.StatusNotFound, "卡片不存在")
	}
	return rec, nil
}

// Reveal 刮开单个号码；已刮开或卡片已结束时返回 409
func (s *Store) Reveal(userID, instanceID, numberID string) (apiclient.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, apiErr := s.record(userID, instanceID)
	if apiErr != nil {
		return apiclient.Instance{}, apiErr
	}
	if rec.inst.State != apiclient.InstanceInitialized || rec.held {
		return apiclient.Instance{}, conflict("卡片已结束", rec.view())
	}
	for kind, items := range rec.inst.GameplayState.Groups() {
		for i := range items {
			if items[i].NumberID != numberID {
				continue
			}
			if items[i].Revealed {
				return apiclient.Instance{}, conflict("号码已刮开", rec.view())
			}
			items[i].Revealed = true
			rec.inst.GameplayState.SetItems(kind, items)
			return rec.view(), nil
		}
	}
	return apiclient.Instance{}, newAPIError(http.StatusNotFound, "号码不存在")
}

// RevealAll 刮开全部号码
func (s *Store) RevealAll(userID, instanceID string) (apiclient.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, apiErr := s.record(userID, instanceID)
	if apiErr != nil {
		return apiclient.Instance{}, apiErr
	}
	if rec.inst.State != apiclient.InstanceInitialized || rec.held {
		return apiclient.Instance{}, conflict("卡片已结束", rec.view())
	}
	rec.revealAll()
	return rec.view(), nil
}

// Complete 结束卡片并派彩；被挂起时返回 403，已结束时返回 409
func (s *Store) Complete(userID, instanceID string) (apiclient.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, apiErr := s.record(userID, instanceID)
	if apiErr != nil {
		return apiclient.Instance{}, apiErr
	}
	if rec.inst.State != apiclient.InstanceInitialized || rec.held {
		return apiclient.Instance{}, conflict("卡片已结束", rec.view())
	}
	if rec.hold {
		rec.held = true
		return apiclient.Instance{}, newAPIError(http.StatusForbidden, "卡片已被挂起")
	}
	rec.revealAll()
	rec.inst.State = apiclient.InstanceCompleted
	s.balances[userID] = s.balanceLocked(userID) + rec.payout
	return rec.view(), nil
}

// Purchase 扣款并生成卡片
func (s *Store) Purchase(userID string, req *apiclient.PurchaseRequest) ([]apiclient.Instance, error) {
	if req.Quantity < 1 || req.Quantity > 100 {
		return nil, newAPIError(http.StatusBadRequest, "购买数量无效")
	}
	if req.ChargeType == apiclient.ChargeCoupon && req.CouponID == "" {
		return nil, newAPIError(http.StatusBadRequest, "缺少优惠券")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var sess *apiclient.Session
	for i := range s.sessions {
		if s.sessions[i].DefinitionID == req.DefinitionID {
			sess = &s.sessions[i]
			break
		}
	}
	if sess == nil {
		return nil, newAPIError(http.StatusBadRequest, "场次不存在")
	}

	cost := card.WagerCents(sess.Price) * int64(req.Quantity)
	balance := s.balanceLocked(userID)
	if req.ChargeType != apiclient.ChargeCoupon && balance < cost {
		e := newAPIError(http.StatusPaymentRequired, "余额不足")
		e.Body.Title = "余额不足"
		e.Body.Description = fmt.Sprintf("需要 $%s，当前余额 $%s",
			decimal.New(cost, -2).StringFixed(2), decimal.New(balance, -2).StringFixed(2))
		return nil, e
	}
	if req.ChargeType != apiclient.ChargeCoupon {
		s.balances[userID] = balance - cost
	}

	now := s.now()
	out := make([]apiclient.Instance, 0, req.Quantity)
	for i := 0; i < req.Quantity; i++ {
		state, payout := s.gen.Generate(*sess)
		rec := &instanceRecord{
			inst: apiclient.Instance{
				InstanceID:    newInstanceID(),
				State:         apiclient.InstanceInitialized,
				SessionID:     sess.SessionID,
				GameID:        sess.GameID,
				GameplayState: state,
				CreatedAt:     now.Add(time.Duration(i) * time.Millisecond),
			},
			userID: userID,
			payout: payout,
		}
		s.instances[rec.inst.InstanceID] = rec
		out = append(out, rec.view())
	}
	return out, nil
}
