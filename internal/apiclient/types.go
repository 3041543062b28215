package apiclient

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wfunc/instant-win/internal/game/card"
)

// InstanceState 卡片在服务端的状态
type InstanceState string

const (
	InstancePaymentPending InstanceState = "PaymentPending"
	InstanceInitialized    InstanceState = "Initialized"
	InstanceCompleted      InstanceState = "Completed"
	InstanceInvalidated    InstanceState = "Invalidated"
)

// DefinitionConfig 场次定义中的玩法配置
type DefinitionConfig struct {
	OptionalGames []string `json:"optionalGames"`
}

// Definition 场次定义
type Definition struct {
	Config   DefinitionConfig `json:"config"`
	TopPrize int64            `json:"topPrize"` // 分
}

// Session 可购买的场次
type Session struct {
	SessionID    string          `json:"sessionId"`
	GameID       string          `json:"gameId"`
	Price        decimal.Decimal `json:"price"` // 美元
	DefinitionID string          `json:"definitionId"`
	Definition   Definition      `json:"definition"`
}

// GameplayState 卡片的全部号码分组与派彩
type GameplayState struct {
	LuckyNumbers []card.NumberItem `json:"luckyNumbers"`
	UserNumbers  []card.NumberItem `json:"userNumbers"`
	Match3       []card.NumberItem `json:"match3"`
	PrizeLot     []card.NumberItem `json:"prizeLot"`
	BonusNumbers []card.NumberItem `json:"bonusNumbers"`
	Multipliers  []card.NumberItem `json:"multipliers"`
	PayoutCents  int64             `json:"payoutCents"`
}

func (g *GameplayState) group(kind card.GroupKind) *[]card.NumberItem {
	switch kind {
	case card.GroupLucky:
		return &g.LuckyNumbers
	case card.GroupUser:
		return &g.UserNumbers
	case card.GroupMatch3:
		return &g.Match3
	case card.GroupPrizeLot:
		return &g.PrizeLot
	case card.GroupBonus:
		return &g.BonusNumbers
	case card.GroupMultiplier:
		return &g.Multipliers
	default:
		return nil
	}
}

// Groups 按分组类型返回号码
func (g *GameplayState) Groups() map[card.GroupKind][]card.NumberItem {
	groups := make(map[card.GroupKind][]card.NumberItem, len(card.AllGroups))
	for _, kind := range card.AllGroups {
		if items := *g.group(kind); len(items) > 0 {
			groups[kind] = items
		}
	}
	return groups
}

// Items 单个分组的号码
func (g *GameplayState) Items(kind card.GroupKind) []card.NumberItem {
	if p := g.group(kind); p != nil {
		return *p
	}
	return nil
}

// SetItems 替换单个分组的号码
func (g *GameplayState) SetItems(kind card.GroupKind, items []card.NumberItem) {
	if p := g.group(kind); p != nil {
		*p = items
	}
}

// Instance 已购买的一张卡片
type Instance struct {
	InstanceID    string        `json:"instanceId"`
	State         InstanceState `json:"state"`
	SessionID     string        `json:"sessionId"`
	GameID        string        `json:"gameId"`
	GameplayState GameplayState `json:"gameplayState"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Completed 是否已结束
func (i *Instance) Completed() bool {
	return i.State == InstanceCompleted
}

// Balance 玩家余额
type Balance struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

// 扣款方式
const (
	ChargeCash   = "CASH"
	ChargeBonus  = "BONUS"
	ChargeCoupon = "COUPON"
)

// PurchaseRequest 购买请求
type PurchaseRequest struct {
	ChargeType   string `json:"chargeType"`
	CouponID     string `json:"couponId,omitempty"`
	DefinitionID string `json:"definitionId"`
	Quantity     int    `json:"quantity"`
	PIN          string `json:"pin"`
}

// RevealRequest 刮开单个号码请求体
type RevealRequest struct {
	Revealed bool `json:"revealed"`
}

// ErrorBody 非2xx响应的通用结构。
// 409 时 Instance 为服务端权威状态，402 时 Title/Description 为拒绝原因。
type ErrorBody struct {
	Code        int       `json:"code"`
	Message     string    `json:"message"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Instance    *Instance `json:"instance,omitempty"`
}
