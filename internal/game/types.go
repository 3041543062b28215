package game

import (
	"context"

	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/game/card"
)

// GameAPI 游戏会话服务端接口，由 apiclient.Client 实现
type GameAPI interface {
	ListSessions(ctx context.Context) ([]apiclient.Session, error)
	ListInstances(ctx context.Context) ([]apiclient.Instance, error)
	GetBalance(ctx context.Context) (*apiclient.Balance, error)
	RevealNumber(ctx context.Context, instanceID, numberID string) (*apiclient.Instance, error)
	RevealAll(ctx context.Context, instanceID string) (*apiclient.Instance, error)
	Complete(ctx context.Context, instanceID string) (*apiclient.Instance, error)
	Purchase(ctx context.Context, req *apiclient.PurchaseRequest) ([]apiclient.Instance, error)
}

// CompletionOutcome 结束卡片的结果
type CompletionOutcome int

const (
	OutcomePending     CompletionOutcome = iota
	OutcomeCompleted                     // 服务端确认结束
	OutcomeHeldProceed                   // 403 挂起，按结束继续但不刷新余额
	OutcomeFailed
)

func (o CompletionOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeHeldProceed:
		return "held-proceed"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Result 最近一张卡片的结果
type Result struct {
	InstanceID  string
	SessionID   string
	WagerCents  int64
	PayoutCents int64
	WinLevel    card.WinLevel
	Outcome     CompletionOutcome
}

// ErrorKind 上报给界面的错误类别
type ErrorKind int

const (
	ErrorReveal ErrorKind = iota
	ErrorComplete
	ErrorPurchase
	ErrorSync
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorReveal:
		return "reveal"
	case ErrorComplete:
		return "complete"
	case ErrorPurchase:
		return "purchase"
	default:
		return "sync"
	}
}

// Listener 会话事件监听。回调在会话锁之外执行，可以再调用 Session 的方法。
type Listener interface {
	OnStateChange(from, to GameState)
	OnPurchaseConfirmed(instances []apiclient.Instance)
	OnGroupTrigger(group card.GroupKind, active bool)
	OnError(kind ErrorKind, err error)
}

// NopListener 空监听
type NopListener struct{}

func (NopListener) OnStateChange(from, to GameState)                   {}
func (NopListener) OnPurchaseConfirmed(instances []apiclient.Instance) {}
func (NopListener) OnGroupTrigger(group card.GroupKind, active bool)   {}
func (NopListener) OnError(kind ErrorKind, err error)                  {}

// PurchaseParams 购买参数，场次与数量取自当前选择
type PurchaseParams struct {
	ChargeType string
	CouponID   string
	PIN        string
}
