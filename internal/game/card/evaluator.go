package card

import (
	"github.com/shopspring/decimal"
)

// WinLevel 中奖档位
type WinLevel int

const (
	WinZero WinLevel = iota
	WinNormal
	WinBig
	WinSuper
	WinMega
)

func (l WinLevel) String() string {
	switch l {
	case WinNormal:
		return "NORMAL"
	case WinBig:
		return "BIG"
	case WinSuper:
		return "SUPER"
	case WinMega:
		return "MEGA"
	default:
		return "ZERO"
	}
}

// 档位阈值：派彩 / 投注（均为分）
const (
	megaRatio   = 100
	superRatio  = 35
	bigRatio    = 5
	normalRatio = 1
)

var hundred = decimal.NewFromInt(100)

// WagerCents 将美元投注额换算为分
func WagerCents(wagerDollars decimal.Decimal) int64 {
	return wagerDollars.Mul(hundred).Round(0).IntPart()
}

// WinLevelFor 根据派彩（分）和投注额（美元）计算中奖档位
func WinLevelFor(payoutCents int64, wagerDollars decimal.Decimal) WinLevel {
	return WinLevelForCents(payoutCents, WagerCents(wagerDollars))
}

// WinLevelForCents 派彩与投注均以分计
func WinLevelForCents(payoutCents, wagerCents int64) WinLevel {
	if payoutCents <= 0 || wagerCents <= 0 {
		return WinZero
	}
	switch {
	case payoutCents >= megaRatio*wagerCents:
		return WinMega
	case payoutCents >= superRatio*wagerCents:
		return WinSuper
	case payoutCents >= bigRatio*wagerCents:
		return WinBig
	case payoutCents >= normalRatio*wagerCents:
		return WinNormal
	default:
		return WinZero
	}
}

// Evaluation 一次纯计算的中奖判定结果
type Evaluation struct {
	Winners [groupCount][]bool
	Match3  bool
}

// Evaluate 对当前存储做中奖判定，不修改存储
func Evaluate(s *Store) Evaluation {
	var e Evaluation
	e.Winners[GroupLucky] = LuckyNumberWinners(s)
	e.Winners[GroupUser] = UserNumberWinners(s)
	e.Match3 = Match3Won(s)

	e.Winners[GroupMatch3] = fill(s.Len(GroupMatch3), e.Match3)
	e.Winners[GroupPrizeLot] = fill(s.Len(GroupPrizeLot), e.Match3)
	e.Winners[GroupBonus] = flagged(s, GroupBonus)
	e.Winners[GroupMultiplier] = flagged(s, GroupMultiplier)
	return e
}

// IsWinner 单格是否中奖
func (e Evaluation) IsWinner(kind GroupKind, idx int) bool {
	if kind < 0 || kind >= groupCount || idx < 0 || idx >= len(e.Winners[kind]) {
		return false
	}
	return e.Winners[kind][idx]
}

// Classify 已刮开格子的展示状态：中奖为 SMALL_WIN，否则 LOSER；未刮开保持 CLOSED
func (e Evaluation) Classify(s *Store, kind GroupKind, idx int) RevealState {
	slot, ok := s.Slot(kind, idx)
	if !ok || !slot.Revealed() {
		return StateClosed
	}
	if e.IsWinner(kind, idx) {
		return StateSmallWin
	}
	return StateLoser
}

// UserNumberWinners 玩家号码与任一已刮开幸运号码相同且自身已刮开即中奖
func UserNumberWinners(s *Store) []bool {
	return matchAgainst(s, GroupUser, GroupLucky)
}

// LuckyNumberWinners 幸运号码被任一已刮开玩家号码命中即中奖
func LuckyNumberWinners(s *Store) []bool {
	return matchAgainst(s, GroupLucky, GroupUser)
}

func matchAgainst(s *Store, kind, other GroupKind) []bool {
	values := make(map[string]struct{})
	for _, slot := range s.groups[other] {
		if slot.Revealed() {
			values[slot.Content.NumberValue] = struct{}{}
		}
	}
	winners := make([]bool, len(s.groups[kind]))
	for i, slot := range s.groups[kind] {
		if !slot.Revealed() {
			continue
		}
		_, hit := values[slot.Content.NumberValue]
		winners[i] = hit
	}
	return winners
}

// Match3Won 三连判定：
// 三连格全部刮开，存在奖品格时奖品格也已刮开；
// 无奖品格时要求奖品ID全部相同，有奖品格时要求号码全部相同（奖品以奖品格为准）。
func Match3Won(s *Store) bool {
	slots := s.groups[GroupMatch3]
	if len(slots) == 0 {
		return false
	}
	for _, slot := range slots {
		if !slot.Revealed() {
			return false
		}
	}

	lots := s.groups[GroupPrizeLot]
	if len(lots) > 0 {
		if !lots[0].Revealed() {
			return false
		}
		first := slots[0].Content.NumberValue
		for _, slot := range slots[1:] {
			if slot.Content.NumberValue != first {
				return false
			}
		}
		return true
	}

	first := slots[0].Content.Prize.ID
	if first == "" {
		return false
	}
	for _, slot := range slots[1:] {
		if slot.Content.Prize.ID != first {
			return false
		}
	}
	return true
}

// TotalPrize 根据判定结果估算派彩（分），倍数格中奖时取最大倍数
func TotalPrize(s *Store, e Evaluation) int64 {
	var total int64
	for i, slot := range s.groups[GroupUser] {
		if e.IsWinner(GroupUser, i) {
			total += slot.Content.Prize.Value
		}
	}
	if e.Match3 {
		if lots := s.groups[GroupPrizeLot]; len(lots) > 0 {
			total += lots[0].Content.Prize.Value
		} else {
			total += s.groups[GroupMatch3][0].Content.Prize.Value
		}
	}
	for i, slot := range s.groups[GroupBonus] {
		if e.IsWinner(GroupBonus, i) {
			total += slot.Content.Prize.Value
		}
	}

	multiplier := 1
	for i, slot := range s.groups[GroupMultiplier] {
		if e.IsWinner(GroupMultiplier, i) && slot.Content.Prize.Multiplier > multiplier {
			multiplier = slot.Content.Prize.Multiplier
		}
	}
	return total * int64(multiplier)
}

func fill(n int, v bool) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// flagged 以服务端中奖标记为准的分组，仍要求已刮开
func flagged(s *Store, kind GroupKind) []bool {
	out := make([]bool, len(s.groups[kind]))
	for i, slot := range s.groups[kind] {
		out[i] = slot.Revealed() && slot.Content.Winner
	}
	return out
}
