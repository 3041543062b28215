package game

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wfunc/instant-win/internal/apiclient"
	apperrors "github.com/wfunc/instant-win/internal/errors"
	"go.uber.org/zap"
)

// 购买数量范围
const (
	MinPurchaseCount = 1
	MaxPurchaseCount = 100
)

// Selector 投注额与场次选择
type Selector struct {
	logger        *zap.Logger
	sessions      []apiclient.Session
	stakes        []decimal.Decimal
	stakeIndex    int
	sessionIndex  int
	purchaseCount int
}

// NewSelector 创建选择器
func NewSelector(logger *zap.Logger) *Selector {
	return &Selector{logger: logger, purchaseCount: MinPurchaseCount}
}

// SetSessions 设置场次：按游戏过滤、按价格升序，投注额为去重后的价格
func (s *Selector) SetSessions(all []apiclient.Session, gameID string) {
	sessions := make([]apiclient.Session, 0, len(all))
	for _, sess := range all {
		if gameID == "" || sess.GameID == gameID {
			sessions = append(sessions, sess)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Price.LessThan(sessions[j].Price)
	})

	stakes := make([]decimal.Decimal, 0, len(sessions))
	for _, sess := range sessions {
		if n := len(stakes); n == 0 || !stakes[n-1].Equal(sess.Price) {
			stakes = append(stakes, sess.Price)
		}
	}

	s.sessions = sessions
	s.stakes = stakes
	if s.stakeIndex >= len(stakes) {
		s.stakeIndex = 0
	}
	if s.sessionIndex >= len(sessions) {
		s.sessionIndex = 0
	}
}

// SetStakes 使用固定的投注额列表（例如大厅配置），不再从场次推导
func (s *Selector) SetStakes(stakes []decimal.Decimal) {
	s.stakes = append([]decimal.Decimal(nil), stakes...)
	if s.stakeIndex >= len(s.stakes) {
		s.stakeIndex = 0
	}
}

// ChangeStakeAndSession 切换投注额并定位价格相同的场次。
// 找不到场次时记录日志，场次保持不变。
func (s *Selector) ChangeStakeAndSession(index int) error {
	if index < 0 || index >= len(s.stakes) {
		s.logger.Warn("投注额下标越界", zap.Int("index", index), zap.Int("stakes", len(s.stakes)))
		return apperrors.Newf(apperrors.ErrInvalidStake, "index=%d", index)
	}
	s.stakeIndex = index
	stake := s.stakes[index]
	for i, sess := range s.sessions {
		if sess.Price.Equal(stake) {
			s.sessionIndex = i
			return nil
		}
	}
	s.logger.Error("找不到投注额对应的场次",
		zap.String("stake", stake.String()),
		zap.Int("session_index", s.sessionIndex))
	return apperrors.Newf(apperrors.ErrStakeNotFound, "stake=%s", stake.String())
}

// ChangePurchaseCount 购买数量加减一，超出 [1,100] 时回绕
func (s *Selector) ChangePurchaseCount(forward bool) int {
	if forward {
		s.purchaseCount++
		if s.purchaseCount > MaxPurchaseCount {
			s.purchaseCount = MinPurchaseCount
		}
	} else {
		s.purchaseCount--
		if s.purchaseCount < MinPurchaseCount {
			s.purchaseCount = MaxPurchaseCount
		}
	}
	return s.purchaseCount
}

// SetPurchaseCount 解析玩家输入，非法输入就地改为 1
func (s *Selector) SetPurchaseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < MinPurchaseCount || n > MaxPurchaseCount {
		s.logger.Debug("购买数量无效，重置为1", zap.String("input", raw))
		n = MinPurchaseCount
	}
	s.purchaseCount = n
	return n
}

// PurchaseCount 当前购买数量
func (s *Selector) PurchaseCount() int {
	return s.purchaseCount
}

// Stakes 投注额列表
func (s *Selector) Stakes() []decimal.Decimal {
	return append([]decimal.Decimal(nil), s.stakes...)
}

// Sessions 当前游戏的场次（按价格升序）
func (s *Selector) Sessions() []apiclient.Session {
	return append([]apiclient.Session(nil), s.sessions...)
}

// StakeIndex 当前投注额下标
func (s *Selector) StakeIndex() int {
	return s.stakeIndex
}

// SessionIndex 当前场次下标
func (s *Selector) SessionIndex() int {
	return s.sessionIndex
}

// CurrentStake 当前投注额
func (s *Selector) CurrentStake() decimal.Decimal {
	if s.stakeIndex < len(s.stakes) {
		return s.stakes[s.stakeIndex]
	}
	return decimal.Zero
}

// CurrentSession 当前场次
func (s *Selector) CurrentSession() (apiclient.Session, bool) {
	if s.sessionIndex < len(s.sessions) {
		return s.sessions[s.sessionIndex], true
	}
	return apiclient.Session{}, false
}

// SessionByID 按ID查找场次
func (s *Selector) SessionByID(id string) (apiclient.Session, bool) {
	for _, sess := range s.sessions {
		if sess.SessionID == id {
			return sess, true
		}
	}
	return apiclient.Session{}, false
}

// restore 恢复玩家偏好，越界的值被忽略
func (s *Selector) restore(stakeIndex, purchaseCount int) {
	if stakeIndex >= 0 && stakeIndex < len(s.stakes) {
		_ = s.ChangeStakeAndSession(stakeIndex)
	}
	if purchaseCount >= MinPurchaseCount && purchaseCount <= MaxPurchaseCount {
		s.purchaseCount = purchaseCount
	}
}
