package game

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wfunc/instant-win/internal/apiclient"
	apperrors "github.com/wfunc/instant-win/internal/errors"
	"github.com/wfunc/instant-win/internal/logger"
	"github.com/wfunc/instant-win/internal/utils"
	"go.uber.org/zap"
)

// PurchaseError 服务端拒绝购买（402），标题与描述原样展示给玩家
type PurchaseError struct {
	Title       string
	Description string
	Cause       error
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("购买被拒绝: %s: %s", e.Title, e.Description)
}

func (e *PurchaseError) Unwrap() error { return e.Cause }

// UnauthorizedError PIN码错误（401 或本地格式校验失败）
type UnauthorizedError struct {
	Cause error
}

func (e *UnauthorizedError) Error() string {
	if e.Cause != nil {
		return "未授权: " + e.Cause.Error()
	}
	return "未授权"
}

func (e *UnauthorizedError) Unwrap() error { return e.Cause }

// DialogMessage 购买失败对话框内容
type DialogMessage struct {
	Title string
	Body  string
}

// 购买失败的通用提示
var (
	UnauthorizedMessage = DialogMessage{Title: "PIN码错误", Body: "请检查购买PIN码后重试"}
	GenericFailure      = DialogMessage{Title: "购买失败", Body: "请稍后再试"}
)

// FailureMessage 把购买错误转换为对话框内容，通用错误不暴露原始信息
func FailureMessage(err error) DialogMessage {
	var pe *PurchaseError
	if errors.As(err, &pe) {
		return DialogMessage{Title: pe.Title, Body: pe.Description}
	}
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		return UnauthorizedMessage
	}
	return GenericFailure
}

// classifyPurchaseError 按服务端状态码区分购买失败
func classifyPurchaseError(err error) error {
	switch apperrors.StatusOf(err) {
	case http.StatusPaymentRequired:
		pe := &PurchaseError{Title: GenericFailure.Title, Cause: err}
		if body, ok := apiclient.DecodeErrorBody(err); ok {
			if body.Title != "" {
				pe.Title = body.Title
			}
			pe.Description = body.Description
		}
		return pe
	case http.StatusUnauthorized:
		return &UnauthorizedError{Cause: err}
	default:
		return apperrors.Wrap(err, apperrors.ErrNetwork)
	}
}

// Purchase 按当前场次与购买数量购买卡片。
// 同一时间只允许一次购买，进行中的重复调用直接返回。成功后刷新余额与卡片并重新初始化。
func (s *Session) Purchase(ctx context.Context, params PurchaseParams) error {
	if !utils.IsValidPINFormat(params.PIN) {
		return &UnauthorizedError{Cause: apperrors.New(apperrors.ErrInvalidPIN)}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrGameNotActive)
	}
	if s.purchasing {
		s.mu.Unlock()
		s.logger.Debug("购买进行中，忽略重复请求")
		return nil
	}
	sess, ok := s.selector.CurrentSession()
	if !ok {
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrStakeNotFound)
	}
	s.purchasing = true
	req := &apiclient.PurchaseRequest{
		ChargeType:   params.ChargeType,
		CouponID:     params.CouponID,
		DefinitionID: sess.DefinitionID,
		Quantity:     s.selector.PurchaseCount(),
		PIN:          params.PIN,
	}
	if req.ChargeType == "" {
		req.ChargeType = apiclient.ChargeCash
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.purchasing = false
		s.mu.Unlock()
	}()

	if balance, err := s.api.GetBalance(ctx); err != nil {
		s.logger.Warn("刷新余额失败", zap.Error(err))
	} else {
		s.mu.Lock()
		s.balance = balance
		s.mu.Unlock()
	}

	bought, err := s.api.Purchase(ctx, req)
	if err != nil {
		failure := classifyPurchaseError(err)
		s.logger.Warn("购买失败",
			zap.String("definition_id", req.DefinitionID),
			zap.Int("quantity", req.Quantity),
			zap.Error(err))
		s.listener.OnError(ErrorPurchase, failure)
		return failure
	}

	logger.LogGameEvent(s.logger, "purchase_confirmed", "", map[string]interface{}{
		"definition_id": req.DefinitionID,
		"quantity":      req.Quantity,
		"instances":     len(bought),
	})
	s.listener.OnPurchaseConfirmed(bought)

	return s.Initialize(ctx)
}

// Purchasing 购买是否进行中
func (s *Session) Purchasing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purchasing
}
