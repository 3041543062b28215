package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorCode 错误码
type ErrorCode int

const (
	// 通用 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006
	ErrConflict         ErrorCode = 1008

	// 游戏 (2000-2999)
	ErrGameNotActive      ErrorCode = 2000
	ErrNoActiveInstance   ErrorCode = 2001
	ErrInsufficientFunds  ErrorCode = 2002
	ErrInvalidStake       ErrorCode = 2003
	ErrGameStateError     ErrorCode = 2004
	ErrRevealInProgress   ErrorCode = 2005
	ErrRevealFailed       ErrorCode = 2006
	ErrCompleteFailed     ErrorCode = 2007
	ErrInstanceHeld       ErrorCode = 2008
	ErrStakeNotFound      ErrorCode = 2009
	ErrInvalidPurchase    ErrorCode = 2010
	ErrPurchaseDeclined   ErrorCode = 2011
	ErrPurchaseInProgress ErrorCode = 2012

	// 会话API通信 (4000-4999)
	ErrNetwork        ErrorCode = 4000
	ErrBadResponse    ErrorCode = 4001
	ErrMessageFormat  ErrorCode = 4002
	ErrServerInternal ErrorCode = 4003

	// 存储 (5000-5999)
	ErrDatabaseConnect ErrorCode = 5000

	// 认证 (7000-7999)
	ErrAuthentication    ErrorCode = 7000
	ErrTokenExpired      ErrorCode = 7002
	ErrTokenInvalid      ErrorCode = 7003
	ErrInvalidPIN        ErrorCode = 7004
	ErrRateLimitExceeded ErrorCode = 7005
)

type codeInfo struct {
	message string
	status  int
}

// codes 错误码的默认消息与对应HTTP状态码
var codes = map[ErrorCode]codeInfo{
	ErrUnknown:          {"未知错误", http.StatusInternalServerError},
	ErrInvalidParam:     {"无效的参数", http.StatusBadRequest},
	ErrNotFound:         {"资源未找到", http.StatusNotFound},
	ErrPermissionDenied: {"权限不足", http.StatusForbidden},
	ErrTimeout:          {"操作超时", http.StatusRequestTimeout},
	ErrCanceled:         {"操作已取消", http.StatusInternalServerError},
	ErrConflict:         {"状态冲突", http.StatusConflict},

	ErrGameNotActive:      {"游戏未激活", http.StatusConflict},
	ErrNoActiveInstance:   {"没有可用的卡片", http.StatusNotFound},
	ErrInsufficientFunds:  {"余额不足", http.StatusPaymentRequired},
	ErrInvalidStake:       {"无效的投注额", http.StatusBadRequest},
	ErrGameStateError:     {"游戏状态错误", http.StatusConflict},
	ErrRevealInProgress:   {"刮开动画进行中", http.StatusConflict},
	ErrRevealFailed:       {"刮开失败", http.StatusInternalServerError},
	ErrCompleteFailed:     {"结束卡片失败", http.StatusInternalServerError},
	ErrInstanceHeld:       {"卡片已被挂起", http.StatusForbidden},
	ErrStakeNotFound:      {"找不到对应投注额的场次", http.StatusNotFound},
	ErrInvalidPurchase:    {"无效的购买请求", http.StatusBadRequest},
	ErrPurchaseDeclined:   {"购买被拒绝", http.StatusPaymentRequired},
	ErrPurchaseInProgress: {"购买进行中", http.StatusConflict},

	ErrNetwork:        {"网络错误", http.StatusBadGateway},
	ErrBadResponse:    {"无效的服务器响应", http.StatusBadGateway},
	ErrMessageFormat:  {"消息格式错误", http.StatusBadRequest},
	ErrServerInternal: {"服务器内部错误", http.StatusInternalServerError},

	ErrDatabaseConnect: {"数据库连接失败", http.StatusServiceUnavailable},

	ErrAuthentication:    {"认证失败", http.StatusUnauthorized},
	ErrTokenExpired:      {"令牌已过期", http.StatusUnauthorized},
	ErrTokenInvalid:      {"无效的令牌", http.StatusUnauthorized},
	ErrInvalidPIN:        {"PIN码错误", http.StatusUnauthorized},
	ErrRateLimitExceeded: {"请求频率超限", http.StatusTooManyRequests},
}

// statusCodes 远端状态码对应的错误码
var statusCodes = map[int]ErrorCode{
	http.StatusBadRequest:      ErrInvalidParam,
	http.StatusUnauthorized:    ErrAuthentication,
	http.StatusPaymentRequired: ErrPurchaseDeclined,
	http.StatusForbidden:       ErrPermissionDenied,
	http.StatusNotFound:        ErrNotFound,
	http.StatusRequestTimeout:  ErrTimeout,
	http.StatusConflict:        ErrConflict,
	http.StatusTooManyRequests: ErrRateLimitExceeded,
}

// AppError 应用错误
//
// 会话API返回的错误带有 Status 与 Body，游戏逻辑据此区分 403/409 等情况。
type AppError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details"`
	Status  int          `json:"status,omitempty"`
	Body    []byte       `json:"-"`
	Cause   error        `json:"-"`
	Stack   []StackFrame `json:"stack,omitempty"`
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

func (e *AppError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%d] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause 设置原因，Details 为空时取原因的描述
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// WithResponse 附加远端状态码与响应原文
func (e *AppError) WithResponse(status int, body []byte) *AppError {
	e.Status = status
	e.Body = body
	return e
}

// HTTPStatus 错误码对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	if info, ok := codes[e.Code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// New 创建应用错误，多个 details 以分号连接
func New(code ErrorCode, details ...string) *AppError {
	info, ok := codes[code]
	if !ok {
		info = codes[ErrUnknown]
	}
	e := &AppError{
		Code:    code,
		Message: info.message,
		Details: strings.Join(details, "; "),
	}
	e.Stack = callers(3)
	return e
}

// Newf 创建带格式化详情的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误，已经是 AppError 时保留原错误码
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}
	return New(code, details...).WithCause(err)
}

// Wrapf 以格式化详情包装错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// As 取出错误链中的 AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if err == nil || !stderrors.As(err, &appErr) {
		return nil, false
	}
	return appErr, true
}

// Is 判断错误链中是否有指定错误码
func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// GetCode 获取错误码，非 AppError 返回 ErrUnknown
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrUnknown
}

// StatusOf 远端HTTP状态码，非API错误返回0
func StatusOf(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Status
	}
	return 0
}

// FromHTTPStatus 将远端HTTP状态码映射为错误码
func FromHTTPStatus(status int) ErrorCode {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 500 {
		return ErrServerInternal
	}
	return ErrBadResponse
}

// IsRetryable 网络、超时和服务端错误可以重试
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrTimeout, ErrNetwork, ErrServerInternal:
		return true
	}
	return false
}

// callers 记录调用栈，跳过本包与运行时，最多10帧
func callers(skip int) []StackFrame {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var stack []StackFrame
	for len(stack) < 10 {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") &&
			!strings.Contains(frame.Function, "instant-win/internal/errors.") {
			stack = append(stack, StackFrame{Function: frame.Function, File: frame.File, Line: frame.Line})
		}
		if !more {
			break
		}
	}
	return stack
}

// FormatStack 格式化调用栈
func (e *AppError) FormatStack() string {
	var b strings.Builder
	for i, f := range e.Stack {
		fmt.Fprintf(&b, "%d. %s\n   %s:%d\n", i+1, f.Function, f.File, f.Line)
	}
	return b.String()
}
