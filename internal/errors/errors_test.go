package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrNotFound, "卡片不存在")
	suite.Equal("资源未找到", err.Message)
	suite.Equal("卡片不存在", err.Details)

	// 多个详情
	err = New(ErrRevealFailed, "instance=abc", "number=7")
	suite.Equal("instance=abc; number=7", err.Details)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrStakeNotFound, "stake %s 无对应场次", "2.00")
	suite.Equal(ErrStakeNotFound, err.Code)
	suite.Equal("stake 2.00 无对应场次", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("connection reset")
	wrappedErr := Wrap(originalErr, ErrNetwork)
	suite.Equal(ErrNetwork, wrappedErr.Code)
	suite.Equal("connection reset", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 包装已有的AppError时保留原始错误码
	appErr := New(ErrConflict, "已完成")
	wrappedAppErr := Wrap(appErr, ErrCompleteFailed, "complete")
	suite.Equal(ErrConflict, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "complete")
}

func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("timeout")
	wrappedErr := Wrapf(originalErr, ErrNetwork, "请求 %s 失败", "/sessions")
	suite.Equal("请求 /sessions 失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断（包括fmt包装后的错误链）
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrInstanceHeld)
	suite.True(Is(err, ErrInstanceHeld))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrInstanceHeld))
	suite.False(Is(errors.New("plain"), ErrUnknown))

	chained := fmt.Errorf("complete: %w", New(ErrConflict))
	suite.True(Is(chained, ErrConflict))
}

func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrTokenExpired, GetCode(New(ErrTokenExpired)))
	suite.Equal(ErrUnknown, GetCode(errors.New("plain")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "资源未找到"}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "instance: 123"
	suite.Equal("[1002] 资源未找到: instance: 123", err.Error())
}

func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("原始错误")
	suite.Equal(originalErr, Wrap(originalErr, ErrUnknown).Unwrap())
	suite.Nil(New(ErrUnknown).Unwrap())
}

func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("unexpected EOF")
	err := New(ErrRevealFailed).WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("unexpected EOF", err.Details)

	// 已有Details的情况
	err2 := New(ErrRevealFailed, "number=7").WithCause(cause)
	suite.Equal("number=7", err2.Details)
}

// 测试远端响应附加
func (suite *ErrorsTestSuite) TestWithResponse() {
	body := []byte(`{"state":"Completed"}`)
	err := New(ErrConflict).WithResponse(http.StatusConflict, body)
	suite.Equal(http.StatusConflict, StatusOf(err))
	suite.Equal(body, err.Body)
	suite.Equal(0, StatusOf(errors.New("plain")))
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrAuthentication, 401},
		{ErrInvalidPIN, 401},
		{ErrPurchaseDeclined, 402},
		{ErrPermissionDenied, 403},
		{ErrInstanceHeld, 403},
		{ErrNotFound, 404},
		{ErrConflict, 409},
		{ErrTimeout, 408},
		{ErrRateLimitExceeded, 429},
		{ErrNetwork, 502},
		{ErrDatabaseConnect, 503},
		{ErrGameStateError, 409},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		suite.Equal(tc.expected, New(tc.code).HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

// 测试状态码反向映射
func (suite *ErrorsTestSuite) TestFromHTTPStatus() {
	suite.Equal(ErrInvalidParam, FromHTTPStatus(400))
	suite.Equal(ErrAuthentication, FromHTTPStatus(401))
	suite.Equal(ErrPurchaseDeclined, FromHTTPStatus(402))
	suite.Equal(ErrPermissionDenied, FromHTTPStatus(403))
	suite.Equal(ErrNotFound, FromHTTPStatus(404))
	suite.Equal(ErrConflict, FromHTTPStatus(409))
	suite.Equal(ErrServerInternal, FromHTTPStatus(502))
	suite.Equal(ErrBadResponse, FromHTTPStatus(418))
}

func (suite *ErrorsTestSuite) TestIsRetryable() {
	for _, code := range []ErrorCode{ErrTimeout, ErrNetwork, ErrServerInternal} {
		suite.True(IsRetryable(New(code)), "错误码 %d 应该是可重试的", code)
	}
	for _, code := range []ErrorCode{ErrInvalidParam, ErrConflict, ErrPurchaseDeclined} {
		suite.False(IsRetryable(New(code)), "错误码 %d 不应该是可重试的", code)
	}
	suite.False(IsRetryable(nil))
}

func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.Greater(len(err.Stack), 0)
	suite.NotEmpty(err.FormatStack())
}

func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

// 测试游戏相关错误
func (suite *ErrorsTestSuite) TestGameErrors() {
	gameErrors := map[ErrorCode]string{
		ErrNoActiveInstance:   "没有可用的卡片",
		ErrRevealFailed:       "刮开失败",
		ErrCompleteFailed:     "结束卡片失败",
		ErrInstanceHeld:       "卡片已被挂起",
		ErrStakeNotFound:      "找不到对应投注额的场次",
		ErrPurchaseDeclined:   "购买被拒绝",
		ErrPurchaseInProgress: "购买进行中",
	}

	for code, expectedMsg := range gameErrors {
		suite.Equal(expectedMsg, New(code).Message)
	}
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
