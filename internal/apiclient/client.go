package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/wfunc/instant-win/internal/config"
	apperrors "github.com/wfunc/instant-win/internal/errors"
	"github.com/wfunc/instant-win/internal/logger"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RequestIDHeader 请求追踪头
const RequestIDHeader = "X-Request-ID"

// ClientConfig 客户端配置
type ClientConfig struct {
	BaseURL    string
	Token      string
	UserID     string
	Timeout    time.Duration
	RetryCount int
}

// Client 游戏会话REST客户端
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

// NewClient 创建客户端
func NewClient(cfg *ClientConfig, log *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return NewClientWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout}, log)
}

// NewClientWithHTTPClient 使用自定义 http.Client 创建客户端
func NewClientWithHTTPClient(cfg *ClientConfig, httpClient *http.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     log,
		token:      cfg.Token,
	}
}

// FromConfig 由应用配置创建客户端
func FromConfig(cfg *config.APIConfig, log *zap.Logger) *Client {
	return NewClient(&ClientConfig{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		UserID:     cfg.UserID,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
	}, log)
}

// SetToken 更新访问令牌
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// UserID 当前玩家ID
func (c *Client) UserID() string {
	return c.config.UserID
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// doRequest 发送请求并解析响应；非2xx返回携带状态码与原文的 AppError
func (c *Client) doRequest(ctx context.Context, method, endpoint string, reqBody, result interface{}) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrMessageFormat, "序列化请求失败")
		}
	}

	requestID := uuid.NewString()
	fullURL := strings.TrimRight(c.config.BaseURL, "/") + endpoint

	// 只有幂等的 GET 会重试；POST 失败时服务端可能已经执行
	attempts := 1
	if method == http.MethodGet && c.config.RetryCount > 0 {
		attempts += c.config.RetryCount
	}

	start := time.Now()
	var resp *http.Response
	var lastErr error
	tries := 0
	for i := 0; i < attempts; i++ {
		tries++
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrInvalidParam, "创建请求失败")
		}
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(RequestIDHeader, requestID)
		if token := c.bearer(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err = c.httpClient.Do(req)
		if err == nil {
			break
		}
		lastErr = err
		if ctx.Err() != nil || tries == attempts {
			break
		}
		c.logger.Debug("请求失败，重试",
			zap.String("path", endpoint),
			zap.Int("attempt", i+1),
			zap.Error(err))
	}

	if resp == nil {
		logger.LogAPICall(c.logger, method, endpoint, 0, time.Since(start), requestID, lastErr)
		if ctx.Err() != nil {
			return apperrors.Wrap(ctx.Err(), apperrors.ErrCanceled, endpoint)
		}
		return apperrors.Wrapf(lastErr, apperrors.ErrNetwork, "%s %s 请求失败 (%d次)", method, endpoint, tries)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrNetwork, "读取响应失败")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		appErr := apperrors.Newf(apperrors.FromHTTPStatus(resp.StatusCode), "%s %s 返回 %d", method, endpoint, resp.StatusCode).
			WithResponse(resp.StatusCode, respBody)
		logger.LogAPICall(c.logger, method, endpoint, resp.StatusCode, time.Since(start), requestID, appErr)
		return appErr
	}
	logger.LogAPICall(c.logger, method, endpoint, resp.StatusCode, time.Since(start), requestID, nil)

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return apperrors.Wrap(err, apperrors.ErrBadResponse, "解析响应失败")
	}
	return nil
}

// DecodeErrorBody 解析错误中携带的响应体
func DecodeErrorBody(err error) (*ErrorBody, bool) {
	appErr, ok := apperrors.As(err)
	if !ok || len(appErr.Body) == 0 {
		return nil, false
	}
	var body ErrorBody
	if json.Unmarshal(appErr.Body, &body) != nil {
		return nil, false
	}
	return &body, true
}

// ListSessions 获取可购买场次
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListInstances 获取玩家未结束的卡片
func (c *Client) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	endpoint := fmt.Sprintf("/api/v1/users/%s/instances", url.PathEscape(c.config.UserID))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// GetBalance 获取玩家余额
func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	var balance Balance
	endpoint := fmt.Sprintf("/api/v1/users/%s/balance", url.PathEscape(c.config.UserID))
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// RevealNumber 刮开单个号码
func (c *Client) RevealNumber(ctx context.Context, instanceID, numberID string) (*Instance, error) {
	var inst Instance
	endpoint := fmt.Sprintf("/api/v1/instances/%s/numbers/%s/reveal", url.PathEscape(instanceID), url.PathEscape(numberID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, &RevealRequest{Revealed: true}, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// RevealAll 一次刮开全部号码
func (c *Client) RevealAll(ctx context.Context, instanceID string) (*Instance, error) {
	var inst Instance
	endpoint := fmt.Sprintf("/api/v1/instances/%s/reveal-all", url.PathEscape(instanceID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Complete 结束卡片
func (c *Client) Complete(ctx context.Context, instanceID string) (*Instance, error) {
	var inst Instance
	endpoint := fmt.Sprintf("/api/v1/instances/%s/complete", url.PathEscape(instanceID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Purchase 购买卡片
func (c *Client) Purchase(ctx context.Context, req *PurchaseRequest) ([]Instance, error) {
	var instances []Instance
	endpoint := fmt.Sprintf("/api/v1/users/%s/purchase", url.PathEscape(c.config.UserID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, req, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}
