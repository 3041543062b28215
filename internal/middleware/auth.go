package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/instant-win/internal/errors"
	"github.com/wfunc/instant-win/internal/utils"
)

// 上下文键
const (
	ContextUserID = "userID"
	ContextToken  = "token"
)

// AuthMiddleware 玩家令牌认证
type AuthMiddleware struct {
	jwt *utils.JWTManager
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(jwt *utils.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// RequireAuth 校验令牌并把玩家ID写入上下文
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			Abort(c, apperrors.New(apperrors.ErrAuthentication, "缺少认证令牌"))
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		switch {
		case errors.Is(err, utils.ErrExpiredToken):
			Abort(c, apperrors.New(apperrors.ErrTokenExpired))
			return
		case err != nil:
			Abort(c, apperrors.New(apperrors.ErrTokenInvalid))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextToken, token)
		c.Next()
	}
}

// RequireSelf 路径参数 param 必须是令牌所属玩家，需在 RequireAuth 之后使用
func (m *AuthMiddleware) RequireSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := GetUserID(c); !ok || userID != c.Param(param) {
			Abort(c, apperrors.New(apperrors.ErrPermissionDenied))
			return
		}
		c.Next()
	}
}

// Abort 以 {code, message} 响应体终止请求，code 为HTTP状态码
func Abort(c *gin.Context, err *apperrors.AppError) {
	status := err.HTTPStatus()
	msg := err.Message
	if err.Details != "" {
		msg = err.Details
	}
	c.AbortWithStatusJSON(status, gin.H{"code": status, "message": msg})
}

// extractToken 依次查找 Authorization、X-Access-Token 与 token 查询参数
func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}
	// WebSocket握手无法带请求头
	return c.Query("token")
}

// GetUserID 从上下文获取玩家ID
func GetUserID(c *gin.Context) (string, bool) {
	id, ok := c.Get(ContextUserID)
	if !ok {
		return "", false
	}
	s, ok := id.(string)
	return s, ok
}
