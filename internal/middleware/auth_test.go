package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/instant-win/internal/utils"
)

func newTestRouter(jwt *utils.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := NewAuthMiddleware(jwt)
	r := gin.New()
	players := r.Group("/players/:userId", auth.RequireAuth(), auth.RequireSelf("userId"))
	players.GET("", func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.String(http.StatusOK, id)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	jwt := utils.NewJWTManager("mw-secret", time.Hour)
	r := newTestRouter(jwt)
	token, err := jwt.GenerateToken("alice")
	require.NoError(t, err)
	expired, err := utils.NewJWTManager("mw-secret", -time.Minute).GenerateToken("alice")
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		header  map[string]string
		status  int
		message string
	}{
		{"无令牌", "/players/alice", nil, http.StatusUnauthorized, "缺少认证令牌"},
		{"Bearer", "/players/alice", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK, ""},
		{"小写bearer", "/players/alice", map[string]string{"Authorization": "bearer " + token}, http.StatusOK, ""},
		{"X-Access-Token", "/players/alice", map[string]string{"X-Access-Token": token}, http.StatusOK, ""},
		{"查询参数", "/players/alice?token=" + token, nil, http.StatusOK, ""},
		{"过期", "/players/alice", map[string]string{"X-Access-Token": expired}, http.StatusUnauthorized, "令牌已过期"},
		{"伪造", "/players/alice", map[string]string{"X-Access-Token": "abc.def.ghi"}, http.StatusUnauthorized, "无效的令牌"},
		{"他人", "/players/bob", map[string]string{"X-Access-Token": token}, http.StatusForbidden, "权限不足"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "alice", w.Body.String())
				return
			}
			var body struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			}
			require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Code)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}
