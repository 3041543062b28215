package apiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/instant-win/internal/apiclient"
	apperrors "github.com/wfunc/instant-win/internal/errors"
	"github.com/wfunc/instant-win/internal/mockapi"
	"go.uber.org/zap"
)

func setup(t *testing.T, userID string) (*mockapi.Server, *apiclient.Client) {
	gin.SetMode(gin.TestMode)
	srv, err := mockapi.NewServer(mockapi.Config{
		PIN:            "1234",
		InitialBalance: 500,
		JWTSecret:      "client-test",
		Seed:           11,
	}, zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := srv.IssueToken(userID)
	require.NoError(t, err)
	client := apiclient.NewClient(&apiclient.ClientConfig{
		BaseURL: ts.URL,
		Token:   token,
		UserID:  userID,
	}, zap.NewNop())
	return srv, client
}

func purchase(t *testing.T, client *apiclient.Client, qty int) []apiclient.Instance {
	bought, err := client.Purchase(context.Background(), &apiclient.PurchaseRequest{
		ChargeType:   apiclient.ChargeCash,
		DefinitionID: "def-lucky-7s-1",
		Quantity:     qty,
		PIN:          "1234",
	})
	require.NoError(t, err)
	return bought
}

func TestClient_SessionsAndBalance(t *testing.T) {
	_, client := setup(t, "alice")
	ctx := context.Background()

	sessions, err := client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, len(mockapi.DefaultSessions()))
	for _, sess := range sessions {
		assert.True(t, sess.Price.IsPositive())
		assert.NotEmpty(t, sess.DefinitionID)
	}

	balance, err := client.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", balance.UserID)
	assert.Equal(t, int64(500), balance.AmountCents)
}

func TestClient_PurchaseAndPlay(t *testing.T) {
	srv, client := setup(t, "alice")
	ctx := context.Background()

	bought := purchase(t, client, 2)
	require.Len(t, bought, 2)

	list, err := client.ListInstances(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, bought[0].InstanceID, list[0].InstanceID)

	inst := list[0]
	number := inst.GameplayState.LuckyNumbers[0]
	got, err := client.RevealNumber(ctx, inst.InstanceID, number.NumberID)
	require.NoError(t, err)
	assert.True(t, got.GameplayState.LuckyNumbers[0].Revealed)

	got, err = client.RevealAll(ctx, inst.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, srv.Store().Payout(inst.InstanceID), got.GameplayState.PayoutCents)

	got, err = client.Complete(ctx, inst.InstanceID)
	require.NoError(t, err)
	assert.True(t, got.Completed())

	list, err = client.ListInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClient_ConflictCarriesInstance(t *testing.T) {
	_, client := setup(t, "alice")
	ctx := context.Background()
	inst := purchase(t, client, 1)[0]
	numberID := inst.GameplayState.UserNumbers[0].NumberID

	_, err := client.RevealNumber(ctx, inst.InstanceID, numberID)
	require.NoError(t, err)

	_, err = client.RevealNumber(ctx, inst.InstanceID, numberID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperrors.StatusOf(err))
	assert.True(t, apperrors.Is(err, apperrors.ErrConflict))

	body, ok := apiclient.DecodeErrorBody(err)
	require.True(t, ok)
	require.NotNil(t, body.Instance)
	assert.Equal(t, inst.InstanceID, body.Instance.InstanceID)
}

func TestClient_StatusCodes(t *testing.T) {
	srv, client := setup(t, "alice")
	ctx := context.Background()

	t.Run("402 余额不足", func(t *testing.T) {
		_, err := client.Purchase(ctx, &apiclient.PurchaseRequest{
			ChargeType: apiclient.ChargeCash, DefinitionID: "def-lucky-7s-5", Quantity: 10, PIN: "1234",
		})
		require.Error(t, err)
		assert.Equal(t, http.StatusPaymentRequired, apperrors.StatusOf(err))
		assert.True(t, apperrors.Is(err, apperrors.ErrPurchaseDeclined))
		body, ok := apiclient.DecodeErrorBody(err)
		require.True(t, ok)
		assert.Equal(t, "余额不足", body.Title)
	})

	t.Run("401 PIN码错误", func(t *testing.T) {
		_, err := client.Purchase(ctx, &apiclient.PurchaseRequest{
			ChargeType: apiclient.ChargeCash, DefinitionID: "def-lucky-7s-1", Quantity: 1, PIN: "0000",
		})
		assert.Equal(t, http.StatusUnauthorized, apperrors.StatusOf(err))
		assert.True(t, apperrors.Is(err, apperrors.ErrAuthentication))
	})

	t.Run("400 无效参数", func(t *testing.T) {
		_, err := client.Purchase(ctx, &apiclient.PurchaseRequest{
			ChargeType: apiclient.ChargeCash, DefinitionID: "unknown", Quantity: 1, PIN: "1234",
		})
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))
	})

	t.Run("404 卡片不存在", func(t *testing.T) {
		_, err := client.Complete(ctx, "missing")
		assert.Equal(t, http.StatusNotFound, apperrors.StatusOf(err))
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("403 卡片挂起", func(t *testing.T) {
		inst := purchase(t, client, 1)[0]
		require.True(t, srv.Store().Hold(inst.InstanceID))
		_, err := client.Complete(ctx, inst.InstanceID)
		assert.Equal(t, http.StatusForbidden, apperrors.StatusOf(err))
	})

	t.Run("500 服务器错误", func(t *testing.T) {
		srv.Store().FailNext(mockapi.OpBalance, http.StatusInternalServerError)
		_, err := client.GetBalance(ctx)
		assert.True(t, apperrors.Is(err, apperrors.ErrServerInternal))
		assert.True(t, apperrors.IsRetryable(err))
	})
}

func TestClient_ExpiredOrMissingToken(t *testing.T) {
	_, client := setup(t, "alice")
	client.SetToken("")

	_, err := client.ListSessions(context.Background())
	assert.Equal(t, http.StatusUnauthorized, apperrors.StatusOf(err))
}

func TestClient_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	baseURL := ts.URL
	ts.Close()

	client := apiclient.NewClient(&apiclient.ClientConfig{
		BaseURL:    baseURL,
		UserID:     "alice",
		RetryCount: 1,
	}, zap.NewNop())

	_, err := client.ListSessions(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNetwork))
	assert.Zero(t, apperrors.StatusOf(err))
}

func TestClient_RequestIDHeader(t *testing.T) {
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get(apiclient.RequestIDHeader))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	client := apiclient.NewClient(&apiclient.ClientConfig{BaseURL: ts.URL, Token: "tok", UserID: "alice"}, nil)
	_, err := client.ListInstances(context.Background())
	require.NoError(t, err)
	_, err = client.ListSessions(context.Background())
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0])
	assert.NotEqual(t, seen[0], seen[1])
}

func slowServer(t *testing.T, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func TestClient_TimedOutPostNotRetried(t *testing.T) {
	ts, hits := slowServer(t, 150*time.Millisecond)
	client := apiclient.NewClient(&apiclient.ClientConfig{
		BaseURL:    ts.URL,
		UserID:     "alice",
		Timeout:    50 * time.Millisecond,
		RetryCount: 2,
	}, zap.NewNop())

	_, err := client.Purchase(context.Background(), &apiclient.PurchaseRequest{
		ChargeType:   apiclient.ChargeCash,
		DefinitionID: "def-lucky-7s-1",
		Quantity:     1,
		PIN:          "1234",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNetwork))
	assert.Equal(t, int32(1), hits.Load())

	_, err = client.RevealAll(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_TimedOutGetRetried(t *testing.T) {
	ts, hits := slowServer(t, 150*time.Millisecond)
	client := apiclient.NewClient(&apiclient.ClientConfig{
		BaseURL:    ts.URL,
		UserID:     "alice",
		Timeout:    50 * time.Millisecond,
		RetryCount: 2,
	}, zap.NewNop())

	_, err := client.ListInstances(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNetwork))
	assert.Equal(t, int32(3), hits.Load())
}
