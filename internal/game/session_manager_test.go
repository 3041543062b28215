package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/instant-win/internal/game/card"
	"github.com/wfunc/instant-win/internal/repository"
	"go.uber.org/zap"
)

type managerFixture struct {
	manager *SessionManager
	clock   *ManualClock
	results repository.CardResultRepository
	apis    map[string]*fakeAPI
}

func newManagerFixture(t *testing.T, maxSessions int) *managerFixture {
	t.Helper()
	f := &managerFixture{
		clock:   NewManualClock(testStart),
		results: repository.NewCardResultRepository(repository.TestDB(t)),
		apis:    make(map[string]*fakeAPI),
	}
	cfg := testGameConfig()
	f.manager = NewSessionManager(&SessionConfig{
		Logger: zap.NewNop(),
		Game:   &cfg,
		NewAPI: func(userID string) (GameAPI, error) {
			if userID == "broken" {
				return nil, errors.New("无法连接")
			}
			api := newFakeAPI(newCard(userID+"-c1", "s-1", 0), newCard(userID+"-c2", "s-1", 300))
			f.apis[userID] = api
			return api, nil
		},
		Results:        f.results,
		Clock:          f.clock,
		SessionTimeout: 10 * time.Minute,
		MaxSessions:    maxSessions,
	})
	t.Cleanup(f.manager.CloseAll)
	return f
}

func playCurrent(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	for _, kind := range s.Flags().EnabledGroups() {
		for i := range s.Slots(kind) {
			require.NoError(t, s.OpenNumber(ctx, kind, i))
		}
	}
}

func TestSessionManager_GetOrCreate(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()

	ms, err := f.manager.GetOrCreate(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, StateStandBy, ms.Session.State())

	again, err := f.manager.GetOrCreate(ctx, "alice", nil)
	require.NoError(t, err)
	assert.Same(t, ms, again)
	assert.Equal(t, 1, f.manager.GetActiveSessions())

	_, err = f.manager.GetOrCreate(ctx, "broken", nil)
	assert.Error(t, err)
	assert.Equal(t, 1, f.manager.GetActiveSessions())
}

func TestSessionManager_MaxSessions(t *testing.T) {
	f := newManagerFixture(t, 1)
	ctx := context.Background()

	_, err := f.manager.GetOrCreate(ctx, "alice", nil)
	require.NoError(t, err)
	_, err = f.manager.GetOrCreate(ctx, "bob", nil)
	assert.Error(t, err)

	require.NoError(t, f.manager.RemoveSession("alice"))
	assert.Error(t, f.manager.RemoveSession("alice"))
	_, err = f.manager.GetOrCreate(ctx, "bob", nil)
	assert.NoError(t, err)
}

func TestSessionManager_RecordsCardResults(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()
	listener := &recordingListener{}

	ms, err := f.manager.GetOrCreate(ctx, "alice", listener)
	require.NoError(t, err)

	playCurrent(t, ms.Session)
	assert.Equal(t, StateGameOver, ms.Session.State())
	assert.Contains(t, listener.States(), StateGameOver)
	assert.Equal(t, 1, ms.CardsPlayed())

	record, err := f.results.FindByInstanceID(ctx, "alice-c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", record.UserID)
	assert.Equal(t, testGameID, record.GameID)
	assert.Equal(t, "s-1", record.SessionID)
	assert.Equal(t, int64(100), record.WagerCents)
	assert.Zero(t, record.PayoutCents)
	assert.Equal(t, card.WinZero.String(), record.WinLevel)
	assert.Equal(t, OutcomeCompleted.String(), record.Outcome)

	// 同一张卡片重复上报只统计一次
	f.manager.recordResult(ms, ms.Session.LastResult())
	assert.Equal(t, 1, ms.CardsPlayed())

	// 第二张中奖卡片
	require.NoError(t, ms.Session.NextInstance(ctx))
	playCurrent(t, ms.Session)
	assert.Equal(t, StateWinAnimations, ms.Session.State())
	assert.Equal(t, 1, ms.CardsPlayed())
	ms.Session.WinAnimationComplete(ctx)
	assert.Equal(t, StateGameOver, ms.Session.State())
	assert.Equal(t, 2, ms.CardsPlayed())

	record, err = f.results.FindByInstanceID(ctx, "alice-c2")
	require.NoError(t, err)
	assert.Equal(t, int64(100), record.WagerCents)
	assert.Equal(t, int64(300), record.PayoutCents)
	assert.Equal(t, card.WinNormal.String(), record.WinLevel)

	stats, err := f.manager.GetSessionStats("alice")
	require.NoError(t, err)
	assert.Equal(t, 2, stats["cards_played"])
	assert.Equal(t, int64(200), stats["total_wager"])
	assert.Equal(t, int64(300), stats["total_payout"])
	assert.InDelta(t, 150.0, stats["rtp"], 0.001)
}

func TestSessionManager_CleanupInactiveSessions(t *testing.T) {
	f := newManagerFixture(t, 0)
	ctx := context.Background()

	_, err := f.manager.GetOrCreate(ctx, "alice", nil)
	require.NoError(t, err)
	f.clock.Advance(6 * time.Minute)
	_, err = f.manager.GetOrCreate(ctx, "bob", nil)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, f.manager.CleanupInactiveSessions())

	_, err = f.manager.GetSession("alice")
	assert.Error(t, err)
	_, err = f.manager.GetSession("bob")
	assert.NoError(t, err)

	_, err = f.manager.GetSessionStats("alice")
	assert.Error(t, err)
}
