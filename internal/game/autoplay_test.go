package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/game/card"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSession_AutoplayResumesAfterPendingReveal(t *testing.T) {
	api := newFakeAPI(newCard("c1", "s-1", 0))
	h := newHarness(t, api)
	s := h.session
	ctx := context.Background()

	api.revealEntered = make(chan struct{})
	api.revealGate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.OpenNumber(ctx, card.GroupLucky, 0)
	}()
	<-api.revealEntered

	s.SetAutoplay(ctx, true)
	require.Equal(t, StateAutoPlaying, s.State())

	// 请求未返回，到期的一键刮开被放弃
	h.clock.Advance(time.Second)
	assert.False(t, s.RevealInProgress())
	assert.Zero(t, s.PendingTimers())

	close(api.revealGate)
	require.NoError(t, <-done)
	assert.Equal(t, StateAutoPlaying, s.State())
	assert.Equal(t, 1, s.PendingTimers())

	h.clock.Advance(500 * time.Millisecond)
	assert.True(t, s.RevealInProgress())

	h.clock.Advance(600 * time.Millisecond)
	assert.Equal(t, 1, api.count(opRevealAll))
	assert.Equal(t, 1, api.count(opComplete))
	assert.Equal(t, StateGameOver, s.State())
}

func TestSession_AutoplayNotResumedWhenOff(t *testing.T) {
	api := newFakeAPI(newCard("c1", "s-1", 0))
	h := newHarness(t, api)
	s := h.session
	ctx := context.Background()

	api.revealEntered = make(chan struct{})
	api.revealGate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.OpenNumber(ctx, card.GroupLucky, 0)
	}()
	<-api.revealEntered

	s.SetAutoplay(ctx, true)
	s.SetAutoplay(ctx, false)
	close(api.revealGate)
	require.NoError(t, <-done)

	h.clock.Advance(5 * time.Second)
	assert.Zero(t, api.count(opRevealAll))
	assert.Equal(t, StatePlaying, s.State())
}

func TestSession_NextInstanceFailureLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	api := newFakeAPI(newCard("c1", "s-1", 0))
	cfg := testGameConfig()
	s := NewSession(api, &cfg, "alice", zap.New(core), WithClock(NewManualClock(testStart)))
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	for _, kind := range s.Flags().EnabledGroups() {
		for i := range s.Slots(kind) {
			require.NoError(t, s.OpenNumber(ctx, kind, i))
		}
	}
	require.Equal(t, StateGameOver, s.State())

	api.fail(opSessions, apiError(503, apiclient.ErrorBody{Message: "维护中"}))
	s.RevealAll(ctx)

	entries := logs.FilterMessage("切换下一张失败").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap(), "error")
}
