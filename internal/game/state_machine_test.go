package game

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type StateMachineTestSuite struct {
	suite.Suite
	sm      *StateMachine
	ready   bool
	changes []string
}

func (suite *StateMachineTestSuite) SetupTest() {
	suite.ready = false
	suite.changes = nil
	suite.sm = NewStateMachine(zap.NewNop(), nil)
	suite.sm.OnStateChange(func(from, to GameState, event string) {
		suite.changes = append(suite.changes, string(from)+">"+string(to))
	})
	suite.sm.AddTransition(StateTransition{From: StateInitializing, Event: EventBootstrapped, To: StateSetup})
	suite.sm.AddTransition(StateTransition{From: StateSetup, Event: EventParsed, To: StateStandBy})
	suite.sm.AddTransition(StateTransition{From: StateStandBy, Event: EventReveal, To: StatePlaying})
	suite.sm.AddTransition(StateTransition{From: StatePlaying, Event: EventAllRevealed, To: StateRevealed,
		Guard: func() bool { return suite.ready }})
	for _, from := range AllStates {
		suite.sm.AddTransition(StateTransition{From: from, Event: EventReset, To: StateInitializing})
	}
}

func (suite *StateMachineTestSuite) TestInitialState() {
	suite.Equal(StateInitializing, suite.sm.GetState())
	suite.Empty(suite.sm.Pending())
}

func (suite *StateMachineTestSuite) TestStepCommitsOneTransition() {
	ctx := context.Background()
	suite.sm.Request(EventBootstrapped)
	suite.sm.Request(EventParsed)

	moved, err := suite.sm.Step(ctx)
	suite.NoError(err)
	suite.True(moved)
	suite.Equal(StateSetup, suite.sm.GetState())
	suite.Equal([]string{EventParsed}, suite.sm.Pending())

	moved, err = suite.sm.Step(ctx)
	suite.NoError(err)
	suite.True(moved)
	suite.Equal(StateStandBy, suite.sm.GetState())
	suite.Equal([]string{"INITIALIZING>SETUP", "SETUP>STAND_BY"}, suite.changes)
}

func (suite *StateMachineTestSuite) TestGuardKeepsRequestQueued() {
	ctx := context.Background()
	suite.sm.Request(EventBootstrapped)
	suite.sm.Request(EventParsed)
	suite.sm.Request(EventReveal)
	suite.Equal(3, suite.sm.Drain(ctx))

	suite.sm.Request(EventAllRevealed)
	suite.Zero(suite.sm.Drain(ctx))
	suite.Equal(StatePlaying, suite.sm.GetState())
	suite.True(suite.sm.IsPending(EventAllRevealed))
	suite.False(suite.sm.CanTransition(EventAllRevealed))

	suite.ready = true
	suite.True(suite.sm.CanTransition(EventAllRevealed))
	suite.Equal(1, suite.sm.Drain(ctx))
	suite.Equal(StateRevealed, suite.sm.GetState())
	suite.False(suite.sm.IsPending(EventAllRevealed))
}

func (suite *StateMachineTestSuite) TestInvalidRequestDropped() {
	suite.sm.Request(EventReveal)
	suite.Zero(suite.sm.Drain(context.Background()))
	suite.Equal(StateInitializing, suite.sm.GetState())
	suite.Empty(suite.sm.Pending())
}

func (suite *StateMachineTestSuite) TestRequestDeduplicates() {
	suite.sm.Request(EventBootstrapped)
	suite.sm.Request(EventBootstrapped)
	suite.Len(suite.sm.Pending(), 1)
}

func (suite *StateMachineTestSuite) TestCancel() {
	suite.sm.Request(EventBootstrapped)
	suite.True(suite.sm.Cancel(EventBootstrapped))
	suite.False(suite.sm.Cancel(EventBootstrapped))
	suite.Zero(suite.sm.Drain(context.Background()))
	suite.Equal(StateInitializing, suite.sm.GetState())
}

func (suite *StateMachineTestSuite) TestResetTransitionClearsQueue() {
	ctx := context.Background()
	suite.sm.Request(EventBootstrapped)
	suite.sm.Drain(ctx)

	suite.sm.Request(EventReset)
	suite.sm.Request(EventParsed)
	suite.Equal(1, suite.sm.Drain(ctx))
	suite.Equal(StateInitializing, suite.sm.GetState())
	suite.Empty(suite.sm.Pending())
}

func (suite *StateMachineTestSuite) TestForcedReset() {
	ctx := context.Background()
	suite.sm.Request(EventBootstrapped)
	suite.sm.Drain(ctx)
	suite.sm.Request(EventReveal)

	suite.sm.Reset()
	suite.Equal(StateInitializing, suite.sm.GetState())
	suite.Empty(suite.sm.Pending())
}

func (suite *StateMachineTestSuite) TestActionErrorBlocksTransition() {
	suite.sm.AddTransition(StateTransition{
		From: StateInitializing, Event: EventNext, To: StateGameOver,
		Action: func(ctx context.Context, from, to GameState) error {
			return errors.New("失败")
		},
	})
	suite.sm.Request(EventNext)

	moved, err := suite.sm.Step(context.Background())
	suite.Error(err)
	suite.False(moved)
	suite.Equal(StateInitializing, suite.sm.GetState())
	suite.Empty(suite.changes)
}

func (suite *StateMachineTestSuite) TestFirstPassingGuardWins() {
	auto := false
	suite.sm.AddTransition(StateTransition{From: StateSetup, Event: EventAutoplayOn, To: StateAutoPlaying,
		Guard: func() bool { return auto }})
	suite.sm.AddTransition(StateTransition{From: StateSetup, Event: EventAutoplayOn, To: StateStandBy})

	suite.sm.Request(EventBootstrapped)
	suite.sm.Drain(context.Background())
	suite.sm.Request(EventAutoplayOn)
	suite.sm.Drain(context.Background())
	suite.Equal(StateStandBy, suite.sm.GetState())
	suite.Contains(suite.sm.GetValidEvents(), EventReveal)
}

func TestStateMachineTestSuite(t *testing.T) {
	suite.Run(t, new(StateMachineTestSuite))
}
