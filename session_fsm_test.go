package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnSession_InitialState(t *testing.T) {
	s := newConnSession()
	assert.Equal(t, sessionNew, s.currentState())
	assert.False(t, s.requireInitialized())
}

func TestConnSession_Transition(t *testing.T) {
	s := newConnSession()
	assert.True(t, s.transition(sessionConnecting))
	assert.Equal(t, sessionConnecting, s.currentState())

	assert.True(t, s.transition(sessionReady))
	assert.True(t, s.requireInitialized())
}

func TestConnSession_TransitionFailsAfterClosed(t *testing.T) {
	s := newConnSession()
	s.disconnect()
	assert.Equal(t, sessionClosed, s.currentState())
	assert.False(t, s.transition(sessionReady))
	assert.Equal(t, sessionClosed, s.currentState())
}

func TestConnSession_DisconnectFiresOnce(t *testing.T) {
	s := newConnSession()
	s.disconnect()
	s.disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.waitForDisconnection(ctx))
}

func TestConnSession_WaitForDisconnectionRespectsContext(t *testing.T) {
	s := newConnSession()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.waitForDisconnection(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConnSession_PingLoopStopsOnDisconnect(t *testing.T) {
	s := newConnSession()
	s.transition(sessionReady)

	called := make(chan struct{}, 1)
	ping := func(ctx context.Context) error {
		select {
		case called <- struct{}{}:
		default:
		}
		return nil
	}
	// pingInterval is fixed at 30s, far longer than this test can afford to
	// wait, so this only exercises that the loop starts and stops cleanly
	// around a disconnect without ever needing the ticker to fire.
	s.startPingLoop(context.Background(), ping)
	s.disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.waitForDisconnection(ctx))
	assert.Equal(t, sessionClosed, s.currentState())
}

func TestSessionState_String(t *testing.T) {
	cases := map[sessionState]string{
		sessionNew:        "new",
		sessionConnecting: "connecting",
		sessionReady:      "ready",
		sessionClosing:    "closing",
		sessionClosed:     "closed",
		sessionState(99):  "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
