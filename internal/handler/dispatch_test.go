package handler

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/protocol"
)

func TestDispatcher_Rejections(t *testing.T) {
	t.Run("unknown event", func(t *testing.T) {
		g := newTestGame(t, "alice")

		g.dispatch(t, "alice", "teleport", `{}`)

		e, ok := lastError(g.peers["alice"])
		require.True(t, ok)
		assert.True(t, hasCode(e, apperrors.ErrCodeUnknownEvent))
		assert.Equal(t, "teleport", e.Event)
	})

	t.Run("payload claims another player", func(t *testing.T) {
		g := newTestGame(t, "alice", "bob")

		g.dispatch(t, "alice", protocol.EventRequestMatch, `{"playerId":"bob"}`)

		e, ok := lastError(g.peers["alice"])
		require.True(t, ok)
		assert.True(t, hasCode(e, apperrors.ErrCodeValidation))
		assert.Equal(t, model.PresenceIdle, g.registry.Presence("alice"))
		assert.Equal(t, model.PresenceIdle, g.registry.Presence("bob"))
		assert.Empty(t, g.peers["bob"].Events())
	})

	t.Run("missing required field", func(t *testing.T) {
		g := newTestGame(t, "alice")

		g.dispatch(t, "alice", protocol.EventDeclineChallenge, `{}`)

		e, ok := lastError(g.peers["alice"])
		require.True(t, ok)
		assert.True(t, hasCode(e, apperrors.ErrCodeMissingRequired))
	})

	t.Run("declining an unknown challenge", func(t *testing.T) {
		g := newTestGame(t, "alice")

		g.dispatch(t, "alice", protocol.EventDeclineChallenge,
			fmt.Sprintf(`{"challengeUuid":%q}`, uuid.NewString()))

		e, ok := lastError(g.peers["alice"])
		require.True(t, ok)
		assert.True(t, hasCode(e, apperrors.ErrCodeNotFound))
		assert.Equal(t, protocol.EventDeclineChallenge, e.Event)
	})
}

func TestDispatcher_SendChallenge(t *testing.T) {
	t.Run("unknown receiver is reported as cannot send", func(t *testing.T) {
		g := newTestGame(t, "alice")

		g.dispatch(t, "alice", protocol.EventSendChallenge, `{"receiverUsername":"nobody"}`)

		rejections := eventsOf[protocol.CannotSendChallenge](g.peers["alice"])
		require.Len(t, rejections, 1)
		assert.Equal(t, apperrors.ErrCodePlayerNotFound, rejections[0].Code)
		assert.Equal(t, "Player does not exist", rejections[0].Error)
		assert.Empty(t, eventsOf[protocol.Error](g.peers["alice"]))
	})

	t.Run("delivered to both parties", func(t *testing.T) {
		g := newTestGame(t, "alice", "bob")

		g.dispatch(t, "alice", protocol.EventSendChallenge,
			`{"senderId":"alice","senderUsername":"alice","receiverUsername":"bob"}`)

		require.Len(t, eventsOf[protocol.ChallengeSent](g.peers["alice"]), 1)
		require.Len(t, eventsOf[protocol.NewChallenge](g.peers["bob"]), 1)
	})
}

func TestDispatcher_RaceFlow(t *testing.T) {
	g := newTestGame(t, "alice", "bob")

	g.dispatch(t, "alice", protocol.EventSendChallenge, `{"receiverUsername":"bob"}`)
	incoming := eventsOf[protocol.NewChallenge](g.peers["bob"])
	require.Len(t, incoming, 1)

	g.dispatch(t, "bob", protocol.EventAcceptChallenge,
		fmt.Sprintf(`{"receiverId":"bob","challengeUuid":%q}`, incoming[0].Challenge.UUID))

	found := eventsOf[protocol.MatchFound](g.peers["alice"])
	require.Len(t, found, 1)
	require.Len(t, eventsOf[protocol.MatchFound](g.peers["bob"]), 1)
	sessionID := found[0].SessionID

	g.dispatch(t, "alice", protocol.EventLoaded, "")
	g.dispatch(t, "bob", protocol.EventLoaded, fmt.Sprintf(`{"sessionId":%q}`, sessionID))
	require.Len(t, eventsOf[protocol.Start](g.peers["alice"]), 1)

	g.dispatch(t, "alice", protocol.EventKeystroke, `{"event":{"key":"i"}}`)
	relayed := eventsOf[protocol.KeystrokeRelay](g.peers["bob"])
	require.Len(t, relayed, 1)
	assert.JSONEq(t, `{"key":"i"}`, string(relayed[0].Event))

	g.dispatch(t, "bob", protocol.EventValidate, `{"submissionText":"hello"}`)
	require.Len(t, eventsOf[protocol.Fail](g.peers["bob"]), 1)
	assert.Empty(t, eventsOf[protocol.Fail](g.peers["alice"]))

	g.dispatch(t, "alice", protocol.EventValidate, `{"submissionText":"hello world"}`)
	finish := eventsOf[protocol.Finish](g.peers["bob"])
	require.Len(t, finish, 1)
	assert.Equal(t, "alice", finish[0].WinnerID)

	assert.Equal(t, model.PresenceIdle, g.registry.Presence("alice"))
	assert.Equal(t, model.PresenceIdle, g.registry.Presence("bob"))
	assert.Empty(t, eventsOf[protocol.Error](g.peers["alice"]))
	assert.Empty(t, eventsOf[protocol.Error](g.peers["bob"]))
}

func TestDispatcher_Matchmaking(t *testing.T) {
	g := newTestGame(t, "alice")

	g.dispatch(t, "alice", protocol.EventRequestMatch, "")
	require.Len(t, eventsOf[protocol.MatchmakingQueued](g.peers["alice"]), 1)

	g.dispatch(t, "alice", protocol.EventRequestMatch, "")
	e, ok := lastError(g.peers["alice"])
	require.True(t, ok)
	assert.True(t, hasCode(e, apperrors.ErrCodeConflict))

	g.dispatch(t, "alice", protocol.EventCancelMatchmaking, "")
	assert.Len(t, eventsOf[protocol.MatchmakingCancelled](g.peers["alice"]), 1)
	assert.Equal(t, model.PresenceIdle, g.registry.Presence("alice"))
}
