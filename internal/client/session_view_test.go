package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quest-arena/internal/protocol"
)

func TestSessionView_Apply(t *testing.T) {
	t.Parallel()

	v := NewSessionView()
	session := protocol.SessionDTO{ID: "s1", RoomID: "r1", State: "RUNNING", TurnOrder: []string{"c1", "c2"}, ActiveCharacterID: "c1"}
	require.True(t, v.Apply(protocol.MustNewMessage(protocol.MsgSessionState, protocol.SessionStatePayload{Session: session})))

	for _, ch := range []protocol.CharacterDTO{
		{ID: "c1", OwnerUserID: "alice", DisplayName: "Hero", Stats: protocol.StatsDTO{HP: 10}},
		{ID: "c2", DisplayName: "Goblin", Stats: protocol.StatsDTO{HP: 4}},
	} {
		require.True(t, v.Apply(protocol.MustNewMessage(protocol.MsgCharacterState, protocol.CharacterStatePayload{Character: ch})))
	}
	assert.True(t, v.IsMyTurn("alice"))
	assert.Equal(t, 2, v.Alive())

	require.True(t, v.Apply(protocol.MustNewMessage(protocol.MsgActionResult, protocol.ActionResultPayload{
		Entry: protocol.CombatEntryDTO{SessionID: "s1", ActorID: "c1", Action: "ATTACK", TargetID: "c2", Magnitude: 4},
	})))
	require.True(t, v.Apply(protocol.MustNewMessage(protocol.MsgCharacterState, protocol.CharacterStatePayload{
		Character: protocol.CharacterDTO{ID: "c2", DisplayName: "Goblin", Incapacitated: true},
	})))
	require.True(t, v.Apply(protocol.MustNewMessage(protocol.MsgTurnChanged, protocol.TurnChangedPayload{
		SessionID: "s1", TurnIndex: 0, ActiveCharacterID: "c1", PreviousID: "c1",
	})))

	assert.Len(t, v.RecentLog, 1)
	assert.Equal(t, 1, v.Alive())
	active, ok := v.ActiveCharacter()
	require.True(t, ok)
	assert.Equal(t, "Hero", active.DisplayName)

	// 其他会话的回合消息被忽略
	assert.False(t, v.Apply(protocol.MustNewMessage(protocol.MsgTurnChanged, protocol.TurnChangedPayload{SessionID: "other"})))
	assert.False(t, v.Apply(protocol.MustNewMessage(protocol.MsgPong, protocol.PongPayload{})))
}

func TestSessionView_OverviewReplacesState(t *testing.T) {
	t.Parallel()

	v := NewSessionView()
	v.Apply(protocol.MustNewMessage(protocol.MsgCharacterState, protocol.CharacterStatePayload{
		Character: protocol.CharacterDTO{ID: "stale"},
	}))
	v.Apply(protocol.MustNewMessage(protocol.MsgOverview, protocol.OverviewPayload{
		Session:    protocol.SessionDTO{ID: "s1", ActiveCharacterID: "c1"},
		Characters: []protocol.CharacterDTO{{ID: "c1", OwnerUserID: "bob"}},
		RecentLog:  []protocol.CombatEntryDTO{{ActorID: "c1"}},
	}))

	assert.NotContains(t, v.Characters, "stale")
	assert.True(t, v.IsMyTurn("bob"))
	assert.Len(t, v.RecentLog, 1)

	v.Apply(protocol.NewErrorMessageWithText(protocol.ErrCodeNotInRoom, "nope"))
	require.NotNil(t, v.LastError)
	assert.Equal(t, protocol.ErrCodeNotInRoom, v.LastError.Code)

	v.Reset()
	assert.Empty(t, v.Characters)
	assert.Nil(t, v.LastError)
}

func TestSessionView_RecentLogIsBounded(t *testing.T) {
	t.Parallel()

	v := NewSessionView()
	for i := range maxRecentEntries + 5 {
		v.Apply(protocol.MustNewMessage(protocol.MsgActionResult, protocol.ActionResultPayload{
			Entry: protocol.CombatEntryDTO{TurnIndex: i},
		}))
	}
	require.Len(t, v.RecentLog, maxRecentEntries)
	assert.Equal(t, maxRecentEntries+4, v.RecentLog[0].TurnIndex)
}
