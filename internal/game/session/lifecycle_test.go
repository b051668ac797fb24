package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/types"
)

func TestCreateSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{TurnTimeout: 45 * time.Second})
	info, err := f.m.Get(f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, testRoomID, info.RoomID)
	assert.Equal(t, "gm", info.GMUserID)
	assert.Equal(t, StateOpen, info.State)
	assert.Equal(t, testStart, info.CreatedAt)
	assert.Equal(t, 45, info.Rules.TurnTimeoutSeconds)
	assert.Empty(t, info.ActiveCharacterID)

	_, err = f.m.CreateSession(testRoomID, player("alice"))
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.m.CreateSession("999999", gmIdent())
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)

	_, err = f.m.Get("missing")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	second, err := f.m.CreateSession(testRoomID, gmIdent())
	require.NoError(t, err)
	list := f.m.List()
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []string{f.sessionID, second.ID}, []string{list[0].ID, list[1].ID})
}

func TestLifecycle_FullCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "alice")
	_, err := f.m.Start(gmIdent(), f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, "no characters yet")

	alice := f.selectChar(t, "alice", "warrior")

	_, err = f.m.Pause(gmIdent(), f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	_, err = f.m.Finish(gmIdent(), f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition, "finish needs RUNNING or PAUSED")

	info := f.start(t)
	assert.Equal(t, StateRunning, info.State)
	assert.Equal(t, alice.ID, info.ActiveCharacterID)

	_, err = f.m.Start(gmIdent(), f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	_, err = f.m.Resume(gmIdent(), f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	info, err = f.m.Pause(gmIdent(), f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, StatePaused, info.State)

	info, err = f.m.Resume(gmIdent(), f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, info.State)

	info, err = f.m.Finish(gmIdent(), f.sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateFinished, info.State)

	// 终态之后所有修改操作都返回 SessionClosed
	_, err = f.m.Resume(gmIdent(), f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)
	_, err = f.m.SetDifficulty(gmIdent(), f.sessionID, "EASY", nil)
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)
	_, err = f.m.EndTurn(f.sessionID, player("alice"), alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)
	_, err = f.m.SelectCharacter(player("alice"), f.sessionID, "MAGE", "again")
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)
	_, err = f.m.Rename(player("alice"), alice.ID, "new")
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)
}

func TestLifecycle_OnlyOwningGM(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "alice")
	f.selectChar(t, "alice", "rogue")

	otherGM := types.Identity{UserID: "gm2", Role: types.RoleGM}
	_, err := f.m.Start(otherGM, f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.m.Start(player("alice"), f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	f.start(t)
	_, err = f.m.Pause(otherGM, f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.m.Finish(player("alice"), f.sessionID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestStart_InitiativeBySpeed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "warrior", "rogue", "mage")
	_, err := f.m.SetDifficulty(gmIdent(), f.sessionID, "normal", map[string]any{"initiative_by_speed": true})
	require.NoError(t, err)

	w := f.selectChar(t, "warrior", "WARRIOR") // speed 4
	r := f.selectChar(t, "rogue", "ROGUE")     // speed 8
	m := f.selectChar(t, "mage", "MAGE")       // speed 5

	info := f.start(t)
	assert.Equal(t, []string{r.ID, m.ID, w.ID}, info.TurnOrder)
	assert.Equal(t, r.ID, info.ActiveCharacterID)
}

func TestSelectCharacter(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "alice")

	_, err := f.m.SelectCharacter(player("mallory"), f.sessionID, "MAGE", "m")
	assert.ErrorIs(t, err, apperrors.ErrNotInRoom)
	_, err = f.m.SelectCharacter(player("alice"), f.sessionID, "BARD", "a")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	first := f.selectChar(t, "alice", "MAGE")
	assert.Equal(t, 18, first.Stats.HP)
	assert.Equal(t, "alice", first.OwnerUserID)

	// 开始前重新选择只更换职业，不新增角色
	again, err := f.m.SelectCharacter(player("alice"), f.sessionID, "WARRIOR", "Alice the Bold")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 30, again.Stats.HP)
	assert.Equal(t, "Alice the Bold", again.DisplayName)

	chars, err := f.m.Characters(f.sessionID)
	require.NoError(t, err)
	assert.Len(t, chars, 1)

	f.start(t)
	_, err = f.m.SelectCharacter(player("alice"), f.sessionID, "ROGUE", "x")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestCharacterEdits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "alice", "bob")
	alice := f.selectChar(t, "alice", "HEALER")

	renamed, err := f.m.Rename(player("alice"), alice.ID, "  Medic ")
	require.NoError(t, err)
	assert.Equal(t, "Medic", renamed.DisplayName)

	_, err = f.m.Rename(player("bob"), alice.ID, "hijack")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.m.Rename(player("alice"), "nope", "x")
	assert.ErrorIs(t, err, apperrors.ErrCharacterNotFound)

	changed, err := f.m.SetRole(gmIdent(), alice.ID, "mage")
	require.NoError(t, err)
	assert.Equal(t, "MAGE", string(changed.Role))
	assert.Equal(t, 20, changed.Stats.MP, "stats rebased before start")

	_, err = f.m.UpdateStats(player("alice"), alice.ID, *hpStats(99))
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "only the GM edits stats")
	_, err = f.m.UpdateStats(gmIdent(), alice.ID, *hpStats(-1))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.m.UpdateStats(gmIdent(), alice.ID, *hpStats(7))
	require.NoError(t, err)
	stats, err := f.m.GetStates(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.HP)
}

func TestCreateNPC(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{})
	_, err := f.m.CreateNPC(player("alice"), f.sessionID, "WARRIOR", "orc", nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	orc := f.npc(t, "orc", hpStats(12))
	assert.Empty(t, orc.OwnerUserID)
	assert.Equal(t, 12, orc.Stats.HP)
	assert.Equal(t, 12, orc.MaxHP)
}
