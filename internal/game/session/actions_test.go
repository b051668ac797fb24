package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/combat"
	"github.com/palemoky/quest-arena/internal/server/storage"
	"github.com/palemoky/quest-arena/internal/testutil"
)

// 2d6+3 掷出 [4,5]，总计 12，对 8 血目标造成伤害后 hp 归零
func TestPerformAction_AttackScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "alice")
	f.m.SetDiceForTest(testutil.NewFixedDice(4, 5))
	alice := f.selectChar(t, "alice", "WARRIOR")
	goblin := f.npc(t, "goblin", hpStats(8))
	f.start(t)

	entry, err := f.m.PerformAction(f.sessionID, player("alice"), ActionRequest{
		ActorID:  alice.ID,
		TargetID: goblin.ID,
		Action:   combat.ActionAttack,
		Dice:     combat.DiceSpec{Count: 2, Sides: 6, Modifier: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, entry.Rolls)
	assert.Equal(t, 3, entry.Modifier)
	assert.Equal(t, 12, entry.Magnitude)
	assert.Equal(t, 0, entry.TurnIndex)
	assert.Equal(t, goblin.ID, entry.TargetID)

	stats, err := f.m.GetStates(goblin.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.HP)

	// 目标已倒下，再次攻击被拒绝
	_, err = f.m.PerformAction(f.sessionID, player("alice"), ActionRequest{
		ActorID: alice.ID, TargetID: goblin.ID, Action: combat.ActionAttack,
		Dice: combat.DiceSpec{Count: 1, Sides: 6},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	// 倒下的哥布林被跳过，回合回到 alice
	ev, err := f.m.EndTurn(f.sessionID, player("alice"), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, ev.ActiveCharacterID)
}

func TestPerformAction_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "alice", "bob")
	alice := f.selectChar(t, "alice", "WARRIOR")
	bob := f.selectChar(t, "bob", "MAGE")
	goblin := f.npc(t, "goblin", hpStats(20))

	wait := ActionRequest{ActorID: alice.ID, Action: combat.ActionWait}
	_, err := f.m.PerformAction(f.sessionID, player("alice"), wait)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotRunning)

	f.start(t)

	_, err = f.m.PerformAction(f.sessionID, player("bob"), ActionRequest{ActorID: bob.ID, Action: combat.ActionWait})
	assert.ErrorIs(t, err, apperrors.ErrNotYourTurn)

	_, err = f.m.PerformAction(f.sessionID, player("alice"), ActionRequest{
		ActorID: alice.ID, TargetID: "ghost", Action: combat.ActionAttack,
		Dice: combat.DiceSpec{Count: 1, Sides: 6},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	// 都未分队的玩家互为同伴，友军伤害默认关闭
	_, err = f.m.PerformAction(f.sessionID, player("alice"), ActionRequest{
		ActorID: alice.ID, TargetID: bob.ID, Action: combat.ActionAttack,
		Dice: combat.DiceSpec{Count: 1, Sides: 6},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	_, err = f.m.PerformAction(f.sessionID, player("alice"), ActionRequest{
		ActorID: alice.ID, TargetID: goblin.ID, Action: combat.ActionAttack,
		Dice: combat.DiceSpec{Count: 0, Sides: 6},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidDice)

	// warrior mp 5 < 2 + |4|，失败时不修改任何状态
	_, err = f.m.PerformAction(f.sessionID, player("alice"), ActionRequest{
		ActorID: alice.ID, TargetID: goblin.ID, Action: combat.ActionSkill,
		Dice: combat.DiceSpec{Count: 1, Sides: 6, Modifier: 4},
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientResource)

	stats, err := f.m.GetStates(goblin.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.HP)
	logs, err := f.m.ListRecent(context.Background(), f.sessionID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestPerformAction_OpposingTeamsMayAttack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "alice", "bob")
	f.m.SetDiceForTest(testutil.NewFixedDice(3))
	alice := f.selectChar(t, "alice", "WARRIOR")
	bob := f.selectChar(t, "bob", "MAGE")

	red, err := f.rooms.CreateTeam(gmIdent(), testRoomID, "Red")
	require.NoError(t, err)
	blue, err := f.rooms.CreateTeam(gmIdent(), testRoomID, "Blue")
	require.NoError(t, err)
	require.NoError(t, f.rooms.AddMemberToTeam(gmIdent(), testRoomID, red.ID, "alice"))
	require.NoError(t, f.rooms.AddMemberToTeam(gmIdent(), testRoomID, blue.ID, "bob"))
	f.start(t)

	entry, err := f.m.PerformAction(f.sessionID, player("alice"), ActionRequest{
		ActorID: alice.ID, TargetID: bob.ID, Action: combat.ActionAttack,
		Dice: combat.DiceSpec{Count: 1, Sides: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Magnitude)

	stats, err := f.m.GetStates(bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, stats.HP)
}

func TestDefend_GuardAbsorbsUntilOwnNextTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "alice")
	f.m.SetDiceForTest(testutil.NewFixedDice(4))
	alice := f.selectChar(t, "alice", "WARRIOR")
	goblin := f.npc(t, "goblin", hpStats(10))
	f.start(t)

	_, err := f.m.PerformAction(f.sessionID, player("alice"), ActionRequest{
		ActorID: alice.ID, Action: combat.ActionDefend, Dice: combat.DiceSpec{Count: 1, Sides: 6},
	})
	require.NoError(t, err)
	c, err := f.m.GetCharacter(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Guard)

	_, err = f.m.EndTurn(f.sessionID, player("alice"), alice.ID)
	require.NoError(t, err)
	_, err = f.m.EndTurn(f.sessionID, gmIdent(), goblin.ID)
	require.NoError(t, err)

	c, err = f.m.GetCharacter(alice.ID)
	require.NoError(t, err)
	assert.Zero(t, c.Guard, "guard expires when alice acts again")
}

func TestAssist_SharesOneRoll(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{}, "carol", "alice", "bob")
	f.m.SetDiceForTest(testutil.NewFixedDice(4, 5))
	carol := f.selectChar(t, "carol", "HEALER")
	alice := f.selectChar(t, "alice", "WARRIOR")
	bob := f.selectChar(t, "bob", "MAGE")
	goblin := f.npc(t, "goblin", hpStats(10))

	_, err := f.m.UpdateStats(gmIdent(), alice.ID, *hpStats(20))
	require.NoError(t, err)
	_, err = f.m.UpdateStats(gmIdent(), bob.ID, *hpStats(10))
	require.NoError(t, err)
	f.start(t)

	_, err = f.m.Assist(f.sessionID, player("carol"), AssistRequest{
		ActorID: carol.ID, AllyIDs: []string{goblin.ID}, Type: combat.AssistHeal,
		Dice: combat.DiceSpec{Count: 2, Sides: 6},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget, "npc is not an ally of a player")

	entry, err := f.m.Assist(f.sessionID, player("carol"), AssistRequest{
		ActorID: carol.ID, AllyIDs: []string{alice.ID, bob.ID}, Type: combat.AssistHeal,
		Dice: combat.DiceSpec{Count: 2, Sides: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, combat.ActionAssist, entry.Action)
	assert.Equal(t, []string{alice.ID, bob.ID}, entry.AllyIDs)
	assert.Equal(t, 9, entry.Magnitude)

	a, err := f.m.GetStates(alice.ID)
	require.NoError(t, err)
	b, err := f.m.GetStates(bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 24, a.HP, "50% of 9 is 4 per ally")
	assert.Equal(t, 14, b.HP)

	logs, err := f.m.ListRecent(context.Background(), f.sessionID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestListRecent_NewestFirstAndAudit(t *testing.T) {
	t.Parallel()

	audit := new(testutil.MockCombatLogStore)
	audit.On("AppendCombatLog", mock.Anything, mock.Anything).Return(nil)

	f := newFixture(t, Options{Audit: audit})
	c1 := f.npc(t, "C1", hpStats(10))
	f.start(t)

	for i := range 3 {
		f.clock.Advance(1)
		_, err := f.m.PerformAction(f.sessionID, gmIdent(), ActionRequest{ActorID: c1.ID, Action: combat.ActionWait})
		require.NoError(t, err, "wait %d", i)
	}

	ctx := context.Background()
	page, err := f.m.ListRecent(ctx, f.sessionID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Timestamp.After(page[1].Timestamp))

	rest, err := f.m.ListRecent(ctx, f.sessionID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.True(t, rest[0].Timestamp.Before(page[1].Timestamp))
	assert.Contains(t, rest[0].Format(), "WAIT")

	_, err = f.m.ListRecent(ctx, f.sessionID, -1, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	f.m.Close()
	audit.AssertNumberOfCalls(t, "AppendCombatLog", 3)
}

func TestListRecent_FallsBackToAudit(t *testing.T) {
	t.Parallel()

	audit := new(testutil.MockCombatLogStore)
	f := newFixture(t, Options{Audit: audit})
	audit.On("ListCombatLog", mock.Anything, f.sessionID, 50, 0).Return([]storage.CombatLogRecord{
		{SessionID: f.sessionID, TurnIndex: 4, ActorID: "c9", Action: "ATTACK", Rolls: []int{6}, Magnitude: 6, ResultText: "hit", CreatedAt: testStart},
	}, nil)

	logs, err := f.m.ListRecent(context.Background(), f.sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, combat.ActionAttack, logs[0].Action)
	assert.Equal(t, 4, logs[0].TurnIndex)
	audit.AssertExpectations(t)
}

// 全员倒下时当前角色仍占据回合，但不能出手；结束回合仍然允许
func TestPerformAction_IncapacitatedActorRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Options{})
	c1 := f.npc(t, "C1", hpStats(10))
	c2 := f.npc(t, "C2", hpStats(10))
	f.start(t)

	_, err := f.m.UpdateStats(gmIdent(), c1.ID, *hpStats(0))
	require.NoError(t, err)
	_, err = f.m.UpdateStats(gmIdent(), c2.ID, *hpStats(0))
	require.NoError(t, err)

	active := f.active(t)
	other := c1.ID
	if active == c1.ID {
		other = c2.ID
	}

	for _, action := range []combat.Action{combat.ActionDefend, combat.ActionWait} {
		_, err = f.m.PerformAction(f.sessionID, gmIdent(), ActionRequest{ActorID: active, Action: action})
		assert.ErrorIs(t, err, apperrors.ErrIncapacitated, action)
	}
	_, err = f.m.PerformAction(f.sessionID, gmIdent(), ActionRequest{
		ActorID: active, TargetID: other, Action: combat.ActionAttack,
		Dice: combat.DiceSpec{Count: 1, Sides: 6},
	})
	assert.ErrorIs(t, err, apperrors.ErrIncapacitated)
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

	_, err = f.m.Assist(f.sessionID, gmIdent(), AssistRequest{
		ActorID: active, AllyIDs: []string{other}, Type: combat.AssistHeal,
		Dice: combat.DiceSpec{Count: 1, Sides: 6},
	})
	assert.ErrorIs(t, err, apperrors.ErrIncapacitated)

	logs, err := f.m.ListRecent(context.Background(), f.sessionID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, err = f.m.EndTurn(f.sessionID, gmIdent(), active)
	require.NoError(t, err)
}
