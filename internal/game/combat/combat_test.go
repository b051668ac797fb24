package combat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/character"
)

// seqSource 按顺序返回预设点数
type seqSource struct {
	faces []int
	pos   int
}

func (s *seqSource) IntN(n int) int {
	v := s.faces[s.pos%len(s.faces)]
	s.pos++
	return (v - 1) % n
}

func rolls(faces ...int) *seqSource { return &seqSource{faces: faces} }

func newChar(id, name string, role character.Role) *character.Character {
	return character.New(id, "s1", "", name, role)
}

func TestResolve_AttackScenario(t *testing.T) {
	t.Parallel()

	actor := newChar("a", "Aria", character.RoleWarrior)
	target := newChar("t", "Goblin", character.RoleRogue)
	require.NoError(t, target.SetStats(character.Stats{HP: 8, MP: 0, AP: 1, Speed: 1}))

	res, err := Resolve(rolls(4, 5), DefaultConfig(), Participants{Actor: actor, Target: target}, Request{
		Action: ActionAttack,
		Dice:   DiceSpec{Count: 2, Sides: 6, Modifier: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 12, res.Magnitude)
	assert.Equal(t, 8, res.Applied)
	assert.Equal(t, 0, target.Stats.HP)
	assert.True(t, target.Incapacitated())
	assert.Equal(t, []int{4, 5}, res.Roll.Dice)
	assert.Contains(t, res.Text, "Goblin is down")
}

func TestResolve_DefendConsumedByNextAttack(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.DefendBonus = 1
	defender := newChar("d", "Knight", character.RoleWarrior)
	attacker := newChar("a", "Orc", character.RoleWarrior)

	res, err := Resolve(rolls(3), cfg, Participants{Actor: defender}, Request{
		Action: ActionDefend,
		Dice:   DiceSpec{Count: 1, Sides: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Applied)
	assert.Equal(t, 4, defender.Guard)

	_, err = Resolve(rolls(6), cfg, Participants{Actor: attacker, Target: defender}, Request{
		Action: ActionAttack,
		Dice:   DiceSpec{Count: 1, Sides: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, 30-2, defender.Stats.HP)
	assert.Zero(t, defender.Guard)

	_, err = Resolve(rolls(6), cfg, Participants{Actor: attacker, Target: defender}, Request{
		Action: ActionAttack,
		Dice:   DiceSpec{Count: 1, Sides: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, 30-8, defender.Stats.HP)
}

func TestResolve_SkillCostsMP(t *testing.T) {
	t.Parallel()

	mage := newChar("m", "Mage", character.RoleMage)
	target := newChar("t", "Troll", character.RoleWarrior)

	res, err := Resolve(rolls(5), DefaultConfig(), Participants{Actor: mage, Target: target}, Request{
		Action: ActionSkill,
		Dice:   DiceSpec{Count: 1, Sides: 6, Modifier: -2},
	})
	require.NoError(t, err)

	// cost = base 2 + |modifier| 2
	assert.Equal(t, 20-4, mage.Stats.MP)
	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, 27, target.Stats.HP)
}

func TestResolve_SkillHeal(t *testing.T) {
	t.Parallel()

	healer := newChar("h", "Cleric", character.RoleHealer)
	ally := newChar("w", "Tank", character.RoleWarrior)
	ally.TakeDamage(10)

	res, err := Resolve(rolls(6, 6), DefaultConfig(), Participants{Actor: healer, Target: ally, Allied: true}, Request{
		Action:    ActionSkill,
		SkillKind: SkillHeal,
		Dice:      DiceSpec{Count: 2, Sides: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Applied)
	assert.Equal(t, ally.MaxHP, ally.Stats.HP)
}

func TestResolve_InsufficientMPLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	rogue := newChar("r", "Rogue", character.RoleRogue)
	require.NoError(t, rogue.SetStats(character.Stats{HP: 10, MP: 1, AP: 1, Speed: 1}))
	target := newChar("t", "Troll", character.RoleWarrior)

	_, err := Resolve(rolls(6), DefaultConfig(), Participants{Actor: rogue, Target: target}, Request{
		Action: ActionSkill,
		Dice:   DiceSpec{Count: 1, Sides: 6},
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientResource)
	assert.Equal(t, 1, rogue.Stats.MP)
	assert.Equal(t, 30, target.Stats.HP)
}

func TestResolve_ItemHealsFixedAmount(t *testing.T) {
	t.Parallel()

	actor := newChar("a", "Aria", character.RoleRogue)
	target := newChar("t", "Bob", character.RoleWarrior)
	target.TakeDamage(25)

	res, err := Resolve(nil, DefaultConfig(), Participants{Actor: actor, Target: target, Allied: true}, Request{Action: ActionItem})
	require.NoError(t, err)
	assert.Nil(t, res.Roll)
	assert.Equal(t, 10, res.Applied)
	assert.Equal(t, 15, target.Stats.HP)
}

func TestResolve_WaitAlwaysSucceeds(t *testing.T) {
	t.Parallel()

	actor := newChar("a", "Aria", character.RoleRogue)
	res, err := Resolve(nil, DefaultConfig(), Participants{Actor: actor}, Request{Action: ActionWait})
	require.NoError(t, err)
	assert.Equal(t, ActionWait, res.Action)
	assert.Equal(t, "Aria waits", res.Text)
}

func TestResolve_Validation(t *testing.T) {
	t.Parallel()

	down := newChar("d", "Down", character.RoleRogue)
	require.NoError(t, down.SetStats(character.Stats{}))
	other := character.New("o", "s2", "", "Other", character.RoleRogue)

	tests := []struct {
		name    string
		target  *character.Character
		allied  bool
		req     Request
		wantErr error
	}{
		{"missing target", nil, false, Request{Action: ActionAttack, Dice: DiceSpec{1, 6, 0}}, apperrors.ErrInvalidTarget},
		{"incapacitated target", down, false, Request{Action: ActionAttack, Dice: DiceSpec{1, 6, 0}}, apperrors.ErrInvalidTarget},
		{"other session", other, false, Request{Action: ActionAttack, Dice: DiceSpec{1, 6, 0}}, apperrors.ErrInvalidTarget},
		{"friendly fire", newChar("f", "Friend", character.RoleMage), true, Request{Action: ActionAttack, Dice: DiceSpec{1, 6, 0}}, apperrors.ErrInvalidTarget},
		{"bad dice", newChar("e", "Enemy", character.RoleMage), false, Request{Action: ActionAttack, Dice: DiceSpec{0, 6, 0}}, apperrors.ErrInvalidDice},
		{"unknown action", nil, false, Request{Action: "DANCE"}, apperrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			actor := newChar("a", "Aria", character.RoleWarrior)
			_, err := Resolve(rolls(3), DefaultConfig(), Participants{Actor: actor, Target: tt.target, Allied: tt.allied}, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAssist_SharesSingleRoll(t *testing.T) {
	t.Parallel()

	actor := newChar("a", "Bard", character.RoleHealer)
	ally1 := newChar("b", "Tank", character.RoleWarrior)
	ally2 := newChar("c", "Rogue", character.RoleRogue)
	ally1.TakeDamage(10)
	ally2.TakeDamage(10)

	src := rolls(4, 4)
	res, err := Assist(src, DefaultConfig(), actor, []*character.Character{ally1, ally2}, AssistHeal, DiceSpec{Count: 2, Sides: 6})
	require.NoError(t, err)

	assert.Equal(t, 2, src.pos, "exactly one roll of two dice")
	assert.Equal(t, ActionAssist, res.Action)
	assert.Equal(t, []string{"b", "c"}, res.AllyIDs)
	assert.Equal(t, 8, res.Magnitude)
	assert.Equal(t, 24, ally1.Stats.HP)
	assert.Equal(t, 16, ally2.Stats.HP)
}

func TestAssist_ShieldAndFocus(t *testing.T) {
	t.Parallel()

	actor := newChar("a", "Bard", character.RoleHealer)
	ally := newChar("b", "Tank", character.RoleWarrior)

	_, err := Assist(rolls(6), DefaultConfig(), actor, []*character.Character{ally}, AssistShield, DiceSpec{Count: 1, Sides: 6})
	require.NoError(t, err)
	assert.Equal(t, 3, ally.Guard)

	_, err = Assist(rolls(6), DefaultConfig(), actor, []*character.Character{ally}, AssistFocus, DiceSpec{Count: 1, Sides: 6})
	require.NoError(t, err)
	assert.Equal(t, 5+3, ally.Stats.MP)
}

func TestAssist_Validation(t *testing.T) {
	t.Parallel()

	actor := newChar("a", "Bard", character.RoleHealer)
	ally := newChar("b", "Tank", character.RoleWarrior)
	down := newChar("d", "Down", character.RoleWarrior)
	require.NoError(t, down.SetStats(character.Stats{}))

	_, err := Assist(rolls(1), DefaultConfig(), actor, nil, AssistHeal, DiceSpec{1, 6, 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	_, err = Assist(rolls(1), DefaultConfig(), actor, []*character.Character{actor}, AssistHeal, DiceSpec{1, 6, 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	_, err = Assist(rolls(1), DefaultConfig(), actor, []*character.Character{ally, ally}, AssistHeal, DiceSpec{1, 6, 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	_, err = Assist(rolls(1), DefaultConfig(), actor, []*character.Character{ally, down}, AssistHeal, DiceSpec{1, 6, 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTarget)

	_, err = Assist(rolls(1), DefaultConfig(), actor, []*character.Character{ally}, "DANCE", DiceSpec{1, 6, 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = Assist(rolls(1), DefaultConfig(), actor, []*character.Character{ally}, AssistHeal, DiceSpec{1, 0, 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidDice)
}

func TestEntry_Format(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	actor := newChar("a", "Aria", character.RoleWarrior)
	target := newChar("t", "Goblin", character.RoleRogue)

	res, err := Resolve(rolls(4, 5), DefaultConfig(), Participants{Actor: actor, Target: target}, Request{
		Action: ActionAttack,
		Dice:   DiceSpec{Count: 2, Sides: 6, Modifier: 3},
	})
	require.NoError(t, err)

	entry := NewEntry("s1", 2, actor.ID, res, at)
	assert.Equal(t, "t", entry.TargetID)
	assert.Equal(t, 3, entry.Modifier)
	assert.Equal(t, "[15:04:05] turn 2 · ATTACK 🎲 4+5+3 = 12 · Aria attacks Goblin for 12 damage", entry.Format())

	wait := NewEntry("s1", 3, actor.ID, Result{Action: ActionWait, Text: "Aria waits"}, at)
	assert.Equal(t, "[15:04:05] turn 3 · WAIT · Aria waits", wait.Format())
}

func TestParseAction(t *testing.T) {
	t.Parallel()

	a, err := ParseAction("attack")
	require.NoError(t, err)
	assert.Equal(t, ActionAttack, a)

	_, err = ParseAction("assist")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
