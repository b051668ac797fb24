// Package combat resolves a single combat action against character state.
//
// Resolution is two-phase: every check (target, dice, resources) runs first
// and the character state is only touched once all of them have passed, so a
// failed action never leaves a partial effect behind.
package combat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/game/dice"
)

// Action 战斗动作
type Action string

const (
	ActionAttack Action = "ATTACK"
	ActionDefend Action = "DEFEND"
	ActionSkill  Action = "SKILL"
	ActionItem   Action = "ITEM"
	ActionWait   Action = "WAIT"
	ActionAssist Action = "ASSIST"
)

// SkillKind 技能效果类型
type SkillKind string

const (
	SkillDamage SkillKind = "DAMAGE"
	SkillHeal   SkillKind = "HEAL"
)

// AssistType 协助类型
type AssistType string

const (
	AssistHeal   AssistType = "HEAL"
	AssistShield AssistType = "SHIELD"
	AssistFocus  AssistType = "FOCUS"
)

// ParseAction 解析动作名
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionAttack, ActionDefend, ActionSkill, ActionItem, ActionWait:
		return a, nil
	}
	return "", apperrors.WithDetail(apperrors.ErrInvalidInput, "unknown action "+s)
}

// Config 战斗规则参数（来自会话规则）
type Config struct {
	DefendBonus        int  `json:"defend_bonus"`
	AssistSharePercent int  `json:"assist_share_percent"`
	SkillBaseCost      int  `json:"skill_base_cost"`
	ItemHeal           int  `json:"item_heal"`
	FriendlyFire       bool `json:"friendly_fire"`
}

// DefaultConfig 默认战斗参数
func DefaultConfig() Config {
	return Config{
		DefendBonus:        0,
		AssistSharePercent: 50,
		SkillBaseCost:      2,
		ItemHeal:           10,
		FriendlyFire:       false,
	}
}

// DiceSpec 掷骰参数
type DiceSpec struct {
	Count    int `json:"count"`
	Sides    int `json:"sides"`
	Modifier int `json:"modifier"`
}

// Request 一次动作请求
type Request struct {
	Action    Action
	SkillKind SkillKind
	Dice      DiceSpec
}

// Participants 参与者，Allied 表示目标与行动者同阵营
type Participants struct {
	Actor  *character.Character
	Target *character.Character
	Allied bool
}

// Result 结算结果
type Result struct {
	Action    Action
	TargetID  string
	AllyIDs   []string
	Roll      *dice.Roll
	Magnitude int // 掷骰总值（下限 0）
	Applied   int // 实际生效量（伤害、治疗或护盾）
	Text      string
}

// Resolve 结算 ATTACK / DEFEND / SKILL / ITEM / WAIT
func Resolve(src dice.Source, cfg Config, p Participants, req Request) (Result, error) {
	actor := p.Actor
	if actor == nil {
		return Result{}, apperrors.ErrCharacterNotFound
	}

	if err := validateTarget(cfg, p, req); err != nil {
		return Result{}, err
	}

	res := Result{Action: req.Action}
	if p.Target != nil {
		res.TargetID = p.Target.ID
	}

	switch req.Action {
	case ActionWait:
		res.Text = fmt.Sprintf("%s waits", actor.DisplayName)
		return res, nil

	case ActionItem:
		res.Magnitude = cfg.ItemHeal
		res.Applied = p.Target.Heal(cfg.ItemHeal)
		res.Text = fmt.Sprintf("%s uses an item on %s, restoring %d hp", actor.DisplayName, p.Target.DisplayName, res.Applied)
		return res, nil
	}

	roll, err := rollFor(src, req.Dice)
	if err != nil {
		return Result{}, err
	}
	res.Roll = &roll
	res.Magnitude = roll.Magnitude()

	// 技能消耗在掷骰之后、修改状态之前检查
	cost := 0
	if req.Action == ActionSkill {
		cost = cfg.SkillBaseCost + abs(req.Dice.Modifier)
		if actor.Stats.MP < cost {
			return Result{}, apperrors.WithDetail(apperrors.ErrInsufficientResource,
				fmt.Sprintf("skill needs %d mp, have %d", cost, actor.Stats.MP))
		}
	}

	switch req.Action {
	case ActionAttack:
		res.Applied = p.Target.TakeDamage(res.Magnitude)
		res.Text = fmt.Sprintf("%s attacks %s for %d damage", actor.DisplayName, p.Target.DisplayName, res.Applied)
	case ActionDefend:
		guard := res.Magnitude + cfg.DefendBonus
		actor.AddGuard(guard)
		res.Applied = guard
		res.Text = fmt.Sprintf("%s defends, blocking up to %d", actor.DisplayName, guard)
	case ActionSkill:
		_ = actor.SpendMP(cost)
		if req.SkillKind == SkillHeal {
			res.Applied = p.Target.Heal(res.Magnitude)
			res.Text = fmt.Sprintf("%s casts a healing skill on %s for %d", actor.DisplayName, p.Target.DisplayName, res.Applied)
		} else {
			res.Applied = p.Target.TakeDamage(res.Magnitude)
			res.Text = fmt.Sprintf("%s casts a skill on %s for %d damage", actor.DisplayName, p.Target.DisplayName, res.Applied)
		}
	}

	if p.Target != nil && p.Target.Incapacitated() && res.Applied > 0 && isHarmful(req) {
		res.Text += fmt.Sprintf(", %s is down", p.Target.DisplayName)
	}
	return res, nil
}

// Assist 一次掷骰，结果按固定比例分给每个队友
func Assist(src dice.Source, cfg Config, actor *character.Character, allies []*character.Character, kind AssistType, spec DiceSpec) (Result, error) {
	if actor == nil {
		return Result{}, apperrors.ErrCharacterNotFound
	}
	switch kind {
	case AssistHeal, AssistShield, AssistFocus:
	default:
		return Result{}, apperrors.WithDetail(apperrors.ErrInvalidInput, "unknown assist type "+string(kind))
	}
	if len(allies) == 0 {
		return Result{}, apperrors.WithDetail(apperrors.ErrInvalidTarget, "no allies given")
	}

	seen := make(map[string]bool, len(allies))
	ids := make([]string, 0, len(allies))
	for _, ally := range allies {
		switch {
		case ally == nil:
			return Result{}, apperrors.WithDetail(apperrors.ErrInvalidTarget, "ally not in session")
		case ally.ID == actor.ID:
			return Result{}, apperrors.WithDetail(apperrors.ErrInvalidTarget, "cannot assist self")
		case ally.Incapacitated():
			return Result{}, apperrors.WithDetail(apperrors.ErrInvalidTarget, ally.DisplayName+" is incapacitated")
		case seen[ally.ID]:
			return Result{}, apperrors.WithDetail(apperrors.ErrInvalidTarget, "duplicate ally "+ally.ID)
		}
		seen[ally.ID] = true
		ids = append(ids, ally.ID)
	}

	roll, err := rollFor(src, spec)
	if err != nil {
		return Result{}, err
	}

	share := roll.Magnitude() * cfg.AssistSharePercent / 100
	res := Result{
		Action:    ActionAssist,
		AllyIDs:   ids,
		Roll:      &roll,
		Magnitude: roll.Magnitude(),
	}

	names := make([]string, 0, len(allies))
	for _, ally := range allies {
		switch kind {
		case AssistHeal:
			res.Applied += ally.Heal(share)
		case AssistShield:
			ally.AddGuard(share)
			res.Applied += share
		case AssistFocus:
			ally.Stats.MP += share
			res.Applied += share
		}
		names = append(names, ally.DisplayName)
	}

	res.Text = fmt.Sprintf("%s assists %s (%s %d each)", actor.DisplayName, strings.Join(names, ", "), strings.ToLower(string(kind)), share)
	return res, nil
}

func validateTarget(cfg Config, p Participants, req Request) error {
	switch req.Action {
	case ActionWait, ActionDefend:
		return nil
	case ActionAttack, ActionSkill, ActionItem:
	default:
		return apperrors.WithDetail(apperrors.ErrInvalidInput, "unknown action "+string(req.Action))
	}

	if p.Target == nil {
		return apperrors.WithDetail(apperrors.ErrInvalidTarget, "target not in session")
	}
	if p.Target.SessionID != p.Actor.SessionID {
		return apperrors.WithDetail(apperrors.ErrInvalidTarget, "target belongs to another session")
	}
	if p.Target.Incapacitated() {
		return apperrors.WithDetail(apperrors.ErrInvalidTarget, p.Target.DisplayName+" is incapacitated")
	}
	if req.Action == ActionSkill && req.SkillKind != "" && req.SkillKind != SkillDamage && req.SkillKind != SkillHeal {
		return apperrors.WithDetail(apperrors.ErrInvalidInput, "unknown skill kind "+string(req.SkillKind))
	}
	if isHarmful(req) && p.Allied && !cfg.FriendlyFire {
		return apperrors.WithDetail(apperrors.ErrInvalidTarget, "friendly fire is disabled")
	}
	return nil
}

func isHarmful(req Request) bool {
	return req.Action == ActionAttack || (req.Action == ActionSkill && req.SkillKind != SkillHeal)
}

func rollFor(src dice.Source, spec DiceSpec) (dice.Roll, error) {
	roll, err := dice.RollDice(src, spec.Count, spec.Sides, spec.Modifier)
	if errors.Is(err, dice.ErrInvalidDiceSpec) {
		return dice.Roll{}, apperrors.Wrap(apperrors.ErrInvalidDice, err)
	}
	return roll, err
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
