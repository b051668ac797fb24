package session

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/combat"
)

// Difficulty 难度等级
type Difficulty string

const (
	DifficultyEasy      Difficulty = "EASY"
	DifficultyNormal    Difficulty = "NORMAL"
	DifficultyHard      Difficulty = "HARD"
	DifficultyNightmare Difficulty = "NIGHTMARE"
)

// Rules 会话规则配置
type Rules struct {
	Difficulty         Difficulty    `json:"difficulty"`
	TurnTimeoutSeconds int           `json:"turn_timeout_seconds"` // 0 表示不限时
	InitiativeBySpeed  bool          `json:"initiative_by_speed"`
	Combat             combat.Config `json:"combat"`
}

// 各难度的战斗参数预设
var difficultyPresets = map[Difficulty]combat.Config{
	DifficultyEasy:      {DefendBonus: 2, AssistSharePercent: 75, SkillBaseCost: 1, ItemHeal: 15},
	DifficultyNormal:    combat.DefaultConfig(),
	DifficultyHard:      {DefendBonus: 0, AssistSharePercent: 40, SkillBaseCost: 3, ItemHeal: 8},
	DifficultyNightmare: {DefendBonus: 0, AssistSharePercent: 25, SkillBaseCost: 4, ItemHeal: 5, FriendlyFire: true},
}

// DefaultRules 内置默认规则
func DefaultRules(turnTimeout time.Duration) Rules {
	return Rules{
		Difficulty:         DifficultyNormal,
		TurnTimeoutSeconds: int(turnTimeout.Seconds()),
		Combat:             combat.DefaultConfig(),
	}
}

// ParseDifficulty 解析难度等级（不区分大小写）
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := difficultyPresets[d]; !ok {
		return "", apperrors.WithDetail(apperrors.ErrInvalidOption, "unknown difficulty "+s)
	}
	return d, nil
}

// optionSetter 选项白名单，每个键负责校验并写入自己的字段
type optionSetter func(r *Rules, v any) error

var allowedOptions = map[string]optionSetter{
	"turn_timeout_seconds": intOption(0, math.MaxInt32, func(r *Rules, n int) { r.TurnTimeoutSeconds = n }),
	"initiative_by_speed":  boolOption(func(r *Rules, b bool) { r.InitiativeBySpeed = b }),
	"defend_reduction_bonus": intOption(0, math.MaxInt32, func(r *Rules, n int) {
		r.Combat.DefendBonus = n
	}),
	"assist_share_percent": intOption(1, 100, func(r *Rules, n int) { r.Combat.AssistSharePercent = n }),
	"skill_base_cost":      intOption(0, math.MaxInt32, func(r *Rules, n int) { r.Combat.SkillBaseCost = n }),
	"item_heal":            intOption(0, math.MaxInt32, func(r *Rules, n int) { r.Combat.ItemHeal = n }),
	"friendly_fire":        boolOption(func(r *Rules, b bool) { r.Combat.FriendlyFire = b }),
}

// AllowedOptions 可配置的选项名（排序后）
func AllowedOptions() []string {
	keys := make([]string, 0, len(allowedOptions))
	for k := range allowedOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// withDifficulty 以难度预设为基础应用选项，全部校验通过才返回新规则
func (r Rules) withDifficulty(level Difficulty, options map[string]any) (Rules, error) {
	next := r
	next.Difficulty = level
	next.Combat = difficultyPresets[level]

	// 按键名排序，保证错误信息稳定
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set, ok := allowedOptions[k]
		if !ok {
			return r, apperrors.WithDetail(apperrors.ErrInvalidOption, "unknown option "+k)
		}
		if err := set(&next, options[k]); err != nil {
			return r, apperrors.WithDetail(apperrors.ErrInvalidOption, fmt.Sprintf("%s: %v", k, err))
		}
	}
	return next, nil
}

func intOption(lo, hi int, apply func(*Rules, int)) optionSetter {
	return func(r *Rules, v any) error {
		n, err := toInt(v)
		if err != nil {
			return err
		}
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		apply(r, n)
		return nil
	}
}

func boolOption(apply func(*Rules, bool)) optionSetter {
	return func(r *Rules, v any) error {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		apply(r, b)
		return nil
	}
}

// toInt 接受 JSON 解码出的数字类型，拒绝小数
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %s", n)
		}
		return int(i), nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}
