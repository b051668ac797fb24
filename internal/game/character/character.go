// Package character holds per-character combat state.
package character

import (
	"strings"

	"github.com/palemoky/quest-arena/internal/apperrors"
)

// Role 角色职业
type Role string

const (
	RoleWarrior Role = "WARRIOR"
	RoleMage    Role = "MAGE"
	RoleRogue   Role = "ROGUE"
	RoleHealer  Role = "HEALER"
)

// baseStats 各职业初始属性
var baseStats = map[Role]Stats{
	RoleWarrior: {HP: 30, MP: 5, AP: 3, Speed: 4},
	RoleMage:    {HP: 18, MP: 20, AP: 2, Speed: 5},
	RoleRogue:   {HP: 22, MP: 8, AP: 4, Speed: 8},
	RoleHealer:  {HP: 20, MP: 16, AP: 2, Speed: 6},
}

// ParseRole 解析职业名（不区分大小写）
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := baseStats[role]; !ok {
		return "", apperrors.WithDetail(apperrors.ErrInvalidInput, "unknown role "+s)
	}
	return role, nil
}

// BaseStats 返回职业初始属性
func BaseStats(role Role) Stats {
	return baseStats[role]
}

// Stats 角色属性，均为非负整数
type Stats struct {
	HP    int `json:"hp"`
	MP    int `json:"mp"`
	AP    int `json:"ap"`
	Speed int `json:"speed"`
}

// Validate 检查属性非负
func (s Stats) Validate() error {
	if s.HP < 0 || s.MP < 0 || s.AP < 0 || s.Speed < 0 {
		return apperrors.WithDetail(apperrors.ErrInvalidInput, "stats must be non-negative")
	}
	return nil
}

// Character 会话中的角色
type Character struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	OwnerUserID string `json:"owner_user_id,omitempty"` // 空表示 NPC
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	Stats       Stats  `json:"stats"`
	MaxHP       int    `json:"max_hp"`
	Guard       int    `json:"guard"` // DEFEND 产生的待消耗减伤
}

// New 按职业初始属性创建角色
func New(id, sessionID, ownerUserID, displayName string, role Role) *Character {
	stats := BaseStats(role)
	return &Character{
		ID:          id,
		SessionID:   sessionID,
		OwnerUserID: ownerUserID,
		DisplayName: displayName,
		Role:        role,
		Stats:       stats,
		MaxHP:       stats.HP,
	}
}

// Incapacitated hp 为 0 的角色不能行动
func (c *Character) Incapacitated() bool {
	return c.Stats.HP == 0
}

// TakeDamage 扣除生命值（先由护盾抵消），返回实际扣除量
func (c *Character) TakeDamage(amount int) int {
	if amount <= 0 {
		return 0
	}
	if c.Guard > 0 {
		absorbed := min(c.Guard, amount)
		amount -= absorbed
		c.Guard = 0
	}
	dealt := min(amount, c.Stats.HP)
	c.Stats.HP -= dealt
	return dealt
}

// Heal 回复生命值，不超过上限，返回实际回复量
func (c *Character) Heal(amount int) int {
	if amount <= 0 {
		return 0
	}
	healed := min(amount, c.MaxHP-c.Stats.HP)
	if healed < 0 {
		healed = 0
	}
	c.Stats.HP += healed
	return healed
}

// SpendMP 消耗法力
func (c *Character) SpendMP(cost int) error {
	if cost > c.Stats.MP {
		return apperrors.WithDetail(apperrors.ErrInsufficientResource, "not enough mp")
	}
	c.Stats.MP -= cost
	return nil
}

// AddGuard 叠加护盾
func (c *Character) AddGuard(amount int) {
	if amount > 0 {
		c.Guard += amount
	}
}

// SetStats 直接修改属性，hp 超过上限时上限随之提高
func (c *Character) SetStats(stats Stats) error {
	if err := stats.Validate(); err != nil {
		return err
	}
	c.Stats = stats
	if stats.HP > c.MaxHP {
		c.MaxHP = stats.HP
	}
	return nil
}

// Rename 修改显示名
func (c *Character) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.WithDetail(apperrors.ErrInvalidInput, "display name is empty")
	}
	c.DisplayName = name
	return nil
}

// Clone 深拷贝
func (c *Character) Clone() *Character {
	cp := *c
	return &cp
}
