package session

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/types"
)

// SelectCharacter 玩家在会话中选择职业。每人每局一个角色；
// 会话开始前可以重新选择，开始后只能改名。
func (m *Manager) SelectCharacter(user types.Identity, sessionID, roleName, displayName string) (character.Character, error) {
	role, err := character.ParseRole(roleName)
	if err != nil {
		return character.Character{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = user.Name
	}
	if displayName == "" {
		displayName = user.UserID
	}

	s, err := m.getSession(sessionID)
	if err != nil {
		return character.Character{}, err
	}
	if m.rooms != nil && !m.rooms.IsMember(s.RoomID, user.UserID) {
		return character.Character{}, apperrors.ErrNotInRoom
	}

	s.mu.Lock()
	if s.State == StateFinished {
		s.mu.Unlock()
		return character.Character{}, apperrors.ErrSessionClosed
	}

	if existing := s.characterOfLocked(user.UserID); existing != nil {
		if s.State != StateOpen {
			s.mu.Unlock()
			return character.Character{}, apperrors.WithDetail(apperrors.ErrInvalidTransition, "character already selected")
		}
		existing.Role = role
		existing.DisplayName = displayName
		existing.Stats = character.BaseStats(role)
		existing.MaxHP = existing.Stats.HP
		out := *existing.Clone()
		data := s.saveDataLocked()
		s.mu.Unlock()
		m.save(data)
		return out, nil
	}

	c := character.New(m.newID(), s.ID, user.UserID, displayName, role)
	ev := m.addCharacterLocked(s, c)
	out := *c.Clone()
	data := s.saveDataLocked()
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"session": sessionID, "user": user.UserID, "role": role}).Info("🧙 玩家选择角色")
	m.save(data)
	m.notify(ev)
	return out, nil
}

// CreateNPC GM 添加由自己操控的角色，stats 为空时使用职业初始属性
func (m *Manager) CreateNPC(gm types.Identity, sessionID, roleName, displayName string, stats *character.Stats) (character.Character, error) {
	role, err := character.ParseRole(roleName)
	if err != nil {
		return character.Character{}, err
	}
	if stats != nil {
		if err := stats.Validate(); err != nil {
			return character.Character{}, err
		}
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = string(role)
	}

	s, err := m.getSession(sessionID)
	if err != nil {
		return character.Character{}, err
	}

	s.mu.Lock()
	if s.GMUserID != gm.UserID {
		s.mu.Unlock()
		return character.Character{}, apperrors.ErrForbidden
	}
	if s.State == StateFinished {
		s.mu.Unlock()
		return character.Character{}, apperrors.ErrSessionClosed
	}

	c := character.New(m.newID(), s.ID, "", displayName, role)
	if stats != nil {
		_ = c.SetStats(*stats)
		c.MaxHP = stats.HP
	}
	ev := m.addCharacterLocked(s, c)
	out := *c.Clone()
	data := s.saveDataLocked()
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"session": sessionID, "npc": c.ID, "role": role}).Info("👾 GM 添加 NPC")
	m.save(data)
	m.notify(ev)
	return out, nil
}

// Rename 修改角色显示名，角色所有者或 GM 可操作
func (m *Manager) Rename(caller types.Identity, charID, name string) (character.Character, error) {
	return m.editCharacter(caller, charID, false, func(s *Session, c *character.Character) error {
		return c.Rename(name)
	})
}

// SetRole 更换职业；会话开始前同时重置为新职业的初始属性
func (m *Manager) SetRole(caller types.Identity, charID, roleName string) (character.Character, error) {
	role, err := character.ParseRole(roleName)
	if err != nil {
		return character.Character{}, err
	}
	return m.editCharacter(caller, charID, false, func(s *Session, c *character.Character) error {
		c.Role = role
		if s.State == StateOpen {
			c.Stats = character.BaseStats(role)
			c.MaxHP = c.Stats.HP
		}
		return nil
	})
}

// UpdateStats GM 直接修改角色属性
func (m *Manager) UpdateStats(gm types.Identity, charID string, stats character.Stats) (character.Character, error) {
	if err := stats.Validate(); err != nil {
		return character.Character{}, err
	}
	return m.editCharacter(gm, charID, true, func(s *Session, c *character.Character) error {
		return c.SetStats(stats)
	})
}

// GetStates 读取角色当前属性
func (m *Manager) GetStates(charID string) (character.Stats, error) {
	c, err := m.GetCharacter(charID)
	if err != nil {
		return character.Stats{}, err
	}
	return c.Stats, nil
}

// GetCharacter 读取角色副本
func (m *Manager) GetCharacter(charID string) (character.Character, error) {
	s, err := m.sessionOfCharacter(charID)
	if err != nil {
		return character.Character{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[charID]
	if !ok {
		return character.Character{}, apperrors.ErrCharacterNotFound
	}
	return *c.Clone(), nil
}

// Characters 按回合顺序列出会话中的角色
func (m *Manager) Characters(sessionID string) ([]character.Character, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chars := s.orderedCharactersLocked()
	out := make([]character.Character, len(chars))
	for i, c := range chars {
		out[i] = *c.Clone()
	}
	return out, nil
}

// editCharacter 角色修改的公共流程：权限、状态检查，修改后维护回合位置
func (m *Manager) editCharacter(caller types.Identity, charID string, gmOnly bool, edit func(*Session, *character.Character) error) (character.Character, error) {
	s, err := m.sessionOfCharacter(charID)
	if err != nil {
		return character.Character{}, err
	}

	s.mu.Lock()
	c, ok := s.characters[charID]
	if !ok {
		s.mu.Unlock()
		return character.Character{}, apperrors.ErrCharacterNotFound
	}
	isGM := s.GMUserID == caller.UserID
	if !isGM && (gmOnly || c.OwnerUserID != caller.UserID) {
		s.mu.Unlock()
		return character.Character{}, apperrors.ErrForbidden
	}
	if s.State == StateFinished {
		s.mu.Unlock()
		return character.Character{}, apperrors.ErrSessionClosed
	}
	if err := edit(s, c); err != nil {
		s.mu.Unlock()
		return character.Character{}, err
	}
	ev := m.settleLocked(s)
	out := *c.Clone()
	data := s.saveDataLocked()
	s.mu.Unlock()

	m.save(data)
	if ev != nil {
		m.afterAdvance(*ev, caller.UserID, false)
		m.notify(ev)
	}
	return out, nil
}

// addCharacterLocked 登记角色并追加到回合顺序
func (m *Manager) addCharacterLocked(s *Session, c *character.Character) *TurnEvent {
	s.characters[c.ID] = c
	s.order.Append(c.ID)
	m.indexCharacter(c.ID, s.ID)
	return m.settleLocked(s)
}

// settleLocked 运行中当前角色倒下时推进回合，未移动返回 nil
func (m *Manager) settleLocked(s *Session) *TurnEvent {
	if s.State != StateRunning {
		return nil
	}
	prev := s.order.Current()
	if !s.order.Settle(s.alive) {
		return nil
	}
	m.startTurnLocked(s)
	return s.turnEventLocked(prev, false)
}

func (s *Session) characterOfLocked(userID string) *character.Character {
	for _, c := range s.characters {
		if c.OwnerUserID == userID {
			return c
		}
	}
	return nil
}
