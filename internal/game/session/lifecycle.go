package session

import (
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/types"
)

// Info 会话只读视图
type Info struct {
	ID                string    `json:"id"`
	RoomID            string    `json:"room_id"`
	GMUserID          string    `json:"gm_user_id"`
	State             State     `json:"state"`
	CreatedAt         time.Time `json:"created_at"`
	Rules             Rules     `json:"rules"`
	TurnOrder         []string  `json:"turn_order"`
	TurnIndex         int       `json:"turn_index"`
	ActiveCharacterID string    `json:"active_character_id,omitempty"`
}

// CreateSession 在房间内创建会话，创建者必须拥有 GM/ADMIN 角色
func (m *Manager) CreateSession(roomID string, gm types.Identity) (Info, error) {
	if !gm.CanModerate() {
		return Info{}, apperrors.WithDetail(apperrors.ErrForbidden, "only a GM can create sessions")
	}
	if m.rooms != nil && !m.rooms.Exists(roomID) {
		return Info{}, apperrors.ErrRoomNotFound
	}

	s := &Session{
		ID:         m.newID(),
		RoomID:     roomID,
		GMUserID:   gm.UserID,
		State:      StateOpen,
		CreatedAt:  m.now(),
		Rules:      m.defaults,
		characters: make(map[string]*character.Character),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	s.mu.Lock()
	info := s.infoLocked()
	data := s.saveDataLocked()
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"session": s.ID, "room": roomID, "gm": gm.UserID}).Info("🎲 会话已创建")
	m.recordState(info, "", StateOpen)
	m.save(data)
	return info, nil
}

// Get 获取会话视图
func (m *Manager) Get(sessionID string) (Info, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked(), nil
}

// List 所有会话视图，按创建时间排序
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		infos = append(infos, s.infoLocked())
		s.mu.Unlock()
	}
	slices.SortFunc(infos, func(a, b Info) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return infos
}

// Start OPEN → RUNNING，至少需要一个角色
func (m *Manager) Start(gm types.Identity, sessionID string) (Info, error) {
	return m.transition(gm, sessionID, func(s *Session) (*TurnEvent, error) {
		if s.State != StateOpen {
			return nil, apperrors.WithDetail(apperrors.ErrInvalidTransition, "start requires OPEN, got "+string(s.State))
		}
		if len(s.order.IDs) == 0 {
			return nil, apperrors.WithDetail(apperrors.ErrInvalidTransition, "session has no characters")
		}
		if s.Rules.InitiativeBySpeed {
			s.order.SortBySpeed(func(id string) int { return s.characters[id].Stats.Speed })
		} else {
			s.order.Index = 0
		}
		s.order.Settle(s.alive)
		s.State = StateRunning
		m.startTurnLocked(s)
		return s.turnEventLocked("", false), nil
	})
}

// Pause RUNNING → PAUSED，记录已用时间供概览展示剩余时间
func (m *Manager) Pause(gm types.Identity, sessionID string) (Info, error) {
	return m.transition(gm, sessionID, func(s *Session) (*TurnEvent, error) {
		if s.State != StateRunning {
			return nil, apperrors.WithDetail(apperrors.ErrInvalidTransition, "pause requires RUNNING, got "+string(s.State))
		}
		s.elapsed = m.now().Sub(s.turnStartedAt)
		s.stopTimerLocked()
		s.State = StatePaused
		return nil, nil
	})
}

// Resume PAUSED → RUNNING，当前回合重新获得完整时长，暂停前的用时不计入
func (m *Manager) Resume(gm types.Identity, sessionID string) (Info, error) {
	return m.transition(gm, sessionID, func(s *Session) (*TurnEvent, error) {
		if s.State != StatePaused {
			return nil, apperrors.WithDetail(apperrors.ErrInvalidTransition, "resume requires PAUSED, got "+string(s.State))
		}
		s.State = StateRunning
		s.turnStartedAt = m.now()
		s.elapsed = 0
		m.armTimerLocked(s)
		return nil, nil
	})
}

// Finish RUNNING/PAUSED → FINISHED（终态）
func (m *Manager) Finish(gm types.Identity, sessionID string) (Info, error) {
	return m.transition(gm, sessionID, func(s *Session) (*TurnEvent, error) {
		if s.State != StateRunning && s.State != StatePaused {
			return nil, apperrors.WithDetail(apperrors.ErrInvalidTransition, "finish requires RUNNING or PAUSED, got "+string(s.State))
		}
		s.stopTimerLocked()
		s.State = StateFinished
		return nil, nil
	})
}

// SetDifficulty 按难度预设重置战斗参数并应用白名单内的选项，未知选项整体拒绝
func (m *Manager) SetDifficulty(gm types.Identity, sessionID, level string, options map[string]any) (Info, error) {
	difficulty, err := ParseDifficulty(level)
	if err != nil {
		return Info{}, err
	}
	return m.transition(gm, sessionID, func(s *Session) (*TurnEvent, error) {
		next, err := s.Rules.withDifficulty(difficulty, options)
		if err != nil {
			return nil, err
		}
		m.applyRulesLocked(s, next)
		return nil, nil
	})
}

// ApplyDefaultRules 恢复内置默认规则
func (m *Manager) ApplyDefaultRules(gm types.Identity, sessionID string) (Info, error) {
	return m.transition(gm, sessionID, func(s *Session) (*TurnEvent, error) {
		m.applyRulesLocked(s, m.defaults)
		return nil, nil
	})
}

// applyRulesLocked 超时配置变化时按新时长重新计时
func (m *Manager) applyRulesLocked(s *Session, next Rules) {
	timeoutChanged := next.TurnTimeoutSeconds != s.Rules.TurnTimeoutSeconds
	s.Rules = next
	if timeoutChanged && s.State == StateRunning {
		m.armTimerLocked(s)
	}
}

// transition 所属 GM 执行的会话级操作，FINISHED 之后一律拒绝
func (m *Manager) transition(gm types.Identity, sessionID string, apply func(s *Session) (*TurnEvent, error)) (Info, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return Info{}, err
	}

	s.mu.Lock()
	if gm.UserID != s.GMUserID {
		s.mu.Unlock()
		return Info{}, apperrors.ErrForbidden
	}
	if s.State == StateFinished {
		s.mu.Unlock()
		return Info{}, apperrors.ErrSessionClosed
	}
	from := s.State
	ev, err := apply(s)
	if err != nil {
		s.mu.Unlock()
		return Info{}, err
	}
	info := s.infoLocked()
	data := s.saveDataLocked()
	s.mu.Unlock()

	if from != info.State {
		logrus.WithFields(logrus.Fields{"session": sessionID, "from": from, "to": info.State}).Info("🎲 会话状态变更")
		m.recordState(info, from, info.State)
	}
	m.save(data)
	m.notify(ev)
	return info, nil
}

func (m *Manager) recordState(info Info, from, to State) {
	m.record(analytics.Event{
		SessionID: info.ID,
		RoomID:    info.RoomID,
		UserID:    info.GMUserID,
		Type:      analytics.EventSessionState,
		Metadata:  map[string]any{"from": string(from), "to": string(to)},
	})
}

func (s *Session) infoLocked() Info {
	return Info{
		ID:                s.ID,
		RoomID:            s.RoomID,
		GMUserID:          s.GMUserID,
		State:             s.State,
		CreatedAt:         s.CreatedAt,
		Rules:             s.Rules,
		TurnOrder:         slices.Clone(s.order.IDs),
		TurnIndex:         s.order.Index,
		ActiveCharacterID: s.activeLocked(),
	}
}

// activeLocked 运行中的当前行动角色，未开始时为空
func (s *Session) activeLocked() string {
	if s.State == StateOpen {
		return ""
	}
	return s.order.Current()
}

func (s *Session) alive(id string) bool {
	c, ok := s.characters[id]
	return ok && !c.Incapacitated()
}

func (s *Session) turnEventLocked(previousID string, auto bool) *TurnEvent {
	return &TurnEvent{
		SessionID:         s.ID,
		RoomID:            s.RoomID,
		TurnIndex:         s.order.Index,
		ActiveCharacterID: s.order.Current(),
		PreviousID:        previousID,
		Auto:              auto,
	}
}

// orderedCharactersLocked 按回合顺序排列的角色
func (s *Session) orderedCharactersLocked() []*character.Character {
	out := make([]*character.Character, 0, len(s.characters))
	for _, id := range s.order.IDs {
		if c, ok := s.characters[id]; ok {
			out = append(out, c)
		}
	}
	return out
}
