package session

import (
	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/game/combat"
	"github.com/palemoky/quest-arena/internal/server/storage"
	"github.com/palemoky/quest-arena/internal/types"
)

// ActionRequest 一次战斗动作
type ActionRequest struct {
	ActorID   string
	TargetID  string
	Action    combat.Action
	SkillKind combat.SkillKind
	Dice      combat.DiceSpec
}

// AssistRequest 一次协助，所有队友共享同一次掷骰
type AssistRequest struct {
	ActorID string
	AllyIDs []string
	Type    combat.AssistType
	Dice    combat.DiceSpec
}

// PerformAction 当前行动角色执行战斗动作，校验全部通过后才修改状态
func (m *Manager) PerformAction(sessionID string, caller types.Identity, req ActionRequest) (combat.Entry, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return combat.Entry{}, err
	}

	s.mu.Lock()
	if err := s.checkActorLocked(caller, req.ActorID); err != nil {
		s.mu.Unlock()
		return combat.Entry{}, err
	}
	actor := s.characters[req.ActorID]
	if actor.Incapacitated() {
		s.mu.Unlock()
		return combat.Entry{}, apperrors.ErrIncapacitated
	}
	var target *character.Character
	if req.TargetID != "" {
		target = s.characters[req.TargetID]
	}
	p := combat.Participants{
		Actor:  actor,
		Target: target,
		Allied: target != nil && m.alliedLocked(s, actor, target),
	}
	res, err := combat.Resolve(m.dice, s.Rules.Combat, p, combat.Request{
		Action:    req.Action,
		SkillKind: req.SkillKind,
		Dice:      req.Dice,
	})
	if err != nil {
		s.mu.Unlock()
		return combat.Entry{}, err
	}
	entry := m.appendLogLocked(s, actor.ID, res)
	ev := m.settleLocked(s)
	roomID := s.RoomID
	data := s.saveDataLocked()
	s.mu.Unlock()

	m.afterAction(roomID, caller.UserID, entry)
	m.save(data)
	if ev != nil {
		m.afterAdvance(*ev, caller.UserID, false)
		m.notify(ev)
	}
	return entry, nil
}

// Assist 当前行动角色协助多名队友，生成一条列出全部队友的日志
func (m *Manager) Assist(sessionID string, caller types.Identity, req AssistRequest) (combat.Entry, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return combat.Entry{}, err
	}

	s.mu.Lock()
	if err := s.checkActorLocked(caller, req.ActorID); err != nil {
		s.mu.Unlock()
		return combat.Entry{}, err
	}
	actor := s.characters[req.ActorID]
	if actor.Incapacitated() {
		s.mu.Unlock()
		return combat.Entry{}, apperrors.ErrIncapacitated
	}
	allies := make([]*character.Character, len(req.AllyIDs))
	for i, id := range req.AllyIDs {
		ally, ok := s.characters[id]
		if !ok {
			s.mu.Unlock()
			return combat.Entry{}, apperrors.WithDetail(apperrors.ErrInvalidTarget, "ally not in session")
		}
		if !m.alliedLocked(s, actor, ally) {
			s.mu.Unlock()
			return combat.Entry{}, apperrors.WithDetail(apperrors.ErrInvalidTarget, ally.DisplayName+" is not an ally")
		}
		allies[i] = ally
	}
	res, err := combat.Assist(m.dice, s.Rules.Combat, actor, allies, req.Type, req.Dice)
	if err != nil {
		s.mu.Unlock()
		return combat.Entry{}, err
	}
	entry := m.appendLogLocked(s, actor.ID, res)
	roomID := s.RoomID
	data := s.saveDataLocked()
	s.mu.Unlock()

	m.afterAction(roomID, caller.UserID, entry)
	m.save(data)
	return entry, nil
}

// alliedLocked 同阵营判断：NPC 之间互为同伴；玩家同队或都未分队时互为同伴
func (m *Manager) alliedLocked(s *Session, a, b *character.Character) bool {
	if a.ID == b.ID {
		return true
	}
	aNPC, bNPC := a.OwnerUserID == "", b.OwnerUserID == ""
	if aNPC || bNPC {
		return aNPC && bNPC
	}
	if a.OwnerUserID == b.OwnerUserID || m.rooms == nil {
		return true
	}
	teamA, okA := m.rooms.TeamOf(s.RoomID, a.OwnerUserID)
	teamB, okB := m.rooms.TeamOf(s.RoomID, b.OwnerUserID)
	if !okA && !okB {
		return true
	}
	return okA && okB && teamA == teamB
}

// appendLogLocked 以当前回合位置生成日志条目
func (m *Manager) appendLogLocked(s *Session, actorID string, res combat.Result) combat.Entry {
	entry := combat.NewEntry(s.ID, s.order.Index, actorID, res, m.now())
	s.log = append(s.log, entry)
	return entry
}

// afterAction 记录动作事件并投递审计日志，在会话锁之外调用
func (m *Manager) afterAction(roomID, userID string, e combat.Entry) {
	meta := map[string]any{
		"character_id": e.ActorID,
		"action":       string(e.Action),
		"magnitude":    e.Magnitude,
		"turn_index":   e.TurnIndex,
	}
	if e.TargetID != "" {
		meta["target_id"] = e.TargetID
	}
	m.record(analytics.Event{
		SessionID: e.SessionID,
		RoomID:    roomID,
		UserID:    userID,
		Type:      analytics.EventAction,
		Timestamp: e.Timestamp,
		Metadata:  meta,
	})
	m.enqueueAudit(storage.CombatLogRecord{
		SessionID:  e.SessionID,
		TurnIndex:  e.TurnIndex,
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		TargetID:   e.TargetID,
		AllyIDs:    e.AllyIDs,
		Rolls:      e.Rolls,
		Modifier:   e.Modifier,
		Magnitude:  e.Magnitude,
		ResultText: e.ResultText,
		CreatedAt:  e.Timestamp,
	})
	logrus.WithFields(logrus.Fields{"session": e.SessionID, "actor": e.ActorID, "action": e.Action}).Debug(e.Format())
}
