package session

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/server/storage"
	"github.com/palemoky/quest-arena/internal/types"
)

// EndTurn 结束当前角色的回合，调用者必须是角色所有者或会话 GM
func (m *Manager) EndTurn(sessionID string, caller types.Identity, actorCharID string) (TurnEvent, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return TurnEvent{}, err
	}

	s.mu.Lock()
	if err := s.checkActorLocked(caller, actorCharID); err != nil {
		s.mu.Unlock()
		return TurnEvent{}, err
	}
	ev := m.advanceLocked(s)
	data := s.saveDataLocked()
	s.mu.Unlock()

	m.afterAdvance(*ev, caller.UserID, false)
	m.save(data)
	m.notify(ev)
	return *ev, nil
}

// EndTurnOnTimeout 由超时机制调用，强制结束当前角色的回合并打上 AUTO_TIMEOUT 标记。
// 不校验 actorCharID 是否为当前角色；回合用时不足 maxDuration 时不推进并返回 false。
func (m *Manager) EndTurnOnTimeout(sessionID, actorCharID string, maxDuration time.Duration) (bool, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	switch s.State {
	case StateFinished:
		s.mu.Unlock()
		return false, apperrors.ErrSessionClosed
	case StateRunning:
	default:
		s.mu.Unlock()
		return false, apperrors.ErrSessionNotRunning
	}
	if m.now().Sub(s.turnStartedAt) < maxDuration {
		s.mu.Unlock()
		return false, nil
	}
	if current := s.order.Current(); current != actorCharID {
		logrus.WithFields(logrus.Fields{"session": sessionID, "expected": actorCharID, "current": current}).Debug("超时结束的不是预期角色")
	}
	ev := m.advanceLocked(s)
	ev.Auto = true
	data := s.saveDataLocked()
	s.mu.Unlock()

	m.afterAdvance(*ev, "", true)
	m.save(data)
	m.notify(ev)
	return true, nil
}

// checkActorLocked 回合动作的公共前置检查
func (s *Session) checkActorLocked(caller types.Identity, actorCharID string) error {
	switch s.State {
	case StateFinished:
		return apperrors.ErrSessionClosed
	case StateRunning:
	default:
		return apperrors.ErrSessionNotRunning
	}
	actor, ok := s.characters[actorCharID]
	if !ok {
		return apperrors.ErrCharacterNotFound
	}
	if actor.OwnerUserID != caller.UserID && s.GMUserID != caller.UserID {
		return apperrors.ErrForbidden
	}
	if s.order.Current() != actorCharID {
		return apperrors.ErrNotYourTurn
	}
	return nil
}

// advanceLocked 推进到下一个存活角色并开始新回合
func (m *Manager) advanceLocked(s *Session) *TurnEvent {
	prev := s.order.Current()
	s.order.Advance(s.alive)
	m.startTurnLocked(s)
	return s.turnEventLocked(prev, false)
}

// startTurnLocked 新回合开始：护盾在自己的下一回合开始时失效，重新计时
func (m *Manager) startTurnLocked(s *Session) {
	if c, ok := s.characters[s.order.Current()]; ok {
		c.Guard = 0
	}
	s.turnStartedAt = m.now()
	s.elapsed = 0
	m.armTimerLocked(s)
}

// armTimerLocked 按剩余时间重新设置回合计时器，旧计时器作废
func (m *Manager) armTimerLocked(s *Session) {
	s.stopTimerLocked()
	timeout := time.Duration(s.Rules.TurnTimeoutSeconds) * time.Second
	if timeout <= 0 || s.State != StateRunning {
		return
	}
	remaining := max(timeout-m.now().Sub(s.turnStartedAt), 0)
	gen := s.timerGen
	sessionID, actorID := s.ID, s.order.Current()
	s.timer = m.afterFunc(remaining, func() {
		m.onTurnTimeout(sessionID, actorID, gen)
	})
}

// stopTimerLocked 停止计时器；代数递增使已经触发但未拿到锁的回调失效
func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

// onTurnTimeout 计时器回调
func (m *Manager) onTurnTimeout(sessionID, actorID string, gen uint64) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return
	}

	s.mu.Lock()
	if gen != s.timerGen || s.State != StateRunning || s.order.Current() != actorID {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	ev := m.advanceLocked(s)
	ev.Auto = true
	data := s.saveDataLocked()
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"session": sessionID, "character": actorID}).Info("⏰ 回合超时，自动结束")
	m.afterAdvance(*ev, "", true)
	m.save(data)
	m.notify(ev)
}

// afterAdvance 记录回合结束事件，在会话锁之外调用
func (m *Manager) afterAdvance(ev TurnEvent, userID string, auto bool) {
	meta := map[string]any{
		"character_id": ev.PreviousID,
		"next":         ev.ActiveCharacterID,
		"turn_index":   ev.TurnIndex,
	}
	if auto {
		meta["marker"] = analytics.MarkerAutoTimeout
	}
	m.record(analytics.Event{
		SessionID: ev.SessionID,
		RoomID:    ev.RoomID,
		UserID:    userID,
		Type:      analytics.EventTurnEnd,
		Metadata:  meta,
	})
}

// save 投递到会话写入器，同一会话的写入按版本顺序落盘。调用方不得持有会话锁
func (m *Manager) save(data *storage.SessionData) {
	if m.saver == nil || data == nil {
		return
	}
	m.saver.Enqueue(data.ID, data.Revision, data)
}
