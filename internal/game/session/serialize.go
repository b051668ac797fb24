package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/game/turn"
	"github.com/palemoky/quest-arena/internal/server/storage"
)

// Loader 会话加载接口
type Loader interface {
	GetAllSessionIDs(ctx context.Context) ([]string, error)
	LoadSession(ctx context.Context, sessionID string) (*storage.SessionData, error)
}

// toDataLocked 转换为存储格式
func (s *Session) toDataLocked() *storage.SessionData {
	rules, err := json.Marshal(s.Rules)
	if err != nil {
		logrus.WithError(err).WithField("session", s.ID).Warn("序列化会话规则失败")
		return nil
	}
	chars, err := json.Marshal(s.orderedCharactersLocked())
	if err != nil {
		logrus.WithError(err).WithField("session", s.ID).Warn("序列化角色失败")
		return nil
	}
	return &storage.SessionData{
		ID:         s.ID,
		RoomID:     s.RoomID,
		GMUserID:   s.GMUserID,
		State:      string(s.State),
		CreatedAt:  s.CreatedAt.UnixMilli(),
		TurnOrder:  append([]string(nil), s.order.IDs...),
		TurnIndex:  s.order.Index,
		Rules:      rules,
		Characters: chars,
	}
}

// saveDataLocked 生成一份待保存数据，版本号单调递增
func (s *Session) saveDataLocked() *storage.SessionData {
	data := s.toDataLocked()
	if data == nil {
		return nil
	}
	s.rev++
	data.Revision = s.rev
	return data
}

// sessionFromData 从存储格式恢复会话（不含计时器）
func sessionFromData(data *storage.SessionData) (*Session, error) {
	state := State(data.State)
	switch state {
	case StateOpen, StateRunning, StatePaused, StateFinished:
	default:
		return nil, fmt.Errorf("invalid session state %q", data.State)
	}

	var rules Rules
	if err := json.Unmarshal(data.Rules, &rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	var chars []*character.Character
	if len(data.Characters) > 0 {
		if err := json.Unmarshal(data.Characters, &chars); err != nil {
			return nil, fmt.Errorf("decode characters: %w", err)
		}
	}

	s := &Session{
		ID:         data.ID,
		RoomID:     data.RoomID,
		GMUserID:   data.GMUserID,
		State:      state,
		CreatedAt:  time.UnixMilli(data.CreatedAt).UTC(),
		Rules:      rules,
		order:      turn.Order{IDs: append([]string(nil), data.TurnOrder...), Index: data.TurnIndex},
		characters: make(map[string]*character.Character, len(chars)),
		rev:        data.Revision,
	}
	for _, c := range chars {
		if c == nil {
			continue
		}
		s.characters[c.ID] = c
	}
	for _, id := range s.order.IDs {
		if _, ok := s.characters[id]; !ok {
			return nil, fmt.Errorf("turn order references unknown character %s", id)
		}
	}
	return s, nil
}

// Restore 从存储恢复全部会话，运行中的会话从整回合重新计时。
// 单条记录损坏时跳过并继续。
func (m *Manager) Restore(ctx context.Context, loader Loader) (int, error) {
	ids, err := loader.GetAllSessionIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	restored := 0
	for _, id := range ids {
		data, err := loader.LoadSession(ctx, id)
		if err != nil {
			logrus.WithError(err).WithField("session", id).Warn("加载会话失败")
			continue
		}
		if data == nil {
			continue
		}
		s, err := sessionFromData(data)
		if err != nil {
			logrus.WithError(err).WithField("session", id).Warn("会话数据无效，已跳过")
			continue
		}

		m.mu.Lock()
		m.sessions[s.ID] = s
		for charID := range s.characters {
			m.charIndex[charID] = s.ID
		}
		m.mu.Unlock()

		s.mu.Lock()
		s.turnStartedAt = m.now()
		if s.State == StateRunning {
			m.armTimerLocked(s)
		}
		s.mu.Unlock()
		restored++
	}

	logrus.WithField("count", restored).Info("📦 已从存储恢复会话")
	return restored, nil
}
