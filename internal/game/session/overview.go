package session

import (
	"context"
	"time"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/game/combat"
	"github.com/palemoky/quest-arena/internal/game/room"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
	overviewLogSize = 10
)

// CharacterView 概览中的角色状态
type CharacterView struct {
	ID            string          `json:"id"`
	OwnerUserID   string          `json:"owner_user_id,omitempty"`
	DisplayName   string          `json:"display_name"`
	Role          character.Role  `json:"role"`
	Stats         character.Stats `json:"stats"`
	MaxHP         int             `json:"max_hp"`
	Guard         int             `json:"guard"`
	Incapacitated bool            `json:"incapacitated"`
	Active        bool            `json:"active"`
}

// LiveOverview 会话实时概览
type LiveOverview struct {
	Session            Info            `json:"session"`
	Characters         []CharacterView `json:"characters"`
	Alive              int             `json:"alive"`
	TurnRemainingMs    int64           `json:"turn_remaining_ms,omitempty"` // 未限时或未运行时为 0
	RecentLog          []combat.Entry  `json:"recent_log"`
	OpenProposalCount  int             `json:"open_proposal_count"`
	TotalLoggedActions int             `json:"total_logged_actions"`
}

// GroupProgress 队伍进度：提案统计加上队员角色的存活情况
type GroupProgress struct {
	room.TeamProgress
	Characters int `json:"characters"`
	Alive      int `json:"alive"`
	HP         int `json:"hp"`
	MaxHP      int `json:"max_hp"`
}

// GetLiveOverview 会话概览，只读
func (m *Manager) GetLiveOverview(sessionID string) (LiveOverview, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return LiveOverview{}, err
	}

	s.mu.Lock()
	ov := LiveOverview{
		Session:            s.infoLocked(),
		TotalLoggedActions: len(s.log),
		RecentLog:          newestFirst(s.log, 0, overviewLogSize),
	}
	active := ov.Session.ActiveCharacterID
	for _, c := range s.orderedCharactersLocked() {
		ov.Characters = append(ov.Characters, CharacterView{
			ID:            c.ID,
			OwnerUserID:   c.OwnerUserID,
			DisplayName:   c.DisplayName,
			Role:          c.Role,
			Stats:         c.Stats,
			MaxHP:         c.MaxHP,
			Guard:         c.Guard,
			Incapacitated: c.Incapacitated(),
			Active:        c.ID == active,
		})
		if !c.Incapacitated() {
			ov.Alive++
		}
	}
	if timeout := time.Duration(s.Rules.TurnTimeoutSeconds) * time.Second; timeout > 0 {
		switch s.State {
		case StateRunning:
			ov.TurnRemainingMs = max(timeout-m.now().Sub(s.turnStartedAt), 0).Milliseconds()
		case StatePaused:
			ov.TurnRemainingMs = max(timeout-s.elapsed, 0).Milliseconds()
		}
	}
	roomID := s.RoomID
	s.mu.Unlock()

	if m.rooms != nil {
		if proposals, err := m.rooms.OpenProposals(roomID); err == nil {
			ov.OpenProposalCount = len(proposals)
		}
	}
	return ov, nil
}

// ComputeGroupProgress 按队伍汇总提案与角色状态
func (m *Manager) ComputeGroupProgress(sessionID string) ([]GroupProgress, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	roomID := s.RoomID
	chars := make([]character.Character, 0, len(s.characters))
	for _, c := range s.orderedCharactersLocked() {
		chars = append(chars, *c)
	}
	s.mu.Unlock()

	if m.rooms == nil {
		return []GroupProgress{}, nil
	}
	teams, err := m.rooms.ProgressByTeam(roomID)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(teams))
	out := make([]GroupProgress, len(teams))
	for i, tp := range teams {
		out[i] = GroupProgress{TeamProgress: tp}
		index[tp.TeamID] = i
	}
	for _, c := range chars {
		if c.OwnerUserID == "" {
			continue
		}
		teamID, ok := m.rooms.TeamOf(roomID, c.OwnerUserID)
		if !ok {
			continue
		}
		i, ok := index[teamID]
		if !ok {
			continue
		}
		out[i].Characters++
		out[i].HP += c.Stats.HP
		out[i].MaxHP += c.MaxHP
		if !c.Incapacitated() {
			out[i].Alive++
		}
	}
	return out, nil
}

// ListRecent 按时间倒序分页读取战斗日志。
// 内存中没有记录（例如重启后）时回退到审计库。
func (m *Manager) ListRecent(ctx context.Context, sessionID string, limit, offset int) ([]combat.Entry, error) {
	if offset < 0 || limit < 0 {
		return nil, apperrors.WithDetail(apperrors.ErrInvalidInput, "limit and offset must be non-negative")
	}
	if limit == 0 {
		limit = defaultLogLimit
	}
	limit = min(limit, maxLogLimit)

	s, err := m.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	entries := newestFirst(s.log, offset, limit)
	empty := len(s.log) == 0
	s.mu.Unlock()

	if !empty || m.audit == nil {
		return entries, nil
	}

	records, err := m.audit.ListCombatLog(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]combat.Entry, len(records))
	for i, rec := range records {
		out[i] = combat.Entry{
			SessionID:  rec.SessionID,
			TurnIndex:  rec.TurnIndex,
			ActorID:    rec.ActorID,
			Action:     combat.Action(rec.Action),
			TargetID:   rec.TargetID,
			AllyIDs:    rec.AllyIDs,
			Rolls:      rec.Rolls,
			Modifier:   rec.Modifier,
			Magnitude:  rec.Magnitude,
			ResultText: rec.ResultText,
			Timestamp:  rec.CreatedAt,
		}
	}
	return out, nil
}

// newestFirst 倒序取 [offset, offset+limit) 的条目
func newestFirst(log []combat.Entry, offset, limit int) []combat.Entry {
	out := make([]combat.Entry, 0, min(limit, len(log)))
	for i := len(log) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out
}
