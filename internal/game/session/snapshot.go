package session

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/game/room"
	"github.com/palemoky/quest-arena/internal/game/turn"
	"github.com/palemoky/quest-arena/internal/server/storage"
	"github.com/palemoky/quest-arena/internal/types"
)

const snapshotVersion = 1

// Snapshot 会话快照，Payload 为自包含的序列化状态，创建后不再修改
type Snapshot struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	RoomID    string    `json:"room_id"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Payload   []byte    `json:"-"`
}

// snapshotPayload 快照内容
type snapshotPayload struct {
	Version    int                    `json:"version"`
	State      State                  `json:"state"`
	Rules      Rules                  `json:"rules"`
	Order      turn.Order             `json:"order"`
	ElapsedMs  int64                  `json:"elapsed_ms"` // 当前回合已用时间
	Characters []*character.Character `json:"characters"`
	Proposals  []room.Proposal        `json:"proposals"`
}

// SaveSnapshot 保存快照：会话状态、回合位置、全部角色以及房间内所有 OPEN 提案
func (m *Manager) SaveSnapshot(ctx context.Context, gm types.Identity, sessionID, note string) (Snapshot, error) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	if s.GMUserID != gm.UserID {
		s.mu.Unlock()
		return Snapshot{}, apperrors.ErrForbidden
	}
	if s.State == StateFinished {
		s.mu.Unlock()
		return Snapshot{}, apperrors.ErrSessionClosed
	}

	var proposals []room.Proposal
	if m.rooms != nil {
		proposals, err = m.rooms.OpenProposals(s.RoomID)
		if err != nil {
			s.mu.Unlock()
			return Snapshot{}, err
		}
	}
	payload, err := json.Marshal(s.payloadLocked(m.now(), proposals))
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	snap := Snapshot{
		ID:        m.newID(),
		SessionID: s.ID,
		RoomID:    s.RoomID,
		Note:      note,
		CreatedAt: m.now(),
		Payload:   payload,
	}
	s.mu.Unlock()

	m.mu.Lock()
	m.snapshots[snap.ID] = &snap
	m.mu.Unlock()

	if m.snapSaver != nil {
		// 快照不可变，每个 ID 只写一次
		m.snapSaver.Enqueue(snap.ID, 1, snap.toData())
	}

	logrus.WithFields(logrus.Fields{"session": sessionID, "snapshot": snap.ID}).Info("📸 快照已保存")
	m.recordSnapshot(snap, gm.UserID, "save")
	return snap, nil
}

// LoadSnapshot 用快照整体替换会话、回合位置与角色状态，并恢复当时 OPEN 的提案。
// 已结束的会话不能通过快照复活；快照损坏时会话保持原状。
func (m *Manager) LoadSnapshot(ctx context.Context, gm types.Identity, snapshotID string) (Info, error) {
	snap, err := m.findSnapshot(ctx, snapshotID)
	if err != nil {
		return Info{}, err
	}
	s, err := m.getSession(snap.SessionID)
	if err != nil {
		return Info{}, err
	}
	payload, decodeErr := decodePayload(snap.Payload)

	s.mu.Lock()
	if s.GMUserID != gm.UserID {
		s.mu.Unlock()
		return Info{}, apperrors.ErrForbidden
	}
	if s.State == StateFinished {
		s.mu.Unlock()
		return Info{}, apperrors.ErrSessionClosed
	}
	if decodeErr != nil {
		s.mu.Unlock()
		return Info{}, decodeErr
	}
	if m.rooms != nil {
		if err := m.rooms.RestoreProposals(s.RoomID, snap.CreatedAt, payload.Proposals); err != nil {
			s.mu.Unlock()
			return Info{}, err
		}
	}
	m.applyPayloadLocked(s, payload)
	var ev *TurnEvent
	if s.State == StateRunning {
		ev = s.turnEventLocked("", false)
	}
	info := s.infoLocked()
	data := s.saveDataLocked()
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"session": s.ID, "snapshot": snapshotID, "state": info.State}).Info("⏪ 快照已恢复")
	m.recordSnapshot(*snap, gm.UserID, "load")
	m.save(data)
	m.notify(ev)
	return info, nil
}

// ListSnapshots 按创建时间列出会话的快照（内存与存储合并）
func (m *Manager) ListSnapshots(ctx context.Context, sessionID string) ([]Snapshot, error) {
	if _, err := m.getSession(sessionID); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []Snapshot
	m.mu.RLock()
	for _, snap := range m.snapshots {
		if snap.SessionID == sessionID {
			out = append(out, snap.meta())
			seen[snap.ID] = true
		}
	}
	m.mu.RUnlock()

	if m.store != nil {
		ids, err := m.store.ListSnapshotIDs(ctx, sessionID)
		if err != nil {
			logrus.WithError(err).WithField("session", sessionID).Warn("读取快照索引失败")
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			data, err := m.store.LoadSnapshot(ctx, id)
			if err != nil || data == nil {
				continue
			}
			out = append(out, snapshotFromData(data).meta())
		}
	}

	slices.SortFunc(out, func(a, b Snapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// findSnapshot 先查内存，再回退到存储
func (m *Manager) findSnapshot(ctx context.Context, snapshotID string) (*Snapshot, error) {
	m.mu.RLock()
	snap, ok := m.snapshots[snapshotID]
	m.mu.RUnlock()
	if ok {
		return snap, nil
	}
	if m.store == nil {
		return nil, apperrors.ErrSnapshotNotFound
	}

	data, err := m.store.LoadSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", snapshotID, err)
	}
	if data == nil {
		return nil, apperrors.ErrSnapshotNotFound
	}
	snap = snapshotFromData(data)

	m.mu.Lock()
	m.snapshots[snap.ID] = snap
	m.mu.Unlock()
	return snap, nil
}

func (s *Session) payloadLocked(now time.Time, proposals []room.Proposal) snapshotPayload {
	elapsed := s.elapsed
	if s.State == StateRunning {
		elapsed = now.Sub(s.turnStartedAt)
	}
	chars := s.orderedCharactersLocked()
	clones := make([]*character.Character, len(chars))
	for i, c := range chars {
		clones[i] = c.Clone()
	}
	return snapshotPayload{
		Version:    snapshotVersion,
		State:      s.State,
		Rules:      s.Rules,
		Order:      s.order.Clone(),
		ElapsedMs:  elapsed.Milliseconds(),
		Characters: clones,
		Proposals:  proposals,
	}
}

// decodePayload 解码并校验快照内容
func decodePayload(raw []byte) (snapshotPayload, error) {
	var p snapshotPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, apperrors.Wrap(apperrors.ErrSnapshotCorrupted, err)
	}
	if p.Version != snapshotVersion {
		return p, apperrors.WithDetail(apperrors.ErrSnapshotCorrupted, fmt.Sprintf("unsupported version %d", p.Version))
	}
	switch p.State {
	case StateOpen, StateRunning, StatePaused:
	default:
		return p, apperrors.WithDetail(apperrors.ErrSnapshotCorrupted, "invalid state "+string(p.State))
	}

	ids := make(map[string]bool, len(p.Characters))
	for _, c := range p.Characters {
		if c == nil || c.ID == "" {
			return p, apperrors.WithDetail(apperrors.ErrSnapshotCorrupted, "character without id")
		}
		if err := c.Stats.Validate(); err != nil {
			return p, apperrors.Wrap(apperrors.ErrSnapshotCorrupted, err)
		}
		ids[c.ID] = true
	}
	for _, id := range p.Order.IDs {
		if !ids[id] {
			return p, apperrors.WithDetail(apperrors.ErrSnapshotCorrupted, "turn order references unknown character "+id)
		}
	}
	if len(p.Order.IDs) > 0 && (p.Order.Index < 0 || p.Order.Index >= len(p.Order.IDs)) {
		return p, apperrors.WithDetail(apperrors.ErrSnapshotCorrupted, "turn index out of range")
	}
	return p, nil
}

// applyPayloadLocked 整体替换会话状态，调用前快照已校验通过
func (m *Manager) applyPayloadLocked(s *Session, p snapshotPayload) {
	s.stopTimerLocked()

	m.mu.Lock()
	for id := range s.characters {
		delete(m.charIndex, id)
	}
	chars := make(map[string]*character.Character, len(p.Characters))
	for _, c := range p.Characters {
		cp := c.Clone()
		cp.SessionID = s.ID
		chars[cp.ID] = cp
		m.charIndex[cp.ID] = s.ID
	}
	m.mu.Unlock()

	s.State = p.State
	s.Rules = p.Rules
	s.order = p.Order.Clone()
	s.characters = chars

	elapsed := time.Duration(p.ElapsedMs) * time.Millisecond
	s.turnStartedAt = m.now().Add(-elapsed)
	s.elapsed = 0
	switch s.State {
	case StateRunning:
		m.armTimerLocked(s)
	case StatePaused:
		s.elapsed = elapsed
	}
}

func (m *Manager) recordSnapshot(snap Snapshot, userID, action string) {
	m.record(analytics.Event{
		SessionID: snap.SessionID,
		RoomID:    snap.RoomID,
		UserID:    userID,
		Type:      analytics.EventSnapshot,
		Metadata:  map[string]any{"action": action, "snapshot_id": snap.ID},
	})
}

// meta 不含 payload 的副本
func (snap *Snapshot) meta() Snapshot {
	out := *snap
	out.Payload = nil
	return out
}

func (snap *Snapshot) toData() *storage.SnapshotData {
	return &storage.SnapshotData{
		ID:        snap.ID,
		SessionID: snap.SessionID,
		RoomID:    snap.RoomID,
		Note:      snap.Note,
		CreatedAt: snap.CreatedAt.UnixMilli(),
		Payload:   snap.Payload,
	}
}

func snapshotFromData(data *storage.SnapshotData) *Snapshot {
	return &Snapshot{
		ID:        data.ID,
		SessionID: data.SessionID,
		RoomID:    data.RoomID,
		Note:      data.Note,
		CreatedAt: time.UnixMilli(data.CreatedAt).UTC(),
		Payload:   data.Payload,
	}
}
