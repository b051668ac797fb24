// Package session runs live game sessions: lifecycle, characters, turns,
// combat and snapshots. Every mutation of a session happens under that
// session's own lock; different sessions never contend with each other.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/game/combat"
	"github.com/palemoky/quest-arena/internal/game/dice"
	"github.com/palemoky/quest-arena/internal/game/room"
	"github.com/palemoky/quest-arena/internal/game/turn"
	"github.com/palemoky/quest-arena/internal/server/storage"
)

// State 会话状态
type State string

const (
	StateOpen     State = "OPEN"
	StateRunning  State = "RUNNING"
	StatePaused   State = "PAUSED"
	StateFinished State = "FINISHED"
)

// RoomDirectory 会话需要的房间查询与提案快照能力，由 room.RoomManager 实现
type RoomDirectory interface {
	Exists(roomID string) bool
	IsMember(roomID, userID string) bool
	TeamOf(roomID, userID string) (string, bool)
	ProgressByTeam(roomID string) ([]room.TeamProgress, error)
	OpenProposals(roomID string) ([]room.Proposal, error)
	RestoreProposals(roomID string, snapshotAt time.Time, proposals []room.Proposal) error
}

// Store 会话与快照持久化
type Store interface {
	SaveSession(ctx context.Context, data *storage.SessionData) error
	SaveSnapshot(ctx context.Context, snap *storage.SnapshotData) error
	LoadSnapshot(ctx context.Context, snapshotID string) (*storage.SnapshotData, error)
	ListSnapshotIDs(ctx context.Context, sessionID string) ([]string, error)
}

// CombatLogStore 战斗日志审计存储
type CombatLogStore interface {
	AppendCombatLog(ctx context.Context, rec storage.CombatLogRecord) error
	ListCombatLog(ctx context.Context, sessionID string, limit, offset int) ([]storage.CombatLogRecord, error)
}

// TurnEvent 回合变化通知
type TurnEvent struct {
	SessionID         string `json:"session_id"`
	RoomID            string `json:"room_id"`
	TurnIndex         int    `json:"turn_index"`
	ActiveCharacterID string `json:"active_character_id"`
	PreviousID        string `json:"previous_id,omitempty"`
	Auto              bool   `json:"auto"` // 超时自动结束
}

// Notifier 接收回合变化（含超时触发的），在会话锁之外调用
type Notifier interface {
	TurnChanged(ev TurnEvent)
}

// Session 一局游戏会话
type Session struct {
	ID        string
	RoomID    string
	GMUserID  string
	State     State
	CreatedAt time.Time
	Rules     Rules

	order      turn.Order
	characters map[string]*character.Character
	log        []combat.Entry

	turnStartedAt time.Time
	elapsed       time.Duration // 暂停时已用的回合时间
	timer         stopper
	timerGen      uint64
	rev           uint64 // 最近一次保存的版本

	mu sync.Mutex
}

// stopper time.Timer 的最小接口，便于测试替换
type stopper interface {
	Stop() bool
}

// Options 会话管理参数
type Options struct {
	Rooms    RoomDirectory
	Store    Store          // 可选
	Audit    CombatLogStore // 可选
	Recorder *analytics.Recorder
	Notifier Notifier // 可选

	TurnTimeout time.Duration // 新会话默认回合超时，0 表示不限时
	Dice        dice.Source   // 为空时使用时间种子
}

// Manager 会话管理器
type Manager struct {
	rooms    RoomDirectory
	store    Store
	audit    CombatLogStore
	recorder *analytics.Recorder
	notifier Notifier

	defaults  Rules
	dice      dice.Source
	now       func() time.Time
	newID     func() string
	afterFunc func(d time.Duration, f func()) stopper

	sessions  map[string]*Session
	charIndex map[string]string // characterID → sessionID
	snapshots map[string]*Snapshot
	mu        sync.RWMutex

	auditCh     chan storage.CombatLogRecord
	auditDone   chan struct{}
	auditMu     sync.RWMutex
	auditClosed bool
	saver       *storage.Writer[*storage.SessionData]
	snapSaver   *storage.Writer[*storage.SnapshotData]
	closeOnce   sync.Once
}

const auditBufferSize = 256

// NewManager 创建会话管理器
func NewManager(opts Options) *Manager {
	src := opts.Dice
	if src == nil {
		src = dice.NewSeeded(uint64(time.Now().UnixNano()))
	}
	m := &Manager{
		rooms:     opts.Rooms,
		store:     opts.Store,
		audit:     opts.Audit,
		recorder:  opts.Recorder,
		notifier:  opts.Notifier,
		defaults:  DefaultRules(opts.TurnTimeout),
		dice:      &lockedSource{src: src},
		now:       time.Now,
		newID:     uuid.NewString,
		afterFunc: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
		sessions:  make(map[string]*Session),
		charIndex: make(map[string]string),
		snapshots: make(map[string]*Snapshot),
	}
	if m.audit != nil {
		m.auditCh = make(chan storage.CombatLogRecord, auditBufferSize)
		m.auditDone = make(chan struct{})
		go m.auditWorker()
	}
	if m.store != nil {
		store := m.store
		m.saver = storage.NewWriter("session-writer", func(ctx context.Context, data *storage.SessionData) error {
			return store.SaveSession(ctx, data)
		})
		m.snapSaver = storage.NewWriter[*storage.SnapshotData]("snapshot-writer", store.SaveSnapshot)
	}
	return m
}

// Close 停止所有回合计时器，写完积压的战斗日志和会话数据
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.RLock()
		sessions := make([]*Session, 0, len(m.sessions))
		for _, s := range m.sessions {
			sessions = append(sessions, s)
		}
		m.mu.RUnlock()

		for _, s := range sessions {
			s.mu.Lock()
			s.stopTimerLocked()
			s.mu.Unlock()
		}
		m.closeAudit()
		if m.saver != nil {
			m.saver.Close()
			m.snapSaver.Close()
		}
	})
}

// lockedSource 使共享随机源可并发使用
type lockedSource struct {
	mu  sync.Mutex
	src dice.Source
}

func (l *lockedSource) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.IntN(n)
}

func (m *Manager) getSession(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return s, nil
}

// sessionOfCharacter 根据角色 ID 找到所属会话
func (m *Manager) sessionOfCharacter(charID string) (*Session, error) {
	m.mu.RLock()
	sessionID, ok := m.charIndex[charID]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrCharacterNotFound
	}
	return m.getSession(sessionID)
}

func (m *Manager) indexCharacter(charID, sessionID string) {
	m.mu.Lock()
	m.charIndex[charID] = sessionID
	m.mu.Unlock()
}

func (m *Manager) record(e analytics.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	m.recorder.Record(e)
}

func (m *Manager) notify(ev *TurnEvent) {
	if ev == nil || m.notifier == nil {
		return
	}
	m.notifier.TurnChanged(*ev)
}
