//go:build !production

package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/quest-arena/internal/server/storage"
)

// MockSessionStore 会话存储 mock
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) SaveSession(ctx context.Context, data *storage.SessionData) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *MockSessionStore) SaveSnapshot(ctx context.Context, snap *storage.SnapshotData) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockSessionStore) LoadSnapshot(ctx context.Context, snapshotID string) (*storage.SnapshotData, error) {
	args := m.Called(ctx, snapshotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.SnapshotData), args.Error(1)
}

func (m *MockSessionStore) ListSnapshotIDs(ctx context.Context, sessionID string) ([]string, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockRoomStore 房间存储 mock
type MockRoomStore struct {
	mock.Mock
}

func (m *MockRoomStore) SaveRoom(ctx context.Context, roomID string, data *storage.RoomData) error {
	args := m.Called(ctx, roomID, data)
	return args.Error(0)
}

// MockCombatLogStore 战斗日志审计 mock
type MockCombatLogStore struct {
	mock.Mock
}

func (m *MockCombatLogStore) AppendCombatLog(ctx context.Context, rec storage.CombatLogRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockCombatLogStore) ListCombatLog(ctx context.Context, sessionID string, limit, offset int) ([]storage.CombatLogRecord, error) {
	args := m.Called(ctx, sessionID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.CombatLogRecord), args.Error(1)
}

// MockEventSink 分析事件落地 mock
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) AppendEvent(ctx context.Context, rec storage.EventRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
