//go:build !production

package testutil

import (
	"github.com/stretchr/testify/mock"

	"github.com/palemoky/quest-arena/internal/protocol"
)

// MockServer 实现 types.ServerInterface 的 mock
type MockServer struct {
	mock.Mock
}

func (m *MockServer) IsMaintenanceMode() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockServer) GetOnlineCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockServer) IsOnline(userID string) bool {
	args := m.Called(userID)
	return args.Bool(0)
}

func (m *MockServer) BroadcastToRoom(roomID string, msg *protocol.Message, excludeUserID string) {
	m.Called(roomID, msg, excludeUserID)
}

func (m *MockServer) SendToUser(userID string, msg *protocol.Message) {
	m.Called(userID, msg)
}
