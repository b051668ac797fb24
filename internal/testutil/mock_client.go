//go:build !production

package testutil

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/types"
)

// MockClient 实现 types.ClientInterface 的 mock
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockClient) Identity() types.Identity {
	args := m.Called()
	return args.Get(0).(types.Identity)
}

func (m *MockClient) SendMessage(msg *protocol.Message) {
	m.Called(msg)
}

func (m *MockClient) Close() {
	m.Called()
}

// SimpleClient 简单的 mock 客户端，不使用 testify（用于不需要断言调用的测试）
type SimpleClient struct {
	ID       string
	Ident    types.Identity
	mu       sync.Mutex
	messages []*protocol.Message
}

// NewSimpleClient 创建简单客户端
func NewSimpleClient(userID string, role types.UserRole) *SimpleClient {
	return &SimpleClient{
		ID:    "conn-" + userID,
		Ident: types.Identity{UserID: userID, Name: userID, Role: role},
	}
}

func (m *SimpleClient) GetID() string            { return m.ID }
func (m *SimpleClient) Identity() types.Identity { return m.Ident }
func (m *SimpleClient) Close()                   {}

func (m *SimpleClient) SendMessage(msg *protocol.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Messages 已收到的消息副本
func (m *SimpleClient) Messages() []*protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*protocol.Message(nil), m.messages...)
}

// LastMessage 最后一条消息，没有时返回 nil
func (m *SimpleClient) LastMessage() *protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}
