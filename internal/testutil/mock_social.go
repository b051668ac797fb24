//go:build !production

package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockFriendshipChecker 好友关系 mock
type MockFriendshipChecker struct {
	mock.Mock
}

func (m *MockFriendshipChecker) AreFriends(ctx context.Context, userID, otherUserID string) (bool, error) {
	args := m.Called(ctx, userID, otherUserID)
	return args.Bool(0), args.Error(1)
}

// MockPlanGate 订阅计划 mock
type MockPlanGate struct {
	mock.Mock
}

func (m *MockPlanGate) CapacityCeiling(ctx context.Context, userID string, at time.Time) (int, bool, error) {
	args := m.Called(ctx, userID, at)
	return args.Int(0), args.Bool(1), args.Error(2)
}
