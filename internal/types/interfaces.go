package types

import (
	"context"
	"time"

	"github.com/palemoky/quest-arena/internal/protocol"
)

// UserRole 平台角色（由身份服务提供）
type UserRole string

const (
	RolePlayer UserRole = "PLAYER"
	RoleGM     UserRole = "GM"
	RoleAdmin  UserRole = "ADMIN"
)

// Identity 已解析的调用者身份，核心逻辑从不接触原始凭证
type Identity struct {
	UserID string
	Name   string
	Role   UserRole
}

// CanModerate 是否拥有 GM / ADMIN 权限
func (i Identity) CanModerate() bool {
	return i.Role == RoleGM || i.Role == RoleAdmin
}

// FriendshipChecker 好友关系查询（社交服务边界）
type FriendshipChecker interface {
	AreFriends(ctx context.Context, userID, otherUserID string) (bool, error)
}

// PlanGate 订阅计划查询，仅用于限制房间容量上限
type PlanGate interface {
	// CapacityCeiling 返回用户当前计划允许的房间容量上限，ok=false 表示无有效订阅
	CapacityCeiling(ctx context.Context, userID string, at time.Time) (ceiling int, ok bool, err error)
}

// ServerInterface 定义服务器接口（用于打破循环依赖）
type ServerInterface interface {
	IsMaintenanceMode() bool
	GetOnlineCount() int
	IsOnline(userID string) bool
	SendToUser(userID string, msg *protocol.Message)
	// BroadcastToRoom 发送给房间内所有在线成员，excludeUserID 为空表示不排除
	BroadcastToRoom(roomID string, msg *protocol.Message, excludeUserID string)
}

// ClientInterface 定义客户端接口
type ClientInterface interface {
	GetID() string
	Identity() Identity
	SendMessage(msg *protocol.Message)
	Close()
}
