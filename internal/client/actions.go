package client

import (
	"time"

	"github.com/palemoky/quest-arena/internal/protocol"
)

// --- 便捷方法 ---

func (c *Client) request(msgType protocol.MessageType, payload any) error {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return c.SendMessage(msg)
}

// Ping 发送心跳
func (c *Client) Ping() error {
	return c.request(protocol.MsgPing, protocol.PingPayload{Timestamp: time.Now().UnixMilli()})
}

// GetOnlineCount 查询在线人数
func (c *Client) GetOnlineCount() error {
	return c.request(protocol.MsgGetOnlineCount, nil)
}

// --- 房间 ---

// CreateRoom 创建房间，capacity 为 0 时使用默认容量
func (c *Client) CreateRoom(name string, capacity int) error {
	return c.request(protocol.MsgCreateRoom, protocol.CreateRoomPayload{Name: name, Capacity: capacity})
}

// JoinRoom 加入开放的房间
func (c *Client) JoinRoom(roomID string) error {
	return c.request(protocol.MsgJoinRoom, protocol.RoomRefPayload{RoomID: roomID})
}

// LeaveRoom 离开房间
func (c *Client) LeaveRoom(roomID string) error {
	return c.request(protocol.MsgLeaveRoom, protocol.RoomRefPayload{RoomID: roomID})
}

// GetRoom 查询房间
func (c *Client) GetRoom(roomID string) error {
	return c.request(protocol.MsgGetRoom, protocol.RoomRefPayload{RoomID: roomID})
}

// SetRoomState 开放/暂停/关闭房间
func (c *Client) SetRoomState(roomID, state string) error {
	return c.request(protocol.MsgSetRoomState, protocol.SetRoomStatePayload{RoomID: roomID, State: state})
}

// InviteFriend 邀请好友，expireAt 为零值时使用默认有效期
func (c *Client) InviteFriend(roomID, inviteeID, message string, expireAt time.Time) error {
	payload := protocol.InviteFriendPayload{RoomID: roomID, InviteeID: inviteeID, Message: message}
	if !expireAt.IsZero() {
		payload.ExpireAt = expireAt.UnixMilli()
	}
	return c.request(protocol.MsgInviteFriend, payload)
}

// AcceptInvite 接受邀请
func (c *Client) AcceptInvite(inviteID string) error {
	return c.request(protocol.MsgAcceptInvite, protocol.InviteRefPayload{InviteID: inviteID})
}

// DeclineInvite 拒绝邀请
func (c *Client) DeclineInvite(inviteID string) error {
	return c.request(protocol.MsgDeclineInvite, protocol.InviteRefPayload{InviteID: inviteID})
}

// GenerateCode 生成加入码
func (c *Client) GenerateCode(roomID string, ttl time.Duration) error {
	return c.request(protocol.MsgGenerateCode, protocol.GenerateCodePayload{
		RoomID:     roomID,
		TTLSeconds: int(ttl / time.Second),
	})
}

// JoinByCode 通过加入码加入
func (c *Client) JoinByCode(code string) error {
	return c.request(protocol.MsgJoinByCode, protocol.JoinByCodePayload{Code: code})
}

// --- 队伍 ---

// CreateTeam 创建队伍
func (c *Client) CreateTeam(roomID, name string) error {
	return c.request(protocol.MsgCreateTeam, protocol.CreateTeamPayload{RoomID: roomID, Name: name})
}

// ProposeAction 发起队伍提议
func (c *Client) ProposeAction(roomID, teamID, actionName, notes string) error {
	return c.request(protocol.MsgProposeAction, protocol.ProposeActionPayload{
		RoomID: roomID, TeamID: teamID, ActionName: actionName, Notes: notes,
	})
}

// ConfirmAction 确认提议
func (c *Client) ConfirmAction(roomID, teamID, proposalID string) error {
	return c.request(protocol.MsgConfirmAction, protocol.ProposalRefPayload{
		RoomID: roomID, TeamID: teamID, ProposalID: proposalID,
	})
}

// --- 会话 ---

// CreateSession 创建会话（GM）
func (c *Client) CreateSession(roomID string) error {
	return c.request(protocol.MsgCreateSession, protocol.CreateSessionPayload{RoomID: roomID})
}

// SelectCharacter 选择角色
func (c *Client) SelectCharacter(sessionID, role, displayName string) error {
	return c.request(protocol.MsgSelectCharacter, protocol.SelectCharacterPayload{
		SessionID: sessionID, Role: role, DisplayName: displayName,
	})
}

// SessionControl 开始/暂停/恢复/结束会话
func (c *Client) SessionControl(sessionID, command string) error {
	return c.request(protocol.MsgSessionControl, protocol.SessionControlPayload{
		SessionID: sessionID, Command: command,
	})
}

// PerformAction 执行动作
func (c *Client) PerformAction(p protocol.PerformActionPayload) error {
	return c.request(protocol.MsgPerformAction, p)
}

// Assist 协助队友
func (c *Client) Assist(p protocol.AssistPayload) error {
	return c.request(protocol.MsgAssist, p)
}

// EndTurn 结束回合
func (c *Client) EndTurn(sessionID, actorID string) error {
	return c.request(protocol.MsgEndTurn, protocol.EndTurnPayload{SessionID: sessionID, ActorID: actorID})
}

// GetOverview 查询实时概览
func (c *Client) GetOverview(sessionID string) error {
	return c.request(protocol.MsgGetOverview, protocol.SessionRefPayload{SessionID: sessionID})
}

// GetCombatLog 分页查询战斗日志
func (c *Client) GetCombatLog(sessionID string, limit, offset int) error {
	return c.request(protocol.MsgGetCombatLog, protocol.GetCombatLogPayload{
		SessionID: sessionID, Limit: limit, Offset: offset,
	})
}

// SaveSnapshot 保存快照
func (c *Client) SaveSnapshot(sessionID, note string) error {
	return c.request(protocol.MsgSaveSnapshot, protocol.SaveSnapshotPayload{SessionID: sessionID, Note: note})
}

// LoadSnapshot 加载快照
func (c *Client) LoadSnapshot(snapshotID string) error {
	return c.request(protocol.MsgLoadSnapshot, protocol.LoadSnapshotPayload{SnapshotID: snapshotID})
}
