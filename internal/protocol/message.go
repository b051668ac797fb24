package protocol

import "encoding/json"

// Message 基础消息结构
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType 消息类型
type MessageType string

// 客户端 → 服务端 消息类型
const (
	// 连接操作
	MsgPing MessageType = "ping" // 心跳 ping

	// 房间操作
	MsgCreateRoom     MessageType = "create_room"      // 创建房间
	MsgJoinRoom       MessageType = "join_room"        // 直接加入房间
	MsgSetRoomState   MessageType = "set_room_state"   // 开放/关闭房间
	MsgLeaveRoom      MessageType = "leave_room"       // 离开房间
	MsgGetRoom        MessageType = "get_room"         // 查询房间
	MsgInviteFriend   MessageType = "invite_friend"    // 邀请好友
	MsgAcceptInvite   MessageType = "accept_invite"    // 接受邀请
	MsgDeclineInvite  MessageType = "decline_invite"   // 拒绝邀请
	MsgRevokeInvite   MessageType = "revoke_invite"    // 撤销邀请
	MsgListInvites    MessageType = "list_invites"     // 有效邀请列表
	MsgGenerateCode   MessageType = "generate_code"    // 生成加入码
	MsgJoinByCode     MessageType = "join_by_code"     // 通过加入码加入
	MsgCreateTeam     MessageType = "create_team"      // 创建队伍
	MsgAddToTeam      MessageType = "add_to_team"      // 加入队伍
	MsgAssignTeams    MessageType = "assign_teams"     // GM 分配队伍
	MsgProposeAction  MessageType = "propose_action"   // 队伍提议
	MsgConfirmAction  MessageType = "confirm_action"   // 确认提议
	MsgCancelProposal MessageType = "cancel_proposal"  // 取消提议
	MsgGetTeamReport  MessageType = "get_team_report"  // 查询队伍进度

	// 会话操作
	MsgCreateSession    MessageType = "create_session"    // 创建会话
	MsgSelectCharacter  MessageType = "select_character"  // 选择角色
	MsgCreateNPC        MessageType = "create_npc"        // GM 添加 NPC
	MsgEditCharacter    MessageType = "edit_character"    // 改名/换职业
	MsgUpdateStats      MessageType = "update_stats"      // GM 修改属性
	MsgSessionControl   MessageType = "session_control"   // 开始/暂停/恢复/结束
	MsgSetDifficulty    MessageType = "set_difficulty"    // 设置难度
	MsgApplyDefaults    MessageType = "apply_defaults"    // 恢复默认规则
	MsgSaveSnapshot     MessageType = "save_snapshot"     // 保存快照
	MsgLoadSnapshot     MessageType = "load_snapshot"     // 加载快照
	MsgListSnapshots    MessageType = "list_snapshots"    // 快照列表
	MsgPerformAction    MessageType = "perform_action"    // 执行动作
	MsgAssist           MessageType = "assist"            // 协助队友
	MsgEndTurn          MessageType = "end_turn"          // 结束回合
	MsgGetOverview      MessageType = "get_overview"      // 实时概览
	MsgGetCombatLog     MessageType = "get_combat_log"    // 战斗日志
	MsgGetOnlineCount   MessageType = "get_online_count"  // 获取在线人数
)

// 服务端 → 客户端 消息类型
const (
	// 连接相关
	MsgConnected   MessageType = "connected"    // 连接成功
	MsgPong        MessageType = "pong"         // 心跳 pong
	MsgOnlineCount MessageType = "online_count" // 在线人数更新

	// 房间相关
	MsgRoomState      MessageType = "room_state"      // 房间状态
	MsgInviteReceived MessageType = "invite_received" // 收到邀请
	MsgInviteState    MessageType = "invite_state"    // 邀请状态变化
	MsgInviteList     MessageType = "invite_list"     // 有效邀请列表
	MsgJoinCode       MessageType = "join_code"       // 加入码
	MsgProposalState  MessageType = "proposal_state"  // 提议状态
	MsgTeamReport     MessageType = "team_report"     // 队伍进度

	// 会话相关
	MsgSessionState   MessageType = "session_state"   // 会话状态
	MsgCharacterState MessageType = "character_state" // 角色状态
	MsgTurnChanged    MessageType = "turn_changed"    // 回合切换
	MsgActionResult   MessageType = "action_result"   // 动作结果
	MsgSnapshotSaved  MessageType = "snapshot_saved"  // 快照已保存
	MsgSnapshotList   MessageType = "snapshot_list"   // 快照列表
	MsgOverview       MessageType = "overview"        // 实时概览
	MsgCombatLog      MessageType = "combat_log"      // 战斗日志

	// 错误
	MsgError MessageType = "error" // 错误消息
)

// NewMessage 创建一个新消息
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// MustNewMessage 创建消息，失败时 panic
func MustNewMessage(msgType MessageType, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Encode 将消息编码为 JSON 字节
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode 从 JSON 字节解码消息
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ParsePayload 解析消息的 Payload 到指定类型
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if len(msg.Payload) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// NewErrorMessage 创建错误消息
func NewErrorMessage(code int) *Message {
	msg, _ := NewMessage(MsgError, ErrorPayload{
		Code:    code,
		Message: ErrorMessages[code],
	})
	return msg
}

// NewErrorMessageWithText 创建带自定义文本的错误消息
func NewErrorMessageWithText(code int, text string) *Message {
	msg, _ := NewMessage(MsgError, ErrorPayload{
		Code:    code,
		Message: text,
	})
	return msg
}
