package protocol

// --- 客户端请求 Payloads ---

// PingPayload 心跳请求
type PingPayload struct {
	Timestamp int64 `json:"timestamp"` // 客户端时间戳（毫秒）
}

// CreateRoomPayload 创建房间请求
type CreateRoomPayload struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"` // 0 表示默认容量
}

// RoomRefPayload 只携带房间 ID 的请求（join_room / leave_room / get_room / list_invites）
type RoomRefPayload struct {
	RoomID string `json:"room_id"`
}

// SetRoomStatePayload 开放/暂停/关闭房间
type SetRoomStatePayload struct {
	RoomID string `json:"room_id"`
	State  string `json:"state"` // OPEN/PAUSED/CLOSED
}

// InviteFriendPayload 邀请好友
type InviteFriendPayload struct {
	RoomID    string `json:"room_id"`
	InviteeID string `json:"invitee_id"`
	Message   string `json:"message,omitempty"`
	ExpireAt  int64  `json:"expire_at,omitempty"` // 毫秒，0 表示默认有效期
}

// InviteRefPayload accept/decline/revoke 邀请
type InviteRefPayload struct {
	InviteID string `json:"invite_id"`
}

// GenerateCodePayload 生成加入码
type GenerateCodePayload struct {
	RoomID     string `json:"room_id"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// JoinByCodePayload 通过加入码加入
type JoinByCodePayload struct {
	Code string `json:"code"`
}

// CreateTeamPayload 创建队伍
type CreateTeamPayload struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

// AddToTeamPayload 把成员加入队伍
type AddToTeamPayload struct {
	RoomID string `json:"room_id"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
}

// AssignTeamsPayload GM 批量分配队伍
type AssignTeamsPayload struct {
	RoomID      string              `json:"room_id"`
	Assignments map[string][]string `json:"assignments"` // teamID → userIDs
}

// ProposeActionPayload 队伍提议
type ProposeActionPayload struct {
	RoomID     string `json:"room_id"`
	TeamID     string `json:"team_id"`
	ActionName string `json:"action_name"`
	Notes      string `json:"notes,omitempty"`
}

// ProposalRefPayload confirm_action / cancel_proposal
type ProposalRefPayload struct {
	RoomID     string `json:"room_id"`
	TeamID     string `json:"team_id"`
	ProposalID string `json:"proposal_id"`
}

// GetTeamReportPayload 队伍进度查询，带 session_id 时附加角色存活与血量
type GetTeamReportPayload struct {
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateSessionPayload 创建会话
type CreateSessionPayload struct {
	RoomID string `json:"room_id"`
}

// SessionRefPayload 只携带会话 ID 的请求
type SessionRefPayload struct {
	SessionID string `json:"session_id"`
}

// SelectCharacterPayload 选择角色
type SelectCharacterPayload struct {
	SessionID   string `json:"session_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
}

// CreateNPCPayload GM 添加 NPC
type CreateNPCPayload struct {
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name"`
	Stats       *StatsDTO `json:"stats,omitempty"` // 为空时使用职业模板
}

// EditCharacterPayload 改名或换职业，字段为空表示不修改
type EditCharacterPayload struct {
	CharacterID string `json:"character_id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// UpdateStatsPayload GM 直接修改属性
type UpdateStatsPayload struct {
	CharacterID string   `json:"character_id"`
	Stats       StatsDTO `json:"stats"`
}

// SessionControlPayload 会话生命周期控制
type SessionControlPayload struct {
	SessionID string `json:"session_id"`
	Command   string `json:"command"` // start/pause/resume/finish
}

// 会话控制命令
const (
	CommandStart  = "start"
	CommandPause  = "pause"
	CommandResume = "resume"
	CommandFinish = "finish"
)

// SetDifficultyPayload 设置难度与规则选项
type SetDifficultyPayload struct {
	SessionID string         `json:"session_id"`
	Level     string         `json:"level"`
	Options   map[string]any `json:"options,omitempty"`
}

// SaveSnapshotPayload 保存快照
type SaveSnapshotPayload struct {
	SessionID string `json:"session_id"`
	Note      string `json:"note,omitempty"`
}

// LoadSnapshotPayload 加载快照
type LoadSnapshotPayload struct {
	SnapshotID string `json:"snapshot_id"`
}

// PerformActionPayload 执行动作
type PerformActionPayload struct {
	SessionID string  `json:"session_id"`
	ActorID   string  `json:"actor_id"`
	TargetID  string  `json:"target_id,omitempty"`
	Action    string  `json:"action"`               // ATTACK/DEFEND/SKILL/ITEM/WAIT
	SkillKind string  `json:"skill_kind,omitempty"` // DAMAGE/HEAL
	Dice      DiceDTO `json:"dice"`
}

// AssistPayload 协助队友
type AssistPayload struct {
	SessionID string   `json:"session_id"`
	ActorID   string   `json:"actor_id"`
	AllyIDs   []string `json:"ally_ids"`
	Type      string   `json:"type"` // HEAL/SHIELD/FOCUS
	Dice      DiceDTO  `json:"dice"`
}

// EndTurnPayload 结束回合
type EndTurnPayload struct {
	SessionID string `json:"session_id"`
	ActorID   string `json:"actor_id"`
}

// GetCombatLogPayload 分页查询战斗日志
type GetCombatLogPayload struct {
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

// --- 服务端响应 Payloads ---

// ConnectedPayload 连接成功响应
type ConnectedPayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// PongPayload 心跳响应
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"` // 客户端发送的时间戳
	ServerTimestamp int64 `json:"server_timestamp"` // 服务器时间戳（毫秒）
}

// OnlineCountPayload 在线人数更新
type OnlineCountPayload struct {
	Count int `json:"count"` // 当前在线人数
}

// RoomStatePayload 房间完整状态
type RoomStatePayload struct {
	Room RoomDTO `json:"room"`
}

// InvitePayload 邀请通知（invite_received / invite_state）
type InvitePayload struct {
	Invite InviteDTO `json:"invite"`
}

// InviteListPayload 房间内有效邀请
type InviteListPayload struct {
	RoomID    string   `json:"room_id"`
	InviteIDs []string `json:"invite_ids"`
}

// JoinCodePayload 加入码
type JoinCodePayload struct {
	Code     string `json:"code"`
	RoomID   string `json:"room_id"`
	ExpireAt int64  `json:"expire_at"`
}

// ProposalStatePayload 提议状态
type ProposalStatePayload struct {
	Proposal ProposalDTO `json:"proposal"`
	Quorum   int         `json:"quorum"`
}

// TeamReportPayload 队伍进度报告
type TeamReportPayload struct {
	SessionID string            `json:"session_id,omitempty"`
	RoomID    string            `json:"room_id"`
	Teams     []TeamProgressDTO `json:"teams"`
}

// SessionStatePayload 会话状态
type SessionStatePayload struct {
	Session SessionDTO `json:"session"`
}

// CharacterStatePayload 角色状态
type CharacterStatePayload struct {
	Character CharacterDTO `json:"character"`
}

// TurnChangedPayload 回合切换通知
type TurnChangedPayload struct {
	SessionID         string `json:"session_id"`
	TurnIndex         int    `json:"turn_index"`
	ActiveCharacterID string `json:"active_character_id"`
	PreviousID        string `json:"previous_id,omitempty"`
	Auto              bool   `json:"auto"`
}

// ActionResultPayload 动作结果
type ActionResultPayload struct {
	Entry CombatEntryDTO `json:"entry"`
}

// SnapshotSavedPayload 快照已保存
type SnapshotSavedPayload struct {
	Snapshot SnapshotDTO `json:"snapshot"`
}

// SnapshotListPayload 快照列表
type SnapshotListPayload struct {
	SessionID string        `json:"session_id"`
	Snapshots []SnapshotDTO `json:"snapshots"`
}

// OverviewPayload 实时概览
type OverviewPayload struct {
	Session            SessionDTO       `json:"session"`
	Characters         []CharacterDTO   `json:"characters"`
	Alive              int              `json:"alive"`
	TurnRemainingMs    int64            `json:"turn_remaining_ms"`
	RecentLog          []CombatEntryDTO `json:"recent_log"`
	OpenProposalCount  int              `json:"open_proposal_count"`
	TotalLoggedActions int              `json:"total_logged_actions"`
}

// CombatLogPayload 战斗日志分页结果
type CombatLogPayload struct {
	SessionID string           `json:"session_id"`
	Entries   []CombatEntryDTO `json:"entries"`
}

// ErrorPayload 错误响应
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// --- 通用数据结构 ---

// MemberDTO 房间成员
type MemberDTO struct {
	UserID   string `json:"user_id"`
	JoinedAt int64  `json:"joined_at"`
	Online   bool   `json:"online"`
}

// TeamDTO 队伍
type TeamDTO struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// RoomDTO 房间
type RoomDTO struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	OwnerID   string      `json:"owner_id"`
	State     string      `json:"state"`
	Capacity  int         `json:"capacity"`
	CreatedAt int64       `json:"created_at"`
	Members   []MemberDTO `json:"members"`
	Teams     []TeamDTO   `json:"teams"`
}

// InviteDTO 邀请
type InviteDTO struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Message   string `json:"message,omitempty"`
	CreatedAt int64  `json:"created_at"`
	ExpireAt  int64  `json:"expire_at"`
	Status    string `json:"status"`
}

// ProposalDTO 队伍提议
type ProposalDTO struct {
	ID            string   `json:"id"`
	RoomID        string   `json:"room_id"`
	TeamID        string   `json:"team_id"`
	ActionName    string   `json:"action_name"`
	Notes         string   `json:"notes,omitempty"`
	ProposerID    string   `json:"proposer_id"`
	CreatedAt     int64    `json:"created_at"`
	Confirmations []string `json:"confirmations"`
	Status        string   `json:"status"`
}

// TeamProgressDTO 队伍进度
type TeamProgressDTO struct {
	TeamID    string `json:"team_id"`
	TeamName  string `json:"team_name"`
	Members   int    `json:"members"`
	Open      int    `json:"open"`
	Confirmed int    `json:"confirmed"`
	Expired   int    `json:"expired"`
	Cancelled int    `json:"cancelled"`

	// 仅会话报告填充
	Characters int `json:"characters,omitempty"`
	Alive      int `json:"alive,omitempty"`
	HP         int `json:"hp,omitempty"`
	MaxHP      int `json:"max_hp,omitempty"`
}

// SessionDTO 会话
type SessionDTO struct {
	ID                string         `json:"id"`
	RoomID            string         `json:"room_id"`
	GMUserID          string         `json:"gm_user_id"`
	State             string         `json:"state"`
	CreatedAt         int64          `json:"created_at"`
	Difficulty        string         `json:"difficulty"`
	TurnTimeout       int            `json:"turn_timeout_seconds"`
	Options           map[string]any `json:"options,omitempty"`
	TurnOrder         []string       `json:"turn_order"`
	TurnIndex         int            `json:"turn_index"`
	ActiveCharacterID string         `json:"active_character_id,omitempty"`
}

// StatsDTO 角色属性
type StatsDTO struct {
	HP    int `json:"hp"`
	MP    int `json:"mp"`
	AP    int `json:"ap"`
	Speed int `json:"speed"`
}

// CharacterDTO 角色
type CharacterDTO struct {
	ID            string   `json:"id"`
	SessionID     string   `json:"session_id,omitempty"`
	OwnerUserID   string   `json:"owner_user_id,omitempty"`
	DisplayName   string   `json:"display_name"`
	Role          string   `json:"role"`
	Stats         StatsDTO `json:"stats"`
	MaxHP         int      `json:"max_hp"`
	Guard         int      `json:"guard"`
	Incapacitated bool     `json:"incapacitated"`
	Active        bool     `json:"active,omitempty"`
}

// DiceDTO 掷骰参数
type DiceDTO struct {
	Count    int `json:"count"`
	Sides    int `json:"sides"`
	Modifier int `json:"modifier"`
}

// CombatEntryDTO 战斗日志条目
type CombatEntryDTO struct {
	SessionID  string   `json:"session_id"`
	TurnIndex  int      `json:"turn_index"`
	ActorID    string   `json:"actor_id"`
	Action     string   `json:"action"`
	TargetID   string   `json:"target_id,omitempty"`
	AllyIDs    []string `json:"ally_ids,omitempty"`
	Rolls      []int    `json:"rolls,omitempty"`
	Modifier   int      `json:"modifier"`
	Magnitude  int      `json:"magnitude"`
	ResultText string   `json:"result_text"`
	Timestamp  int64    `json:"timestamp"`
}

// SnapshotDTO 快照元数据
type SnapshotDTO struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Note      string `json:"note,omitempty"`
	CreatedAt int64  `json:"created_at"`
}
