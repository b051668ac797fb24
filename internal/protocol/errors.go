package protocol

// 错误码
const (
	ErrCodeUnknown      = 1000
	ErrCodeInvalidMsg   = 1001
	ErrCodeRateLimit    = 1002 // 速率限制
	ErrCodeUnauthorized = 1003 // 身份无效

	// 房间 / 邀请 / 加入码
	ErrCodeRoomNotFound           = 2001
	ErrCodeCapacityExceeded       = 2002
	ErrCodeNotInRoom              = 2003
	ErrCodeAlreadyMember          = 2004
	ErrCodeRoomClosed             = 2005
	ErrCodeDuplicatePendingInvite = 2010
	ErrCodeInviteNotFound         = 2011
	ErrCodeInviteExpired          = 2012
	ErrCodeInviteNotPending       = 2013
	ErrCodeNotFriends             = 2014
	ErrCodeJoinCodeNotFound       = 2020
	ErrCodeJoinCodeExpired        = 2021
	ErrCodeJoinCodeUsed           = 2022

	// 队伍协商
	ErrCodeUnknownTeam      = 2030
	ErrCodeNotTeamMember    = 2031
	ErrCodeProposalNotFound = 2032
	ErrCodeProposalNotOpen  = 2033

	// 会话 / 回合 / 战斗
	ErrCodeSessionNotFound      = 3001
	ErrCodeSessionClosed        = 3002
	ErrCodeSessionNotRunning    = 3003
	ErrCodeInvalidTransition    = 3004
	ErrCodeNotYourTurn          = 3005
	ErrCodeCharacterNotFound    = 3006
	ErrCodeInvalidTarget        = 3007
	ErrCodeInsufficientResource = 3008
	ErrCodeInvalidDice          = 3009
	ErrCodeInvalidOption        = 3010
	ErrCodeInvalidInput         = 3011
	ErrCodeIncapacitated        = 3012

	// 快照
	ErrCodeSnapshotNotFound  = 4001
	ErrCodeSnapshotCorrupted = 4002

	ErrCodeForbidden         = 5001
	ErrCodeServerMaintenance = 5003 // 服务器维护中
)

// ErrorMessages 错误码对应的消息
var ErrorMessages = map[int]string{
	ErrCodeUnknown:      "unknown error",
	ErrCodeInvalidMsg:   "invalid message format",
	ErrCodeRateLimit:    "too many requests",
	ErrCodeUnauthorized: "invalid identity token",

	ErrCodeRoomNotFound:           "room not found",
	ErrCodeCapacityExceeded:       "room capacity exceeded",
	ErrCodeNotInRoom:              "user is not a member of the room",
	ErrCodeAlreadyMember:          "user is already a member of the room",
	ErrCodeRoomClosed:             "room is not open",
	ErrCodeDuplicatePendingInvite: "a pending invite already exists for this user",
	ErrCodeInviteNotFound:         "invite not found",
	ErrCodeInviteExpired:          "invite has expired",
	ErrCodeInviteNotPending:       "invite is not pending",
	ErrCodeNotFriends:             "users are not friends",
	ErrCodeJoinCodeNotFound:       "join code not found",
	ErrCodeJoinCodeExpired:        "join code has expired",
	ErrCodeJoinCodeUsed:           "join code already used",

	ErrCodeUnknownTeam:      "team does not exist in room",
	ErrCodeNotTeamMember:    "user is not a member of the team",
	ErrCodeProposalNotFound: "proposal not found",
	ErrCodeProposalNotOpen:  "proposal is not open",

	ErrCodeSessionNotFound:      "session not found",
	ErrCodeSessionClosed:        "session is finished",
	ErrCodeSessionNotRunning:    "session is not running",
	ErrCodeInvalidTransition:    "illegal session state transition",
	ErrCodeNotYourTurn:          "not your turn",
	ErrCodeCharacterNotFound:    "character not found",
	ErrCodeInvalidTarget:        "invalid target",
	ErrCodeInsufficientResource: "insufficient resource",
	ErrCodeInvalidDice:          "invalid dice parameters",
	ErrCodeInvalidOption:        "unrecognized or invalid option",
	ErrCodeInvalidInput:         "invalid input",
	ErrCodeIncapacitated:        "character is incapacitated",

	ErrCodeSnapshotNotFound:  "snapshot not found",
	ErrCodeSnapshotCorrupted: "snapshot payload is corrupted",

	ErrCodeForbidden:         "forbidden",
	ErrCodeServerMaintenance: "server under maintenance",
}
