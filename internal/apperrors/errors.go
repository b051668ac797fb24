package apperrors

import (
	"errors"

	"github.com/palemoky/quest-arena/internal/protocol"
)

// Kind 错误类别，按原因区分而非表现形式
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalidState
	KindExpired
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindConflict:
		return "Conflict"
	case KindInvalidState:
		return "InvalidState"
	case KindExpired:
		return "Expired"
	case KindInvalidInput:
		return "InvalidInput"
	default:
		return "Internal"
	}
}

// GameError 游戏错误（房间和会话共享）
type GameError struct {
	Code    int
	Kind    Kind
	Message string
	Cause   error
}

func (e *GameError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *GameError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *GameError) Is(target error) bool {
	var t *GameError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func newError(code int, kind Kind) *GameError {
	return &GameError{Code: code, Kind: kind, Message: protocol.ErrorMessages[code]}
}

// WithDetail 基于预定义错误生成带上下文描述的新错误，保留错误码
func WithDetail(base *GameError, detail string) *GameError {
	return &GameError{Code: base.Code, Kind: base.Kind, Message: base.Message + ": " + detail}
}

// Wrap 基于预定义错误包装底层原因
func Wrap(base *GameError, cause error) *GameError {
	return &GameError{Code: base.Code, Kind: base.Kind, Message: base.Message, Cause: cause}
}

// KindOf 返回错误的类别，非 GameError 视为内部错误
func KindOf(err error) Kind {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// CodeOf 返回错误码，非 GameError 返回 ErrCodeUnknown
func CodeOf(err error) int {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return protocol.ErrCodeUnknown
}

// 预定义错误
var (
	ErrForbidden    = newError(protocol.ErrCodeForbidden, KindForbidden)
	ErrInvalidInput = newError(protocol.ErrCodeInvalidInput, KindInvalidInput)
	ErrUnauthorized = newError(protocol.ErrCodeUnauthorized, KindForbidden)

	// 房间
	ErrRoomNotFound     = newError(protocol.ErrCodeRoomNotFound, KindNotFound)
	ErrCapacityExceeded = newError(protocol.ErrCodeCapacityExceeded, KindConflict)
	ErrNotInRoom        = newError(protocol.ErrCodeNotInRoom, KindNotFound)
	ErrAlreadyMember    = newError(protocol.ErrCodeAlreadyMember, KindConflict)
	ErrRoomClosed       = newError(protocol.ErrCodeRoomClosed, KindInvalidState)

	// 邀请与加入码
	ErrDuplicatePendingInvite = newError(protocol.ErrCodeDuplicatePendingInvite, KindConflict)
	ErrInviteNotFound         = newError(protocol.ErrCodeInviteNotFound, KindNotFound)
	ErrInviteExpired          = newError(protocol.ErrCodeInviteExpired, KindExpired)
	ErrInviteNotPending       = newError(protocol.ErrCodeInviteNotPending, KindConflict)
	ErrNotFriends             = newError(protocol.ErrCodeNotFriends, KindForbidden)
	ErrCodeNotFound           = newError(protocol.ErrCodeJoinCodeNotFound, KindNotFound)
	ErrCodeExpired            = newError(protocol.ErrCodeJoinCodeExpired, KindExpired)
	ErrCodeAlreadyUsed        = newError(protocol.ErrCodeJoinCodeUsed, KindConflict)

	// 队伍协商
	ErrUnknownTeam      = newError(protocol.ErrCodeUnknownTeam, KindNotFound)
	ErrNotTeamMember    = newError(protocol.ErrCodeNotTeamMember, KindForbidden)
	ErrProposalNotFound = newError(protocol.ErrCodeProposalNotFound, KindNotFound)
	ErrProposalNotOpen  = newError(protocol.ErrCodeProposalNotOpen, KindConflict)

	// 会话
	ErrSessionNotFound   = newError(protocol.ErrCodeSessionNotFound, KindNotFound)
	ErrSessionClosed     = newError(protocol.ErrCodeSessionClosed, KindInvalidState)
	ErrSessionNotRunning = newError(protocol.ErrCodeSessionNotRunning, KindInvalidState)
	ErrInvalidTransition = newError(protocol.ErrCodeInvalidTransition, KindInvalidState)
	ErrInvalidOption     = newError(protocol.ErrCodeInvalidOption, KindInvalidInput)

	// 回合与战斗
	ErrNotYourTurn          = newError(protocol.ErrCodeNotYourTurn, KindConflict)
	ErrCharacterNotFound    = newError(protocol.ErrCodeCharacterNotFound, KindNotFound)
	ErrInvalidTarget        = newError(protocol.ErrCodeInvalidTarget, KindInvalidInput)
	ErrInsufficientResource = newError(protocol.ErrCodeInsufficientResource, KindConflict)
	ErrInvalidDice          = newError(protocol.ErrCodeInvalidDice, KindInvalidInput)
	ErrIncapacitated        = newError(protocol.ErrCodeIncapacitated, KindInvalidState)

	// 快照
	ErrSnapshotNotFound  = newError(protocol.ErrCodeSnapshotNotFound, KindNotFound)
	ErrSnapshotCorrupted = newError(protocol.ErrCodeSnapshotCorrupted, KindInvalidState)
)
