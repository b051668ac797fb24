package handler

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/room"
	"github.com/palemoky/quest-arena/internal/game/session"
	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/types"
)

// HandlerDeps 处理器依赖
type HandlerDeps struct {
	Server      types.ServerInterface
	RoomManager *room.RoomManager
	Sessions    *session.Manager
}

// Handler 消息处理器
type Handler struct {
	server      types.ServerInterface
	roomManager *room.RoomManager
	sessions    *session.Manager
	handlers    map[protocol.MessageType]handlerFunc
	now         func() time.Time
}

// handlerFunc 统一的处理器函数签名
type handlerFunc func(client types.ClientInterface, msg *protocol.Message)

// NewHandler 创建处理器
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		server:      deps.Server,
		roomManager: deps.RoomManager,
		sessions:    deps.Sessions,
		now:         time.Now,
	}
	h.initHandlers()
	return h
}

// initHandlers 初始化消息处理器映射
func (h *Handler) initHandlers() {
	h.handlers = map[protocol.MessageType]handlerFunc{
		// 连接操作
		protocol.MsgPing:           h.handlePing,
		protocol.MsgGetOnlineCount: func(c types.ClientInterface, _ *protocol.Message) { h.handleGetOnlineCount(c) },

		// 房间操作
		protocol.MsgCreateRoom:    h.handleCreateRoom,
		protocol.MsgJoinRoom:      h.handleJoinRoom,
		protocol.MsgSetRoomState:  h.handleSetRoomState,
		protocol.MsgLeaveRoom:     h.handleLeaveRoom,
		protocol.MsgGetRoom:       h.handleGetRoom,
		protocol.MsgInviteFriend:  h.handleInviteFriend,
		protocol.MsgAcceptInvite:  h.handleAcceptInvite,
		protocol.MsgDeclineInvite: h.handleDeclineInvite,
		protocol.MsgRevokeInvite:  h.handleRevokeInvite,
		protocol.MsgListInvites:   h.handleListInvites,
		protocol.MsgGenerateCode:  h.handleGenerateCode,
		protocol.MsgJoinByCode:    h.handleJoinByCode,

		// 队伍与协商
		protocol.MsgCreateTeam:     h.handleCreateTeam,
		protocol.MsgAddToTeam:      h.handleAddToTeam,
		protocol.MsgAssignTeams:    h.handleAssignTeams,
		protocol.MsgProposeAction:  h.handleProposeAction,
		protocol.MsgConfirmAction:  h.handleConfirmAction,
		protocol.MsgCancelProposal: h.handleCancelProposal,
		protocol.MsgGetTeamReport:  h.handleGetTeamReport,

		// 会话操作
		protocol.MsgCreateSession:   h.handleCreateSession,
		protocol.MsgSelectCharacter: h.handleSelectCharacter,
		protocol.MsgCreateNPC:       h.handleCreateNPC,
		protocol.MsgEditCharacter:   h.handleEditCharacter,
		protocol.MsgUpdateStats:     h.handleUpdateStats,
		protocol.MsgSessionControl:  h.handleSessionControl,
		protocol.MsgSetDifficulty:   h.handleSetDifficulty,
		protocol.MsgApplyDefaults:   h.handleApplyDefaults,
		protocol.MsgSaveSnapshot:    h.handleSaveSnapshot,
		protocol.MsgLoadSnapshot:    h.handleLoadSnapshot,
		protocol.MsgListSnapshots:   h.handleListSnapshots,

		// 战斗与回合
		protocol.MsgPerformAction: h.handlePerformAction,
		protocol.MsgAssist:        h.handleAssist,
		protocol.MsgEndTurn:       h.handleEndTurn,
		protocol.MsgGetOverview:   h.handleGetOverview,
		protocol.MsgGetCombatLog:  h.handleGetCombatLog,
	}
}

// Handle 处理消息
func (h *Handler) Handle(client types.ClientInterface, msg *protocol.Message) {
	if handler, ok := h.handlers[msg.Type]; ok {
		handler(client, msg)
		return
	}

	logrus.WithFields(logrus.Fields{
		"type":    msg.Type,
		"user":    client.Identity().UserID,
		"conn":    client.GetID(),
		"payload": len(msg.Payload),
	}).Warn("⚠️ 未知消息类型")
	client.SendMessage(protocol.NewErrorMessage(protocol.ErrCodeInvalidMsg))
}

// parse 解析 payload，失败时回复 ErrCodeInvalidMsg
func parse[T any](client types.ClientInterface, msg *protocol.Message) (*T, bool) {
	payload, err := protocol.ParsePayload[T](msg)
	if err != nil {
		client.SendMessage(protocol.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return nil, false
	}
	return payload, true
}

// sendError 把领域错误转换为错误消息
func sendError(client types.ClientInterface, err error) {
	code := apperrors.CodeOf(err)
	if code == protocol.ErrCodeUnknown {
		logrus.WithError(err).WithField("user", client.Identity().UserID).Error("处理消息失败")
		client.SendMessage(protocol.NewErrorMessage(code))
		return
	}
	client.SendMessage(protocol.NewErrorMessageWithText(code, err.Error()))
}

// reply 发送响应，编码失败只记录日志
func reply(client types.ClientInterface, msgType protocol.MessageType, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		logrus.WithError(err).WithField("type", msgType).Error("消息编码失败")
		return
	}
	client.SendMessage(msg)
}

// maintenanceGuard 维护模式下拒绝新的房间和会话
func (h *Handler) maintenanceGuard(client types.ClientInterface) bool {
	if h.server.IsMaintenanceMode() {
		client.SendMessage(protocol.NewErrorMessage(protocol.ErrCodeServerMaintenance))
		return false
	}
	return true
}

// requireRoomAccess 读取房间和会话数据需要是成员或 GM/ADMIN
func (h *Handler) requireRoomAccess(ident types.Identity, roomID string) error {
	if ident.CanModerate() {
		return nil
	}
	if !h.roomManager.Exists(roomID) {
		return apperrors.ErrRoomNotFound
	}
	if !h.roomManager.IsMember(roomID, ident.UserID) {
		return apperrors.ErrNotInRoom
	}
	return nil
}
