package handler

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/game/room"
	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/protocol/convert"
	"github.com/palemoky/quest-arena/internal/types"
)

// roomStateMessage 生成房间状态消息
func (h *Handler) roomStateMessage(roomID string) (*protocol.Message, error) {
	info, err := h.roomManager.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	return protocol.NewMessage(protocol.MsgRoomState, protocol.RoomStatePayload{
		Room: convert.RoomToDTO(info, h.server.IsOnline),
	})
}

// pushRoomState 回复调用者最新房间状态，并同步给房间内其他成员
func (h *Handler) pushRoomState(client types.ClientInterface, roomID string) {
	msg, err := h.roomStateMessage(roomID)
	if err != nil {
		sendError(client, err)
		return
	}
	client.SendMessage(msg)
	h.server.BroadcastToRoom(roomID, msg, client.Identity().UserID)
}

// handleCreateRoom 处理创建房间
func (h *Handler) handleCreateRoom(client types.ClientInterface, msg *protocol.Message) {
	if !h.maintenanceGuard(client) {
		return
	}
	payload, ok := parse[protocol.CreateRoomPayload](client, msg)
	if !ok {
		return
	}

	info, err := h.roomManager.CreateRoom(context.Background(), client.Identity(), payload.Name, payload.Capacity)
	if err != nil {
		sendError(client, err)
		return
	}
	reply(client, protocol.MsgRoomState, protocol.RoomStatePayload{
		Room: convert.RoomToDTO(info, h.server.IsOnline),
	})
}

// handleJoinRoom 直接加入开放的房间
func (h *Handler) handleJoinRoom(client types.ClientInterface, msg *protocol.Message) {
	if !h.maintenanceGuard(client) {
		return
	}
	payload, ok := parse[protocol.RoomRefPayload](client, msg)
	if !ok {
		return
	}

	if _, err := h.roomManager.AddMember(payload.RoomID, client.Identity().UserID, h.now()); err != nil {
		sendError(client, err)
		return
	}
	h.pushRoomState(client, payload.RoomID)
}

// handleSetRoomState 开放 / 暂停 / 关闭房间
func (h *Handler) handleSetRoomState(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.SetRoomStatePayload](client, msg)
	if !ok {
		return
	}

	state := room.RoomState(strings.ToUpper(strings.TrimSpace(payload.State)))
	if err := h.roomManager.SetState(client.Identity(), payload.RoomID, state); err != nil {
		sendError(client, err)
		return
	}
	h.pushRoomState(client, payload.RoomID)
}

// handleLeaveRoom 处理离开房间
func (h *Handler) handleLeaveRoom(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.RoomRefPayload](client, msg)
	if !ok {
		return
	}

	if err := h.roomManager.RemoveMember(payload.RoomID, client.Identity().UserID); err != nil {
		sendError(client, err)
		return
	}
	// 离开者已不在成员列表中，广播只发给剩余成员
	h.pushRoomState(client, payload.RoomID)
}

// handleGetRoom 查询房间
func (h *Handler) handleGetRoom(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.RoomRefPayload](client, msg)
	if !ok {
		return
	}
	if err := h.requireRoomAccess(client.Identity(), payload.RoomID); err != nil {
		sendError(client, err)
		return
	}

	out, err := h.roomStateMessage(payload.RoomID)
	if err != nil {
		sendError(client, err)
		return
	}
	client.SendMessage(out)
}

// handleInviteFriend 邀请好友，被邀请者在线时直接推送
func (h *Handler) handleInviteFriend(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.InviteFriendPayload](client, msg)
	if !ok {
		return
	}

	var expireAt time.Time
	if payload.ExpireAt > 0 {
		expireAt = time.UnixMilli(payload.ExpireAt)
	}
	inv, err := h.roomManager.InviteFriend(context.Background(), client.Identity(),
		payload.RoomID, payload.InviteeID, payload.Message, expireAt)
	if err != nil {
		sendError(client, err)
		return
	}

	dto := protocol.InvitePayload{Invite: convert.InviteToDTO(inv)}
	reply(client, protocol.MsgInviteState, dto)
	if out, err := protocol.NewMessage(protocol.MsgInviteReceived, dto); err == nil {
		h.server.SendToUser(inv.InviteeID, out)
	}
}

// handleAcceptInvite 接受邀请并加入房间
func (h *Handler) handleAcceptInvite(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.InviteRefPayload](client, msg)
	if !ok {
		return
	}

	member, err := h.roomManager.AcceptInvite(client.Identity().UserID, payload.InviteID, h.now())
	if err != nil {
		sendError(client, err)
		return
	}
	h.notifyInviter(payload.InviteID)
	h.pushRoomState(client, member.RoomID)
}

// handleDeclineInvite 拒绝邀请
func (h *Handler) handleDeclineInvite(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.InviteRefPayload](client, msg)
	if !ok {
		return
	}

	if err := h.roomManager.DeclineInvite(client.Identity().UserID, payload.InviteID); err != nil {
		sendError(client, err)
		return
	}
	h.replyInvite(client, payload.InviteID)
	h.notifyInviter(payload.InviteID)
}

// handleRevokeInvite 撤销邀请，通知被邀请者
func (h *Handler) handleRevokeInvite(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.InviteRefPayload](client, msg)
	if !ok {
		return
	}

	if err := h.roomManager.RevokeInvite(client.Identity(), payload.InviteID); err != nil {
		sendError(client, err)
		return
	}
	inv := h.replyInvite(client, payload.InviteID)
	if inv != nil {
		if out, err := protocol.NewMessage(protocol.MsgInviteState, protocol.InvitePayload{Invite: *inv}); err == nil {
			h.server.SendToUser(inv.InviteeID, out)
		}
	}
}

// replyInvite 回复调用者邀请的最新状态
func (h *Handler) replyInvite(client types.ClientInterface, inviteID string) *protocol.InviteDTO {
	inv, err := h.roomManager.GetInvite(inviteID)
	if err != nil {
		sendError(client, err)
		return nil
	}
	dto := convert.InviteToDTO(inv)
	reply(client, protocol.MsgInviteState, protocol.InvitePayload{Invite: dto})
	return &dto
}

// notifyInviter 把邀请处理结果推送给邀请者
func (h *Handler) notifyInviter(inviteID string) {
	inv, err := h.roomManager.GetInvite(inviteID)
	if err != nil {
		logrus.WithError(err).WithField("invite", inviteID).Warn("查询邀请失败")
		return
	}
	if out, err := protocol.NewMessage(protocol.MsgInviteState, protocol.InvitePayload{Invite: convert.InviteToDTO(inv)}); err == nil {
		h.server.SendToUser(inv.InviterID, out)
	}
}

// handleListInvites 房间内有效邀请
func (h *Handler) handleListInvites(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.RoomRefPayload](client, msg)
	if !ok {
		return
	}
	if err := h.requireRoomAccess(client.Identity(), payload.RoomID); err != nil {
		sendError(client, err)
		return
	}

	ids, err := h.roomManager.ListActiveInvites(payload.RoomID)
	if err != nil {
		sendError(client, err)
		return
	}
	reply(client, protocol.MsgInviteList, protocol.InviteListPayload{RoomID: payload.RoomID, InviteIDs: ids})
}

// handleGenerateCode 生成加入码
func (h *Handler) handleGenerateCode(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.GenerateCodePayload](client, msg)
	if !ok {
		return
	}

	jc, err := h.roomManager.GenerateJoinCode(client.Identity(), payload.RoomID,
		time.Duration(payload.TTLSeconds)*time.Second)
	if err != nil {
		sendError(client, err)
		return
	}
	reply(client, protocol.MsgJoinCode, convert.JoinCodeToPayload(jc))
}

// handleJoinByCode 通过加入码加入
func (h *Handler) handleJoinByCode(client types.ClientInterface, msg *protocol.Message) {
	if !h.maintenanceGuard(client) {
		return
	}
	payload, ok := parse[protocol.JoinByCodePayload](client, msg)
	if !ok {
		return
	}

	member, err := h.roomManager.JoinByCode(client.Identity().UserID, payload.Code, h.now())
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushRoomState(client, member.RoomID)
}
