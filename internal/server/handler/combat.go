package handler

import (
	"context"
	"strings"

	"github.com/palemoky/quest-arena/internal/game/combat"
	"github.com/palemoky/quest-arena/internal/game/session"
	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/protocol/convert"
	"github.com/palemoky/quest-arena/internal/types"
)

// pushEntry 战斗结果发给调用者和房间内其他成员
func (h *Handler) pushEntry(client types.ClientInterface, e combat.Entry) {
	out, err := protocol.NewMessage(protocol.MsgActionResult, protocol.ActionResultPayload{
		Entry: convert.EntryToDTO(e),
	})
	if err != nil {
		sendError(client, err)
		return
	}
	client.SendMessage(out)
	if info, err := h.sessions.Get(e.SessionID); err == nil {
		h.server.BroadcastToRoom(info.RoomID, out, client.Identity().UserID)
	}
}

// handlePerformAction 执行战斗动作
func (h *Handler) handlePerformAction(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.PerformActionPayload](client, msg)
	if !ok {
		return
	}

	action, err := combat.ParseAction(payload.Action)
	if err != nil {
		sendError(client, err)
		return
	}
	entry, err := h.sessions.PerformAction(payload.SessionID, client.Identity(), session.ActionRequest{
		ActorID:   payload.ActorID,
		TargetID:  payload.TargetID,
		Action:    action,
		SkillKind: combat.SkillKind(strings.ToUpper(strings.TrimSpace(payload.SkillKind))),
		Dice:      convert.DTOToDice(payload.Dice),
	})
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushEntry(client, entry)
}

// handleAssist 协助队友
func (h *Handler) handleAssist(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.AssistPayload](client, msg)
	if !ok {
		return
	}

	entry, err := h.sessions.Assist(payload.SessionID, client.Identity(), session.AssistRequest{
		ActorID: payload.ActorID,
		AllyIDs: payload.AllyIDs,
		Type:    combat.AssistType(strings.ToUpper(strings.TrimSpace(payload.Type))),
		Dice:    convert.DTOToDice(payload.Dice),
	})
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushEntry(client, entry)
}

// handleEndTurn 结束回合。回合切换由会话通知推送给房间成员和 GM，其他调用者单独回复
func (h *Handler) handleEndTurn(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.EndTurnPayload](client, msg)
	if !ok {
		return
	}

	userID := client.Identity().UserID
	ev, err := h.sessions.EndTurn(payload.SessionID, client.Identity(), payload.ActorID)
	if err != nil {
		sendError(client, err)
		return
	}
	if h.roomManager.IsMember(ev.RoomID, userID) {
		return
	}
	if info, err := h.sessions.Get(ev.SessionID); err == nil && info.GMUserID == userID {
		return
	}
	reply(client, protocol.MsgTurnChanged, convert.TurnEventToPayload(ev))
}

// handleGetOverview 实时概览
func (h *Handler) handleGetOverview(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.SessionRefPayload](client, msg)
	if !ok {
		return
	}
	if _, ok := h.sessionAccess(client, payload.SessionID); !ok {
		return
	}

	ov, err := h.sessions.GetLiveOverview(payload.SessionID)
	if err != nil {
		sendError(client, err)
		return
	}
	reply(client, protocol.MsgOverview, convert.OverviewToPayload(ov))
}

// handleGetCombatLog 分页查询战斗日志（新的在前）
func (h *Handler) handleGetCombatLog(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.GetCombatLogPayload](client, msg)
	if !ok {
		return
	}
	if _, ok := h.sessionAccess(client, payload.SessionID); !ok {
		return
	}

	entries, err := h.sessions.ListRecent(context.Background(), payload.SessionID, payload.Limit, payload.Offset)
	if err != nil {
		sendError(client, err)
		return
	}
	reply(client, protocol.MsgCombatLog, protocol.CombatLogPayload{
		SessionID: payload.SessionID,
		Entries:   convert.EntriesToDTOs(entries),
	})
}
