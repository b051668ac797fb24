package handler

import (
	"github.com/palemoky/quest-arena/internal/game/room"
	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/protocol/convert"
	"github.com/palemoky/quest-arena/internal/types"
)

// handleCreateTeam 创建队伍
func (h *Handler) handleCreateTeam(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.CreateTeamPayload](client, msg)
	if !ok {
		return
	}

	if _, err := h.roomManager.CreateTeam(client.Identity(), payload.RoomID, payload.Name); err != nil {
		sendError(client, err)
		return
	}
	h.pushRoomState(client, payload.RoomID)
}

// handleAddToTeam 把成员加入队伍
func (h *Handler) handleAddToTeam(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.AddToTeamPayload](client, msg)
	if !ok {
		return
	}

	if err := h.roomManager.AddMemberToTeam(client.Identity(), payload.RoomID, payload.TeamID, payload.UserID); err != nil {
		sendError(client, err)
		return
	}
	h.pushRoomState(client, payload.RoomID)
}

// handleAssignTeams GM 批量分队
func (h *Handler) handleAssignTeams(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.AssignTeamsPayload](client, msg)
	if !ok {
		return
	}

	if err := h.roomManager.AssignTeams(client.Identity(), payload.RoomID, payload.Assignments); err != nil {
		sendError(client, err)
		return
	}
	h.pushRoomState(client, payload.RoomID)
}

// handleProposeAction 发起队伍提案
func (h *Handler) handleProposeAction(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.ProposeActionPayload](client, msg)
	if !ok {
		return
	}

	p, err := h.roomManager.RecordTeamAction(client.Identity(), payload.RoomID, payload.TeamID, payload.ActionName, payload.Notes)
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushProposal(client, p)
}

// handleConfirmAction 确认提案
func (h *Handler) handleConfirmAction(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.ProposalRefPayload](client, msg)
	if !ok {
		return
	}

	p, err := h.roomManager.ConfirmTeamAction(payload.RoomID, payload.TeamID, payload.ProposalID, client.Identity().UserID)
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushProposal(client, p)
}

// handleCancelProposal 取消提案
func (h *Handler) handleCancelProposal(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.ProposalRefPayload](client, msg)
	if !ok {
		return
	}

	if err := h.roomManager.CancelTeamAction(client.Identity(), payload.RoomID, payload.TeamID, payload.ProposalID); err != nil {
		sendError(client, err)
		return
	}
	p, err := h.roomManager.GetProposal(payload.RoomID, payload.TeamID, payload.ProposalID)
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushProposal(client, p)
}

// pushProposal 提案状态发给调用者和房间内其他成员
func (h *Handler) pushProposal(client types.ClientInterface, p room.Proposal) {
	quorum := 0
	if teams, err := h.roomManager.Teams(p.RoomID); err == nil {
		for _, t := range teams {
			if t.ID == p.TeamID {
				quorum = room.Quorum(len(t.Members))
				break
			}
		}
	}

	out, err := protocol.NewMessage(protocol.MsgProposalState, protocol.ProposalStatePayload{
		Proposal: convert.ProposalToDTO(p),
		Quorum:   quorum,
	})
	if err != nil {
		sendError(client, err)
		return
	}
	client.SendMessage(out)
	h.server.BroadcastToRoom(p.RoomID, out, client.Identity().UserID)
}

// handleGetTeamReport 队伍进度，带会话时附加角色统计
func (h *Handler) handleGetTeamReport(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.GetTeamReportPayload](client, msg)
	if !ok {
		return
	}

	roomID := payload.RoomID
	if payload.SessionID != "" {
		info, err := h.sessions.Get(payload.SessionID)
		if err != nil {
			sendError(client, err)
			return
		}
		roomID = info.RoomID
	}
	if err := h.requireRoomAccess(client.Identity(), roomID); err != nil {
		sendError(client, err)
		return
	}

	report := protocol.TeamReportPayload{SessionID: payload.SessionID, RoomID: roomID}
	if payload.SessionID != "" {
		progress, err := h.sessions.ComputeGroupProgress(payload.SessionID)
		if err != nil {
			sendError(client, err)
			return
		}
		report.Teams = convert.GroupProgressToDTOs(progress)
	} else {
		progress, err := h.roomManager.ProgressByTeam(roomID)
		if err != nil {
			sendError(client, err)
			return
		}
		report.Teams = convert.TeamProgressToDTOs(progress)
	}
	reply(client, protocol.MsgTeamReport, report)
}
