// Package convert 在领域模型与协议 DTO 之间转换
package convert

import (
	"time"

	"github.com/palemoky/quest-arena/internal/game/room"
	"github.com/palemoky/quest-arena/internal/protocol"
)

// millis 零值时间转换为 0
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// RoomToDTO 将 room.RoomInfo 转换为 protocol.RoomDTO，online 可为空
func RoomToDTO(info room.RoomInfo, online func(userID string) bool) protocol.RoomDTO {
	dto := protocol.RoomDTO{
		ID:        info.ID,
		Name:      info.Name,
		OwnerID:   info.OwnerID,
		State:     string(info.State),
		Capacity:  info.Capacity,
		CreatedAt: millis(info.CreatedAt),
		Members:   make([]protocol.MemberDTO, len(info.Members)),
		Teams:     make([]protocol.TeamDTO, len(info.Teams)),
	}
	for i, m := range info.Members {
		dto.Members[i] = protocol.MemberDTO{
			UserID:   m.UserID,
			JoinedAt: millis(m.JoinedAt),
			Online:   online != nil && online(m.UserID),
		}
	}
	for i, t := range info.Teams {
		dto.Teams[i] = TeamToDTO(t)
	}
	return dto
}

// TeamToDTO 将 room.TeamInfo 转换为 protocol.TeamDTO
func TeamToDTO(t room.TeamInfo) protocol.TeamDTO {
	members := t.Members
	if members == nil {
		members = []string{}
	}
	return protocol.TeamDTO{ID: t.ID, Name: t.Name, Members: members}
}

// InviteToDTO 将 room.Invite 转换为 protocol.InviteDTO
func InviteToDTO(inv room.Invite) protocol.InviteDTO {
	return protocol.InviteDTO{
		ID:        inv.ID,
		RoomID:    inv.RoomID,
		InviterID: inv.InviterID,
		InviteeID: inv.InviteeID,
		Message:   inv.Message,
		CreatedAt: millis(inv.CreatedAt),
		ExpireAt:  millis(inv.ExpireAt),
		Status:    string(inv.Status),
	}
}

// JoinCodeToPayload 将 room.JoinCode 转换为 protocol.JoinCodePayload
func JoinCodeToPayload(jc room.JoinCode) protocol.JoinCodePayload {
	return protocol.JoinCodePayload{
		Code:     jc.Code,
		RoomID:   jc.RoomID,
		ExpireAt: millis(jc.ExpireAt),
	}
}

// ProposalToDTO 将 room.Proposal 转换为 protocol.ProposalDTO
func ProposalToDTO(p room.Proposal) protocol.ProposalDTO {
	confirmations := p.Confirmations
	if confirmations == nil {
		confirmations = []string{}
	}
	return protocol.ProposalDTO{
		ID:            p.ID,
		RoomID:        p.RoomID,
		TeamID:        p.TeamID,
		ActionName:    p.ActionName,
		Notes:         p.Notes,
		ProposerID:    p.ProposerID,
		CreatedAt:     millis(p.CreatedAt),
		Confirmations: confirmations,
		Status:        string(p.Status),
	}
}

// TeamProgressToDTOs 将 []room.TeamProgress 转换为 []protocol.TeamProgressDTO
func TeamProgressToDTOs(progress []room.TeamProgress) []protocol.TeamProgressDTO {
	result := make([]protocol.TeamProgressDTO, len(progress))
	for i, p := range progress {
		result[i] = teamProgressToDTO(p)
	}
	return result
}

func teamProgressToDTO(p room.TeamProgress) protocol.TeamProgressDTO {
	return protocol.TeamProgressDTO{
		TeamID:    p.TeamID,
		TeamName:  p.TeamName,
		Members:   p.Members,
		Open:      p.Open,
		Confirmed: p.Confirmed,
		Expired:   p.Expired,
		Cancelled: p.Cancelled,
	}
}
