package handler

import (
	"context"
	"strings"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/game/session"
	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/protocol/convert"
	"github.com/palemoky/quest-arena/internal/types"
)

// pushSession 会话状态发给调用者和房间内其他成员
func (h *Handler) pushSession(client types.ClientInterface, info session.Info) {
	out, err := protocol.NewMessage(protocol.MsgSessionState, protocol.SessionStatePayload{
		Session: convert.SessionToDTO(info),
	})
	if err != nil {
		sendError(client, err)
		return
	}
	client.SendMessage(out)
	h.server.BroadcastToRoom(info.RoomID, out, client.Identity().UserID)
}

// pushCharacter 角色状态发给调用者和房间内其他成员
func (h *Handler) pushCharacter(client types.ClientInterface, c character.Character) {
	out, err := protocol.NewMessage(protocol.MsgCharacterState, protocol.CharacterStatePayload{
		Character: convert.CharacterToDTO(c),
	})
	if err != nil {
		sendError(client, err)
		return
	}
	client.SendMessage(out)
	if info, err := h.sessions.Get(c.SessionID); err == nil {
		h.server.BroadcastToRoom(info.RoomID, out, client.Identity().UserID)
	}
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(client types.ClientInterface, msg *protocol.Message) {
	if !h.maintenanceGuard(client) {
		return
	}
	payload, ok := parse[protocol.CreateSessionPayload](client, msg)
	if !ok {
		return
	}

	info, err := h.sessions.CreateSession(payload.RoomID, client.Identity())
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushSession(client, info)
}

// handleSelectCharacter 玩家选择角色
func (h *Handler) handleSelectCharacter(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.SelectCharacterPayload](client, msg)
	if !ok {
		return
	}

	c, err := h.sessions.SelectCharacter(client.Identity(), payload.SessionID, payload.Role, payload.DisplayName)
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushCharacter(client, c)
}

// handleCreateNPC GM 添加 NPC
func (h *Handler) handleCreateNPC(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.CreateNPCPayload](client, msg)
	if !ok {
		return
	}

	var stats *character.Stats
	if payload.Stats != nil {
		s := convert.DTOToStats(*payload.Stats)
		stats = &s
	}
	c, err := h.sessions.CreateNPC(client.Identity(), payload.SessionID, payload.Role, payload.DisplayName, stats)
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushCharacter(client, c)
}

// handleEditCharacter 改名和换职业，两者都给出时先换职业
func (h *Handler) handleEditCharacter(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.EditCharacterPayload](client, msg)
	if !ok {
		return
	}
	if strings.TrimSpace(payload.Role) == "" && strings.TrimSpace(payload.DisplayName) == "" {
		sendError(client, apperrors.WithDetail(apperrors.ErrInvalidInput, "nothing to edit"))
		return
	}

	var (
		c   character.Character
		err error
	)
	if payload.Role != "" {
		if c, err = h.sessions.SetRole(client.Identity(), payload.CharacterID, payload.Role); err != nil {
			sendError(client, err)
			return
		}
	}
	if payload.DisplayName != "" {
		if c, err = h.sessions.Rename(client.Identity(), payload.CharacterID, payload.DisplayName); err != nil {
			sendError(client, err)
			return
		}
	}
	h.pushCharacter(client, c)
}

// handleUpdateStats GM 修改属性
func (h *Handler) handleUpdateStats(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.UpdateStatsPayload](client, msg)
	if !ok {
		return
	}

	c, err := h.sessions.UpdateStats(client.Identity(), payload.CharacterID, convert.DTOToStats(payload.Stats))
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushCharacter(client, c)
}

// handleSessionControl 开始 / 暂停 / 恢复 / 结束
func (h *Handler) handleSessionControl(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.SessionControlPayload](client, msg)
	if !ok {
		return
	}

	var control func(types.Identity, string) (session.Info, error)
	switch strings.ToLower(strings.TrimSpace(payload.Command)) {
	case protocol.CommandStart:
		control = h.sessions.Start
	case protocol.CommandPause:
		control = h.sessions.Pause
	case protocol.CommandResume:
		control = h.sessions.Resume
	case protocol.CommandFinish:
		control = h.sessions.Finish
	default:
		sendError(client, apperrors.WithDetail(apperrors.ErrInvalidInput, "unknown command "+payload.Command))
		return
	}

	info, err := control(client.Identity(), payload.SessionID)
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushSession(client, info)
}

// handleSetDifficulty 设置难度与规则选项
func (h *Handler) handleSetDifficulty(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.SetDifficultyPayload](client, msg)
	if !ok {
		return
	}

	info, err := h.sessions.SetDifficulty(client.Identity(), payload.SessionID, payload.Level, payload.Options)
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushSession(client, info)
}

// handleApplyDefaults 恢复默认规则
func (h *Handler) handleApplyDefaults(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.SessionRefPayload](client, msg)
	if !ok {
		return
	}

	info, err := h.sessions.ApplyDefaultRules(client.Identity(), payload.SessionID)
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushSession(client, info)
}

// handleSaveSnapshot 保存快照
func (h *Handler) handleSaveSnapshot(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.SaveSnapshotPayload](client, msg)
	if !ok {
		return
	}

	snap, err := h.sessions.SaveSnapshot(context.Background(), client.Identity(), payload.SessionID, payload.Note)
	if err != nil {
		sendError(client, err)
		return
	}
	reply(client, protocol.MsgSnapshotSaved, protocol.SnapshotSavedPayload{Snapshot: convert.SnapshotToDTO(snap)})
}

// handleLoadSnapshot 加载快照，恢复后的会话状态同步给整个房间
func (h *Handler) handleLoadSnapshot(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.LoadSnapshotPayload](client, msg)
	if !ok {
		return
	}

	info, err := h.sessions.LoadSnapshot(context.Background(), client.Identity(), payload.SnapshotID)
	if err != nil {
		sendError(client, err)
		return
	}
	h.pushSession(client, info)
}

// handleListSnapshots 快照列表
func (h *Handler) handleListSnapshots(client types.ClientInterface, msg *protocol.Message) {
	payload, ok := parse[protocol.SessionRefPayload](client, msg)
	if !ok {
		return
	}
	if _, ok := h.sessionAccess(client, payload.SessionID); !ok {
		return
	}

	snaps, err := h.sessions.ListSnapshots(context.Background(), payload.SessionID)
	if err != nil {
		sendError(client, err)
		return
	}
	reply(client, protocol.MsgSnapshotList, protocol.SnapshotListPayload{
		SessionID: payload.SessionID,
		Snapshots: convert.SnapshotsToDTOs(snaps),
	})
}

// sessionAccess 查询会话并校验调用者能否读取
func (h *Handler) sessionAccess(client types.ClientInterface, sessionID string) (session.Info, bool) {
	info, err := h.sessions.Get(sessionID)
	if err != nil {
		sendError(client, err)
		return session.Info{}, false
	}
	if err := h.requireRoomAccess(client.Identity(), info.RoomID); err != nil {
		sendError(client, err)
		return session.Info{}, false
	}
	return info, true
}
