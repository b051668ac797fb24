package convert

import (
	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/game/combat"
	"github.com/palemoky/quest-arena/internal/game/session"
	"github.com/palemoky/quest-arena/internal/protocol"
)

// SessionToDTO 将 session.Info 转换为 protocol.SessionDTO
func SessionToDTO(info session.Info) protocol.SessionDTO {
	order := info.TurnOrder
	if order == nil {
		order = []string{}
	}
	return protocol.SessionDTO{
		ID:                info.ID,
		RoomID:            info.RoomID,
		GMUserID:          info.GMUserID,
		State:             string(info.State),
		CreatedAt:         millis(info.CreatedAt),
		Difficulty:        string(info.Rules.Difficulty),
		TurnTimeout:       info.Rules.TurnTimeoutSeconds,
		Options:           RulesToOptions(info.Rules),
		TurnOrder:         order,
		TurnIndex:         info.TurnIndex,
		ActiveCharacterID: info.ActiveCharacterID,
	}
}

// RulesToOptions 以 set_difficulty 接受的键名展开规则
func RulesToOptions(r session.Rules) map[string]any {
	return map[string]any{
		"assist_share_percent":   r.Combat.AssistSharePercent,
		"defend_reduction_bonus": r.Combat.DefendBonus,
		"friendly_fire":          r.Combat.FriendlyFire,
		"initiative_by_speed":    r.InitiativeBySpeed,
		"item_heal":              r.Combat.ItemHeal,
		"skill_base_cost":        r.Combat.SkillBaseCost,
		"turn_timeout_seconds":   r.TurnTimeoutSeconds,
	}
}

// StatsToDTO 将 character.Stats 转换为 protocol.StatsDTO
func StatsToDTO(s character.Stats) protocol.StatsDTO {
	return protocol.StatsDTO{HP: s.HP, MP: s.MP, AP: s.AP, Speed: s.Speed}
}

// DTOToStats 将 protocol.StatsDTO 转换为 character.Stats
func DTOToStats(s protocol.StatsDTO) character.Stats {
	return character.Stats{HP: s.HP, MP: s.MP, AP: s.AP, Speed: s.Speed}
}

// CharacterToDTO 将 character.Character 转换为 protocol.CharacterDTO
func CharacterToDTO(c character.Character) protocol.CharacterDTO {
	return protocol.CharacterDTO{
		ID:            c.ID,
		SessionID:     c.SessionID,
		OwnerUserID:   c.OwnerUserID,
		DisplayName:   c.DisplayName,
		Role:          string(c.Role),
		Stats:         StatsToDTO(c.Stats),
		MaxHP:         c.MaxHP,
		Guard:         c.Guard,
		Incapacitated: c.Incapacitated(),
	}
}

// CharacterViewToDTO 将概览中的角色视图转换为 protocol.CharacterDTO
func CharacterViewToDTO(v session.CharacterView) protocol.CharacterDTO {
	return protocol.CharacterDTO{
		ID:            v.ID,
		OwnerUserID:   v.OwnerUserID,
		DisplayName:   v.DisplayName,
		Role:          string(v.Role),
		Stats:         StatsToDTO(v.Stats),
		MaxHP:         v.MaxHP,
		Guard:         v.Guard,
		Incapacitated: v.Incapacitated,
		Active:        v.Active,
	}
}

// DTOToDice 将 protocol.DiceDTO 转换为 combat.DiceSpec
func DTOToDice(d protocol.DiceDTO) combat.DiceSpec {
	return combat.DiceSpec{Count: d.Count, Sides: d.Sides, Modifier: d.Modifier}
}

// EntryToDTO 将 combat.Entry 转换为 protocol.CombatEntryDTO
func EntryToDTO(e combat.Entry) protocol.CombatEntryDTO {
	return protocol.CombatEntryDTO{
		SessionID:  e.SessionID,
		TurnIndex:  e.TurnIndex,
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		TargetID:   e.TargetID,
		AllyIDs:    e.AllyIDs,
		Rolls:      e.Rolls,
		Modifier:   e.Modifier,
		Magnitude:  e.Magnitude,
		ResultText: e.ResultText,
		Timestamp:  millis(e.Timestamp),
	}
}

// EntriesToDTOs 将 []combat.Entry 转换为 []protocol.CombatEntryDTO
func EntriesToDTOs(entries []combat.Entry) []protocol.CombatEntryDTO {
	result := make([]protocol.CombatEntryDTO, len(entries))
	for i, e := range entries {
		result[i] = EntryToDTO(e)
	}
	return result
}

// SnapshotToDTO 将 session.Snapshot 转换为 protocol.SnapshotDTO
func SnapshotToDTO(s session.Snapshot) protocol.SnapshotDTO {
	return protocol.SnapshotDTO{
		ID:        s.ID,
		SessionID: s.SessionID,
		Note:      s.Note,
		CreatedAt: millis(s.CreatedAt),
	}
}

// SnapshotsToDTOs 将 []session.Snapshot 转换为 []protocol.SnapshotDTO
func SnapshotsToDTOs(snaps []session.Snapshot) []protocol.SnapshotDTO {
	result := make([]protocol.SnapshotDTO, len(snaps))
	for i, s := range snaps {
		result[i] = SnapshotToDTO(s)
	}
	return result
}

// OverviewToPayload 将 session.LiveOverview 转换为 protocol.OverviewPayload
func OverviewToPayload(ov session.LiveOverview) protocol.OverviewPayload {
	chars := make([]protocol.CharacterDTO, len(ov.Characters))
	for i, v := range ov.Characters {
		chars[i] = CharacterViewToDTO(v)
	}
	return protocol.OverviewPayload{
		Session:            SessionToDTO(ov.Session),
		Characters:         chars,
		Alive:              ov.Alive,
		TurnRemainingMs:    ov.TurnRemainingMs,
		RecentLog:          EntriesToDTOs(ov.RecentLog),
		OpenProposalCount:  ov.OpenProposalCount,
		TotalLoggedActions: ov.TotalLoggedActions,
	}
}

// GroupProgressToDTOs 将会话级队伍进度转换为 []protocol.TeamProgressDTO
func GroupProgressToDTOs(progress []session.GroupProgress) []protocol.TeamProgressDTO {
	result := make([]protocol.TeamProgressDTO, len(progress))
	for i, p := range progress {
		dto := teamProgressToDTO(p.TeamProgress)
		dto.Characters = p.Characters
		dto.Alive = p.Alive
		dto.HP = p.HP
		dto.MaxHP = p.MaxHP
		result[i] = dto
	}
	return result
}

// TurnEventToPayload 将 session.TurnEvent 转换为 protocol.TurnChangedPayload
func TurnEventToPayload(ev session.TurnEvent) protocol.TurnChangedPayload {
	return protocol.TurnChangedPayload{
		SessionID:         ev.SessionID,
		TurnIndex:         ev.TurnIndex,
		ActiveCharacterID: ev.ActiveCharacterID,
		PreviousID:        ev.PreviousID,
		Auto:              ev.Auto,
	}
}
