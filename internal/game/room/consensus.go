package room

import (
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/types"
)

// ProposalStatus 队伍提案状态
type ProposalStatus string

const (
	ProposalOpen      ProposalStatus = "OPEN"
	ProposalConfirmed ProposalStatus = "CONFIRMED"
	ProposalExpired   ProposalStatus = "EXPIRED"
	ProposalCancelled ProposalStatus = "CANCELLED"
)

// Proposal 队伍行动提案，确认数达到法定人数后变为 CONFIRMED 且不可再变
type Proposal struct {
	ID            string         `json:"id"`
	RoomID        string         `json:"room_id"`
	TeamID        string         `json:"team_id"`
	ActionName    string         `json:"action_name"`
	Notes         string         `json:"notes,omitempty"`
	ProposerID    string         `json:"proposer_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Confirmations []string       `json:"confirmations"`
	Status        ProposalStatus `json:"status"`
}

func (p *Proposal) clone() Proposal {
	c := *p
	c.Confirmations = slices.Clone(p.Confirmations)
	return c
}

// TeamProgress 队伍提案进度
type TeamProgress struct {
	TeamID    string `json:"team_id"`
	TeamName  string `json:"team_name"`
	Members   int    `json:"members"`
	Open      int    `json:"open"`
	Confirmed int    `json:"confirmed"`
	Expired   int    `json:"expired"`
	Cancelled int    `json:"cancelled"`
}

// Quorum 法定确认人数 ⌈n/2⌉+1，不超过队伍人数
func Quorum(teamSize int) int {
	if teamSize <= 0 {
		return 0
	}
	return min((teamSize+1)/2+1, teamSize)
}

// RecordTeamAction 发起队伍提案，队伍成员或 GM/ADMIN 可发起
func (rm *RoomManager) RecordTeamAction(actor types.Identity, roomID, teamID, actionName, notes string) (Proposal, error) {
	actionName = strings.TrimSpace(actionName)
	if actionName == "" {
		return Proposal{}, apperrors.WithDetail(apperrors.ErrInvalidInput, "action name is empty")
	}
	room, err := rm.getRoom(roomID)
	if err != nil {
		return Proposal{}, err
	}

	room.mu.RLock()
	team, ok := room.teams[teamID]
	if !ok {
		room.mu.RUnlock()
		return Proposal{}, apperrors.ErrUnknownTeam
	}
	if !slices.Contains(team.members, actor.UserID) && !actor.CanModerate() {
		room.mu.RUnlock()
		return Proposal{}, apperrors.ErrNotTeamMember
	}

	p := &Proposal{
		ID:            rm.newID(),
		RoomID:        roomID,
		TeamID:        teamID,
		ActionName:    actionName,
		Notes:         notes,
		ProposerID:    actor.UserID,
		CreatedAt:     rm.now(),
		Confirmations: []string{},
		Status:        ProposalOpen,
	}
	team.mu.Lock()
	team.proposals[p.ID] = p
	team.proposalOrder = append(team.proposalOrder, p.ID)
	created := p.clone()
	team.mu.Unlock()
	room.mu.RUnlock()

	logrus.WithFields(logrus.Fields{"room": roomID, "team": teamID, "proposal": created.ID, "action": actionName}).Info("🗳️ 队伍提案已发起")
	rm.recordTeam(actor.UserID, roomID, "propose", created.ID)
	return created, nil
}

// ConfirmTeamAction 确认提案。重复确认为空操作，只统计当前队伍成员的确认。
func (rm *RoomManager) ConfirmTeamAction(roomID, teamID, proposalID, confirmerID string) (Proposal, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return Proposal{}, err
	}

	room.mu.RLock()
	team, ok := room.teams[teamID]
	if !ok {
		room.mu.RUnlock()
		return Proposal{}, apperrors.ErrUnknownTeam
	}
	members := slices.Clone(team.members)

	team.mu.Lock()
	p, ok := team.proposals[proposalID]
	if !ok {
		team.mu.Unlock()
		room.mu.RUnlock()
		return Proposal{}, apperrors.ErrProposalNotFound
	}
	if p.Status != ProposalOpen {
		team.mu.Unlock()
		room.mu.RUnlock()
		return Proposal{}, apperrors.ErrProposalNotOpen
	}
	if !slices.Contains(members, confirmerID) {
		team.mu.Unlock()
		room.mu.RUnlock()
		return Proposal{}, apperrors.ErrNotTeamMember
	}
	if !slices.Contains(p.Confirmations, confirmerID) {
		p.Confirmations = append(p.Confirmations, confirmerID)
	}
	counted := 0
	for _, uid := range p.Confirmations {
		if slices.Contains(members, uid) {
			counted++
		}
	}
	confirmed := counted >= Quorum(len(members))
	if confirmed {
		p.Status = ProposalConfirmed
	}
	result := p.clone()
	team.mu.Unlock()
	room.mu.RUnlock()

	if confirmed {
		logrus.WithFields(logrus.Fields{"room": roomID, "team": teamID, "proposal": proposalID}).Info("✅ 队伍提案已通过")
	}
	rm.recordTeam(confirmerID, roomID, "confirm", proposalID)
	return result, nil
}

// CancelTeamAction 提案人或 GM/ADMIN 取消提案
func (rm *RoomManager) CancelTeamAction(actor types.Identity, roomID, teamID, proposalID string) error {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return err
	}
	if err := room.cancelProposal(actor, teamID, proposalID); err != nil {
		return err
	}
	rm.recordTeam(actor.UserID, roomID, "cancel", proposalID)
	return nil
}

func (r *Room) cancelProposal(actor types.Identity, teamID, proposalID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	team, ok := r.teams[teamID]
	if !ok {
		return apperrors.ErrUnknownTeam
	}

	team.mu.Lock()
	defer team.mu.Unlock()
	p, ok := team.proposals[proposalID]
	if !ok {
		return apperrors.ErrProposalNotFound
	}
	if actor.UserID != p.ProposerID && !actor.CanModerate() {
		return apperrors.ErrForbidden
	}
	if p.Status != ProposalOpen {
		return apperrors.ErrProposalNotOpen
	}
	p.Status = ProposalCancelled
	return nil
}

// ExpireTeamActions 把 cutoff 之前创建且仍 OPEN 的提案标记为 EXPIRED，返回数量
func (rm *RoomManager) ExpireTeamActions(roomID string, cutoff time.Time) (int, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return 0, err
	}

	room.mu.RLock()
	defer room.mu.RUnlock()
	expired := 0
	for _, tid := range room.teamOrder {
		team := room.teams[tid]
		team.mu.Lock()
		for _, pid := range team.proposalOrder {
			p := team.proposals[pid]
			if p.Status == ProposalOpen && p.CreatedAt.Before(cutoff) {
				p.Status = ProposalExpired
				expired++
			}
		}
		team.mu.Unlock()
	}
	return expired, nil
}

// GetProposal 查询提案
func (rm *RoomManager) GetProposal(roomID, teamID, proposalID string) (Proposal, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return Proposal{}, err
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	team, ok := room.teams[teamID]
	if !ok {
		return Proposal{}, apperrors.ErrUnknownTeam
	}
	team.mu.Lock()
	defer team.mu.Unlock()
	p, ok := team.proposals[proposalID]
	if !ok {
		return Proposal{}, apperrors.ErrProposalNotFound
	}
	return p.clone(), nil
}

// ProgressByTeam 统计房间内各队伍的提案进度
func (rm *RoomManager) ProgressByTeam(roomID string) ([]TeamProgress, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return nil, err
	}

	room.mu.RLock()
	defer room.mu.RUnlock()
	progress := make([]TeamProgress, 0, len(room.teamOrder))
	for _, tid := range room.teamOrder {
		team := room.teams[tid]
		tp := TeamProgress{TeamID: team.ID, TeamName: team.Name, Members: len(team.members)}
		team.mu.Lock()
		for _, pid := range team.proposalOrder {
			switch team.proposals[pid].Status {
			case ProposalOpen:
				tp.Open++
			case ProposalConfirmed:
				tp.Confirmed++
			case ProposalExpired:
				tp.Expired++
			case ProposalCancelled:
				tp.Cancelled++
			}
		}
		team.mu.Unlock()
		progress = append(progress, tp)
	}
	return progress, nil
}

// OpenProposals 房间内全部 OPEN 提案的深拷贝，用于快照
func (rm *RoomManager) OpenProposals(roomID string) ([]Proposal, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return nil, err
	}

	room.mu.RLock()
	defer room.mu.RUnlock()
	open := make([]Proposal, 0)
	for _, tid := range room.teamOrder {
		team := room.teams[tid]
		team.mu.Lock()
		for _, pid := range team.proposalOrder {
			if p := team.proposals[pid]; p.Status == ProposalOpen {
				open = append(open, p.clone())
			}
		}
		team.mu.Unlock()
	}
	return open, nil
}

// RestoreProposals 快照恢复：快照中的提案重新以 OPEN 状态打开，
// 快照之后创建且不在快照中的提案被丢弃，缺失的队伍按快照重建。
func (rm *RoomManager) RestoreProposals(roomID string, snapshotAt time.Time, proposals []Proposal) error {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(proposals))
	for _, p := range proposals {
		keep[p.ID] = true
	}

	room.mu.Lock()
	for _, p := range proposals {
		if _, ok := room.teams[p.TeamID]; !ok {
			room.teams[p.TeamID] = newTeam(p.TeamID, p.TeamID)
			room.teamOrder = append(room.teamOrder, p.TeamID)
		}
	}
	for _, tid := range room.teamOrder {
		team := room.teams[tid]
		team.mu.Lock()
		order := team.proposalOrder[:0]
		for _, pid := range team.proposalOrder {
			p := team.proposals[pid]
			if !keep[pid] && p.CreatedAt.After(snapshotAt) {
				delete(team.proposals, pid)
				continue
			}
			order = append(order, pid)
		}
		team.proposalOrder = order
		team.mu.Unlock()
	}
	for _, p := range proposals {
		team := room.teams[p.TeamID]
		restored := p.clone()
		restored.RoomID = roomID
		restored.Status = ProposalOpen
		team.mu.Lock()
		if _, exists := team.proposals[p.ID]; !exists {
			team.proposalOrder = append(team.proposalOrder, p.ID)
		}
		team.proposals[p.ID] = &restored
		team.mu.Unlock()
	}
	room.mu.Unlock()

	logrus.WithFields(logrus.Fields{"room": roomID, "proposals": len(proposals)}).Info("♻️ 队伍提案已从快照恢复")
	rm.persist(room)
	return nil
}
