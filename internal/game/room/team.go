package room

import (
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/types"
)

// CreateTeam 在房间内创建队伍，房间成员、房主或 GM/ADMIN 可创建
func (rm *RoomManager) CreateTeam(actor types.Identity, roomID, name string) (TeamInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TeamInfo{}, apperrors.WithDetail(apperrors.ErrInvalidInput, "team name is empty")
	}
	room, err := rm.getRoom(roomID)
	if err != nil {
		return TeamInfo{}, err
	}

	room.mu.Lock()
	if !room.canManage(actor) {
		room.mu.Unlock()
		return TeamInfo{}, apperrors.ErrForbidden
	}
	team := newTeam(rm.newID(), name)
	room.teams[team.ID] = team
	room.teamOrder = append(room.teamOrder, team.ID)
	room.mu.Unlock()

	logrus.WithFields(logrus.Fields{"room": roomID, "team": team.ID, "name": name}).Info("🛡️ 队伍已创建")
	rm.recordTeam(actor.UserID, roomID, "create", team.ID)
	rm.persist(room)
	return TeamInfo{ID: team.ID, Name: name, Members: []string{}}, nil
}

// AddMemberToTeam 把成员加入队伍，原队伍的成员身份被隐式移除。
// 本人、房主或 GM/ADMIN 可操作。
func (rm *RoomManager) AddMemberToTeam(actor types.Identity, roomID, teamID, userID string) error {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	if actor.UserID != userID && actor.UserID != room.OwnerID && !actor.CanModerate() {
		room.mu.Unlock()
		return apperrors.ErrForbidden
	}
	team, ok := room.teams[teamID]
	if !ok {
		room.mu.Unlock()
		return apperrors.ErrUnknownTeam
	}
	if _, ok := room.members[userID]; !ok {
		room.mu.Unlock()
		return apperrors.ErrNotInRoom
	}
	room.joinTeamLocked(team, userID)
	room.mu.Unlock()

	rm.recordTeam(actor.UserID, roomID, "add_member", teamID)
	rm.persist(room)
	return nil
}

// AssignTeams GM 批量分队。被列出的队伍名单整体替换，校验全部通过后才修改。
func (rm *RoomManager) AssignTeams(actor types.Identity, roomID string, assignments map[string][]string) error {
	if !actor.CanModerate() {
		return apperrors.ErrForbidden
	}
	room, err := rm.getRoom(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	seen := make(map[string]string)
	for teamID, userIDs := range assignments {
		if _, ok := room.teams[teamID]; !ok {
			room.mu.Unlock()
			return apperrors.WithDetail(apperrors.ErrUnknownTeam, teamID)
		}
		for _, uid := range userIDs {
			if _, ok := room.members[uid]; !ok {
				room.mu.Unlock()
				return apperrors.WithDetail(apperrors.ErrNotInRoom, uid)
			}
			if prev, dup := seen[uid]; dup {
				room.mu.Unlock()
				return apperrors.WithDetail(apperrors.ErrInvalidInput,
					"user "+uid+" assigned to both "+prev+" and "+teamID)
			}
			seen[uid] = teamID
		}
	}

	// 先清空被列出的队伍，再按名单重新加入
	for _, tid := range room.teamOrder {
		if _, listed := assignments[tid]; !listed {
			continue
		}
		team := room.teams[tid]
		for _, uid := range team.members {
			delete(room.memberTeam, uid)
		}
		team.members = nil
	}
	for _, tid := range room.teamOrder {
		team := room.teams[tid]
		for _, uid := range assignments[tid] {
			room.joinTeamLocked(team, uid)
		}
	}
	room.mu.Unlock()

	logrus.WithFields(logrus.Fields{"room": roomID, "teams": len(assignments)}).Info("🛡️ GM 已完成分队")
	rm.recordTeam(actor.UserID, roomID, "assign", "")
	rm.persist(room)
	return nil
}

// TeamOf 查询用户所在队伍
func (rm *RoomManager) TeamOf(roomID, userID string) (string, bool) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return "", false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	teamID, ok := room.memberTeam[userID]
	return teamID, ok
}

// Teams 房间内的全部队伍
func (rm *RoomManager) Teams(roomID string) ([]TeamInfo, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return nil, err
	}
	return room.Info().Teams, nil
}

// joinTeamLocked 调用方持有房间写锁
func (r *Room) joinTeamLocked(team *Team, userID string) {
	if r.memberTeam[userID] == team.ID {
		return
	}
	r.leaveTeamLocked(userID)
	team.members = append(team.members, userID)
	r.memberTeam[userID] = team.ID
}

// leaveTeamLocked 调用方持有房间写锁
func (r *Room) leaveTeamLocked(userID string) {
	teamID, ok := r.memberTeam[userID]
	if !ok {
		return
	}
	delete(r.memberTeam, userID)
	team := r.teams[teamID]
	if team == nil {
		return
	}
	if i := slices.Index(team.members, userID); i >= 0 {
		team.members = slices.Delete(team.members, i, i+1)
	}
}

func (rm *RoomManager) recordTeam(actorID, roomID, action, ref string) {
	metadata := map[string]any{"action": action}
	if ref != "" {
		metadata["ref"] = ref
	}
	rm.record(analytics.Event{
		RoomID:    roomID,
		UserID:    actorID,
		Type:      analytics.EventTeamAction,
		Timestamp: rm.now(),
		Metadata:  metadata,
	})
}
