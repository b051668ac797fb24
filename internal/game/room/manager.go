package room

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/server/storage"
	"github.com/palemoky/quest-arena/internal/types"
)

// Store 房间持久化
type Store interface {
	SaveRoom(ctx context.Context, roomID string, data *storage.RoomData) error
}

// RoomInfo 房间只读视图
type RoomInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	OwnerID   string     `json:"owner_id"`
	State     RoomState  `json:"state"`
	Capacity  int        `json:"capacity"`
	CreatedAt time.Time  `json:"created_at"`
	Members   []Member   `json:"members"`
	Teams     []TeamInfo `json:"teams"`
}

// TeamInfo 队伍只读视图
type TeamInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// CreateRoom 创建房间（创建者不自动成为成员）
func (rm *RoomManager) CreateRoom(ctx context.Context, owner types.Identity, name string, capacity int) (RoomInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoomInfo{}, apperrors.WithDetail(apperrors.ErrInvalidInput, "room name is empty")
	}
	if capacity == 0 {
		capacity = rm.opts.DefaultCapacity
	}

	// 外部调用在加锁之前完成
	ceiling, err := rm.capacityCeiling(ctx, owner.UserID)
	if err != nil {
		return RoomInfo{}, err
	}
	if capacity < 1 || capacity > ceiling {
		return RoomInfo{}, apperrors.WithDetail(apperrors.ErrInvalidInput,
			fmt.Sprintf("capacity must be between 1 and %d", ceiling))
	}

	rm.mu.Lock()
	id := rm.generateRoomCode()
	room := newRoom(id, name, owner.UserID, capacity, rm.now())
	rm.rooms[id] = room
	rm.mu.Unlock()

	logrus.WithFields(logrus.Fields{"room": id, "owner": owner.UserID, "capacity": capacity}).Info("🏠 房间已创建")
	rm.persist(room)
	return room.Info(), nil
}

// GetRoom 获取房间视图
func (rm *RoomManager) GetRoom(roomID string) (RoomInfo, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return RoomInfo{}, err
	}
	return room.Info(), nil
}

// ListRooms 列出所有房间
func (rm *RoomManager) ListRooms() []RoomInfo {
	rm.mu.RLock()
	rooms := make([]*Room, 0, len(rm.rooms))
	for _, room := range rm.rooms {
		rooms = append(rooms, room)
	}
	rm.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Info())
	}
	slices.SortFunc(infos, func(a, b RoomInfo) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return infos
}

// SetState 开放 / 关闭 / 暂停房间，仅房主或 GM/ADMIN
func (rm *RoomManager) SetState(actor types.Identity, roomID string, state RoomState) error {
	if !state.Valid() {
		return apperrors.WithDetail(apperrors.ErrInvalidInput, "unknown room state "+string(state))
	}
	room, err := rm.getRoom(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	if actor.UserID != room.OwnerID && !actor.CanModerate() {
		room.mu.Unlock()
		return apperrors.ErrForbidden
	}
	room.State = state
	room.mu.Unlock()

	logrus.WithFields(logrus.Fields{"room": roomID, "state": state}).Info("🏠 房间状态变更")
	rm.persist(room)
	return nil
}

// AddMember 加入房间，容量检查与插入在同一临界区内完成
func (rm *RoomManager) AddMember(roomID, userID string, joinedAt time.Time) (Member, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return Member{}, err
	}

	room.mu.Lock()
	member, err := room.addMemberLocked(userID, joinedAt)
	room.mu.Unlock()
	if err != nil {
		return Member{}, err
	}

	rm.afterJoin(room, member, "direct", "")
	return member, nil
}

// RemoveMember 离开房间，成员不存在时为空操作
func (rm *RoomManager) RemoveMember(roomID, userID string) error {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	removed := room.removeMemberLocked(userID)
	room.mu.Unlock()
	if !removed {
		return nil
	}

	logrus.WithFields(logrus.Fields{"room": roomID, "user": userID}).Info("👋 玩家离开房间")
	rm.record(analytics.Event{RoomID: roomID, UserID: userID, Type: analytics.EventRoomLeave})
	rm.persist(room)
	return nil
}

// IsMember 是否为房间成员
func (rm *RoomManager) IsMember(roomID, userID string) bool {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	_, ok := room.members[userID]
	return ok
}

// IsFull 房间是否已满
func (rm *RoomManager) IsFull(roomID string) (bool, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return false, err
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.members) >= room.Capacity, nil
}

// Exists 房间是否存在
func (rm *RoomManager) Exists(roomID string) bool {
	_, err := rm.getRoom(roomID)
	return err == nil
}

// Info 生成房间视图
func (r *Room) Info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := RoomInfo{
		ID:        r.ID,
		Name:      r.Name,
		OwnerID:   r.OwnerID,
		State:     r.State,
		Capacity:  r.Capacity,
		CreatedAt: r.CreatedAt,
		Members:   make([]Member, 0, len(r.memberOrder)),
		Teams:     make([]TeamInfo, 0, len(r.teamOrder)),
	}
	for _, uid := range r.memberOrder {
		info.Members = append(info.Members, *r.members[uid])
	}
	for _, tid := range r.teamOrder {
		t := r.teams[tid]
		info.Teams = append(info.Teams, TeamInfo{ID: t.ID, Name: t.Name, Members: slices.Clone(t.members)})
	}
	return info
}

// addMemberLocked 所有加入途径共用的容量检查原语，调用方持有写锁
func (r *Room) addMemberLocked(userID string, joinedAt time.Time) (Member, error) {
	if r.State != StateOpen {
		return Member{}, apperrors.ErrRoomClosed
	}
	if _, exists := r.members[userID]; exists {
		return Member{}, apperrors.ErrAlreadyMember
	}
	if len(r.members) >= r.Capacity {
		return Member{}, apperrors.ErrCapacityExceeded
	}

	m := &Member{RoomID: r.ID, UserID: userID, JoinedAt: joinedAt}
	r.members[userID] = m
	r.memberOrder = append(r.memberOrder, userID)
	return *m, nil
}

// removeMemberLocked 移除成员并退出其队伍，返回是否确实移除
func (r *Room) removeMemberLocked(userID string) bool {
	if _, exists := r.members[userID]; !exists {
		return false
	}
	delete(r.members, userID)
	if i := slices.Index(r.memberOrder, userID); i >= 0 {
		r.memberOrder = slices.Delete(r.memberOrder, i, i+1)
	}
	r.leaveTeamLocked(userID)
	return true
}

// canManage 房间成员、房主或 GM/ADMIN
func (r *Room) canManage(actor types.Identity) bool {
	if actor.UserID == r.OwnerID || actor.CanModerate() {
		return true
	}
	_, ok := r.members[actor.UserID]
	return ok
}

func (rm *RoomManager) getRoom(roomID string) (*Room, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	room, ok := rm.rooms[roomID]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return room, nil
}

// capacityCeiling 订阅计划给出的容量上限，无计划查询时使用全局上限
func (rm *RoomManager) capacityCeiling(ctx context.Context, userID string) (int, error) {
	if rm.opts.Plans == nil {
		return rm.opts.MaxCapacity, nil
	}
	ceiling, ok, err := rm.opts.Plans.CapacityCeiling(ctx, userID, rm.now())
	if err != nil {
		return 0, fmt.Errorf("query plan ceiling: %w", err)
	}
	if !ok {
		return rm.opts.DefaultCapacity, nil
	}
	return min(ceiling, rm.opts.MaxCapacity), nil
}

func (rm *RoomManager) afterJoin(room *Room, member Member, via, ref string) {
	logrus.WithFields(logrus.Fields{"room": room.ID, "user": member.UserID, "via": via}).Info("👤 玩家加入房间")
	metadata := map[string]any{"via": via}
	if ref != "" {
		metadata["ref"] = ref
	}
	rm.record(analytics.Event{
		RoomID:    room.ID,
		UserID:    member.UserID,
		Type:      analytics.EventRoomJoin,
		Timestamp: member.JoinedAt,
		Metadata:  metadata,
	})
	rm.persist(room)
}

// persist 投递到房间写入器，同一房间的写入按版本顺序落盘。调用方不得持有房间锁
func (rm *RoomManager) persist(room *Room) {
	if rm.saver == nil {
		return
	}
	data := room.saveData()
	rm.saver.Enqueue(data.ID, data.Revision, data)
}

func (rm *RoomManager) record(e analytics.Event) {
	rm.recorder.Record(e)
}

// generateRoomCode 生成房间号，调用方持有 rm.mu
func (rm *RoomManager) generateRoomCode() string {
	for {
		code := make([]byte, roomCodeLength)
		for i := range code {
			code[i] = roomCodeChars[rand.IntN(len(roomCodeChars))]
		}
		codeStr := string(code)
		if _, exists := rm.rooms[codeStr]; !exists {
			return codeStr
		}
	}
}

// generateJoinCode 生成未被占用的加入码并登记索引
func (rm *RoomManager) generateJoinCode(roomID string) string {
	rm.idxMu.Lock()
	defer rm.idxMu.Unlock()
	for {
		code := make([]byte, joinCodeLength)
		for i := range code {
			code[i] = joinCodeChars[rand.IntN(len(joinCodeChars))]
		}
		codeStr := string(code)
		if _, exists := rm.codeIndex[codeStr]; !exists {
			rm.codeIndex[codeStr] = roomID
			return codeStr
		}
	}
}

func newUUID() string {
	return uuid.NewString()
}
