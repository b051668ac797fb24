package room

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/server/storage"
)

// Loader 启动时从存储恢复房间
type Loader interface {
	GetAllRoomIDs(ctx context.Context) ([]string, error)
	LoadRoom(ctx context.Context, roomID string) (*storage.RoomData, error)
}

// ToRoomData 将 Room 转换为可序列化的 RoomData，时间统一为毫秒
func (r *Room) ToRoomData() *storage.RoomData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.toRoomDataLocked()
}

// saveData 生成一份待保存数据。版本号在读锁内递增，
// 同一时刻持有读锁的调用方看到的状态相同，因此版本顺序与状态顺序一致
func (r *Room) saveData() *storage.RoomData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data := r.toRoomDataLocked()
	data.Revision = r.rev.Add(1)
	return data
}

func (r *Room) toRoomDataLocked() *storage.RoomData {
	data := &storage.RoomData{
		ID:        r.ID,
		Name:      r.Name,
		OwnerID:   r.OwnerID,
		State:     string(r.State),
		Capacity:  r.Capacity,
		CreatedAt: r.CreatedAt.UnixMilli(),
		Members:   make([]storage.MemberData, 0, len(r.memberOrder)),
	}
	for _, uid := range r.memberOrder {
		data.Members = append(data.Members, storage.MemberData{
			UserID:   uid,
			JoinedAt: r.members[uid].JoinedAt.UnixMilli(),
		})
	}
	for _, tid := range r.teamOrder {
		t := r.teams[tid]
		data.Teams = append(data.Teams, storage.TeamData{
			ID:      t.ID,
			Name:    t.Name,
			Members: append([]string{}, t.members...),
		})
	}
	for _, id := range r.inviteOrder {
		inv := r.invites[id]
		data.Invites = append(data.Invites, storage.InviteData{
			ID:        inv.ID,
			InviterID: inv.InviterID,
			InviteeID: inv.InviteeID,
			Message:   inv.Message,
			Status:    string(inv.Status),
			CreatedAt: inv.CreatedAt.UnixMilli(),
			ExpireAt:  inv.ExpireAt.UnixMilli(),
		})
	}
	for _, jc := range r.codes {
		data.JoinCodes = append(data.JoinCodes, storage.JoinCodeData{
			Code:     jc.Code,
			IssuerID: jc.IssuerID,
			IssuedAt: jc.IssuedAt.UnixMilli(),
			ExpireAt: jc.ExpireAt.UnixMilli(),
			Used:     jc.Used,
			UsedBy:   jc.UsedBy,
		})
	}
	return data
}

// roomFromData 从 RoomData 重建房间
func roomFromData(data *storage.RoomData) (*Room, error) {
	state := RoomState(data.State)
	if !state.Valid() {
		return nil, fmt.Errorf("room %s: unknown state %q", data.ID, data.State)
	}
	r := newRoom(data.ID, data.Name, data.OwnerID, data.Capacity, time.UnixMilli(data.CreatedAt).UTC())
	r.State = state
	r.rev.Store(data.Revision)

	for _, m := range data.Members {
		r.members[m.UserID] = &Member{RoomID: r.ID, UserID: m.UserID, JoinedAt: time.UnixMilli(m.JoinedAt).UTC()}
		r.memberOrder = append(r.memberOrder, m.UserID)
	}
	for _, td := range data.Teams {
		t := newTeam(td.ID, td.Name)
		r.teams[t.ID] = t
		r.teamOrder = append(r.teamOrder, t.ID)
		for _, uid := range td.Members {
			if _, ok := r.members[uid]; ok {
				r.joinTeamLocked(t, uid)
			}
		}
	}
	for _, inv := range data.Invites {
		r.invites[inv.ID] = &Invite{
			ID:        inv.ID,
			RoomID:    r.ID,
			InviterID: inv.InviterID,
			InviteeID: inv.InviteeID,
			Message:   inv.Message,
			CreatedAt: time.UnixMilli(inv.CreatedAt).UTC(),
			ExpireAt:  time.UnixMilli(inv.ExpireAt).UTC(),
			Status:    InviteStatus(inv.Status),
		}
		r.inviteOrder = append(r.inviteOrder, inv.ID)
	}
	for _, jc := range data.JoinCodes {
		r.codes[jc.Code] = &JoinCode{
			Code:     jc.Code,
			RoomID:   r.ID,
			IssuerID: jc.IssuerID,
			IssuedAt: time.UnixMilli(jc.IssuedAt).UTC(),
			ExpireAt: time.UnixMilli(jc.ExpireAt).UTC(),
			Used:     jc.Used,
			UsedBy:   jc.UsedBy,
		}
	}
	return r, nil
}

// Restore 从存储恢复全部房间，返回恢复数量。损坏的记录跳过并记录日志。
func (rm *RoomManager) Restore(ctx context.Context, loader Loader) (int, error) {
	ids, err := loader.GetAllRoomIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rooms: %w", err)
	}

	restored := 0
	for _, id := range ids {
		data, err := loader.LoadRoom(ctx, id)
		if err != nil {
			logrus.WithError(err).WithField("room", id).Warn("加载房间失败")
			continue
		}
		if data == nil {
			continue
		}
		room, err := roomFromData(data)
		if err != nil {
			logrus.WithError(err).WithField("room", id).Warn("房间数据无效，已跳过")
			continue
		}
		rm.register(room)
		restored++
	}

	logrus.WithField("count", restored).Info("📦 已从存储恢复房间")
	return restored, nil
}

// register 加入内存并登记邀请与加入码索引
func (rm *RoomManager) register(room *Room) {
	rm.mu.Lock()
	rm.rooms[room.ID] = room
	rm.mu.Unlock()

	rm.idxMu.Lock()
	defer rm.idxMu.Unlock()
	for id := range room.invites {
		rm.inviteIndex[id] = room.ID
	}
	for code := range room.codes {
		rm.codeIndex[code] = room.ID
	}
}
