//go:build !production

package room

import "time"

// SetClockForTest 替换时钟
func (rm *RoomManager) SetClockForTest(now func() time.Time) {
	rm.now = now
}

// SetIDGeneratorForTest 替换邀请、队伍、提案的 ID 生成器
func (rm *RoomManager) SetIDGeneratorForTest(newID func() string) {
	rm.newID = newID
}

// AddRoomForTest 添加房间用于测试，成员直接写入不做容量检查
func (rm *RoomManager) AddRoomForTest(id, ownerID string, capacity int, members ...string) {
	room := newRoom(id, "test-"+id, ownerID, capacity, rm.now())
	for _, uid := range members {
		room.members[uid] = &Member{RoomID: id, UserID: uid, JoinedAt: rm.now()}
		room.memberOrder = append(room.memberOrder, uid)
	}
	rm.register(room)
}
