package room

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/types"
)

// GenerateJoinCode 生成有效期为 ttl 的加入码，ttl<=0 使用默认值
func (rm *RoomManager) GenerateJoinCode(issuer types.Identity, roomID string, ttl time.Duration) (JoinCode, error) {
	if ttl <= 0 {
		ttl = rm.opts.JoinCodeTTL
	}
	room, err := rm.getRoom(roomID)
	if err != nil {
		return JoinCode{}, err
	}

	room.mu.Lock()
	if !room.canManage(issuer) {
		room.mu.Unlock()
		return JoinCode{}, apperrors.ErrForbidden
	}
	now := rm.now()
	jc := &JoinCode{
		Code:     rm.generateJoinCode(room.ID),
		RoomID:   room.ID,
		IssuerID: issuer.UserID,
		IssuedAt: now,
		ExpireAt: now.Add(ttl),
	}
	room.codes[jc.Code] = jc
	issued := *jc
	room.mu.Unlock()

	logrus.WithFields(logrus.Fields{"room": room.ID, "issuer": issuer.UserID, "ttl": ttl}).Info("🔑 已生成加入码")
	rm.persist(room)
	return issued, nil
}

// JoinByCode 通过加入码加入房间。容量不足时加入码不被消耗。
func (rm *RoomManager) JoinByCode(userID, code string, joinedAt time.Time) (Member, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	rm.idxMu.Lock()
	roomID, ok := rm.codeIndex[code]
	rm.idxMu.Unlock()
	if !ok {
		return Member{}, apperrors.ErrCodeNotFound
	}
	room, err := rm.getRoom(roomID)
	if err != nil {
		return Member{}, err
	}

	room.mu.Lock()
	jc, ok := room.codes[code]
	switch {
	case !ok:
		room.mu.Unlock()
		return Member{}, apperrors.ErrCodeNotFound
	case jc.Used:
		room.mu.Unlock()
		return Member{}, apperrors.ErrCodeAlreadyUsed
	case !joinedAt.Before(jc.ExpireAt):
		room.mu.Unlock()
		return Member{}, apperrors.ErrCodeExpired
	}
	member, err := room.addMemberLocked(userID, joinedAt)
	if err != nil {
		room.mu.Unlock()
		return Member{}, err
	}
	jc.Used = true
	jc.UsedBy = userID
	room.mu.Unlock()

	rm.recordInvite(userID, room.ID, "joinByCode", code, joinedAt)
	rm.afterJoin(room, member, "code", code)
	return member, nil
}
