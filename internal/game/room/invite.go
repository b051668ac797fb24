package room

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/types"
)

// InviteFriend 邀请好友加入房间，expireAt 为零值时使用默认有效期
func (rm *RoomManager) InviteFriend(ctx context.Context, inviter types.Identity, roomID, inviteeID, message string, expireAt time.Time) (Invite, error) {
	inviteeID = strings.TrimSpace(inviteeID)
	if inviteeID == "" || inviteeID == inviter.UserID {
		return Invite{}, apperrors.WithDetail(apperrors.ErrInvalidInput, "invalid invitee")
	}
	room, err := rm.getRoom(roomID)
	if err != nil {
		return Invite{}, err
	}

	// 好友关系校验是外部调用，放在加锁之前
	if rm.opts.RequireFriendship && rm.opts.Friends != nil {
		ok, err := rm.opts.Friends.AreFriends(ctx, inviter.UserID, inviteeID)
		if err != nil {
			return Invite{}, fmt.Errorf("check friendship: %w", err)
		}
		if !ok {
			return Invite{}, apperrors.ErrNotFriends
		}
	}

	now := rm.now()
	if expireAt.IsZero() {
		expireAt = now.Add(rm.opts.InviteTTL)
	}
	if !expireAt.After(now) {
		return Invite{}, apperrors.WithDetail(apperrors.ErrInvalidInput, "expireAt must be in the future")
	}

	room.mu.Lock()
	if !room.canManage(inviter) {
		room.mu.Unlock()
		return Invite{}, apperrors.ErrForbidden
	}
	if _, exists := room.members[inviteeID]; exists {
		room.mu.Unlock()
		return Invite{}, apperrors.ErrAlreadyMember
	}
	for _, id := range room.inviteOrder {
		inv := room.invites[id]
		if inv.InviteeID != inviteeID || inv.Status != InvitePending {
			continue
		}
		if now.Before(inv.ExpireAt) {
			room.mu.Unlock()
			return Invite{}, apperrors.ErrDuplicatePendingInvite
		}
		// 过期的待处理邀请被新邀请取代，保证同一时刻只有一个 PENDING
		inv.Status = InviteRevoked
	}

	inv := &Invite{
		ID:        rm.newID(),
		RoomID:    room.ID,
		InviterID: inviter.UserID,
		InviteeID: inviteeID,
		Message:   message,
		CreatedAt: now,
		ExpireAt:  expireAt,
		Status:    InvitePending,
	}
	room.invites[inv.ID] = inv
	room.inviteOrder = append(room.inviteOrder, inv.ID)
	created := *inv
	room.mu.Unlock()

	rm.idxMu.Lock()
	rm.inviteIndex[created.ID] = room.ID
	rm.idxMu.Unlock()

	logrus.WithFields(logrus.Fields{"room": room.ID, "inviter": inviter.UserID, "invitee": inviteeID}).Info("✉️ 已发送房间邀请")
	rm.recordInvite(inviter.UserID, room.ID, "invite", created.ID, now)
	rm.persist(room)
	return created, nil
}

// AcceptInvite 接受邀请并加入房间。容量不足时邀请保持 PENDING。
func (rm *RoomManager) AcceptInvite(inviteeID, inviteID string, joinedAt time.Time) (Member, error) {
	room, err := rm.roomForInvite(inviteID)
	if err != nil {
		return Member{}, err
	}

	room.mu.Lock()
	inv, err := room.pendingInviteFor(inviteID, inviteeID)
	if err != nil {
		room.mu.Unlock()
		return Member{}, err
	}
	if !joinedAt.Before(inv.ExpireAt) {
		room.mu.Unlock()
		return Member{}, apperrors.ErrInviteExpired
	}
	member, err := room.addMemberLocked(inviteeID, joinedAt)
	if err != nil {
		room.mu.Unlock()
		return Member{}, err
	}
	inv.Status = InviteAccepted
	room.mu.Unlock()

	rm.recordInvite(inviteeID, room.ID, "accept", inviteID, joinedAt)
	rm.afterJoin(room, member, "invite", inviteID)
	return member, nil
}

// DeclineInvite 被邀请者拒绝邀请
func (rm *RoomManager) DeclineInvite(inviteeID, inviteID string) error {
	room, err := rm.roomForInvite(inviteID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	inv, err := room.pendingInviteFor(inviteID, inviteeID)
	if err != nil {
		room.mu.Unlock()
		return err
	}
	inv.Status = InviteDeclined
	room.mu.Unlock()

	rm.recordInvite(inviteeID, room.ID, "decline", inviteID, rm.now())
	rm.persist(room)
	return nil
}

// RevokeInvite 邀请者或 GM/ADMIN 撤销邀请
func (rm *RoomManager) RevokeInvite(actor types.Identity, inviteID string) error {
	room, err := rm.roomForInvite(inviteID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	inv, ok := room.invites[inviteID]
	if !ok {
		room.mu.Unlock()
		return apperrors.ErrInviteNotFound
	}
	if actor.UserID != inv.InviterID && !actor.CanModerate() {
		room.mu.Unlock()
		return apperrors.ErrForbidden
	}
	if inv.Status != InvitePending {
		room.mu.Unlock()
		return apperrors.ErrInviteNotPending
	}
	inv.Status = InviteRevoked
	room.mu.Unlock()

	rm.recordInvite(actor.UserID, room.ID, "revoke", inviteID, rm.now())
	rm.persist(room)
	return nil
}

// GetInvite 查询邀请
func (rm *RoomManager) GetInvite(inviteID string) (Invite, error) {
	room, err := rm.roomForInvite(inviteID)
	if err != nil {
		return Invite{}, err
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	inv, ok := room.invites[inviteID]
	if !ok {
		return Invite{}, apperrors.ErrInviteNotFound
	}
	return *inv, nil
}

// ListActiveInvites 列出未过期的待处理邀请 ID（按创建顺序）
func (rm *RoomManager) ListActiveInvites(roomID string) ([]string, error) {
	room, err := rm.getRoom(roomID)
	if err != nil {
		return nil, err
	}
	now := rm.now()

	room.mu.RLock()
	defer room.mu.RUnlock()
	ids := make([]string, 0)
	for _, id := range room.inviteOrder {
		inv := room.invites[id]
		if inv.Status == InvitePending && now.Before(inv.ExpireAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// pendingInviteFor 校验邀请属于该用户且仍待处理，调用方持有写锁
func (r *Room) pendingInviteFor(inviteID, inviteeID string) (*Invite, error) {
	inv, ok := r.invites[inviteID]
	if !ok {
		return nil, apperrors.ErrInviteNotFound
	}
	if inv.InviteeID != inviteeID {
		return nil, apperrors.ErrForbidden
	}
	if inv.Status != InvitePending {
		return nil, apperrors.ErrInviteNotPending
	}
	return inv, nil
}

func (rm *RoomManager) roomForInvite(inviteID string) (*Room, error) {
	rm.idxMu.Lock()
	roomID, ok := rm.inviteIndex[inviteID]
	rm.idxMu.Unlock()
	if !ok {
		return nil, apperrors.ErrInviteNotFound
	}
	return rm.getRoom(roomID)
}

func (rm *RoomManager) recordInvite(actorID, roomID, action, ref string, at time.Time) {
	rm.record(analytics.Event{
		RoomID:    roomID,
		UserID:    actorID,
		Type:      analytics.EventInvite,
		Timestamp: at,
		Metadata:  map[string]any{"action": action, "ref": ref},
	})
}
