package room

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/server/storage"
	"github.com/palemoky/quest-arena/internal/types"
)

const (
	roomCodeLength = 6            // 房间号长度
	roomCodeChars  = "0123456789" // 房间号字符集

	joinCodeLength = 8                                  // 加入码长度
	joinCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // 去掉易混淆字符
)

// RoomState 房间状态
type RoomState string

const (
	StateOpen   RoomState = "OPEN"
	StateClosed RoomState = "CLOSED"
	StatePaused RoomState = "PAUSED"
)

// Valid 是否为已知状态
func (s RoomState) Valid() bool {
	return s == StateOpen || s == StateClosed || s == StatePaused
}

// Member 房间成员
type Member struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// InviteStatus 邀请状态
type InviteStatus string

const (
	InvitePending  InviteStatus = "PENDING"
	InviteAccepted InviteStatus = "ACCEPTED"
	InviteDeclined InviteStatus = "DECLINED"
	InviteRevoked  InviteStatus = "REVOKED"
)

// Invite 房间邀请
type Invite struct {
	ID        string       `json:"id"`
	RoomID    string       `json:"room_id"`
	InviterID string       `json:"inviter_id"`
	InviteeID string       `json:"invitee_id"`
	Message   string       `json:"message,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ExpireAt  time.Time    `json:"expire_at"`
	Status    InviteStatus `json:"status"`
}

// JoinCode 加入码，成功使用一次后失效
type JoinCode struct {
	Code     string    `json:"code"`
	RoomID   string    `json:"room_id"`
	IssuerID string    `json:"issuer_id"`
	IssuedAt time.Time `json:"issued_at"`
	ExpireAt time.Time `json:"expire_at"`
	Used     bool      `json:"used"`
	UsedBy   string    `json:"used_by,omitempty"`
}

// Team 房间内的队伍。成员列表由所属房间的锁保护，提案由队伍自己的锁保护。
type Team struct {
	ID      string
	Name    string
	members []string

	mu            sync.Mutex
	proposals     map[string]*Proposal
	proposalOrder []string
}

func newTeam(id, name string) *Team {
	return &Team{
		ID:        id,
		Name:      name,
		proposals: make(map[string]*Proposal),
	}
}

// Room 房间
type Room struct {
	ID        string
	Name      string
	OwnerID   string
	State     RoomState
	Capacity  int
	CreatedAt time.Time

	members     map[string]*Member
	memberOrder []string
	teams       map[string]*Team
	teamOrder   []string
	memberTeam  map[string]string // userID → teamID
	invites     map[string]*Invite
	inviteOrder []string
	codes       map[string]*JoinCode

	rev atomic.Uint64 // 最近一次保存的版本
	mu  sync.RWMutex
}

func newRoom(id, name, ownerID string, capacity int, now time.Time) *Room {
	return &Room{
		ID:         id,
		Name:       name,
		OwnerID:    ownerID,
		State:      StateOpen,
		Capacity:   capacity,
		CreatedAt:  now,
		members:    make(map[string]*Member),
		teams:      make(map[string]*Team),
		memberTeam: make(map[string]string),
		invites:    make(map[string]*Invite),
		codes:      make(map[string]*JoinCode),
	}
}

// Options 房间管理参数
type Options struct {
	DefaultCapacity   int
	MaxCapacity       int
	InviteTTL         time.Duration
	JoinCodeTTL       time.Duration
	RequireFriendship bool

	Friends types.FriendshipChecker // 可选
	Plans   types.PlanGate          // 可选
}

// RoomManager 房间管理器
type RoomManager struct {
	store    Store
	saver    *storage.Writer[*storage.RoomData]
	recorder *analytics.Recorder
	opts     Options

	now   func() time.Time
	newID func() string

	rooms map[string]*Room
	mu    sync.RWMutex

	// 邀请和加入码的全局索引，只在最内层加锁
	inviteIndex map[string]string // inviteID → roomID
	codeIndex   map[string]string // code → roomID
	idxMu       sync.Mutex
}

// NewRoomManager 创建房间管理器
func NewRoomManager(store Store, recorder *analytics.Recorder, opts Options) *RoomManager {
	if opts.DefaultCapacity <= 0 {
		opts.DefaultCapacity = 6
	}
	if opts.MaxCapacity < opts.DefaultCapacity {
		opts.MaxCapacity = opts.DefaultCapacity
	}
	if opts.InviteTTL <= 0 {
		opts.InviteTTL = 24 * time.Hour
	}
	if opts.JoinCodeTTL <= 0 {
		opts.JoinCodeTTL = 30 * time.Minute
	}
	rm := &RoomManager{
		store:       store,
		recorder:    recorder,
		opts:        opts,
		now:         time.Now,
		newID:       newUUID,
		rooms:       make(map[string]*Room),
		inviteIndex: make(map[string]string),
		codeIndex:   make(map[string]string),
	}
	if store != nil {
		rm.saver = storage.NewWriter("room-writer", func(ctx context.Context, data *storage.RoomData) error {
			return store.SaveRoom(ctx, data.ID, data)
		})
	}
	return rm
}

// Close 写完待保存的房间数据，之后的修改不再落盘
func (rm *RoomManager) Close() {
	if rm.saver != nil {
		rm.saver.Close()
	}
}
