package room

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/server/storage"
	"github.com/palemoky/quest-arena/internal/testutil"
	"github.com/palemoky/quest-arena/internal/types"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, opts Options) *RoomManager {
	t.Helper()
	rm := NewRoomManager(nil, nil, opts)
	rm.SetClockForTest(func() time.Time { return testNow })
	return rm
}

func player(id string) types.Identity {
	return types.Identity{UserID: id, Name: id, Role: types.RolePlayer}
}

func gm(id string) types.Identity {
	return types.Identity{UserID: id, Name: id, Role: types.RoleGM}
}

func TestNewRoomManager_Defaults(t *testing.T) {
	t.Parallel()

	rm := NewRoomManager(nil, nil, Options{DefaultCapacity: 10, MaxCapacity: 4})
	assert.Equal(t, 10, rm.opts.DefaultCapacity)
	assert.Equal(t, 10, rm.opts.MaxCapacity)
	assert.Equal(t, 24*time.Hour, rm.opts.InviteTTL)
	assert.Equal(t, 30*time.Minute, rm.opts.JoinCodeTTL)
}

func TestCreateRoom(t *testing.T) {
	t.Parallel()

	rm := newTestManager(t, Options{MaxCapacity: 32})
	info, err := rm.CreateRoom(context.Background(), player("owner"), "  Dungeon  ", 0)
	require.NoError(t, err)

	assert.Len(t, info.ID, roomCodeLength)
	assert.Equal(t, "Dungeon", info.Name)
	assert.Equal(t, StateOpen, info.State)
	assert.Equal(t, 6, info.Capacity)
	assert.Equal(t, testNow, info.CreatedAt)
	assert.Empty(t, info.Members, "owner is not auto-joined")
	assert.True(t, rm.Exists(info.ID))
}

func TestCreateRoom_InvalidInput(t *testing.T) {
	t.Parallel()

	rm := newTestManager(t, Options{MaxCapacity: 8})
	tests := []struct {
		name     string
		roomName string
		capacity int
	}{
		{"empty name", "   ", 4},
		{"negative capacity", "r", -1},
		{"above max", "r", 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rm.CreateRoom(context.Background(), player("owner"), tt.roomName, tt.capacity)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
	assert.Empty(t, rm.ListRooms())
}

func TestCreateRoom_PlanCeiling(t *testing.T) {
	t.Parallel()

	plans := new(testutil.MockPlanGate)
	plans.On("CapacityCeiling", mock.Anything, "premium", testNow).Return(12, true, nil)
	plans.On("CapacityCeiling", mock.Anything, "free", testNow).Return(0, false, nil)

	rm := newTestManager(t, Options{DefaultCapacity: 4, MaxCapacity: 10, Plans: plans})
	ctx := context.Background()

	// 计划上限 12 被全局上限 10 截断
	_, err := rm.CreateRoom(ctx, player("premium"), "big", 10)
	require.NoError(t, err)
	_, err = rm.CreateRoom(ctx, player("premium"), "too big", 11)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// 无订阅时上限为默认容量
	_, err = rm.CreateRoom(ctx, player("free"), "small", 4)
	require.NoError(t, err)
	_, err = rm.CreateRoom(ctx, player("free"), "small+", 5)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	plans.AssertExpectations(t)
}

func TestAddMember_CapacityTwo(t *testing.T) {
	t.Parallel()

	rm := newTestManager(t, Options{})
	info, err := rm.CreateRoom(context.Background(), player("owner"), "duo", 2)
	require.NoError(t, err)

	_, err = rm.AddMember(info.ID, "u1", testNow)
	require.NoError(t, err)
	m, err := rm.AddMember(info.ID, "u2", testNow)
	require.NoError(t, err)
	assert.Equal(t, Member{RoomID: info.ID, UserID: "u2", JoinedAt: testNow}, m)

	full, err := rm.IsFull(info.ID)
	require.NoError(t, err)
	assert.True(t, full)

	_, err = rm.AddMember(info.ID, "u3", testNow)
	assert.ErrorIs(t, err, apperrors.ErrCapacityExceeded)
	_, err = rm.AddMember(info.ID, "u1", testNow)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyMember)

	require.NoError(t, rm.RemoveMember(info.ID, "u2"))
	_, err = rm.AddMember(info.ID, "u3", testNow)
	require.NoError(t, err)

	got, err := rm.GetRoom(info.ID)
	require.NoError(t, err)
	require.Len(t, got.Members, 2)
	assert.Equal(t, "u1", got.Members[0].UserID)
	assert.Equal(t, "u3", got.Members[1].UserID)
}

func TestAddMember_RoomNotFound(t *testing.T) {
	t.Parallel()

	rm := newTestManager(t, Options{})
	_, err := rm.AddMember("000000", "u1", testNow)
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
	assert.ErrorIs(t, rm.RemoveMember("000000", "u1"), apperrors.ErrRoomNotFound)
}

func TestRemoveMember_Idempotent(t *testing.T) {
	t.Parallel()

	rm := newTestManager(t, Options{})
	rm.AddRoomForTest("100001", "owner", 4, "u1")

	require.NoError(t, rm.RemoveMember("100001", "u1"))
	require.NoError(t, rm.RemoveMember("100001", "u1"))
	assert.False(t, rm.IsMember("100001", "u1"))
}

func TestSetState(t *testing.T) {
	t.Parallel()

	rm := newTestManager(t, Options{})
	rm.AddRoomForTest("100001", "owner", 4, "u1")

	assert.ErrorIs(t, rm.SetState(player("u1"), "100001", StateClosed), apperrors.ErrForbidden)
	assert.ErrorIs(t, rm.SetState(player("owner"), "100001", RoomState("BROKEN")), apperrors.ErrInvalidInput)

	require.NoError(t, rm.SetState(player("owner"), "100001", StatePaused))
	_, err := rm.AddMember("100001", "u2", testNow)
	assert.ErrorIs(t, err, apperrors.ErrRoomClosed)

	require.NoError(t, rm.SetState(gm("gm"), "100001", StateOpen))
	_, err = rm.AddMember("100001", "u2", testNow)
	assert.NoError(t, err)
}

func TestListRooms_SortedByCreation(t *testing.T) {
	t.Parallel()

	now := testNow
	rm := NewRoomManager(nil, nil, Options{})
	rm.SetClockForTest(func() time.Time { return now })

	first, err := rm.CreateRoom(context.Background(), player("a"), "first", 2)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	second, err := rm.CreateRoom(context.Background(), player("b"), "second", 2)
	require.NoError(t, err)

	rooms := rm.ListRooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, first.ID, rooms[0].ID)
	assert.Equal(t, second.ID, rooms[1].ID)
}

// 存储失败只记录日志，不影响内存中的房间
func TestCreateRoom_PersistsAsync(t *testing.T) {
	t.Parallel()

	store := &testutil.MockRoomStore{}
	saved := make(chan *storage.RoomData, 4)
	store.On("SaveRoom", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { saved <- args.Get(2).(*storage.RoomData) }).
		Return(errors.New("redis down"))

	rm := NewRoomManager(store, nil, Options{})
	rm.SetClockForTest(func() time.Time { return testNow })
	t.Cleanup(rm.Close)
	info, err := rm.CreateRoom(context.Background(), gm("owner"), "Crypt", 4)
	require.NoError(t, err)

	select {
	case data := <-saved:
		assert.Equal(t, info.ID, data.ID)
		assert.Equal(t, "Crypt", data.Name)
		assert.Equal(t, 4, data.Capacity)
	case <-time.After(2 * time.Second):
		t.Fatal("room was not persisted")
	}
	assert.True(t, rm.Exists(info.ID))
}

// 连续修改按版本顺序落盘，Close 返回时最后一次写入就是最终状态
func TestPersist_OrderedAndDrainedOnClose(t *testing.T) {
	t.Parallel()

	store := &testutil.MockRoomStore{}
	store.On("SaveRoom", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(nil)

	rm := NewRoomManager(store, nil, Options{MaxCapacity: 20})
	rm.SetClockForTest(func() time.Time { return testNow })
	info, err := rm.CreateRoom(context.Background(), gm("owner"), "Crypt", 20)
	require.NoError(t, err)
	for i := range 10 {
		_, err := rm.AddMember(info.ID, fmt.Sprintf("user-%d", i), testNow)
		require.NoError(t, err)
	}
	require.NoError(t, rm.SetState(gm("owner"), info.ID, StateClosed))
	rm.Close()

	var last uint64
	var final *storage.RoomData
	for _, call := range store.Calls {
		data := call.Arguments.Get(2).(*storage.RoomData)
		assert.Greater(t, data.Revision, last)
		last = data.Revision
		final = data
	}
	require.NotNil(t, final)
	assert.Equal(t, string(StateClosed), final.State)
	assert.Len(t, final.Members, 10)
}
