package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/palemoky/quest-arena/internal/game/character"
	"github.com/palemoky/quest-arena/internal/game/room"
	"github.com/palemoky/quest-arena/internal/types"
)

const testRoomID = "100001"

var testStart = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// testClock 可手动推进的时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeTimer 记录调度参数，由测试手动触发
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) afterFunc(d time.Duration, f func()) stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type fixture struct {
	m         *Manager
	rooms     *room.RoomManager
	clock     *testClock
	sched     *fakeScheduler
	sessionID string
}

func gmIdent() types.Identity {
	return types.Identity{UserID: "gm", Name: "GM", Role: types.RoleGM}
}

func player(id string) types.Identity {
	return types.Identity{UserID: id, Name: id, Role: types.RolePlayer}
}

// newFixture 房间 100001（GM 为 gm）中创建一局会话，members 为房间成员
func newFixture(t *testing.T, opts Options, members ...string) *fixture {
	t.Helper()
	clock := &testClock{now: testStart}
	sched := &fakeScheduler{}

	rooms := room.NewRoomManager(nil, nil, room.Options{})
	rooms.SetClockForTest(clock.Now)
	rooms.AddRoomForTest(testRoomID, "gm", 8, members...)

	opts.Rooms = rooms
	m := NewManager(opts)
	m.SetClockForTest(clock.Now)
	var seq atomic.Int64
	m.SetIDGeneratorForTest(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) })
	m.afterFunc = sched.afterFunc
	t.Cleanup(m.Close)

	info, err := m.CreateSession(testRoomID, gmIdent())
	require.NoError(t, err)
	return &fixture{m: m, rooms: rooms, clock: clock, sched: sched, sessionID: info.ID}
}

func (f *fixture) selectChar(t *testing.T, userID, role string) character.Character {
	t.Helper()
	c, err := f.m.SelectCharacter(player(userID), f.sessionID, role, userID)
	require.NoError(t, err)
	return c
}

func (f *fixture) npc(t *testing.T, name string, stats *character.Stats) character.Character {
	t.Helper()
	c, err := f.m.CreateNPC(gmIdent(), f.sessionID, "WARRIOR", name, stats)
	require.NoError(t, err)
	return c
}

func (f *fixture) start(t *testing.T) Info {
	t.Helper()
	info, err := f.m.Start(gmIdent(), f.sessionID)
	require.NoError(t, err)
	return info
}

func (f *fixture) active(t *testing.T) string {
	t.Helper()
	info, err := f.m.Get(f.sessionID)
	require.NoError(t, err)
	return info.ActiveCharacterID
}

func hpStats(hp int) *character.Stats {
	return &character.Stats{HP: hp, MP: 0, AP: 1, Speed: 1}
}
