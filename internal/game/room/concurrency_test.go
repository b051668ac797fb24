package room

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 并发加入（直接 / 邀请 / 加入码）时成功数恰好等于容量
func TestConcurrentJoins_NeverExceedCapacity(t *testing.T) {
	t.Parallel()

	const capacity = 3
	rm := newTestManager(t, Options{})
	rm.AddRoomForTest("800001", "owner", capacity)
	ctx := context.Background()

	inviteIDs := make([]string, 0, 10)
	for i := range 10 {
		inv, err := rm.InviteFriend(ctx, player("owner"), "800001", fmt.Sprintf("inv-%d", i), "", time.Time{})
		require.NoError(t, err)
		inviteIDs = append(inviteIDs, inv.ID)
	}
	codes := make([]string, 0, 10)
	for range 10 {
		jc, err := rm.GenerateJoinCode(player("owner"), "800001", time.Hour)
		require.NoError(t, err)
		codes = append(codes, jc.Code)
	}

	var joined atomic.Int32
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			if _, err := rm.AddMember("800001", fmt.Sprintf("direct-%d", i), testNow); err == nil {
				joined.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := rm.AcceptInvite(fmt.Sprintf("inv-%d", i), inviteIDs[i], testNow); err == nil {
				joined.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := rm.JoinByCode(fmt.Sprintf("code-%d", i), codes[i], testNow); err == nil {
				joined.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(capacity), joined.Load())
	info, err := rm.GetRoom("800001")
	require.NoError(t, err)
	assert.Len(t, info.Members, capacity)
}

// 加入与离开交错时，任何时刻的成员数都不超过容量
func TestConcurrentJoinLeave_KeepsMembershipConsistent(t *testing.T) {
	t.Parallel()

	const capacity = 4
	rm := newTestManager(t, Options{})
	rm.AddRoomForTest("800002", "owner", capacity)

	stop := make(chan struct{})
	var violations atomic.Int32
	var checker sync.WaitGroup
	checker.Add(1)
	go func() {
		defer checker.Done()
		for {
			select {
			case <-stop:
				return
			default:
				if len(rm.ListRooms()[0].Members) > capacity {
					violations.Add(1)
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				uid := fmt.Sprintf("w%d-%d", w, i%3)
				if _, err := rm.AddMember("800002", uid, testNow); err == nil {
					_ = rm.RemoveMember("800002", uid)
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	checker.Wait()

	assert.Zero(t, violations.Load())
	info, err := rm.GetRoom("800002")
	require.NoError(t, err)
	assert.Empty(t, info.Members)
}
