package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	friendsKeyPrefix = "friends:"
	planKeyPrefix    = "plan:"
)

// SocialStore 社交服务在 Redis 中同步的只读视图：好友集合与订阅计划
type SocialStore struct {
	client *redis.Client
}

// NewSocialStore 创建社交视图存储
func NewSocialStore(client *redis.Client) *SocialStore {
	return &SocialStore{client: client}
}

// AddFriendship 写入双向好友关系
func (ss *SocialStore) AddFriendship(ctx context.Context, userID, otherUserID string) error {
	_, err := ss.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, friendsKeyPrefix+userID, otherUserID)
		pipe.SAdd(ctx, friendsKeyPrefix+otherUserID, userID)
		return nil
	})
	return err
}

// AreFriends 判断两人是否互为好友
func (ss *SocialStore) AreFriends(ctx context.Context, userID, otherUserID string) (bool, error) {
	ok, err := ss.client.SIsMember(ctx, friendsKeyPrefix+userID, otherUserID).Result()
	if err != nil {
		return false, fmt.Errorf("query friends: %w", err)
	}
	return ok, nil
}

// SetPlan 写入用户订阅计划的容量上限与到期时间
func (ss *SocialStore) SetPlan(ctx context.Context, userID string, ceiling int, expireAt time.Time) error {
	return ss.client.HSet(ctx, planKeyPrefix+userID,
		"ceiling", ceiling,
		"expire_at", expireAt.UnixMilli(),
	).Err()
}

// CapacityCeiling 返回 at 时刻有效计划的容量上限，没有计划或已过期时 ok=false
func (ss *SocialStore) CapacityCeiling(ctx context.Context, userID string, at time.Time) (int, bool, error) {
	fields, err := ss.client.HGetAll(ctx, planKeyPrefix+userID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, false, fmt.Errorf("query plan: %w", err)
	}
	if len(fields) == 0 {
		return 0, false, nil
	}

	ceiling, err := strconv.Atoi(fields["ceiling"])
	if err != nil {
		return 0, false, fmt.Errorf("decode plan ceiling: %w", err)
	}
	expireAt, err := strconv.ParseInt(fields["expire_at"], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode plan expiry: %w", err)
	}
	if !at.Before(time.UnixMilli(expireAt)) {
		return 0, false, nil
	}
	return ceiling, true, nil
}
