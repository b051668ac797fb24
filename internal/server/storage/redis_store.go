package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key 前缀
	roomKeyPrefix          = "room:"
	sessionKeyPrefix       = "game_session:"
	snapshotKeyPrefix      = "snapshot:"
	sessionSnapshotsPrefix = "snapshots:"

	// 快照默认保留时间
	defaultSnapshotRetention = 7 * 24 * time.Hour
)

// RoomData 房间数据（用于 Redis 序列化）
type RoomData struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	OwnerID   string         `json:"owner_id"`
	State     string         `json:"state"`
	Capacity  int            `json:"capacity"`
	CreatedAt int64          `json:"created_at"`
	Members   []MemberData   `json:"members"`
	Teams     []TeamData     `json:"teams,omitempty"`
	Invites   []InviteData   `json:"invites,omitempty"`
	JoinCodes []JoinCodeData `json:"join_codes,omitempty"`
	Revision  uint64         `json:"revision,omitempty"` // 每次保存递增，用于丢弃乱序的旧写入
}

// MemberData 房间成员
type MemberData struct {
	UserID   string `json:"user_id"`
	JoinedAt int64  `json:"joined_at"`
}

// TeamData 队伍（提案只在内存与快照中保存）
type TeamData struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// InviteData 邀请
type InviteData struct {
	ID        string `json:"id"`
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	ExpireAt  int64  `json:"expire_at"`
}

// JoinCodeData 加入码
type JoinCodeData struct {
	Code     string `json:"code"`
	IssuerID string `json:"issuer_id"`
	IssuedAt int64  `json:"issued_at"`
	ExpireAt int64  `json:"expire_at"`
	Used     bool   `json:"used"`
	UsedBy   string `json:"used_by,omitempty"`
}

// SessionData 会话数据（用于 Redis 序列化）
type SessionData struct {
	ID         string          `json:"id"`
	RoomID     string          `json:"room_id"`
	GMUserID   string          `json:"gm_user_id"`
	State      string          `json:"state"`
	CreatedAt  int64           `json:"created_at"`
	TurnOrder  []string        `json:"turn_order"`
	TurnIndex  int             `json:"turn_index"`
	Rules      json.RawMessage `json:"rules"`
	Characters json.RawMessage `json:"characters"`
	Revision   uint64          `json:"revision,omitempty"` // 每次保存递增，用于丢弃乱序的旧写入
}

// SnapshotData 快照记录，Payload 为自包含的序列化会话状态
type SnapshotData struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id"`
	Note      string `json:"note,omitempty"`
	CreatedAt int64  `json:"created_at"` // UnixMilli
	Payload   []byte `json:"payload"`
}

// RedisStore Redis 存储
type RedisStore struct {
	client            *redis.Client
	snapshotRetention time.Duration
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, snapshotRetention time.Duration) *RedisStore {
	if snapshotRetention <= 0 {
		snapshotRetention = defaultSnapshotRetention
	}
	return &RedisStore{client: client, snapshotRetention: snapshotRetention}
}

// Ping 检查连接
func (rs *RedisStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// --- 房间存储 ---

// SaveRoom 保存房间到 Redis（房间记录不过期，用于审计）
func (rs *RedisStore) SaveRoom(ctx context.Context, roomID string, data *RoomData) error {
	if data == nil {
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化房间数据失败: %w", err)
	}

	return rs.client.Set(ctx, roomKeyPrefix+roomID, jsonData, 0).Err()
}

// LoadRoom 从 Redis 加载房间（仅返回数据，需要外部重建）
func (rs *RedisStore) LoadRoom(ctx context.Context, roomID string) (*RoomData, error) {
	data, err := rs.client.Get(ctx, roomKeyPrefix+roomID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 房间不存在
		}
		return nil, err
	}

	var roomData RoomData
	if err := json.Unmarshal(data, &roomData); err != nil {
		return nil, fmt.Errorf("反序列化房间数据失败: %w", err)
	}

	return &roomData, nil
}

// GetAllRoomIDs 获取所有房间号
func (rs *RedisStore) GetAllRoomIDs(ctx context.Context) ([]string, error) {
	return rs.scanIDs(ctx, roomKeyPrefix)
}

// --- 会话存储 ---

// SaveSession 保存会话到 Redis
func (rs *RedisStore) SaveSession(ctx context.Context, data *SessionData) error {
	if data == nil {
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化会话数据失败: %w", err)
	}

	return rs.client.Set(ctx, sessionKeyPrefix+data.ID, jsonData, 0).Err()
}

// LoadSession 从 Redis 加载会话
func (rs *RedisStore) LoadSession(ctx context.Context, sessionID string) (*SessionData, error) {
	data, err := rs.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var sessionData SessionData
	if err := json.Unmarshal(data, &sessionData); err != nil {
		return nil, fmt.Errorf("反序列化会话数据失败: %w", err)
	}

	return &sessionData, nil
}

// GetAllSessionIDs 获取所有会话 ID
func (rs *RedisStore) GetAllSessionIDs(ctx context.Context) ([]string, error) {
	return rs.scanIDs(ctx, sessionKeyPrefix)
}

// --- 快照存储 ---

// SaveSnapshot 保存快照并写入会话索引
func (rs *RedisStore) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	if snap == nil {
		return nil
	}

	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}

	indexKey := sessionSnapshotsPrefix + snap.SessionID
	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, snapshotKeyPrefix+snap.ID, jsonData, rs.snapshotRetention)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(snap.CreatedAt), Member: snap.ID})
	pipe.Expire(ctx, indexKey, rs.snapshotRetention)
	_, err = pipe.Exec(ctx)
	return err
}

// LoadSnapshot 加载快照，不存在时返回 nil
func (rs *RedisStore) LoadSnapshot(ctx context.Context, snapshotID string) (*SnapshotData, error) {
	data, err := rs.client.Get(ctx, snapshotKeyPrefix+snapshotID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("反序列化快照失败: %w", err)
	}
	return &snap, nil
}

// ListSnapshotIDs 按创建时间升序列出会话的快照 ID（已过期的快照会被剔除）
func (rs *RedisStore) ListSnapshotIDs(ctx context.Context, sessionID string) ([]string, error) {
	indexKey := sessionSnapshotsPrefix + sessionID
	ids, err := rs.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	pipe := rs.client.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, snapshotKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	live := make([]string, 0, len(ids))
	var stale []any
	for i, id := range ids {
		if exists[i].Val() > 0 {
			live = append(live, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		_ = rs.client.ZRem(ctx, indexKey, stale...).Err()
	}
	return live, nil
}

// --- 辅助方法 ---

// scanIDs 用 SCAN 遍历指定前缀的 key，返回去掉前缀后的 ID
func (rs *RedisStore) scanIDs(ctx context.Context, prefix string) ([]string, error) {
	var ids []string
	iter := rs.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
