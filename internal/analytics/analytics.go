// Package analytics delivers fire-and-forget analytics events to a sink.
package analytics

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/palemoky/quest-arena/internal/server/storage"
)

// EventType 事件类型
type EventType string

const (
	EventLogin        EventType = "LOGIN"
	EventLogout       EventType = "LOGOUT"
	EventTurnEnd      EventType = "TURN_END"
	EventAction       EventType = "ACTION"
	EventAuthError    EventType = "AUTH_ERROR"
	EventInvite       EventType = "INVITE"
	EventFriend       EventType = "FRIEND_EVENT"
	EventRoomJoin     EventType = "ROOM_JOIN"
	EventRoomLeave    EventType = "ROOM_LEAVE"
	EventSessionState EventType = "SESSION_STATE"
	EventTeamAction   EventType = "TEAM_ACTION"
	EventSnapshot     EventType = "SNAPSHOT"
)

// MarkerAutoTimeout 超时自动结束回合的标记
const MarkerAutoTimeout = "AUTO_TIMEOUT"

const (
	defaultBufferSize = 1024
	sinkTimeout       = 5 * time.Second
)

// Event 分析事件
type Event struct {
	SessionID string
	RoomID    string
	UserID    string
	Type      EventType
	Timestamp time.Time
	Metadata  map[string]any
}

// Sink 事件落地（审计库实现）
type Sink interface {
	AppendEvent(ctx context.Context, rec storage.EventRecord) error
}

// Recorder 异步事件记录器：Record 从不阻塞，缓冲区满时丢弃事件
type Recorder struct {
	sink   Sink
	events chan Event
	now    func() time.Time

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

// NewRecorder 创建记录器并启动后台 worker
func NewRecorder(sink Sink, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	r := &Recorder{
		sink:   sink,
		events: make(chan Event, bufferSize),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record 投递事件，nil 记录器上调用是安全的
func (r *Recorder) Record(e Event) {
	if r == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- e:
	default:
		dropped := r.dropped.Add(1)
		logrus.WithFields(logrus.Fields{"type": e.Type, "dropped": dropped}).Warn("⚠️ 分析事件缓冲区已满，丢弃事件")
	}
}

// Dropped 返回已丢弃的事件数
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close 停止接收并等待缓冲区中的事件写完
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	log := logrus.WithField("component", "analytics")

	for e := range r.events {
		rec, err := ToRecord(e)
		if err != nil {
			log.WithError(err).WithField("type", e.Type).Warn("编码分析事件失败")
			continue
		}
		if r.sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := r.sink.AppendEvent(ctx, rec); err != nil {
			log.WithError(err).WithField("type", e.Type).Warn("写入分析事件失败")
		}
		cancel()
	}
}

// ToRecord 将事件转换为存储记录，metadata 编码为 JSON
func ToRecord(e Event) (storage.EventRecord, error) {
	metadata, err := EncodeMetadata(e.Metadata)
	if err != nil {
		return storage.EventRecord{}, err
	}
	return storage.EventRecord{
		SessionID:    e.SessionID,
		RoomID:       e.RoomID,
		UserID:       e.UserID,
		Type:         string(e.Type),
		Timestamp:    e.Timestamp,
		MetadataJSON: metadata,
	}, nil
}

// EncodeMetadata 通过 structpb 编码元数据，空元数据返回 "{}"
func EncodeMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	normalized := make(map[string]any, len(metadata))
	for k, v := range metadata {
		normalized[k] = normalize(v)
	}
	st, err := structpb.NewStruct(normalized)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	data, err := protojson.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

// normalize 将自定义类型与切片转换为 structpb 支持的基础类型
func normalize(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int, int64, float64, map[string]any, []any:
		return v
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return fmt.Sprint(v)
}
