package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quest-arena/internal/server/storage"
)

type memorySink struct {
	mu      sync.Mutex
	records []storage.EventRecord
	block   chan struct{}
	err     error
}

func (s *memorySink) AppendEvent(_ context.Context, rec storage.EventRecord) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func (s *memorySink) snapshot() []storage.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.EventRecord(nil), s.records...)
}

type customKind string

func TestRecorder_DeliversInOrder(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	r := NewRecorder(sink, 16)

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	r.Record(Event{SessionID: "s1", UserID: "u1", Type: EventAction, Timestamp: at, Metadata: map[string]any{"action": "ATTACK"}})
	r.Record(Event{SessionID: "s1", UserID: "u1", Type: EventTurnEnd, Metadata: map[string]any{"marker": MarkerAutoTimeout}})
	r.Close()

	records := sink.snapshot()
	require.Len(t, records, 2)
	assert.Equal(t, "ACTION", records[0].Type)
	assert.Equal(t, at, records[0].Timestamp)
	assert.JSONEq(t, `{"action":"ATTACK"}`, records[0].MetadataJSON)
	assert.Equal(t, "TURN_END", records[1].Type)
	assert.False(t, records[1].Timestamp.IsZero())
}

func TestRecorder_NeverBlocks(t *testing.T) {
	t.Parallel()

	sink := &memorySink{block: make(chan struct{})}
	r := NewRecorder(sink, 1)

	done := make(chan struct{})
	go func() {
		for range 10 {
			r.Record(Event{Type: EventAction})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a slow sink")
	}
	assert.Positive(t, r.Dropped())

	close(sink.block)
	r.Close()
}

func TestRecorder_SinkErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	sink := &memorySink{err: errors.New("disk full")}
	r := NewRecorder(sink, 4)
	r.Record(Event{Type: EventInvite})
	r.Close()

	assert.Len(t, sink.snapshot(), 1)
}

func TestRecorder_NilAndClosed(t *testing.T) {
	t.Parallel()

	var nilRecorder *Recorder
	assert.NotPanics(t, func() {
		nilRecorder.Record(Event{Type: EventAction})
		nilRecorder.Close()
	})

	r := NewRecorder(nil, 0)
	r.Close()
	assert.NotPanics(t, func() {
		r.Record(Event{Type: EventAction})
		r.Close()
	})
}

func TestEncodeMetadata(t *testing.T) {
	t.Parallel()

	empty, err := EncodeMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)

	encoded, err := EncodeMetadata(map[string]any{
		"kind":   customKind("HEAL"),
		"allies": []string{"c1", "c2"},
		"rolls":  []int{4, 5},
		"total":  12,
		"auto":   true,
		"at":     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	assert.Equal(t, "HEAL", decoded["kind"])
	assert.Equal(t, []any{"c1", "c2"}, decoded["allies"])
	assert.Equal(t, []any{4.0, 5.0}, decoded["rolls"])
	assert.Equal(t, 12.0, decoded["total"])
	assert.Equal(t, true, decoded["auto"])
	assert.Equal(t, "2026-01-01T00:00:00Z", decoded["at"])
}

func TestToRecord(t *testing.T) {
	t.Parallel()

	rec, err := ToRecord(Event{RoomID: "r1", UserID: "u1", Type: EventRoomJoin})
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.RoomID)
	assert.Equal(t, "ROOM_JOIN", rec.Type)
	assert.Equal(t, "{}", rec.MetadataJSON)
}
