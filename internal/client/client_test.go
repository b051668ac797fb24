package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quest-arena/internal/protocol"
)

var upgrader = websocket.Upgrader{}

// fakeServer 校验令牌，发送 connected，然后按请求类型应答
type fakeServer struct {
	conns atomic.Int32
	// 第一个连接在 connected 之后立即断开
	dropFirst bool
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != "secret" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()
	n := f.conns.Add(1)

	_ = c.WriteJSON(protocol.MustNewMessage(protocol.MsgConnected, protocol.ConnectedPayload{
		UserID: "alice", Name: "Alice", Role: "PLAYER",
	}))
	if f.dropFirst && n == 1 {
		return
	}

	for {
		var msg protocol.Message
		if err := c.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case protocol.MsgPing:
			ping, _ := protocol.ParsePayload[protocol.PingPayload](&msg)
			_ = c.WriteJSON(protocol.MustNewMessage(protocol.MsgPong, protocol.PongPayload{
				ClientTimestamp: ping.Timestamp,
				ServerTimestamp: time.Now().UnixMilli(),
			}))
		case protocol.MsgCreateRoom:
			_ = c.WriteJSON(protocol.NewErrorMessageWithText(protocol.ErrCodeServerMaintenance, "maintenance"))
		default:
			_ = c.WriteJSON(&msg)
		}
	}
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

func TestClient_ConnectAndPing(t *testing.T) {
	s := httptest.NewServer(&fakeServer{})
	defer s.Close()

	c := NewClient(wsURL(s), "secret")
	var updated atomic.Bool
	c.OnLatencyUpdate = func(int64) { updated.Store(true) }
	require.NoError(t, c.Connect())
	defer c.Close()

	msg, err := c.WaitFor(protocol.MsgConnected, time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgConnected, msg.Type)
	userID, name, role := c.Identity()
	assert.Equal(t, "alice", userID)
	assert.Equal(t, "Alice", name)
	assert.Equal(t, "PLAYER", role)
	assert.True(t, c.IsConnected())

	require.NoError(t, c.Ping())
	_, err = c.WaitFor(protocol.MsgPong, time.Second)
	require.NoError(t, err)
	assert.True(t, updated.Load())
	assert.GreaterOrEqual(t, c.Latency(), int64(0))
}

func TestClient_BadToken(t *testing.T) {
	s := httptest.NewServer(&fakeServer{})
	defer s.Close()

	c := NewClient(wsURL(s), "wrong")
	assert.Error(t, c.Connect())
}

func TestClient_WaitForReturnsServerError(t *testing.T) {
	s := httptest.NewServer(&fakeServer{})
	defer s.Close()

	c := NewClient(wsURL(s), "secret")
	require.NoError(t, c.Connect())
	defer c.Close()

	require.NoError(t, c.CreateRoom("Keep", 0))
	_, err := c.WaitFor(protocol.MsgRoomState, time.Second)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, protocol.ErrCodeServerMaintenance, remote.Code)
}

func TestClient_ActionsEncodePayloads(t *testing.T) {
	s := httptest.NewServer(&fakeServer{})
	defer s.Close()

	c := NewClient(wsURL(s), "secret")
	require.NoError(t, c.Connect())
	defer c.Close()

	require.NoError(t, c.EndTurn("s1", "c1"))
	msg, err := c.WaitFor(protocol.MsgEndTurn, time.Second)
	require.NoError(t, err)
	p, err := protocol.ParsePayload[protocol.EndTurnPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "s1", p.SessionID)
	assert.Equal(t, "c1", p.ActorID)

	require.NoError(t, c.GenerateCode("123456", 90*time.Second))
	msg, err = c.WaitFor(protocol.MsgGenerateCode, time.Second)
	require.NoError(t, err)
	code, err := protocol.ParsePayload[protocol.GenerateCodePayload](msg)
	require.NoError(t, err)
	assert.Equal(t, 90, code.TTLSeconds)
}

func TestClient_ReconnectsWithSameToken(t *testing.T) {
	fs := &fakeServer{dropFirst: true}
	s := httptest.NewServer(fs)
	defer s.Close()

	c := NewClient(wsURL(s), "secret")
	c.backoff = 10 * time.Millisecond
	reconnected := make(chan struct{}, 1)
	c.OnReconnect = func() { reconnected <- struct{}{} }

	require.NoError(t, c.Connect())
	defer c.Close()

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not reconnect")
	}
	assert.Equal(t, int32(2), fs.conns.Load())
	assert.False(t, c.IsReconnecting())
}

func TestClient_CloseStopsSending(t *testing.T) {
	s := httptest.NewServer(&fakeServer{})
	defer s.Close()

	c := NewClient(wsURL(s), "secret")
	c.SetAutoReconnect(false)
	closed := make(chan struct{})
	c.OnClose = func() { close(closed) }
	require.NoError(t, c.Connect())

	c.Close()
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Ping(), ErrClosed)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
}
