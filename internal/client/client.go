// Package client 是 Quest Arena WebSocket 协议的 Go 客户端，供机器人、压测和命令行工具使用
package client

import (
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/protocol/codec"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// 心跳检测间隔
	heartbeatInterval = 5 * time.Second
	// 最大重连次数
	maxReconnectAttempts = 5
	// 重连初始间隔
	reconnectInterval = 2 * time.Second
	// 重连间隔上限
	maxReconnectInterval = 30 * time.Second

	bufferSize = 256
)

var (
	ErrClosed      = errors.New("connection closed")
	ErrBufferFull  = errors.New("send buffer full")
	ErrRecvTimeout = errors.New("receive timeout")
)

// Client WebSocket 客户端
type Client struct {
	ServerURL string
	Token     string // 身份令牌，重连时复用

	conn    *websocket.Conn
	send    chan []byte            // 跨重连保留，断线期间的消息在重连后发出
	receive chan *protocol.Message // 跨重连保留
	done    chan struct{}          // 仅 Close 时关闭

	// 来自 connected 消息
	userID string
	name   string
	role   string

	latency atomic.Int64 // 毫秒

	// 回调
	OnMessage       func(*protocol.Message)  // 消息回调
	OnError         func(error)              // 错误回调
	OnClose         func()                   // 关闭回调
	OnReconnecting  func(attempt, total int) // 正在重连回调
	OnReconnect     func()                   // 重连成功回调
	OnLatencyUpdate func(int64)              // 延迟更新回调

	mu             sync.RWMutex
	closed         bool
	reconnecting   atomic.Bool
	reconnectCount int
	autoReconnect  bool

	// 测试可缩短重连间隔
	backoff time.Duration
}

// NewClient 创建客户端，serverURL 形如 ws://host:port/ws
func NewClient(serverURL, token string) *Client {
	return &Client{
		ServerURL:     serverURL,
		Token:         token,
		send:          make(chan []byte, bufferSize),
		receive:       make(chan *protocol.Message, bufferSize),
		done:          make(chan struct{}),
		autoReconnect: true,
		backoff:       reconnectInterval,
	}
}

// SetAutoReconnect 开关断线自动重连
func (c *Client) SetAutoReconnect(enabled bool) {
	c.mu.Lock()
	c.autoReconnect = enabled
	c.mu.Unlock()
}

// Connect 连接服务器
func (c *Client) Connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}

	c.attach(conn)
	return nil
}

// attach 绑定新连接并启动读写协程，每个连接有独立的 stop 通道
func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := make(chan struct{})
	go c.readPump(conn, stop)
	go c.writePump(conn, stop)
}

// dial 建立 WebSocket 连接，令牌放在 query 中
func (c *Client) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		q := u.Query()
		q.Set("token", c.Token)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendMessage 发送消息
func (c *Client) SendMessage(msg *protocol.Message) error {
	data, err := codec.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Receive 接收消息 (阻塞)
func (c *Client) Receive() (*protocol.Message, error) {
	select {
	case msg := <-c.receive:
		return msg, nil
	case <-c.done:
		return nil, ErrClosed
	}
}

// ReceiveWithTimeout 带超时接收消息
func (c *Client) ReceiveWithTimeout(timeout time.Duration) (*protocol.Message, error) {
	select {
	case msg := <-c.receive:
		return msg, nil
	case <-time.After(timeout):
		return nil, ErrRecvTimeout
	case <-c.done:
		return nil, ErrClosed
	}
}

// WaitFor 丢弃其他消息，直到收到指定类型或 error 消息
func (c *Client) WaitFor(msgType protocol.MessageType, timeout time.Duration) (*protocol.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrRecvTimeout
		}
		msg, err := c.ReceiveWithTimeout(remaining)
		if err != nil {
			return nil, err
		}
		if msg.Type == msgType {
			return msg, nil
		}
		if msg.Type == protocol.MsgError {
			return msg, ServerError(msg)
		}
	}
}

// Close 关闭连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// IsConnected 是否已连接
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.conn != nil
}

// Identity 服务器确认的身份（收到 connected 之前为空）
func (c *Client) Identity() (userID, name, role string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.name, c.role
}

// Latency 最近一次心跳往返延迟（毫秒）
func (c *Client) Latency() int64 {
	return c.latency.Load()
}

// ServerError 把 error 消息转换为 error
func ServerError(msg *protocol.Message) error {
	payload, err := protocol.ParsePayload[protocol.ErrorPayload](msg)
	if err != nil {
		return err
	}
	return &RemoteError{Code: payload.Code, Message: payload.Message}
}

// RemoteError 服务端返回的错误
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
