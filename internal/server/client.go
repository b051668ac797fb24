package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/logger"
	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/protocol/codec"
	"github.com/palemoky/quest-arena/internal/server/core"
	"github.com/palemoky/quest-arena/internal/types"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时（pong 等待时间）
	pongWait = 60 * time.Second

	// ping 发送间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小
	maxMessageSize = 8192

	sendBufferSize = 256

	// 连续超速次数超过该值时断开
	maxRateViolations = 5
)

// Client 一个已认证的 WebSocket 连接，同一用户可以有多个
type Client struct {
	ID string // 连接 ID
	IP string

	ident   types.Identity
	server  *Server
	conn    *websocket.Conn
	send    chan []byte
	limiter *core.MessageLimiter

	mu     sync.RWMutex
	closed bool
}

// NewClient 创建客户端
func NewClient(s *Server, conn *websocket.Conn, ident types.Identity, ip string) *Client {
	limit := s.config.Security.MessageLimit
	return &Client{
		ID:      uuid.NewString(),
		IP:      ip,
		ident:   ident,
		server:  s,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		limiter: core.NewMessageLimiter(limit.PerSecond, limit.Burst, maxRateViolations),
	}
}

// GetID 连接 ID
func (c *Client) GetID() string { return c.ID }

// Identity 连接对应的用户身份
func (c *Client) Identity() types.Identity { return c.ident }

// ReadPump 从 WebSocket 读取消息
func (c *Client) ReadPump() {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
		c.handleDisconnect()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("user", c.ident.UserID).Warn("读取错误")
			}
			return
		}

		allowed, disconnect := c.limiter.Allow(time.Now())
		if !allowed {
			c.SendMessage(protocol.NewErrorMessage(protocol.ErrCodeRateLimit))
			if disconnect {
				logrus.WithFields(logrus.Fields{"user": c.ident.UserID, "ip": c.IP}).Warn("🚫 客户端多次超速，断开连接")
				return
			}
			continue
		}

		msg, err := codec.Unmarshal(data)
		if err != nil {
			c.SendMessage(protocol.NewErrorMessage(protocol.ErrCodeInvalidMsg))
			continue
		}
		c.server.handler.Handle(c, msg)
		codec.PutMessage(msg)
	}
}

// WritePump 向 WebSocket 写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端，缓冲区满时断开慢连接
func (c *Client) SendMessage(msg *protocol.Message) {
	data, err := codec.Marshal(msg)
	if err != nil {
		logrus.WithError(err).WithField("type", msg.Type).Error("消息编码错误")
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		logrus.WithField("user", c.ident.UserID).Warn("客户端发送缓冲区已满")
		go c.Close()
	}
}

// handleDisconnect 注销连接并记录登出
func (c *Client) handleDisconnect() {
	c.server.unregisterClient(c)
	c.Close()
	c.server.recorder.Record(analytics.Event{
		UserID:   c.ident.UserID,
		Type:     analytics.EventLogout,
		Metadata: map[string]any{"conn": c.ID},
	})
}

// Close 关闭发送通道，WritePump 随后关闭连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
