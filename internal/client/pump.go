package client

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/logger"
	"github.com/palemoky/quest-arena/internal/protocol"
)

// readPump 从服务器读取消息，连接断开后按需重连
func (c *Client) readPump(conn *websocket.Conn, stop chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
		close(stop)
		_ = conn.Close()
		c.handleReadExit()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				if c.OnError != nil {
					c.OnError(err)
				}
			}
			return
		}

		msg, err := protocol.Decode(message)
		if err != nil {
			logrus.WithError(err).Warn("消息解析错误")
			continue
		}
		c.processMessage(msg)
	}
}

// handleReadExit 主动关闭时直接回调，否则尝试重连
func (c *Client) handleReadExit() {
	c.mu.RLock()
	closed, auto := c.closed, c.autoReconnect
	c.mu.RUnlock()

	if !closed && auto {
		// 重连得到的连接在确认前断开时，沿用已有的尝试次数继续
		c.reconnecting.Store(false)
		go c.tryReconnect()
		return
	}
	c.Close()
	if c.OnClose != nil {
		c.OnClose()
	}
}

func (c *Client) processMessage(msg *protocol.Message) {
	reconnected := false

	switch msg.Type {
	case protocol.MsgConnected:
		if payload, err := protocol.ParsePayload[protocol.ConnectedPayload](msg); err == nil {
			c.mu.Lock()
			c.userID, c.name, c.role = payload.UserID, payload.Name, payload.Role
			c.mu.Unlock()
		}
		// 重连后服务器会重新发送 connected
		if c.reconnecting.CompareAndSwap(true, false) {
			c.mu.Lock()
			c.reconnectCount = 0
			c.mu.Unlock()
			reconnected = true
		}
	case protocol.MsgPong:
		if payload, err := protocol.ParsePayload[protocol.PongPayload](msg); err == nil && payload.ClientTimestamp > 0 {
			latency := time.Now().UnixMilli() - payload.ClientTimestamp
			c.latency.Store(latency)
			if c.OnLatencyUpdate != nil {
				c.OnLatencyUpdate(latency)
			}
		}
	}

	// 回调处理
	if c.OnMessage != nil {
		c.OnMessage(msg)
	}

	// 同时发送到 channel
	select {
	case c.receive <- msg:
	default:
		logrus.WithField("type", msg.Type).Warn("接收缓冲区已满，丢弃消息")
	}

	// 重连成功回调放在最后，确保消息已经发送到 channel
	if reconnected && c.OnReconnect != nil {
		c.OnReconnect()
	}
}

// writePump 向服务器写入消息，所属连接的读协程退出后结束
func (c *Client) writePump(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-stop:
			return

		case <-c.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
