package client

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/logger"
)

// StartHeartbeat 启动心跳检测
func (c *Client) StartHeartbeat() {
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if c.IsConnected() && !c.reconnecting.Load() {
					_ = c.Ping()
				}
			case <-c.done:
				return
			}
		}
	}()
}

// tryReconnect 指数退避重连。身份令牌不变，服务器重新发送 connected 即视为成功
func (c *Client) tryReconnect() {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			c.reconnecting.Store(false)
		}
	}()

	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	c.mu.RLock()
	backoff := c.backoff
	c.mu.RUnlock()

	for {
		c.mu.Lock()
		if c.closed || c.reconnectCount >= maxReconnectAttempts {
			c.mu.Unlock()
			break
		}
		c.reconnectCount++
		attempt := c.reconnectCount
		c.mu.Unlock()

		// 通过回调通知调用方正在重连
		if c.OnReconnecting != nil {
			c.OnReconnecting(attempt, maxReconnectAttempts)
		}
		logrus.WithFields(logrus.Fields{"attempt": attempt, "max": maxReconnectAttempts}).Info("🔄 尝试重连")

		time.Sleep(backoff)
		backoff = min(backoff*2, maxReconnectInterval)

		conn, err := c.dial()
		if err != nil {
			logrus.WithError(err).Warn("重连失败")
			continue
		}
		c.attach(conn)
		return
	}

	// 重连失败
	logrus.Warn("❌ 重连失败，已达最大尝试次数")
	c.reconnecting.Store(false)
	c.Close()
	if c.OnClose != nil {
		c.OnClose()
	}
}

// IsReconnecting 是否正在重连
func (c *Client) IsReconnecting() bool {
	return c.reconnecting.Load()
}
