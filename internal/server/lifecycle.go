package server

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/game/session"
	"github.com/palemoky/quest-arena/internal/protocol"
)

const (
	monitorInterval       = 30 * time.Second
	shutdownCheckInterval = 2 * time.Second
)

// monitorStats 定期输出服务器状态，并清理建连限速器中的过期记录
func (s *Server) monitorStats() {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopMonitor:
			return
		case now := <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			pruned := s.connLimiter.Prune(now)

			logrus.WithFields(logrus.Fields{
				"online":     s.GetOnlineCount(),
				"goroutines": runtime.NumGoroutine(),
				"conns":      len(s.semaphore),
				"max_conns":  s.maxConnections,
				"mem_mb":     float64(m.Alloc) / 1024 / 1024,
				"dropped":    s.recorder.Dropped(),
				"pruned":     pruned,
			}).Info("📊 [监控]")
		}
	}
}

// EnterMaintenanceMode 进入维护模式：拒绝新连接、新房间与新会话
func (s *Server) EnterMaintenanceMode() {
	s.maintenanceMu.Lock()
	s.maintenanceMode = true
	s.maintenanceMu.Unlock()

	s.Broadcast(protocol.NewErrorMessageWithText(protocol.ErrCodeServerMaintenance,
		"👷🏻‍♂️ 维护模式：停止新的房间和会话创建"))
	logrus.Info("🔧 进入维护模式")
}

// IsMaintenanceMode 检查是否在维护模式
func (s *Server) IsMaintenanceMode() bool {
	s.maintenanceMu.RLock()
	defer s.maintenanceMu.RUnlock()
	return s.maintenanceMode
}

// activeSessionCount 进行中（RUNNING / PAUSED）的会话数
func (s *Server) activeSessionCount() int {
	n := 0
	for _, info := range s.sessions.List() {
		if info.State == session.StateRunning || info.State == session.StatePaused {
			n++
		}
	}
	return n
}

// GracefulShutdown 进入维护模式，等待进行中的会话结束或超时后关闭
func (s *Server) GracefulShutdown(timeout time.Duration) {
	s.EnterMaintenanceMode()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(shutdownCheckInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		active := s.activeSessionCount()
		if active == 0 {
			logrus.Info("✅ 没有进行中的会话")
			break
		}
		logrus.WithField("sessions", active).Info("⏳ 等待会话结束...")
		<-ticker.C
	}
	if active := s.activeSessionCount(); active > 0 {
		logrus.WithField("sessions", active).Warn("⚠️ 超时，仍有会话进行中，强制关闭（状态已写入 Redis）")
	}

	s.Shutdown()
}

// Shutdown 关闭 HTTP 服务、所有连接与存储。计时器先停，待写的会话、房间、审计与分析数据写完后再关闭存储
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopMonitor)

		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.httpServer.Shutdown(ctx); err != nil {
				logrus.WithError(err).Warn("HTTP 服务关闭失败")
			}
			cancel()
		}

		s.clientsMu.RLock()
		clients := make([]*Client, 0, len(s.clients))
		for _, c := range s.clients {
			clients = append(clients, c)
		}
		s.clientsMu.RUnlock()
		for _, c := range clients {
			c.Close()
		}

		// 会话与房间写入器排空后才能关闭 Redis
		s.sessions.Close()
		s.rooms.Close()
		s.recorder.Close()
		if err := s.audit.Close(); err != nil {
			logrus.WithError(err).Warn("审计库关闭失败")
		}
		_ = s.redis.Close()

		logrus.Info("服务器已关闭")
	})
}
