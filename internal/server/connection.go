package server

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/auth"
	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/server/core"
	"github.com/palemoky/quest-arena/internal/types"
)

// handleWebSocket 校验身份后升级为 WebSocket 连接
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := core.GetClientIP(r)
	log := logrus.WithField("ip", clientIP)

	// 维护模式检查（最优先）
	if s.IsMaintenanceMode() {
		log.Info("🔧 维护模式，拒绝新连接")
		http.Error(w, "Server is under maintenance, please try again later", http.StatusServiceUnavailable)
		return
	}

	if !s.ipFilter.IsAllowed(clientIP) {
		log.Warn("🚫 IP 被过滤器拒绝")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if !s.originChecker.Check(r) {
		log.WithField("origin", r.Header.Get("Origin")).Warn("🚫 来源验证失败")
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}
	if !s.connLimiter.Allow(clientIP) {
		log.Warn("🚫 建连过于频繁")
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	ident, err := s.verifier.Resolve(token)
	if err != nil {
		log.WithError(err).Warn("🔑 身份校验失败")
		s.recorder.Record(analytics.Event{
			Type:     analytics.EventAuthError,
			Metadata: map[string]any{"ip": clientIP, "reason": err.Error()},
		})
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// 连接数限制，信号量在连接注销时释放
	select {
	case s.semaphore <- struct{}{}:
	default:
		log.WithField("max", s.maxConnections).Warn("🚫 达到最大连接数限制")
		http.Error(w, "Server Full", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		<-s.semaphore
		log.WithError(err).Warn("WebSocket 升级失败")
		return
	}

	client := NewClient(s, conn, ident, clientIP)
	s.registerClient(client)
	s.recorder.Record(analytics.Event{
		UserID:   ident.UserID,
		Type:     analytics.EventLogin,
		Metadata: map[string]any{"conn": client.ID, "role": string(ident.Role)},
	})

	client.SendMessage(protocol.MustNewMessage(protocol.MsgConnected, protocol.ConnectedPayload{
		UserID: ident.UserID,
		Name:   ident.Name,
		Role:   string(ident.Role),
	}))
	log.WithFields(logrus.Fields{"user": ident.UserID, "conn": client.ID}).Info("✅ 用户已连接")

	go client.ReadPump()
	go client.WritePump()
}

// handleHealth 健康检查接口
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.redisStore.Ping(r.Context()); err != nil {
		http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// registerClient 注册客户端
func (s *Server) registerClient(client *Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	s.clients[client.ID] = client
	uid := client.Identity().UserID
	if s.users[uid] == nil {
		s.users[uid] = make(map[string]*Client)
	}
	s.users[uid][client.ID] = client
}

// unregisterClient 注销客户端并释放连接名额
func (s *Server) unregisterClient(client *Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if _, ok := s.clients[client.ID]; !ok {
		return
	}
	delete(s.clients, client.ID)
	uid := client.Identity().UserID
	delete(s.users[uid], client.ID)
	if len(s.users[uid]) == 0 {
		delete(s.users, uid)
	}
	<-s.semaphore

	logrus.WithFields(logrus.Fields{"user": uid, "conn": client.ID}).Info("❌ 用户已断开")
}

// identityKey 请求上下文中的身份
type identityKey struct{}

func identityFrom(r *http.Request) (types.Identity, bool) {
	ident, ok := r.Context().Value(identityKey{}).(types.Identity)
	return ident, ok
}
