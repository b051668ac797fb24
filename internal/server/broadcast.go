package server

import (
	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/game/session"
	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/protocol/convert"
)

// GetOnlineCount 在线用户数（同一用户多个连接只算一次）
func (s *Server) GetOnlineCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.users)
}

// IsOnline 用户是否至少有一个连接
func (s *Server) IsOnline(userID string) bool {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.users[userID]) > 0
}

// SendToUser 发送给用户的所有连接
func (s *Server) SendToUser(userID string, msg *protocol.Message) {
	for _, c := range s.userClients(userID) {
		c.SendMessage(msg)
	}
}

// Broadcast 广播消息给所有客户端
func (s *Server) Broadcast(msg *protocol.Message) {
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		c.SendMessage(msg)
	}
}

// BroadcastToRoom 发送给房间内的在线成员，excludeUserID 为空时不排除
func (s *Server) BroadcastToRoom(roomID string, msg *protocol.Message, excludeUserID string) {
	info, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return
	}
	for _, m := range info.Members {
		if m.UserID == excludeUserID {
			continue
		}
		s.SendToUser(m.UserID, msg)
	}
}

// TurnChanged 会话回合变化推送给房间成员和 GM（包括超时触发的切换）
func (s *Server) TurnChanged(ev session.TurnEvent) {
	msg, err := protocol.NewMessage(protocol.MsgTurnChanged, convert.TurnEventToPayload(ev))
	if err != nil {
		logrus.WithError(err).WithField("session", ev.SessionID).Error("回合消息编码失败")
		return
	}

	s.BroadcastToRoom(ev.RoomID, msg, "")
	if info, err := s.sessions.Get(ev.SessionID); err == nil && !s.rooms.IsMember(ev.RoomID, info.GMUserID) {
		s.SendToUser(info.GMUserID, msg)
	}
}

// userClients 拷贝出用户的连接，发送时不持有锁
func (s *Server) userClients(userID string) []*Client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	conns := s.users[userID]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}
