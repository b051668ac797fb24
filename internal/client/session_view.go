package client

import (
	"slices"
	"sync"

	"github.com/palemoky/quest-arena/internal/protocol"
)

// maxRecentEntries 本地保留的战斗日志条数
const maxRecentEntries = 50

// SessionView 客户端侧的会话状态，由服务器推送的消息增量维护
type SessionView struct {
	mu sync.RWMutex

	Room       protocol.RoomDTO
	Session    protocol.SessionDTO
	Characters map[string]protocol.CharacterDTO
	RecentLog  []protocol.CombatEntryDTO // 最新的在前

	LastError *protocol.ErrorPayload
}

// NewSessionView 创建空视图
func NewSessionView() *SessionView {
	return &SessionView{Characters: make(map[string]protocol.CharacterDTO)}
}

// Apply 根据一条服务器消息更新视图，返回是否识别该消息
func (v *SessionView) Apply(msg *protocol.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch msg.Type {
	case protocol.MsgRoomState:
		p, err := protocol.ParsePayload[protocol.RoomStatePayload](msg)
		if err != nil {
			return false
		}
		v.Room = p.Room
	case protocol.MsgSessionState:
		p, err := protocol.ParsePayload[protocol.SessionStatePayload](msg)
		if err != nil {
			return false
		}
		// 切换到其他会话时清空本地角色与日志
		if v.Session.ID != p.Session.ID {
			clear(v.Characters)
			v.RecentLog = nil
		}
		v.Session = p.Session
	case protocol.MsgCharacterState:
		p, err := protocol.ParsePayload[protocol.CharacterStatePayload](msg)
		if err != nil {
			return false
		}
		v.Characters[p.Character.ID] = p.Character
	case protocol.MsgTurnChanged:
		p, err := protocol.ParsePayload[protocol.TurnChangedPayload](msg)
		if err != nil || p.SessionID != v.Session.ID {
			return false
		}
		v.Session.TurnIndex = p.TurnIndex
		v.Session.ActiveCharacterID = p.ActiveCharacterID
	case protocol.MsgActionResult:
		p, err := protocol.ParsePayload[protocol.ActionResultPayload](msg)
		if err != nil {
			return false
		}
		v.pushEntryLocked(p.Entry)
	case protocol.MsgOverview:
		p, err := protocol.ParsePayload[protocol.OverviewPayload](msg)
		if err != nil {
			return false
		}
		v.Session = p.Session
		clear(v.Characters)
		for _, ch := range p.Characters {
			v.Characters[ch.ID] = ch
		}
		v.RecentLog = slices.Clone(p.RecentLog)
	case protocol.MsgError:
		p, err := protocol.ParsePayload[protocol.ErrorPayload](msg)
		if err != nil {
			return false
		}
		v.LastError = p
	default:
		return false
	}
	return true
}

func (v *SessionView) pushEntryLocked(e protocol.CombatEntryDTO) {
	v.RecentLog = append([]protocol.CombatEntryDTO{e}, v.RecentLog...)
	if len(v.RecentLog) > maxRecentEntries {
		v.RecentLog = v.RecentLog[:maxRecentEntries]
	}
}

// ActiveCharacter 当前行动的角色
func (v *SessionView) ActiveCharacter() (protocol.CharacterDTO, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.Characters[v.Session.ActiveCharacterID]
	return c, ok
}

// IsMyTurn 当前行动角色是否属于该用户
func (v *SessionView) IsMyTurn(userID string) bool {
	c, ok := v.ActiveCharacter()
	return ok && c.OwnerUserID == userID
}

// Alive 未倒下的角色数
func (v *SessionView) Alive() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := 0
	for _, c := range v.Characters {
		if !c.Incapacitated {
			n++
		}
	}
	return n
}

// Reset 清空所有状态
func (v *SessionView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Room = protocol.RoomDTO{}
	v.Session = protocol.SessionDTO{}
	clear(v.Characters)
	v.RecentLog = nil
	v.LastError = nil
}
