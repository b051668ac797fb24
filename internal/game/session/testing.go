//go:build !production

package session

import (
	"time"

	"github.com/palemoky/quest-arena/internal/game/dice"
)

// SetClockForTest 替换时钟
func (m *Manager) SetClockForTest(now func() time.Time) {
	m.now = now
}

// SetIDGeneratorForTest 替换会话、角色、快照的 ID 生成器
func (m *Manager) SetIDGeneratorForTest(newID func() string) {
	m.newID = newID
}

// SetDiceForTest 替换随机源
func (m *Manager) SetDiceForTest(src dice.Source) {
	m.dice = &lockedSource{src: src}
}

// FireTimeoutForTest 直接触发当前计时器代数的超时回调，模拟计时器到期
func (m *Manager) FireTimeoutForTest(sessionID string) {
	s, err := m.getSession(sessionID)
	if err != nil {
		return
	}
	s.mu.Lock()
	gen, actor := s.timerGen, s.order.Current()
	s.mu.Unlock()
	m.onTurnTimeout(sessionID, actor, gen)
}
