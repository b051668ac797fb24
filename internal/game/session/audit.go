package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/server/storage"
)

const auditTimeout = 3 * time.Second

// enqueueAudit 投递战斗日志，缓冲区满时丢弃并告警，从不阻塞
func (m *Manager) enqueueAudit(rec storage.CombatLogRecord) {
	if m.auditCh == nil {
		return
	}
	m.auditMu.RLock()
	defer m.auditMu.RUnlock()
	if m.auditClosed {
		return
	}
	select {
	case m.auditCh <- rec:
	default:
		logrus.WithField("session", rec.SessionID).Warn("⚠️ 战斗日志缓冲区已满，丢弃审计记录")
	}
}

// auditWorker 顺序写入审计库
func (m *Manager) auditWorker() {
	defer close(m.auditDone)
	log := logrus.WithField("component", "combat-audit")

	for rec := range m.auditCh {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		if err := m.audit.AppendCombatLog(ctx, rec); err != nil {
			log.WithError(err).WithField("session", rec.SessionID).Warn("写入战斗日志失败")
		}
		cancel()
	}
}

func (m *Manager) closeAudit() {
	if m.auditCh == nil {
		return
	}
	m.auditMu.Lock()
	if m.auditClosed {
		m.auditMu.Unlock()
		return
	}
	m.auditClosed = true
	close(m.auditCh)
	m.auditMu.Unlock()
	<-m.auditDone
}
