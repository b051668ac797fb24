package combat

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entry 战斗日志条目，创建后不可变
type Entry struct {
	SessionID  string    `json:"session_id"`
	TurnIndex  int       `json:"turn_index"`
	ActorID    string    `json:"actor_id"`
	Action     Action    `json:"action"`
	TargetID   string    `json:"target_id,omitempty"`
	AllyIDs    []string  `json:"ally_ids,omitempty"`
	Rolls      []int     `json:"rolls,omitempty"`
	Modifier   int       `json:"modifier"`
	Magnitude  int       `json:"magnitude"`
	ResultText string    `json:"result_text"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEntry 由结算结果生成日志条目
func NewEntry(sessionID string, turnIndex int, actorID string, res Result, at time.Time) Entry {
	e := Entry{
		SessionID:  sessionID,
		TurnIndex:  turnIndex,
		ActorID:    actorID,
		Action:     res.Action,
		TargetID:   res.TargetID,
		Magnitude:  res.Magnitude,
		ResultText: res.Text,
		Timestamp:  at,
	}
	if len(res.AllyIDs) > 0 {
		e.AllyIDs = append([]string(nil), res.AllyIDs...)
	}
	if res.Roll != nil {
		e.Rolls = append([]int(nil), res.Roll.Dice...)
		e.Modifier = res.Roll.Modifier
	}
	return e
}

// Format 生成用于展示的单行文本
func (e Entry) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] turn %d · %s", e.Timestamp.UTC().Format("15:04:05"), e.TurnIndex, e.Action)

	if len(e.Rolls) > 0 {
		parts := make([]string, len(e.Rolls))
		for i, r := range e.Rolls {
			parts[i] = strconv.Itoa(r)
		}
		fmt.Fprintf(&b, " 🎲 %s", strings.Join(parts, "+"))
		switch {
		case e.Modifier > 0:
			fmt.Fprintf(&b, "+%d", e.Modifier)
		case e.Modifier < 0:
			fmt.Fprintf(&b, "%d", e.Modifier)
		}
		fmt.Fprintf(&b, " = %d", e.Magnitude)
	}

	b.WriteString(" · ")
	b.WriteString(e.ResultText)
	return b.String()
}
