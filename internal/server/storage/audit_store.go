package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotConfigured 审计库未初始化
var ErrNotConfigured = errors.New("audit storage is not configured")

const auditSchema = `
CREATE TABLE IF NOT EXISTS combat_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT    NOT NULL,
	turn_index  INTEGER NOT NULL,
	actor_id    TEXT    NOT NULL,
	action      TEXT    NOT NULL,
	target_id   TEXT    NOT NULL DEFAULT '',
	ally_ids    TEXT    NOT NULL DEFAULT '[]',
	rolls       TEXT    NOT NULL DEFAULT '[]',
	modifier    INTEGER NOT NULL DEFAULT 0,
	magnitude   INTEGER NOT NULL DEFAULT 0,
	result_text TEXT    NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_combat_log_session ON combat_log (session_id, id);

CREATE TABLE IF NOT EXISTS analytics_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT    NOT NULL DEFAULT '',
	room_id       TEXT    NOT NULL DEFAULT '',
	user_id       TEXT    NOT NULL DEFAULT '',
	type          TEXT    NOT NULL,
	created_at    INTEGER NOT NULL,
	metadata_json TEXT    NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_analytics_events_time ON analytics_events (created_at);
`

// CombatLogRecord 战斗日志记录
type CombatLogRecord struct {
	SessionID  string
	TurnIndex  int
	ActorID    string
	Action     string
	TargetID   string
	AllyIDs    []string
	Rolls      []int
	Modifier   int
	Magnitude  int
	ResultText string
	CreatedAt  time.Time
}

// EventRecord 分析事件记录
type EventRecord struct {
	SessionID    string
	RoomID       string
	UserID       string
	Type         string
	Timestamp    time.Time
	MetadataJSON string
}

// EventFilter 事件查询条件，零值字段不过滤
type EventFilter struct {
	From time.Time
	To   time.Time
	Type string
}

// AuditStore 只追加的审计库（SQLite）
type AuditStore struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenAuditStore 打开审计库并建表
func OpenAuditStore(path string) (*AuditStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(auditSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &AuditStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *AuditStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendCombatLog 追加一条战斗日志
func (s *AuditStore) AppendCombatLog(ctx context.Context, rec CombatLogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	if rec.SessionID == "" {
		return fmt.Errorf("session id is required")
	}

	allyIDs, err := json.Marshal(nonNil(rec.AllyIDs))
	if err != nil {
		return fmt.Errorf("encode ally ids: %w", err)
	}
	rolls, err := json.Marshal(nonNil(rec.Rolls))
	if err != nil {
		return fmt.Errorf("encode rolls: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO combat_log (
		   session_id, turn_index, actor_id, action, target_id,
		   ally_ids, rolls, modifier, magnitude, result_text, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.TurnIndex,
		rec.ActorID,
		rec.Action,
		rec.TargetID,
		string(allyIDs),
		string(rolls),
		rec.Modifier,
		rec.Magnitude,
		rec.ResultText,
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("append combat log: %w", err)
	}
	return nil
}

// ListCombatLog 按时间倒序分页查询会话的战斗日志
func (s *AuditStore) ListCombatLog(ctx context.Context, sessionID string, limit, offset int) ([]CombatLogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		return []CombatLogRecord{}, nil
	}
	offset = max(offset, 0)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT session_id, turn_index, actor_id, action, target_id,
		        ally_ids, rolls, modifier, magnitude, result_text, created_at
		   FROM combat_log
		  WHERE session_id = ?
		  ORDER BY id DESC
		  LIMIT ? OFFSET ?`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list combat log: %w", err)
	}
	defer rows.Close()

	records := make([]CombatLogRecord, 0, limit)
	for rows.Next() {
		var rec CombatLogRecord
		var allyIDs, rolls string
		var createdAt int64
		if err := rows.Scan(
			&rec.SessionID,
			&rec.TurnIndex,
			&rec.ActorID,
			&rec.Action,
			&rec.TargetID,
			&allyIDs,
			&rolls,
			&rec.Modifier,
			&rec.Magnitude,
			&rec.ResultText,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan combat log: %w", err)
		}
		if err := json.Unmarshal([]byte(allyIDs), &rec.AllyIDs); err != nil {
			return nil, fmt.Errorf("decode ally ids: %w", err)
		}
		if err := json.Unmarshal([]byte(rolls), &rec.Rolls); err != nil {
			return nil, fmt.Errorf("decode rolls: %w", err)
		}
		rec.CreatedAt = fromMillis(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate combat log: %w", err)
	}
	return records, nil
}

// AppendEvent 追加一条分析事件
func (s *AuditStore) AppendEvent(ctx context.Context, rec EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	if strings.TrimSpace(rec.Type) == "" {
		return fmt.Errorf("event type is required")
	}
	metadata := rec.MetadataJSON
	if metadata == "" {
		metadata = "{}"
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO analytics_events (session_id, room_id, user_id, type, created_at, metadata_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.RoomID,
		rec.UserID,
		rec.Type,
		toMillis(rec.Timestamp),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("append analytics event: %w", err)
	}
	return nil
}

// ListEvents 按时间升序查询事件
func (s *AuditStore) ListEvents(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, ErrNotConfigured
	}

	query := `SELECT session_id, room_id, user_id, type, created_at, metadata_json FROM analytics_events WHERE 1=1`
	var args []any
	if !filter.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, toMillis(filter.From))
	}
	if !filter.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, toMillis(filter.To))
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analytics events: %w", err)
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var rec EventRecord
		var createdAt int64
		if err := rows.Scan(&rec.SessionID, &rec.RoomID, &rec.UserID, &rec.Type, &createdAt, &rec.MetadataJSON); err != nil {
			return nil, fmt.Errorf("scan analytics event: %w", err)
		}
		rec.Timestamp = fromMillis(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics events: %w", err)
	}
	return records, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
