package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// 默认值
const (
	defaultHost              = "0.0.0.0"
	defaultPort              = 1780
	defaultMaxConnections    = 1000
	defaultRedisAddr         = "localhost:6379"
	defaultAuditPath         = "data/audit.db"
	defaultIssuer            = "quest-arena"
	defaultLogLevel          = "info"
	defaultTurnTimeout       = 60
	defaultInviteTTL         = 24 * 60
	defaultJoinCodeTTL       = 30
	defaultCapacity          = 6
	defaultMaxCapacity       = 32
	defaultSnapshotRetention = 7 * 24
	defaultMessagesPerSecond = 20
	defaultMessageBurst      = 40
	defaultConnPerSecond     = 5
	defaultConnBurst         = 10
	defaultConnBanSeconds    = 60
)

// Config 服务端配置
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Audit    AuditConfig    `yaml:"audit" envPrefix:"AUDIT_"`
	Auth     AuthConfig     `yaml:"auth" envPrefix:"AUTH_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Game     GameConfig     `yaml:"game" envPrefix:"GAME_"`
	Security SecurityConfig `yaml:"security" envPrefix:"SECURITY_"`
}

// ServerConfig HTTP / WebSocket 服务器配置
type ServerConfig struct {
	Host           string `yaml:"host" env:"HOST"`
	Port           int    `yaml:"port" env:"PORT"`
	MaxConnections int    `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// AuditConfig 审计库（SQLite）配置
type AuditConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// AuthConfig 身份令牌配置
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	File  string `yaml:"file" env:"FILE"`
}

// GameConfig 游戏配置
type GameConfig struct {
	TurnTimeout       int  `yaml:"turn_timeout" env:"TURN_TIMEOUT"`             // 回合超时（秒）
	InviteTTL         int  `yaml:"invite_ttl" env:"INVITE_TTL"`                 // 邀请默认有效期（分钟）
	JoinCodeTTL       int  `yaml:"join_code_ttl" env:"JOIN_CODE_TTL"`           // 加入码有效期（分钟）
	DefaultCapacity   int  `yaml:"default_capacity" env:"DEFAULT_CAPACITY"`     // 房间默认容量
	MaxCapacity       int  `yaml:"max_capacity" env:"MAX_CAPACITY"`             // 房间容量上限
	RequireFriendship bool `yaml:"require_friendship" env:"REQUIRE_FRIENDSHIP"` // 邀请是否要求好友关系
	SnapshotRetention int  `yaml:"snapshot_retention" env:"SNAPSHOT_RETENTION"` // 快照在 Redis 中保留时长（小时）
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AllowedOrigins []string           `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	ConnLimit      ConnLimitConfig    `yaml:"conn_limit" envPrefix:"CONN_LIMIT_"`
	MessageLimit   MessageLimitConfig `yaml:"message_limit" envPrefix:"MESSAGE_LIMIT_"`
}

// ConnLimitConfig 单 IP 建连速率限制
type ConnLimitConfig struct {
	PerSecond  int `yaml:"per_second" env:"PER_SECOND"`
	Burst      int `yaml:"burst" env:"BURST"`
	BanSeconds int `yaml:"ban_seconds" env:"BAN_SECONDS"` // 超限后的封禁时长
}

// BanDuration 返回封禁时长
func (c *ConnLimitConfig) BanDuration() time.Duration {
	return time.Duration(c.BanSeconds) * time.Second
}

// MessageLimitConfig 单连接消息速率限制
type MessageLimitConfig struct {
	PerSecond int `yaml:"per_second" env:"PER_SECOND"`
	Burst     int `yaml:"burst" env:"BURST"`
}

// TurnTimeoutDuration 返回回合超时时长
func (c *GameConfig) TurnTimeoutDuration() time.Duration {
	return time.Duration(c.TurnTimeout) * time.Second
}

// InviteTTLDuration 返回邀请默认有效期
func (c *GameConfig) InviteTTLDuration() time.Duration {
	return time.Duration(c.InviteTTL) * time.Minute
}

// JoinCodeTTLDuration 返回加入码有效期
func (c *GameConfig) JoinCodeTTLDuration() time.Duration {
	return time.Duration(c.JoinCodeTTL) * time.Minute
}

// SnapshotRetentionDuration 返回快照保留时长
func (c *GameConfig) SnapshotRetentionDuration() time.Duration {
	return time.Duration(c.SnapshotRetention) * time.Hour
}

// Load 加载配置文件，环境变量覆盖文件中的值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// FromEnv 没有配置文件时只从环境变量读取
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default 返回默认配置
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults 设置默认值
func applyDefaults(cfg *Config) {
	setDefault(&cfg.Server.Host, defaultHost)
	setDefault(&cfg.Server.Port, defaultPort)
	setDefault(&cfg.Server.MaxConnections, defaultMaxConnections)
	setDefault(&cfg.Redis.Addr, defaultRedisAddr)
	setDefault(&cfg.Audit.Path, defaultAuditPath)
	setDefault(&cfg.Auth.Issuer, defaultIssuer)
	setDefault(&cfg.Log.Level, defaultLogLevel)
	setDefault(&cfg.Game.TurnTimeout, defaultTurnTimeout)
	setDefault(&cfg.Game.InviteTTL, defaultInviteTTL)
	setDefault(&cfg.Game.JoinCodeTTL, defaultJoinCodeTTL)
	setDefault(&cfg.Game.DefaultCapacity, defaultCapacity)
	setDefault(&cfg.Game.MaxCapacity, defaultMaxCapacity)
	setDefault(&cfg.Game.SnapshotRetention, defaultSnapshotRetention)
	setDefault(&cfg.Security.MessageLimit.PerSecond, defaultMessagesPerSecond)
	setDefault(&cfg.Security.MessageLimit.Burst, defaultMessageBurst)
	setDefault(&cfg.Security.ConnLimit.PerSecond, defaultConnPerSecond)
	setDefault(&cfg.Security.ConnLimit.Burst, defaultConnBurst)
	setDefault(&cfg.Security.ConnLimit.BanSeconds, defaultConnBanSeconds)
	if len(cfg.Security.AllowedOrigins) == 0 {
		cfg.Security.AllowedOrigins = []string{"*"}
	}
}

// setDefault 零值字段填充默认值
func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}
