package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/auth"
	"github.com/palemoky/quest-arena/internal/config"
	"github.com/palemoky/quest-arena/internal/game/room"
	"github.com/palemoky/quest-arena/internal/game/session"
	"github.com/palemoky/quest-arena/internal/server/core"
	"github.com/palemoky/quest-arena/internal/server/handler"
	"github.com/palemoky/quest-arena/internal/server/storage"
)

// Server HTTP + WebSocket 服务器
type Server struct {
	config     *config.Config
	redis      *redis.Client
	redisStore *storage.RedisStore
	social     *storage.SocialStore
	audit      *storage.AuditStore
	recorder   *analytics.Recorder
	rooms      *room.RoomManager
	sessions   *session.Manager
	verifier   *auth.Verifier
	handler    *handler.Handler
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader

	clients   map[string]*Client            // connID → client
	users     map[string]map[string]*Client // userID → connID → client
	clientsMu sync.RWMutex

	// 安全组件
	connLimiter   *core.ConnLimiter
	originChecker *core.OriginChecker
	ipFilter      *core.IPFilter

	// 连接控制
	maxConnections int
	semaphore      chan struct{} // 信号量控制并发连接数

	// 维护模式
	maintenanceMode bool
	maintenanceMu   sync.RWMutex

	stopMonitor chan struct{}
	stopOnce    sync.Once
}

// NewServer 连接 Redis 和审计库，组装房间与会话管理器
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis 连接失败: %w", err)
	}

	audit, err := storage.OpenAuditStore(cfg.Audit.Path)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("打开审计库失败: %w", err)
	}

	s := &Server{
		config:     cfg,
		redis:      rdb,
		redisStore: storage.NewRedisStore(rdb, cfg.Game.SnapshotRetentionDuration()),
		social:     storage.NewSocialStore(rdb),
		audit:      audit,
		recorder:   analytics.NewRecorder(audit, 0),
		verifier:   auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		clients:    make(map[string]*Client),
		users:      make(map[string]map[string]*Client),
		connLimiter: core.NewConnLimiter(
			cfg.Security.ConnLimit.PerSecond,
			cfg.Security.ConnLimit.Burst,
			cfg.Security.ConnLimit.BanDuration(),
		),
		originChecker:  core.NewOriginChecker(cfg.Security.AllowedOrigins),
		ipFilter:       core.NewIPFilter(),
		maxConnections: cfg.Server.MaxConnections,
		semaphore:      make(chan struct{}, cfg.Server.MaxConnections),
		stopMonitor:    make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originChecker.Check,
	}

	s.rooms = room.NewRoomManager(s.redisStore, s.recorder, room.Options{
		DefaultCapacity:   cfg.Game.DefaultCapacity,
		MaxCapacity:       cfg.Game.MaxCapacity,
		InviteTTL:         cfg.Game.InviteTTLDuration(),
		JoinCodeTTL:       cfg.Game.JoinCodeTTLDuration(),
		RequireFriendship: cfg.Game.RequireFriendship,
		Friends:           s.social,
		Plans:             s.social,
	})
	s.sessions = session.NewManager(session.Options{
		Rooms:       s.rooms,
		Store:       s.redisStore,
		Audit:       audit,
		Recorder:    s.recorder,
		Notifier:    s,
		TurnTimeout: cfg.Game.TurnTimeoutDuration(),
	})
	s.handler = handler.NewHandler(handler.HandlerDeps{
		Server:      s,
		RoomManager: s.rooms,
		Sessions:    s.sessions,
	})
	s.router = s.routes()

	logrus.WithFields(logrus.Fields{
		"conn_limit":      cfg.Security.ConnLimit.PerSecond,
		"message_limit":   cfg.Security.MessageLimit.PerSecond,
		"max_connections": cfg.Server.MaxConnections,
		"origins":         cfg.Security.AllowedOrigins,
	}).Info("🔒 安全配置")

	return s, nil
}

// routes 注册 HTTP 路由
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/sessions/{id}/overview", s.handleSessionOverview).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/logs", s.handleSessionLogs).Methods(http.MethodGet)
	return r
}

// Router 返回 HTTP 路由
func (s *Server) Router() http.Handler {
	return s.router
}

// Restore 从 Redis 恢复房间和会话（会话依赖房间，顺序不能颠倒）
func (s *Server) Restore(ctx context.Context) error {
	rooms, err := s.rooms.Restore(ctx, s.redisStore)
	if err != nil {
		return fmt.Errorf("恢复房间失败: %w", err)
	}
	sessions, err := s.sessions.Restore(ctx, s.redisStore)
	if err != nil {
		return fmt.Errorf("恢复会话失败: %w", err)
	}
	logrus.WithFields(logrus.Fields{"rooms": rooms, "sessions": sessions}).Info("♻️ 已从 Redis 恢复状态")
	return nil
}

// Start 启动服务器，阻塞直到监听结束
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	go s.monitorStats()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second, // 防止 Slowloris 攻击
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	logrus.WithField("cpus", runtime.NumCPU()).Infof("🚀 服务器启动在 ws://%s/ws", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
