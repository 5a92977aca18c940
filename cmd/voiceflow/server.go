package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/voiceflow/api/handlers"
	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/internal/cache"
	"github.com/BaSui01/voiceflow/internal/database"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/internal/ratelimit"
	"github.com/BaSui01/voiceflow/internal/server"
	"github.com/BaSui01/voiceflow/internal/telemetry"
	"github.com/BaSui01/voiceflow/llm/fallback"
	"github.com/BaSui01/voiceflow/llm/reply"
	"github.com/BaSui01/voiceflow/llm/speech"
	"github.com/BaSui01/voiceflow/llm/tier"
	"github.com/BaSui01/voiceflow/pipeline"
	"github.com/BaSui01/voiceflow/session"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const metricsNamespace = "voiceflow"

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 持有 VoiceFlow 的全部运行时组件
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	namespace string
	telemetry *telemetry.Providers

	ctx    context.Context
	cancel context.CancelFunc

	collector *metrics.Collector
	dbPool    *database.PoolManager
	cache     *cache.Manager
	store     *session.Store
	limiter   ratelimit.Limiter

	healthHandler *handlers.HealthHandler
	audioHandler  *handlers.AudioHandler
	statsHandler  *handlers.StatsHandler

	handler        http.Handler
	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建服务器实例；telemetry 可以为 nil
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		namespace: metricsNamespace,
		telemetry: providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Init 构建全部组件与路由，不监听端口
func (s *Server) Init() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.collector = metrics.NewCollector(s.namespace, s.logger)

	if err := s.initSessions(); err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}
	if err := s.initRateLimit(); err != nil {
		return fmt.Errorf("init rate limit: %w", err)
	}
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("init handlers: %w", err)
	}
	s.handler = s.routes()
	return nil
}

// Handler 返回带中间件链的主路由
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start 初始化并启动 HTTP 与 metrics 服务（非阻塞）
func (s *Server) Start() error {
	if err := s.Init(); err != nil {
		return err
	}

	httpCfg := server.ConfigFromServer(s.cfg.Server, s.cfg.Server.HTTPPort, true)
	s.httpManager = server.NewManager("http", s.handler, httpCfg, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	if port := s.cfg.Server.MetricsPort; port > 0 && port != s.cfg.Server.HTTPPort {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		s.metricsManager = server.NewManager("metrics", mux, server.ConfigFromServer(s.cfg.Server, port, false), s.logger)
		if err := s.metricsManager.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("session_backend", s.cfg.Session.Backend),
		zap.Bool("rate_limit_enabled", s.limiter != nil),
		zap.Bool("telemetry_enabled", s.telemetry.Enabled()),
	)
	return nil
}

// Run 阻塞直到 ctx 结束或任一服务异常退出，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case serveErr = <-s.httpManager.Errors():
	case serveErr = <-s.metricsErrors():
	}

	shutdownErr := s.Shutdown(context.Background())
	return errors.Join(serveErr, shutdownErr)
}

func (s *Server) metricsErrors() <-chan error {
	if s.metricsManager == nil {
		return nil
	}
	return s.metricsManager.Errors()
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initSessions() error {
	persister, pool, err := openSessionBackend(s.cfg, s.collector, s.logger)
	if err != nil {
		return err
	}
	s.dbPool = pool

	s.store = session.NewStore(s.ctx, session.Options{
		Policy:    session.PolicyFromConfig(s.cfg.Session),
		Persister: persister,
		Logger:    s.logger,
		Recorder:  s.collector,
	})
	s.store.StartSweep(s.ctx, s.cfg.Session.SweepInterval)

	fields := []zap.Field{
		zap.String("backend", s.cfg.Session.Backend),
		zap.Int("retention_days", s.cfg.Session.RetentionDays),
		zap.Bool("purge_enabled", s.cfg.Session.PurgeEnabled),
		zap.Int("sessions_loaded", s.store.Count()),
	}
	if fp, ok := persister.(*session.JSONFilePersister); ok {
		fields = append(fields, zap.String("storage_path", fp.Path()))
	}
	s.logger.Info("session store initialized", fields...)
	return nil
}

// backendRecorder 会话后端的数据库指标
type backendRecorder interface {
	session.QueryRecorder
	database.StatsRecorder
}

// openSessionBackend 按 session.backend 构建持久化；sql 后端同时返回连接池
func openSessionBackend(cfg *config.Config, recorder backendRecorder, logger *zap.Logger) (session.Persister, *database.PoolManager, error) {
	var (
		db     *gorm.DB
		driver string
		pool   *database.PoolManager
	)

	if strings.EqualFold(strings.TrimSpace(cfg.Session.Backend), session.BackendSQL) {
		var err error
		db, err = database.Open(cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		driver = strings.ToLower(cfg.Database.Driver)
		pool, err = database.NewPoolManager(db, driver, database.PoolConfigFromDatabase(cfg.Database), recorder, logger)
		if err != nil {
			return nil, nil, err
		}
	}

	persister, err := session.NewPersister(cfg.Session, db, driver, recorder)
	if err != nil {
		if pool != nil {
			_ = pool.Close()
		}
		return nil, nil, err
	}
	if sp, ok := persister.(*session.SQLPersister); ok {
		sp.WithTransactor(pool)
	}
	return persister, pool, nil
}

func (s *Server) initRateLimit() error {
	rl := s.cfg.RateLimit
	if !rl.Enabled {
		return nil
	}

	if strings.EqualFold(rl.Backend, ratelimit.BackendRedis) {
		manager, err := cache.NewManager(cache.ConfigFromRedis(s.cfg.Redis), s.logger)
		if err != nil {
			return err
		}
		s.cache = manager
	}

	limiter, err := ratelimit.New(s.ctx, rl, s.cache)
	if err != nil {
		return err
	}
	s.limiter = limiter
	s.logger.Info("rate limiting enabled",
		zap.String("backend", rl.Backend),
		zap.Int("max_requests", rl.MaxRequests),
		zap.Duration("window", rl.Window),
	)
	return nil
}

func (s *Server) initHandlers() error {
	opts := fallback.Options{
		Breaker:  fallback.BreakerFromConfig(s.cfg.Providers.Breaker),
		Logger:   s.logger,
		Recorder: s.collector,
	}

	stt, err := speech.NewSTTFromConfig(s.cfg.Providers, opts)
	if err != nil {
		return err
	}
	llm, err := reply.NewGeneratorFromConfig(s.cfg.Providers, opts)
	if err != nil {
		return err
	}
	tts, err := speech.NewTTSFromConfig(s.cfg.Providers, opts)
	if err != nil {
		return err
	}

	orchestrator, err := pipeline.NewOrchestrator(pipeline.Options{
		STT:      stt,
		LLM:      llm,
		TTS:      tts,
		Sessions: s.store,
		Resolver: tier.NewResolver(s.cfg.Tier.PremiumTenantIDs),
		Logger:   s.logger,
		Recorder: s.collector,
	})
	if err != nil {
		return err
	}

	s.audioHandler = handlers.NewAudioHandler(orchestrator, s.collector, s.cfg.Server.MaxUploadBytes, s.logger)
	s.statsHandler = handlers.NewStatsHandler(s.store, s.cfg.Session.StatsMaxSessions, s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("session_store", s.store.Ping))
	if s.dbPool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.dbPool.Ping))
	}
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	s.logger.Info("handlers initialized",
		zap.String("stt", s.cfg.Providers.STT),
		zap.String("llm", s.cfg.Providers.LLM),
		zap.String("tts", s.cfg.Providers.TTS),
		zap.Bool("fallback_to_stub", s.cfg.Providers.FallbackToStub),
	)
	return nil
}

// =============================================================================
// 🌐 路由与中间件
// =============================================================================

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+handlers.AudioRoute, s.audioHandler.HandleAudio)
	mux.HandleFunc("GET /audio/stats", s.statsHandler.HandleStats)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("GET /metrics", promhttp.Handler())

	middlewares := []Middleware{
		CorrelationID(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		Recovery(s.logger),
		SecurityHeaders(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		DefaultOutcome(),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, RateLimit(s.limiter, defaultRateLimitAllowlist, s.collector, s.logger))
	}
	return Chain(mux, middlewares...)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Shutdown 并行关闭 HTTP 与 metrics 服务，然后释放存储与遥测
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown")

	var g errgroup.Group
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m == nil {
			continue
		}
		g.Go(func() error { return m.Shutdown(ctx) })
	}
	err := g.Wait()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cache != nil {
		if cerr := s.cache.Close(); cerr != nil && !errors.Is(cerr, cache.ErrClosed) {
			err = errors.Join(err, cerr)
		}
	}
	if s.dbPool != nil {
		err = errors.Join(err, s.dbPool.Close())
	}
	if s.telemetry != nil {
		err = errors.Join(err, s.telemetry.Shutdown(ctx))
	}

	if err != nil {
		s.logger.Error("graceful shutdown finished with errors", zap.Error(err))
		return err
	}
	s.logger.Info("graceful shutdown completed")
	return nil
}
