// =============================================================================
// VoiceFlow 主入口
// =============================================================================
// 音频 STT → LLM → TTS 编排服务
//
// 使用方法:
//
//	voiceflow serve                          # 启动服务
//	voiceflow serve --config config.yaml     # 指定配置文件
//	voiceflow version                        # 显示版本信息
//	voiceflow health --addr http://host:8080 # 探测 /healthz
//	voiceflow sessions purge [--all]         # 清理过期会话记录
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/internal/telemetry"
	"github.com/BaSui01/voiceflow/session"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stderr)
	case "version":
		printVersion(stdout)
		return 0
	case "health":
		return runHealthCheck(args[1:], stdout, stderr)
	case "sessions":
		return runSessions(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting VoiceFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		_ = srv.Shutdown(context.Background())
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return 1
	}

	logger.Info("VoiceFlow stopped")
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(stdout, "OK")
	return 0
}

// =============================================================================
// 🧹 sessions 命令
// =============================================================================

func runSessions(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] != "purge" {
		fmt.Fprintln(stderr, "Usage: voiceflow sessions purge [--config path] [--all]")
		return 1
	}

	fs := flag.NewFlagSet("sessions purge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	all := fs.Bool("all", false, "Remove every stored session, not only expired ones")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	store, closeStore, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open session store: %v\n", err)
		return 1
	}
	defer closeStore()

	if *all {
		n := store.Count()
		store.Clear(ctx)
		fmt.Fprintf(stdout, "removed %d sessions\n", n)
		return 0
	}

	// 不受 purge_enabled 影响
	n := store.PurgeExpired(ctx, time.Now().UTC())
	fmt.Fprintf(stdout, "purged %d expired sessions, %d remaining\n", n, store.Count())
	return 0
}

// openSessionStore 仅构建会话存储，不启动 HTTP 服务
func openSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*session.Store, func(), error) {
	persister, pool, err := openSessionBackend(cfg, nil, logger)
	if err != nil {
		return nil, func() {}, err
	}
	closeFn := func() {}
	if pool != nil {
		closeFn = func() { _ = pool.Close() }
	}

	store := session.NewStore(ctx, session.Options{
		Policy:    session.PolicyFromConfig(cfg.Session),
		Persister: persister,
		Logger:    logger,
	})
	return store, closeFn, nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "VoiceFlow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `VoiceFlow - audio STT → LLM → TTS orchestrator

Usage:
  voiceflow <command> [options]

Commands:
  serve      Start the HTTP server
  version    Show version information
  health     Probe /healthz of a running server
  sessions   Session maintenance (purge)
  help       Show this help message

Examples:
  voiceflow serve --config config.yaml
  voiceflow health --addr http://localhost:8080
  voiceflow sessions purge --config config.yaml

Environment variables use the VOICEFLOW_ prefix, e.g.:
  VOICEFLOW_SERVER_HTTP_PORT=8080
  VOICEFLOW_SESSION_RETENTION_DAYS=7
  VOICEFLOW_PROVIDERS_STT=openai
  VOICEFLOW_RATE_LIMIT_ENABLED=true
`)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "voiceflow"))
}
