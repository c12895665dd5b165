// =============================================================================
// AgentScope Runtime 主入口
// =============================================================================
// 完整服务入口点，包含会话处理 HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	agentscope serve                        # 前台启动服务
//	agentscope serve --config config.yaml   # 指定配置文件
//	agentscope start                        # 以后台进程方式启动
//	agentscope stop                         # 停止后台进程
//	agentscope status                       # 查询后台进程状态
//	agentscope health                       # 健康检查
//	agentscope version                      # 显示版本信息
//
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/engine/deploy"
	"github.com/rayrayraykk/agentscope-runtime/internal/telemetry"
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
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "start":
		runStart(os.Args[2:])
	case "stop":
		runStop(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "health":
		runHealthCheck(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并验证配置
func loadConfig(configPath, mode string) *config.Config {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if mode != "" {
		cfg.Server.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	mode := fs.String("mode", "", "Deployment mode override (daemon, detached, standalone)")
	fs.Parse(args)

	cfg := loadConfig(*configPath, *mode)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting AgentScope Runtime",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("mode", cfg.Server.Mode),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, cfg.Server.Mode, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	server := NewServer(cfg, logger, otelProviders)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	server.WaitForShutdown()
	logger.Info("AgentScope Runtime stopped")
}

// =============================================================================
// 🚀 start / stop / status 命令（后台进程管理）
// =============================================================================

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	pidFile := fs.String("pidfile", "agentscope.pid", "Path to pidfile")
	logFile := fs.String("logfile", "agentscope.log", "Path to child log file")
	fs.Parse(args)

	cfg := loadConfig(*configPath, config.ModeDetached)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	d := deploy.NewDetached(cfg, logger)
	d.PIDFile = *pidFile
	d.LogFile = *logFile
	if *configPath != "" {
		d.ExtraArgs = []string{"--config", *configPath}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.StartupTimeout+5*time.Second)
	defer cancel()

	url, err := d.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Start failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Started detached process at %s (pidfile %s)\n", url, *pidFile)
}

func runStop(args []string) {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	pidFile := fs.String("pidfile", "agentscope.pid", "Path to pidfile")
	fs.Parse(args)

	cfg := loadConfig(*configPath, config.ModeDetached)

	d := deploy.NewDetached(cfg, zap.NewNop())
	d.PIDFile = *pidFile

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := d.Stop(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Stop failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Stopped")
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	pidFile := fs.String("pidfile", "agentscope.pid", "Path to pidfile")
	fs.Parse(args)

	cfg := loadConfig(*configPath, config.ModeDetached)

	d := deploy.NewDetached(cfg, zap.NewNop())
	d.PIDFile = *pidFile

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := d.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(status, "", "  ")
	fmt.Println(string(out))
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8090", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("AgentScope Runtime %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AgentScope Runtime - Agent hosting service

Usage:
  agentscope <command> [options]

Commands:
  serve     Start the runtime in the foreground
  start     Start the runtime as a detached background process
  stop      Stop the detached background process
  status    Show status of the detached background process
  health    Check server health
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)
  --mode <mode>     Deployment mode override (daemon, detached, standalone)

Examples:
  agentscope serve
  agentscope serve --config /etc/agentscope/config.yaml
  agentscope start --config config.yaml
  agentscope status
  agentscope health --addr http://localhost:8090
  agentscope version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
