package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sigflow/sigflow/config"
	"github.com/sigflow/sigflow/pkg/logger"
	"github.com/sigflow/sigflow/pkg/metrics"
	"github.com/sigflow/sigflow/pkg/pool"
	"github.com/sigflow/sigflow/pkg/runloop"
	"github.com/sigflow/sigflow/pkg/telemetry/tracing"
	"github.com/sigflow/sigflow/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName     = flag.String("app-name", "", "Override app name")
	poolWorkers = flag.Int("pool-workers", 0, "Override pool worker count")
	logLevel    = flag.String("log-level", "", "Override log level")
	debugMode   = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	// Print help
	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	// Print version
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	// Build CLI overrides map
	overrides := buildOverrides()

	// Load configuration
	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	// Initialize logger with configuration
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting sigflow",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)

	log.Debug("Configuration loaded", "config", cfg.String())

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize metrics manager and wire it into signal dispatch
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)
	metricsManager.BindSignals()
	metricsManager.BindPools()
	metricsManager.BindWorkers()

	// Start metrics server if enabled
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// This goroutine owns deferred signal deliveries.
	mainLoop, err := runloop.RegisterMain()
	if err != nil {
		log.Error("Failed to register main run loop", "error", err)
		os.Exit(1)
	}

	// Start the shared task pool
	sharedPool, err := pool.InitGlobal(pool.Config{Workers: cfg.Pool.Workers})
	if err != nil {
		log.Error("Failed to initialize task pool", "error", err)
		os.Exit(1)
	}

	// Watch the configuration file and apply hot-reloadable changes on the
	// main loop.
	var watcher *config.Watcher
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, config.NewLoader())
		if err != nil {
			log.Error("Failed to create config watcher", "error", err)
			os.Exit(1)
		}
		hot := config.ExtractHotReloadable(cfg)
		watcher.OnReload().Connect(func(next *config.Config) {
			var applied bool
			if hot, applied = applyHotReload(log, hot, next); applied {
				log.Info("Applied reloaded configuration")
			}
		})
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Error("Config watcher error", "error", err)
			}
		}()
	}

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal", "signal", sig)
		case <-ctx.Done():
		}
		cancel()
	}()

	log.Info("sigflow is running",
		"pool_workers", sharedPool.Workers(),
		"metrics_port", cfg.Metrics.Port,
	)
	log.Info("Press Ctrl+C to stop")

	// Drain deferred deliveries until shutdown.
	mainLoop.Run(ctx)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if watcher != nil {
		log.Info("Stopping config watcher")
		if err := watcher.Stop(); err != nil {
			log.Error("Error stopping config watcher", "error", err)
		}
	}

	log.Info("Draining task pool")
	pool.ShutdownGlobal()

	mainLoop.Detach()

	log.Info("Shutting down tracing")
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("sigflow stopped gracefully")
}

// applyHotReload applies the hot-reloadable settings that differ from the
// currently active set and returns the now-active set. It reports false when
// nothing hot-reloadable changed.
func applyHotReload(log logger.Logger, current config.HotReloadableConfig, next *config.Config) (config.HotReloadableConfig, bool) {
	nextHot := config.ExtractHotReloadable(next)
	if !current.Changed(nextHot) {
		return current, false
	}
	if nextHot.LogLevel != current.LogLevel {
		log.SetLevel(logger.ParseLevel(nextHot.LogLevel))
	}
	return nextHot, true
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *poolWorkers != 0 {
		overrides["pool.workers"] = *poolWorkers
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("sigflow - Signal Dispatch and Background Task Runtime\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("sigflow - typed signal dispatch and background task runtime\n\n")
	fmt.Printf("Usage: sigflow [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  sigflow                                   # Run with default config\n")
	fmt.Printf("  sigflow -config config.yaml               # Use specific config file\n")
	fmt.Printf("  sigflow -pool-workers 8 -log-level debug  # Override specific options\n")
	fmt.Printf("  sigflow -version                          # Print version info\n")
}
