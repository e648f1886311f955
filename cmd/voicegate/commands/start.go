package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/voicegate/internal/api"
	"github.com/marmos91/voicegate/internal/logger"
	"github.com/marmos91/voicegate/internal/telemetry"
	"github.com/marmos91/voicegate/pkg/ai"
	"github.com/marmos91/voicegate/pkg/archive"
	"github.com/marmos91/voicegate/pkg/bus"
	"github.com/marmos91/voicegate/pkg/call"
	"github.com/marmos91/voicegate/pkg/call/store"
	"github.com/marmos91/voicegate/pkg/config"
	"github.com/marmos91/voicegate/pkg/engine"
	"github.com/marmos91/voicegate/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/voicegate/pkg/metrics/prometheus"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the VoiceGate server",
	Long: `Start the VoiceGate server with the specified configuration.

The server exposes the PBX ingest API, the operator query API, and the
WebSocket event stream on a single port.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/voicegate/config.yaml.

Examples:
  # Start with default config location
  voicegate start

  # Start with custom config file
  voicegate start --config /etc/voicegate/config.yaml

  # Start with environment variable overrides
  VOICEGATE_LOGGING_LEVEL=DEBUG voicegate start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "voicegate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "voicegate",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("VoiceGate - Real-time call ingest gateway")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics FIRST (before creating components that use metrics)
	// This ensures metrics.IsEnabled() returns true when constructors run
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Metrics server listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Open the call store
	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open call store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Store close error", "error", err)
		}
	}()
	logger.Info("Call store ready", "backend", cfg.Store.Backend)

	// Create the event bus and route committed store events to it
	eventBus := bus.New(metrics.NewBusMetrics())
	st.SetEventSink(func(events []call.Event) {
		for _, ev := range events {
			eventBus.Publish(ev)
		}
	})

	// Create the archive exporter (if enabled)
	var exporter archive.Exporter = archive.NopExporter{}
	if cfg.Archive.Enabled {
		s3Exporter, err := archive.NewS3ExporterFromConfig(ctx, archive.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			KeyPrefix:       cfg.Archive.KeyPrefix,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			ForcePathStyle:  cfg.Archive.ForcePathStyle,
			Metrics:         metrics.NewArchiveMetrics(),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize archive exporter: %w", err)
		}
		exporter = s3Exporter
		logger.Info("Archive export enabled", "bucket", cfg.Archive.Bucket, "key_prefix", cfg.Archive.KeyPrefix)
	} else {
		logger.Info("Archive export disabled")
	}

	// Create the call engine with the mock AI client
	eng := engine.New(engine.DefaultConfig(), st, ai.NewMockClient(), exporter, metrics.NewEngineMetrics())

	// Create the API server
	apiServer := api.NewServer(cfg.Server, api.Deps{
		Engine:  eng,
		Store:   st,
		Bus:     eventBus,
		Metrics: metrics.NewHTTPMetrics(),
	})
	logger.Info("API server configured", "host", cfg.Server.Host, "port", cfg.Server.Port)

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		// Drain in-flight ingest and completion pipelines before dropping
		// event subscribers, so every committed event still reaches the bus.
		if err := eng.Shutdown(shutdownCtx); err != nil {
			logger.Error("Engine shutdown error", "error", err)
		}
		eventBus.Close()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if shutdownErr := eng.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("Engine shutdown error", "error", shutdownErr)
		}
		eventBus.Close()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}

		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
