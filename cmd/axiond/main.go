// Package main implements the axiond entry point. Axiond runs one
// fixed-rate camera inference pipeline: it shares the accelerator with
// co-located instances by slot scheduling, runs the module chain on
// every frame, and publishes metadata records over NATS.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oneshot2001/axion/accelerator"
	"github.com/oneshot2001/axion/config"
	"github.com/oneshot2001/axion/frame"
	"github.com/oneshot2001/axion/httpapi"
	"github.com/oneshot2001/axion/inference"
	"github.com/oneshot2001/axion/metric"
	"github.com/oneshot2001/axion/module"
	"github.com/oneshot2001/axion/moduleregistry"
	"github.com/oneshot2001/axion/modules/detection"
	"github.com/oneshot2001/axion/modules/framepub"
	"github.com/oneshot2001/axion/natsclient"
	"github.com/oneshot2001/axion/pipeline"
	"github.com/oneshot2001/axion/publish"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "axiond"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath, logger)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting axiond",
		"version", Version,
		"build_time", BuildTime,
		"camera_id", cfg.Camera.ID,
		"camera_index", cfg.Camera.Index)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := metric.New()

	natsClient, publisher := setupPublishing(ctx, cfg, logger, metrics)
	if natsClient != nil {
		defer func() {
			if err := natsClient.Close(); err != nil {
				logger.Warn("NATS close failed", "error", err)
			}
		}()
	}

	coordinator, err := accelerator.New(cfg.Camera.ID, cfg.Camera.Index,
		accelerator.WithSlotTiming(cfg.Pipeline.SlotDuration.Std(), cfg.Pipeline.CycleLength.Std()),
		accelerator.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create slot coordinator: %w", err)
	}
	defer coordinator.Close()

	source, err := frame.NewSimSource(cfg.Source.Width, cfg.Source.Height,
		frame.WithMaxFrames(cfg.Source.MaxFrames))
	if err != nil {
		return fmt.Errorf("create frame source: %w", err)
	}
	defer func() { _ = source.Close() }()

	deps := module.Dependencies{
		Logger:  logger,
		Engine:  &inference.StaticEngine{Output: simTensor(cfg.Inference)},
		Poster:  module.NewHTTPPoster(10 * time.Second),
		Metrics: metrics,
	}
	if natsClient != nil {
		deps.Bus = natsClient
	}

	p, err := pipeline.New(pipeline.Options{
		CameraID:     cfg.Camera.ID,
		TargetFPS:    cfg.Pipeline.TargetFPS,
		Modules:      cfg.EnabledModules(),
		Registry:     moduleregistry.Default(),
		Source:       source,
		Coordinator:  coordinator,
		Publisher:    publisher,
		Deps:         deps,
		ModuleConfig: moduleConfigFunc(cfg),
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	server, err := httpapi.NewServer(cfg.HTTP.Listen, cfg.Camera.ID, p, metrics, logger)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// When the pipeline ends on its own (bounded source), take the
		// HTTP server down with it.
		defer cancel()
		return p.Run(gctx)
	})
	g.Go(func() error { return server.Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("axiond shutdown complete")
	return nil
}

// loadConfig loads the configuration file, falling back to defaults when
// no file is present.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		logger.Warn("Config file not found, using defaults", "path", path)
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setupPublishing connects to NATS. When the broker is unreachable at
// startup the instance still runs, publishing records to the log only.
func setupPublishing(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *metric.Metrics) (*natsclient.Client, publish.Publisher) {
	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithReconnect(cfg.NATS.MaxReconnects, cfg.NATS.ReconnectWait.Std()),
		natsclient.WithTimeout(cfg.NATS.Timeout.Std()),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metrics))
	if err != nil {
		logger.Warn("NATS client unavailable, records go to the log", "error", err)
		return nil, publish.NewLogPublisher(logger)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.NATS.Timeout.Std())
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		logger.Warn("NATS unreachable, records go to the log", "url", cfg.NATS.URL, "error", err)
		_ = client.Close()
		return nil, publish.NewLogPublisher(logger)
	}

	publisher, err := publish.NewNATSPublisher(client, cfg.NATS.SubjectPrefix, cfg.Camera.ID, logger, metrics)
	if err != nil {
		logger.Warn("Publisher setup failed, records go to the log", "error", err)
		return client, publish.NewLogPublisher(logger)
	}
	return client, publisher
}

// moduleConfigFunc merges per-module settings with defaults derived from
// the top-level configuration.
func moduleConfigFunc(cfg *config.Config) func(name string) module.Config {
	return func(name string) module.Config {
		merged := module.Config{}
		for k, v := range cfg.ModuleConfig(name) {
			merged[k] = v
		}

		switch name {
		case detection.Name:
			setDefault(merged, "input_width", cfg.Inference.InputWidth)
			setDefault(merged, "input_height", cfg.Inference.InputHeight)
			setDefault(merged, "num_classes", cfg.Inference.NumClasses)
			setDefault(merged, "threshold", cfg.Inference.Threshold)
		case framepub.Name:
			setDefault(merged, "subject",
				fmt.Sprintf("%s.%s.frame", cfg.NATS.SubjectPrefix, cfg.Camera.ID))
		}
		return merged
	}
}

func setDefault(cfg module.Config, key string, value any) {
	if _, ok := cfg[key]; !ok {
		cfg[key] = value
	}
}

// simTensor builds one synthetic detection candidate matching the
// configured model shape, so the off-device pipeline produces output.
func simTensor(cfg config.InferenceConfig) []float32 {
	row := make([]float32, 5+cfg.NumClasses)
	row[0] = float32(cfg.InputWidth) / 2
	row[1] = float32(cfg.InputHeight) / 2
	row[2] = float32(cfg.InputWidth) / 5
	row[3] = float32(cfg.InputHeight) / 5
	row[4] = 0.9
	row[5] = 0.9
	return row
}
