// Command snapdogd is the entry point for the Snapdog multi-room audio
// controller daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapdog/snapdog/internal/buildinfo"
	"github.com/snapdog/snapdog/internal/client"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/connwatch"
	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/httpapi"
	"github.com/snapdog/snapdog/internal/knxadapter"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/metrics"
	"github.com/snapdog/snapdog/internal/mqttadapter"
	"github.com/snapdog/snapdog/internal/orchestrator"
	"github.com/snapdog/snapdog/internal/snapcast"
	"github.com/snapdog/snapdog/internal/statepublisher"
	"github.com/snapdog/snapdog/internal/subsonic"
	"github.com/snapdog/snapdog/internal/wiring"
	"github.com/snapdog/snapdog/internal/zone"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "serve":
			runServe(logger, *configPath)
		case "validate":
			runValidate(logger, *configPath)
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
		return
	}

	fmt.Println("Snapdog - Multi-room audio controller")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the daemon")
	fmt.Println("  validate  Load and validate the config file, then exit")
	fmt.Println("  version   Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// runValidate loads and validates the config without starting any
// adapters, for use in CI or a pre-deploy check.
func runValidate(logger *slog.Logger, configPath string) {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("config invalid", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	fmt.Printf("config OK: %d zone(s), %d client(s)\n", len(cfg.Zones), len(cfg.Clients))
}

func runServe(logger *slog.Logger, configPath string) {
	logger.Info("starting snapdogd", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(2)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(2)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"zones", len(cfg.Zones),
		"clients", len(cfg.Clients),
		"listen_port", cfg.Listen.Port,
	)

	met := metrics.New()
	med := mediator.New(mediator.WithLogger(logger))

	zones := zone.NewStore(cfg.Zones, med)
	clients := client.NewStore(cfg.Clients, len(cfg.Zones), med)

	snapAddr := fmt.Sprintf("%s:%d", cfg.Services.Snapcast.Host, cfg.Services.Snapcast.Port)
	snap := snapcast.New(snapAddr, snapcast.WithLogger(logger), snapcast.WithMediator(med))
	go snap.Run(context.Background())

	reconciler := grouping.New(snap, zones, clients, med,
		grouping.WithInterval(cfg.Resilience.ReconcileInterval),
		grouping.WithLogger(logger),
		grouping.WithHealthRecorder(func(health string) {
			met.ReconciliationsTotal.WithLabelValues(health).Inc()
		}),
	)

	subsonicClient := subsonic.New(cfg.Services.Subsonic, logger)

	wiring.Register(&wiring.Deps{
		Zones:      zones,
		Clients:    clients,
		Med:        med,
		Snapcast:   snap,
		Subsonic:   subsonicClient,
		Reconciler: reconciler,
		Metrics:    met,
		Logger:     logger,
	})

	var mqttAdapter *mqttadapter.Adapter
	if cfg.Services.MQTT.BrokerURL != "" {
		mqttAdapter = mqttadapter.New(cfg.Services.MQTT, cfg.Zones, cfg.Clients, med, logger)
		mqttAdapter.SetMetrics(met.MQTTMessagesDropped, met.MQTTParseFailures)
		go func() {
			if err := mqttAdapter.Run(context.Background()); err != nil {
				logger.Error("mqtt adapter stopped", "error", err)
			}
		}()
	} else {
		logger.Warn("mqtt not configured, MQTT control surface disabled")
	}

	var knxAdapter *knxadapter.Adapter
	if cfg.Services.KNX.Enabled {
		knxAdapter = knxadapter.New(cfg.Services.KNX, cfg.Zones, cfg.Clients, med, logger)
		knxAdapter.SetMetrics(met.KNXTelegramErrors)
		go knxAdapter.Run(context.Background())
	}

	var mqttSink statepublisher.MQTTSink
	if mqttAdapter != nil {
		mqttSink = mqttAdapter
	}
	var knxSink statepublisher.KNXSink
	if knxAdapter != nil {
		knxSink = knxAdapter
	}
	publisher := statepublisher.New(cfg.Zones, cfg.Clients, zones, clients, med, mqttSink, knxSink, logger)

	watchMgr := connwatch.NewManager(logger)
	watchMgr.Watch(context.Background(), connwatch.WatcherConfig{
		Name:    "snapcast",
		Probe:   func(ctx context.Context) error { _, err := snap.GetServerStatus(ctx); return err },
		Backoff: connwatch.DefaultBackoffConfig(),
		Logger:  logger,
	})
	if cfg.Services.Subsonic.BaseURL != "" {
		watchMgr.Watch(context.Background(), connwatch.WatcherConfig{
			Name:    "subsonic",
			Probe: func(ctx context.Context) error {
				if err := subsonicClient.Ping(ctx); err != nil {
					return err
				}
				return nil
			},
			Backoff: connwatch.DefaultBackoffConfig(),
			Logger:  logger,
		})
	}

	orch := orchestrator.New(cfg, med, snap, reconciler.Reconcile, publisher, logger)

	httpServer := httpapi.New(cfg.Listen.Address, cfg.Listen.Port, zones, clients, med, cfg.Zones, cfg.Clients, snap, subsonicClient, met, logger)
	httpServer.SetServiceStatuses(watchMgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		watchMgr.Stop()
	}()

	go func() {
		if err := orch.Run(ctx); err != nil {
			logger.Error("startup validation failed", "error", err)
			cancel()
			os.Exit(2)
		}
	}()

	if err := httpServer.Start(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("snapdogd stopped")
}
