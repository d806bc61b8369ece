// Package main implements routerd, the order routing and dispatch daemon.
// It consumes order-send events, resolves each against the station and tag
// registries, and delivers the resulting manifest to kitchen displays over
// NATS and to thermal printers over the network.
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

	"github.com/GetwithitMan/gwi-pos-sub005/config"
	"github.com/GetwithitMan/gwi-pos-sub005/dispatch"
	"github.com/GetwithitMan/gwi-pos-sub005/display"
	"github.com/GetwithitMan/gwi-pos-sub005/health"
	"github.com/GetwithitMan/gwi-pos-sub005/intake"
	"github.com/GetwithitMan/gwi-pos-sub005/metric"
	"github.com/GetwithitMan/gwi-pos-sub005/natsclient"
	"github.com/GetwithitMan/gwi-pos-sub005/pkg/retry"
	"github.com/GetwithitMan/gwi-pos-sub005/printer"
	"github.com/GetwithitMan/gwi-pos-sub005/registry"
	"github.com/GetwithitMan/gwi-pos-sub005/ticket"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "routerd"
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
		slog.Error("routerd failed", "error", err)
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

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags override the config file's log settings.
	logLevel, logFormat := cfg.Log.Level, cfg.Log.Format
	if cliCfg.LogLevel != "" {
		logLevel = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		logFormat = cliCfg.LogFormat
	}
	logger := setupLogger(logLevel, logFormat)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("configuration is valid", "path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("starting routerd",
		"config_path", cliCfg.ConfigPath,
		"environment", cfg.Service.Environment,
		"stations", len(cfg.Stations),
		"tags", len(cfg.Tags))

	// Registries first: a bad station config should fail before any
	// network activity.
	reg, err := registry.NewFromConfig(cfg.RegistryTags(), cfg.RegistryStations())
	if err != nil {
		return fmt.Errorf("load registries: %w", err)
	}
	for _, w := range reg.Snapshot().Warnings() {
		logger.Warn("registry configuration warning", "warning", w)
	}

	monitor := health.NewMonitor()
	monitor.UpdateHealthy("registry", "loaded")

	metricsRegistry := metric.NewMetricsRegistry()
	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		metricsServer.SetHealthHandler(health.Handler(monitor, appName))
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = metricsServer.Stop() }()
		logger.Info("metrics server started", "address", metricsServer.Address())
	}

	natsClient, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithClientName(cfg.Service.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(cfg.NATS.Timeout),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metricsRegistry.CoreMetrics()),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	defer func() { _ = natsClient.Close() }()

	ctx := context.Background()
	if err := retry.Do(ctx, retry.Quick(), func() error {
		return natsClient.Connect(ctx)
	}); err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	printers := printer.NewTCPTransport(printer.TCPConfig{
		Addrs:       cfg.PrinterAddrs(),
		AckTimeouts: cfg.PrinterAckTimeouts(),
	})
	publisher := display.NewPublisher(natsClient)

	dispatcher := dispatch.NewService(
		dispatch.Config{
			DestinationTimeout: cfg.Dispatch.DestinationTimeout,
			QueueCapacity:      cfg.Dispatch.QueueCapacity,
			Retry: retry.Config{
				MaxAttempts:  cfg.Dispatch.Retry.MaxAttempts,
				InitialDelay: cfg.Dispatch.Retry.InitialDelay,
				MaxDelay:     cfg.Dispatch.Retry.MaxDelay,
				Multiplier:   cfg.Dispatch.Retry.Multiplier,
				AddJitter:    true,
			},
		},
		printers,
		publisher,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metricsRegistry.CoreMetrics()),
		dispatch.WithProfiles(profileLookup(cfg)),
	)
	if err := dispatcher.Initialize(); err != nil {
		return fmt.Errorf("initialize dispatch: %w", err)
	}
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatch: %w", err)
	}
	defer func() { _ = dispatcher.Stop(cliCfg.ShutdownTimeout) }()

	if cfg.Display.WebsocketEnabled {
		hub := display.NewHub(display.HubConfig{
			Port: cfg.Display.WebsocketPort,
			Path: cfg.Display.WebsocketPath,
		}, natsClient, logger)
		if err := hub.Initialize(); err != nil {
			return fmt.Errorf("initialize display hub: %w", err)
		}
		if err := hub.Start(ctx); err != nil {
			return fmt.Errorf("start display hub: %w", err)
		}
		defer func() { _ = hub.Stop(cliCfg.ShutdownTimeout) }()
	}

	orderIntake, err := intake.New(natsClient, reg, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("create intake: %w", err)
	}
	if err := orderIntake.Start(); err != nil {
		return fmt.Errorf("start intake: %w", err)
	}
	defer func() { _ = orderIntake.Stop() }()

	// Keep the NATS health status current for the health endpoint.
	healthCtx, healthStop := context.WithCancel(ctx)
	defer healthStop()
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-healthCtx.Done():
				return
			case <-ticker.C:
				updateNATSHealth(monitor, natsClient)
			}
		}
	}()
	updateNATSHealth(monitor, natsClient)
	monitor.UpdateHealthy("dispatch", "started")

	logger.Info("routerd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String(), "timeout", cliCfg.ShutdownTimeout)

	// Deferred stops drain intake, hub, and in-flight print jobs in
	// reverse start order.
	return nil
}

// updateNATSHealth maps the client's connection status onto the health
// monitor.
func updateNATSHealth(monitor *health.Monitor, c *natsclient.Client) {
	switch {
	case c.IsHealthy():
		monitor.UpdateHealthy("nats", "connected")
	case c.Status() == natsclient.StatusReconnecting:
		monitor.UpdateDegraded("nats", "reconnecting")
	default:
		monitor.UpdateUnhealthy("nats", c.Status().String())
	}
}

// profileLookup builds the per-station ticket style lookup from config.
func profileLookup(cfg *config.Config) dispatch.ProfileFunc {
	profiles := make(map[string]ticket.StyleProfile)
	for _, s := range cfg.Stations {
		if s.Kind != "printer" {
			continue
		}
		p := ticket.DefaultProfile()
		if s.Cut != nil {
			p.Cut = *s.Cut
		}
		if s.BuzzerPulses > 0 {
			p.BuzzerPulses = s.BuzzerPulses
		}
		profiles[s.ID] = p
	}
	return func(stationID string) ticket.StyleProfile {
		if p, ok := profiles[stationID]; ok {
			return p
		}
		return ticket.DefaultProfile()
	}
}
