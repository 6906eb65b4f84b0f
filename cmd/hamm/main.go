package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kuretru/ha-minimqtt/dispatcher"
	"github.com/kuretru/ha-minimqtt/entity"
	"github.com/kuretru/ha-minimqtt/entity/hass"
	"github.com/kuretru/ha-minimqtt/internal/config"
	"github.com/kuretru/ha-minimqtt/internal/metrics"
	"github.com/kuretru/ha-minimqtt/transport"
)

var version = "dev"

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("hamm: exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("Received shutdown signal, exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	device, err := entity.NewDeviceIdentifier(cfg.Device.Manufacturer, cfg.Device.Model, cfg.Device.Identifier)
	if err != nil {
		return err
	}
	availability := entity.AvailabilityTopic(cfg.TopicPrefix, device)

	client, err := transport.New(cfg, &transport.Will{
		Topic:   availability,
		Payload: []byte(hass.PayloadOffline),
		Retain:  true,
	}, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	d := dispatcher.New(client, dispatcher.Config{
		LoopSleep:         cfg.Loop.SleepDuration(),
		LoopTimeout:       cfg.Loop.TimeoutDuration(),
		ReconnectDelay:    cfg.Loop.ReconnectDelayDuration(),
		StateInterval:     cfg.Loop.StateIntervalDuration(),
		DiscoveryPrefix:   cfg.DiscoveryPrefix,
		AvailabilityTopic: availability,
		Logger:            logger,
		Metrics:           m,
	})

	demo, err := newDemo(device, logger, entityOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	if err := d.Add(demo.entities()...); err != nil {
		return err
	}
	logger.Info("hamm: starting", "device", device.Identifier(), "transport", cfg.Transport,
		"broker", cfg.MQTT.Broker, "entities", len(d.Entities()))

	if cfg.MetricsListen != "" {
		server := &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("hamm: metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		logger.Info("hamm: serving metrics", "addr", cfg.MetricsListen)
	}

	go demo.runSensors(ctx, 30*time.Second, d.Submit)
	return d.Run(ctx)
}

func entityOptions(cfg *config.Config, logger *slog.Logger) []entity.Option {
	return []entity.Option{
		entity.WithTopicPrefix(cfg.TopicPrefix),
		entity.WithDiscoveryPrefix(cfg.DiscoveryPrefix),
		entity.WithLogger(logger),
		entity.WithOrigin(hass.OriginInfo{
			Name:            "ha-minimqtt",
			SoftwareVersion: version,
			SupportUrl:      "https://github.com/kuretru/ha-minimqtt",
		}),
	}
}

func newLogger(level string) *slog.Logger {
	parsed, err := config.ParseLogLevel(level)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v, falling back to info\n", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       parsed,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig() *config.Config {
	configFilePath := flag.String("config", "", "Config file path (default: search ./hamm.yaml, ~/.config/hamm, /etc/hamm)")
	flag.Parse()

	cfg := config.Default()
	path, err := config.FindConfig(*configFilePath)
	switch {
	case err == nil:
		if cfg, err = config.Load(path); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Load config file failed, %v\n", err)
			os.Exit(3)
		}
	case *configFilePath != "":
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Invalid environment, %v\n", err)
		os.Exit(3)
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Invalid config, %v\n", err)
		os.Exit(3)
	}
	return cfg
}
