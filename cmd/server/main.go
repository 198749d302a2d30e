// Package main serves the per-network provider registry over HTTP: health and status
// checks, Prometheus metrics and token and gas price lookups.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/config"
	"github.com/yourorg/router-providers/internal/metrics"
	"github.com/yourorg/router-providers/internal/otel"
	"github.com/yourorg/router-providers/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	shutdownTracer := otel.InitTracer(cfg.OtelEndpoint, cfg.ServiceName)
	defer shutdownTracer()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.Safe(metrics.Multi{
		metrics.NewPrometheus(promRegistry, "router_providers"),
		metrics.Log{},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := registry.OptionsFromConfig(ctx, cfg, sink)
	if err != nil {
		logrus.Fatalf("Failed to prepare providers: %v", err)
	}
	bundles, err := registry.New(opts...).Build(ctx, cfg.Networks, cfg.Endpoints)
	if err != nil {
		logrus.Fatalf("Failed to build provider registry: %v", err)
	}
	defer bundles.Close()
	bundles.StartJanitors(ctx, cfg.Cache.SweepInterval)

	server := NewServer(cfg, bundles, promRegistry)
	if err := server.Run(ctx); err != nil {
		logrus.Errorf("Server stopped with error: %v", err)
	}
}
