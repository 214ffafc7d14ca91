// Copyright 2026 The Labbox Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/labbox-foundation/labbox"
	"github.com/labbox-foundation/labbox/lib/config"
)

// globalFlags are accepted by every command that talks to a backend.
type globalFlags struct {
	ConfigPath   string
	WebSocketURL string
	HostSocket   string
	FeedURL      string
	SHA1URL      string
	MetricsAddr  string
	Timeout      time.Duration
}

func (g *globalFlags) register(flagSet *pflag.FlagSet, defaultTimeout time.Duration) {
	flagSet.StringVar(&g.ConfigPath, "config", "", "config file (YAML or JSONC); default $"+config.EnvConfig)
	flagSet.StringVar(&g.WebSocketURL, "websocket-url", "", "backend WebSocket endpoint, e.g. ws://localhost:15308")
	flagSet.StringVar(&g.HostSocket, "host-socket", "", "host bridge Unix socket; selects host mode")
	flagSet.StringVar(&g.FeedURL, "feed-url", "", "feed API base URL, e.g. http://localhost:15309/api")
	flagSet.StringVar(&g.SHA1URL, "sha1-url", "", "sha1 document endpoint base URL")
	flagSet.StringVar(&g.MetricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address")
	flagSet.DurationVar(&g.Timeout, "timeout", defaultTimeout, "give up after this long (0 waits forever)")
}

// loadConfig resolves the configuration: file, then environment, then
// flags.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case g.ConfigPath != "":
		cfg, err = config.LoadFile(g.ConfigPath)
	case os.Getenv(config.EnvConfig) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.ApplyEnvironment()
	}
	if err != nil {
		return nil, err
	}

	if g.WebSocketURL != "" {
		cfg.Mode = config.ModeWebSocket
		cfg.WebSocketURL = g.WebSocketURL
	}
	if g.HostSocket != "" {
		cfg.Mode = config.ModeHost
		cfg.HostSocket = g.HostSocket
	}
	if g.FeedURL != "" {
		cfg.FeedURL = g.FeedURL
	}
	if g.SHA1URL != "" {
		cfg.SHA1URL = g.SHA1URL
	}
	return cfg, nil
}

// commandContext returns the command context, ended by SIGINT, SIGTERM or
// the --timeout.
func (g *globalFlags) commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if g.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// newClient assembles a client without connecting. The returned
// function releases it and stops the metrics server.
func (e *environment) newClient(globals *globalFlags) (*labbox.Client, func(), error) {
	cfg, err := globals.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	options := labbox.Options{Logger: e.logger}
	stopMetrics := func() {}
	if globals.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		options.Registerer = registry
		stopMetrics, err = serveMetrics(globals.MetricsAddr, registry, e.logger)
		if err != nil {
			return nil, nil, err
		}
	}
	client, err := labbox.New(cfg, options)
	if err != nil {
		stopMetrics()
		return nil, nil, err
	}
	return client, func() {
		if err := client.Close(); err != nil {
			e.logger.Debug("closing client", "error", err)
		}
		stopMetrics()
	}, nil
}

// connect is newClient followed by Start.
func (e *environment) connect(ctx context.Context, globals *globalFlags) (*labbox.Client, func(), error) {
	client, release, err := e.newClient(globals)
	if err != nil {
		return nil, nil, err
	}
	client.Start(ctx)
	return client, release, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", listener.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}, nil
}
