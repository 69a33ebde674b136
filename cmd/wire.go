package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/LLIEPJIOK/wsload/internal/config"
	"github.com/LLIEPJIOK/wsload/internal/logging"
	"github.com/LLIEPJIOK/wsload/internal/rlimit"
	"github.com/LLIEPJIOK/wsload/pkg/fleet"
	"github.com/LLIEPJIOK/wsload/pkg/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	tls      *tls.Config
}

func wireApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	tlsCfg, err := ws.TLSConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("wire tls: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		tls:    tlsCfg,
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return a, nil
}

func (a *app) newServer() *ws.Server {
	cfg := ws.DefaultServerConfig()
	cfg.Path = a.cfg.Server.Path
	cfg.ReadBufferSize = a.cfg.Server.ReadBufferSize
	cfg.WriteBufferSize = a.cfg.Server.WriteBufferSize
	cfg.WriteTimeout = a.cfg.Server.WriteTimeout
	cfg.Heartbeat = ws.HeartbeatConfig{
		Interval: a.cfg.Server.HeartbeatInterval,
		Timeout:  a.cfg.Server.ClientTimeout,
	}
	cfg.Logger = a.logger.With("component", "server")

	if ws.HasServerCertificate(a.tls) {
		cfg.TLS = a.tls
	}

	if a.registry != nil {
		cfg.Metrics = ws.NewMetrics(a.registry)
		cfg.Gatherer = a.registry
	}

	return ws.NewServer(cfg)
}

func (a *app) newFleet(url string) (*fleet.Orchestrator, error) {
	logger := a.logger.With("component", "fleet")

	clientCfg := ws.DefaultClientConfig(url)
	clientCfg.HandshakeTimeout = a.cfg.Client.HandshakeTimeout
	clientCfg.WriteTimeout = a.cfg.Server.WriteTimeout
	clientCfg.TLS = a.tls
	clientCfg.Logger = logger

	cfg := fleet.Config{
		ConnectionsPerRound: a.cfg.Fleet.Number,
		Rounds:              a.cfg.Fleet.Rounds,
		InterRoundRest:      a.cfg.Fleet.Rest,
		DialConcurrency:     a.cfg.Fleet.DialConcurrency,
		Logger:              logger,
	}

	if a.registry != nil {
		cfg.Metrics = fleet.NewMetrics(a.registry)
	}

	return fleet.New(cfg, dialer(clientCfg))
}

func dialer(cfg ws.ClientConfig) fleet.Connector {
	return func(ctx context.Context) (fleet.Conn, error) {
		conn, err := ws.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}

		return conn, nil
	}
}

func (a *app) raiseFileLimit() {
	want := rlimit.Want(a.cfg.Fleet.Number)

	got, err := rlimit.RaiseOpenFiles(want)
	if err != nil {
		a.logger.Warn("failed to raise open file limit", "want", want, "error", err)
		return
	}

	if got < want {
		a.logger.Warn("open file limit is lower than needed", "want", want, "limit", got)
	}
}
