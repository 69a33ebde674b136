package cmd

import (
	"fmt"

	"github.com/LLIEPJIOK/wsload/internal/config"
	"github.com/spf13/cobra"
)

// flagKeys связывает имена флагов с ключами конфигурации.
var flagKeys = map[string]string{
	"addr":               config.KeyServerAddr,
	"path":               config.KeyServerPath,
	"heartbeat-interval": config.KeyServerHeartbeatInterval,
	"client-timeout":     config.KeyServerClientTimeout,
	"number":             config.KeyFleetNumber,
	"rounds":             config.KeyFleetRounds,
	"rest":               config.KeyFleetRest,
	"dial-concurrency":   config.KeyFleetDialConcurrency,
	"url":                config.KeyClientURL,
	"handshake-timeout":  config.KeyClientHandshakeTimeout,
	"log-level":          config.KeyLogLevel,
	"log-format":         config.KeyLogFormat,
	"metrics":            config.KeyMetricsEnabled,
}

func addServerFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()

	f.String("addr", d.Server.Addr, "host:port to listen on")
	f.String("path", d.Server.Path, "WebSocket upgrade route")
	f.Duration("heartbeat-interval", d.Server.HeartbeatInterval, "how often sessions check client liveness")
	f.Duration("client-timeout", d.Server.ClientTimeout, "how long a session waits for ping/pong before closing")
}

func addFleetFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()

	f.IntP("number", "n", d.Fleet.Number, "number of clients to generate per round")
	f.IntP("rounds", "r", d.Fleet.Rounds, "number of rounds")
	f.Duration("rest", d.Fleet.Rest, "pause between rounds")
	f.Int("dial-concurrency", d.Fleet.DialConcurrency, "max in-flight connect attempts, 0 for unbounded")
}

func addClientFlags(cmd *cobra.Command) {
	d := config.Default()
	f := cmd.Flags()

	f.String("url", d.Client.URL, "WebSocket endpoint to load, e.g. ws://127.0.0.1:8080/ws/")
	f.Duration("handshake-timeout", d.Client.HandshakeTimeout, "WebSocket handshake timeout")
}

// loadConfig привязывает флаги выполняемой команды к viper и читает
// итоговую конфигурацию.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (config.Config, error) {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}

		if err := opts.v.BindPFlag(key, flag); err != nil {
			return config.Config{}, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return config.Load(opts.v, opts.configFile)
}
