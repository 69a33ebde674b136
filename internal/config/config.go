package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "WSLOAD"

const (
	KeyServerAddr              = "server.addr"
	KeyServerPath              = "server.path"
	KeyServerReadBufferSize    = "server.read_buffer_size"
	KeyServerWriteBufferSize   = "server.write_buffer_size"
	KeyServerHeartbeatInterval = "server.heartbeat_interval"
	KeyServerClientTimeout     = "server.client_timeout"
	KeyServerWriteTimeout      = "server.write_timeout"
	KeyFleetNumber             = "fleet.number"
	KeyFleetRounds             = "fleet.rounds"
	KeyFleetRest               = "fleet.rest"
	KeyFleetDialConcurrency    = "fleet.dial_concurrency"
	KeyClientURL               = "client.url"
	KeyClientHandshakeTimeout  = "client.handshake_timeout"
	KeyLogLevel                = "log.level"
	KeyLogFormat               = "log.format"
	KeyMetricsEnabled          = "metrics.enabled"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server  Server
	Fleet   Fleet
	Client  Client
	Log     Log
	Metrics Metrics
}

type Server struct {
	Addr              string
	Path              string
	ReadBufferSize    int
	WriteBufferSize   int
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	WriteTimeout      time.Duration
}

type Fleet struct {
	Number          int
	Rounds          int
	Rest            time.Duration
	DialConcurrency int
}

type Client struct {
	// URL пустой - клиенты идут на встроенный сервер.
	URL              string
	HandshakeTimeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

type Metrics struct {
	Enabled bool
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:              "127.0.0.1:8080",
			Path:              "/ws/",
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			HeartbeatInterval: 30 * time.Second,
			ClientTimeout:     60 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		Fleet: Fleet{
			Number: 200,
			Rounds: 10,
			Rest:   5 * time.Second,
		},
		Client: Client{
			HandshakeTimeout: 45 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}

func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault(KeyServerAddr, d.Server.Addr)
	v.SetDefault(KeyServerPath, d.Server.Path)
	v.SetDefault(KeyServerReadBufferSize, d.Server.ReadBufferSize)
	v.SetDefault(KeyServerWriteBufferSize, d.Server.WriteBufferSize)
	v.SetDefault(KeyServerHeartbeatInterval, d.Server.HeartbeatInterval)
	v.SetDefault(KeyServerClientTimeout, d.Server.ClientTimeout)
	v.SetDefault(KeyServerWriteTimeout, d.Server.WriteTimeout)
	v.SetDefault(KeyFleetNumber, d.Fleet.Number)
	v.SetDefault(KeyFleetRounds, d.Fleet.Rounds)
	v.SetDefault(KeyFleetRest, d.Fleet.Rest)
	v.SetDefault(KeyFleetDialConcurrency, d.Fleet.DialConcurrency)
	v.SetDefault(KeyClientURL, d.Client.URL)
	v.SetDefault(KeyClientHandshakeTimeout, d.Client.HandshakeTimeout)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
	v.SetDefault(KeyMetricsEnabled, d.Metrics.Enabled)
}

// Load собирает конфигурацию по слоям: флаги (уже привязанные к v), переменные
// окружения WSLOAD_*, TOML файл configFile (если задан), значения по умолчанию.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("toml")

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Server: Server{
			Addr:              v.GetString(KeyServerAddr),
			Path:              v.GetString(KeyServerPath),
			ReadBufferSize:    v.GetInt(KeyServerReadBufferSize),
			WriteBufferSize:   v.GetInt(KeyServerWriteBufferSize),
			HeartbeatInterval: v.GetDuration(KeyServerHeartbeatInterval),
			ClientTimeout:     v.GetDuration(KeyServerClientTimeout),
			WriteTimeout:      v.GetDuration(KeyServerWriteTimeout),
		},
		Fleet: Fleet{
			Number:          v.GetInt(KeyFleetNumber),
			Rounds:          v.GetInt(KeyFleetRounds),
			Rest:            v.GetDuration(KeyFleetRest),
			DialConcurrency: v.GetInt(KeyFleetDialConcurrency),
		},
		Client: Client{
			URL:              v.GetString(KeyClientURL),
			HandshakeTimeout: v.GetDuration(KeyClientHandshakeTimeout),
		},
		Log: Log{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
		Metrics: Metrics{
			Enabled: v.GetBool(KeyMetricsEnabled),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}

	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path must start with '/', got %q", c.Server.Path))
	}

	if c.Server.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("server.heartbeat_interval must be positive, got %s", c.Server.HeartbeatInterval))
	}

	if c.Server.ClientTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.client_timeout must be positive, got %s", c.Server.ClientTimeout))
	}

	if c.Fleet.Number <= 0 {
		errs = append(errs, fmt.Errorf("fleet.number must be positive, got %d", c.Fleet.Number))
	}

	if c.Fleet.Rounds < 0 {
		errs = append(errs, fmt.Errorf("fleet.rounds must be non-negative, got %d", c.Fleet.Rounds))
	}

	if c.Fleet.Rest < 0 {
		errs = append(errs, fmt.Errorf("fleet.rest must be non-negative, got %s", c.Fleet.Rest))
	}

	if c.Fleet.DialConcurrency < 0 {
		errs = append(errs, fmt.Errorf("fleet.dial_concurrency must be non-negative, got %d", c.Fleet.DialConcurrency))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}
