package config

import (
	"fmt"

	toml "github.com/pelletier/go-toml/v2"
)

// fileSchema повторяет раскладку TOML файла; длительности хранятся строками
// ("30s"), как их понимает viper.
type fileSchema struct {
	Server  serverSchema  `toml:"server"`
	Fleet   fleetSchema   `toml:"fleet"`
	Client  clientSchema  `toml:"client"`
	Log     logSchema     `toml:"log"`
	Metrics metricsSchema `toml:"metrics"`
}

type serverSchema struct {
	Addr              string `toml:"addr"`
	Path              string `toml:"path"`
	ReadBufferSize    int    `toml:"read_buffer_size"`
	WriteBufferSize   int    `toml:"write_buffer_size"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	ClientTimeout     string `toml:"client_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
}

type fleetSchema struct {
	Number          int    `toml:"number"`
	Rounds          int    `toml:"rounds"`
	Rest            string `toml:"rest"`
	DialConcurrency int    `toml:"dial_concurrency"`
}

type clientSchema struct {
	URL              string `toml:"url"`
	HandshakeTimeout string `toml:"handshake_timeout"`
}

type logSchema struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type metricsSchema struct {
	Enabled bool `toml:"enabled"`
}

func toSchema(c Config) fileSchema {
	return fileSchema{
		Server: serverSchema{
			Addr:              c.Server.Addr,
			Path:              c.Server.Path,
			ReadBufferSize:    c.Server.ReadBufferSize,
			WriteBufferSize:   c.Server.WriteBufferSize,
			HeartbeatInterval: c.Server.HeartbeatInterval.String(),
			ClientTimeout:     c.Server.ClientTimeout.String(),
			WriteTimeout:      c.Server.WriteTimeout.String(),
		},
		Fleet: fleetSchema{
			Number:          c.Fleet.Number,
			Rounds:          c.Fleet.Rounds,
			Rest:            c.Fleet.Rest.String(),
			DialConcurrency: c.Fleet.DialConcurrency,
		},
		Client: clientSchema{
			URL:              c.Client.URL,
			HandshakeTimeout: c.Client.HandshakeTimeout.String(),
		},
		Log: logSchema{
			Level:  c.Log.Level,
			Format: c.Log.Format,
		},
		Metrics: metricsSchema{
			Enabled: c.Metrics.Enabled,
		},
	}
}

// Render выводит конфигурацию в формате, который принимает --config.
func Render(c Config) ([]byte, error) {
	data, err := toml.Marshal(toSchema(c))
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	return data, nil
}
