// Package fleet управляет клиентской стороной нагрузочного теста по раундам:
// каждый раунд параллельно открывает пачку соединений, дожидается результата
// всех попыток, отключает открытые и выдерживает паузу перед следующим.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidConfig = errors.New("invalid fleet config")
	ErrRoundFailed   = errors.New("round failed")

	errNilConn = errors.New("connector returned no connection")
)

// Conn - открытое соединение. Disconnect не блокирует и допускает
// повторный вызов.
type Conn interface {
	Disconnect()
}

// Connector открывает одно соединение. Ошибка касается только этой попытки.
type Connector func(ctx context.Context) (Conn, error)

type Config struct {
	ConnectionsPerRound int
	Rounds              int
	InterRoundRest      time.Duration
	// DialConcurrency ограничивает число одновременных попыток, 0 - без ограничений.
	DialConcurrency int
	Logger          *slog.Logger
	Metrics         *Metrics
}

func DefaultConfig() Config {
	return Config{
		ConnectionsPerRound: 200,
		Rounds:              10,
		InterRoundRest:      5 * time.Second,
		Logger:              slog.Default(),
	}
}

func (c Config) Validate() error {
	switch {
	case c.ConnectionsPerRound <= 0:
		return fmt.Errorf("%w: connections per round must be positive, got %d", ErrInvalidConfig, c.ConnectionsPerRound)
	case c.Rounds < 0:
		return fmt.Errorf("%w: rounds must be non-negative, got %d", ErrInvalidConfig, c.Rounds)
	case c.InterRoundRest < 0:
		return fmt.Errorf("%w: inter-round rest must be non-negative, got %s", ErrInvalidConfig, c.InterRoundRest)
	case c.DialConcurrency < 0:
		return fmt.Errorf("%w: dial concurrency must be non-negative, got %d", ErrInvalidConfig, c.DialConcurrency)
	}

	return nil
}

type RoundResult struct {
	Index     int
	Attempted int
	Opened    int
	Failed    int
	Duration  time.Duration
}

type Orchestrator struct {
	cfg     Config
	connect Connector
	logger  *slog.Logger
}

func New(cfg Config, connect Connector) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if connect == nil {
		return nil, fmt.Errorf("%w: connector is required", ErrInvalidConfig)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		cfg:     cfg,
		connect: connect,
		logger:  cfg.Logger,
	}, nil
}

// Run выполняет раунды строго последовательно: раунд k+1 начинается только
// после того, как всем соединениям раунда k отправлен Disconnect и прошла пауза.
func (o *Orchestrator) Run(ctx context.Context) ([]RoundResult, error) {
	o.logger.Info("starting stress test",
		"clients_per_round", o.cfg.ConnectionsPerRound,
		"rounds", o.cfg.Rounds,
		"rest", o.cfg.InterRoundRest,
	)

	results := make([]RoundResult, 0, o.cfg.Rounds)

	for index := range o.cfg.Rounds {
		result, err := o.RunRound(ctx, index)
		results = append(results, result)

		if err != nil {
			return results, err
		}

		if index == o.cfg.Rounds-1 {
			break
		}

		o.logger.Info("finished, resting", "round", index, "rest", o.cfg.InterRoundRest)

		if err := o.rest(ctx); err != nil {
			return results, err
		}
	}

	o.logger.Info("finished all rounds", "rounds", len(results))

	return results, nil
}

type outcome struct {
	index int
	conn  Conn
	err   error
}

// RunRound открывает ConnectionsPerRound соединений параллельно, ждёт все
// попытки и отключает открытые. Ошибка раунда - только если не открылось
// ни одного соединения.
func (o *Orchestrator) RunRound(ctx context.Context, index int) (RoundResult, error) {
	start := time.Now()
	n := o.cfg.ConnectionsPerRound

	o.logger.Info("connecting clients", "round", index, "clients", n)

	outcomes := make(chan outcome, n)

	var g errgroup.Group
	if o.cfg.DialConcurrency > 0 {
		g.SetLimit(o.cfg.DialConcurrency)
	}

	for i := range n {
		g.Go(func() error {
			conn, err := o.connect(ctx)
			if err == nil && conn == nil {
				err = errNilConn
			}

			outcomes <- outcome{index: i, conn: conn, err: err}

			return nil
		})
	}

	_ = g.Wait()
	close(outcomes)

	conns := make([]Conn, n)
	failed := 0

	for oc := range outcomes {
		if oc.err != nil {
			failed++
			o.cfg.Metrics.connectFailed()
			o.logger.Error("failed to connect client", "round", index, "client", oc.index, "error", oc.err)

			continue
		}

		o.cfg.Metrics.connectOpened()
		conns[oc.index] = oc.conn
	}

	opened := conns[:0]
	for _, conn := range conns {
		if conn != nil {
			opened = append(opened, conn)
		}
	}

	o.logger.Info("disconnecting", "round", index, "clients", len(opened))

	for _, conn := range opened {
		conn.Disconnect()
		o.cfg.Metrics.disconnected()
	}

	result := RoundResult{
		Index:     index,
		Attempted: n,
		Opened:    len(opened),
		Failed:    failed,
		Duration:  time.Since(start),
	}
	o.cfg.Metrics.roundFinished(result)

	o.logger.Info("round finished",
		"round", index,
		"opened", result.Opened,
		"failed", result.Failed,
		"duration", result.Duration,
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if result.Opened == 0 {
		return result, fmt.Errorf("%w: round %d: all %d connection attempts failed", ErrRoundFailed, index, n)
	}

	return result, nil
}

func (o *Orchestrator) rest(ctx context.Context) error {
	if o.cfg.InterRoundRest <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(o.cfg.InterRoundRest)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
