package fleet_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LLIEPJIOK/wsload/pkg/fleet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind string
	at   time.Time
}

// recorder запоминает порядок подключений и отключений всех соединений.
type recorder struct {
	mu     sync.Mutex
	events []event
	ids    atomic.Int64
	fail   func(id int64) bool
}

type recordedConn struct {
	r           *recorder
	disconnects atomic.Int32
}

func (c *recordedConn) Disconnect() {
	c.disconnects.Add(1)
	c.r.record("disconnect")
}

func (r *recorder) record(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event{kind: kind, at: time.Now()})
}

func (r *recorder) connect(_ context.Context) (fleet.Conn, error) {
	id := r.ids.Add(1)
	if r.fail != nil && r.fail(id) {
		r.record("failed")
		return nil, errors.New("connection refused")
	}

	r.record("connect")

	return &recordedConn{r: r}, nil
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}

	return out
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]event(nil), r.events...)
}

func quietConfig(n, rounds int, rest time.Duration) fleet.Config {
	return fleet.Config{
		ConnectionsPerRound: n,
		Rounds:              rounds,
		InterRoundRest:      rest,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func repeat(kind string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = kind
	}

	return out
}

func TestRun_RoundsAreStrictlySequential(t *testing.T) {
	rec := &recorder{}
	rest := 50 * time.Millisecond

	o, err := fleet.New(quietConfig(5, 2, rest), rec.connect)
	require.NoError(t, err)

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	var want []string
	for range 2 {
		want = append(want, repeat("connect", 5)...)
		want = append(want, repeat("disconnect", 5)...)
	}

	assert.Equal(t, want, rec.kinds())

	events := rec.snapshot()
	lastDisconnect := events[9].at
	nextConnect := events[10].at
	assert.GreaterOrEqual(t, nextConnect.Sub(lastDisconnect), rest, "rest between rounds")

	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, 5, r.Attempted)
		assert.Equal(t, 5, r.Opened)
		assert.Zero(t, r.Failed)
	}
}

func TestRun_NoRestAfterLastRound(t *testing.T) {
	rec := &recorder{}

	o, err := fleet.New(quietConfig(1, 1, time.Hour), rec.connect)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run waited for rest after the last round")
	}
}

func TestRun_PartialFailureIsNotFatal(t *testing.T) {
	rec := &recorder{fail: func(id int64) bool { return id == 42 }}

	o, err := fleet.New(quietConfig(200, 2, 0), rec.connect)
	require.NoError(t, err)

	results, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 199, results[0].Opened)
	assert.Equal(t, 1, results[0].Failed)
	assert.Equal(t, 200, results[1].Opened)

	disconnects := 0
	for _, k := range rec.kinds() {
		if k == "disconnect" {
			disconnects++
		}
	}

	assert.Equal(t, 399, disconnects)
}

func TestRun_AllAttemptsFailed(t *testing.T) {
	rec := &recorder{fail: func(int64) bool { return true }}

	o, err := fleet.New(quietConfig(3, 5, 0), rec.connect)
	require.NoError(t, err)

	results, err := o.Run(context.Background())
	require.ErrorIs(t, err, fleet.ErrRoundFailed)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Failed)
}

func TestRun_NilConnectionCountsAsFailure(t *testing.T) {
	connect := func(context.Context) (fleet.Conn, error) { return nil, nil }

	o, err := fleet.New(quietConfig(2, 1, 0), connect)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.ErrorIs(t, err, fleet.ErrRoundFailed)
}

func TestRun_CancelDuringRest(t *testing.T) {
	rec := &recorder{}

	o, err := fleet.New(quietConfig(2, 3, time.Hour), rec.connect)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	results, err := o.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"connect", "connect", "disconnect", "disconnect"}, rec.kinds())
}

func TestRunRound_DisconnectsEveryOpenedConnectionOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		conns []*recordedConn
	)

	rec := &recorder{}
	connect := func(ctx context.Context) (fleet.Conn, error) {
		c, err := rec.connect(ctx)
		if err != nil {
			return nil, err
		}

		mu.Lock()
		conns = append(conns, c.(*recordedConn))
		mu.Unlock()

		return c, nil
	}

	o, err := fleet.New(quietConfig(20, 1, 0), connect)
	require.NoError(t, err)

	result, err := o.RunRound(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Opened)

	for _, c := range conns {
		assert.EqualValues(t, 1, c.disconnects.Load())
	}
}

func TestRunRound_RespectsDialConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32

	connect := func(context.Context) (fleet.Conn, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)

		return &recordedConn{r: &recorder{}}, nil
	}

	cfg := quietConfig(30, 1, 0)
	cfg.DialConcurrency = 4

	o, err := fleet.New(cfg, connect)
	require.NoError(t, err)

	_, err = o.RunRound(context.Background(), 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestRunRound_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := &recorder{fail: func(id int64) bool { return id <= 2 }}

	cfg := quietConfig(10, 1, 0)
	cfg.Metrics = fleet.NewMetrics(reg)

	o, err := fleet.New(cfg, rec.connect)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	expected := `
# HELP wsload_fleet_connect_attempts_total Connection attempts by result.
# TYPE wsload_fleet_connect_attempts_total counter
wsload_fleet_connect_attempts_total{result="failed"} 2
wsload_fleet_connect_attempts_total{result="opened"} 8
# HELP wsload_fleet_connections_open Connections opened in the current round and not yet signalled to disconnect.
# TYPE wsload_fleet_connections_open gauge
wsload_fleet_connections_open 0
# HELP wsload_fleet_rounds_total Completed load rounds.
# TYPE wsload_fleet_rounds_total counter
wsload_fleet_rounds_total 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"wsload_fleet_connect_attempts_total", "wsload_fleet_connections_open", "wsload_fleet_rounds_total")
	assert.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*fleet.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*fleet.Config) {}},
		{name: "zero rounds", mutate: func(c *fleet.Config) { c.Rounds = 0 }},
		{name: "zero connections", mutate: func(c *fleet.Config) { c.ConnectionsPerRound = 0 }, wantErr: true},
		{name: "negative rounds", mutate: func(c *fleet.Config) { c.Rounds = -1 }, wantErr: true},
		{name: "negative rest", mutate: func(c *fleet.Config) { c.InterRoundRest = -time.Second }, wantErr: true},
		{name: "negative concurrency", mutate: func(c *fleet.Config) { c.DialConcurrency = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fleet.DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, fleet.ErrInvalidConfig)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestNew_RequiresConnector(t *testing.T) {
	_, err := fleet.New(fleet.DefaultConfig(), nil)
	assert.ErrorIs(t, err, fleet.ErrInvalidConfig)
}
