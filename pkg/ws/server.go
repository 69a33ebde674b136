package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultPath     = "/ws/"
	shutdownTimeout = 15 * time.Second
)

type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	Path            string
	Heartbeat       HeartbeatConfig
	WriteTimeout    time.Duration
	TLS             *tls.Config
	Logger          *slog.Logger
	Metrics         *Metrics
	// Gatherer включает /metrics, если задан.
	Gatherer prometheus.Gatherer
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
		Path:            DefaultPath,
		Heartbeat:       DefaultHeartbeatConfig(),
		WriteTimeout:    defaultWriteTimeout,
		Logger:          slog.Default(),
	}
}

// Server принимает WebSocket соединения и запускает на каждое свою Session.
type Server struct {
	upgrader websocket.Upgrader
	cfg      ServerConfig
	logger   *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
	active   atomic.Int64
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		cfg:     cfg,
		logger:  cfg.Logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()

		return
	}

	s.sessions.Add(1)
	s.mu.Unlock()

	defer s.sessions.Done()

	s.active.Add(1)
	defer s.active.Add(-1)

	logger := s.logger.With("remote_addr", conn.RemoteAddr().String())
	logger.Info("client connected")
	defer logger.Info("client disconnected")

	session := NewSession(NewConn(conn, s.cfg.WriteTimeout, logger), SessionConfig{
		Heartbeat: s.cfg.Heartbeat,
		Logger:    logger,
		Metrics:   s.cfg.Metrics,
	})

	if err := session.Run(s.baseCtx); err != nil {
		logger.Debug("session terminated", "error", err)
	}
}

// Bind захватывает адрес для прослушивания. Ошибка оборачивает ErrBind:
// без слушателя обслуживать сессии невозможно.
func (s *Server) Bind(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrBind, addr, err)
	}

	return ln, nil
}

// URL возвращает адрес маршрута апгрейда на слушателе ln.
func (s *Server) URL(ln net.Listener) string {
	scheme := "ws"
	if s.cfg.TLS != nil {
		scheme = "wss"
	}

	return scheme + "://" + ln.Addr().String() + s.cfg.Path
}

// Serve обслуживает ln до отмены ctx, затем прекращает приём соединений,
// закрывает все живые сессии и освобождает слушатель.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)

	if s.cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Handler:           mux,
		TLSConfig:         s.cfg.TLS,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)

	go func() {
		if s.cfg.TLS != nil {
			errCh <- srv.ServeTLS(ln, "", "")
			return
		}

		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("server listening", "url", s.URL(ln))

	select {
	case err := <-errCh:
		s.closeSessions()

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)

	case <-ctx.Done():
	}

	s.logger.Info("shutting down server", "active_sessions", s.ActiveSessions())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.closeSessions()
	<-errCh

	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")

	return nil
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.sessions.Wait()
}
