package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type SessionState int32

const (
	SessionActive SessionState = iota
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// HeartbeatConfig задаёт, как часто сессия проверяет живость клиента и
// сколько можно ждать ping/pong, прежде чем считать его мёртвым.
type HeartbeatConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  60 * time.Second,
	}
}

type SessionConfig struct {
	Heartbeat HeartbeatConfig
	Logger    *slog.Logger
	Metrics   *Metrics
	Now       func() time.Time
}

// Session - серверный автомат одного соединения: эхо данных, ответы на ping
// и контроль живости. Состояние принадлежит горутине, выполняющей Run.
type Session struct {
	ch        FrameChannel
	heartbeat HeartbeatConfig
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time

	lastHeartbeat time.Time
	state         atomic.Int32
	releaseOnce   sync.Once
}

func NewSession(ch FrameChannel, cfg SessionConfig) *Session {
	defaults := DefaultHeartbeatConfig()
	if cfg.Heartbeat.Interval <= 0 {
		cfg.Heartbeat.Interval = defaults.Interval
	}

	if cfg.Heartbeat.Timeout <= 0 {
		cfg.Heartbeat.Timeout = defaults.Timeout
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Session{
		ch:        ch,
		heartbeat: cfg.Heartbeat,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	s.lastHeartbeat = s.now()
	s.metrics.sessionOpened()

	return s
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) LastHeartbeat() time.Time {
	return s.lastHeartbeat
}

// Run обрабатывает входящие кадры и тики heartbeat до закрытия сессии.
// Возвращает nil при штатном закрытии, иначе причину завершения.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.heartbeat.Interval)
	defer ticker.Stop()

	frames := s.ch.Frames()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case frame, ok := <-frames:
			if !ok {
				s.close(closeReasonEOF)
				return nil
			}

			if err := s.HandleFrame(frame); err != nil || s.State() == SessionClosed {
				return err
			}

		case <-ticker.C:
			if err := s.CheckHeartbeat(s.now()); err != nil || s.State() == SessionClosed {
				return err
			}
		}
	}
}

// HandleFrame применяет один входящий кадр. После закрытия сессии кадры
// игнорируются.
func (s *Session) HandleFrame(frame Frame) error {
	if s.State() != SessionActive {
		return nil
	}

	switch frame.Kind {
	case FramePing:
		s.lastHeartbeat = s.now()
		return s.send(NewPong(frame.Payload))

	case FramePong:
		s.lastHeartbeat = s.now()
		return nil

	case FrameText, FrameBinary:
		if err := s.send(Frame{Kind: frame.Kind, Payload: frame.Payload}); err != nil {
			return err
		}

		s.metrics.frameEchoed()

		return nil

	case FrameClose:
		s.state.Store(int32(SessionClosing))

		if err := s.ch.Send(NewClose(frame.CloseCode, frame.Reason())); err != nil {
			s.logger.Debug("failed to acknowledge close", "error", err)
		}

		s.close(closeReasonPeer)

		return nil

	case FrameError:
		s.logger.Error("websocket transport error", "error", frame.Err)
		s.close(closeReasonTransport)

		return frame.Err

	default:
		err := fmt.Errorf("%w: unexpected %s frame", ErrProtocol, frame.Kind)
		s.logger.Error("closing session", "error", err)
		s.close(closeReasonProtocol)

		return err
	}
}

// CheckHeartbeat закрывает сессию, если с последнего ping/pong прошло больше
// Timeout, иначе отправляет пустой ping.
func (s *Session) CheckHeartbeat(now time.Time) error {
	if s.State() != SessionActive {
		return nil
	}

	if since := now.Sub(s.lastHeartbeat); since > s.heartbeat.Timeout {
		s.logger.Error("websocket client heartbeat failed, disconnecting",
			"since_last_heartbeat", since,
			"timeout", s.heartbeat.Timeout,
		)
		s.close(closeReasonTimeout)

		// не отправляем ping
		return ErrLivenessTimeout
	}

	return s.send(NewPing(nil))
}

func (s *Session) send(frame Frame) error {
	if err := s.ch.Send(frame); err != nil {
		s.logger.Error("failed to send frame", "kind", frame.Kind.String(), "error", err)
		s.close(closeReasonTransport)

		return err
	}

	return nil
}

func (s *Session) shutdown() {
	if s.State() != SessionActive {
		return
	}

	s.state.Store(int32(SessionClosing))

	if err := s.ch.Send(NewClose(websocket.CloseGoingAway, "server shutting down")); err != nil {
		s.logger.Debug("failed to send close", "error", err)
	}

	s.close(closeReasonShutdown)
}

func (s *Session) close(reason string) {
	s.releaseOnce.Do(func() {
		s.state.Store(int32(SessionClosed))

		if err := s.ch.Close(); err != nil {
			s.logger.Debug("failed to release channel", "error", err)
		}

		s.metrics.sessionClosed(reason)
	})
}
