package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type ClientState int32

const (
	ClientConnecting ClientState = iota
	ClientOpen
	ClientClosed
)

func (s ClientState) String() string {
	switch s {
	case ClientConnecting:
		return "connecting"
	case ClientOpen:
		return "open"
	case ClientClosed:
		return "closed"
	default:
		return fmt.Sprintf("ClientState(%d)", int32(s))
	}
}

var errAlreadyConnecting = errors.New("connect already attempted")

type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	TLS              *tls.Config
	Logger           *slog.Logger
}

func DefaultClientConfig(wsURL string) ClientConfig {
	return ClientConfig{
		URL:              wsURL,
		HandshakeTimeout: 45 * time.Second,
		WriteTimeout:     defaultWriteTimeout,
		Logger:           slog.Default(),
	}
}

// ClientConnection - клиентский автомат: отвечает pong на ping сервера и
// завершается по Disconnect, закрытию со стороны сервера или ошибке транспорта.
type ClientConnection struct {
	cfg    ClientConfig
	logger *slog.Logger

	ch        FrameChannel
	state     atomic.Int32
	attempted atomic.Bool

	disconnect     chan struct{}
	disconnectOnce sync.Once
	done           chan struct{}
	doneOnce       sync.Once
}

func NewClientConnection(cfg ClientConfig) *ClientConnection {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ClientConnection{
		cfg:        cfg,
		logger:     cfg.Logger,
		disconnect: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Dial создаёт соединение и устанавливает его. При ошибке соединение
// не возвращается, ошибка оборачивает ErrConnectionEstablishment.
func Dial(ctx context.Context, cfg ClientConfig) (*ClientConnection, error) {
	c := NewClientConnection(cfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *ClientConnection) Connect(ctx context.Context) error {
	if !c.attempted.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %w", ErrConnectionEstablishment, errAlreadyConnecting)
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		c.fail()
		return fmt.Errorf("%w: invalid url: %w", ErrConnectionEstablishment, err)
	}

	// без HTTP_PROXY: нагрузка должна идти напрямую на сервер
	dialer := websocket.Dialer{
		Proxy:            nil,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		TLSClientConfig:  c.cfg.TLS,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		c.fail()
		return fmt.Errorf("%w: dial %s: %w", ErrConnectionEstablishment, u.String(), err)
	}

	c.logger.Debug("connected to server", "url", u.String())

	c.open(NewConn(conn, c.cfg.WriteTimeout, c.logger))

	return nil
}

// Attach переводит ещё не подключённое соединение в Open поверх готового
// канала.
func (c *ClientConnection) Attach(ch FrameChannel) error {
	if !c.attempted.CompareAndSwap(false, true) {
		return errAlreadyConnecting
	}

	c.open(ch)

	return nil
}

// Disconnect просит соединение закрыться и не ждёт результата. На уже
// закрытом соединении ничего не делает.
func (c *ClientConnection) Disconnect() {
	c.disconnectOnce.Do(func() {
		close(c.disconnect)
	})
}

func (c *ClientConnection) Done() <-chan struct{} {
	return c.done
}

func (c *ClientConnection) State() ClientState {
	return ClientState(c.state.Load())
}

func (c *ClientConnection) IsClosed() bool {
	return c.State() == ClientClosed
}

func (c *ClientConnection) open(ch FrameChannel) {
	c.ch = ch
	c.state.Store(int32(ClientOpen))

	go c.run()
}

func (c *ClientConnection) fail() {
	c.state.Store(int32(ClientClosed))
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *ClientConnection) run() {
	defer c.release()

	frames := c.ch.Frames()

	for {
		select {
		case <-c.disconnect:
			if err := c.ch.Send(NewClose(websocket.CloseNormalClosure, "client closing")); err != nil {
				c.logger.Debug("failed to send close", "error", err)
			}

			return

		case frame, ok := <-frames:
			if !ok {
				return
			}

			switch frame.Kind {
			case FramePing:
				if err := c.ch.Send(NewPong(frame.Payload)); err != nil {
					c.logger.Error("failed to send pong", "error", err)
					return
				}

			case FrameClose:
				if err := c.ch.Send(NewClose(frame.CloseCode, frame.Reason())); err != nil {
					c.logger.Debug("failed to acknowledge close", "error", err)
				}

				return

			case FrameError:
				c.logger.Error("error while reading websocket frame", "error", frame.Err)
				return

			default:
				// эхо сервера не проверяется
			}
		}
	}
}

func (c *ClientConnection) release() {
	c.state.Store(int32(ClientClosed))

	if err := c.ch.Close(); err != nil {
		c.logger.Debug("failed to close channel", "error", err)
	}

	c.doneOnce.Do(func() { close(c.done) })
}
