package ws

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
)

// FrameChannel - двунаправленный канал кадров поверх одного соединения.
// Входящие кадры приходят строго в порядке получения, канал Frames
// закрывается, когда соединение завершено.
type FrameChannel interface {
	Send(frame Frame) error
	Frames() <-chan Frame
	Close() error
}

const defaultWriteTimeout = 10 * time.Second

// Conn реализует FrameChannel поверх gorilla/websocket. Запись ведёт одна
// горутина, потому что gorilla допускает только одного конкурентного писателя.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	frames chan Frame

	mu      sync.Mutex
	pending *queue.Queue
	closing bool

	wakeup     chan struct{}
	quit       chan struct{}
	writerDone chan struct{}

	released  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ FrameChannel = (*Conn)(nil)

func NewConn(conn *websocket.Conn, writeTimeout time.Duration, logger *slog.Logger) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       logger,
		frames:       make(chan Frame),
		pending:      queue.New(),
		wakeup:       make(chan struct{}, 1),
		quit:         make(chan struct{}),
		writerDone:   make(chan struct{}),
	}

	go c.readLoop()
	go c.writeLoop()

	return c
}

func (c *Conn) Frames() <-chan Frame {
	return c.frames
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Send(frame Frame) error {
	if _, ok := frame.messageType(); !ok {
		return fmt.Errorf("%w: cannot send %s frame", ErrProtocol, frame.Kind)
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrConnectionClosed
	}

	c.pending.Add(frame)
	c.mu.Unlock()

	select {
	case c.wakeup <- struct{}{}:
	default:
	}

	return nil
}

// Close отклоняет новые кадры, дожидается отправки уже поставленных в очередь
// и только затем закрывает сокет. Повторные вызовы ничего не делают.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		close(c.quit)
		<-c.writerDone

		c.released.Store(true)
		c.closeErr = c.conn.Close()
	})

	return c.closeErr
}

func (c *Conn) readLoop() {
	defer close(c.frames)

	closeReceived := false

	// Управляющие кадры отдаём наверх, отвечают на них сами автоматы.
	c.conn.SetPingHandler(func(appData string) error {
		c.deliver(NewPing([]byte(appData)))
		return nil
	})
	c.conn.SetPongHandler(func(appData string) error {
		c.deliver(NewPong([]byte(appData)))
		return nil
	})
	c.conn.SetCloseHandler(func(code int, text string) error {
		closeReceived = true
		c.deliver(NewClose(code, text))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if closeReceived || c.released.Load() {
				return
			}

			c.deliver(NewErrorFrame(err))
			return
		}

		c.deliver(frameFromMessage(messageType, data))
	}
}

func (c *Conn) deliver(frame Frame) {
	select {
	case c.frames <- frame:
	case <-c.quit:
	}
}

func (c *Conn) writeLoop() {
	defer close(c.writerDone)

	for {
		select {
		case <-c.wakeup:
			if !c.flush() {
				return
			}
		case <-c.quit:
			c.flush()
			return
		}
	}
}

func (c *Conn) next() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending.Length() == 0 {
		return Frame{}, false
	}

	return c.pending.Remove().(Frame), true
}

func (c *Conn) flush() bool {
	for {
		frame, ok := c.next()
		if !ok {
			return true
		}

		if err := c.write(frame); err != nil {
			c.logger.Debug("write failed", "kind", frame.Kind.String(), "error", err)

			c.mu.Lock()
			c.closing = true
			c.mu.Unlock()

			return false
		}
	}
}

func (c *Conn) write(frame Frame) error {
	messageType, _ := frame.messageType()
	deadline := time.Now().Add(c.writeTimeout)

	switch frame.Kind {
	case FrameClose:
		code := frame.CloseCode
		if code == 0 {
			code = websocket.CloseNormalClosure
		}

		msg := websocket.FormatCloseMessage(code, frame.Reason())

		return c.conn.WriteControl(websocket.CloseMessage, msg, deadline)

	case FramePing, FramePong:
		return c.conn.WriteControl(messageType, frame.Payload, deadline)

	default:
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}

		return c.conn.WriteMessage(messageType, frame.Payload)
	}
}
