package ws_test

import (
	"sync"
	"testing"
	"time"

	"github.com/LLIEPJIOK/wsload/pkg/ws"
)

// fakeChannel - FrameChannel в памяти: входящие кадры подаёт тест, исходящие
// запоминаются.
type fakeChannel struct {
	mu         sync.Mutex
	frames     chan ws.Frame
	sent       []ws.Frame
	closed     bool
	closeCalls int
}

var _ ws.FrameChannel = (*fakeChannel)(nil)

func newFakeChannel() *fakeChannel {
	return &fakeChannel{frames: make(chan ws.Frame, 16)}
}

func (f *fakeChannel) Send(frame ws.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ws.ErrConnectionClosed
	}

	f.sent = append(f.sent, frame)

	return nil
}

func (f *fakeChannel) Frames() <-chan ws.Frame {
	return f.frames
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.closeCalls++

	return nil
}

func (f *fakeChannel) Sent() []ws.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]ws.Frame(nil), f.sent...)
}

func (f *fakeChannel) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closeCalls
}

// fakeClock - управляемые часы для проверок heartbeat.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting: %s", msg)
}
