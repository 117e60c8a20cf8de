package ble

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cortexcore/cortexd/pkg/framing"
)

// fakeConn is a scriptable Conn.
type fakeConn struct {
	notify chan []byte

	mu    sync.Mutex
	sends [][]byte
	once  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{notify: make(chan []byte, 16)}
}

func (f *fakeConn) Notifications() <-chan []byte { return f.notify }

func (f *fakeConn) Send(_ context.Context, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.sends = append(f.sends, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.notify) })
	return nil
}

func (f *fakeConn) drop() { f.Close() }

func (f *fakeConn) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sends...)
}

// fakeLink hands out queued connections.
type fakeLink struct {
	mu    sync.Mutex
	queue []*fakeConn
}

func (l *fakeLink) push(c *fakeConn) {
	l.mu.Lock()
	l.queue = append(l.queue, c)
	l.mu.Unlock()
}

func (l *fakeLink) Connect(ctx context.Context) (Conn, error) {
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			c := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return c, nil
		}
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func newTestClient(t *testing.T, link Link, discovery func() (string, bool)) *Client {
	t.Helper()
	c := NewClient(Config{
		Link:              link,
		Discovery:         discovery,
		ReconnectInterval: time.Millisecond,
		Logger:            slog.New(slog.DiscardHandler),
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func waitEvent(t *testing.T, c *Client, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", kind)
		}
	}
}

func TestFragmentedNotificationsFrameOnce(t *testing.T) {
	link := &fakeLink{}
	conn := newFakeConn()
	link.push(conn)

	c := newTestClient(t, link, nil)
	c.Start(context.Background())
	waitEvent(t, c, EventConnected)

	for _, frag := range []string{"CMD:", "pi", "ng\n"} {
		conn.notify <- []byte(frag)
	}
	ev := waitEvent(t, c, EventMessage)
	if ev.Line != "CMD:ping" {
		t.Fatalf("line = %q", ev.Line)
	}
}

func TestSplitterResetAcrossReconnect(t *testing.T) {
	link := &fakeLink{}
	first := newFakeConn()
	second := newFakeConn()
	link.push(first)
	link.push(second)

	c := newTestClient(t, link, nil)
	c.Start(context.Background())
	waitEvent(t, c, EventConnected)

	// Half a message, then the link drops.
	first.notify <- []byte("CMD:sta")
	first.drop()
	waitEvent(t, c, EventDisconnected)
	waitEvent(t, c, EventConnected)

	// The tail of the old message must not merge with the new frame.
	second.notify <- []byte("tus\nCMD:ping\n")
	if ev := waitEvent(t, c, EventMessage); ev.Line != "tus" {
		t.Fatalf("first line after reconnect = %q", ev.Line)
	}
	if ev := waitEvent(t, c, EventMessage); ev.Line != "CMD:ping" {
		t.Fatalf("second line = %q", ev.Line)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	link := &fakeLink{}
	c := newTestClient(t, link, nil)
	c.Start(context.Background())

	if err := c.Send(context.Background(), "CMD:pong"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestDiscoverySentOnSubscribe(t *testing.T) {
	link := &fakeLink{}
	conn := newFakeConn()
	link.push(conn)

	c := newTestClient(t, link, func() (string, bool) {
		return `DISCOVER:{"ip":"10.0.0.2","port":8420}`, true
	})
	c.Start(context.Background())
	waitEvent(t, c, EventConnected)

	deadline := time.After(2 * time.Second)
	for {
		if sends := conn.sent(); len(sends) > 0 {
			if got := string(sends[0]); got != "DISCOVER:{\"ip\":\"10.0.0.2\",\"port\":8420}\n" {
				t.Fatalf("discovery frame = %q", got)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("discovery never sent")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestOversizeEmitsDecodeError(t *testing.T) {
	link := &fakeLink{}
	conn := newFakeConn()
	link.push(conn)

	c := newTestClient(t, link, nil)
	c.Start(context.Background())
	waitEvent(t, c, EventConnected)

	big := make([]byte, framing.MaxMessageLen+10)
	for i := range big {
		big[i] = 'x'
	}
	conn.notify <- big
	conn.notify <- []byte("\nCMD:ping\n")

	ev := waitEvent(t, c, EventDecodeError)
	if !errors.Is(ev.Err, framing.ErrOversize) {
		t.Fatalf("err = %v, want ErrOversize", ev.Err)
	}
	if ev := waitEvent(t, c, EventMessage); ev.Line != "CMD:ping" {
		t.Fatalf("line after oversize = %q", ev.Line)
	}
}

func TestSendAfterConnect(t *testing.T) {
	link := &fakeLink{}
	conn := newFakeConn()
	link.push(conn)

	c := newTestClient(t, link, nil)
	c.Start(context.Background())
	waitEvent(t, c, EventConnected)

	if err := c.Send(context.Background(), "CMD:pong"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sends := conn.sent()
	if len(sends) != 1 || string(sends[0]) != "CMD:pong\n" {
		t.Fatalf("sends = %q", sends)
	}
}
