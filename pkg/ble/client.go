package ble

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexcore/cortexd/pkg/framing"
)

const defaultReconnectInterval = 5 * time.Second

// Config is the configuration for a Client.
type Config struct {
	// Link dials connections. Required.
	Link Link

	// Discovery, when set, returns the line pushed to the peer right
	// after each subscribe (the transport upgrade hint).
	Discovery func() (string, bool)

	// ReconnectInterval is the fixed delay between connection attempts.
	// Default is 5 seconds.
	ReconnectInterval time.Duration

	// MaxMessageLen caps one framed line. Default framing.MaxMessageLen.
	MaxMessageLen int

	// EventBuffer sizes the event channel. Default 64.
	EventBuffer int

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	if c.MaxMessageLen == 0 {
		c.MaxMessageLen = framing.MaxMessageLen
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client runs the link lifecycle: connect, subscribe, frame inbound
// bytes, reconnect on drop. Events are delivered in order on one channel.
type Client struct {
	cfg     Config
	events  chan Event
	running atomic.Bool

	mu   sync.Mutex // protects conn
	conn Conn

	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a Client. Call Start to bring the link up.
func NewClient(cfg Config) *Client {
	cfg.setDefaults()
	return &Client{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
}

// Events returns the event stream. Closed after Close.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Start launches the lifecycle loop. It returns immediately.
func (c *Client) Start(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
}

// Close stops the loop, drops the connection, and closes the event
// channel once the loop has exited.
func (c *Client) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
	close(c.events)
	return nil
}

// Send writes one line to the peer. Fails fast with ErrNotConnected
// while the link is down; queueing is the caller's concern.
func (c *Client) Send(ctx context.Context, line string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, append([]byte(line), '\n'))
}

// Connected reports whether the link is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	for {
		conn, err := c.cfg.Link.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.cfg.Logger.Warn("ble connect failed", "error", err)
			if !sleep(ctx, c.cfg.ReconnectInterval) {
				return
			}
			continue
		}

		c.serve(ctx, conn)

		if ctx.Err() != nil {
			return
		}
		if !sleep(ctx, c.cfg.ReconnectInterval) {
			return
		}
	}
}

// serve pumps one connection until it drops. A fresh splitter per
// connection: partial frames never survive a reconnect.
func (c *Client) serve(ctx context.Context, conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		c.emit(ctx, Event{Kind: EventDisconnected, At: time.Now()})
	}()

	c.emit(ctx, Event{Kind: EventConnected, At: time.Now()})

	if c.cfg.Discovery != nil {
		if line, ok := c.cfg.Discovery(); ok {
			if err := conn.Send(ctx, append([]byte(line), '\n')); err != nil {
				c.cfg.Logger.Warn("discovery send failed", "error", err)
			}
		}
	}

	splitter := framing.NewSplitter(c.cfg.MaxMessageLen)
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-conn.Notifications():
			if !ok {
				return
			}
			for _, res := range splitter.Feed(p) {
				if res.Err != nil {
					c.emit(ctx, Event{Kind: EventDecodeError, Err: res.Err, At: time.Now()})
					continue
				}
				c.emit(ctx, Event{Kind: EventMessage, Line: res.Text, At: time.Now()})
			}
		}
	}
}

func (c *Client) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// sleep waits d unless ctx ends first; reports whether to keep going.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
