package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

const defaultWriteChunk = 180 // bytes per GATT write, well under a 185+ MTU

// CentralConfig describes the peer peripheral.
type CentralConfig struct {
	// DeviceName is the advertised local name to scan for.
	DeviceName string

	// ServiceUUID is the UART-style service to subscribe to.
	ServiceUUID string

	// TXCharUUID is the peer's notify characteristic (peer -> us).
	TXCharUUID string

	// RXCharUUID is the peer's write characteristic (us -> peer).
	RXCharUUID string

	// WriteChunk caps one GATT write. Default 180 bytes.
	WriteChunk int

	Logger *slog.Logger
}

// Central is a Link backed by the host Bluetooth adapter acting as a
// GATT central.
type Central struct {
	cfg     CentralConfig
	adapter *bluetooth.Adapter

	service bluetooth.UUID
	tx      bluetooth.UUID
	rx      bluetooth.UUID

	enableOnce sync.Once
	enableErr  error

	mu    sync.Mutex
	conns map[string]*centralConn // keyed by peer address
}

// NewCentral creates a Central on the default adapter.
func NewCentral(cfg CentralConfig) (*Central, error) {
	if cfg.WriteChunk == 0 {
		cfg.WriteChunk = defaultWriteChunk
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	service, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: service uuid: %w", err)
	}
	tx, err := bluetooth.ParseUUID(cfg.TXCharUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: tx uuid: %w", err)
	}
	rx, err := bluetooth.ParseUUID(cfg.RXCharUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: rx uuid: %w", err)
	}
	return &Central{
		cfg:     cfg,
		adapter: bluetooth.DefaultAdapter,
		service: service,
		tx:      tx,
		rx:      rx,
		conns:   make(map[string]*centralConn),
	}, nil
}

func (c *Central) enable() error {
	c.enableOnce.Do(func() {
		c.enableErr = c.adapter.Enable()
		if c.enableErr != nil {
			return
		}
		// Drop the notification stream when the controller reports the
		// peer gone, so the client loop reconnects.
		c.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
			if connected {
				return
			}
			c.mu.Lock()
			conn, ok := c.conns[dev.Address.String()]
			delete(c.conns, dev.Address.String())
			c.mu.Unlock()
			if ok {
				conn.dropped()
			}
		})
	})
	return c.enableErr
}

// Connect scans for the named peripheral, connects, discovers the UART
// service, and subscribes to notifications.
func (c *Central) Connect(ctx context.Context) (Conn, error) {
	if err := c.enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	result, err := c.scan(ctx)
	if err != nil {
		return nil, err
	}

	device, err := c.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("ble: connect %s: %w", result.Address.String(), err)
	}

	conn, err := c.subscribe(device)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	c.mu.Lock()
	c.conns[device.Address.String()] = conn
	c.mu.Unlock()

	c.cfg.Logger.Info("ble subscribed", "peer", result.Address.String(), "name", c.cfg.DeviceName)
	return conn, nil
}

// scan blocks until the named peripheral is sighted or ctx ends.
func (c *Central) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	var found bluetooth.ScanResult
	done := make(chan error, 1)

	go func() {
		done <- c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.LocalName() != c.cfg.DeviceName {
				return
			}
			found = result
			adapter.StopScan()
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return bluetooth.ScanResult{}, fmt.Errorf("ble: scan: %w", err)
		}
		return found, nil
	case <-ctx.Done():
		c.adapter.StopScan()
		<-done
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

func (c *Central) subscribe(device bluetooth.Device) (*centralConn, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{c.service})
	if err != nil || len(services) == 0 {
		return nil, fmt.Errorf("ble: discover service: %w", err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{c.tx, c.rx})
	if err != nil || len(chars) < 2 {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}

	var tx, rx bluetooth.DeviceCharacteristic
	for _, ch := range chars {
		switch ch.UUID() {
		case c.tx:
			tx = ch
		case c.rx:
			rx = ch
		}
	}

	conn := &centralConn{
		device: device,
		rx:     rx,
		chunk:  c.cfg.WriteChunk,
		notify: make(chan []byte, 32),
	}
	if err := tx.EnableNotifications(func(buf []byte) {
		p := make([]byte, len(buf))
		copy(p, buf)
		conn.deliver(p)
	}); err != nil {
		return nil, fmt.Errorf("ble: enable notifications: %w", err)
	}
	return conn, nil
}

// centralConn is one subscribed GATT connection.
type centralConn struct {
	device bluetooth.Device
	rx     bluetooth.DeviceCharacteristic
	chunk  int

	mu     sync.Mutex // protects writes and closed
	closed bool
	notify chan []byte
}

func (cc *centralConn) Notifications() <-chan []byte { return cc.notify }

func (cc *centralConn) deliver(p []byte) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed {
		return
	}
	select {
	case cc.notify <- p:
	default:
		// Peer outpacing the reader; drop the oldest to keep the link live.
		select {
		case <-cc.notify:
		default:
		}
		cc.notify <- p
	}
}

// Send writes p in GATT-sized fragments.
func (cc *centralConn) Send(ctx context.Context, p []byte) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed {
		return ErrNotConnected
	}
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := len(p)
		if n > cc.chunk {
			n = cc.chunk
		}
		if _, err := cc.rx.WriteWithoutResponse(p[:n]); err != nil {
			return fmt.Errorf("ble: write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

func (cc *centralConn) Close() error {
	cc.mu.Lock()
	if cc.closed {
		cc.mu.Unlock()
		return nil
	}
	cc.closed = true
	close(cc.notify)
	cc.mu.Unlock()
	return cc.device.Disconnect()
}

// dropped marks the connection dead after a controller-level disconnect.
func (cc *centralConn) dropped() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed {
		return
	}
	cc.closed = true
	close(cc.notify)
}
