package ble

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSLink is a Link over a websocket, standing in for the Bluetooth
// radio during development: a bridge process on the companion forwards
// frames both ways. Framing semantics are identical to the real link.
type WSLink struct {
	// URL is the bridge endpoint, e.g. ws://127.0.0.1:9130/ble.
	URL string

	// Header is sent with the dial request (optional).
	Header http.Header
}

// Connect dials the bridge.
func (l *WSLink) Connect(ctx context.Context) (Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, l.URL, l.Header)
	if err != nil {
		return nil, fmt.Errorf("ble: dial bridge %s: %w", l.URL, err)
	}
	conn := &wsConn{ws: ws, notify: make(chan []byte, 32)}
	go conn.readLoop()
	return conn, nil
}

type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	notify  chan []byte

	closeOnce sync.Once
}

func (c *wsConn) readLoop() {
	defer close(c.notify)
	for {
		_, p, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.notify <- p
	}
}

func (c *wsConn) Notifications() <-chan []byte { return c.notify }

func (c *wsConn) Send(_ context.Context, p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return fmt.Errorf("ble: bridge write: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}
