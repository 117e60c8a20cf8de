// Package ble maintains the BLE peripheral link to the phone companion:
// it owns the connect/subscribe/reconnect lifecycle, frames inbound
// notification bytes into protocol lines, and writes response lines back.
package ble

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by Send while the link is down.
var ErrNotConnected = errors.New("ble: not connected")

// Conn is one established connection to the peer.
type Conn interface {
	// Notifications yields raw inbound payloads. The channel closes when
	// the connection drops.
	Notifications() <-chan []byte

	// Send writes one raw payload to the peer, fragmenting to the
	// transport MTU as needed.
	Send(ctx context.Context, p []byte) error

	// Close tears the connection down.
	Close() error
}

// Link dials connections. Implementations: the Bluetooth central and
// the websocket development bridge.
type Link interface {
	// Connect blocks until a connection is established and subscribed,
	// or ctx is done.
	Connect(ctx context.Context) (Conn, error)
}

// EventKind tags client events.
type EventKind int

const (
	// EventConnected fires after subscribe, before any message.
	EventConnected EventKind = iota
	// EventDisconnected fires when the connection drops.
	EventDisconnected
	// EventMessage carries one complete framed line.
	EventMessage
	// EventDecodeError carries a framing violation on the connection.
	EventDecodeError
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Event is one occurrence on the link.
type Event struct {
	Kind EventKind
	Line string // set for EventMessage
	Err  error  // set for EventDecodeError
	At   time.Time
}
