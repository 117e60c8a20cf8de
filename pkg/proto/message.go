// Package proto defines the transport-independent message model shared by
// the BLE and HTTP transports, and the wire vocabulary of the command
// protocol.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a message by its syntactic shape.
type Kind int

const (
	// KindJSON is any message starting with '{'.
	KindJSON Kind = iota
	// KindCommand is a CMD:<verb>[:<payload>] message.
	KindCommand
	// KindText is anything else; always persisted as a note.
	KindText
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindCommand:
		return "command"
	default:
		return "text"
	}
}

// Transport identifies which peer channel delivered a message.
type Transport int

const (
	TransportBLE Transport = iota
	TransportHTTP
)

// String returns the string representation of the transport.
func (t Transport) String() string {
	switch t {
	case TransportBLE:
		return "ble"
	case TransportHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// Message is one classified protocol unit. Immutable once classified;
// responses are always written back through Origin.
type Message struct {
	Kind       Kind
	Payload    string
	Origin     Transport
	ReceivedAt time.Time
}

// CommandPrefix marks command messages and command responses.
const CommandPrefix = "CMD:"

// DiscoverPrefix marks the autodiscovery broadcast pushed over BLE on
// first subscription.
const DiscoverPrefix = "DISCOVER:"

// Classify wraps a raw message string into a Message. Classification is
// purely syntactic and ordered: '{' wins over "CMD:", everything else is
// plain text.
func Classify(raw string, origin Transport, now time.Time) Message {
	kind := KindText
	switch {
	case strings.HasPrefix(raw, "{"):
		kind = KindJSON
	case strings.HasPrefix(raw, CommandPrefix):
		kind = KindCommand
	}
	return Message{Kind: kind, Payload: raw, Origin: origin, ReceivedAt: now}
}

// Verb splits a KindCommand payload into its verb and optional payload
// (the text after the second colon). The verb is lowercased.
func (m Message) Verb() (verb, payload string) {
	rest := strings.TrimPrefix(m.Payload, CommandPrefix)
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return strings.ToLower(strings.TrimSpace(rest[:i])), rest[i+1:]
	}
	return strings.ToLower(strings.TrimSpace(rest)), ""
}

// JSONType extracts the "type" field of a KindJSON payload. Returns an
// error for malformed JSON (a protocol error, surfaced to the caller).
func (m Message) JSONType() (string, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(m.Payload), &probe); err != nil {
		return "", fmt.Errorf("proto: malformed json message: %w", err)
	}
	return probe.Type, nil
}

// Reserved inbound JSON message types.
const (
	TypeNote          = "note"
	TypeBookmark      = "bookmark"
	TypeSensor        = "sensor"
	TypeStatusRequest = "status_request"
)

// Reserved outbound JSON message types.
const (
	TypeStatusResponse = "status_response"
	TypeNoteSaved      = "note_saved"
)

// Pong is the response to CMD:ping.
const Pong = CommandPrefix + "pong"

// Ack builds a positive command response: CMD:ack:<verb>[:<detail>].
func Ack(verb string, detail ...string) string {
	if len(detail) > 0 && detail[0] != "" {
		return fmt.Sprintf("%sack:%s:%s", CommandPrefix, verb, detail[0])
	}
	return CommandPrefix + "ack:" + verb
}

// Err builds a negative command response: CMD:err:<code>[:<detail>].
func Err(code string, detail ...string) string {
	if len(detail) > 0 && detail[0] != "" {
		return fmt.Sprintf("%serr:%s:%s", CommandPrefix, code, detail[0])
	}
	return CommandPrefix + "err:" + code
}

// ErrUnknownVerb builds the response for an unmatched command verb.
func ErrUnknownVerb(verb string) string {
	return Err("unknown", verb)
}

// MarshalJSONMessage renders v as a compact one-line JSON message suitable
// for the line protocol.
func MarshalJSONMessage(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("proto: marshal response: %w", err)
	}
	return string(b), nil
}

// Discovery is the autodiscovery payload sent upstream over BLE so a
// companion can switch to the HTTP transport without manual configuration.
type Discovery struct {
	IP    string `json:"ip"`
	Port  int    `json:"port"`
	Token string `json:"token,omitempty"`
}

// Encode renders the DISCOVER: line.
func (d Discovery) Encode() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("proto: marshal discovery: %w", err)
	}
	return DiscoverPrefix + string(b), nil
}
