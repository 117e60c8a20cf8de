package proto

import (
	"strings"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{`{"type":"note"}`, KindJSON},
		{`{`, KindJSON},
		{"CMD:ping", KindCommand},
		{"CMD:status:{}", KindCommand},
		{"remember to buy milk", KindText},
		{"cmd:ping", KindText}, // prefix match is case-sensitive
		{"DISCOVER:{}", KindText},
	}
	for _, tc := range tests {
		got := Classify(tc.raw, TransportBLE, time.Now())
		if got.Kind != tc.want {
			t.Errorf("Classify(%q).Kind = %v, want %v", tc.raw, got.Kind, tc.want)
		}
		if got.Payload != tc.raw {
			t.Errorf("Classify(%q) mutated payload: %q", tc.raw, got.Payload)
		}
	}
}

func TestVerb(t *testing.T) {
	tests := []struct {
		raw         string
		wantVerb    string
		wantPayload string
	}{
		{"CMD:ping", "ping", ""},
		{"CMD:STATUS", "status", ""},
		{"CMD:note:{\"content\":\"x\"}", "note", `{"content":"x"}`},
		{"CMD: start_recording ", "start_recording", ""},
		{"CMD:query:{\"table\":\"notes\"}", "query", `{"table":"notes"}`},
	}
	for _, tc := range tests {
		m := Classify(tc.raw, TransportBLE, time.Now())
		verb, payload := m.Verb()
		if verb != tc.wantVerb || payload != tc.wantPayload {
			t.Errorf("Verb(%q) = (%q, %q), want (%q, %q)",
				tc.raw, verb, payload, tc.wantVerb, tc.wantPayload)
		}
	}
}

func TestJSONType(t *testing.T) {
	m := Classify(`{"type":"status_request"}`, TransportHTTP, time.Now())
	typ, err := m.JSONType()
	if err != nil {
		t.Fatalf("JSONType: %v", err)
	}
	if typ != TypeStatusRequest {
		t.Fatalf("JSONType = %q, want %q", typ, TypeStatusRequest)
	}

	bad := Classify(`{"type":`, TransportHTTP, time.Now())
	if _, err := bad.JSONType(); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestResponses(t *testing.T) {
	if got := Ack("start_recording"); got != "CMD:ack:start_recording" {
		t.Errorf("Ack = %q", got)
	}
	if got := Ack("note", "42"); got != "CMD:ack:note:42" {
		t.Errorf("Ack detail = %q", got)
	}
	if got := Err("already_recording"); got != "CMD:err:already_recording" {
		t.Errorf("Err = %q", got)
	}
	if got := ErrUnknownVerb("frobnicate"); got != "CMD:err:unknown:frobnicate" {
		t.Errorf("ErrUnknownVerb = %q", got)
	}
}

func TestDiscoveryEncode(t *testing.T) {
	d := Discovery{IP: "192.168.1.20", Port: 8420, Token: "abc"}
	line, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(line, DiscoverPrefix) {
		t.Fatalf("missing prefix: %q", line)
	}
	if !strings.Contains(line, `"port":8420`) || !strings.Contains(line, `"token":"abc"`) {
		t.Fatalf("payload incomplete: %q", line)
	}
}
