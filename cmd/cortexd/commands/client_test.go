package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *apiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &apiClient{base: srv.URL, token: "tok", http: srv.Client()}
}

func TestCmdLineSendsBearerToken(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/api/cmd" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"responses":["CMD:pong"]}`))
	})

	rsps, err := client.cmdLine(context.Background(), "CMD:ping")
	if err != nil {
		t.Fatalf("cmdLine: %v", err)
	}
	if len(rsps) != 1 || rsps[0] != "CMD:pong" {
		t.Fatalf("responses = %v", rsps)
	}
}

func TestDoSurfacesAPIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"category is not deletable"}`))
	})

	_, err := client.do(context.Background(), http.MethodDelete, "/files/notes/a.txt", nil, nil)
	if err == nil {
		t.Fatal("error status accepted")
	}
	if got := err.Error(); !strings.Contains(got, "category is not deletable") {
		t.Fatalf("err = %q", got)
	}
}

func TestFirstResponse(t *testing.T) {
	if _, err := firstResponse(nil); err == nil {
		t.Fatal("empty responses accepted")
	}
	if _, err := firstResponse([]string{"CMD:err:busy"}); err == nil {
		t.Fatal("CMD:err accepted")
	}
	line, err := firstResponse([]string{`{"type":"stats"}`})
	if err != nil || line != `{"type":"stats"}` {
		t.Fatalf("firstResponse = (%q, %v)", line, err)
	}
}

func TestDecodeLine(t *testing.T) {
	m := decodeLine(`{"state":"idle"}`)
	if m["state"] != "idle" {
		t.Fatalf("decoded = %v", m)
	}
	m = decodeLine("CMD:ack:reset")
	if m["line"] != "CMD:ack:reset" {
		t.Fatalf("decoded = %v", m)
	}
}
