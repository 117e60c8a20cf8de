package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cortexcore/cortexd/pkg/device"
	"github.com/cortexcore/cortexd/pkg/router"
	"github.com/cortexcore/cortexd/pkg/storage"
	"github.com/cortexcore/cortexd/pkg/store"
)

const testToken = "t0ken"

type stubCapture struct{}

func (stubCapture) Start(context.Context) error        { return nil }
func (stubCapture) Stop() (string, error)              { return "/tmp/rec.wav", nil }
func (stubCapture) DiskUsage() (uint64, uint64, error) { return 0, 0, nil }

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string) (string, error) { return "", nil }

func newTestServer(t *testing.T) (*Server, *store.Store, *storage.Library) {
	t.Helper()
	quiet := slog.New(slog.DiscardHandler)

	st, err := store.Open(store.Options{InMemory: true, Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	lib := storage.NewLibrary(local, nil)

	orch := device.New(device.Config{Capture: stubCapture{}, Transcriber: stubTranscriber{}, Logger: quiet})
	rt := router.New(router.Config{Store: st, Device: orch, Library: lib, Logger: quiet})

	s := NewServer(Config{
		Addr:    "127.0.0.1:0",
		Token:   testToken,
		Router:  rt,
		Store:   st,
		Library: lib,
		Logger:  quiet,
	})
	return s, st, lib
}

func do(t *testing.T, h http.Handler, method, path, body string, hdr map[string]string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	first, err := LoadOrCreateToken(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(first))
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode = %o", st.Mode().Perm())
	}

	second, err := LoadOrCreateToken(path)
	if err != nil || second != first {
		t.Fatalf("reload = (%q, %v), want %q", second, err, first)
	}
}

func TestHealthUnauthenticated(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.Handler(), "GET", "/health", "", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	if rec := do(t, h, "POST", "/api/cmd", "CMD:ping", nil, false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}

	req := httptest.NewRequest("POST", "/api/cmd", strings.NewReader("CMD:ping"))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec.Code)
	}
}

func TestCmdEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, "POST", "/api/cmd", "CMD:ping", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Responses []string `json:"responses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Responses) != 1 || resp.Responses[0] != "CMD:pong" {
		t.Fatalf("responses = %v", resp.Responses)
	}

	if rec := do(t, h, "POST", "/api/cmd", "", nil, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: status = %d", rec.Code)
	}
}

func TestUploadListDownloadDelete(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, "POST", "/files/uploads", "document body", map[string]string{"X-Filename": "doc.txt"}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: status = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, h, "GET", "/files/uploads", "", nil, true)
	var list struct {
		Files []store.FileRecord `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Files) != 1 || list.Files[0].Name != "doc.txt" || list.Files[0].Size != 13 {
		t.Fatalf("list = %+v", list.Files)
	}

	rec = do(t, h, "GET", "/files/uploads/doc.txt", "", nil, true)
	if rec.Code != http.StatusOK || rec.Body.String() != "document body" {
		t.Fatalf("download = %d %q", rec.Code, rec.Body)
	}

	rec = do(t, h, "DELETE", "/files/uploads/doc.txt", "", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, "GET", "/files/uploads/doc.txt", "", nil, true); rec.Code != http.StatusNotFound {
		t.Fatalf("after delete: status = %d", rec.Code)
	}
	rec = do(t, h, "GET", "/files/uploads", "", nil, true)
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Files) != 0 {
		t.Fatalf("record survived delete: %+v", list.Files)
	}
}

func TestUploadRejectsBadNames(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	for _, name := range []string{"", "../../etc/passwd", ".hidden"} {
		rec := do(t, h, "POST", "/files/uploads", "x", map[string]string{"X-Filename": name}, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("name %q: status = %d", name, rec.Code)
		}
	}
}

func TestDeleteProtectedCategory(t *testing.T) {
	s, st, lib := newTestServer(t)
	h := s.Handler()
	ctx := context.Background()

	lib.Save(ctx, storage.Notes, "n.txt", strings.NewReader("keep"))
	st.InsertFile(ctx, &store.FileRecord{Name: "n.txt", Category: "notes", Size: 4})

	rec := do(t, h, "DELETE", "/files/notes/n.txt", "", nil, true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUnknownCategory(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s.Handler(), "GET", "/files/secrets", "", nil, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDBSnapshot(t *testing.T) {
	s, st, _ := newTestServer(t)
	st.InsertNote(context.Background(), &store.Note{Content: "x", Source: store.SourceText})

	rec := do(t, s.Handler(), "GET", "/files/db", "", nil, true)
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("snapshot = %d, %d bytes", rec.Code, rec.Body.Len())
	}
}
