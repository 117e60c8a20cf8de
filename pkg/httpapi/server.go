// Package httpapi serves the authenticated local-network API: command
// ingestion, artifact listing and transfer, and database snapshots. It
// is the high-bandwidth twin of the BLE link, reached via the DISCOVER
// handoff.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cortexcore/cortexd/pkg/proto"
	"github.com/cortexcore/cortexd/pkg/router"
	"github.com/cortexcore/cortexd/pkg/storage"
	"github.com/cortexcore/cortexd/pkg/store"
)

const maxCmdBody = 64 << 10 // one command line, generously

// Config wires a Server.
type Config struct {
	Addr    string
	Token   string
	Router  *router.Router
	Store   *store.Store
	Library *storage.Library
	Logger  *slog.Logger
}

// Server is the HTTP transport.
type Server struct {
	cfg  Config
	log  *slog.Logger
	http *http.Server
}

// NewServer builds the server and its route table.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, log: logger}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute, // uploads over slow WiFi
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.cfg.Addr }

// Handler returns the route table, exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/api/cmd", s.handleCmd)
		r.Get("/files/db", s.handleDBSnapshot)
		r.Get("/files/{category}", s.handleList)
		r.Get("/files/{category}/{name}", s.handleDownload)
		r.Post("/files/uploads", s.handleUpload)
		r.Delete("/files/{category}/{name}", s.handleDelete)
	})

	return r
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// auth enforces the bearer token on every route but /health.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) != 1 {
			s.log.Warn("unauthorized request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCmd treats the request body as one protocol line and returns
// the response lines.
func (s *Server) handleCmd(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCmdBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}
	rsps := s.cfg.Router.HandleRaw(r.Context(), raw, proto.TransportHTTP)
	if rsps == nil {
		rsps = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": rsps})
}

// handleDBSnapshot streams a consistent database backup.
func (s *Server) handleDBSnapshot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="cortexd.backup"`)
	if _, err := s.cfg.Store.Backup(w); err != nil {
		// Headers are gone; all we can do is log and drop the conn.
		s.log.Error("db snapshot failed", "error", err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	cat, err := storage.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	files, err := s.cfg.Store.ListFiles(r.Context(), cat.String())
	if err != nil {
		s.log.Error("file list failed", "category", cat.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if files == nil {
		files = []store.FileRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": cat.String(), "files": files})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	cat, name, ok := s.artifactParams(w, r)
	if !ok {
		return
	}
	f, err := s.cfg.Library.Open(r.Context(), cat, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "no such file")
			return
		}
		s.log.Error("download failed", "category", cat.String(), "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := io.Copy(w, f); err != nil {
		s.log.Warn("download interrupted", "name", name, "error", err)
	}
}

// handleUpload stores the body under uploads with the X-Filename name
// and registers the artifact.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name, err := storage.CleanName(r.Header.Get("X-Filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Filename")
		return
	}
	n, err := s.cfg.Library.Save(r.Context(), storage.Uploads, name, r.Body)
	if err != nil {
		s.log.Error("upload failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "save failed")
		return
	}
	if err := s.cfg.Store.InsertFile(r.Context(), &store.FileRecord{
		Name:     name,
		Category: storage.Uploads.String(),
		Size:     n,
	}); err != nil {
		s.log.Error("upload registration failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "register failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"name": name, "size": n})
}

// handleDelete removes an artifact: bytes first, then the row, so a
// crash can only leave an orphan row for startup reconciliation.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	cat, name, ok := s.artifactParams(w, r)
	if !ok {
		return
	}
	if !cat.Deletable() {
		writeError(w, http.StatusForbidden, "category is not deletable")
		return
	}
	exists, err := s.cfg.Library.Exists(r.Context(), cat, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stat failed")
		return
	}
	if !exists {
		if _, rerr := s.cfg.Store.GetFile(r.Context(), cat.String(), name); rerr != nil {
			writeError(w, http.StatusNotFound, "no such file")
			return
		}
	}
	if err := s.cfg.Library.Delete(r.Context(), cat, name); err != nil {
		s.log.Error("delete failed", "category", cat.String(), "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if err := s.cfg.Store.DeleteFile(r.Context(), cat.String(), name); err != nil {
		s.log.Error("record delete failed", "category", cat.String(), "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

func (s *Server) artifactParams(w http.ResponseWriter, r *http.Request) (storage.Category, string, bool) {
	cat, err := storage.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	name, err := storage.CleanName(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return "", "", false
	}
	return cat, name, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
