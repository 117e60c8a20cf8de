// Package router dispatches classified messages to the state machine and
// the persistence layer, and renders the protocol responses. One Router
// instance serves both transports.
package router

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cortexcore/cortexd/pkg/activity"
	"github.com/cortexcore/cortexd/pkg/device"
	"github.com/cortexcore/cortexd/pkg/framing"
	"github.com/cortexcore/cortexd/pkg/proto"
	"github.com/cortexcore/cortexd/pkg/storage"
	"github.com/cortexcore/cortexd/pkg/store"
)

// Router routes messages by kind: JSON by its type field, commands by
// verb, and plain text straight into a note.
type Router struct {
	store    *store.Store
	orch     *device.Orchestrator
	library  *storage.Library
	activity *activity.Logger
	log      *slog.Logger
	now      func() time.Time

	// asm reassembles chunked inbound messages from the BLE transport.
	asm *framing.Assembler

	mu        sync.Mutex
	sessionID uint64
}

// Config wires a Router.
type Config struct {
	Store    *store.Store
	Device   *device.Orchestrator
	Library  *storage.Library
	Activity *activity.Logger
	Logger   *slog.Logger
}

// New creates a Router.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:    cfg.Store,
		orch:     cfg.Device,
		library:  cfg.Library,
		activity: cfg.Activity,
		log:      logger,
		now:      time.Now,
		asm:      framing.NewAssembler(),
	}
}

// SessionID returns the active session, zero when none.
func (r *Router) SessionID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *Router) setSession(id uint64) {
	r.mu.Lock()
	r.sessionID = id
	r.mu.Unlock()
	if r.activity != nil {
		r.activity.SetSession(id)
	}
}

// HandleRaw reassembles chunked input, classifies the line, and handles
// it. Returns nil while a chunk sequence is still incomplete.
func (r *Router) HandleRaw(ctx context.Context, raw string, origin proto.Transport) []string {
	if framing.IsChunk(raw) {
		raw = r.asm.Feed(raw)
		if raw == "" {
			return nil
		}
	}
	return r.Handle(ctx, proto.Classify(raw, origin, r.now()))
}

// Handle dispatches one classified message and returns the response
// lines to send back on the message's origin transport.
func (r *Router) Handle(ctx context.Context, m proto.Message) []string {
	switch m.Kind {
	case proto.KindCommand:
		return r.handleCommand(ctx, m)
	case proto.KindJSON:
		return r.handleJSON(ctx, m)
	default:
		return r.handleText(ctx, m)
	}
}

func (r *Router) logActivity(kind, detail string) {
	if r.activity == nil {
		return
	}
	if err := r.activity.Log(kind, detail); err != nil {
		r.log.Warn("activity log write failed", "error", err)
	}
}

// deviceErr maps state machine errors onto protocol error codes.
func deviceErr(err error) string {
	switch {
	case errors.Is(err, device.ErrAlreadyRecording):
		return proto.Err("already_recording")
	case errors.Is(err, device.ErrNotRecording):
		return proto.Err("not_recording")
	case errors.Is(err, device.ErrBusy):
		return proto.Err("busy")
	default:
		return proto.Err("internal")
	}
}

func itoa(n uint64) string { return strconv.FormatUint(n, 10) }
