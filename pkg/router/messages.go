package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/cortexcore/cortexd/pkg/proto"
	"github.com/cortexcore/cortexd/pkg/storage"
	"github.com/cortexcore/cortexd/pkg/store"
)

func (r *Router) handleJSON(ctx context.Context, m proto.Message) []string {
	typ, err := m.JSONType()
	if err != nil {
		r.log.Warn("malformed json message", "origin", m.Origin.String(), "error", err)
		return []string{proto.Err("bad_payload", "json")}
	}
	r.logActivity("json", typ)

	switch typ {
	case proto.TypeNote:
		return r.jsonNote(ctx, m)
	case proto.TypeBookmark:
		return r.jsonBookmark(ctx, m)
	case proto.TypeSensor:
		return r.jsonSensor(ctx, m)
	case proto.TypeStatusRequest:
		return r.statusResponse(ctx)
	default:
		// Unknown types are logged and acknowledged, never dropped
		// silently: the companion may be newer than the device.
		r.log.Info("ignoring unknown json type", "type", typ)
		line, err := proto.MarshalJSONMessage(struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		}{"ignored", "unknown_type:" + typ})
		if err != nil {
			return []string{proto.Err("internal")}
		}
		return []string{line}
	}
}

func (r *Router) jsonNote(ctx context.Context, m proto.Message) []string {
	var p struct {
		Content string   `json:"content"`
		Kind    string   `json:"kind"`
		Tags    []string `json:"tags"`
		Project string   `json:"project"`
	}
	if err := json.Unmarshal([]byte(m.Payload), &p); err != nil || p.Content == "" {
		return []string{proto.Err("bad_payload", "note")}
	}
	id, err := r.store.InsertNote(ctx, &store.Note{
		Content:   p.Content,
		Kind:      p.Kind,
		Tags:      p.Tags,
		Project:   p.Project,
		Source:    store.SourceJSON,
		SessionID: r.SessionID(),
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidKind) {
			return []string{proto.Err("bad_payload", "note")}
		}
		r.log.Error("note insert failed", "error", err)
		return []string{proto.Err("internal")}
	}
	return r.noteSaved(id)
}

func (r *Router) jsonBookmark(ctx context.Context, m proto.Message) []string {
	var p struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal([]byte(m.Payload), &p); err != nil || (p.Title == "" && p.URL == "") {
		return []string{proto.Err("bad_payload", "bookmark")}
	}
	query := p.Title
	if query == "" {
		query = p.URL
	}
	id, err := r.store.InsertSearch(ctx, &store.Search{
		Query:     query,
		URL:       p.URL,
		SessionID: r.SessionID(),
	})
	if err != nil {
		r.log.Error("bookmark insert failed", "error", err)
		return []string{proto.Err("internal")}
	}
	line, err := proto.MarshalJSONMessage(struct {
		Type  string `json:"type"`
		Table string `json:"table"`
		ID    uint64 `json:"id"`
	}{"saved", store.TableSearches, id})
	if err != nil {
		return []string{proto.Err("internal")}
	}
	return []string{line}
}

// jsonSensor folds a sensor reading into the activity stream. Sensors
// are fire-and-forget; no response.
func (r *Router) jsonSensor(ctx context.Context, m proto.Message) []string {
	var p struct {
		Sensor string          `json:"sensor"`
		Value  json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal([]byte(m.Payload), &p); err != nil || p.Sensor == "" {
		return []string{proto.Err("bad_payload", "sensor")}
	}
	if _, err := r.store.InsertActivity(ctx, &store.Activity{
		Kind:      "sensor:" + p.Sensor,
		Detail:    string(p.Value),
		SessionID: r.SessionID(),
	}); err != nil {
		r.log.Error("sensor insert failed", "sensor", p.Sensor, "error", err)
		return []string{proto.Err("internal")}
	}
	return nil
}

// handleText persists free text as a note and mirrors it into a notes
// artifact. BLE peers get no response for text; HTTP callers get the
// saved confirmation.
func (r *Router) handleText(ctx context.Context, m proto.Message) []string {
	content := strings.TrimSpace(m.Payload)
	if content == "" {
		return nil
	}
	r.logActivity("text", "")

	id, err := r.store.InsertNote(ctx, &store.Note{
		Content:   content,
		Kind:      store.KindNote,
		Source:    store.SourceText,
		SessionID: r.SessionID(),
	})
	if err != nil {
		r.log.Error("text note insert failed", "error", err)
		if m.Origin == proto.TransportHTTP {
			return []string{proto.Err("internal")}
		}
		return nil
	}
	r.exportNote(ctx, id, content, m)

	if m.Origin == proto.TransportHTTP {
		return r.noteSaved(id)
	}
	return nil
}

// exportNote writes the note to a timestamped artifact and registers it.
// Export failures are logged; the note row is already durable.
func (r *Router) exportNote(ctx context.Context, id uint64, content string, m proto.Message) {
	if r.library == nil {
		return
	}
	name := storage.StampName("note", "txt", m.ReceivedAt)
	n, err := r.library.Save(ctx, storage.Notes, name, strings.NewReader(content+"\n"))
	if err != nil {
		r.log.Error("note export failed", "note", id, "error", err)
		return
	}
	if err := r.store.InsertFile(ctx, &store.FileRecord{
		Name:     name,
		Category: storage.Notes.String(),
		Size:     n,
	}); err != nil {
		r.log.Error("note artifact registration failed", "name", name, "error", err)
	}
}

func (r *Router) noteSaved(id uint64) []string {
	line, err := proto.MarshalJSONMessage(struct {
		Type string `json:"type"`
		ID   uint64 `json:"id"`
	}{proto.TypeNoteSaved, id})
	if err != nil {
		return []string{proto.Err("internal")}
	}
	return []string{line}
}
