package router

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/cortexcore/cortexd/pkg/proto"
	"github.com/cortexcore/cortexd/pkg/store"
)

func (r *Router) handleCommand(ctx context.Context, m proto.Message) []string {
	verb, payload := m.Verb()
	r.logActivity("command", verb)

	switch verb {
	case "ping":
		return []string{proto.Pong}
	case "status":
		return r.statusResponse(ctx)
	case "start_recording":
		if err := r.orch.StartRecording(ctx); err != nil {
			return []string{deviceErr(err)}
		}
		return []string{proto.Ack(verb)}
	case "stop_recording":
		if err := r.orch.StopRecording(ctx); err != nil {
			return []string{deviceErr(err)}
		}
		return []string{proto.Ack(verb)}
	case "reset":
		if err := r.orch.Reset(ctx); err != nil {
			return []string{deviceErr(err)}
		}
		return []string{proto.Ack(verb)}
	case "note":
		return r.cmdNote(ctx, payload)
	case "note_tags":
		return r.cmdNoteTags(ctx, payload)
	case "activity":
		return r.cmdActivity(ctx, payload)
	case "search":
		return r.cmdSearch(ctx, payload)
	case "session_start":
		return r.cmdSessionStart(ctx, payload)
	case "session_end":
		return r.cmdSessionEnd(ctx, payload)
	case "get_context":
		return r.cmdGetContext(ctx)
	case "project_upsert":
		return r.cmdProjectUpsert(ctx, payload)
	case "computer_reg":
		return r.cmdComputerReg(ctx, payload)
	case "people_upsert":
		return r.cmdPeopleUpsert(ctx, payload)
	case "query":
		return r.cmdQuery(ctx, payload)
	case "stats":
		return r.cmdStats(ctx)
	default:
		r.log.Warn("unknown command verb", "verb", verb, "origin", m.Origin.String())
		return []string{proto.ErrUnknownVerb(verb)}
	}
}

// cmdNote accepts either a JSON payload (content plus optional kind,
// tags, project) or the raw payload text itself.
func (r *Router) cmdNote(ctx context.Context, payload string) []string {
	note := store.Note{Source: store.SourceCommand, SessionID: r.SessionID()}
	note.Content = strings.TrimSpace(payload)
	if strings.HasPrefix(note.Content, "{") {
		var p struct {
			Content string   `json:"content"`
			Kind    string   `json:"kind"`
			Tags    []string `json:"tags"`
			Project string   `json:"project"`
		}
		if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Content == "" {
			return []string{proto.Err("bad_payload", "note")}
		}
		note.Content = p.Content
		note.Kind = p.Kind
		note.Tags = p.Tags
		note.Project = p.Project
	}
	if note.Content == "" {
		return []string{proto.Err("bad_payload", "note")}
	}
	id, err := r.store.InsertNote(ctx, &note)
	if err != nil {
		if errors.Is(err, store.ErrInvalidKind) {
			return []string{proto.Err("bad_payload", "note")}
		}
		r.log.Error("note insert failed", "error", err)
		return []string{proto.Err("internal")}
	}
	return []string{proto.Ack("note", itoa(id))}
}

// cmdNoteTags replaces the tags on a note, the one mutation notes
// accept after creation.
func (r *Router) cmdNoteTags(ctx context.Context, payload string) []string {
	var p struct {
		ID   uint64   `json:"id"`
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.ID == 0 {
		return []string{proto.Err("bad_payload", "note_tags")}
	}
	if _, err := r.store.UpdateNoteTags(ctx, p.ID, p.Tags); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []string{proto.Err("bad_payload", "note_tags")}
		}
		r.log.Error("note tag update failed", "note", p.ID, "error", err)
		return []string{proto.Err("internal")}
	}
	return []string{proto.Ack("note_tags", itoa(p.ID))}
}

func (r *Router) cmdActivity(ctx context.Context, payload string) []string {
	var p struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
	}
	if strings.HasPrefix(strings.TrimSpace(payload), "{") {
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return []string{proto.Err("bad_payload", "activity")}
		}
	} else {
		p.Kind, p.Detail = "event", strings.TrimSpace(payload)
	}
	if p.Kind == "" && p.Detail == "" {
		return []string{proto.Err("bad_payload", "activity")}
	}
	id, err := r.store.InsertActivity(ctx, &store.Activity{
		Kind:      p.Kind,
		Detail:    p.Detail,
		SessionID: r.SessionID(),
	})
	if err != nil {
		r.log.Error("activity insert failed", "error", err)
		return []string{proto.Err("internal")}
	}
	return []string{proto.Ack("activity", itoa(id))}
}

func (r *Router) cmdSearch(ctx context.Context, payload string) []string {
	var p struct {
		Query string `json:"query"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Query == "" {
		return []string{proto.Err("bad_payload", "search")}
	}
	id, err := r.store.InsertSearch(ctx, &store.Search{
		Query:     p.Query,
		URL:       p.URL,
		SessionID: r.SessionID(),
	})
	if err != nil {
		r.log.Error("search insert failed", "error", err)
		return []string{proto.Err("internal")}
	}
	return []string{proto.Ack("search", itoa(id))}
}

func (r *Router) cmdSessionStart(ctx context.Context, payload string) []string {
	var p struct {
		Computer string `json:"computer"`
		Platform string `json:"platform"`
		Project  string `json:"project"`
		OS       string `json:"os"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Computer == "" {
		return []string{proto.Err("bad_payload", "session_start")}
	}
	sess, err := r.store.StartSession(ctx, p.Computer, p.Platform, p.Project, p.OS)
	if err != nil {
		r.log.Error("session start failed", "error", err)
		return []string{proto.Err("internal")}
	}
	r.setSession(sess.ID)
	r.log.Info("session started", "id", sess.ID, "computer", p.Computer, "platform", p.Platform, "project", p.Project)
	return []string{proto.Ack("session_start", itoa(sess.ID))}
}

func (r *Router) cmdSessionEnd(ctx context.Context, payload string) []string {
	var p struct {
		Summary string `json:"summary"`
	}
	if strings.TrimSpace(payload) != "" {
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return []string{proto.Err("bad_payload", "session_end")}
		}
	}
	id := r.SessionID()
	if id == 0 {
		return []string{proto.Err("no_session")}
	}
	if _, err := r.store.EndSession(ctx, id, p.Summary); err != nil {
		if errors.Is(err, store.ErrNoActiveSession) {
			r.setSession(0)
			return []string{proto.Err("no_session")}
		}
		r.log.Error("session end failed", "error", err)
		return []string{proto.Err("internal")}
	}
	r.setSession(0)
	r.log.Info("session ended", "id", id)
	return []string{proto.Ack("session_end", itoa(id))}
}

func (r *Router) cmdGetContext(ctx context.Context) []string {
	snap, err := r.store.Context(ctx, 10)
	if err != nil {
		r.log.Error("context assembly failed", "error", err)
		return []string{proto.Err("internal")}
	}
	line, err := proto.MarshalJSONMessage(struct {
		Type string `json:"type"`
		*store.ContextSnapshot
	}{"context", snap})
	if err != nil {
		return []string{proto.Err("internal")}
	}
	return []string{line}
}

func (r *Router) cmdProjectUpsert(ctx context.Context, payload string) []string {
	var p store.Project
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Name == "" {
		return []string{proto.Err("bad_payload", "project_upsert")}
	}
	if err := r.store.UpsertProject(ctx, &p); err != nil {
		r.log.Error("project upsert failed", "error", err)
		return []string{proto.Err("internal")}
	}
	return []string{proto.Ack("project_upsert", p.Name)}
}

func (r *Router) cmdComputerReg(ctx context.Context, payload string) []string {
	var p store.Computer
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Name == "" {
		return []string{proto.Err("bad_payload", "computer_reg")}
	}
	if err := r.store.RegisterComputer(ctx, &p); err != nil {
		r.log.Error("computer registration failed", "error", err)
		return []string{proto.Err("internal")}
	}
	return []string{proto.Ack("computer_reg", p.Name)}
}

func (r *Router) cmdPeopleUpsert(ctx context.Context, payload string) []string {
	var p store.Person
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Name == "" {
		return []string{proto.Err("bad_payload", "people_upsert")}
	}
	if err := r.store.UpsertPerson(ctx, &p); err != nil {
		r.log.Error("person upsert failed", "error", err)
		return []string{proto.Err("internal")}
	}
	return []string{proto.Ack("people_upsert", p.Name)}
}

func (r *Router) cmdQuery(ctx context.Context, payload string) []string {
	var p struct {
		Table   string            `json:"table"`
		Filters map[string]string `json:"filters"`
		Limit   int               `json:"limit"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.Table == "" {
		return []string{proto.Err("bad_payload", "query")}
	}
	rows, err := r.store.Query(ctx, p.Table, p.Filters, p.Limit)
	if err != nil {
		if errors.Is(err, store.ErrUnknownTable) {
			return []string{proto.Err("bad_payload", "query")}
		}
		r.log.Error("query failed", "table", p.Table, "error", err)
		return []string{proto.Err("internal")}
	}
	line, err := proto.MarshalJSONMessage(struct {
		Type  string           `json:"type"`
		Table string           `json:"table"`
		Rows  []map[string]any `json:"rows"`
	}{"query_result", p.Table, rows})
	if err != nil {
		return []string{proto.Err("internal")}
	}
	return []string{line}
}

func (r *Router) cmdStats(ctx context.Context) []string {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		r.log.Error("stats failed", "error", err)
		return []string{proto.Err("internal")}
	}
	line, err := proto.MarshalJSONMessage(struct {
		Type   string         `json:"type"`
		Tables map[string]int `json:"tables"`
	}{"stats", stats})
	if err != nil {
		return []string{proto.Err("internal")}
	}
	return []string{line}
}

func (r *Router) statusResponse(ctx context.Context) []string {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		r.log.Error("status stats failed", "error", err)
		// The machine snapshot is still worth reporting.
	}
	line, err := proto.MarshalJSONMessage(struct {
		Type      string         `json:"type"`
		SessionID uint64         `json:"session_id,omitempty"`
		Status    any            `json:"status"`
		Stats     map[string]int `json:"stats,omitempty"`
	}{proto.TypeStatusResponse, r.SessionID(), r.orch.Status(), stats})
	if err != nil {
		r.log.Error("status encode failed", "error", err)
		return []string{proto.Err("internal")}
	}
	return []string{line}
}
