package store

import "time"

// Table names accepted by Query and reported by Stats.
const (
	TableSessions   = "sessions"
	TableNotes      = "notes"
	TableActivities = "activities"
	TableSearches   = "searches"
	TableProjects   = "projects"
	TableComputers  = "computers"
	TablePeople     = "people"
	TableFiles      = "files"
)

// Tables lists every table in key-prefix order.
var Tables = []string{
	TableSessions, TableNotes, TableActivities, TableSearches,
	TableProjects, TableComputers, TablePeople, TableFiles,
}

// Session is one work session opened by a companion computer.
type Session struct {
	ID        uint64    `msgpack:"id" json:"id"`
	Computer  string    `msgpack:"computer" json:"computer"`
	Platform  string    `msgpack:"platform,omitempty" json:"platform,omitempty"`
	Project   string    `msgpack:"project,omitempty" json:"project,omitempty"`
	StartedAt time.Time `msgpack:"started_at" json:"started_at"`
	EndedAt   time.Time `msgpack:"ended_at,omitempty" json:"ended_at,omitzero"`
	Summary   string    `msgpack:"summary,omitempty" json:"summary,omitempty"`
}

// Active reports whether the session has not been ended yet.
func (s *Session) Active() bool { return s.EndedAt.IsZero() }

// Note is a captured thought: typed, spoken and transcribed, or pushed
// from a companion. Immutable after creation except for tag edits.
type Note struct {
	ID        uint64    `msgpack:"id" json:"id"`
	Content   string    `msgpack:"content" json:"content"`
	Kind      string    `msgpack:"kind" json:"kind"`
	Tags      []string  `msgpack:"tags,omitempty" json:"tags,omitempty"`
	Project   string    `msgpack:"project,omitempty" json:"project,omitempty"`
	Source    string    `msgpack:"source" json:"source"`
	SessionID uint64    `msgpack:"session_id,omitempty" json:"session_id,omitempty"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`
}

// Note sources.
const (
	SourceCommand    = "command"
	SourceJSON       = "json"
	SourceText       = "text"
	SourceTranscript = "transcript"
)

// Note kinds.
const (
	KindNote     = "note"
	KindDecision = "decision"
	KindBug      = "bug"
	KindReminder = "reminder"
	KindIdea     = "idea"
	KindTodo     = "todo"
	KindContext  = "context"
)

// ValidNoteKind reports whether k is one of the recognized note kinds.
func ValidNoteKind(k string) bool {
	switch k {
	case KindNote, KindDecision, KindBug, KindReminder, KindIdea, KindTodo, KindContext:
		return true
	}
	return false
}

// Activity is one event in the device's activity stream.
type Activity struct {
	ID        uint64    `msgpack:"id" json:"id"`
	Kind      string    `msgpack:"kind" json:"kind"`
	Detail    string    `msgpack:"detail,omitempty" json:"detail,omitempty"`
	SessionID uint64    `msgpack:"session_id,omitempty" json:"session_id,omitempty"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`
}

// Search is a logged web search or lookup from a companion.
type Search struct {
	ID        uint64    `msgpack:"id" json:"id"`
	Query     string    `msgpack:"query" json:"query"`
	URL       string    `msgpack:"url,omitempty" json:"url,omitempty"`
	SessionID uint64    `msgpack:"session_id,omitempty" json:"session_id,omitempty"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`
}

// Project is a named body of work, keyed by name.
type Project struct {
	Name        string    `msgpack:"name" json:"name"`
	Description string    `msgpack:"description,omitempty" json:"description,omitempty"`
	Status      string    `msgpack:"status" json:"status"`
	UpdatedAt   time.Time `msgpack:"updated_at" json:"updated_at"`
}

// Project statuses.
const (
	ProjectActive   = "active"
	ProjectArchived = "archived"
)

// Computer is a companion machine known to the device, keyed by name.
type Computer struct {
	Name     string    `msgpack:"name" json:"name"`
	OS       string    `msgpack:"os,omitempty" json:"os,omitempty"`
	LastSeen time.Time `msgpack:"last_seen" json:"last_seen"`
}

// Person is someone the wearer has noted, keyed by name.
type Person struct {
	Name      string    `msgpack:"name" json:"name"`
	Notes     string    `msgpack:"notes,omitempty" json:"notes,omitempty"`
	UpdatedAt time.Time `msgpack:"updated_at" json:"updated_at"`
}

// FileRecord tracks one artifact on disk, keyed by category and name.
type FileRecord struct {
	Name      string    `msgpack:"name" json:"name"`
	Category  string    `msgpack:"category" json:"category"`
	Size      int64     `msgpack:"size" json:"size"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`
}

// ContextSnapshot is the working-state digest served to companions.
type ContextSnapshot struct {
	ActiveSession  *Session       `json:"active_session,omitempty"`
	RecentNotes    []Note         `json:"recent_notes"`
	RecentSessions []Session      `json:"recent_sessions"`
	ActiveProjects []Project      `json:"active_projects"`
	Reminders      []Note         `json:"reminders"`
	Decisions      []Note         `json:"decisions"`
	Bugs           []Note         `json:"bugs"`
	RecentFiles    []FileRecord   `json:"recent_files"`
	Stats          map[string]int `json:"stats"`
	GeneratedAt    time.Time      `json:"generated_at"`
}
