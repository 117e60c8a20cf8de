// Package store is the durable persistence layer. Every row is a
// msgpack-encoded entity under a table-prefixed key in a single Badger
// database; writes go through transactions so a yanked battery never
// leaves a half-applied mutation.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUnknownTable is returned by Query for an unrecognized table name.
	ErrUnknownTable = errors.New("store: unknown table")
	// ErrNoActiveSession is returned by EndSession when nothing is open.
	ErrNoActiveSession = errors.New("store: no active session")
	// ErrInvalidKind is returned by InsertNote for an unrecognized kind.
	ErrInvalidKind = errors.New("store: invalid note kind")
)

const seqBandwidth = 64

// Store is the typed persistence layer.
type Store struct {
	db   *badger.DB
	seqs map[string]*badger.Sequence
	now  func() time.Time
}

// Options configures a Store.
type Options struct {
	// Dir is the directory for database files. Required unless InMemory.
	Dir string

	// InMemory runs the engine without disk persistence. For tests.
	InMemory bool

	// Logger receives engine warnings. If nil, slog.Default is used.
	Logger *slog.Logger
}

// Open opens (or creates) the database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: Options.Dir is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(slogAdapter{logger})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	s := &Store{db: db, seqs: make(map[string]*badger.Sequence), now: time.Now}
	for _, table := range []string{TableSessions, TableNotes, TableActivities, TableSearches} {
		seq, err := db.GetSequence([]byte("seq:"+table), seqBandwidth)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("store: sequence %s: %w", table, err)
		}
		s.seqs[table] = seq
	}
	return s, nil
}

// Close releases sequences and closes the database.
func (s *Store) Close() error {
	for _, seq := range s.seqs {
		seq.Release()
	}
	return s.db.Close()
}

// Backup streams a consistent full snapshot of the database to w and
// returns the version watermark of the snapshot.
func (s *Store) Backup(w io.Writer) (uint64, error) {
	since, err := s.db.Backup(w, 0)
	if err != nil {
		return 0, fmt.Errorf("store: backup: %w", err)
	}
	return since, nil
}

func rowKey(table, key string) []byte {
	return []byte(table + ":" + key)
}

// numKey zero-pads numeric IDs so lexicographic key order is insertion
// order, which makes reverse iteration "most recent first".
func numKey(table string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s:%012d", table, id))
}

func (s *Store) nextID(table string) (uint64, error) {
	n, err := s.seqs[table].Next()
	if err != nil {
		return 0, fmt.Errorf("store: next id for %s: %w", table, err)
	}
	return n + 1, nil // sequences start at 0
}

func put(txn *badger.Txn, key []byte, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	return txn.Set(key, b)
}

func get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(b []byte) error {
		return msgpack.Unmarshal(b, v)
	})
}

// InsertNote assigns an ID and timestamp and persists the note. An
// empty kind defaults to "note"; an unrecognized one is rejected.
func (s *Store) InsertNote(_ context.Context, n *Note) (uint64, error) {
	if n.Kind == "" {
		n.Kind = KindNote
	}
	if !ValidNoteKind(n.Kind) {
		return 0, fmt.Errorf("store: note kind %q: %w", n.Kind, ErrInvalidKind)
	}
	id, err := s.nextID(TableNotes)
	if err != nil {
		return 0, err
	}
	n.ID = id
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return put(txn, numKey(TableNotes, id), n)
	})
	return id, err
}

// UpdateNoteTags replaces the tags on an existing note. Notes accept no
// other mutation after creation.
func (s *Store) UpdateNoteTags(_ context.Context, id uint64, tags []string) (*Note, error) {
	var n Note
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := get(txn, numKey(TableNotes, id), &n); err != nil {
			return err
		}
		n.Tags = tags
		return put(txn, numKey(TableNotes, id), &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNote fetches one note by ID.
func (s *Store) GetNote(_ context.Context, id uint64) (*Note, error) {
	var n Note
	err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, numKey(TableNotes, id), &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// InsertActivity assigns an ID and timestamp and persists the event.
func (s *Store) InsertActivity(_ context.Context, a *Activity) (uint64, error) {
	id, err := s.nextID(TableActivities)
	if err != nil {
		return 0, err
	}
	a.ID = id
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return put(txn, numKey(TableActivities, id), a)
	})
	return id, err
}

// InsertSearch assigns an ID and timestamp and persists the search.
func (s *Store) InsertSearch(_ context.Context, q *Search) (uint64, error) {
	id, err := s.nextID(TableSearches)
	if err != nil {
		return 0, err
	}
	q.ID = id
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return put(txn, numKey(TableSearches, id), q)
	})
	return id, err
}

// StartSession opens a session and upserts the originating computer in
// the same transaction.
func (s *Store) StartSession(_ context.Context, computer, platform, project, os string) (*Session, error) {
	id, err := s.nextID(TableSessions)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &Session{ID: id, Computer: computer, Platform: platform, Project: project, StartedAt: now}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := put(txn, numKey(TableSessions, id), sess); err != nil {
			return err
		}
		c := Computer{Name: computer, OS: os, LastSeen: now}
		var prev Computer
		if err := get(txn, rowKey(TableComputers, computer), &prev); err == nil {
			if os == "" {
				c.OS = prev.OS
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return put(txn, rowKey(TableComputers, computer), &c)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// EndSession closes the session by ID and records the summary.
func (s *Store) EndSession(_ context.Context, id uint64, summary string) (*Session, error) {
	var sess Session
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := get(txn, numKey(TableSessions, id), &sess); err != nil {
			return err
		}
		if !sess.Active() {
			return ErrNoActiveSession
		}
		sess.EndedAt = s.now()
		sess.Summary = summary
		return put(txn, numKey(TableSessions, id), &sess)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession fetches one session by ID.
func (s *Store) GetSession(_ context.Context, id uint64) (*Session, error) {
	var sess Session
	err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, numKey(TableSessions, id), &sess)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpsertProject creates or updates a project by name.
func (s *Store) UpsertProject(_ context.Context, p *Project) error {
	if p.Status == "" {
		p.Status = ProjectActive
	}
	p.UpdatedAt = s.now()
	return s.db.Update(func(txn *badger.Txn) error {
		return put(txn, rowKey(TableProjects, p.Name), p)
	})
}

// RegisterComputer creates or refreshes a companion computer by name.
func (s *Store) RegisterComputer(_ context.Context, c *Computer) error {
	c.LastSeen = s.now()
	return s.db.Update(func(txn *badger.Txn) error {
		return put(txn, rowKey(TableComputers, c.Name), c)
	})
}

// UpsertPerson creates or updates a person by name. Notes accumulate.
func (s *Store) UpsertPerson(_ context.Context, p *Person) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var prev Person
		err := get(txn, rowKey(TablePeople, p.Name), &prev)
		if err == nil && prev.Notes != "" && p.Notes != "" {
			p.Notes = prev.Notes + "\n" + p.Notes
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		p.UpdatedAt = s.now()
		return put(txn, rowKey(TablePeople, p.Name), p)
	})
}

// InsertFile registers an artifact. Overwrites any record with the same
// category and name.
func (s *Store) InsertFile(_ context.Context, f *FileRecord) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return put(txn, rowKey(TableFiles, f.Category+"/"+f.Name), f)
	})
}

// GetFile fetches one artifact record.
func (s *Store) GetFile(_ context.Context, category, name string) (*FileRecord, error) {
	var f FileRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return get(txn, rowKey(TableFiles, category+"/"+name), &f)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFiles returns the records in one category, name order.
func (s *Store) ListFiles(_ context.Context, category string) ([]FileRecord, error) {
	var out []FileRecord
	prefix := rowKey(TableFiles, category+"/")
	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, prefix, false, 0, func(b []byte) (bool, error) {
			var f FileRecord
			if err := msgpack.Unmarshal(b, &f); err != nil {
				return false, err
			}
			out = append(out, f)
			return true, nil
		})
	})
	return out, err
}

// DeleteFile removes an artifact record. Missing rows are not an error.
func (s *Store) DeleteFile(_ context.Context, category, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(rowKey(TableFiles, category+"/"+name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// RecentNotes returns up to n notes, newest first.
func (s *Store) RecentNotes(_ context.Context, n int) ([]Note, error) {
	var out []Note
	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, []byte(TableNotes+":"), true, n, func(b []byte) (bool, error) {
			var note Note
			if err := msgpack.Unmarshal(b, &note); err != nil {
				return false, err
			}
			out = append(out, note)
			return true, nil
		})
	})
	return out, err
}

// NotesByKind returns up to n notes of one kind, newest first.
func (s *Store) NotesByKind(_ context.Context, kind string, n int) ([]Note, error) {
	var out []Note
	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, []byte(TableNotes+":"), true, 0, func(b []byte) (bool, error) {
			var note Note
			if err := msgpack.Unmarshal(b, &note); err != nil {
				return false, err
			}
			if note.Kind == kind {
				out = append(out, note)
			}
			return n <= 0 || len(out) < n, nil
		})
	})
	return out, err
}

// RecentFiles returns up to n artifact records, newest first.
func (s *Store) RecentFiles(_ context.Context, n int) ([]FileRecord, error) {
	var all []FileRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, []byte(TableFiles+":"), false, 0, func(b []byte) (bool, error) {
			var f FileRecord
			if err := msgpack.Unmarshal(b, &f); err != nil {
				return false, err
			}
			all = append(all, f)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	// File rows are keyed by category/name, so recency needs a sort.
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// RecentSessions returns up to n sessions, newest first.
func (s *Store) RecentSessions(_ context.Context, n int) ([]Session, error) {
	var out []Session
	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, []byte(TableSessions+":"), true, n, func(b []byte) (bool, error) {
			var sess Session
			if err := msgpack.Unmarshal(b, &sess); err != nil {
				return false, err
			}
			out = append(out, sess)
			return true, nil
		})
	})
	return out, err
}

// ActiveProjects returns every project whose status is active.
func (s *Store) ActiveProjects(_ context.Context) ([]Project, error) {
	var out []Project
	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, []byte(TableProjects+":"), false, 0, func(b []byte) (bool, error) {
			var p Project
			if err := msgpack.Unmarshal(b, &p); err != nil {
				return false, err
			}
			if p.Status == ProjectActive {
				out = append(out, p)
			}
			return true, nil
		})
	})
	return out, err
}

// Stats counts the rows in every table.
func (s *Store) Stats(_ context.Context) (map[string]int, error) {
	out := make(map[string]int, len(Tables))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, table := range Tables {
			n := 0
			err := forEach(txn, []byte(table+":"), false, 0, func([]byte) (bool, error) {
				n++
				return true, nil
			})
			if err != nil {
				return err
			}
			out[table] = n
		}
		return nil
	})
	return out, err
}

// Context assembles the working-state digest: the open session, recent
// notes, sessions and files, active projects, the pending reminder,
// decision and bug notes, and per-table counts.
func (s *Store) Context(ctx context.Context, recent int) (*ContextSnapshot, error) {
	snap := &ContextSnapshot{GeneratedAt: s.now()}

	sessions, err := s.RecentSessions(ctx, recent)
	if err != nil {
		return nil, err
	}
	snap.RecentSessions = sessions
	for i := range sessions {
		if sessions[i].Active() {
			snap.ActiveSession = &sessions[i]
			break
		}
	}

	if snap.RecentNotes, err = s.RecentNotes(ctx, recent); err != nil {
		return nil, err
	}
	if snap.ActiveProjects, err = s.ActiveProjects(ctx); err != nil {
		return nil, err
	}
	if snap.Reminders, err = s.NotesByKind(ctx, KindReminder, recent); err != nil {
		return nil, err
	}
	if snap.Decisions, err = s.NotesByKind(ctx, KindDecision, recent); err != nil {
		return nil, err
	}
	if snap.Bugs, err = s.NotesByKind(ctx, KindBug, recent); err != nil {
		return nil, err
	}
	if snap.RecentFiles, err = s.RecentFiles(ctx, recent); err != nil {
		return nil, err
	}
	if snap.Stats, err = s.Stats(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// forEach walks the values under prefix, newest first when reverse is
// set, stopping after limit rows (0 means all) or when fn returns false.
func forEach(txn *badger.Txn, prefix []byte, reverse bool, limit int, fn func(val []byte) (bool, error)) error {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	iterOpts.Reverse = reverse
	it := txn.NewIterator(iterOpts)
	defer it.Close()

	seek := prefix
	if reverse {
		// Seek past the last key in the prefix range.
		seek = append(append([]byte{}, prefix...), 0xff)
	}

	n := 0
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		var (
			cont bool
			err  error
		)
		verr := it.Item().Value(func(b []byte) error {
			cont, err = fn(b)
			return nil
		})
		if verr != nil {
			return verr
		}
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		n++
		if limit > 0 && n >= limit {
			return nil
		}
	}
	return nil
}

// slogAdapter routes badger's logger to slog, dropping info and debug.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Errorf(f string, v ...any)   { a.l.Error(fmt.Sprintf("badger: "+f, v...)) }
func (a slogAdapter) Warningf(f string, v ...any) { a.l.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (a slogAdapter) Infof(string, ...any)        {}
func (a slogAdapter) Debugf(string, ...any)       {}
