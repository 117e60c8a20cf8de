package store

import (
	"context"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// maxQueryLimit caps the row count of a single query response so one
// command can't balloon past what the line protocol can carry sensibly.
const maxQueryLimit = 200

// Query returns rows from the named table as generic maps, newest first
// for numeric-keyed tables. Filters match by field: string fields match
// on case-insensitive substring, everything else on exact rendering.
func (s *Store) Query(_ context.Context, table string, filters map[string]string, limit int) ([]map[string]any, error) {
	if !validTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	reverse := numericTable(table)

	var out []map[string]any
	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, []byte(table+":"), reverse, 0, func(b []byte) (bool, error) {
			var row map[string]any
			if err := msgpack.Unmarshal(b, &row); err != nil {
				return false, fmt.Errorf("store: decode %s row: %w", table, err)
			}
			if !matches(row, filters) {
				return true, nil
			}
			out = append(out, row)
			return len(out) < limit, nil
		})
	})
	return out, err
}

func validTable(table string) bool {
	for _, t := range Tables {
		if t == table {
			return true
		}
	}
	return false
}

func numericTable(table string) bool {
	switch table {
	case TableSessions, TableNotes, TableActivities, TableSearches:
		return true
	}
	return false
}

func matches(row map[string]any, filters map[string]string) bool {
	for field, want := range filters {
		got, ok := row[field]
		if !ok {
			return false
		}
		if sv, isStr := got.(string); isStr {
			if !strings.Contains(strings.ToLower(sv), strings.ToLower(want)) {
				return false
			}
			continue
		}
		if fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}
