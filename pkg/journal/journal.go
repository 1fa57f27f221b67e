// Package journal is an optional, façade-owned append-only record of
// issued commands and the responses they produced, persisted across
// process runs for offline inspection. On a nil *Store, Record and
// Close are no-ops (Entries returns an error), so the core engine never
// has a hard dependency on it.
package journal

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const entryBucket = "commands"

// Store wraps a BoltDB instance for persisting issued façade commands.
type Store struct {
	db *bbolt.DB
}

// Entry captures one façade command and the response it produced.
type Entry struct {
	ID         uint64    `json:"id"`
	At         time.Time `json:"at"`
	Device     string    `json:"device"`
	Command    string    `json:"command"`
	CommandFmt string    `json:"command_detail"`
	Response   string    `json:"response"`
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(entryBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database. Safe to call on a nil Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one command/response pair. A nil Store is a no-op, so
// callers never need to branch on whether journaling is enabled.
func (s *Store) Record(device, command, commandDetail, response string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(entryBucket))
		id, _ := b.NextSequence()
		entry := Entry{
			ID:         id,
			At:         at,
			Device:     device,
			Command:    command,
			CommandFmt: commandDetail,
			Response:   response,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
}

// Entries returns up to limit most recent entries, newest first. Returns
// an error if called on a nil or unopened Store.
func (s *Store) Entries(limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("journal: store not opened")
	}
	if limit <= 0 {
		limit = 100
	}
	entries := make([]Entry, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(entryBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(entries) < limit; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

func itob(v uint64) []byte {
	var b [8]byte
	for i := uint(0); i < 8; i++ {
		b[7-i] = byte(v >> (i * 8))
	}
	return b[:]
}
