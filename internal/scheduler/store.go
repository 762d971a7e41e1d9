package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Store persists the schedule table as a single JSON file. Writes replace the
// whole table through a temp-file-and-rename so a crash mid-save can never
// leave a partially written table behind. The store has no locking of its
// own; the owning Scheduler serializes all access.
type Store struct {
	path string
}

// NewStore creates a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// tableEnvelope is the persisted file layout.
type tableEnvelope struct {
	Workflows []json.RawMessage `json:"workflows"`
	LastSaved time.Time         `json:"last_saved"`
}

// Load reads the full table. A missing file is an empty table. An unreadable
// or malformed file fails with ErrCorruptStore so the caller can start empty
// and log rather than crash. Individual records that fail to decode are
// skipped and logged; the rest of the table still loads.
func (s *Store) Load() ([]*Workflow, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorruptStore, s.path, err)
	}

	var envelope tableEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrCorruptStore, s.path, err)
	}

	workflows := make([]*Workflow, 0, len(envelope.Workflows))
	for i, raw := range envelope.Workflows {
		var w Workflow
		if err := json.Unmarshal(raw, &w); err != nil {
			log.Warn().
				Err(err).
				Int("record", i).
				Str("path", s.path).
				Msg("Skipping undecodable workflow record")
			continue
		}
		workflows = append(workflows, &w)
	}

	return workflows, nil
}

// Save atomically overwrites the table with the given records.
func (s *Store) Save(workflows []*Workflow) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	envelope := tableEnvelope{
		Workflows: make([]json.RawMessage, 0, len(workflows)),
		LastSaved: time.Now().UTC(),
	}
	for _, w := range workflows {
		raw, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("encoding workflow %s: %w", w.ID, err)
		}
		envelope.Workflows = append(envelope.Workflows, raw)
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schedule table: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp table file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp table file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp table file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp table file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing schedule table: %w", err)
	}
	return nil
}

// Get loads the table and returns the record with the given id, or nil when
// no such record exists.
func (s *Store) Get(id string) (*Workflow, error) {
	workflows, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, w := range workflows {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, nil
}
