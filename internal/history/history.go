// Package history keeps an optional append-only log of transcriptions in a
// JSON file. The log is bounded: once the configured capacity is reached the
// oldest entries are dropped. Audio is never persisted, only text and
// timing metadata.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the history file size.
const DefaultMaxEntries = 100

// Entry is one recorded transcription.
type Entry struct {
	Text              string    `json:"text"`
	Timestamp         time.Time `json:"timestamp"`
	Language          string    `json:"language,omitempty"`
	AudioDuration     float64   `json:"audio_duration"`
	TranscriptionTime float64   `json:"transcription_time"`
}

// Store is a bounded, file-backed transcription log. All methods are safe
// for concurrent use.
type Store struct {
	mu         sync.Mutex
	path       string
	maxEntries int
	entries    []Entry
	log        *slog.Logger
}

// Option is a functional option for configuring a Store.
type Option func(*Store)

// WithMaxEntries bounds how many entries are kept; older ones are evicted.
func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

// WithLogger sets the logger for load/save diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open loads the history file at path, creating parent directories as
// needed. A missing file yields an empty store; a corrupt file is logged and
// replaced on the next save rather than aborting startup.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:       path,
		maxEntries: DefaultMaxEntries,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.maxEntries <= 0 {
		s.maxEntries = DefaultMaxEntries
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		s.log.Warn("history file is corrupt, starting fresh", "path", path, "error", err)
		s.entries = nil
		return s, nil
	}
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
	}
	return s, nil
}

// Add appends an entry, evicts past capacity, and persists immediately so a
// crash never loses more than the in-flight entry.
func (s *Store) Add(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[len(s.entries)-s.maxEntries:]
	}
	return s.save()
}

// Entries returns a copy of the log, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear removes all entries and persists the empty log.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return s.save()
}

// save writes the log atomically: full write to a temp file, then rename.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("history: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("history: rename %s: %w", tmp, err)
	}
	return nil
}
