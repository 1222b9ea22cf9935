package history

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func entry(text string) Entry {
	return Entry{
		Text:              text,
		Timestamp:         time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Language:          "fr",
		AudioDuration:     2.5,
		TranscriptionTime: 0.8,
	}
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s, err := Open(path, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("entries in fresh store: got %d, want 0", s.Len())
	}
}

func TestAddAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s, err := Open(path, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Add(entry("bonjour")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(entry("le monde")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reloaded, err := Open(path, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.Entries()
	if len(got) != 2 {
		t.Fatalf("reloaded entries: got %d, want 2", len(got))
	}
	if got[0].Text != "bonjour" || got[1].Text != "le monde" {
		t.Errorf("entry order: got %q, %q", got[0].Text, got[1].Text)
	}
	if got[0].Language != "fr" || got[0].AudioDuration != 2.5 {
		t.Errorf("entry fields lost on reload: %+v", got[0])
	}
}

func TestAdd_EvictsOldestPastCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s, err := Open(path, WithMaxEntries(3), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		if err := s.Add(entry(text)); err != nil {
			t.Fatalf("Add(%q): %v", text, err)
		}
	}

	got := s.Entries()
	if len(got) != 3 {
		t.Fatalf("entries: got %d, want 3", len(got))
	}
	if got[0].Text != "c" || got[2].Text != "e" {
		t.Errorf("eviction order wrong: first=%q last=%q", got[0].Text, got[2].Text)
	}
}

func TestOpen_CorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	s, err := Open(path, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("entries from corrupt file: got %d, want 0", s.Len())
	}

	// The store must still be writable afterwards.
	if err := s.Add(entry("recovered")); err != nil {
		t.Fatalf("Add after corrupt load: %v", err)
	}
}

func TestOpen_TrimsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s, err := Open(path, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, text := range []string{"a", "b", "c", "d"} {
		if err := s.Add(entry(text)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	small, err := Open(path, WithMaxEntries(2), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("reload with smaller cap: %v", err)
	}
	got := small.Entries()
	if len(got) != 2 {
		t.Fatalf("entries: got %d, want 2", len(got))
	}
	if got[0].Text != "c" || got[1].Text != "d" {
		t.Errorf("kept wrong entries: %q, %q", got[0].Text, got[1].Text)
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	s, err := Open(path, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Add(entry("a")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	reloaded, err := Open(path, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != 0 {
		t.Errorf("entries after clear: got %d, want 0", reloaded.Len())
	}
}
