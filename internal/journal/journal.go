package journal

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/NSAlexeyMK/noblindezone/internal/event"
)

// Entry is one accumulated line of the daily report.
type Entry struct {
	Time    time.Time `json:"time"`
	Summary string    `json:"summary"`
}

// Store is the append-only, per-category accumulating record of classified
// events since the last report. Each category owns one JSON array file.
// Appends are read-modify-write, not atomic: a crash between read and write
// can lose the append, which the next run tolerates.
type Store struct {
	Dir string
}

func (s *Store) path(c event.Category) string {
	return filepath.Join(s.Dir, "events_"+string(c)+".json")
}

// Append adds an entry to the category's journal, creating the file as an
// empty array first if absent. A corrupt journal is reset to empty rather
// than failing the run.
func (s *Store) Append(c event.Category, e Entry) error {
	entries, err := s.Entries(c)
	if err != nil {
		return err
	}
	entries = append(entries, e)
	return s.write(c, entries)
}

// Entries reads the category's journal. Missing file means no entries;
// corrupt content is logged and treated as empty.
func (s *Store) Entries(c event.Category) ([]Entry, error) {
	b, err := os.ReadFile(s.path(c))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		slog.Warn("journal corrupt, treating as empty", "category", c, "error", err)
		return nil, nil
	}
	return entries, nil
}

// Clear resets every category's journal to an empty array. Called only
// after a successful report dispatch. Per-file failures are logged and the
// rest are still cleared.
func (s *Store) Clear() error {
	var errs []error
	for _, c := range event.Categories() {
		if err := s.write(c, nil); err != nil {
			slog.Warn("journal clear failed", "category", c, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) write(c event.Category, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path(c), b, 0o644)
}
