package state

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/NSAlexeyMK/noblindezone/internal/event"
	"github.com/NSAlexeyMK/noblindezone/internal/normalize"
)

// timestampGrammar is the strict shape a watermark file must hold before it
// is even handed to the parser. Anything else is treated as corruption.
var timestampGrammar = regexp.MustCompile(`^[\dT:+\-.Z]+$`)

// WatermarkStore persists, per category, the timestamp of the newest event
// already processed. One small text file per category; absent means "no
// prior run". The store self-heals: malformed content is deleted on read,
// but a lock or permission failure leaves the file alone and is treated as
// absent for this run only.
type WatermarkStore struct {
	Dir string
}

func (s *WatermarkStore) path(c event.Category) string {
	return filepath.Join(s.Dir, "last_"+string(c)+".log")
}

// Read returns the stored watermark and whether one exists.
func (s *WatermarkStore) Read(c event.Category) (time.Time, bool) {
	p := s.path(c)
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false
		}
		// Locked or unreadable: the content may still be valid, so do not
		// destroy it over a transient condition.
		slog.Warn("watermark unreadable, treating as absent", "category", c, "path", p, "error", err)
		return time.Time{}, false
	}

	raw := strings.TrimSpace(string(b))
	if raw == "" || !timestampGrammar.MatchString(raw) {
		slog.Warn("watermark malformed, deleting", "category", c, "path", p)
		_ = os.Remove(p)
		return time.Time{}, false
	}
	ts, err := normalize.ParseTimeFlexible(raw)
	if err != nil {
		slog.Warn("watermark unparsable, deleting", "category", c, "path", p, "error", err)
		_ = os.Remove(p)
		return time.Time{}, false
	}
	return ts.UTC(), true
}

// Write overwrites the category's watermark with the canonical form of t.
// Callers only advance: they pass the run's maximum qualifying timestamp
// and skip the call when it does not exceed the stored value.
func (s *WatermarkStore) Write(c event.Category, t time.Time) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path(c), []byte(t.UTC().Format(time.RFC3339Nano)), 0o644)
}
