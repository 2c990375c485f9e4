package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NSAlexeyMK/noblindezone/internal/event"
	"github.com/NSAlexeyMK/noblindezone/internal/normalize"
)

// Store is the durable audit archive: every qualifying classified event is
// recorded with its run id, category, and original fields, keyed by a
// content-derived id so re-observed events are idempotent inserts.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("archive path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  event_id TEXT NOT NULL UNIQUE,
  run_id TEXT NOT NULL,
  category TEXT NOT NULL,
  code INTEGER NOT NULL,
  ts TEXT NOT NULL,
  summary TEXT NOT NULL,
  fields_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
`)
	return err
}

// EventID derives the archive key for an event from its identifying
// content, so the same event observed twice maps to one row.
func EventID(ev event.Event) string {
	return "evt-" + normalize.SHA1Hex(fmt.Sprintf("%s|%d|%s|%s",
		ev.Category, ev.Code, ev.Time.UTC().Format(time.RFC3339Nano), strings.Join(ev.Fields, "\x1f")))
}

// Insert records one classified event. Duplicate event ids are ignored.
func (s *Store) Insert(ctx context.Context, runID string, ev event.Event, summary string) error {
	if ev.Time.IsZero() {
		return errors.New("event timestamp is zero")
	}
	fields, err := json.Marshal(ev.Fields)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events(event_id, run_id, category, code, ts, summary, fields_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		EventID(ev),
		runID,
		string(ev.Category),
		ev.Code,
		ev.Time.UTC().Format(time.RFC3339Nano),
		summary,
		string(fields),
	)
	return err
}

// CountByCategory returns how many archived events a category holds.
func (s *Store) CountByCategory(ctx context.Context, c event.Category) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE category = ?`, string(c)).Scan(&n)
	return n, err
}
