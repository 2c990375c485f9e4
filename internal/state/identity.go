package state

import (
	"bufio"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Retention horizon for seen process identifiers. Entries older than this
// are dropped at the start of every run, before new identifiers are
// considered.
const IdentityRetention = 24 * time.Hour

const identityTimeLayout = "2006-01-02T15:04:05"

// IdentityCache is the durable set of recently seen unique process
// identifiers. It is loaded once per run, pruned by age, consulted for
// dedup, and fully rewritten at run end with the live entries plus any
// newly observed ones. The file holds one "identifier|timestamp" line per
// entry.
type IdentityCache struct {
	path    string
	entries map[string]time.Time
}

func NewIdentityCache(dir string) *IdentityCache {
	return &IdentityCache{
		path:    filepath.Join(dir, "sysmon_seen.log"),
		entries: make(map[string]time.Time),
	}
}

// Load reads the persisted set, dropping entries older than the retention
// horizon and any line that fails to parse. A missing file is an empty
// cache; an unreadable file is logged and treated as empty for this run.
func (c *IdentityCache) Load(now time.Time) error {
	c.entries = make(map[string]time.Time)
	cutoff := now.Add(-IdentityRetention)

	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		slog.Warn("identity cache unreadable, starting empty", "path", c.path, "error", err)
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		id, tsStr, ok := strings.Cut(line, "|")
		if !ok || id == "" {
			continue
		}
		ts, err := time.Parse(identityTimeLayout, tsStr)
		if err != nil {
			slog.Warn("identity cache line unparsable, dropping", "line", line, "error", err)
			continue
		}
		ts = ts.UTC()
		if ts.After(cutoff) {
			c.entries[id] = ts
		}
	}
	return sc.Err()
}

// Seen reports whether the identifier is already in the cache.
func (c *IdentityCache) Seen(id string) bool {
	_, ok := c.entries[id]
	return ok
}

// Add records a newly observed identifier with its first-seen timestamp.
func (c *IdentityCache) Add(id string, firstSeen time.Time) {
	c.entries[id] = firstSeen.UTC()
}

// Len returns the number of live entries.
func (c *IdentityCache) Len() int {
	return len(c.entries)
}

// Save rewrites the whole file from the in-memory set.
func (c *IdentityCache) Save() error {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('|')
		b.WriteString(c.entries[id].Format(identityTimeLayout))
		b.WriteByte('\n')
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
