package state

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ReputationCache maps content hashes to previously obtained verdicts. Only
// definitive verdicts live here; transient lookup errors are never cached,
// so a failed lookup is retried on the hash's next occurrence. The file is
// one JSON object, hash to verdict string.
type ReputationCache struct {
	path     string
	verdicts map[string]string
}

func NewReputationCache(dir string) *ReputationCache {
	return &ReputationCache{
		path:     filepath.Join(dir, "vt_cache.json"),
		verdicts: make(map[string]string),
	}
}

// Load reads the persisted map. A missing or corrupt file is an empty
// cache; corruption is logged, never fatal.
func (c *ReputationCache) Load() error {
	c.verdicts = make(map[string]string)

	b, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		slog.Warn("reputation cache unreadable, starting empty", "path", c.path, "error", err)
		return err
	}
	if err := json.Unmarshal(b, &c.verdicts); err != nil {
		slog.Warn("reputation cache corrupt, starting empty", "path", c.path, "error", err)
		c.verdicts = make(map[string]string)
	}
	return nil
}

// Get returns the cached verdict for a hash, if any.
func (c *ReputationCache) Get(hash string) (string, bool) {
	v, ok := c.verdicts[hash]
	return v, ok
}

// Put stores a definitive verdict and persists the map immediately, so a
// crash later in the run cannot cost the lookup.
func (c *ReputationCache) Put(hash, verdict string) error {
	c.verdicts[hash] = verdict
	return c.save()
}

// Len returns the number of cached verdicts.
func (c *ReputationCache) Len() int {
	return len(c.verdicts)
}

func (c *ReputationCache) save() error {
	b, err := json.MarshalIndent(c.verdicts, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
