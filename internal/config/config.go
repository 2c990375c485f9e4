package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	TelegramToken  string
	TelegramChatID string
	VTAPIKey       string

	// AMQPURL enables the queue fan-out sink when set.
	AMQPURL string

	StateDir    string
	ArchivePath string
	LockFile    string
	SourcesPath string

	Window time.Duration
}

// LoadFromEnv builds the run configuration from environment variables (the
// process .env, if present, is folded in by main before this runs).
func LoadFromEnv() (Config, error) {
	var cfg Config

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	cfg.TelegramChatID = strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID"))
	cfg.VTAPIKey = strings.TrimSpace(os.Getenv("VT_API_KEY"))
	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))

	cfg.StateDir = strings.TrimSpace(os.Getenv("NBZ_STATE_DIR"))
	if cfg.StateDir == "" {
		cfg.StateDir = "."
	}
	cfg.ArchivePath = strings.TrimSpace(os.Getenv("NBZ_ARCHIVE_PATH"))
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = cfg.StateDir + "/archive.sqlite"
	}
	cfg.LockFile = strings.TrimSpace(os.Getenv("NBZ_LOCK_FILE"))
	if cfg.LockFile == "" {
		cfg.LockFile = "lockfile.lock"
	}
	cfg.SourcesPath = strings.TrimSpace(os.Getenv("NBZ_SOURCES_CONFIG"))
	if cfg.SourcesPath == "" {
		cfg.SourcesPath = "sources.yml"
	}

	cfg.Window = time.Minute
	if w := strings.TrimSpace(os.Getenv("NBZ_SCAN_WINDOW")); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil {
			return Config{}, fmt.Errorf("NBZ_SCAN_WINDOW is not a duration: %q", w)
		}
		cfg.Window = d
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if c.TelegramChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if c.VTAPIKey == "" {
		missing = append(missing, "VT_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	if c.Window <= 0 {
		return fmt.Errorf("scan window must be positive, got %s", c.Window)
	}
	return nil
}
