package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

func SHA1Hex(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

// ParseTimeFlexible accepts the timestamp shapes exported event records
// carry: RFC3339 with or without fractional seconds, and the bare
// seconds-precision form used by older log exporters.
func ParseTimeFlexible(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999-0700",
		"2006-01-02T15:04:05.999999Z0700",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unsupported time format")
}
