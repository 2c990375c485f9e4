package scan

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/NSAlexeyMK/noblindezone/internal/event"
	"github.com/NSAlexeyMK/noblindezone/internal/source"
)

// Window is the default lookback for "recent", anchored to process-start
// time in UTC.
const Window = time.Minute

// Batches drains a registry-style source and returns the records that fall
// inside [now-window, now]. Every record in a batch is checked against the
// threshold individually; intra-batch ordering is never assumed. Reading
// stops once a whole batch falls outside the window, since batches
// themselves do arrive newest-logs-first.
func Batches(r source.BatchReader, now time.Time, window time.Duration) []event.Raw {
	threshold := now.Add(-window)
	var out []event.Raw

	for {
		batch, err := r.ReadBatch()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("batch read failed, stopping scan", "error", err)
			}
			return out
		}
		if len(batch) == 0 {
			return out
		}

		anyInWindow := false
		for _, raw := range batch {
			if raw.Time.Before(threshold) {
				continue
			}
			anyInWindow = true
			out = append(out, raw)
		}
		if !anyInWindow {
			return out
		}
	}
}

// Query drains a window query until exhausted.
func Query(it source.Iterator, now time.Time, window time.Duration) []event.Raw {
	threshold := now.Add(-window)
	var out []event.Raw
	for {
		raw, err := it.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("query read failed, stopping scan", "error", err)
			}
			return out
		}
		if raw.Time.Before(threshold) {
			continue
		}
		out = append(out, raw)
	}
}
