package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NSAlexeyMK/noblindezone/internal/event"
	"github.com/NSAlexeyMK/noblindezone/internal/journal"
	"github.com/NSAlexeyMK/noblindezone/internal/notify"
	"github.com/NSAlexeyMK/noblindezone/internal/state"
)

// Rollover detects a day-boundary crossing and, when found, renders and
// ships the stale day's report. The check keys off the Startup category's
// watermark: its stored date predating today means a day has passed since
// the last processed startup activity.
type Rollover struct {
	Watermarks *state.WatermarkStore
	Journal    *journal.Store
	Renderer   Renderer
	Notifier   notify.Notifier
}

// Run performs the rollover check once. Journals are cleared only after a
// successful dispatch; on failure they stay intact so a later invocation
// can pick them up.
func (r *Rollover) Run(ctx context.Context, now time.Time) error {
	wm, ok := r.Watermarks.Read(event.Startup)
	if !ok {
		return nil
	}

	last := wm.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	if !last.Before(today) {
		return nil
	}

	slog.Info("day boundary crossed, rendering report", "report_date", last.Format("2006-01-02"))

	var sections []Section
	for _, c := range event.Categories() {
		entries, err := r.Journal.Entries(c)
		if err != nil {
			slog.Warn("journal unreadable for report", "category", c, "error", err)
			continue
		}
		var matched []journal.Entry
		for _, e := range entries {
			if e.Time.UTC().Truncate(24 * time.Hour).Equal(last) {
				matched = append(matched, e)
			}
		}
		sections = append(sections, Section{Title: c.Title(), Entries: matched})
	}

	path, err := r.Renderer.Render(last, sections)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := r.Notifier.SendDocument(ctx, path); err != nil {
		return fmt.Errorf("send report: %w", err)
	}

	// All category journals are cleared together: entries that belonged to
	// the rolled-over day are gone, and anything appended after this point
	// belongs to the new day.
	if err := r.Journal.Clear(); err != nil {
		return fmt.Errorf("clear journals: %w", err)
	}
	slog.Info("report dispatched and journals cleared", "artifact", path)
	return nil
}
