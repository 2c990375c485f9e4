package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/NSAlexeyMK/noblindezone/internal/archive"
	"github.com/NSAlexeyMK/noblindezone/internal/classify"
	"github.com/NSAlexeyMK/noblindezone/internal/config"
	"github.com/NSAlexeyMK/noblindezone/internal/event"
	"github.com/NSAlexeyMK/noblindezone/internal/journal"
	"github.com/NSAlexeyMK/noblindezone/internal/notify"
	"github.com/NSAlexeyMK/noblindezone/internal/report"
	"github.com/NSAlexeyMK/noblindezone/internal/reputation"
	"github.com/NSAlexeyMK/noblindezone/internal/scan"
	"github.com/NSAlexeyMK/noblindezone/internal/source"
	"github.com/NSAlexeyMK/noblindezone/internal/state"
)

// categoryPlan binds a category to the sources it is decoded from.
type categoryPlan struct {
	category event.Category
	sources  []string
	query    bool
}

// The Security log feeds four categories and is scanned once per category;
// watermarks are per category, so the overlap never double-reports.
var plans = []categoryPlan{
	{category: event.Startup, sources: []string{config.SourceSystem}},
	{category: event.Logon, sources: []string{config.SourceSecurity}},
	{category: event.PrivilegeAssignment, sources: []string{config.SourceSecurity}},
	{category: event.TaskCreation, sources: []string{config.SourceSecurity}},
	{category: event.ServiceChange, sources: []string{config.SourceSecurity, config.SourceSystem}},
	{category: event.ProcessCreation, sources: []string{config.SourceSysmon}, query: true},
}

// Pipeline is one run's worth of scan-classify-dedup-notify. All durable
// state is passed in explicitly at run start and flushed before Run
// returns; nothing survives in process memory between runs.
type Pipeline struct {
	RunID      string
	Sources    source.Catalog
	Notifier   notify.Notifier
	Reputation reputation.Resolver
	Watermarks *state.WatermarkStore
	Identity   *state.IdentityCache
	RepCache   *state.ReputationCache
	Journal    *journal.Store
	Rollover   *report.Rollover
	Archive    *archive.Store // nil disables archiving
	Window     time.Duration

	// Now anchors the scan window; tests pin it.
	Now func() time.Time
}

// Run performs one full pass. Internal failures are reported and worked
// around; the only errors that escape are ones the caller cannot continue
// past, and there are none today.
func (p *Pipeline) Run(ctx context.Context) error {
	now := p.Now().UTC()

	if p.Rollover != nil {
		if err := p.Rollover.Run(ctx, now); err != nil {
			p.reportError(ctx, fmt.Sprintf("daily report failed: %v", err))
		}
	}

	if err := p.Identity.Load(now); err != nil {
		p.reportError(ctx, fmt.Sprintf("could not read identity cache: %v", err))
	}
	// Persist the pruned set right away so expired identifiers do not
	// resurrect if this run crashes before the final save.
	if err := p.Identity.Save(); err != nil {
		p.reportError(ctx, fmt.Sprintf("could not rewrite identity cache: %v", err))
	}
	if err := p.RepCache.Load(); err != nil {
		p.reportError(ctx, fmt.Sprintf("could not read reputation cache: %v", err))
	}

	for _, plan := range plans {
		p.runCategory(ctx, plan, now)
	}

	if err := p.Identity.Save(); err != nil {
		p.reportError(ctx, fmt.Sprintf("could not save identity cache: %v", err))
	}
	return nil
}

func (p *Pipeline) runCategory(ctx context.Context, plan categoryPlan, now time.Time) {
	raws := p.collect(ctx, plan, now)

	var events []event.Event
	for _, raw := range raws {
		ev, ok := classify.Classify(raw)
		if !ok || ev.Category != plan.category {
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		slog.Debug("no events of interest", "category", plan.category)
		return
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })

	var qualifying []event.Event
	if plan.category == event.ProcessCreation {
		qualifying = p.dedupProcesses(ctx, events)
	} else {
		wm, has := p.Watermarks.Read(plan.category)
		for _, ev := range events {
			if has && !ev.Time.After(wm) {
				continue
			}
			qualifying = append(qualifying, ev)
		}
	}
	if len(qualifying) == 0 {
		return
	}

	p.dispatch(ctx, plan.category, qualifying)

	// Watermark advances once dispatch has been attempted, regardless of
	// delivery outcome: a lost notification is not retried.
	maxTime := qualifying[len(qualifying)-1].Time
	wm, has := p.Watermarks.Read(plan.category)
	if !has || maxTime.After(wm) {
		if err := p.Watermarks.Write(plan.category, maxTime); err != nil {
			p.reportError(ctx, fmt.Sprintf("could not write %s watermark: %v", plan.category, err))
		}
	}
}

// collect pulls raw records from every source the category is decoded
// from. A source that cannot be opened is reported and skipped; the
// category still sees whatever its remaining sources yield.
func (p *Pipeline) collect(ctx context.Context, plan categoryPlan, now time.Time) []event.Raw {
	var raws []event.Raw
	for _, name := range plan.sources {
		if plan.query {
			it, err := p.Sources.Query(name, now.Add(-p.Window))
			if err != nil {
				p.reportError(ctx, fmt.Sprintf("could not open %s log: %v", name, err))
				continue
			}
			raws = append(raws, scan.Query(it, now, p.Window)...)
			_ = it.Close()
			continue
		}

		r, err := p.Sources.Open(name)
		if err != nil {
			p.reportError(ctx, fmt.Sprintf("could not open %s log: %v", name, err))
			continue
		}
		raws = append(raws, scan.Batches(r, now, p.Window)...)
		_ = r.Close()
	}
	return raws
}

// dedupProcesses drops process events whose identifier is already cached,
// enriches the rest with a reputation verdict, and records the new
// identifiers. Presence in the cache wins over any timestamp comparison.
func (p *Pipeline) dedupProcesses(ctx context.Context, events []event.Event) []event.Event {
	var fresh []event.Event
	for _, ev := range events {
		guid := ev.Process.GUID
		if p.Identity.Seen(guid) {
			slog.Debug("process already seen", "guid", guid)
			continue
		}
		ev.Process.Verdict = p.resolveVerdict(ctx, ev.Process.SHA256)
		fresh = append(fresh, ev)
		p.Identity.Add(guid, ev.Time)
	}
	return fresh
}

func (p *Pipeline) resolveVerdict(ctx context.Context, hash string) string {
	if hash == "" {
		return "not checked"
	}
	if v, ok := p.RepCache.Get(hash); ok {
		return v
	}
	verdict, err := p.Reputation.Lookup(ctx, hash)
	if err != nil {
		// Transient: surface in the notification, do not cache, retry on
		// the hash's next occurrence.
		return fmt.Sprintf("error: %v", err)
	}
	if verdict.Definitive {
		if err := p.RepCache.Put(hash, verdict.Result); err != nil {
			p.reportError(ctx, fmt.Sprintf("could not save reputation cache: %v", err))
		}
	}
	return verdict.Result
}

// dispatch notifies, journals, and archives the qualifying events. For
// Startup only the newest event is announced (a burst of startup records
// collapses to one message) but every event still reaches the journal.
func (p *Pipeline) dispatch(ctx context.Context, c event.Category, events []event.Event) {
	newest := events[len(events)-1]
	for _, ev := range events {
		if c != event.Startup || ev.Time.Equal(newest.Time) {
			if err := p.Notifier.SendMessage(ctx, notify.Message(ev)); err != nil {
				slog.Error("notification failed", "category", c, "error", err)
			}
		}

		summary := notify.Summary(ev)
		if err := p.Journal.Append(c, journal.Entry{Time: ev.Time, Summary: summary}); err != nil {
			p.reportError(ctx, fmt.Sprintf("could not append %s journal: %v", c, err))
		}
		if p.Archive != nil {
			if err := p.Archive.Insert(ctx, p.RunID, ev, summary); err != nil {
				slog.Error("archive insert failed", "category", c, "error", err)
			}
		}
	}
	slog.Info("events dispatched", "category", c, "count", len(events))
}

// reportError makes a failure user-visible through the message path in
// addition to the local log.
func (p *Pipeline) reportError(ctx context.Context, msg string) {
	slog.Error(msg)
	if err := p.Notifier.SendMessage(ctx, "📋 Error: "+msg); err != nil {
		slog.Error("error report failed", "error", err)
	}
}
