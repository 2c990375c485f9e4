package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NSAlexeyMK/noblindezone/internal/event"
	"github.com/NSAlexeyMK/noblindezone/internal/journal"
	"github.com/NSAlexeyMK/noblindezone/internal/state"
)

var (
	day1 = time.Date(2026, 8, 28, 18, 30, 0, 0, time.UTC)
	day2 = time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
)

type fakeNotifier struct {
	messages  []string
	documents []string
	fail      bool
}

func (n *fakeNotifier) SendMessage(_ context.Context, text string) error {
	if n.fail {
		return errors.New("telegram unreachable")
	}
	n.messages = append(n.messages, text)
	return nil
}

func (n *fakeNotifier) SendDocument(_ context.Context, path string) error {
	if n.fail {
		return errors.New("telegram unreachable")
	}
	n.documents = append(n.documents, path)
	return nil
}

func TestTextRendererWritesDatedArtifact(t *testing.T) {
	r := &TextRenderer{Dir: t.TempDir()}
	sections := []Section{
		{Title: "Logons", Entries: []journal.Entry{
			{Time: day1, Summary: "alice logged on"},
		}},
		{Title: "Task creations"}, // empty, should be omitted
	}

	path, err := r.Render(day1, sections)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "report_2026-08-28.txt"))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "Event report for 2026-08-28")
	assert.Contains(t, text, "Logons:")
	assert.Contains(t, text, "alice logged on")
	assert.NotContains(t, text, "Task creations")
}

func TestTextRendererPaginates(t *testing.T) {
	r := &TextRenderer{Dir: t.TempDir()}
	var entries []journal.Entry
	for i := 0; i < 60; i++ {
		entries = append(entries, journal.Entry{Time: day1, Summary: fmt.Sprintf("event %d", i)})
	}

	path, err := r.Render(day1, []Section{{Title: "Logons", Entries: entries}})
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "----- page 2 -----")
}

func newRollover(t *testing.T, notifier *fakeNotifier) (*Rollover, *journal.Store, *state.WatermarkStore) {
	t.Helper()
	dir := t.TempDir()
	wm := &state.WatermarkStore{Dir: dir}
	js := &journal.Store{Dir: dir}
	return &Rollover{
		Watermarks: wm,
		Journal:    js,
		Renderer:   &TextRenderer{Dir: dir},
		Notifier:   notifier,
	}, js, wm
}

func TestRolloverNoWatermarkIsNoop(t *testing.T) {
	notifier := &fakeNotifier{}
	r, _, _ := newRollover(t, notifier)
	require.NoError(t, r.Run(context.Background(), day2))
	assert.Empty(t, notifier.documents)
}

func TestRolloverSameDayIsNoop(t *testing.T) {
	notifier := &fakeNotifier{}
	r, js, wm := newRollover(t, notifier)
	require.NoError(t, wm.Write(event.Startup, day2.Add(-time.Hour)))
	require.NoError(t, js.Append(event.Logon, journal.Entry{Time: day2.Add(-time.Hour), Summary: "x"}))

	require.NoError(t, r.Run(context.Background(), day2))
	assert.Empty(t, notifier.documents)

	entries, err := js.Entries(event.Logon)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "journal untouched without a rollover")
}

func TestRolloverRendersStaleDayAndClears(t *testing.T) {
	notifier := &fakeNotifier{}
	r, js, wm := newRollover(t, notifier)
	require.NoError(t, wm.Write(event.Startup, day1))
	require.NoError(t, js.Append(event.Logon, journal.Entry{Time: day1, Summary: "stale-day logon"}))
	require.NoError(t, js.Append(event.Logon, journal.Entry{Time: day2, Summary: "new-day logon"}))

	require.NoError(t, r.Run(context.Background(), day2))
	require.Len(t, notifier.documents, 1)

	body, err := os.ReadFile(notifier.documents[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "stale-day logon")
	assert.NotContains(t, string(body), "new-day logon")

	for _, c := range event.Categories() {
		entries, err := js.Entries(c)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestRolloverFailureKeepsJournals(t *testing.T) {
	notifier := &fakeNotifier{fail: true}
	r, js, wm := newRollover(t, notifier)
	require.NoError(t, wm.Write(event.Startup, day1))
	require.NoError(t, js.Append(event.PrivilegeAssignment, journal.Entry{Time: day1, Summary: "kept"}))

	err := r.Run(context.Background(), day2)
	require.Error(t, err)

	entries, err := js.Entries(event.PrivilegeAssignment)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed dispatch must not clear journals")
}
