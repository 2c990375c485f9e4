package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NSAlexeyMK/noblindezone/internal/config"
	"github.com/NSAlexeyMK/noblindezone/internal/event"
	"github.com/NSAlexeyMK/noblindezone/internal/journal"
	"github.com/NSAlexeyMK/noblindezone/internal/reputation"
	"github.com/NSAlexeyMK/noblindezone/internal/source"
	"github.com/NSAlexeyMK/noblindezone/internal/state"
)

var runNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

type captureNotifier struct {
	messages []string
}

func (n *captureNotifier) SendMessage(_ context.Context, text string) error {
	n.messages = append(n.messages, text)
	return nil
}

func (n *captureNotifier) SendDocument(_ context.Context, _ string) error { return nil }

func (n *captureNotifier) errorCount() int {
	c := 0
	for _, m := range n.messages {
		if strings.HasPrefix(m, "📋 Error:") {
			c++
		}
	}
	return c
}

type fakeResolver struct {
	verdicts map[string]reputation.Verdict
	err      error
	calls    int
}

func (r *fakeResolver) Lookup(_ context.Context, hash string) (reputation.Verdict, error) {
	r.calls++
	if r.err != nil {
		return reputation.Verdict{}, r.err
	}
	v, ok := r.verdicts[hash]
	if !ok {
		return reputation.Verdict{Result: reputation.NotFoundResult, Definitive: true}, nil
	}
	return v, nil
}

type testEnv struct {
	dir      string
	notifier *captureNotifier
	resolver *fakeResolver
	pipeline *Pipeline
}

// newEnv builds a pipeline over an empty state directory and three empty
// source logs. Tests append records to the logs they care about.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	paths := map[string]string{
		config.SourceSystem:   filepath.Join(dir, "system.jsonl"),
		config.SourceSecurity: filepath.Join(dir, "security.jsonl"),
		config.SourceSysmon:   filepath.Join(dir, "sysmon.jsonl"),
	}
	for _, p := range paths {
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	notifier := &captureNotifier{}
	resolver := &fakeResolver{verdicts: map[string]reputation.Verdict{}}
	return &testEnv{
		dir:      dir,
		notifier: notifier,
		resolver: resolver,
		pipeline: &Pipeline{
			RunID:      "run-test",
			Sources:    &source.FileCatalog{Paths: paths},
			Notifier:   notifier,
			Reputation: resolver,
			Watermarks: &state.WatermarkStore{Dir: dir},
			Identity:   state.NewIdentityCache(dir),
			RepCache:   state.NewReputationCache(dir),
			Journal:    &journal.Store{Dir: dir},
			Window:     time.Minute,
			Now:        func() time.Time { return runNow },
		},
	}
}

func (e *testEnv) appendRecord(t *testing.T, name, line string) {
	t.Helper()
	p := filepath.Join(e.dir, name+".jsonl")
	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
}

func (e *testEnv) run(t *testing.T) {
	t.Helper()
	require.NoError(t, e.pipeline.Run(context.Background()))
}

// fresh identity cache and caches reload from disk, the way a second process
// invocation would see them.
func (e *testEnv) nextRun(t *testing.T) {
	t.Helper()
	e.notifier.messages = nil
	e.pipeline.Identity = state.NewIdentityCache(e.dir)
	e.pipeline.RepCache = state.NewReputationCache(e.dir)
	e.run(t)
}

const processG1 = `{"code":1,"time":"2026-08-29T11:59:30Z","data":{"ProcessGuid":"{g1}","Image":"C:\\tools\\x.exe","CommandLine":"x --run","Hashes":"MD5=aa,SHA256=h1"}}`

func TestProcessFirstObservation(t *testing.T) {
	env := newEnv(t)
	env.resolver.verdicts["h1"] = reputation.Verdict{Result: "0/10", Definitive: true}
	env.appendRecord(t, "sysmon", processG1)

	env.run(t)

	require.Len(t, env.notifier.messages, 1)
	assert.Contains(t, env.notifier.messages[0], "h1")
	assert.Contains(t, env.notifier.messages[0], "0/10")
	assert.Equal(t, 1, env.resolver.calls)

	// Durable state after the run: identity cached, verdict cached, journaled.
	identity := state.NewIdentityCache(env.dir)
	require.NoError(t, identity.Load(runNow))
	assert.True(t, identity.Seen("{g1}"))

	rep := state.NewReputationCache(env.dir)
	require.NoError(t, rep.Load())
	v, ok := rep.Get("h1")
	assert.True(t, ok)
	assert.Equal(t, "0/10", v)

	entries, err := env.pipeline.Journal.Entries(event.ProcessCreation)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessSecondRunIsSilent(t *testing.T) {
	env := newEnv(t)
	env.appendRecord(t, "sysmon", processG1)
	env.run(t)
	require.Len(t, env.notifier.messages, 1)

	env.nextRun(t)

	assert.Empty(t, env.notifier.messages)
	assert.Equal(t, 1, env.resolver.calls, "cached identity means no second lookup")

	entries, err := env.pipeline.Journal.Entries(event.ProcessCreation)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "journal must not grow")
}

func TestProcessCachedVerdictSkipsLookup(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, env.pipeline.RepCache.Load())
	require.NoError(t, env.pipeline.RepCache.Put("h1", "3/70"))
	env.appendRecord(t, "sysmon", processG1)

	env.run(t)

	require.Len(t, env.notifier.messages, 1)
	assert.Contains(t, env.notifier.messages[0], "3/70")
	assert.Equal(t, 0, env.resolver.calls)
}

func TestProcessLookupErrorNotCached(t *testing.T) {
	env := newEnv(t)
	env.resolver.err = errors.New("quota exceeded")
	env.appendRecord(t, "sysmon", processG1)

	env.run(t)

	require.Len(t, env.notifier.messages, 1)
	assert.Contains(t, env.notifier.messages[0], "error: quota exceeded")

	rep := state.NewReputationCache(env.dir)
	require.NoError(t, rep.Load())
	_, ok := rep.Get("h1")
	assert.False(t, ok, "failed lookups must not be cached")

	// A later occurrence of the same hash under a new identifier retries.
	env.resolver.err = nil
	env.resolver.verdicts["h1"] = reputation.Verdict{Result: "1/60", Definitive: true}
	env.appendRecord(t, "sysmon",
		`{"code":1,"time":"2026-08-29T11:59:40Z","data":{"ProcessGuid":"{g2}","Image":"C:\\tools\\x.exe","Hashes":"SHA256=h1"}}`)
	env.nextRun(t)

	require.Len(t, env.notifier.messages, 1)
	assert.Contains(t, env.notifier.messages[0], "1/60")
	assert.Equal(t, 2, env.resolver.calls)
}

const logonAlice = `{"code":4624,"time":"2026-08-29T11:59:20Z","fields":["","","","","","alice","CORP","","2",""]}`

func TestLogonWatermarkSuppressesRepeat(t *testing.T) {
	env := newEnv(t)
	env.appendRecord(t, "security", logonAlice)

	env.run(t)
	require.Len(t, env.notifier.messages, 1)
	assert.Contains(t, env.notifier.messages[0], "alice")

	wm, ok := env.pipeline.Watermarks.Read(event.Logon)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 29, 11, 59, 20, 0, time.UTC), wm)

	// The record is still inside the window on the next run; the watermark
	// alone must keep it quiet.
	env.nextRun(t)
	assert.Empty(t, env.notifier.messages)
}

func TestLogonWatermarkAdvancesPastNewest(t *testing.T) {
	env := newEnv(t)
	env.appendRecord(t, "security", logonAlice)
	env.appendRecord(t, "security",
		`{"code":4624,"time":"2026-08-29T11:59:50Z","fields":["","","","","","bob","CORP","","7",""]}`)

	env.run(t)
	assert.Len(t, env.notifier.messages, 2)

	wm, ok := env.pipeline.Watermarks.Read(event.Logon)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 29, 11, 59, 50, 0, time.UTC), wm)
}

func TestMalformedWatermarkSelfHeals(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "last_logon.log"), []byte("not a timestamp"), 0o644))
	env.appendRecord(t, "security", logonAlice)

	env.run(t)

	// The malformed watermark reads as absent, so the event fires, and the
	// store rewrites the file in canonical form.
	require.Len(t, env.notifier.messages, 1)
	wm, ok := env.pipeline.Watermarks.Read(event.Logon)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 29, 11, 59, 20, 0, time.UTC), wm)
}

func TestStartupBurstCollapsesToOneMessage(t *testing.T) {
	env := newEnv(t)
	env.appendRecord(t, "system", `{"code":6005,"time":"2026-08-29T11:59:10Z"}`)
	env.appendRecord(t, "system", `{"code":6005,"time":"2026-08-29T11:59:40Z"}`)

	env.run(t)

	require.Len(t, env.notifier.messages, 1)
	assert.Contains(t, env.notifier.messages[0], "Computer started")

	entries, err := env.pipeline.Journal.Entries(event.Startup)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "every startup event is journaled")
}

func TestServiceChangeReadsBothLogs(t *testing.T) {
	env := newEnv(t)
	env.appendRecord(t, "security",
		`{"code":4697,"time":"2026-08-29T11:59:25Z","fields":["S-1-5-21-1","dave","CORP","-","SvcA","C:\\a.exe","0x10","2"]}`)
	env.appendRecord(t, "system",
		`{"code":7045,"time":"2026-08-29T11:59:45Z","fields":["SvcB","C:\\b.exe","auto start","user mode service","LocalSystem","erin"]}`)

	env.run(t)

	require.Len(t, env.notifier.messages, 2)
	assert.Contains(t, env.notifier.messages[0], "SvcA")
	assert.Contains(t, env.notifier.messages[1], "SvcB")

	wm, ok := env.pipeline.Watermarks.Read(event.ServiceChange)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 29, 11, 59, 45, 0, time.UTC), wm)
}

func TestOldRecordsOutsideWindowIgnored(t *testing.T) {
	env := newEnv(t)
	env.appendRecord(t, "security",
		`{"code":4624,"time":"2026-08-29T11:58:00Z","fields":["","","","","","alice","CORP","","2",""]}`)

	env.run(t)

	assert.Empty(t, env.notifier.messages)
	_, ok := env.pipeline.Watermarks.Read(event.Logon)
	assert.False(t, ok, "nothing qualified, nothing written")
}

func TestMissingSourceIsReportedNotFatal(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, os.Remove(filepath.Join(env.dir, "security.jsonl")))
	env.appendRecord(t, "system", `{"code":6005,"time":"2026-08-29T11:59:40Z"}`)

	env.run(t)

	assert.Greater(t, env.notifier.errorCount(), 0)
	found := false
	for _, m := range env.notifier.messages {
		if strings.Contains(m, "Computer started") {
			found = true
		}
	}
	assert.True(t, found, "other categories still run")
}

func TestNoiseRecordsStaySilent(t *testing.T) {
	env := newEnv(t)
	// Network logon type, system identity privilege, unknown code.
	env.appendRecord(t, "security",
		`{"code":4624,"time":"2026-08-29T11:59:20Z","fields":["","","","","","svc","CORP","","3",""]}`)
	env.appendRecord(t, "security",
		`{"code":4672,"time":"2026-08-29T11:59:21Z","fields":["S-1-5-18","SYSTEM","NT AUTHORITY","SeTcbPrivilege"]}`)
	env.appendRecord(t, "security",
		`{"code":4625,"time":"2026-08-29T11:59:22Z","fields":["x"]}`)

	env.run(t)

	assert.Empty(t, env.notifier.messages)
}
