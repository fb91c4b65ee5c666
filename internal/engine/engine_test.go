package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templatesync/internal/config"
	"templatesync/internal/outcome"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type fakeSource struct {
	repos []string
	err   error
	calls int
}

func (f *fakeSource) ListRepositories(context.Context) ([]string, error) {
	f.calls++
	return f.repos, f.err
}

type fakeSyncer struct {
	mu      sync.Mutex
	synced  []string
	results map[string]error
}

func (f *fakeSyncer) Sync(_ context.Context, repo string) (outcome.Outcome, error) {
	f.mu.Lock()
	f.synced = append(f.synced, repo)
	f.mu.Unlock()
	if err := f.results[repo]; err != nil {
		return outcome.Outcome{}, err
	}
	if strings.HasSuffix(repo, "-conflict") {
		return outcome.PullRequest(repo, "sync-template-1", 9, ""), nil
	}
	return outcome.Pushed(repo), nil
}

func newTestEngine(source Source, worker Syncer) (*Engine, *bytes.Buffer, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	var stdout bytes.Buffer
	e := NewEngine(source, worker)
	e.Stdout = &stdout
	e.Log = log
	return e, &stdout, hook
}

func TestEngine_Run_ZeroRepositoriesSkipsScheduler(t *testing.T) {
	// given
	source := &fakeSource{}
	worker := &fakeSyncer{}
	e, stdout, _ := newTestEngine(source, worker)
	schedulerCalled := false
	e.runBounded = func(context.Context, []string, int,
		func(context.Context, string) (outcome.Outcome, error),
		func(string, error) outcome.Outcome,
	) ([]outcome.Outcome, error) {
		schedulerCalled = true
		return nil, nil
	}

	// when
	code := e.Run(context.Background(), config.New())

	// then
	assert.Equal(t, 0, code)
	assert.False(t, schedulerCalled)
	assert.Empty(t, worker.synced)
	assert.Empty(t, stdout.String())
}

func TestEngine_Run_DiscoveryFailureIsFatal(t *testing.T) {
	// given
	source := &fakeSource{err: &DiscoveryError{Page: 1, Err: errors.New("GET https://api.github.com/search/repositories: 401 Bad credentials")}}
	worker := &fakeSyncer{}
	e, _, hook := newTestEngine(source, worker)

	// when
	code := e.Run(context.Background(), config.New())

	// then
	assert.Equal(t, 1, code)
	assert.Empty(t, worker.synced)
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "401 Bad credentials")
	assert.NotContains(t, hook.LastEntry().Message, "https://")
}

func TestEngine_Run_ReportsEveryOutcomeAndExitsZero(t *testing.T) {
	// given
	source := &fakeSource{repos: []string{"VidyFoo/a", "VidyFoo/b-conflict", "VidyFoo/c"}}
	worker := &fakeSyncer{results: map[string]error{
		"VidyFoo/c": &SyncError{Repo: "VidyFoo/c", State: StateCloning, Kind: ErrClone, Err: errors.New("repository not found")},
	}}
	e, stdout, _ := newTestEngine(source, worker)
	cfg := config.New()
	cfg.Runtime.Concurrency = 2

	// when
	code := e.Run(context.Background(), cfg)

	// then
	assert.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	sort.Strings(lines)
	assert.Equal(t, []string{
		"[ERROR] VidyFoo/c - clone failed: repository not found",
		"[PR] VidyFoo/b-conflict - branch sync-template-1",
		"[PUSHED] VidyFoo/a",
	}, lines)
}

func TestEngine_Run_WorkerPanicBecomesErrorOutcome(t *testing.T) {
	source := &fakeSource{repos: []string{"VidyFoo/a"}}
	e, stdout, _ := newTestEngine(source, panicSyncer{})

	code := e.Run(context.Background(), config.New())

	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "[ERROR] VidyFoo/a - worker panicked")
}

type panicSyncer struct{}

func (panicSyncer) Sync(context.Context, string) (outcome.Outcome, error) {
	panic("unexpected nil")
}

func TestEngine_Run_InvalidConcurrencyIsFatal(t *testing.T) {
	source := &fakeSource{repos: []string{"VidyFoo/a"}}
	worker := &fakeSyncer{}
	e, _, _ := newTestEngine(source, worker)
	cfg := config.New()
	cfg.Runtime.Concurrency = 0

	code := e.Run(context.Background(), cfg)

	assert.Equal(t, 1, code)
	assert.Empty(t, worker.synced)
}

func TestEngine_Run_DryRunListsWithoutSyncing(t *testing.T) {
	// given
	source := &fakeSource{repos: []string{"VidyFoo/b", "VidyFoo/a"}}
	worker := &fakeSyncer{}
	e, stdout, _ := newTestEngine(source, worker)
	cfg := config.New()
	cfg.Discovery.DryRun = true

	// when
	code := e.Run(context.Background(), cfg)

	// then
	assert.Equal(t, 0, code)
	assert.Empty(t, worker.synced)
	assert.Equal(t, "Discovered repositories:\nVidyFoo/a\nVidyFoo/b\n", stdout.String())
}

func TestEngine_Run_WritesOutcomeFile(t *testing.T) {
	// given
	source := &fakeSource{repos: []string{"VidyFoo/a", "VidyFoo/b-conflict"}}
	e, stdout, _ := newTestEngine(source, &fakeSyncer{})
	cfg := config.New()
	cfg.Output.NoConsole = true
	cfg.Output.Out = filepath.Join(t.TempDir(), "outcomes.json")
	cfg.Output.OutFormat = "json"

	// when
	code := e.Run(context.Background(), cfg)

	// then
	assert.Equal(t, 0, code)
	assert.Empty(t, stdout.String())
	b, err := os.ReadFile(cfg.Output.Out)
	require.NoError(t, err)
	var got []outcome.Outcome
	require.NoError(t, json.Unmarshal(b, &got))
	require.Len(t, got, 2)
	summary := outcome.Summarize(got)
	assert.Equal(t, outcome.Summary{Total: 2, Pushed: 1, PR: 1}, summary)
}

func TestEngine_Run_NDJSONLifecycle(t *testing.T) {
	source := &fakeSource{repos: []string{"VidyFoo/a"}}
	e, stdout, _ := newTestEngine(source, &fakeSyncer{})
	cfg := config.New()
	cfg.Output.ConsoleFormat = "ndjson"

	code := e.Run(context.Background(), cfg)

	assert.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"type":"run.started"`)
	assert.Contains(t, lines[0], `"repos":1`)
	assert.Contains(t, lines[1], `"type":"repo.outcome"`)
	assert.Contains(t, lines[2], `"type":"run.finished"`)
	assert.Contains(t, lines[2], `"pushed":1`)
	assert.Contains(t, lines[2], `"exit_code":0`)
}
