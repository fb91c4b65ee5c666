package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	logger "github.com/sirupsen/logrus"

	"templatesync/internal/config"
	"templatesync/internal/outcome"
	"templatesync/internal/output"
)

const (
	exitOK    = 0
	exitFatal = 1
)

// Source resolves the downstream repositories of a template.
type Source interface {
	ListRepositories(ctx context.Context) ([]string, error)
}

// Syncer brings one repository up to date with the template.
type Syncer interface {
	Sync(ctx context.Context, repo string) (outcome.Outcome, error)
}

type Engine struct {
	Source Source
	Worker Syncer

	// Stdout receives console output and the dry-run listing. Defaults to os.Stdout.
	Stdout io.Writer
	Log    logger.FieldLogger

	// runBounded is a test seam for the scheduler.
	// If nil, Engine uses RunBounded.
	runBounded func(ctx context.Context, repos []string, limit int,
		work func(context.Context, string) (outcome.Outcome, error),
		onFailure func(string, error) outcome.Outcome,
	) ([]outcome.Outcome, error)
}

func NewEngine(source Source, worker Syncer) *Engine {
	return &Engine{
		Source: source,
		Worker: worker,
	}
}

func (e *Engine) stdout() io.Writer {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stdout
}

func (e *Engine) log() logger.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return logger.StandardLogger()
}

func (e *Engine) schedule(ctx context.Context, repos []string, limit int,
	work func(context.Context, string) (outcome.Outcome, error),
	onFailure func(string, error) outcome.Outcome,
) ([]outcome.Outcome, error) {
	if e.runBounded != nil {
		return e.runBounded(ctx, repos, limit, work, onFailure)
	}
	return RunBounded(ctx, repos, limit, work, onFailure)
}

func (e *Engine) setupOutputManager(cfg *config.Config) (*output.Manager, error) {
	outMgr := output.NewManager()

	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(e.stdout(), cfg.Output.ConsoleFormat, cfg.Output.ConsoleStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

func (e *Engine) listDryRun(repos []string) {
	names := append([]string(nil), repos...)
	sort.Strings(names)
	w := e.stdout()
	fmt.Fprintln(w, "Discovered repositories:")
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

// Run discovers the downstream repositories and syncs each of them. It returns
// the process exit code: 0 once every repository has an outcome (including
// error outcomes), 1 when the run could not complete.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	log := e.log()
	verbose := cfg.Runtime.Verbose

	if e.Source == nil || e.Worker == nil {
		log.Error("Engine is not initialized")
		return exitFatal
	}

	log.Infof("Discovering repositories (topic:%s user:%s)...", cfg.Discovery.Topic, cfg.Discovery.Owner)
	repos, err := e.Source.ListRepositories(ctx)
	if err != nil {
		log.Errorf("Error discovering repositories: %s", presentError(err, verbose))
		return exitFatal
	}
	log.Infof("Found %d repositories.", len(repos))

	if cfg.Discovery.DryRun {
		e.listDryRun(repos)
		return exitOK
	}
	if len(repos) == 0 {
		log.Info("Nothing to sync.")
		return exitOK
	}

	outMgr, err := e.setupOutputManager(cfg)
	if err != nil {
		log.Errorf("Error creating output sinks: %v", err)
		return exitFatal
	}
	defer func() {
		if err := outMgr.Close(); err != nil {
			log.Errorf("Error closing output sinks: %v", err)
		}
	}()

	if err := outMgr.Start(cfg.Template.Repo, len(repos)); err != nil {
		log.Warnf("Error writing run start: %v", err)
	}

	record := func(o outcome.Outcome) outcome.Outcome {
		if err := outMgr.Record(o); err != nil {
			log.Warnf("Error writing outcome for %s: %v", o.Repo, err)
		}
		return o
	}
	work := func(ctx context.Context, repo string) (outcome.Outcome, error) {
		o, err := e.Worker.Sync(ctx, repo)
		if err != nil {
			return outcome.Outcome{}, err
		}
		return record(o), nil
	}
	onFailure := func(repo string, err error) outcome.Outcome {
		detail := presentError(err, verbose)
		log.WithField("repo", repo).Errorf("Sync failed: %s", detail)
		return record(outcome.Failed(repo, failedState(err), err, detail))
	}

	log.Infof("Syncing %d repositories from %s (concurrency %d)...", len(repos), cfg.Template.Repo, cfg.Runtime.Concurrency)
	if _, err := e.schedule(ctx, repos, cfg.Runtime.Concurrency, work, onFailure); err != nil {
		log.Errorf("Error scheduling sync: %v", err)
		if _, err := outMgr.Finish(exitFatal); err != nil {
			log.Warnf("Error writing run finish: %v", err)
		}
		return exitFatal
	}

	summary, err := outMgr.Finish(exitOK)
	if err != nil {
		log.Warnf("Error writing run finish: %v", err)
	}
	log.Infof("Sync finished: %d pushed, %d pull requests, %d errors (of %d).",
		summary.Pushed, summary.PR, summary.Errors, summary.Total)
	return exitOK
}

func failedState(err error) string {
	if se, ok := asSyncError(err); ok {
		return string(se.State)
	}
	return string(StateFailed)
}
