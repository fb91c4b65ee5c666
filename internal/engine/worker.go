package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	logger "github.com/sirupsen/logrus"

	"templatesync/internal/config"
	gh "templatesync/internal/github"
	"templatesync/internal/outcome"
)

// State is a step of the per-repository sync protocol.
type State string

const (
	StateCloning       State = "cloning"
	StateFetching      State = "fetching"
	StateMerging       State = "merging"
	StatePushingDirect State = "pushing:direct"
	StateBranching     State = "branching"
	StatePRCreating    State = "pr-creating"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// UpstreamRemote is the remote name the template is attached under.
const UpstreamRemote = "upstream"

// GitOps is the git seam the worker drives. gitops.Client implements it.
type GitOps interface {
	Clone(ctx context.Context, fullName, dir string) error
	AddRemote(dir, name, fullName string) error
	Fetch(ctx context.Context, dir, remote, branch string) error
	Checkout(ctx context.Context, dir, branch string) error
	CreateBranch(ctx context.Context, dir, branch string) error
	Merge(ctx context.Context, dir, ref string) error
	StageAll(ctx context.Context, dir string) error
	Commit(ctx context.Context, dir, message string) error
	Push(ctx context.Context, dir, branch string) error
}

type PullRequestCreator interface {
	CreatePullRequest(ctx context.Context, fullName string, in gh.PullRequestInput) (*gh.PullRequest, error)
}

type WorkerOptions struct {
	TemplateRepo     string
	TemplateBranch   string
	SyncBranch       string
	BranchPrefix     string
	CommitMessage    string
	PullRequestTitle string
	PullRequestBody  string
	WorkDir          string
	KeepClones       bool
}

func WorkerOptionsFromConfig(cfg *config.Config) WorkerOptions {
	return WorkerOptions{
		TemplateRepo:     cfg.Template.Repo,
		TemplateBranch:   cfg.Template.Branch,
		SyncBranch:       cfg.Sync.Branch,
		BranchPrefix:     cfg.Sync.BranchPrefix,
		CommitMessage:    cfg.Sync.CommitMessage,
		PullRequestTitle: cfg.Sync.PullRequestTitle,
		PullRequestBody:  cfg.Sync.PullRequestBody,
		WorkDir:          cfg.Sync.WorkDir,
		KeepClones:       cfg.Sync.KeepClones,
	}
}

// Worker merges the template into one downstream repository, falling back to
// a pull request when the merge does not apply cleanly.
type Worker struct {
	git    GitOps
	prs    PullRequestCreator
	opts   WorkerOptions
	log    logger.FieldLogger
	tokens *branchTokens
}

func NewWorker(git GitOps, prs PullRequestCreator, opts WorkerOptions, log logger.FieldLogger) *Worker {
	if log == nil {
		log = logger.StandardLogger()
	}
	return &Worker{
		git:    git,
		prs:    prs,
		opts:   opts,
		log:    log,
		tokens: &branchTokens{now: time.Now},
	}
}

// Sync runs the protocol for repo. A returned error is always a *SyncError.
func (w *Worker) Sync(ctx context.Context, repo string) (outcome.Outcome, error) {
	start := time.Now()
	log := w.log.WithField("repo", repo)

	parent, err := os.MkdirTemp(w.opts.WorkDir, "template-sync-*")
	if err != nil {
		return outcome.Outcome{}, w.fail(log, repo, StateCloning, ErrClone, err)
	}
	if w.opts.KeepClones {
		defer log.Infof("Kept working clone at %s", parent)
	} else {
		defer func() {
			if err := os.RemoveAll(parent); err != nil {
				log.WithError(err).Warn("Failed to remove working clone")
			}
		}()
	}
	dir := filepath.Join(parent, strings.ReplaceAll(repo, "/", "-"))

	log.Debugf("state %s", StateCloning)
	if err := w.git.Clone(ctx, repo, dir); err != nil {
		return outcome.Outcome{}, w.fail(log, repo, StateCloning, ErrClone, err)
	}

	log.Debugf("state %s", StateFetching)
	if err := w.git.AddRemote(dir, UpstreamRemote, w.opts.TemplateRepo); err != nil {
		return outcome.Outcome{}, w.fail(log, repo, StateFetching, ErrFetch, err)
	}
	if err := w.git.Fetch(ctx, dir, UpstreamRemote, w.opts.TemplateBranch); err != nil {
		return outcome.Outcome{}, w.fail(log, repo, StateFetching, ErrFetch, err)
	}

	log.Debugf("state %s", StateMerging)
	upstreamRef := UpstreamRemote + "/" + w.opts.TemplateBranch
	// A sync branch that cannot be checked out takes the same fallback as a
	// conflicting merge.
	mergeErr := w.git.Checkout(ctx, dir, w.opts.SyncBranch)
	if mergeErr == nil {
		mergeErr = w.git.Merge(ctx, dir, upstreamRef)
	}
	if mergeErr == nil {
		log.Debugf("state %s", StatePushingDirect)
		if err := w.git.Push(ctx, dir, w.opts.SyncBranch); err != nil {
			return outcome.Outcome{}, w.fail(log, repo, StatePushingDirect, ErrPush, err)
		}
		log.Infof("Merged %s into %s and pushed", upstreamRef, w.opts.SyncBranch)
		log.Debugf("state %s", StateDone)
		return outcome.Pushed(repo).WithDuration(time.Since(start)), nil
	}
	log.WithError(fmt.Errorf("%w: %w", ErrMergeConflict, mergeErr)).Info("Falling back to a pull request")

	log.Debugf("state %s", StateBranching)
	branch := w.opts.BranchPrefix + w.tokens.next()
	if err := w.git.CreateBranch(ctx, dir, branch); err != nil {
		return outcome.Outcome{}, w.fail(log, repo, StateBranching, ErrBranch, err)
	}
	// The repeated merge is expected to fail; conflict markers are committed as-is.
	if err := w.git.Merge(ctx, dir, upstreamRef); err != nil {
		log.WithError(err).Debug("Merge on conflict branch did not complete")
	}
	if err := w.git.StageAll(ctx, dir); err != nil {
		return outcome.Outcome{}, w.fail(log, repo, StateBranching, ErrBranch, err)
	}
	if err := w.git.Commit(ctx, dir, w.opts.CommitMessage); err != nil {
		log.WithError(err).Warn("Commit on conflict branch failed; pushing the branch as is")
	}
	if err := w.git.Push(ctx, dir, branch); err != nil {
		return outcome.Outcome{}, w.fail(log, repo, StateBranching, ErrPush, err)
	}

	log.Debugf("state %s", StatePRCreating)
	pr, err := w.prs.CreatePullRequest(ctx, repo, gh.PullRequestInput{
		Base:  w.opts.SyncBranch,
		Head:  branch,
		Title: w.opts.PullRequestTitle,
		Body:  w.opts.PullRequestBody,
	})
	if err != nil {
		return outcome.Outcome{}, w.fail(log, repo, StatePRCreating, ErrPullRequest, err)
	}

	log.Infof("Opened pull request #%d from %s", pr.Number, branch)
	log.Debugf("state %s", StateDone)
	return outcome.PullRequest(repo, branch, pr.Number, pr.URL).WithDuration(time.Since(start)), nil
}

func (w *Worker) fail(log logger.FieldLogger, repo string, state State, kind, err error) error {
	log.WithField("state", state).WithError(err).Debug(kind.Error())
	return &SyncError{Repo: repo, State: state, Kind: kind, Err: err}
}

// branchTokens hands out strictly increasing millisecond timestamps, so two
// conflict branches created in the same millisecond still get distinct names.
type branchTokens struct {
	last atomic.Int64
	now  func() time.Time
}

func (b *branchTokens) next() string {
	for {
		prev := b.last.Load()
		n := b.now().UnixMilli()
		if n <= prev {
			n = prev + 1
		}
		if b.last.CompareAndSwap(prev, n) {
			return strconv.FormatInt(n, 10)
		}
	}
}
