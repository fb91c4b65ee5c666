// Package gitops performs the per-repository git work of a template sync.
//
// Network operations (clone, fetch, push) go through go-git so the credential
// is handed over as transport auth and never lands in a remote URL, argv or
// .git/config. Working-tree operations that go-git cannot do (three-way merge)
// run through the git CLI.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	logger "github.com/sirupsen/logrus"
)

// OriginRemote is the remote name go-git gives the clone source.
const OriginRemote = "origin"

// Identity is the committer recorded on fallback commits.
type Identity struct {
	Name  string
	Email string
}

type Client struct {
	token     string
	remoteURL func(fullName string) string
	runner    Runner
	identity  Identity
	log       logger.FieldLogger
}

type Option func(*Client)

// WithRunner replaces the git CLI runner.
func WithRunner(r Runner) Option {
	return func(c *Client) {
		if r != nil {
			c.runner = r
		}
	}
}

// WithRemoteURL overrides how OWNER/NAME maps to a clone URL.
func WithRemoteURL(fn func(fullName string) string) Option {
	return func(c *Client) {
		if fn != nil {
			c.remoteURL = fn
		}
	}
}

func WithIdentity(id Identity) Option {
	return func(c *Client) { c.identity = id }
}

func WithLogger(log logger.FieldLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New returns a Client that authenticates to webURL (for example
// https://github.com) with token.
func New(token, webURL string, opts ...Option) *Client {
	base := strings.TrimRight(webURL, "/")
	c := &Client{
		token:     token,
		remoteURL: func(fullName string) string { return base + "/" + fullName + ".git" },
		runner:    ExecRunner{},
		log:       logger.StandardLogger(),
	}
	for _, apply := range opts {
		if apply != nil {
			apply(c)
		}
	}
	return c
}

// RemoteURL is the credential-free clone URL for fullName.
func (c *Client) RemoteURL(fullName string) string {
	return c.remoteURL(fullName)
}

func (c *Client) auth(url string) transport.AuthMethod {
	if c.token == "" {
		return nil
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: c.token}
}

// Clone clones fullName into dir.
func (c *Client) Clone(ctx context.Context, fullName, dir string) error {
	url := c.RemoteURL(fullName)
	c.log.Debugf("git clone %s", url)
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  url,
		Auth: c.auth(url),
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", fullName, err)
	}
	return nil
}

// AddRemote registers fullName as remote name in the clone at dir.
func (c *Client) AddRemote(dir, name, fullName string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: name,
		URLs: []string{c.RemoteURL(fullName)},
	})
	if err != nil {
		return fmt.Errorf("add remote %s: %w", name, err)
	}
	return nil
}

// Fetch updates refs/remotes/<remote>/<branch>.
func (c *Client) Fetch(ctx context.Context, dir, remote, branch string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	rem, err := repo.Remote(remote)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", remote, err)
	}
	url := ""
	if urls := rem.Config().URLs; len(urls) > 0 {
		url = urls[0]
	}
	spec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, remote, branch))
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       c.auth(url),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch %s/%s: %w", remote, branch, err)
	}
	return nil
}

// Push pushes the local branch to the same name on origin.
func (c *Client) Push(ctx context.Context, dir, branch string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}
	rem, err := repo.Remote(OriginRemote)
	if err != nil {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	url := ""
	if urls := rem.Config().URLs; len(urls) > 0 {
		url = urls[0]
	}
	ref := plumbing.NewBranchReferenceName(branch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: OriginRemote,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(ref.String() + ":" + ref.String())},
		Auth:       c.auth(url),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	return nil
}

// Checkout switches the working tree to an existing branch.
func (c *Client) Checkout(ctx context.Context, dir, branch string) error {
	_, err := c.runner.Run(ctx, dir, "checkout", branch)
	return err
}

// CreateBranch creates branch at HEAD and switches to it. Uncommitted and
// conflicted state is carried over.
func (c *Client) CreateBranch(ctx context.Context, dir, branch string) error {
	_, err := c.runner.Run(ctx, dir, "checkout", "-b", branch)
	return err
}

// Merge merges ref into the current branch without opening an editor.
func (c *Client) Merge(ctx context.Context, dir, ref string) error {
	_, err := c.runner.Run(ctx, dir, c.withIdentity("merge", "--no-edit", ref)...)
	return err
}

// StageAll stages every change in the working tree, conflict markers included.
func (c *Client) StageAll(ctx context.Context, dir string) error {
	_, err := c.runner.Run(ctx, dir, "add", "-A")
	return err
}

func (c *Client) Commit(ctx context.Context, dir, message string) error {
	_, err := c.runner.Run(ctx, dir, c.withIdentity("commit", "--no-verify", "-m", message)...)
	return err
}

func (c *Client) withIdentity(args ...string) []string {
	var out []string
	if c.identity.Name != "" {
		out = append(out, "-c", "user.name="+c.identity.Name)
	}
	if c.identity.Email != "" {
		out = append(out, "-c", "user.email="+c.identity.Email)
	}
	return append(out, args...)
}
