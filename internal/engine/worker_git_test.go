package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templatesync/internal/config"
	"templatesync/internal/gitops"
	"templatesync/internal/outcome"
)

const (
	gitTemplateRepo = "VidyFoo/TEMPLATE_ANTIGRAVITY"
	gitSiteRepo     = "VidyFoo/site"
)

var gitSignature = &object.Signature{Name: "t", Email: "t@example.com"}

// gitRemotes lays out bare repositories for the template and one downstream
// repository under root, both sharing an initial commit of f.txt.
func gitRemotes(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	work := t.TempDir()
	repo, err := git.PlainInitWithOptions(work, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	require.NoError(t, err)
	writeAndCommit(t, repo, work, "f.txt", "base\n")

	for i, fullName := range []string{gitTemplateRepo, gitSiteRepo} {
		bare := filepath.Join(root, fullName)
		bareRepo, err := git.PlainInit(bare, true)
		require.NoError(t, err)
		require.NoError(t, bareRepo.Storer.SetReference(
			plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))))

		name := []string{"template", "site"}[i]
		_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: name, URLs: []string{bare}})
		require.NoError(t, err)
		require.NoError(t, repo.Push(&git.PushOptions{
			RemoteName: name,
			RefSpecs:   []gitconfig.RefSpec{"refs/heads/main:refs/heads/main"},
		}))
	}
	return root
}

func writeAndCommit(t *testing.T, repo *git.Repository, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o600))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(file)
	require.NoError(t, err)
	sig := *gitSignature
	sig.When = time.Now()
	_, err = wt.Commit("update "+file, &git.CommitOptions{Author: &sig})
	require.NoError(t, err)
}

// commitUpstream adds a commit on main of the bare repository at root/fullName.
func commitUpstream(t *testing.T, root, fullName, file, content string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainClone(dir, false, &git.CloneOptions{URL: filepath.Join(root, fullName)})
	require.NoError(t, err)
	writeAndCommit(t, repo, dir, file, content)
	require.NoError(t, repo.Push(&git.PushOptions{}))
}

func fileAt(t *testing.T, root, fullName, branch, file string) string {
	t.Helper()
	repo, err := git.PlainOpen(filepath.Join(root, fullName))
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	f, err := commit.File(file)
	require.NoError(t, err)
	content, err := f.Contents()
	require.NoError(t, err)
	return content
}

func newGitWorker(t *testing.T, root string, prs PullRequestCreator) *Worker {
	t.Helper()
	client := gitops.New("", "",
		gitops.WithRemoteURL(func(fullName string) string { return filepath.Join(root, fullName) }),
		gitops.WithIdentity(gitops.Identity{Name: "template-sync", Email: "sync@example.com"}),
	)
	cfg := config.New()
	cfg.Template.Repo = gitTemplateRepo
	cfg.Sync.WorkDir = t.TempDir()
	log, _ := logtest.NewNullLogger()
	return NewWorker(client, prs, WorkerOptionsFromConfig(cfg), log)
}

func TestWorker_Sync_WithGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	t.Run("clean merge is pushed to the sync branch", func(t *testing.T) {
		// given
		root := gitRemotes(t)
		commitUpstream(t, root, gitTemplateRepo, "f.txt", "template\n")
		prs := &fakePRs{}
		w := newGitWorker(t, root, prs)

		// when
		got, err := w.Sync(context.Background(), gitSiteRepo)

		// then
		require.NoError(t, err)
		assert.Equal(t, outcome.StatusPushed, got.Status)
		assert.Equal(t, "template\n", fileAt(t, root, gitSiteRepo, "main", "f.txt"))
		assert.Empty(t, prs.inputs)
		assertWorkDirEmpty(t, w)
	})

	t.Run("conflicting merge is pushed to a branch with a pull request", func(t *testing.T) {
		// given
		root := gitRemotes(t)
		commitUpstream(t, root, gitTemplateRepo, "f.txt", "template\n")
		commitUpstream(t, root, gitSiteRepo, "f.txt", "site\n")
		prs := &fakePRs{}
		w := newGitWorker(t, root, prs)

		// when
		got, err := w.Sync(context.Background(), gitSiteRepo)

		// then
		require.NoError(t, err)
		assert.Equal(t, outcome.StatusPR, got.Status)
		require.Len(t, prs.inputs, 1)
		assert.Equal(t, "main", prs.inputs[0].Base)
		assert.Equal(t, got.Branch, prs.inputs[0].Head)

		assert.Equal(t, "site\n", fileAt(t, root, gitSiteRepo, "main", "f.txt"))
		conflicted := fileAt(t, root, gitSiteRepo, got.Branch, "f.txt")
		assert.Contains(t, conflicted, "<<<<<<< HEAD\nsite\n")
		assert.Contains(t, conflicted, "template\n>>>>>>> upstream/main\n")
		assertWorkDirEmpty(t, w)
	})
}
