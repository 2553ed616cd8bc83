package scm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
	"github.com/litterbox-sh/litterbox/internal/logging"
	"github.com/litterbox-sh/litterbox/internal/name"
)

// Identity used for snapshot commits.
const (
	snapshotAuthorName  = "Litterbox"
	snapshotAuthorEmail = "noreply@litterbox.sh"
)

// GitScm implements Scm by shelling out to the host git binary.
// A mutex serialises repository access: git index and ref updates are not
// safe against concurrent callers within one process.
type GitScm struct {
	mu       sync.Mutex
	root     string
	repoSlug string
}

// Open locates the repository containing dir and derives the repo slug
// from its basename. slugOverride, when non-empty, replaces the derived
// slug (config project.slug).
func Open(dir, slugOverride string) (*GitScm, error) {
	out, err := runGitIn(context.Background(), dir, nil, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, lberrors.RepositoryFailed("open", err)
	}
	root := strings.TrimSpace(out)

	repoSlug := slugOverride
	if repoSlug == "" {
		repoSlug = name.Slugify(filepath.Base(root))
		if repoSlug == "" {
			repoSlug = "repo"
		}
	}

	return &GitScm{root: root, repoSlug: repoSlug}, nil
}

// Root returns the repository's top-level directory.
func (g *GitScm) Root() string {
	return g.root
}

// RepoSlug returns the slug used in container names.
func (g *GitScm) RepoSlug() string {
	return g.repoSlug
}

// HeadRef resolves HEAD to a commit id.
func (g *GitScm) HeadRef(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out, err := g.run(ctx, nil, "rev-parse", "HEAD")
	if err != nil {
		return "", lberrors.RepositoryFailed("resolve HEAD", err)
	}
	return strings.TrimSpace(out), nil
}

// CreateBranch creates branch at base.
func (g *GitScm) CreateBranch(ctx context.Context, branch, base string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.branchExists(ctx, branch) {
		return lberrors.Wrap(lberrors.ExitNameConflict,
			fmt.Sprintf("branch %s already exists", branch), lberrors.ErrNameConflict)
	}

	if _, err := g.run(ctx, nil, "branch", branch, base); err != nil {
		return lberrors.RepositoryFailed("branch create", err)
	}
	logging.Debug("branch created", "branch", branch, "base", base)
	return nil
}

// DeleteBranch deletes a local branch.
func (g *GitScm) DeleteBranch(ctx context.Context, branch string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.branchExists(ctx, branch) {
		return lberrors.Wrap(lberrors.ExitRepoFailed,
			fmt.Sprintf("branch %s", branch), lberrors.ErrNotFound)
	}

	if _, err := g.run(ctx, nil, "branch", "-D", branch); err != nil {
		return lberrors.RepositoryFailed("branch delete", err)
	}
	logging.Debug("branch deleted", "branch", branch)
	return nil
}

// BranchExists reports whether a local branch exists.
func (g *GitScm) BranchExists(ctx context.Context, branch string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.branchExists(ctx, branch), nil
}

func (g *GitScm) branchExists(ctx context.Context, branch string) bool {
	_, err := g.run(ctx, nil, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// ListBranches returns local branch names starting with prefix.
func (g *GitScm) ListBranches(ctx context.Context, prefix string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	out, err := g.run(ctx, nil, "for-each-ref", "--format=%(refname:short)", "refs/heads/"+prefix)
	if err != nil {
		return nil, lberrors.RepositoryFailed("branch list", err)
	}

	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// ExportTreeTar returns the tree of ref as a tar archive.
func (g *GitScm) ExportTreeTar(ctx context.Context, ref string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cmd := exec.CommandContext(ctx, "git", "-C", g.root, "archive", "--format=tar", ref)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, lberrors.RepositoryFailed("archive",
			fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err))
	}

	return stdout.Bytes(), nil
}

// CommitStagingDelta stages stagingDir against the branch head through a
// throwaway index and commits when the tree changed. The user's index and
// working directory are never touched.
func (g *GitScm) CommitStagingDelta(ctx context.Context, branch, stagingDir, message string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.branchExists(ctx, branch) {
		return "", lberrors.Wrap(lberrors.ExitRepoFailed,
			fmt.Sprintf("snapshot branch %s", branch), lberrors.ErrNotFound)
	}

	parentOut, err := g.run(ctx, nil, "rev-parse", "refs/heads/"+branch)
	if err != nil {
		return "", lberrors.RepositoryFailed("resolve branch", err)
	}
	parent := strings.TrimSpace(parentOut)

	indexFile, err := os.CreateTemp("", "litterbox-index-*")
	if err != nil {
		return "", lberrors.RepositoryFailed("snapshot index", err)
	}
	indexPath := indexFile.Name()
	_ = indexFile.Close()
	_ = os.Remove(indexPath) // git wants to create the index itself
	defer os.Remove(indexPath)

	stagingEnv := []string{
		"GIT_INDEX_FILE=" + indexPath,
		"GIT_WORK_TREE=" + stagingDir,
	}

	if _, err := g.runIn(ctx, stagingDir, stagingEnv, "add", "-A", "."); err != nil {
		return "", lberrors.RepositoryFailed("snapshot stage", err)
	}

	treeOut, err := g.runIn(ctx, stagingDir, stagingEnv, "write-tree")
	if err != nil {
		return "", lberrors.RepositoryFailed("snapshot tree", err)
	}
	tree := strings.TrimSpace(treeOut)

	parentTreeOut, err := g.run(ctx, nil, "rev-parse", parent+"^{tree}")
	if err != nil {
		return "", lberrors.RepositoryFailed("resolve branch tree", err)
	}
	if strings.TrimSpace(parentTreeOut) == tree {
		return "", nil
	}

	identityEnv := []string{
		"GIT_AUTHOR_NAME=" + snapshotAuthorName,
		"GIT_AUTHOR_EMAIL=" + snapshotAuthorEmail,
		"GIT_COMMITTER_NAME=" + snapshotAuthorName,
		"GIT_COMMITTER_EMAIL=" + snapshotAuthorEmail,
	}
	commitOut, err := g.run(ctx, identityEnv, "commit-tree", tree, "-p", parent, "-m", message)
	if err != nil {
		return "", lberrors.RepositoryFailed("snapshot commit", err)
	}
	commit := strings.TrimSpace(commitOut)

	// Compare-and-swap against the parent we read, so a concurrent tip
	// move fails loudly instead of being overwritten.
	if _, err := g.run(ctx, nil, "update-ref", "refs/heads/"+branch, commit, parent); err != nil {
		return "", lberrors.RepositoryFailed("snapshot ref update", err)
	}

	logging.Debug("snapshot committed", "branch", branch, "commit", commit, "message", message)
	return commit, nil
}

// run executes git inside the repository root.
func (g *GitScm) run(ctx context.Context, env []string, args ...string) (string, error) {
	return runGitIn(ctx, g.root, env, args...)
}

// runIn executes git with an explicit working directory but against this
// repository's object database.
func (g *GitScm) runIn(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	gitDir := filepath.Join(g.root, ".git")
	full := append([]string{"--git-dir=" + gitDir}, args...)
	return runGitIn(ctx, dir, env, full...)
}

func runGitIn(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("git %s failed: %s: %w",
			args[0], strings.TrimSpace(stderr.String()), err)
	}

	return stdout.String(), nil
}

// Ensure GitScm implements Scm
var _ Scm = (*GitScm)(nil)
