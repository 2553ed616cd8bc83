package scm

import "context"

// Scm is the contract over the local version-control repository. The
// reference implementation shells out to the host git binary; any
// implementation must preserve the same observable behavior, including
// ignore-rule handling in ExportTreeTar and the no-empty-commit rule in
// CommitStagingDelta.
type Scm interface {
	// Root returns the repository's top-level directory.
	Root() string

	// RepoSlug returns the slug used in container names, derived from
	// the repository basename unless overridden.
	RepoSlug() string

	// HeadRef resolves HEAD to a commit id.
	HeadRef(ctx context.Context) (string, error)

	// CreateBranch creates branch at base. An existing branch surfaces
	// ErrNameConflict.
	CreateBranch(ctx context.Context, branch, base string) error

	// DeleteBranch deletes a branch. A missing branch surfaces
	// ErrNotFound.
	DeleteBranch(ctx context.Context, branch string) error

	// BranchExists reports whether a local branch exists.
	BranchExists(ctx context.Context, branch string) (bool, error)

	// ListBranches returns local branch names starting with prefix.
	ListBranches(ctx context.Context, prefix string) ([]string, error)

	// ExportTreeTar returns the tree of ref as a tar archive, honoring
	// the repository's export ignore rules.
	ExportTreeTar(ctx context.Context, ref string) ([]byte, error)

	// CommitStagingDelta stages the contents of stagingDir against the
	// branch head and commits when the resulting tree differs. Returns
	// the new commit id, or "" when there was no delta. A missing branch
	// surfaces ErrNotFound.
	CommitStagingDelta(ctx context.Context, branch, stagingDir, message string) (string, error)
}
