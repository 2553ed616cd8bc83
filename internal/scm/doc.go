// Package scm provides the contract over the host git repository.
//
// Sandboxes live in the branch namespace litterbox/<slug>. The branch set
// is the authoritative record of sandboxes: creating a sandbox creates a
// branch from HEAD, every mutation snapshot becomes a commit on that
// branch, and deleting the sandbox deletes the branch.
//
// # Snapshot Commits
//
// CommitStagingDelta is the snapshotting primitive. The caller downloads
// the container's working tree into a staging directory; the adapter
// stages it through a throwaway index, compares the resulting tree with
// the branch tip, and commits only when they differ. Empty commits are
// structurally impossible.
//
// # Implementation
//
// GitScm shells out to the host git binary using plumbing commands
// (write-tree, commit-tree, update-ref) so snapshot commits never touch
// the user's index or working directory.
package scm
