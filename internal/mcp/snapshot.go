package mcp

import (
	"context"
	"os"
	"strings"

	"github.com/litterbox-sh/litterbox/internal/logging"
	"github.com/litterbox-sh/litterbox/internal/sandbox"
	"github.com/litterbox-sh/litterbox/internal/scm"
)

// snapshotMessageLimit caps commit subjects, in bytes.
const snapshotMessageLimit = 72

// Trigger identifies the mutation that caused a snapshot.
type Trigger struct {
	// Kind is the tool name: "write", "patch", or "shell".
	Kind string

	// Payload is the path (write, patch) or the command (shell).
	Payload string
}

// Coordinator captures the filesystem delta of a mutation as a commit on
// the sandbox's branch. It runs synchronously after every mutating tool
// call, under the same per-sandbox lock as the mutation itself.
type Coordinator struct {
	manager *sandbox.Manager
	repo    scm.Scm
}

// NewCoordinator creates a snapshot coordinator.
func NewCoordinator(manager *sandbox.Manager, repo scm.Scm) *Coordinator {
	return &Coordinator{manager: manager, repo: repo}
}

// Snapshot downloads the sandbox working tree, stages it against the
// sandbox branch, and commits when the tree changed. No delta means no
// commit. The returned commit id is empty when nothing was committed.
func (c *Coordinator) Snapshot(ctx context.Context, record *sandbox.Record, trigger Trigger) (string, error) {
	staging, err := os.MkdirTemp("", "litterbox-snapshot-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	if err := c.manager.DownloadFromContainer(ctx, record, sandbox.DefaultWorkdir, staging); err != nil {
		return "", err
	}

	commit, err := c.repo.CommitStagingDelta(ctx, record.BranchName, staging, snapshotMessage(trigger))
	if err != nil {
		return "", err
	}

	if commit != "" {
		logging.Debug("snapshot captured", "sandbox", record.Slug, "commit", commit)
	}
	return commit, nil
}

// snapshotMessage derives the commit subject from the trigger: the tool
// name plus its payload, truncated to 72 bytes.
func snapshotMessage(trigger Trigger) string {
	payload := strings.TrimRight(trigger.Payload, "\n")
	message := trigger.Kind + ": " + payload
	if len(message) > snapshotMessageLimit {
		message = message[:snapshotMessageLimit]
	}
	return message
}
