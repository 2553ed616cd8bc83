package integration

import (
	"context"
	"os"
	"testing"

	"github.com/litterbox-sh/litterbox/internal/compute"
	"github.com/litterbox-sh/litterbox/internal/sandbox"
	"github.com/litterbox-sh/litterbox/internal/scm"
	"github.com/litterbox-sh/litterbox/internal/testutil"
)

// Harness provides utilities for integration testing against a real
// container daemon and a real git repository.
type Harness struct {
	t       *testing.T
	RepoDir string
	Repo    *scm.GitScm
	Daemon  *compute.DockerCompute
	Manager *sandbox.Manager

	sandboxes []string // created sandboxes, cleaned up in reverse order
}

// NewHarness creates a harness over a throwaway repository. It skips the
// test unless LITTERBOX_DOCKER_TESTS is set, and additionally when git or
// a container engine is unavailable.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	if os.Getenv("LITTERBOX_DOCKER_TESTS") == "" {
		t.Skip("docker integration tests disabled (set LITTERBOX_DOCKER_TESTS=1 to enable)")
	}

	repoDir := testutil.InitRepo(t, map[string]string{
		"README.md": "hello\n",
	})

	repo, err := scm.Open(repoDir, "")
	if err != nil {
		t.Fatalf("opening repo: %v", err)
	}

	daemon, err := compute.NewDockerCompute()
	if err != nil {
		t.Skipf("no container engine: %v", err)
	}

	h := &Harness{
		t:       t,
		RepoDir: repoDir,
		Repo:    repo,
		Daemon:  daemon,
		Manager: sandbox.NewManager(repo, daemon),
	}
	t.Cleanup(h.cleanup)
	return h
}

// Create provisions a sandbox and registers it for cleanup.
func (h *Harness) Create(ctx context.Context, name string, cfg sandbox.CreateConfig) *sandbox.Record {
	h.t.Helper()

	record, err := h.Manager.Create(ctx, name, cfg)
	if err != nil {
		h.t.Fatalf("creating sandbox %s: %v", name, err)
	}
	h.sandboxes = append(h.sandboxes, record.Slug)
	return record
}

func (h *Harness) cleanup() {
	ctx := context.Background()
	for i := len(h.sandboxes) - 1; i >= 0; i-- {
		if err := h.Manager.Delete(ctx, h.sandboxes[i]); err != nil {
			h.t.Logf("cleanup of sandbox %s failed: %v", h.sandboxes[i], err)
		}
	}
}
