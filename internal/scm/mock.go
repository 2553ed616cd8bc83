package scm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
)

// MockScm is an in-memory implementation of Scm for testing
type MockScm struct {
	mu sync.Mutex

	// Branches maps branch name -> tip commit id.
	Branches map[string]string

	// Head is the commit id returned by HeadRef.
	Head string

	// Archive is returned by ExportTreeTar.
	Archive []byte

	// Slug is returned by RepoSlug.
	Slug string

	// NextDelta, when non-empty, is returned (and consumed) by the next
	// CommitStagingDelta call; empty means "no delta".
	NextDelta string

	// Commits records every snapshot commit made, as "branch: message".
	Commits []string

	// Errors allows injecting errors for specific operations
	Errors map[string]error

	nextOid int
}

// NewMockScm creates a mock repository with a HEAD commit.
func NewMockScm(slug string) *MockScm {
	return &MockScm{
		Branches: make(map[string]string),
		Head:     "head-commit",
		Archive:  []byte{},
		Slug:     slug,
		Errors:   make(map[string]error),
	}
}

// SetError sets an error to be returned for a specific operation
func (m *MockScm) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

func (m *MockScm) Root() string {
	return "/mock/repo"
}

func (m *MockScm) RepoSlug() string {
	return m.Slug
}

func (m *MockScm) HeadRef(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors["HeadRef"]; ok {
		return "", err
	}
	return m.Head, nil
}

func (m *MockScm) CreateBranch(ctx context.Context, branch, base string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors["CreateBranch"]; ok {
		return err
	}
	if _, exists := m.Branches[branch]; exists {
		return lberrors.Wrap(lberrors.ExitNameConflict,
			fmt.Sprintf("branch %s already exists", branch), lberrors.ErrNameConflict)
	}
	m.Branches[branch] = base
	return nil
}

func (m *MockScm) DeleteBranch(ctx context.Context, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors["DeleteBranch"]; ok {
		return err
	}
	if _, exists := m.Branches[branch]; !exists {
		return lberrors.Wrap(lberrors.ExitRepoFailed,
			fmt.Sprintf("branch %s", branch), lberrors.ErrNotFound)
	}
	delete(m.Branches, branch)
	return nil
}

func (m *MockScm) BranchExists(ctx context.Context, branch string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors["BranchExists"]; ok {
		return false, err
	}
	_, exists := m.Branches[branch]
	return exists, nil
}

func (m *MockScm) ListBranches(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors["ListBranches"]; ok {
		return nil, err
	}
	var branches []string
	for branch := range m.Branches {
		if strings.HasPrefix(branch, prefix) {
			branches = append(branches, branch)
		}
	}
	return branches, nil
}

func (m *MockScm) ExportTreeTar(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors["ExportTreeTar"]; ok {
		return nil, err
	}
	return m.Archive, nil
}

func (m *MockScm) CommitStagingDelta(ctx context.Context, branch, stagingDir, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors["CommitStagingDelta"]; ok {
		return "", err
	}
	if _, exists := m.Branches[branch]; !exists {
		return "", lberrors.Wrap(lberrors.ExitRepoFailed,
			fmt.Sprintf("snapshot branch %s", branch), lberrors.ErrNotFound)
	}
	if m.NextDelta == "" {
		return "", nil
	}

	m.nextOid++
	oid := fmt.Sprintf("%s-%d", m.NextDelta, m.nextOid)
	m.NextDelta = ""
	m.Branches[branch] = oid
	m.Commits = append(m.Commits, branch+": "+message)
	return oid, nil
}

// Ensure MockScm implements Scm
var _ Scm = (*MockScm)(nil)
