package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/litterbox-sh/litterbox/internal/compute"
	"github.com/litterbox-sh/litterbox/internal/config"
	"github.com/litterbox-sh/litterbox/internal/port"
	"github.com/litterbox-sh/litterbox/internal/sandbox"
	"github.com/litterbox-sh/litterbox/internal/scm"
)

// fakeContainerFS emulates the shell primitives the dispatcher runs
// inside a sandbox, over an in-memory file map keyed by absolute path.
type fakeContainerFS struct {
	files map[string]string
}

func newFakeContainerFS() *fakeContainerFS {
	return &fakeContainerFS{files: make(map[string]string)}
}

func (f *fakeContainerFS) exec(argv []string) (*compute.ExecResult, error) {
	if len(argv) != 3 || argv[0] != "sh" || argv[1] != "-c" {
		return &compute.ExecResult{ExitCode: 0}, nil
	}
	command := argv[2]

	tokens, err := shellquote.Split(command)
	if err != nil {
		return &compute.ExecResult{ExitCode: 2, Stderr: "sh: syntax error"}, nil
	}
	if len(tokens) == 0 {
		return &compute.ExecResult{ExitCode: 0}, nil
	}

	switch tokens[0] {
	case "cat":
		return f.cat(tokens[len(tokens)-1]), nil
	case "mkdir":
		// mkdir -p <dir> && printf %s <content> > <path>
		return f.write(tokens), nil
	case "rm":
		return f.remove(tokens[len(tokens)-1]), nil
	case "ls":
		return f.list(tokens[len(tokens)-1]), nil
	case "find":
		return f.find(tokens[1]), nil
	case "grep":
		return f.grep(tokens), nil
	default:
		// Arbitrary shell commands (the shell tool) succeed quietly.
		return &compute.ExecResult{ExitCode: 0, Stdout: ""}, nil
	}
}

func (f *fakeContainerFS) cat(path string) *compute.ExecResult {
	content, ok := f.files[path]
	if !ok {
		return &compute.ExecResult{
			ExitCode: 1,
			Stderr:   fmt.Sprintf("cat: can't open '%s': No such file or directory", path),
		}
	}
	return &compute.ExecResult{ExitCode: 0, Stdout: content}
}

func (f *fakeContainerFS) write(tokens []string) *compute.ExecResult {
	// tokens: mkdir -p <dir> && printf %s <content> > <path>
	var content, path string
	for i, token := range tokens {
		if token == "printf" && i+2 < len(tokens) {
			content = tokens[i+2]
		}
		if token == ">" && i+1 < len(tokens) {
			path = tokens[i+1]
		}
	}
	if path == "" {
		return &compute.ExecResult{ExitCode: 2, Stderr: "sh: syntax error"}
	}
	f.files[path] = content
	return &compute.ExecResult{ExitCode: 0}
}

func (f *fakeContainerFS) remove(path string) *compute.ExecResult {
	if _, ok := f.files[path]; !ok {
		return &compute.ExecResult{
			ExitCode: 1,
			Stderr:   fmt.Sprintf("rm: can't remove '%s': No such file or directory", path),
		}
	}
	delete(f.files, path)
	return &compute.ExecResult{ExitCode: 0}
}

func (f *fakeContainerFS) list(dir string) *compute.ExecResult {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	seen := make(map[string]bool)
	for path := range f.files {
		if rest, ok := strings.CutPrefix(path, prefix); ok {
			entry, _, _ := strings.Cut(rest, "/")
			seen[entry] = true
		}
	}
	if len(seen) == 0 {
		if _, ok := f.files[strings.TrimSuffix(dir, "/")]; !ok && dir != "/src" {
			return &compute.ExecResult{
				ExitCode: 1,
				Stderr:   fmt.Sprintf("ls: %s: No such file or directory", dir),
			}
		}
	}
	entries := make([]string, 0, len(seen))
	for entry := range seen {
		entries = append(entries, entry)
	}
	sort.Strings(entries)
	out := strings.Join(entries, "\n")
	if out != "" {
		out += "\n"
	}
	return &compute.ExecResult{ExitCode: 0, Stdout: out}
}

func (f *fakeContainerFS) find(base string) *compute.ExecResult {
	prefix := strings.TrimSuffix(base, "/") + "/"
	var paths []string
	dirs := make(map[string]bool)
	for path := range f.files {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		paths = append(paths, path)
		// Intermediate directories show up in find output too.
		rest := strings.TrimPrefix(path, prefix)
		parts := strings.Split(rest, "/")
		for i := 1; i < len(parts); i++ {
			dirs[prefix+strings.Join(parts[:i], "/")] = true
		}
	}
	for dir := range dirs {
		paths = append(paths, dir)
	}
	sort.Strings(paths)
	out := strings.Join(paths, "\n")
	if out != "" {
		out += "\n"
	}
	return &compute.ExecResult{ExitCode: 0, Stdout: out}
}

func (f *fakeContainerFS) grep(tokens []string) *compute.ExecResult {
	// tokens: grep -R -n [--include=<glob>] -- <pattern> <path>
	pattern := tokens[len(tokens)-2]
	base := strings.TrimSuffix(tokens[len(tokens)-1], "/")

	var matches []string
	for path, content := range f.files {
		if path != base && !strings.HasPrefix(path, base+"/") {
			continue
		}
		for i, line := range strings.Split(strings.TrimSuffix(content, "\n"), "\n") {
			if strings.Contains(line, pattern) {
				matches = append(matches, fmt.Sprintf("%s:%d:%s", path, i+1, line))
			}
		}
	}
	sort.Strings(matches)

	if len(matches) == 0 {
		return &compute.ExecResult{ExitCode: 1}
	}
	return &compute.ExecResult{ExitCode: 0, Stdout: strings.Join(matches, "\n") + "\n"}
}

// testServer wires a Server over mock adapters with one pre-created
// sandbox named "demo" backed by a fake container filesystem.
func testServer(t *testing.T) (*Server, *scm.MockScm, *compute.MockCompute, *fakeContainerFS) {
	t.Helper()

	repo := scm.NewMockScm("myrepo")
	daemon := compute.NewMockCompute()
	manager := sandbox.NewManager(repo, daemon)
	manager.SetPortRange(port.Range{Start: 44100, End: 44180})

	cfg := &config.Config{
		Project: config.ProjectConfig{Slug: "myrepo"},
		Docker:  config.DockerConfig{Image: "busybox:latest", SetupCommand: "true"},
		Ports:   []config.ForwardedPort{{Name: "web", Target: 8080}},
	}

	fs := newFakeContainerFS()
	daemon.ExecHandler = func(id string, argv []string, opts compute.ExecOptions) (*compute.ExecResult, error) {
		return fs.exec(argv)
	}

	if _, err := manager.Create(context.Background(), "demo", sandbox.CreateConfig{
		Image:        cfg.Docker.Image,
		SetupCommand: "", // skip setup in tests; the fake fs has no setup to run
	}); err != nil {
		t.Fatalf("creating test sandbox: %v", err)
	}

	server := NewServer(manager, NewCoordinator(manager, repo), cfg)
	server.initialized = true
	return server, repo, daemon, fs
}
