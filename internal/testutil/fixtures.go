package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// InitRepo creates a git repository with one commit containing the given
// files (path -> content). Skips the test when git is unavailable.
func InitRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %s: %v", args, out, err)
		}
	}

	run("init")
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	run("add", ".")
	run("commit", "-m", "init")

	return dir
}

// WriteProjectConfig writes a .litterbox.toml into dir.
func WriteProjectConfig(t *testing.T, dir, image, setupCommand string, ports map[string]int) {
	t.Helper()

	var b strings.Builder
	fmt.Fprintf(&b, "[docker]\nimage = %q\nsetup-command = %q\n", image, setupCommand)
	for name, target := range ports {
		fmt.Fprintf(&b, "\n[[ports]]\nname = %q\ntarget = %d\n", name, target)
	}

	if err := os.WriteFile(filepath.Join(dir, ".litterbox.toml"), []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
}
