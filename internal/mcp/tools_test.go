package mcp

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTool_SandboxCreate(t *testing.T) {
	server, repo, _, _ := testServer(t)

	responses := runRequests(t, server,
		callTool(1, "sandbox-create", map[string]any{"name": "My Feature!@#"}))

	var result createResult
	if err := json.Unmarshal([]byte(firstText(t, responses[0])), &result); err != nil {
		t.Fatalf("decoding create result: %v", err)
	}

	if result.Slug != "my-feature" {
		t.Errorf("slug = %q", result.Slug)
	}
	if result.BranchName != "litterbox/my-feature" {
		t.Errorf("branch = %q", result.BranchName)
	}
	if result.ContainerID == "" {
		t.Error("container id missing")
	}
	if len(result.ForwardedPorts) != 1 {
		t.Fatalf("forwarded ports = %d, want 1", len(result.ForwardedPorts))
	}
	fwd := result.ForwardedPorts[0]
	if fwd.Service != "web" || fwd.ContainerPort != 8080 || fwd.EnvVar != "LITTERBOX_FWD_PORT_WEB" {
		t.Errorf("forwarded port = %+v", fwd)
	}
	if fwd.HostPort < 44100 || fwd.HostPort >= 44180 {
		t.Errorf("host port %d outside range", fwd.HostPort)
	}

	if _, exists := repo.Branches["litterbox/my-feature"]; !exists {
		t.Error("branch not created")
	}

	// Creating the same sandbox again is a name conflict.
	responses = runRequests(t, server,
		callTool(2, "sandbox-create", map[string]any{"name": "my-feature"}))
	if responses[0].Error == nil || responses[0].Error.Code != codeInvalidParams {
		t.Errorf("duplicate create = %+v, want invalid params", responses[0])
	}
}

func TestTool_WriteReadRoundTrip(t *testing.T) {
	server, repo, _, fs := testServer(t)
	repo.NextDelta = "snap"

	responses := runRequests(t, server,
		callTool(1, "write", map[string]any{
			"sandbox": "demo", "path": "/src/a.txt", "content": "alpha\n",
		}),
		callTool(2, "read", map[string]any{"sandbox": "demo", "path": "/src/a.txt"}),
	)

	if responses[0].Error != nil {
		t.Fatalf("write failed: %+v", responses[0].Error)
	}
	if fs.files["/src/a.txt"] != "alpha\n" {
		t.Errorf("container file = %q", fs.files["/src/a.txt"])
	}
	if got := firstText(t, responses[1]); got != "alpha\n" {
		t.Errorf("read = %q, want alpha\\n", got)
	}

	// The mutation snapshotted with the documented message.
	if len(repo.Commits) != 1 || repo.Commits[0] != "litterbox/demo: write: /src/a.txt" {
		t.Errorf("commits = %v", repo.Commits)
	}
}

func TestTool_WriteRelativePathResolvesToSrc(t *testing.T) {
	server, _, _, fs := testServer(t)

	responses := runRequests(t, server,
		callTool(1, "write", map[string]any{
			"sandbox": "demo", "path": "relative.txt", "content": "x",
		}))
	if responses[0].Error != nil {
		t.Fatalf("write failed: %+v", responses[0].Error)
	}
	if _, ok := fs.files["/src/relative.txt"]; !ok {
		t.Errorf("relative path should land in /src, files = %v", fs.files)
	}
}

func TestTool_ReadOffsetLimit(t *testing.T) {
	server, _, _, fs := testServer(t)
	fs.files["/src/lines.txt"] = "one\ntwo\nthree\nfour\n"

	responses := runRequests(t, server,
		callTool(1, "read", map[string]any{
			"sandbox": "demo", "path": "/src/lines.txt", "offset": 1, "limit": 2,
		}))

	if got := firstText(t, responses[0]); got != "two\nthree\n" {
		t.Errorf("sliced read = %q, want lines [1,3)", got)
	}
}

func TestTool_ReadMissingFile(t *testing.T) {
	server, repo, _, _ := testServer(t)
	repo.NextDelta = "snap"

	responses := runRequests(t, server,
		callTool(1, "read", map[string]any{"sandbox": "demo", "path": "/src/missing.txt"}))

	errObj := responses[0].Error
	if errObj == nil || errObj.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", responses[0])
	}
	if !strings.Contains(errObj.Message, "file not found") {
		t.Errorf("message = %q", errObj.Message)
	}

	// Reads never snapshot.
	if len(repo.Commits) != 0 {
		t.Errorf("read produced commits: %v", repo.Commits)
	}
}

func TestTool_UnknownSandbox(t *testing.T) {
	server, _, _, _ := testServer(t)

	responses := runRequests(t, server,
		callTool(1, "read", map[string]any{"sandbox": "ghost", "path": "/src/a.txt"}))

	errObj := responses[0].Error
	if errObj == nil || errObj.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", responses[0])
	}
	if !strings.Contains(errObj.Message, "not found") {
		t.Errorf("message = %q", errObj.Message)
	}
}

func TestTool_Shell(t *testing.T) {
	server, repo, _, _ := testServer(t)

	responses := runRequests(t, server,
		callTool(1, "shell", map[string]any{"sandbox": "demo", "command": "true"}))

	var result execResultJSON
	if err := json.Unmarshal([]byte(firstText(t, responses[0])), &result); err != nil {
		t.Fatal(err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d", result.ExitCode)
	}

	// No filesystem delta: no commit (the mock returns no delta unless armed).
	if len(repo.Commits) != 0 {
		t.Errorf("no-op shell produced commits: %v", repo.Commits)
	}
}

func TestTool_ShellSnapshotMessage(t *testing.T) {
	server, repo, _, _ := testServer(t)
	repo.NextDelta = "snap"

	runRequests(t, server,
		callTool(1, "shell", map[string]any{
			"sandbox": "demo", "command": "echo beta >/src/a.txt",
		}))

	if len(repo.Commits) != 1 || repo.Commits[0] != "litterbox/demo: shell: echo beta >/src/a.txt" {
		t.Errorf("commits = %v", repo.Commits)
	}
}

func TestTool_SnapshotFailureIsWarningNotError(t *testing.T) {
	server, repo, _, _ := testServer(t)
	repo.NextDelta = "snap"
	delete(repo.Branches, "litterbox/demo") // branch vanished behind our back

	responses := runRequests(t, server,
		callTool(1, "write", map[string]any{
			"sandbox": "demo", "path": "/src/a.txt", "content": "alpha",
		}))

	// The mutation succeeded; the snapshot failure is only a warning.
	result := toolResult(t, responses[0])
	found := false
	for _, block := range result.Content {
		if strings.Contains(block.Text, "warning: snapshot failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected snapshot warning in content, got %+v", result.Content)
	}
}

func TestTool_Patch(t *testing.T) {
	server, repo, _, fs := testServer(t)
	fs.files["/src/a.txt"] = "alpha\n"
	repo.NextDelta = "snap"

	diff := `--- a/a.txt
+++ b/a.txt
@@ -1 +1 @@
-alpha
+beta
`

	responses := runRequests(t, server,
		callTool(1, "patch", map[string]any{
			"sandbox": "demo", "path": "/src/a.txt", "diff": diff,
		}))

	if responses[0].Error != nil {
		t.Fatalf("patch failed: %+v", responses[0].Error)
	}
	if fs.files["/src/a.txt"] != "beta\n" {
		t.Errorf("patched content = %q, want beta\\n", fs.files["/src/a.txt"])
	}
	if len(repo.Commits) != 1 || repo.Commits[0] != "litterbox/demo: patch: /src/a.txt" {
		t.Errorf("commits = %v", repo.Commits)
	}

	// Re-applying the same diff no longer matches the content.
	responses = runRequests(t, server,
		callTool(2, "patch", map[string]any{
			"sandbox": "demo", "path": "/src/a.txt", "diff": diff,
		}))
	errObj := responses[0].Error
	if errObj == nil || errObj.Code != codeInvalidParams {
		t.Fatalf("re-apply = %+v, want invalid params", responses[0])
	}
	if !strings.Contains(errObj.Message, "not applicable") {
		t.Errorf("message = %q", errObj.Message)
	}
}

func TestTool_PatchRejectsMultiFileDiffs(t *testing.T) {
	server, _, _, fs := testServer(t)
	fs.files["/src/a.txt"] = "alpha\n"
	fs.files["/src/b.txt"] = "bravo\n"

	diff := `--- a/a.txt
+++ b/a.txt
@@ -1 +1 @@
-alpha
+beta
--- a/b.txt
+++ b/b.txt
@@ -1 +1 @@
-bravo
+delta
`

	responses := runRequests(t, server,
		callTool(1, "patch", map[string]any{
			"sandbox": "demo", "path": "/src/a.txt", "diff": diff,
		}))

	errObj := responses[0].Error
	if errObj == nil || errObj.Code != codeInvalidParams {
		t.Fatalf("multi-file diff = %+v, want invalid params", responses[0])
	}
}

func TestTool_PatchMalformedDiff(t *testing.T) {
	server, _, _, _ := testServer(t)

	responses := runRequests(t, server,
		callTool(1, "patch", map[string]any{
			"sandbox": "demo", "path": "/src/a.txt", "diff": "this is not a diff",
		}))

	errObj := responses[0].Error
	if errObj == nil || errObj.Code != codeInvalidParams {
		t.Fatalf("malformed diff = %+v, want invalid params", responses[0])
	}
}

func TestTool_Ls(t *testing.T) {
	server, _, _, fs := testServer(t)
	fs.files["/src/a.txt"] = "alpha"
	fs.files["/src/sub/b.txt"] = "beta"

	responses := runRequests(t, server,
		callTool(1, "ls", map[string]any{"sandbox": "demo", "path": "/src"}),
		callTool(2, "ls", map[string]any{"sandbox": "demo", "path": "/src", "recursive": true}),
	)

	var entries []string
	if err := json.Unmarshal([]byte(firstText(t, responses[0])), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0] != "a.txt" || entries[1] != "sub" {
		t.Errorf("ls = %v", entries)
	}

	if err := json.Unmarshal([]byte(firstText(t, responses[1])), &entries); err != nil {
		t.Fatal(err)
	}
	want := []string{"a.txt", "sub", "sub/b.txt"}
	if len(entries) != len(want) {
		t.Fatalf("recursive ls = %v, want %v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("recursive ls[%d] = %q, want %q", i, entries[i], want[i])
		}
	}
}

func TestTool_LsMissingDir(t *testing.T) {
	server, _, _, _ := testServer(t)

	responses := runRequests(t, server,
		callTool(1, "ls", map[string]any{"sandbox": "demo", "path": "/src/nowhere"}))
	errObj := responses[0].Error
	if errObj == nil || errObj.Code != codeInvalidParams {
		t.Fatalf("missing dir = %+v, want invalid params", responses[0])
	}
}

func TestTool_Glob(t *testing.T) {
	server, _, _, fs := testServer(t)
	fs.files["/src/main.go"] = "package main"
	fs.files["/src/util.go"] = "package main"
	fs.files["/src/README.md"] = "# readme"
	fs.files["/src/pkg/deep.go"] = "package pkg"

	responses := runRequests(t, server,
		callTool(1, "glob", map[string]any{"sandbox": "demo", "pattern": "*.go"}),
		callTool(2, "glob", map[string]any{"sandbox": "demo", "pattern": "**/*.go"}),
	)

	var matches []string
	if err := json.Unmarshal([]byte(firstText(t, responses[0])), &matches); err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0] != "main.go" || matches[1] != "util.go" {
		t.Errorf("glob *.go = %v", matches)
	}

	if err := json.Unmarshal([]byte(firstText(t, responses[1])), &matches); err != nil {
		t.Fatal(err)
	}
	if len(matches) != 3 {
		t.Errorf("glob **/*.go = %v, want 3 matches", matches)
	}
}

func TestTool_Grep(t *testing.T) {
	server, _, _, fs := testServer(t)
	fs.files["/src/a.txt"] = "alpha\nbeta\n"
	fs.files["/src/b.txt"] = "gamma\nalpha beta\n"

	responses := runRequests(t, server,
		callTool(1, "grep", map[string]any{"sandbox": "demo", "pattern": "alpha", "path": "/src"}),
		callTool(2, "grep", map[string]any{"sandbox": "demo", "pattern": "zeta", "path": "/src"}),
	)

	var matches []string
	if err := json.Unmarshal([]byte(firstText(t, responses[0])), &matches); err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("grep alpha = %v, want 2 matches", matches)
	}
	if !strings.Contains(matches[0], "/src/a.txt:1:alpha") {
		t.Errorf("match format = %q", matches[0])
	}

	// No matches is an empty list, not an error.
	if err := json.Unmarshal([]byte(firstText(t, responses[1])), &matches); err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("grep zeta = %v, want empty", matches)
	}
}

func TestTool_SandboxPorts(t *testing.T) {
	server, _, _, _ := testServer(t)

	// Create a sandbox with a forwarded port through the tool surface.
	responses := runRequests(t, server,
		callTool(1, "sandbox-create", map[string]any{"name": "ported"}),
		callTool(2, "sandbox-ports", map[string]any{"sandbox": "ported"}),
	)

	var result portsResult
	if err := json.Unmarshal([]byte(firstText(t, responses[1])), &result); err != nil {
		t.Fatal(err)
	}
	if result.Name != "ported" {
		t.Errorf("name = %q", result.Name)
	}
	if len(result.ForwardedPorts) != 1 || result.ForwardedPorts[0].EnvVar != "LITTERBOX_FWD_PORT_WEB" {
		t.Errorf("forwarded ports = %+v", result.ForwardedPorts)
	}
}

func TestSnapshotMessage(t *testing.T) {
	tests := []struct {
		trigger Trigger
		want    string
	}{
		{Trigger{Kind: "write", Payload: "/src/a.txt"}, "write: /src/a.txt"},
		{Trigger{Kind: "patch", Payload: "/src/a.txt"}, "patch: /src/a.txt"},
		{Trigger{Kind: "shell", Payload: "echo beta >/src/a.txt"}, "shell: echo beta >/src/a.txt"},
		{Trigger{Kind: "shell", Payload: "echo trailing\n\n"}, "shell: echo trailing"},
	}

	for _, tt := range tests {
		if got := snapshotMessage(tt.trigger); got != tt.want {
			t.Errorf("snapshotMessage(%+v) = %q, want %q", tt.trigger, got, tt.want)
		}
	}

	long := snapshotMessage(Trigger{Kind: "shell", Payload: strings.Repeat("x", 200)})
	if len(long) != snapshotMessageLimit {
		t.Errorf("long message length = %d, want %d", len(long), snapshotMessageLimit)
	}
}

func TestSliceContent(t *testing.T) {
	content := "one\ntwo\nthree\nfour"
	intp := func(v int) *int { return &v }

	tests := []struct {
		name   string
		offset *int
		limit  *int
		want   string
	}{
		{"whole file", nil, nil, content},
		{"offset only", intp(2), nil, "three\nfour"},
		{"limit only", nil, intp(2), "one\ntwo\n"},
		{"window", intp(1), intp(2), "two\nthree\n"},
		{"zero limit", nil, intp(0), ""},
		{"offset past end", intp(10), nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sliceContent(content, tt.offset, tt.limit); got != tt.want {
				t.Errorf("sliceContent = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveContainerPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/abs/path.txt", "/abs/path.txt"},
		{"rel/path.txt", "/src/rel/path.txt"},
		{"file.txt", "/src/file.txt"},
	}
	for _, tt := range tests {
		if got := resolveContainerPath(tt.input); got != tt.want {
			t.Errorf("resolveContainerPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
