package mcp

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/litterbox-sh/litterbox/internal/compute"
	"github.com/litterbox-sh/litterbox/internal/sandbox"
)

// failureKind classifies a shell primitive's non-zero exit.
type failureKind int

const (
	failureOther failureKind = iota
	failureNotFound
	failurePermissionDenied
	failureBadPattern
)

// primitiveFailure carries the classified outcome of a failed primitive.
type primitiveFailure struct {
	kind    failureKind
	path    string
	message string
}

// resolveContainerPath interprets relative paths against /src.
func resolveContainerPath(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return path.Join(sandbox.DefaultWorkdir, p)
}

// runPrimitive executes a shell command string inside the sandbox.
func runPrimitive(ctx context.Context, m *sandbox.Manager, slug, command string) (*compute.ExecResult, error) {
	return m.Shell(ctx, slug, []string{"sh", "-c", command}, "", 0)
}

// classifyFailure maps the diagnostics of a failed primitive onto a
// typed condition. Shell utilities encode "not found" and "permission
// denied" only in prose, so the prose is what we classify.
func classifyFailure(targetPath string, result *compute.ExecResult) primitiveFailure {
	stderr := strings.TrimSpace(result.Stderr)
	stdout := strings.TrimSpace(result.Stdout)
	message := stderr
	if message == "" {
		message = stdout
	}

	switch {
	case strings.Contains(message, "No such file or directory"):
		return primitiveFailure{kind: failureNotFound, path: targetPath, message: message}
	case strings.Contains(message, "Permission denied"):
		return primitiveFailure{kind: failurePermissionDenied, path: targetPath, message: message}
	case message == "":
		return primitiveFailure{
			kind:    failureOther,
			path:    targetPath,
			message: fmt.Sprintf("exit code %d", result.ExitCode),
		}
	default:
		return primitiveFailure{kind: failureOther, path: targetPath, message: message}
	}
}

// classifyGrepFailure additionally recognises malformed patterns.
func classifyGrepFailure(targetPath, pattern string, result *compute.ExecResult) primitiveFailure {
	failure := classifyFailure(targetPath, result)
	if failure.kind == failureOther &&
		(strings.Contains(failure.message, "Unmatched") || strings.Contains(failure.message, "Invalid")) {
		return primitiveFailure{kind: failureBadPattern, path: pattern, message: failure.message}
	}
	return failure
}

// buildReadCommand reads a whole file.
func buildReadCommand(containerPath string) string {
	return shellquote.Join("cat", "--", containerPath)
}

// buildWriteCommand creates parent directories and overwrites the file.
func buildWriteCommand(containerPath, content string) string {
	return fmt.Sprintf("mkdir -p %s && printf %%s %s > %s",
		shellquote.Join(path.Dir(containerPath)),
		shellquote.Join(content),
		shellquote.Join(containerPath))
}

// buildDeleteCommand removes a file (used when a patch deletes its target).
func buildDeleteCommand(containerPath string) string {
	return shellquote.Join("rm", "--", containerPath)
}

// buildLsCommand lists direct entries or walks recursively.
func buildLsCommand(containerPath string, recursive bool) string {
	if recursive {
		return shellquote.Join("find", containerPath, "-mindepth", "1", "-print")
	}
	return shellquote.Join("ls", "-1A", containerPath)
}

// buildFindCommand enumerates a subtree for client-side glob matching.
func buildFindCommand(base string) string {
	return shellquote.Join("find", base, "-mindepth", "1", "-print")
}

// buildGrepCommand searches recursively with line numbers.
func buildGrepCommand(pattern, containerPath string, include string) string {
	parts := []string{"grep", "-R", "-n"}
	if include != "" {
		parts = append(parts, "--include="+include)
	}
	parts = append(parts, "--", pattern, containerPath)
	return shellquote.Join(parts...)
}

// parseLines splits primitive output into trimmed, non-empty lines.
func parseLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseLsOutput normalises ls/find output. Recursive listings come back
// as absolute paths; they are rebased onto the queried directory.
func parseLsOutput(output, base string, recursive bool) []string {
	var entries []string
	for _, line := range parseLines(output) {
		if recursive {
			line = stripBasePrefix(line, base)
		}
		entries = append(entries, line)
	}
	sort.Strings(entries)
	return entries
}

// stripBasePrefix rebases an absolute path onto base.
func stripBasePrefix(p, base string) string {
	if stripped, ok := strings.CutPrefix(p, base); ok {
		return strings.TrimPrefix(stripped, "/")
	}
	return p
}

// sliceContent returns lines [offset, offset+limit) of content,
// 0-indexed, preserving line terminators.
func sliceContent(content string, offset, limit *int) string {
	start := 0
	if offset != nil {
		start = *offset
	}
	max := -1
	if limit != nil {
		max = *limit
		if max == 0 {
			return ""
		}
	}

	var result strings.Builder
	index := 0
	rest := content
	for rest != "" {
		segment := rest
		if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
			segment = rest[:newline+1]
			rest = rest[newline+1:]
		} else {
			rest = ""
		}

		if index >= start {
			if max >= 0 && index-start >= max {
				break
			}
			result.WriteString(segment)
		}
		index++
	}
	return result.String()
}
