package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/litterbox-sh/litterbox/internal/compute"
	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
	"github.com/litterbox-sh/litterbox/internal/logging"
	"github.com/litterbox-sh/litterbox/internal/name"
	"github.com/litterbox-sh/litterbox/internal/sandbox"
)

type sandboxCreateArgs struct {
	Name string `json:"name"`
}

type sandboxPortsArgs struct {
	Sandbox string `json:"sandbox"`
}

type readArgs struct {
	Sandbox string `json:"sandbox"`
	Path    string `json:"path"`
	Offset  *int   `json:"offset,omitempty"`
	Limit   *int   `json:"limit,omitempty"`
}

type writeArgs struct {
	Sandbox string `json:"sandbox"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

type patchArgs struct {
	Sandbox string `json:"sandbox"`
	Path    string `json:"path"`
	Diff    string `json:"diff"`
}

type shellArgs struct {
	Sandbox string `json:"sandbox"`
	Command string `json:"command"`
	Workdir string `json:"workdir,omitempty"`
	Timeout *int   `json:"timeout,omitempty"`
}

type lsArgs struct {
	Sandbox   string `json:"sandbox"`
	Path      string `json:"path"`
	Recursive bool   `json:"recursive,omitempty"`
}

type globArgs struct {
	Sandbox string `json:"sandbox"`
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

type grepArgs struct {
	Sandbox string `json:"sandbox"`
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Include string `json:"include,omitempty"`
}

// createResult is the structured payload returned by sandbox-create.
type createResult struct {
	Slug           string              `json:"slug"`
	BranchName     string              `json:"branch_name"`
	ContainerID    string              `json:"container_id"`
	ContainerName  string              `json:"container_name"`
	Status         string              `json:"status"`
	ForwardedPorts []forwardedPortJSON `json:"forwarded_ports"`
}

type forwardedPortJSON struct {
	Service       string `json:"service"`
	ContainerPort int    `json:"container_port"`
	HostPort      int    `json:"host_port"`
	EnvVar        string `json:"env_var"`
}

type portsResult struct {
	Name           string              `json:"name"`
	ForwardedPorts []forwardedPortJSON `json:"forwarded_ports"`
}

// execResultJSON mirrors MutationResult on the wire.
type execResultJSON struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

func (s *Server) registerTools() {
	sandboxProperty := map[string]any{"type": "string", "description": "Sandbox name or slug"}
	objectSchema := func(properties map[string]any, required ...string) map[string]any {
		return map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		}
	}

	s.tools = []tool{
		{
			description: toolDescription{
				Name:        "sandbox-create",
				Description: "Create a new sandbox based on the current repository HEAD",
				InputSchema: objectSchema(map[string]any{
					"name": map[string]any{"type": "string", "description": "Name for the new sandbox"},
				}, "name"),
			},
			handler: s.handleSandboxCreate,
		},
		{
			description: toolDescription{
				Name:        "sandbox-ports",
				Description: "Get forwarded ports for a sandbox",
				InputSchema: objectSchema(map[string]any{
					"sandbox": sandboxProperty,
				}, "sandbox"),
			},
			handler: s.handleSandboxPorts,
		},
		{
			description: toolDescription{
				Name:        "read",
				Description: "Read a file from the sandbox",
				InputSchema: objectSchema(map[string]any{
					"sandbox": sandboxProperty,
					"path":    map[string]any{"type": "string"},
					"offset":  map[string]any{"type": "integer", "description": "First line to return, 0-indexed"},
					"limit":   map[string]any{"type": "integer", "description": "Maximum number of lines"},
				}, "sandbox", "path"),
			},
			handler: s.handleRead,
		},
		{
			description: toolDescription{
				Name:        "write",
				Description: "Write a file into the sandbox",
				InputSchema: objectSchema(map[string]any{
					"sandbox": sandboxProperty,
					"path":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				}, "sandbox", "path", "content"),
			},
			handler: s.handleWrite,
		},
		{
			description: toolDescription{
				Name:        "patch",
				Description: "Apply a unified diff inside the sandbox",
				InputSchema: objectSchema(map[string]any{
					"sandbox": sandboxProperty,
					"path":    map[string]any{"type": "string"},
					"diff":    map[string]any{"type": "string"},
				}, "sandbox", "path", "diff"),
			},
			handler: s.handlePatch,
		},
		{
			description: toolDescription{
				Name:        "shell",
				Description: "Execute a shell command inside the sandbox",
				InputSchema: objectSchema(map[string]any{
					"sandbox": sandboxProperty,
					"command": map[string]any{"type": "string"},
					"workdir": map[string]any{"type": "string"},
					"timeout": map[string]any{"type": "integer", "description": "Wall-clock cap in seconds"},
				}, "sandbox", "command"),
			},
			handler: s.handleShell,
		},
		{
			description: toolDescription{
				Name:        "ls",
				Description: "List directory entries",
				InputSchema: objectSchema(map[string]any{
					"sandbox":   sandboxProperty,
					"path":      map[string]any{"type": "string"},
					"recursive": map[string]any{"type": "boolean"},
				}, "sandbox", "path"),
			},
			handler: s.handleLs,
		},
		{
			description: toolDescription{
				Name:        "glob",
				Description: "Find files matching a glob pattern",
				InputSchema: objectSchema(map[string]any{
					"sandbox": sandboxProperty,
					"pattern": map[string]any{"type": "string"},
					"path":    map[string]any{"type": "string"},
				}, "sandbox", "pattern"),
			},
			handler: s.handleGlob,
		},
		{
			description: toolDescription{
				Name:        "grep",
				Description: "Search file contents for a pattern",
				InputSchema: objectSchema(map[string]any{
					"sandbox": sandboxProperty,
					"pattern": map[string]any{"type": "string"},
					"path":    map[string]any{"type": "string"},
					"include": map[string]any{"type": "string"},
				}, "sandbox", "pattern", "path"),
			},
			handler: s.handleGrep,
		},
	}
}

// decodeArgs unmarshals tool arguments strictly.
func decodeArgs(raw json.RawMessage, target any) *rpcError {
	if len(raw) == 0 {
		return invalidParams("missing tool arguments")
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return invalidParams("invalid tool arguments: %v", err)
	}
	return nil
}

// resolveSandbox slugifies the sandbox argument and resolves its record.
func (s *Server) resolveSandbox(ctx context.Context, rawName string) (*sandbox.Record, *rpcError) {
	slug, err := name.SlugifyName(rawName)
	if err != nil {
		return nil, invalidParams("%v", err)
	}

	record, err := s.manager.Resolve(ctx, slug)
	if err != nil {
		if errors.Is(err, lberrors.ErrNotFound) {
			return nil, invalidParams("sandbox %q not found", rawName)
		}
		return nil, internalError("%v", err)
	}
	return record, nil
}

// mapFailure converts a classified primitive failure into a JSON-RPC
// error: conditions the agent caused are invalid params, everything else
// is internal.
func mapFailure(op string, failure primitiveFailure) *rpcError {
	switch failure.kind {
	case failureNotFound:
		return invalidParams("path not found: %s", failure.path)
	case failurePermissionDenied:
		return invalidParams("permission denied: %s", failure.path)
	case failureBadPattern:
		return invalidParams("invalid pattern %q: %s", failure.path, failure.message)
	default:
		return internalError("%s failed for %s: %s", op, failure.path, failure.message)
	}
}

func textContent(text string) []contentBlock {
	return []contentBlock{{Type: "text", Text: text}}
}

func jsonContent(payload any) ([]contentBlock, *rpcError) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, internalError("%v", err)
	}
	return textContent(string(data)), nil
}

func (s *Server) handleSandboxCreate(ctx context.Context, raw json.RawMessage) ([]contentBlock, *rpcError) {
	var args sandboxCreateArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}

	services := make([]sandbox.Service, len(s.cfg.Ports))
	for i, port := range s.cfg.Ports {
		services[i] = sandbox.Service{Name: port.Name, Target: port.Target}
	}

	record, err := s.manager.Create(ctx, args.Name, sandbox.CreateConfig{
		Image:        s.cfg.Docker.Image,
		SetupCommand: s.cfg.Docker.SetupCommand,
		Services:     services,
	})
	if err != nil {
		if errors.Is(err, lberrors.ErrInvalidName) || errors.Is(err, lberrors.ErrNameConflict) {
			return nil, invalidParams("%v", err)
		}
		return nil, internalError("%v", err)
	}

	return jsonContent(createResultFromRecord(record))
}

func createResultFromRecord(record *sandbox.Record) createResult {
	result := createResult{
		Slug:           record.Slug,
		BranchName:     record.BranchName,
		ContainerID:    record.ContainerID,
		ContainerName:  record.ContainerName,
		Status:         string(record.Status),
		ForwardedPorts: make([]forwardedPortJSON, 0, len(record.ForwardedPorts)),
	}
	for _, fwd := range record.ForwardedPorts {
		result.ForwardedPorts = append(result.ForwardedPorts, forwardedPortJSON{
			Service:       fwd.Service,
			ContainerPort: fwd.Target,
			HostPort:      fwd.HostPort,
			EnvVar:        fwd.EnvVar,
		})
	}
	return result
}

func (s *Server) handleSandboxPorts(ctx context.Context, raw json.RawMessage) ([]contentBlock, *rpcError) {
	var args sandboxPortsArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}

	record, rpcErr := s.resolveSandbox(ctx, args.Sandbox)
	if rpcErr != nil {
		return nil, rpcErr
	}

	forwarded := make([]forwardedPortJSON, 0, len(record.ForwardedPorts))
	for _, fwd := range record.ForwardedPorts {
		forwarded = append(forwarded, forwardedPortJSON{
			Service:       fwd.Service,
			ContainerPort: fwd.Target,
			HostPort:      fwd.HostPort,
			EnvVar:        fwd.EnvVar,
		})
	}
	sort.Slice(forwarded, func(i, j int) bool { return forwarded[i].Service < forwarded[j].Service })

	return jsonContent(portsResult{Name: record.Slug, ForwardedPorts: forwarded})
}

func (s *Server) handleRead(ctx context.Context, raw json.RawMessage) ([]contentBlock, *rpcError) {
	var args readArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}

	record, rpcErr := s.resolveSandbox(ctx, args.Sandbox)
	if rpcErr != nil {
		return nil, rpcErr
	}

	unlock := s.manager.Lock(record.Slug)
	defer unlock()

	content, rpcErr := s.readFile(ctx, record, args.Path)
	if rpcErr != nil {
		return nil, rpcErr
	}

	return textContent(sliceContent(content, args.Offset, args.Limit)), nil
}

func (s *Server) readFile(ctx context.Context, record *sandbox.Record, p string) (string, *rpcError) {
	containerPath := resolveContainerPath(p)
	result, err := runPrimitive(ctx, s.manager, record.Slug, buildReadCommand(containerPath))
	if err != nil {
		return "", internalError("%v", err)
	}
	if result.ExitCode != 0 {
		failure := classifyFailure(containerPath, result)
		if failure.kind == failureNotFound {
			return "", invalidParams("file not found: %s", containerPath)
		}
		return "", mapFailure("read", failure)
	}
	return result.Stdout, nil
}

func (s *Server) handleWrite(ctx context.Context, raw json.RawMessage) ([]contentBlock, *rpcError) {
	var args writeArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}

	record, rpcErr := s.resolveSandbox(ctx, args.Sandbox)
	if rpcErr != nil {
		return nil, rpcErr
	}

	unlock := s.manager.Lock(record.Slug)
	defer unlock()

	if rpcErr := s.writeFile(ctx, record, args.Path, args.Content); rpcErr != nil {
		return nil, rpcErr
	}

	return s.withSnapshot(ctx, record, Trigger{Kind: "write", Payload: resolveContainerPath(args.Path)}, nil), nil
}

func (s *Server) writeFile(ctx context.Context, record *sandbox.Record, p, content string) *rpcError {
	containerPath := resolveContainerPath(p)
	result, err := runPrimitive(ctx, s.manager, record.Slug, buildWriteCommand(containerPath, content))
	if err != nil {
		return internalError("%v", err)
	}
	if result.ExitCode != 0 {
		return mapFailure("write", classifyFailure(containerPath, result))
	}
	return nil
}

func (s *Server) handlePatch(ctx context.Context, raw json.RawMessage) ([]contentBlock, *rpcError) {
	var args patchArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}

	record, rpcErr := s.resolveSandbox(ctx, args.Sandbox)
	if rpcErr != nil {
		return nil, rpcErr
	}

	unlock := s.manager.Lock(record.Slug)
	defer unlock()

	files, _, err := gitdiff.Parse(strings.NewReader(args.Diff))
	if err != nil {
		return nil, invalidParams("invalid patch: %v", err)
	}
	if len(files) != 1 {
		return nil, invalidParams("diff not applicable: expected exactly one file, got %d", len(files))
	}
	file := files[0]

	containerPath := resolveContainerPath(args.Path)

	var original string
	if !file.IsNew {
		original, rpcErr = s.readFile(ctx, record, containerPath)
		if rpcErr != nil {
			return nil, rpcErr
		}
	}

	var patched bytes.Buffer
	if err := gitdiff.Apply(&patched, strings.NewReader(original), file); err != nil {
		return nil, invalidParams("diff not applicable to %s: %v", containerPath, err)
	}

	if file.IsDelete {
		result, err := runPrimitive(ctx, s.manager, record.Slug, buildDeleteCommand(containerPath))
		if err != nil {
			return nil, internalError("%v", err)
		}
		if result.ExitCode != 0 {
			return nil, mapFailure("patch", classifyFailure(containerPath, result))
		}
	} else if rpcErr := s.writeFile(ctx, record, containerPath, patched.String()); rpcErr != nil {
		return nil, rpcErr
	}

	return s.withSnapshot(ctx, record, Trigger{Kind: "patch", Payload: containerPath}, nil), nil
}

func (s *Server) handleShell(ctx context.Context, raw json.RawMessage) ([]contentBlock, *rpcError) {
	var args shellArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}

	record, rpcErr := s.resolveSandbox(ctx, args.Sandbox)
	if rpcErr != nil {
		return nil, rpcErr
	}

	unlock := s.manager.Lock(record.Slug)
	defer unlock()

	var timeout time.Duration
	if args.Timeout != nil {
		timeout = time.Duration(*args.Timeout) * time.Second
	}

	result, err := s.manager.Shell(ctx, record.Slug,
		[]string{"sh", "-c", args.Command}, args.Workdir, timeout)
	if err != nil && !errors.Is(err, lberrors.ErrTimeout) {
		return nil, internalError("%v", err)
	}
	if result == nil {
		result = &compute.ExecResult{ExitCode: -1}
	}
	// A deadline expiry still returns the partial output, and the
	// partially written state is a legitimate delta to snapshot.

	payload, rpcErr := jsonContent(execResultJSON{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	})
	if rpcErr != nil {
		return nil, rpcErr
	}

	return s.withSnapshot(ctx, record, Trigger{Kind: "shell", Payload: args.Command}, payload), nil
}

// withSnapshot runs the snapshot coordinator after a successful mutation.
// Snapshot failures are warnings on the response, never tool failures:
// the agent already observed the mutation. A vanished snapshot branch
// additionally moves the record into the error state.
func (s *Server) withSnapshot(ctx context.Context, record *sandbox.Record, trigger Trigger, content []contentBlock) []contentBlock {
	if content == nil {
		content = []contentBlock{}
	}

	if _, err := s.coordinator.Snapshot(ctx, record, trigger); err != nil {
		logging.Warn("snapshot failed", "sandbox", record.Slug, "error", err)
		if errors.Is(err, lberrors.ErrNotFound) {
			s.manager.MarkError(record.Slug, fmt.Sprintf("snapshot branch missing: %v", err))
		}
		content = append(content, contentBlock{
			Type: "text",
			Text: fmt.Sprintf("warning: snapshot failed: %v", err),
		})
	}

	return content
}

func (s *Server) handleLs(ctx context.Context, raw json.RawMessage) ([]contentBlock, *rpcError) {
	var args lsArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}

	record, rpcErr := s.resolveSandbox(ctx, args.Sandbox)
	if rpcErr != nil {
		return nil, rpcErr
	}

	unlock := s.manager.Lock(record.Slug)
	defer unlock()

	containerPath := resolveContainerPath(args.Path)
	result, err := runPrimitive(ctx, s.manager, record.Slug, buildLsCommand(containerPath, args.Recursive))
	if err != nil {
		return nil, internalError("%v", err)
	}
	if result.ExitCode != 0 {
		return nil, mapFailure("ls", classifyFailure(containerPath, result))
	}

	return jsonContent(parseLsOutput(result.Stdout, containerPath, args.Recursive))
}

func (s *Server) handleGlob(ctx context.Context, raw json.RawMessage) ([]contentBlock, *rpcError) {
	var args globArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}

	record, rpcErr := s.resolveSandbox(ctx, args.Sandbox)
	if rpcErr != nil {
		return nil, rpcErr
	}

	unlock := s.manager.Lock(record.Slug)
	defer unlock()

	base := sandbox.DefaultWorkdir
	if args.Path != "" {
		base = resolveContainerPath(args.Path)
	}

	if !doublestar.ValidatePattern(args.Pattern) {
		return nil, invalidParams("invalid glob pattern %q", args.Pattern)
	}
	patternIsAbsolute := strings.HasPrefix(args.Pattern, "/")

	result, err := runPrimitive(ctx, s.manager, record.Slug, buildFindCommand(base))
	if err != nil {
		return nil, internalError("%v", err)
	}
	if result.ExitCode != 0 {
		return nil, mapFailure("glob", classifyFailure(base, result))
	}

	matches := []string{}
	for _, entry := range parseLines(result.Stdout) {
		relative := stripBasePrefix(entry, base)
		candidate := relative
		if patternIsAbsolute {
			candidate = entry
		}
		ok, matchErr := doublestar.Match(args.Pattern, candidate)
		if matchErr != nil {
			return nil, invalidParams("invalid glob pattern %q: %v", args.Pattern, matchErr)
		}
		if ok {
			matches = append(matches, candidate)
		}
	}
	sort.Strings(matches)

	return jsonContent(matches)
}

func (s *Server) handleGrep(ctx context.Context, raw json.RawMessage) ([]contentBlock, *rpcError) {
	var args grepArgs
	if rpcErr := decodeArgs(raw, &args); rpcErr != nil {
		return nil, rpcErr
	}

	record, rpcErr := s.resolveSandbox(ctx, args.Sandbox)
	if rpcErr != nil {
		return nil, rpcErr
	}

	unlock := s.manager.Lock(record.Slug)
	defer unlock()

	containerPath := resolveContainerPath(args.Path)
	result, err := runPrimitive(ctx, s.manager, record.Slug,
		buildGrepCommand(args.Pattern, containerPath, args.Include))
	if err != nil {
		return nil, internalError("%v", err)
	}

	switch {
	case result.ExitCode == 0:
		return jsonContent(parseLines(result.Stdout))
	case result.ExitCode == 1 && strings.TrimSpace(result.Stderr) == "":
		// grep exit code 1 means "no matches", not failure.
		return jsonContent([]string{})
	default:
		return nil, mapFailure("grep", classifyGrepFailure(containerPath, args.Pattern, result))
	}
}
