// Package mcp exposes the sandbox tool surface to coding agents.
//
// The server speaks JSON-RPC 2.0 over newline-delimited stdio (the MCP
// stdio transport): initialize, ping, tools/list, and tools/call. The
// tool set is closed: sandbox-create, sandbox-ports, read, write, patch,
// shell, ls, glob, grep.
//
// # Dispatch
//
// Every tool call except sandbox-create names an existing sandbox; the
// dispatcher slugifies the name and resolves the record (rebuilding it
// from the branch namespace when this process has not seen the sandbox).
// The file and shell tools hold the per-sandbox lock for the duration of
// the call; sandbox-ports does not take it. Path arguments are absolute inside the
// container or relative to /src.
//
// Non-mutating tools run small shell primitives (cat, ls, find, grep)
// inside the container and classify their diagnostics into typed
// JSON-RPC errors, so the agent sees "file not found" rather than a raw
// exit code.
//
// # Snapshots
//
// After a successful write, patch, or shell call the coordinator
// downloads the container's /src, stages it against the sandbox branch,
// and commits the delta before the response returns; the agent never
// observes two mutations out of snapshot order. An unchanged tree
// commits nothing. Snapshot failures become warnings on the tool
// response rather than tool errors, because the mutation has already
// happened.
package mcp
