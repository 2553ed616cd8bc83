// Package compute provides the contract over the container daemon.
//
// The Compute interface abstracts container provisioning, execution, and
// file transfer so the sandbox lifecycle never sees daemon-specific types.
//
// Implementations:
//   - DockerCompute: shells out to the docker (or podman) CLI
//   - MockCompute: in-memory fake with call logging, for tests
//
// # Error Classification
//
// Daemon failures are classified into the shared error taxonomy by
// inspecting CLI diagnostics: a missing container surfaces
// errors.ErrNotFound, an unreachable daemon errors.ErrDaemonUnavailable,
// an occupied container name errors.ErrNameConflict, a failed pull
// errors.ErrImageUnavailable, and a lost host port ErrPortConflict.
//
// # File Transfer
//
// UploadTar and DownloadTar move tar archives across the container
// boundary. UploadTar consumes its reader as the CLI reads it, so callers
// may pass an io.Pipe; DockerCompute.DownloadTar reads the whole archive
// into memory before returning it.
package compute
