// Package sandbox implements the sandbox lifecycle.
//
// A sandbox pairs a dedicated branch (litterbox/<slug>) in the host
// repository with a container provisioned from the repository's HEAD
// tree. The Manager composes the repository, compute, and port adapters
// into create / pause / resume / delete / shell / upload / download with
// all-or-nothing semantics.
//
// # Creation
//
// Create runs an ordered ladder: occupancy checks, branch from HEAD,
// image pull, port reservation, container create+start, tree upload,
// setup command. Each completed step registers a compensating inverse;
// on failure the inverses run in reverse order, so a failed creation
// leaves neither a branch, a container, nor reserved ports behind. The
// single exception is a setup command that exits non-zero: its resources
// stay up for inspection and the record lands in the error state.
//
// # Concurrency
//
// Create, Pause, Resume, and Delete against one slug serialise on a
// per-record lock; Shell, Upload, and Download do not take it, and callers
// that need them serialised hold it through Lock. Operations
// against distinct slugs run in parallel sharing only the port
// allocator. The lock map and record table are guarded by a mutex that
// is never held across adapter I/O.
//
// # Persistence
//
// The branch namespace is the authoritative record. Resolve and
// LoadState rebuild in-process records from the branch list and the
// daemon's container inspection, so any process can operate on sandboxes
// it did not create.
package sandbox
