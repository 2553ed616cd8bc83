// Package port allocates host TCP ports for forwarded sandbox services.
//
// Each declared service needs one host port for the lifetime of its
// sandbox. The allocator keeps an in-process reserved set guarded by a
// mutex and verifies host-level availability with a bind probe before
// granting a port.
//
// The reserved set only protects against races between sandboxes in this
// process. Another process can still win a port between the probe and the
// container start; the container daemon then reports the conflict and the
// lifecycle layer retries allocation.
//
// Ports come from a configurable half-open range, by default [3000, 8000).
// Allocation is first-fit from the bottom of the range.
package port
