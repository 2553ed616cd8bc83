// Package integration provides a test harness for end-to-end tests that
// require a real container daemon and git repository.
//
// Integration tests are skipped unless the LITTERBOX_DOCKER_TESTS
// environment variable is set. These tests require:
//   - a reachable docker (or podman) daemon
//   - the busybox:latest image, or network access to pull it
//   - the git binary on PATH
package integration
