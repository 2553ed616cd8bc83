// Package logging provides logging utilities for litterbox.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("creating sandbox", "slug", slug, "image", image)
//	logging.Warn("snapshot failed", "sandbox", slug, "error", err)
//
// Structured logs go to stderr so they never mix with tool-call traffic on
// stdout when the agent server is running.
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Pausing %s...", name)
//	logging.UserSuccess("Sandbox %s deleted", name)
//	logging.UserWarning("Port %d is already in use", port)
//	logging.UserError("Failed to create sandbox: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
package logging
