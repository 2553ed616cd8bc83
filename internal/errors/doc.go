// Package errors provides typed errors with exit codes for litterbox.
//
// # Error Types
//
// LitterboxError is the base error type that wraps an error with an exit code:
//
//	type LitterboxError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Sentinels
//
// Adapter errors wrap a sentinel so callers can classify failures without
// knowing which backend produced them:
//
//	if errors.Is(err, errors.ErrNotFound) { ... }
//	if errors.Is(err, errors.ErrDaemonUnavailable) { ... }
//
// # Extracting Exit Codes
//
// Use GetExitCode to extract the exit code from an error chain:
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
