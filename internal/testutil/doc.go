// Package testutil provides shared fixtures for litterbox tests:
// throwaway git repositories with a seeded commit and project
// configuration files.
package testutil
