package cmd

import (
	"strings"
	"testing"

	"github.com/litterbox-sh/litterbox/internal/sandbox"
)

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		record sandbox.Record
		want   string
	}{
		{sandbox.Record{Status: sandbox.StatusActive}, "✓ active"},
		{sandbox.Record{Status: sandbox.StatusPaused}, "● paused"},
		{sandbox.Record{Status: sandbox.StatusError, StatusMessage: "setup failed: exit code 2"}, "✗ setup failed: exit code 2"},
	}

	for _, tt := range tests {
		if got := formatStatus(&tt.record); got != tt.want {
			t.Errorf("formatStatus(%s) = %q, want %q", tt.record.Status, got, tt.want)
		}
	}
}

func TestFormatPorts(t *testing.T) {
	record := &sandbox.Record{}
	if got := formatPorts(record); got != "-" {
		t.Errorf("empty ports = %q, want -", got)
	}

	record.ForwardedPorts = []sandbox.ForwardedPort{
		{Service: "web", HostPort: 3001, Target: 8080},
		{Service: "api", HostPort: 3002, Target: 9090},
	}
	got := formatPorts(record)
	if !strings.Contains(got, "web:3001->8080") || !strings.Contains(got, "api:3002->9090") {
		t.Errorf("formatPorts = %q", got)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	want := map[string]bool{
		"list": true, "pause": true, "resume": true,
		"delete": true, "shell": true, "stdio": true,
	}

	for _, sub := range rootCmd.Commands() {
		delete(want, sub.Name())
	}
	for missing := range want {
		t.Errorf("subcommand %q not registered", missing)
	}
}
