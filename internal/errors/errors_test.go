package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestLitterboxError_Error(t *testing.T) {
	err := New(ExitGeneralError, "something broke")
	if err.Error() != "something broke" {
		t.Errorf("Error() = %q, want %q", err.Error(), "something broke")
	}

	wrapped := Wrap(ExitComputeFailed, "container create failed", fmt.Errorf("daemon down"))
	if !strings.Contains(wrapped.Error(), "daemon down") {
		t.Errorf("Error() = %q, should contain cause", wrapped.Error())
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", fmt.Errorf("boom"), ExitGeneralError},
		{"sandbox not found", SandboxNotFound("demo"), ExitSandboxNotFound},
		{"name conflict", NameConflict("demo"), ExitNameConflict},
		{"invalid name", InvalidName("----", "empty slug"), ExitInvalidName},
		{"wrapped deeper", fmt.Errorf("outer: %w", PortsExhausted(nil)), ExitPortsExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSentinelClassification(t *testing.T) {
	if !errors.Is(SandboxNotFound("demo"), ErrNotFound) {
		t.Error("SandboxNotFound should wrap ErrNotFound")
	}
	if !errors.Is(NameConflict("demo"), ErrNameConflict) {
		t.Error("NameConflict should wrap ErrNameConflict")
	}
	if !errors.Is(SetupFailed(1, "boom"), ErrSetupFailed) {
		t.Error("SetupFailed should wrap ErrSetupFailed")
	}
}

func TestSetupFailed_Message(t *testing.T) {
	err := SetupFailed(2, "npm install exploded")
	if !strings.Contains(err.Error(), "exit code 2") {
		t.Errorf("Error() = %q, should mention exit code", err.Error())
	}
	if !strings.Contains(err.Error(), "npm install exploded") {
		t.Errorf("Error() = %q, should include stderr", err.Error())
	}
}
