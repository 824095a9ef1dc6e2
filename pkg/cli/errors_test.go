package cli

import (
	"errors"
	"fmt"
	"testing"

	"cohortline/exportd/pkg/export"
)

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "storage.sqlite.path",
		Message: "missing required field",
	}

	expected := "config error in storage.sqlite.path: missing required field"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandError(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("export", underlyingErr)

	expected := "command export failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"generic", errors.New("boom"), ExitFailure},
		{"config", NewConfigError("output", "bad"), ExitInvalid},
		{"validation", export.NewValidationError("view", "unknown"), ExitInvalid},
		{"wrapped validation", NewCommandError("export", export.NewValidationError("scope", "missing")), ExitInvalid},
		{"not found", fmt.Errorf("load: %w", export.NewNotFoundError("process", "p1")), ExitNotFound},
		{"already running", &export.AlreadyRunningError{RequesterID: "r1"}, ExitAlreadyRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
