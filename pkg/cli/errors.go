package cli

import (
	"errors"
	"fmt"

	"cohortline/exportd/pkg/export"
)

// ConfigError represents an error in configuration or flags.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// Exit codes returned by exportd.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitInvalid        = 2
	ExitNotFound       = 3
	ExitAlreadyRunning = 4
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	var (
		cfgErr *ConfigError
		valErr *export.ValidationError
		runErr *export.AlreadyRunningError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &cfgErr), errors.As(err, &valErr):
		return ExitInvalid
	case errors.Is(err, export.ErrNotFound):
		return ExitNotFound
	case errors.As(err, &runErr):
		return ExitAlreadyRunning
	default:
		return ExitFailure
	}
}
