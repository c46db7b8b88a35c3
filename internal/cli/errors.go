// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/rigrun-agent/internal/config"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
	"github.com/jeranaias/rigrun-agent/internal/transcript"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid usage, arguments or user input
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the model endpoint could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates the model (or another resource) was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user cancelled the operation
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES FOR STRUCTURED ERROR HANDLING
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: failed to %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError reports invalid command-line usage.
type UsageError struct {
	Message string
	Usage   string
}

func (e *UsageError) Error() string {
	return e.Message
}

// ConfigError wraps a failure to load or save configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(command, action string, err error) error {
	return &CommandError{Command: command, Action: action, Err: err}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode determines the exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var configErr *ConfigError
	var validateErrs config.ValidateErrors
	var validationErr config.ValidationError

	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &usageErr), ollama.IsValidation(err):
		return ExitUsageError
	case errors.As(err, &configErr), errors.As(err, &validateErrs), errors.As(err, &validationErr):
		return ExitConfigError
	case ollama.IsConnection(err):
		return ExitNetworkError
	case ollama.IsModelNotFound(err), errors.Is(err, transcript.ErrSessionNotFound):
		return ExitNotFoundError
	case ollama.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	default:
		return ExitGeneralError
	}
}

// Hint returns a one-line suggestion for resolving err, or "".
func Hint(err error, cfg *config.Config) string {
	host, model := ollama.DefaultBaseURL, ollama.DefaultModel
	if cfg != nil {
		host, model = cfg.Model.Host, cfg.Model.ModelID
	}

	var usageErr *UsageError
	switch {
	case errors.As(err, &usageErr) && usageErr.Usage != "":
		return "usage: " + usageErr.Usage
	case ollama.IsConnection(err):
		return "Is Ollama running at " + host + "? Start it with: ollama serve"
	case ollama.IsModelNotFound(err):
		return "Pull the model first: ollama pull " + model
	case ollama.IsTimeout(err):
		return "Increase model.timeout_secs or try a smaller model"
	case ollama.IsContextExceeded(err):
		return "Lower conversation.window_size or start a new conversation"
	case ExitCode(err) == ExitConfigError:
		return "Check the configuration file or AGENT_* environment variables"
	default:
		return ""
	}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes a styled one-line error and an optional hint to w.
func DisplayError(w io.Writer, err error, cfg *config.Config) {
	if err == nil {
		return
	}

	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if hint := Hint(err, cfg); hint != "" {
		fmt.Fprintf(w, "%s %s\n", DimStyle.Render("  hint:"), hint)
	}
}
