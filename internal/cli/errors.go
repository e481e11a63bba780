// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for the squidops commands.
//
// Commands always return errors; Execute displays them once and maps them
// to an exit code.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/squidbay/squidops-tui/internal/apiclient"
	"github.com/squidbay/squidops-tui/internal/config"
	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError is a bad flag or argument value.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	if e.Example != "" {
		msg += " (e.g. " + e.Example + ")"
	}
	return msg
}

// NewValidationError builds a *ValidationError.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// CommandError wraps a failure with the command and step that produced it.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err, or returns nil for a nil err.
func NewCommandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		validation *ValidationError
		tty        *TTYRequiredError
		listCheck  *listview.ValidationError
		verrs      config.ValidateErrors
		verr       config.ValidationError
		authErr    *session.AuthError
		locked     *session.LockedError
		expired    *session.SessionExpiredError
		network    *apiclient.NetworkError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &tty), errors.As(err, &listCheck),
		errors.Is(err, export.ErrUnsupportedFormat):
		return ExitUsageError
	case errors.As(err, &verrs), errors.As(err, &verr):
		return ExitConfigError
	case errors.As(err, &authErr), errors.As(err, &locked), errors.As(err, &expired),
		errors.Is(err, apiclient.ErrUnauthorized):
		return ExitAuthError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &network):
		return ExitNetworkError
	case errors.Is(err, apiclient.ErrNotFound):
		return ExitNotFoundError
	default:
		return ExitGeneralError
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as a JSON error response in JSON mode.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		resp := NewJSONErrorResponse(command, err)
		resp.ErrorType = errorType(err)
		_ = resp.Write(w)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

func errorType(err error) string {
	switch GetExitCode(err) {
	case ExitUsageError:
		return "validation_error"
	case ExitConfigError:
		return "config_error"
	case ExitAuthError:
		return "auth_error"
	case ExitNetworkError, ExitTimeoutError:
		return "network_error"
	case ExitNotFoundError:
		return "not_found_error"
	default:
		return "generic_error"
	}
}

