// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"time"
)

const sessionExpiredMessage = "Session expired — please re-authenticate"

// Sentinel errors.
var (
	// ErrNoPendingLogin is returned by second-factor calls outside SecondFactorPending.
	ErrNoPendingLogin = errors.New("no login awaiting a second factor")

	// ErrLoginInProgress is returned when a login step is already in flight.
	ErrLoginInProgress = errors.New("login already in progress")

	// ErrLoginAborted is returned when Logout or Close races an in-flight login step.
	ErrLoginAborted = errors.New("login aborted")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session controller closed")
)

// Step identifies which login step failed.
type Step int

const (
	// StepKey is admin key verification.
	StepKey Step = iota
	// StepTOTP is the six-digit authenticator code.
	StepTOTP
	// StepBackup is a one-time backup code.
	StepBackup
)

// AuthError is a rejected credential or a transport failure during a login step.
type AuthError struct {
	Step     Step
	Attempts int
	Max      int
	Err      error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	switch e.Step {
	case StepTOTP:
		return fmt.Sprintf("Invalid code (%d/%d)", e.Attempts, e.Max)
	case StepBackup:
		return fmt.Sprintf("Invalid backup code (%d/%d)", e.Attempts, e.Max)
	default:
		return fmt.Sprintf("Authentication failed (%d/%d)", e.Attempts, e.Max)
	}
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// LockedError is returned while attempts are refused.
type LockedError struct {
	Remaining time.Duration
}

// Error implements the error interface.
func (e *LockedError) Error() string {
	return fmt.Sprintf("too many failed attempts: locked for %ds", ceilSeconds(e.Remaining))
}

// SessionExpiredError is returned by protected requests once the session is gone.
type SessionExpiredError struct {
	Reason Reason
	Err    error
}

// Error implements the error interface.
func (e *SessionExpiredError) Error() string {
	return sessionExpiredMessage
}

// Unwrap returns the underlying cause, if any.
func (e *SessionExpiredError) Unwrap() error {
	return e.Err
}

// ValidationError is a local input check that failed before any request.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsSessionExpired reports whether err ended (or found ended) the session.
func IsSessionExpired(err error) bool {
	var se *SessionExpiredError
	return errors.As(err, &se)
}
