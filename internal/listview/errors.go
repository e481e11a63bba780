// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package listview

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrStale means the view was torn down while the operation was in flight;
	// its result was discarded.
	ErrStale = errors.New("result discarded: view changed")

	// ErrNotFound means no item has the requested id.
	ErrNotFound = errors.New("item not found")

	// ErrBusy means an action is already running on the item.
	ErrBusy = errors.New("action already in progress")

	// ErrUnknownFilter is returned by SetFilter for an unregistered name.
	ErrUnknownFilter = errors.New("unknown filter")

	// ErrUnknownSort is returned by SetSort for an unregistered name.
	ErrUnknownSort = errors.New("unknown sort")
)

// ValidationError is a local check that failed before any request was sent.
type ValidationError struct {
	Action string
	Err    error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying check failure.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ActionError is a record action whose write failed. Items are unchanged.
type ActionError struct {
	Action string
	ID     string
	Err    error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Action, e.ID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// Required returns a validation func that fails when value is blank.
func Required(field string, value func() string) func() error {
	return func() error {
		if isBlank(value()) {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
