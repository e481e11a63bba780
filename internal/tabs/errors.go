// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tabs

import "errors"

var (
	// ErrUnknownTab is returned for a name that was never registered.
	ErrUnknownTab = errors.New("unknown tab")

	// ErrDuplicateTab is returned when a name is registered twice.
	ErrDuplicateTab = errors.New("tab already registered")

	// ErrSuperseded means another tab was selected while this activation
	// was loading. Its result should be dropped.
	ErrSuperseded = errors.New("activation superseded")
)
