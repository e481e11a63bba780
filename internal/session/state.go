// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"math"
	"time"
)

// State is the login state of a Controller.
type State int

const (
	// LoggedOut means no key is held.
	LoggedOut State = iota
	// KeyPending means a key verification request is in flight.
	KeyPending
	// SecondFactorPending means the key was accepted and a TOTP or backup code is required.
	SecondFactorPending
	// Authenticated means protected requests may be sent.
	Authenticated
	// LockedOut means attempts are refused until the lockout expires.
	LockedOut
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case LoggedOut:
		return "LOGGED_OUT"
	case KeyPending:
		return "KEY_PENDING"
	case SecondFactorPending:
		return "SECOND_FACTOR_PENDING"
	case Authenticated:
		return "AUTHENTICATED"
	case LockedOut:
		return "LOCKED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Reason explains why a session ended.
type Reason int

const (
	// ReasonNone is used for events that are not session terminations.
	ReasonNone Reason = iota
	// ReasonLogout is an explicit Logout call.
	ReasonLogout
	// ReasonSessionTimeout is the hard session limit.
	ReasonSessionTimeout
	// ReasonIdleTimeout is the sliding inactivity limit.
	ReasonIdleTimeout
	// ReasonUnauthorized is an HTTP 401 from a protected request.
	ReasonUnauthorized
)

// String returns a string representation of the Reason.
func (r Reason) String() string {
	switch r {
	case ReasonLogout:
		return "logout"
	case ReasonSessionTimeout:
		return "session_timeout"
	case ReasonIdleTimeout:
		return "idle_timeout"
	case ReasonUnauthorized:
		return "unauthorized"
	default:
		return "none"
	}
}

// Message is the operator-facing notice shown after a session ends.
func (r Reason) Message() string {
	switch r {
	case ReasonSessionTimeout:
		return "Session expired"
	case ReasonIdleTimeout:
		return "Logged out due to inactivity"
	case ReasonUnauthorized:
		return sessionExpiredMessage
	default:
		return ""
	}
}

// EventKind distinguishes transitions from countdown ticks.
type EventKind int

const (
	// EventStateChanged fires on every state transition.
	EventStateChanged EventKind = iota
	// EventLockoutTick fires once per lockout tick while LockedOut.
	EventLockoutTick
)

// Event is delivered to subscribers.
type Event struct {
	Kind   EventKind
	State  State
	Reason Reason
	// Remaining is the lockout time left for EventLockoutTick and LockedOut transitions.
	Remaining time.Duration
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State            State
	FailedAttempts   int
	MaxAttempts      int
	LockoutRemaining time.Duration
	SessionRemaining time.Duration
	IdleRemaining    time.Duration
	StartedAt        time.Time
}

// LockoutSeconds returns the lockout remaining rounded up to whole seconds.
func (s Snapshot) LockoutSeconds() int {
	return ceilSeconds(s.LockoutRemaining)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
