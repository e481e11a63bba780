// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session implements the admin login state machine.
//
// A Controller owns the admin key. It verifies the key against the
// marketplace API, runs the optional second factor (TOTP or backup code),
// enforces the failed-attempt lockout and ends the session on a hard
// timeout, an idle timeout, an explicit Logout or an HTTP 401.
//
// # Key Types
//
//   - Controller: state machine plus timers
//   - Config: attempt limit and timeout durations
//   - KeyStore: process-scoped key memory used by Resume
//   - Event: state change or lockout countdown, delivered to subscribers
//
// # Usage
//
//	ctrl := session.New(api, session.DefaultConfig(), session.WithLogger(logger))
//	defer ctrl.Close()
//
//	if err := ctrl.Authenticate(ctx, key); err != nil {
//	    var locked *session.LockedError
//	    if errors.As(err, &locked) { ... }
//	}
//	if ctrl.State() == session.SecondFactorPending {
//	    err = ctrl.VerifySecondFactor(ctx, "123456")
//	}
//	raw, err := ctrl.AuthorizedRequest(ctx, "GET", "/admin/skills", nil)
//
// Other components never see the key; they go through AuthorizedRequest.
package session
