// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/apiclient"
)

// AuthorizedRequest sends a protected request with the session key.
//
// A 401 ends the session (once per login, however many requests observe it)
// and is returned as *SessionExpiredError. Calls made without a live session
// fail the same way without reaching the API.
func (c *Controller) AuthorizedRequest(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.state != Authenticated {
		c.mu.Unlock()
		return nil, &SessionExpiredError{Reason: ReasonNone}
	}
	key, gen := c.key, c.generation
	c.mu.Unlock()

	raw, err := c.api.Do(ctx, apiclient.Request{Method: method, Path: path, Key: key, Body: body})
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			if c.expire(gen, ReasonUnauthorized) {
				c.logEvent("SESSION_REJECTED", zap.String("path", path))
			}
			return nil, &SessionExpiredError{Reason: ReasonUnauthorized, Err: err}
		}
		return nil, err
	}
	return raw, nil
}

// AuthorizedJSON is AuthorizedRequest followed by decoding into out.
func (c *Controller) AuthorizedJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.AuthorizedRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return apiclient.Decode(raw, out)
}

// PublicRequest sends an unauthenticated request. It never affects the session.
func (c *Controller) PublicRequest(ctx context.Context, method, path string) (json.RawMessage, error) {
	if method == "" {
		method = http.MethodGet
	}
	return c.api.Do(ctx, apiclient.Request{Method: method, Path: path})
}

// PublicJSON is a GET through PublicRequest decoded into out.
func (c *Controller) PublicJSON(ctx context.Context, path string, out any) error {
	raw, err := c.PublicRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	return apiclient.Decode(raw, out)
}
