// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apiclient provides the HTTP transport for the SquidBay marketplace API.
//
// # Key Types
//
//   - Client: rate-limited HTTP client with GET retries and size limits
//   - Request: method, path, optional key and JSON body
//   - APIError: non-2xx response (matches ErrUnauthorized / ErrNotFound)
//   - NetworkError: transport failure
//
// # Usage
//
//	c := apiclient.New(cfg.API.BaseURL, apiclient.WithLogger(logger))
//	raw, err := c.Do(ctx, apiclient.Request{Method: "GET", Path: "/agents"})
//	if errors.Is(err, apiclient.ErrUnauthorized) {
//	    // the session layer forces a logout
//	}
//
// # Security
//
// Keys are sent only in the x-squidbay-key header and never logged; log lines
// carry a sha256 fingerprint instead.
package apiclient
