// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/apiclient"
)

type auditEntry struct {
	Action string `json:"action"`
	Detail string `json:"detail"`
}

// Audit records an admin action on the server. It never blocks and never
// fails the caller; it is a no-op without a live session.
func (c *Controller) Audit(action, detail string) {
	c.mu.Lock()
	if c.state != Authenticated {
		c.mu.Unlock()
		return
	}
	key := c.key
	c.mu.Unlock()

	c.auditAs(key, action, detail)
}

func (c *Controller) auditAs(key, action, detail string) {
	if key == "" {
		return
	}
	c.bestEffort("audit:"+action, func(ctx context.Context) error {
		_, err := c.api.Do(ctx, apiclient.Request{
			Method: http.MethodPost,
			Path:   pathAuditLog,
			Key:    key,
			Body:   auditEntry{Action: action, Detail: detail},
		})
		return err
	})
}

// bestEffort runs fn in the background. Errors are logged at debug level and
// dropped. Close waits for every call started here.
func (c *Controller) bestEffort(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.background.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.logger.Debug("best-effort call failed", zap.String("call", name), zap.Error(err))
		}
	}()
}
