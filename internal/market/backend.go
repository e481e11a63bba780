// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/session"
)

// Backend is the slice of the session controller the panels need.
// *session.Controller implements it; the key never leaves the controller.
type Backend interface {
	AuthorizedJSON(ctx context.Context, method, path string, body, out any) error
	PublicJSON(ctx context.Context, path string, out any) error
	Audit(action, detail string)
}

var _ Backend = (*session.Controller)(nil)

// Option configures a panel.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

// WithLogger sets the panel logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests and report dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// getAdmin is an authorized GET.
func getAdmin(ctx context.Context, b Backend, path string, out any) error {
	return b.AuthorizedJSON(ctx, http.MethodGet, path, nil, out)
}

// adminOrPublic reads adminPath and falls back to the public publicPath when
// the admin endpoint fails for any reason other than a dead session.
func adminOrPublic(ctx context.Context, b Backend, adminPath, publicPath string, out any) error {
	err := getAdmin(ctx, b, adminPath, out)
	if err == nil || session.IsSessionExpired(err) || ctx.Err() != nil {
		return err
	}
	if perr := b.PublicJSON(ctx, publicPath, out); perr != nil {
		return fmt.Errorf("%s: %w", publicPath, errors.Join(perr, err))
	}
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
