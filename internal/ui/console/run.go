// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/config"
	"github.com/squidbay/squidops-tui/internal/session"
)

// Run starts the console on the alternate screen and blocks until the
// operator quits or ctx is cancelled. The session is logged out on exit.
func Run(ctx context.Context, opts Options) error {
	m, err := New(ctx, opts)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	unsubscribe := m.ctrl.Subscribe(func(ev session.Event) {
		p.Send(sessionEventMsg{event: ev})
	})
	defer unsubscribe()

	if opts.ConfigPath != "" {
		w, err := config.Watch(opts.ConfigPath, 0, func(cfg *config.Config, err error) {
			if err == nil && opts.OnConfigReload != nil {
				opts.OnConfigReload(cfg)
			}
			p.Send(configMsg{cfg: cfg, err: err})
		})
		if err != nil {
			m.logger.Warn("CONFIG_WATCH_FAILED", zap.String("path", opts.ConfigPath), zap.Error(err))
		} else {
			defer w.Close()
		}
	}

	m.logger.Info("CONSOLE_STARTED")
	_, err = p.Run()
	m.loader.Close()
	m.ctrl.Logout()
	m.logger.Info("CONSOLE_STOPPED")
	if err == tea.ErrProgramKilled && ctx.Err() != nil {
		return nil
	}
	return err
}
