// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/squidbay/squidops-tui/internal/session"
	"github.com/squidbay/squidops-tui/internal/ui/components"
	"github.com/squidbay/squidops-tui/internal/ui/styles"
)

// =============================================================================
// LOGIN SCREEN
// =============================================================================

// loginForm collects the admin key and then the second factor.
type loginForm struct {
	key    textinput.Model
	code   textinput.Model
	backup bool
	err    string
}

func newLoginForm() loginForm {
	k := textinput.New()
	k.Prompt = "Admin key: "
	k.Placeholder = "sb-admin-..."
	k.EchoMode = textinput.EchoPassword
	k.EchoCharacter = '*'
	k.CharLimit = 256
	k.Focus()

	c := textinput.New()
	c.Prompt = "Code: "
	c.CharLimit = 64

	return loginForm{key: k, code: c}
}

// reset clears both inputs and returns to the key step.
func (f *loginForm) reset() {
	f.key.Reset()
	f.code.Reset()
	f.backup = false
	f.key.Focus()
	f.code.Blur()
}

func (f *loginForm) secondFactor() {
	f.key.Reset()
	f.key.Blur()
	f.code.Reset()
	f.backup = false
	f.setCodePrompt()
	f.code.Focus()
}

func (f *loginForm) setCodePrompt() {
	if f.backup {
		f.code.Prompt = "Backup code: "
		f.code.Placeholder = "xxxx-xxxx"
		return
	}
	f.code.Prompt = "Code: "
	f.code.Placeholder = "6 digits"
}

// update handles a key on the login screen.
func (f *loginForm) update(m *Model, msg tea.KeyMsg) tea.Cmd {
	state := m.snap.State
	if state == session.KeyPending || m.authBusy {
		return nil
	}

	if state == session.SecondFactorPending {
		switch {
		case key.Matches(msg, m.keys.SwitchFactor):
			f.backup = !f.backup
			f.code.Reset()
			f.setCodePrompt()
			f.err = ""
			return nil
		case key.Matches(msg, m.keys.Back):
			// Abandon the half-finished login.
			m.ctrl.Logout()
			f.reset()
			f.err = ""
			return m.syncSession(session.ReasonNone)
		case msg.Type == tea.KeyEnter:
			code := strings.TrimSpace(f.code.Value())
			backup := f.backup
			return m.authenticate("Verifying code", func(ctx context.Context) error {
				if backup {
					return m.ctrl.VerifyBackupCode(ctx, code)
				}
				return m.ctrl.VerifySecondFactor(ctx, code)
			})
		}
		var cmd tea.Cmd
		f.code, cmd = f.code.Update(msg)
		return m.timed(cmd)
	}

	if msg.Type == tea.KeyEnter {
		if state == session.LockedOut {
			return nil
		}
		k := f.key.Value()
		return m.authenticate("Verifying key", func(ctx context.Context) error {
			return m.ctrl.Authenticate(ctx, k)
		})
	}
	var cmd tea.Cmd
	f.key, cmd = f.key.Update(msg)
	return m.timed(cmd)
}

// failed records the outcome of a login step.
func (f *loginForm) failed(err error) {
	var locked *session.LockedError
	switch {
	case err == nil, errors.As(err, &locked), errors.Is(err, session.ErrLoginAborted), errors.Is(err, context.Canceled):
		// The lockout banner speaks for itself.
		f.err = ""
	default:
		f.err = err.Error()
	}
	f.key.Reset()
	f.code.Reset()
}

func (f *loginForm) view(m *Model, width, height int) string {
	t := m.theme
	var parts []string
	parts = append(parts, t.LoginTitle.Render("SquidBay Admin"), "")

	if b := components.ExpiredBanner(t, m.endReason); b != "" {
		parts = append(parts, b, "")
	}

	snap := m.snap
	switch snap.State {
	case session.LockedOut:
		parts = append(parts, components.LockoutBanner(t, snap.LockoutRemaining, 0))
	case session.SecondFactorPending:
		hint := "Enter the code from your authenticator app."
		if f.backup {
			hint = "Enter one of your backup codes."
		}
		other := "backup code"
		if f.backup {
			other = "authenticator code"
		}
		parts = append(parts, hint, "", f.code.View(), "",
			t.ModalHint.Render("Tab: use "+other+"  Esc: cancel"))
	default:
		parts = append(parts, f.key.View())
	}

	if m.spinner.IsActive() {
		parts = append(parts, "", m.spinner.View())
	}
	if f.err != "" {
		parts = append(parts, "", t.NoticeError.Render(styles.StatusIndicators.Error+" "+f.err))
	}
	if snap.FailedAttempts > 0 && snap.State != session.LockedOut {
		parts = append(parts, t.StatLabel.Render(attemptsLeft(snap.MaxAttempts-snap.FailedAttempts)))
	}

	box := t.LoginBox.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

func attemptsLeft(n int) string {
	if n == 1 {
		return "1 attempt left before lockout"
	}
	return fmt.Sprintf("%d attempts left before lockout", n)
}
