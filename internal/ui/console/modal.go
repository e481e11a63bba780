// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/ui/styles"
)

// =============================================================================
// MODAL
// =============================================================================

// modal is a small dialog over the current screen. With submit it asks for
// a choice and/or text; without it it only shows lines until dismissed.
type modal struct {
	title   string
	lines   []string
	choices []listview.Choice
	choice  int

	input    textinput.Model
	hasInput bool
	err      string

	// validate runs before submit; its error keeps the modal open.
	validate func(choice, text string) error
	// submit runs after the modal closes and may open another one.
	submit func(m *Model, choice, text string) tea.Cmd
	// onClose runs when an info modal is dismissed.
	onClose func(m *Model) tea.Cmd
}

func newInputModal(title, prompt, value string) *modal {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.CharLimit = 500
	ti.SetValue(value)
	ti.CursorEnd()
	ti.Focus()
	return &modal{title: title, input: ti, hasInput: true}
}

func newConfirmModal(title string, lines ...string) *modal {
	return &modal{title: title, lines: append(lines, "", "Enter to confirm, Esc to cancel.")}
}

func newInfoModal(title string, lines ...string) *modal {
	return &modal{title: title, lines: lines}
}

func (d *modal) selected() string {
	if len(d.choices) == 0 {
		return ""
	}
	return d.choices[d.choice].Name
}

// update handles a key. done reports that the modal closed.
func (d *modal) update(m *Model, msg tea.KeyMsg) (cmd tea.Cmd, done bool) {
	switch msg.String() {
	case "esc":
		if d.submit == nil && d.onClose != nil {
			return d.onClose(m), true
		}
		return nil, true
	case "enter":
		if d.submit == nil {
			if d.onClose != nil {
				return d.onClose(m), true
			}
			return nil, true
		}
		text := strings.TrimSpace(d.input.Value())
		if d.validate != nil {
			if err := d.validate(d.selected(), text); err != nil {
				d.err = err.Error()
				return nil, false
			}
		}
		return d.submit(m, d.selected(), text), true
	case "up":
		if len(d.choices) > 0 {
			d.choice = (d.choice + len(d.choices) - 1) % len(d.choices)
			return nil, false
		}
	case "down":
		if len(d.choices) > 0 {
			d.choice = (d.choice + 1) % len(d.choices)
			return nil, false
		}
	}
	if d.hasInput {
		d.err = ""
		d.input, cmd = d.input.Update(msg)
	}
	return m.timed(cmd), false
}

func (d *modal) view(theme *styles.Theme, width, height int) string {
	var parts []string
	parts = append(parts, theme.ModalTitle.Render(d.title))
	parts = append(parts, d.lines...)
	if len(d.choices) > 0 {
		for i, c := range d.choices {
			line := "  " + c.Label
			if i == d.choice {
				line = theme.ToolbarOn.Render("> " + c.Label)
			}
			parts = append(parts, line)
		}
		parts = append(parts, "")
	}
	if d.hasInput {
		parts = append(parts, d.input.View())
	}
	if d.err != "" {
		parts = append(parts, theme.NoticeError.Render(styles.StatusIndicators.Error+" "+d.err))
	}
	hint := "Esc to close"
	if d.submit != nil {
		hint = "Enter to submit, Esc to cancel"
		if len(d.choices) > 0 {
			hint = "Up/Down to choose, " + hint
		}
	}
	parts = append(parts, theme.ModalHint.Render(hint))

	box := theme.Modal.Width(min(60, max(width-4, 30))).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
