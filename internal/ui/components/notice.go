// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/squidbay/squidops-tui/internal/ui/styles"
	"github.com/squidbay/squidops-tui/internal/util"
)

// =============================================================================
// NOTICE TYPES
// =============================================================================

// NoticeKind represents the type of inline notice.
type NoticeKind int

const (
	// NoticeInfo is an informational notice (cyan)
	NoticeInfo NoticeKind = iota
	// NoticeSuccess confirms a finished action (emerald)
	NoticeSuccess
	// NoticeError reports a failed action (rose)
	NoticeError
)

// DefaultNoticeDuration is how long info and success notices stay up.
const DefaultNoticeDuration = 4 * time.Second

// ErrorNoticeDuration is longer so errors can be read.
const ErrorNoticeDuration = 8 * time.Second

var noticeSeq atomic.Uint64

// =============================================================================
// NOTICE
// =============================================================================

// Notice is a non-blocking inline message shown under the active panel.
// A zero Duration never expires.
type Notice struct {
	ID        uint64
	Message   string
	Kind      NoticeKind
	CreatedAt time.Time
	Duration  time.Duration
}

func newNotice(kind NoticeKind, message string, d time.Duration) Notice {
	return Notice{
		ID:        noticeSeq.Add(1),
		Message:   message,
		Kind:      kind,
		CreatedAt: time.Now(),
		Duration:  d,
	}
}

// NewInfoNotice creates an info notice.
func NewInfoNotice(message string) Notice {
	return newNotice(NoticeInfo, message, DefaultNoticeDuration)
}

// NewSuccessNotice creates a success notice.
func NewSuccessNotice(message string) Notice {
	return newNotice(NoticeSuccess, message, DefaultNoticeDuration)
}

// NewErrorNotice creates an error notice from err. The wrapped chain is kept
// out of the message; operators see the outermost text only.
func NewErrorNotice(err error) Notice {
	msg := "Unknown error"
	if err != nil {
		msg = err.Error()
	}
	return newNotice(NoticeError, msg, ErrorNoticeDuration)
}

// Sticky returns a copy that never expires.
func (n Notice) Sticky() Notice {
	n.Duration = 0
	return n
}

// Expired reports whether the notice should be dismissed at now.
func (n Notice) Expired(now time.Time) bool {
	return n.Duration > 0 && now.Sub(n.CreatedAt) >= n.Duration
}

// IsZero reports whether no notice is set.
func (n Notice) IsZero() bool {
	return n.ID == 0
}

// View renders the notice on one line, truncated to width cells.
func (n Notice) View(theme *styles.Theme, width int) string {
	if n.IsZero() {
		return ""
	}
	var indicator string
	style := theme.NoticeInfo
	switch n.Kind {
	case NoticeSuccess:
		indicator, style = styles.StatusIndicators.Success, theme.NoticeSuccess
	case NoticeError:
		indicator, style = styles.StatusIndicators.Error, theme.NoticeError
	default:
		indicator = styles.StatusIndicators.Info
	}
	text := indicator + " " + util.SingleLine(n.Message)
	if width > 0 {
		text = util.TruncateWidth(text, width)
	}
	return style.Render(text)
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// NoticeExpiredMsg asks the owner to clear notice ID if it is still shown.
type NoticeExpiredMsg struct {
	ID uint64
}

// ExpireAfter schedules a NoticeExpiredMsg for n. Sticky notices get no command.
func (n Notice) ExpireAfter() tea.Cmd {
	if n.Duration <= 0 {
		return nil
	}
	id := n.ID
	return tea.Tick(n.Duration, func(time.Time) tea.Msg {
		return NoticeExpiredMsg{ID: id}
	})
}

// Clear returns the zero notice when msg targets n, else n unchanged.
func (n Notice) Clear(msg NoticeExpiredMsg) Notice {
	if msg.ID == n.ID {
		return Notice{}
	}
	return n
}

