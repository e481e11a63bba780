// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/config"
	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/market"
	"github.com/squidbay/squidops-tui/internal/session"
	"github.com/squidbay/squidops-tui/internal/tabs"
	"github.com/squidbay/squidops-tui/internal/ui/components"
	"github.com/squidbay/squidops-tui/internal/ui/styles"
	"github.com/squidbay/squidops-tui/internal/util"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the console.
type Options struct {
	// Controller is required.
	Controller *session.Controller

	// Host is shown in the header.
	Host string

	// Theme is auto, dark or light.
	Theme string

	// DefaultTab is selected after login. Unknown names fall back to the dashboard.
	DefaultTab string

	ExportDir    string
	ExportFormat export.Format

	Logger *zap.Logger

	// Now is the clock for file names and dates. Default: time.Now.
	Now func() time.Time

	// ConfigPath is watched for changes by Run. Empty disables reloads.
	ConfigPath string

	// OnConfigReload runs on the watcher goroutine after a successful reload.
	OnConfigReload func(*config.Config)
}

// tabSpec is one registered tab.
type tabSpec struct {
	name  string
	title string
	build func(m *Model) panel
}

// tabSpecs lists the tabs in sidebar order. Panels reach back into the
// model, so this is a func rather than a package var.
func tabSpecs() []tabSpec {
	return []tabSpec{
		{"dashboard", "Dashboard", func(m *Model) panel { return newDashboardPanel(m) }},
		{"skills", "Skills", func(m *Model) panel { return newSkillsPanel(m) }},
		{"agents", "Agents", func(m *Model) panel { return newAgentsPanel(m) }},
		{"reviews", "Reviews", func(m *Model) panel { return newReviewsPanel(m) }},
		{"transactions", "Transactions", func(m *Model) panel { return newTransactionsPanel(m) }},
		{"keys", "API Keys", func(m *Model) panel { return newKeysPanel(m) }},
		{"security", "Security", func(m *Model) panel { return newSecurityPanel(m) }},
		{"reports", "Reports", func(m *Model) panel { return newReportsPanel(m) }},
		{"settings", "Settings", func(m *Model) panel { return newSettingsPanel(m) }},
		{"analytics", "Analytics", func(m *Model) panel { return newAnalyticsPanel(m) }},
		{"infra", "Infrastructure", func(m *Model) panel { return newInfraPanel(m) }},
		{"github", "GitHub", func(m *Model) panel { return newGitHubPanel(m) }},
	}
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the console's Bubble Tea model.
type Model struct {
	ctx     context.Context
	ctrl    *session.Controller
	backend market.Backend
	loader  *tabs.Loader
	opts    Options
	now     func() time.Time
	logger  *zap.Logger

	theme   *styles.Theme
	keys    KeyMap
	header  *components.Header
	status  *components.StatusBar
	spinner components.Spinner
	notice  components.Notice

	login     loginForm
	modal     *modal
	search    textinput.Model
	searching bool

	snap      session.Snapshot
	endReason session.Reason
	authed    bool
	authBusy  bool
	loading   bool
	working   int

	width  int
	height int

	// timers is off in tests so commands never sleep.
	timers bool
}

// New creates the console over a session controller.
func New(ctx context.Context, opts Options) (*Model, error) {
	if opts.Controller == nil {
		return nil, errors.New("console: controller is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	if opts.ExportFormat == "" {
		opts.ExportFormat = export.FormatCSV
	}

	theme := styles.NewTheme(opts.Theme)
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search"
	search.CharLimit = 120

	m := &Model{
		ctx:     ctx,
		ctrl:    opts.Controller,
		backend: opts.Controller,
		opts:    opts,
		now:     opts.Now,
		logger:  opts.Logger.With(zap.String("component", "console")),
		theme:   theme,
		keys:    DefaultKeyMap(),
		header:  components.NewHeader(theme, opts.Host),
		status:  components.NewStatusBar(theme),
		spinner: components.NewSpinner(),
		login:   newLoginForm(),
		search:  search,
		timers:  true,
	}
	m.loader = tabs.NewLoader(tabs.WithLogger(opts.Logger))
	for _, spec := range tabSpecs() {
		build := spec.build
		if err := m.loader.Register(spec.name, spec.title, func() (tabs.Module, error) {
			return build(m), nil
		}); err != nil {
			return nil, err
		}
	}
	m.snap = m.ctrl.Snapshot()
	m.header.State = m.snap.State
	return m, nil
}

// Init resumes a remembered session and starts the clock.
func (m *Model) Init() tea.Cmd {
	resume := m.authenticate("Resuming session", m.ctrl.Resume)
	return tea.Batch(resume, m.timed(tickEvery()))
}

// timed drops timer commands when timers are disabled.
func (m *Model) timed(cmd tea.Cmd) tea.Cmd {
	if !m.timers {
		return nil
	}
	return cmd
}

func (m *Model) marketOpts() []market.Option {
	return []market.Option{market.WithLogger(m.logger), market.WithClock(m.now)}
}

// active returns the active tab's panel.
func (m *Model) active() (panel, bool) {
	name := m.loader.Active()
	if name == "" {
		return nil, false
	}
	mod, ok := m.loader.Module(name)
	if !ok {
		return nil, false
	}
	p, ok := mod.(panel)
	return p, ok
}

func (m *Model) startTab() string {
	list := m.loader.Tabs()
	for _, t := range list {
		if t.Name == m.opts.DefaultTab {
			return t.Name
		}
	}
	return list[0].Name
}

// =============================================================================
// COMMANDS
// =============================================================================

// authenticate runs a login step off the event loop.
func (m *Model) authenticate(label string, fn func(ctx context.Context) error) tea.Cmd {
	m.authBusy = true
	m.login.err = ""
	m.spinner.SetMessage(label)
	spin := m.timed(m.spinner.Start())
	ctx := m.ctx
	return tea.Batch(spin, func() tea.Msg {
		return authDoneMsg{err: fn(ctx)}
	})
}

// act runs a panel action off the event loop.
func (m *Model) act(fn func(ctx context.Context) actionDoneMsg) tea.Cmd {
	m.working++
	m.status.SetStatus(components.StatusWorking)
	m.spinner.SetMessage("Working")
	spin := m.timed(m.spinner.Start())
	ctx := m.ctx
	return tea.Batch(spin, func() tea.Msg { return fn(ctx) })
}

func (m *Model) openModal(d *modal) {
	m.modal = d
}

func (m *Model) notify(n components.Notice) tea.Cmd {
	m.notice = n
	return m.timed(n.ExpireAfter())
}

// fail shows err, or ends the console session when the server rejected the key.
func (m *Model) fail(err error) tea.Cmd {
	var expired *session.SessionExpiredError
	if errors.As(err, &expired) {
		reason := expired.Reason
		if reason == session.ReasonNone {
			reason = session.ReasonUnauthorized
		}
		return m.syncSession(reason)
	}
	m.status.SetStatus(components.StatusError)
	return m.notify(components.NewErrorNotice(err))
}

// idle stops the spinner once nothing is running.
func (m *Model) idle() {
	if m.working == 0 && !m.loading && !m.authBusy {
		m.spinner.Stop()
		if m.status.Status != components.StatusError {
			m.status.SetStatus(components.StatusReady)
		}
	}
}

// selectTab activates name and loads it.
func (m *Model) selectTab(name string) tea.Cmd {
	act, err := m.loader.Select(name)
	if err != nil {
		return m.notify(components.NewErrorNotice(err))
	}
	m.searching = false
	m.search.Blur()
	for _, t := range m.loader.Tabs() {
		if t.Name == name {
			m.header.TabTitle = t.Title
		}
	}
	if act.Notice != "" {
		m.loading = false
		m.idle()
		return m.notify(components.NewErrorNotice(errors.New(act.Notice)))
	}

	m.loading = true
	m.status.SetStatus(components.StatusLoading)
	m.spinner.SetMessage("Loading")
	spin := m.timed(m.spinner.Start())
	ctx := m.ctx
	return tea.Batch(spin, func() tea.Msg {
		return loadedMsg{tab: act.Name, epoch: act.Epoch, err: act.Load(ctx)}
	})
}

// cycleTab moves the selection by delta.
func (m *Model) cycleTab(delta int) tea.Cmd {
	list := m.loader.Tabs()
	cur := 0
	for i, t := range list {
		if t.Active {
			cur = i
		}
	}
	next := (cur + delta + len(list)) % len(list)
	return m.selectTab(list[next].Name)
}

// syncSession refreshes the cached snapshot and reacts to login and logout.
func (m *Model) syncSession(reason session.Reason) tea.Cmd {
	prev := m.snap.State
	m.snap = m.ctrl.Snapshot()
	m.header.State = m.snap.State
	m.status.Countdown.Update(m.snap)
	if reason != session.ReasonNone {
		m.endReason = reason
	}

	switch {
	case m.snap.State == session.Authenticated && !m.authed:
		m.authed = true
		m.endReason = session.ReasonNone
		m.login.reset()
		m.login.err = ""
		m.logger.Info("CONSOLE_SIGNED_IN")
		return m.selectTab(m.startTab())

	case m.snap.State != session.Authenticated && m.authed:
		m.authed = false
		m.modal = nil
		m.searching = false
		m.loading = false
		m.working = 0
		m.loader.Close()
		m.header.TabTitle = ""
		m.login.reset()
		m.idle()
		m.logger.Info("CONSOLE_SIGNED_OUT", zap.Stringer("reason", m.endReason))
		return nil

	case m.snap.State == session.SecondFactorPending && prev != session.SecondFactorPending:
		m.login.secondFactor()
	}
	return nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.header.SetWidth(msg.Width)
		m.status.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.MouseMsg:
		return m, m.handleMouse(msg)

	case authDoneMsg:
		m.authBusy = false
		m.login.failed(msg.err)
		if msg.err != nil {
			m.logger.Debug("CONSOLE_LOGIN_STEP_FAILED", zap.Error(msg.err))
		}
		cmd := m.syncSession(session.ReasonNone)
		m.idle()
		return m, cmd

	case loadedMsg:
		if !m.loader.Current(msg.epoch) || errors.Is(msg.err, tabs.ErrSuperseded) {
			return m, nil
		}
		m.loading = false
		m.idle()
		if msg.err != nil {
			return m, m.fail(fmt.Errorf("load %s: %w", msg.tab, msg.err))
		}
		return m, nil

	case actionDoneMsg:
		return m, m.finish(msg)

	case sessionEventMsg:
		return m, m.syncSession(msg.event.Reason)

	case tickMsg:
		cmd := m.syncSession(session.ReasonNone)
		return m, tea.Batch(cmd, m.timed(tickEvery()))

	case components.NoticeExpiredMsg:
		m.notice = m.notice.Clear(msg)
		return m, nil

	case configMsg:
		return m, m.reloadConfig(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, m.timed(cmd)
	}
	return m, nil
}

// finish applies an action result.
func (m *Model) finish(msg actionDoneMsg) tea.Cmd {
	if m.working > 0 {
		m.working--
	}
	m.idle()
	if msg.err != nil {
		return m.fail(msg.err)
	}

	var cmds []tea.Cmd
	if msg.message != "" {
		cmds = append(cmds, m.notify(components.NewSuccessNotice(msg.message)))
	}
	switch {
	case len(msg.reveal) > 0:
		d := newInfoModal(msg.title, msg.reveal...)
		d.onClose = msg.after
		m.openModal(d)
	case msg.after != nil:
		cmds = append(cmds, msg.after(m))
	}
	return tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Quit) {
		return tea.Quit
	}

	// The reveal dialog outlives the session it was opened in.
	if m.modal != nil {
		if m.authed {
			m.ctrl.Touch()
		}
		d := m.modal
		cmd, done := d.update(m, msg)
		if done && m.modal == d {
			m.modal = nil
		}
		return cmd
	}

	if !m.authed {
		return m.login.update(m, msg)
	}
	m.ctrl.Touch()

	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Logout):
		m.ctrl.Logout()
		return m.syncSession(session.ReasonLogout)
	case key.Matches(msg, m.keys.Drawer):
		m.loader.ToggleDrawer()
		return nil
	case key.Matches(msg, m.keys.Back) && m.loader.DrawerOpen():
		m.loader.CloseDrawer()
		return nil
	case key.Matches(msg, m.keys.NextTab):
		return m.cycleTab(1)
	case key.Matches(msg, m.keys.PrevTab):
		return m.cycleTab(-1)
	case key.Matches(msg, m.keys.Refresh):
		return m.selectTab(m.loader.Active())
	}

	if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 {
		if list := m.loader.Tabs(); n <= len(list) {
			return m.selectTab(list[n-1].Name)
		}
	}

	p, ok := m.active()
	if !ok {
		return nil
	}
	if key.Matches(msg, m.keys.Search) {
		if s, ok := p.(searchable); ok {
			m.searching = true
			m.search.SetValue(s.search())
			m.search.CursorEnd()
			return m.timed(m.search.Focus())
		}
	}
	cmd, _ := p.handleKey(m, msg)
	return cmd
}

// handleMouse counts pointer input as activity and scrolls the active list.
func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if !m.authed {
		return nil
	}
	m.ctrl.Touch()
	if m.modal != nil || m.searching {
		return nil
	}
	var k tea.KeyMsg
	switch msg.Type {
	case tea.MouseWheelUp:
		k = tea.KeyMsg{Type: tea.KeyUp}
	case tea.MouseWheelDown:
		k = tea.KeyMsg{Type: tea.KeyDown}
	default:
		return nil
	}
	p, ok := m.active()
	if !ok {
		return nil
	}
	cmd, _ := p.handleKey(m, k)
	return cmd
}

// handleSearchKey edits the search box. The list filters as you type.
func (m *Model) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	p, ok := m.active()
	s, isSearchable := p.(searchable)
	if !ok || !isSearchable {
		m.searching = false
		return nil
	}
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		return nil
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		m.search.SetValue("")
		s.setSearch("")
		return nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != s.search() {
		s.setSearch(m.search.Value())
	}
	return m.timed(cmd)
}

// =============================================================================
// VIEW
// =============================================================================

const sidebarWidth = 20

// View renders the console.
func (m *Model) View() string {
	if m.width == 0 {
		return "Starting..."
	}
	bodyHeight := max(m.height-2, 3)

	var body string
	switch {
	case m.modal != nil:
		body = m.modal.view(m.theme, m.width, bodyHeight)
	case !m.authed:
		body = m.login.view(m, m.width, bodyHeight)
	default:
		body = m.mainView(bodyHeight)
	}

	if m.authed {
		if p, ok := m.active(); ok {
			m.status.SetShortcuts(p.shortcuts(m.keys)...)
		} else {
			m.status.SetShortcuts(m.keys.GlobalHelp()...)
		}
	} else {
		m.status.SetShortcuts(m.keys.Select, m.keys.Quit)
	}

	bottom := m.status.View()
	if !m.notice.IsZero() {
		bottom = m.notice.View(m.theme, m.width)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.header.View(), body, bottom)
}

func (m *Model) mainView(height int) string {
	narrow := m.theme.GetLayoutMode() == styles.LayoutNarrow
	if narrow && m.loader.DrawerOpen() {
		return m.theme.Panel.Width(m.width).Height(height).Render(m.tabList())
	}

	width := m.width
	var sidebar string
	if !narrow {
		sidebar = m.theme.Sidebar.Width(sidebarWidth).Height(height).Render(m.tabList())
		width -= lipgloss.Width(sidebar)
	}

	var lines []string
	if m.searching {
		lines = append(lines, m.search.View())
	}
	if m.loading || m.working > 0 {
		lines = append(lines, m.spinner.View())
	}
	inner := width - 2
	content := m.tabNotice()
	if content == "" {
		if p, ok := m.active(); ok {
			content = p.view(m, inner, height-len(lines))
		}
	}
	lines = append(lines, content)
	main := m.theme.Panel.Width(width).Height(height).MaxHeight(height).Render(strings.Join(lines, "\n"))
	if sidebar == "" {
		return main
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
}

// tabNotice is the unavailable-module text for the active tab.
func (m *Model) tabNotice() string {
	for _, t := range m.loader.Tabs() {
		if t.Active && t.Notice != "" {
			return m.theme.NoticeError.Render(styles.StatusIndicators.Error + " " + t.Notice)
		}
	}
	return ""
}

func (m *Model) tabList() string {
	var lines []string
	for i, t := range m.loader.Tabs() {
		label := util.TruncateWidth(fmt.Sprintf("%d %s", i+1, t.Title), sidebarWidth-2)
		if t.Active {
			lines = append(lines, m.theme.SidebarActive.Render(label))
		} else {
			lines = append(lines, m.theme.SidebarItem.Render(label))
		}
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

// configMsg carries a reloaded config file.
type configMsg struct {
	cfg *config.Config
	err error
}

func (m *Model) reloadConfig(msg configMsg) tea.Cmd {
	if msg.err != nil {
		m.logger.Warn("CONFIG_RELOAD_FAILED", zap.Error(msg.err))
		return m.notify(components.NewErrorNotice(fmt.Errorf("config reload: %w", msg.err)))
	}
	cfg := msg.cfg
	if cfg.UI.Theme != m.opts.Theme {
		m.opts.Theme = cfg.UI.Theme
		theme := styles.NewTheme(cfg.UI.Theme)
		theme.SetSize(m.width, m.height)
		*m.theme = *theme
	}
	if f, err := export.ParseFormat(cfg.Export.Format); err == nil {
		m.opts.ExportFormat = f
	}
	if cfg.Export.Dir != "" {
		m.opts.ExportDir = cfg.Export.Dir
	}
	m.logger.Info("CONFIG_RELOADED")
	return m.notify(components.NewInfoNotice("Configuration reloaded"))
}
