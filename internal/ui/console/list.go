// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/tabs"
	"github.com/squidbay/squidops-tui/internal/util"
)

// =============================================================================
// PANEL INTERFACE
// =============================================================================

// panel is a tab body as the console sees it. Every panel is also the
// tabs.Module the loader constructs and loads.
type panel interface {
	tabs.Module
	view(m *Model, width, height int) string
	// handleKey handles keys the model did not consume.
	handleKey(m *Model, msg tea.KeyMsg) (tea.Cmd, bool)
	shortcuts(k KeyMap) []key.Binding
}

// searchable panels accept the search box.
type searchable interface {
	search() string
	setSearch(term string)
}

// =============================================================================
// LIST PANEL
// =============================================================================

// column is one table column. A zero width shares the remaining space.
type column[T any] struct {
	title string
	width int
	right bool
	cell  func(T) string
}

// rowAction runs against the selected row.
type rowAction[T any] struct {
	binding key.Binding
	when    func(T) bool
	run     func(m *Model, item T) tea.Cmd
}

// listPanel renders a listview.View as a table with a toolbar.
type listPanel[T any] struct {
	load    func(ctx context.Context) error
	list    *listview.View[T]
	id      func(T) string
	noun    string
	columns []column[T]
	actions []rowAction[T]
	// panelActions do not need a row.
	panelActions []panelAction
	muted        func(T) bool
	detail       func(T) [][2]string
	summary      func(m *Model) string
	export       func(m *Model, items []T) tea.Cmd
	facetLabel   string

	cursor     int
	offset     int
	showDetail bool
}

// panelAction is a key that acts on the whole panel.
type panelAction struct {
	binding key.Binding
	run     func(m *Model) tea.Cmd
}

// Load implements tabs.Module.
func (p *listPanel[T]) Load(ctx context.Context) error {
	return p.load(ctx)
}

// Teardown cancels in-flight list work when the tab is left.
func (p *listPanel[T]) Teardown() {
	p.list.Teardown()
}

func (p *listPanel[T]) search() string { return p.list.State().Search }

func (p *listPanel[T]) setSearch(term string) {
	p.list.SetSearch(term)
	p.cursor, p.offset = 0, 0
}

// selected returns the row under the cursor.
func (p *listPanel[T]) selected() (T, bool) {
	rows := p.list.Visible()
	if len(rows) == 0 {
		var zero T
		return zero, false
	}
	p.cursor = min(max(p.cursor, 0), len(rows)-1)
	return rows[p.cursor], true
}

func (p *listPanel[T]) shortcuts(k KeyMap) []key.Binding {
	out := k.ListHelp()
	if item, ok := p.selected(); ok {
		for _, a := range p.actions {
			if a.when == nil || a.when(item) {
				out = append(out, a.binding)
			}
		}
	}
	for _, a := range p.panelActions {
		out = append(out, a.binding)
	}
	return out
}

func (p *listPanel[T]) handleKey(m *Model, msg tea.KeyMsg) (tea.Cmd, bool) {
	k := m.keys
	rows := len(p.list.Visible())
	switch {
	case key.Matches(msg, k.Up):
		p.cursor = max(p.cursor-1, 0)
		return nil, true
	case key.Matches(msg, k.Down):
		p.cursor = min(p.cursor+1, max(rows-1, 0))
		return nil, true
	case key.Matches(msg, k.PageUp):
		p.cursor = max(p.cursor-10, 0)
		return nil, true
	case key.Matches(msg, k.PageDown):
		p.cursor = min(p.cursor+10, max(rows-1, 0))
		return nil, true
	case key.Matches(msg, k.Select):
		p.showDetail = !p.showDetail && p.detail != nil
		return nil, true
	case key.Matches(msg, k.Back) && p.showDetail:
		p.showDetail = false
		return nil, true
	case key.Matches(msg, k.Filter):
		p.cycleFilter()
		return nil, true
	case key.Matches(msg, k.Sort):
		p.cycleSort()
		return nil, true
	case key.Matches(msg, k.Facet):
		p.cycleFacet()
		return nil, true
	case key.Matches(msg, k.Export) && p.export != nil:
		return p.export(m, p.list.Visible()), true
	}

	if item, ok := p.selected(); ok {
		for _, a := range p.actions {
			if key.Matches(msg, a.binding) && (a.when == nil || a.when(item)) {
				return a.run(m, item), true
			}
		}
	}
	for _, a := range p.panelActions {
		if key.Matches(msg, a.binding) {
			return a.run(m), true
		}
	}
	return nil, false
}

func (p *listPanel[T]) cycleFilter() {
	choices := p.list.Filters()
	cur := p.list.State().Filter
	next := choices[(indexOf(choices, cur)+1)%len(choices)]
	_ = p.list.SetFilter(next.Name)
	p.cursor, p.offset = 0, 0
}

func (p *listPanel[T]) cycleSort() {
	choices := p.list.Sorts()
	cur := p.list.State().Sort
	next := choices[(indexOf(choices, cur)+1)%len(choices)]
	_ = p.list.SetSort(next.Name)
}

// cycleFacet steps through "" (all) and every facet value.
func (p *listPanel[T]) cycleFacet() {
	facets := p.list.Facets()
	if len(facets) == 0 {
		return
	}
	cur := p.list.State().Facet
	next := ""
	for i, f := range facets {
		if f == cur {
			if i+1 < len(facets) {
				next = facets[i+1]
			}
			break
		}
	}
	if cur == "" {
		next = facets[0]
	}
	p.list.SetFacet(next)
	p.cursor, p.offset = 0, 0
}

func indexOf(choices []listview.Choice, name string) int {
	for i, c := range choices {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func labelOf(choices []listview.Choice, name string) string {
	if i := indexOf(choices, name); i >= 0 {
		return choices[i].Label
	}
	return name
}

// =============================================================================
// RENDERING
// =============================================================================

func (p *listPanel[T]) toolbar(m *Model) string {
	st := p.list.State()
	t := m.theme
	var parts []string
	if st.Search != "" {
		parts = append(parts, t.Toolbar.Render("Search: ")+t.ToolbarOn.Render(fmt.Sprintf("%q", st.Search)))
	}
	filter := fmt.Sprintf("%s (%d)", labelOf(p.list.Filters(), st.Filter), p.list.Count(st.Filter))
	parts = append(parts,
		t.Toolbar.Render("Filter: ")+t.ToolbarOn.Render(filter),
		t.Toolbar.Render("Sort: ")+t.ToolbarOn.Render(labelOf(p.list.Sorts(), st.Sort)))
	if len(p.list.Facets()) > 0 {
		facet := st.Facet
		if facet == "" {
			facet = "all"
		}
		label := p.facetLabel
		if label == "" {
			label = "Category"
		}
		parts = append(parts, t.Toolbar.Render(label+": ")+t.ToolbarOn.Render(facet))
	}
	parts = append(parts, t.Toolbar.Render(fmt.Sprintf("%d of %d", len(p.list.Visible()), p.list.Len())))
	return strings.Join(parts, "  ")
}

// widths resolves column widths for the table width.
func (p *listPanel[T]) widths(width int) []int {
	out := make([]int, len(p.columns))
	fixed, flex := 0, 0
	for i, c := range p.columns {
		out[i] = c.width
		fixed += c.width
		if c.width == 0 {
			flex++
		}
	}
	gaps := len(p.columns) - 1 + 2 // separators and gutter
	if flex > 0 {
		share := max((width-fixed-gaps)/flex, 8)
		for i := range out {
			if out[i] == 0 {
				out[i] = share
			}
		}
	}
	return out
}

func fit(s string, w int, right bool) string {
	s = util.TruncateWidth(util.SingleLine(s), w)
	if right {
		return util.PadLeft(s, w)
	}
	return util.PadRight(s, w)
}

func (p *listPanel[T]) view(m *Model, width, height int) string {
	t := m.theme
	var lines []string
	if p.summary != nil {
		if s := p.summary(m); s != "" {
			lines = append(lines, s)
		}
	}
	lines = append(lines, p.toolbar(m), "")

	if !p.list.State().Loaded {
		return strings.Join(append(lines, t.Empty.Render("Loading "+p.noun+"...")), "\n")
	}
	rows := p.list.Visible()
	if len(rows) == 0 {
		msg := "No " + p.noun + " yet."
		if p.list.Len() > 0 {
			msg = "No " + p.noun + " match the current search and filter."
		}
		return strings.Join(append(lines, t.Empty.Render(msg)), "\n")
	}

	widths := p.widths(width)
	cells := make([]string, len(p.columns))
	for i, c := range p.columns {
		cells[i] = fit(c.title, widths[i], c.right)
	}
	lines = append(lines, t.TableHeader.Render("  "+strings.Join(cells, " ")))

	var detail []string
	if p.showDetail && p.detail != nil {
		if item, ok := p.selected(); ok {
			detail = p.detailLines(m, item, width)
		}
	}

	// Header, toolbar and detail take the rest.
	avail := max(height-len(lines)-len(detail)-1, 3)
	p.cursor = min(max(p.cursor, 0), len(rows)-1)
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+avail {
		p.offset = p.cursor - avail + 1
	}
	end := min(p.offset+avail, len(rows))

	for i := p.offset; i < end; i++ {
		item := rows[i]
		gutter := "  "
		if i == p.cursor {
			gutter = "> "
		}
		if _, busy := p.list.Busy(p.id(item)); busy {
			gutter = "~ "
		}
		for j, c := range p.columns {
			cells[j] = fit(c.cell(item), widths[j], c.right)
		}
		line := gutter + strings.Join(cells, " ")
		switch {
		case i == p.cursor:
			line = t.RowSelected.Render(line)
		case p.muted != nil && p.muted(item):
			line = t.RowMuted.Render(line)
		default:
			line = t.Row.Render(line)
		}
		lines = append(lines, line)
	}
	if len(detail) > 0 {
		lines = append(lines, "")
		lines = append(lines, detail...)
	}
	return strings.Join(lines, "\n")
}

func (p *listPanel[T]) detailLines(m *Model, item T, width int) []string {
	t := m.theme
	var out []string
	if action, busy := p.list.Busy(p.id(item)); busy {
		out = append(out, t.NoticeInfo.Render("Working: "+action+"..."))
	}
	for _, kv := range p.detail(item) {
		if kv[1] == "" {
			continue
		}
		value := util.TruncateWidth(util.SingleLine(kv[1]), max(width-20, 10))
		out = append(out, lipgloss.JoinHorizontal(lipgloss.Top, t.Label.Render(kv[0]), t.Value.Render(value)))
	}
	return out
}
