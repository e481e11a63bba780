// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package listview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Filter is a named predicate. A nil Match keeps every item.
type Filter[T any] struct {
	Name  string
	Label string
	Match func(T) bool
}

// Sort is a named comparator with slices.SortStableFunc semantics.
// A nil Compare keeps source order.
type Sort[T any] struct {
	Name    string
	Label   string
	Compare func(a, b T) int
}

// Action is a single-record write. Validate runs locally before anything is
// sent; Apply performs the write and returns the patched item.
type Action[T any] struct {
	Name     string
	Validate func() error
	Apply    func(ctx context.Context, item T) (T, error)
}

// Choice describes a filter or sort for display.
type Choice struct {
	Name  string
	Label string
}

// Config describes one collection.
type Config[T any] struct {
	// Name identifies the view in logs and errors.
	Name string

	// Fetch loads the full collection.
	Fetch func(ctx context.Context) ([]T, error)

	// ID returns the stable identity used by RecordAction and Item.
	ID func(T) string

	// SearchFields are matched case-insensitively by SetSearch.
	SearchFields []func(T) string

	Filters []Filter[T]
	Sorts   []Sort[T]

	// DefaultFilter and DefaultSort default to the first registered entry.
	DefaultFilter string
	DefaultSort   string

	// Facet returns the categorical value used by SetFacet. Optional.
	Facet func(T) string

	Logger *zap.Logger
}

// ViewState is the current user-controlled state of a view.
type ViewState struct {
	Search string
	Filter string
	Sort   string
	Facet  string
	Loaded bool
	Epoch  uint64
}

// =============================================================================
// VIEW
// =============================================================================

// View holds one collection in memory and derives the visible rows from it.
// All methods are safe for concurrent use.
type View[T any] struct {
	cfg    Config[T]
	logger *zap.Logger

	mu       sync.RWMutex
	items    []T
	search   string
	filter   string
	sort     string
	facet    string
	loaded   bool
	epoch    uint64
	busy     map[string]string
	inflight map[uint64]context.CancelFunc
	nextOp   uint64
	onChange []func()
}

// New validates cfg and returns an empty view. Call Reload to populate it.
func New[T any](cfg Config[T]) (*View[T], error) {
	if cfg.Name == "" {
		return nil, errors.New("listview: name is required")
	}
	if cfg.Fetch == nil {
		return nil, fmt.Errorf("listview %s: fetch is required", cfg.Name)
	}
	if cfg.ID == nil {
		return nil, fmt.Errorf("listview %s: id is required", cfg.Name)
	}
	if len(cfg.Filters) == 0 {
		cfg.Filters = []Filter[T]{{Name: "all", Label: "All"}}
	}
	if len(cfg.Sorts) == 0 {
		cfg.Sorts = []Sort[T]{{Name: "source", Label: "Source order"}}
	}
	if cfg.DefaultFilter == "" {
		cfg.DefaultFilter = cfg.Filters[0].Name
	}
	if cfg.DefaultSort == "" {
		cfg.DefaultSort = cfg.Sorts[0].Name
	}

	seen := make(map[string]bool)
	for _, f := range cfg.Filters {
		if f.Name == "" || seen["f:"+f.Name] {
			return nil, fmt.Errorf("listview %s: invalid or duplicate filter %q", cfg.Name, f.Name)
		}
		seen["f:"+f.Name] = true
	}
	for _, s := range cfg.Sorts {
		if s.Name == "" || seen["s:"+s.Name] {
			return nil, fmt.Errorf("listview %s: invalid or duplicate sort %q", cfg.Name, s.Name)
		}
		seen["s:"+s.Name] = true
	}
	if !seen["f:"+cfg.DefaultFilter] {
		return nil, fmt.Errorf("listview %s: %w: %q", cfg.Name, ErrUnknownFilter, cfg.DefaultFilter)
	}
	if !seen["s:"+cfg.DefaultSort] {
		return nil, fmt.Errorf("listview %s: %w: %q", cfg.Name, ErrUnknownSort, cfg.DefaultSort)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &View[T]{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "listview"), zap.String("view", cfg.Name)),
		filter:   cfg.DefaultFilter,
		sort:     cfg.DefaultSort,
		busy:     make(map[string]string),
		inflight: make(map[uint64]context.CancelFunc),
	}, nil
}

// MustNew is New for statically known configurations. It panics on error.
func MustNew[T any](cfg Config[T]) *View[T] {
	v, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return v
}

// Name returns the configured view name.
func (v *View[T]) Name() string {
	return v.cfg.Name
}

// =============================================================================
// LOADING
// =============================================================================

// Reload fetches the collection and replaces the items wholesale. On failure
// the previous items are kept and the error is returned.
func (v *View[T]) Reload(ctx context.Context) error {
	ctx, epoch, done := v.begin(ctx)
	defer done()

	items, err := v.cfg.Fetch(ctx)

	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		return ErrStale
	}
	if err != nil {
		v.mu.Unlock()
		v.logger.Debug("reload failed", zap.Error(err))
		return fmt.Errorf("load %s: %w", v.cfg.Name, err)
	}
	v.items = slices.Clone(items)
	v.loaded = true
	n := len(v.items)
	v.mu.Unlock()

	v.logger.Debug("reloaded", zap.Int("items", n))
	v.notify()
	return nil
}

// Teardown discards in-flight work. Results arriving afterwards return
// ErrStale and leave the view untouched. The view stays usable.
func (v *View[T]) Teardown() {
	v.mu.Lock()
	v.epoch++
	for id, cancel := range v.inflight {
		cancel()
		delete(v.inflight, id)
	}
	clear(v.busy)
	v.mu.Unlock()
}

// begin registers an in-flight operation under the current epoch.
func (v *View[T]) begin(ctx context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)

	v.mu.Lock()
	v.nextOp++
	op := v.nextOp
	epoch := v.epoch
	v.inflight[op] = cancel
	v.mu.Unlock()

	return ctx, epoch, func() {
		v.mu.Lock()
		delete(v.inflight, op)
		v.mu.Unlock()
		cancel()
	}
}

// =============================================================================
// STATE
// =============================================================================

// SetSearch sets the free-text term. It is trimmed and lower-cased.
func (v *View[T]) SetSearch(term string) {
	v.mu.Lock()
	v.search = strings.ToLower(strings.TrimSpace(term))
	v.mu.Unlock()
	v.notify()
}

// SetFilter selects a registered filter by name.
func (v *View[T]) SetFilter(name string) error {
	if v.filterFor(name) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	v.mu.Lock()
	v.filter = name
	v.mu.Unlock()
	v.notify()
	return nil
}

// SetSort selects a registered sort by name.
func (v *View[T]) SetSort(name string) error {
	if v.sortFor(name) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownSort, name)
	}
	v.mu.Lock()
	v.sort = name
	v.mu.Unlock()
	v.notify()
	return nil
}

// SetFacet restricts rows to an exact facet value. "" shows all.
func (v *View[T]) SetFacet(value string) {
	v.mu.Lock()
	v.facet = value
	v.mu.Unlock()
	v.notify()
}

// State returns the current search, filter, sort and facet.
func (v *View[T]) State() ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return ViewState{
		Search: v.search,
		Filter: v.filter,
		Sort:   v.sort,
		Facet:  v.facet,
		Loaded: v.loaded,
		Epoch:  v.epoch,
	}
}

// Filters lists the registered filters in order.
func (v *View[T]) Filters() []Choice {
	out := make([]Choice, len(v.cfg.Filters))
	for i, f := range v.cfg.Filters {
		out[i] = Choice{Name: f.Name, Label: f.Label}
	}
	return out
}

// Sorts lists the registered sorts in order.
func (v *View[T]) Sorts() []Choice {
	out := make([]Choice, len(v.cfg.Sorts))
	for i, s := range v.cfg.Sorts {
		out[i] = Choice{Name: s.Name, Label: s.Label}
	}
	return out
}

// OnChange registers fn to run after items or state change. fn runs on the
// goroutine that made the change, without locks held.
func (v *View[T]) OnChange(fn func()) {
	v.mu.Lock()
	v.onChange = append(v.onChange, fn)
	v.mu.Unlock()
}

func (v *View[T]) notify() {
	v.mu.RLock()
	fns := slices.Clone(v.onChange)
	v.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// =============================================================================
// DERIVED ROWS
// =============================================================================

// Visible returns the searched, faceted, filtered and sorted rows. The
// result is a fresh slice; items themselves are never reordered.
func (v *View[T]) Visible() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()

	match := v.filterFor(v.filter).Match
	out := make([]T, 0, len(v.items))
	for _, it := range v.items {
		if !v.matchesSearch(it) {
			continue
		}
		if v.facet != "" && v.cfg.Facet != nil && v.cfg.Facet(it) != v.facet {
			continue
		}
		if match != nil && !match(it) {
			continue
		}
		out = append(out, it)
	}

	if c := v.sortFor(v.sort).Compare; c != nil {
		slices.SortStableFunc(out, c)
	}
	return out
}

func (v *View[T]) matchesSearch(it T) bool {
	if v.search == "" {
		return true
	}
	for _, field := range v.cfg.SearchFields {
		if strings.Contains(strings.ToLower(field(it)), v.search) {
			return true
		}
	}
	return false
}

// Count returns how many items the named filter keeps, ignoring search and
// facet. Unknown filters count zero.
func (v *View[T]) Count(filter string) int {
	f := v.filterFor(filter)
	if f == nil {
		return 0
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if f.Match == nil {
		return len(v.items)
	}
	n := 0
	for _, it := range v.items {
		if f.Match(it) {
			n++
		}
	}
	return n
}

// Facets returns the distinct non-empty facet values in locale order.
func (v *View[T]) Facets() []string {
	if v.cfg.Facet == nil {
		return nil
	}
	v.mu.RLock()
	seen := make(map[string]bool)
	var out []string
	for _, it := range v.items {
		f := v.cfg.Facet(it)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	v.mu.RUnlock()

	slices.SortFunc(out, CompareStrings)
	return out
}

// Len returns the number of loaded items.
func (v *View[T]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.items)
}

// Items returns a copy of all loaded items in source order.
func (v *View[T]) Items() []T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.items)
}

// Item looks up an item by id.
func (v *View[T]) Item(id string) (T, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	i := v.indexLocked(id)
	if i < 0 {
		var zero T
		return zero, false
	}
	return v.items[i], true
}

// Busy reports the action currently running on id, if any.
func (v *View[T]) Busy(id string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	name, ok := v.busy[id]
	return name, ok
}

// =============================================================================
// RECORD ACTIONS
// =============================================================================

// RecordAction runs a write against one item. Only after Apply succeeds is
// the matching item replaced with the patched value.
func (v *View[T]) RecordAction(ctx context.Context, id string, a Action[T]) error {
	if a.Validate != nil {
		if err := a.Validate(); err != nil {
			return &ValidationError{Action: a.Name, Err: err}
		}
	}

	v.mu.Lock()
	i := v.indexLocked(id)
	if i < 0 {
		v.mu.Unlock()
		return fmt.Errorf("%s %s: %w", a.Name, id, ErrNotFound)
	}
	if running, ok := v.busy[id]; ok {
		v.mu.Unlock()
		return fmt.Errorf("%s %s: %w (%s)", a.Name, id, ErrBusy, running)
	}
	item := v.items[i]
	v.busy[id] = a.Name
	v.mu.Unlock()

	ctx, epoch, done := v.begin(ctx)
	defer done()

	patched, err := a.Apply(ctx, item)

	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		return ErrStale
	}
	delete(v.busy, id)
	if err != nil {
		v.mu.Unlock()
		v.logger.Debug("action failed", zap.String("action", a.Name), zap.String("id", id), zap.Error(err))
		return &ActionError{Action: a.Name, ID: id, Err: err}
	}
	// A reload may have dropped the item meanwhile; the write still happened.
	if j := v.indexLocked(id); j >= 0 {
		v.items[j] = patched
	}
	v.mu.Unlock()

	v.logger.Debug("action applied", zap.String("action", a.Name), zap.String("id", id))
	v.notify()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (v *View[T]) indexLocked(id string) int {
	return slices.IndexFunc(v.items, func(it T) bool { return v.cfg.ID(it) == id })
}

func (v *View[T]) filterFor(name string) *Filter[T] {
	for i := range v.cfg.Filters {
		if v.cfg.Filters[i].Name == name {
			return &v.cfg.Filters[i]
		}
	}
	return nil
}

func (v *View[T]) sortFor(name string) *Sort[T] {
	for i := range v.cfg.Sorts {
		if v.cfg.Sorts[i].Name == name {
			return &v.cfg.Sorts[i]
		}
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
