// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tabs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Module is a constructed tab body. Load is called on every activation.
type Module interface {
	Load(ctx context.Context) error
}

// Teardowner is implemented by modules that hold in-flight work to discard
// when their tab is deselected.
type Teardowner interface {
	Teardown()
}

// Factory constructs a module. It runs with the loader locked and must not
// call back into the Loader.
type Factory func() (Module, error)

// Tab is a read-only snapshot of one registered tab.
type Tab struct {
	Name   string
	Title  string
	Active bool
	Loaded bool
	Notice string
}

type entry struct {
	name    string
	title   string
	factory Factory
	module  Module
	notice  string
}

// Loader owns the tab registry and the single active tab.
type Loader struct {
	logger *zap.Logger

	mu     sync.Mutex
	order  []*entry
	byName map[string]*entry
	active *entry
	drawer bool
	epoch  uint64
	cancel context.CancelFunc
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for activation events.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// NewLoader returns an empty loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		logger: zap.NewNop(),
		byName: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "tabs"))
	return l
}

// Register adds a tab. Registration order is display order.
func (l *Loader) Register(name, title string, f Factory) error {
	if name == "" || f == nil {
		return errors.New("tabs: name and factory are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTab, name)
	}
	e := &entry{name: name, title: title, factory: f}
	l.order = append(l.order, e)
	l.byName[name] = e
	return nil
}

// =============================================================================
// ACTIVATION
// =============================================================================

// Activation is the result of one Select.
type Activation struct {
	Name   string
	Epoch  uint64
	Module Module // nil when construction failed
	Notice string

	ctx    context.Context
	loader *Loader
}

// Load runs the module's Load under a context that is cancelled as soon as
// another tab is selected. It is a no-op when the module is unavailable.
func (a *Activation) Load(ctx context.Context) error {
	if a.Module == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	err := a.Module.Load(ctx)
	if !a.loader.Current(a.Epoch) {
		return ErrSuperseded
	}
	return err
}

// Context is cancelled when the activation is superseded.
func (a *Activation) Context() context.Context {
	return a.ctx
}

// Select makes name the only active tab and constructs its module if
// needed. A construction failure is reported through Activation.Notice,
// not as an error.
func (l *Loader) Select(name string) (*Activation, error) {
	l.mu.Lock()
	e, ok := l.byName[name]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownTab, name)
	}

	prev := l.active
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.epoch++
	l.active = e
	l.drawer = false
	epoch := l.epoch

	if e.module == nil {
		m, err := construct(e)
		if err != nil {
			e.notice = "module not available: " + e.name
			l.logger.Warn("TAB_MODULE_UNAVAILABLE", zap.String("tab", e.name), zap.Error(err))
		} else {
			e.module = m
			e.notice = ""
			l.logger.Debug("TAB_MODULE_CONSTRUCTED", zap.String("tab", e.name))
		}
	}

	act := &Activation{
		Name:   e.name,
		Epoch:  epoch,
		Module: e.module,
		Notice: e.notice,
		ctx:    ctx,
		loader: l,
	}
	var prevModule Module
	if prev != nil {
		prevModule = prev.module
	}
	l.mu.Unlock()

	if td, ok := prevModule.(Teardowner); ok {
		td.Teardown()
	}
	l.logger.Debug("TAB_SELECTED", zap.String("tab", name), zap.Uint64("epoch", epoch))
	return act, nil
}

// Activate selects name and loads it.
func (l *Loader) Activate(ctx context.Context, name string) error {
	act, err := l.Select(name)
	if err != nil {
		return err
	}
	return act.Load(ctx)
}

func construct(e *entry) (m Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	m, err = e.factory()
	if err == nil && m == nil {
		err = errors.New("factory returned no module")
	}
	return m, err
}

// Close cancels the current activation and tears down every constructed
// module. The loader can still be used afterwards.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.epoch++
	var mods []Module
	for _, e := range l.order {
		if e.module != nil {
			mods = append(mods, e.module)
		}
	}
	l.mu.Unlock()

	for _, m := range mods {
		if td, ok := m.(Teardowner); ok {
			td.Teardown()
		}
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// Tabs returns all tabs in registration order.
func (l *Loader) Tabs() []Tab {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Tab, len(l.order))
	for i, e := range l.order {
		out[i] = Tab{
			Name:   e.name,
			Title:  e.title,
			Active: e == l.active,
			Loaded: e.module != nil,
			Notice: e.notice,
		}
	}
	return out
}

// Active returns the active tab name, or "".
func (l *Loader) Active() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == nil {
		return ""
	}
	return l.active.name
}

// Module returns the constructed module for name.
func (l *Loader) Module(name string) (Module, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byName[name]
	if !ok || e.module == nil {
		return nil, false
	}
	return e.module, true
}

// Epoch returns the current activation epoch.
func (l *Loader) Epoch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// Current reports whether epoch is still the latest activation.
func (l *Loader) Current(epoch uint64) bool {
	return l.Epoch() == epoch
}

// ToggleDrawer flips the navigation drawer and returns the new state.
func (l *Loader) ToggleDrawer() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.drawer = !l.drawer
	return l.drawer
}

// CloseDrawer closes the navigation drawer.
func (l *Loader) CloseDrawer() {
	l.mu.Lock()
	l.drawer = false
	l.mu.Unlock()
}

// DrawerOpen reports whether the navigation drawer is open.
func (l *Loader) DrawerOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drawer
}
