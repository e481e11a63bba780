// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tabs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeModule struct {
	loads     atomic.Int32
	teardowns atomic.Int32
	load      func(ctx context.Context) error
}

func (f *fakeModule) Load(ctx context.Context) error {
	f.loads.Add(1)
	if f.load != nil {
		return f.load(ctx)
	}
	return nil
}

func (f *fakeModule) Teardown() { f.teardowns.Add(1) }

type counter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *counter) factory(name string, m Module, err error) Factory {
	return func() (Module, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.calls == nil {
			c.calls = make(map[string]int)
		}
		c.calls[name]++
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func (c *counter) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	l := NewLoader()
	require.NoError(t, l.Register("skills", "Skills", func() (Module, error) { return &fakeModule{}, nil }))
	err := l.Register("skills", "Skills", func() (Module, error) { return &fakeModule{}, nil })
	require.ErrorIs(t, err, ErrDuplicateTab)
}

func TestSelect_UnknownTab(t *testing.T) {
	l := NewLoader()
	_, err := l.Select("nope")
	require.ErrorIs(t, err, ErrUnknownTab)
	require.Equal(t, "", l.Active())
}

func TestActivate_ConstructsOnceLoadsEveryTime(t *testing.T) {
	var c counter
	skills, agents := &fakeModule{}, &fakeModule{}
	l := NewLoader()
	require.NoError(t, l.Register("skills", "Skills", c.factory("skills", skills, nil)))
	require.NoError(t, l.Register("agents", "Agents", c.factory("agents", agents, nil)))

	ctx := context.Background()
	require.NoError(t, l.Activate(ctx, "skills"))
	require.NoError(t, l.Activate(ctx, "agents"))
	require.NoError(t, l.Activate(ctx, "skills"))

	require.Equal(t, 1, c.get("skills"))
	require.Equal(t, 1, c.get("agents"))
	require.EqualValues(t, 2, skills.loads.Load())
	require.EqualValues(t, 1, agents.loads.Load())

	// Leaving a tab tears its module down.
	require.EqualValues(t, 1, skills.teardowns.Load())
	require.EqualValues(t, 1, agents.teardowns.Load())

	var active []string
	for _, tab := range l.Tabs() {
		require.True(t, tab.Loaded)
		if tab.Active {
			active = append(active, tab.Name)
		}
	}
	require.Equal(t, []string{"skills"}, active)
}

func TestSelect_ClosesDrawer(t *testing.T) {
	l := NewLoader()
	require.NoError(t, l.Register("keys", "Keys", func() (Module, error) { return &fakeModule{}, nil }))

	require.True(t, l.ToggleDrawer())
	require.True(t, l.DrawerOpen())
	_, err := l.Select("keys")
	require.NoError(t, err)
	require.False(t, l.DrawerOpen())
}

func TestSelect_FactoryFailureIsLocal(t *testing.T) {
	var c counter
	good := &fakeModule{}
	l := NewLoader()
	require.NoError(t, l.Register("security", "Security", c.factory("security", nil, errors.New("boom"))))
	require.NoError(t, l.Register("keys", "Keys", c.factory("keys", good, nil)))

	act, err := l.Select("security")
	require.NoError(t, err)
	require.Nil(t, act.Module)
	require.Equal(t, "module not available: security", act.Notice)
	require.NoError(t, act.Load(context.Background()))

	require.NoError(t, l.Activate(context.Background(), "keys"))
	require.EqualValues(t, 1, good.loads.Load())

	// Failures are not cached; the next selection retries.
	_, err = l.Select("security")
	require.NoError(t, err)
	require.Equal(t, 2, c.get("security"))

	tabs := l.Tabs()
	require.Equal(t, "module not available: security", tabs[0].Notice)
	require.False(t, tabs[0].Loaded)
	require.Empty(t, tabs[1].Notice)
}

func TestSelect_FactoryPanicBecomesNotice(t *testing.T) {
	l := NewLoader()
	require.NoError(t, l.Register("reports", "Reports", func() (Module, error) { panic("nil map") }))

	act, err := l.Select("reports")
	require.NoError(t, err)
	require.Equal(t, "module not available: reports", act.Notice)
}

func TestSelect_CancelsPreviousLoad(t *testing.T) {
	started := make(chan struct{})
	slow := &fakeModule{load: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	l := NewLoader()
	require.NoError(t, l.Register("transactions", "Transactions", func() (Module, error) { return slow, nil }))
	require.NoError(t, l.Register("dashboard", "Dashboard", func() (Module, error) { return &fakeModule{}, nil }))

	act, err := l.Select("transactions")
	require.NoError(t, err)
	require.True(t, l.Current(act.Epoch))

	errc := make(chan error, 1)
	go func() { errc <- act.Load(context.Background()) }()
	<-started

	_, err = l.Select("dashboard")
	require.NoError(t, err)
	require.ErrorIs(t, <-errc, ErrSuperseded)
	require.False(t, l.Current(act.Epoch))
	require.Error(t, act.Context().Err())
}

func TestClose_TearsDownModules(t *testing.T) {
	m := &fakeModule{}
	l := NewLoader()
	require.NoError(t, l.Register("reviews", "Reviews", func() (Module, error) { return m, nil }))
	require.NoError(t, l.Activate(context.Background(), "reviews"))

	l.Close()
	require.EqualValues(t, 1, m.teardowns.Load())
	got, ok := l.Module("reviews")
	require.True(t, ok)
	require.Same(t, m, got)
}
