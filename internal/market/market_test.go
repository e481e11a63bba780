// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/squidbay/squidops-tui/internal/apiclient"
	"github.com/squidbay/squidops-tui/internal/apitest"
	"github.com/squidbay/squidops-tui/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

var fixedNow = func() time.Time { return time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC) }

// spy is a logged-in controller that also records audit calls synchronously.
type spy struct {
	*session.Controller

	mu     sync.Mutex
	audits []apitest.AuditEntry
}

func (s *spy) Audit(action, detail string) {
	s.mu.Lock()
	s.audits = append(s.audits, apitest.AuditEntry{Action: action, Detail: detail})
	s.mu.Unlock()
	s.Controller.Audit(action, detail)
}

func (s *spy) lastAudit(t *testing.T) apitest.AuditEntry {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.audits, "no audit recorded")
	return s.audits[len(s.audits)-1]
}

func (s *spy) auditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audits)
}

func newBackend(t *testing.T, srv *apitest.Server) *spy {
	t.Helper()
	api := apiclient.New(srv.URL, apiclient.WithRateLimit(0), apiclient.WithMaxRetries(0))
	c := session.New(api, session.Config{})
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Authenticate(context.Background(), apitest.DefaultAdminKey))
	return &spy{Controller: c}
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

func skillIDs(s []Skill) []string   { return ids(s, func(s Skill) string { return s.ID }) }
func reviewIDs(r []Review) []string { return ids(r, func(r Review) string { return r.ID }) }

// =============================================================================
// WIRE NORMALIZATION
// =============================================================================

func TestWire_LooseScalars(t *testing.T) {
	var got struct {
		ID      FlexString `json:"id"`
		On      FlexBool   `json:"on"`
		OnStr   FlexBool   `json:"on_str"`
		Off     FlexBool   `json:"off"`
		Count   FlexInt    `json:"count"`
		Price   FlexFloat  `json:"price"`
		When    FlexTime   `json:"when"`
		Garbage FlexTime   `json:"garbage"`
		Missing *FlexBool  `json:"missing"`
	}
	raw := `{"id": 101, "on": 1, "on_str": "true", "off": 0, "count": "12.0",
		"price": "97250.5", "when": "2025-06-02 08:30:00", "garbage": "yesterday"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &got))

	require.Equal(t, FlexString("101"), got.ID)
	require.True(t, bool(got.On))
	require.True(t, bool(got.OnStr))
	require.False(t, bool(got.Off))
	require.Equal(t, FlexInt(12), got.Count)
	require.InDelta(t, 97250.5, float64(got.Price), 1e-9)
	require.Equal(t, time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC), got.When.Time())
	require.True(t, got.Garbage.Time().IsZero())
	require.True(t, activeFlag(got.Missing), "a missing flag means active")
}
