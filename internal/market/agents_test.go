// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/squidbay/squidops-tui/internal/apitest"
	"github.com/squidbay/squidops-tui/internal/listview"
)

func agentIDs(a []Agent) []string { return ids(a, func(a Agent) string { return a.ID }) }

func TestAgents_FiltersAndSearch(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	a := NewAgents(newBackend(t, srv))
	require.NoError(t, a.Load(context.Background()))

	require.Equal(t, 3, a.Count("with-skills"))
	require.Equal(t, 1, a.Count("no-skills"))
	require.Equal(t, 2, a.Count("verified"))

	a.SetSearch("DRAG")
	require.Equal(t, []string{"a1b2c3d4-0002"}, agentIDs(a.Visible()))

	a.SetSearch("")
	require.NoError(t, a.SetSort("skills-desc"))
	require.Equal(t, "a1b2c3d4-0001", a.Visible()[0].ID)
	require.NoError(t, a.SetSort("name-asc"))
	require.Equal(t, []string{"a1b2c3d4-0002", "a1b2c3d4-0001", "a1b2c3d4-0004", "a1b2c3d4-0003"}, agentIDs(a.Visible()))
}

func TestAgentEdit_Payload(t *testing.T) {
	e := AgentEdit{Website: "  ", XHandle: "onboard_ai", CardVerified: true}
	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Contains(t, got, "website")
	require.Nil(t, got["website"], "blank strings are sent as null")
	require.Equal(t, "onboard_ai", got["x_handle"])
	require.Equal(t, float64(1), got["agent_card_verified"])
	require.Equal(t, float64(0), got["x_verified"])
}

func TestAgents_Edit(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	a := NewAgents(b)
	ctx := context.Background()
	require.NoError(t, a.Load(ctx))

	ag, _ := a.Item("a1b2c3d4-0002")
	e := AgentEditFor(ag)
	e.CardVerified = true
	e.Website = "https://dragline.example"
	require.NoError(t, a.Edit(ctx, ag.ID, e))

	ag, _ = a.Item("a1b2c3d4-0002")
	require.True(t, ag.CardVerified)
	require.Equal(t, "https://dragline.example", ag.Website)
	require.Equal(t, "Dragline", ag.Name, "fields outside the form survive")
	require.Equal(t, 3, a.Count("verified"))
	require.Equal(t, "edit_agent", b.lastAudit(t).Action)
}

func TestAgents_DownloadCompliance(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	a := NewAgents(b, WithClock(fixedNow))
	ctx := context.Background()

	_, err := a.DownloadCompliance(ctx, "a1b2c3d4-0003", t.TempDir())
	require.ErrorIs(t, err, listview.ErrNotFound, "agents must be loaded first")

	require.NoError(t, a.Load(ctx))
	dir := t.TempDir()
	path, err := a.DownloadCompliance(ctx, "a1b2c3d4-0003", dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "squidbay-compliance-_nboard_Bot-2025-07-04.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Agent  map[string]any   `json:"agent"`
		Skills []map[string]any `json:"skills"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "Önboard Bot", doc.Agent["agent_name"])
	require.Empty(t, doc.Skills)

	require.Equal(t, `Downloaded compliance file for "Önboard Bot" (a1b2c3d4-0003)`, b.lastAudit(t).Detail)
}
