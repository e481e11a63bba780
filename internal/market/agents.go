// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/listview"
)

// Agent is a seller on the marketplace.
type Agent struct {
	ID               string
	Name             string
	LightningAddress string
	XHandle          string
	AvatarEmoji      string
	AvatarURL        string
	AgentCardURL     string
	Website          string
	CardVerified     bool
	XVerified        bool
	SkillCount       int64
	CreatedAt        time.Time
}

type wireAgent struct {
	ID               FlexString `json:"id"`
	AgentName        string     `json:"agent_name"`
	LightningAddress string     `json:"lightning_address"`
	XHandle          string     `json:"x_handle"`
	AvatarEmoji      string     `json:"avatar_emoji"`
	AvatarURL        string     `json:"avatar_url"`
	AgentCardURL     string     `json:"agent_card_url"`
	Website          string     `json:"website"`
	CardVerified     FlexBool   `json:"agent_card_verified"`
	XVerified        FlexBool   `json:"x_verified"`
	SkillCount       FlexInt    `json:"skill_count"`
	CreatedAt        FlexTime   `json:"created_at"`
}

func (w wireAgent) normalize() Agent {
	return Agent{
		ID:               string(w.ID),
		Name:             w.AgentName,
		LightningAddress: w.LightningAddress,
		XHandle:          w.XHandle,
		AvatarEmoji:      w.AvatarEmoji,
		AvatarURL:        w.AvatarURL,
		AgentCardURL:     w.AgentCardURL,
		Website:          w.Website,
		CardVerified:     bool(w.CardVerified),
		XVerified:        bool(w.XVerified),
		SkillCount:       int64(w.SkillCount),
		CreatedAt:        w.CreatedAt.Time(),
	}
}

type agentsResponse struct {
	Agents []wireAgent `json:"agents"`
}

// FetchAgents reads the public agent directory.
func FetchAgents(ctx context.Context, b Backend) ([]Agent, error) {
	var resp agentsResponse
	if err := b.PublicJSON(ctx, "/agents", &resp); err != nil {
		return nil, err
	}
	out := make([]Agent, len(resp.Agents))
	for i, w := range resp.Agents {
		out[i] = w.normalize()
	}
	return out, nil
}

// Agents is the agents tab.
type Agents struct {
	*listview.View[Agent]
	backend Backend
	opts    options
}

// NewAgents builds the agents list view over b.
func NewAgents(b Backend, opts ...Option) *Agents {
	o := buildOptions(opts)
	a := &Agents{backend: b, opts: o}

	name := func(a Agent) string { return a.Name }
	created := func(a Agent) time.Time { return a.CreatedAt }

	a.View = listview.MustNew(listview.Config[Agent]{
		Name:  "agents",
		Fetch: func(ctx context.Context) ([]Agent, error) { return FetchAgents(ctx, b) },
		ID:    func(a Agent) string { return a.ID },
		SearchFields: []func(Agent) string{
			name,
			func(a Agent) string { return a.LightningAddress },
			func(a Agent) string { return a.XHandle },
		},
		Filters: []listview.Filter[Agent]{
			{Name: "all", Label: "All"},
			{Name: "with-skills", Label: "With Skills", Match: func(a Agent) bool { return a.SkillCount > 0 }},
			{Name: "no-skills", Label: "No Skills", Match: func(a Agent) bool { return a.SkillCount == 0 }},
			{Name: "verified", Label: "A2A Verified", Match: func(a Agent) bool { return a.CardVerified }},
		},
		Sorts: []listview.Sort[Agent]{
			{Name: "name-asc", Label: "Name A-Z", Compare: listview.ByString(name)},
			{Name: "name-desc", Label: "Name Z-A", Compare: listview.Descending(listview.ByString(name))},
			{Name: "skills-desc", Label: "Most Skills", Compare: listview.Descending(listview.ByInt(func(a Agent) int64 { return a.SkillCount }))},
			{Name: "created-desc", Label: "Newest", Compare: listview.Descending(listview.ByTime(created))},
			{Name: "created-asc", Label: "Oldest", Compare: listview.ByTime(created)},
		},
		Logger: o.logger,
	})
	return a
}

// Load refreshes the list.
func (a *Agents) Load(ctx context.Context) error {
	return a.Reload(ctx)
}

// AgentEdit is the editable subset of an agent. Blank strings are sent as null.
type AgentEdit struct {
	AvatarEmoji      string
	AvatarURL        string
	AgentCardURL     string
	Website          string
	XHandle          string
	LightningAddress string
	CardVerified     bool
	XVerified        bool
}

// AgentEditFor prefills an edit form.
func AgentEditFor(a Agent) AgentEdit {
	return AgentEdit{
		AvatarEmoji:      a.AvatarEmoji,
		AvatarURL:        a.AvatarURL,
		AgentCardURL:     a.AgentCardURL,
		Website:          a.Website,
		XHandle:          a.XHandle,
		LightningAddress: a.LightningAddress,
		CardVerified:     a.CardVerified,
		XVerified:        a.XVerified,
	}
}

// MarshalJSON encodes the payload the agent endpoint expects: nullable
// strings and 0/1 flags.
func (e AgentEdit) MarshalJSON() ([]byte, error) {
	null := func(s string) *string {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return &s
	}
	flag := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}
	return json.Marshal(struct {
		AvatarEmoji      *string `json:"avatar_emoji"`
		AvatarURL        *string `json:"avatar_url"`
		AgentCardURL     *string `json:"agent_card_url"`
		Website          *string `json:"website"`
		XHandle          *string `json:"x_handle"`
		LightningAddress *string `json:"lightning_address"`
		CardVerified     int     `json:"agent_card_verified"`
		XVerified        int     `json:"x_verified"`
	}{
		null(e.AvatarEmoji), null(e.AvatarURL), null(e.AgentCardURL), null(e.Website),
		null(e.XHandle), null(e.LightningAddress), flag(e.CardVerified), flag(e.XVerified),
	})
}

// Edit writes e to the agent.
func (a *Agents) Edit(ctx context.Context, id string, e AgentEdit) error {
	return a.RecordAction(ctx, id, listview.Action[Agent]{
		Name: "edit",
		Apply: func(ctx context.Context, ag Agent) (Agent, error) {
			var resp struct {
				Agent *wireAgent `json:"agent"`
			}
			if err := a.backend.AuthorizedJSON(ctx, http.MethodPut, "/admin/agents/"+url.PathEscape(id), e, &resp); err != nil {
				return ag, err
			}
			a.backend.Audit("edit_agent", "Edited agent "+id)

			ag.AvatarEmoji = strings.TrimSpace(e.AvatarEmoji)
			ag.AvatarURL = strings.TrimSpace(e.AvatarURL)
			ag.AgentCardURL = strings.TrimSpace(e.AgentCardURL)
			ag.Website = strings.TrimSpace(e.Website)
			ag.XHandle = strings.TrimSpace(e.XHandle)
			ag.LightningAddress = strings.TrimSpace(e.LightningAddress)
			ag.CardVerified = e.CardVerified
			ag.XVerified = e.XVerified
			if resp.Agent != nil {
				updated := resp.Agent.normalize()
				if updated.ID == "" {
					updated.ID = ag.ID
				}
				return updated, nil
			}
			return ag, nil
		},
	})
}

// DownloadCompliance saves the agent's compliance file into dir and returns
// its path. The file is named squidbay-compliance-<name>-<date>.json.
func (a *Agents) DownloadCompliance(ctx context.Context, id, dir string) (string, error) {
	ag, ok := a.Item(id)
	if !ok {
		return "", fmt.Errorf("agent %s: %w", id, listview.ErrNotFound)
	}

	var data json.RawMessage
	if err := getAdmin(ctx, a.backend, "/admin/agents/"+url.PathEscape(id)+"/compliance", &data); err != nil {
		return "", fmt.Errorf("compliance endpoint unavailable: %w", err)
	}
	a.backend.Audit("download_compliance", fmt.Sprintf("Downloaded compliance file for %q (%s)", ag.Name, id))

	doc := &export.Document{
		Slug: "compliance-" + export.SanitizeName(ag.Name),
		Data: data,
	}
	return export.ExportToFile(doc, export.NewJSONExporter(), &export.Options{OutputDir: dir, Now: a.opts.now})
}
