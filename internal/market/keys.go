// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/squidbay/squidops-tui/internal/listview"
)

// keyPrefixLen is how much of a key hash is shown when no prefix is stored.
const keyPrefixLen = 12

// Key is an agent's API key record. Only the prefix is ever visible.
type Key struct {
	AgentID         string
	AgentName       string
	Prefix          string
	AgentCardURL    string
	Active          bool
	PendingRecovery bool
	CreatedAt       time.Time
	RotatedAt       time.Time
}

type wireKey struct {
	ID              FlexString `json:"id"`
	AgentID         FlexString `json:"agent_id"`
	AgentName       string     `json:"agent_name"`
	KeyPrefix       string     `json:"key_prefix"`
	KeyHash         string     `json:"key_hash"`
	AgentCardURL    string     `json:"agent_card_url"`
	IsActive        *FlexBool  `json:"is_active"`
	PendingRecovery FlexBool   `json:"pending_recovery"`
	CreatedAt       FlexTime   `json:"created_at"`
	RotatedAt       FlexTime   `json:"rotated_at"`
}

func (w wireKey) normalize() Key {
	prefix := w.KeyPrefix
	if prefix == "" && w.KeyHash != "" {
		prefix = w.KeyHash[:min(len(w.KeyHash), keyPrefixLen)]
	}
	return Key{
		AgentID:         firstNonEmpty(string(w.AgentID), string(w.ID)),
		AgentName:       w.AgentName,
		Prefix:          prefix,
		AgentCardURL:    w.AgentCardURL,
		Active:          activeFlag(w.IsActive),
		PendingRecovery: bool(w.PendingRecovery),
		CreatedAt:       w.CreatedAt.Time(),
		RotatedAt:       w.RotatedAt.Time(),
	}
}

// FetchKeys reads the key table. Older servers answer with an "agents" list.
func FetchKeys(ctx context.Context, b Backend) ([]Key, error) {
	var resp struct {
		Keys   []wireKey `json:"keys"`
		Agents []wireKey `json:"agents"`
	}
	if err := getAdmin(ctx, b, "/admin/keys", &resp); err != nil {
		return nil, err
	}
	wire := resp.Keys
	if wire == nil {
		wire = resp.Agents
	}
	out := make([]Key, len(wire))
	for i, w := range wire {
		out[i] = w.normalize()
	}
	return out, nil
}

// Keys is the key management tab.
type Keys struct {
	*listview.View[Key]
	backend Backend
	opts    options
}

// NewKeys builds the keys list view over b.
func NewKeys(b Backend, opts ...Option) *Keys {
	o := buildOptions(opts)
	k := &Keys{backend: b, opts: o}

	name := func(k Key) string { return k.AgentName }

	k.View = listview.MustNew(listview.Config[Key]{
		Name:  "keys",
		Fetch: func(ctx context.Context) ([]Key, error) { return FetchKeys(ctx, b) },
		ID:    func(k Key) string { return k.AgentID },
		SearchFields: []func(Key) string{
			name,
			func(k Key) string { return k.AgentID },
		},
		Filters: []listview.Filter[Key]{
			{Name: "all", Label: "All"},
			{Name: "active", Label: "Active", Match: func(k Key) bool { return k.Active }},
			{Name: "recovery", Label: "Pending Recovery", Match: func(k Key) bool { return k.PendingRecovery }},
		},
		Sorts: []listview.Sort[Key]{
			{Name: "name-asc", Label: "Name A-Z", Compare: listview.ByString(name)},
			{Name: "rotated-desc", Label: "Recently Rotated", Compare: listview.Descending(listview.ByTime(func(k Key) time.Time { return k.RotatedAt }))},
		},
		Logger: o.logger,
	})
	return k
}

// Load refreshes the list.
func (k *Keys) Load(ctx context.Context) error {
	return k.Reload(ctx)
}

// Rotate issues a new key for the agent and returns it. Servers that do not
// disclose the new key return only its prefix; the result is then empty.
func (k *Keys) Rotate(ctx context.Context, agentID string) (string, error) {
	var newKey string
	err := k.RecordAction(ctx, agentID, listview.Action[Key]{
		Name: "rotate",
		Apply: func(ctx context.Context, key Key) (Key, error) {
			var resp struct {
				NewKey    string `json:"new_key"`
				APIKey    string `json:"api_key"`
				KeyPrefix string `json:"key_prefix"`
			}
			if err := k.backend.AuthorizedJSON(ctx, http.MethodPost, "/admin/keys/"+url.PathEscape(agentID)+"/rotate", nil, &resp); err != nil {
				return key, err
			}
			k.backend.Audit("rotate_key", fmt.Sprintf("Rotated key for agent %q (%s)", key.AgentName, agentID))

			newKey = firstNonEmpty(resp.NewKey, resp.APIKey)
			key.Prefix = firstNonEmpty(resp.KeyPrefix, newKey[:min(len(newKey), keyPrefixLen)], key.Prefix)
			key.RotatedAt = k.opts.now().UTC()
			key.PendingRecovery = false
			return key, nil
		},
	})
	return newKey, err
}

// ResetAdminKey replaces the admin key and returns the new one, or "" when
// the server only prints it to its own log. The current session key stops
// working, so the caller must log out afterwards.
func (k *Keys) ResetAdminKey(ctx context.Context) (string, error) {
	var resp struct {
		Key      string `json:"key"`
		AdminKey string `json:"admin_key"`
	}
	if err := k.backend.AuthorizedJSON(ctx, http.MethodPost, "/admin/keys/reset-admin", nil, &resp); err != nil {
		return "", &listview.ActionError{Action: "reset-admin", Err: err}
	}
	key := firstNonEmpty(resp.Key, resp.AdminKey)
	k.backend.Audit("reset_admin_key", "Admin key reset")
	// SECURITY: never log the key itself.
	k.opts.logger.Warn("ADMIN_KEY_RESET")
	return key, nil
}
