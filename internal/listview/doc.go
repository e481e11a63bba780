// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package listview provides a generic in-memory list engine: free-text
// search, a named filter, an optional facet and a named sort over a fetched
// collection, plus single-record write-backs.
//
// # Key Types
//
//   - View: one collection and its derived rows
//   - Config: fetch, identity, search fields, filters and sorts
//   - Action: a validated single-record write
//
// # Usage
//
//	v := listview.MustNew(listview.Config[Skill]{
//	    Name:         "skills",
//	    Fetch:        fetchSkills,
//	    ID:           func(s Skill) string { return s.ID },
//	    SearchFields: []func(Skill) string{func(s Skill) string { return s.Name }},
//	    Sorts: []listview.Sort[Skill]{
//	        {Name: "name-asc", Label: "Name A-Z", Compare: listview.ByString(func(s Skill) string { return s.Name })},
//	    },
//	})
//	if err := v.Reload(ctx); err != nil { ... }
//	v.SetSearch("drag")
//	rows := v.Visible()
//
// Visible never mutates the loaded items. Teardown bumps the view epoch so
// that late results are dropped with ErrStale.
package listview
