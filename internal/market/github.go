// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/session"
)

// Issue is a GitHub issue filed against a connected agent's repository.
type Issue struct {
	ID           string
	Number       string
	Title        string
	Repo         string
	Author       string
	Labels       []string
	URL          string
	Acknowledged bool
	CreatedAt    time.Time
}

// Connection links an agent to a GitHub repository.
type Connection struct {
	AgentName   string
	Repo        string
	Verified    bool
	ConnectedAt time.Time
}

// issueLabels accepts labels as plain strings or {"name": ...} objects.
type issueLabels []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *issueLabels) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) > 0 && r[0] == '{' {
			var obj struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(r, &obj); err != nil {
				return err
			}
			out = append(out, obj.Name)
			continue
		}
		var s FlexString
		if err := json.Unmarshal(r, &s); err != nil {
			return err
		}
		out = append(out, string(s))
	}
	*l = out
	return nil
}

type wireIssue struct {
	ID     FlexString `json:"id"`
	Number FlexString `json:"number"`
	Title  string     `json:"title"`
	Repo   string     `json:"repo"`
	Author string     `json:"author"`
	User   struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels       issueLabels `json:"labels"`
	HTMLURL      string      `json:"html_url"`
	Acknowledged FlexBool    `json:"acknowledged"`
	CreatedAt    FlexTime    `json:"created_at"`
}

func (w wireIssue) normalize() Issue {
	return Issue{
		ID:           firstNonEmpty(string(w.ID), string(w.Number)),
		Number:       string(w.Number),
		Title:        w.Title,
		Repo:         w.Repo,
		Author:       firstNonEmpty(w.Author, w.User.Login),
		Labels:       []string(w.Labels),
		URL:          w.HTMLURL,
		Acknowledged: bool(w.Acknowledged),
		CreatedAt:    w.CreatedAt.Time(),
	}
}

type wireConnection struct {
	AgentName   string   `json:"agent_name"`
	Repo        string   `json:"repo"`
	GitHubRepo  string   `json:"github_repo"`
	Verified    FlexBool `json:"verified"`
	ConnectedAt FlexTime `json:"connected_at"`
	CreatedAt   FlexTime `json:"created_at"`
}

func (w wireConnection) normalize() Connection {
	at := w.ConnectedAt.Time()
	if at.IsZero() {
		at = w.CreatedAt.Time()
	}
	return Connection{
		AgentName:   w.AgentName,
		Repo:        firstNonEmpty(w.Repo, w.GitHubRepo),
		Verified:    bool(w.Verified),
		ConnectedAt: at,
	}
}

// FetchGitHub reads issues and repository connections in parallel. Either
// list is empty when its endpoint fails; only a dead session is an error.
func FetchGitHub(ctx context.Context, b Backend) ([]Issue, []Connection, error) {
	var (
		issues []wireIssue
		conns  []wireConnection
	)
	tolerant := func(err error) error {
		if session.IsSessionExpired(err) {
			return err
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var resp struct {
			Issues []wireIssue `json:"issues"`
		}
		if err := getAdmin(gctx, b, "/admin/github/issues", &resp); err != nil {
			return tolerant(err)
		}
		issues = resp.Issues
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Connections []wireConnection `json:"connections"`
		}
		if err := getAdmin(gctx, b, "/admin/github/connections", &resp); err != nil {
			return tolerant(err)
		}
		conns = resp.Connections
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	outIssues := make([]Issue, len(issues))
	for i, w := range issues {
		outIssues[i] = w.normalize()
	}
	outConns := make([]Connection, len(conns))
	for i, w := range conns {
		outConns[i] = w.normalize()
	}
	return outIssues, outConns, nil
}

// GitHub is the GitHub integration tab: an issue list plus the agents'
// repository connections, which are read alongside it.
type GitHub struct {
	*listview.View[Issue]
	backend Backend

	mu    sync.Mutex
	conns []Connection
	// fetched is the newest fetch's connections, committed by Load once the
	// list accepts the result.
	fetched []Connection
}

// NewGitHub builds the issue list view over b.
func NewGitHub(b Backend, opts ...Option) *GitHub {
	o := buildOptions(opts)
	g := &GitHub{backend: b}

	created := func(i Issue) time.Time { return i.CreatedAt }
	repo := func(i Issue) string { return i.Repo }

	g.View = listview.MustNew(listview.Config[Issue]{
		Name: "github",
		Fetch: func(ctx context.Context) ([]Issue, error) {
			issues, conns, err := FetchGitHub(ctx, b)
			if err != nil {
				return nil, err
			}
			g.mu.Lock()
			g.fetched = conns
			g.mu.Unlock()
			return issues, nil
		},
		ID: func(i Issue) string { return i.ID },
		SearchFields: []func(Issue) string{
			func(i Issue) string { return i.Title },
			repo,
			func(i Issue) string { return i.Author },
			func(i Issue) string { return strings.Join(i.Labels, " ") },
		},
		Filters: []listview.Filter[Issue]{
			{Name: "all", Label: "All"},
			{Name: "unread", Label: "Unread", Match: func(i Issue) bool { return !i.Acknowledged }},
			{Name: "acknowledged", Label: "Read", Match: func(i Issue) bool { return i.Acknowledged }},
		},
		Sorts: []listview.Sort[Issue]{
			{Name: "date-desc", Label: "Newest", Compare: listview.Descending(listview.ByTime(created))},
			{Name: "date-asc", Label: "Oldest", Compare: listview.ByTime(created)},
			{Name: "repo", Label: "Repository", Compare: listview.ByString(repo)},
		},
		DefaultSort: "date-desc",
		Facet:       repo,
		Logger:      o.logger,
	})
	return g
}

// Load refreshes issues and connections. A stale or failed load leaves the
// connections alone.
func (g *GitHub) Load(ctx context.Context) error {
	if err := g.Reload(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	g.conns = g.fetched
	g.mu.Unlock()
	return nil
}

// Unread counts issues nobody has acknowledged.
func (g *GitHub) Unread() int {
	return g.Count("unread")
}

// Connections returns the repository links from the last load.
func (g *GitHub) Connections() []Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Connection(nil), g.conns...)
}

// Ack marks issue id as read.
func (g *GitHub) Ack(ctx context.Context, id string) error {
	return g.RecordAction(ctx, id, listview.Action[Issue]{
		Name: "ack-issue",
		Validate: func() error {
			if i, ok := g.Item(id); ok && i.Acknowledged {
				return errors.New("issue is already acknowledged")
			}
			return nil
		},
		Apply: func(ctx context.Context, i Issue) (Issue, error) {
			if i.Acknowledged {
				return i, errors.New("issue is already acknowledged")
			}
			if err := g.backend.AuthorizedJSON(ctx, http.MethodPost, "/admin/github/issues/"+url.PathEscape(id)+"/ack", nil, nil); err != nil {
				return i, err
			}
			g.backend.Audit("ack_github_issue", fmt.Sprintf("Acknowledged issue #%s in %s", firstNonEmpty(i.Number, i.ID), i.Repo))
			i.Acknowledged = true
			return i, nil
		},
	})
}

// IssuesDocument renders issues for export.
func IssuesDocument(issues []Issue) *export.Document {
	rows := make([][]string, len(issues))
	for n, i := range issues {
		rows[n] = []string{
			i.ID, i.Number, i.Title, i.Repo, i.Author, strings.Join(i.Labels, ";"),
			strconv.FormatBool(i.Acknowledged), i.URL, formatTime(i.CreatedAt),
		}
	}
	return &export.Document{
		Slug:    "github-issues",
		Title:   "GitHub Issues",
		Headers: []string{"id", "number", "title", "repo", "author", "labels", "acknowledged", "html_url", "created_at"},
		Rows:    rows,
	}
}
