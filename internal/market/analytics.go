// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/squidbay/squidops-tui/internal/apiclient"
	"github.com/squidbay/squidops-tui/internal/session"
)

// AnalyticsPeriods are the traffic windows the analytics endpoint accepts.
var AnalyticsPeriods = []string{"24h", "7d", "30d"}

// analyticsTopN caps the country and page tables.
const analyticsTopN = 15

// CountryCount is requests from one country.
type CountryCount struct {
	Country  string
	Requests int64
}

// PageCount is views of one path.
type PageCount struct {
	Path  string
	Views int64
}

// StatusCount is responses with one HTTP status.
type StatusCount struct {
	Code  string
	Count int64
}

// Traffic is the Cloudflare edge summary for one period.
type Traffic struct {
	Period string
	// Configured is false when the server has no Cloudflare credentials.
	// The counters are then all zero.
	Configured     bool
	Requests       int64
	PageViews      int64
	UniqueVisitors int64
	Threats        int64
	BandwidthBytes int64
	// Countries is sorted by requests, most first.
	Countries []CountryCount
	TopPages  []PageCount
	// StatusCodes is sorted by count, most first.
	StatusCodes []StatusCount
}

// BandwidthMB is the bandwidth in MiB.
func (t Traffic) BandwidthMB() float64 {
	return float64(t.BandwidthBytes) / (1024 * 1024)
}

// The analytics body has shipped in several shapes: wrapped in "analytics"
// or not, totals nested under "totals" or inline, countries as a list or a
// code-to-count map, and alternate names for most counters.
type wireTotals struct {
	Requests       FlexInt `json:"requests"`
	TotalRequests  FlexInt `json:"total_requests"`
	PageViews      FlexInt `json:"pageviews"`
	PageViewsAlt   FlexInt `json:"page_views"`
	UniqueVisitors FlexInt `json:"unique_visitors"`
	Uniques        FlexInt `json:"uniques"`
	Threats        FlexInt `json:"threats"`
	ThreatCount    FlexInt `json:"threat_count"`
	Bandwidth      FlexInt `json:"bandwidth"`
}

type wireCountry struct {
	Country  string  `json:"country"`
	Code     string  `json:"code"`
	Requests FlexInt `json:"requests"`
	Count    FlexInt `json:"count"`
}

type wirePage struct {
	URL   string  `json:"url"`
	Path  string  `json:"path"`
	Views FlexInt `json:"views"`
	Count FlexInt `json:"count"`
}

type wireAnalytics struct {
	Totals      json.RawMessage    `json:"totals"`
	Countries   json.RawMessage    `json:"countries"`
	CountryMap  json.RawMessage    `json:"country_map"`
	TopPages    []wirePage         `json:"top_pages"`
	Pages       []wirePage         `json:"pages"`
	StatusCodes map[string]FlexInt `json:"status_codes"`
	HTTPStatus  map[string]FlexInt `json:"http_status"`
}

// firstNonZero mirrors a chain of "a || b" fallbacks: zero means absent.
func firstNonZero(vals ...FlexInt) int64 {
	for _, v := range vals {
		if v != 0 {
			return int64(v)
		}
	}
	return 0
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func decodeCountries(raw json.RawMessage) ([]CountryCount, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return nil, nil
	}
	var out []CountryCount
	if raw[0] == '{' {
		var m map[string]FlexInt
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		for code, n := range m {
			out = append(out, CountryCount{Country: code, Requests: int64(n)})
		}
	} else {
		var list []wireCountry
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		for _, c := range list {
			out = append(out, CountryCount{
				Country:  firstNonEmpty(c.Country, c.Code, "--"),
				Requests: firstNonZero(c.Requests, c.Count),
			})
		}
	}
	slices.SortStableFunc(out, func(a, b CountryCount) int {
		if c := cmp.Compare(b.Requests, a.Requests); c != 0 {
			return c
		}
		return strings.Compare(a.Country, b.Country)
	})
	return out[:min(len(out), analyticsTopN)], nil
}

// parseTraffic normalizes an analytics response body.
func parseTraffic(period string, body json.RawMessage) (Traffic, error) {
	var outer struct {
		Analytics json.RawMessage `json:"analytics"`
	}
	if err := json.Unmarshal(body, &outer); err != nil {
		return Traffic{}, fmt.Errorf("decode analytics: %w", err)
	}
	inner := body
	if isJSONObject(outer.Analytics) {
		inner = outer.Analytics
	}

	var w wireAnalytics
	if err := json.Unmarshal(inner, &w); err != nil {
		return Traffic{}, fmt.Errorf("decode analytics: %w", err)
	}
	totalsRaw := inner
	if isJSONObject(w.Totals) {
		totalsRaw = w.Totals
	}
	var tot wireTotals
	if err := json.Unmarshal(totalsRaw, &tot); err != nil {
		return Traffic{}, fmt.Errorf("decode analytics totals: %w", err)
	}

	t := Traffic{
		Period:         period,
		Configured:     true,
		Requests:       firstNonZero(tot.Requests, tot.TotalRequests),
		PageViews:      firstNonZero(tot.PageViews, tot.PageViewsAlt),
		UniqueVisitors: firstNonZero(tot.UniqueVisitors, tot.Uniques),
		Threats:        firstNonZero(tot.Threats, tot.ThreatCount),
		BandwidthBytes: int64(tot.Bandwidth),
	}

	countries := w.Countries
	if len(bytes.TrimSpace(countries)) == 0 || bytes.Equal(bytes.TrimSpace(countries), jsonNull) {
		countries = w.CountryMap
	}
	var err error
	if t.Countries, err = decodeCountries(countries); err != nil {
		return Traffic{}, fmt.Errorf("decode analytics countries: %w", err)
	}

	pages := w.TopPages
	if len(pages) == 0 {
		pages = w.Pages
	}
	for _, p := range pages[:min(len(pages), analyticsTopN)] {
		t.TopPages = append(t.TopPages, PageCount{
			Path:  firstNonEmpty(p.URL, p.Path, "--"),
			Views: firstNonZero(p.Views, p.Count),
		})
	}

	codes := w.StatusCodes
	if len(codes) == 0 {
		codes = w.HTTPStatus
	}
	for code, n := range codes {
		t.StatusCodes = append(t.StatusCodes, StatusCount{Code: code, Count: int64(n)})
	}
	slices.SortFunc(t.StatusCodes, func(a, b StatusCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return t, nil
}

// notConfigured reports whether err says the server lacks Cloudflare
// credentials. A 401 never gets here: it has already ended the session.
func notConfigured(err error) bool {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusForbidden || strings.Contains(strings.ToLower(apiErr.Message), "token")
}

// FetchAnalytics reads traffic for period. Missing credentials are not an
// error; the result then has Configured false.
func FetchAnalytics(ctx context.Context, b Backend, period string) (Traffic, error) {
	var body json.RawMessage
	err := getAdmin(ctx, b, "/admin/cloudflare/analytics?period="+url.QueryEscape(period), &body)
	switch {
	case err == nil:
		return parseTraffic(period, body)
	case !session.IsSessionExpired(err) && notConfigured(err):
		return Traffic{Period: period}, nil
	default:
		return Traffic{}, fmt.Errorf("analytics: %w", err)
	}
}

// =============================================================================
// PANEL
// =============================================================================

// Analytics is the traffic analytics tab.
type Analytics struct {
	backend Backend
	opts    options

	mu      sync.Mutex
	period  string
	traffic Traffic
	loaded  bool
}

// NewAnalytics creates the analytics tab over b, showing the last 24 hours.
func NewAnalytics(b Backend, opts ...Option) *Analytics {
	return &Analytics{backend: b, opts: buildOptions(opts), period: AnalyticsPeriods[0]}
}

// Period returns the selected window.
func (a *Analytics) Period() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.period
}

// SetPeriod selects a window from AnalyticsPeriods. Call Load afterwards.
func (a *Analytics) SetPeriod(period string) error {
	if !slices.Contains(AnalyticsPeriods, period) {
		return fmt.Errorf("unknown period %q (want %s)", period, strings.Join(AnalyticsPeriods, ", "))
	}
	a.mu.Lock()
	a.period = period
	a.mu.Unlock()
	return nil
}

// NextPeriod selects the window after the current one and returns it.
func (a *Analytics) NextPeriod() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := slices.Index(AnalyticsPeriods, a.period)
	a.period = AnalyticsPeriods[(i+1)%len(AnalyticsPeriods)]
	return a.period
}

// Load fetches traffic for the selected window. A result for a window that
// was replaced meanwhile is dropped.
func (a *Analytics) Load(ctx context.Context) error {
	period := a.Period()
	t, err := FetchAnalytics(ctx, a.backend, period)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.period != period {
		return nil
	}
	a.traffic, a.loaded = t, true
	if !t.Configured {
		a.opts.logger.Debug("ANALYTICS_NOT_CONFIGURED")
	} else {
		a.opts.logger.Debug("ANALYTICS_LOADED", zap.String("period", period), zap.Int64("requests", t.Requests))
	}
	return nil
}

// Traffic returns the last loaded summary.
func (a *Analytics) Traffic() (Traffic, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.traffic, a.loaded
}
