// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/squidbay/squidops-tui/internal/listview"
)

// =============================================================================
// TYPES
// =============================================================================

// Scan is the latest security scan of a skill.
type Scan struct {
	RiskScore int
	Result    string
	ScannedAt time.Time
}

// Skill is one marketplace listing.
type Skill struct {
	ID               string
	Name             string
	Slug             string
	AgentID          string
	AgentName        string
	Category         string
	Icon             string
	Version          string
	DeliveryMode     string
	Description      string
	Details          string
	TransferEndpoint string
	Tiers            []string
	PriceExecution   int64
	PriceSkillFile   int64
	PriceFullPackage int64
	SuccessCount     int64
	RatingSum        int64
	RatingCount      int64
	Active           bool
	CreatedAt        time.Time
	Scan             *Scan

	// DeactivationReason is the reason given in this console. The API does
	// not return it.
	DeactivationReason string
}

// Trust is 100 minus the scan risk, or -1 when the skill was never scanned.
func (s Skill) Trust() int {
	if s.Scan == nil {
		return -1
	}
	return 100 - s.Scan.RiskScore
}

// Rating is the mean review rating, 0 without reviews.
func (s Skill) Rating() float64 {
	if s.RatingCount <= 0 {
		return 0
	}
	return float64(s.RatingSum) / float64(s.RatingCount)
}

type wireScan struct {
	RiskScore *FlexFloat `json:"risk_score"`
	Result    string     `json:"result"`
	ScannedAt FlexTime   `json:"scanned_at"`
}

type wireSkill struct {
	ID               FlexString `json:"id"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	AgentID          FlexString `json:"agent_id"`
	AgentName        string     `json:"agent_name"`
	Category         string     `json:"category"`
	Icon             string     `json:"icon"`
	Version          string     `json:"version"`
	DeliveryMode     string     `json:"delivery_mode"`
	Description      string     `json:"description"`
	Details          string     `json:"details"`
	TransferEndpoint string     `json:"transfer_endpoint"`
	Tiers            []string   `json:"available_tiers"`
	PriceExecution   FlexInt    `json:"price_execution"`
	PriceSkillFile   FlexInt    `json:"price_skill_file"`
	PriceFullPackage FlexInt    `json:"price_full_package"`
	SuccessCount     FlexInt    `json:"success_count"`
	RatingSum        FlexInt    `json:"rating_sum"`
	RatingCount      FlexInt    `json:"rating_count"`
	IsActive         *FlexBool  `json:"is_active"`
	CreatedAt        FlexTime   `json:"created_at"`
	Scan             *wireScan  `json:"scan"`
}

func (w wireScan) normalize() *Scan {
	// A scan without a numeric risk score does not count as scanned.
	if w.RiskScore == nil {
		return nil
	}
	return &Scan{
		RiskScore: int(*w.RiskScore),
		Result:    w.Result,
		ScannedAt: w.ScannedAt.Time(),
	}
}

func (w wireSkill) normalize() Skill {
	s := Skill{
		ID:               string(w.ID),
		Name:             w.Name,
		Slug:             w.Slug,
		AgentID:          string(w.AgentID),
		AgentName:        w.AgentName,
		Category:         w.Category,
		Icon:             w.Icon,
		Version:          w.Version,
		DeliveryMode:     w.DeliveryMode,
		Description:      w.Description,
		Details:          w.Details,
		TransferEndpoint: w.TransferEndpoint,
		Tiers:            w.Tiers,
		PriceExecution:   int64(w.PriceExecution),
		PriceSkillFile:   int64(w.PriceSkillFile),
		PriceFullPackage: int64(w.PriceFullPackage),
		SuccessCount:     int64(w.SuccessCount),
		RatingSum:        int64(w.RatingSum),
		RatingCount:      int64(w.RatingCount),
		Active:           activeFlag(w.IsActive),
		CreatedAt:        w.CreatedAt.Time(),
	}
	if w.Scan != nil {
		s.Scan = w.Scan.normalize()
	}
	return s
}

type skillsResponse struct {
	Skills []wireSkill `json:"skills"`
}

// =============================================================================
// PANEL
// =============================================================================

// Skills is the skills tab: every listing including inactive ones.
type Skills struct {
	*listview.View[Skill]
	backend Backend
}

// NewSkills builds the skills list view over b.
func NewSkills(b Backend, opts ...Option) *Skills {
	o := buildOptions(opts)
	s := &Skills{backend: b}

	name := func(s Skill) string { return s.Name }
	trust := func(s Skill) int64 { return int64(s.Trust()) }
	created := func(s Skill) time.Time { return s.CreatedAt }

	s.View = listview.MustNew(listview.Config[Skill]{
		Name:  "skills",
		Fetch: s.fetch,
		ID:    func(s Skill) string { return s.ID },
		SearchFields: []func(Skill) string{
			name,
			func(s Skill) string { return s.AgentName },
			func(s Skill) string { return s.Category },
			func(s Skill) string { return s.Slug },
			func(s Skill) string { return s.Description },
		},
		Filters: []listview.Filter[Skill]{
			{Name: "all", Label: "All"},
			{Name: "active", Label: "Active", Match: func(s Skill) bool { return s.Active }},
			{Name: "inactive", Label: "Inactive", Match: func(s Skill) bool { return !s.Active }},
		},
		Sorts: []listview.Sort[Skill]{
			{Name: "name-asc", Label: "Name A-Z", Compare: listview.ByString(name)},
			{Name: "name-desc", Label: "Name Z-A", Compare: listview.Descending(listview.ByString(name))},
			{Name: "trust-desc", Label: "Trust High-Low", Compare: listview.Descending(listview.ByInt(trust))},
			{Name: "trust-asc", Label: "Trust Low-High", Compare: listview.ByInt(trust)},
			{Name: "jobs-desc", Label: "Most Jobs", Compare: listview.Descending(listview.ByInt(func(s Skill) int64 { return s.SuccessCount }))},
			{Name: "created-desc", Label: "Newest", Compare: listview.Descending(listview.ByTime(created))},
			{Name: "created-asc", Label: "Oldest", Compare: listview.ByTime(created)},
		},
		Facet:  func(s Skill) string { return s.Category },
		Logger: o.logger,
	})
	return s
}

// Load refreshes the list. It runs on every activation of the tab.
func (s *Skills) Load(ctx context.Context) error {
	return s.Reload(ctx)
}

func (s *Skills) fetch(ctx context.Context) ([]Skill, error) {
	return FetchSkills(ctx, s.backend)
}

// FetchSkills reads every skill from the admin endpoint, falling back to the
// public listing (active skills only) when the admin endpoint is unavailable.
func FetchSkills(ctx context.Context, b Backend) ([]Skill, error) {
	var resp skillsResponse
	if err := adminOrPublic(ctx, b, "/admin/skills", "/skills?limit=500", &resp); err != nil {
		return nil, err
	}
	out := make([]Skill, len(resp.Skills))
	for i, w := range resp.Skills {
		out[i] = w.normalize()
	}
	return out, nil
}

// =============================================================================
// ACTIONS
// =============================================================================

// Rescan triggers a security scan and stores the returned result.
func (s *Skills) Rescan(ctx context.Context, id string) error {
	return s.RecordAction(ctx, id, listview.Action[Skill]{
		Name: "rescan",
		Apply: func(ctx context.Context, sk Skill) (Skill, error) {
			var resp struct {
				Scan *wireScan `json:"scan"`
			}
			if err := s.backend.AuthorizedJSON(ctx, http.MethodPost, "/admin/scan/"+url.PathEscape(id), nil, &resp); err != nil {
				return sk, err
			}
			s.backend.Audit("scan_skill", "Rescanned skill "+id)
			if resp.Scan != nil {
				if scan := resp.Scan.normalize(); scan != nil {
					sk.Scan = scan
				}
			}
			return sk, nil
		},
	})
}

// Deactivate hides a skill from the marketplace. The record is kept.
func (s *Skills) Deactivate(ctx context.Context, id, reason string) error {
	return s.RecordAction(ctx, id, listview.Action[Skill]{
		Name:     "deactivate",
		Validate: listview.Required("reason", func() string { return reason }),
		Apply: func(ctx context.Context, sk Skill) (Skill, error) {
			if err := s.backend.AuthorizedJSON(ctx, http.MethodDelete, "/register/"+url.PathEscape(id), nil, nil); err != nil {
				return sk, err
			}
			s.backend.Audit("deactivate_skill", fmt.Sprintf("Deactivated %q (%s). Reason: %s", sk.Name, id, reason))
			sk.Active = false
			sk.DeactivationReason = reason
			return sk, nil
		},
	})
}

// Reactivate lists a deactivated skill again.
func (s *Skills) Reactivate(ctx context.Context, id string) error {
	return s.RecordAction(ctx, id, listview.Action[Skill]{
		Name: "reactivate",
		Apply: func(ctx context.Context, sk Skill) (Skill, error) {
			body := map[string]bool{"is_active": true}
			if err := s.backend.AuthorizedJSON(ctx, http.MethodPut, "/register/"+url.PathEscape(id), body, nil); err != nil {
				return sk, err
			}
			s.backend.Audit("reactivate_skill", fmt.Sprintf("Reactivated %q (%s)", sk.Name, id))
			sk.Active = true
			sk.DeactivationReason = ""
			return sk, nil
		},
	})
}

// SkillEdit is the editable subset of a skill. Nil prices are sent as null.
type SkillEdit struct {
	Name             string `json:"name"`
	Slug             string `json:"slug"`
	Category         string `json:"category"`
	Icon             string `json:"icon"`
	Version          string `json:"version"`
	DeliveryMode     string `json:"delivery_mode"`
	Description      string `json:"description"`
	Details          string `json:"details"`
	TransferEndpoint string `json:"transfer_endpoint"`
	PriceExecution   *int64 `json:"price_execution"`
	PriceSkillFile   *int64 `json:"price_skill_file"`
	PriceFullPackage *int64 `json:"price_full_package"`
}

// EditFor prefills an edit form from a skill.
func EditFor(sk Skill) SkillEdit {
	price := func(v int64) *int64 {
		if v == 0 {
			return nil
		}
		return &v
	}
	return SkillEdit{
		Name:             sk.Name,
		Slug:             sk.Slug,
		Category:         sk.Category,
		Icon:             sk.Icon,
		Version:          sk.Version,
		DeliveryMode:     sk.DeliveryMode,
		Description:      sk.Description,
		Details:          sk.Details,
		TransferEndpoint: sk.TransferEndpoint,
		PriceExecution:   price(sk.PriceExecution),
		PriceSkillFile:   price(sk.PriceSkillFile),
		PriceFullPackage: price(sk.PriceFullPackage),
	}
}

// Detail fetches the full public record, which includes Details.
func (s *Skills) Detail(ctx context.Context, id string) (Skill, error) {
	var resp struct {
		Skill *wireSkill `json:"skill"`
	}
	if err := s.backend.PublicJSON(ctx, "/skills/"+url.PathEscape(id), &resp); err != nil {
		return Skill{}, err
	}
	if resp.Skill == nil {
		return Skill{}, errors.New("empty skill response")
	}
	return resp.Skill.normalize(), nil
}

// Edit writes e to the skill and merges the server's answer.
func (s *Skills) Edit(ctx context.Context, id string, e SkillEdit) error {
	return s.RecordAction(ctx, id, listview.Action[Skill]{
		Name:     "edit",
		Validate: listview.Required("name", func() string { return e.Name }),
		Apply: func(ctx context.Context, sk Skill) (Skill, error) {
			var resp struct {
				Skill *wireSkill `json:"skill"`
			}
			if err := s.backend.AuthorizedJSON(ctx, http.MethodPut, "/register/"+url.PathEscape(id), e, &resp); err != nil {
				return sk, err
			}
			s.backend.Audit("edit_skill", "Edited skill "+firstNonEmpty(e.Name, id))
			if resp.Skill != nil {
				updated := resp.Skill.normalize()
				updated.DeactivationReason = sk.DeactivationReason
				if updated.ID == "" {
					updated.ID = sk.ID
				}
				return updated, nil
			}
			return applySkillEdit(sk, e), nil
		},
	})
}

func applySkillEdit(sk Skill, e SkillEdit) Skill {
	deref := func(p *int64) int64 {
		if p == nil {
			return 0
		}
		return *p
	}
	sk.Name = e.Name
	sk.Slug = e.Slug
	sk.Category = e.Category
	sk.Icon = e.Icon
	sk.Version = e.Version
	sk.DeliveryMode = e.DeliveryMode
	sk.Description = e.Description
	sk.Details = e.Details
	sk.TransferEndpoint = e.TransferEndpoint
	sk.PriceExecution = deref(e.PriceExecution)
	sk.PriceSkillFile = deref(e.PriceSkillFile)
	sk.PriceFullPackage = deref(e.PriceFullPackage)
	return sk
}
