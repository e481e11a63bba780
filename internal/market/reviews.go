// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/session"
)

// Report is an open user report attached to a review.
type Report struct {
	// ID is what the acknowledge endpoint expects: the report id, or the
	// review id when the API reports reviews directly.
	ID        string
	Reason    string
	Text      string
	Resolved  bool
	CreatedAt time.Time
}

// Review is one buyer review. Moderated reviews are hidden from the public
// but never deleted.
type Review struct {
	ID               string
	AgentID          string
	AgentName        string
	SkillName        string
	ReviewerName     string
	Comment          string
	Reply            string
	Tier             string
	Rating           int64
	Active           bool
	ModerationReason string
	CreatedAt        time.Time
	Report           *Report
}

// Reported reports whether the review has an unresolved report.
func (r Review) Reported() bool {
	return r.Report != nil && !r.Report.Resolved
}

// ModerationReasons are the accepted moderation categories, in menu order.
var ModerationReasons = []listview.Choice{
	{Name: "harassment", Label: "Harassment / Abuse"},
	{Name: "spam", Label: "Spam"},
	{Name: "threats", Label: "Threats / Violence"},
	{Name: "defamatory", Label: "Defamatory / False"},
	{Name: "illegal", Label: "Illegal Content"},
	{Name: "other", Label: "Other"},
}

type wireReview struct {
	ID               FlexString `json:"id"`
	ReviewID         FlexString `json:"review_id"`
	AgentID          FlexString `json:"agent_id"`
	AgentName        string     `json:"agent_name"`
	SkillName        string     `json:"skill_name"`
	ReviewerName     string     `json:"reviewer_name"`
	Comment          string     `json:"comment"`
	Reply            string     `json:"reply"`
	Tier             string     `json:"tier"`
	Rating           FlexInt    `json:"rating"`
	IsActive         *FlexBool  `json:"is_active"`
	ModerationReason string     `json:"moderation_reason"`
	CreatedAt        FlexTime   `json:"created_at"`

	ReportReason string   `json:"report_reason"`
	ReportText   string   `json:"report_text"`
	Acknowledged FlexBool `json:"acknowledged"`
	ResolvedFlag FlexBool `json:"resolved"`
}

func (w wireReview) normalize() Review {
	return Review{
		ID:               firstNonEmpty(string(w.ID), string(w.ReviewID)),
		AgentID:          string(w.AgentID),
		AgentName:        w.AgentName,
		SkillName:        w.SkillName,
		ReviewerName:     w.ReviewerName,
		Comment:          w.Comment,
		Reply:            w.Reply,
		Tier:             w.Tier,
		Rating:           int64(w.Rating),
		Active:           activeFlag(w.IsActive),
		ModerationReason: w.ModerationReason,
		CreatedAt:        w.CreatedAt.Time(),
	}
}

// reviewKey is the review a report entry points at.
func (w wireReview) reviewKey() string {
	return firstNonEmpty(string(w.ReviewID), string(w.ID))
}

func (w wireReview) report() *Report {
	return &Report{
		ID:        firstNonEmpty(string(w.ID), string(w.ReviewID)),
		Reason:    w.ReportReason,
		Text:      w.ReportText,
		Resolved:  bool(w.Acknowledged) || bool(w.ResolvedFlag),
		CreatedAt: w.CreatedAt.Time(),
	}
}

// =============================================================================
// FETCH
// =============================================================================

// FetchReviews loads all reviews and attaches open reports. When the admin
// review endpoint is unavailable, reviews are aggregated from the public
// agent pages; that path cannot see moderated reviews.
func FetchReviews(ctx context.Context, b Backend) ([]Review, error) {
	var reviews, reports []wireReview

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var resp struct {
			Reviews []wireReview `json:"reviews"`
		}
		err := getAdmin(gctx, b, "/admin/reviews", &resp)
		if err == nil {
			reviews = resp.Reviews
			return nil
		}
		if session.IsSessionExpired(err) {
			return err
		}
		agg, aerr := aggregateReviews(gctx, b)
		if aerr != nil {
			return fmt.Errorf("aggregate reviews: %w", errors.Join(aerr, err))
		}
		reviews = agg
		return nil
	})
	g.Go(func() error {
		var resp struct {
			Reviews []wireReview `json:"reviews"`
			Reports []wireReview `json:"reports"`
		}
		err := getAdmin(gctx, b, "/admin/reviews/reported", &resp)
		if err != nil {
			if session.IsSessionExpired(err) {
				return err
			}
			// The reported list is optional.
			return nil
		}
		reports = resp.Reviews
		if len(reports) == 0 {
			reports = resp.Reports
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeReports(reviews, reports), nil
}

func mergeReports(reviews, reports []wireReview) []Review {
	out := make([]Review, len(reviews))
	index := make(map[string]int, len(reviews))
	for i, w := range reviews {
		out[i] = w.normalize()
		index[out[i].ID] = i
	}
	for _, rp := range reports {
		if i, ok := index[rp.reviewKey()]; ok {
			out[i].Report = rp.report()
			continue
		}
		// Reported review missing from the main list: keep the report's copy.
		r := rp.normalize()
		r.ID = rp.reviewKey()
		r.Report = rp.report()
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

const aggregateConcurrency = 4

// aggregateReviews collects active reviews from every public agent page.
// Agents whose page fails are skipped.
func aggregateReviews(ctx context.Context, b Backend) ([]wireReview, error) {
	var dir agentsResponse
	if err := b.PublicJSON(ctx, "/agents", &dir); err != nil {
		return nil, err
	}

	perAgent := make([][]wireReview, len(dir.Agents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(aggregateConcurrency)
	for i, ag := range dir.Agents {
		g.Go(func() error {
			var detail struct {
				Reviews []wireReview `json:"reviews"`
			}
			if err := b.PublicJSON(gctx, "/agents/"+url.PathEscape(string(ag.ID)), &detail); err != nil {
				return nil
			}
			for j := range detail.Reviews {
				detail.Reviews[j].AgentName = ag.AgentName
				detail.Reviews[j].AgentID = ag.ID
			}
			perAgent[i] = detail.Reviews
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(perAgent...), nil
}

// =============================================================================
// PANEL
// =============================================================================

// Reviews is the review moderation tab.
type Reviews struct {
	*listview.View[Review]
	backend Backend
}

// NewReviews builds the reviews list view over b.
func NewReviews(b Backend, opts ...Option) *Reviews {
	o := buildOptions(opts)
	r := &Reviews{backend: b}

	created := func(r Review) time.Time { return r.CreatedAt }
	rating := func(r Review) int64 { return r.Rating }

	r.View = listview.MustNew(listview.Config[Review]{
		Name:  "reviews",
		Fetch: func(ctx context.Context) ([]Review, error) { return FetchReviews(ctx, b) },
		ID:    func(r Review) string { return r.ID },
		SearchFields: []func(Review) string{
			func(r Review) string { return r.ReviewerName },
			func(r Review) string { return r.Comment },
			func(r Review) string { return r.SkillName },
			func(r Review) string { return r.AgentName },
		},
		Filters: []listview.Filter[Review]{
			{Name: "all", Label: "All"},
			{Name: "active", Label: "Active", Match: func(r Review) bool { return r.Active }},
			{Name: "reported", Label: "Reported", Match: Review.Reported},
			{Name: "moderated", Label: "Moderated", Match: func(r Review) bool { return !r.Active }},
		},
		Sorts: []listview.Sort[Review]{
			{Name: "date-desc", Label: "Newest", Compare: listview.Descending(listview.ByTime(created))},
			{Name: "date-asc", Label: "Oldest", Compare: listview.ByTime(created)},
			{Name: "rating-asc", Label: "Lowest Rating", Compare: listview.ByInt(rating)},
			{Name: "rating-desc", Label: "Highest Rating", Compare: listview.Descending(listview.ByInt(rating))},
		},
		DefaultSort: "date-desc",
		Logger:      o.logger,
	})
	return r
}

// Load refreshes the list.
func (r *Reviews) Load(ctx context.Context) error {
	return r.Reload(ctx)
}

// OpenReports counts reviews with an unresolved report.
func (r *Reviews) OpenReports() int {
	return r.Count("reported")
}

// ModerationReason combines a reason category with optional detail text.
func ModerationReason(reason, detail string) string {
	reason, detail = strings.TrimSpace(reason), strings.TrimSpace(detail)
	if detail == "" {
		return reason
	}
	return reason + ": " + detail
}

func validReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.New("reason is required")
	}
	for _, c := range ModerationReasons {
		if c.Name == reason {
			return nil
		}
	}
	return fmt.Errorf("unknown moderation reason %q", reason)
}

// Moderate hides a review. reason must be one of ModerationReasons.
func (r *Reviews) Moderate(ctx context.Context, id, reason, detail string) error {
	full := ModerationReason(reason, detail)
	return r.RecordAction(ctx, id, listview.Action[Review]{
		Name:     "moderate",
		Validate: func() error { return validReason(reason) },
		Apply: func(ctx context.Context, rv Review) (Review, error) {
			body := map[string]string{"reason": full}
			if err := r.backend.AuthorizedJSON(ctx, http.MethodPut, "/admin/reviews/"+url.PathEscape(id)+"/moderate", body, nil); err != nil {
				return rv, err
			}
			r.backend.Audit("moderate_review", fmt.Sprintf("Moderated review %s. Reason: %s", id, full))
			rv.Active = false
			rv.ModerationReason = full
			return rv, nil
		},
	})
}

// Restore makes a moderated review public again.
func (r *Reviews) Restore(ctx context.Context, id string) error {
	return r.RecordAction(ctx, id, listview.Action[Review]{
		Name: "restore",
		Apply: func(ctx context.Context, rv Review) (Review, error) {
			body := map[string]bool{"restore": true}
			if err := r.backend.AuthorizedJSON(ctx, http.MethodPut, "/admin/reviews/"+url.PathEscape(id)+"/moderate", body, nil); err != nil {
				return rv, err
			}
			r.backend.Audit("restore_review", "Restored review "+id)
			rv.Active = true
			rv.ModerationReason = ""
			return rv, nil
		},
	})
}

// AckReport acknowledges the report on review id and detaches it.
func (r *Reviews) AckReport(ctx context.Context, id string) error {
	return r.RecordAction(ctx, id, r.ackAction(id))
}

func (r *Reviews) ackAction(id string) listview.Action[Review] {
	return listview.Action[Review]{
		Name: "ack-report",
		Validate: func() error {
			if rv, ok := r.Item(id); ok && rv.Report == nil {
				return errors.New("review has no open report")
			}
			return nil
		},
		Apply: func(ctx context.Context, rv Review) (Review, error) {
			// A reload between Validate and Apply can drop the report.
			if rv.Report == nil {
				return rv, errors.New("review has no open report")
			}
			ackID := rv.Report.ID
			if err := r.backend.AuthorizedJSON(ctx, http.MethodPut, "/admin/reviews/reports/"+url.PathEscape(ackID)+"/ack", nil, nil); err != nil {
				return rv, err
			}
			r.backend.Audit("ack_report", "Acknowledged report on review "+ackID)
			rv.Report = nil
			return rv, nil
		},
	}
}
