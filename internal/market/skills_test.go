// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/squidbay/squidops-tui/internal/apitest"
	"github.com/squidbay/squidops-tui/internal/listview"
	"github.com/squidbay/squidops-tui/internal/session"
)

func TestSkills_TrustHighToLow(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.SetSkills(
		apitest.Record{"id": 3, "name": "Unscanned", "is_active": 1},
		apitest.Record{"id": 2, "name": "Risky", "is_active": 1, "scan": apitest.Record{"risk_score": 60}},
		apitest.Record{"id": 1, "name": "Safe", "is_active": 1, "scan": apitest.Record{"risk_score": 10}},
	)

	s := NewSkills(newBackend(t, srv))
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.SetSort("trust-desc"))

	visible := s.Visible()
	if diff := cmp.Diff([]string{"1", "2", "3"}, skillIDs(visible)); diff != "" {
		t.Errorf("trust-desc order mismatch (-want +got):\n%s", diff)
	}
	trust := []int{visible[0].Trust(), visible[1].Trust(), visible[2].Trust()}
	require.Equal(t, []int{90, 40, -1}, trust)

	require.NoError(t, s.SetSort("trust-asc"))
	require.Equal(t, []string{"3", "2", "1"}, skillIDs(s.Visible()))
}

func TestSkills_SearchKeepsFilterAndSort(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()
	srv.SetSkills(
		apitest.Record{"id": 1, "name": "Dragon Tool", "is_active": 1},
		apitest.Record{"id": 2, "name": "Phoenix", "is_active": 1},
		apitest.Record{"id": 3, "name": "Draft Horse", "is_active": 0},
	)

	s := NewSkills(newBackend(t, srv))
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.SetFilter("active"))
	require.NoError(t, s.SetSort("name-desc"))

	s.SetSearch("drag")
	require.Equal(t, []string{"1"}, skillIDs(s.Visible()))

	s.SetSearch("")
	require.Equal(t, []string{"2", "1"}, skillIDs(s.Visible()))
}

func TestSkills_FacetsAndCounts(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()

	s := NewSkills(newBackend(t, srv))
	require.NoError(t, s.Load(context.Background()))

	require.Equal(t, []string{"data", "finance", "nlp", "utilities"}, s.Facets())
	require.Equal(t, 6, s.Count("all"))
	require.Equal(t, 5, s.Count("active"))
	require.Equal(t, 1, s.Count("inactive"))

	s.SetFacet("finance")
	require.Equal(t, []string{"102", "106"}, skillIDs(s.Visible()))
}

func TestSkills_FallsBackToPublicListing(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	srv.Disable("/admin/skills", http.StatusNotFound)

	s := NewSkills(newBackend(t, srv))
	require.NoError(t, s.Load(context.Background()))
	require.Equal(t, 5, s.Len(), "public listing hides inactive skills")
	require.Equal(t, 1, srv.Hits("/skills"))
}

func TestSkills_NoFallbackWhenSessionExpired(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	srv.RotateAdminKey("someone-else")

	s := NewSkills(b)
	err := s.Load(context.Background())
	require.True(t, session.IsSessionExpired(err), "got %v", err)
	require.Zero(t, srv.Hits("/skills"))
	require.Equal(t, session.LoggedOut, b.State())
}

func TestSkills_DeactivateRequiresReason(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	s := NewSkills(newBackend(t, srv))
	require.NoError(t, s.Load(context.Background()))

	err := s.Deactivate(context.Background(), "101", "  ")
	var verr *listview.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Zero(t, srv.Hits("/register/{id}"), "nothing is sent when validation fails")
}

func TestSkills_DeactivateReactivateRoundTrip(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	s := NewSkills(b)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.SetFilter("inactive"))

	require.NoError(t, s.Deactivate(ctx, "101", "malware report"))
	sk, ok := s.Item("101")
	require.True(t, ok)
	require.False(t, sk.Active)
	require.Equal(t, "malware report", sk.DeactivationReason)
	require.Equal(t, []string{"101", "103"}, skillIDs(s.Visible()))
	require.EqualValues(t, 0, srv.Skill("101")["is_active"])

	audit := b.lastAudit(t)
	require.Equal(t, "deactivate_skill", audit.Action)
	require.Equal(t, `Deactivated "Drag-and-Drop Uploader" (101). Reason: malware report`, audit.Detail)

	require.NoError(t, s.Reactivate(ctx, "101"))
	sk, _ = s.Item("101")
	require.True(t, sk.Active)
	require.Empty(t, sk.DeactivationReason)
	require.Equal(t, []string{"103"}, skillIDs(s.Visible()))
	require.Equal(t, "reactivate_skill", b.lastAudit(t).Action)
}

func TestSkills_FailedActionLeavesItem(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	s := NewSkills(b)
	require.NoError(t, s.Load(context.Background()))
	srv.Disable("/register/{id}", http.StatusInternalServerError)

	err := s.Deactivate(context.Background(), "101", "spam")
	var aerr *listview.ActionError
	require.ErrorAs(t, err, &aerr)
	sk, _ := s.Item("101")
	require.True(t, sk.Active)
	require.Zero(t, b.auditCount(), "failed writes are not audited")

	_, busy := s.Busy("101")
	require.False(t, busy)
}

func TestSkills_RescanStoresNewScan(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	s := NewSkills(b)
	require.NoError(t, s.Load(context.Background()))

	before, _ := s.Item("105")
	require.Equal(t, -1, before.Trust())

	require.NoError(t, s.Rescan(context.Background(), "105"))
	after, _ := s.Item("105")
	require.NotNil(t, after.Scan)
	require.Equal(t, 100-len("Tide Tables")%30, after.Trust())
	require.Equal(t, apitest.AuditEntry{Action: "scan_skill", Detail: "Rescanned skill 105"}, b.lastAudit(t))
}

func TestSkills_EditMergesServerRecord(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	s := NewSkills(b)
	ctx := context.Background()
	require.NoError(t, s.Load(ctx))

	sk, _ := s.Item("106")
	e := EditFor(sk)
	require.Nil(t, e.PriceExecution)
	e.Name = "Lightning Router Pro"
	price := int64(900)
	e.PriceExecution = &price

	require.NoError(t, s.Edit(ctx, "106", e))
	sk, _ = s.Item("106")
	require.Equal(t, "Lightning Router Pro", sk.Name)
	require.EqualValues(t, 900, sk.PriceExecution)
	require.Equal(t, "Lightning Router Pro", srv.Skill("106")["name"])
	require.Equal(t, "Edited skill Lightning Router Pro", b.lastAudit(t).Detail)

	e.Name = ""
	err := s.Edit(ctx, "106", e)
	require.True(t, errors.As(err, new(*listview.ValidationError)))
}
