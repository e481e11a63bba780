// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/squidbay/squidops-tui/internal/apitest"
	"github.com/squidbay/squidops-tui/internal/listview"
)

func TestTransactions_Revenue(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	tx := NewTransactions(newBackend(t, srv))
	require.NoError(t, tx.Load(context.Background()))

	rev := tx.Revenue()
	require.Equal(t, 4, rev.Transactions)
	require.Equal(t, 2, rev.Completed)
	require.EqualValues(t, 13150, rev.VolumeSats)
	require.EqualValues(t, 247, rev.FeeSats, "missing fees count as zero in the platform total")
	require.InDelta(t, 97250.5, rev.BTCPrice, 1e-9)
	require.InDelta(t, 247.0/SatsPerBTC*97250.5, rev.FeesUSD, 1e-9)

	want := []AgentRevenue{
		{Name: "Krakenworks", Transactions: 2, VolumeSats: 12250, FeeSats: 245},
		{Name: "Dragline", Transactions: 1, VolumeSats: 800, FeeSats: 16},
		{Name: "nautilus", Transactions: 1, VolumeSats: 100, FeeSats: 2},
	}
	if diff := cmp.Diff(want, rev.ByAgent); diff != "" {
		t.Errorf("per-agent revenue mismatch (-want +got):\n%s", diff)
	}
}

func TestTransactions_PriceFailureIsZero(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	srv.SetBTCPrice(0)
	tx := NewTransactions(newBackend(t, srv))

	require.NoError(t, tx.Load(context.Background()))
	require.Zero(t, tx.BTCPrice())
	require.Zero(t, tx.Revenue().FeesUSD)
	require.Equal(t, 4, tx.Len())
}

// hookBackend runs hook after each request to path.
type hookBackend struct {
	Backend
	path string
	hook func()
}

func (h *hookBackend) AuthorizedJSON(ctx context.Context, method, path string, body, out any) error {
	err := h.Backend.AuthorizedJSON(ctx, method, path, body, out)
	if path == h.path && h.hook != nil {
		h.hook()
	}
	return err
}

func TestTransactions_StaleLoadKeepsPrice(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := &hookBackend{Backend: newBackend(t, srv), path: "/admin/transactions"}
	tx := NewTransactions(b)
	require.NoError(t, tx.Load(context.Background()))
	require.InDelta(t, 97250.5, tx.BTCPrice(), 1e-9)

	// The tab is left while the next load is in flight.
	srv.SetBTCPrice(1)
	b.hook = tx.Teardown
	require.ErrorIs(t, tx.Load(context.Background()), listview.ErrStale)
	require.InDelta(t, 97250.5, tx.BTCPrice(), 1e-9)

	b.hook = nil
	require.NoError(t, tx.Load(context.Background()))
	require.InDelta(t, 1.0, tx.BTCPrice(), 1e-9)
}

func TestTransactions_FetchFailureSurfaces(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	srv.Disable("/admin/transactions", http.StatusInternalServerError)
	tx := NewTransactions(newBackend(t, srv))

	require.Error(t, tx.Load(context.Background()))
	require.Zero(t, tx.Len())
}

func TestTransactions_StatusFacetAndSort(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	tx := NewTransactions(newBackend(t, srv))
	require.NoError(t, tx.Load(context.Background()))

	require.Equal(t, []string{"complete", "completed", "failed", "pending"}, tx.Facets())
	require.Equal(t, "tx-0f9e8d7c6b5a", tx.Visible()[0].ID, "newest first by default")

	require.NoError(t, tx.SetSort("amount-desc"))
	require.Equal(t, "tx-7a6b5c4d3e2f", tx.Visible()[0].ID)

	tx.SetFacet("pending")
	require.Len(t, tx.Visible(), 1)
	require.Equal(t, "Dragline", tx.Visible()[0].SellerName)

	tx.SetFacet("")
	tx.SetSearch("krakenworks")
	require.Len(t, tx.Visible(), 2, "seller_name and agent_name both normalize to the seller")
}

func TestTransactions_ExportCSV(t *testing.T) {
	srv := apitest.NewServer(apitest.WithSeed())
	defer srv.Close()
	b := newBackend(t, srv)
	tx := NewTransactions(b, WithClock(fixedNow))
	require.NoError(t, tx.Load(context.Background()))

	dir := t.TempDir()
	path, err := tx.ExportCSV(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "squidbay-transactions-2025-07-04.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	require.Equal(t, strings.Join(TransactionHeaders, ","), lines[0])
	require.Equal(t, "tx-1a2b3c4d5e6f,éclair summarizer,skill_file,800,,quiet-owl,Dragline,pending,2025-06-20T12:00:00Z", lines[3])

	require.Equal(t, apitest.AuditEntry{Action: "export_transactions", Detail: "Exported 4 transactions as CSV"}, b.lastAudit(t))
}
