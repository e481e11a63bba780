// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package market

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/squidbay/squidops-tui/internal/export"
	"github.com/squidbay/squidops-tui/internal/listview"
)

// SatsPerBTC converts satoshis to bitcoin.
const SatsPerBTC = 100_000_000

// fallbackFeeRate estimates the platform fee when a transaction lacks one.
const fallbackFeeRate = 0.02

// Transaction is one skill purchase.
type Transaction struct {
	ID         string
	SkillName  string
	Tier       string
	BuyerName  string
	SellerName string
	Status     string
	AmountSats int64
	FeeSats    int64
	// FeeKnown is false when the API omitted platform_fee_sats.
	FeeKnown  bool
	CreatedAt time.Time
}

// Completed reports whether the purchase settled.
func (t Transaction) Completed() bool {
	return t.Status == "complete" || t.Status == "completed"
}

// estimatedFee is the recorded fee, or the standard rate when none was recorded.
func (t Transaction) estimatedFee() int64 {
	if t.FeeKnown {
		return t.FeeSats
	}
	return int64(math.Round(float64(t.AmountSats) * fallbackFeeRate))
}

type wireTransaction struct {
	ID         FlexString `json:"id"`
	SkillName  string     `json:"skill_name"`
	Tier       string     `json:"tier"`
	BuyerName  string     `json:"buyer_name"`
	SellerName string     `json:"seller_name"`
	AgentName  string     `json:"agent_name"`
	Status     string     `json:"status"`
	AmountSats FlexInt    `json:"amount_sats"`
	FeeSats    *FlexInt   `json:"platform_fee_sats"`
	CreatedAt  FlexTime   `json:"created_at"`
}

func (w wireTransaction) normalize() Transaction {
	t := Transaction{
		ID:         string(w.ID),
		SkillName:  w.SkillName,
		Tier:       w.Tier,
		BuyerName:  w.BuyerName,
		SellerName: firstNonEmpty(w.AgentName, w.SellerName, "Unknown"),
		Status:     w.Status,
		AmountSats: int64(w.AmountSats),
		CreatedAt:  w.CreatedAt.Time(),
	}
	if w.FeeSats != nil {
		t.FeeSats, t.FeeKnown = int64(*w.FeeSats), true
	}
	return t
}

// FetchTransactions loads transactions and the BTC/USD price in parallel.
// A failed price lookup yields a price of 0; a failed transaction lookup is
// returned.
func FetchTransactions(ctx context.Context, b Backend) ([]Transaction, float64, error) {
	var (
		txs   []wireTransaction
		price float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var resp struct {
			Transactions []wireTransaction `json:"transactions"`
		}
		if err := getAdmin(gctx, b, "/admin/transactions", &resp); err != nil {
			return err
		}
		txs = resp.Transactions
		return nil
	})
	g.Go(func() error {
		var resp struct {
			PriceUSD FlexFloat `json:"price_usd"`
			Price    FlexFloat `json:"price"`
		}
		if err := getAdmin(gctx, b, "/admin/btc-price", &resp); err != nil {
			return nil
		}
		price = float64(resp.PriceUSD)
		if price == 0 {
			price = float64(resp.Price)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	out := make([]Transaction, len(txs))
	for i, w := range txs {
		out[i] = w.normalize()
	}
	return out, price, nil
}

// =============================================================================
// REVENUE
// =============================================================================

// AgentRevenue is one seller's share of platform fees.
type AgentRevenue struct {
	Name         string
	Transactions int
	VolumeSats   int64
	FeeSats      int64
}

// Revenue summarizes a set of transactions.
type Revenue struct {
	Transactions int
	Completed    int
	VolumeSats   int64
	FeeSats      int64
	BTCPrice     float64
	// FeesUSD is 0 when the price is unknown.
	FeesUSD float64
	ByAgent []AgentRevenue
}

// Summarize totals txs. Per-agent fees fall back to the standard rate when a
// transaction has no recorded fee; the platform total counts recorded fees
// only. ByAgent is sorted by fees, highest first.
func Summarize(txs []Transaction, btcPrice float64) Revenue {
	r := Revenue{Transactions: len(txs), BTCPrice: btcPrice}
	byName := map[string]*AgentRevenue{}
	for _, t := range txs {
		r.VolumeSats += t.AmountSats
		r.FeeSats += t.FeeSats
		if t.Completed() {
			r.Completed++
		}
		a, ok := byName[t.SellerName]
		if !ok {
			a = &AgentRevenue{Name: t.SellerName}
			byName[t.SellerName] = a
		}
		a.Transactions++
		a.VolumeSats += t.AmountSats
		a.FeeSats += t.estimatedFee()
	}
	if btcPrice > 0 {
		r.FeesUSD = float64(r.FeeSats) / SatsPerBTC * btcPrice
	}

	r.ByAgent = make([]AgentRevenue, 0, len(byName))
	for _, a := range byName {
		r.ByAgent = append(r.ByAgent, *a)
	}
	slices.SortFunc(r.ByAgent, func(a, b AgentRevenue) int {
		if c := cmp.Compare(b.FeeSats, a.FeeSats); c != 0 {
			return c
		}
		return listview.CompareStrings(a.Name, b.Name)
	})
	return r
}

// =============================================================================
// PANEL
// =============================================================================

// TransactionHeaders are the CSV columns of a transaction export.
var TransactionHeaders = []string{
	"id", "skill_name", "tier", "amount_sats", "platform_fee_sats",
	"buyer_name", "seller_name", "status", "created_at",
}

// TransactionsDocument renders txs as an export document.
func TransactionsDocument(txs []Transaction) *export.Document {
	rows := make([][]string, len(txs))
	for i, t := range txs {
		fee := ""
		if t.FeeKnown {
			fee = strconv.FormatInt(t.FeeSats, 10)
		}
		rows[i] = []string{
			t.ID, t.SkillName, t.Tier,
			strconv.FormatInt(t.AmountSats, 10), fee,
			t.BuyerName, t.SellerName, t.Status, formatTime(t.CreatedAt),
		}
	}
	return &export.Document{
		Slug:    "transactions",
		Title:   "Transactions",
		Headers: TransactionHeaders,
		Rows:    rows,
	}
}

// Transactions is the transactions tab.
type Transactions struct {
	*listview.View[Transaction]
	backend Backend
	opts    options

	mu    sync.Mutex
	price float64
	// fetched is the price from the newest fetch, committed by Load once
	// the list accepts the result.
	fetched float64
}

// NewTransactions builds the transactions list view over b.
func NewTransactions(b Backend, opts ...Option) *Transactions {
	o := buildOptions(opts)
	t := &Transactions{backend: b, opts: o}

	created := func(t Transaction) time.Time { return t.CreatedAt }
	amount := func(t Transaction) int64 { return t.AmountSats }

	t.View = listview.MustNew(listview.Config[Transaction]{
		Name:  "transactions",
		Fetch: t.fetch,
		ID:    func(t Transaction) string { return t.ID },
		SearchFields: []func(Transaction) string{
			func(t Transaction) string { return t.ID },
			func(t Transaction) string { return t.SkillName },
			func(t Transaction) string { return t.BuyerName },
			func(t Transaction) string { return t.SellerName },
			func(t Transaction) string { return t.Tier },
		},
		Filters: []listview.Filter[Transaction]{{Name: "all", Label: "All"}},
		Facet:   func(t Transaction) string { return t.Status },
		Sorts: []listview.Sort[Transaction]{
			{Name: "date-desc", Label: "Newest", Compare: listview.Descending(listview.ByTime(created))},
			{Name: "date-asc", Label: "Oldest", Compare: listview.ByTime(created)},
			{Name: "amount-desc", Label: "Largest", Compare: listview.Descending(listview.ByInt(amount))},
			{Name: "amount-asc", Label: "Smallest", Compare: listview.ByInt(amount)},
		},
		DefaultSort: "date-desc",
		Logger:      o.logger,
	})
	return t
}

func (t *Transactions) fetch(ctx context.Context) ([]Transaction, error) {
	txs, price, err := FetchTransactions(ctx, t.backend)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.fetched = price
	t.mu.Unlock()
	return txs, nil
}

// Load refreshes the list and the BTC price. A stale or failed load leaves
// the price alone.
func (t *Transactions) Load(ctx context.Context) error {
	if err := t.Reload(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	t.price = t.fetched
	t.mu.Unlock()
	return nil
}

// BTCPrice is the price seen by the last successful load, or 0.
func (t *Transactions) BTCPrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.price
}

// Revenue summarizes every loaded transaction, ignoring search and facet.
func (t *Transactions) Revenue() Revenue {
	return Summarize(t.Items(), t.BTCPrice())
}

// ExportCSV writes every loaded transaction to dir and returns the file path.
func (t *Transactions) ExportCSV(dir string) (string, error) {
	txs := t.Items()
	path, err := export.ExportToFile(TransactionsDocument(txs), export.NewCSVExporter(),
		&export.Options{OutputDir: dir, Now: t.opts.now})
	if err != nil {
		return "", fmt.Errorf("export transactions: %w", err)
	}
	t.backend.Audit("export_transactions", fmt.Sprintf("Exported %d transactions as CSV", len(txs)))
	t.opts.logger.Info("TRANSACTIONS_EXPORTED", zap.Int("count", len(txs)), zap.String("path", path))
	return path, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
