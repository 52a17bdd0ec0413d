// Package warehouse mirrors the ledger into a BigQuery table and reads
// monthly reports back out of it.
package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MonthlySummary is one month of the warehouse report.
type MonthlySummary struct {
	Month    string          `json:"month"`
	Expenses decimal.Decimal `json:"expenses"`
	Payments decimal.Decimal `json:"payments"`
	Net      decimal.Decimal `json:"net"`
	Count    int64           `json:"count"`
}

// Warehouse loads snapshots through a Repository.
type Warehouse struct {
	repo Repository
	log  zerolog.Logger
}

// New creates a warehouse over repo.
func New(repo Repository, log zerolog.Logger) *Warehouse {
	return &Warehouse{repo: repo, log: log}
}

// Close releases the repository.
func (w *Warehouse) Close() error {
	return w.repo.Close()
}

// Mirror replaces the table contents with rows.
func (w *Warehouse) Mirror(ctx context.Context, rows []domain.Transaction) (string, error) {
	if len(rows) == 0 {
		return "", domain.E(domain.KindEmptyStore, "Warehouse", "no data to load")
	}

	var buf bytes.Buffer
	if err := ledger.Encode(&buf, rows); err != nil {
		return "", fmt.Errorf("Warehouse: %w", err)
	}

	if err := w.repo.LoadCSV(ctx, buf.Bytes()); err != nil {
		return "", domain.Wrap(domain.KindUpstream, "Warehouse", err)
	}

	table := w.repo.Table()
	w.log.Info().Str("table", table).Int("rows", len(rows)).Msg("Ledger loaded into BigQuery")
	return fmt.Sprintf("%s (%d rows)", table, len(rows)), nil
}

// MonthlyReport folds the per-type totals into one summary per month, oldest
// first.
func (w *Warehouse) MonthlyReport(ctx context.Context) ([]MonthlySummary, error) {
	rows, err := w.repo.MonthlyTotals(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.KindUpstream, "MonthlyReport", err)
	}
	return summarize(rows)
}

func summarize(rows []MonthlyRow) ([]MonthlySummary, error) {
	byMonth := make(map[string]*MonthlySummary)
	for _, r := range rows {
		total, err := decimal.NewFromString(r.Total)
		if err != nil {
			return nil, domain.E(domain.KindParse, "MonthlyReport", "month %s: bad total %q", r.Month, r.Total)
		}

		s, ok := byMonth[r.Month]
		if !ok {
			s = &MonthlySummary{Month: r.Month}
			byMonth[r.Month] = s
		}
		switch domain.Type(r.Type) {
		case domain.TypeExpense:
			s.Expenses = s.Expenses.Add(total)
		case domain.TypePay:
			s.Payments = s.Payments.Add(total)
		}
		s.Net = s.Net.Add(total)
		s.Count += r.Count
	}

	out := make([]MonthlySummary, 0, len(byMonth))
	for _, s := range byMonth {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}
