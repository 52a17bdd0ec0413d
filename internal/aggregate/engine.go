// Package aggregate computes read-only views over a ledger snapshot.
package aggregate

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/shopspring/decimal"
)

// Source provides the rows to aggregate. *ledger.Store satisfies it.
type Source interface {
	Snapshot() []domain.Transaction
}

// Filter narrows the rows an aggregation sees. Zero values match everything;
// set fields are combined with AND.
type Filter struct {
	Type  domain.Type `json:"type,omitempty"`
	Month int         `json:"month,omitempty"`
	Year  int         `json:"year,omitempty"`
}

// Validate checks the filter ranges.
func (f Filter) Validate() error {
	if f.Type != "" && f.Type != domain.TypeExpense && f.Type != domain.TypePay {
		return domain.E(domain.KindValidation, "Filter", "invalid type %q: must be one of expense, pay", f.Type)
	}
	if f.Month < 0 || f.Month > 12 {
		return domain.E(domain.KindValidation, "Filter", "invalid month %d: must be between 1 and 12", f.Month)
	}
	if f.Year < 0 {
		return domain.E(domain.KindValidation, "Filter", "invalid year %d", f.Year)
	}
	return nil
}

// Format selects an export rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatRows Format = "rows"
)

// Formats lists every supported export format.
var Formats = []Format{FormatJSON, FormatCSV, FormatRows}

// Export is the result of an export. Text holds json/csv output, Rows holds
// the rows rendering.
type Export struct {
	Format Format           `json:"format"`
	Text   string           `json:"text,omitempty"`
	Rows   []map[string]any `json:"rows,omitempty"`
	Count  int              `json:"count"`
}

// CategoryTotal is one line of a category breakdown.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// Engine answers aggregation queries; it never mutates its source.
type Engine struct {
	src Source
}

// NewEngine creates an engine over src.
func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// Select returns the rows matching f, in id order. A month or year filter over
// a row with an unparsable date fails the whole call.
func (e *Engine) Select(f Filter) ([]domain.Transaction, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	rows := e.src.Snapshot()
	out := make([]domain.Transaction, 0, len(rows))
	for _, tx := range rows {
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.Month != 0 || f.Year != 0 {
			d, err := tx.CivilDate()
			if err != nil {
				return nil, err
			}
			if f.Month != 0 && int(d.Month) != f.Month {
				continue
			}
			if f.Year != 0 && d.Year != f.Year {
				continue
			}
		}
		out = append(out, tx)
	}
	return out, nil
}

// Total sums amounts over the matching rows; 0 when none match.
func (e *Engine) Total(f Filter) (decimal.Decimal, error) {
	rows, err := e.Select(f)
	if err != nil {
		return decimal.Zero, err
	}
	return sum(rows), nil
}

// Average is the mean amount over the matching rows, rounded to cents.
// It is exactly 0 when nothing matches.
func (e *Engine) Average(f Filter) (decimal.Decimal, error) {
	rows, err := e.Select(f)
	if err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return sum(rows).Div(decimal.NewFromInt(int64(len(rows)))).Round(2), nil
}

// DistinctNotes lists unique non-empty notes in first-seen order.
func (e *Engine) DistinctNotes(f Filter) ([]string, error) {
	return e.distinct(f, func(tx domain.Transaction) string { return tx.Note })
}

// DistinctCategories lists unique non-empty categories in first-seen order.
func (e *Engine) DistinctCategories(f Filter) ([]string, error) {
	return e.distinct(f, func(tx domain.Transaction) string { return tx.Category })
}

// CategoryBreakdown sums amounts per category in first-seen order. Rows
// without a category are grouped under "Uncategorized".
func (e *Engine) CategoryBreakdown(f Filter) ([]CategoryTotal, error) {
	rows, err := e.Select(f)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	out := []CategoryTotal{}
	for _, tx := range rows {
		cat := strings.TrimSpace(tx.Category)
		if cat == "" {
			cat = "Uncategorized"
		}
		i, ok := index[cat]
		if !ok {
			i = len(out)
			index[cat] = i
			out = append(out, CategoryTotal{Category: cat, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
		out[i].Count++
	}
	return out, nil
}

// Export renders the matching rows in the requested format.
func (e *Engine) Export(format Format, f Filter) (*Export, error) {
	switch format {
	case FormatJSON, FormatCSV, FormatRows:
	default:
		return nil, domain.E(domain.KindInvalidFormat, "Export", "invalid format %q: must be one of json, csv, rows", format)
	}

	rows, err := e.Select(f)
	if err != nil {
		return nil, err
	}

	out := &Export{Format: format, Count: len(rows)}
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		if err := ledger.Encode(&buf, rows); err != nil {
			return nil, err
		}
		out.Text = buf.String()
	case FormatJSON:
		data, err := json.Marshal(RowsOf(rows))
		if err != nil {
			return nil, err
		}
		out.Text = string(data)
	case FormatRows:
		out.Rows = RowsOf(rows)
	}
	return out, nil
}

// RowsOf converts transactions to maps with native scalar values.
func RowsOf(rows []domain.Transaction) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, tx := range rows {
		out = append(out, map[string]any{
			"id":       tx.ID,
			"type":     string(tx.Type),
			"amount":   tx.Amount.Round(2).InexactFloat64(),
			"note":     tx.Note,
			"category": tx.Category,
			"date":     tx.Date,
		})
	}
	return out
}

func (e *Engine) distinct(f Filter, key func(domain.Transaction) string) ([]string, error) {
	rows, err := e.Select(f)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, tx := range rows {
		v := strings.TrimSpace(key(tx))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

func sum(rows []domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range rows {
		total = total.Add(tx.Amount)
	}
	return total
}
