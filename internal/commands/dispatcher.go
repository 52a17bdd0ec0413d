package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-assistant/internal/aggregate"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/rs/zerolog"
)

// Store is the subset of the record store the dispatcher mutates.
type Store interface {
	aggregate.Source
	Insert(in ledger.Input) (domain.Transaction, error)
	BatchInsert(ins []ledger.Input) ([]int64, error)
	Update(p ledger.Patch) (domain.Transaction, error)
	Delete(id *int64) (domain.Transaction, error)
}

// Analyst answers free-text questions about a CSV snapshot.
type Analyst interface {
	Analyze(ctx context.Context, question, csv string) (string, error)
}

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the uniform result of a dispatched command.
type Envelope struct {
	Status  string      `json:"status"`
	Command string      `json:"command,omitempty"`
	Result  any         `json:"result,omitempty"`
	Message string      `json:"message,omitempty"`
	Kind    domain.Kind `json:"kind,omitempty"`
}

// OK reports whether the command succeeded.
func (e Envelope) OK() bool {
	return e.Status == StatusSuccess
}

type handlerFunc func(ctx context.Context, cmd Command) (any, error)

// Dispatcher maps command names to handlers.
type Dispatcher struct {
	store    Store
	engine   *aggregate.Engine
	analyst  Analyst
	handlers map[string]handlerFunc
	log      zerolog.Logger
}

// NewDispatcher wires every catalog command to its handler. analyst may be
// nil, in which case ai_analyze fails with an upstream error.
func NewDispatcher(store Store, analyst Analyst, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		engine:  aggregate.NewEngine(store),
		analyst: analyst,
		log:     log,
	}
	d.handlers = map[string]handlerFunc{
		NameAddTransaction:    d.addTransaction,
		NameAddTransactions:   d.addTransactions,
		NameUpdateTransaction: d.updateTransaction,
		NameDeleteTransaction: d.deleteTransaction,
		NameListTransactions:  d.listTransactions,
		NameGetTotal:          d.getTotal,
		NameGetAverage:        d.getAverage,
		NameListNotes:         d.listNotes,
		NameListCategories:    d.listCategories,
		NameCategoryBreakdown: d.categoryBreakdown,
		NameExportData:        d.exportData,
		NameAIAnalyze:         d.aiAnalyze,
	}
	return d
}

// Names returns the registered command names in catalog order.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.handlers))
	for _, s := range catalog {
		if _, ok := d.handlers[s.Name]; ok {
			out = append(out, s.Name)
		}
	}
	return out
}

// Dispatch resolves name, validates args and runs the handler. Unknown names
// are rejected before any argument is looked at.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) Envelope {
	name = strings.TrimSpace(name)
	h, ok := d.handlers[name]
	if !ok {
		return d.fail(name, domain.E(domain.KindUnknownCommand, "Dispatch", "unknown command %q", name))
	}

	cmd, err := Parse(name, args)
	if err != nil {
		return d.fail(name, err)
	}

	return d.run(ctx, h, cmd)
}

// Execute runs an already typed command.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) Envelope {
	h, ok := d.handlers[cmd.Name()]
	if !ok {
		return d.fail(cmd.Name(), domain.E(domain.KindUnknownCommand, "Dispatch", "unknown command %q", cmd.Name()))
	}
	return d.run(ctx, h, cmd)
}

func (d *Dispatcher) run(ctx context.Context, h handlerFunc, cmd Command) Envelope {
	result, err := h(ctx, cmd)
	if err != nil {
		return d.fail(cmd.Name(), err)
	}
	d.log.Debug().Str("command", cmd.Name()).Msg("Command executed")
	return Envelope{Status: StatusSuccess, Command: cmd.Name(), Result: result}
}

func (d *Dispatcher) fail(name string, err error) Envelope {
	kind := domain.KindOf(err)
	d.log.Warn().Err(err).Str("command", name).Str("kind", string(kind)).Msg("Command failed")
	return Envelope{Status: StatusError, Command: name, Message: err.Error(), Kind: kind}
}

func (d *Dispatcher) addTransaction(_ context.Context, cmd Command) (any, error) {
	c := cmd.(AddTransaction)
	return d.store.Insert(c.Record)
}

func (d *Dispatcher) addTransactions(_ context.Context, cmd Command) (any, error) {
	c := cmd.(AddTransactions)
	ids, err := d.store.BatchInsert(c.Records)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ids": ids, "count": len(ids)}, nil
}

func (d *Dispatcher) updateTransaction(_ context.Context, cmd Command) (any, error) {
	c := cmd.(UpdateTransaction)
	return d.store.Update(c.Patch)
}

func (d *Dispatcher) deleteTransaction(_ context.Context, cmd Command) (any, error) {
	c := cmd.(DeleteTransaction)
	return d.store.Delete(c.ID)
}

func (d *Dispatcher) listTransactions(_ context.Context, cmd Command) (any, error) {
	c := cmd.(ListTransactions)
	rows, err := d.engine.Select(c.Filter)
	if err != nil {
		return nil, err
	}
	return Page(rows, c.Limit, c.Offset), nil
}

func (d *Dispatcher) getTotal(_ context.Context, cmd Command) (any, error) {
	return d.engine.Total(cmd.(GetTotal).Filter)
}

func (d *Dispatcher) getAverage(_ context.Context, cmd Command) (any, error) {
	return d.engine.Average(cmd.(GetAverage).Filter)
}

func (d *Dispatcher) listNotes(_ context.Context, cmd Command) (any, error) {
	return d.engine.DistinctNotes(cmd.(ListNotes).Filter)
}

func (d *Dispatcher) listCategories(_ context.Context, cmd Command) (any, error) {
	return d.engine.DistinctCategories(cmd.(ListCategories).Filter)
}

func (d *Dispatcher) categoryBreakdown(_ context.Context, cmd Command) (any, error) {
	return d.engine.CategoryBreakdown(cmd.(CategoryBreakdown).Filter)
}

func (d *Dispatcher) exportData(_ context.Context, cmd Command) (any, error) {
	c := cmd.(ExportData)
	return d.engine.Export(c.Format, c.Filter)
}

func (d *Dispatcher) aiAnalyze(ctx context.Context, cmd Command) (any, error) {
	c := cmd.(AIAnalyze)

	export, err := d.engine.Export(aggregate.FormatCSV, c.Filter)
	if err != nil {
		return nil, err
	}
	if export.Count == 0 {
		return nil, domain.E(domain.KindNoData, "ai_analyze", "no transactions match the filter")
	}
	if d.analyst == nil {
		return nil, domain.E(domain.KindUpstream, "ai_analyze", "no analyst configured")
	}

	answer, err := d.analyst.Analyze(ctx, c.Question, export.Text)
	if err != nil {
		if domain.KindOf(err) == domain.KindUpstream {
			return nil, err
		}
		return nil, domain.Wrap(domain.KindUpstream, "ai_analyze", fmt.Errorf("analyze: %w", err))
	}
	return answer, nil
}

// Page applies offset and limit to rows. A zero limit returns everything
// after offset.
func Page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
