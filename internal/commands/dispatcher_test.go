package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/ledger-assistant/internal/aggregate"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

const fixture = `id,type,amount,note,category,date
1,expense,-45.00,Lunch,Food,2023-10-01
2,pay,1500.00,Salary,Income,2023-10-15
3,expense,-12.50,Bus,Transport,2023-11-02
`

func newTestStore(t *testing.T) (*ledger.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := ledger.Load(path, testLogger())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s, path
}

// spyStore counts every call that reaches the store.
type spyStore struct {
	Store
	calls int
}

func (s *spyStore) Snapshot() []domain.Transaction {
	s.calls++
	return s.Store.Snapshot()
}

func (s *spyStore) Insert(in ledger.Input) (domain.Transaction, error) {
	s.calls++
	return s.Store.Insert(in)
}

func (s *spyStore) BatchInsert(ins []ledger.Input) ([]int64, error) {
	s.calls++
	return s.Store.BatchInsert(ins)
}

func (s *spyStore) Update(p ledger.Patch) (domain.Transaction, error) {
	s.calls++
	return s.Store.Update(p)
}

func (s *spyStore) Delete(id *int64) (domain.Transaction, error) {
	s.calls++
	return s.Store.Delete(id)
}

// mockAnalyst is a hand-written Analyst.
type mockAnalyst struct {
	AnalyzeFunc func(ctx context.Context, question, csv string) (string, error)
	question    string
	csv         string
}

func (m *mockAnalyst) Analyze(ctx context.Context, question, csv string) (string, error) {
	m.question = question
	m.csv = csv
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, question, csv)
	}
	return "Spend less on lunch.", nil
}

func TestDispatchUnknownCommand(t *testing.T) {
	store, path := newTestStore(t)
	spy := &spyStore{Store: store}
	d := NewDispatcher(spy, nil, testLogger())

	env := d.Dispatch(context.Background(), "drop_everything", map[string]any{"id": 1})

	if env.OK() || env.Kind != domain.KindUnknownCommand {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if spy.calls != 0 {
		t.Errorf("store was called %d times", spy.calls)
	}
	data, _ := os.ReadFile(path)
	if string(data) != fixture {
		t.Error("backing file changed")
	}
}

func TestDispatchAddTransaction(t *testing.T) {
	store, _ := newTestStore(t)
	d := NewDispatcher(store, nil, testLogger())

	env := d.Dispatch(context.Background(), NameAddTransaction, map[string]any{
		"type": "expense", "amount": 20.0, "note": "Cinema", "date": "2023-11-05",
	})
	if !env.OK() {
		t.Fatalf("dispatch failed: %+v", env)
	}
	tx := env.Result.(domain.Transaction)
	if tx.ID != 4 || tx.Amount.StringFixed(2) != "-20.00" {
		t.Errorf("unexpected result: %+v", tx)
	}
	if store.Len() != 4 {
		t.Errorf("Len = %d", store.Len())
	}
}

func TestDispatchBatchFailureIsAnEnvelope(t *testing.T) {
	store, path := newTestStore(t)
	d := NewDispatcher(store, nil, testLogger())

	env := d.Dispatch(context.Background(), NameAddTransactions, map[string]any{
		"records": []any{
			map[string]any{"type": "pay", "amount": 100, "note": "Paycheck", "category": "Salary", "date": "2024-01-15"},
			map[string]any{"type": "expense", "amount": "abc", "date": "2024-01-16"},
		},
	})

	if env.OK() || env.Kind != domain.KindValidation {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if !strings.Contains(env.Message, "record 2") {
		t.Errorf("message should name record 2: %q", env.Message)
	}
	if store.Len() != 3 {
		t.Errorf("first record must not be kept, Len = %d", store.Len())
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "Paycheck") {
		t.Error("first record was persisted")
	}
}

func TestDispatchSingleRecordFailureIsAnEnvelope(t *testing.T) {
	store, _ := newTestStore(t)
	d := NewDispatcher(store, nil, testLogger())

	env := d.Dispatch(context.Background(), NameDeleteTransaction, map[string]any{"id": 99})
	if env.OK() || env.Kind != domain.KindNotFound {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	env = d.Dispatch(context.Background(), NameAddTransaction, map[string]any{
		"type": "expense", "amount": "twelve", "date": "2024-01-01",
	})
	if env.Kind != domain.KindInvalidAmount {
		t.Errorf("expected invalid_amount, got %+v", env)
	}
}

func TestDispatchQueries(t *testing.T) {
	store, _ := newTestStore(t)
	d := NewDispatcher(store, nil, testLogger())
	ctx := context.Background()

	total := d.Dispatch(ctx, NameGetTotal, map[string]any{"type": "expense"})
	if got := total.Result.(decimal.Decimal).StringFixed(2); got != "-57.50" {
		t.Errorf("total = %s", got)
	}

	avg := d.Dispatch(ctx, NameGetAverage, map[string]any{"year": 1999})
	if !avg.OK() || !avg.Result.(decimal.Decimal).IsZero() {
		t.Errorf("average of nothing = %+v", avg)
	}

	list := d.Dispatch(ctx, NameListTransactions, map[string]any{"limit": 1, "offset": 1})
	rows := list.Result.([]domain.Transaction)
	if len(rows) != 1 || rows[0].ID != 2 {
		t.Errorf("page = %+v", rows)
	}

	cats := d.Dispatch(ctx, NameListCategories, nil)
	if got := strings.Join(cats.Result.([]string), ","); got != "Food,Income,Transport" {
		t.Errorf("categories = %s", got)
	}

	export := d.Dispatch(ctx, NameExportData, map[string]any{"format": "xml"})
	if export.Kind != domain.KindInvalidFormat {
		t.Errorf("expected invalid_format, got %+v", export)
	}

	breakdown := d.Dispatch(ctx, NameCategoryBreakdown, map[string]any{"month": 10})
	if lines := breakdown.Result.([]aggregate.CategoryTotal); len(lines) != 2 {
		t.Errorf("breakdown = %+v", lines)
	}
}

func TestDispatchAIAnalyze(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		analyst := &mockAnalyst{}
		d := NewDispatcher(store, analyst, testLogger())

		env := d.Dispatch(ctx, NameAIAnalyze, map[string]any{"question": "How is my spending?", "type": "expense"})
		if !env.OK() || env.Result != "Spend less on lunch." {
			t.Fatalf("unexpected envelope: %+v", env)
		}
		if !strings.HasPrefix(analyst.csv, "id,type,amount,note,category,date\n") || strings.Contains(analyst.csv, "Salary") {
			t.Errorf("analyst got wrong csv: %q", analyst.csv)
		}
	})

	t.Run("no data", func(t *testing.T) {
		analyst := &mockAnalyst{}
		d := NewDispatcher(store, analyst, testLogger())

		env := d.Dispatch(ctx, NameAIAnalyze, map[string]any{"question": "Anything?", "year": 1999})
		if env.Kind != domain.KindNoData {
			t.Errorf("expected no_data, got %+v", env)
		}
		if analyst.question != "" {
			t.Error("analyst must not be called without data")
		}
	})

	t.Run("upstream failure", func(t *testing.T) {
		analyst := &mockAnalyst{AnalyzeFunc: func(context.Context, string, string) (string, error) {
			return "", errors.New("deadline exceeded")
		}}
		d := NewDispatcher(store, analyst, testLogger())

		env := d.Dispatch(ctx, NameAIAnalyze, map[string]any{"question": "Why?"})
		if env.Kind != domain.KindUpstream {
			t.Errorf("expected upstream_error, got %+v", env)
		}
	})

	t.Run("no analyst", func(t *testing.T) {
		d := NewDispatcher(store, nil, testLogger())
		env := d.Dispatch(ctx, NameAIAnalyze, map[string]any{"question": "Why?"})
		if env.Kind != domain.KindUpstream {
			t.Errorf("expected upstream_error, got %+v", env)
		}
	})
}

func TestExecuteTypedCommand(t *testing.T) {
	store, _ := newTestStore(t)
	d := NewDispatcher(store, nil, testLogger())

	env := d.Execute(context.Background(), DeleteTransaction{})
	if !env.OK() {
		t.Fatalf("Execute failed: %+v", env)
	}
	if removed := env.Result.(domain.Transaction); removed.ID != 3 {
		t.Errorf("deleted id %d, want latest (3)", removed.ID)
	}
}

func TestPage(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5}
	if got := Page(rows, 2, 1); len(got) != 2 || got[0] != 2 {
		t.Errorf("Page(2,1) = %v", got)
	}
	if got := Page(rows, 0, 3); len(got) != 2 {
		t.Errorf("Page(0,3) = %v", got)
	}
	if got := Page(rows, 10, 10); len(got) != 0 {
		t.Errorf("Page(10,10) = %v", got)
	}
}
