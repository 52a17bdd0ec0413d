// Package commands turns loosely typed argument bags into typed commands and
// dispatches them against the record store and the aggregation engine.
package commands

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dvloznov/ledger-assistant/internal/aggregate"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/shopspring/decimal"
)

// Command names.
const (
	NameAddTransaction    = "add_transaction"
	NameAddTransactions   = "add_transactions"
	NameUpdateTransaction = "update_transaction"
	NameDeleteTransaction = "delete_transaction"
	NameListTransactions  = "list_transactions"
	NameGetTotal          = "get_total"
	NameGetAverage        = "get_average"
	NameListNotes         = "list_notes"
	NameListCategories    = "list_categories"
	NameCategoryBreakdown = "category_breakdown"
	NameExportData        = "export_data"
	NameAIAnalyze         = "ai_analyze"
)

// Command is one validated, typed request.
type Command interface {
	Name() string
}

type AddTransaction struct {
	Record ledger.Input
}

type AddTransactions struct {
	Records []ledger.Input
}

type UpdateTransaction struct {
	Patch ledger.Patch
}

type DeleteTransaction struct {
	ID *int64
}

type ListTransactions struct {
	Filter aggregate.Filter
	Limit  int
	Offset int
}

type GetTotal struct {
	Filter aggregate.Filter
}

type GetAverage struct {
	Filter aggregate.Filter
}

type ListNotes struct {
	Filter aggregate.Filter
}

type ListCategories struct {
	Filter aggregate.Filter
}

type CategoryBreakdown struct {
	Filter aggregate.Filter
}

type ExportData struct {
	Format aggregate.Format
	Filter aggregate.Filter
}

// AIAnalyze asks the analyst a question about the filtered rows.
type AIAnalyze struct {
	Question string
	Filter   aggregate.Filter
}

func (AddTransaction) Name() string    { return NameAddTransaction }
func (AddTransactions) Name() string   { return NameAddTransactions }
func (UpdateTransaction) Name() string { return NameUpdateTransaction }
func (DeleteTransaction) Name() string { return NameDeleteTransaction }
func (ListTransactions) Name() string  { return NameListTransactions }
func (GetTotal) Name() string          { return NameGetTotal }
func (GetAverage) Name() string        { return NameGetAverage }
func (ListNotes) Name() string         { return NameListNotes }
func (ListCategories) Name() string    { return NameListCategories }
func (CategoryBreakdown) Name() string { return NameCategoryBreakdown }
func (ExportData) Name() string        { return NameExportData }
func (AIAnalyze) Name() string         { return NameAIAnalyze }

// Parameter kinds used in the catalog.
const (
	KindString  = "string"
	KindNumber  = "number"
	KindInteger = "integer"
	KindArray   = "array"
)

// Param describes one named argument of a command.
type Param struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Items       []Param  `json:"items,omitempty"` // element fields when Kind is array
}

// Spec describes a command for callers that build requests, such as the LLM
// tool declarations.
type Spec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

var filterParams = []Param{
	{Name: "type", Kind: KindString, Description: "Only include transactions of this type.", Enum: typeNames()},
	{Name: "month", Kind: KindInteger, Description: "Only include transactions in this month (1-12)."},
	{Name: "year", Kind: KindInteger, Description: "Only include transactions in this year, e.g. 2024."},
}

var recordParams = []Param{
	{Name: "type", Kind: KindString, Description: "Transaction type.", Required: true, Enum: typeNames()},
	{Name: "amount", Kind: KindNumber, Description: "Amount of money. The sign is derived from the type.", Required: true},
	{Name: "note", Kind: KindString, Description: "Short memo describing the transaction."},
	{Name: "category", Kind: KindString, Description: "Spending or income category."},
	{Name: "date", Kind: KindString, Description: "Date of the transaction, YYYY-MM-DD.", Required: true},
}

func withFilter(params ...Param) []Param {
	return append(params, filterParams...)
}

func typeNames() []string {
	out := make([]string, 0, len(domain.Types))
	for _, t := range domain.Types {
		out = append(out, string(t))
	}
	return out
}

func formatNames() []string {
	out := make([]string, 0, len(aggregate.Formats))
	for _, f := range aggregate.Formats {
		out = append(out, string(f))
	}
	return out
}

var catalog = []Spec{
	{
		Name:        NameAddTransaction,
		Description: "Record a single expense or payment.",
		Params:      recordParams,
	},
	{
		Name:        NameAddTransactions,
		Description: "Record several transactions at once. Either all are stored or none.",
		Params: []Param{
			{Name: "records", Kind: KindArray, Description: "Transactions to record.", Required: true, Items: recordParams},
		},
	},
	{
		Name:        NameUpdateTransaction,
		Description: "Change fields of an existing transaction. Without an id the latest transaction is changed.",
		Params: []Param{
			{Name: "id", Kind: KindInteger, Description: "Id of the transaction to change."},
			{Name: "type", Kind: KindString, Description: "New type.", Enum: typeNames()},
			{Name: "amount", Kind: KindNumber, Description: "New amount."},
			{Name: "note", Kind: KindString, Description: "New memo."},
			{Name: "category", Kind: KindString, Description: "New category."},
			{Name: "date", Kind: KindString, Description: "New date, YYYY-MM-DD."},
		},
	},
	{
		Name:        NameDeleteTransaction,
		Description: "Delete a transaction. Without an id the latest transaction is deleted.",
		Params: []Param{
			{Name: "id", Kind: KindInteger, Description: "Id of the transaction to delete."},
		},
	},
	{
		Name:        NameListTransactions,
		Description: "List transactions, optionally filtered and paginated.",
		Params: withFilter(
			Param{Name: "limit", Kind: KindInteger, Description: "Maximum number of transactions to return."},
			Param{Name: "offset", Kind: KindInteger, Description: "Number of matching transactions to skip."},
		),
	},
	{
		Name:        NameGetTotal,
		Description: "Sum of amounts. Expenses are negative, payments positive.",
		Params:      withFilter(),
	},
	{
		Name:        NameGetAverage,
		Description: "Average amount per transaction, rounded to cents.",
		Params:      withFilter(),
	},
	{
		Name:        NameListNotes,
		Description: "Distinct transaction memos.",
		Params:      withFilter(),
	},
	{
		Name:        NameListCategories,
		Description: "Distinct transaction categories.",
		Params:      withFilter(),
	},
	{
		Name:        NameCategoryBreakdown,
		Description: "Totals and counts per category.",
		Params:      withFilter(),
	},
	{
		Name:        NameExportData,
		Description: "Export transactions as json, csv or rows.",
		Params: withFilter(
			Param{Name: "format", Kind: KindString, Description: "Export format.", Required: true, Enum: formatNames()},
		),
	},
	{
		Name:        NameAIAnalyze,
		Description: "Answer an open question about the spending data, for example trends or advice.",
		Params: withFilter(
			Param{Name: "question", Kind: KindString, Description: "The question to answer.", Required: true},
		),
	},
}

// Catalog returns every command spec in a stable order.
func Catalog() []Spec {
	out := make([]Spec, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the spec for name.
func Lookup(name string) (Spec, bool) {
	for _, s := range catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// Parse validates args against the named command and builds the typed value.
// Unknown fields, wrong scalar types and missing required fields are
// validation errors.
func Parse(name string, args map[string]any) (Command, error) {
	spec, ok := Lookup(name)
	if !ok {
		return nil, domain.E(domain.KindUnknownCommand, "Parse", "unknown command %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := checkFields(args, spec.Params); err != nil {
		return nil, domain.Wrap(domain.KindValidation, name, err)
	}

	cmd, err := build(name, args)
	if err != nil {
		return nil, withKind(name, err)
	}
	return cmd, nil
}

func build(name string, args map[string]any) (Command, error) {
	switch name {
	case NameAddTransaction:
		in, err := parseRecord(args)
		if err != nil {
			return nil, err
		}
		return AddTransaction{Record: in}, nil

	case NameAddTransactions:
		raw, ok := args["records"]
		if !ok {
			return nil, fmt.Errorf("missing required field %q", "records")
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("field %q has type %T, want array", "records", raw)
		}
		items, _ := Lookup(NameAddTransactions)
		records := make([]ledger.Input, 0, len(list))
		for i, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("record %d is %T, want object", i+1, item)
			}
			if err := checkFields(obj, items.Params[0].Items); err != nil {
				return nil, fmt.Errorf("record %d: %w", i+1, err)
			}
			in, err := parseRecord(obj)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i+1, err)
			}
			records = append(records, in)
		}
		return AddTransactions{Records: records}, nil

	case NameUpdateTransaction:
		var p ledger.Patch
		var err error
		if p.ID, err = getOptionalIntField(args, "id"); err != nil {
			return nil, err
		}
		if p.Type, err = getOptionalStringField(args, "type"); err != nil {
			return nil, err
		}
		if p.Amount, err = getOptionalAmountField(args, "amount"); err != nil {
			return nil, err
		}
		if p.Note, err = getOptionalStringField(args, "note"); err != nil {
			return nil, err
		}
		if p.Category, err = getOptionalStringField(args, "category"); err != nil {
			return nil, err
		}
		if p.Date, err = getOptionalStringField(args, "date"); err != nil {
			return nil, err
		}
		return UpdateTransaction{Patch: p}, nil

	case NameDeleteTransaction:
		id, err := getOptionalIntField(args, "id")
		if err != nil {
			return nil, err
		}
		return DeleteTransaction{ID: id}, nil

	case NameExportData:
		format, err := getStringField(args, "format", true)
		if err != nil {
			return nil, err
		}
		f, err := parseFilter(args)
		if err != nil {
			return nil, err
		}
		return ExportData{Format: aggregate.Format(strings.ToLower(strings.TrimSpace(format))), Filter: f}, nil

	case NameAIAnalyze:
		q, err := getStringField(args, "question", true)
		if err != nil {
			return nil, err
		}
		f, err := parseFilter(args)
		if err != nil {
			return nil, err
		}
		return AIAnalyze{Question: strings.TrimSpace(q), Filter: f}, nil
	}

	f, err := parseFilter(args)
	if err != nil {
		return nil, err
	}
	switch name {
	case NameListTransactions:
		limit, err := getOptionalIntField(args, "limit")
		if err != nil {
			return nil, err
		}
		offset, err := getOptionalIntField(args, "offset")
		if err != nil {
			return nil, err
		}
		cmd := ListTransactions{Filter: f}
		if limit != nil {
			if *limit < 0 {
				return nil, fmt.Errorf("field %q must not be negative", "limit")
			}
			cmd.Limit = int(*limit)
		}
		if offset != nil {
			if *offset < 0 {
				return nil, fmt.Errorf("field %q must not be negative", "offset")
			}
			cmd.Offset = int(*offset)
		}
		return cmd, nil
	case NameGetTotal:
		return GetTotal{Filter: f}, nil
	case NameGetAverage:
		return GetAverage{Filter: f}, nil
	case NameListNotes:
		return ListNotes{Filter: f}, nil
	case NameListCategories:
		return ListCategories{Filter: f}, nil
	case NameCategoryBreakdown:
		return CategoryBreakdown{Filter: f}, nil
	}
	return nil, domain.E(domain.KindUnknownCommand, "Parse", "unknown command %q", name)
}

func parseRecord(m map[string]any) (ledger.Input, error) {
	typ, err := getStringField(m, "type", true)
	if err != nil {
		return ledger.Input{}, err
	}
	amount, err := getOptionalAmountField(m, "amount")
	if err != nil {
		return ledger.Input{}, err
	}
	if amount == nil {
		return ledger.Input{}, fmt.Errorf("missing required field %q", "amount")
	}
	note, err := getStringField(m, "note", false)
	if err != nil {
		return ledger.Input{}, err
	}
	category, err := getStringField(m, "category", false)
	if err != nil {
		return ledger.Input{}, err
	}
	date, err := getStringField(m, "date", true)
	if err != nil {
		return ledger.Input{}, err
	}
	return ledger.Input{Type: typ, Amount: *amount, Note: note, Category: category, Date: date}, nil
}

func parseFilter(m map[string]any) (aggregate.Filter, error) {
	var f aggregate.Filter
	typ, err := getOptionalStringField(m, "type")
	if err != nil {
		return f, err
	}
	if typ != nil && strings.TrimSpace(*typ) != "" {
		parsed, err := domain.ParseType(*typ)
		if err != nil {
			return f, err
		}
		f.Type = parsed
	}
	month, err := getOptionalIntField(m, "month")
	if err != nil {
		return f, err
	}
	if month != nil {
		f.Month = int(*month)
	}
	year, err := getOptionalIntField(m, "year")
	if err != nil {
		return f, err
	}
	if year != nil {
		f.Year = int(*year)
	}
	return f, f.Validate()
}

// checkFields rejects keys the command does not declare.
func checkFields(m map[string]any, params []Param) error {
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.Name] = true
	}
	var unknown []string
	for k := range m {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown field(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}

// withKind tags plain errors as validation errors and keeps domain errors as
// they are.
func withKind(op string, err error) error {
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}
	return domain.Wrap(domain.KindValidation, op, err)
}

func getStringField(m map[string]any, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	val, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
	if required && strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("required field %q is empty", key)
	}
	return val, nil
}

func getOptionalStringField(m map[string]any, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	val, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("field %q has type %T, want string", key, v)
	}
	return &val, nil
}

// getOptionalAmountField accepts numbers or numeric strings and returns the
// amount as text for the store to validate.
func getOptionalAmountField(m map[string]any, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case float64:
		s = decimal.NewFromFloat(val).String()
	case float32:
		s = decimal.NewFromFloat32(val).String()
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case json.Number:
		s = val.String()
	case decimal.Decimal:
		s = val.String()
	default:
		return nil, fmt.Errorf("field %q has type %T, want number", key, v)
	}
	return &s, nil
}

func getOptionalIntField(m map[string]any, key string) (*int64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	var n int64
	switch val := v.(type) {
	case int:
		n = int64(val)
	case int64:
		n = val
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("field %q must be an integer, got %v", key, val)
		}
		if math.Abs(val) >= math.MaxInt64 {
			return nil, fmt.Errorf("field %q is out of range, got %v", key, val)
		}
		n = int64(val)
	case json.Number:
		parsed, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("field %q must be an integer, got %s", key, val)
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q must be an integer, got %q", key, val)
		}
		n = parsed
	default:
		return nil, fmt.Errorf("field %q has type %T, want integer", key, v)
	}
	return &n, nil
}
