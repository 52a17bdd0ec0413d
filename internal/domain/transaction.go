package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Type is the categorical tag of a ledger entry.
type Type string

const (
	// TypeExpense marks money going out. Stored amounts are negative.
	TypeExpense Type = "expense"
	// TypePay marks money coming in. Stored amounts are positive.
	TypePay Type = "pay"
)

// Types lists every valid transaction type.
var Types = []Type{TypeExpense, TypePay}

func init() {
	// Amounts go over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Date layouts.
const (
	// DateLayout is the canonical on-disk form.
	DateLayout = "2006-01-02"
	// APIDateLayout is the form used by the REST surface.
	APIDateLayout = "01.02.2006"
)

// inputLayouts are accepted when callers supply a date; anything parsed is
// stored as DateLayout.
var inputLayouts = []string{
	DateLayout,
	APIDateLayout,
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// Transaction represents one ledger entry as held by the record store.
// Amount is signed: expenses are negative, payments positive.
type Transaction struct {
	ID       int64           `json:"id"`
	Type     Type            `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note"`
	Category string          `json:"category"`
	Date     string          `json:"date"` // canonical YYYY-MM-DD, may be empty in legacy files
}

// CivilDate parses the stored date.
func (t Transaction) CivilDate() (civil.Date, error) {
	d, err := civil.ParseDate(t.Date)
	if err != nil {
		return civil.Date{}, &Error{Kind: KindDateParse, Message: fmt.Sprintf("transaction %d has unparsable date %q", t.ID, t.Date), Err: err}
	}
	return d, nil
}

// ParseType validates a transaction type, case-insensitively.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeExpense:
		return TypeExpense, nil
	case TypePay:
		return TypePay, nil
	}
	return "", E(KindValidation, "", "invalid transaction type %q: must be one of expense, pay", s)
}

// MaxAmountDigits bounds both the integer digits of an amount and the
// magnitude of its exponent.
const MaxAmountDigits = 15

// ParseAmount parses a caller-supplied decimal amount and rounds it to the
// two places the backing file stores.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, E(KindInvalidAmount, "", "amount %q must be a valid number", s)
	}
	exp := int(d.Exponent())
	if exp > MaxAmountDigits || exp < -MaxAmountDigits || d.NumDigits()+exp > MaxAmountDigits {
		return decimal.Zero, E(KindInvalidAmount, "", "amount %q is out of range", s)
	}
	return d.Round(2), nil
}

// ParseDate parses a caller-supplied calendar date in any accepted layout.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, E(KindInvalidDate, "", "date %q is not a valid calendar date", s)
}

// SignFor applies the sign convention for typ to amount.
func SignFor(typ Type, amount decimal.Decimal) decimal.Decimal {
	if typ == TypeExpense {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

// TypeForAmount derives the type from a signed amount.
func TypeForAmount(amount decimal.Decimal) Type {
	if amount.IsNegative() {
		return TypeExpense
	}
	return TypePay
}

// Weekday returns the abbreviated weekday of d, e.g. "Mon".
func Weekday(d civil.Date) string {
	return d.In(time.UTC).Weekday().String()[:3]
}

// FormatAPIDate renders d as MM.DD.YYYY.
func FormatAPIDate(d civil.Date) string {
	return d.In(time.UTC).Format(APIDateLayout)
}
