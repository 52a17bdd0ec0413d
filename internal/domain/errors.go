package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error so transports can map it to a status code or an
// envelope without inspecting messages.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindSchema         Kind = "schema_error"
	KindParse          Kind = "parse_error"
	KindDateParse      Kind = "date_parse_error"
	KindInvalidAmount  Kind = "invalid_amount"
	KindInvalidDate    Kind = "invalid_date"
	KindInvalidFormat  Kind = "invalid_format"
	KindValidation     Kind = "validation_error"
	KindEmptyStore     Kind = "empty_store"
	KindUnknownCommand Kind = "unknown_command"
	KindNoData         Kind = "no_data"
	KindUpstream       Kind = "upstream_error"
	KindInternal       Kind = "internal_error"
)

// Sentinels for errors.Is. They only carry a Kind, so any *Error of the same
// kind matches them.
var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrSchema         = &Error{Kind: KindSchema}
	ErrParse          = &Error{Kind: KindParse}
	ErrDateParse      = &Error{Kind: KindDateParse}
	ErrInvalidAmount  = &Error{Kind: KindInvalidAmount}
	ErrInvalidDate    = &Error{Kind: KindInvalidDate}
	ErrInvalidFormat  = &Error{Kind: KindInvalidFormat}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrEmptyStore     = &Error{Kind: KindEmptyStore}
	ErrUnknownCommand = &Error{Kind: KindUnknownCommand}
	ErrNoData         = &Error{Kind: KindNoData}
	ErrUpstream       = &Error{Kind: KindUpstream}
)

// Error is the structured error returned by the store, the aggregation engine
// and the dispatcher.
type Error struct {
	Kind    Kind
	Op      string
	Record  int // 1-based position inside a batch, 0 when not applicable
	Message string
	Err     error
}

// E builds an *Error with a formatted message.
func E(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Record > 0 {
		msg = fmt.Sprintf("record %d: %s", e.Record, msg)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind-only sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" || t.Op != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
