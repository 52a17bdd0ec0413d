// Package handlers implements the REST surface over the ledger.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/ledger-assistant/internal/aggregate"
	"github.com/dvloznov/ledger-assistant/internal/api/middleware"
	"github.com/dvloznov/ledger-assistant/internal/commands"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerStore is the record store as seen by the REST handlers.
type LedgerStore interface {
	commands.Store
	Get(id int64) (domain.Transaction, error)
}

// TransactionView is a row in REST form: dates as MM.DD.YYYY plus the
// abbreviated weekday.
type TransactionView struct {
	ID       int64           `json:"id"`
	Type     domain.Type     `json:"type"`
	Date     string          `json:"date"`
	Day      string          `json:"day"`
	Category string          `json:"category"`
	Note     string          `json:"note"`
	Amount   decimal.Decimal `json:"amount"`
}

// ViewOf renders tx for the REST surface. Rows with unparsable dates keep
// their stored text and an empty day.
func ViewOf(tx domain.Transaction) TransactionView {
	v := TransactionView{
		ID:       tx.ID,
		Type:     tx.Type,
		Date:     tx.Date,
		Category: tx.Category,
		Note:     tx.Note,
		Amount:   tx.Amount,
	}
	if d, err := tx.CivilDate(); err == nil {
		v.Date = domain.FormatAPIDate(d)
		v.Day = domain.Weekday(d)
	}
	return v
}

func viewsOf(rows []domain.Transaction) []TransactionView {
	out := make([]TransactionView, 0, len(rows))
	for _, tx := range rows {
		out = append(out, ViewOf(tx))
	}
	return out
}

// transactionRequest is the body of create and update calls. Day is accepted
// for symmetry with TransactionView and ignored.
type transactionRequest struct {
	Type     *string `json:"type"`
	Date     *string `json:"date"`
	Day      *string `json:"day"`
	Category *string `json:"category"`
	Note     *string `json:"note"`
	Amount   any     `json:"amount"`
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store      LedgerStore
	engine     *aggregate.Engine
	dispatcher *commands.Dispatcher
	log        zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(store LedgerStore, dispatcher *commands.Dispatcher, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store:      store,
		engine:     aggregate.NewEngine(store),
		dispatcher: dispatcher,
		log:        log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, err := filterFromQuery(query)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	limit, err := intParam(query, "limit")
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	offset, err := intParam(query, "offset")
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	rows, err := h.engine.Select(filter)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	page := commands.Page(rows, limit, offset)
	middleware.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"transactions": viewsOf(page),
		"count":        len(page),
		"total":        len(rows),
	})
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, id int64) {
	tx, err := h.store.Get(id)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteSuccess(w, http.StatusOK, ViewOf(tx))
}

// CreateTransaction handles POST /api/transactions. Without an explicit type
// the sign of amount decides: negative is an expense.
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	amount, err := amountText(req.Amount)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	in := ledger.Input{
		Amount:   amount,
		Date:     deref(req.Date),
		Category: deref(req.Category),
		Note:     deref(req.Note),
		Type:     deref(req.Type),
	}
	if in.Type == "" && amount != "" {
		typ, err := typeFromSign(amount)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		in.Type = typ
	}

	tx, err := h.store.Insert(in)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	h.log.Info().Int64("id", tx.ID).Str("type", string(tx.Type)).Msg("Transaction created")
	middleware.WriteSuccess(w, http.StatusCreated, ViewOf(tx))
}

// UpdateTransaction handles PUT /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, id int64) {
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	p := ledger.Patch{ID: &id, Type: req.Type, Date: req.Date, Category: req.Category, Note: req.Note}
	if req.Amount != nil {
		amount, err := amountText(req.Amount)
		if err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
		p.Amount = &amount
		if p.Type == nil {
			typ, err := typeFromSign(amount)
			if err != nil {
				middleware.WriteDomainError(w, err)
				return
			}
			p.Type = &typ
		}
	}

	tx, err := h.store.Update(p)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	h.log.Info().Int64("id", tx.ID).Msg("Transaction updated")
	middleware.WriteSuccess(w, http.StatusOK, ViewOf(tx))
}

// DeleteTransaction handles DELETE /api/transactions/{id}
// Deleting the only remaining record returns 409 and leaves it in place.
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, id int64) {
	tx, err := h.store.Delete(&id)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	h.log.Info().Int64("id", tx.ID).Msg("Transaction deleted")
	middleware.WriteSuccess(w, http.StatusOK, ViewOf(tx))
}

// BatchCreate handles POST /api/transactions/batch. The records use the
// command grammar and are appended all-or-nothing.
func (h *TransactionsHandler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	if err := decodeBody(r, &args); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	env := h.dispatcher.Dispatch(r.Context(), commands.NameAddTransactions, args)
	writeEnvelope(w, env, http.StatusCreated)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return domain.E(domain.KindValidation, "decodeBody", "invalid request body: %v", err)
	}
	return nil
}

func amountText(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case json.Number:
		return val.String(), nil
	case string:
		return strings.TrimSpace(val), nil
	default:
		return "", domain.E(domain.KindInvalidAmount, "amountText", "amount has type %T, want number or string", v)
	}
}

func typeFromSign(amount string) (string, error) {
	d, err := domain.ParseAmount(amount)
	if err != nil {
		return "", err
	}
	return string(domain.TypeForAmount(d)), nil
}

func filterFromQuery(query map[string][]string) (aggregate.Filter, error) {
	var f aggregate.Filter
	if typ := first(query, "type"); typ != "" {
		parsed, err := domain.ParseType(typ)
		if err != nil {
			return f, err
		}
		f.Type = parsed
	}
	month, err := intParam(query, "month")
	if err != nil {
		return f, err
	}
	year, err := intParam(query, "year")
	if err != nil {
		return f, err
	}
	f.Month, f.Year = month, year
	return f, f.Validate()
}

func intParam(query map[string][]string, key string) (int, error) {
	s := first(query, key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, domain.E(domain.KindValidation, "query", "%s must be a non-negative integer, got %q", key, s)
	}
	return n, nil
}

func first(query map[string][]string, key string) string {
	if vs := query[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.Trim(s, "/"), 10, 64)
	if err != nil {
		return 0, domain.E(domain.KindValidation, "parseID", "invalid transaction id %q", s)
	}
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// writeEnvelope writes a dispatcher envelope, choosing the status from its
// error kind.
func writeEnvelope(w http.ResponseWriter, env commands.Envelope, okStatus int) {
	status := okStatus
	if !env.OK() {
		status = middleware.StatusForKind(env.Kind)
	}
	middleware.WriteJSON(w, status, env)
}

var _ LedgerStore = (*ledger.Store)(nil)
