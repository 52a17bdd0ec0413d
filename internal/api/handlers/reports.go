package handlers

import (
	"net/http"

	"github.com/dvloznov/ledger-assistant/internal/aggregate"
	"github.com/dvloznov/ledger-assistant/internal/api/middleware"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/rs/zerolog"
)

// ReportsHandler serves the read-only aggregation endpoints.
type ReportsHandler struct {
	engine *aggregate.Engine
	log    zerolog.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(src aggregate.Source, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{engine: aggregate.NewEngine(src), log: log}
}

// Summary handles GET /api/summary
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	rows, err := h.engine.Select(filter)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	total, err := h.engine.Total(filter)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	average, err := h.engine.Average(filter)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	breakdown, err := h.engine.CategoryBreakdown(filter)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"filter":      filter,
		"total":       total,
		"average":     average,
		"count":       len(rows),
		"by_category": breakdown,
	})
}

// ListCategories handles GET /api/categories
func (h *ReportsHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	h.distinct(w, r, "categories", h.engine.DistinctCategories)
}

// ListNotes handles GET /api/notes
func (h *ReportsHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	h.distinct(w, r, "notes", h.engine.DistinctNotes)
}

func (h *ReportsHandler) distinct(w http.ResponseWriter, r *http.Request, key string, fn func(aggregate.Filter) ([]string, error)) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	values, err := fn(filter)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		key:     values,
		"count": len(values),
	})
}

// Export handles GET /api/export. CSV is written raw as an attachment; json
// and rows come back inside the envelope.
func (h *ReportsHandler) Export(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, err := filterFromQuery(query)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	format := aggregate.Format(first(query, "format"))
	if format == "" {
		format = aggregate.FormatJSON
	}

	export, err := h.engine.Export(format, filter)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	if export.Count == 0 {
		middleware.WriteDomainError(w, domain.E(domain.KindNoData, "Export", "no transactions match the filter"))
		return
	}

	if export.Format == aggregate.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(export.Text))
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, export)
}
