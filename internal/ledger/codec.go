package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/shopspring/decimal"
)

// Header is the column order written to the backing file.
var Header = []string{"id", "type", "amount", "note", "category", "date"}

// noteAliases are header names older file revisions used for the memo column.
var noteAliases = []string{"note", "source", "memo", "description"}

// Decode reads a backing file. The id column is mandatory; every other column
// may be absent, in which case the field loads empty.
func Decode(r io.Reader) ([]domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.E(domain.KindSchema, "Decode", "backing file is empty: it must contain an 'id' column")
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindParse, "Decode", fmt.Errorf("reading header: %w", err))
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, seen := cols[name]; !seen {
			cols[name] = i
		}
	}

	idCol, ok := cols["id"]
	if !ok {
		return nil, domain.E(domain.KindSchema, "Decode", "the backing file must contain an 'id' column")
	}
	noteCol := -1
	for _, alias := range noteAliases {
		if i, ok := cols[alias]; ok {
			noteCol = i
			break
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []domain.Transaction
	seen := make(map[int64]bool)
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.Wrap(domain.KindParse, "Decode", fmt.Errorf("line %d: %w", line, err))
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		rawID := ""
		if idCol < len(rec) {
			rawID = strings.TrimSpace(rec[idCol])
		}
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return nil, domain.E(domain.KindParse, "Decode", "line %d: invalid id %q", line, rawID)
		}
		if seen[id] {
			return nil, domain.E(domain.KindSchema, "Decode", "line %d: duplicate id %d", line, id)
		}
		seen[id] = true

		rawAmount := field(rec, "amount")
		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return nil, domain.E(domain.KindParse, "Decode", "invalid or missing amount value for id %d: %q", id, rawAmount)
		}
		amount = amount.Round(2)

		note := ""
		if noteCol >= 0 && noteCol < len(rec) {
			note = strings.TrimSpace(rec[noteCol])
		}

		rows = append(rows, domain.Transaction{
			ID:       id,
			Type:     domain.Type(strings.ToLower(field(rec, "type"))),
			Amount:   amount,
			Note:     note,
			Category: field(rec, "category"),
			Date:     field(rec, "date"),
		})
	}

	return rows, nil
}

// Encode writes rows in backing-file form, header first. Amounts always carry
// two decimal places.
func Encode(w io.Writer, rows []domain.Transaction) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("Encode: writing header: %w", err)
	}
	for _, tx := range rows {
		rec := []string{
			strconv.FormatInt(tx.ID, 10),
			string(tx.Type),
			tx.Amount.StringFixed(2),
			tx.Note,
			tx.Category,
			tx.Date,
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("Encode: writing id %d: %w", tx.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("Encode: flushing: %w", err)
	}
	return nil
}
