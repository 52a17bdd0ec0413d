package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Input is a new record as delivered by a caller. Amount and Date are raw
// text and are validated by Insert.
type Input struct {
	Type     string `json:"type"`
	Amount   string `json:"amount"`
	Note     string `json:"note"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

// Patch is a partial update. Nil fields are left untouched; a nil ID targets
// the latest record.
type Patch struct {
	ID       *int64
	Type     *string
	Amount   *string
	Note     *string
	Category *string
	Date     *string
}

// Store is the authoritative in-memory table of transactions, persisted by
// rewriting the whole backing file after every mutation.
// It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	path   string
	rows   []domain.Transaction
	total  decimal.Decimal
	nextID int64
	log    zerolog.Logger
}

// Load reads the backing file at path.
func Load(path string, log zerolog.Logger) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.E(domain.KindNotFound, "Load", "the file at %s does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("Load: reading %s: %w", path, err)
	}

	rows, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	sortByID(rows)
	s := &Store{path: path, rows: rows, log: log}
	s.recompute()
	for _, tx := range rows {
		if tx.ID >= s.nextID {
			s.nextID = tx.ID + 1
		}
	}
	if s.nextID == 0 {
		s.nextID = 1
	}

	log.Info().
		Str("path", path).
		Int("rows", len(rows)).
		Str("total", s.total.StringFixed(2)).
		Msg("Ledger loaded")

	return s, nil
}

// New returns an empty store that persists to path on first mutation.
func New(path string, log zerolog.Logger) *Store {
	return &Store{path: path, nextID: 1, log: log}
}

// FromRows builds a store over rows, for example a downloaded snapshot.
// Nothing is written until Save or the first mutation.
func FromRows(path string, rows []domain.Transaction, log zerolog.Logger) (*Store, error) {
	seen := make(map[int64]bool, len(rows))
	s := &Store{path: path, rows: cloneRows(rows), nextID: 1, log: log}
	for _, tx := range rows {
		if seen[tx.ID] {
			return nil, domain.E(domain.KindSchema, "FromRows", "duplicate id %d", tx.ID)
		}
		seen[tx.ID] = true
		if tx.ID >= s.nextID {
			s.nextID = tx.ID + 1
		}
	}
	sortByID(s.rows)
	s.recompute()
	return s, nil
}

// Open loads path, or returns an empty store when the file is missing and
// createIfMissing is set.
func Open(path string, createIfMissing bool, log zerolog.Logger) (*Store, error) {
	s, err := Load(path, log)
	if err == nil {
		return s, nil
	}
	if createIfMissing && errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("path", path).Msg("Backing file missing, starting with an empty ledger")
		return New(path, log), nil
	}
	return nil, err
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes the full table to path, header row first.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeFile(path, s.rows)
}

// Snapshot returns a copy of every row in id order.
func (s *Store) Snapshot() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Transaction, len(s.rows))
	copy(out, s.rows)
	return out
}

// Len returns the number of rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Total returns the cached sum of all amounts.
func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Get returns the row with the given id.
func (s *Store) Get(id int64) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Transaction{}, domain.E(domain.KindNotFound, "Get", "record with id %d does not exist", id)
	}
	return s.rows[i], nil
}

// Insert validates in, appends it with the next id and persists.
func (s *Store) Insert(in Input) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := validateInput(in)
	if err != nil {
		return domain.Transaction{}, withOp(err, "Insert")
	}

	tx.ID = s.nextID
	next := append(cloneRows(s.rows), tx)
	if err := s.commit(next, s.nextID+1); err != nil {
		return domain.Transaction{}, withOp(err, "Insert")
	}

	s.log.Debug().Int64("id", tx.ID).Str("amount", tx.Amount.StringFixed(2)).Msg("Transaction inserted")
	return tx, nil
}

// BatchInsert validates every record before appending any of them. The first
// invalid record aborts the batch with a validation error naming its
// 1-based position; nothing is appended in that case.
func (s *Store) BatchInsert(ins []Input) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ins) == 0 {
		return nil, domain.E(domain.KindValidation, "BatchInsert", "no records supplied")
	}

	next := cloneRows(s.rows)
	nextID := s.nextID
	ids := make([]int64, 0, len(ins))
	for i, in := range ins {
		tx, err := validateInput(in)
		if err != nil {
			return nil, &domain.Error{Kind: domain.KindValidation, Op: "BatchInsert", Record: i + 1, Err: err}
		}
		tx.ID = nextID
		nextID++
		next = append(next, tx)
		ids = append(ids, tx.ID)
	}

	if err := s.commit(next, nextID); err != nil {
		return nil, withOp(err, "BatchInsert")
	}

	s.log.Debug().Int("count", len(ids)).Msg("Transactions batch inserted")
	return ids, nil
}

// Update overwrites the supplied fields of one row.
func (s *Store) Update(p Patch) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.target(p.ID, "Update")
	if err != nil {
		return domain.Transaction{}, err
	}

	tx := s.rows[i]
	if p.Type != nil {
		typ, err := domain.ParseType(*p.Type)
		if err != nil {
			return domain.Transaction{}, withOp(err, "Update")
		}
		tx.Type = typ
		tx.Amount = domain.SignFor(typ, tx.Amount)
	}
	if p.Amount != nil {
		amount, err := domain.ParseAmount(*p.Amount)
		if err != nil {
			return domain.Transaction{}, withOp(err, "Update")
		}
		tx.Amount = domain.SignFor(tx.Type, amount)
	}
	if p.Note != nil {
		tx.Note = strings.TrimSpace(*p.Note)
	}
	if p.Category != nil {
		tx.Category = strings.TrimSpace(*p.Category)
	}
	if p.Date != nil {
		d, err := domain.ParseDate(*p.Date)
		if err != nil {
			return domain.Transaction{}, withOp(err, "Update")
		}
		tx.Date = d.String()
	}

	next := cloneRows(s.rows)
	next[i] = tx
	if err := s.commit(next, s.nextID); err != nil {
		return domain.Transaction{}, withOp(err, "Update")
	}

	s.log.Debug().Int64("id", tx.ID).Msg("Transaction updated")
	return tx, nil
}

// Delete removes the row with the given id, or the latest row when id is nil.
// The last remaining row cannot be deleted: an empty table is never written,
// so that call fails with KindEmptyStore and the row stays.
func (s *Store) Delete(id *int64) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.target(id, "Delete")
	if err != nil {
		return domain.Transaction{}, err
	}

	removed := s.rows[i]
	next := make([]domain.Transaction, 0, len(s.rows)-1)
	next = append(next, s.rows[:i]...)
	next = append(next, s.rows[i+1:]...)
	if err := s.commit(next, s.nextID); err != nil {
		return domain.Transaction{}, withOp(err, "Delete")
	}

	s.log.Debug().Int64("id", removed.ID).Msg("Transaction deleted")
	return removed, nil
}

// String renders the table for terminals.
func (s *Store) String() string {
	rows := s.Snapshot()
	if len(rows) == 0 {
		return "The database is empty."
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 1, ' ', tabwriter.Debug)
	fmt.Fprintln(w, strings.Join(Header, "\t"))
	for _, tx := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Type, tx.Amount.StringFixed(2), tx.Note, tx.Category, tx.Date)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// commit persists next and, only when that succeeds, swaps it in. Callers
// hold the write lock.
func (s *Store) commit(next []domain.Transaction, nextID int64) error {
	if err := s.writeFile(s.path, next); err != nil {
		return err
	}
	s.rows = next
	s.nextID = nextID
	s.recompute()
	return nil
}

func (s *Store) writeFile(path string, rows []domain.Transaction) error {
	if len(rows) == 0 {
		return domain.E(domain.KindEmptyStore, "Save", "no data to save")
	}

	var buf bytes.Buffer
	if err := Encode(&buf, rows); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("Save: creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("Save: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("Save: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("Save: closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("Save: replacing %s: %w", path, err)
	}
	return nil
}

// target resolves an optional id to a row index.
func (s *Store) target(id *int64, op string) (int, error) {
	if id == nil {
		if len(s.rows) == 0 {
			return -1, domain.E(domain.KindEmptyStore, op, "the ledger is empty")
		}
		latest := 0
		for i, tx := range s.rows {
			if tx.ID > s.rows[latest].ID {
				latest = i
			}
		}
		return latest, nil
	}
	i := s.indexOf(*id)
	if i < 0 {
		return -1, domain.E(domain.KindNotFound, op, "record with id %d does not exist", *id)
	}
	return i, nil
}

func (s *Store) indexOf(id int64) int {
	for i, tx := range s.rows {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) recompute() {
	total := decimal.Zero
	for _, tx := range s.rows {
		total = total.Add(tx.Amount)
	}
	s.total = total
}

func validateInput(in Input) (domain.Transaction, error) {
	if strings.TrimSpace(in.Type) == "" {
		return domain.Transaction{}, domain.E(domain.KindValidation, "", "missing required field %q", "type")
	}
	typ, err := domain.ParseType(in.Type)
	if err != nil {
		return domain.Transaction{}, err
	}
	if strings.TrimSpace(in.Amount) == "" {
		return domain.Transaction{}, domain.E(domain.KindValidation, "", "missing required field %q", "amount")
	}
	amount, err := domain.ParseAmount(in.Amount)
	if err != nil {
		return domain.Transaction{}, err
	}
	if strings.TrimSpace(in.Date) == "" {
		return domain.Transaction{}, domain.E(domain.KindValidation, "", "missing required field %q", "date")
	}
	d, err := domain.ParseDate(in.Date)
	if err != nil {
		return domain.Transaction{}, err
	}

	return domain.Transaction{
		Type:     typ,
		Amount:   domain.SignFor(typ, amount),
		Note:     strings.TrimSpace(in.Note),
		Category: strings.TrimSpace(in.Category),
		Date:     d.String(),
	}, nil
}

func withOp(err error, op string) error {
	var de *domain.Error
	if errors.As(err, &de) && de.Op == "" {
		cp := *de
		cp.Op = op
		return &cp
	}
	return err
}

func sortByID(rows []domain.Transaction) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
}

func cloneRows(rows []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(rows), len(rows)+1)
	copy(out, rows)
	return out
}
