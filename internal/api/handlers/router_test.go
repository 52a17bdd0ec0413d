package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/api/middleware"
	"github.com/dvloznov/ledger-assistant/internal/commands"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/dvloznov/ledger-assistant/internal/jobs"
	"github.com/dvloznov/ledger-assistant/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const fixture = `id,type,amount,note,category,date
1,expense,-45.00,Lunch,Food,2023-10-01
2,pay,1500.00,Paycheck,Salary,2023-10-15
3,expense,-20.00,Bus,Transport,2023-11-02
`

type testServer struct {
	handler  http.Handler
	store    *ledger.Store
	path     string
	jobStore *inmemory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()

	path := filepath.Join(t.TempDir(), "ledger.csv")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := ledger.Load(path, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	runner := jobs.NewRunner(store, log)
	runner.Register(jobs.TargetGCS, jobs.MirrorFunc(func(ctx context.Context, rows []domain.Transaction) (string, error) {
		return "gs://bucket/ledger.csv", nil
	}))

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(inmemory.Options{Workers: 1, Backoff: time.Millisecond}, jobStore, log)
	ctx, cancel := context.WithCancel(context.Background())
	if err := queue.Start(ctx, runner.Handle); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		queue.Close()
	})

	handler := NewRouter(Deps{
		Store:      store,
		Dispatcher: commands.NewDispatcher(store, nil, log),
		JobStore:   jobStore,
		Publisher:  queue,
		Runner:     runner,
		Log:        log,
	})
	return &testServer{handler: handler, store: store, path: path, jobStore: jobStore}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    domain.Kind     `json:"kind"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestTransactionsEndpoints(t *testing.T) {
	s := newTestServer(t)

	t.Run("list with filter", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/transactions?type=expense&limit=1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		var data struct {
			Transactions []TransactionView `json:"transactions"`
			Count        int               `json:"count"`
			Total        int               `json:"total"`
		}
		if err := json.Unmarshal(decode(t, rec).Data, &data); err != nil {
			t.Fatal(err)
		}
		if data.Count != 1 || data.Total != 2 || data.Transactions[0].ID != 1 {
			t.Errorf("unexpected page: %+v", data)
		}
	})

	t.Run("get uses api date form", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/transactions/1", "")
		var view TransactionView
		if err := json.Unmarshal(decode(t, rec).Data, &view); err != nil {
			t.Fatal(err)
		}
		if view.Date != "10.01.2023" || view.Day != "Sun" {
			t.Errorf("date = %q day = %q, want 10.01.2023 Sun", view.Date, view.Day)
		}
		if !view.Amount.Equal(decimal.RequireFromString("-45")) {
			t.Errorf("amount = %s", view.Amount)
		}
	})

	t.Run("create derives type from sign", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/transactions", `{"date":"11.05.2023","day":"Sun","category":"Food","note":"Coffee","amount":-3.5}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
		}
		var view TransactionView
		if err := json.Unmarshal(decode(t, rec).Data, &view); err != nil {
			t.Fatal(err)
		}
		if view.ID != 4 || view.Type != domain.TypeExpense || view.Date != "11.05.2023" {
			t.Errorf("created = %+v", view)
		}
	})

	t.Run("update then delete", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/transactions/2", `{"note":"Salary October"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("update status = %d, body %s", rec.Code, rec.Body)
		}
		if tx, _ := s.store.Get(2); tx.Note != "Salary October" || tx.Type != domain.TypePay {
			t.Errorf("after update: %+v", tx)
		}

		rec = s.do(t, http.MethodDelete, "/api/transactions/3", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body)
		}
		data, _ := os.ReadFile(s.path)
		if strings.Contains(string(data), "Bus") {
			t.Errorf("deleted row still in backing file:\n%s", data)
		}
	})
}

func TestTransactionsErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		kind   domain.Kind
	}{
		{"get missing", http.MethodGet, "/api/transactions/99", "", http.StatusNotFound, domain.KindNotFound},
		{"bad id", http.MethodGet, "/api/transactions/abc", "", http.StatusBadRequest, domain.KindValidation},
		{"update missing", http.MethodPut, "/api/transactions/99", `{"note":"x"}`, http.StatusNotFound, domain.KindNotFound},
		{"delete missing", http.MethodDelete, "/api/transactions/99", "", http.StatusNotFound, domain.KindNotFound},
		{"bad amount", http.MethodPost, "/api/transactions", `{"date":"2023-10-01","amount":"abc"}`, http.StatusBadRequest, domain.KindInvalidAmount},
		{"bad date", http.MethodPost, "/api/transactions", `{"date":"31.31.2023","amount":5}`, http.StatusBadRequest, domain.KindInvalidDate},
		{"missing date", http.MethodPost, "/api/transactions", `{"amount":5}`, http.StatusBadRequest, domain.KindValidation},
		{"bad json", http.MethodPost, "/api/transactions", `{`, http.StatusBadRequest, domain.KindValidation},
		{"bad filter", http.MethodGet, "/api/transactions?month=13", "", http.StatusBadRequest, domain.KindValidation},
		{"method", http.MethodPatch, "/api/transactions", "", http.StatusMethodNotAllowed, domain.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.target, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
			resp := decode(t, rec)
			if resp.Success || resp.Kind != tt.kind {
				t.Errorf("response = %+v, want kind %s", resp, tt.kind)
			}
		})
	}

	if s.store.Len() != 3 {
		t.Errorf("store length = %d after failed calls, want 3", s.store.Len())
	}
}

func TestBatchCreate(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/transactions/batch", `{"records":[
		{"type":"expense","amount":"10","date":"2023-12-01"},
		{"type":"pay","amount":20,"date":"2023-12-02"}
	]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var env commands.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if !env.OK() || s.store.Len() != 5 {
		t.Errorf("envelope = %+v, len = %d", env, s.store.Len())
	}

	rec = s.do(t, http.MethodPost, "/api/transactions/batch", `{"records":[
		{"type":"expense","amount":"10","date":"2023-12-01"},
		{"type":"expense","amount":"ten","date":"2023-12-01"}
	]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if s.store.Len() != 5 {
		t.Errorf("failed batch changed the store: len = %d", s.store.Len())
	}
}

func TestReportsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/summary?type=expense", "")
	var summary struct {
		Total   decimal.Decimal `json:"total"`
		Average decimal.Decimal `json:"average"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(decode(t, rec).Data, &summary); err != nil {
		t.Fatal(err)
	}
	if !summary.Total.Equal(decimal.RequireFromString("-65")) || summary.Count != 2 ||
		!summary.Average.Equal(decimal.RequireFromString("-32.5")) {
		t.Errorf("summary = %+v", summary)
	}

	rec = s.do(t, http.MethodGet, "/api/categories", "")
	var cats struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(decode(t, rec).Data, &cats); err != nil {
		t.Fatal(err)
	}
	if strings.Join(cats.Categories, ",") != "Food,Salary,Transport" {
		t.Errorf("categories = %v", cats.Categories)
	}

	rec = s.do(t, http.MethodGet, "/api/export?format=csv&year=2023&month=10", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("csv export status = %d type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n"); len(lines) != 3 {
		t.Errorf("csv export has %d lines, want header + 2", len(lines))
	}

	if rec := s.do(t, http.MethodGet, "/api/export?format=xml", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("xml export status = %d, want 400", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/export?month=12", ""); rec.Code != http.StatusConflict {
		t.Errorf("empty export status = %d, want 409", rec.Code)
	}
}

func TestCommandEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/commands/get_total", `{"type":"pay"}`)
	var env commands.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || !env.OK() || env.Command != commands.NameGetTotal {
		t.Errorf("get_total: status %d envelope %+v", rec.Code, env)
	}

	rec = s.do(t, http.MethodPost, "/api/commands/transfer_money", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown command status = %d, want 400", rec.Code)
	}
	env = commands.Envelope{}
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	if env.Kind != domain.KindUnknownCommand {
		t.Errorf("unknown command kind = %q", env.Kind)
	}

	rec = s.do(t, http.MethodPost, "/api/commands/list_notes", "")
	if rec.Code != http.StatusOK {
		t.Errorf("list_notes without body: status = %d, body %s", rec.Code, rec.Body)
	}

	rec = s.do(t, http.MethodPost, "/api/assistant", `{"prompt":"how much did I spend?"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("assistant without model: status = %d, want 502", rec.Code)
	}
}

func TestMirrorEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/mirror", `{"target":"gcs"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var job jobs.MirrorJob
	if err := json.Unmarshal(decode(t, rec).Data, &job); err != nil {
		t.Fatal(err)
	}
	if job.JobID == "" || job.Target != jobs.TargetGCS {
		t.Fatalf("job = %+v", job)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := s.jobStore.GetJob(context.Background(), job.JobID)
		if err == nil && got.Status == jobs.JobStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed: %+v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec := s.do(t, http.MethodGet, "/api/jobs/"+job.JobID, ""); rec.Code != http.StatusOK {
		t.Errorf("get job status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/jobs/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/jobs?target=gcs", ""); rec.Code != http.StatusOK {
		t.Errorf("list jobs status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/mirror", `{"target":"notion"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unconfigured target status = %d, want 400", rec.Code)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("response has no request id")
	}

	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health["records"] != float64(3) {
		t.Errorf("records = %v, want 3", health["records"])
	}
}
