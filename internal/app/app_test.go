package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/ledger-assistant/internal/config"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/rs/zerolog"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "GCS_BUCKET", "BQ_PROJECT", "NOTION_TOKEN", "NOTION_DB_ID"} {
		t.Setenv(key, "")
	}
	cfg := config.FromEnv()
	cfg.LedgerPath = filepath.Join(t.TempDir(), "ledger.csv")
	return cfg
}

func TestNewWithoutOptionalServices(t *testing.T) {
	cfg := testConfig(t)
	cfg.LedgerCreateIfMissing = true

	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Assistant != nil || a.Backup != nil || a.Warehouse != nil || a.Notion != nil {
		t.Errorf("unconfigured services were wired: %+v", a)
	}
	if len(a.Runner.EnabledTargets()) != 0 {
		t.Errorf("targets = %v, want none", a.Runner.EnabledTargets())
	}
	if a.NotionSyncer(true) != nil {
		t.Error("NotionSyncer() without a token should be nil")
	}

	env := a.Dispatcher.Dispatch(context.Background(), "add_transaction", map[string]any{
		"type": "expense", "amount": "45", "date": "2023-10-01",
	})
	if !env.OK() {
		t.Fatalf("add_transaction failed: %+v", env)
	}
	if _, err := os.Stat(cfg.LedgerPath); err != nil {
		t.Errorf("backing file not written: %v", err)
	}
}

func TestNewMissingLedger(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(context.Background(), cfg, zerolog.Nop())
	if domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("New() kind = %v, want %v", domain.KindOf(err), domain.KindNotFound)
	}
}

func TestNewWithNotion(t *testing.T) {
	cfg := testConfig(t)
	cfg.LedgerCreateIfMissing = true
	cfg.NotionToken = "secret"
	cfg.NotionDBID = "db"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Notion == nil {
		t.Fatal("Notion syncer not wired")
	}
	if _, err := a.Runner.NewJob("notion"); err != nil {
		t.Errorf("NewJob(notion) error = %v", err)
	}
	if _, err := a.Runner.NewJob("gcs"); domain.KindOf(err) != domain.KindValidation {
		t.Errorf("NewJob(gcs) kind = %v, want validation", domain.KindOf(err))
	}
}
