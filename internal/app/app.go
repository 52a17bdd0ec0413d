// Package app assembles the ledger, the dispatcher and the configured
// mirrors from a Config. Both binaries start here.
package app

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-assistant/internal/aggregate"
	"github.com/dvloznov/ledger-assistant/internal/commands"
	"github.com/dvloznov/ledger-assistant/internal/config"
	"github.com/dvloznov/ledger-assistant/internal/gcsuploader"
	"github.com/dvloznov/ledger-assistant/internal/jobs"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/dvloznov/ledger-assistant/internal/llm"
	"github.com/dvloznov/ledger-assistant/internal/notionsync"
	"github.com/dvloznov/ledger-assistant/internal/warehouse"
	"github.com/rs/zerolog"
)

// App holds the wired services. Optional parts are nil when not configured.
type App struct {
	Config     *config.Config
	Store      *ledger.Store
	Dispatcher *commands.Dispatcher
	Assistant  *commands.Assistant
	Runner     *jobs.Runner

	Backup    *gcsuploader.Backup
	Warehouse *warehouse.Warehouse
	Notion    *notionsync.Syncer

	closers []func() error
	log     zerolog.Logger
}

// New opens the ledger and wires every service cfg enables.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	store, err := ledger.Open(cfg.LedgerPath, cfg.LedgerCreateIfMissing, log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: store, Runner: jobs.NewRunner(store, log), log: log}

	var analyst commands.Analyst
	var resolver commands.Resolver
	if cfg.RequireLLM() == nil {
		client, err := llm.NewGeminiClient(ctx, llm.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.LLMTimeout,
		}, aggregate.NewEngine(store), log)
		if err != nil {
			return nil, err
		}
		analyst, resolver = client, client
	} else {
		log.Warn().Msg("No Gemini API key configured - assistant and ai_analyze are disabled")
	}

	a.Dispatcher = commands.NewDispatcher(store, analyst, log)
	if resolver != nil {
		a.Assistant = commands.NewAssistant(resolver, a.Dispatcher)
	}

	if err := a.wireMirrors(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wireMirrors(ctx context.Context) error {
	cfg := a.Config

	if cfg.GCSEnabled() {
		objects, err := gcsuploader.NewGCSObjectStore(ctx, cfg.CredentialsFile)
		if err != nil {
			return fmt.Errorf("wireMirrors: %w", err)
		}
		a.closers = append(a.closers, objects.Close)
		a.Backup = gcsuploader.NewBackup(objects, cfg.GCSBucket, cfg.GCSPrefix, a.log)
		a.Runner.Register(jobs.TargetGCS, a.Backup)
	}

	if cfg.BigQueryEnabled() {
		repo, err := warehouse.NewBigQueryRepository(ctx, cfg.BQProject, cfg.BQDataset, cfg.BQTable, cfg.CredentialsFile)
		if err != nil {
			return fmt.Errorf("wireMirrors: %w", err)
		}
		a.Warehouse = warehouse.New(repo, a.log)
		a.closers = append(a.closers, a.Warehouse.Close)
		a.Runner.Register(jobs.TargetBigQuery, a.Warehouse)
	}

	if cfg.NotionEnabled() {
		a.Notion = a.NotionSyncer(false)
		a.Runner.Register(jobs.TargetNotion, a.Notion)
	}

	a.log.Info().Interface("mirrors", a.Runner.EnabledTargets()).Msg("Mirror targets configured")
	return nil
}

// NotionSyncer returns a syncer for the configured database, or nil when
// Notion is not configured.
func (a *App) NotionSyncer(dryRun bool) *notionsync.Syncer {
	if !a.Config.NotionEnabled() {
		return nil
	}
	return notionsync.NewSyncer(notionsync.NewNotionClient(a.Config.NotionToken), a.Config.NotionDBID, dryRun, a.log)
}

// Close releases the cloud clients.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
