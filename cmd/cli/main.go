package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/aggregate"
	"github.com/dvloznov/ledger-assistant/internal/app"
	"github.com/dvloznov/ledger-assistant/internal/commands"
	"github.com/dvloznov/ledger-assistant/internal/config"
	"github.com/dvloznov/ledger-assistant/internal/ledger"
	"github.com/dvloznov/ledger-assistant/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, logger.Format(cfg.LogFormat), os.Stderr)

	run, ok := subcommands[os.Args[1]]
	switch {
	case os.Args[1] == "help" || os.Args[1] == "-h" || os.Args[1] == "--help":
		printUsage()
		return
	case !ok:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LedgerPath).Msg("Failed to open ledger")
	}
	defer a.Close()

	os.Exit(run(ctx, a, os.Args[2:], log))
}

type subcommand func(ctx context.Context, a *app.App, args []string, log zerolog.Logger) int

var subcommands = map[string]subcommand{
	"show":             runShow,
	"total":            runQuery(commands.NameGetTotal),
	"average":          runQuery(commands.NameGetAverage),
	"categories":       runQuery(commands.NameListCategories),
	"notes":            runQuery(commands.NameListNotes),
	"breakdown":        runQuery(commands.NameCategoryBreakdown),
	"add":              runAdd,
	"update":           runUpdate,
	"delete":           runDelete,
	"export":           runExport,
	"backup":           runBackup,
	"restore":          runRestore,
	"warehouse-load":   runWarehouseLoad,
	"warehouse-report": runWarehouseReport,
	"sync-notion":      runSyncNotion,
	"ask":              runAsk,
}

func printUsage() {
	fmt.Println("Ledger Assistant CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  show              Print the ledger as a table")
	fmt.Println("  total             Sum of amounts (-type, -month, -year)")
	fmt.Println("  average           Mean amount (-type, -month, -year)")
	fmt.Println("  categories        Distinct categories")
	fmt.Println("  notes             Distinct notes")
	fmt.Println("  breakdown         Totals per category")
	fmt.Println("  add               Append a transaction")
	fmt.Println("  update            Change fields of a transaction")
	fmt.Println("  delete            Remove a transaction")
	fmt.Println("  export            Export as csv, json or rows")
	fmt.Println("  backup            Upload a snapshot to Cloud Storage")
	fmt.Println("  restore           Replace the ledger with a Cloud Storage snapshot")
	fmt.Println("  warehouse-load    Load the ledger into BigQuery")
	fmt.Println("  warehouse-report  Monthly totals from BigQuery")
	fmt.Println("  sync-notion       Mirror the ledger into Notion")
	fmt.Println("  ask               Ask the assistant in plain English")
	fmt.Println("  help              Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runShow(_ context.Context, a *app.App, args []string, _ zerolog.Logger) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	fs.Parse(args)

	fmt.Println(a.Store)
	return 0
}

// filterFlags registers -type, -month and -year and returns a function that
// yields the command arguments for the flags that were set.
func filterFlags(fs *flag.FlagSet) func() map[string]any {
	typ := fs.String("type", "", "Only expense or pay")
	month := fs.Int("month", 0, "Month 1-12")
	year := fs.Int("year", 0, "Year, e.g. 2024")
	return func() map[string]any {
		args := map[string]any{}
		if *typ != "" {
			args["type"] = *typ
		}
		if *month != 0 {
			args["month"] = *month
		}
		if *year != 0 {
			args["year"] = *year
		}
		return args
	}
}

func runQuery(name string) subcommand {
	return func(ctx context.Context, a *app.App, args []string, _ zerolog.Logger) int {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		filter := filterFlags(fs)
		fs.Parse(args)

		return printEnvelope(a.Dispatcher.Dispatch(ctx, name, filter()))
	}
}

func runAdd(ctx context.Context, a *app.App, args []string, _ zerolog.Logger) int {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	typ := fs.String("type", "", "expense or pay (required)")
	amount := fs.String("amount", "", "Amount, sign is taken from type (required)")
	note := fs.String("note", "", "Free-text note")
	category := fs.String("category", "", "Category")
	date := fs.String("date", time.Now().Format("2006-01-02"), "Date")
	fs.Parse(args)

	return printEnvelope(a.Dispatcher.Dispatch(ctx, commands.NameAddTransaction, map[string]any{
		"type":     *typ,
		"amount":   *amount,
		"note":     *note,
		"category": *category,
		"date":     *date,
	}))
}

func runUpdate(ctx context.Context, a *app.App, args []string, _ zerolog.Logger) int {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	id := fs.Int64("id", 0, "Transaction id (default: latest)")
	fs.String("type", "", "New type")
	fs.String("amount", "", "New amount")
	fs.String("note", "", "New note")
	fs.String("category", "", "New category")
	fs.String("date", "", "New date")
	fs.Parse(args)

	// Only flags given on the command line become fields to change.
	cmdArgs := map[string]any{}
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "id" {
			cmdArgs[f.Name] = f.Value.String()
		}
	})
	if *id > 0 {
		cmdArgs["id"] = *id
	}

	return printEnvelope(a.Dispatcher.Dispatch(ctx, commands.NameUpdateTransaction, cmdArgs))
}

func runDelete(ctx context.Context, a *app.App, args []string, _ zerolog.Logger) int {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.Int64("id", 0, "Transaction id (default: latest)")
	fs.Parse(args)

	cmdArgs := map[string]any{}
	if *id > 0 {
		cmdArgs["id"] = *id
	}
	return printEnvelope(a.Dispatcher.Dispatch(ctx, commands.NameDeleteTransaction, cmdArgs))
}

func runExport(ctx context.Context, a *app.App, args []string, log zerolog.Logger) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "csv", "csv, json or rows")
	out := fs.String("out", "", "Write to this file instead of stdout")
	filter := filterFlags(fs)
	fs.Parse(args)

	cmdArgs := filter()
	cmdArgs["format"] = *format
	env := a.Dispatcher.Dispatch(ctx, commands.NameExportData, cmdArgs)
	if !env.OK() || *out == "" {
		return printEnvelope(env)
	}

	data, err := json.MarshalIndent(env.Result, "", "  ")
	if text := exportText(env.Result); text != "" {
		data, err = []byte(text), nil
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to render export")
		return 1
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Error().Err(err).Str("file", *out).Msg("Failed to write export")
		return 1
	}
	fmt.Printf("Exported to %s\n", *out)
	return 0
}

func runBackup(ctx context.Context, a *app.App, args []string, log zerolog.Logger) int {
	if a.Backup == nil {
		log.Error().Msg("GCS_BUCKET is not configured")
		return 1
	}

	uri, err := a.Backup.Mirror(ctx, a.Store.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("Backup failed")
		return 1
	}
	fmt.Printf("Uploaded ledger to %s\n", uri)
	return 0
}

func runRestore(ctx context.Context, a *app.App, args []string, log zerolog.Logger) int {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	uri := fs.String("uri", "latest", "gs:// URI of the snapshot, or latest")
	dryRun := fs.Bool("dry-run", false, "Download and validate without replacing the ledger")
	fs.Parse(args)

	if a.Backup == nil {
		log.Error().Msg("GCS_BUCKET is not configured")
		return 1
	}

	rows, resolved, err := a.Backup.Restore(ctx, *uri)
	if err != nil {
		log.Error().Err(err).Str("gcs_uri", *uri).Msg("Restore failed")
		return 1
	}

	restored, err := ledger.FromRows(a.Config.LedgerPath, rows, log)
	if err != nil {
		log.Error().Err(err).Str("gcs_uri", resolved).Msg("Snapshot is not a valid ledger")
		return 1
	}
	if *dryRun {
		fmt.Printf("[DRY RUN] %s holds %d transactions, total %s\n", resolved, restored.Len(), restored.Total().StringFixed(2))
		return 0
	}

	if err := restored.Save(a.Config.LedgerPath); err != nil {
		log.Error().Err(err).Msg("Failed to write ledger")
		return 1
	}
	fmt.Printf("Restored %d transactions from %s\n", restored.Len(), resolved)
	return 0
}

func runWarehouseLoad(ctx context.Context, a *app.App, args []string, log zerolog.Logger) int {
	if a.Warehouse == nil {
		log.Error().Msg("BQ_PROJECT is not configured")
		return 1
	}

	result, err := a.Warehouse.Mirror(ctx, a.Store.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("Warehouse load failed")
		return 1
	}
	fmt.Printf("Loaded %s\n", result)
	return 0
}

func runWarehouseReport(ctx context.Context, a *app.App, args []string, log zerolog.Logger) int {
	if a.Warehouse == nil {
		log.Error().Msg("BQ_PROJECT is not configured")
		return 1
	}

	report, err := a.Warehouse.MonthlyReport(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Warehouse report failed")
		return 1
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tEXPENSES\tPAYMENTS\tNET\tCOUNT")
	for _, m := range report {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", m.Month, m.Expenses.StringFixed(2), m.Payments.StringFixed(2), m.Net.StringFixed(2), m.Count)
	}
	w.Flush()
	return 0
}

func runSyncNotion(ctx context.Context, a *app.App, args []string, log zerolog.Logger) int {
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	fs.Parse(args)

	syncer := a.NotionSyncer(*dryRun)
	if syncer == nil {
		log.Error().Msg("NOTION_TOKEN and NOTION_DB_ID are not configured")
		return 1
	}

	res, err := syncer.Sync(ctx, a.Store.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("Notion sync failed")
		return 1
	}
	fmt.Println(res)
	if res.Failed > 0 {
		return 1
	}
	return 0
}

func runAsk(ctx context.Context, a *app.App, args []string, log zerolog.Logger) int {
	if a.Assistant == nil {
		log.Error().Msg("GEMINI_API_KEY is not configured")
		return 1
	}
	prompt := strings.Join(args, " ")
	return printEnvelope(a.Assistant.Ask(ctx, prompt))
}

func printEnvelope(env commands.Envelope) int {
	if text := exportText(env.Result); text != "" {
		fmt.Print(text)
	} else {
		data, _ := json.MarshalIndent(env, "", "  ")
		fmt.Println(string(data))
	}
	if !env.OK() {
		return 1
	}
	return 0
}

// exportText returns the csv or json body of an export result.
func exportText(result any) string {
	if ex, ok := result.(*aggregate.Export); ok {
		return ex.Text
	}
	return ""
}
