// Package notionsync mirrors ledger rows into a Notion database, one page per
// transaction.
package notionsync

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
)

const (
	// BatchSize defines the number of transactions to process in a single batch
	BatchSize = 100
)

// Result counts what a sync did. In dry-run mode it counts what it would do.
type Result struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

func (r Result) String() string {
	return fmt.Sprintf("created=%d updated=%d archived=%d failed=%d", r.Created, r.Updated, r.Archived, r.Failed)
}

// Syncer mirrors ledger snapshots into one database.
type Syncer struct {
	client     NotionService
	databaseID string
	dryRun     bool
	log        zerolog.Logger
}

// NewSyncer creates a syncer. With dryRun set nothing is written to Notion.
func NewSyncer(client NotionService, databaseID string, dryRun bool, log zerolog.Logger) *Syncer {
	return &Syncer{client: client, databaseID: databaseID, dryRun: dryRun, log: log}
}

// Mirror syncs rows and summarizes the counts. Any per-page failure makes the
// whole sync an upstream error once every row has been attempted.
func (s *Syncer) Mirror(ctx context.Context, rows []domain.Transaction) (string, error) {
	res, err := s.Sync(ctx, rows)
	if err != nil {
		return "", err
	}
	if res.Failed > 0 {
		return res.String(), domain.E(domain.KindUpstream, "NotionSync", "%d page operations failed", res.Failed)
	}
	return res.String(), nil
}

// Sync makes the database match rows:
// 1. Queries all existing pages
// 2. Archives pages with no Transaction ID, duplicates, and ids not in rows
// 3. Updates pages whose id is in rows and creates the rest
func (s *Syncer) Sync(ctx context.Context, rows []domain.Transaction) (Result, error) {
	var res Result

	s.log.Info().
		Int("transaction_count", len(rows)).
		Bool("dry_run", s.dryRun).
		Msg("Starting transaction sync to Notion")

	pages, err := queryAllNotionPages(ctx, s.client, s.databaseID)
	if err != nil {
		return res, domain.Wrap(domain.KindUpstream, "NotionSync", err)
	}

	s.log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	valid := make(map[string]bool, len(rows))
	for _, tx := range rows {
		valid[strconv.FormatInt(tx.ID, 10)] = true
	}

	existing := make(map[string]string)
	for _, page := range pages {
		txID := extractTransactionID(page)
		_, dup := existing[txID]
		if txID != "" && valid[txID] && !dup {
			existing[txID] = string(page.ID)
			continue
		}

		if s.dryRun {
			s.log.Info().Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			res.Archived++
			continue
		}
		if err := s.client.ArchivePage(ctx, string(page.ID)); err != nil {
			s.log.Warn().Err(err).Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			res.Failed++
			continue
		}
		res.Archived++
	}

	for i := 0; i < len(rows); i += BatchSize {
		end := i + BatchSize
		if end > len(rows) {
			end = len(rows)
		}

		s.log.Debug().Int("batch_start", i).Int("batch_end", end).Msg("Processing batch")

		for _, tx := range rows[i:end] {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			s.syncRow(ctx, tx, existing, &res)
		}
	}

	s.log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Transaction sync completed")

	return res, nil
}

func (s *Syncer) syncRow(ctx context.Context, tx domain.Transaction, existing map[string]string, res *Result) {
	txID := strconv.FormatInt(tx.ID, 10)
	pageID, found := existing[txID]

	if s.dryRun {
		if found {
			res.Updated++
		} else {
			res.Created++
		}
		return
	}

	props := TransactionToNotionProperties(tx)
	if found {
		if _, err := s.client.UpdatePage(ctx, pageID, props); err != nil {
			s.log.Warn().Err(err).Str("transaction_id", txID).Str("page_id", pageID).Msg("Failed to update Notion page")
			res.Failed++
			return
		}
		res.Updated++
		return
	}

	page, err := s.client.CreatePage(ctx, s.databaseID, props)
	if err != nil {
		s.log.Warn().Err(err).Str("transaction_id", txID).Msg("Failed to create Notion page")
		res.Failed++
		return
	}
	s.log.Debug().Str("transaction_id", txID).Str("page_id", string(page.ID)).Msg("Created Notion page")
	res.Created++
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, client NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
