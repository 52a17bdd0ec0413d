package warehouse

import (
	"bytes"
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Repository is the storage side of the warehouse.
type Repository interface {
	// LoadCSV replaces the table contents with data (header row first).
	LoadCSV(ctx context.Context, data []byte) error

	// MonthlyTotals sums amounts per month and type.
	MonthlyTotals(ctx context.Context) ([]MonthlyRow, error)

	// Table returns the fully qualified table name.
	Table() string

	Close() error
}

// BigQueryRepository is the Repository backed by BigQuery. It holds a shared
// client for all operations.
type BigQueryRepository struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
}

// NewBigQueryRepository creates a client for project. Without a credentials
// file Application Default Credentials are used.
func NewBigQueryRepository(ctx context.Context, project, dataset, table, credentialsFile string) (*BigQueryRepository, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRepository: creating client: %w", err)
	}
	return &BigQueryRepository{client: client, project: project, dataset: dataset, table: table}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Table implements Repository.
func (r *BigQueryRepository) Table() string {
	return fmt.Sprintf("%s.%s.%s", r.project, r.dataset, r.table)
}

// LoadCSV runs a load job with WRITE_TRUNCATE and waits for it.
func (r *BigQueryRepository) LoadCSV(ctx context.Context, data []byte) error {
	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.CSV
	src.SkipLeadingRows = 1
	src.AllowQuotedNewlines = true
	src.Schema = Schema

	loader := r.client.DatasetInProject(r.project, r.dataset).Table(r.table).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteTruncate

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("LoadCSV: starting load job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("LoadCSV: waiting for load job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("LoadCSV: load job failed: %w", err)
	}
	return nil
}

// MonthlyTotals implements Repository.
func (r *BigQueryRepository) MonthlyTotals(ctx context.Context) ([]MonthlyRow, error) {
	q := r.client.Query(monthlyTotalsSQL(r.Table()))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("MonthlyTotals: query read: %w", err)
	}

	var rows []MonthlyRow
	for {
		var row MonthlyRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("MonthlyTotals: iter next: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func monthlyTotalsSQL(table string) string {
	return fmt.Sprintf(`
		SELECT
		  FORMAT_DATE('%%Y-%%m', date) AS month,
		  type,
		  CAST(SUM(amount) AS STRING) AS total,
		  COUNT(*) AS count
		FROM `+"`%s`"+`
		WHERE date IS NOT NULL
		GROUP BY month, type
		ORDER BY month, type
	`, table)
}

var _ Repository = (*BigQueryRepository)(nil)
