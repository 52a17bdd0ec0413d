package warehouse

import (
	"cloud.google.com/go/bigquery"
)

// Schema is the table layout the ledger CSV is loaded into. Column order
// matches the backing file.
var Schema = bigquery.Schema{
	{Name: "id", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "type", Type: bigquery.StringFieldType},
	{Name: "amount", Type: bigquery.NumericFieldType, Required: true},
	{Name: "note", Type: bigquery.StringFieldType},
	{Name: "category", Type: bigquery.StringFieldType},
	{Name: "date", Type: bigquery.DateFieldType},
}

// MonthlyRow is one row of the monthly totals query.
type MonthlyRow struct {
	Month string `bigquery:"month"` // YYYY-MM
	Type  string `bigquery:"type"`
	Total string `bigquery:"total"` // NUMERIC cast to STRING
	Count int64  `bigquery:"count"`
}
