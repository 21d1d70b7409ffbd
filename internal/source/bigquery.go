package source

import (
	"context"
	"fmt"

	bq "github.com/dvloznov/customer-rfm/internal/bigquery"
	"github.com/dvloznov/customer-rfm/internal/rfm"
)

// BigQuery reads the raw_transactions staging table.
type BigQuery struct {
	repo    bq.RawTransactionRepository
	table   string
	periods []string
}

// NewBigQuery creates a source over repo; periods optionally restricts the load.
func NewBigQuery(repo bq.RawTransactionRepository, table string, periods []string) *BigQuery {
	return &BigQuery{repo: repo, table: table, periods: periods}
}

func (b *BigQuery) Describe() string {
	return "bigquery:" + b.table
}

// Load maps staging rows to raw rows. NULL cells become empty strings and are
// dropped by the cleaner like blank spreadsheet cells.
func (b *BigQuery) Load(ctx context.Context) ([]rfm.RawTransactionRow, error) {
	rows, err := b.repo.QueryRawTransactions(ctx, b.periods)
	if err != nil {
		return nil, fmt.Errorf("BigQuery.Load: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("BigQuery.Load: %s has no rows: %w", b.table, ErrSourceNotFound)
	}

	out := make([]rfm.RawTransactionRow, len(rows))
	for i, r := range rows {
		out[i] = rfm.RawTransactionRow{
			Identifier:    r.Identifier.StringVal,
			InvoiceNumber: r.InvoiceNumber.StringVal,
			InvoiceDate:   r.InvoiceDate.StringVal,
			ItemName:      r.ItemName.StringVal,
			NetAmount:     r.NetAmount.StringVal,
			Period:        r.Period,
			Seq:           i,
		}
	}
	return out, nil
}
