package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// QueryRawTransactionsWithClient reads the raw staging table in source_row
// order. An empty periods slice selects every period.
func QueryRawTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, table string, periods []string) ([]*RawTransactionRow, error) {
	if periods == nil {
		periods = []string{}
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			period,
			source_row,
			c_mobile,
			invno,
			invdate,
			itemname,
			n_net_sales
		FROM %s
		WHERE ARRAY_LENGTH(@periods) = 0 OR period IN UNNEST(@periods)
		ORDER BY source_row
	`, ds.Table(table)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "periods", Value: periods},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryRawTransactions: query read: %w", err)
	}

	var rows []*RawTransactionRow
	for {
		var r RawTransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryRawTransactions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
