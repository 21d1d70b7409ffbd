package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// insertBatchSize keeps each streaming insert request well under the API limits.
const insertBatchSize = 500

// InsertCustomerRFMWithClient streams customer rows into customer_rfm.
func InsertCustomerRFMWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*CustomerRFMRow) error {
	if len(rows) == 0 {
		return nil
	}

	// Use fully qualified table name to avoid project ID issues
	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(customerRFMTable).Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertCustomerRFM: inserting rows %d-%d: %w", start, end, err)
		}
	}

	return nil
}

// SegmentCountsWithClient returns customers and monetary totals per segment.
func SegmentCountsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string) ([]*SegmentCountRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			segment,
			COUNT(*) AS customers,
			SUM(monetary) AS monetary
		FROM %s
		WHERE run_id = @run_id
		GROUP BY segment
		ORDER BY customers DESC, segment
	`, ds.Table(customerRFMTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("SegmentCounts: query read: %w", err)
	}

	var rows []*SegmentCountRow
	for {
		var r SegmentCountRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("SegmentCounts: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// ListCustomersWithClient returns the customers of a run by descending
// monetary value. An empty segment matches every segment.
func ListCustomersWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID, segment string, limit int) ([]*CustomerRFMRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			identifier,
			recency_days,
			frequency,
			monetary,
			last_invoice_date,
			reference_date,
			r_score,
			f_score,
			m_score,
			rfm_code,
			segment,
			created_ts
		FROM %s
		WHERE run_id = @run_id
		  AND (@segment = '' OR segment = @segment)
		ORDER BY monetary DESC, identifier
		LIMIT @limit
	`, ds.Table(customerRFMTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "segment", Value: segment},
		{Name: "limit", Value: normalizeLimit(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCustomers: query read: %w", err)
	}

	var rows []*CustomerRFMRow
	for {
		var r CustomerRFMRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCustomers: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
