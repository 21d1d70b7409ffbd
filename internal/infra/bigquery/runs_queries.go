package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/customer-rfm/internal/bigquery"
	"google.golang.org/api/iterator"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = bq.ErrRunNotFound

// DefaultListLimit applies when a caller passes a non-positive limit.
const DefaultListLimit = 50

const runColumns = `
			run_id,
			source,
			started_ts,
			finished_ts,
			status,
			error_message,
			customers,
			reference_date`

// ListRunsWithClient returns the most recent runs, newest first.
func ListRunsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, limit int) ([]*RunRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, runColumns, ds.Table(runsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: normalizeLimit(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: query read: %w", err)
	}

	var runs []*RunRow
	for {
		var r RunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRuns: iter next: %w", err)
		}
		runs = append(runs, &r)
	}

	return runs, nil
}

// GetRunWithClient returns one run or ErrRunNotFound.
func GetRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string) (*RunRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE run_id = @run_id
		LIMIT 1
	`, runColumns, ds.Table(runsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetRun: query read: %w", err)
	}

	var r RunRow
	err = it.Next(&r)
	if err == iterator.Done {
		return nil, fmt.Errorf("GetRun: %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetRun: iter next: %w", err)
	}

	return &r, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
