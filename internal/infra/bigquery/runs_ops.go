package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/customer-rfm/internal/bigquery"
	"github.com/dvloznov/customer-rfm/internal/logger"
)

// maxErrorMessageLen caps segmentation_runs.error_message.
const maxErrorMessageLen = 2000

// StartRunWithClient inserts a new row into segmentation_runs with status=RUNNING.
func StartRunWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID, source string) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			source,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@source,
			@started_ts,
			@status
		)
	`, ds.Table(runsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "source", Value: source},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: bq.RunStatusRunning},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}
	return nil
}

// MarkRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Failures are logged only; the run error is what the caller reports.
func MarkRunFailedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, runErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, ds.Table(runsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: truncateErrorMessage(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkRunFailed: updating run")
	}
}

// MarkRunSucceededWithClient sets status=SUCCESS, finished_ts, the customer
// count and the reference date, and clears error_message.
func MarkRunSucceededWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, runID string, customers int, referenceDate time.Time) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    customers = @customers,
		    reference_date = @reference_date,
		    error_message = ""
		WHERE run_id = @run_id
	`, ds.Table(runsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "customers", Value: customers},
		{Name: "reference_date", Value: civil.DateOf(referenceDate)},
		{Name: "run_id", Value: runID},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

func truncateErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}

// runAndWait runs a DML or DDL statement and waits for the job.
func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
