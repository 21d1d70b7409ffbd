package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/customer-rfm/internal/bigquery"
)

// Re-export interfaces and rows from shared package for backward compatibility
type RunRepository = bq.RunRepository
type ResultsRepository = bq.ResultsRepository
type RawTransactionRepository = bq.RawTransactionRepository

type RunRow = bq.RunRow
type RawTransactionRow = bq.RawTransactionRow
type CustomerRFMRow = bq.CustomerRFMRow
type SegmentCountRow = bq.SegmentCountRow

// Table names inside the dataset.
const (
	runsTable            = "segmentation_runs"
	customerRFMTable     = "customer_rfm"
	DefaultRawTable      = "raw_transactions"
	schemaMigrationTable = "schema_migrations"
)

// Dataset addresses one BigQuery dataset.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the fully qualified, backquoted name of a table in the dataset.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// Repository is the concrete implementation of the run, results and raw
// transaction repositories. It holds a shared BigQuery client to avoid
// creating a new connection for each operation.
type Repository struct {
	client   *bigquery.Client
	dataset  Dataset
	rawTable string
}

// NewRepository creates a Repository with its own BigQuery client.
func NewRepository(ctx context.Context, dataset Dataset) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, dataset.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, dataset), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, dataset Dataset) *Repository {
	return &Repository{
		client:   client,
		dataset:  dataset,
		rawTable: DefaultRawTable,
	}
}

// WithRawTable returns a copy reading raw transactions from table.
func (r *Repository) WithRawTable(table string) *Repository {
	cp := *r
	if table != "" {
		cp.rawTable = table
	}
	return &cp
}

// Client exposes the shared client, e.g. for the migrator.
func (r *Repository) Client() *bigquery.Client {
	return r.client
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// StartRun delegates to StartRunWithClient with the shared client.
func (r *Repository) StartRun(ctx context.Context, runID, source string) error {
	return StartRunWithClient(ctx, r.client, r.dataset, runID, source)
}

// MarkRunFailed delegates to MarkRunFailedWithClient with the shared client.
func (r *Repository) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	MarkRunFailedWithClient(ctx, r.client, r.dataset, runID, runErr)
}

// MarkRunSucceeded delegates to MarkRunSucceededWithClient with the shared client.
func (r *Repository) MarkRunSucceeded(ctx context.Context, runID string, customers int, referenceDate time.Time) error {
	return MarkRunSucceededWithClient(ctx, r.client, r.dataset, runID, customers, referenceDate)
}

// InsertCustomerRFM delegates to InsertCustomerRFMWithClient with the shared client.
func (r *Repository) InsertCustomerRFM(ctx context.Context, rows []*CustomerRFMRow) error {
	return InsertCustomerRFMWithClient(ctx, r.client, r.dataset, rows)
}

// ListRuns delegates to ListRunsWithClient with the shared client.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	return ListRunsWithClient(ctx, r.client, r.dataset, limit)
}

// GetRun delegates to GetRunWithClient with the shared client.
func (r *Repository) GetRun(ctx context.Context, runID string) (*RunRow, error) {
	return GetRunWithClient(ctx, r.client, r.dataset, runID)
}

// SegmentCounts delegates to SegmentCountsWithClient with the shared client.
func (r *Repository) SegmentCounts(ctx context.Context, runID string) ([]*SegmentCountRow, error) {
	return SegmentCountsWithClient(ctx, r.client, r.dataset, runID)
}

// ListCustomers delegates to ListCustomersWithClient with the shared client.
func (r *Repository) ListCustomers(ctx context.Context, runID, segment string, limit int) ([]*CustomerRFMRow, error) {
	return ListCustomersWithClient(ctx, r.client, r.dataset, runID, segment, limit)
}

// QueryRawTransactions delegates to QueryRawTransactionsWithClient with the shared client.
func (r *Repository) QueryRawTransactions(ctx context.Context, periods []string) ([]*RawTransactionRow, error) {
	return QueryRawTransactionsWithClient(ctx, r.client, r.dataset, r.rawTable, periods)
}

var (
	_ RunRepository            = (*Repository)(nil)
	_ ResultsRepository        = (*Repository)(nil)
	_ RawTransactionRepository = (*Repository)(nil)
)
