package bigquery

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// Run statuses stored in segmentation_runs.status.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("segmentation run not found")

// RunRepository tracks segmentation runs.
type RunRepository interface {
	// StartRun inserts a segmentation_runs row with status=RUNNING.
	StartRun(ctx context.Context, runID, source string) error

	// MarkRunFailed sets status=FAILED, finished_ts and error_message. Errors are logged, not returned.
	MarkRunFailed(ctx context.Context, runID string, runErr error)

	// MarkRunSucceeded sets status=SUCCESS, finished_ts, the customer count and the reference date.
	MarkRunSucceeded(ctx context.Context, runID string, customers int, referenceDate time.Time) error
}

// ResultsRepository stores and reads the per-run customer table.
type ResultsRepository interface {
	// InsertCustomerRFM inserts a batch of customer rows for one run.
	InsertCustomerRFM(ctx context.Context, rows []*CustomerRFMRow) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*RunRow, error)

	// GetRun returns one run or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*RunRow, error)

	// SegmentCounts returns customers and monetary totals per segment for a run.
	SegmentCounts(ctx context.Context, runID string) ([]*SegmentCountRow, error)

	// ListCustomers returns the customers of a run, optionally restricted to one segment.
	ListCustomers(ctx context.Context, runID, segment string, limit int) ([]*CustomerRFMRow, error)
}

// RawTransactionRepository reads the raw_transactions staging table.
type RawTransactionRepository interface {
	// QueryRawTransactions returns raw rows in source order; an empty periods slice means all periods.
	QueryRawTransactions(ctx context.Context, periods []string) ([]*RawTransactionRow, error)
}

// RunRow represents a segmentation run record in BigQuery.
type RunRow struct {
	RunID  string `bigquery:"run_id" json:"run_id"`
	Source string `bigquery:"source" json:"source"`

	StartedTS  time.Time              `bigquery:"started_ts" json:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts" json:"finished_ts"`

	Status       string `bigquery:"status" json:"status"`
	ErrorMessage string `bigquery:"error_message" json:"error_message,omitempty"`

	Customers     bigquery.NullInt64 `bigquery:"customers" json:"customers"`
	ReferenceDate bigquery.NullDate  `bigquery:"reference_date" json:"reference_date"`
}

// RawTransactionRow is one line of the raw_transactions staging table. Every
// business column is a nullable string so that cleaning happens in the pipeline.
type RawTransactionRow struct {
	Period    string `bigquery:"period"`
	SourceRow int64  `bigquery:"source_row"`

	Identifier    bigquery.NullString `bigquery:"c_mobile"`
	InvoiceNumber bigquery.NullString `bigquery:"invno"`
	InvoiceDate   bigquery.NullString `bigquery:"invdate"`
	ItemName      bigquery.NullString `bigquery:"itemname"`
	NetAmount     bigquery.NullString `bigquery:"n_net_sales"`
}

// CustomerRFMRow represents one customer of one run in BigQuery.
type CustomerRFMRow struct {
	RunID      string `bigquery:"run_id" json:"run_id"`
	Identifier string `bigquery:"identifier" json:"identifier"`

	RecencyDays int64    `bigquery:"recency_days" json:"recency_days"`
	Frequency   int64    `bigquery:"frequency" json:"frequency"`
	Monetary    *big.Rat `bigquery:"monetary" json:"monetary"`

	LastInvoiceDate civil.Date `bigquery:"last_invoice_date" json:"last_invoice_date"`
	ReferenceDate   civil.Date `bigquery:"reference_date" json:"reference_date"`

	RScore  int64  `bigquery:"r_score" json:"r_score"`
	FScore  int64  `bigquery:"f_score" json:"f_score"`
	MScore  int64  `bigquery:"m_score" json:"m_score"`
	RFMCode string `bigquery:"rfm_code" json:"rfm_code"`
	Segment string `bigquery:"segment" json:"segment"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// MarshalJSON renders Monetary as a fixed two-decimal string.
func (c CustomerRFMRow) MarshalJSON() ([]byte, error) {
	type Alias CustomerRFMRow
	return json.Marshal(&struct {
		Monetary string `json:"monetary"`
		*Alias
	}{
		Monetary: ratString(c.Monetary),
		Alias:    (*Alias)(&c),
	})
}

// SegmentCountRow is one line of the per-segment summary of a run.
type SegmentCountRow struct {
	Segment   string   `bigquery:"segment" json:"segment"`
	Customers int64    `bigquery:"customers" json:"customers"`
	Monetary  *big.Rat `bigquery:"monetary" json:"monetary"`
}

// MarshalJSON renders Monetary as a fixed two-decimal string.
func (s SegmentCountRow) MarshalJSON() ([]byte, error) {
	type Alias SegmentCountRow
	return json.Marshal(&struct {
		Monetary string `json:"monetary"`
		*Alias
	}{
		Monetary: ratString(s.Monetary),
		Alias:    (*Alias)(&s),
	})
}

func ratString(r *big.Rat) string {
	if r == nil {
		return "0.00"
	}
	return r.FloatString(2)
}
