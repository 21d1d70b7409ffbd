package sink

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/customer-rfm/internal/bigquery"
	"github.com/dvloznov/customer-rfm/internal/pipeline"
)

// BigQuery streams the customer table into customer_rfm, keyed by run id.
type BigQuery struct {
	repo bq.ResultsRepository
}

func NewBigQuery(repo bq.ResultsRepository) *BigQuery {
	return &BigQuery{repo: repo}
}

func (b *BigQuery) Name() string { return "bigquery" }

func (b *BigQuery) Write(ctx context.Context, result *pipeline.Result) error {
	if err := b.repo.InsertCustomerRFM(ctx, CustomerRows(result)); err != nil {
		return fmt.Errorf("BigQuery.Write: %w", err)
	}
	return nil
}

// CustomerRows converts the customer table to customer_rfm rows.
func CustomerRows(result *pipeline.Result) []*bq.CustomerRFMRow {
	ref := civil.DateOf(result.ReferenceDate)
	rows := make([]*bq.CustomerRFMRow, len(result.Customers))
	for i, c := range result.Customers {
		rows[i] = &bq.CustomerRFMRow{
			RunID:           result.RunID,
			Identifier:      c.Identifier,
			RecencyDays:     int64(c.Recency),
			Frequency:       int64(c.Frequency),
			Monetary:        c.Monetary.Rat(),
			LastInvoiceDate: civil.DateOf(c.LastInvoiceDate),
			ReferenceDate:   ref,
			RScore:          int64(c.RScore),
			FScore:          int64(c.FScore),
			MScore:          int64(c.MScore),
			RFMCode:         c.Code,
			Segment:         string(c.Segment),
			CreatedTS:       result.StartedAt,
		}
	}
	return rows
}
