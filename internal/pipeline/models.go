package pipeline

import (
	"time"

	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/shopspring/decimal"
)

// Summary holds the row counts of one run, stage by stage.
type Summary struct {
	RawRows             int
	ValidIdentifierRows int
	CleanRows           int
	Invoices            int
	Customers           int

	Clean rfm.CleanStats

	// PeriodRows counts raw rows per source period (sheet or month).
	PeriodRows map[string]int

	Segments      map[rfm.Segment]int
	TotalMonetary decimal.Decimal
}

// Result is the output of a successful run, handed to every Sink.
type Result struct {
	RunID         string
	Source        string
	StartedAt     time.Time
	ReferenceDate time.Time
	Customers     []*rfm.CustomerRFM
	Summary       Summary
}

// SegmentShare returns the fraction of customers in segment s.
func (r *Result) SegmentShare(s rfm.Segment) float64 {
	if r.Summary.Customers == 0 {
		return 0
	}
	return float64(r.Summary.Segments[s]) / float64(r.Summary.Customers)
}

// SegmentMonetary sums Monetary over the customers of segment s.
func (r *Result) SegmentMonetary(s rfm.Segment) decimal.Decimal {
	total := decimal.Zero
	for _, c := range r.Customers {
		if c.Segment == s {
			total = total.Add(c.Monetary)
		}
	}
	return total
}
