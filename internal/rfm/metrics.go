package rfm

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoInvoices is returned when there is nothing to compute metrics from.
var ErrNoInvoices = errors.New("no invoices to compute RFM metrics from")

const day = 24 * time.Hour

// ReferenceDate returns the latest invoice date in the whole set.
func ReferenceDate(invoices []Invoice) time.Time {
	if len(invoices) == 0 {
		return time.Time{}
	}
	ref := invoices[0].InvoiceDate
	for _, inv := range invoices[1:] {
		if inv.InvoiceDate.After(ref) {
			ref = inv.InvoiceDate
		}
	}
	return ref
}

// ComputeRFM derives Recency, Frequency and Monetary for every customer in
// invoices. Recency is measured in whole days against the global reference date
// returned alongside. Customers are returned in first-seen order.
func ComputeRFM(invoices []Invoice) ([]*CustomerRFM, time.Time, error) {
	if len(invoices) == 0 {
		return nil, time.Time{}, ErrNoInvoices
	}
	ref := ReferenceDate(invoices)

	byID := make(map[string]*CustomerRFM)
	distinct := make(map[string]map[string]struct{})
	var customers []*CustomerRFM

	for _, inv := range invoices {
		c, ok := byID[inv.Identifier]
		if !ok {
			c = &CustomerRFM{
				Identifier:      inv.Identifier,
				Monetary:        decimal.Zero,
				LastInvoiceDate: inv.InvoiceDate,
				Seq:             inv.Seq,
			}
			byID[inv.Identifier] = c
			distinct[inv.Identifier] = make(map[string]struct{})
			customers = append(customers, c)
		}

		c.Monetary = c.Monetary.Add(inv.Amount)
		if inv.InvoiceDate.After(c.LastInvoiceDate) {
			c.LastInvoiceDate = inv.InvoiceDate
		}
		distinct[inv.Identifier][inv.InvoiceNumber] = struct{}{}
	}

	for _, c := range customers {
		c.Frequency = len(distinct[c.Identifier])
		c.Recency = int(ref.Sub(c.LastInvoiceDate) / day)
	}

	return customers, ref, nil
}
