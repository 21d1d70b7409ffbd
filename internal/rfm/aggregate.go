package rfm

import (
	"time"

	"github.com/shopspring/decimal"
)

type invoiceGroupKey struct {
	identifier string
	invoice    string
	date       string
}

// AggregateInvoices collapses line items into one Invoice per
// (identifier, invoice number, invoice date), summing the amounts.
// Invoices come back in the order their first line item was seen.
func AggregateInvoices(txs []CleanTransaction) []Invoice {
	index := make(map[invoiceGroupKey]int, len(txs))
	invoices := make([]Invoice, 0, len(txs))

	for _, tx := range txs {
		key := invoiceGroupKey{
			identifier: tx.Identifier,
			invoice:    tx.InvoiceNumber,
			date:       tx.InvoiceDate.Format(time.RFC3339Nano),
		}
		if i, ok := index[key]; ok {
			invoices[i].Amount = invoices[i].Amount.Add(tx.Amount)
			continue
		}
		index[key] = len(invoices)
		invoices = append(invoices, Invoice{
			InvoiceKey: InvoiceKey{
				Identifier:    tx.Identifier,
				InvoiceNumber: tx.InvoiceNumber,
				InvoiceDate:   tx.InvoiceDate,
			},
			Amount: tx.Amount,
			Seq:    tx.Seq,
		})
	}

	return invoices
}

// TotalTransactionAmount sums the amounts of all clean transactions.
func TotalTransactionAmount(txs []CleanTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}

// TotalInvoiceAmount sums the amounts of all invoices.
func TotalInvoiceAmount(invoices []Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.Amount)
	}
	return total
}
