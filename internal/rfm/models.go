package rfm

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTransactionRow is one line item as read from a source extract.
// All fields are kept as text; nothing is validated at this point.
type RawTransactionRow struct {
	Identifier    string // raw phone / customer field
	InvoiceNumber string
	InvoiceDate   string
	ItemName      string
	NetAmount     string
	Period        string // sheet or month label the row came from

	// Seq is the position of the row in the combined input, assigned on load.
	Seq int
}

// CleanTransaction is a line item that survived identifier validation and cleaning.
type CleanTransaction struct {
	Identifier    string // canonical 10-digit identifier
	InvoiceNumber string
	InvoiceDate   time.Time
	ItemName      string
	Amount        decimal.Decimal // always > 0
	Period        string

	// Seq is the position of the source row in the combined input.
	Seq int
}

// InvoiceKey identifies a single invoice for a customer.
type InvoiceKey struct {
	Identifier    string
	InvoiceNumber string
	InvoiceDate   time.Time
}

// Invoice is the per-invoice total of one or more line items.
type Invoice struct {
	InvoiceKey
	Amount decimal.Decimal
	Seq    int
}

// CustomerRFM is one row of the output table.
type CustomerRFM struct {
	Identifier      string
	Recency         int
	Frequency       int
	Monetary        decimal.Decimal
	LastInvoiceDate time.Time

	RScore  int
	FScore  int
	MScore  int
	Code    string
	Segment Segment

	// Seq is the first-seen position of the customer, used to break score ties.
	Seq int
}
