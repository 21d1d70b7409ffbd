// Package source loads raw transaction rows for a segmentation run.
package source

import (
	"errors"
	"strings"
)

var (
	// ErrSourceNotFound is returned when the configured input does not exist.
	ErrSourceNotFound = errors.New("input source not found")

	// ErrMissingColumn is returned when a sheet lacks a required header.
	ErrMissingColumn = errors.New("required column missing")

	// ErrSheetNotFound is returned when a requested sheet is absent from the workbook.
	ErrSheetNotFound = errors.New("sheet not found")
)

// Columns names the header cells holding each raw field.
type Columns struct {
	Identifier    string
	InvoiceNumber string
	InvoiceDate   string
	ItemName      string
	NetAmount     string
}

// DefaultColumns are the headers of the store's point-of-sale export.
var DefaultColumns = Columns{
	Identifier:    "c_mobile",
	InvoiceNumber: "invno",
	InvoiceDate:   "invdate",
	ItemName:      "itemname",
	NetAmount:     "n_net_sales",
}

// columnIndex holds the position of each field in a header row.
type columnIndex struct {
	identifier, invoiceNumber, invoiceDate, itemName, netAmount int
}

// locate finds each configured column in header, ignoring case and surrounding space.
// It returns the names of the columns that could not be found.
func (c Columns) locate(header []string) (columnIndex, []string) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := pos[key]; !dup {
			pos[key] = i
		}
	}

	var missing []string
	find := func(name string) int {
		i, ok := pos[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	idx := columnIndex{
		identifier:    find(c.Identifier),
		invoiceNumber: find(c.InvoiceNumber),
		invoiceDate:   find(c.InvoiceDate),
		itemName:      find(c.ItemName),
		netAmount:     find(c.NetAmount),
	}
	return idx, missing
}

// cell returns row[i], or "" when the row is shorter.
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
