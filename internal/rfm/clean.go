package rfm

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// DefaultDateLayouts are tried in order when parsing an invoice date.
// Slash dates are month-first, matching the parser the extracts were built for.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"01/02/2006 15:04:05",
	"2006/01/02",
	"02-01-2006",
	"02-Jan-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// maxExcelSerial is 9999-12-31 in the 1900 date system.
const maxExcelSerial = 2958465

// DateParser converts raw invoice date text into a UTC time.
type DateParser struct {
	layouts []string
}

// NewDateParser builds a parser for the given layouts, falling back to
// DefaultDateLayouts when none are supplied.
func NewDateParser(layouts []string) *DateParser {
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	return &DateParser{layouts: layouts}
}

// Parse tries every layout, then an Excel serial date number.
func (p *DateParser) Parse(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range p.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial <= 0 || serial > maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ParseAmount converts raw net-sale text to a signed decimal.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// CleanStats counts the rows removed by each cleaning rule.
type CleanStats struct {
	Input             int
	MissingIdentifier int
	InvalidDate       int
	InvalidAmount     int
	MissingInvoice    int
	NonPositive       int
	Duplicate         int
	Kept              int
}

// Dropped returns the total number of rows removed.
func (s CleanStats) Dropped() int {
	return s.Input - s.Kept
}

// Cleaner coerces dates and amounts and removes rows that cannot take part in
// segmentation. Bad rows are dropped, never reported as errors.
type Cleaner struct {
	dates *DateParser
}

// NewCleaner creates a Cleaner using the given date layouts.
func NewCleaner(dateLayouts []string) *Cleaner {
	return &Cleaner{dates: NewDateParser(dateLayouts)}
}

// duplicateKey is the exact-duplicate key. It does not distinguish two genuine
// purchases of the same item for the same amount on one invoice.
type duplicateKey struct {
	identifier string
	invoice    string
	date       string
	item       string
	amount     string
}

// Clean runs the cleaning rules over rows whose identifiers are already canonical.
func (c *Cleaner) Clean(rows []RawTransactionRow) ([]CleanTransaction, CleanStats) {
	stats := CleanStats{Input: len(rows)}
	out := make([]CleanTransaction, 0, len(rows))
	seen := make(map[duplicateKey]struct{}, len(rows))

	for _, row := range rows {
		date, dateOK := c.dates.Parse(row.InvoiceDate)
		amount, amountOK := ParseAmount(row.NetAmount)

		switch {
		case row.Identifier == "":
			stats.MissingIdentifier++
			continue
		case !dateOK:
			stats.InvalidDate++
			continue
		case !amountOK:
			stats.InvalidAmount++
			continue
		case strings.TrimSpace(row.InvoiceNumber) == "":
			stats.MissingInvoice++
			continue
		case !amount.IsPositive():
			stats.NonPositive++
			continue
		}

		key := duplicateKey{
			identifier: row.Identifier,
			invoice:    row.InvoiceNumber,
			date:       date.Format(time.RFC3339Nano),
			item:       row.ItemName,
			amount:     amount.String(),
		}
		if _, dup := seen[key]; dup {
			stats.Duplicate++
			continue
		}
		seen[key] = struct{}{}

		out = append(out, CleanTransaction{
			Identifier:    row.Identifier,
			InvoiceNumber: row.InvoiceNumber,
			InvoiceDate:   date,
			ItemName:      row.ItemName,
			Amount:        amount,
			Period:        row.Period,
			Seq:           row.Seq,
		})
	}

	stats.Kept = len(out)
	return out, stats
}
