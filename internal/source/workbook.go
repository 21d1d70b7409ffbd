package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dvloznov/customer-rfm/internal/gcs"
	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/xuri/excelize/v2"
)

// Workbook reads every sheet of an Excel workbook, or a configured subset, and
// tags each row with its sheet name as the period.
type Workbook struct {
	path    string
	sheets  []string
	columns Columns
	storage gcs.StorageService
}

// NewWorkbook creates a workbook source. path may be a local file or a gs://
// URI; storage is only used for the latter and may be nil otherwise.
func NewWorkbook(path string, columns Columns, sheets []string, storage gcs.StorageService) *Workbook {
	return &Workbook{
		path:    path,
		sheets:  sheets,
		columns: columns,
		storage: storage,
	}
}

func (w *Workbook) Describe() string {
	return "workbook:" + w.path
}

// Load opens the workbook and reads its rows. A missing file is ErrSourceNotFound.
func (w *Workbook) Load(ctx context.Context) ([]rfm.RawTransactionRow, error) {
	var (
		f   *excelize.File
		err error
	)

	if gcs.IsURI(w.path) {
		if w.storage == nil {
			return nil, fmt.Errorf("Workbook.Load: %s needs a storage service", w.path)
		}
		data, ferr := w.storage.FetchFromGCS(ctx, w.path)
		if ferr != nil {
			return nil, fmt.Errorf("Workbook.Load: %w: %w", ErrSourceNotFound, ferr)
		}
		f, err = excelize.OpenReader(bytes.NewReader(data))
	} else {
		if _, serr := os.Stat(w.path); errors.Is(serr, os.ErrNotExist) {
			return nil, fmt.Errorf("Workbook.Load: %s: %w", w.path, ErrSourceNotFound)
		}
		f, err = excelize.OpenFile(w.path)
	}
	if err != nil {
		return nil, fmt.Errorf("Workbook.Load: opening %s: %w", w.path, err)
	}
	defer f.Close()

	return readFile(ctx, f, w.columns, w.sheets)
}

// ReadWorkbook reads rows from a workbook stream.
func ReadWorkbook(ctx context.Context, r io.Reader, columns Columns, sheets []string) ([]rfm.RawTransactionRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ReadWorkbook: opening workbook: %w", err)
	}
	defer f.Close()

	return readFile(ctx, f, columns, sheets)
}

func readFile(ctx context.Context, f *excelize.File, columns Columns, sheets []string) ([]rfm.RawTransactionRow, error) {
	log := logger.FromContext(ctx)

	available := f.GetSheetList()
	selected, err := selectSheets(available, sheets)
	if err != nil {
		return nil, err
	}

	var out []rfm.RawTransactionRow
	for _, sheet := range selected {
		// Raw values keep dates as serial numbers and identifiers free of
		// number formatting.
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("readFile: reading sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			log.Warn().Str("sheet", sheet).Msg("Skipping empty sheet")
			continue
		}

		idx, missing := columns.locate(rows[0])
		if len(missing) > 0 {
			return nil, fmt.Errorf("readFile: sheet %q: %w: %s", sheet, ErrMissingColumn, strings.Join(missing, ", "))
		}

		before := len(out)
		for _, row := range rows[1:] {
			if blank(row) {
				continue
			}
			out = append(out, rfm.RawTransactionRow{
				Identifier:    cell(row, idx.identifier),
				InvoiceNumber: cell(row, idx.invoiceNumber),
				InvoiceDate:   cell(row, idx.invoiceDate),
				ItemName:      cell(row, idx.itemName),
				NetAmount:     cell(row, idx.netAmount),
				Period:        sheet,
				Seq:           len(out),
			})
		}
		log.Debug().Str("sheet", sheet).Int("rows", len(out)-before).Msg("Sheet read")
	}

	return out, nil
}

// selectSheets keeps workbook order. Requested names match case-insensitively.
func selectSheets(available, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return available, nil
	}

	want := make(map[string]bool, len(requested))
	for _, s := range requested {
		want[strings.ToLower(strings.TrimSpace(s))] = true
	}

	var selected []string
	for _, s := range available {
		key := strings.ToLower(s)
		if want[key] {
			selected = append(selected, s)
			delete(want, key)
		}
	}
	if len(want) > 0 {
		var missing []string
		for _, s := range requested {
			if want[strings.ToLower(strings.TrimSpace(s))] {
				missing = append(missing, s)
			}
		}
		return nil, fmt.Errorf("selectSheets: %w: %s", ErrSheetNotFound, strings.Join(missing, ", "))
	}
	return selected, nil
}
