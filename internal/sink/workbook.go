// Package sink writes the customer table of a finished run.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dvloznov/customer-rfm/internal/gcs"
	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/dvloznov/customer-rfm/internal/pipeline"
	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/xuri/excelize/v2"
)

// CustomerHeader is the header row of the customer sheet.
var CustomerHeader = []interface{}{
	"c_mobile", "Recency", "Frequency", "Monetary",
	"R_score", "F_score", "M_score", "RFM_Score", "Segment",
}

// SummaryHeader is the header row of the segment summary sheet.
var SummaryHeader = []interface{}{"Segment", "Customers", "Share", "Monetary", "Rule"}

// Workbook writes the customer table, and optionally a segment summary, to an
// .xlsx file. A gs:// path is written locally first and then uploaded.
type Workbook struct {
	path         string
	sheet        string
	summarySheet string
	storage      gcs.StorageService
}

func NewWorkbook(path, sheet, summarySheet string, storage gcs.StorageService) *Workbook {
	return &Workbook{path: path, sheet: sheet, summarySheet: summarySheet, storage: storage}
}

func (w *Workbook) Name() string { return "workbook" }

func (w *Workbook) Write(ctx context.Context, result *pipeline.Result) error {
	log := logger.FromContext(ctx)

	f, err := BuildWorkbook(result, w.sheet, w.summarySheet)
	if err != nil {
		return fmt.Errorf("Workbook.Write: %w", err)
	}
	defer f.Close()

	if !gcs.IsURI(w.path) {
		if err := saveLocal(f, w.path); err != nil {
			return fmt.Errorf("Workbook.Write: %w", err)
		}
		log.Info().Str("path", w.path).Msg("RFM table saved")
		return nil
	}

	if w.storage == nil {
		return fmt.Errorf("Workbook.Write: %s needs a storage service", w.path)
	}
	tmp, err := os.CreateTemp("", "rfm-*.xlsx")
	if err != nil {
		return fmt.Errorf("Workbook.Write: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := f.SaveAs(tmpPath); err != nil {
		return fmt.Errorf("Workbook.Write: saving temp file: %w", err)
	}
	if err := w.storage.UploadFile(ctx, w.path, tmpPath); err != nil {
		return fmt.Errorf("Workbook.Write: uploading: %w", err)
	}
	log.Info().Str("uri", w.path).Msg("RFM table uploaded")
	return nil
}

// saveLocal writes f to path, creating parent directories.
func saveLocal(f *excelize.File, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// BuildWorkbook renders result into a new workbook, one customer per row in
// identifier order.
// An empty summarySheet omits the summary.
func BuildWorkbook(result *pipeline.Result, sheet, summarySheet string) (*excelize.File, error) {
	f := excelize.NewFile()

	if first := f.GetSheetName(0); first != sheet {
		if err := f.SetSheetName(first, sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("BuildWorkbook: naming sheet: %w", err)
		}
	}
	if err := writeRow(f, sheet, 1, CustomerHeader); err != nil {
		f.Close()
		return nil, err
	}
	for i, c := range byIdentifier(result.Customers) {
		row := []interface{}{
			c.Identifier,
			c.Recency,
			c.Frequency,
			c.Monetary.InexactFloat64(),
			c.RScore,
			c.FScore,
			c.MScore,
			c.Code,
			string(c.Segment),
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	if summarySheet == "" {
		return f, nil
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("BuildWorkbook: adding summary sheet: %w", err)
	}
	if err := writeRow(f, summarySheet, 1, SummaryHeader); err != nil {
		f.Close()
		return nil, err
	}
	for i, rule := range rfm.SegmentRules {
		row := []interface{}{
			string(rule.Segment),
			result.Summary.Segments[rule.Segment],
			result.SegmentShare(rule.Segment),
			result.SegmentMonetary(rule.Segment).InexactFloat64(),
			rule.Condition,
		}
		if err := writeRow(f, summarySheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	return f, nil
}

// byIdentifier returns a sorted copy; the result keeps its first-seen order.
func byIdentifier(customers []*rfm.CustomerRFM) []*rfm.CustomerRFM {
	out := make([]*rfm.CustomerRFM, len(customers))
	copy(out, customers)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier < out[j].Identifier
	})
	return out
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	axis, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("writeRow: %w", err)
	}
	if err := f.SetSheetRow(sheet, axis, &values); err != nil {
		return fmt.Errorf("writeRow: sheet %q row %d: %w", sheet, row, err)
	}
	return nil
}
