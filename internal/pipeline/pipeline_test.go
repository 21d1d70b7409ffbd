package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/customer-rfm/internal/logger"
	"github.com/dvloznov/customer-rfm/internal/pipeline"
	"github.com/dvloznov/customer-rfm/internal/rfm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	rows []rfm.RawTransactionRow
	err  error
}

func (f *fakeSource) Load(ctx context.Context) ([]rfm.RawTransactionRow, error) {
	return f.rows, f.err
}

func (f *fakeSource) Describe() string { return "fake" }

type fakeSink struct {
	name   string
	err    error
	result *pipeline.Result
}

func (f *fakeSink) Write(ctx context.Context, result *pipeline.Result) error {
	f.result = result
	return f.err
}

func (f *fakeSink) Name() string { return f.name }

type fakeTracker struct {
	started   []string
	failed    map[string]error
	succeeded map[string]int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{failed: map[string]error{}, succeeded: map[string]int{}}
}

func (f *fakeTracker) StartRun(ctx context.Context, runID, source string) error {
	f.started = append(f.started, runID)
	return nil
}

func (f *fakeTracker) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	f.failed[runID] = runErr
}

func (f *fakeTracker) MarkRunSucceeded(ctx context.Context, runID string, customers int, referenceDate time.Time) error {
	f.succeeded[runID] = customers
	return nil
}

type fakeMetrics struct {
	calls  int
	result *pipeline.Result
	err    error
}

func (f *fakeMetrics) RecordRun(ctx context.Context, result *pipeline.Result, duration time.Duration, runErr error) {
	f.calls++
	f.result = result
	f.err = runErr
}

func row(id, invoice, date, item, amount, period string) rfm.RawTransactionRow {
	return rfm.RawTransactionRow{
		Identifier:    id,
		InvoiceNumber: invoice,
		InvoiceDate:   date,
		ItemName:      item,
		NetAmount:     amount,
		Period:        period,
	}
}

// storeSnapshot is a small store with five customers and a handful of bad rows.
func storeSnapshot() []rfm.RawTransactionRow {
	rows := []rfm.RawTransactionRow{
		row("919812345678", "INV1", "2024-06-29", "Sofa", "600", "Jun"),
		row("9812345678", "INV1", "2024-06-29", "Lamp", "400", "Jun"),
		row("Tel 7123456789", "INV4", "2024-05-21", "Rug", "100", "May"),
		row("9000000001", "INV5", "2024-06-30", "Cushion", "50", "Jun"),
		row("9000000002", "INV6", "2024-06-01", "Chair", "150", "Jun"),
		row("9000000003", "INV7", "03/01/2024", "Table", "500", "Mar"),
		row("9812345678", "INV2", "45453", "Bed", "1000", "Jun"),
		row("9812345678", "INV3", "2024-05-01", "Desk", "1000", "May"),
		row("9000000002", "INV8", "2024-06-01", "Stool", "50", "Jun"),

		row("12345", "X1", "2024-06-01", "Pen", "10", "Jun"),
		row("9812345678", "INV1", "2024-06-29", "Lamp", "400", "Jun"),
		row("9812345678", "INV9", "2024-06-15", "Return", "-20", "Jun"),
		row("7123456789", "INV10", "someday", "Rug", "10", "May"),
		row("7123456789", "INV11", "2024-05-02", "Rug", "ten", "May"),
		row("9000000003", "  ", "2024-03-02", "Lamp", "5", "Mar"),
	}
	for i := range rows {
		rows[i].Seq = i
	}
	return rows
}

func TestRun_StoreSnapshot(t *testing.T) {
	sink := &fakeSink{name: "capture"}
	tracker := newFakeTracker()
	metrics := &fakeMetrics{}

	result, err := pipeline.Run(context.Background(), pipeline.Deps{
		Source:  &fakeSource{rows: storeSnapshot()},
		Sinks:   []pipeline.Sink{sink},
		Tracker: tracker,
		Metrics: metrics,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Same(t, result.Customers[0], sink.result.Customers[0])

	want := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(result.ReferenceDate))

	s := result.Summary
	assert.Equal(t, 15, s.RawRows)
	assert.Equal(t, 14, s.ValidIdentifierRows)
	assert.Equal(t, rfm.CleanStats{
		Input:          14,
		InvalidDate:    1,
		InvalidAmount:  1,
		MissingInvoice: 1,
		NonPositive:    1,
		Duplicate:      1,
		Kept:           9,
	}, s.Clean)
	assert.Equal(t, 9, s.CleanRows)
	assert.Equal(t, 8, s.Invoices)
	assert.Equal(t, 5, s.Customers)
	assert.Equal(t, map[string]int{"Jun": 9, "May": 4, "Mar": 2}, s.PeriodRows)
	assert.Equal(t, "3850", s.TotalMonetary.String())

	type expect struct {
		recency, frequency int
		monetary, code     string
		segment            rfm.Segment
	}
	wantCustomers := map[string]expect{
		"9812345678": {1, 3, "3000", "455", rfm.SegmentChampions},
		"7123456789": {40, 1, "100", "212", rfm.SegmentLost},
		"9000000001": {0, 1, "50", "521", rfm.SegmentNewCustomers},
		"9000000002": {29, 2, "200", "343", rfm.SegmentLoyal},
		"9000000003": {121, 1, "500", "134", rfm.SegmentAtRisk},
	}

	require.Len(t, result.Customers, len(wantCustomers))
	for _, c := range result.Customers {
		w, ok := wantCustomers[c.Identifier]
		require.True(t, ok, c.Identifier)
		assert.Equal(t, w.recency, c.Recency, c.Identifier)
		assert.Equal(t, w.frequency, c.Frequency, c.Identifier)
		assert.Equal(t, w.monetary, c.Monetary.String(), c.Identifier)
		assert.Equal(t, w.code, c.Code, c.Identifier)
		assert.Equal(t, w.segment, c.Segment, c.Identifier)
	}

	assert.Equal(t, "9812345678", result.Customers[0].Identifier)
	assert.Equal(t, "7123456789", result.Customers[1].Identifier)
	assert.Greater(t, result.Customers[0].RScore, result.Customers[1].RScore)
	assert.Greater(t, result.Customers[0].FScore, result.Customers[1].FScore)
	assert.Greater(t, result.Customers[0].MScore, result.Customers[1].MScore)

	assert.Equal(t, 1, s.Segments[rfm.SegmentChampions])
	assert.Equal(t, 0, s.Segments[rfm.SegmentPromising])
	assert.InDelta(t, 0.2, result.SegmentShare(rfm.SegmentLoyal), 1e-9)
	assert.Equal(t, "3000", result.SegmentMonetary(rfm.SegmentChampions).String())

	require.Len(t, tracker.started, 1)
	assert.Equal(t, result.RunID, tracker.started[0])
	assert.Equal(t, 5, tracker.succeeded[result.RunID])
	assert.Empty(t, tracker.failed)

	assert.Equal(t, 1, metrics.calls)
	assert.Same(t, result, metrics.result)
	assert.NoError(t, metrics.err)
}

func TestRun_LogsEveryStage(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

	result, err := pipeline.Run(ctx, pipeline.Deps{
		Source: &fakeSource{rows: storeSnapshot()},
		Sinks:  []pipeline.Sink{&fakeSink{name: "capture"}},
	})
	require.NoError(t, err)

	out := buf.String()
	for _, msg := range []string{
		"Loaded raw rows",
		"Normalized identifiers",
		"Cleaned transactions",
		"Aggregated invoices",
		"Computed RFM metrics",
		"Segment size",
		"Sink written",
	} {
		assert.Contains(t, out, `"message":"`+msg+`"`)
	}
	assert.Contains(t, out, `"run_id":"`+result.RunID+`"`)
	assert.Contains(t, out, `"sink":"capture"`)
	assert.Contains(t, out, `"duplicate":1`)
}

func TestRun_Deterministic(t *testing.T) {
	first, err := pipeline.Run(context.Background(), pipeline.Deps{Source: &fakeSource{rows: storeSnapshot()}})
	require.NoError(t, err)
	second, err := pipeline.Run(context.Background(), pipeline.Deps{Source: &fakeSource{rows: storeSnapshot()}})
	require.NoError(t, err)

	require.Len(t, second.Customers, len(first.Customers))
	for i := range first.Customers {
		assert.Equal(t, first.Customers[i].Identifier, second.Customers[i].Identifier)
		assert.Equal(t, first.Customers[i].Code, second.Customers[i].Code)
		assert.Equal(t, first.Customers[i].Segment, second.Customers[i].Segment)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_InsufficientPopulation(t *testing.T) {
	rows := storeSnapshot()[:4]
	tracker := newFakeTracker()
	metrics := &fakeMetrics{}
	sink := &fakeSink{name: "never"}

	result, err := pipeline.Run(context.Background(), pipeline.Deps{
		Source:  &fakeSource{rows: rows},
		Sinks:   []pipeline.Sink{sink},
		Tracker: tracker,
		Metrics: metrics,
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, rfm.ErrInsufficientPopulation))
	assert.Contains(t, err.Error(), "score_quintiles")
	assert.Nil(t, sink.result)

	require.Len(t, tracker.started, 1)
	assert.ErrorIs(t, tracker.failed[tracker.started[0]], rfm.ErrInsufficientPopulation)
	assert.Equal(t, 1, metrics.calls)
	assert.Nil(t, metrics.result)
}

func TestRun_SameDayCustomersFail(t *testing.T) {
	var rows []rfm.RawTransactionRow
	for i, id := range []string{"9000000001", "9000000002", "9000000003", "9000000004", "9000000005", "9000000006"} {
		r := row(id, "INV"+id, "2024-06-30", "Cushion", "50", "Jun")
		r.Seq = i
		rows = append(rows, r)
	}
	tracker := newFakeTracker()
	sink := &fakeSink{name: "never"}

	_, err := pipeline.Run(context.Background(), pipeline.Deps{
		Source:  &fakeSource{rows: rows},
		Sinks:   []pipeline.Sink{sink},
		Tracker: tracker,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, rfm.ErrInsufficientPopulation)
	assert.Contains(t, err.Error(), "recency quintile edges")
	assert.Nil(t, sink.result)
	assert.ErrorIs(t, tracker.failed[tracker.started[0]], rfm.ErrInsufficientPopulation)
}

func TestRun_NoUsableRows(t *testing.T) {
	rows := []rfm.RawTransactionRow{row("12345", "A", "2024-01-01", "x", "1", "")}

	_, err := pipeline.Run(context.Background(), pipeline.Deps{Source: &fakeSource{rows: rows}})
	assert.ErrorIs(t, err, rfm.ErrNoInvoices)
}

func TestRun_SourceError(t *testing.T) {
	boom := errors.New("sheet missing")

	_, err := pipeline.Run(context.Background(), pipeline.Deps{Source: &fakeSource{err: boom}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "pipeline step 1 (load_rows) failed")
}

func TestRun_SinkErrorStopsLaterSinks(t *testing.T) {
	failing := &fakeSink{name: "workbook", err: errors.New("disk full")}
	later := &fakeSink{name: "bigquery"}

	_, err := pipeline.Run(context.Background(), pipeline.Deps{
		Source: &fakeSource{rows: storeSnapshot()},
		Sinks:  []pipeline.Sink{failing, later},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink workbook")
	assert.NotNil(t, failing.result)
	assert.Nil(t, later.result)
}

func TestRun_NoSource(t *testing.T) {
	_, err := pipeline.Run(context.Background(), pipeline.Deps{})
	assert.ErrorIs(t, err, pipeline.ErrNoSource)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Run(ctx, pipeline.Deps{Source: &fakeSource{rows: storeSnapshot()}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSegmentationPipeline_StepOrder(t *testing.T) {
	p := pipeline.NewSegmentationPipeline(&fakeSource{}, nil)
	assert.Equal(t, []string{
		"load_rows",
		"normalize_identifiers",
		"clean_transactions",
		"aggregate_invoices",
		"compute_rfm",
		"score_quintiles",
		"assign_segments",
		"write_sinks",
	}, p.Steps())
}
